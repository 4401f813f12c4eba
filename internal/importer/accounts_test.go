package importer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltewinckler/kontobuch/internal/domain"
	"github.com/maltewinckler/kontobuch/internal/infra/memory"
)

func TestImportBankAccountCreatesAccountAndMapping(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	account, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "")
	require.NoError(t, err)
	assert.Equal(t, "Testbank - Girokonto", account.Name)
	assert.Equal(t, domain.AccountTypeAsset, account.AccountType)
	assert.Equal(t, checkingIBAN, account.IBAN)
	assert.Equal(t, "EUR", account.DefaultCurrency)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	mapping, err := uow.Mappings().FindByIBAN(ctx, testUser, checkingIBAN)
	require.NoError(t, err)
	assert.Equal(t, account.ID, mapping.AccountingAccountID)
	assert.Equal(t, account.Name, mapping.AccountName)
	assert.True(t, mapping.IsActive)
}

func TestImportBankAccountIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	first, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "")
	require.NoError(t, err)
	second, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "ignored on re-import")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	accounts, err := uow.Accounts().ListByUser(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	mappings, err := uow.Mappings().ListByUser(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, mappings, 1)
}

func TestImportBankAccountCustomNameAndDefaults(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	named, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "Haushaltskonto")
	require.NoError(t, err)
	assert.Equal(t, "Haushaltskonto", named.Name)

	bare := domain.BankAccount{IBAN: savingsIBAN}
	account, err := svc.ImportBankAccount(ctx, testUser, bare, "")
	require.NoError(t, err)
	assert.Equal(t, "Bank - Girokonto", account.Name, "missing bank fields fall back to defaults")
	assert.Equal(t, "EUR", account.DefaultCurrency)
}

func TestImportBankAccountLinksExistingAccountByIBAN(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	// A hand-created asset account already carries the IBAN; import must
	// attach a mapping instead of creating a second account.
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	existing, err := domain.NewAccount(testUser, "My Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	require.NoError(t, existing.LinkIBAN(checkingIBAN))
	require.NoError(t, uow.Accounts().Save(ctx, existing))
	require.NoError(t, uow.Commit())

	account, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, account.ID)

	uow, err = store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	accounts, err := uow.Accounts().ListByUser(ctx, testUser)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestGeneratedAccountNumbersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	first, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "First")
	require.NoError(t, err)

	// Same digit tail, different IBAN: the generated number must get a
	// suffix instead of conflicting.
	clash := domain.BankAccount{IBAN: "DE89370400440532820101", BankName: "Other"}
	second, err := svc.ImportBankAccount(ctx, testUser, clash, "Second")
	require.NoError(t, err)
	assert.NotEqual(t, first.AccountNumber, second.AccountNumber)
}

func TestRenameBankAccountKeepsNamesInSync(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	_, err := svc.ImportBankAccount(ctx, testUser, checkingBank(), "")
	require.NoError(t, err)
	require.NoError(t, svc.RenameBankAccount(ctx, testUser, checkingIBAN, "Haushaltskonto"))

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	mapping, err := uow.Mappings().FindByIBAN(ctx, testUser, checkingIBAN)
	require.NoError(t, err)
	account, err := uow.Accounts().FindByID(ctx, mapping.AccountingAccountID)
	require.NoError(t, err)
	assert.Equal(t, "Haushaltskonto", account.Name)
	assert.Equal(t, "Haushaltskonto", mapping.AccountName)
}

func TestRenameBankAccountUnknownIBAN(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAccountImportService(store, zerolog.Nop())

	err := svc.RenameBankAccount(ctx, testUser, checkingIBAN, "Anything")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
