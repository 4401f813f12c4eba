package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "kontobuch.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func saveAccount(t *testing.T, db *DB, account *domain.Account) {
	t.Helper()
	ctx := context.Background()
	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Accounts().Save(ctx, account))
	require.NoError(t, uow.Commit())
}

func TestAccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	account, err := domain.NewAccount("u1", "Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	require.NoError(t, account.LinkIBAN("DE02100100100006820101"))
	saveAccount(t, db, account)

	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	found, err := uow.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checking", found.Name)
	assert.Equal(t, domain.AccountTypeAsset, found.AccountType)
	assert.Equal(t, "DE02100100100006820101", found.IBAN)

	// Name lookup is case-insensitive, matching the memory twin.
	found, err = uow.Accounts().FindByName(ctx, "u1", "cheCKING")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	found, err = uow.Accounts().FindByNumber(ctx, "u1", "1000")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = uow.Accounts().FindByIBAN(ctx, "u1", "DE02120300000000202051")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountUniqueConstraintsMapToConflict(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := domain.NewAccount("u1", "Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	saveAccount(t, db, first)

	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	sameName, err := domain.NewAccount("u1", "Checking", domain.AccountTypeAsset, "1001", "EUR")
	require.NoError(t, err)
	assert.ErrorIs(t, uow.Accounts().Save(ctx, sameName), domain.ErrConflict)

	sameNumber, err := domain.NewAccount("u1", "Savings", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	assert.ErrorIs(t, uow.Accounts().Save(ctx, sameNumber), domain.ErrConflict)
}

func TestRollbackLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	account, err := domain.NewAccount("u1", "Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)

	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Accounts().Save(ctx, account))

	// Staged write is visible inside the transaction.
	_, err = uow.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	require.NoError(t, uow.Rollback())

	uow, err = db.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	_, err = uow.Accounts().FindByID(ctx, account.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactionAggregateRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	checking, err := domain.NewAccount("u1", "Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	groceries, err := domain.NewAccount("u1", "Groceries", domain.AccountTypeExpense, "4100", "EUR")
	require.NoError(t, err)
	saveAccount(t, db, checking)
	saveAccount(t, db, groceries)

	amount, err := domain.MoneyFromString("45.99", "EUR")
	require.NoError(t, err)
	tx, err := domain.NewTransaction("u1", "weekly groceries", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), domain.SourceBankImport)
	require.NoError(t, err)
	require.NoError(t, tx.AddDebit(groceries.ID, amount))
	require.NoError(t, tx.AddCredit(checking.ID, amount))
	require.NoError(t, tx.SetMetadata("note", "rewe"))
	require.NoError(t, tx.Post())

	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Transactions().Save(ctx, tx))
	require.NoError(t, uow.Commit())

	uow, err = db.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	loaded, err := uow.Transactions().FindByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsPosted)
	assert.Equal(t, "rewe", loaded.Metadata["note"])
	require.Len(t, loaded.Entries, 2)
	assert.Equal(t, groceries.ID, loaded.Entries[0].AccountID)
	assert.True(t, loaded.Entries[0].Debit.IsPositive())
	assert.Equal(t, checking.ID, loaded.Entries[1].AccountID)
	assert.True(t, loaded.Entries[1].Credit.IsPositive())

	byAccount, err := uow.Transactions().ListByAccount(ctx, checking.ID)
	require.NoError(t, err)
	assert.Len(t, byAccount, 1)

	// Posted transactions must be unposted before deletion.
	assert.ErrorIs(t, uow.Transactions().Delete(ctx, tx.ID), domain.ErrValidation)

	// An account carrying entries must not be deletable.
	assert.ErrorIs(t, uow.Accounts().Delete(ctx, checking.ID), domain.ErrConflict)
}

func TestMappingUniquePerIBAN(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	first, err := domain.NewAccount("u1", "Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	second, err := domain.NewAccount("u1", "Checking Copy", domain.AccountTypeAsset, "1001", "EUR")
	require.NoError(t, err)
	saveAccount(t, db, first)
	saveAccount(t, db, second)

	const iban = "DE02100100100006820101"
	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	mapping, err := domain.NewAccountMapping(iban, first.Name, first.ID, "u1")
	require.NoError(t, err)
	require.NoError(t, uow.Mappings().Save(ctx, mapping))
	require.NoError(t, uow.Commit())

	uow, err = db.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	duplicate, err := domain.NewAccountMapping(iban, second.Name, second.ID, "u1")
	require.NoError(t, err)
	assert.ErrorIs(t, uow.Mappings().Save(ctx, duplicate), domain.ErrConflict)

	found, err := uow.Mappings().FindByIBAN(ctx, "u1", iban)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.AccountingAccountID)
}

func TestImportSaveRejectsInconsistentRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	uow, err := db.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	imp, err := domain.NewTransactionImport("REF-1", "u1")
	require.NoError(t, err)
	require.NoError(t, uow.Imports().Save(ctx, imp))

	// Success without a booked transaction id.
	broken := imp.Clone()
	broken.Status = domain.ImportStatusSuccess
	assert.ErrorIs(t, uow.Imports().Save(ctx, broken), domain.ErrValidation)

	// Failed without an error message.
	broken = imp.Clone()
	broken.Status = domain.ImportStatusFailed
	assert.ErrorIs(t, uow.Imports().Save(ctx, broken), domain.ErrValidation)

	// Error message on a pending row.
	broken = imp.Clone()
	broken.ErrorMessage = "leftover"
	assert.ErrorIs(t, uow.Imports().Save(ctx, broken), domain.ErrValidation)

	require.NoError(t, imp.MarkSuccess(uuid.New()))
	require.NoError(t, uow.Imports().Save(ctx, imp))

	success, err := uow.Imports().ListByStatus(ctx, "u1", domain.ImportStatusSuccess)
	require.NoError(t, err)
	require.Len(t, success, 1)
	require.NotNil(t, success[0].ImportedAt)
}
