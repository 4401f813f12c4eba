package importer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltewinckler/kontobuch/internal/categorize"
	"github.com/maltewinckler/kontobuch/internal/domain"
	"github.com/maltewinckler/kontobuch/internal/infra/memory"
	"github.com/maltewinckler/kontobuch/internal/ledger"
)

const (
	checkingIBAN = "DE02100100100006820101"
	savingsIBAN  = "DE02120300000000202051"
	testUser     = "u1"
)

func newTestPipeline(t *testing.T, provider categorize.Provider) (*memory.Store, *ImportService) {
	t.Helper()
	log := zerolog.Nop()
	store := memory.NewStore()
	resolver := categorize.NewResolver(provider, log)
	accounts := NewAccountImportService(store, log)
	svc := NewImportService(store, resolver, NewTransferService(log), accounts, log)
	return store, svc
}

func checkingBank() domain.BankAccount {
	return domain.BankAccount{
		IBAN:     checkingIBAN,
		BankName: "Testbank",
		Type:     "Girokonto",
		Currency: "EUR",
	}
}

func feedTx(ref, amount string, day int) domain.BankTransaction {
	return domain.BankTransaction{
		BookingDate:   time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.RequireFromString(amount),
		Currency:      "EUR",
		Purpose:       "purchase " + ref,
		ApplicantName: "REWE Markt",
		BankReference: ref,
	}
}

func listByUser[T any](t *testing.T, store *memory.Store, list func(domain.UnitOfWork) ([]T, error)) []T {
	t.Helper()
	uow, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer uow.Rollback()
	out, err := list(uow)
	require.NoError(t, err)
	return out
}

func userTransactions(t *testing.T, store *memory.Store) []*domain.Transaction {
	return listByUser(t, store, func(uow domain.UnitOfWork) ([]*domain.Transaction, error) {
		return uow.Transactions().ListByUser(context.Background(), testUser)
	})
}

func userImports(t *testing.T, store *memory.Store) []*domain.TransactionImport {
	return listByUser(t, store, func(uow domain.UnitOfWork) ([]*domain.TransactionImport, error) {
		return uow.Imports().ListByUser(context.Background(), testUser)
	})
}

func TestSyncAccountImportsOnce(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)
	txs := []domain.BankTransaction{feedTx("REF-1", "-45.99", 10), feedTx("REF-2", "-12.00", 11)}

	result, err := svc.SyncAccount(ctx, testUser, checkingBank(), txs)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Zero(t, result.Duplicates)
	assert.Zero(t, result.Failed)

	posted := userTransactions(t, store)
	require.Len(t, posted, 2)
	for _, tx := range posted {
		assert.True(t, tx.IsPosted)
		assert.True(t, tx.IsBalanced())
	}

	// Re-running the identical batch books nothing new.
	result, err = svc.SyncAccount(ctx, testUser, checkingBank(), txs)
	require.NoError(t, err)
	assert.Zero(t, result.Imported)
	assert.Equal(t, 2, result.Duplicates)
	assert.Len(t, userTransactions(t, store), 2, "duplicates must not create transactions")

	imports := userImports(t, store)
	require.Len(t, imports, 2, "one audit row per raw transaction")
	for _, imp := range imports {
		assert.Equal(t, domain.ImportStatusSuccess, imp.Status,
			"stored success rows stay untouched on re-import")
		assert.NotNil(t, imp.AccountingTransactionID)
	}
}

func TestUnmappedSourceSkips(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	result, err := svc.ImportTransactions(ctx, testUser, checkingIBAN,
		[]domain.BankTransaction{feedTx("REF-1", "-10", 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	imports := userImports(t, store)
	require.Len(t, imports, 1)
	assert.Equal(t, domain.ImportStatusSkipped, imports[0].Status)
	assert.Contains(t, imports[0].ErrorMessage, "no account mapping")
}

func TestZeroAmountSkips(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	result, err := svc.SyncAccount(ctx, testUser, checkingBank(),
		[]domain.BankTransaction{feedTx("REF-0", "0", 10)})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, userTransactions(t, store))
}

func TestFallbackAccountsByDirection(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	result, err := svc.SyncAccount(ctx, testUser, checkingBank(), []domain.BankTransaction{
		feedTx("OUT-1", "-30", 10),
		feedTx("IN-1", "250", 11),
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Imported)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	expense, err := uow.Accounts().FindByName(ctx, testUser, DefaultFallbackExpenseName)
	require.NoError(t, err, "unresolved expense must create the fallback expense account")
	assert.Equal(t, domain.AccountTypeExpense, expense.AccountType)

	income, err := uow.Accounts().FindByName(ctx, testUser, DefaultFallbackIncomeName)
	require.NoError(t, err, "unresolved income must create the fallback income account")
	assert.Equal(t, domain.AccountTypeIncome, income.AccountType)

	for _, tx := range userTransactions(t, store) {
		assert.Equal(t, string(categorize.SourceNone), tx.Metadata[domain.MetaKeyResolutionSource])
	}
}

func TestRuleRoutesCategory(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	// Seed the category account and the rule before importing.
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	groceries, err := domain.NewAccount(testUser, "Groceries", domain.AccountTypeExpense, "4100", "EUR")
	require.NoError(t, err)
	require.NoError(t, uow.Accounts().Save(ctx, groceries))
	rule, err := domain.NewCategoryRule(testUser, "rewe", groceries.ID, 10)
	require.NoError(t, err)
	require.NoError(t, uow.Rules().Save(ctx, rule))
	require.NoError(t, uow.Commit())

	result, err := svc.SyncAccount(ctx, testUser, checkingBank(),
		[]domain.BankTransaction{feedTx("REF-1", "-45.99", 10)})
	require.NoError(t, err)
	require.Equal(t, 1, result.Imported)

	posted := userTransactions(t, store)
	require.Len(t, posted, 1)
	assert.Equal(t, string(categorize.SourceRule), posted[0].Metadata[domain.MetaKeyResolutionSource])

	var debitsGroceries bool
	for _, entry := range posted[0].Entries {
		if entry.AccountID == groceries.ID && entry.Debit.IsPositive() {
			debitsGroceries = true
		}
	}
	assert.True(t, debitsGroceries, "rule-matched expense must debit the rule's account")
}

func TestPartialFailureDoesNotBlockSiblings(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	bad := feedTx("BAD-1", "-10", 10)
	bad.Currency = "bogus"

	result, err := svc.SyncAccount(ctx, testUser, checkingBank(), []domain.BankTransaction{
		feedTx("REF-1", "-5", 9),
		bad,
		feedTx("REF-2", "-7", 11),
	})
	require.NoError(t, err, "a failing transaction must not abort the batch")
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Failed)

	failed := listByUser(t, store, func(uow domain.UnitOfWork) ([]*domain.TransactionImport, error) {
		return uow.Imports().ListByStatus(ctx, testUser, domain.ImportStatusFailed)
	})
	require.Len(t, failed, 1)
	assert.Equal(t, "BAD-1", failed[0].BankTransactionID)
	assert.NotEmpty(t, failed[0].ErrorMessage)
	assert.Nil(t, failed[0].AccountingTransactionID)

	assert.Len(t, userTransactions(t, store), 2, "no partial postings from the failed transaction")
}

func TestRetryFailedImports(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	bad := feedTx("BAD-1", "-10", 10)
	bad.Currency = "bogus"
	_, err := svc.SyncAccount(ctx, testUser, checkingBank(), []domain.BankTransaction{bad})
	require.NoError(t, err)

	n, err := svc.RetryFailedImports(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending := listByUser(t, store, func(uow domain.UnitOfWork) ([]*domain.TransactionImport, error) {
		return uow.Imports().ListByStatus(ctx, testUser, domain.ImportStatusPending)
	})
	require.Len(t, pending, 1)
	assert.Empty(t, pending[0].ErrorMessage)

	// The fixed feed row now imports through the pending audit row.
	fixed := feedTx("BAD-1", "-10", 10)
	result, err := svc.SyncAccount(ctx, testUser, checkingBank(), []domain.BankTransaction{fixed})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestRepeatedFailureKeepsLatestErrorDetail(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	bad := feedTx("BAD-1", "-10", 10)
	bad.Currency = "bogus"
	_, err := svc.SyncAccount(ctx, testUser, checkingBank(), []domain.BankTransaction{bad})
	require.NoError(t, err)

	imports := userImports(t, store)
	require.Len(t, imports, 1)
	require.Equal(t, domain.ImportStatusFailed, imports[0].Status)
	assert.Contains(t, imports[0].ErrorMessage, "bogus")

	// The same bank transaction fails again for a different reason; the
	// stored audit row must carry the new detail, not the stale one.
	bad.Currency = "nope"
	_, err = svc.SyncAccount(ctx, testUser, checkingBank(), []domain.BankTransaction{bad})
	require.NoError(t, err)

	imports = userImports(t, store)
	require.Len(t, imports, 1)
	require.Equal(t, domain.ImportStatusFailed, imports[0].Status)
	assert.Contains(t, imports[0].ErrorMessage, "nope")
	assert.NotContains(t, imports[0].ErrorMessage, "bogus")
}

func TestOpeningBalanceSeededOnce(t *testing.T) {
	ctx := context.Background()
	store, svc := newTestPipeline(t, nil)

	balance := decimal.RequireFromString("1000")
	bank := checkingBank()
	bank.Balance = &balance
	txs := []domain.BankTransaction{feedTx("REF-1", "200", 10)}

	_, err := svc.SyncAccount(ctx, testUser, bank, txs)
	require.NoError(t, err)

	countOpenings := func() int {
		n := 0
		for _, tx := range userTransactions(t, store) {
			if tx.IsOpeningBalance() {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, countOpenings())

	// The opening amount back-solves to current minus history: 1000-200=800.
	balanceSvc := ledger.NewBalanceService(zerolog.Nop())
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()
	account, err := uow.Accounts().FindByIBAN(ctx, testUser, checkingIBAN)
	require.NoError(t, err)
	history, err := uow.Transactions().ListByAccount(ctx, account.ID)
	require.NoError(t, err)
	ledgerBalance, err := balanceSvc.CalculateBalance(account, history, nil)
	require.NoError(t, err)
	assert.True(t, ledgerBalance.Amount().Equal(balance),
		"ledger %s must reconcile to bank %s", ledgerBalance, balance)

	// A later sync with more history must not seed a second opening.
	_, err = svc.SyncAccount(ctx, testUser, bank, append(txs, feedTx("REF-2", "-50", 12)))
	require.NoError(t, err)
	assert.Equal(t, 1, countOpenings())
}
