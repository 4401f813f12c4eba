package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

func newAccount(t *testing.T, name, number string) *domain.Account {
	t.Helper()
	a, err := domain.NewAccount("u1", name, domain.AccountTypeAsset, number, "EUR")
	require.NoError(t, err)
	return a
}

func TestStagedWritesVisibleBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	account := newAccount(t, "Checking", "1000")
	require.NoError(t, uow.Accounts().Save(ctx, account))

	// Same unit of work reads its own staged write.
	found, err := uow.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checking", found.Name)

	// A parallel unit of work does not see it yet.
	other, err := store.Begin(ctx)
	require.NoError(t, err)
	defer other.Rollback()
	_, err = other.Accounts().FindByID(ctx, account.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, uow.Commit())
	third, err := store.Begin(ctx)
	require.NoError(t, err)
	defer third.Rollback()
	_, err = third.Accounts().FindByID(ctx, account.ID)
	assert.NoError(t, err)
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	account := newAccount(t, "Checking", "1000")
	require.NoError(t, uow.Accounts().Save(ctx, account))
	require.NoError(t, uow.Rollback())

	// Commit after rollback is a no-op.
	require.NoError(t, uow.Commit())

	fresh, err := store.Begin(ctx)
	require.NoError(t, err)
	defer fresh.Rollback()
	_, err = fresh.Accounts().FindByID(ctx, account.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccountUniquenessAcrossStagedAndCommitted(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Accounts().Save(ctx, newAccount(t, "Checking", "1000")))
	require.NoError(t, uow.Commit())

	uow, err = store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	// Names are unique per user, case-insensitively.
	err = uow.Accounts().Save(ctx, newAccount(t, "CHECKING", "1001"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Numbers are unique per user.
	err = uow.Accounts().Save(ctx, newAccount(t, "Savings", "1000"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Re-saving the same aggregate is an update, not a conflict.
	staged := newAccount(t, "Budget", "1002")
	require.NoError(t, uow.Accounts().Save(ctx, staged))
	require.NoError(t, staged.Rename("Monthly Budget"))
	assert.NoError(t, uow.Accounts().Save(ctx, staged))

	// Another user may reuse both name and number.
	foreign, err := domain.NewAccount("u2", "Checking", domain.AccountTypeAsset, "1000", "EUR")
	require.NoError(t, err)
	assert.NoError(t, uow.Accounts().Save(ctx, foreign))
}

func bookedTransaction(t *testing.T, debit, credit uuid.UUID) *domain.Transaction {
	t.Helper()
	tx, err := domain.NewTransaction("u1", "groceries", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), domain.SourceManual)
	require.NoError(t, err)
	amount, err := domain.MoneyFromString("45.99", "EUR")
	require.NoError(t, err)
	require.NoError(t, tx.AddDebit(debit, amount))
	require.NoError(t, tx.AddCredit(credit, amount))
	return tx
}

func TestDeleteAccountRefusals(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	parent := newAccount(t, "Assets", "1")
	child := newAccount(t, "Checking", "1000")
	require.NoError(t, child.AssignParent(parent))
	require.NoError(t, uow.Accounts().Save(ctx, parent))
	require.NoError(t, uow.Accounts().Save(ctx, child))

	err = uow.Accounts().Delete(ctx, parent.ID)
	assert.ErrorIs(t, err, domain.ErrConflict, "parent with children must not be deletable")

	expense, err := domain.NewAccount("u1", "Groceries", domain.AccountTypeExpense, "4100", "EUR")
	require.NoError(t, err)
	require.NoError(t, uow.Accounts().Save(ctx, expense))
	tx := bookedTransaction(t, expense.ID, child.ID)
	require.NoError(t, uow.Transactions().Save(ctx, tx))

	err = uow.Accounts().Delete(ctx, expense.ID)
	assert.ErrorIs(t, err, domain.ErrConflict, "account with journal entries must not be deletable")

	// An untouched account deletes fine, and the deletion is staged until
	// commit.
	spare := newAccount(t, "Spare", "1009")
	require.NoError(t, uow.Accounts().Save(ctx, spare))
	require.NoError(t, uow.Accounts().Delete(ctx, spare.ID))
	_, err = uow.Accounts().FindByID(ctx, spare.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTransactionRequiresUnposted(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	checking := newAccount(t, "Checking", "1000")
	groceries, err := domain.NewAccount("u1", "Groceries", domain.AccountTypeExpense, "4100", "EUR")
	require.NoError(t, err)
	require.NoError(t, uow.Accounts().Save(ctx, checking))
	require.NoError(t, uow.Accounts().Save(ctx, groceries))

	tx := bookedTransaction(t, groceries.ID, checking.ID)
	require.NoError(t, tx.Post())
	require.NoError(t, uow.Transactions().Save(ctx, tx))

	err = uow.Transactions().Delete(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, tx.Unpost())
	require.NoError(t, uow.Transactions().Save(ctx, tx))
	assert.NoError(t, uow.Transactions().Delete(ctx, tx.ID))
	_, err = uow.Transactions().FindByID(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportSaveEnforcesAuditInvariants(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback()

	imp, err := domain.NewTransactionImport("REF-1", "u1")
	require.NoError(t, err)
	require.NoError(t, uow.Imports().Save(ctx, imp))

	// Success without a booked transaction id must be rejected.
	broken := imp.Clone()
	broken.Status = domain.ImportStatusSuccess
	assert.ErrorIs(t, uow.Imports().Save(ctx, broken), domain.ErrValidation)

	// Failed without a message must be rejected.
	broken = imp.Clone()
	broken.Status = domain.ImportStatusFailed
	assert.ErrorIs(t, uow.Imports().Save(ctx, broken), domain.ErrValidation)

	// Messages are only allowed on failed or skipped rows.
	broken = imp.Clone()
	broken.ErrorMessage = "leftover"
	assert.ErrorIs(t, uow.Imports().Save(ctx, broken), domain.ErrValidation)

	// The legal transitions save cleanly.
	txID := uuid.New()
	require.NoError(t, imp.MarkSuccess(txID))
	assert.NoError(t, uow.Imports().Save(ctx, imp))
}

func TestListByStatusSeesStagedRows(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	imp, err := domain.NewTransactionImport("REF-9", "u1")
	require.NoError(t, err)
	require.NoError(t, imp.MarkFailed("no account mapping"))
	require.NoError(t, uow.Imports().Save(ctx, imp))

	failed, err := uow.Imports().ListByStatus(ctx, "u1", domain.ImportStatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	pending, err := uow.Imports().ListByStatus(ctx, "u1", domain.ImportStatusPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.NoError(t, uow.Commit())
}
