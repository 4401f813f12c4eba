package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository interfaces per aggregate. The core is written against these
// only; concrete storage lives under internal/infra.

// AccountRepository persists chart-of-accounts entries.
type AccountRepository interface {
	Save(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByName(ctx context.Context, userID, name string) (*Account, error)
	FindByNumber(ctx context.Context, userID, accountNumber string) (*Account, error)
	FindByIBAN(ctx context.Context, userID, iban string) (*Account, error)
	ListByUser(ctx context.Context, userID string) ([]*Account, error)
	ListByType(ctx context.Context, userID string, accountType AccountType) ([]*Account, error)
	// Delete removes an account. Implementations must refuse the hard
	// delete when the account still has transactions or children.
	Delete(ctx context.Context, id uuid.UUID) error
}

// TransactionRepository persists transaction aggregates with their entries.
type TransactionRepository interface {
	Save(ctx context.Context, tx *Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]*Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Transaction, error)
	ListInternalTransfers(ctx context.Context, userID string) ([]*Transaction, error)
	// Delete removes a transaction. Implementations must refuse to delete
	// a posted transaction.
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountMappingRepository persists IBAN-to-account routing rows.
type AccountMappingRepository interface {
	Save(ctx context.Context, mapping *AccountMapping) error
	FindByID(ctx context.Context, id uuid.UUID) (*AccountMapping, error)
	FindByIBAN(ctx context.Context, userID, iban string) (*AccountMapping, error)
	ListByUser(ctx context.Context, userID string) ([]*AccountMapping, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*AccountMapping, error)
}

// TransactionImportRepository persists import audit rows.
type TransactionImportRepository interface {
	Save(ctx context.Context, imp *TransactionImport) error
	FindByID(ctx context.Context, id uuid.UUID) (*TransactionImport, error)
	ListByUser(ctx context.Context, userID string) ([]*TransactionImport, error)
	ListByStatus(ctx context.Context, userID string, status ImportStatus) ([]*TransactionImport, error)
}

// CategoryRuleRepository persists user categorization rules.
type CategoryRuleRepository interface {
	Save(ctx context.Context, rule *CategoryRule) error
	// ListActiveByUser returns active rules ordered by ascending priority.
	ListActiveByUser(ctx context.Context, userID string) ([]*CategoryRule, error)
}

// UnitOfWork scopes a set of repository writes to one atomic unit. Writes
// staged through its repositories are visible to subsequent reads in the
// same unit before Commit, so multi-step saves (account plus mapping,
// transaction plus entries) can validate against each other; Rollback
// discards everything staged.
type UnitOfWork interface {
	Accounts() AccountRepository
	Transactions() TransactionRepository
	Mappings() AccountMappingRepository
	Imports() TransactionImportRepository
	Rules() CategoryRuleRepository

	Commit() error
	Rollback() error
}

// UnitOfWorkFactory opens units of work. It is injected into services at
// the composition root so tests can substitute fakes.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
