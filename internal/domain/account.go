package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountType classifies an account in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// MaxAccountDepth limits the chart-of-accounts hierarchy to three levels.
const MaxAccountDepth = 3

// IsValid reports whether t is one of the five account types.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// IsDebitNormal reports whether balances of this type increase with debits.
// Asset and expense accounts are debit-normal; liability, equity and income
// accounts are credit-normal.
func (t AccountType) IsDebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account is a node in a user's chart of accounts. Identity is the ID, never
// a business field; name and account number are each unique per user.
type Account struct {
	ID              uuid.UUID
	UserID          string
	Name            string
	AccountType     AccountType
	AccountNumber   string
	DefaultCurrency string
	IsActive        bool
	IBAN            string
	Description     string
	ParentID        *uuid.UUID
	Depth           int
	CreatedAt       time.Time
}

// NewAccount validates the business fields and returns a root-level active
// account. Use AssignParent to place it in the hierarchy.
func NewAccount(userID, name string, accountType AccountType, accountNumber, currency string) (*Account, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("NewAccount: empty user id: %w", ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("NewAccount: empty name: %w", ErrValidation)
	}
	if strings.TrimSpace(accountNumber) == "" {
		return nil, fmt.Errorf("NewAccount: empty account number: %w", ErrValidation)
	}
	if !accountType.IsValid() {
		return nil, fmt.Errorf("NewAccount: invalid account type %q: %w", accountType, ErrValidation)
	}
	if err := validateCurrency(currency); err != nil {
		return nil, fmt.Errorf("NewAccount: %w", err)
	}
	return &Account{
		ID:              uuid.New(),
		UserID:          userID,
		Name:            name,
		AccountType:     accountType,
		AccountNumber:   accountNumber,
		DefaultCurrency: currency,
		IsActive:        true,
		Depth:           1,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// ReconstituteAccount rebuilds an account from already-validated storage
// data. It bypasses the constructor checks on purpose; it must only be
// called by repository implementations.
func ReconstituteAccount(
	id uuid.UUID,
	userID, name string,
	accountType AccountType,
	accountNumber, currency string,
	isActive bool,
	iban, description string,
	parentID *uuid.UUID,
	depth int,
	createdAt time.Time,
) *Account {
	return &Account{
		ID:              id,
		UserID:          userID,
		Name:            name,
		AccountType:     accountType,
		AccountNumber:   accountNumber,
		DefaultCurrency: currency,
		IsActive:        isActive,
		IBAN:            iban,
		Description:     description,
		ParentID:        parentID,
		Depth:           depth,
		CreatedAt:       createdAt,
	}
}

// IsDebitNormal reports whether the account's balance increases with debits.
func (a *Account) IsDebitNormal() bool {
	return a.AccountType.IsDebitNormal()
}

// AssignParent places the account under parent. The parent must belong to
// the same user, have the same account type, not be the account itself, and
// the resulting depth must not exceed MaxAccountDepth. A parent's depth is
// fixed once stored, so cycles cannot form through this path.
func (a *Account) AssignParent(parent *Account) error {
	if parent == nil {
		a.ParentID = nil
		a.Depth = 1
		return nil
	}
	if parent.ID == a.ID {
		return fmt.Errorf("AssignParent: account %q cannot be its own parent: %w", a.Name, ErrValidation)
	}
	if parent.UserID != a.UserID {
		return fmt.Errorf("AssignParent: parent %q belongs to a different user: %w", parent.Name, ErrValidation)
	}
	if parent.AccountType != a.AccountType {
		return fmt.Errorf("AssignParent: parent type %s does not match %s: %w",
			parent.AccountType, a.AccountType, ErrValidation)
	}
	if parent.ParentID != nil && *parent.ParentID == a.ID {
		return fmt.Errorf("AssignParent: %q is already a child of %q: %w", parent.Name, a.Name, ErrValidation)
	}
	if parent.Depth+1 > MaxAccountDepth {
		return fmt.Errorf("AssignParent: hierarchy depth %d exceeds %d levels: %w",
			parent.Depth+1, MaxAccountDepth, ErrValidation)
	}
	id := parent.ID
	a.ParentID = &id
	a.Depth = parent.Depth + 1
	return nil
}

// Rename changes the display name. Uniqueness per user is enforced at the
// repository boundary.
func (a *Account) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("Rename: empty name: %w", ErrValidation)
	}
	a.Name = name
	return nil
}

// LinkIBAN attaches a normalized bank IBAN to the account.
func (a *Account) LinkIBAN(iban string) error {
	normalized, err := NormalizeIBAN(iban)
	if err != nil {
		return fmt.Errorf("LinkIBAN: %w", err)
	}
	a.IBAN = normalized
	return nil
}

// Deactivate marks the account inactive. Accounts are never physically
// deleted once they carry transactions or children.
func (a *Account) Deactivate() { a.IsActive = false }

// Reactivate marks the account active again.
func (a *Account) Reactivate() { a.IsActive = true }

// Clone returns an independent copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.ParentID != nil {
		id := *a.ParentID
		c.ParentID = &id
	}
	return &c
}
