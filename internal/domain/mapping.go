package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NormalizeIBAN uppercases the IBAN, strips spaces and validates its shape:
// 15 to 34 characters, starting with a two-letter country code.
func NormalizeIBAN(iban string) (string, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
	if len(s) < 15 || len(s) > 34 {
		return "", fmt.Errorf("invalid IBAN %q: length must be 15-34 characters: %w", iban, ErrValidation)
	}
	if s[0] < 'A' || s[0] > 'Z' || s[1] < 'A' || s[1] > 'Z' {
		return "", fmt.Errorf("invalid IBAN %q: must start with a country code: %w", iban, ErrValidation)
	}
	return s, nil
}

// AccountMapping routes imported bank transactions for an IBAN to the asset
// account that books them. Its id is derived deterministically from
// (iban, account id), so re-importing the same pair collides with the
// existing row instead of creating a second one.
type AccountMapping struct {
	ID                  uuid.UUID
	IBAN                string
	AccountName         string
	AccountingAccountID uuid.UUID
	UserID              string
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewAccountMapping validates and normalizes the IBAN and derives the
// deterministic mapping id.
func NewAccountMapping(iban, accountName string, accountingAccountID uuid.UUID, userID string) (*AccountMapping, error) {
	normalized, err := NormalizeIBAN(iban)
	if err != nil {
		return nil, fmt.Errorf("NewAccountMapping: %w", err)
	}
	if strings.TrimSpace(accountName) == "" {
		return nil, fmt.Errorf("NewAccountMapping: empty account name: %w", ErrValidation)
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("NewAccountMapping: empty user id: %w", ErrValidation)
	}
	now := time.Now().UTC()
	return &AccountMapping{
		ID:                  MappingID(normalized, accountingAccountID),
		IBAN:                normalized,
		AccountName:         accountName,
		AccountingAccountID: accountingAccountID,
		UserID:              userID,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// ReconstituteAccountMapping rebuilds a mapping from already-validated
// storage data.
func ReconstituteAccountMapping(
	id uuid.UUID,
	iban, accountName string,
	accountingAccountID uuid.UUID,
	userID string,
	isActive bool,
	createdAt, updatedAt time.Time,
) *AccountMapping {
	return &AccountMapping{
		ID:                  id,
		IBAN:                iban,
		AccountName:         accountName,
		AccountingAccountID: accountingAccountID,
		UserID:              userID,
		IsActive:            isActive,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}
}

// Rename updates the denormalized account name. The linked Account must be
// renamed in the same unit of work so the two never drift apart.
func (m *AccountMapping) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("Rename: empty account name: %w", ErrValidation)
	}
	m.AccountName = name
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// Deactivate marks the mapping inactive.
func (m *AccountMapping) Deactivate() {
	m.IsActive = false
	m.UpdatedAt = time.Now().UTC()
}

// Clone returns an independent copy of the mapping.
func (m *AccountMapping) Clone() *AccountMapping {
	c := *m
	return &c
}
