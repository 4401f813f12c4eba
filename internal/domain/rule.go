package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CategoryRule is a user-defined pattern that routes matching bank
// transactions to a category account before any AI provider is consulted.
// Lower priority values rank first.
type CategoryRule struct {
	ID        uuid.UUID
	UserID    string
	Pattern   string
	AccountID uuid.UUID
	Priority  int
	IsActive  bool
	CreatedAt time.Time
}

// NewCategoryRule validates and creates an active rule.
func NewCategoryRule(userID, pattern string, accountID uuid.UUID, priority int) (*CategoryRule, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("NewCategoryRule: empty user id: %w", ErrValidation)
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("NewCategoryRule: empty pattern: %w", ErrValidation)
	}
	return &CategoryRule{
		ID:        uuid.New(),
		UserID:    userID,
		Pattern:   pattern,
		AccountID: accountID,
		Priority:  priority,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Matches reports whether the rule pattern occurs in the transaction's
// counterparty name or purpose, case-insensitively.
func (r *CategoryRule) Matches(tx BankTransaction) bool {
	if !r.IsActive {
		return false
	}
	p := strings.ToLower(r.Pattern)
	return strings.Contains(strings.ToLower(tx.ApplicantName), p) ||
		strings.Contains(strings.ToLower(tx.Purpose), p)
}

// Clone returns an independent copy of the rule.
func (r *CategoryRule) Clone() *CategoryRule {
	c := *r
	return &c
}
