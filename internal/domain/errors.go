package domain

import (
	"errors"
	"fmt"
)

// Sentinel roots for the error taxonomy. Callers map these to their own
// semantics (validation -> 400-like, not found -> 404-like, conflict -> 409-like)
// with errors.Is.
var (
	// ErrValidation marks malformed input caught before any mutation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced account, transaction or mapping that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks uniqueness violations such as a duplicate account
	// number or name.
	ErrConflict = errors.New("conflict")
)

// AccountTypeError reports an operation attempted against an account of the
// wrong type, e.g. building an expense entry set against an equity account.
type AccountTypeError struct {
	Op      string
	Account string
	Got     AccountType
	Want    []AccountType
}

func (e *AccountTypeError) Error() string {
	return fmt.Sprintf("%s: account %q has type %s, want one of %v", e.Op, e.Account, e.Got, e.Want)
}

// Is makes AccountTypeError match ErrValidation.
func (e *AccountTypeError) Is(target error) bool {
	return target == ErrValidation
}

// CurrencyMismatchError reports arithmetic attempted across two different
// currencies.
type CurrencyMismatchError struct {
	Left  string
	Right string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s vs %s", e.Left, e.Right)
}

// Is makes CurrencyMismatchError match ErrValidation.
func (e *CurrencyMismatchError) Is(target error) bool {
	return target == ErrValidation
}
