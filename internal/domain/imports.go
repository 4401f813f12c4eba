package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportStatus is the state of one import attempt for one raw bank
// transaction.
type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusSuccess   ImportStatus = "success"
	ImportStatusFailed    ImportStatus = "failed"
	ImportStatusDuplicate ImportStatus = "duplicate"
	ImportStatusSkipped   ImportStatus = "skipped"
)

// IsTerminal reports whether the status admits no further attempts.
// Failed and skipped imports can be retried; success and duplicate cannot.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusSuccess || s == ImportStatusDuplicate
}

// TransactionImport is the audit and dedup record for one raw bank
// transaction. Its id derives from (bank transaction id, user id), so the
// same bank transaction always maps to the same row.
//
// Invariants, also enforced at the storage boundary:
// status == success  <=>  AccountingTransactionID is set;
// status == failed   <=>  ErrorMessage is set.
type TransactionImport struct {
	ID                      uuid.UUID
	BankTransactionID       string
	UserID                  string
	Status                  ImportStatus
	AccountingTransactionID *uuid.UUID
	ErrorMessage            string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	ImportedAt              *time.Time
}

// NewTransactionImport starts a pending import attempt.
func NewTransactionImport(bankTransactionID, userID string) (*TransactionImport, error) {
	if bankTransactionID == "" {
		return nil, fmt.Errorf("NewTransactionImport: empty bank transaction id: %w", ErrValidation)
	}
	if userID == "" {
		return nil, fmt.Errorf("NewTransactionImport: empty user id: %w", ErrValidation)
	}
	now := time.Now().UTC()
	return &TransactionImport{
		ID:                ImportID(bankTransactionID, userID),
		BankTransactionID: bankTransactionID,
		UserID:            userID,
		Status:            ImportStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ReconstituteTransactionImport rebuilds an audit row from storage.
func ReconstituteTransactionImport(
	id uuid.UUID,
	bankTransactionID, userID string,
	status ImportStatus,
	accountingTransactionID *uuid.UUID,
	errorMessage string,
	createdAt, updatedAt time.Time,
	importedAt *time.Time,
) *TransactionImport {
	return &TransactionImport{
		ID:                      id,
		BankTransactionID:       bankTransactionID,
		UserID:                  userID,
		Status:                  status,
		AccountingTransactionID: accountingTransactionID,
		ErrorMessage:            errorMessage,
		CreatedAt:               createdAt,
		UpdatedAt:               updatedAt,
		ImportedAt:              importedAt,
	}
}

func (i *TransactionImport) transition(to ImportStatus) error {
	if i.Status != ImportStatusPending {
		return fmt.Errorf("transaction import %s: cannot move from %s to %s: %w",
			i.ID, i.Status, to, ErrValidation)
	}
	i.Status = to
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSuccess records the posted accounting transaction for this import.
func (i *TransactionImport) MarkSuccess(accountingTransactionID uuid.UUID) error {
	if err := i.transition(ImportStatusSuccess); err != nil {
		return err
	}
	id := accountingTransactionID
	i.AccountingTransactionID = &id
	i.ErrorMessage = ""
	now := time.Now().UTC()
	i.ImportedAt = &now
	return nil
}

// MarkFailed records the error detail for this attempt. Failed imports can
// be retried later.
func (i *TransactionImport) MarkFailed(message string) error {
	if message == "" {
		return fmt.Errorf("MarkFailed: empty error message: %w", ErrValidation)
	}
	if err := i.transition(ImportStatusFailed); err != nil {
		return err
	}
	i.ErrorMessage = message
	return nil
}

// MarkDuplicate records that the bank transaction was already imported.
func (i *TransactionImport) MarkDuplicate() error {
	return i.transition(ImportStatusDuplicate)
}

// MarkSkipped records that the transaction was deliberately not imported,
// with the reason. Skipped imports can be retried later.
func (i *TransactionImport) MarkSkipped(reason string) error {
	if reason == "" {
		return fmt.Errorf("MarkSkipped: empty reason: %w", ErrValidation)
	}
	if err := i.transition(ImportStatusSkipped); err != nil {
		return err
	}
	i.ErrorMessage = reason
	return nil
}

// Retry resets a failed or skipped import to pending, clearing the error
// detail. Terminal imports cannot be retried.
func (i *TransactionImport) Retry() error {
	if i.Status != ImportStatusFailed && i.Status != ImportStatusSkipped {
		return fmt.Errorf("Retry: transaction import %s has status %s: %w", i.ID, i.Status, ErrValidation)
	}
	i.Status = ImportStatusPending
	i.ErrorMessage = ""
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns an independent copy of the audit row.
func (i *TransactionImport) Clone() *TransactionImport {
	c := *i
	if i.AccountingTransactionID != nil {
		id := *i.AccountingTransactionID
		c.AccountingTransactionID = &id
	}
	if i.ImportedAt != nil {
		ts := *i.ImportedAt
		c.ImportedAt = &ts
	}
	return &c
}
