package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

type importRepo struct {
	q querier
}

const importColumns = `id, bank_transaction_id, user_id, status,
	accounting_transaction_id, error_message, created_at, updated_at, imported_at`

// Save upserts the audit row. On top of the schema CHECK constraints it
// verifies the status invariants before touching the database so a broken
// aggregate is rejected with a domain error instead of a driver error.
func (r *importRepo) Save(ctx context.Context, imp *domain.TransactionImport) error {
	if (imp.Status == domain.ImportStatusSuccess) != (imp.AccountingTransactionID != nil) {
		return fmt.Errorf("importRepo.Save: import %s: success status and accounting transaction id must be set together: %w",
			imp.ID, domain.ErrValidation)
	}
	if imp.Status == domain.ImportStatusFailed && imp.ErrorMessage == "" {
		return fmt.Errorf("importRepo.Save: import %s: failed status requires an error message: %w",
			imp.ID, domain.ErrValidation)
	}
	if imp.ErrorMessage != "" && imp.Status != domain.ImportStatusFailed && imp.Status != domain.ImportStatusSkipped {
		return fmt.Errorf("importRepo.Save: import %s: error message not allowed for status %s: %w",
			imp.ID, imp.Status, domain.ErrValidation)
	}

	var accountingID any
	if imp.AccountingTransactionID != nil {
		accountingID = imp.AccountingTransactionID.String()
	}
	var importedAt any
	if imp.ImportedAt != nil {
		importedAt = *imp.ImportedAt
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO transaction_imports (id, bank_transaction_id, user_id, status,
			accounting_transaction_id, error_message, created_at, updated_at, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			accounting_transaction_id = excluded.accounting_transaction_id,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at,
			imported_at = excluded.imported_at`,
		imp.ID.String(), imp.BankTransactionID, imp.UserID, string(imp.Status),
		accountingID, imp.ErrorMessage, imp.CreatedAt, imp.UpdatedAt, importedAt,
	)
	if err != nil {
		return fmt.Errorf("importRepo.Save: %w", mapSQLiteError(err))
	}
	return nil
}

func (r *importRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.TransactionImport, error) {
	row := r.q.QueryRowContext(ctx,
		"SELECT "+importColumns+" FROM transaction_imports WHERE id = ?", id.String())
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("importRepo.FindByID: %w", err)
	}
	return imp, nil
}

func (r *importRepo) ListByUser(ctx context.Context, userID string) ([]*domain.TransactionImport, error) {
	return r.list(ctx, "WHERE user_id = ? ORDER BY created_at", userID)
}

func (r *importRepo) ListByStatus(ctx context.Context, userID string, status domain.ImportStatus) ([]*domain.TransactionImport, error) {
	return r.list(ctx, "WHERE user_id = ? AND status = ? ORDER BY created_at",
		userID, string(status))
}

func (r *importRepo) list(ctx context.Context, where string, args ...any) ([]*domain.TransactionImport, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT "+importColumns+" FROM transaction_imports "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("importRepo.list: %w", err)
	}
	defer rows.Close()

	var imports []*domain.TransactionImport
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("importRepo.list: %w", err)
		}
		imports = append(imports, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("importRepo.list: %w", err)
	}
	return imports, nil
}

func scanImport(s scanner) (*domain.TransactionImport, error) {
	var (
		idStr, bankTxID, userID, status string
		accountingStr                   sql.NullString
		errorMessage                    string
		createdAt, updatedAt            time.Time
		importedAt                      sql.NullTime
	)
	if err := s.Scan(&idStr, &bankTxID, &userID, &status, &accountingStr,
		&errorMessage, &createdAt, &updatedAt, &importedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing import id %q: %w", idStr, err)
	}
	var accountingID *uuid.UUID
	if accountingStr.Valid {
		a, err := uuid.Parse(accountingStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing accounting transaction id %q: %w", accountingStr.String, err)
		}
		accountingID = &a
	}
	var imported *time.Time
	if importedAt.Valid {
		ts := importedAt.Time
		imported = &ts
	}
	return domain.ReconstituteTransactionImport(id, bankTxID, userID,
		domain.ImportStatus(status), accountingID, errorMessage,
		createdAt, updatedAt, imported), nil
}
