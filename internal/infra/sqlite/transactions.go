package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

type transactionRepo struct {
	q   querier
	log zerolog.Logger
}

const transactionColumns = `id, user_id, description, tx_date, counterparty,
	counterparty_iban, source, source_iban, is_internal_transfer, is_posted,
	metadata, created_at`

// Save upserts the transaction row and rewrites its journal entries. The
// aggregate is stored as a whole; partial entry updates are not supported.
func (r *transactionRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("transactionRepo.Save: encoding metadata: %w", err)
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, description, tx_date, counterparty,
			counterparty_iban, source, source_iban, is_internal_transfer, is_posted,
			metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			tx_date = excluded.tx_date,
			counterparty = excluded.counterparty,
			counterparty_iban = excluded.counterparty_iban,
			source = excluded.source,
			source_iban = excluded.source_iban,
			is_internal_transfer = excluded.is_internal_transfer,
			is_posted = excluded.is_posted,
			metadata = excluded.metadata`,
		tx.ID.String(), tx.UserID, tx.Description, tx.Date, tx.Counterparty,
		tx.CounterpartyIBAN, string(tx.Source), tx.SourceIBAN,
		tx.IsInternalTransfer, tx.IsPosted, string(metadata), tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("transactionRepo.Save: %w", mapSQLiteError(err))
	}

	if _, err := r.q.ExecContext(ctx,
		"DELETE FROM journal_entries WHERE transaction_id = ?", tx.ID.String()); err != nil {
		return fmt.Errorf("transactionRepo.Save: clearing entries: %w", err)
	}
	for i, entry := range tx.Entries {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO journal_entries (id, transaction_id, account_id,
				debit_amount, credit_amount, currency, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID.String(), tx.ID.String(), entry.AccountID.String(),
			entry.Debit.Amount().String(), entry.Credit.Amount().String(),
			entry.Debit.Currency(), i,
		)
		if err != nil {
			return fmt.Errorf("transactionRepo.Save: inserting entry %d: %w", i, mapSQLiteError(err))
		}
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txs, err := r.query(ctx, "WHERE id = ?", id.String())
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, domain.ErrNotFound
	}
	return txs[0], nil
}

func (r *transactionRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return r.query(ctx, "WHERE user_id = ? ORDER BY tx_date, created_at", userID)
}

func (r *transactionRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	return r.query(ctx, `WHERE id IN (
		SELECT DISTINCT transaction_id FROM journal_entries WHERE account_id = ?
	) ORDER BY tx_date, created_at`, accountID.String())
}

func (r *transactionRepo) ListInternalTransfers(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return r.query(ctx,
		"WHERE user_id = ? AND is_internal_transfer = 1 ORDER BY tx_date, created_at", userID)
}

func (r *transactionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var isPosted bool
	err := r.q.QueryRowContext(ctx,
		"SELECT is_posted FROM transactions WHERE id = ?", id.String()).Scan(&isPosted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("transactionRepo.Delete: %w", err)
	}
	if isPosted {
		return fmt.Errorf("transactionRepo.Delete: transaction %s is posted, unpost before deleting: %w", id, domain.ErrValidation)
	}
	if _, err := r.q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("transactionRepo.Delete: %w", err)
	}
	return nil
}

func (r *transactionRepo) query(ctx context.Context, where string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+transactionColumns+" FROM transactions "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("transactionRepo.query: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("transactionRepo.query: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transactionRepo.query: %w", err)
	}
	for _, tx := range txs {
		entries, err := r.loadEntries(ctx, tx.ID)
		if err != nil {
			return nil, fmt.Errorf("transactionRepo.query: %w", err)
		}
		tx.Entries = entries
	}
	return txs, nil
}

func (r *transactionRepo) scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		idStr, userID, description                  string
		date                                        time.Time
		counterparty, counterpartyIBAN              string
		source, sourceIBAN                          string
		isInternalTransfer, isPosted                bool
		metadataJSON                                string
		createdAt                                   time.Time
	)
	if err := s.Scan(&idStr, &userID, &description, &date, &counterparty,
		&counterpartyIBAN, &source, &sourceIBAN, &isInternalTransfer, &isPosted,
		&metadataJSON, &createdAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing transaction id %q: %w", idStr, err)
	}
	metadata := make(map[string]string)
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			r.log.Error().Err(err).Str("transaction_id", idStr).
				Msg("decoding transaction metadata, continuing with empty metadata")
			metadata = make(map[string]string)
		}
	}
	return domain.ReconstituteTransaction(id, userID, description, date,
		counterparty, counterpartyIBAN, domain.TransactionSource(source), sourceIBAN,
		isInternalTransfer, isPosted, nil, metadata, createdAt), nil
}

func (r *transactionRepo) loadEntries(ctx context.Context, txID uuid.UUID) ([]domain.JournalEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, account_id, debit_amount, credit_amount, currency
		FROM journal_entries WHERE transaction_id = ? ORDER BY position`, txID.String())
	if err != nil {
		return nil, fmt.Errorf("loading entries for %s: %w", txID, err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var idStr, accountStr, debitStr, creditStr, currency string
		if err := rows.Scan(&idStr, &accountStr, &debitStr, &creditStr, &currency); err != nil {
			return nil, fmt.Errorf("scanning entry for %s: %w", txID, err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parsing entry id %q: %w", idStr, err)
		}
		accountID, err := uuid.Parse(accountStr)
		if err != nil {
			return nil, fmt.Errorf("parsing entry account id %q: %w", accountStr, err)
		}
		debit, err := domain.MoneyFromString(debitStr, currency)
		if err != nil {
			return nil, fmt.Errorf("parsing debit %q: %w", debitStr, err)
		}
		credit, err := domain.MoneyFromString(creditStr, currency)
		if err != nil {
			return nil, fmt.Errorf("parsing credit %q: %w", creditStr, err)
		}
		entries = append(entries, domain.JournalEntry{
			ID: id, AccountID: accountID, Debit: debit, Credit: credit,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading entries for %s: %w", txID, err)
	}
	return entries, nil
}
