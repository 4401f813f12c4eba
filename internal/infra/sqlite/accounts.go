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

type accountRepo struct {
	q querier
}

const accountColumns = `id, user_id, name, account_type, account_number,
	default_currency, is_active, iban, description, parent_id, depth, created_at`

func (r *accountRepo) Save(ctx context.Context, account *domain.Account) error {
	var parentID any
	if account.ParentID != nil {
		parentID = account.ParentID.String()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, user_id, name, account_type, account_number,
			default_currency, is_active, iban, description, parent_id, depth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			account_type = excluded.account_type,
			account_number = excluded.account_number,
			default_currency = excluded.default_currency,
			is_active = excluded.is_active,
			iban = excluded.iban,
			description = excluded.description,
			parent_id = excluded.parent_id,
			depth = excluded.depth`,
		account.ID.String(), account.UserID, account.Name, string(account.AccountType),
		account.AccountNumber, account.DefaultCurrency, account.IsActive,
		account.IBAN, account.Description, parentID, account.Depth, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("accountRepo.Save: %w", mapSQLiteError(err))
	}
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.findOne(ctx, "WHERE id = ?", id.String())
}

func (r *accountRepo) FindByName(ctx context.Context, userID, name string) (*domain.Account, error) {
	return r.findOne(ctx, "WHERE user_id = ? AND name = ? COLLATE NOCASE", userID, name)
}

func (r *accountRepo) FindByNumber(ctx context.Context, userID, accountNumber string) (*domain.Account, error) {
	return r.findOne(ctx, "WHERE user_id = ? AND account_number = ?", userID, accountNumber)
}

func (r *accountRepo) FindByIBAN(ctx context.Context, userID, iban string) (*domain.Account, error) {
	return r.findOne(ctx, "WHERE user_id = ? AND iban = ? AND iban != ''", userID, iban)
}

func (r *accountRepo) findOne(ctx context.Context, where string, args ...any) (*domain.Account, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts "+where, args...)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("accountRepo.findOne: %w", err)
	}
	return account, nil
}

func (r *accountRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	return r.list(ctx, "WHERE user_id = ? ORDER BY account_number", userID)
}

func (r *accountRepo) ListByType(ctx context.Context, userID string, accountType domain.AccountType) ([]*domain.Account, error) {
	return r.list(ctx, "WHERE user_id = ? AND account_type = ? ORDER BY account_number",
		userID, string(accountType))
}

func (r *accountRepo) list(ctx context.Context, where string, args ...any) ([]*domain.Account, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+accountColumns+" FROM accounts "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("accountRepo.list: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("accountRepo.list: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accountRepo.list: %w", err)
	}
	return accounts, nil
}

func (r *accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	idStr := id.String()

	var entryCount int
	err := r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM journal_entries WHERE account_id = ?", idStr).Scan(&entryCount)
	if err != nil {
		return fmt.Errorf("accountRepo.Delete: counting entries: %w", err)
	}
	if entryCount > 0 {
		return fmt.Errorf("accountRepo.Delete: account %s has %d journal entries: %w",
			id, entryCount, domain.ErrConflict)
	}

	var childCount int
	err = r.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM accounts WHERE parent_id = ?", idStr).Scan(&childCount)
	if err != nil {
		return fmt.Errorf("accountRepo.Delete: counting children: %w", err)
	}
	if childCount > 0 {
		return fmt.Errorf("accountRepo.Delete: account %s has %d child accounts: %w",
			id, childCount, domain.ErrConflict)
	}

	res, err := r.q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", idStr)
	if err != nil {
		return fmt.Errorf("accountRepo.Delete: %w", mapSQLiteError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		idStr, userID, name, accountType, number, currency string
		isActive                                           bool
		iban, description                                  string
		parentStr                                          sql.NullString
		depth                                              int
		createdAt                                          time.Time
	)
	if err := s.Scan(&idStr, &userID, &name, &accountType, &number, &currency,
		&isActive, &iban, &description, &parentStr, &depth, &createdAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing account id %q: %w", idStr, err)
	}
	var parentID *uuid.UUID
	if parentStr.Valid {
		p, err := uuid.Parse(parentStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing parent id %q: %w", parentStr.String, err)
		}
		parentID = &p
	}
	return domain.ReconstituteAccount(id, userID, name, domain.AccountType(accountType),
		number, currency, isActive, iban, description, parentID, depth, createdAt), nil
}
