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

type mappingRepo struct {
	q querier
}

const mappingColumns = `id, iban, account_name, accounting_account_id, user_id,
	is_active, created_at, updated_at`

func (r *mappingRepo) Save(ctx context.Context, mapping *domain.AccountMapping) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO account_mappings (id, iban, account_name, accounting_account_id,
			user_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			account_name = excluded.account_name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		mapping.ID.String(), mapping.IBAN, mapping.AccountName,
		mapping.AccountingAccountID.String(), mapping.UserID, mapping.IsActive,
		mapping.CreatedAt, mapping.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("mappingRepo.Save: %w", mapSQLiteError(err))
	}
	return nil
}

func (r *mappingRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.AccountMapping, error) {
	return r.findOne(ctx, "WHERE id = ?", id.String())
}

func (r *mappingRepo) FindByIBAN(ctx context.Context, userID, iban string) (*domain.AccountMapping, error) {
	return r.findOne(ctx, "WHERE user_id = ? AND iban = ?", userID, iban)
}

func (r *mappingRepo) findOne(ctx context.Context, where string, args ...any) (*domain.AccountMapping, error) {
	row := r.q.QueryRowContext(ctx, "SELECT "+mappingColumns+" FROM account_mappings "+where, args...)
	mapping, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mappingRepo.findOne: %w", err)
	}
	return mapping, nil
}

func (r *mappingRepo) ListByUser(ctx context.Context, userID string) ([]*domain.AccountMapping, error) {
	return r.list(ctx, "WHERE user_id = ? ORDER BY iban", userID)
}

func (r *mappingRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.AccountMapping, error) {
	return r.list(ctx, "WHERE user_id = ? AND is_active = 1 ORDER BY iban", userID)
}

func (r *mappingRepo) list(ctx context.Context, where string, args ...any) ([]*domain.AccountMapping, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT "+mappingColumns+" FROM account_mappings "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("mappingRepo.list: %w", err)
	}
	defer rows.Close()

	var mappings []*domain.AccountMapping
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("mappingRepo.list: %w", err)
		}
		mappings = append(mappings, mapping)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mappingRepo.list: %w", err)
	}
	return mappings, nil
}

func scanMapping(s scanner) (*domain.AccountMapping, error) {
	var (
		idStr, iban, accountName, accountStr, userID string
		isActive                                     bool
		createdAt, updatedAt                         time.Time
	)
	if err := s.Scan(&idStr, &iban, &accountName, &accountStr, &userID,
		&isActive, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing mapping id %q: %w", idStr, err)
	}
	accountID, err := uuid.Parse(accountStr)
	if err != nil {
		return nil, fmt.Errorf("parsing mapped account id %q: %w", accountStr, err)
	}
	return domain.ReconstituteAccountMapping(id, iban, accountName, accountID,
		userID, isActive, createdAt, updatedAt), nil
}
