package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

type ruleRepo struct {
	q querier
}

func (r *ruleRepo) Save(ctx context.Context, rule *domain.CategoryRule) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO category_rules (id, user_id, pattern, account_id, priority, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			pattern = excluded.pattern,
			account_id = excluded.account_id,
			priority = excluded.priority,
			is_active = excluded.is_active`,
		rule.ID.String(), rule.UserID, rule.Pattern, rule.AccountID.String(),
		rule.Priority, rule.IsActive, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ruleRepo.Save: %w", mapSQLiteError(err))
	}
	return nil
}

func (r *ruleRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.CategoryRule, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, pattern, account_id, priority, is_active, created_at
		FROM category_rules
		WHERE user_id = ? AND is_active = 1
		ORDER BY priority, created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("ruleRepo.ListActiveByUser: %w", err)
	}
	defer rows.Close()

	var rules []*domain.CategoryRule
	for rows.Next() {
		var (
			idStr, ruleUserID, pattern, accountStr string
			priority                               int
			isActive                               bool
			createdAt                              time.Time
		)
		if err := rows.Scan(&idStr, &ruleUserID, &pattern, &accountStr,
			&priority, &isActive, &createdAt); err != nil {
			return nil, fmt.Errorf("ruleRepo.ListActiveByUser: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("ruleRepo.ListActiveByUser: parsing rule id %q: %w", idStr, err)
		}
		accountID, err := uuid.Parse(accountStr)
		if err != nil {
			return nil, fmt.Errorf("ruleRepo.ListActiveByUser: parsing account id %q: %w", accountStr, err)
		}
		rules = append(rules, &domain.CategoryRule{
			ID:        id,
			UserID:    ruleUserID,
			Pattern:   pattern,
			AccountID: accountID,
			Priority:  priority,
			IsActive:  isActive,
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ruleRepo.ListActiveByUser: %w", err)
	}
	return rules, nil
}
