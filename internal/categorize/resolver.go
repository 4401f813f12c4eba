// Package categorize decides which category account an imported bank
// transaction posts against: user rules first, then an optional AI
// provider, else unresolved. Categorization is best-effort by design; a
// failure here must never block a transaction import.
package categorize

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// Option is one candidate category account offered to the AI provider.
// Only expense and income accounts are ever offered; asset accounts are
// never candidates for categorization.
type Option struct {
	AccountID     uuid.UUID          `json:"account_id"`
	AccountNumber string             `json:"account_number"`
	Name          string             `json:"name"`
	AccountType   domain.AccountType `json:"account_type"`
	Description   string             `json:"description"`
}

// Suggestion is the AI provider's answer: a candidate account id with a
// confidence in [0,1] and free-text reasoning.
type Suggestion struct {
	AccountID  uuid.UUID `json:"account_id"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
}

// Provider is the narrow AI categorization contract. A nil suggestion with
// a nil error means the provider has no answer.
type Provider interface {
	Resolve(ctx context.Context, tx domain.BankTransaction, options []Option) (*Suggestion, error)
	HealthCheck(ctx context.Context) bool
}

// Source identifies which stage produced a resolution.
type Source string

const (
	SourceRule Source = "rule"
	SourceAI   Source = "ai"
	SourceNone Source = "none"
)

// Resolution is the detailed outcome: the chosen account (nil when
// unresolved) and where it came from, for audit metadata.
type Resolution struct {
	Account    *domain.Account
	Source     Source
	Confidence float64
	Reasoning  string
}

// Resolver runs the resolution chain. The provider may be nil, in which
// case only rules are consulted.
type Resolver struct {
	provider Provider
	log      zerolog.Logger
}

// NewResolver creates a resolver; provider may be nil.
func NewResolver(provider Provider, log zerolog.Logger) *Resolver {
	return &Resolver{provider: provider, log: log}
}

// Resolve returns the chosen category account, or nil when unresolved.
func (r *Resolver) Resolve(ctx context.Context, uow domain.UnitOfWork, userID string, tx domain.BankTransaction) (*domain.Account, error) {
	res, err := r.ResolveDetailed(ctx, uow, userID, tx)
	if err != nil {
		return nil, err
	}
	return res.Account, nil
}

// ResolveDetailed runs the chain: the first matching active rule, ranked by
// priority, wins outright and the provider is never invoked. Otherwise the
// provider is asked with the expense/income candidate set. Provider errors,
// empty answers and suggestions outside the candidate set all yield an
// unresolved result, never an error.
func (r *Resolver) ResolveDetailed(ctx context.Context, uow domain.UnitOfWork, userID string, tx domain.BankTransaction) (Resolution, error) {
	rules, err := uow.Rules().ListActiveByUser(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	for _, rule := range rules {
		if !rule.Matches(tx) {
			continue
		}
		account, err := uow.Accounts().FindByID(ctx, rule.AccountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				r.log.Warn().
					Str("rule_id", rule.ID.String()).
					Str("account_id", rule.AccountID.String()).
					Msg("rule references missing account, skipping")
				continue
			}
			return Resolution{}, err
		}
		return Resolution{Account: account, Source: SourceRule, Confidence: 1, Reasoning: "matched rule " + rule.Pattern}, nil
	}

	if r.provider == nil {
		return Resolution{Source: SourceNone}, nil
	}

	candidates, options, err := r.candidateOptions(ctx, uow, userID)
	if err != nil {
		return Resolution{}, err
	}
	if len(options) == 0 {
		return Resolution{Source: SourceNone}, nil
	}

	suggestion, err := r.provider.Resolve(ctx, tx, options)
	if err != nil {
		// Provider failures are downgraded to "no suggestion": the import
		// must proceed either way.
		r.log.Warn().Err(err).Str("purpose", tx.Purpose).Msg("AI categorization failed")
		return Resolution{Source: SourceNone}, nil
	}
	if suggestion == nil {
		return Resolution{Source: SourceNone}, nil
	}
	account, ok := candidates[suggestion.AccountID]
	if !ok {
		r.log.Warn().
			Str("account_id", suggestion.AccountID.String()).
			Msg("AI suggested an account outside the candidate set")
		return Resolution{Source: SourceNone}, nil
	}
	return Resolution{
		Account:    account,
		Source:     SourceAI,
		Confidence: clampConfidence(suggestion.Confidence),
		Reasoning:  suggestion.Reasoning,
	}, nil
}

// candidateOptions collects the user's active expense and income accounts.
func (r *Resolver) candidateOptions(ctx context.Context, uow domain.UnitOfWork, userID string) (map[uuid.UUID]*domain.Account, []Option, error) {
	candidates := make(map[uuid.UUID]*domain.Account)
	var options []Option
	for _, accountType := range []domain.AccountType{domain.AccountTypeExpense, domain.AccountTypeIncome} {
		accounts, err := uow.Accounts().ListByType(ctx, userID, accountType)
		if err != nil {
			return nil, nil, err
		}
		for _, account := range accounts {
			if !account.IsActive {
				continue
			}
			candidates[account.ID] = account
			options = append(options, Option{
				AccountID:     account.ID,
				AccountNumber: account.AccountNumber,
				Name:          account.Name,
				AccountType:   account.AccountType,
				Description:   account.Description,
			})
		}
	}
	return candidates, options, nil
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
