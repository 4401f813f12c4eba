package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// BalanceService computes point-in-time balances and trial balances from
// transaction history. Balances are always recomputed from posted
// transactions; nothing is cached, trading CPU for correctness.
type BalanceService struct {
	log zerolog.Logger
}

// NewBalanceService creates the service with the given logger.
func NewBalanceService(log zerolog.Logger) *BalanceService {
	return &BalanceService{log: log}
}

// CalculateBalance returns the signed balance of account over the given
// transactions, optionally as of a cut-off date (inclusive). Unposted
// transactions are always excluded; callers needing draft-inclusive views
// must pre-filter before calling. For a debit-normal account each entry
// contributes +debit-credit, inverted for credit-normal accounts.
//
// Stored entries that violate the one-positive-side invariant are logged
// and excluded rather than propagated into the sum; such corruption is an
// operational alarm, not routine behavior.
func (s *BalanceService) CalculateBalance(account *domain.Account, transactions []*domain.Transaction, asOf *time.Time) (domain.Money, error) {
	total := decimal.Zero
	for _, tx := range transactions {
		if !tx.IsPosted {
			continue
		}
		if asOf != nil && tx.Date.After(*asOf) {
			continue
		}
		for _, entry := range tx.Entries {
			if entry.AccountID != account.ID {
				continue
			}
			if err := entry.Validate(); err != nil {
				s.log.Error().
					Str("transaction_id", tx.ID.String()).
					Str("entry_id", entry.ID.String()).
					Err(err).
					Msg("excluding corrupted journal entry from balance calculation")
				continue
			}
			if entry.Debit.Currency() != account.DefaultCurrency {
				return domain.Money{}, &domain.CurrencyMismatchError{
					Left:  account.DefaultCurrency,
					Right: entry.Debit.Currency(),
				}
			}
			delta := entry.Debit.Amount().Sub(entry.Credit.Amount())
			if !account.IsDebitNormal() {
				delta = delta.Neg()
			}
			total = total.Add(delta)
		}
	}
	return domain.NewMoney(total, account.DefaultCurrency)
}

// CalculatePeriodBalance returns the balance movement within [from, to],
// both inclusive.
func (s *BalanceService) CalculatePeriodBalance(account *domain.Account, transactions []*domain.Transaction, from, to time.Time) (domain.Money, error) {
	inPeriod := make([]*domain.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Date.Before(from) || tx.Date.After(to) {
			continue
		}
		inPeriod = append(inPeriod, tx)
	}
	return s.CalculateBalance(account, inPeriod, nil)
}

// TrialBalance maps every account to its signed balance over the given
// transactions.
func (s *BalanceService) TrialBalance(accounts []*domain.Account, transactions []*domain.Transaction, asOf *time.Time) (map[uuid.UUID]domain.Money, error) {
	balances := make(map[uuid.UUID]domain.Money, len(accounts))
	for _, account := range accounts {
		balance, err := s.CalculateBalance(account, transactions, asOf)
		if err != nil {
			return nil, fmt.Errorf("TrialBalance: account %q: %w", account.Name, err)
		}
		balances[account.ID] = balance
	}
	return balances, nil
}

// VerifyTrialBalance reports whether the balances sum to zero, the core
// internal-consistency check of the ledger. CalculateBalance reports each
// balance relative to the account's normal side, so credit-normal balances
// are flipped back to raw debit-minus-credit before summing. It fails
// loudly when the balances mix currencies, since a cross-currency sum is
// meaningless. A non-zero sum indicates unbalanced postings somewhere and
// must be treated as a data-integrity alarm.
func (s *BalanceService) VerifyTrialBalance(accounts []*domain.Account, balances map[uuid.UUID]domain.Money) (bool, error) {
	currency := ""
	sum := decimal.Zero
	for _, account := range accounts {
		balance, ok := balances[account.ID]
		if !ok {
			continue
		}
		if currency == "" {
			currency = balance.Currency()
		} else if balance.Currency() != currency {
			return false, &domain.CurrencyMismatchError{Left: currency, Right: balance.Currency()}
		}
		raw := balance.Amount()
		if !account.IsDebitNormal() {
			raw = raw.Neg()
		}
		sum = sum.Add(raw)
	}
	if !sum.IsZero() {
		s.log.Error().
			Str("sum", sum.String()).
			Str("currency", currency).
			Msg("trial balance does not sum to zero")
		return false, nil
	}
	return true, nil
}
