package ledger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// OpeningBalanceService back-solves the balance an account must have had
// before the earliest imported transaction, so that imported history
// reconciles to the bank-reported current balance.
type OpeningBalanceService struct {
	log zerolog.Logger
}

// NewOpeningBalanceService creates the service with the given logger.
func NewOpeningBalanceService(log zerolog.Logger) *OpeningBalanceService {
	return &OpeningBalanceService{log: log}
}

// CalculateOpeningBalance returns currentBalance minus the sum of all
// transaction amounts: the balance that must have existed before the first
// imported transaction. With no transactions it returns currentBalance
// unchanged.
func (s *OpeningBalanceService) CalculateOpeningBalance(currentBalance decimal.Decimal, transactions []domain.BankTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range transactions {
		sum = sum.Add(tx.Amount)
	}
	return currentBalance.Sub(sum)
}

// EarliestBookingDate returns the minimum booking date as a start-of-day
// UTC timestamp. The second return value is false for an empty set.
func (s *OpeningBalanceService) EarliestBookingDate(transactions []domain.BankTransaction) (time.Time, bool) {
	if len(transactions) == 0 {
		return time.Time{}, false
	}
	earliest := transactions[0].BookingDate
	for _, tx := range transactions[1:] {
		if tx.BookingDate.Before(earliest) {
			earliest = tx.BookingDate
		}
	}
	earliest = earliest.UTC()
	return time.Date(earliest.Year(), earliest.Month(), earliest.Day(), 0, 0, 0, 0, time.UTC), true
}

// CreateOpeningBalanceTransaction builds and posts the synthetic entry that
// seeds an account's history. The asset account must be ASSET and the
// opening-balance account EQUITY. A positive amount debits the asset and
// credits equity; a negative amount (overdraft at the opening point)
// reverses the sides. A zero amount needs no entry and returns nil.
func (s *OpeningBalanceService) CreateOpeningBalanceTransaction(
	assetAccount, openingBalanceAccount *domain.Account,
	amount domain.Money,
	date time.Time,
	sourceIBAN string,
) (*domain.Transaction, error) {
	const op = "CreateOpeningBalanceTransaction"
	if err := requireType(op, assetAccount, domain.AccountTypeAsset); err != nil {
		return nil, err
	}
	if err := requireType(op, openingBalanceAccount, domain.AccountTypeEquity); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		s.log.Debug().
			Str("account", assetAccount.Name).
			Msg("zero opening balance, no transaction needed")
		return nil, nil
	}

	tx, err := domain.NewTransaction(assetAccount.UserID, "Opening balance "+assetAccount.Name, date, domain.SourceOpeningBalance)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	magnitude := amount.Abs()
	if amount.IsPositive() {
		if err := tx.AddDebit(assetAccount.ID, magnitude); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := tx.AddCredit(openingBalanceAccount.ID, magnitude); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	} else {
		if err := tx.AddDebit(openingBalanceAccount.ID, magnitude); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := tx.AddCredit(assetAccount.ID, magnitude); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	tx.MarkOpeningBalance(sourceIBAN)
	if err := tx.Post(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tx, nil
}
