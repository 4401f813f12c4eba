package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/maltewinckler/kontobuch/internal/domain"
	"github.com/maltewinckler/kontobuch/internal/ledger"
)

// DefaultReconciliationTolerance is the absolute difference (in account
// currency) still considered a match between bank-reported and computed
// balances.
var DefaultReconciliationTolerance = decimal.NewFromFloat(0.01)

// ReconciliationRow compares one mapped account's bank-reported balance to
// its computed ledger balance.
type ReconciliationRow struct {
	AccountID     uuid.UUID
	AccountName   string
	IBAN          string
	BankBalance   domain.Money
	LedgerBalance domain.Money
	Difference    domain.Money
	Matched       bool
}

// ReconciliationService builds the comparison rows. It reads only; nothing
// is mutated.
type ReconciliationService struct {
	// Tolerance is the absolute difference still treated as matched.
	Tolerance decimal.Decimal

	uowf    domain.UnitOfWorkFactory
	balance *ledger.BalanceService
	log     zerolog.Logger
}

// NewReconciliationService creates the service with the default tolerance.
func NewReconciliationService(uowf domain.UnitOfWorkFactory, balance *ledger.BalanceService, log zerolog.Logger) *ReconciliationService {
	return &ReconciliationService{
		Tolerance: DefaultReconciliationTolerance,
		uowf:      uowf,
		balance:   balance,
		log:       log,
	}
}

// Compare builds one row per bank account that reported a balance and has
// an active mapping. Accounts without a mapping are logged and skipped.
func (s *ReconciliationService) Compare(ctx context.Context, userID string, banks []domain.BankAccount) ([]ReconciliationRow, error) {
	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("Compare: begin unit of work: %w", err)
	}
	defer uow.Rollback()

	rows := make([]ReconciliationRow, 0, len(banks))
	for _, bank := range banks {
		if bank.Balance == nil {
			continue
		}
		iban, err := domain.NormalizeIBAN(bank.IBAN)
		if err != nil {
			s.log.Warn().Str("iban", bank.IBAN).Msg("skipping bank account with invalid IBAN")
			continue
		}
		mapping, err := uow.Mappings().FindByIBAN(ctx, userID, iban)
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Str("iban", iban).Msg("skipping unmapped bank account")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("Compare: %w", err)
		}
		account, err := uow.Accounts().FindByID(ctx, mapping.AccountingAccountID)
		if err != nil {
			return nil, fmt.Errorf("Compare: account for mapping %s: %w", mapping.ID, err)
		}
		transactions, err := uow.Transactions().ListByAccount(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("Compare: %w", err)
		}
		computed, err := s.balance.CalculateBalance(account, transactions, nil)
		if err != nil {
			return nil, fmt.Errorf("Compare: balance for %q: %w", account.Name, err)
		}
		reported, err := domain.NewMoney(*bank.Balance, account.DefaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("Compare: %w", err)
		}
		difference, err := reported.Sub(computed)
		if err != nil {
			return nil, fmt.Errorf("Compare: %w", err)
		}
		rows = append(rows, ReconciliationRow{
			AccountID:     account.ID,
			AccountName:   account.Name,
			IBAN:          iban,
			BankBalance:   reported,
			LedgerBalance: computed,
			Difference:    difference,
			Matched:       difference.Amount().Abs().LessThanOrEqual(s.Tolerance),
		})
	}
	return rows, nil
}
