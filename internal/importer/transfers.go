package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// DefaultTransferMatchWindowDays bounds how far apart the two bank feeds'
// booking dates of one internal transfer may lie and still be paired. The
// window is a tunable heuristic, not a contract.
const DefaultTransferMatchWindowDays = 3

// TransferService detects that an imported bank transaction moves money
// between two of the user's own mapped accounts and pairs the two feed
// copies of one transfer into a single balanced transaction.
type TransferService struct {
	// MatchWindowDays is the booking-date proximity window for pairing.
	MatchWindowDays int

	log zerolog.Logger
}

// NewTransferService creates the service with the default match window.
func NewTransferService(log zerolog.Logger) *TransferService {
	return &TransferService{MatchWindowDays: DefaultTransferMatchWindowDays, log: log}
}

// DetectCounterMapping returns the user's own active mapping matching the
// transaction's counterparty IBAN, or nil when the transaction is not an
// internal transfer.
func (s *TransferService) DetectCounterMapping(ctx context.Context, uow domain.UnitOfWork, userID string, tx domain.BankTransaction) (*domain.AccountMapping, error) {
	if tx.ApplicantIBAN == "" {
		return nil, nil
	}
	iban, err := domain.NormalizeIBAN(tx.ApplicantIBAN)
	if err != nil {
		// A malformed counterparty IBAN is simply not one of ours.
		return nil, nil
	}
	mapping, err := uow.Mappings().FindByIBAN(ctx, userID, iban)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("DetectCounterMapping: %w", err)
	}
	if !mapping.IsActive {
		return nil, nil
	}
	return mapping, nil
}

// FindMatchingLeg locates a posted, not-yet-paired internal transfer that
// is the other feed's copy of tx: the IBAN pair cross-matches (its source
// is our counterparty and vice versa), the amounts agree to the cent in the
// same currency, money flows the same way (a candidate that debits the
// importing account can only pair with an incoming amount, and vice versa),
// and the booking dates lie within the match window. It returns nil when no
// counterpart has arrived yet.
func (s *TransferService) FindMatchingLeg(ctx context.Context, uow domain.UnitOfWork, userID string, tx domain.BankTransaction, sourceAccountID uuid.UUID, sourceIBAN, counterIBAN string) (*domain.Transaction, error) {
	transfers, err := uow.Transactions().ListInternalTransfers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("FindMatchingLeg: %w", err)
	}
	magnitude := tx.Amount.Abs()
	for _, candidate := range transfers {
		if !candidate.IsPosted || candidate.IsTransferMatched() {
			continue
		}
		if candidate.SourceIBAN != counterIBAN || candidate.CounterpartyIBAN != sourceIBAN {
			continue
		}
		debits, err := candidate.TotalDebits()
		if err != nil {
			continue
		}
		if debits.Currency() != tx.Currency || !debits.Amount().Equal(magnitude) {
			continue
		}
		if !sameFlowDirection(candidate, sourceAccountID, tx) {
			continue
		}
		if !withinDays(candidate.Date, tx.BookingDate, s.MatchWindowDays) {
			continue
		}
		s.log.Debug().
			Str("transaction_id", candidate.ID.String()).
			Str("bank_reference", tx.ID()).
			Msg("paired second leg of internal transfer")
		return candidate, nil
	}
	return nil, nil
}

// sameFlowDirection reports whether candidate moves money the same way the
// incoming feed transaction does. The candidate's entry on the importing
// account tells which way the earlier feed saw the money go: a debit means
// money arrived there, so only a positive incoming amount is its other
// copy. Two distinct opposite-direction transfers of equal magnitude must
// never pair.
func sameFlowDirection(candidate *domain.Transaction, sourceAccountID uuid.UUID, tx domain.BankTransaction) bool {
	for _, entry := range candidate.Entries {
		if entry.AccountID != sourceAccountID {
			continue
		}
		if entry.Debit.IsPositive() {
			return tx.Amount.IsPositive()
		}
		return tx.Amount.IsNegative()
	}
	return false
}

func withinDays(a, b time.Time, days int) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(days)*24*time.Hour
}
