// Package ledger implements the posting math of the bookkeeping core:
// stateless entry builders for each transaction archetype, balance
// calculation over posted transactions, and opening-balance derivation.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// Direction classifies a bank amount as expense or income.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// DirectionFromAmount infers the direction from a signed bank amount.
// Negative amounts are expenses; zero and positive amounts are income.
// Zero mapping to income is deliberate, documented source behavior.
func DirectionFromAmount(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionExpense
	}
	return DirectionIncome
}

// EntrySpec describes one leg to be added to a transaction: which account,
// how much, and on which side.
type EntrySpec struct {
	Account *domain.Account
	Amount  domain.Money
	IsDebit bool
}

// EntryService builds correctly-shaped entry sets for each transaction
// archetype. It is stateless and never touches persistence; callers apply
// the specs to a draft transaction and post it.
type EntryService struct{}

// NewEntryService returns the stateless builder.
func NewEntryService() EntryService { return EntryService{} }

func requireType(op string, account *domain.Account, want ...domain.AccountType) error {
	for _, w := range want {
		if account.AccountType == w {
			return nil
		}
	}
	return &domain.AccountTypeError{Op: op, Account: account.Name, Got: account.AccountType, Want: want}
}

func requirePositive(op string, amount domain.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%s: amount must be positive, got %s: %w", op, amount, domain.ErrValidation)
	}
	return nil
}

// BuildSimpleEntries builds the two legs of a plain expense or income
// booking. An expense debits the category and credits the payment account;
// an income debits the payment account and credits the category.
func (EntryService) BuildSimpleEntries(payment, category *domain.Account, amount domain.Money, direction Direction) ([]EntrySpec, error) {
	const op = "BuildSimpleEntries"
	if err := requirePositive(op, amount); err != nil {
		return nil, err
	}
	if err := requireType(op, payment, domain.AccountTypeAsset, domain.AccountTypeLiability); err != nil {
		return nil, err
	}
	switch direction {
	case DirectionExpense:
		if err := requireType(op, category, domain.AccountTypeExpense); err != nil {
			return nil, err
		}
		return []EntrySpec{
			{Account: category, Amount: amount, IsDebit: true},
			{Account: payment, Amount: amount, IsDebit: false},
		}, nil
	case DirectionIncome:
		if err := requireType(op, category, domain.AccountTypeIncome); err != nil {
			return nil, err
		}
		return []EntrySpec{
			{Account: payment, Amount: amount, IsDebit: true},
			{Account: category, Amount: amount, IsDebit: false},
		}, nil
	default:
		return nil, fmt.Errorf("%s: unknown direction %q: %w", op, direction, domain.ErrValidation)
	}
}

// BuildCategorySwapEntries rebuilds entries when a booked transaction is
// recategorized. With preservePaymentLeg set, only the category-side entry
// is returned: the payment leg already matched against the bank feed must
// not change. Otherwise both legs are rebuilt.
func (s EntryService) BuildCategorySwapEntries(payment, newCategory *domain.Account, amount domain.Money, direction Direction, preservePaymentLeg bool) ([]EntrySpec, error) {
	const op = "BuildCategorySwapEntries"
	specs, err := s.BuildSimpleEntries(payment, newCategory, amount, direction)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !preservePaymentLeg {
		return specs, nil
	}
	out := make([]EntrySpec, 0, 1)
	for _, spec := range specs {
		if spec.Account.ID == newCategory.ID {
			out = append(out, spec)
		}
	}
	return out, nil
}

// BuildTransferEntries builds an internal transfer: debit the destination
// asset, credit the source asset. With preserveSource set (the bank-import
// leg is already fixed), only the destination entry is returned.
func (EntryService) BuildTransferEntries(source, destination *domain.Account, amount domain.Money, preserveSource bool) ([]EntrySpec, error) {
	const op = "BuildTransferEntries"
	if err := requirePositive(op, amount); err != nil {
		return nil, err
	}
	if err := requireType(op, source, domain.AccountTypeAsset); err != nil {
		return nil, err
	}
	if err := requireType(op, destination, domain.AccountTypeAsset); err != nil {
		return nil, err
	}
	if source.ID == destination.ID {
		return nil, fmt.Errorf("%s: source and destination are the same account %q: %w",
			op, source.Name, domain.ErrValidation)
	}
	specs := []EntrySpec{
		{Account: destination, Amount: amount, IsDebit: true},
	}
	if !preserveSource {
		specs = append(specs, EntrySpec{Account: source, Amount: amount, IsDebit: false})
	}
	return specs, nil
}

// BuildLiabilityPaymentEntries books a payment against a liability such as
// a credit card. Paying down the debt debits the liability and credits the
// asset; an incoming amount (a refund against the liability) reverses the
// sides.
func (EntryService) BuildLiabilityPaymentEntries(liability, asset *domain.Account, amount domain.Money, incoming bool) ([]EntrySpec, error) {
	const op = "BuildLiabilityPaymentEntries"
	if err := requirePositive(op, amount); err != nil {
		return nil, err
	}
	if err := requireType(op, liability, domain.AccountTypeLiability); err != nil {
		return nil, err
	}
	if err := requireType(op, asset, domain.AccountTypeAsset); err != nil {
		return nil, err
	}
	if incoming {
		return []EntrySpec{
			{Account: asset, Amount: amount, IsDebit: true},
			{Account: liability, Amount: amount, IsDebit: false},
		}, nil
	}
	return []EntrySpec{
		{Account: liability, Amount: amount, IsDebit: true},
		{Account: asset, Amount: amount, IsDebit: false},
	}, nil
}

// ApplyEntries adds the built specs to a draft transaction.
func ApplyEntries(tx *domain.Transaction, specs []EntrySpec) error {
	for _, spec := range specs {
		var err error
		if spec.IsDebit {
			err = tx.AddDebit(spec.Account.ID, spec.Amount)
		} else {
			err = tx.AddCredit(spec.Account.ID, spec.Amount)
		}
		if err != nil {
			return fmt.Errorf("ApplyEntries: %w", err)
		}
	}
	return nil
}
