package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an immutable, currency-tagged decimal amount. Arithmetic is only
// defined between two Money values of the same currency; mixing currencies
// returns a CurrencyMismatchError.
//
// Sign convention: a positive amount sits on the debit side, a negative
// amount on the credit side.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney builds a Money value. The currency must be a three-letter
// ISO-4217 code.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: currency}, nil
}

// MoneyFromString parses the amount from its decimal string form.
func MoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("MoneyFromString: parsing %q: %w", amount, ErrValidation)
	}
	return NewMoney(d, currency)
}

// MustMoney is a convenience constructor for fixtures and wiring code; it
// panics on an invalid currency.
func MustMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns the zero amount in the given currency.
func ZeroMoney(currency string) (Money, error) {
	return NewMoney(decimal.Zero, currency)
}

func validateCurrency(currency string) error {
	if len(currency) != 3 {
		return fmt.Errorf("invalid currency code %q: %w", currency, ErrValidation)
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("invalid currency code %q: %w", currency, ErrValidation)
		}
	}
	return nil
}

// Amount returns the decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the ISO-4217 code.
func (m Money) Currency() string { return m.currency }

// Add returns m + other, or an error if the currencies differ.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub returns m - other, or an error if the currencies differ.
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, &CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Abs returns the absolute amount.
func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs(), currency: m.currency}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// IsDebit reports whether the amount sits on the debit side (positive).
func (m Money) IsDebit() bool { return m.amount.IsPositive() }

// IsCredit reports whether the amount sits on the credit side (negative).
func (m Money) IsCredit() bool { return m.amount.IsNegative() }

// Equal reports whether amount and currency are both equal.
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Cmp compares two same-currency amounts: -1 if m < other, 0 if equal,
// +1 if m > other.
func (m Money) Cmp(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, &CurrencyMismatchError{Left: m.currency, Right: other.currency}
	}
	return m.amount.Cmp(other.amount), nil
}

func (m Money) String() string {
	return m.amount.String() + " " + m.currency
}
