package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is a bank-reported account as delivered by the bank adapter.
// The adapter itself (FinTS, statement parsing) lives outside this core.
type BankAccount struct {
	IBAN          string
	AccountNumber string
	BLZ           string
	Holder        string
	Type          string
	Currency      string
	BIC           string
	BankName      string
	Balance       *decimal.Decimal
	BalanceDate   *time.Time
}

// BankTransaction is a raw transaction as delivered by the bank adapter.
// Amount is signed: negative for money out, positive for money in.
type BankTransaction struct {
	BookingDate   time.Time
	ValueDate     time.Time
	Amount        decimal.Decimal
	Currency      string
	Purpose       string
	ApplicantName string
	ApplicantIBAN string
	BankReference string
}

// ID returns the stable identity of the raw transaction used for dedup.
// The bank reference is used when present; otherwise a fingerprint over the
// booking fields stands in, so re-fetching the same statement lines always
// yields the same id.
func (t BankTransaction) ID() string {
	if t.BankReference != "" {
		return t.BankReference
	}
	return t.Fingerprint()
}

// Fingerprint hashes the booking fields into a stable hex identity.
func (t BankTransaction) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(t.BookingDate.UTC().Format("2006-01-02")))
	h.Write([]byte{'|'})
	h.Write([]byte(t.Amount.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(t.Currency))
	h.Write([]byte{'|'})
	h.Write([]byte(t.Purpose))
	h.Write([]byte{'|'})
	h.Write([]byte(t.ApplicantIBAN))
	return hex.EncodeToString(h.Sum(nil))
}
