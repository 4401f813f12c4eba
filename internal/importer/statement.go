package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// Statement is the exchange format between bank adapters and the import
// pipeline: one bank account snapshot plus its raw transactions. Adapters
// (FinTS fetchers, CSV converters) produce it as JSON.
type Statement struct {
	Account      statementAccount       `json:"account"`
	Transactions []statementTransaction `json:"transactions"`
}

type statementAccount struct {
	IBAN          string           `json:"iban"`
	AccountNumber string           `json:"account_number,omitempty"`
	BLZ           string           `json:"blz,omitempty"`
	Holder        string           `json:"holder,omitempty"`
	Type          string           `json:"type,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	BIC           string           `json:"bic,omitempty"`
	BankName      string           `json:"bank_name,omitempty"`
	Balance       *decimal.Decimal `json:"balance,omitempty"`
	BalanceDate   string           `json:"balance_date,omitempty"`
}

type statementTransaction struct {
	BookingDate   string          `json:"booking_date"`
	ValueDate     string          `json:"value_date,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Purpose       string          `json:"purpose,omitempty"`
	ApplicantName string          `json:"applicant_name,omitempty"`
	ApplicantIBAN string          `json:"applicant_iban,omitempty"`
	BankReference string          `json:"bank_reference,omitempty"`
}

const statementDateLayout = "2006-01-02"

// ParseStatement decodes a statement from r and converts it to the domain
// representation.
func ParseStatement(r io.Reader) (domain.BankAccount, []domain.BankTransaction, error) {
	var stmt Statement
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&stmt); err != nil {
		return domain.BankAccount{}, nil, fmt.Errorf("ParseStatement: decoding: %w", err)
	}

	account := domain.BankAccount{
		IBAN:          stmt.Account.IBAN,
		AccountNumber: stmt.Account.AccountNumber,
		BLZ:           stmt.Account.BLZ,
		Holder:        stmt.Account.Holder,
		Type:          stmt.Account.Type,
		Currency:      stmt.Account.Currency,
		BIC:           stmt.Account.BIC,
		BankName:      stmt.Account.BankName,
		Balance:       stmt.Account.Balance,
	}
	if stmt.Account.BalanceDate != "" {
		d, err := time.Parse(statementDateLayout, stmt.Account.BalanceDate)
		if err != nil {
			return domain.BankAccount{}, nil, fmt.Errorf("ParseStatement: balance date: %w", err)
		}
		account.BalanceDate = &d
	}

	txs := make([]domain.BankTransaction, 0, len(stmt.Transactions))
	for i, raw := range stmt.Transactions {
		booking, err := time.Parse(statementDateLayout, raw.BookingDate)
		if err != nil {
			return domain.BankAccount{}, nil, fmt.Errorf("ParseStatement: transaction %d booking date: %w", i, err)
		}
		value := booking
		if raw.ValueDate != "" {
			value, err = time.Parse(statementDateLayout, raw.ValueDate)
			if err != nil {
				return domain.BankAccount{}, nil, fmt.Errorf("ParseStatement: transaction %d value date: %w", i, err)
			}
		}
		txs = append(txs, domain.BankTransaction{
			BookingDate:   booking,
			ValueDate:     value,
			Amount:        raw.Amount,
			Currency:      raw.Currency,
			Purpose:       raw.Purpose,
			ApplicantName: raw.ApplicantName,
			ApplicantIBAN: raw.ApplicantIBAN,
			BankReference: raw.BankReference,
		})
	}
	return account, txs, nil
}

// LoadStatementFile reads and parses a statement JSON file.
func LoadStatementFile(path string) (domain.BankAccount, []domain.BankTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.BankAccount{}, nil, fmt.Errorf("LoadStatementFile: %w", err)
	}
	defer f.Close()
	return ParseStatement(f)
}
