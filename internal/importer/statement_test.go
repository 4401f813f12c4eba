package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStatement = `{
  "account": {
    "iban": "DE02100100100006820101",
    "bank_name": "Testbank",
    "type": "Girokonto",
    "currency": "EUR",
    "balance": "954.01",
    "balance_date": "2025-03-15"
  },
  "transactions": [
    {
      "booking_date": "2025-03-10",
      "value_date": "2025-03-11",
      "amount": "-45.99",
      "currency": "EUR",
      "purpose": "REWE SAGT DANKE",
      "applicant_name": "REWE Markt GmbH",
      "bank_reference": "REF-1"
    },
    {
      "booking_date": "2025-03-12",
      "amount": "3200.00",
      "currency": "EUR",
      "applicant_name": "ACME GmbH"
    }
  ]
}`

func TestParseStatement(t *testing.T) {
	account, txs, err := ParseStatement(strings.NewReader(sampleStatement))
	require.NoError(t, err)

	assert.Equal(t, "DE02100100100006820101", account.IBAN)
	assert.Equal(t, "Testbank", account.BankName)
	require.NotNil(t, account.Balance)
	assert.Equal(t, "954.01", account.Balance.String())
	require.NotNil(t, account.BalanceDate)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), *account.BalanceDate)

	require.Len(t, txs, 2)
	assert.Equal(t, "-45.99", txs[0].Amount.String())
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), txs[0].BookingDate)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), txs[0].ValueDate)
	assert.Equal(t, "REF-1", txs[0].BankReference)

	// Missing value date falls back to the booking date.
	assert.Equal(t, txs[1].BookingDate, txs[1].ValueDate)
	assert.Empty(t, txs[1].BankReference)
}

func TestParseStatementBadInput(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{"not json", `{"account": `},
		{"unknown field", `{"account": {"iban": "DE02100100100006820101", "surprise": 1}, "transactions": []}`},
		{"bad booking date", `{"account": {"iban": "DE02100100100006820101"}, "transactions": [{"booking_date": "10.03.2025", "amount": "1", "currency": "EUR"}]}`},
		{"bad value date", `{"account": {"iban": "DE02100100100006820101"}, "transactions": [{"booking_date": "2025-03-10", "value_date": "soon", "amount": "1", "currency": "EUR"}]}`},
		{"bad balance date", `{"account": {"iban": "DE02100100100006820101", "balance_date": "March 15"}, "transactions": []}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseStatement(strings.NewReader(tc.json))
			assert.Error(t, err)
		})
	}
}

func TestLoadStatementFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleStatement), 0o644))

	account, txs, err := LoadStatementFile(path)
	require.NoError(t, err)
	assert.Equal(t, "DE02100100100006820101", account.IBAN)
	assert.Len(t, txs, 2)

	_, _, err = LoadStatementFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
