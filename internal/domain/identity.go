package domain

import (
	"github.com/google/uuid"
)

// Fixed namespaces for deriving entity ids from business keys. Deterministic
// ids are the dedup mechanism: re-running an import yields the same id and
// therefore lands on the existing row.
var (
	mappingNamespace = uuid.MustParse("6f1c24f0-9e31-4a57-8b3e-1d2c5a907d44")
	importNamespace  = uuid.MustParse("b4c8a1d2-3f6e-4b09-9c7a-85e0d1f2a633")
)

// MappingID derives the AccountMapping id from (iban, accounting account id).
// The same pair always yields the same id.
func MappingID(iban string, accountingAccountID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(mappingNamespace, []byte(iban+"|"+accountingAccountID.String()))
}

// ImportID derives the TransactionImport id from (bank transaction id,
// user id). Re-processing the same bank transaction maps to the same audit
// row.
func ImportID(bankTransactionID, userID string) uuid.UUID {
	return uuid.NewSHA1(importNamespace, []byte(bankTransactionID+"|"+userID))
}
