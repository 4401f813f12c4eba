package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionSource records where a transaction originated.
type TransactionSource string

const (
	SourceBankImport     TransactionSource = "bank_import"
	SourceManual         TransactionSource = "manual"
	SourceOpeningBalance TransactionSource = "opening_balance"
	SourceReversal       TransactionSource = "reversal"
)

// Reserved metadata keys. All keys under the "kontobuch." prefix are owned
// by the system; SetMetadata rejects them so callers cannot corrupt the
// bookkeeping markers.
const (
	metaReservedPrefix = "kontobuch."

	MetaKeyOpeningBalance   = "kontobuch.opening_balance"
	MetaKeySourceIBAN       = "kontobuch.source_iban"
	MetaKeyResolutionSource = "kontobuch.resolution_source"
	MetaKeyResolutionDetail = "kontobuch.resolution_detail"
	MetaKeyTransferMatched  = "kontobuch.transfer_matched"
	MetaKeyTransferCounter  = "kontobuch.transfer_counter_ref"
)

// JournalEntry is one leg of a transaction. Exactly one of Debit/Credit is
// strictly positive; the other is exactly zero, in the same currency.
type JournalEntry struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Debit     Money
	Credit    Money
}

// NewDebitEntry builds an entry debiting the account by amount.
func NewDebitEntry(accountID uuid.UUID, amount Money) (JournalEntry, error) {
	if !amount.IsPositive() {
		return JournalEntry{}, fmt.Errorf("NewDebitEntry: amount must be positive, got %s: %w", amount, ErrValidation)
	}
	zero, _ := ZeroMoney(amount.Currency())
	return JournalEntry{ID: uuid.New(), AccountID: accountID, Debit: amount, Credit: zero}, nil
}

// NewCreditEntry builds an entry crediting the account by amount.
func NewCreditEntry(accountID uuid.UUID, amount Money) (JournalEntry, error) {
	if !amount.IsPositive() {
		return JournalEntry{}, fmt.Errorf("NewCreditEntry: amount must be positive, got %s: %w", amount, ErrValidation)
	}
	zero, _ := ZeroMoney(amount.Currency())
	return JournalEntry{ID: uuid.New(), AccountID: accountID, Debit: zero, Credit: amount}, nil
}

// Validate checks the exactly-one-positive-side invariant. Stored entries
// failing this check are corrupted and must be excluded from balance math.
func (e JournalEntry) Validate() error {
	if e.Debit.Currency() != e.Credit.Currency() {
		return &CurrencyMismatchError{Left: e.Debit.Currency(), Right: e.Credit.Currency()}
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return fmt.Errorf("journal entry %s: negative side amount: %w", e.ID, ErrValidation)
	}
	if e.Debit.IsPositive() == e.Credit.IsPositive() {
		return fmt.Errorf("journal entry %s: exactly one of debit/credit must be positive: %w", e.ID, ErrValidation)
	}
	return nil
}

// Transaction is the aggregate root of a double-entry posting: an atomic set
// of at least two balanced journal entries.
type Transaction struct {
	ID                 uuid.UUID
	UserID             string
	Description        string
	Date               time.Time
	Counterparty       string
	CounterpartyIBAN   string
	Source             TransactionSource
	SourceIBAN         string
	IsInternalTransfer bool
	IsPosted           bool
	Entries            []JournalEntry
	Metadata           map[string]string
	CreatedAt          time.Time
}

// NewTransaction creates a draft transaction with no entries.
func NewTransaction(userID, description string, date time.Time, source TransactionSource) (*Transaction, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("NewTransaction: empty user id: %w", ErrValidation)
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("NewTransaction: empty description: %w", ErrValidation)
	}
	return &Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Description: description,
		Date:        date,
		Source:      source,
		Metadata:    make(map[string]string),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// ReconstituteTransaction rebuilds a transaction from storage without
// re-running creation validation. Entry-level integrity is checked by the
// repository during row scanning, not here.
func ReconstituteTransaction(
	id uuid.UUID,
	userID, description string,
	date time.Time,
	counterparty, counterpartyIBAN string,
	source TransactionSource,
	sourceIBAN string,
	isInternalTransfer, isPosted bool,
	entries []JournalEntry,
	metadata map[string]string,
	createdAt time.Time,
) *Transaction {
	if metadata == nil {
		metadata = make(map[string]string)
	}
	return &Transaction{
		ID:                 id,
		UserID:             userID,
		Description:        description,
		Date:               date,
		Counterparty:       counterparty,
		CounterpartyIBAN:   counterpartyIBAN,
		Source:             source,
		SourceIBAN:         sourceIBAN,
		IsInternalTransfer: isInternalTransfer,
		IsPosted:           isPosted,
		Entries:            entries,
		Metadata:           metadata,
		CreatedAt:          createdAt,
	}
}

// AddDebit appends a debit entry. Entries may only change while the
// transaction is a draft.
func (t *Transaction) AddDebit(accountID uuid.UUID, amount Money) error {
	if t.IsPosted {
		return fmt.Errorf("AddDebit: transaction %s is posted: %w", t.ID, ErrValidation)
	}
	entry, err := NewDebitEntry(accountID, amount)
	if err != nil {
		return err
	}
	t.Entries = append(t.Entries, entry)
	return nil
}

// AddCredit appends a credit entry. Entries may only change while the
// transaction is a draft.
func (t *Transaction) AddCredit(accountID uuid.UUID, amount Money) error {
	if t.IsPosted {
		return fmt.Errorf("AddCredit: transaction %s is posted: %w", t.ID, ErrValidation)
	}
	entry, err := NewCreditEntry(accountID, amount)
	if err != nil {
		return err
	}
	t.Entries = append(t.Entries, entry)
	return nil
}

// ClearEntries removes all entries so the set can be rebuilt. Draft only.
func (t *Transaction) ClearEntries() error {
	if t.IsPosted {
		return fmt.Errorf("ClearEntries: transaction %s is posted: %w", t.ID, ErrValidation)
	}
	t.Entries = nil
	return nil
}

// UpdateDescription is allowed in either state.
func (t *Transaction) UpdateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("UpdateDescription: empty description: %w", ErrValidation)
	}
	t.Description = description
	return nil
}

// UpdateCounterparty is allowed in either state.
func (t *Transaction) UpdateCounterparty(name, iban string) {
	t.Counterparty = name
	t.CounterpartyIBAN = iban
}

// TotalDebits sums the debit side of all entries.
func (t *Transaction) TotalDebits() (Money, error) {
	return t.sumSide(func(e JournalEntry) Money { return e.Debit })
}

// TotalCredits sums the credit side of all entries.
func (t *Transaction) TotalCredits() (Money, error) {
	return t.sumSide(func(e JournalEntry) Money { return e.Credit })
}

func (t *Transaction) sumSide(side func(JournalEntry) Money) (Money, error) {
	if len(t.Entries) == 0 {
		return Money{}, fmt.Errorf("transaction %s has no entries: %w", t.ID, ErrValidation)
	}
	total := Money{amount: decimal.Zero, currency: side(t.Entries[0]).Currency()}
	for _, e := range t.Entries {
		var err error
		total, err = total.Add(side(e))
		if err != nil {
			return Money{}, err
		}
	}
	return total, nil
}

// IsBalanced reports whether debits equal credits in the same currency
// across at least two entries.
func (t *Transaction) IsBalanced() bool {
	if len(t.Entries) < 2 {
		return false
	}
	debits, err := t.TotalDebits()
	if err != nil {
		return false
	}
	credits, err := t.TotalCredits()
	if err != nil {
		return false
	}
	return debits.Equal(credits)
}

// Post finalizes the transaction so it counts toward balances. It fails if
// the transaction is already posted, has fewer than two entries, or does not
// balance; in the failure case IsPosted is left untouched.
func (t *Transaction) Post() error {
	if t.IsPosted {
		return fmt.Errorf("Post: transaction %s already posted: %w", t.ID, ErrValidation)
	}
	if len(t.Entries) < 2 {
		return fmt.Errorf("Post: transaction %s needs at least 2 entries, has %d: %w",
			t.ID, len(t.Entries), ErrValidation)
	}
	for _, e := range t.Entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("Post: %w", err)
		}
	}
	debits, err := t.TotalDebits()
	if err != nil {
		return fmt.Errorf("Post: %w", err)
	}
	credits, err := t.TotalCredits()
	if err != nil {
		return fmt.Errorf("Post: %w", err)
	}
	if !debits.Equal(credits) {
		return fmt.Errorf("Post: transaction %s does not balance: debit %s, credit %s: %w",
			t.ID, debits, credits, ErrValidation)
	}
	t.IsPosted = true
	return nil
}

// Unpost reverts a posted transaction to draft so its entries can be edited.
func (t *Transaction) Unpost() error {
	if !t.IsPosted {
		return fmt.Errorf("Unpost: transaction %s is not posted: %w", t.ID, ErrValidation)
	}
	t.IsPosted = false
	return nil
}

// SetMetadata stores a caller-supplied key/value pair. Keys reserved for
// system bookkeeping are rejected.
func (t *Transaction) SetMetadata(key, value string) error {
	if strings.HasPrefix(key, metaReservedPrefix) {
		return fmt.Errorf("SetMetadata: key %q is reserved: %w", key, ErrValidation)
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("SetMetadata: empty key: %w", ErrValidation)
	}
	t.Metadata[key] = value
	return nil
}

// MarkOpeningBalance tags the transaction as the synthetic opening-balance
// entry for the given bank account.
func (t *Transaction) MarkOpeningBalance(sourceIBAN string) {
	t.Metadata[MetaKeyOpeningBalance] = "true"
	t.Metadata[MetaKeySourceIBAN] = sourceIBAN
	t.SourceIBAN = sourceIBAN
}

// IsOpeningBalance reports whether the transaction carries the
// opening-balance marker.
func (t *Transaction) IsOpeningBalance() bool {
	return t.Metadata[MetaKeyOpeningBalance] == "true"
}

// RecordResolution stores how the counter account was picked, for audit.
func (t *Transaction) RecordResolution(source, detail string) {
	t.Metadata[MetaKeyResolutionSource] = source
	if detail != "" {
		t.Metadata[MetaKeyResolutionDetail] = detail
	}
}

// MarkTransferMatched records that the second leg of this internal transfer
// arrived from its own bank feed under the given bank reference.
func (t *Transaction) MarkTransferMatched(counterRef string) {
	t.Metadata[MetaKeyTransferMatched] = "true"
	t.Metadata[MetaKeyTransferCounter] = counterRef
}

// IsTransferMatched reports whether both legs of the transfer have been seen.
func (t *Transaction) IsTransferMatched() bool {
	return t.Metadata[MetaKeyTransferMatched] == "true"
}

// Clone returns an independent copy of the transaction, including entries
// and metadata.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Entries = make([]JournalEntry, len(t.Entries))
	copy(c.Entries, t.Entries)
	c.Metadata = make(map[string]string, len(t.Metadata))
	for k, v := range t.Metadata {
		c.Metadata[k] = v
	}
	return &c
}
