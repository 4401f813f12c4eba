package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maltewinckler/kontobuch/internal/categorize"
	"github.com/maltewinckler/kontobuch/internal/domain"
	"github.com/maltewinckler/kontobuch/internal/ledger"
)

// Default names for the system accounts the pipeline creates on demand.
const (
	DefaultFallbackExpenseName = "Uncategorized Expenses"
	DefaultFallbackIncomeName  = "Uncategorized Income"
	DefaultOpeningBalanceName  = "Opening Balances"

	fallbackExpenseNumber = "4999"
	fallbackIncomeNumber  = "8999"
	openingBalanceNumber  = "9000"
)

// ImportOutcome is the per-transaction result of a batch run.
type ImportOutcome struct {
	BankTransactionID       string
	Status                  domain.ImportStatus
	AccountingTransactionID *uuid.UUID
	Error                   string
}

// ImportBatchResult summarizes one batch: per-transaction outcomes plus
// counts per status.
type ImportBatchResult struct {
	Outcomes   []ImportOutcome
	Imported   int
	Duplicates int
	Failed     int
	Skipped    int
}

func (r *ImportBatchResult) add(outcome ImportOutcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	switch outcome.Status {
	case domain.ImportStatusSuccess:
		r.Imported++
	case domain.ImportStatusDuplicate:
		r.Duplicates++
	case domain.ImportStatusFailed:
		r.Failed++
	case domain.ImportStatusSkipped:
		r.Skipped++
	}
}

// ImportService runs the full pipeline per raw bank transaction: dedup via
// the deterministic audit row, transfer reconciliation, counter-account
// resolution, entry building, posting and outcome recording. The unit of
// atomicity is one raw transaction, never the batch: one failing
// transaction must not roll back its siblings.
type ImportService struct {
	uowf      domain.UnitOfWorkFactory
	entries   ledger.EntryService
	opening   *ledger.OpeningBalanceService
	resolver  *categorize.Resolver
	transfers *TransferService
	accounts  *AccountImportService
	log       zerolog.Logger
}

// NewImportService wires the pipeline from its collaborators.
func NewImportService(
	uowf domain.UnitOfWorkFactory,
	resolver *categorize.Resolver,
	transfers *TransferService,
	accounts *AccountImportService,
	log zerolog.Logger,
) *ImportService {
	return &ImportService{
		uowf:      uowf,
		entries:   ledger.NewEntryService(),
		opening:   ledger.NewOpeningBalanceService(log),
		resolver:  resolver,
		transfers: transfers,
		accounts:  accounts,
		log:       log,
	}
}

// SyncAccount is the high-level entry point for one bank account: it
// ensures the account/mapping exist, seeds the opening balance on the first
// sync when the bank reported a current balance, then imports the raw
// transactions.
func (s *ImportService) SyncAccount(ctx context.Context, userID string, bank domain.BankAccount, txs []domain.BankTransaction) (*ImportBatchResult, error) {
	account, err := s.accounts.ImportBankAccount(ctx, userID, bank, "")
	if err != nil {
		return nil, fmt.Errorf("SyncAccount: %w", err)
	}
	if err := s.seedOpeningBalance(ctx, userID, account, bank, txs); err != nil {
		return nil, fmt.Errorf("SyncAccount: %w", err)
	}
	return s.ImportTransactions(ctx, userID, account.IBAN, txs)
}

// seedOpeningBalance posts the synthetic opening entry once per account:
// only when the account has no transaction history yet and the bank
// reported a balance to reconcile against.
func (s *ImportService) seedOpeningBalance(ctx context.Context, userID string, account *domain.Account, bank domain.BankAccount, txs []domain.BankTransaction) error {
	if bank.Balance == nil {
		return nil
	}
	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		return fmt.Errorf("seedOpeningBalance: begin unit of work: %w", err)
	}
	defer uow.Rollback()

	history, err := uow.Transactions().ListByAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("seedOpeningBalance: %w", err)
	}
	if len(history) > 0 {
		return nil
	}

	openingAmount := s.opening.CalculateOpeningBalance(*bank.Balance, txs)
	date, ok := s.opening.EarliestBookingDate(txs)
	if !ok {
		if bank.BalanceDate != nil {
			date = *bank.BalanceDate
		} else {
			date = account.CreatedAt
		}
	}
	amount, err := domain.NewMoney(openingAmount, account.DefaultCurrency)
	if err != nil {
		return fmt.Errorf("seedOpeningBalance: %w", err)
	}

	equity, err := s.ensureSystemAccount(ctx, uow, userID, DefaultOpeningBalanceName, domain.AccountTypeEquity, openingBalanceNumber, account.DefaultCurrency)
	if err != nil {
		return fmt.Errorf("seedOpeningBalance: %w", err)
	}
	tx, err := s.opening.CreateOpeningBalanceTransaction(account, equity, amount, date, account.IBAN)
	if err != nil {
		return fmt.Errorf("seedOpeningBalance: %w", err)
	}
	if tx == nil {
		return uow.Commit()
	}
	if err := uow.Transactions().Save(ctx, tx); err != nil {
		return fmt.Errorf("seedOpeningBalance: saving transaction: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("seedOpeningBalance: commit: %w", err)
	}
	s.log.Info().
		Str("account", account.Name).
		Str("amount", amount.String()).
		Msg("opening balance posted")
	return nil
}

// ImportTransactions processes each raw transaction in the order received,
// each in its own unit of work.
func (s *ImportService) ImportTransactions(ctx context.Context, userID, sourceIBAN string, txs []domain.BankTransaction) (*ImportBatchResult, error) {
	normalized, err := domain.NormalizeIBAN(sourceIBAN)
	if err != nil {
		return nil, fmt.Errorf("ImportTransactions: %w", err)
	}
	result := &ImportBatchResult{}
	for _, tx := range txs {
		result.add(s.importOne(ctx, userID, normalized, tx))
	}
	s.log.Info().
		Int("imported", result.Imported).
		Int("duplicates", result.Duplicates).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("import batch finished")
	return result, nil
}

func (s *ImportService) importOne(ctx context.Context, userID, sourceIBAN string, tx domain.BankTransaction) ImportOutcome {
	bankTxID := tx.ID()

	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		return ImportOutcome{BankTransactionID: bankTxID, Status: domain.ImportStatusFailed, Error: err.Error()}
	}
	defer uow.Rollback()

	imp, err := s.openAuditRecord(ctx, uow, bankTxID, userID)
	if err != nil {
		return ImportOutcome{BankTransactionID: bankTxID, Status: domain.ImportStatusFailed, Error: err.Error()}
	}
	if imp == nil {
		// Terminal audit row already present: the transaction was imported
		// before. Leave the stored row alone and report a duplicate.
		return ImportOutcome{BankTransactionID: bankTxID, Status: domain.ImportStatusDuplicate}
	}

	outcome, procErr := s.processTransaction(ctx, uow, imp, userID, sourceIBAN, tx)
	if procErr != nil {
		uow.Rollback()
		s.recordFailure(ctx, bankTxID, userID, procErr)
		return ImportOutcome{BankTransactionID: bankTxID, Status: domain.ImportStatusFailed, Error: procErr.Error()}
	}
	if err := uow.Commit(); err != nil {
		s.recordFailure(ctx, bankTxID, userID, err)
		return ImportOutcome{BankTransactionID: bankTxID, Status: domain.ImportStatusFailed, Error: err.Error()}
	}
	return outcome
}

// openAuditRecord finds or creates the pending audit row for this attempt.
// A nil row with nil error signals a terminal (already imported) state.
func (s *ImportService) openAuditRecord(ctx context.Context, uow domain.UnitOfWork, bankTxID, userID string) (*domain.TransactionImport, error) {
	imp, err := uow.Imports().FindByID(ctx, domain.ImportID(bankTxID, userID))
	if err == nil {
		if imp.Status.IsTerminal() {
			return nil, nil
		}
		if imp.Status != domain.ImportStatusPending {
			if err := imp.Retry(); err != nil {
				return nil, fmt.Errorf("openAuditRecord: %w", err)
			}
		}
		if err := uow.Imports().Save(ctx, imp); err != nil {
			return nil, fmt.Errorf("openAuditRecord: %w", err)
		}
		return imp, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("openAuditRecord: %w", err)
	}
	imp, err = domain.NewTransactionImport(bankTxID, userID)
	if err != nil {
		return nil, fmt.Errorf("openAuditRecord: %w", err)
	}
	if err := uow.Imports().Save(ctx, imp); err != nil {
		return nil, fmt.Errorf("openAuditRecord: %w", err)
	}
	return imp, nil
}

// processTransaction runs the staged steps for one pending import within
// the caller's unit of work.
func (s *ImportService) processTransaction(ctx context.Context, uow domain.UnitOfWork, imp *domain.TransactionImport, userID, sourceIBAN string, tx domain.BankTransaction) (ImportOutcome, error) {
	skip := func(reason string) (ImportOutcome, error) {
		if err := imp.MarkSkipped(reason); err != nil {
			return ImportOutcome{}, err
		}
		if err := uow.Imports().Save(ctx, imp); err != nil {
			return ImportOutcome{}, err
		}
		return ImportOutcome{BankTransactionID: imp.BankTransactionID, Status: domain.ImportStatusSkipped, Error: reason}, nil
	}

	mapping, err := uow.Mappings().FindByIBAN(ctx, userID, sourceIBAN)
	if errors.Is(err, domain.ErrNotFound) {
		return skip("no account mapping for " + sourceIBAN)
	}
	if err != nil {
		return ImportOutcome{}, fmt.Errorf("processTransaction: %w", err)
	}
	payment, err := uow.Accounts().FindByID(ctx, mapping.AccountingAccountID)
	if err != nil {
		return ImportOutcome{}, fmt.Errorf("processTransaction: payment account: %w", err)
	}
	if tx.Amount.IsZero() {
		return skip("zero amount")
	}

	counterMapping, err := s.transfers.DetectCounterMapping(ctx, uow, userID, tx)
	if err != nil {
		return ImportOutcome{}, fmt.Errorf("processTransaction: %w", err)
	}

	var posted *domain.Transaction
	if counterMapping != nil {
		posted, err = s.bookTransfer(ctx, uow, userID, tx, mapping, counterMapping, payment)
	} else {
		posted, err = s.bookCategorized(ctx, uow, userID, tx, mapping, payment)
	}
	if err != nil {
		return ImportOutcome{}, err
	}

	if err := imp.MarkSuccess(posted.ID); err != nil {
		return ImportOutcome{}, fmt.Errorf("processTransaction: %w", err)
	}
	if err := uow.Imports().Save(ctx, imp); err != nil {
		return ImportOutcome{}, fmt.Errorf("processTransaction: %w", err)
	}
	id := posted.ID
	return ImportOutcome{
		BankTransactionID:       imp.BankTransactionID,
		Status:                  domain.ImportStatusSuccess,
		AccountingTransactionID: &id,
	}, nil
}

// bookTransfer handles a transaction whose counterparty IBAN is one of the
// user's own accounts. If the other feed's copy of the transfer is already
// posted, the two legs are paired onto that single transaction; otherwise a
// full balanced transfer is posted, awaiting its counterpart.
func (s *ImportService) bookTransfer(
	ctx context.Context,
	uow domain.UnitOfWork,
	userID string,
	tx domain.BankTransaction,
	mapping, counterMapping *domain.AccountMapping,
	payment *domain.Account,
) (*domain.Transaction, error) {
	existing, err := s.transfers.FindMatchingLeg(ctx, uow, userID, tx, payment.ID, mapping.IBAN, counterMapping.IBAN)
	if err != nil {
		return nil, fmt.Errorf("bookTransfer: %w", err)
	}
	if existing != nil {
		existing.MarkTransferMatched(tx.ID())
		if err := uow.Transactions().Save(ctx, existing); err != nil {
			return nil, fmt.Errorf("bookTransfer: saving matched leg: %w", err)
		}
		return existing, nil
	}

	counterAccount, err := uow.Accounts().FindByID(ctx, counterMapping.AccountingAccountID)
	if err != nil {
		return nil, fmt.Errorf("bookTransfer: counter account: %w", err)
	}
	amount, err := domain.NewMoney(tx.Amount.Abs(), tx.Currency)
	if err != nil {
		return nil, fmt.Errorf("bookTransfer: %w", err)
	}

	// Money out of the imported account flows to the counter account,
	// money in flows from it.
	source, destination := payment, counterAccount
	if !tx.Amount.IsNegative() {
		source, destination = counterAccount, payment
	}
	specs, err := s.entries.BuildTransferEntries(source, destination, amount, false)
	if err != nil {
		return nil, fmt.Errorf("bookTransfer: %w", err)
	}

	description := tx.Purpose
	if description == "" {
		description = "Internal transfer"
	}
	posted, err := domain.NewTransaction(userID, description, tx.BookingDate, domain.SourceBankImport)
	if err != nil {
		return nil, fmt.Errorf("bookTransfer: %w", err)
	}
	posted.IsInternalTransfer = true
	posted.SourceIBAN = mapping.IBAN
	posted.UpdateCounterparty(tx.ApplicantName, counterMapping.IBAN)
	if err := ledger.ApplyEntries(posted, specs); err != nil {
		return nil, fmt.Errorf("bookTransfer: %w", err)
	}
	if err := posted.Post(); err != nil {
		return nil, fmt.Errorf("bookTransfer: %w", err)
	}
	if err := uow.Transactions().Save(ctx, posted); err != nil {
		return nil, fmt.Errorf("bookTransfer: saving transaction: %w", err)
	}
	return posted, nil
}

// bookCategorized handles a plain expense or income: resolve the counter
// account (rules, then AI), fall back to the uncategorized account when
// unresolved, build the simple entry pair and post.
func (s *ImportService) bookCategorized(
	ctx context.Context,
	uow domain.UnitOfWork,
	userID string,
	tx domain.BankTransaction,
	mapping *domain.AccountMapping,
	payment *domain.Account,
) (*domain.Transaction, error) {
	resolution, err := s.resolver.ResolveDetailed(ctx, uow, userID, tx)
	if err != nil {
		return nil, fmt.Errorf("bookCategorized: %w", err)
	}

	direction := ledger.DirectionFromAmount(tx.Amount)
	category := resolution.Account
	if category == nil {
		category, err = s.fallbackAccount(ctx, uow, userID, direction, tx.Currency)
		if err != nil {
			return nil, fmt.Errorf("bookCategorized: %w", err)
		}
	}

	amount, err := domain.NewMoney(tx.Amount.Abs(), tx.Currency)
	if err != nil {
		return nil, fmt.Errorf("bookCategorized: %w", err)
	}
	specs, err := s.entries.BuildSimpleEntries(payment, category, amount, direction)
	if err != nil {
		return nil, fmt.Errorf("bookCategorized: %w", err)
	}

	description := tx.Purpose
	if description == "" {
		description = tx.ApplicantName
	}
	if description == "" {
		description = "Bank transaction " + tx.BookingDate.Format("2006-01-02")
	}
	posted, err := domain.NewTransaction(userID, description, tx.BookingDate, domain.SourceBankImport)
	if err != nil {
		return nil, fmt.Errorf("bookCategorized: %w", err)
	}
	posted.SourceIBAN = mapping.IBAN
	posted.UpdateCounterparty(tx.ApplicantName, tx.ApplicantIBAN)
	posted.RecordResolution(string(resolution.Source), resolution.Reasoning)
	if err := ledger.ApplyEntries(posted, specs); err != nil {
		return nil, fmt.Errorf("bookCategorized: %w", err)
	}
	if err := posted.Post(); err != nil {
		return nil, fmt.Errorf("bookCategorized: %w", err)
	}
	if err := uow.Transactions().Save(ctx, posted); err != nil {
		return nil, fmt.Errorf("bookCategorized: saving transaction: %w", err)
	}
	return posted, nil
}

// fallbackAccount returns the designated uncategorized account for the
// direction, creating it on first use.
func (s *ImportService) fallbackAccount(ctx context.Context, uow domain.UnitOfWork, userID string, direction ledger.Direction, currency string) (*domain.Account, error) {
	if direction == ledger.DirectionExpense {
		return s.ensureSystemAccount(ctx, uow, userID, DefaultFallbackExpenseName, domain.AccountTypeExpense, fallbackExpenseNumber, currency)
	}
	return s.ensureSystemAccount(ctx, uow, userID, DefaultFallbackIncomeName, domain.AccountTypeIncome, fallbackIncomeNumber, currency)
}

func (s *ImportService) ensureSystemAccount(ctx context.Context, uow domain.UnitOfWork, userID, name string, accountType domain.AccountType, number, currency string) (*domain.Account, error) {
	account, err := uow.Accounts().FindByName(ctx, userID, name)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("ensureSystemAccount: %w", err)
	}
	account, err = domain.NewAccount(userID, name, accountType, number, currency)
	if err != nil {
		return nil, fmt.Errorf("ensureSystemAccount: %w", err)
	}
	if err := uow.Accounts().Save(ctx, account); err != nil {
		return nil, fmt.Errorf("ensureSystemAccount: saving account: %w", err)
	}
	return account, nil
}

// recordFailure persists the failed state in a fresh unit of work, after
// the staged work of the attempt has been rolled back.
func (s *ImportService) recordFailure(ctx context.Context, bankTxID, userID string, cause error) {
	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("bank_transaction_id", bankTxID).Msg("cannot record import failure")
		return
	}
	defer uow.Rollback()

	imp, err := uow.Imports().FindByID(ctx, domain.ImportID(bankTxID, userID))
	if errors.Is(err, domain.ErrNotFound) {
		imp, err = domain.NewTransactionImport(bankTxID, userID)
	}
	if err != nil {
		s.log.Error().Err(err).Str("bank_transaction_id", bankTxID).Msg("cannot record import failure")
		return
	}
	// The stored row may still be failed or skipped from an earlier attempt
	// whose in-work reset rolled back; reopen it so the fresh error detail
	// replaces the stale one.
	if imp.Status == domain.ImportStatusFailed || imp.Status == domain.ImportStatusSkipped {
		if err := imp.Retry(); err != nil {
			s.log.Error().Err(err).Str("bank_transaction_id", bankTxID).Msg("cannot record import failure")
			return
		}
	}
	message := cause.Error()
	const maxLen = 2000
	if len(message) > maxLen {
		message = message[:maxLen]
	}
	if err := imp.MarkFailed(message); err != nil {
		s.log.Error().Err(err).Str("bank_transaction_id", bankTxID).Msg("cannot record import failure")
		return
	}
	if err := uow.Imports().Save(ctx, imp); err != nil {
		s.log.Error().Err(err).Str("bank_transaction_id", bankTxID).Msg("cannot record import failure")
		return
	}
	if err := uow.Commit(); err != nil {
		s.log.Error().Err(err).Str("bank_transaction_id", bankTxID).Msg("cannot record import failure")
		return
	}
	s.log.Warn().
		Str("bank_transaction_id", bankTxID).
		Err(cause).
		Msg("transaction import failed")
}

// RetryFailedImports resets failed and skipped audit rows to pending so a
// later sync pass can pick them up again.
func (s *ImportService) RetryFailedImports(ctx context.Context, userID string) (int, error) {
	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("RetryFailedImports: begin unit of work: %w", err)
	}
	defer uow.Rollback()

	count := 0
	for _, status := range []domain.ImportStatus{domain.ImportStatusFailed, domain.ImportStatusSkipped} {
		imports, err := uow.Imports().ListByStatus(ctx, userID, status)
		if err != nil {
			return 0, fmt.Errorf("RetryFailedImports: %w", err)
		}
		for _, imp := range imports {
			if err := imp.Retry(); err != nil {
				return 0, fmt.Errorf("RetryFailedImports: %w", err)
			}
			if err := uow.Imports().Save(ctx, imp); err != nil {
				return 0, fmt.Errorf("RetryFailedImports: %w", err)
			}
			count++
		}
	}
	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("RetryFailedImports: commit: %w", err)
	}
	return count, nil
}
