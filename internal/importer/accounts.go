// Package importer orchestrates the bank-import side of the ledger:
// mapping discovered bank accounts to asset accounts, reconciling internal
// transfers, running the per-transaction import pipeline and comparing
// bank-reported balances against computed ledger balances.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// AccountImportService idempotently maps discovered bank accounts onto
// ledger asset accounts plus their AccountMapping rows. Re-running an
// import with identical inputs creates zero additional rows.
type AccountImportService struct {
	uowf domain.UnitOfWorkFactory
	log  zerolog.Logger
}

// NewAccountImportService creates the service.
func NewAccountImportService(uowf domain.UnitOfWorkFactory, log zerolog.Logger) *AccountImportService {
	return &AccountImportService{uowf: uowf, log: log}
}

// ImportBankAccount upserts the account and mapping for one discovered bank
// account in its own unit of work. customName overrides the generated
// "{bank name} - {type}" account name.
func (s *AccountImportService) ImportBankAccount(ctx context.Context, userID string, bank domain.BankAccount, customName string) (*domain.Account, error) {
	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ImportBankAccount: begin unit of work: %w", err)
	}
	defer uow.Rollback()

	account, err := s.importInto(ctx, uow, userID, bank, customName)
	if err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("ImportBankAccount: commit: %w", err)
	}
	return account, nil
}

// ImportMultipleBankAccounts applies ImportBankAccount per account, each in
// its own unit of work so one bad account does not block the rest.
func (s *AccountImportService) ImportMultipleBankAccounts(ctx context.Context, userID string, banks []domain.BankAccount) ([]*domain.Account, error) {
	accounts := make([]*domain.Account, 0, len(banks))
	for _, bank := range banks {
		account, err := s.ImportBankAccount(ctx, userID, bank, "")
		if err != nil {
			return accounts, fmt.Errorf("ImportMultipleBankAccounts: account %s: %w", bank.IBAN, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// importInto performs the upsert within the caller's unit of work:
// an existing mapping wins unchanged; an account carrying the IBAN without
// a mapping gets only the mapping; otherwise both rows are created.
func (s *AccountImportService) importInto(ctx context.Context, uow domain.UnitOfWork, userID string, bank domain.BankAccount, customName string) (*domain.Account, error) {
	iban, err := domain.NormalizeIBAN(bank.IBAN)
	if err != nil {
		return nil, fmt.Errorf("importInto: %w", err)
	}

	mapping, err := uow.Mappings().FindByIBAN(ctx, userID, iban)
	if err == nil {
		account, err := uow.Accounts().FindByID(ctx, mapping.AccountingAccountID)
		if err != nil {
			return nil, fmt.Errorf("importInto: mapping %s references missing account: %w", mapping.ID, err)
		}
		return account, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("importInto: looking up mapping: %w", err)
	}

	account, err := uow.Accounts().FindByIBAN(ctx, userID, iban)
	if errors.Is(err, domain.ErrNotFound) {
		account, err = s.createAccount(ctx, uow, userID, bank, iban, customName)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("importInto: looking up account by IBAN: %w", err)
	}

	newMapping, err := domain.NewAccountMapping(iban, account.Name, account.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("importInto: %w", err)
	}
	if err := uow.Mappings().Save(ctx, newMapping); err != nil {
		return nil, fmt.Errorf("importInto: saving mapping: %w", err)
	}
	s.log.Info().
		Str("iban", iban).
		Str("account", account.Name).
		Msg("bank account mapped")
	return account, nil
}

func (s *AccountImportService) createAccount(ctx context.Context, uow domain.UnitOfWork, userID string, bank domain.BankAccount, iban, customName string) (*domain.Account, error) {
	name := customName
	if name == "" {
		bankName := bank.BankName
		if bankName == "" {
			bankName = "Bank"
		}
		accountType := bank.Type
		if accountType == "" {
			accountType = "Girokonto"
		}
		name = bankName + " - " + accountType
	}
	currency := bank.Currency
	if currency == "" {
		currency = "EUR"
	}

	number, err := s.generateAccountNumber(ctx, uow, userID, iban)
	if err != nil {
		return nil, err
	}
	account, err := domain.NewAccount(userID, name, domain.AccountTypeAsset, number, currency)
	if err != nil {
		return nil, fmt.Errorf("createAccount: %w", err)
	}
	if err := account.LinkIBAN(iban); err != nil {
		return nil, fmt.Errorf("createAccount: %w", err)
	}
	if err := uow.Accounts().Save(ctx, account); err != nil {
		return nil, fmt.Errorf("createAccount: saving account: %w", err)
	}
	return account, nil
}

// generateAccountNumber derives an asset account number from the IBAN tail,
// retrying with a numeric suffix until the number is free.
func (s *AccountImportService) generateAccountNumber(ctx context.Context, uow domain.UnitOfWork, userID, iban string) (string, error) {
	digits := make([]rune, 0, 4)
	for _, r := range iban {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	tail := string(digits)
	if len(tail) > 4 {
		tail = tail[len(tail)-4:]
	}
	base := "1" + tail

	candidate := base
	for i := 2; ; i++ {
		_, err := uow.Accounts().FindByNumber(ctx, userID, candidate)
		if errors.Is(err, domain.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		if i > 99 {
			return "", fmt.Errorf("generateAccountNumber: no free number derived from %s: %w", iban, domain.ErrConflict)
		}
		candidate = base + strconv.Itoa(i)
	}
}

// RenameBankAccount renames the Account and its AccountMapping together in
// one unit of work; the two names must never drift apart.
func (s *AccountImportService) RenameBankAccount(ctx context.Context, userID, iban, newName string) error {
	if strings.TrimSpace(newName) == "" {
		return fmt.Errorf("RenameBankAccount: empty name: %w", domain.ErrValidation)
	}
	normalized, err := domain.NormalizeIBAN(iban)
	if err != nil {
		return fmt.Errorf("RenameBankAccount: %w", err)
	}

	uow, err := s.uowf.Begin(ctx)
	if err != nil {
		return fmt.Errorf("RenameBankAccount: begin unit of work: %w", err)
	}
	defer uow.Rollback()

	mapping, err := uow.Mappings().FindByIBAN(ctx, userID, normalized)
	if err != nil {
		return fmt.Errorf("RenameBankAccount: mapping for %s: %w", normalized, err)
	}
	account, err := uow.Accounts().FindByID(ctx, mapping.AccountingAccountID)
	if err != nil {
		return fmt.Errorf("RenameBankAccount: account for mapping %s: %w", mapping.ID, err)
	}
	if err := account.Rename(newName); err != nil {
		return fmt.Errorf("RenameBankAccount: %w", err)
	}
	if err := mapping.Rename(newName); err != nil {
		return fmt.Errorf("RenameBankAccount: %w", err)
	}
	if err := uow.Accounts().Save(ctx, account); err != nil {
		return fmt.Errorf("RenameBankAccount: saving account: %w", err)
	}
	if err := uow.Mappings().Save(ctx, mapping); err != nil {
		return fmt.Errorf("RenameBankAccount: saving mapping: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("RenameBankAccount: commit: %w", err)
	}
	return nil
}
