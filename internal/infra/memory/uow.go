package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// unitOfWork stages writes in overlay maps. Reads see the overlay first,
// then the committed store state, so multi-step saves within one unit of
// work can validate against each other. Commit applies the overlays under
// the store lock; Rollback discards them. Both are safe to call more than
// once; only the first call takes effect.
type unitOfWork struct {
	store    *Store
	finished bool

	stagedAccounts     map[uuid.UUID]*domain.Account
	stagedTransactions map[uuid.UUID]*domain.Transaction
	stagedMappings     map[uuid.UUID]*domain.AccountMapping
	stagedImports      map[uuid.UUID]*domain.TransactionImport
	stagedRules        map[uuid.UUID]*domain.CategoryRule
	deletedAccounts    map[uuid.UUID]bool
	deletedTxs         map[uuid.UUID]bool
}

func (u *unitOfWork) Accounts() domain.AccountRepository            { return &accountRepo{u} }
func (u *unitOfWork) Transactions() domain.TransactionRepository    { return &transactionRepo{u} }
func (u *unitOfWork) Mappings() domain.AccountMappingRepository     { return &mappingRepo{u} }
func (u *unitOfWork) Imports() domain.TransactionImportRepository   { return &importRepo{u} }
func (u *unitOfWork) Rules() domain.CategoryRuleRepository          { return &ruleRepo{u} }

func (u *unitOfWork) Commit() error {
	if u.finished {
		return nil
	}
	u.finished = true

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for id := range u.deletedAccounts {
		delete(u.store.accounts, id)
	}
	for id := range u.deletedTxs {
		delete(u.store.transactions, id)
	}
	for id, a := range u.stagedAccounts {
		u.store.accounts[id] = a.Clone()
	}
	for id, t := range u.stagedTransactions {
		u.store.transactions[id] = t.Clone()
	}
	for id, m := range u.stagedMappings {
		u.store.mappings[id] = m.Clone()
	}
	for id, i := range u.stagedImports {
		u.store.imports[id] = i.Clone()
	}
	for id, r := range u.stagedRules {
		u.store.rules[id] = r.Clone()
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	u.finished = true
	return nil
}

// accountRepo implements domain.AccountRepository over the staged view.
type accountRepo struct{ u *unitOfWork }

// combined returns the staged-over-committed view of all accounts.
func (r *accountRepo) combined() []*domain.Account {
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	out := make([]*domain.Account, 0, len(r.u.store.accounts)+len(r.u.stagedAccounts))
	for id, a := range r.u.store.accounts {
		if r.u.deletedAccounts[id] {
			continue
		}
		if _, staged := r.u.stagedAccounts[id]; staged {
			continue
		}
		out = append(out, a.Clone())
	}
	for _, a := range r.u.stagedAccounts {
		out = append(out, a.Clone())
	}
	return out
}

func (r *accountRepo) Save(ctx context.Context, account *domain.Account) error {
	for _, other := range r.combined() {
		if other.ID == account.ID || other.UserID != account.UserID {
			continue
		}
		if strings.EqualFold(other.Name, account.Name) {
			return fmt.Errorf("account name %q already in use: %w", account.Name, domain.ErrConflict)
		}
		if other.AccountNumber == account.AccountNumber {
			return fmt.Errorf("account number %q already in use: %w", account.AccountNumber, domain.ErrConflict)
		}
	}
	r.u.stagedAccounts[account.ID] = account.Clone()
	delete(r.u.deletedAccounts, account.ID)
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if a, ok := r.u.stagedAccounts[id]; ok {
		return a.Clone(), nil
	}
	if r.u.deletedAccounts[id] {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	if a, ok := r.u.store.accounts[id]; ok {
		return a.Clone(), nil
	}
	return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
}

func (r *accountRepo) findBy(match func(*domain.Account) bool, desc string) (*domain.Account, error) {
	for _, a := range r.combined() {
		if match(a) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", desc, domain.ErrNotFound)
}

func (r *accountRepo) FindByName(ctx context.Context, userID, name string) (*domain.Account, error) {
	return r.findBy(func(a *domain.Account) bool {
		return a.UserID == userID && strings.EqualFold(a.Name, name)
	}, "name "+name)
}

func (r *accountRepo) FindByNumber(ctx context.Context, userID, number string) (*domain.Account, error) {
	return r.findBy(func(a *domain.Account) bool {
		return a.UserID == userID && a.AccountNumber == number
	}, "number "+number)
}

func (r *accountRepo) FindByIBAN(ctx context.Context, userID, iban string) (*domain.Account, error) {
	return r.findBy(func(a *domain.Account) bool {
		return a.UserID == userID && a.IBAN == iban
	}, "iban "+iban)
}

func (r *accountRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, a := range r.combined() {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

func (r *accountRepo) ListByType(ctx context.Context, userID string, accountType domain.AccountType) ([]*domain.Account, error) {
	var out []*domain.Account
	for _, a := range r.combined() {
		if a.UserID == userID && a.AccountType == accountType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	return out, nil
}

func (r *accountRepo) Delete(ctx context.Context, id uuid.UUID) error {
	account, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	txRepo := &transactionRepo{r.u}
	txs, err := txRepo.ListByAccount(ctx, id)
	if err != nil {
		return err
	}
	if len(txs) > 0 {
		return fmt.Errorf("account %q still has transactions: %w", account.Name, domain.ErrConflict)
	}
	for _, other := range r.combined() {
		if other.ParentID != nil && *other.ParentID == id {
			return fmt.Errorf("account %q still has children: %w", account.Name, domain.ErrConflict)
		}
	}
	delete(r.u.stagedAccounts, id)
	r.u.deletedAccounts[id] = true
	return nil
}

// transactionRepo implements domain.TransactionRepository over the staged
// view.
type transactionRepo struct{ u *unitOfWork }

func (r *transactionRepo) combined() []*domain.Transaction {
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	out := make([]*domain.Transaction, 0, len(r.u.store.transactions)+len(r.u.stagedTransactions))
	for id, t := range r.u.store.transactions {
		if r.u.deletedTxs[id] {
			continue
		}
		if _, staged := r.u.stagedTransactions[id]; staged {
			continue
		}
		out = append(out, t.Clone())
	}
	for _, t := range r.u.stagedTransactions {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (r *transactionRepo) Save(ctx context.Context, tx *domain.Transaction) error {
	r.u.stagedTransactions[tx.ID] = tx.Clone()
	delete(r.u.deletedTxs, tx.ID)
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	if t, ok := r.u.stagedTransactions[id]; ok {
		return t.Clone(), nil
	}
	if r.u.deletedTxs[id] {
		return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	if t, ok := r.u.store.transactions[id]; ok {
		return t.Clone(), nil
	}
	return nil, fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
}

func (r *transactionRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, t := range r.combined() {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *transactionRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, t := range r.combined() {
		for _, e := range t.Entries {
			if e.AccountID == accountID {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (r *transactionRepo) ListInternalTransfers(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, t := range r.combined() {
		if t.UserID == userID && t.IsInternalTransfer {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *transactionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if tx.IsPosted {
		return fmt.Errorf("transaction %s is posted, unpost before deleting: %w", id, domain.ErrValidation)
	}
	delete(r.u.stagedTransactions, id)
	r.u.deletedTxs[id] = true
	return nil
}

// mappingRepo implements domain.AccountMappingRepository.
type mappingRepo struct{ u *unitOfWork }

func (r *mappingRepo) combined() []*domain.AccountMapping {
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	out := make([]*domain.AccountMapping, 0, len(r.u.store.mappings)+len(r.u.stagedMappings))
	for id, m := range r.u.store.mappings {
		if _, staged := r.u.stagedMappings[id]; staged {
			continue
		}
		out = append(out, m.Clone())
	}
	for _, m := range r.u.stagedMappings {
		out = append(out, m.Clone())
	}
	return out
}

func (r *mappingRepo) Save(ctx context.Context, mapping *domain.AccountMapping) error {
	r.u.stagedMappings[mapping.ID] = mapping.Clone()
	return nil
}

func (r *mappingRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.AccountMapping, error) {
	if m, ok := r.u.stagedMappings[id]; ok {
		return m.Clone(), nil
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	if m, ok := r.u.store.mappings[id]; ok {
		return m.Clone(), nil
	}
	return nil, fmt.Errorf("account mapping %s: %w", id, domain.ErrNotFound)
}

func (r *mappingRepo) FindByIBAN(ctx context.Context, userID, iban string) (*domain.AccountMapping, error) {
	for _, m := range r.combined() {
		if m.UserID == userID && m.IBAN == iban {
			return m, nil
		}
	}
	return nil, fmt.Errorf("account mapping for %s: %w", iban, domain.ErrNotFound)
}

func (r *mappingRepo) ListByUser(ctx context.Context, userID string) ([]*domain.AccountMapping, error) {
	var out []*domain.AccountMapping
	for _, m := range r.combined() {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *mappingRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.AccountMapping, error) {
	var out []*domain.AccountMapping
	for _, m := range r.combined() {
		if m.UserID == userID && m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

// importRepo implements domain.TransactionImportRepository. Save enforces
// the storage-boundary invariants on the audit row.
type importRepo struct{ u *unitOfWork }

func (r *importRepo) Save(ctx context.Context, imp *domain.TransactionImport) error {
	if (imp.Status == domain.ImportStatusSuccess) != (imp.AccountingTransactionID != nil) {
		return fmt.Errorf("transaction import %s: success status and accounting transaction id must agree: %w",
			imp.ID, domain.ErrValidation)
	}
	if imp.Status == domain.ImportStatusFailed && imp.ErrorMessage == "" {
		return fmt.Errorf("transaction import %s: failed status requires an error message: %w",
			imp.ID, domain.ErrValidation)
	}
	if imp.ErrorMessage != "" && imp.Status != domain.ImportStatusFailed && imp.Status != domain.ImportStatusSkipped {
		return fmt.Errorf("transaction import %s: error message only allowed for failed or skipped: %w",
			imp.ID, domain.ErrValidation)
	}
	r.u.stagedImports[imp.ID] = imp.Clone()
	return nil
}

func (r *importRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.TransactionImport, error) {
	if i, ok := r.u.stagedImports[id]; ok {
		return i.Clone(), nil
	}
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	if i, ok := r.u.store.imports[id]; ok {
		return i.Clone(), nil
	}
	return nil, fmt.Errorf("transaction import %s: %w", id, domain.ErrNotFound)
}

func (r *importRepo) combined() []*domain.TransactionImport {
	r.u.store.mu.RLock()
	defer r.u.store.mu.RUnlock()
	out := make([]*domain.TransactionImport, 0, len(r.u.store.imports)+len(r.u.stagedImports))
	for id, i := range r.u.store.imports {
		if _, staged := r.u.stagedImports[id]; staged {
			continue
		}
		out = append(out, i.Clone())
	}
	for _, i := range r.u.stagedImports {
		out = append(out, i.Clone())
	}
	return out
}

func (r *importRepo) ListByUser(ctx context.Context, userID string) ([]*domain.TransactionImport, error) {
	var out []*domain.TransactionImport
	for _, i := range r.combined() {
		if i.UserID == userID {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r *importRepo) ListByStatus(ctx context.Context, userID string, status domain.ImportStatus) ([]*domain.TransactionImport, error) {
	var out []*domain.TransactionImport
	for _, i := range r.combined() {
		if i.UserID == userID && i.Status == status {
			out = append(out, i)
		}
	}
	return out, nil
}

// ruleRepo implements domain.CategoryRuleRepository.
type ruleRepo struct{ u *unitOfWork }

func (r *ruleRepo) Save(ctx context.Context, rule *domain.CategoryRule) error {
	r.u.stagedRules[rule.ID] = rule.Clone()
	return nil
}

func (r *ruleRepo) ListActiveByUser(ctx context.Context, userID string) ([]*domain.CategoryRule, error) {
	r.u.store.mu.RLock()
	var out []*domain.CategoryRule
	for id, rule := range r.u.store.rules {
		if _, staged := r.u.stagedRules[id]; staged {
			continue
		}
		if rule.UserID == userID && rule.IsActive {
			out = append(out, rule.Clone())
		}
	}
	r.u.store.mu.RUnlock()
	for _, rule := range r.u.stagedRules {
		if rule.UserID == userID && rule.IsActive {
			out = append(out, rule.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}
