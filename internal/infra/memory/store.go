// Package memory provides in-memory implementations of the repository
// interfaces behind a staged unit of work. It backs tests and dry-run
// syncs; data is lost on restart - for persistence use the sqlite store.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// Store holds all aggregates in memory and is safe for concurrent use.
// Mutations only happen through a unit of work; Begin hands out a staged
// view whose writes become visible here on Commit.
type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]*domain.Account
	transactions map[uuid.UUID]*domain.Transaction
	mappings     map[uuid.UUID]*domain.AccountMapping
	imports      map[uuid.UUID]*domain.TransactionImport
	rules        map[uuid.UUID]*domain.CategoryRule
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*domain.Account),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		mappings:     make(map[uuid.UUID]*domain.AccountMapping),
		imports:      make(map[uuid.UUID]*domain.TransactionImport),
		rules:        make(map[uuid.UUID]*domain.CategoryRule),
	}
}

// Begin opens a staged unit of work over the store.
func (s *Store) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	return &unitOfWork{
		store:              s,
		stagedAccounts:     make(map[uuid.UUID]*domain.Account),
		stagedTransactions: make(map[uuid.UUID]*domain.Transaction),
		stagedMappings:     make(map[uuid.UUID]*domain.AccountMapping),
		stagedImports:      make(map[uuid.UUID]*domain.TransactionImport),
		stagedRules:        make(map[uuid.UUID]*domain.CategoryRule),
		deletedAccounts:    make(map[uuid.UUID]bool),
		deletedTxs:         make(map[uuid.UUID]bool),
	}, nil
}

var _ domain.UnitOfWorkFactory = (*Store)(nil)
