// Package sqlite provides the durable repository implementations over a
// SQLite database, with a transactional unit of work per request.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/maltewinckler/kontobuch/internal/domain"
)

// DB wraps the SQLite connection and acts as the unit-of-work factory.
type DB struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at dbPath with WAL mode and
// foreign keys enabled, and initializes the schema.
func Open(dbPath string, log zerolog.Logger) (*DB, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("Open: creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("Open: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: initializing schema: %w", err)
	}
	return &DB{db: db, log: log}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Begin opens a transactional unit of work. Writes staged through its
// repositories are visible to reads within the same transaction and become
// durable on Commit; Rollback discards them.
func (d *DB) Begin(ctx context.Context) (domain.UnitOfWork, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Begin: %w", err)
	}
	return &unitOfWork{tx: tx, log: d.log}, nil
}

var _ domain.UnitOfWorkFactory = (*DB)(nil)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// unitOfWork binds all repositories to one SQLite transaction. Commit and
// Rollback are safe to call more than once; only the first takes effect.
type unitOfWork struct {
	tx       *sql.Tx
	log      zerolog.Logger
	finished bool
}

func (u *unitOfWork) Accounts() domain.AccountRepository          { return &accountRepo{q: u.tx} }
func (u *unitOfWork) Transactions() domain.TransactionRepository  { return &transactionRepo{q: u.tx, log: u.log} }
func (u *unitOfWork) Mappings() domain.AccountMappingRepository   { return &mappingRepo{q: u.tx} }
func (u *unitOfWork) Imports() domain.TransactionImportRepository { return &importRepo{q: u.tx} }
func (u *unitOfWork) Rules() domain.CategoryRuleRepository        { return &ruleRepo{q: u.tx} }

func (u *unitOfWork) Commit() error {
	if u.finished {
		return nil
	}
	u.finished = true
	return u.tx.Commit()
}

func (u *unitOfWork) Rollback() error {
	if u.finished {
		return nil
	}
	u.finished = true
	return u.tx.Rollback()
}

// mapSQLiteError translates constraint violations into the domain
// conflict/validation taxonomy.
func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%v: %w", err, domain.ErrConflict)
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%v: %w", err, domain.ErrValidation)
		}
	}
	return err
}
