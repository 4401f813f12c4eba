package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	name            TEXT NOT NULL,
	account_type    TEXT NOT NULL CHECK (account_type IN ('asset','liability','equity','income','expense')),
	account_number  TEXT NOT NULL,
	default_currency TEXT NOT NULL,
	is_active       INTEGER NOT NULL DEFAULT 1,
	iban            TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	parent_id       TEXT REFERENCES accounts(id),
	depth           INTEGER NOT NULL DEFAULT 1 CHECK (depth BETWEEN 1 AND 3),
	created_at      TIMESTAMP NOT NULL,
	UNIQUE (user_id, name),
	UNIQUE (user_id, account_number)
);
CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);
CREATE INDEX IF NOT EXISTS idx_accounts_iban ON accounts(iban) WHERE iban != '';

CREATE TABLE IF NOT EXISTS transactions (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	description          TEXT NOT NULL,
	tx_date              TIMESTAMP NOT NULL,
	counterparty         TEXT NOT NULL DEFAULT '',
	counterparty_iban    TEXT NOT NULL DEFAULT '',
	source               TEXT NOT NULL,
	source_iban          TEXT NOT NULL DEFAULT '',
	is_internal_transfer INTEGER NOT NULL DEFAULT 0,
	is_posted            INTEGER NOT NULL DEFAULT 0,
	metadata             TEXT NOT NULL DEFAULT '{}',
	created_at           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, tx_date);

CREATE TABLE IF NOT EXISTS journal_entries (
	id             TEXT PRIMARY KEY,
	transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
	account_id     TEXT NOT NULL REFERENCES accounts(id),
	debit_amount   TEXT NOT NULL,
	credit_amount  TEXT NOT NULL,
	currency       TEXT NOT NULL,
	position       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_entries_tx ON journal_entries(transaction_id);
CREATE INDEX IF NOT EXISTS idx_journal_entries_account ON journal_entries(account_id);

CREATE TABLE IF NOT EXISTS account_mappings (
	id                    TEXT PRIMARY KEY,
	iban                  TEXT NOT NULL,
	account_name          TEXT NOT NULL,
	accounting_account_id TEXT NOT NULL REFERENCES accounts(id),
	user_id               TEXT NOT NULL,
	is_active             INTEGER NOT NULL DEFAULT 1,
	created_at            TIMESTAMP NOT NULL,
	updated_at            TIMESTAMP NOT NULL,
	UNIQUE (user_id, iban)
);

CREATE TABLE IF NOT EXISTS transaction_imports (
	id                        TEXT PRIMARY KEY,
	bank_transaction_id       TEXT NOT NULL,
	user_id                   TEXT NOT NULL,
	status                    TEXT NOT NULL CHECK (status IN ('pending','success','failed','duplicate','skipped')),
	accounting_transaction_id TEXT,
	error_message             TEXT NOT NULL DEFAULT '',
	created_at                TIMESTAMP NOT NULL,
	updated_at                TIMESTAMP NOT NULL,
	imported_at               TIMESTAMP,
	CHECK ((status = 'success') = (accounting_transaction_id IS NOT NULL)),
	CHECK (status != 'failed' OR error_message != ''),
	CHECK (error_message = '' OR status IN ('failed','skipped'))
);
CREATE INDEX IF NOT EXISTS idx_imports_user_status ON transaction_imports(user_id, status);

CREATE TABLE IF NOT EXISTS category_rules (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	pattern    TEXT NOT NULL,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	priority   INTEGER NOT NULL DEFAULT 100,
	is_active  INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_category_rules_user ON category_rules(user_id, priority);
`
