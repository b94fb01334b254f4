package repository

// Schema definitions for the sentinel database, compatible with both
// SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    amount BIGINT NOT NULL,
    timestamp BIGINT NOT NULL,
    device_id TEXT NOT NULL,
    ip_address TEXT,
    lat REAL,
    lon REAL,
    city TEXT,
    merchant_id TEXT,
    merchant_category TEXT,
    network_type TEXT NOT NULL,
    session_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
CREATE INDEX IF NOT EXISTS idx_transactions_user_timestamp ON transactions(user_id, timestamp);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    registered_city TEXT NOT NULL,
    registered_device_id TEXT NOT NULL,
    avg_transaction_amount BIGINT NOT NULL,
    max_transaction_amount BIGINT NOT NULL,
    daily_transaction_limit BIGINT NOT NULL,
    avg_transactions_per_day REAL NOT NULL,
    kyc_status TEXT NOT NULL,
    risk_category TEXT NOT NULL,
    account_status TEXT NOT NULL,
    usual_login_start INTEGER NOT NULL,
    usual_login_end INTEGER NOT NULL,
    last_login TIMESTAMP,
    failed_attempts_last_10_min INTEGER NOT NULL DEFAULT 0
);
`

const schemaLedgerEntries = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    idx INTEGER PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    timestamp BIGINT NOT NULL,
    final_risk_score INTEGER NOT NULL,
    decision TEXT NOT NULL,
    previous_hash TEXT NOT NULL,
    current_hash TEXT NOT NULL,
    data_hash TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_tx ON ledger_entries(transaction_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaProfiles,
		schemaLedgerEntries,
	}
}
