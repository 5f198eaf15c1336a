package sim

// Amounts are stored as decimal text so nothing is lost to floating point.
const Schema = `
CREATE TABLE IF NOT EXISTS account (
	id TEXT PRIMARY KEY,
	home TEXT NOT NULL,
	balance TEXT NOT NULL,
	saved_at DATETIME NOT NULL,
	run_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	seq INTEGER PRIMARY KEY,
	trade_id TEXT NOT NULL UNIQUE,
	instrument TEXT NOT NULL,
	units INTEGER NOT NULL,
	price TEXT NOT NULL,
	open_time DATETIME NOT NULL,
	margin_used TEXT NOT NULL,
	financing TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	seq INTEGER PRIMARY KEY,
	tx_id TEXT NOT NULL,
	type TEXT NOT NULL,
	instrument TEXT NOT NULL,
	time DATETIME NOT NULL,
	financing TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(time);
`
