package storage

// Column types are chosen so the same DDL runs on SQLite and PostgreSQL.
// Dates are 'YYYY-MM-DD' text in market-local time, timestamps unix ms.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS securities (
		id BIGINT PRIMARY KEY,
		symbol TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		sector TEXT NOT NULL DEFAULT '',
		instrument_type TEXT NOT NULL DEFAULT 'unknown',
		status TEXT NOT NULL DEFAULT 'active',
		email TEXT NOT NULL DEFAULT '',
		website TEXT NOT NULL DEFAULT '',
		listed_shares DOUBLE PRECISION NOT NULL DEFAULT 0,
		paid_up_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS stock_prices (
		symbol TEXT PRIMARY KEY,
		security_id BIGINT NOT NULL DEFAULT 0,
		security_name TEXT NOT NULL DEFAULT '',
		business_date TEXT NOT NULL,
		open DOUBLE PRECISION NOT NULL DEFAULT 0,
		high DOUBLE PRECISION NOT NULL DEFAULT 0,
		low DOUBLE PRECISION NOT NULL DEFAULT 0,
		close DOUBLE PRECISION NOT NULL,
		ltp DOUBLE PRECISION NOT NULL DEFAULT 0,
		previous_close DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		turnover DOUBLE PRECISION NOT NULL DEFAULT 0,
		trades BIGINT NOT NULL DEFAULT 0,
		week52_high DOUBLE PRECISION NOT NULL DEFAULT 0,
		week52_low DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS price_history (
		symbol TEXT NOT NULL,
		business_date TEXT NOT NULL,
		open DOUBLE PRECISION NOT NULL DEFAULT 0,
		high DOUBLE PRECISION NOT NULL DEFAULT 0,
		low DOUBLE PRECISION NOT NULL DEFAULT 0,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL DEFAULT 0,
		turnover DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (symbol, business_date)
	)`,
	`CREATE TABLE IF NOT EXISTS market_index (
		index_id BIGINT PRIMARY KEY,
		index_name TEXT NOT NULL DEFAULT '',
		value DOUBLE PRECISION NOT NULL,
		price_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		high DOUBLE PRECISION NOT NULL DEFAULT 0,
		low DOUBLE PRECISION NOT NULL DEFAULT 0,
		previous_close DOUBLE PRECISION NOT NULL DEFAULT 0,
		turnover DOUBLE PRECISION NOT NULL DEFAULT 0,
		traded_shares DOUBLE PRECISION NOT NULL DEFAULT 0,
		transactions BIGINT NOT NULL DEFAULT 0,
		advanced INTEGER NOT NULL DEFAULT 0,
		declined INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'UNKNOWN',
		status_time TEXT NOT NULL DEFAULT '',
		business_date TEXT NOT NULL,
		updated_at BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS market_index_history (
		index_id BIGINT NOT NULL,
		business_date TEXT NOT NULL,
		index_name TEXT NOT NULL DEFAULT '',
		close DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL DEFAULT 0,
		low DOUBLE PRECISION NOT NULL DEFAULT 0,
		turnover DOUBLE PRECISION NOT NULL DEFAULT 0,
		traded_shares DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		percent_change DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (index_id, business_date)
	)`,
	`CREATE TABLE IF NOT EXISTS dividends (
		security_id BIGINT NOT NULL,
		fiscal_year TEXT NOT NULL,
		cash_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		bonus_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		right_share TEXT NOT NULL DEFAULT '',
		book_close_date TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (security_id, fiscal_year)
	)`,
	`CREATE TABLE IF NOT EXISTS financials (
		security_id BIGINT NOT NULL,
		fiscal_year TEXT NOT NULL,
		quarter TEXT NOT NULL,
		paid_up_capital DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
		eps DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_worth_per_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		pe_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (security_id, fiscal_year, quarter)
	)`,
	`CREATE TABLE IF NOT EXISTS job_status (
		job_name TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		last_run BIGINT NOT NULL DEFAULT 0,
		last_success BIGINT NOT NULL DEFAULT 0,
		last_run_id TEXT NOT NULL DEFAULT '',
		last_duration_ms BIGINT NOT NULL DEFAULT 0,
		total_success BIGINT NOT NULL DEFAULT 0,
		total_failure BIGINT NOT NULL DEFAULT 0,
		today_success BIGINT NOT NULL DEFAULT 0,
		today_failure BIGINT NOT NULL DEFAULT 0,
		stats_date TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		schedule TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_securities_type ON securities (instrument_type)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_prices_date ON stock_prices (business_date)`,
}
