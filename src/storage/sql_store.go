package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nepse-observer/src/helpers"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// -----------------------------------------------------------------------------

// SQLStore implements interfaces.IDatabase over database/sql. Queries are
// written with '?' placeholders and rebound for PostgreSQL.
type SQLStore struct {
	Config  *models.MConfig
	DB      *sql.DB
	Logger  *logger.Logger
	dialect string
}

// -----------------------------------------------------------------------------

// rebind rewrites '?' placeholders as $1..$n for PostgreSQL.
func rebind(dialect, query string) string {
	if dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d *SQLStore) q(query string) string {
	return rebind(d.dialect, query)
}

// -----------------------------------------------------------------------------

func (d *SQLStore) createTables() error {
	for _, stmt := range schemaStatements {
		if _, err := d.DB.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// withTx runs fn inside a transaction, committing on success.
func (d *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Securities
// -----------------------------------------------------------------------------

func (d *SQLStore) UpsertSecurity(ctx context.Context, s models.MSecurity) error {
	if s.InstrumentType == "" {
		s.InstrumentType = models.InstrumentUnknown
	}
	if s.Status == "" {
		s.Status = models.SecurityActive
	}

	_, err := d.DB.ExecContext(ctx, d.q(`
		INSERT INTO securities (id, symbol, name, sector, instrument_type, status, email, website, listed_shares, paid_up_value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			symbol = excluded.symbol,
			name = excluded.name,
			sector = excluded.sector,
			instrument_type = excluded.instrument_type,
			status = excluded.status,
			email = excluded.email,
			website = excluded.website,
			listed_shares = excluded.listed_shares,
			paid_up_value = excluded.paid_up_value,
			updated_at = excluded.updated_at
	`), s.ID, s.Symbol, s.Name, s.Sector, s.InstrumentType, s.Status, s.Email, s.Website, s.ListedShares, s.PaidUpValue, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert security %s: %w", s.Symbol, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

const securityColumns = `id, symbol, name, sector, instrument_type, status, email, website, listed_shares, paid_up_value, updated_at`

func scanSecurity(row interface{ Scan(...any) error }) (models.MSecurity, error) {
	var s models.MSecurity
	err := row.Scan(&s.ID, &s.Symbol, &s.Name, &s.Sector, &s.InstrumentType, &s.Status, &s.Email, &s.Website, &s.ListedShares, &s.PaidUpValue, &s.UpdatedAt)
	return s, err
}

func (d *SQLStore) GetSecurity(ctx context.Context, symbol string) (*models.MSecurity, error) {
	row := d.DB.QueryRowContext(ctx, d.q(`SELECT `+securityColumns+` FROM securities WHERE symbol = ?`), symbol)
	s, err := scanSecurity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("security %s: %w", symbol, helpers.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// -----------------------------------------------------------------------------

func (d *SQLStore) ListSecurities(ctx context.Context, instrumentType string) ([]models.MSecurity, error) {
	query := `SELECT ` + securityColumns + ` FROM securities`
	var args []any
	if instrumentType != "" {
		query += ` WHERE instrument_type = ?`
		args = append(args, instrumentType)
	}
	query += ` ORDER BY symbol`

	rows, err := d.DB.QueryContext(ctx, d.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MSecurity
	for rows.Next() {
		s, err := scanSecurity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLStore) UpsertDividends(ctx context.Context, dividends []models.MDividend) error {
	if len(dividends) == 0 {
		return nil
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, d.q(`
			INSERT INTO dividends (security_id, fiscal_year, cash_percent, bonus_percent, right_share, book_close_date)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (security_id, fiscal_year) DO UPDATE SET
				cash_percent = excluded.cash_percent,
				bonus_percent = excluded.bonus_percent,
				right_share = excluded.right_share,
				book_close_date = excluded.book_close_date
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, v := range dividends {
			if _, err := stmt.ExecContext(ctx, v.SecurityID, v.FiscalYear, v.CashPercent, v.BonusPercent, v.RightShare, v.BookCloseDate); err != nil {
				return fmt.Errorf("upsert dividend %d/%s: %w", v.SecurityID, v.FiscalYear, err)
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (d *SQLStore) UpsertFinancials(ctx context.Context, financials []models.MFinancial) error {
	if len(financials) == 0 {
		return nil
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, d.q(`
			INSERT INTO financials (security_id, fiscal_year, quarter, paid_up_capital, net_profit, eps, net_worth_per_share, pe_ratio)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (security_id, fiscal_year, quarter) DO UPDATE SET
				paid_up_capital = excluded.paid_up_capital,
				net_profit = excluded.net_profit,
				eps = excluded.eps,
				net_worth_per_share = excluded.net_worth_per_share,
				pe_ratio = excluded.pe_ratio
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, f := range financials {
			if _, err := stmt.ExecContext(ctx, f.SecurityID, f.FiscalYear, f.Quarter, f.PaidUpCapital, f.NetProfit, f.EPS, f.NetWorthPerShare, f.PriceEarningsRatio); err != nil {
				return fmt.Errorf("upsert financial %d/%s/%s: %w", f.SecurityID, f.FiscalYear, f.Quarter, err)
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// Live prices
// -----------------------------------------------------------------------------

func (d *SQLStore) UpsertStockPrices(ctx context.Context, quotes []models.MPriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, d.q(`
			INSERT INTO stock_prices (symbol, security_id, security_name, business_date, open, high, low, close, ltp,
				previous_close, volume, turnover, trades, week52_high, week52_low, price_change, percent_change, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (symbol) DO UPDATE SET
				security_id = excluded.security_id,
				security_name = excluded.security_name,
				business_date = excluded.business_date,
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				ltp = excluded.ltp,
				previous_close = excluded.previous_close,
				volume = excluded.volume,
				turnover = excluded.turnover,
				trades = excluded.trades,
				week52_high = excluded.week52_high,
				week52_low = excluded.week52_low,
				price_change = excluded.price_change,
				percent_change = excluded.percent_change,
				updated_at = excluded.updated_at
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range quotes {
			_, err := stmt.ExecContext(ctx, p.Symbol, p.SecurityID, p.SecurityName, p.BusinessDate, p.Open, p.High, p.Low, p.Close,
				p.LastTradedPrice, p.PreviousClose, p.Volume, p.Value, p.Trades, p.Week52High, p.Week52Low, p.Change, p.PercentChange, p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("upsert price %s: %w", p.Symbol, err)
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

const priceColumns = `symbol, security_id, security_name, business_date, open, high, low, close, ltp, previous_close,
	volume, turnover, trades, week52_high, week52_low, price_change, percent_change, updated_at`

func scanPrice(row interface{ Scan(...any) error }) (models.MPriceQuote, error) {
	var p models.MPriceQuote
	err := row.Scan(&p.Symbol, &p.SecurityID, &p.SecurityName, &p.BusinessDate, &p.Open, &p.High, &p.Low, &p.Close,
		&p.LastTradedPrice, &p.PreviousClose, &p.Volume, &p.Value, &p.Trades, &p.Week52High, &p.Week52Low, &p.Change, &p.PercentChange, &p.UpdatedAt)
	return p, err
}

func (d *SQLStore) GetStockPrice(ctx context.Context, symbol string) (*models.MPriceQuote, error) {
	row := d.DB.QueryRowContext(ctx, d.q(`SELECT `+priceColumns+` FROM stock_prices WHERE symbol = ?`), symbol)
	p, err := scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("price %s: %w", symbol, helpers.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -----------------------------------------------------------------------------

func (d *SQLStore) ListStockPrices(ctx context.Context) ([]models.MPriceQuote, error) {
	rows, err := d.DB.QueryContext(ctx, `SELECT `+priceColumns+` FROM stock_prices ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MPriceQuote
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Market index
// -----------------------------------------------------------------------------

func (d *SQLStore) UpsertMarketIndex(ctx context.Context, idx models.MMarketIndex) error {
	_, err := d.DB.ExecContext(ctx, d.q(`
		INSERT INTO market_index (index_id, index_name, value, price_change, percent_change, high, low, previous_close,
			turnover, traded_shares, transactions, advanced, declined, unchanged, status, status_time, business_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (index_id) DO UPDATE SET
			index_name = excluded.index_name,
			value = excluded.value,
			price_change = excluded.price_change,
			percent_change = excluded.percent_change,
			high = excluded.high,
			low = excluded.low,
			previous_close = excluded.previous_close,
			turnover = excluded.turnover,
			traded_shares = excluded.traded_shares,
			transactions = excluded.transactions,
			advanced = excluded.advanced,
			declined = excluded.declined,
			unchanged = excluded.unchanged,
			status = excluded.status,
			status_time = excluded.status_time,
			business_date = excluded.business_date,
			updated_at = excluded.updated_at
	`), idx.IndexID, idx.IndexName, idx.Value, idx.Change, idx.PercentChange, idx.High, idx.Low, idx.PreviousClose,
		idx.Turnover, idx.TradedShares, idx.Transactions, idx.Advanced, idx.Declined, idx.Unchanged,
		idx.Status, idx.StatusTime, idx.BusinessDate, idx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert market index %d: %w", idx.IndexID, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLStore) GetMarketIndex(ctx context.Context, indexID int64) (*models.MMarketIndex, error) {
	row := d.DB.QueryRowContext(ctx, d.q(`
		SELECT index_id, index_name, value, price_change, percent_change, high, low, previous_close, turnover,
			traded_shares, transactions, advanced, declined, unchanged, status, status_time, business_date, updated_at
		FROM market_index WHERE index_id = ?`), indexID)

	var idx models.MMarketIndex
	err := row.Scan(&idx.IndexID, &idx.IndexName, &idx.Value, &idx.Change, &idx.PercentChange, &idx.High, &idx.Low, &idx.PreviousClose,
		&idx.Turnover, &idx.TradedShares, &idx.Transactions, &idx.Advanced, &idx.Declined, &idx.Unchanged,
		&idx.Status, &idx.StatusTime, &idx.BusinessDate, &idx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("market index %d: %w", indexID, helpers.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &idx, nil
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func (d *SQLStore) UpsertPriceHistory(ctx context.Context, records []models.MHistoryRecord) error {
	if len(records) == 0 {
		return nil
	}
	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, d.q(`
			INSERT INTO price_history (symbol, business_date, open, high, low, close, volume, turnover, price_change, percent_change)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (symbol, business_date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				turnover = excluded.turnover,
				price_change = excluded.price_change,
				percent_change = excluded.percent_change
		`))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.ExecContext(ctx, r.Key, r.BusinessDate, r.Open, r.High, r.Low, r.Close, r.Volume, r.Value, r.Change, r.PercentChange); err != nil {
				return fmt.Errorf("upsert history %s/%s: %w", r.Key, r.BusinessDate, err)
			}
		}
		return nil
	})
}

// -----------------------------------------------------------------------------

func (d *SQLStore) ListPriceHistory(ctx context.Context, symbol string, limit int) ([]models.MHistoryRecord, error) {
	if limit <= 0 {
		limit = 365
	}
	rows, err := d.DB.QueryContext(ctx, d.q(`
		SELECT symbol, business_date, open, high, low, close, volume, turnover, price_change, percent_change
		FROM price_history WHERE symbol = ? ORDER BY business_date DESC LIMIT ?`), symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MHistoryRecord
	for rows.Next() {
		var r models.MHistoryRecord
		if err := rows.Scan(&r.Key, &r.BusinessDate, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Value, &r.Change, &r.PercentChange); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLStore) ArchiveStockPrices(ctx context.Context, businessDate string) (int64, error) {
	res, err := d.DB.ExecContext(ctx, d.q(`
		INSERT INTO price_history (symbol, business_date, open, high, low, close, volume, turnover, price_change, percent_change)
		SELECT symbol, business_date, open, high, low, close, volume, turnover, price_change, percent_change
		FROM stock_prices WHERE business_date = ? AND close > 0
		ON CONFLICT (symbol, business_date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			turnover = excluded.turnover,
			price_change = excluded.price_change,
			percent_change = excluded.percent_change
	`), businessDate)
	if err != nil {
		return 0, fmt.Errorf("archive prices %s: %w", businessDate, err)
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------

func (d *SQLStore) ArchiveMarketIndex(ctx context.Context, businessDate string) (int64, error) {
	res, err := d.DB.ExecContext(ctx, d.q(`
		INSERT INTO market_index_history (index_id, business_date, index_name, close, high, low, turnover, traded_shares, price_change, percent_change)
		SELECT index_id, business_date, index_name, value, high, low, turnover, traded_shares, price_change, percent_change
		FROM market_index WHERE business_date = ? AND value > 0
		ON CONFLICT (index_id, business_date) DO UPDATE SET
			index_name = excluded.index_name,
			close = excluded.close,
			high = excluded.high,
			low = excluded.low,
			turnover = excluded.turnover,
			traded_shares = excluded.traded_shares,
			price_change = excluded.price_change,
			percent_change = excluded.percent_change
	`), businessDate)
	if err != nil {
		return 0, fmt.Errorf("archive index %s: %w", businessDate, err)
	}
	return res.RowsAffected()
}

// -----------------------------------------------------------------------------

func (d *SQLStore) CleanupOldData(ctx context.Context, cutoff string) (int64, error) {
	var total int64
	for _, table := range []string{"price_history", "market_index_history"} {
		res, err := d.DB.ExecContext(ctx, d.q(fmt.Sprintf(`DELETE FROM %s WHERE business_date < ?`, table)), cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// Job status
// -----------------------------------------------------------------------------

func (d *SQLStore) SaveJobStatus(ctx context.Context, s models.MJobStatus) error {
	_, err := d.DB.ExecContext(ctx, d.q(`
		INSERT INTO job_status (job_name, status, last_run, last_success, last_run_id, last_duration_ms, total_success,
			total_failure, today_success, today_failure, stats_date, message, schedule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_name) DO UPDATE SET
			status = excluded.status,
			last_run = excluded.last_run,
			last_success = excluded.last_success,
			last_run_id = excluded.last_run_id,
			last_duration_ms = excluded.last_duration_ms,
			total_success = excluded.total_success,
			total_failure = excluded.total_failure,
			today_success = excluded.today_success,
			today_failure = excluded.today_failure,
			stats_date = excluded.stats_date,
			message = excluded.message,
			schedule = excluded.schedule
	`), s.JobName, s.Status, s.LastRun, s.LastSuccess, s.LastRunID, s.LastDuration, s.TotalSuccess,
		s.TotalFailure, s.TodaySuccess, s.TodayFailure, s.StatsDate, s.Message, s.Schedule)
	if err != nil {
		return fmt.Errorf("save job status %s: %w", s.JobName, err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLStore) LoadJobStatuses(ctx context.Context) ([]models.MJobStatus, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT job_name, status, last_run, last_success, last_run_id, last_duration_ms, total_success,
			total_failure, today_success, today_failure, stats_date, message, schedule
		FROM job_status ORDER BY job_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MJobStatus
	for rows.Next() {
		var s models.MJobStatus
		if err := rows.Scan(&s.JobName, &s.Status, &s.LastRun, &s.LastSuccess, &s.LastRunID, &s.LastDuration, &s.TotalSuccess,
			&s.TotalFailure, &s.TodaySuccess, &s.TodayFailure, &s.StatsDate, &s.Message, &s.Schedule); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLStore) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
