package storage

import (
	"context"
	"path/filepath"
	"testing"

	"nepse-observer/src/helpers"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{
		DBType: "sqlite",
		DBPath: filepath.Join(t.TempDir(), "nepse.db"),
	}}
	db := NewSQLiteDB(cfg, logger.NewLogger(nil, "StoreTest"))
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quote(symbol string, close float64, date string) models.MPriceQuote {
	return models.MPriceQuote{
		Symbol: symbol, SecurityID: 131, SecurityName: symbol + " Ltd",
		BusinessDate: date, Open: close - 5, High: close + 3, Low: close - 8, Close: close,
		LastTradedPrice: close, Volume: 1200, Value: close * 1200, Trades: 42, UpdatedAt: 1,
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, q, rebind(dialectSQLite, q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", rebind(dialectPostgres, q))
}

func TestInitializeIsRepeatable(t *testing.T) {
	db := newTestStore(t)
	assert.NoError(t, db.createTables())
}

func TestUpsertStockPricesKeepsOneRowPerSymbol(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	require.NoError(t, db.UpsertStockPrices(ctx, []models.MPriceQuote{quote("NABIL", 500, "2026-10-14")}))
	require.NoError(t, db.UpsertStockPrices(ctx, []models.MPriceQuote{quote("NABIL", 512, "2026-10-15"), quote("NICA", 410, "2026-10-15")}))

	rows, err := db.ListStockPrices(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got, err := db.GetStockPrice(ctx, "NABIL")
	require.NoError(t, err)
	assert.Equal(t, 512.0, got.Close)
	assert.Equal(t, "2026-10-15", got.BusinessDate)
	assert.Equal(t, int64(42), got.Trades)

	_, err = db.GetStockPrice(ctx, "MISSING")
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestMarketIndexUpsertAndArchive(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	idx := models.MMarketIndex{IndexID: 58, IndexName: "NEPSE Index", Value: 2650.5, Change: 12.1,
		Status: models.MarketOpen, StatusTime: "1:00 PM", BusinessDate: "2026-10-15", Turnover: 3.2e9}
	require.NoError(t, db.UpsertMarketIndex(ctx, idx))

	idx.Value = 2660
	idx.StatusTime = "3:00 PM"
	require.NoError(t, db.UpsertMarketIndex(ctx, idx))

	got, err := db.GetMarketIndex(ctx, 58)
	require.NoError(t, err)
	assert.Equal(t, 2660.0, got.Value)
	assert.Equal(t, "3:00 PM", got.StatusTime)

	n, err := db.ArchiveMarketIndex(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// idempotent
	_, err = db.ArchiveMarketIndex(ctx, "2026-10-15")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM market_index_history`).Scan(&count))
	assert.Equal(t, 1, count)

	_, err = db.GetMarketIndex(ctx, 1)
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestArchiveStockPricesOnlyCopiesThatDate(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	require.NoError(t, db.UpsertStockPrices(ctx, []models.MPriceQuote{
		quote("NABIL", 512, "2026-10-15"),
		quote("NICA", 410, "2026-10-14"),
	}))

	n, err := db.ArchiveStockPrices(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	hist, err := db.ListPriceHistory(ctx, "NABIL", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 512.0, hist[0].Close)

	hist, err = db.ListPriceHistory(ctx, "NICA", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestPriceHistoryUpsertAndCleanup(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	records := []models.MHistoryRecord{
		{Key: "NABIL", BusinessDate: "2025-01-02", Close: 480},
		{Key: "NABIL", BusinessDate: "2026-10-14", Close: 505},
	}
	require.NoError(t, db.UpsertPriceHistory(ctx, records))
	records[1].Close = 506
	require.NoError(t, db.UpsertPriceHistory(ctx, records))

	hist, err := db.ListPriceHistory(ctx, "NABIL", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "2026-10-14", hist[0].BusinessDate)
	assert.Equal(t, 506.0, hist[0].Close)

	removed, err := db.CleanupOldData(ctx, "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestSecuritiesAndFundamentals(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	require.NoError(t, db.UpsertSecurity(ctx, models.MSecurity{ID: 131, Symbol: "NABIL", Name: "Nabil Bank", InstrumentType: models.InstrumentEquity}))
	require.NoError(t, db.UpsertSecurity(ctx, models.MSecurity{ID: 2790, Symbol: "NBLD87", Name: "Nabil Debenture 2087"}))
	require.NoError(t, db.UpsertSecurity(ctx, models.MSecurity{ID: 2790, Symbol: "NBLD87", Name: "Nabil Bank Debenture 2087", InstrumentType: models.InstrumentDebenture}))

	all, err := db.ListSecurities(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deb, err := db.ListSecurities(ctx, models.InstrumentDebenture)
	require.NoError(t, err)
	require.Len(t, deb, 1)
	assert.Equal(t, "Nabil Bank Debenture 2087", deb[0].Name)
	assert.Equal(t, models.SecurityActive, deb[0].Status)

	sec, err := db.GetSecurity(ctx, "NABIL")
	require.NoError(t, err)
	assert.Equal(t, int64(131), sec.ID)

	require.NoError(t, db.UpsertDividends(ctx, []models.MDividend{{SecurityID: 131, FiscalYear: "2080/81", CashPercent: 10}}))
	require.NoError(t, db.UpsertDividends(ctx, []models.MDividend{{SecurityID: 131, FiscalYear: "2080/81", CashPercent: 12, BonusPercent: 5}}))
	require.NoError(t, db.UpsertFinancials(ctx, []models.MFinancial{{SecurityID: 131, FiscalYear: "2081/82", Quarter: "Q1", EPS: 20.5}}))

	var cash float64
	require.NoError(t, db.DB.QueryRow(`SELECT cash_percent FROM dividends WHERE security_id = 131`).Scan(&cash))
	assert.Equal(t, 12.0, cash)
}

func TestJobStatusRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestStore(t)

	st := models.MJobStatus{JobName: "prices", Status: models.JobSuccess, LastRun: 10, LastSuccess: 10,
		LastRunID: "abc", TotalSuccess: 3, TodaySuccess: 1, StatsDate: "2026-10-15", Schedule: "every 2m0s"}
	require.NoError(t, db.SaveJobStatus(ctx, st))
	st.TotalFailure = 1
	st.Status = models.JobFailed
	require.NoError(t, db.SaveJobStatus(ctx, st))

	all, err := db.LoadJobStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, st, all[0])
}
