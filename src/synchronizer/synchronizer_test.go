package synchronizer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"nepse-observer/src/cache"
	"nepse-observer/src/helpers"
	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/storage"
	"nepse-observer/src/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// downCache fails every call, as an unreachable Redis would.
type downCache struct{ calls int }

var errDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (c *downCache) HSet(context.Context, string, string, string) error { c.calls++; return errDown }
func (c *downCache) HGet(context.Context, string, string) (string, bool, error) {
	c.calls++
	return "", false, errDown
}
func (c *downCache) HGetAll(context.Context, string) (map[string]string, error) {
	c.calls++
	return nil, errDown
}
func (c *downCache) ZAdd(context.Context, string, int64, string) error { c.calls++; return errDown }
func (c *downCache) ZLast(context.Context, string) (*models.MSeriesEntry, error) {
	c.calls++
	return nil, errDown
}
func (c *downCache) ZRange(context.Context, string) ([]models.MSeriesEntry, error) {
	c.calls++
	return nil, errDown
}
func (c *downCache) ExpireAt(context.Context, string, time.Time) error { c.calls++; return errDown }
func (c *downCache) Ping(context.Context) error                         { return errDown }

var _ interfaces.ICache = (*downCache)(nil)

// brokenStore fails market index writes.
type brokenStore struct{ interfaces.IDatabase }

func (brokenStore) UpsertMarketIndex(context.Context, models.MMarketIndex) error {
	return errors.New("disk full")
}

// -----------------------------------------------------------------------------

type fixture struct {
	sync  *Synchronizer
	db    *storage.SQLStore
	cache *cache.MemoryCache
	clock *utils.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &models.MConfig{Storage: models.MStorageConfig{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "sync.db")}}
	log := logger.NewLogger(nil, "SyncTest")
	db := storage.NewSQLiteDB(cfg, log)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })

	clock := utils.NewManualClock(time.Date(2026, 10, 15, 11, 15, 0, 0, utils.NPT))
	c := cache.NewMemoryCache()
	return &fixture{
		sync:  NewSynchronizer(db, c, clock, 58, log),
		db:    db,
		cache: c,
		clock: clock,
	}
}

func index(value float64, statusTime string) models.MMarketIndex {
	return models.MMarketIndex{
		IndexID: 58, IndexName: "NEPSE Index", Value: value, Change: 4.2, PercentChange: 0.16,
		TradedShares: 1_500_000, Turnover: 3.1e9, Status: models.MarketOpen, StatusTime: statusTime,
	}
}

func (f *fixture) series(t *testing.T) []models.MIndexSnapshot {
	t.Helper()
	out, err := f.sync.ReadIntradayIndex(context.Background(), "2026-10-15")
	require.NoError(t, err)
	return out
}

// -----------------------------------------------------------------------------

func TestZeroValueIsRejectedWithoutMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.sync.SyncMarketIndex(ctx, index(0, "11:15 AM"))
	assert.True(t, helpers.IsValidation(err))
	assert.Equal(t, 1, report.Rejected)

	_, ok, _ := f.cache.HGet(ctx, cache.LiveMarketIndexKey(), "58")
	assert.False(t, ok)
	assert.Empty(t, f.series(t))
	_, err = f.db.GetMarketIndex(ctx, 58)
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestAcceptedIndexIsLiveSeriesAndDurable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var pushed []*models.MLatestData
	f.sync.OnUpdate(func(u *models.MLatestData) { pushed = append(pushed, u) })

	report, err := f.sync.SyncMarketIndex(ctx, index(2650.5, "11:15 AM"))
	require.NoError(t, err)
	assert.Equal(t, models.MSyncReport{Accepted: 1, Appended: 1}, report)

	live, err := f.sync.ReadMarketIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2650.5, live.Value)
	assert.Equal(t, "2026-10-15", live.BusinessDate)
	assert.Equal(t, f.clock.Now().UnixMilli(), live.UpdatedAt)

	status, err := f.sync.ReadMarketStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.MarketOpen, status.Status)

	stored, err := f.db.GetMarketIndex(ctx, 58)
	require.NoError(t, err)
	assert.Equal(t, 2650.5, stored.Value)

	require.Len(t, f.series(t), 1)
	require.Len(t, pushed, 1)
	assert.Equal(t, 2650.5, pushed[0].Index.Value)
}

func TestRepeatedSnapshotIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sync.SyncMarketIndex(ctx, index(2650.5, "11:15 AM"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	report, err := f.sync.SyncMarketIndex(ctx, index(2650.5, "11:15 AM"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduped)
	assert.Len(t, f.series(t), 1)

	// live projection still refreshed
	live, err := f.sync.ReadMarketIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().UnixMilli(), live.UpdatedAt)

	f.clock.Advance(time.Minute)
	_, err = f.sync.SyncMarketIndex(ctx, index(2652, "11:17 AM"))
	require.NoError(t, err)
	assert.Len(t, f.series(t), 2)
}

func TestFutureStatusTimeIsNotAppended(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// now is 11:15, the site claims 3:00 PM (yesterday's closing banner)
	report, err := f.sync.SyncMarketIndex(ctx, index(2640, "3:00 PM"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)
	assert.Empty(t, f.series(t))

	live, err := f.sync.ReadMarketIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2640.0, live.Value)

	stored, err := f.db.GetMarketIndex(ctx, 58)
	require.NoError(t, err)
	assert.Equal(t, 2640.0, stored.Value)
}

func TestCacheOutageFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	down := &downCache{}
	f.sync.Cache = down

	report, err := f.sync.SyncMarketIndex(ctx, index(2650.5, "11:15 AM"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Appended)
	assert.Equal(t, 1, down.calls, "cache is skipped after the first failure")

	live, err := f.sync.ReadMarketIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2650.5, live.Value)

	intraday, err := f.sync.ReadIntradayIndex(ctx, "2026-10-15")
	require.NoError(t, err)
	assert.Empty(t, intraday)
}

func TestStoreFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sync.DB = brokenStore{IDatabase: f.db}

	_, err := f.sync.SyncMarketIndex(ctx, index(2650.5, "11:15 AM"))
	require.Error(t, err)
	assert.True(t, helpers.IsStore(err))
}

func TestNoCacheConfigured(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sync.Cache = nil

	_, err := f.sync.SyncMarketIndex(ctx, index(2650.5, "11:15 AM"))
	require.NoError(t, err)

	status, err := f.sync.ReadMarketStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "11:15 AM", status.StatusTime)
}

// -----------------------------------------------------------------------------

func TestSyncStockPrices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	quotes := []models.MPriceQuote{
		{Symbol: "nabil", SecurityID: 131, Close: 512, LastTradedPrice: 512, Volume: 1000},
		{Symbol: "NICA", SecurityID: 132, Close: 0, LastTradedPrice: 0},
		{Symbol: "", Close: 100},
	}
	report, err := f.sync.SyncStockPrices(ctx, quotes)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, 1, report.Appended)

	q, err := f.sync.ReadPrice(ctx, "NABIL")
	require.NoError(t, err)
	assert.Equal(t, 512.0, q.Close)
	assert.Equal(t, "2026-10-15", q.BusinessDate)

	_, err = f.db.GetStockPrice(ctx, "NICA")
	assert.ErrorIs(t, err, helpers.ErrNotFound)

	// same snapshot again: live upsert, no new series entry
	report, err = f.sync.SyncStockPrices(ctx, quotes[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduped)

	all, err := f.sync.ReadPrices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	rows, err := f.db.ListStockPrices(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSyncStockPricesAllRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.sync.SyncStockPrices(context.Background(), []models.MPriceQuote{{Symbol: "NABIL"}})
	assert.True(t, helpers.IsValidation(err))

	report, err := f.sync.SyncStockPrices(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Accepted)
}

func TestReadPricesFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.UpsertStockPrices(ctx, []models.MPriceQuote{{Symbol: "NABIL", Close: 500, BusinessDate: "2026-10-14"}}))

	all, err := f.sync.ReadPrices(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 500.0, all[0].Close)
}

func TestSyncCompanyDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.sync.SyncCompanyDetail(ctx, models.MCompanyDetail{Security: models.MSecurity{Symbol: "NABIL"}})
	assert.True(t, helpers.IsValidation(err))

	detail := models.MCompanyDetail{
		Security:   models.MSecurity{ID: 131, Symbol: "nabil", Name: "Nabil Bank Limited", InstrumentType: "weird"},
		Dividends:  []models.MDividend{{FiscalYear: "2080/81", CashPercent: 10}},
		Financials: []models.MFinancial{{FiscalYear: "2081/82", Quarter: "Q1", EPS: 22}},
	}
	require.NoError(t, f.sync.SyncCompanyDetail(ctx, detail))

	sec, err := f.sync.ReadSecurity(ctx, " nabil ")
	require.NoError(t, err)
	assert.Equal(t, models.InstrumentUnknown, sec.InstrumentType)
	assert.NotZero(t, sec.UpdatedAt)

	_, err = f.sync.ReadSecurity(ctx, "NICA")
	assert.ErrorIs(t, err, helpers.ErrNotFound)
}

func TestSyncHistoryFiltersInvalidRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.sync.SyncHistory(ctx, []models.MHistoryRecord{
		{Key: "NABIL", BusinessDate: "2026-10-14", Close: 505},
		{Key: "NABIL", BusinessDate: "2026-10-13", Close: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Rejected)

	hist, err := f.sync.ReadPriceHistory(ctx, "nabil", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 505.0, hist[0].Close)

	hist, err = f.sync.ReadPriceHistory(ctx, "NICA", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
	assert.NotNil(t, hist)
}
