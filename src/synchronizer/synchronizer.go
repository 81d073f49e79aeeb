package synchronizer

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"

	"nepse-observer/src/cache"
	"nepse-observer/src/helpers"
	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/utils"
)

// -----------------------------------------------------------------------------

// Synchronizer reconciles extraction results into the fast cache and the
// durable store. Cache failures degrade to store-only operation; store
// failures are returned to the caller.
type Synchronizer struct {
	DB          interfaces.IDatabase
	Cache       interfaces.ICache // nil runs store-only
	Clock       utils.Clock
	Logger      *logger.Logger
	MainIndexID int64

	seriesMu  sync.Mutex // dedup read + append must not interleave
	listeners []func(*models.MLatestData)
}

// -----------------------------------------------------------------------------

func NewSynchronizer(db interfaces.IDatabase, c interfaces.ICache, clock utils.Clock, mainIndexID int64, log *logger.Logger) *Synchronizer {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Synchronizer{
		DB:          db,
		Cache:       c,
		Clock:       clock,
		Logger:      log,
		MainIndexID: mainIndexID,
	}
}

// -----------------------------------------------------------------------------

// OnUpdate registers a listener called after every accepted live write.
// Not safe to call concurrently with Sync calls.
func (s *Synchronizer) OnUpdate(fn func(*models.MLatestData)) {
	s.listeners = append(s.listeners, fn)
}

func (s *Synchronizer) publish(update *models.MLatestData) {
	for _, fn := range s.listeners {
		fn(update)
	}
}

// -----------------------------------------------------------------------------
// cacheWriter scopes cache use to one sync call. After the first failure the
// remaining cache operations of that call are skipped.
// -----------------------------------------------------------------------------

type cacheWriter struct {
	c      interfaces.ICache
	log    *logger.Logger
	failed bool
}

func (s *Synchronizer) cacheWriter() *cacheWriter {
	return &cacheWriter{c: s.Cache, log: s.Logger, failed: s.Cache == nil}
}

func (w *cacheWriter) fail(op string, err error) {
	w.failed = true
	w.log.Warning("Cache degraded, continuing store-only: %v", helpers.NewCacheError(op, err))
}

func (w *cacheWriter) hsetJSON(ctx context.Context, key, field string, v any) {
	if w.failed {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		w.log.Error("encode %s/%s: %v", key, field, err)
		return
	}
	if err := w.c.HSet(ctx, key, field, string(raw)); err != nil {
		w.fail("hset "+key, err)
	}
}

// -----------------------------------------------------------------------------
// Series append
// -----------------------------------------------------------------------------

type appendOutcome int

const (
	outcomeSkipped appendOutcome = iota
	outcomeAppended
	outcomeDeduped
	outcomeStale
)

// appendSeries appends member to key unless the newest entry is equivalent
// per same() or the observation is stale. Expiry is moved to the end of the
// market-local day.
func (s *Synchronizer) appendSeries(ctx context.Context, w *cacheWriter, key string, member []byte, stale bool, same func(last string) bool) appendOutcome {
	if w.failed {
		return outcomeSkipped
	}

	s.seriesMu.Lock()
	defer s.seriesMu.Unlock()

	last, err := w.c.ZLast(ctx, key)
	if err != nil {
		w.fail("zlast "+key, err)
		return outcomeSkipped
	}
	if last != nil && same(last.Member) {
		return outcomeDeduped
	}
	if stale {
		return outcomeStale
	}

	now := s.Clock.Now()
	if err := w.c.ZAdd(ctx, key, now.UnixMilli(), string(member)); err != nil {
		w.fail("zadd "+key, err)
		return outcomeSkipped
	}
	if err := w.c.ExpireAt(ctx, key, utils.EndOfDay(now)); err != nil {
		w.fail("expireat "+key, err)
	}
	return outcomeAppended
}

func tally(r *models.MSyncReport, o appendOutcome) {
	switch o {
	case outcomeAppended:
		r.Appended++
	case outcomeDeduped:
		r.Deduped++
	case outcomeStale:
		r.Stale++
	}
}

// -----------------------------------------------------------------------------
// Market index
// -----------------------------------------------------------------------------

// SyncMarketIndex validates, caches, appends to the intraday series and
// persists one index observation.
func (s *Synchronizer) SyncMarketIndex(ctx context.Context, idx models.MMarketIndex) (models.MSyncReport, error) {
	var report models.MSyncReport

	if !(idx.Value > 0) || math.IsInf(idx.Value, 0) {
		report.Rejected = 1
		return report, helpers.NewValidationError("market index value %v is not positive", idx.Value)
	}

	now := s.Clock.Now()
	idx.UpdatedAt = now.UnixMilli()
	if idx.BusinessDate == "" {
		idx.BusinessDate = utils.BusinessDate(now)
	}
	if idx.IndexID == 0 {
		idx.IndexID = s.MainIndexID
	}
	if idx.Status == "" {
		idx.Status = models.MarketUnknown
	}
	report.Accepted = 1

	// live projection
	w := s.cacheWriter()
	w.hsetJSON(ctx, cache.LiveMarketIndexKey(), strconv.FormatInt(idx.IndexID, 10), idx)
	w.hsetJSON(ctx, cache.LiveMarketStatusKey(), cache.StatusField, models.MMarketStatus{
		Status:       idx.Status,
		StatusTime:   idx.StatusTime,
		BusinessDate: idx.BusinessDate,
		UpdatedAt:    idx.UpdatedAt,
	})

	// intraday series
	tally(&report, s.appendIndexSnapshot(ctx, w, idx, now.UnixMilli()))

	// durable
	if err := s.DB.UpsertMarketIndex(ctx, idx); err != nil {
		return report, helpers.NewStoreError("upsert market index", err)
	}

	s.publish(&models.MLatestData{Type: "UPDATE", Index: &idx, Timestamp: idx.UpdatedAt})
	return report, nil
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) appendIndexSnapshot(ctx context.Context, w *cacheWriter, idx models.MMarketIndex, ts int64) appendOutcome {
	snap := models.MIndexSnapshot{
		Value:         idx.Value,
		Change:        idx.Change,
		PercentChange: idx.PercentChange,
		Turnover:      idx.Turnover,
		TradedShares:  idx.TradedShares,
		Status:        idx.Status,
		StatusTime:    idx.StatusTime,
		Timestamp:     ts,
	}

	stale := false
	if snap.StatusTime != "" {
		ahead, err := utils.IsStatusTimeAhead(snap.StatusTime, s.Clock.Now())
		if err != nil {
			s.Logger.Warning("Unparseable status time %q: %v", snap.StatusTime, err)
		}
		stale = ahead
	}

	member, err := json.Marshal(snap)
	if err != nil {
		s.Logger.Error("encode index snapshot: %v", err)
		return outcomeSkipped
	}
	outcome := s.appendSeries(ctx, w, cache.IntradayIndexKey(idx.BusinessDate), member, stale, func(last string) bool {
		return sameIndexSnapshot(last, snap)
	})
	if outcome == outcomeStale {
		s.Logger.Info("Skipping intraday append: status time %s is ahead of now", snap.StatusTime)
	}
	return outcome
}

// -----------------------------------------------------------------------------

func sameIndexSnapshot(raw string, snap models.MIndexSnapshot) bool {
	var last models.MIndexSnapshot
	if err := json.Unmarshal([]byte(raw), &last); err != nil {
		return false
	}
	return last.Value == snap.Value &&
		last.TradedShares == snap.TradedShares &&
		strings.EqualFold(strings.TrimSpace(last.StatusTime), strings.TrimSpace(snap.StatusTime))
}

// -----------------------------------------------------------------------------
// Stock prices
// -----------------------------------------------------------------------------

// SyncStockPrices accepts every quote with a positive close and rejects the
// rest. All-rejected input is a validation error.
func (s *Synchronizer) SyncStockPrices(ctx context.Context, quotes []models.MPriceQuote) (models.MSyncReport, error) {
	var report models.MSyncReport
	now := s.Clock.Now()

	valid := make([]models.MPriceQuote, 0, len(quotes))
	for _, q := range quotes {
		q.Symbol = strings.ToUpper(strings.TrimSpace(q.Symbol))
		if q.Symbol == "" || !(q.Close > 0) {
			report.Rejected++
			s.Logger.Debug("Rejecting quote %q with close %v", q.Symbol, q.Close)
			continue
		}
		q.UpdatedAt = now.UnixMilli()
		if q.BusinessDate == "" {
			q.BusinessDate = utils.BusinessDate(now)
		}
		valid = append(valid, q)
	}
	report.Accepted = len(valid)

	if len(valid) == 0 {
		if len(quotes) > 0 {
			return report, helpers.NewValidationError("all %d quotes rejected", len(quotes))
		}
		return report, nil
	}

	w := s.cacheWriter()
	for _, q := range valid {
		w.hsetJSON(ctx, cache.LiveStockPricesKey(), q.Symbol, q)
		tally(&report, s.appendPriceSnapshot(ctx, w, q, now.UnixMilli()))
	}

	if err := s.DB.UpsertStockPrices(ctx, valid); err != nil {
		return report, helpers.NewStoreError("upsert stock prices", err)
	}

	s.publish(&models.MLatestData{Type: "UPDATE", Prices: valid, Timestamp: now.UnixMilli()})
	return report, nil
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) appendPriceSnapshot(ctx context.Context, w *cacheWriter, q models.MPriceQuote, ts int64) appendOutcome {
	snap := models.MPriceSnapshot{
		LastTradedPrice: q.LastTradedPrice,
		Close:           q.Close,
		Volume:          q.Volume,
		PercentChange:   q.PercentChange,
		Timestamp:       ts,
	}
	member, err := json.Marshal(snap)
	if err != nil {
		return outcomeSkipped
	}
	return s.appendSeries(ctx, w, cache.IntradayPriceKey(q.BusinessDate, q.Symbol), member, false, func(last string) bool {
		var prev models.MPriceSnapshot
		if err := json.Unmarshal([]byte(last), &prev); err != nil {
			return false
		}
		return prev.LastTradedPrice == snap.LastTradedPrice && prev.Close == snap.Close && prev.Volume == snap.Volume
	})
}

// -----------------------------------------------------------------------------
// Company details and history
// -----------------------------------------------------------------------------

// SyncCompanyDetail upserts the security and its fundamentals. Detail data
// is not cached.
func (s *Synchronizer) SyncCompanyDetail(ctx context.Context, detail models.MCompanyDetail) error {
	sec := detail.Security
	sec.Symbol = strings.ToUpper(strings.TrimSpace(sec.Symbol))
	if sec.ID <= 0 || sec.Symbol == "" {
		return helpers.NewValidationError("company detail needs id and symbol, got %d/%q", sec.ID, sec.Symbol)
	}
	if !models.IsKnownInstrumentType(sec.InstrumentType) {
		sec.InstrumentType = models.InstrumentUnknown
	}
	sec.UpdatedAt = s.Clock.Now().UnixMilli()

	if err := s.DB.UpsertSecurity(ctx, sec); err != nil {
		return helpers.NewStoreError("upsert security", err)
	}

	for i := range detail.Dividends {
		detail.Dividends[i].SecurityID = sec.ID
	}
	if err := s.DB.UpsertDividends(ctx, detail.Dividends); err != nil {
		return helpers.NewStoreError("upsert dividends", err)
	}

	for i := range detail.Financials {
		detail.Financials[i].SecurityID = sec.ID
	}
	if err := s.DB.UpsertFinancials(ctx, detail.Financials); err != nil {
		return helpers.NewStoreError("upsert financials", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) SyncHistory(ctx context.Context, records []models.MHistoryRecord) (models.MSyncReport, error) {
	var report models.MSyncReport
	valid := make([]models.MHistoryRecord, 0, len(records))
	for _, r := range records {
		if r.Key == "" || r.BusinessDate == "" || !(r.Close > 0) {
			report.Rejected++
			continue
		}
		valid = append(valid, r)
	}
	report.Accepted = len(valid)

	if err := s.DB.UpsertPriceHistory(ctx, valid); err != nil {
		return report, helpers.NewStoreError("upsert price history", err)
	}
	return report, nil
}
