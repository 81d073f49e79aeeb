package synchronizer

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"nepse-observer/src/cache"
	"nepse-observer/src/models"
)

// -----------------------------------------------------------------------------
// Read path: the live cache answers first, the durable store covers an empty
// or unreachable cache.
// -----------------------------------------------------------------------------

func (s *Synchronizer) cachedJSON(ctx context.Context, key, field string, dst any) bool {
	if s.Cache == nil {
		return false
	}
	raw, ok, err := s.Cache.HGet(ctx, key, field)
	if err != nil {
		s.Logger.Warning("Cache read %s/%s failed, using store: %v", key, field, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.Logger.Warning("Corrupt cache entry %s/%s: %v", key, field, err)
		return false
	}
	return true
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) ReadMarketIndex(ctx context.Context) (*models.MMarketIndex, error) {
	var idx models.MMarketIndex
	if s.cachedJSON(ctx, cache.LiveMarketIndexKey(), strconv.FormatInt(s.MainIndexID, 10), &idx) {
		return &idx, nil
	}
	return s.DB.GetMarketIndex(ctx, s.MainIndexID)
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) ReadMarketStatus(ctx context.Context) (*models.MMarketStatus, error) {
	var st models.MMarketStatus
	if s.cachedJSON(ctx, cache.LiveMarketStatusKey(), cache.StatusField, &st) {
		return &st, nil
	}

	idx, err := s.DB.GetMarketIndex(ctx, s.MainIndexID)
	if err != nil {
		return nil, err
	}
	return &models.MMarketStatus{
		Status:       idx.Status,
		StatusTime:   idx.StatusTime,
		BusinessDate: idx.BusinessDate,
		UpdatedAt:    idx.UpdatedAt,
	}, nil
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) ReadPrice(ctx context.Context, symbol string) (*models.MPriceQuote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	var q models.MPriceQuote
	if s.cachedJSON(ctx, cache.LiveStockPricesKey(), symbol, &q) {
		return &q, nil
	}
	return s.DB.GetStockPrice(ctx, symbol)
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) ReadPrices(ctx context.Context) ([]models.MPriceQuote, error) {
	if s.Cache != nil {
		all, err := s.Cache.HGetAll(ctx, cache.LiveStockPricesKey())
		if err != nil {
			s.Logger.Warning("Cache read %s failed, using store: %v", cache.LiveStockPricesKey(), err)
		} else if len(all) > 0 {
			out := make([]models.MPriceQuote, 0, len(all))
			for sym, raw := range all {
				var q models.MPriceQuote
				if err := json.Unmarshal([]byte(raw), &q); err != nil {
					s.Logger.Warning("Corrupt cached quote %s: %v", sym, err)
					continue
				}
				out = append(out, q)
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
			return out, nil
		}
	}
	return s.DB.ListStockPrices(ctx)
}

// -----------------------------------------------------------------------------

// ReadIntradayIndex returns the cached intraday series. The series lives only
// in the cache, so an unavailable cache yields an empty series.
func (s *Synchronizer) ReadIntradayIndex(ctx context.Context, businessDate string) ([]models.MIndexSnapshot, error) {
	out := []models.MIndexSnapshot{}
	if s.Cache == nil {
		return out, nil
	}
	entries, err := s.Cache.ZRange(ctx, cache.IntradayIndexKey(businessDate))
	if err != nil {
		s.Logger.Warning("Cache read intraday %s failed: %v", businessDate, err)
		return out, nil
	}
	for _, e := range entries {
		var snap models.MIndexSnapshot
		if err := json.Unmarshal([]byte(e.Member), &snap); err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *Synchronizer) ReadSecurity(ctx context.Context, symbol string) (*models.MSecurity, error) {
	return s.DB.GetSecurity(ctx, strings.ToUpper(strings.TrimSpace(symbol)))
}

// ReadPriceHistory returns the newest limit daily rows of symbol, newest
// first. A non-positive limit uses the store's default.
func (s *Synchronizer) ReadPriceHistory(ctx context.Context, symbol string, limit int) ([]models.MHistoryRecord, error) {
	rows, err := s.DB.ListPriceHistory(ctx, strings.ToUpper(strings.TrimSpace(symbol)), limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []models.MHistoryRecord{}
	}
	return rows, nil
}
