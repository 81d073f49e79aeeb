package server

import (
	"sort"
	"strings"

	"nepse-observer/src/models"
)

// -----------------------------------------------------------------------------

// filterUpdate narrows an update to a client's symbols. Nil means the client
// has nothing to receive.
func filterUpdate(update *models.MLatestData, symbols []string) *models.MLatestData {
	if len(symbols) == 0 {
		return update
	}

	out := *update
	out.Prices = nil
	for _, q := range update.Prices {
		if contains(symbols, q.Symbol) {
			out.Prices = append(out.Prices, q)
		}
	}
	if out.Index == nil && len(out.Prices) == 0 && len(out.Jobs) == 0 {
		return nil
	}
	return &out
}

// -----------------------------------------------------------------------------

func sortedQuotes(prices map[string]models.MPriceQuote, symbols []string) []models.MPriceQuote {
	out := make([]models.MPriceQuote, 0, len(prices))
	for sym, q := range prices {
		if len(symbols) > 0 && !contains(symbols, sym) {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// -----------------------------------------------------------------------------

func snapshotOf(idx models.MMarketIndex, ts int64) models.MIndexSnapshot {
	if idx.UpdatedAt > 0 {
		ts = idx.UpdatedAt
	}
	return models.MIndexSnapshot{
		Value:         idx.Value,
		Change:        idx.Change,
		PercentChange: idx.PercentChange,
		Turnover:      idx.Turnover,
		TradedShares:  idx.TradedShares,
		Status:        idx.Status,
		StatusTime:    idx.StatusTime,
		Timestamp:     ts,
	}
}

// -----------------------------------------------------------------------------

func upsertJob(jobs []models.MJobStatus, st models.MJobStatus) []models.MJobStatus {
	for i := range jobs {
		if jobs[i].JobName == st.JobName {
			jobs[i] = st
			return jobs
		}
	}
	jobs = append(jobs, st)
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].JobName < jobs[j].JobName })
	return jobs
}

// -----------------------------------------------------------------------------

func normalizeSymbols(symbols []string) []string {
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// -----------------------------------------------------------------------------

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
