package models

// Market statuses
const (
	MarketOpen    = "OPEN"
	MarketClosed  = "CLOSED"
	MarketPreOpen = "PRE_OPEN"
	MarketUnknown = "UNKNOWN"
)

// MMarketIndex is the current value of an index plus the market status
// reported alongside it. StatusTime is the site's human readable clock,
// e.g. "11:15 AM".
type MMarketIndex struct {
	IndexID       int64   `json:"index_id"`
	IndexName     string  `json:"index_name"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PreviousClose float64 `json:"previous_close"`
	Turnover      float64 `json:"turnover"`
	TradedShares  float64 `json:"traded_shares"`
	Transactions  int64   `json:"transactions"`
	Advanced      int     `json:"advanced"`
	Declined      int     `json:"declined"`
	Unchanged     int     `json:"unchanged"`
	Status        string  `json:"status"`
	StatusTime    string  `json:"status_time"`
	BusinessDate  string  `json:"business_date"`
	UpdatedAt     int64   `json:"updated_at"` // unix ms
}

// MMarketStatus is the live projection of the market's trading state.
type MMarketStatus struct {
	Status       string `json:"status"`
	StatusTime   string `json:"status_time"`
	BusinessDate string `json:"business_date"`
	UpdatedAt    int64  `json:"updated_at"`
}
