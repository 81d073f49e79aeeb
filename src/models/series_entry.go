package models

// MSeriesEntry is one element of an intraday series. Member is the stored
// payload and Timestamp the ingestion time in unix ms.
type MSeriesEntry struct {
	Member    string `json:"member"`
	Timestamp int64  `json:"timestamp"`
}

// MIndexSnapshot is the payload appended to the index intraday series.
type MIndexSnapshot struct {
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
	Turnover      float64 `json:"turnover"`
	TradedShares  float64 `json:"traded_shares"`
	Status        string  `json:"status"`
	StatusTime    string  `json:"status_time"`
	Timestamp     int64   `json:"ts"`
}

// MPriceSnapshot is the payload appended to a symbol's intraday series.
type MPriceSnapshot struct {
	LastTradedPrice float64 `json:"ltp"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	PercentChange   float64 `json:"percent_change"`
	Timestamp       int64   `json:"ts"`
}

// MSyncReport summarises what a synchronizer call did.
type MSyncReport struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Appended int `json:"appended"`
	Deduped  int `json:"deduped"`
	Stale    int `json:"stale"`
}
