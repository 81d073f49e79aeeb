package models

// MPriceQuote is one security's trading summary for a business date.
// Live rows are keyed by Symbol, history rows by (Symbol, BusinessDate).
type MPriceQuote struct {
	Symbol          string  `json:"symbol"`
	SecurityID      int64   `json:"security_id"`
	SecurityName    string  `json:"security_name"`
	BusinessDate    string  `json:"business_date"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	LastTradedPrice float64 `json:"last_traded_price"`
	PreviousClose   float64 `json:"previous_close"`
	Volume          float64 `json:"volume"`
	Value           float64 `json:"value"`
	Trades          int64   `json:"trades"`
	Week52High      float64 `json:"week52_high"`
	Week52Low       float64 `json:"week52_low"`
	Change          float64 `json:"change"`
	PercentChange   float64 `json:"percent_change"`
	UpdatedAt       int64   `json:"updated_at"` // unix ms
}

// MHistoryRecord is one end-of-day row for a symbol or an index.
type MHistoryRecord struct {
	Key           string  `json:"key"`
	BusinessDate  string  `json:"business_date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	Value         float64 `json:"value"`
	Change        float64 `json:"change"`
	PercentChange float64 `json:"percent_change"`
}
