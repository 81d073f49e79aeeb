package models

// MDividend is keyed by (SecurityID, FiscalYear).
type MDividend struct {
	SecurityID    int64   `json:"security_id"`
	FiscalYear    string  `json:"fiscal_year"`
	CashPercent   float64 `json:"cash_percent"`
	BonusPercent  float64 `json:"bonus_percent"`
	RightShare    string  `json:"right_share,omitempty"`
	BookCloseDate string  `json:"book_close_date,omitempty"`
}

// MFinancial is keyed by (SecurityID, FiscalYear, Quarter).
type MFinancial struct {
	SecurityID         int64   `json:"security_id"`
	FiscalYear         string  `json:"fiscal_year"`
	Quarter            string  `json:"quarter"`
	PaidUpCapital      float64 `json:"paid_up_capital"`
	NetProfit          float64 `json:"net_profit"`
	EPS                float64 `json:"eps"`
	NetWorthPerShare   float64 `json:"net_worth_per_share"`
	PriceEarningsRatio float64 `json:"pe_ratio"`
}
