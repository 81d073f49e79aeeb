package models

// Instrument types
const (
	InstrumentEquity     = "equity"
	InstrumentDebenture  = "debenture"
	InstrumentMutualFund = "mutual_fund"
	InstrumentBond       = "bond"
	InstrumentPreference = "preference"
	InstrumentPromoter   = "promoter"
	InstrumentUnknown    = "unknown"
)

// Security statuses
const (
	SecurityActive    = "active"
	SecuritySuspended = "suspended"
	SecurityDelisted  = "delisted"
)

// MSecurity is a listed instrument. Rows are created on the first detail
// scrape and updated in place afterwards.
type MSecurity struct {
	ID             int64   `json:"id"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Sector         string  `json:"sector"`
	InstrumentType string  `json:"instrument_type"`
	Status         string  `json:"status"`
	Email          string  `json:"email,omitempty"`
	Website        string  `json:"website,omitempty"`
	ListedShares   float64 `json:"listed_shares"`
	PaidUpValue    float64 `json:"paid_up_value"`
	UpdatedAt      int64   `json:"updated_at"`
}

// IsKnownInstrumentType reports whether t is one of the supported instrument types.
func IsKnownInstrumentType(t string) bool {
	switch t {
	case InstrumentEquity, InstrumentDebenture, InstrumentMutualFund,
		InstrumentBond, InstrumentPreference, InstrumentPromoter, InstrumentUnknown:
		return true
	}
	return false
}

// MCompanyDetail is everything read from one company detail page.
type MCompanyDetail struct {
	Security   MSecurity    `json:"security"`
	Dividends  []MDividend  `json:"dividends"`
	Financials []MFinancial `json:"financials"`
}
