package cache

import (
	"strings"
)

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Live projections -------------------------------------------------------

// LiveStockPricesKey is a hash of symbol -> latest quote JSON.
func LiveStockPricesKey() string {
	return formatKey("live", "stock_prices")
}

// LiveMarketIndexKey is a hash of index id -> latest index JSON.
func LiveMarketIndexKey() string {
	return formatKey("live", "market_index")
}

// LiveMarketStatusKey is a hash holding the market status under StatusField.
func LiveMarketStatusKey() string {
	return formatKey("live", "market_status")
}

// StatusField is the single field of LiveMarketStatusKey.
const StatusField = "current"

// --- Intraday series --------------------------------------------------------

// IntradayIndexKey is the sorted set of index snapshots for a business date.
func IntradayIndexKey(businessDate string) string {
	return formatKey("intraday", "market_index", businessDate)
}

// IntradayPriceKey is the sorted set of a symbol's snapshots for a business date.
func IntradayPriceKey(businessDate, symbol string) string {
	return formatKey("intraday", "stock_price", businessDate, strings.ToUpper(symbol))
}
