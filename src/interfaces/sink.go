package interfaces

import (
	"context"

	"nepse-observer/src/models"
)

// -----------------------------------------------------------------------------
// ISink receives normalised extraction results and makes them visible to
// readers. Implementations decide validation, dedup and persistence.
// -----------------------------------------------------------------------------

type ISink interface {
	SyncMarketIndex(ctx context.Context, idx models.MMarketIndex) (models.MSyncReport, error)
	SyncStockPrices(ctx context.Context, quotes []models.MPriceQuote) (models.MSyncReport, error)
	SyncCompanyDetail(ctx context.Context, detail models.MCompanyDetail) error
	SyncHistory(ctx context.Context, records []models.MHistoryRecord) (models.MSyncReport, error)
}

// -----------------------------------------------------------------------------
// IMarketReader is the read side: cache first, store as fallback.
// -----------------------------------------------------------------------------

type IMarketReader interface {
	ReadMarketIndex(ctx context.Context) (*models.MMarketIndex, error)
	ReadMarketStatus(ctx context.Context) (*models.MMarketStatus, error)
	ReadPrice(ctx context.Context, symbol string) (*models.MPriceQuote, error)
	ReadPrices(ctx context.Context) ([]models.MPriceQuote, error)
	ReadIntradayIndex(ctx context.Context, businessDate string) ([]models.MIndexSnapshot, error)
	// Securities and daily history only live in the store.
	ReadSecurity(ctx context.Context, symbol string) (*models.MSecurity, error)
	ReadPriceHistory(ctx context.Context, symbol string, limit int) ([]models.MHistoryRecord, error)
}
