package interfaces

import (
	"context"

	"nepse-observer/src/models"
)

// -----------------------------------------------------------------------------
// IMarketExtractor pulls data from the exchange website. Results are already
// normalised into canonical models.
// -----------------------------------------------------------------------------

type IMarketExtractor interface {
	FetchMarketIndex(ctx context.Context) (*models.MMarketIndex, error)
	FetchTodayPrices(ctx context.Context) ([]models.MPriceQuote, error)
	FetchCompanyDetail(ctx context.Context, securityID int64, symbol string) (*models.MCompanyDetail, error)
	FetchHistory(ctx context.Context, securityID int64, symbol string) ([]models.MHistoryRecord, error)
}

// -----------------------------------------------------------------------------
// ISessionReleaser is the part of the browser session the scheduler needs at
// shutdown.
// -----------------------------------------------------------------------------

type ISessionReleaser interface {
	Release()
}
