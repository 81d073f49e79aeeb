package interfaces

import (
	"context"

	"nepse-observer/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for the durable store. Every write is an
// idempotent upsert on the entity's natural key.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize opens the connection and creates missing tables.
	Initialize() error

	// -----------------------------------------------------------------------------
	// Securities and fundamentals

	UpsertSecurity(ctx context.Context, s models.MSecurity) error
	GetSecurity(ctx context.Context, symbol string) (*models.MSecurity, error)
	// ListSecurities returns all securities, or only those of instrumentType when non-empty.
	ListSecurities(ctx context.Context, instrumentType string) ([]models.MSecurity, error)
	UpsertDividends(ctx context.Context, dividends []models.MDividend) error
	UpsertFinancials(ctx context.Context, financials []models.MFinancial) error

	// -----------------------------------------------------------------------------
	// Live prices and index

	UpsertStockPrices(ctx context.Context, quotes []models.MPriceQuote) error
	GetStockPrice(ctx context.Context, symbol string) (*models.MPriceQuote, error)
	ListStockPrices(ctx context.Context) ([]models.MPriceQuote, error)
	UpsertMarketIndex(ctx context.Context, idx models.MMarketIndex) error
	GetMarketIndex(ctx context.Context, indexID int64) (*models.MMarketIndex, error)

	// -----------------------------------------------------------------------------
	// History

	UpsertPriceHistory(ctx context.Context, records []models.MHistoryRecord) error
	ListPriceHistory(ctx context.Context, symbol string, limit int) ([]models.MHistoryRecord, error)
	// ArchiveStockPrices copies live rows of businessDate into price_history.
	ArchiveStockPrices(ctx context.Context, businessDate string) (int64, error)
	// ArchiveMarketIndex copies the current index rows of businessDate into market_index_history.
	ArchiveMarketIndex(ctx context.Context, businessDate string) (int64, error)
	// CleanupOldData removes history rows dated before cutoff (YYYY-MM-DD).
	CleanupOldData(ctx context.Context, cutoff string) (int64, error)

	// -----------------------------------------------------------------------------
	// Job status

	SaveJobStatus(ctx context.Context, status models.MJobStatus) error
	LoadJobStatuses(ctx context.Context) ([]models.MJobStatus, error)

	// Close the database connection
	Close() error
}
