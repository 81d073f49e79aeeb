package interfaces

import (
	"context"
	"time"

	"nepse-observer/src/models"
)

// -----------------------------------------------------------------------------
// ICache is the fast key/value store holding live projections (hashes) and
// intraday series (sorted sets scored by ingestion ms).
// -----------------------------------------------------------------------------

type ICache interface {
	HSet(ctx context.Context, key, field, value string) error
	// HGet reports ok=false when the field is absent.
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	ZAdd(ctx context.Context, key string, score int64, member string) error
	// ZLast returns the highest-scored entry, or nil when the set is empty.
	ZLast(ctx context.Context, key string) (*models.MSeriesEntry, error)
	// ZRange returns all entries ordered by score ascending.
	ZRange(ctx context.Context, key string) ([]models.MSeriesEntry, error)

	ExpireAt(ctx context.Context, key string, at time.Time) error
	Ping(ctx context.Context) error
}
