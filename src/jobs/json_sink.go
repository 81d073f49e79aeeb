package jobs

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"nepse-observer/src/interfaces"
	"nepse-observer/src/models"
)

// JSONSink writes extraction results as JSON lines instead of syncing them.
// Used by dry runs; nothing is validated or deduplicated.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ interfaces.ISink = (*JSONSink)(nil)

type sinkRecord struct {
	Kind        string `json:"kind"`
	Count       int    `json:"count"`
	ExtractedAt int64  `json:"extracted_at"`
	Data        any    `json:"data"`
}

func NewJSONSink(w io.Writer) *JSONSink {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONSink{enc: enc}
}

func (s *JSONSink) write(kind string, count int, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(sinkRecord{Kind: kind, Count: count, ExtractedAt: time.Now().UnixMilli(), Data: data})
}

// -----------------------------------------------------------------------------

func (s *JSONSink) SyncMarketIndex(_ context.Context, idx models.MMarketIndex) (models.MSyncReport, error) {
	return models.MSyncReport{Accepted: 1}, s.write("market_index", 1, idx)
}

func (s *JSONSink) SyncStockPrices(_ context.Context, quotes []models.MPriceQuote) (models.MSyncReport, error) {
	return models.MSyncReport{Accepted: len(quotes)}, s.write("stock_prices", len(quotes), quotes)
}

func (s *JSONSink) SyncCompanyDetail(_ context.Context, detail models.MCompanyDetail) error {
	return s.write("company_detail", 1, detail)
}

func (s *JSONSink) SyncHistory(_ context.Context, records []models.MHistoryRecord) (models.MSyncReport, error) {
	return models.MSyncReport{Accepted: len(records)}, s.write("price_history", len(records), records)
}
