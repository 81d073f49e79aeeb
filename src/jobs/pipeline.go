package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nepse-observer/src/helpers"
	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/utils"
)

// Pipeline wires extraction into a sink. Each Run method is one job body and
// returns a one-line summary for the job status.
type Pipeline struct {
	Extractor   interfaces.IMarketExtractor
	Sink        interfaces.ISink
	DB          interfaces.IDatabase // target lists, archive and retention
	Clock       utils.Clock
	Logger      *logger.Logger
	MainIndexID int64

	// Symbols restricts per-security jobs; empty means every listed symbol.
	Symbols       []string
	RetentionDays int
}

// target is one security a per-security job visits.
type target struct {
	ID     int64
	Symbol string
}

// -----------------------------------------------------------------------------

func NewPipeline(ext interfaces.IMarketExtractor, sink interfaces.ISink, db interfaces.IDatabase, clock utils.Clock, log *logger.Logger) *Pipeline {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Pipeline{Extractor: ext, Sink: sink, DB: db, Clock: clock, Logger: log}
}

// -----------------------------------------------------------------------------
// Live data
// -----------------------------------------------------------------------------

func (p *Pipeline) RunIndex(ctx context.Context) (string, error) {
	idx, err := p.Extractor.FetchMarketIndex(ctx)
	if err != nil {
		return "", err
	}
	report, err := p.Sink.SyncMarketIndex(ctx, *idx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("index %.2f %s %s, appended %d, deduped %d, stale %d",
		idx.Value, idx.Status, idx.StatusTime, report.Appended, report.Deduped, report.Stale), nil
}

func (p *Pipeline) RunPrices(ctx context.Context) (string, error) {
	quotes, err := p.Extractor.FetchTodayPrices(ctx)
	if err != nil {
		return "", err
	}
	report, err := p.Sink.SyncStockPrices(ctx, quotes)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d quotes, %d rejected, appended %d, deduped %d",
		report.Accepted, report.Rejected, report.Appended, report.Deduped), nil
}

// -----------------------------------------------------------------------------
// Per-security jobs
// -----------------------------------------------------------------------------

// RunCompanyDetails refreshes every listed security seen in today's prices.
func (p *Pipeline) RunCompanyDetails(ctx context.Context) (string, error) {
	targets, err := p.priceTargets(ctx)
	if err != nil {
		return "", err
	}
	return p.refreshDetails(ctx, "company details", targets)
}

// RunCleanup re-extracts every security stored with instrumentType and
// overwrites it. This repairs rows a past misclassification got wrong.
func (p *Pipeline) RunCleanup(ctx context.Context, instrumentType string) (string, error) {
	if !models.IsKnownInstrumentType(instrumentType) {
		return "", helpers.NewValidationError("unknown instrument type %q", instrumentType)
	}
	secs, err := p.DB.ListSecurities(ctx, instrumentType)
	if err != nil {
		return "", helpers.NewStoreError("list securities", err)
	}
	targets := make([]target, 0, len(secs))
	for _, s := range secs {
		targets = append(targets, target{ID: s.ID, Symbol: s.Symbol})
	}
	return p.refreshDetails(ctx, "cleanup "+instrumentType, p.filter(targets))
}

func (p *Pipeline) refreshDetails(ctx context.Context, op string, targets []target) (string, error) {
	return p.forEach(ctx, op, targets, func(ctx context.Context, t target) error {
		detail, err := p.Extractor.FetchCompanyDetail(ctx, t.ID, t.Symbol)
		if err != nil {
			return err
		}
		return p.Sink.SyncCompanyDetail(ctx, *detail)
	})
}

// RunHistory backfills the end-of-day series of every target.
func (p *Pipeline) RunHistory(ctx context.Context) (string, error) {
	targets, err := p.priceTargets(ctx)
	if err != nil {
		return "", err
	}
	return p.forEach(ctx, "history", targets, func(ctx context.Context, t target) error {
		records, err := p.Extractor.FetchHistory(ctx, t.ID, t.Symbol)
		if err != nil {
			return err
		}
		_, err = p.Sink.SyncHistory(ctx, records)
		return err
	})
}

// forEach visits targets one at a time. A failed security is logged and
// skipped; store, launch and context errors end the run, as does every
// security failing.
func (p *Pipeline) forEach(ctx context.Context, op string, targets []target, fn func(ctx context.Context, t target) error) (string, error) {
	if len(targets) == 0 {
		return op + ": nothing to do", nil
	}

	var (
		done    int
		failed  []string
		lastErr error
	)
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%s stopped after %d of %d: %w", op, done+len(failed), len(targets), err)
		}
		err := fn(ctx, t)
		if err == nil {
			done++
			continue
		}
		if helpers.IsStore(err) || helpers.IsLaunch(err) || errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%s %s: %w", op, t.Symbol, err)
		}
		p.Logger.Warning("%s %s skipped: %v", op, t.Symbol, err)
		failed = append(failed, t.Symbol)
		lastErr = err
	}

	if done == 0 {
		return "", fmt.Errorf("%s: all %d securities failed: %w", op, len(targets), lastErr)
	}
	msg := fmt.Sprintf("%s: %d of %d done", op, done, len(targets))
	if len(failed) > 0 {
		msg += ", failed " + strings.Join(failed, " ")
	}
	return msg, nil
}

// priceTargets lists securities from the live price table, which carries the
// site's security ids.
func (p *Pipeline) priceTargets(ctx context.Context) ([]target, error) {
	quotes, err := p.DB.ListStockPrices(ctx)
	if err != nil {
		return nil, helpers.NewStoreError("list stock prices", err)
	}
	targets := make([]target, 0, len(quotes))
	for _, q := range quotes {
		if q.SecurityID > 0 {
			targets = append(targets, target{ID: q.SecurityID, Symbol: q.Symbol})
		}
	}
	return p.filter(targets), nil
}

func (p *Pipeline) filter(targets []target) []target {
	if len(p.Symbols) == 0 {
		return targets
	}
	want := make(map[string]bool, len(p.Symbols))
	for _, s := range p.Symbols {
		want[strings.ToUpper(strings.TrimSpace(s))] = true
	}
	out := targets[:0]
	for _, t := range targets {
		if want[t.Symbol] {
			out = append(out, t)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Archive and retention
// -----------------------------------------------------------------------------

// businessDate is the date of the live index when one is stored, else today.
func (p *Pipeline) businessDate(ctx context.Context) string {
	if idx, err := p.DB.GetMarketIndex(ctx, p.MainIndexID); err == nil && idx != nil && idx.BusinessDate != "" {
		return idx.BusinessDate
	}
	return utils.BusinessDate(p.Clock.Now())
}

func (p *Pipeline) RunArchivePrices(ctx context.Context) (string, error) {
	date := p.businessDate(ctx)
	n, err := p.DB.ArchiveStockPrices(ctx, date)
	if err != nil {
		return "", helpers.NewStoreError("archive prices", err)
	}
	return fmt.Sprintf("archived %d price rows for %s", n, date), nil
}

func (p *Pipeline) RunArchiveIndex(ctx context.Context) (string, error) {
	date := p.businessDate(ctx)
	n, err := p.DB.ArchiveMarketIndex(ctx, date)
	if err != nil {
		return "", helpers.NewStoreError("archive index", err)
	}
	return fmt.Sprintf("archived %d index rows for %s", n, date), nil
}

// RunRetention deletes history older than RetentionDays. Zero keeps all.
func (p *Pipeline) RunRetention(ctx context.Context) (string, error) {
	if p.RetentionDays <= 0 {
		return "retention disabled", nil
	}
	cutoff := utils.BusinessDate(p.Clock.Now().Add(-time.Duration(p.RetentionDays) * 24 * time.Hour))
	n, err := p.DB.CleanupOldData(ctx, cutoff)
	if err != nil {
		return "", helpers.NewStoreError("cleanup history", err)
	}
	return fmt.Sprintf("removed %d history rows before %s", n, cutoff), nil
}

// RunArchive is the end-of-day job: prices, index, then retention.
func (p *Pipeline) RunArchive(ctx context.Context) (string, error) {
	var parts []string
	for _, step := range []func(context.Context) (string, error){p.RunArchivePrices, p.RunArchiveIndex, p.RunRetention} {
		msg, err := step(ctx)
		if err != nil {
			return strings.Join(parts, "; "), err
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; "), nil
}
