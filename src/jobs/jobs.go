package jobs

import (
	"context"
	"time"

	"nepse-observer/src/config"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"
)

// Job names, as shown in status listings and accepted by manual triggers.
const (
	MarketIndex    = "market_index"
	StockPrices    = "stock_prices"
	CompanyDetails = "company_details"
	PriceHistory   = "price_history"
	Archive        = "archive"
	ArchivePrices  = "archive_prices"
	ArchiveIndex   = "archive_index"
	CleanupPrefix  = "cleanup_"
)

// CleanupTypes are the instrument types with a manual cleanup job.
var CleanupTypes = []string{
	models.InstrumentEquity,
	models.InstrumentDebenture,
	models.InstrumentMutualFund,
	models.InstrumentBond,
	models.InstrumentPreference,
	models.InstrumentPromoter,
	models.InstrumentUnknown,
}

// CleanupJob names the cleanup job of an instrument type.
func CleanupJob(instrumentType string) string { return CleanupPrefix + instrumentType }

// -----------------------------------------------------------------------------

// Build returns every job with its cadence. Live jobs tick inside the trading
// window and for PostCloseMinutes after the close, so the closing index and
// prices are stored before the archive copies them. Daily jobs follow cron
// expressions in market time.
func Build(p *Pipeline, cfg models.MJobsConfig, cal scheduler.MarketCalendar) ([]scheduler.Job, error) {
	timeout := config.Seconds(cfg.JobTimeoutSeconds)
	postClose := time.Duration(cfg.PostCloseMinutes) * time.Minute

	companyCron, err := scheduler.Cron(cfg.CompanyCron)
	if err != nil {
		return nil, err
	}
	historyCron, err := scheduler.Cron(cfg.HistoryCron)
	if err != nil {
		return nil, err
	}
	archiveCron, err := scheduler.Cron(cfg.ArchiveCron)
	if err != nil {
		return nil, err
	}

	jobs := []scheduler.Job{
		{Name: MarketIndex, Cadence: scheduler.Window(config.Seconds(cfg.IndexIntervalSeconds), postClose, cal), Timeout: timeout, Run: p.RunIndex},
		{Name: StockPrices, Cadence: scheduler.Window(config.Seconds(cfg.PriceIntervalSeconds), postClose, cal), Timeout: timeout, Run: p.RunPrices},
		{Name: CompanyDetails, Cadence: companyCron, Run: p.RunCompanyDetails},
		{Name: PriceHistory, Cadence: historyCron, Run: p.RunHistory},
		{Name: Archive, Cadence: archiveCron, Timeout: timeout, Run: p.RunArchive},
		{Name: ArchivePrices, Cadence: scheduler.Manual(), Timeout: timeout, Run: p.RunArchivePrices},
		{Name: ArchiveIndex, Cadence: scheduler.Manual(), Timeout: timeout, Run: p.RunArchiveIndex},
	}
	for _, t := range CleanupTypes {
		instrumentType := t
		jobs = append(jobs, scheduler.Job{
			Name:    CleanupJob(instrumentType),
			Cadence: scheduler.Manual(),
			Run: func(ctx context.Context) (string, error) {
				return p.RunCleanup(ctx, instrumentType)
			},
		})
	}
	return jobs, nil
}

// Register builds the jobs and adds them to s.
func Register(s *scheduler.Scheduler, p *Pipeline, cfg models.MJobsConfig, cal scheduler.MarketCalendar) error {
	list, err := Build(p, cfg, cal)
	if err != nil {
		return err
	}
	for _, j := range list {
		if err := s.Register(j); err != nil {
			return err
		}
	}
	return nil
}
