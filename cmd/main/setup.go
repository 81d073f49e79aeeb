package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"nepse-observer/src/browser"
	"nepse-observer/src/cache"
	"nepse-observer/src/config"
	"nepse-observer/src/extractor"
	"nepse-observer/src/helpers"
	"nepse-observer/src/interfaces"
	"nepse-observer/src/jobs"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
	"nepse-observer/src/scheduler"
	"nepse-observer/src/storage"
	"nepse-observer/src/synchronizer"
	"nepse-observer/src/utils"
)

// app holds every wired component of one process.
type app struct {
	conf      *config.Config
	log       *logger.Logger
	db        *storage.SQLStore
	cache     interfaces.ICache
	sessions  *browser.SessionManager
	syncer    *synchronizer.Synchronizer
	pipeline  *jobs.Pipeline
	scheduler *scheduler.Scheduler
	output    io.WriteCloser
}

// -----------------------------------------------------------------------------

// setup loads config and wires storage, cache, browser, extraction, sink and
// the scheduler with every job registered.
func setup(ctx context.Context, opts *options) (*app, error) {
	conf, err := config.NewConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.headlessSet {
		conf.Browser.Headless = opts.headless
	}
	if len(opts.symbols) > 0 {
		conf.Jobs.Symbols = opts.symbols
	}

	a := &app{conf: conf, log: logger.NewLogger(conf.MConfig, conf.Name)}

	// 1. Storage
	a.db, err = setupDatabase(conf.MConfig)
	if err != nil {
		return nil, err
	}

	// 2. Cache
	a.cache, err = setupCache(ctx, conf.MConfig, a.log)
	if err != nil {
		a.db.Close()
		return nil, err
	}

	// 3. Browser and extraction
	a.sessions = browser.NewSessionManager(conf.Browser, logger.NewLogger(conf.MConfig, "Browser"))
	ext := extractor.NewExtractor(a.sessions, conf.Extract, logger.NewLogger(conf.MConfig, "Extractor"))

	// 4. Sink: the synchronizer, or JSON out for dry runs
	a.syncer = synchronizer.NewSynchronizer(a.db, a.cache, nil, conf.Extract.MainIndexID, logger.NewLogger(conf.MConfig, "Synchronizer"))
	var sink interfaces.ISink = a.syncer
	var store scheduler.StatusStore = a.db
	if opts.dryRun {
		a.output, err = openOutput(opts.output)
		if err != nil {
			a.db.Close()
			return nil, err
		}
		sink = jobs.NewJSONSink(a.output)
		store = nil
		a.log.Info("Dry run: results go to %s, nothing is stored", outputName(opts.output))
	}

	a.pipeline = jobs.NewPipeline(ext, sink, a.db, nil, logger.NewLogger(conf.MConfig, "Jobs"))
	a.pipeline.MainIndexID = conf.Extract.MainIndexID
	a.pipeline.Symbols = conf.Jobs.Symbols
	a.pipeline.RetentionDays = conf.Storage.HistoryRetentionDays

	// 5. Scheduler owns the browser session
	a.scheduler = scheduler.NewScheduler(store, a.sessions, nil, logger.NewLogger(conf.MConfig, "Scheduler"))
	cal := utils.NewTradingCalendar(conf.Market, a.log)
	if err := jobs.Register(a.scheduler, a.pipeline, conf.Jobs, cal); err != nil {
		a.close()
		return nil, helpers.NewConfigurationError("jobs: %v", err)
	}
	return a, nil
}

// -----------------------------------------------------------------------------

// setupDatabase opens the configured backend and creates missing tables.
func setupDatabase(cfg *models.MConfig) (*storage.SQLStore, error) {
	db := storage.New(cfg, logger.NewLogger(cfg, "Storage"))
	if err := db.Initialize(); err != nil {
		return nil, helpers.NewStoreError("initialize "+cfg.Storage.DBType, err)
	}
	return db, nil
}

// setupCache returns nil for "none". An unreachable redis is logged and kept:
// the read and write paths degrade to store-only per call.
func setupCache(ctx context.Context, cfg *models.MConfig, log *logger.Logger) (interfaces.ICache, error) {
	switch cfg.Cache.Type {
	case "none":
		log.Info("Cache disabled, reads go to the store")
		return nil, nil
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Cache.Host, cfg.Cache.Pass)
		if err != nil {
			return nil, helpers.NewConfigurationError("cache: %v", err)
		}
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rc.Ping(pctx); err != nil {
			log.Warning("Redis %s unreachable, continuing degraded: %v", cfg.Cache.Host, err)
		}
		return rc, nil
	default:
		return cache.NewMemoryCache(), nil
	}
}

// -----------------------------------------------------------------------------

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return f, nil
}

func outputName(path string) string {
	if path == "" || path == "-" {
		return "stdout"
	}
	return path
}

// -----------------------------------------------------------------------------

// close releases the browser, the store and the output file.
func (a *app) close() {
	a.sessions.Release()
	if a.output != nil {
		if err := a.output.Close(); err != nil {
			a.log.Warning("Closing output failed: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warning("Closing store failed: %v", err)
	}
	logger.Sync()
}
