package extractor

import (
	"context"
	"strings"
	"time"

	"nepse-observer/src/browser"
	"nepse-observer/src/config"
	"nepse-observer/src/helpers"
	"nepse-observer/src/interfaces"
	"nepse-observer/src/logger"
	"nepse-observer/src/models"
)

// SessionRunner lends the shared browser to one caller at a time.
type SessionRunner interface {
	WithBrowser(ctx context.Context, fn func(ctx context.Context, h *browser.Handle) error) error
}

type timeouts struct {
	intercept time.Duration
	download  time.Duration
	dom       time.Duration
}

// -----------------------------------------------------------------------------

// Extractor reads the exchange website through the shared browser. Every
// operation is a strategy chain wrapped in a fixed-delay retry, and returns
// canonical models only.
type Extractor struct {
	Sessions SessionRunner
	Config   models.MExtractConfig
	Policy   helpers.RetryPolicy
	Logger   *logger.Logger

	timeouts timeouts
	newTab   func(ctx context.Context, h *browser.Handle) (*browser.Tab, error)
}

var _ interfaces.IMarketExtractor = (*Extractor)(nil)

// -----------------------------------------------------------------------------

func NewExtractor(sessions SessionRunner, cfg models.MExtractConfig, log *logger.Logger) *Extractor {
	policy := helpers.DefaultRetryPolicy
	if cfg.Attempts > 0 {
		policy.Attempts = cfg.Attempts
	}
	if cfg.RetryDelaySeconds > 0 {
		policy.Delay = config.Seconds(cfg.RetryDelaySeconds)
	}

	return &Extractor{
		Sessions: sessions,
		Config:   cfg,
		Policy:   policy,
		Logger:   log,
		timeouts: timeouts{
			intercept: orDefault(config.Seconds(cfg.InterceptTimeoutSeconds), 20*time.Second),
			download:  orDefault(config.Seconds(cfg.DownloadTimeoutSeconds), 30*time.Second),
			dom:       orDefault(config.Seconds(cfg.DomTimeoutSeconds), 20*time.Second),
		},
		newTab: func(ctx context.Context, h *browser.Handle) (*browser.Tab, error) {
			return h.NewTab(ctx)
		},
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// -----------------------------------------------------------------------------

func (e *Extractor) url(path string) string {
	return strings.TrimRight(e.Config.BaseURL, "/") + path
}

// -----------------------------------------------------------------------------

// extract runs one strategy chain per attempt, each attempt on a fresh tab
// of the shared browser.
func extract[T any](ctx context.Context, e *Extractor, op string, valid func(T) error, strategies []Strategy[T]) (T, error) {
	return helpers.Retry(ctx, op, e.Policy, e.Logger, func(ctx context.Context) (T, error) {
		var out T
		err := e.Sessions.WithBrowser(ctx, func(ctx context.Context, h *browser.Handle) error {
			tab, err := e.newTab(ctx, h)
			if err != nil {
				return helpers.NewExtractionError(op, "open tab", err)
			}
			if tab != nil {
				defer tab.Close()
			}
			out, err = RunChain(ctx, op, tab, e.Logger, valid, strategies...)
			return err
		})
		return out, err
	})
}
