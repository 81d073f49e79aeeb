package extractor

import (
	"context"
	"errors"
	"time"

	"nepse-observer/src/browser"
	"nepse-observer/src/helpers"
	"nepse-observer/src/logger"
)

// errEmpty marks a strategy that ran but produced nothing usable.
var errEmpty = errors.New("empty result")

// -----------------------------------------------------------------------------

// Strategy is one way of getting T out of a page. Each strategy runs under
// its own timeout so a hung one cannot starve the ones after it.
type Strategy[T any] struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context, tab *browser.Tab) (T, error)
}

// -----------------------------------------------------------------------------

// RunChain tries strategies in order and returns the first result that valid
// accepts. All failing yields the last strategy's *helpers.ExtractionError.
func RunChain[T any](ctx context.Context, op string, tab *browser.Tab, log *logger.Logger, valid func(T) error, strategies ...Strategy[T]) (T, error) {
	var (
		zero    T
		lastErr error = helpers.NewExtractionError(op, "none", errEmpty)
	)

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, helpers.NewExtractionError(op, s.Name, err)
		}

		sctx, cancel := context.WithTimeout(ctx, s.Timeout)
		started := time.Now()
		res, err := s.Run(sctx, tab)
		cancel()

		if err == nil {
			err = valid(res)
		}
		if err == nil {
			log.Debug("%s: strategy %s succeeded in %v", op, s.Name, time.Since(started).Round(time.Millisecond))
			return res, nil
		}

		lastErr = helpers.NewExtractionError(op, s.Name, err)
		log.Info("%s: strategy %s failed after %v: %v", op, s.Name, time.Since(started).Round(time.Millisecond), err)
	}
	return zero, lastErr
}
