package helpers

import (
	"context"
	"time"

	"nepse-observer/src/logger"
)

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryPolicy is a fixed-delay retry budget.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy is three attempts two seconds apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 2 * time.Second}

// -----------------------------------------------------------------------------

// Retry runs fn until it succeeds, the budget is spent, or the error is not
// retryable. Exhaustion returns *ExtractionFailed wrapping the last error.
func Retry[T any](ctx context.Context, op string, policy RetryPolicy, log *logger.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		if log != nil {
			log.Warning("%s failed (attempt %d/%d): %v. Retrying in %v", op, attempt, attempts, err, policy.Delay)
		}

		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, &ExtractionFailed{Op: op, Attempts: attempt, LastErr: ctx.Err()}
		case <-timer.C:
		}
	}

	return zero, &ExtractionFailed{Op: op, Attempts: attempts, LastErr: lastErr}
}
