package swan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lukaskaminskis/polymarket-analytics/internal/domain"
)

// RetryPolicy bounds how often a transient upstream failure is retried
// before it degrades to a data-unavailable skip for the affected market.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first. Zero disables
	// retrying.
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration
}

// DefaultRetryPolicy matches the scan defaults.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, Backoff: 500 * time.Millisecond}

// retryable reports whether an error is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, domain.ErrTransientUpstream) || errors.Is(err, domain.ErrRateLimited)
}

// Do runs fn up to 1+MaxRetries times, backing off exponentially between
// attempts. Non-retryable errors abort immediately. When retries are
// exhausted the last error is wrapped in domain.ErrDataUnavailable so the
// caller skips the market instead of failing the scan.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	delay := p.Backoff
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w: retries exhausted: %v", domain.ErrDataUnavailable, lastErr)
}
