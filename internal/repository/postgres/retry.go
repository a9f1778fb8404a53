package postgres

import (
	"context"
	"math/rand"
	"time"

	"library-circulation-backend/internal/logger"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// RetryPolicy controls how often a transaction is replayed after a
// serialization failure or deadlock.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	JitterFactor float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.JitterFactor < 0 || p.JitterFactor > 1 {
		p.JitterFactor = defaultJitterFactor
	}
	return p
}

// run executes fn, backing off exponentially (baseDelay * 2^(attempt-1) plus
// jitter) between attempts. Only retryable errors are replayed.
func (p RetryPolicy) run(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.BaseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * p.JitterFactor //nolint:gosec
			select {
			case <-time.After(delay + time.Duration(jitter)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil || !isRetryable(lastErr) {
			return lastErr
		}
		logger.Warn("Transaction conflict, retrying", "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}
