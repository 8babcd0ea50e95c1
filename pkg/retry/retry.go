package retry

import (
	"context"
	"time"

	"github.com/zencastr/message-store/pkg/log"
	"github.com/zencastr/message-store/pkg/metrics"
)

// Options configures a retry run
type Options struct {
	// Label identifies the retried operation in logs and metrics
	Label string
	// MaxRetries bounds the total number of attempts
	MaxRetries int
	// InitialBackoff is the wait before the second attempt; it doubles
	// after every failed attempt, no jitter
	InitialBackoff time.Duration
	// IsRetriable decides whether an error is worth another attempt.
	// A nil predicate retries nothing
	IsRetriable func(error) bool
}

// Do runs fn up to MaxRetries times with exponential backoff between
// attempts. Non-retriable errors and the last attempt's error are
// returned as-is. The backoff sleep observes ctx cancellation
func Do[T any](ctx context.Context, fn func() (T, error), opts Options) (T, error) {
	var zero T
	logger := log.WithComponent("retry")

	backoff := opts.InitialBackoff
	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if opts.IsRetriable == nil || !opts.IsRetriable(err) {
			return zero, err
		}
		if attempt >= opts.MaxRetries {
			return zero, err
		}

		metrics.RetriesTotal.WithLabelValues(opts.Label).Inc()
		logger.Warn().
			Err(err).
			Str("operation", opts.Label).
			Dur("backoff", backoff).
			Int("attempt", attempt).
			Int("max_retries", opts.MaxRetries).
			Msg("Operation failed, retrying after backoff")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		backoff *= 2
	}
}
