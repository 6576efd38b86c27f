package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/studyguide/internal/logger"
)

const (
	DefaultMaxAttempts = 5
	baseBackoff        = 2 * time.Second
	maxBackoff         = 60 * time.Second
)

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Backoff returns the wait before retry n (0-indexed): 2s doubling to a 60s
// cap, plus up to half of that again as jitter.
func Backoff(attempt int) time.Duration {
	base := maxBackoff
	if attempt < 5 {
		base = min(baseBackoff<<uint(attempt), maxBackoff)
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Retrier retries transient failures of the wrapped generator.
type Retrier struct {
	next        Generator
	maxAttempts int
	log         *logger.Logger

	// wait is replaceable in tests.
	wait func(attempt int) time.Duration
}

func NewRetrier(next Generator, maxAttempts int, log *logger.Logger) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retrier{next: next, maxAttempts: maxAttempts, log: log, wait: Backoff}
}

func (r *Retrier) Complete(ctx context.Context, req Request) (Completion, error) {
	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			d := r.wait(attempt - 1)
			r.log.Warn("retrying chat completion",
				"attempt", attempt+1,
				"max_attempts", r.maxAttempts,
				"wait_ms", d.Milliseconds(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(d):
			}
		}

		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) {
			return Completion{}, err
		}
		lastErr = err
	}
	r.log.Error("chat completion failed after retries", "attempts", r.maxAttempts, "error", lastErr)
	return Completion{}, lastErr
}
