package rerank

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig holds retry controller parameters.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so the
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
	// Jitter scales each delay by a uniform random factor in [0.5, 1.0].
	Jitter bool
}

// DefaultRetryConfig returns the standard retry budget.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   10 * time.Second,
		Jitter:     true,
	}
}

// RetryWithBackoff runs op with exponential backoff. Attempts are 0-indexed;
// after a failed attempt n the controller sleeps min(BaseDelay*2^n, MaxDelay),
// jittered when enabled. Retrying stops when the classifier marks the error
// non-retryable, when the budget is exhausted, or when ctx is done.
// It returns the result, the number of retries performed, and the final error.
func RetryWithBackoff[T any](ctx context.Context, cfg RetryConfig, provider string, op func(context.Context) (T, error)) (T, int, error) {
	var zero T
	retries := 0

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, retries, nil
		}

		if attempt == cfg.MaxRetries || !Classify(err, provider).Retryable {
			return zero, retries, err
		}

		delay := cfg.BaseDelay << uint(attempt)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		if cfg.Jitter {
			delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, retries, ctx.Err()
		case <-timer.C:
		}
		retries++
	}
}
