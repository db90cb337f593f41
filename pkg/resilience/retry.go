package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig tunes the exponential backoff policy.
type RetryConfig struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizationFactor float64
}

// DefaultRetryConfig matches the numbers .
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:         3,
		BaseDelay:           100 * time.Millisecond,
		MaxDelay:            2 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// Retryable lets an error declare whether it is safe to retry. An error
// that implements it and returns false is treated as a permanent failure
// and aborts the retry loop immediately via backoff.Permanent. Every other
// error, including one that does not implement Retryable (such as the
// apierr taxonomy errors), is retried until MaxAttempts is reached. The
// check is made on the returned error itself, not on errors it wraps.
type Retryable interface {
	Retryable() bool
}

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff,
// stopping early if ctx is cancelled or fn returns a non-retryable error.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseDelay
	b.MaxInterval = cfg.MaxDelay
	b.Multiplier = cfg.Multiplier
	b.RandomizationFactor = cfg.RandomizationFactor

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if r, ok := err.(Retryable); ok && !r.Retryable() {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(cfg.MaxAttempts)))
}
