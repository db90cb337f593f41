package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type permanentErr struct{ error }

func (permanentErr) Retryable() bool { return false }

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, RandomizationFactor: 0}

	v, err := Retry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2, RandomizationFactor: 0}

	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		return "", permanentErr{errors.New("unrecoverable")}
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2, RandomizationFactor: 0}

	_, err := Retry(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		return "", errors.New("always fails")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}
