package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerStaysClosedBelowMinimumRequests(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(BreakerConfig{
		WindowSize: 10, MinimumRequests: 5, FailureThreshold: 0.5, CooldownPeriod: time.Second, SuccessThreshold: 1,
	})
	for i := 0; i < 4; i++ {
		require.True(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerTripsAtFailureThreshold(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(BreakerConfig{
		WindowSize: 10, MinimumRequests: 4, FailureThreshold: 0.5, CooldownPeriod: time.Minute, SuccessThreshold: 1,
	})
	b.Record(true)
	b.Record(true)
	b.Record(false)
	b.Record(false)
	assert.Equal(t, StateOpen, b.CurrentState())
	assert.False(t, b.Allow())
}

func TestBreakerHalfOpenProbeAndRecoveryToClosed(t *testing.T) {
	// Testable property: after cooldown, exactly one probe is allowed; enough
	// consecutive successes close the breaker again.
	t.Parallel()
	b := NewCircuitBreaker(BreakerConfig{
		WindowSize: 10, MinimumRequests: 2, FailureThreshold: 0.5, CooldownPeriod: 10 * time.Millisecond, SuccessThreshold: 2,
	})
	b.Record(false)
	b.Record(false)
	require.Equal(t, StateOpen, b.CurrentState())

	time.Sleep(15 * time.Millisecond)
	require.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.CurrentState())
	assert.False(t, b.Allow(), "a second concurrent probe must not be allowed while one is in flight")

	b.Record(true)
	assert.Equal(t, StateHalfOpen, b.CurrentState(), "one success is not enough given SuccessThreshold=2")

	require.True(t, b.Allow())
	b.Record(true)
	assert.Equal(t, StateClosed, b.CurrentState())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(BreakerConfig{
		WindowSize: 10, MinimumRequests: 1, FailureThreshold: 0.5, CooldownPeriod: 5 * time.Millisecond, SuccessThreshold: 1,
	})
	b.Record(false)
	require.Equal(t, StateOpen, b.CurrentState())
	time.Sleep(10 * time.Millisecond)
	require.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, StateOpen, b.CurrentState())
}
