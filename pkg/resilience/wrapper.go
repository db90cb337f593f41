package resilience

import (
	"context"

	"github.com/meywd/openauth-core/pkg/apierr"
)

// Wrapper composes a CircuitBreaker (outermost) around a Retry loop
// (innermost), matching : the breaker decides whether to let a
// call through at all; if it does, retry absorbs transient failures
// within that single call.
type Wrapper struct {
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewWrapper builds a Wrapper from the given configs.
func NewWrapper(breakerCfg BreakerConfig, retryCfg RetryConfig) *Wrapper {
	return &Wrapper{breaker: NewCircuitBreaker(breakerCfg), retry: retryCfg}
}

// Do executes fn under the breaker and retry policy. If the breaker is
// open, fn is never called and apierr.ErrCircuitOpen is returned
// immediately so the dual-write caller can log-and-skip per .
func Do[T any](ctx context.Context, w *Wrapper, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !w.breaker.Allow() {
		return zero, apierr.ErrCircuitOpen
	}

	v, err := Retry(ctx, w.retry, fn)
	w.breaker.Record(err == nil)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// State exposes the wrapped breaker's current state for observability.
func (w *Wrapper) State() State { return w.breaker.CurrentState() }
