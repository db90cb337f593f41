// Package resilience implements : a retry-then-circuit-breaker
// wrapper for calls into the relational mirror and other external
// dependencies, so a flaky dependency degrades gracefully instead of
// blocking the KV-canonical write path.
package resilience

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// BreakerConfig tunes the rolling-window failure detector.
type BreakerConfig struct {
	// WindowSize bounds how many recent outcomes are tracked, capped at 1000.
	WindowSize int
	// MinimumRequests is the smallest sample size before the failure ratio
	// is trusted; below it the breaker stays closed regardless of ratio.
	MinimumRequests int
	// FailureThreshold is the failure ratio (0..1) within the window that
	// trips the breaker from closed to open.
	FailureThreshold float64
	// CooldownPeriod is how long the breaker stays open before allowing a
	// single half-open probe.
	CooldownPeriod time.Duration
	// SuccessThreshold is how many consecutive half-open successes are
	// required to close the breaker again.
	SuccessThreshold int
}

const maxWindowSize = 1000

// DefaultBreakerConfig tracks a fixed-count rolling window rather than a
// time-bucketed one (simpler, no extra goroutine to expire buckets),
// defaulting its count to the maximum window size so a burst of traffic
// at realistic QPS stays within one window. See DESIGN.md for the full
// rationale.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:       maxWindowSize,
		MinimumRequests:  5,
		FailureThreshold: 0.5,
		CooldownPeriod:   30 * time.Second,
		SuccessThreshold: 3,
	}
}

// CircuitBreaker is a mutex-guarded, per-instance breaker. No library in
// the dependency set implements a rolling-window breaker with this exact
// half-open probe discipline, so it is hand-rolled.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu               sync.Mutex
	state            State
	window           []bool // true = success
	openedAt         time.Time
	halfOpenSuccess  int
	halfOpenInFlight bool
	now              func() time.Time
}

// NewCircuitBreaker builds a breaker starting CLOSED.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.WindowSize <= 0 || cfg.WindowSize > maxWindowSize {
		cfg.WindowSize = maxWindowSize
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = 1
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// ErrCircuitOpen-style sentinel is intentionally left to callers (pkg/apierr
// already defines apierr.ErrCircuitOpen); this package stays free of an
// import cycle by returning a plain bool from Allow.

// Allow reports whether a call may proceed right now, and if the breaker is
// OPEN but the cooldown has elapsed, transitions it to HALF_OPEN and grants
// exactly one in-flight probe.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.CooldownPeriod {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenSuccess = 0
		b.halfOpenInFlight = true
		return true
	case StateHalfOpen:
		if b.halfOpenInFlight {
			return false // only one probe in flight at a time
		}
		b.halfOpenInFlight = true
		return true
	default:
		return true
	}
}

// Record reports the outcome of a call previously allowed by Allow.
func (b *CircuitBreaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.halfOpenInFlight = false
		if !success {
			b.trip()
			return
		}
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.window = nil
		}
	case StateOpen:
		// A stray record arriving after cooldown already elapsed; ignore.
	default: // StateClosed
		b.window = append(b.window, success)
		if len(b.window) > b.cfg.WindowSize {
			b.window = b.window[len(b.window)-b.cfg.WindowSize:]
		}
		if len(b.window) >= b.cfg.MinimumRequests && b.failureRatio() >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *CircuitBreaker) failureRatio() float64 {
	if len(b.window) == 0 {
		return 0
	}
	failures := 0
	for _, ok := range b.window {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(len(b.window))
}

func (b *CircuitBreaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.window = nil
	b.halfOpenInFlight = false
}

// CurrentState returns the current breaker state, for observability.
func (b *CircuitBreaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
