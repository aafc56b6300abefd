package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit open")

// State is the observable breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker fails calls fast once an upstream has produced a run
// of consecutive errors. After a cooldown it admits a single probe; the
// probe's outcome picks between closing again and another cooldown. It
// guards the embedding and segmentation providers so a dead upstream
// does not burn the retry budget of every caller.
//
// The state is derived rather than stored: the breaker is open while
// the consecutive-failure count is at or above the threshold, and
// half-open once the cooldown since the last failure has passed.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.threshold = n
	}
}

// WithResetTimeout sets the cooldown before a probe is admitted.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.cooldown = d
	}
}

// NewCircuitBreaker returns a closed breaker named for the upstream it
// guards. Defaults: 5 consecutive failures, 30 second cooldown.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: 5,
		cooldown:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the upstream name the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State reports the current breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case cb.failures < cb.threshold:
		return StateClosed
	case time.Since(cb.openedAt) >= cb.cooldown:
		return StateHalfOpen
	default:
		return StateOpen
	}
}

// admit decides whether a call may proceed. While tripped, only one
// probe at a time is let through, and only after the cooldown.
func (cb *CircuitBreaker) admit() (ok, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures < cb.threshold {
		return true, false
	}
	if time.Since(cb.openedAt) < cb.cooldown || cb.probing {
		return false, false
	}
	cb.probing = true
	return true, true
}

// observe folds a call outcome into the failure run. Any success closes
// the breaker; any failure restarts the cooldown.
func (cb *CircuitBreaker) observe(err error, probe bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	}
	if err == nil {
		cb.failures = 0
		return
	}
	cb.failures++
	cb.openedAt = time.Now()
}

// Do runs fn under the breaker. A refused call returns ErrCircuitOpen
// without invoking fn.
func (cb *CircuitBreaker) Do(fn func() error) error {
	ok, probe := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	cb.observe(err, probe)
	return err
}

// CircuitExecuteWithResult runs fn under cb. When the breaker refuses
// the call, fallback supplies the result instead; a nil fallback
// surfaces ErrCircuitOpen. Errors from an admitted fn pass through
// unchanged.
func CircuitExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	ok, probe := cb.admit()
	if !ok {
		if fallback == nil {
			var zero T
			return zero, ErrCircuitOpen
		}
		return fallback()
	}
	result, err := fn()
	cb.observe(err, probe)
	return result, err
}
