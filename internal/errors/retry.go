package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig bounds the attempt loop for provider and store calls.
type RetryConfig struct {
	// MaxRetries is the retry budget after the initial attempt.
	MaxRetries int

	// InitialDelay seeds the backoff.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// Jitter spreads each wait over half to full of the computed delay
	// so parallel workers do not hammer a recovering upstream in step.
	Jitter bool
}

// DefaultRetryConfig suits rate-limited provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// StoreRetryConfig suits catalog lock contention: more attempts with
// short waits.
func StoreRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   5,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// backoff returns the wait before retry n (zero-based).
func (cfg RetryConfig) backoff(n int) time.Duration {
	d := float64(cfg.InitialDelay)
	for i := 0; i < n; i++ {
		d *= cfg.Multiplier
		if d >= float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
			break
		}
	}
	if cfg.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// shouldRetry decides whether an attempt error permits another attempt.
// Classified errors follow their kind's retryable flag; a bare cancellation
// aborts; anything unclassified is retried up to the attempt budget.
func shouldRetry(err error) bool {
	var me *MaktabaError
	if stderrors.As(err, &me) {
		return me.Retryable
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// RetryWithResult runs fn until it succeeds, fails with a non-retryable
// error, spends the retry budget, or ctx ends. Waits between attempts
// grow exponentially per cfg. Non-retryable errors surface unchanged;
// a spent budget wraps the last error.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !shouldRetry(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.backoff(attempt)):
		}
	}
}

// Retry is RetryWithResult for functions that only return an error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
