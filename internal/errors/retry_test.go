package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// TS01: Retry succeeds without retrying when the first attempt passes
func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

// TS02: Retry keeps attempting while the error is retryable
func TestRetry_RetriesTransientThenSucceeds(t *testing.T) {
	// Given: a function that reports lock contention twice then succeeds
	calls := 0

	// When: retrying with a short backoff
	err := Retry(context.Background(), fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return StoreBusy("database is locked", nil)
		}
		return nil
	})

	// Then: the third attempt lands
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return ProviderTransient("upstream 503", nil)
	})

	require.Error(t, err)
	// Initial attempt plus two retries
	assert.Equal(t, 3, calls)
	assert.True(t, HasKind(err, KindProviderTransient))
}

// TS03: non-retryable kinds abort immediately
func TestRetry_NonRetryableSurfacesImmediately(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastRetryConfig(5), func() error {
		calls++
		return ProviderPermanent("401 unauthorized", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindProviderPermanent, KindOf(err))
}

func TestRetry_UnclassifiedErrorsAreRetried(t *testing.T) {
	calls := 0

	err := Retry(context.Background(), fastRetryConfig(2), func() error {
		calls++
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, fastRetryConfig(10), func() error {
		calls++
		cancel()
		return StoreBusy("locked", nil)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryWithResult_ReturnsValueOnSuccess(t *testing.T) {
	calls := 0

	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() ([]float32, error) {
		calls++
		if calls < 2 {
			return nil, ProviderTransient("upstream 500", nil)
		}
		return []float32{0.25, 0.5}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5}, got)
	assert.Equal(t, 2, calls)
}

func TestRetryWithResult_ZeroValueOnPermanentFailure(t *testing.T) {
	got, err := RetryWithResult(context.Background(), fastRetryConfig(3), func() (string, error) {
		return "partial", ProviderPermanent("400 bad request", nil)
	})

	require.Error(t, err)
	assert.Empty(t, got)
}

func TestBackoff_GrowsToCap(t *testing.T) {
	cfg := fastRetryConfig(5) // 1ms initial, 5ms cap, x2

	assert.Equal(t, 1*time.Millisecond, cfg.backoff(0))
	assert.Equal(t, 2*time.Millisecond, cfg.backoff(1))
	assert.Equal(t, 4*time.Millisecond, cfg.backoff(2))
	assert.Equal(t, 5*time.Millisecond, cfg.backoff(3))
	assert.Equal(t, 5*time.Millisecond, cfg.backoff(7))
}

func TestBackoff_JitterStaysInRange(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	for i := 0; i < 50; i++ {
		d := cfg.backoff(0)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestStoreRetryConfig_FiveAttempts(t *testing.T) {
	cfg := StoreRetryConfig()
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.True(t, cfg.Jitter)
	assert.Greater(t, cfg.Multiplier, 1.0)
}

func TestDefaultRetryConfig_Shape(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
}
