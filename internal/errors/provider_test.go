package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: rate limits and server failures classify as transient.
func TestClassifyProviderError_Transient(t *testing.T) {
	tests := []string{
		"Error 429, Message: quota exceeded, Status: RESOURCE_EXHAUSTED",
		"googleapi: Error 503: Service Unavailable",
		"rpc error: code = UNAVAILABLE desc = connection reset",
		"Post \"https://host/v1\": net/http: request timed out",
	}
	for _, msg := range tests {
		err := ClassifyProviderError("embedding call failed", fmt.Errorf("%s", msg))

		require.Error(t, err)
		assert.Equal(t, KindProviderTransient, KindOf(err), msg)
		assert.True(t, IsRetryable(err), msg)
	}
}

// TS02: client-side rejections classify as permanent.
func TestClassifyProviderError_Permanent(t *testing.T) {
	err := ClassifyProviderError("embedding call failed", fmt.Errorf("Error 400: INVALID_ARGUMENT: unsupported output dimensionality"))

	assert.Equal(t, KindProviderPermanent, KindOf(err))
	assert.False(t, IsRetryable(err))
}

// Already-classified errors pass through unchanged.
func TestClassifyProviderError_Passthrough(t *testing.T) {
	busy := StoreBusy("database is locked", nil)

	err := ClassifyProviderError("outer message", busy)

	assert.Same(t, error(busy), err)
}

func TestClassifyProviderError_Nil(t *testing.T) {
	assert.NoError(t, ClassifyProviderError("anything", nil))
}

func TestIsRateLimitError(t *testing.T) {
	assert.True(t, IsRateLimitError(fmt.Errorf("Error 429")))
	assert.True(t, IsRateLimitError(fmt.Errorf("RESOURCE_EXHAUSTED")))
	assert.False(t, IsRateLimitError(fmt.Errorf("no such model")))
	assert.False(t, IsRateLimitError(nil))
}
