package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

func testGeminiConfig() GeminiConfig {
	return GeminiConfig{
		APIKey:     "test-key",
		Model:      "gemini-embedding-001",
		Dimensions: 1536,
	}
}

// TS01: constructor validation.
func TestNewGeminiEmbedder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GeminiConfig)
	}{
		{"missing api key", func(c *GeminiConfig) { c.APIKey = "" }},
		{"missing model", func(c *GeminiConfig) { c.Model = "" }},
		{"zero dimensions", func(c *GeminiConfig) { c.Dimensions = 0 }},
		{"negative dimensions", func(c *GeminiConfig) { c.Dimensions = -8 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testGeminiConfig()
			tt.mutate(&config)

			_, err := NewGeminiEmbedder(context.Background(), config)

			require.Error(t, err)
			assert.Equal(t, errors.KindInputInvalid, errors.KindOf(err))
		})
	}
}

func TestNewGeminiEmbedder_Defaults(t *testing.T) {
	embedder, err := NewGeminiEmbedder(context.Background(), testGeminiConfig())
	require.NoError(t, err)
	defer embedder.Close()

	assert.Equal(t, DefaultBatchSize, embedder.config.BatchSize)
	assert.Equal(t, DefaultTimeout, embedder.config.Timeout)
	assert.Equal(t, 1536, embedder.Dimensions())
	assert.Equal(t, "gemini-embedding-001", embedder.ModelName())
}

func TestNewGeminiEmbedder_BatchSizeClamped(t *testing.T) {
	config := testGeminiConfig()
	config.BatchSize = 10000

	embedder, err := NewGeminiEmbedder(context.Background(), config)
	require.NoError(t, err)
	defer embedder.Close()

	assert.Equal(t, MaxBatchSize, embedder.config.BatchSize)
}

// TS02: input validation happens before any network round-trip.
func TestGeminiEmbedder_EmbedBatchRejectsEmptyText(t *testing.T) {
	embedder, err := NewGeminiEmbedder(context.Background(), testGeminiConfig())
	require.NoError(t, err)
	defer embedder.Close()

	_, err = embedder.EmbedBatch(context.Background(), []string{"fine", ""})

	require.Error(t, err)
	assert.Equal(t, errors.KindInputInvalid, errors.KindOf(err))
}

func TestGeminiEmbedder_EmbedBatchEmptyInput(t *testing.T) {
	embedder, err := NewGeminiEmbedder(context.Background(), testGeminiConfig())
	require.NoError(t, err)
	defer embedder.Close()

	vectors, err := embedder.EmbedBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
}

func TestNormalizeVectorZero(t *testing.T) {
	v := normalizeVector([]float32{0, 0, 0})

	assert.Equal(t, []float32{0, 0, 0}, v)
}
