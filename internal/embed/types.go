// Package embed turns paragraph text into dense vectors through an
// external embedding provider.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MaxBatchSize caps texts per round-trip regardless of configuration.
	MaxBatchSize = 256

	// DefaultBatchSize is the texts-per-round-trip fallback.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one embedding round-trip.
	DefaultTimeout = 60 * time.Second

	// DefaultEmbeddingCacheSize is the fallback size of the in-process
	// LRU. The durable cache lives in the catalog store.
	DefaultEmbeddingCacheSize = 1000
)

// Embedder turns text into dense vectors.
type Embedder interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in order. The call is
	// all-or-nothing: a failure for any text fails the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length this embedder produces.
	Dimensions() int

	// ModelName identifies the model, recorded next to each stored vector.
	ModelName() string

	// Close releases provider resources.
	Close() error
}

// normalizeVector scales v to unit length. Truncated-dimension
// embeddings come back unnormalized from the provider.
func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
