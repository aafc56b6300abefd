package embed

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/genai"

	"github.com/maktaba-dev/maktaba/internal/errors"
)

// GeminiConfig configures the Gemini embedding client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
	BatchSize  int           // texts per round-trip (default: DefaultBatchSize)
	Timeout    time.Duration // per round-trip, fresh on each retry (default: DefaultTimeout)
	MaxRetries int           // transient-failure retries (default from errors.DefaultRetryConfig)
}

// GeminiEmbedder embeds text through the Gemini API. The client is
// stateless; callers own caching.
type GeminiEmbedder struct {
	client  *genai.Client
	config  GeminiConfig
	retry   errors.RetryConfig
	breaker *errors.CircuitBreaker
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a Gemini embedding client.
func NewGeminiEmbedder(ctx context.Context, config GeminiConfig) (*GeminiEmbedder, error) {
	if config.APIKey == "" {
		return nil, errors.InputInvalid("embedding API key is empty", nil).
			WithSuggestion("set the key named by embeddings api_key_env")
	}
	if config.Model == "" {
		return nil, errors.InputInvalid("embedding model name is empty", nil)
	}
	if config.Dimensions <= 0 {
		return nil, errors.InputInvalid("embedding dimensions must be positive", nil).
			WithDetail("dimensions", strconv.Itoa(config.Dimensions))
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchSize > MaxBatchSize {
		config.BatchSize = MaxBatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.ProviderPermanent("failed to initialize embedding client", err)
	}

	retry := errors.DefaultRetryConfig()
	if config.MaxRetries > 0 {
		retry.MaxRetries = config.MaxRetries
	}

	return &GeminiEmbedder{
		client:  client,
		config:  config,
		retry:   retry,
		breaker: errors.NewCircuitBreaker("embedder"),
	}, nil
}

// Embed generates the embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for texts, splitting them into
// BatchSize sub-batches per network round-trip. Any sub-batch failure
// fails the whole call.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, errors.InputInvalid("cannot embed an empty text", nil).
				WithDetail("index", strconv.Itoa(i))
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embedBatch runs one round-trip with retry and the circuit breaker.
func (e *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return errors.RetryWithResult(ctx, e.retry, func() ([][]float32, error) {
		return errors.CircuitExecuteWithResult(e.breaker, func() ([][]float32, error) {
			callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()

			contents := make([]*genai.Content, len(texts))
			for i, text := range texts {
				contents[i] = genai.NewContentFromText(text, genai.RoleUser)
			}
			outputDim := int32(e.config.Dimensions)
			embeddingConfig := &genai.EmbedContentConfig{
				OutputDimensionality: &outputDim,
			}

			result, err := e.client.Models.EmbedContent(callCtx, e.config.Model, contents, embeddingConfig)
			if err != nil {
				return nil, errors.ClassifyProviderError("embedding request failed", err)
			}
			if result == nil || len(result.Embeddings) != len(texts) {
				got := 0
				if result != nil {
					got = len(result.Embeddings)
				}
				return nil, errors.ProviderPermanent("embedding count mismatch", nil).
					WithDetail("expected", strconv.Itoa(len(texts))).
					WithDetail("actual", strconv.Itoa(got))
			}

			vectors := make([][]float32, len(texts))
			for i, embedding := range result.Embeddings {
				if len(embedding.Values) != e.config.Dimensions {
					return nil, errors.ProviderPermanent("embedding dimension mismatch", nil).
						WithDetail("expected", strconv.Itoa(e.config.Dimensions)).
						WithDetail("actual", strconv.Itoa(len(embedding.Values)))
				}
				vectors[i] = normalizeVector(embedding.Values)
			}
			return vectors, nil
		}, nil)
	})
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.config.Dimensions
}

// ModelName returns the model identifier.
func (e *GeminiEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases the client reference. The genai client holds no
// connections that need explicit shutdown.
func (e *GeminiEmbedder) Close() error {
	e.client = nil
	return nil
}
