package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder implements domain.VectorEncoder against an OpenAI-compatible
// embeddings endpoint. Query embeddings repeat heavily across requests, so
// encoded vectors are memoized in a TTL-bounded LRU keyed by input text.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	cache  *expirable.LRU[string, []float32]
	logger *slog.Logger
}

// NewOpenAIEmbedder constructs the embedder. baseURL may be empty for the
// default endpoint; cacheSize <= 0 disables memoization.
func NewOpenAIEmbedder(apiKey, baseURL, model string, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	var cache *expirable.LRU[string, []float32]
	if cacheSize > 0 {
		cache = expirable.NewLRU[string, []float32](cacheSize, nil, cacheTTL)
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		cache:  cache,
		logger: logger,
	}
}

// Encode returns one embedding per input text, in input order.
func (e *OpenAIEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()

	vectors := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if e.cache != nil {
			if vec, ok := e.cache.Get(text); ok {
				vectors[i] = vec
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: missing,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			e.logger.Error("embedding_request_failed",
				slog.String("error", err.Error()),
				slog.Int("text_count", len(missing)))
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) != len(missing) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(missing), len(resp.Data))
		}
		for j, data := range resp.Data {
			vectors[missingIdx[j]] = data.Embedding
			if e.cache != nil {
				e.cache.Add(missing[j], data.Embedding)
			}
		}
	}

	e.logger.Info("embedding_completed",
		slog.Int("text_count", len(texts)),
		slog.Int("cache_hits", len(texts)-len(missing)),
		slog.String("model", e.model),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return vectors, nil
}

// Version identifies the embedding model for cache fingerprinting.
func (e *OpenAIEmbedder) Version() string {
	return e.model
}
