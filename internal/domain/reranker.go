package domain

import "context"

// ProviderScore is a single (index, relevance) pair returned by an external
// re-ranking API. Index refers to the position in the submitted text list.
type ProviderScore struct {
	Index     int
	Relevance float64
}

// RerankProvider is an external re-ranking API (e.g. a Cohere-style rerank
// endpoint) that scores a list of texts against a query.
//
// Research basis:
// - Pinecone: Two-stage retrieval with cross-encoders improves NDCG@10 by 15-30%
// - Best practice: Rerank 50-150 candidates down to 10-20 for LLM context
type RerankProvider interface {
	// Rerank scores texts against the query and returns (index, relevance)
	// pairs sorted by relevance descending, at most topN entries.
	// If an error occurs, callers decide between retry and fallback scoring.
	Rerank(ctx context.Context, query string, texts []string, topN int) ([]ProviderScore, error)

	// ModelName returns the model identifier for logging and cost lookup.
	ModelName() string

	// Name returns the provider identifier used for circuit-breaker keying.
	Name() string
}

// CrossEncoder scores (query, text) pairs with a pairwise relevance model.
// Implementations report Configured() == false when the backing service is
// not set up, in which case callers fall back to heuristic scoring.
type CrossEncoder interface {
	// ScorePairs returns one relevance score per input text, in input order.
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)

	// Configured reports whether the backing service is set up.
	Configured() bool

	// ModelName returns the model identifier for logging.
	ModelName() string
}
