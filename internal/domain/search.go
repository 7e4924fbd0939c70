package domain

import "context"

// SemanticResult is a single hit from embedding-similarity search.
type SemanticResult struct {
	DocumentID string
	Content    string
	Metadata   map[string]any
	// Score is cosine similarity in [0,1], highest first.
	Score float64
}

// LexicalSearchType selects the full-text matching mode for Stage-1.
type LexicalSearchType string

const (
	LexicalBasic     LexicalSearchType = "basic"
	LexicalBM25      LexicalSearchType = "bm25"
	LexicalPhrase    LexicalSearchType = "phrase"
	LexicalProximity LexicalSearchType = "proximity"
)

// Valid reports whether t is one of the supported search types.
func (t LexicalSearchType) Valid() bool {
	switch t {
	case LexicalBasic, LexicalBM25, LexicalPhrase, LexicalProximity:
		return true
	}
	return false
}

// LexicalResult is a single hit from keyword search.
// Used for hybrid fusion with semantic search results.
//
// Research basis:
// - EMNLP 2024: Hybrid search with alpha=0.3 outperforms pure vector search
// - IBM Research: 3-way hybrid (BM25+dense+sparse) provides +48% improvement
type LexicalResult struct {
	DocumentID string
	Content    string
	Metadata   map[string]any
	// Rank is the position in lexical results (1-indexed).
	Rank int
	// Score is the lexical relevance score (BM25 or ts_rank depending on type).
	Score float64
}

// VectorSearcher performs embedding-similarity search over the corpus,
// optionally restricted to a document-id set and a minimum similarity.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, queryVector []float32, documentIDs []string, threshold float64, limit int) ([]SemanticResult, error)

	// Ping reports whether the backing store is reachable, for health checks.
	Ping(ctx context.Context) error
}

// LexicalSearcher performs keyword search over the corpus. Results are
// sorted by relevance (highest first) with 1-based ranks.
type LexicalSearcher interface {
	SearchLexical(ctx context.Context, query string, documentIDs []string, searchType LexicalSearchType, limit int) ([]LexicalResult, error)
}

// QueryExpander rewrites a query before lexical search. Failures are
// non-fatal; callers proceed with the original query.
type QueryExpander interface {
	Expand(ctx context.Context, query string) (string, error)
}
