package retrieval_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/usecase/retrieval"
)

// MockVectorEncoder is a test double for domain.VectorEncoder.
type MockVectorEncoder struct {
	mock.Mock
}

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockVectorEncoder) Version() string { return "test-embedder" }

// MockVectorSearcher is a test double for domain.VectorSearcher.
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) SearchSimilar(ctx context.Context, queryVector []float32, documentIDs []string, threshold float64, limit int) ([]domain.SemanticResult, error) {
	args := m.Called(ctx, queryVector, documentIDs, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SemanticResult), args.Error(1)
}

func (m *MockVectorSearcher) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLexicalSearcher is a test double for domain.LexicalSearcher.
type MockLexicalSearcher struct {
	mock.Mock
}

func (m *MockLexicalSearcher) SearchLexical(ctx context.Context, query string, documentIDs []string, searchType domain.LexicalSearchType, limit int) ([]domain.LexicalResult, error) {
	args := m.Called(ctx, query, documentIDs, searchType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LexicalResult), args.Error(1)
}

// MockQueryExpander is a test double for domain.QueryExpander.
type MockQueryExpander struct {
	mock.Mock
}

func (m *MockQueryExpander) Expand(ctx context.Context, query string) (string, error) {
	args := m.Called(ctx, query)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func embedding() [][]float32 {
	return [][]float32{{0.1, 0.2, 0.3}}
}

func TestHybridRetriever_WeightedSumFusion(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)

	encoder.On("Encode", mock.Anything, []string{"test query"}).Return(embedding(), nil)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, 0.3, 50).
		Return([]domain.SemanticResult{
			{DocumentID: "doc-1", Content: "semantic hit", Score: 0.9},
			{DocumentID: "doc-2", Content: "both", Score: 0.5},
		}, nil)
	lexical.On("SearchLexical", mock.Anything, "test query", mock.Anything, domain.LexicalBM25, 50).
		Return([]domain.LexicalResult{
			{DocumentID: "doc-2", Content: "both", Rank: 1, Score: 8.0},
			{DocumentID: "doc-3", Content: "lexical only", Rank: 2, Score: 4.0},
		}, nil)

	r := retrieval.NewHybridRetriever(encoder, vectors, lexical, nil, testLogger())
	candidates, err := r.Retrieve(context.Background(), "rid-1", "test query", []string{"doc-1", "doc-2", "doc-3"}, retrieval.DefaultConfig())

	require.NoError(t, err)
	require.Len(t, candidates, 3)

	byID := make(map[string]domain.HybridCandidate)
	for _, c := range candidates {
		byID[c.ID] = c
	}

	// doc-1: semantic only, 0.9*0.7
	assert.InDelta(t, 0.63, byID["doc-1"].HybridScore, 1e-9)
	// doc-2: 0.5*0.7 + (8/8)*0.3
	assert.InDelta(t, 0.65, byID["doc-2"].HybridScore, 1e-9)
	// doc-3: lexical only, (4/8)*0.3
	assert.InDelta(t, 0.15, byID["doc-3"].HybridScore, 1e-9)

	assert.Equal(t, "doc-2", candidates[0].ID, "candidates sorted by hybrid score descending")
	assert.Equal(t, 1, byID["doc-1"].SemanticRank)
	assert.Equal(t, 1, byID["doc-2"].LexicalRank)
}

func TestHybridRetriever_DropsLexicalBelowThreshold(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)

	encoder.On("Encode", mock.Anything, mock.Anything).Return(embedding(), nil)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.SemanticResult{}, nil)
	lexical.On("SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LexicalResult{
			{DocumentID: "doc-1", Rank: 1, Score: 0.5},
			{DocumentID: "doc-2", Rank: 2, Score: 0.05},
		}, nil)

	cfg := retrieval.DefaultConfig()
	cfg.LexicalThreshold = 0.1

	r := retrieval.NewHybridRetriever(encoder, vectors, lexical, nil, testLogger())
	candidates, err := r.Retrieve(context.Background(), "rid-2", "q", nil, cfg)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "doc-1", candidates[0].ID)
}

func TestHybridRetriever_InvalidWeights(t *testing.T) {
	cfg := retrieval.DefaultConfig()
	cfg.SemanticWeight = 0.5
	cfg.LexicalWeight = 0.4

	r := retrieval.NewHybridRetriever(new(MockVectorEncoder), new(MockVectorSearcher), new(MockLexicalSearcher), nil, testLogger())
	_, err := r.Retrieve(context.Background(), "rid-3", "q", nil, cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must sum to 1.0")
}

func TestHybridRetriever_RRFFusion(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)

	encoder.On("Encode", mock.Anything, mock.Anything).Return(embedding(), nil)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.SemanticResult{
			{DocumentID: "doc-1", Score: 0.9},
		}, nil)
	lexical.On("SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LexicalResult{
			{DocumentID: "doc-1", Rank: 1, Score: 5.0},
		}, nil)

	cfg := retrieval.DefaultConfig()
	cfg.Method = retrieval.ScoringRRF
	cfg.RRFK = 60

	r := retrieval.NewHybridRetriever(encoder, vectors, lexical, nil, testLogger())
	candidates, err := r.Retrieve(context.Background(), "rid-4", "q", nil, cfg)

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	// Present in both sets at rank 1: (1/61)*0.7 + (1/61)*0.3 = 1/61.
	assert.InDelta(t, 1.0/61.0, candidates[0].HybridScore, 1e-9)
}

func TestHybridRetriever_ExpanderRewritesLexicalQuery(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	expander := new(MockQueryExpander)

	encoder.On("Encode", mock.Anything, []string{"ai"}).Return(embedding(), nil)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.SemanticResult{}, nil)
	expander.On("Expand", mock.Anything, "ai").Return("ai artificial intelligence", nil)
	lexical.On("SearchLexical", mock.Anything, "ai artificial intelligence", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LexicalResult{}, nil)

	cfg := retrieval.DefaultConfig()
	cfg.ExpandQuery = true

	r := retrieval.NewHybridRetriever(encoder, vectors, lexical, expander, testLogger())
	_, err := r.Retrieve(context.Background(), "rid-5", "ai", nil, cfg)

	require.NoError(t, err)
	lexical.AssertExpectations(t)
}

func TestHybridRetriever_ExpanderFailureIsNonFatal(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	expander := new(MockQueryExpander)

	encoder.On("Encode", mock.Anything, mock.Anything).Return(embedding(), nil)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.SemanticResult{}, nil)
	expander.On("Expand", mock.Anything, mock.Anything).Return("", errors.New("expander down"))
	lexical.On("SearchLexical", mock.Anything, "ai", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LexicalResult{}, nil)

	cfg := retrieval.DefaultConfig()
	cfg.ExpandQuery = true

	r := retrieval.NewHybridRetriever(encoder, vectors, lexical, expander, testLogger())
	_, err := r.Retrieve(context.Background(), "rid-6", "ai", nil, cfg)

	require.NoError(t, err, "expansion failure falls back to the original query")
	lexical.AssertExpectations(t)
}

func TestHybridRetriever_NilVectorSearcher(t *testing.T) {
	r := retrieval.NewHybridRetriever(new(MockVectorEncoder), nil, new(MockLexicalSearcher), nil, testLogger())

	_, err := r.Retrieve(context.Background(), "rid-7", "q", nil, retrieval.DefaultConfig())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector searcher not configured")
}
