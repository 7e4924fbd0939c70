package usecase_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/usecase"
	"rerank-pipeline/internal/usecase/retrieval"
)

type MockVectorEncoder struct{ mock.Mock }

func (m *MockVectorEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockVectorEncoder) Version() string { return "test-encoder" }

type MockVectorSearcher struct{ mock.Mock }

func (m *MockVectorSearcher) SearchSimilar(ctx context.Context, vec []float32, docIDs []string, threshold float64, limit int) ([]domain.SemanticResult, error) {
	args := m.Called(ctx, vec, docIDs, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SemanticResult), args.Error(1)
}

func (m *MockVectorSearcher) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockLexicalSearcher struct{ mock.Mock }

func (m *MockLexicalSearcher) SearchLexical(ctx context.Context, query string, docIDs []string, searchType domain.LexicalSearchType, limit int) ([]domain.LexicalResult, error) {
	args := m.Called(ctx, query, docIDs, searchType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.LexicalResult), args.Error(1)
}

type MockRerankUsecase struct{ mock.Mock }

func (m *MockRerankUsecase) Execute(ctx context.Context, input usecase.RerankInput) (*usecase.RerankOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.RerankOutput), args.Error(1)
}

func newTestRetriever(encoder *MockVectorEncoder, vectors *MockVectorSearcher, lexical *MockLexicalSearcher) *retrieval.HybridRetriever {
	return retrieval.NewHybridRetriever(encoder, vectors, lexical, nil, slog.Default())
}

func stage1Fixture(encoder *MockVectorEncoder, vectors *MockVectorSearcher, lexical *MockLexicalSearcher) {
	encoder.On("Encode", mock.Anything, []string{"test query"}).
		Return([][]float32{{0.1, 0.2}}, nil)
	vectors.On("SearchSimilar", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.SemanticResult{
			{DocumentID: "doc-1", Content: "first document", Score: 0.9},
			{DocumentID: "doc-2", Content: "second document", Score: 0.6},
		}, nil)
	lexical.On("SearchLexical", mock.Anything, "test query", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LexicalResult{
			{DocumentID: "doc-2", Content: "second document", Rank: 1, Score: 5.0},
		}, nil)
}

func TestTwoStageUsecase_RejectsInvalidWeights(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	reranker := new(MockRerankUsecase)

	uc := usecase.NewTwoStageUsecase(newTestRetriever(encoder, vectors, lexical), reranker, retrieval.DefaultConfig(), slog.Default())

	_, err := uc.Execute(context.Background(), usecase.TwoStageInput{
		Query:          "test query",
		DocumentIDs:    []string{"doc-1"},
		UserID:         "user-1",
		SemanticWeight: 0.8,
		LexicalWeight:  0.4,
		EnableStage1:   true,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, usecase.ErrValidation)
	assert.Contains(t, err.Error(), "must sum to 1.0")
}

func TestTwoStageUsecase_RejectsMissingFields(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	reranker := new(MockRerankUsecase)

	uc := usecase.NewTwoStageUsecase(newTestRetriever(encoder, vectors, lexical), reranker, retrieval.DefaultConfig(), slog.Default())

	_, err := uc.Execute(context.Background(), usecase.TwoStageInput{DocumentIDs: []string{"doc-1"}, UserID: "u"})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = uc.Execute(context.Background(), usecase.TwoStageInput{Query: "q", UserID: "u"})
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = uc.Execute(context.Background(), usecase.TwoStageInput{Query: "q", DocumentIDs: []string{"doc-1"}})
	assert.ErrorIs(t, err, usecase.ErrValidation)
}

func TestTwoStageUsecase_BothStages(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	reranker := new(MockRerankUsecase)
	stage1Fixture(encoder, vectors, lexical)

	reranker.On("Execute", mock.Anything, mock.MatchedBy(func(input usecase.RerankInput) bool {
		return input.Query == "test query" && len(input.Documents) == 2 &&
			input.Documents[0].InitialRank == 1
	})).Return(&usecase.RerankOutput{
		Results: []domain.RerankResult{
			{Document: domain.Document{ID: "doc-2", Content: "second document"}, RerankingScore: 0.92, RerankingRank: 1, ConfidenceScore: 0.9, ModelUsed: "rerank-english-v3.0", Provider: "cohere"},
			{Document: domain.Document{ID: "doc-1", Content: "first document"}, RerankingScore: 0.4, RerankingRank: 2, ConfidenceScore: 0.8, ModelUsed: "rerank-english-v3.0", Provider: "cohere"},
		},
		Provider:  "cohere",
		ModelUsed: "rerank-english-v3.0",
	}, nil)

	uc := usecase.NewTwoStageUsecase(newTestRetriever(encoder, vectors, lexical), reranker, retrieval.DefaultConfig(), slog.Default())

	out, err := uc.Execute(context.Background(), usecase.TwoStageInput{
		Query:        "test query",
		DocumentIDs:  []string{"doc-1", "doc-2"},
		UserID:       "user-1",
		EnableStage1: true,
		EnableStage2: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	// Stage-2 ordering wins: doc-2 overtakes doc-1.
	assert.Equal(t, "doc-2", out.Results[0].DocumentID)
	assert.Equal(t, 1, out.Results[0].RerankingRank)
	assert.True(t, out.Results[0].Reranked)
	assert.Equal(t, "cohere", out.Results[0].Provider)
	assert.Equal(t, "doc-1", out.Results[1].DocumentID)
	assert.Equal(t, 2, out.Results[1].RerankingRank)
	assert.False(t, out.Stage2FallbackUsed)
	assert.Equal(t, 2, out.Stage1Candidates)
}

func TestTwoStageUsecase_Stage2FailureDegradesToStage1(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	reranker := new(MockRerankUsecase)
	stage1Fixture(encoder, vectors, lexical)

	reranker.On("Execute", mock.Anything, mock.Anything).
		Return(nil, errors.New("provider meltdown"))

	uc := usecase.NewTwoStageUsecase(newTestRetriever(encoder, vectors, lexical), reranker, retrieval.DefaultConfig(), slog.Default())

	out, err := uc.Execute(context.Background(), usecase.TwoStageInput{
		Query:        "test query",
		DocumentIDs:  []string{"doc-1", "doc-2"},
		UserID:       "user-1",
		EnableStage1: true,
		EnableStage2: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.True(t, out.Stage2FallbackUsed)

	// Stage-1 ordering survives with hybrid scores and a fixed confidence.
	for _, r := range out.Results {
		assert.False(t, r.Reranked)
		assert.Equal(t, r.HybridScore, r.RerankingScore)
		assert.Equal(t, 0.5, r.ConfidenceScore)
	}
	assert.GreaterOrEqual(t, out.Results[0].RerankingScore, out.Results[1].RerankingScore)
	assert.Equal(t, 1, out.Results[0].RerankingRank)
}

func TestTwoStageUsecase_Stage1FailureYieldsEmptyResults(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	reranker := new(MockRerankUsecase)

	encoder.On("Encode", mock.Anything, mock.Anything).
		Return(nil, errors.New("embedding service down"))
	lexical.On("SearchLexical", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.LexicalResult{}, nil)

	uc := usecase.NewTwoStageUsecase(newTestRetriever(encoder, vectors, lexical), reranker, retrieval.DefaultConfig(), slog.Default())

	out, err := uc.Execute(context.Background(), usecase.TwoStageInput{
		Query:        "test query",
		DocumentIDs:  []string{"doc-1"},
		UserID:       "user-1",
		EnableStage1: true,
		EnableStage2: true,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Equal(t, 0, out.Stage1Candidates)
	reranker.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestTwoStageUsecase_FinalLimitTruncates(t *testing.T) {
	encoder := new(MockVectorEncoder)
	vectors := new(MockVectorSearcher)
	lexical := new(MockLexicalSearcher)
	reranker := new(MockRerankUsecase)
	stage1Fixture(encoder, vectors, lexical)

	uc := usecase.NewTwoStageUsecase(newTestRetriever(encoder, vectors, lexical), reranker, retrieval.DefaultConfig(), slog.Default())

	out, err := uc.Execute(context.Background(), usecase.TwoStageInput{
		Query:        "test query",
		DocumentIDs:  []string{"doc-1", "doc-2"},
		UserID:       "user-1",
		FinalLimit:   1,
		EnableStage1: true,
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
}
