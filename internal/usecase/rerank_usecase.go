package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/usecase/rerank"
)

// ErrValidation marks malformed requests. Handlers map it to a 400 response;
// it is never retried and never triggers a scoring fallback.
var ErrValidation = errors.New("validation error")

// RerankInput encapsulates the parameters that drive a re-ranking request.
type RerankInput struct {
	Query            string
	Documents        []domain.Document
	UserID           string
	Provider         rerank.Strategy
	TopK             int
	Model            string
	EnableCaching    bool
	CostOptimization rerank.CostOptimization
}

// CacheInfo reports how the result cache participated in the request.
type CacheInfo struct {
	Hit bool          `json:"hit"`
	Key string        `json:"key"`
	TTL time.Duration `json:"ttl"`
}

// RerankOutput is the normalized response returned to API clients.
type RerankOutput struct {
	Results          []domain.RerankResult
	Query            string
	Provider         string
	ModelUsed        string
	TotalResults     int
	InitialDocuments int
	ExecutionTimeMs  int64
	Metrics          domain.PerformanceMetrics
	Cache            CacheInfo
	FallbackUsed     bool
	FallbackReason   string
}

// RerankUsecase defines the contract for the re-ranking endpoint.
type RerankUsecase interface {
	Execute(ctx context.Context, input RerankInput) (*RerankOutput, error)
}

type rerankUsecase struct {
	engine    *rerank.Engine
	cache     *rerank.ResultCache
	analytics domain.AnalyticsSink
	logger    *slog.Logger
}

// NewRerankUsecase creates the re-ranking usecase. analytics may be nil.
func NewRerankUsecase(
	engine *rerank.Engine,
	cache *rerank.ResultCache,
	analytics domain.AnalyticsSink,
	logger *slog.Logger,
) RerankUsecase {
	return &rerankUsecase{
		engine:    engine,
		cache:     cache,
		analytics: analytics,
		logger:    logger,
	}
}

const (
	// DefaultTopK is applied when the request omits topK.
	DefaultTopK = 20
	// DefaultModel is applied when the request omits the model.
	DefaultModel = "rerank-english-v3.0"
)

func (u *rerankUsecase) Execute(ctx context.Context, input RerankInput) (*RerankOutput, error) {
	start := time.Now()
	requestID := uuid.New().String()

	if input.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if input.Documents == nil {
		return nil, fmt.Errorf("%w: documents are required", ErrValidation)
	}

	if input.TopK <= 0 {
		input.TopK = DefaultTopK
	}
	if input.Model == "" {
		input.Model = DefaultModel
	}
	if input.Provider == "" {
		input.Provider = rerank.StrategyProvider
	}

	// Empty candidate set short-circuits before any pipeline work.
	if len(input.Documents) == 0 {
		return &RerankOutput{
			Results:         []domain.RerankResult{},
			Query:           input.Query,
			Provider:        string(input.Provider),
			ModelUsed:       input.Model,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			Metrics:         domain.PerformanceMetrics{ExecutionTimeMs: time.Since(start).Milliseconds()},
		}, nil
	}

	// Missing ranks default to input position; the pipeline relies on 1-based
	// initial ranks for the stability indicator.
	for i := range input.Documents {
		if input.Documents[i].InitialRank <= 0 {
			input.Documents[i].InitialRank = i + 1
		}
	}

	candidates := rerank.OptimizeCandidates(input.Documents, input.CostOptimization, rerank.CostPerDocument(input.Model))

	ids := make([]string, len(candidates))
	for i, d := range candidates {
		ids[i] = d.ID
	}
	cacheKey := rerank.CacheKey(input.Query, ids, input.Model, input.TopK)

	if input.EnableCaching {
		if entry := u.cache.Get(cacheKey); entry != nil {
			results := make([]domain.RerankResult, len(entry.Results))
			copy(results, entry.Results)
			for i := range results {
				results[i].CacheHit = true
			}
			elapsed := time.Since(start).Milliseconds()
			u.logger.InfoContext(ctx, "rerank_cache_hit",
				slog.String("request_id", requestID),
				slog.String("cache_key", cacheKey),
				slog.Int("result_count", len(results)))
			output := &RerankOutput{
				Results:          results,
				Query:            input.Query,
				Provider:         entry.Metadata.Provider,
				ModelUsed:        entry.Metadata.Model,
				TotalResults:     len(results),
				InitialDocuments: len(input.Documents),
				ExecutionTimeMs:  elapsed,
				Metrics: domain.PerformanceMetrics{
					ExecutionTimeMs:      elapsed,
					CacheHitRate:         1,
					ThroughputDocsPerSec: throughput(len(candidates), elapsed),
				},
				Cache: CacheInfo{Hit: true, Key: cacheKey, TTL: u.cache.TTL()},
			}
			u.publish(input, output, requestID)
			return output, nil
		}
	}

	outcome, err := u.engine.Score(ctx, rerank.ScoreRequest{
		Query:     input.Query,
		Documents: candidates,
		TopK:      input.TopK,
		Strategy:  input.Provider,
		Model:     input.Model,
	})
	if err != nil {
		u.logger.ErrorContext(ctx, "rerank_failed",
			slog.String("request_id", requestID),
			slog.String("provider", string(input.Provider)),
			slog.String("error", err.Error()))
		return nil, err
	}

	elapsed := time.Since(start).Milliseconds()
	output := &RerankOutput{
		Results:          outcome.Results,
		Query:            input.Query,
		Provider:         outcome.Provider,
		ModelUsed:        outcome.Model,
		TotalResults:     len(outcome.Results),
		InitialDocuments: len(input.Documents),
		ExecutionTimeMs:  elapsed,
		Metrics: domain.PerformanceMetrics{
			ExecutionTimeMs:      elapsed,
			APICallsCount:        outcome.APICalls,
			CostUSD:              outcome.CostUSD,
			ThroughputDocsPerSec: throughput(len(candidates), elapsed),
			RetryCount:           outcome.Retries,
			FallbackUsed:         outcome.FallbackUsed,
		},
		Cache:          CacheInfo{Hit: false, Key: cacheKey, TTL: u.cache.TTL()},
		FallbackUsed:   outcome.FallbackUsed,
		FallbackReason: outcome.FallbackReason,
	}

	if input.EnableCaching {
		u.cache.Put(cacheKey, outcome.Results, rerank.CacheEntryMeta{
			Model:         outcome.Model,
			Provider:      outcome.Provider,
			DocumentCount: len(candidates),
		})
	}

	u.logger.InfoContext(ctx, "rerank_completed",
		slog.String("request_id", requestID),
		slog.String("provider", outcome.Provider),
		slog.String("model", outcome.Model),
		slog.Int("initial_documents", len(input.Documents)),
		slog.Int("result_count", len(outcome.Results)),
		slog.Bool("fallback_used", outcome.FallbackUsed),
		slog.Int64("duration_ms", elapsed))

	u.publish(input, output, requestID)
	return output, nil
}

// publish sends the analytics event; the sink is fire-and-forget and must
// never fail the request.
func (u *rerankUsecase) publish(input RerankInput, output *RerankOutput, requestID string) {
	if u.analytics == nil {
		return
	}
	id, err := uuid.Parse(requestID)
	if err != nil {
		id = uuid.New()
	}
	u.analytics.Publish(context.Background(), domain.PipelineEvent{
		ID:            id,
		UserID:        input.UserID,
		Query:         input.Query,
		Provider:      output.Provider,
		Model:         output.ModelUsed,
		DocumentCount: len(input.Documents),
		ResultCount:   output.TotalResults,
		Metrics:       output.Metrics,
		CreatedAt:     time.Now(),
	})
}

func throughput(docs int, elapsedMs int64) float64 {
	if elapsedMs <= 0 {
		elapsedMs = 1
	}
	return float64(docs) / (float64(elapsedMs) / 1000)
}
