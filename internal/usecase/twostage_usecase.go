package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/usecase/rerank"
	"rerank-pipeline/internal/usecase/retrieval"
)

// TwoStageInput encapsulates the parameters for a two-stage search request.
type TwoStageInput struct {
	Query             string
	DocumentIDs       []string
	UserID            string
	InitialLimit      int
	FinalLimit        int
	SemanticWeight    float64
	LexicalWeight     float64
	LexicalSearchType domain.LexicalSearchType
	ScoringMethod     retrieval.ScoringMethod
	EnableStage1      bool
	EnableStage2      bool
	Provider          rerank.Strategy
	Model             string
}

// TwoStageItem is the merged per-document record. Stage-1 fields are always
// populated; Stage-2 fields are overlaid when re-ranking ran, with Reranked
// marking whether the overlay happened.
type TwoStageItem struct {
	DocumentID      string         `json:"document_id"`
	Content         string         `json:"content"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	HybridScore     float64        `json:"hybrid_score"`
	SemanticScore   float64        `json:"semantic_score"`
	LexicalScore    float64        `json:"lexical_score"`
	Stage1Rank      int            `json:"stage1_rank"`
	RerankingScore  float64        `json:"reranking_score"`
	RerankingRank   int            `json:"reranking_rank"`
	ConfidenceScore float64        `json:"confidence_score"`
	ModelUsed       string         `json:"model_used,omitempty"`
	Provider        string         `json:"provider,omitempty"`
	Reranked        bool           `json:"reranked"`
}

// TwoStageOutput carries the merged results plus per-stage timings.
type TwoStageOutput struct {
	Results            []TwoStageItem
	Query              string
	Stage1Candidates   int
	Stage1LatencyMs    int64
	Stage2LatencyMs    int64
	TotalLatencyMs     int64
	Provider           string
	Model              string
	Stage2FallbackUsed bool
	Metrics            domain.PerformanceMetrics
}

// TwoStageUsecase defines the contract for the two-stage search endpoint.
type TwoStageUsecase interface {
	Execute(ctx context.Context, input TwoStageInput) (*TwoStageOutput, error)
}

type twoStageUsecase struct {
	retriever *retrieval.HybridRetriever
	reranker  RerankUsecase
	baseCfg   retrieval.Config
	logger    *slog.Logger
}

// NewTwoStageUsecase creates the orchestrator over Stage-1 retrieval and the
// Stage-2 re-ranking usecase.
func NewTwoStageUsecase(
	retriever *retrieval.HybridRetriever,
	reranker RerankUsecase,
	baseCfg retrieval.Config,
	logger *slog.Logger,
) TwoStageUsecase {
	return &twoStageUsecase{
		retriever: retriever,
		reranker:  reranker,
		baseCfg:   baseCfg,
		logger:    logger,
	}
}

const (
	// DefaultInitialLimit caps the candidates handed from Stage-1 to Stage-2.
	DefaultInitialLimit = 50
	// DefaultFinalLimit caps the merged response.
	DefaultFinalLimit = 10
)

func (u *twoStageUsecase) Execute(ctx context.Context, input TwoStageInput) (*TwoStageOutput, error) {
	start := time.Now()
	retrievalID := uuid.New().String()

	if input.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrValidation)
	}
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if len(input.DocumentIDs) == 0 {
		return nil, fmt.Errorf("%w: documentIds are required", ErrValidation)
	}

	cfg := u.stageConfig(input)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	if input.InitialLimit <= 0 {
		input.InitialLimit = DefaultInitialLimit
	}
	if input.FinalLimit <= 0 {
		input.FinalLimit = DefaultFinalLimit
	}

	// Stage 1: hybrid retrieval. A failure here degrades to an empty
	// candidate set, not an aborted request.
	var candidates []domain.HybridCandidate
	var stage1Latency int64
	if input.EnableStage1 {
		stage1Start := time.Now()
		retrieved, err := u.retriever.Retrieve(ctx, retrievalID, input.Query, input.DocumentIDs, cfg)
		stage1Latency = time.Since(stage1Start).Milliseconds()
		if err != nil {
			u.logger.WarnContext(ctx, "stage1_retrieval_failed",
				slog.String("retrieval_id", retrievalID),
				slog.String("error", err.Error()))
		} else {
			candidates = retrieved
		}
	}

	// Stage 2: re-ranking over the top candidates. A failure degrades to
	// Stage-1 ordering with a fixed confidence.
	var rerankOut *RerankOutput
	var stage2Latency int64
	stage2Fallback := false
	if input.EnableStage2 && len(candidates) > 0 {
		limit := input.InitialLimit
		if len(candidates) < limit {
			limit = len(candidates)
		}
		documents := make([]domain.Document, limit)
		for i, c := range candidates[:limit] {
			documents[i] = domain.Document{
				ID:           c.ID,
				Content:      c.Content,
				Metadata:     c.Metadata,
				InitialScore: c.HybridScore,
				InitialRank:  i + 1,
			}
		}

		stage2Start := time.Now()
		out, err := u.reranker.Execute(ctx, RerankInput{
			Query:            input.Query,
			Documents:        documents,
			UserID:           input.UserID,
			Provider:         input.Provider,
			TopK:             input.FinalLimit,
			Model:            input.Model,
			EnableCaching:    true,
			CostOptimization: rerank.DefaultCostOptimization(),
		})
		stage2Latency = time.Since(stage2Start).Milliseconds()
		if err != nil {
			stage2Fallback = true
			u.logger.WarnContext(ctx, "stage2_reranking_failed_using_stage1_ranking",
				slog.String("retrieval_id", retrievalID),
				slog.String("error", err.Error()))
		} else {
			rerankOut = out
		}
	}

	results := mergeStages(candidates, rerankOut)
	if len(results) > input.FinalLimit {
		results = results[:input.FinalLimit]
	}

	total := time.Since(start).Milliseconds()
	output := &TwoStageOutput{
		Results:            results,
		Query:              input.Query,
		Stage1Candidates:   len(candidates),
		Stage1LatencyMs:    stage1Latency,
		Stage2LatencyMs:    stage2Latency,
		TotalLatencyMs:     total,
		Stage2FallbackUsed: stage2Fallback,
		Metrics: domain.PerformanceMetrics{
			ExecutionTimeMs:      total,
			ThroughputDocsPerSec: throughput(len(candidates), total),
			FallbackUsed:         stage2Fallback,
		},
	}
	if rerankOut != nil {
		output.Provider = rerankOut.Provider
		output.Model = rerankOut.ModelUsed
		output.Metrics.APICallsCount = rerankOut.Metrics.APICallsCount
		output.Metrics.CostUSD = rerankOut.Metrics.CostUSD
		output.Metrics.RetryCount = rerankOut.Metrics.RetryCount
		output.Metrics.CacheHitRate = rerankOut.Metrics.CacheHitRate
		output.Metrics.FallbackUsed = output.Metrics.FallbackUsed || rerankOut.FallbackUsed
	}

	u.logger.InfoContext(ctx, "two_stage_search_completed",
		slog.String("retrieval_id", retrievalID),
		slog.Int("stage1_candidates", len(candidates)),
		slog.Int("result_count", len(results)),
		slog.Bool("stage2_fallback", stage2Fallback),
		slog.Int64("stage1_ms", stage1Latency),
		slog.Int64("stage2_ms", stage2Latency),
		slog.Int64("total_ms", total))

	return output, nil
}

func (u *twoStageUsecase) stageConfig(input TwoStageInput) retrieval.Config {
	cfg := u.baseCfg
	if input.SemanticWeight != 0 || input.LexicalWeight != 0 {
		cfg.SemanticWeight = input.SemanticWeight
		cfg.LexicalWeight = input.LexicalWeight
	}
	if input.LexicalSearchType != "" {
		cfg.SearchType = input.LexicalSearchType
	}
	if input.ScoringMethod != "" {
		cfg.Method = input.ScoringMethod
	}
	return cfg
}

// mergeStages seeds the result map from Stage-1 and overlays Stage-2 scores
// where present. Without any overlay the Stage-1 ordering survives with
// reranking_score mirroring hybrid_score at a fixed 0.5 confidence.
func mergeStages(candidates []domain.HybridCandidate, rerankOut *RerankOutput) []TwoStageItem {
	merged := make(map[string]*TwoStageItem, len(candidates))
	order := make([]string, 0, len(candidates))

	for i, c := range candidates {
		merged[c.ID] = &TwoStageItem{
			DocumentID:      c.ID,
			Content:         c.Content,
			Metadata:        c.Metadata,
			HybridScore:     c.HybridScore,
			SemanticScore:   c.SemanticScore,
			LexicalScore:    c.LexicalScore,
			Stage1Rank:      i + 1,
			RerankingScore:  c.HybridScore,
			ConfidenceScore: 0.5,
		}
		order = append(order, c.ID)
	}

	reranked := false
	if rerankOut != nil {
		for _, r := range rerankOut.Results {
			item, ok := merged[r.ID]
			if !ok {
				continue
			}
			item.RerankingScore = r.RerankingScore
			item.RerankingRank = r.RerankingRank
			item.ConfidenceScore = r.ConfidenceScore
			item.ModelUsed = r.ModelUsed
			item.Provider = r.Provider
			item.Reranked = true
			reranked = true
		}
	}

	results := make([]TwoStageItem, 0, len(order))
	for _, id := range order {
		results = append(results, *merged[id])
	}

	if reranked {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].RerankingScore > results[j].RerankingScore
		})
	} else {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].HybridScore > results[j].HybridScore
		})
	}
	for i := range results {
		results[i].RerankingRank = i + 1
	}
	return results
}
