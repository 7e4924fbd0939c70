package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/infra/logger"
	"rerank-pipeline/internal/usecase"
	"rerank-pipeline/internal/usecase/rerank"
	"rerank-pipeline/internal/usecase/retrieval"
)

// Handler exposes the pipeline over HTTP.
type Handler struct {
	rerankUsecase   usecase.RerankUsecase
	twoStageUsecase usecase.TwoStageUsecase
	healthUsecase   usecase.HealthUsecase
}

// NewHandler wires the HTTP surface.
func NewHandler(
	rerankUsecase usecase.RerankUsecase,
	twoStageUsecase usecase.TwoStageUsecase,
	healthUsecase usecase.HealthUsecase,
) *Handler {
	return &Handler{
		rerankUsecase:   rerankUsecase,
		twoStageUsecase: twoStageUsecase,
		healthUsecase:   healthUsecase,
	}
}

// RegisterRoutes attaches the pipeline endpoints to the echo instance.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/rerank", h.Rerank)
	e.POST("/v1/two-stage-search", h.TwoStageSearch)
	e.GET("/v1/rerank/health", h.Health)
	e.GET("/healthz", h.Liveness)
	e.GET("/readyz", h.Readiness)
}

// CostOptimizationDTO mirrors the optimizer knobs on the request.
type CostOptimizationDTO struct {
	Enabled         bool    `json:"enabled"`
	MaxCandidates   int     `json:"maxCandidates"`
	CostThreshold   float64 `json:"costThreshold"`
	PriorityScoring bool    `json:"priorityScoring"`
}

// RerankRequest is the payload of POST /v1/rerank.
type RerankRequest struct {
	Query             string               `json:"query"`
	Documents         []domain.Document    `json:"documents"`
	UserID            string               `json:"userId"`
	RerankingProvider string               `json:"rerankingProvider"`
	TopK              int                  `json:"topK"`
	Model             string               `json:"model"`
	EnableCaching     *bool                `json:"enableCaching"`
	CostOptimization  *CostOptimizationDTO `json:"costOptimization"`
}

// CacheDTO reports how the result cache participated in a request.
// TTL is in seconds.
type CacheDTO struct {
	Hit bool   `json:"hit"`
	Key string `json:"key"`
	TTL int64  `json:"ttl"`
}

// RerankResponse is the payload returned by POST /v1/rerank.
type RerankResponse struct {
	Results          []domain.RerankResult     `json:"results"`
	Query            string                    `json:"query"`
	Provider         string                    `json:"provider"`
	ModelUsed        string                    `json:"model_used"`
	TotalResults     int                       `json:"total_results"`
	InitialDocuments int                       `json:"initial_documents"`
	ExecutionTimeMs  int64                     `json:"execution_time_ms"`
	Metrics          domain.PerformanceMetrics `json:"metrics"`
	Cache            CacheDTO                  `json:"cache"`
	FallbackUsed     bool                      `json:"fallback_used"`
	FallbackReason   string                    `json:"fallback_reason,omitempty"`
}

// Rerank handles POST /v1/rerank.
func (h *Handler) Rerank(ctx echo.Context) error {
	var req RerankRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "invalid request body")
	}

	strategy, err := rerank.ParseStrategy(req.RerankingProvider)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	input := usecase.RerankInput{
		Query:     req.Query,
		Documents: req.Documents,
		UserID:    req.UserID,
		Provider:  strategy,
		TopK:      req.TopK,
		Model:     req.Model,
	}
	if req.EnableCaching != nil {
		input.EnableCaching = *req.EnableCaching
	} else {
		input.EnableCaching = true
	}
	if req.CostOptimization != nil {
		input.CostOptimization = rerank.CostOptimization{
			Enabled:         req.CostOptimization.Enabled,
			MaxCandidates:   req.CostOptimization.MaxCandidates,
			CostThreshold:   req.CostOptimization.CostThreshold,
			PriorityScoring: req.CostOptimization.PriorityScoring,
		}
	}

	reqCtx := ctx.Request().Context()
	if req.UserID != "" {
		reqCtx = logger.WithUserID(reqCtx, req.UserID)
	}

	output, err := h.rerankUsecase.Execute(reqCtx, input)
	if err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			return badRequest(ctx, err.Error())
		}
		return ctx.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	return ctx.JSON(http.StatusOK, RerankResponse{
		Results:          output.Results,
		Query:            output.Query,
		Provider:         output.Provider,
		ModelUsed:        output.ModelUsed,
		TotalResults:     output.TotalResults,
		InitialDocuments: output.InitialDocuments,
		ExecutionTimeMs:  output.ExecutionTimeMs,
		Metrics:          output.Metrics,
		Cache: CacheDTO{
			Hit: output.Cache.Hit,
			Key: output.Cache.Key,
			TTL: int64(output.Cache.TTL.Seconds()),
		},
		FallbackUsed:   output.FallbackUsed,
		FallbackReason: output.FallbackReason,
	})
}

// TwoStageRequest is the payload of POST /v1/two-stage-search.
type TwoStageRequest struct {
	Query             string   `json:"query"`
	DocumentIDs       []string `json:"documentIds"`
	UserID            string   `json:"userId"`
	InitialLimit      int      `json:"initialLimit"`
	FinalLimit        int      `json:"finalLimit"`
	SemanticWeight    float64  `json:"semanticWeight"`
	LexicalWeight     float64  `json:"lexicalWeight"`
	LexicalSearchType string   `json:"lexicalSearchType"`
	ScoringMethod     string   `json:"scoringMethod"`
	EnableStage1      *bool    `json:"enableStage1"`
	EnableStage2      *bool    `json:"enableStage2"`
	RerankingProvider string   `json:"rerankingProvider"`
	RerankingModel    string   `json:"rerankingModel"`
}

// TwoStageResponse is the payload returned by POST /v1/two-stage-search.
type TwoStageResponse struct {
	Results            []usecase.TwoStageItem    `json:"results"`
	Query              string                    `json:"query"`
	Stage1Candidates   int                       `json:"stage1_candidates"`
	Stage1LatencyMs    int64                     `json:"stage1_latency_ms"`
	Stage2LatencyMs    int64                     `json:"stage2_latency_ms"`
	TotalLatencyMs     int64                     `json:"total_latency_ms"`
	Provider           string                    `json:"provider,omitempty"`
	Model              string                    `json:"model,omitempty"`
	Stage2FallbackUsed bool                      `json:"stage2_fallback_used"`
	Metrics            domain.PerformanceMetrics `json:"metrics"`
}

// TwoStageSearch handles POST /v1/two-stage-search.
func (h *Handler) TwoStageSearch(ctx echo.Context) error {
	var req TwoStageRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(ctx, "invalid request body")
	}

	strategy, err := rerank.ParseStrategy(req.RerankingProvider)
	if err != nil {
		return badRequest(ctx, err.Error())
	}

	input := usecase.TwoStageInput{
		Query:             req.Query,
		DocumentIDs:       req.DocumentIDs,
		UserID:            req.UserID,
		InitialLimit:      req.InitialLimit,
		FinalLimit:        req.FinalLimit,
		SemanticWeight:    req.SemanticWeight,
		LexicalWeight:     req.LexicalWeight,
		LexicalSearchType: domain.LexicalSearchType(req.LexicalSearchType),
		ScoringMethod:     retrieval.ScoringMethod(req.ScoringMethod),
		EnableStage1:      true,
		EnableStage2:      true,
		Provider:          strategy,
		Model:             req.RerankingModel,
	}
	if req.EnableStage1 != nil {
		input.EnableStage1 = *req.EnableStage1
	}
	if req.EnableStage2 != nil {
		input.EnableStage2 = *req.EnableStage2
	}

	reqCtx := ctx.Request().Context()
	if req.UserID != "" {
		reqCtx = logger.WithUserID(reqCtx, req.UserID)
	}

	output, err := h.twoStageUsecase.Execute(reqCtx, input)
	if err != nil {
		if errors.Is(err, usecase.ErrValidation) {
			return badRequest(ctx, err.Error())
		}
		return ctx.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}

	return ctx.JSON(http.StatusOK, TwoStageResponse{
		Results:            output.Results,
		Query:              output.Query,
		Stage1Candidates:   output.Stage1Candidates,
		Stage1LatencyMs:    output.Stage1LatencyMs,
		Stage2LatencyMs:    output.Stage2LatencyMs,
		TotalLatencyMs:     output.TotalLatencyMs,
		Provider:           output.Provider,
		Model:              output.Model,
		Stage2FallbackUsed: output.Stage2FallbackUsed,
		Metrics:            output.Metrics,
	})
}

// Health handles GET /v1/rerank/health. A degraded pipeline still answers
// 200; only an unreachable backing store turns the response into a 503.
func (h *Handler) Health(ctx echo.Context) error {
	report := h.healthUsecase.Check(ctx.Request().Context())
	status := http.StatusOK
	if report.Status == usecase.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	return ctx.JSON(status, report)
}

// Liveness handles GET /healthz.
func (h *Handler) Liveness(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handler) Readiness(ctx echo.Context) error {
	report := h.healthUsecase.Check(ctx.Request().Context())
	if report.Status == usecase.StatusUnhealthy {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error   string                    `json:"error"`
	Metrics domain.PerformanceMetrics `json:"metrics"`
}

func errorBody(msg string) errorResponse {
	return errorResponse{
		Error:   msg,
		Metrics: domain.PerformanceMetrics{ErrorRate: 1},
	}
}

func badRequest(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusBadRequest, errorBody(msg))
}
