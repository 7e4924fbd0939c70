package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"rerank-pipeline/internal/domain"
)

// Strategy selects how candidates are scored. The set is fixed; dispatch is
// over this enum, never over free-form strings from the wire (those are
// parsed once at the handler boundary).
type Strategy string

const (
	StrategyProvider      Strategy = "cohere"
	StrategyCrossEncoder  Strategy = "cross_encoder"
	StrategyHybrid        Strategy = "hybrid"
	StrategyHeuristic     Strategy = "enhanced_fallback"
	StrategyBasicFallback Strategy = "basic_fallback"
)

// ParseStrategy maps a wire-level provider name to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyProvider, StrategyCrossEncoder, StrategyHybrid, StrategyHeuristic:
		return Strategy(s), nil
	case "":
		return StrategyProvider, nil
	}
	return "", fmt.Errorf("invalid reranking provider %q", s)
}

// Per-document pricing for paid rerank models, in USD.
var modelCostPerDoc = map[string]float64{
	"rerank-english-v3.0":      0.00002,
	"rerank-multilingual-v3.0": 0.00002,
	"rerank-english-v2.0":      0.00001,
}

const defaultCostPerDoc = 0.00002

// CostPerDocument returns the per-document price for a model.
func CostPerDocument(model string) float64 {
	if c, ok := modelCostPerDoc[model]; ok {
		return c
	}
	return defaultCostPerDoc
}

const (
	// providerDocLimit caps document text sent to the paid rerank API.
	providerDocLimit = 1000
	// crossEncoderDocLimit caps text per (query, document) pair.
	crossEncoderDocLimit = 512

	heuristicModelName = "enhanced-heuristic"
	basicModelName     = "word-overlap"
)

// ScoreRequest describes one scoring pass over a candidate set.
type ScoreRequest struct {
	Query     string
	Documents []domain.Document
	TopK      int
	Strategy  Strategy
	Model     string
}

// ScoreOutcome is the engine's result plus the accounting the caller folds
// into its per-request metrics.
type ScoreOutcome struct {
	Results        []domain.RerankResult
	Provider       string
	Model          string
	APICalls       int
	Retries        int
	CostUSD        float64
	FallbackUsed   bool
	FallbackReason string
}

// Engine dispatches scoring to one of the fixed strategies, guarded by the
// circuit breaker and the retry controller, and normalizes every output into
// rank-ordered RerankResults.
type Engine struct {
	provider     domain.RerankProvider
	crossEncoder domain.CrossEncoder
	breaker      *CircuitBreaker
	retryCfg     RetryConfig
	logger       *slog.Logger

	now func() time.Time
}

// NewEngine wires the engine with its providers and guards.
func NewEngine(
	provider domain.RerankProvider,
	crossEncoder domain.CrossEncoder,
	breaker *CircuitBreaker,
	retryCfg RetryConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		provider:     provider,
		crossEncoder: crossEncoder,
		breaker:      breaker,
		retryCfg:     retryCfg,
		logger:       logger,
		now:          time.Now,
	}
}

// breakerKey returns the provider name the circuit breaker tracks for a
// strategy. Heuristic scoring is local and never gated.
func (e *Engine) breakerKey(strategy Strategy) string {
	switch strategy {
	case StrategyCrossEncoder:
		return string(StrategyCrossEncoder)
	case StrategyProvider, StrategyHybrid:
		if e.provider != nil {
			return e.provider.Name()
		}
		return string(StrategyProvider)
	}
	return ""
}

// Score runs the requested strategy over the candidate set. If the circuit
// breaker for the strategy's provider is open the engine skips straight to
// the cheap word-overlap fallback. Otherwise the strategy runs under the
// retry controller; when retries exhaust, the classified error decides
// between heuristic fallback and propagation. Breaker state is updated on
// the terminal success or failure of the provider call either way.
func (e *Engine) Score(ctx context.Context, req ScoreRequest) (*ScoreOutcome, error) {
	start := e.now()

	if req.Strategy == StrategyHeuristic {
		results := finalize(e.scoreHeuristic(req.Query, req.Documents), req.TopK, elapsedMs(start, e.now))
		return &ScoreOutcome{
			Results:  results,
			Provider: string(StrategyHeuristic),
			Model:    heuristicModelName,
		}, nil
	}

	key := e.breakerKey(req.Strategy)
	if key != "" && e.breaker.IsOpen(key) {
		e.logger.WarnContext(ctx, "circuit_breaker_open_using_basic_fallback",
			slog.String("provider", key),
			slog.Int("document_count", len(req.Documents)))
		results := finalize(e.scoreBasicFallback(req.Query, req.Documents), req.TopK, elapsedMs(start, e.now))
		return &ScoreOutcome{
			Results:        results,
			Provider:       string(StrategyBasicFallback),
			Model:          basicModelName,
			FallbackUsed:   true,
			FallbackReason: fmt.Sprintf("circuit breaker open for provider %s", key),
		}, nil
	}

	apiCalls := 0
	costUSD := 0.0
	op := func(opCtx context.Context) ([]domain.RerankResult, error) {
		switch req.Strategy {
		case StrategyCrossEncoder:
			return e.scoreCrossEncoder(opCtx, req.Query, req.Documents, &apiCalls)
		case StrategyHybrid:
			return e.scoreHybrid(opCtx, req.Query, req.Documents, req.TopK, req.Model, &apiCalls, &costUSD)
		default:
			return e.scoreProvider(opCtx, req.Query, req.Documents, req.TopK, req.Model, &apiCalls, &costUSD)
		}
	}

	results, retries, err := RetryWithBackoff(ctx, e.retryCfg, key, op)
	if err != nil {
		if key != "" {
			e.breaker.RecordFailure(key)
		}
		classification := Classify(err, key)
		e.logger.WarnContext(ctx, "reranking_strategy_failed",
			slog.String("strategy", string(req.Strategy)),
			slog.String("error_type", string(classification.Type)),
			slog.String("error", err.Error()),
			slog.Int("retries", retries))
		if !classification.FallbackRequired {
			return nil, err
		}
		results := finalize(e.scoreHeuristic(req.Query, req.Documents), req.TopK, elapsedMs(start, e.now))
		return &ScoreOutcome{
			Results:        results,
			Provider:       string(StrategyHeuristic),
			Model:          heuristicModelName,
			APICalls:       apiCalls,
			Retries:        retries,
			FallbackUsed:   true,
			FallbackReason: fmt.Sprintf("%s after %d retries: %s", classification.Type, retries, err.Error()),
		}, nil
	}
	if key != "" {
		e.breaker.RecordSuccess(key)
	}

	results = finalize(results, req.TopK, elapsedMs(start, e.now))

	outcome := &ScoreOutcome{
		Results:  results,
		Provider: string(req.Strategy),
		Model:    req.Model,
		APICalls: apiCalls,
		Retries:  retries,
		// Spend is charged per document submitted to the paid API, not per
		// result surviving topK truncation.
		CostUSD: costUSD,
	}
	// Cross-encoder silently degrades to heuristic when unconfigured.
	if len(results) > 0 && results[0].Provider == string(StrategyHeuristic) {
		outcome.Provider = string(StrategyHeuristic)
		outcome.Model = heuristicModelName
	}
	return outcome, nil
}

// scoreProvider calls the external rerank API with truncated document texts
// and maps the returned (index, relevance) pairs back onto the originals.
func (e *Engine) scoreProvider(ctx context.Context, query string, docs []domain.Document, topK int, model string, apiCalls *int, costUSD *float64) ([]domain.RerankResult, error) {
	if e.provider == nil {
		return nil, fmt.Errorf("validation: no rerank provider configured")
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = truncate(d.Content, providerDocLimit)
	}

	*apiCalls++
	scores, err := e.provider.Rerank(ctx, query, texts, topK)
	if err != nil {
		return nil, err
	}

	perDoc := CostPerDocument(model)
	*costUSD += perDoc * float64(len(docs))
	results := make([]domain.RerankResult, 0, len(scores))
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(docs) {
			return nil, fmt.Errorf("invalid rerank index %d for %d documents", s.Index, len(docs))
		}
		doc := docs[s.Index]
		results = append(results, domain.RerankResult{
			Document:        doc,
			RerankingScore:  s.Relevance,
			ConfidenceScore: s.Relevance,
			ModelUsed:       model,
			Provider:        string(StrategyProvider),
			CostUSD:         perDoc,
			QualityIndicators: domain.QualityIndicators{
				ConfidenceInterval: [2]float64{math.Max(0, s.Relevance-0.1), math.Min(1, s.Relevance+0.1)},
			},
		})
	}
	return results, nil
}

// scoreCrossEncoder runs pairwise (query, content) scoring for every
// document. Falls back to heuristic scoring when no cross-encoder service is
// configured.
func (e *Engine) scoreCrossEncoder(ctx context.Context, query string, docs []domain.Document, apiCalls *int) ([]domain.RerankResult, error) {
	if e.crossEncoder == nil || !e.crossEncoder.Configured() {
		e.logger.InfoContext(ctx, "cross_encoder_unconfigured_using_heuristic",
			slog.Int("document_count", len(docs)))
		return e.scoreHeuristic(query, docs), nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = truncate(d.Content, crossEncoderDocLimit)
	}

	*apiCalls++
	scores, err := e.crossEncoder.ScorePairs(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(docs) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d documents", len(scores), len(docs))
	}

	results := make([]domain.RerankResult, len(docs))
	for i, doc := range docs {
		results[i] = domain.RerankResult{
			Document:        doc,
			RerankingScore:  scores[i],
			ConfidenceScore: scores[i],
			ModelUsed:       e.crossEncoder.ModelName(),
			Provider:        string(StrategyCrossEncoder),
			QualityIndicators: domain.QualityIndicators{
				ConfidenceInterval: [2]float64{math.Max(0, scores[i]-0.1), math.Min(1, scores[i]+0.1)},
			},
		}
	}
	return results, nil
}

// scoreHybrid runs the provider and heuristic strategies in parallel at
// 2*topK each and unions them by document id, averaging scores and keeping
// the higher confidence on duplicates.
func (e *Engine) scoreHybrid(ctx context.Context, query string, docs []domain.Document, topK int, model string, apiCalls *int, costUSD *float64) ([]domain.RerankResult, error) {
	legK := 2 * topK

	var providerResults, heuristicResults []domain.RerankResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := e.scoreProvider(gctx, query, docs, legK, model, apiCalls, costUSD)
		if err != nil {
			return err
		}
		providerResults = finalize(results, legK, 0)
		return nil
	})
	g.Go(func() error {
		heuristicResults = finalize(e.scoreHeuristic(query, docs), legK, 0)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]*domain.RerankResult, len(providerResults))
	for i := range providerResults {
		r := providerResults[i]
		merged[r.ID] = &r
	}
	for i := range heuristicResults {
		h := heuristicResults[i]
		if existing, ok := merged[h.ID]; ok {
			existing.RerankingScore = (existing.RerankingScore + h.RerankingScore) / 2
			existing.ConfidenceScore = math.Max(existing.ConfidenceScore, h.ConfidenceScore)
		} else {
			merged[h.ID] = &h
		}
	}

	results := make([]domain.RerankResult, 0, len(merged))
	for _, r := range merged {
		r.Provider = string(StrategyHybrid)
		r.ModelUsed = fmt.Sprintf("%s+%s", model, heuristicModelName)
		results = append(results, *r)
	}
	return results, nil
}

// scoreHeuristic is the enhanced local fallback: a weighted blend of the
// initial score with content-length, recency, and metadata-relevance bonuses.
func (e *Engine) scoreHeuristic(query string, docs []domain.Document) []domain.RerankResult {
	results := make([]domain.RerankResult, len(docs))
	for i, doc := range docs {
		contentScore := math.Min(1, float64(len(doc.Content))/1000)
		recency := recencyBonus(documentTimestamp(doc.Metadata), e.now())
		metaRelevance := metadataRelevance(query, doc.Metadata)

		score := doc.InitialScore*0.7 + contentScore*0.1 + recency*0.1 + metaRelevance*0.1
		score = math.Min(1, score)

		results[i] = domain.RerankResult{
			Document:        doc,
			RerankingScore:  score,
			ConfidenceScore: 0.7,
			ModelUsed:       heuristicModelName,
			Provider:        string(StrategyHeuristic),
			QualityIndicators: domain.QualityIndicators{
				ConfidenceInterval: [2]float64{score - 0.05, score + 0.05},
			},
		}
	}
	return results
}

// scoreBasicFallback is the cheapest scorer, used when the circuit breaker
// blocks the provider: query-term occurrence count over query length.
func (e *Engine) scoreBasicFallback(query string, docs []domain.Document) []domain.RerankResult {
	terms := strings.Fields(strings.ToLower(query))
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		if re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(term)); err == nil {
			patterns = append(patterns, re)
		}
	}

	results := make([]domain.RerankResult, len(docs))
	for i, doc := range docs {
		matches := 0
		for _, re := range patterns {
			matches += len(re.FindAllStringIndex(doc.Content, -1))
		}
		score := float64(matches) / math.Max(1, float64(len(terms)))

		results[i] = domain.RerankResult{
			Document:        doc,
			RerankingScore:  score,
			ConfidenceScore: 0.5,
			ModelUsed:       basicModelName,
			Provider:        string(StrategyBasicFallback),
			QualityIndicators: domain.QualityIndicators{
				ConfidenceInterval: [2]float64{math.Max(0, score-0.2), math.Min(1, score+0.2)},
			},
		}
	}
	return results
}

// RankStability measures how far a document moved between its initial and
// final rank, as 1 - |delta| / max(rank); 1.0 means it did not move.
func RankStability(initialRank, finalRank int) float64 {
	if initialRank <= 0 || finalRank <= 0 {
		return 0
	}
	maxRank := float64(initialRank)
	if float64(finalRank) > maxRank {
		maxRank = float64(finalRank)
	}
	delta := math.Abs(float64(initialRank - finalRank))
	return math.Max(0, 1-delta/maxRank)
}

// finalize sorts results by reranking score descending, truncates to topK,
// and fills ranks plus the rank-dependent quality indicators.
func finalize(results []domain.RerankResult, topK int, processingMs int64) []domain.RerankResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankingScore > results[j].RerankingScore
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].RerankingRank = i + 1
		results[i].ProcessingTimeMs = processingMs
		results[i].QualityIndicators.ScoreImprovement = results[i].RerankingScore - results[i].InitialScore
		results[i].QualityIndicators.RankStability = RankStability(results[i].InitialRank, results[i].RerankingRank)
	}
	return results
}

// recencyBonus rewards recently-updated documents, decaying with a one-week
// half-life-style constant; zero when no timestamp is present.
func recencyBonus(ts time.Time, now time.Time) float64 {
	if ts.IsZero() {
		return 0
	}
	ageDays := now.Sub(ts).Hours() / 24
	return math.Max(0, 0.1*math.Exp(-ageDays/7))
}

// documentTimestamp extracts a timestamp from document metadata. Accepts
// RFC3339 strings and numeric unix seconds under the "timestamp" key.
func documentTimestamp(metadata map[string]any) time.Time {
	raw, ok := metadata["timestamp"]
	if !ok {
		return time.Time{}
	}
	switch v := raw.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	case time.Time:
		return v
	}
	return time.Time{}
}

// metadataRelevance is the fraction of query terms that appear in the
// document's stringified metadata values.
func metadataRelevance(query string, metadata map[string]any) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || len(metadata) == 0 {
		return 0
	}

	var sb strings.Builder
	for _, v := range metadata {
		fmt.Fprintf(&sb, "%v ", v)
	}
	haystack := strings.ToLower(sb.String())

	hits := 0
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func elapsedMs(start time.Time, now func() time.Time) int64 {
	return now().Sub(start).Milliseconds()
}
