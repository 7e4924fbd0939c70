package domain

// Document is a single retrieval candidate entering the re-ranking pipeline.
// It is either produced by Stage-1 hybrid retrieval or supplied directly by
// the caller, and is immutable once handed to the pipeline.
type Document struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	InitialScore float64        `json:"initial_score"`
	InitialRank  int            `json:"initial_rank"`
}

// QualityIndicators summarizes how a document moved through re-ranking.
type QualityIndicators struct {
	// ScoreImprovement is reranking_score minus initial_score.
	ScoreImprovement float64 `json:"score_improvement"`
	// RankStability is 1.0 when the rank did not move, approaching 0 for
	// large displacements relative to the larger of the two ranks.
	RankStability float64 `json:"rank_stability"`
	// ConfidenceInterval is a fixed-width [lo, hi] band around the score.
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}

// RerankResult is the output of any scoring strategy. All Document fields are
// carried through; RerankingRank is reassigned once during the final sort and
// the rest is never mutated after construction.
type RerankResult struct {
	Document
	RerankingScore    float64           `json:"reranking_score"`
	RerankingRank     int               `json:"reranking_rank"`
	ConfidenceScore   float64           `json:"confidence_score"`
	ModelUsed         string            `json:"model_used"`
	Provider          string            `json:"provider"`
	ProcessingTimeMs  int64             `json:"processing_time_ms"`
	CostUSD           float64           `json:"cost_usd"`
	CacheHit          bool              `json:"cache_hit"`
	QualityIndicators QualityIndicators `json:"quality_indicators"`
}

// HybridCandidate is the Stage-1 intermediate built by merging the semantic
// and lexical result sets keyed by document id. It is converted into a
// Document before Stage-2 and discarded afterwards.
type HybridCandidate struct {
	ID            string         `json:"id"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SemanticScore float64        `json:"semantic_score"`
	LexicalScore  float64        `json:"lexical_score"`
	HybridScore   float64        `json:"hybrid_score"`
	SemanticRank  int            `json:"semantic_rank"`
	LexicalRank   int            `json:"lexical_rank"`
}
