package retrieval

import (
	"fmt"
	"math"

	"rerank-pipeline/internal/domain"
)

// ScoringMethod selects how semantic and lexical scores are fused.
type ScoringMethod string

const (
	// ScoringWeightedSum blends normalized scores with the configured weights.
	ScoringWeightedSum ScoringMethod = "weighted_sum"
	// ScoringRRF fuses by reciprocal rank instead of raw scores.
	ScoringRRF ScoringMethod = "rrf"
)

// Config carries the Stage-1 retrieval parameters for a single request.
type Config struct {
	SemanticWeight    float64
	LexicalWeight     float64
	SemanticThreshold float64
	LexicalThreshold  float64
	SearchLimit       int
	SearchType        domain.LexicalSearchType
	Method            ScoringMethod
	RRFK              float64
	ExpandQuery       bool
}

// DefaultConfig returns the standard Stage-1 parameters.
func DefaultConfig() Config {
	return Config{
		SemanticWeight:    0.7,
		LexicalWeight:     0.3,
		SemanticThreshold: 0.3,
		LexicalThreshold:  0.1,
		SearchLimit:       50,
		SearchType:        domain.LexicalBM25,
		Method:            ScoringWeightedSum,
		RRFK:              60,
	}
}

// Validate checks the request-level invariants: the fusion weights must sum
// to 1.0 and the search type and scoring method must be known.
func (c Config) Validate() error {
	if math.Abs(c.SemanticWeight+c.LexicalWeight-1.0) > 1e-6 {
		return fmt.Errorf("invalid weights: semanticWeight (%v) + lexicalWeight (%v) must sum to 1.0",
			c.SemanticWeight, c.LexicalWeight)
	}
	if !c.SearchType.Valid() {
		return fmt.Errorf("invalid lexical search type %q", c.SearchType)
	}
	switch c.Method {
	case ScoringWeightedSum, ScoringRRF:
	default:
		return fmt.Errorf("invalid scoring method %q", c.Method)
	}
	return nil
}
