package rerank

import (
	"sort"

	"rerank-pipeline/internal/domain"
)

// CostOptimization controls candidate pre-filtering before a paid provider
// call.
type CostOptimization struct {
	Enabled         bool    `json:"enabled"`
	MaxCandidates   int     `json:"maxCandidates"`
	CostThreshold   float64 `json:"costThreshold"`
	PriorityScoring bool    `json:"priorityScoring"`
}

// DefaultCostOptimization returns the standard optimizer settings.
func DefaultCostOptimization() CostOptimization {
	return CostOptimization{
		Enabled:         true,
		MaxCandidates:   100,
		PriorityScoring: true,
	}
}

// OptimizeCandidates bounds the candidate set sent to a paid re-ranking API.
// Truncation happens strictly before any sort: candidates beyond
// MaxCandidates are dropped by input order regardless of score, and only then
// does PriorityScoring reorder the survivors by initial_score descending.
// CostThreshold additionally caps the set so the estimated spend
// (perDocCost * count) stays within budget; that cap is applied pre-sort too.
func OptimizeCandidates(documents []domain.Document, opt CostOptimization, perDocCost float64) []domain.Document {
	if !opt.Enabled {
		return documents
	}

	out := documents
	if opt.MaxCandidates > 0 && len(out) > opt.MaxCandidates {
		out = out[:opt.MaxCandidates]
	}
	if opt.CostThreshold > 0 && perDocCost > 0 {
		if affordable := int(opt.CostThreshold / perDocCost); len(out) > affordable {
			out = out[:affordable]
		}
	}

	if opt.PriorityScoring {
		sorted := make([]domain.Document, len(out))
		copy(sorted, out)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].InitialScore > sorted[j].InitialScore
		})
		out = sorted
	}
	return out
}
