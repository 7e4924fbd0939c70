package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"rerank-pipeline/internal/domain"
)

// HybridRetriever runs semantic and lexical search in parallel and fuses
// both result sets into a single ranked candidate list.
type HybridRetriever struct {
	encoder  domain.VectorEncoder
	vectors  domain.VectorSearcher
	lexical  domain.LexicalSearcher
	expander domain.QueryExpander // optional
	logger   *slog.Logger
}

// NewHybridRetriever wires the retriever. expander may be nil.
func NewHybridRetriever(
	encoder domain.VectorEncoder,
	vectors domain.VectorSearcher,
	lexical domain.LexicalSearcher,
	expander domain.QueryExpander,
	logger *slog.Logger,
) *HybridRetriever {
	return &HybridRetriever{
		encoder:  encoder,
		vectors:  vectors,
		lexical:  lexical,
		expander: expander,
		logger:   logger,
	}
}

// Retrieve produces the Stage-1 candidate list for a query, restricted to
// documentIDs. Both searches run in parallel; candidates are merged by
// document id and sorted descending by fused score.
func (r *HybridRetriever) Retrieve(
	ctx context.Context,
	retrievalID string,
	query string,
	documentIDs []string,
	cfg Config,
) ([]domain.HybridCandidate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	// Provider-only deployments run without a database pool; retrieval is
	// unavailable there and callers degrade through their stage-1 failure path.
	if r.vectors == nil {
		return nil, fmt.Errorf("vector searcher not configured")
	}

	searchStart := time.Now()

	var semantic []domain.SemanticResult
	var lexical []domain.LexicalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		embeddings, err := r.encoder.Encode(gctx, []string{query})
		if err != nil {
			return fmt.Errorf("failed to encode query: %w", err)
		}
		if len(embeddings) != 1 {
			return fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
		}
		semantic, err = r.vectors.SearchSimilar(gctx, embeddings[0], documentIDs, cfg.SemanticThreshold, cfg.SearchLimit)
		if err != nil {
			return fmt.Errorf("semantic search failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lexicalQuery := query
		if cfg.ExpandQuery && r.expander != nil {
			expanded, err := r.expander.Expand(gctx, query)
			if err != nil {
				r.logger.WarnContext(gctx, "query_expansion_failed",
					slog.String("retrieval_id", retrievalID),
					slog.String("error", err.Error()))
			} else if expanded != "" {
				lexicalQuery = expanded
				r.logger.InfoContext(gctx, "query_expanded",
					slog.String("retrieval_id", retrievalID),
					slog.String("original", query),
					slog.String("expanded", expanded))
			}
		}

		results, err := r.lexical.SearchLexical(gctx, lexicalQuery, documentIDs, cfg.SearchType, cfg.SearchLimit)
		if err != nil {
			return fmt.Errorf("lexical search failed: %w", err)
		}
		for _, res := range results {
			if res.Score >= cfg.LexicalThreshold {
				lexical = append(lexical, res)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := fuse(semantic, lexical, cfg)

	r.logger.InfoContext(ctx, "hybrid_retrieval_completed",
		slog.String("retrieval_id", retrievalID),
		slog.Int("semantic_count", len(semantic)),
		slog.Int("lexical_count", len(lexical)),
		slog.Int("fused_count", len(candidates)),
		slog.String("method", string(cfg.Method)),
		slog.Int64("duration_ms", time.Since(searchStart).Milliseconds()))

	return candidates, nil
}

// fuse merges the two result sets keyed by document id and computes the
// hybrid score per the configured method.
func fuse(semantic []domain.SemanticResult, lexical []domain.LexicalResult, cfg Config) []domain.HybridCandidate {
	merged := make(map[string]*domain.HybridCandidate, len(semantic)+len(lexical))

	for i, res := range semantic {
		merged[res.DocumentID] = &domain.HybridCandidate{
			ID:            res.DocumentID,
			Content:       res.Content,
			Metadata:      res.Metadata,
			SemanticScore: res.Score,
			SemanticRank:  i + 1,
		}
	}

	// Lexical scores are normalized against the best lexical hit so BM25's
	// unbounded scale does not drown the semantic side in the weighted sum.
	var maxLexical float64
	for _, res := range lexical {
		if res.Score > maxLexical {
			maxLexical = res.Score
		}
	}
	for _, res := range lexical {
		normalized := res.Score
		if maxLexical > 0 {
			normalized = res.Score / maxLexical
		}
		if c, ok := merged[res.DocumentID]; ok {
			c.LexicalScore = normalized
			c.LexicalRank = res.Rank
		} else {
			merged[res.DocumentID] = &domain.HybridCandidate{
				ID:           res.DocumentID,
				Content:      res.Content,
				Metadata:     res.Metadata,
				LexicalScore: normalized,
				LexicalRank:  res.Rank,
			}
		}
	}

	candidates := make([]domain.HybridCandidate, 0, len(merged))
	for _, c := range merged {
		switch cfg.Method {
		case ScoringRRF:
			c.HybridScore = rrfScore(c.SemanticRank, cfg.RRFK)*cfg.SemanticWeight +
				rrfScore(c.LexicalRank, cfg.RRFK)*cfg.LexicalWeight
		default:
			c.HybridScore = c.SemanticScore*cfg.SemanticWeight + c.LexicalScore*cfg.LexicalWeight
		}
		candidates = append(candidates, *c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].HybridScore > candidates[j].HybridScore
	})
	return candidates
}

// rrfScore is the reciprocal-rank contribution for a 1-based rank; ranks of
// zero mean the document was absent from that result set.
func rrfScore(rank int, k float64) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / (k + float64(rank))
}
