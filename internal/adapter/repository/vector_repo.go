package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"rerank-pipeline/internal/domain"
)

type vectorRepository struct {
	pool *pgxpool.Pool
}

// NewVectorRepository creates the pgvector-backed semantic searcher.
func NewVectorRepository(pool *pgxpool.Pool) domain.VectorSearcher {
	return &vectorRepository{pool: pool}
}

// SearchSimilar returns documents ordered by cosine similarity to the query
// vector, restricted to documentIDs when non-empty and filtered by the
// similarity threshold.
func (r *vectorRepository) SearchSimilar(
	ctx context.Context,
	queryVector []float32,
	documentIDs []string,
	threshold float64,
	limit int,
) ([]domain.SemanticResult, error) {
	vec := pgvector.NewVector(queryVector)

	query := `
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE ($2::text[] IS NULL OR id = ANY($2))
		  AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4
	`

	var idFilter []string
	if len(documentIDs) > 0 {
		idFilter = documentIDs
	}

	rows, err := r.pool.Query(ctx, query, vec, idFilter, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar documents: %w", err)
	}
	defer rows.Close()

	var results []domain.SemanticResult
	for rows.Next() {
		var res domain.SemanticResult
		if err := rows.Scan(&res.DocumentID, &res.Content, &res.Metadata, &res.Score); err != nil {
			return nil, fmt.Errorf("failed to scan semantic result: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}

// Ping verifies the backing store is reachable.
func (r *vectorRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
