package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rerank-pipeline/internal/domain"
)

type analyticsRepository struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewAnalyticsRepository creates the fire-and-forget analytics sink. Writes
// run on their own goroutine with an independent timeout so a slow insert
// never blocks or fails the request that produced the event.
func NewAnalyticsRepository(pool *pgxpool.Pool, logger *slog.Logger) domain.AnalyticsSink {
	return &analyticsRepository{
		pool:    pool,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

func (r *analyticsRepository) Publish(ctx context.Context, event domain.PipelineEvent) {
	go func() {
		insertCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		metrics, err := json.Marshal(event.Metrics)
		if err != nil {
			r.logger.Warn("analytics_marshal_failed",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
			return
		}

		query := `
			INSERT INTO pipeline_events (id, user_id, query, provider, model, document_count, result_count, metrics, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`
		_, err = r.pool.Exec(insertCtx, query,
			event.ID,
			event.UserID,
			event.Query,
			event.Provider,
			event.Model,
			event.DocumentCount,
			event.ResultCount,
			metrics,
			event.CreatedAt,
		)
		if err != nil {
			r.logger.Warn("analytics_insert_failed",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
		}
	}()
}
