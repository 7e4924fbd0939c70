package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PipelineEvent is a per-request analytics record. Publishing is
// fire-and-forget: sink failures must never fail the request.
type PipelineEvent struct {
	ID            uuid.UUID
	UserID        string
	Query         string
	Provider      string
	Model         string
	DocumentCount int
	ResultCount   int
	Metrics       PerformanceMetrics
	CreatedAt     time.Time
}

// AnalyticsSink persists pipeline events for offline analysis.
type AnalyticsSink interface {
	Publish(ctx context.Context, event PipelineEvent)
}
