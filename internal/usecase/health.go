package usecase

import (
	"context"
	"log/slog"
	"time"

	"rerank-pipeline/internal/domain"
	"rerank-pipeline/internal/usecase/rerank"
)

// HealthStatus is the aggregate condition of the pipeline.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// CacheHealth is the cache slice of the health report.
type CacheHealth struct {
	Size               int     `json:"size"`
	MaxSize            int     `json:"max_size"`
	UtilizationPercent float64 `json:"utilization_percent"`
}

// HealthReport is returned by the health endpoint.
type HealthReport struct {
	Status          HealthStatus                   `json:"status"`
	Timestamp       time.Time                      `json:"timestamp"`
	LastCheck       time.Time                      `json:"last_check"`
	Errors          []string                       `json:"errors,omitempty"`
	Warnings        []string                       `json:"warnings,omitempty"`
	CircuitBreakers map[string]rerank.BreakerState `json:"circuit_breakers"`
	Cache           CacheHealth                    `json:"cache"`
}

// HealthUsecase reports pipeline health for readiness and monitoring.
type HealthUsecase interface {
	Check(ctx context.Context) *HealthReport
}

type healthUsecase struct {
	breaker   *rerank.CircuitBreaker
	cache     *rerank.ResultCache
	vectors   domain.VectorSearcher
	apiKeySet bool
	logger    *slog.Logger
}

// NewHealthUsecase wires the health reporter. vectors may be nil when the
// store is not part of the deployment.
func NewHealthUsecase(
	breaker *rerank.CircuitBreaker,
	cache *rerank.ResultCache,
	vectors domain.VectorSearcher,
	apiKeySet bool,
	logger *slog.Logger,
) HealthUsecase {
	return &healthUsecase{
		breaker:   breaker,
		cache:     cache,
		vectors:   vectors,
		apiKeySet: apiKeySet,
		logger:    logger,
	}
}

// cacheDegradedUtilization marks the cache as a degradation signal once its
// fill ratio reaches this percentage.
const cacheDegradedUtilization = 90.0

func (u *healthUsecase) Check(ctx context.Context) *HealthReport {
	now := time.Now()
	report := &HealthReport{
		Status:          StatusHealthy,
		Timestamp:       now,
		CircuitBreakers: u.breaker.States(),
	}

	stats := u.cache.Stats()
	report.Cache = CacheHealth{
		Size:               stats.Size,
		MaxSize:            stats.MaxSize,
		UtilizationPercent: stats.UtilizationPercent,
	}

	for provider, state := range report.CircuitBreakers {
		if state == rerank.StateOpen {
			report.Status = StatusDegraded
			report.Warnings = append(report.Warnings, "circuit breaker open for provider "+provider)
		}
	}
	if stats.UtilizationPercent >= cacheDegradedUtilization {
		report.Status = StatusDegraded
		report.Warnings = append(report.Warnings, "result cache near capacity")
	}
	if !u.apiKeySet {
		report.Status = StatusDegraded
		report.Warnings = append(report.Warnings, "provider API key not configured, heuristic fallback only")
	}

	if u.vectors != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := u.vectors.Ping(pingCtx); err != nil {
			report.Status = StatusUnhealthy
			report.Errors = append(report.Errors, "vector store unreachable: "+err.Error())
			u.logger.ErrorContext(ctx, "health_check_vector_store_failed", slog.String("error", err.Error()))
		}
	}

	report.LastCheck = now
	return report
}
