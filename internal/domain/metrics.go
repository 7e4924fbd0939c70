package domain

// PerformanceMetrics is the per-request accumulator returned with every
// pipeline response. It is created at request start, mutated throughout the
// call, and only ever logged to the analytics sink, never persisted as state.
type PerformanceMetrics struct {
	ExecutionTimeMs      int64   `json:"execution_time_ms"`
	APICallsCount        int     `json:"api_calls_count"`
	CacheHitRate         float64 `json:"cache_hit_rate"`
	CostUSD              float64 `json:"cost_usd"`
	ThroughputDocsPerSec float64 `json:"throughput_docs_per_sec"`
	ErrorRate            float64 `json:"error_rate"`
	RetryCount           int     `json:"retry_count"`
	FallbackUsed         bool    `json:"fallback_used,omitempty"`
}
