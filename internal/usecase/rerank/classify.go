package rerank

import "strings"

// ErrorType is the failure taxonomy used for retry and fallback decisions.
type ErrorType string

const (
	ErrorTypeAPI        ErrorType = "API_ERROR"
	ErrorTypeNetwork    ErrorType = "NETWORK_ERROR"
	ErrorTypeTimeout    ErrorType = "TIMEOUT_ERROR"
	ErrorTypeRateLimit  ErrorType = "RATE_LIMIT_ERROR"
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeSystem     ErrorType = "SYSTEM_ERROR"
)

// Severity indicates how serious a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the structured verdict for a raw external-call failure.
// String matching happens only here, at the translation boundary; everything
// downstream (retry controller, top-level fallback decision) operates on this
// struct, never on message text.
type Classification struct {
	Type             ErrorType
	Severity         Severity
	Retryable        bool
	FallbackRequired bool
}

// Classify maps an arbitrary failure to the taxonomy. Matching is
// case-insensitive substring search in priority order: provider/API errors
// first (with rate-limit and timeout sub-cases), then network, then
// validation, with SYSTEM_ERROR as the catch-all.
func Classify(err error, provider string) Classification {
	msg := strings.ToLower(err.Error())
	prov := strings.ToLower(provider)

	switch {
	case strings.Contains(msg, "api") || (prov != "" && strings.Contains(msg, prov)):
		switch {
		case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
			return Classification{ErrorTypeRateLimit, SeverityMedium, true, true}
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
			return Classification{ErrorTypeTimeout, SeverityMedium, true, true}
		default:
			return Classification{ErrorTypeAPI, SeverityHigh, true, true}
		}
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection") || strings.Contains(msg, "fetch"):
		return Classification{ErrorTypeNetwork, SeverityHigh, true, true}
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid") || strings.Contains(msg, "missing"):
		return Classification{ErrorTypeValidation, SeverityLow, false, false}
	default:
		return Classification{ErrorTypeSystem, SeverityCritical, true, true}
	}
}
