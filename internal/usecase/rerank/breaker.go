package rerank

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state for a single provider.
type BreakerState string

const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before probing is allowed.
	Cooldown time.Duration
	// SuccessThreshold is the half-open success count that closes the circuit.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the standard thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
		SuccessThreshold: 3,
	}
}

type providerState struct {
	failures        int
	lastFailureTime time.Time
	state           BreakerState
	successCount    int
}

// CircuitBreaker tracks per-provider failure state and gates whether a
// provider may be called. State is process-wide, keyed by provider name, and
// not persisted across restarts. All methods are safe for concurrent use.
type CircuitBreaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	providers map[string]*providerState

	now func() time.Time
}

// NewCircuitBreaker creates a breaker with the given thresholds.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	return &CircuitBreaker{
		cfg:       cfg,
		providers: make(map[string]*providerState),
		now:       time.Now,
	}
}

// get lazily initializes the per-provider state. Callers hold the lock.
func (b *CircuitBreaker) get(provider string) *providerState {
	s, ok := b.providers[provider]
	if !ok {
		s = &providerState{state: StateClosed}
		b.providers[provider] = s
	}
	return s
}

// RecordSuccess resets the failure count. In HALF_OPEN, it counts toward the
// success threshold and closes the circuit once met.
func (b *CircuitBreaker) RecordSuccess(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(provider)
	s.failures = 0
	if s.state == StateHalfOpen {
		s.successCount++
		if s.successCount >= b.cfg.SuccessThreshold {
			s.state = StateClosed
			s.successCount = 0
		}
	}
}

// RecordFailure increments the failure count and opens the circuit once the
// threshold is reached. A failure in HALF_OPEN is a plain increment, subject
// to the same threshold rule; it does not immediately reopen the circuit.
func (b *CircuitBreaker) RecordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(provider)
	s.failures++
	s.lastFailureTime = b.now()
	if s.failures >= b.cfg.FailureThreshold {
		s.state = StateOpen
		s.successCount = 0
	}
}

// IsOpen reports whether calls to the provider must be blocked. Checking an
// OPEN circuit whose cooldown has elapsed moves it to HALF_OPEN as a side
// effect. A freshly-entered HALF_OPEN state (no success recorded yet) still
// blocks until one probe succeeds.
func (b *CircuitBreaker) IsOpen(provider string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.get(provider)
	if s.state == StateOpen && b.now().Sub(s.lastFailureTime) >= b.cfg.Cooldown {
		s.state = StateHalfOpen
		s.successCount = 0
	}
	return s.state == StateOpen || (s.state == StateHalfOpen && s.successCount == 0)
}

// States returns a snapshot of every known provider's state, for health
// reporting.
func (b *CircuitBreaker) States() map[string]BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]BreakerState, len(b.providers))
	for name, s := range b.providers {
		out[name] = s.state
	}
	return out
}
