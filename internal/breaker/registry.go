package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StateName is the circuit breaker state for a category.
type StateName string

const (
	StateClosed   StateName = "closed"
	StateOpen     StateName = "open"
	StateHalfOpen StateName = "half_open"
)

// State is a point-in-time snapshot of one category's breaker.
type State struct {
	State               StateName `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
}

// Config defines breaker thresholds, shared by all categories.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig returns the standard breaker thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}

// breakerState holds one category's state behind its own mutex so that
// unrelated categories never contend on a shared lock.
type breakerState struct {
	mu       sync.Mutex
	state    StateName
	failures int
	lastFail time.Time
}

// Registry gates remediation per category. Repeated failures open the
// circuit; after the reset timeout a single probe is allowed through.
type Registry struct {
	log      zerolog.Logger
	config   Config
	mu       sync.RWMutex
	breakers map[string]*breakerState
}

// NewRegistry creates a registry with all categories implicitly closed.
func NewRegistry(log zerolog.Logger, config Config) *Registry {
	return &Registry{
		log:      log.With().Str("component", "breaker").Logger(),
		config:   config,
		breakers: make(map[string]*breakerState),
	}
}

// get returns the breaker for a category, creating a closed one on first access.
func (r *Registry) get(category string) *breakerState {
	r.mu.RLock()
	b, ok := r.breakers[category]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[category]; ok {
		return b
	}
	b = &breakerState{state: StateClosed}
	r.breakers[category] = b
	return b
}

// ReportOutcome records a success or failure for a category and returns
// the resulting state. A failure in half-open reopens the circuit; a
// success in half-open closes it and zeroes the counter. A success while
// closed does not reset the counter.
func (r *Registry) ReportOutcome(category string, success bool) State {
	b := r.get(category)
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.failures = 0
			r.log.Info().Str("category", category).Msg("circuit closed after successful probe")
		}
		return b.snapshot()
	}

	b.failures++
	b.lastFail = time.Now()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		r.log.Warn().Str("category", category).Msg("probe failed, circuit reopened")
	case StateClosed:
		if b.failures >= r.config.FailureThreshold {
			b.state = StateOpen
			r.log.Warn().
				Str("category", category).
				Int("failures", b.failures).
				Msg("failure threshold reached, circuit opened")
		}
	}
	return b.snapshot()
}

// IsOpen reports whether remediation for a category should be skipped.
// When the reset timeout has elapsed on an open circuit, the state moves
// to half-open and false is returned exactly once so the caller may run
// a trial operation; until that trial's outcome is reported, other
// callers see true.
func (r *Registry) IsOpen(category string) bool {
	b := r.get(category)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false
	case StateOpen:
		if time.Since(b.lastFail) > r.config.ResetTimeout {
			b.state = StateHalfOpen
			r.log.Info().Str("category", category).Msg("reset timeout elapsed, allowing probe")
			return false
		}
		return true
	case StateHalfOpen:
		return true
	default:
		return false
	}
}

// Snapshot returns the current state of every known category.
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]State, len(r.breakers))
	for category, b := range r.breakers {
		b.mu.Lock()
		out[category] = b.snapshot()
		b.mu.Unlock()
	}
	return out
}

// snapshot must be called with the breaker's mutex held.
func (b *breakerState) snapshot() State {
	return State{
		State:               b.state,
		ConsecutiveFailures: b.failures,
		LastFailureAt:       b.lastFail,
	}
}
