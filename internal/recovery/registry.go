package recovery

import (
	"context"
	"errors"
	"sync"

	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

// ErrNoStrategy is returned when a fault type has no registered strategy.
var ErrNoStrategy = errors.New("no recovery strategy registered")

// Strategy is an idempotent recovery action for a fault type. Attempt
// may be called several times for the same fault occurrence; callers
// serialize attempts per occurrence.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, fault types.Fault) error
}

// Func adapts a plain function into a Strategy.
type Func struct {
	name string
	fn   func(ctx context.Context, fault types.Fault) error
}

// NewFunc creates a Strategy from a function.
func NewFunc(name string, fn func(ctx context.Context, fault types.Fault) error) Func {
	return Func{name: name, fn: fn}
}

// Name returns the strategy name.
func (f Func) Name() string { return f.name }

// Attempt runs the wrapped function.
func (f Func) Attempt(ctx context.Context, fault types.Fault) error {
	return f.fn(ctx, fault)
}

// Registry maps fault types to recovery strategies.
type Registry struct {
	log        zerolog.Logger
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		log:        log.With().Str("component", "recovery").Logger(),
		strategies: make(map[string]Strategy),
	}
}

// Register binds a strategy to a fault type, replacing any previous binding.
func (r *Registry) Register(faultType string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[faultType] = s
	r.log.Debug().
		Str("fault_type", faultType).
		Str("strategy", s.Name()).
		Msg("recovery strategy registered")
}

// Lookup returns the strategy for a fault type, or ErrNoStrategy.
func (r *Registry) Lookup(faultType string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[faultType]
	if !ok {
		return nil, ErrNoStrategy
	}
	return s, nil
}
