package alerter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/breaker"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/recovery"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAlertingConfig() config.AlertingConfig {
	return config.AlertingConfig{
		FaultTypes: map[string]config.FaultTypeConfig{
			"MEDICAL_CALCULATION_ERROR": {
				Severity: "critical",
				Category: "medical",
			},
			"CACHE_STALE": {
				Severity: "medium",
				Category: "performance",
				Recovery: &config.RecoveryPolicy{
					Strategy:   "cache_refresh",
					MaxRetries: 2,
					Backoff:    config.Duration(time.Millisecond),
				},
			},
		},
		Breaker: config.BreakerConfig{FailureThreshold: 5, ResetTimeout: config.Duration(time.Minute)},
	}
}

type engineHarness struct {
	engine     *Engine
	store      *Store
	breakers   *breaker.Registry
	strategies *recovery.Registry
	opsCalls   []string
}

func newEngineHarness(t *testing.T, cfg config.AlertingConfig) *engineHarness {
	t.Helper()
	log := zerolog.Nop()
	m := metrics.New(prometheus.NewRegistry())
	store := NewStore(log, m)
	breakers := breaker.NewRegistry(log, breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout.Std(),
	})
	strategies := recovery.NewRegistry(log)
	auditWriter := audit.NewWriter(log, audit.NewRingStore(100))

	h := &engineHarness{store: store, breakers: breakers, strategies: strategies}
	h.engine = NewEngine(log, cfg, breakers, strategies, store, auditWriter, m, func(_ context.Context, subject, _ string) {
		h.opsCalls = append(h.opsCalls, subject)
	})
	return h
}

func TestEngineClassifyUnknownTypeDefaults(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())

	severity, category := h.engine.Classify("NEVER_SEEN")
	assert.Equal(t, types.SeverityMedium, severity)
	assert.Equal(t, types.CategorySystem, category)
}

func TestEngineHandleWithoutStrategy(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())

	alert, outcome := h.engine.Handle(context.Background(), types.Fault{
		Type:    "MEDICAL_CALCULATION_ERROR",
		Message: "dosage table mismatch",
	})
	require.NotNil(t, alert)
	assert.Equal(t, types.SeverityCritical, alert.Severity)
	assert.Equal(t, types.CategoryMedical, alert.Category)
	assert.True(t, alert.Flags.PatientDataAffected)
	assert.False(t, outcome.Resolved)
	assert.Equal(t, MethodNoStrategy, outcome.Method)

	stored, ok := h.store.Get(alert.ID)
	require.True(t, ok)
	assert.Equal(t, types.AlertActive, stored.Status)
}

func TestEngineRecoverySuccessResolvesAlert(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())
	h.strategies.Register("CACHE_STALE", recovery.NewFunc("cache_refresh", func(_ context.Context, _ types.Fault) error {
		return nil
	}))

	alert, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	require.NotNil(t, alert)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, "cache_refresh", outcome.Method)
	assert.Equal(t, 1, outcome.Attempts)

	// The alert record survives the successful recovery, resolved by it
	stored, _ := h.store.Get(alert.ID)
	assert.Equal(t, types.AlertResolved, stored.Status)
	assert.Equal(t, "auto-recovery", stored.ResolvedBy)
}

func TestEngineRecoveryExhaustsRetries(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())
	calls := 0
	h.strategies.Register("CACHE_STALE", recovery.NewFunc("cache_refresh", func(_ context.Context, _ types.Fault) error {
		calls++
		return errors.New("still stale")
	}))

	alert, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	require.NotNil(t, alert)
	assert.False(t, outcome.Resolved)
	assert.Equal(t, MethodExhausted, outcome.Method)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, calls)

	stored, _ := h.store.Get(alert.ID)
	assert.Equal(t, types.AlertActive, stored.Status)
}

func TestEngineRetrySucceedsMidSequence(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())
	calls := 0
	h.strategies.Register("CACHE_STALE", recovery.NewFunc("cache_refresh", func(_ context.Context, _ types.Fault) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	}))

	_, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	assert.True(t, outcome.Resolved)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestEngineCircuitOpensAndSkipsRecovery(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.FaultTypes["CACHE_STALE"] = config.FaultTypeConfig{
		Severity: "medium",
		Category: "performance",
		Recovery: &config.RecoveryPolicy{Strategy: "cache_refresh", MaxRetries: 1, Backoff: config.Duration(time.Millisecond)},
	}
	h := newEngineHarness(t, cfg)

	calls := 0
	h.strategies.Register("CACHE_STALE", recovery.NewFunc("cache_refresh", func(_ context.Context, _ types.Fault) error {
		calls++
		return errors.New("down")
	}))

	// Five failed attempts in the performance category trip the breaker
	for i := 0; i < 5; i++ {
		_, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
		assert.Equal(t, MethodExhausted, outcome.Method)
	}
	assert.True(t, h.breakers.IsOpen("performance"))

	alert, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	require.NotNil(t, alert)
	assert.Equal(t, MethodCircuitOpen, outcome.Method)
	assert.Equal(t, "Circuit breaker open", outcome.Error)
	// The alert is still created while remediation is gated
	_, ok := h.store.Get(alert.ID)
	assert.True(t, ok)
	// The strategy was never invoked for the gated fault
	assert.Equal(t, 5, calls)
}

func TestEngineStrategylessFaultDoesNotConsumeProbe(t *testing.T) {
	cfg := testAlertingConfig()
	cfg.Breaker = config.BreakerConfig{FailureThreshold: 5, ResetTimeout: config.Duration(20 * time.Millisecond)}
	cfg.FaultTypes["CACHE_STALE"] = config.FaultTypeConfig{
		Severity: "medium",
		Category: "performance",
		Recovery: &config.RecoveryPolicy{Strategy: "cache_refresh", MaxRetries: 1, Backoff: config.Duration(time.Millisecond)},
	}
	cfg.FaultTypes["SLOW_QUERY"] = config.FaultTypeConfig{Severity: "medium", Category: "performance"}
	h := newEngineHarness(t, cfg)

	healthy := false
	h.strategies.Register("CACHE_STALE", recovery.NewFunc("cache_refresh", func(_ context.Context, _ types.Fault) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	}))

	// Five failed attempts in the performance category trip the breaker
	for i := 0; i < 5; i++ {
		h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	}
	require.True(t, h.breakers.IsOpen("performance"))
	healthy = true

	time.Sleep(30 * time.Millisecond)

	// Past the reset timeout, a fault with no strategy cannot take the
	// half-open probe; it has no outcome to resolve the probe with
	_, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "SLOW_QUERY"})
	assert.Equal(t, MethodNoStrategy, outcome.Method)

	// The probe is still available for the strategy-bearing fault,
	// whose success closes the circuit
	_, outcome = h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	assert.True(t, outcome.Resolved)
	assert.False(t, h.breakers.IsOpen("performance"))
}

func TestEngineStrategyPanicCountsAsFailedAttempt(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())
	h.strategies.Register("CACHE_STALE", recovery.NewFunc("cache_refresh", func(_ context.Context, _ types.Fault) error {
		panic("nil map write")
	}))

	alert, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "CACHE_STALE"})
	require.NotNil(t, alert)
	assert.False(t, outcome.Resolved)
	assert.Equal(t, MethodExhausted, outcome.Method)
	assert.Contains(t, outcome.Error, "panic")
}

func TestEngineImmediateActionRunsForCritical(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())
	var actioned []string
	h.engine.RegisterImmediateAction(types.CategoryMedical, func(_ context.Context, alert *types.Alert) error {
		actioned = append(actioned, alert.ID)
		return nil
	})

	alert, _ := h.engine.Handle(context.Background(), types.Fault{Type: "MEDICAL_CALCULATION_ERROR"})
	require.NotNil(t, alert)
	assert.Equal(t, []string{alert.ID}, actioned)
}

func TestEngineImmediateActionFailureDoesNotBlockHandling(t *testing.T) {
	h := newEngineHarness(t, testAlertingConfig())
	h.engine.RegisterImmediateAction(types.CategoryMedical, func(_ context.Context, _ *types.Alert) error {
		panic("hook gone wrong")
	})

	alert, outcome := h.engine.Handle(context.Background(), types.Fault{Type: "MEDICAL_CALCULATION_ERROR"})
	require.NotNil(t, alert)
	assert.Equal(t, MethodNoStrategy, outcome.Method)
}
