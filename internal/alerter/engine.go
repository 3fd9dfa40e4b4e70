package alerter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/breaker"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/recovery"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

// Recovery outcome methods reported on AlertOutcome.
const (
	MethodCircuitOpen = "circuit_open"
	MethodNoStrategy  = "no_strategy"
	MethodExhausted   = "exhausted"
	MethodMetaError   = "meta_error"
)

// AlertOutcome summarizes what automatic handling achieved for a fault.
type AlertOutcome struct {
	Resolved bool   `json:"resolved"`
	Method   string `json:"method"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// ImmediateAction is a category-specific hook executed best-effort for
// critical and high severity alerts before recovery, e.g. locking down
// a resource.
type ImmediateAction func(ctx context.Context, alert *types.Alert) error

// OpsNotifyFunc sends a best-effort message to the fixed operations
// channel, bypassing the normal delivery pipeline.
type OpsNotifyFunc func(ctx context.Context, subject, detail string)

// Engine classifies incoming faults, consults the circuit breaker
// registry, drives recovery strategies, and emits alerts.
type Engine struct {
	log        zerolog.Logger
	cfg        config.AlertingConfig
	breakers   *breaker.Registry
	strategies *recovery.Registry
	store      *Store
	audit      *audit.Writer
	metrics    *metrics.Metrics
	immediate  map[types.Category]ImmediateAction
	opsNotify  OpsNotifyFunc
}

// NewEngine creates an alert engine. opsNotify may be nil; immediate
// actions are registered separately.
func NewEngine(log zerolog.Logger, cfg config.AlertingConfig, breakers *breaker.Registry, strategies *recovery.Registry, store *Store, auditWriter *audit.Writer, m *metrics.Metrics, opsNotify OpsNotifyFunc) *Engine {
	return &Engine{
		log:        log.With().Str("component", "alert-engine").Logger(),
		cfg:        cfg,
		breakers:   breakers,
		strategies: strategies,
		store:      store,
		audit:      auditWriter,
		metrics:    m,
		immediate:  make(map[types.Category]ImmediateAction),
		opsNotify:  opsNotify,
	}
}

// RegisterImmediateAction binds a best-effort hook for a category.
func (e *Engine) RegisterImmediateAction(category types.Category, action ImmediateAction) {
	e.immediate[category] = action
}

// Store exposes the alert store for read and lifecycle operations.
func (e *Engine) Store() *Store { return e.store }

// Classify maps a fault type to severity and category. Unknown types
// default to medium severity in the system category.
func (e *Engine) Classify(faultType string) (types.Severity, types.Category) {
	ft, ok := e.cfg.FaultTypes[faultType]
	if !ok {
		e.log.Debug().Str("fault_type", faultType).Msg("unknown fault type, using defaults")
		return types.SeverityMedium, types.CategorySystem
	}
	return types.Severity(ft.Severity), types.Category(ft.Category)
}

// Handle processes one fault occurrence: classify, create the alert,
// run the immediate action hook, consult the circuit breaker, and drive
// bounded recovery. An Alert is always created, even when recovery
// succeeds, so the event stays auditable. Panics anywhere in handling
// are caught at this boundary and routed to the ops channel; they never
// crash the engine or suppress other faults.
func (e *Engine) Handle(ctx context.Context, fault types.Fault) (alert *types.Alert, outcome AlertOutcome) {
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("fault handling panicked: %v", r)
			e.log.Error().
				Str("fault_type", fault.Type).
				Interface("panic", r).
				Msg("meta-error in fault handling")
			e.audit.Record(ctx, audit.Record{
				Kind:   "meta_error",
				RefID:  fault.Type,
				Detail: detail,
			})
			if e.opsNotify != nil {
				e.opsNotify(ctx, "fault handling pipeline failure", detail)
			}
			outcome = AlertOutcome{Resolved: false, Method: MethodMetaError, Error: detail}
		}
	}()

	e.metrics.FaultsTotal.WithLabelValues(fault.Type).Inc()

	severity, category := e.Classify(fault.Type)
	alert = e.createAlert(ctx, fault, severity, category)

	if severity == types.SeverityCritical || severity == types.SeverityHigh {
		e.runImmediateAction(ctx, alert)
	}

	// The strategy lookup comes before the breaker check: checking an
	// open breaker can consume its half-open probe, and only a caller
	// that goes on to report an outcome may take it.
	strategy, err := e.strategies.Lookup(fault.Type)
	if err != nil {
		outcome = AlertOutcome{Method: MethodNoStrategy}
		e.metrics.RecoveryOutcomes.WithLabelValues(MethodNoStrategy).Inc()
		return alert, outcome
	}

	// Remediation is gated by the breaker; alerting is not.
	if e.breakers.IsOpen(string(category)) {
		e.log.Warn().
			Str("fault_type", fault.Type).
			Str("category", string(category)).
			Msg("circuit open, skipping recovery")
		outcome = AlertOutcome{Method: MethodCircuitOpen, Error: "Circuit breaker open"}
		e.metrics.RecoveryOutcomes.WithLabelValues(MethodCircuitOpen).Inc()
		return alert, outcome
	}

	outcome = e.runRecovery(ctx, fault, category, strategy)
	e.metrics.RecoveryOutcomes.WithLabelValues(outcome.Method).Inc()

	if outcome.Resolved {
		// The fault is remediated; the alert record stays, resolved by
		// the recovery itself.
		if _, err := e.store.Resolve(alert.ID, "auto-recovery", outcome.Method); err == nil {
			e.audit.Record(ctx, audit.Record{
				Kind:  "alert_status",
				RefID: alert.ID,
				Actor: "auto-recovery",
				Fields: map[string]string{
					"status": string(types.AlertResolved),
					"method": outcome.Method,
				},
			})
		}
	}
	return alert, outcome
}

// createAlert builds, stores, and audits the alert entity.
func (e *Engine) createAlert(ctx context.Context, fault types.Fault, severity types.Severity, category types.Category) *types.Alert {
	alert := &types.Alert{
		ID:        newAlertID(),
		Type:      fault.Type,
		Severity:  severity,
		Category:  category,
		CreatedAt: time.Now(),
		Status:    types.AlertActive,
		Message:   fault.Message,
		Flags: types.ContextFlags{
			PatientDataAffected: category == types.CategoryMedical,
			ComplianceRisk:      category == types.CategoryCompliance,
		},
	}
	e.store.Add(alert)
	e.metrics.AlertsTotal.WithLabelValues(string(severity), string(category)).Inc()

	e.log.Info().
		Str("alert_id", alert.ID).
		Str("fault_type", fault.Type).
		Str("severity", string(severity)).
		Str("category", string(category)).
		Msg("alert created")

	e.audit.Record(ctx, audit.Record{
		Kind:  "alert_created",
		RefID: alert.ID,
		Fields: map[string]string{
			"type":     fault.Type,
			"severity": string(severity),
			"category": string(category),
		},
	})
	return alert
}

// runImmediateAction executes the category hook, best-effort.
func (e *Engine) runImmediateAction(ctx context.Context, alert *types.Alert) {
	action, ok := e.immediate[alert.Category]
	if !ok {
		return
	}
	if err := safeAttempt(func() error { return action(ctx, alert) }); err != nil {
		e.log.Error().
			Err(err).
			Str("alert_id", alert.ID).
			Str("category", string(alert.Category)).
			Msg("immediate action failed")
	}
}

// runRecovery retries the strategy with exponential backoff, reporting
// every attempt's outcome to the circuit breaker. Strategy panics count
// as failed attempts, not crashes.
func (e *Engine) runRecovery(ctx context.Context, fault types.Fault, category types.Category, strategy recovery.Strategy) AlertOutcome {
	maxRetries := 3
	backoff := 500 * time.Millisecond
	if ft, ok := e.cfg.FaultTypes[fault.Type]; ok && ft.Recovery != nil {
		maxRetries = ft.Recovery.MaxRetries
		backoff = ft.Recovery.Backoff.Std()
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := safeAttempt(func() error { return strategy.Attempt(ctx, fault) })

		state := e.breakers.ReportOutcome(string(category), err == nil)
		e.metrics.CircuitState.WithLabelValues(string(category)).Set(metrics.CircuitStateValue(string(state.State)))

		if err == nil {
			e.log.Info().
				Str("fault_type", fault.Type).
				Str("strategy", strategy.Name()).
				Int("attempt", attempt).
				Msg("recovery succeeded")
			return AlertOutcome{Resolved: true, Method: strategy.Name(), Attempts: attempt}
		}

		lastErr = err
		e.log.Warn().
			Err(err).
			Str("fault_type", fault.Type).
			Str("strategy", strategy.Name()).
			Int("attempt", attempt).
			Msg("recovery attempt failed")

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return AlertOutcome{Method: MethodExhausted, Attempts: attempt, Error: ctx.Err().Error()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	return AlertOutcome{Method: MethodExhausted, Attempts: maxRetries, Error: lastErr.Error()}
}

// safeAttempt converts a panic into an error so one bad strategy or
// hook cannot take down the engine.
func safeAttempt(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// newAlertID returns a time-ordered unique identifier.
func newAlertID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
