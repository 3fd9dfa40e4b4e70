package alerter

import (
	"errors"
	"sync"
	"time"

	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

// ErrAlertNotFound is returned for operations on unknown alert IDs.
var ErrAlertNotFound = errors.New("alert not found")

// Store holds all alerts in memory. Alerts are never deleted, only
// resolved. All mutation happens under the store lock so status
// check-then-act sequences are atomic.
type Store struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
	mu      sync.RWMutex
	alerts  map[string]*types.Alert
	order   []string // insertion order for listing
}

// NewStore creates an empty alert store.
func NewStore(log zerolog.Logger, m *metrics.Metrics) *Store {
	return &Store{
		log:     log.With().Str("component", "alert-store").Logger(),
		metrics: m,
		alerts:  make(map[string]*types.Alert),
	}
}

// Add inserts a new alert.
func (s *Store) Add(alert *types.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[alert.ID] = alert
	s.order = append(s.order, alert.ID)
	if !alert.Terminal() {
		s.metrics.ActiveAlerts.Inc()
	}
}

// Get returns a copy of the alert.
func (s *Store) Get(id string) (types.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return types.Alert{}, false
	}
	return copyAlert(alert), true
}

// List returns copies of all alerts, optionally filtered by status,
// in creation order.
func (s *Store) List(status types.AlertStatus) []types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Alert, 0, len(s.order))
	for _, id := range s.order {
		alert := s.alerts[id]
		if status != "" && alert.Status != status {
			continue
		}
		out = append(out, copyAlert(alert))
	}
	return out
}

// Acknowledge moves an active alert to acknowledged and appends the
// acknowledgment. Calls on a resolved alert are idempotent no-ops.
func (s *Store) Acknowledge(id, actor, note string) (types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return types.Alert{}, ErrAlertNotFound
	}
	if alert.Terminal() {
		return copyAlert(alert), nil
	}

	alert.Acknowledgments = append(alert.Acknowledgments, types.Acknowledgment{
		Actor:     actor,
		Timestamp: time.Now(),
		Note:      note,
	})
	if alert.Status == types.AlertActive {
		alert.Status = types.AlertAcknowledged
	}
	alert.Escalation.NextEscalationAt = nil

	s.log.Info().Str("alert_id", id).Str("actor", actor).Msg("alert acknowledged")
	return copyAlert(alert), nil
}

// Resolve moves an alert to resolved, freezing its escalation state.
// Resolution is terminal; repeated calls are idempotent no-ops.
func (s *Store) Resolve(id, actor, reason string) (types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return types.Alert{}, ErrAlertNotFound
	}
	if alert.Terminal() {
		return copyAlert(alert), nil
	}

	now := time.Now()
	alert.Status = types.AlertResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	alert.ResolveReason = reason
	alert.Escalation.NextEscalationAt = nil
	s.metrics.ActiveAlerts.Dec()

	s.log.Info().Str("alert_id", id).Str("actor", actor).Msg("alert resolved")
	return copyAlert(alert), nil
}

// AppendNotification appends a delivery outcome to the alert's
// notification log. The log is append-only and written even for alerts
// that have since resolved, so late outcomes stay auditable.
func (s *Store) AppendNotification(id string, rec types.NotificationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		s.log.Warn().Str("alert_id", id).Msg("notification record for unknown alert")
		return
	}
	alert.NotificationsSent = append(alert.NotificationsSent, rec)
}

// AdvanceEscalation atomically checks that the alert is still active and
// records the move to the given level. It returns false when the alert
// was acknowledged or resolved in the meantime, in which case the fired
// escalation must no-op.
func (s *Store) AdvanceEscalation(id string, level int, nextAt *time.Time) (types.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok || alert.Status != types.AlertActive {
		return types.Alert{}, false
	}

	alert.Escalation.CurrentLevel = level
	alert.Escalation.Attempts++
	alert.Escalation.NextEscalationAt = nextAt
	return copyAlert(alert), true
}

// SetNextEscalation records the first scheduled escalation deadline.
func (s *Store) SetNextEscalation(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok || alert.Terminal() {
		return
	}
	alert.Escalation.NextEscalationAt = &at
}

// copyAlert returns a deep enough copy for callers to use without
// racing store mutations.
func copyAlert(a *types.Alert) types.Alert {
	out := *a
	out.NotificationsSent = append([]types.NotificationRecord(nil), a.NotificationsSent...)
	out.Acknowledgments = append([]types.Acknowledgment(nil), a.Acknowledgments...)
	return out
}
