package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

// NotifyFunc is called when an alert escalates to the next level's team.
type NotifyFunc func(alert types.Alert, level Level)

// alertStore is the slice of the alert store the scheduler needs. The
// advance operation is atomic against the alert's status, so a timer
// that fires after acknowledgment or resolution observes that and no-ops.
type alertStore interface {
	AdvanceEscalation(id string, level int, nextAt *time.Time) (types.Alert, bool)
	SetNextEscalation(id string, at time.Time)
}

// Scheduler drives time-based escalation: for each unresolved alert it
// waits out each level's deadline and hands the alert to the next
// level's team.
type Scheduler struct {
	log     zerolog.Logger
	store   alertStore
	notify  NotifyFunc
	metrics *metrics.Metrics
	mu      sync.Mutex
	timers  map[string]context.CancelFunc // alert ID -> cancel func
}

// NewScheduler creates an escalation scheduler.
func NewScheduler(log zerolog.Logger, store alertStore, notify NotifyFunc, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		log:     log.With().Str("component", "escalation-scheduler").Logger(),
		store:   store,
		notify:  notify,
		metrics: m,
		timers:  make(map[string]context.CancelFunc),
	}
}

// Start begins the escalation timer chain for an alert. Level 0 has
// already been notified by the caller; the chain walks levels 1..n,
// firing each at its scheduled deadline while the alert stays active.
func (s *Scheduler) Start(alertID string, plan Plan) {
	if len(plan.Levels) < 2 {
		return
	}

	s.mu.Lock()
	// Cancel any existing timer chain for this alert
	if cancel, ok := s.timers[alertID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.timers[alertID] = cancel
	s.mu.Unlock()

	s.store.SetNextEscalation(alertID, plan.Levels[1].ScheduledAt)

	s.log.Debug().
		Str("alert_id", alertID).
		Int("levels", len(plan.Levels)).
		Time("first_deadline", plan.Levels[1].ScheduledAt).
		Msg("escalation chain started")

	go s.run(ctx, alertID, plan)
}

func (s *Scheduler) run(ctx context.Context, alertID string, plan Plan) {
	defer s.remove(alertID)

	for i := 1; i < len(plan.Levels); i++ {
		level := plan.Levels[i]

		delay := time.Until(level.ScheduledAt)
		if delay < 0 {
			delay = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		var nextAt *time.Time
		if i+1 < len(plan.Levels) {
			nextAt = &plan.Levels[i+1].ScheduledAt
		}

		alert, ok := s.store.AdvanceEscalation(alertID, i, nextAt)
		if !ok {
			// Acknowledged or resolved while the timer was pending
			s.log.Debug().Str("alert_id", alertID).Msg("alert settled, escalation stopped")
			return
		}

		s.metrics.EscalationsTotal.Inc()
		s.log.Warn().
			Str("alert_id", alertID).
			Str("level", level.ID).
			Strs("team", level.Team).
			Msg("escalating unresolved alert")

		if s.notify != nil {
			s.notify(alert, level)
		}
	}
}

// Cancel stops pending escalation for an alert, typically on
// acknowledgment or resolution.
func (s *Scheduler) Cancel(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.timers[alertID]; ok {
		cancel()
		delete(s.timers, alertID)
		s.log.Debug().Str("alert_id", alertID).Msg("escalation cancelled")
	}
}

// Stop cancels all pending escalation timers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cancel := range s.timers {
		cancel()
		delete(s.timers, id)
	}
}

func (s *Scheduler) remove(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, alertID)
}
