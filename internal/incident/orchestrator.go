package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/metrics"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

var (
	// ErrIncidentNotFound is returned for operations on unknown incident IDs.
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrInvalidTransition is returned for backward status moves.
	ErrInvalidTransition = errors.New("invalid incident status transition")

	// ErrNoPendingStep is returned when a step completion does not match
	// the halted step.
	ErrNoPendingStep = errors.New("no pending manual step at that index")
)

// statusOrder defines the linear incident workflow.
var statusOrder = map[types.IncidentStatus]int{
	types.IncidentOpen:          0,
	types.IncidentAcknowledged:  1,
	types.IncidentInvestigating: 2,
	types.IncidentResolved:      3,
	types.IncidentClosed:        4,
}

// ActionFunc executes an automatic playbook step against an incident.
type ActionFunc func(ctx context.Context, inc *types.Incident) error

// NotifyFunc sends a message about an incident to its response team.
type NotifyFunc func(inc types.Incident, subject, detail string)

// Orchestrator opens incidents for severe alerts, runs their playbooks,
// and tracks the response workflow and timeline.
type Orchestrator struct {
	log     zerolog.Logger
	cfg     config.IncidentConfig
	notify  NotifyFunc
	audit   *audit.Writer
	metrics *metrics.Metrics

	mu        sync.RWMutex
	incidents map[string]*types.Incident
	order     []string
	actions   map[string]ActionFunc
}

// NewOrchestrator creates an incident orchestrator.
func NewOrchestrator(log zerolog.Logger, cfg config.IncidentConfig, notify NotifyFunc, auditWriter *audit.Writer, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		log:       log.With().Str("component", "incident").Logger(),
		cfg:       cfg,
		notify:    notify,
		audit:     auditWriter,
		metrics:   m,
		incidents: make(map[string]*types.Incident),
		actions:   make(map[string]ActionFunc),
	}
}

// RegisterAction binds an executor to an automatic step action name.
// Automatic steps without an executor complete as no-ops.
func (o *Orchestrator) RegisterAction(name string, fn ActionFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions[name] = fn
}

// SeverityFor maps an alert to a SEV level. The second return reports
// whether the alert is incident-worthy (SEV1 or SEV2).
func (o *Orchestrator) SeverityFor(alert types.Alert) (types.IncidentSeverity, bool) {
	sev, ok := o.cfg.TypeOverrides[alert.Type]
	if !ok {
		sev, ok = o.cfg.SeverityMap[string(alert.Severity)]
	}
	if !ok {
		return "", false
	}
	level := types.IncidentSeverity(sev)
	return level, level == types.Sev1 || level == types.Sev2
}

// OpenForAlert opens an incident when the alert's severity warrants
// one: the response team is assembled, a playbook is selected by fault
// type, and execution begins. Returns nil, false for alerts below the
// incident threshold.
func (o *Orchestrator) OpenForAlert(ctx context.Context, alert types.Alert) (*types.Incident, bool) {
	sev, worthy := o.SeverityFor(alert)
	if !worthy {
		return nil, false
	}

	now := time.Now()
	inc := &types.Incident{
		ID:             newIncidentID(),
		SourceAlertIDs: []string{alert.ID},
		Severity:       sev,
		Phase:          types.PhaseDetection,
		Status:         types.IncidentOpen,
		ResponseTeam:   o.assembleTeam(sev, alert.Category),
		SLA:            o.slaFor(sev),
		CreatedAt:      now,
		Timeline: []types.TimelineEntry{
			{Timestamp: now, Event: "detected", Actor: "system", Detail: fmt.Sprintf("alert %s (%s)", alert.ID, alert.Type)},
			{Timestamp: now, Event: "opened", Actor: "system", Detail: string(sev)},
		},
	}

	playbookName := o.playbookFor(alert.Type)
	inc.Run = types.PlaybookRun{Name: playbookName}

	o.mu.Lock()
	o.incidents[inc.ID] = inc
	o.order = append(o.order, inc.ID)
	o.mu.Unlock()

	o.metrics.IncidentsOpened.WithLabelValues(string(sev)).Inc()
	o.log.Warn().
		Str("incident_id", inc.ID).
		Str("alert_id", alert.ID).
		Str("severity", string(sev)).
		Str("playbook", playbookName).
		Msg("incident opened")

	o.audit.Record(ctx, audit.Record{
		Kind:  "incident_event",
		RefID: inc.ID,
		Fields: map[string]string{
			"event":    "opened",
			"severity": string(sev),
			"alert_id": alert.ID,
		},
	})

	o.mu.Lock()
	o.appendTimeline(inc, "response_started", "system", "playbook "+playbookName)
	inc.Phase = types.PhaseResponse
	o.mu.Unlock()

	o.advancePlaybook(ctx, inc.ID)

	o.mu.RLock()
	snapshot := copyIncident(inc)
	o.mu.RUnlock()
	return &snapshot, true
}

// CompleteStep marks the halted manual step done and resumes the
// playbook.
func (o *Orchestrator) CompleteStep(ctx context.Context, id string, stepIndex int, actor, note string) (types.Incident, error) {
	o.mu.Lock()
	inc, ok := o.incidents[id]
	if !ok {
		o.mu.Unlock()
		return types.Incident{}, ErrIncidentNotFound
	}
	if !inc.Run.Halted || inc.Run.StepIndex != stepIndex {
		out := copyIncident(inc)
		o.mu.Unlock()
		return out, ErrNoPendingStep
	}

	steps := o.cfg.Playbooks[inc.Run.Name].Steps
	step := steps[stepIndex]
	now := time.Now()
	inc.Run.Outcomes = append(inc.Run.Outcomes, types.StepOutcome{
		Name:        step.Name,
		Status:      "completed",
		Automatic:   false,
		Actor:       actor,
		Detail:      note,
		CompletedAt: &now,
	})
	o.appendTimeline(inc, "step_completed", actor, step.Name)
	inc.Run.Halted = false
	inc.Run.StepIndex++
	o.mu.Unlock()

	o.log.Info().
		Str("incident_id", id).
		Str("step", step.Name).
		Str("actor", actor).
		Msg("manual step completed")

	o.advancePlaybook(ctx, id)

	out, _ := o.Get(id)
	return out, nil
}

// UpdateStatus moves the incident forward in its linear workflow.
// Backward transitions are rejected.
func (o *Orchestrator) UpdateStatus(ctx context.Context, id string, status types.IncidentStatus, actor, notes string) (types.Incident, error) {
	newRank, ok := statusOrder[status]
	if !ok {
		return types.Incident{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	inc, okInc := o.incidents[id]
	if !okInc {
		return types.Incident{}, ErrIncidentNotFound
	}
	if newRank <= statusOrder[inc.Status] {
		return copyIncident(inc), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inc.Status, status)
	}

	inc.Status = status
	o.appendTimeline(inc, string(status), actor, notes)

	switch status {
	case types.IncidentInvestigating:
		inc.Phase = types.PhaseMitigation
	case types.IncidentResolved:
		inc.Phase = types.PhaseResolution
	case types.IncidentClosed:
		if inc.Severity == types.Sev1 || inc.Severity == types.Sev2 {
			inc.Phase = types.PhasePostMortem
		}
	}

	o.audit.Record(ctx, audit.Record{
		Kind:  "incident_event",
		RefID: id,
		Actor: actor,
		Fields: map[string]string{
			"event":  "status_changed",
			"status": string(status),
		},
	})
	return copyIncident(inc), nil
}

// Resolve moves the incident directly to resolved regardless of
// playbook completion. SEV1 and SEV2 incidents get a post-mortem
// scheduled; the post-mortem workflow itself is external.
func (o *Orchestrator) Resolve(ctx context.Context, id, resolution, actor string) (types.Incident, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inc, ok := o.incidents[id]
	if !ok {
		return types.Incident{}, ErrIncidentNotFound
	}
	if statusOrder[inc.Status] >= statusOrder[types.IncidentResolved] {
		return copyIncident(inc), nil
	}

	inc.Status = types.IncidentResolved
	inc.Phase = types.PhaseResolution
	inc.Resolution = resolution
	o.appendTimeline(inc, "resolved", actor, resolution)

	if inc.Severity == types.Sev1 || inc.Severity == types.Sev2 {
		o.appendTimeline(inc, "post_mortem_scheduled", "system", "")
	}

	o.log.Info().
		Str("incident_id", id).
		Str("actor", actor).
		Msg("incident resolved")

	o.audit.Record(ctx, audit.Record{
		Kind:  "incident_event",
		RefID: id,
		Actor: actor,
		Fields: map[string]string{"event": "resolved"},
	})
	return copyIncident(inc), nil
}

// SetRootCause records the identified root cause.
func (o *Orchestrator) SetRootCause(id, rootCause, actor string) (types.Incident, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	inc, ok := o.incidents[id]
	if !ok {
		return types.Incident{}, ErrIncidentNotFound
	}
	inc.RootCause = rootCause
	o.appendTimeline(inc, "root_cause_identified", actor, rootCause)
	return copyIncident(inc), nil
}

// Get returns a copy of the incident.
func (o *Orchestrator) Get(id string) (types.Incident, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	inc, ok := o.incidents[id]
	if !ok {
		return types.Incident{}, false
	}
	return copyIncident(inc), true
}

// List returns copies of all incidents in creation order.
func (o *Orchestrator) List() []types.Incident {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.Incident, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, copyIncident(o.incidents[id]))
	}
	return out
}

// advancePlaybook executes steps from the current index. Automatic
// steps run with the lock released so a slow action never blocks
// unrelated incident operations; a failure halts the run. A manual
// step halts the run and notifies the response team. Called without
// the orchestrator lock held.
func (o *Orchestrator) advancePlaybook(ctx context.Context, id string) {
	for {
		o.mu.Lock()
		inc, ok := o.incidents[id]
		if !ok || statusOrder[inc.Status] >= statusOrder[types.IncidentResolved] {
			o.mu.Unlock()
			return
		}

		steps := o.cfg.Playbooks[inc.Run.Name].Steps
		if inc.Run.StepIndex >= len(steps) {
			inc.Run.Completed = true
			o.appendTimeline(inc, "playbook_completed", "system", inc.Run.Name)
			name := inc.Run.Name
			o.mu.Unlock()
			o.log.Info().
				Str("incident_id", id).
				Str("playbook", name).
				Msg("playbook completed")
			return
		}

		step := steps[inc.Run.StepIndex]
		if !step.Automatic {
			inc.Run.Halted = true
			inc.Run.Outcomes = append(inc.Run.Outcomes, types.StepOutcome{
				Name:      step.Name,
				Status:    "awaiting_operator",
				Automatic: false,
			})
			o.appendTimeline(inc, "manual_step_waiting", "system", step.Name)
			o.notifyTeam(inc, "manual step required", fmt.Sprintf("step %q: %s", step.Name, step.Action))
			o.mu.Unlock()
			o.log.Info().
				Str("incident_id", id).
				Str("step", step.Name).
				Msg("playbook waiting on manual step")
			return
		}

		fn := o.actions[step.Action]
		snapshot := copyIncident(inc)
		o.mu.Unlock()

		err := o.runAction(ctx, fn, step, &snapshot)

		o.mu.Lock()
		now := time.Now()
		if err != nil {
			inc.Run.Halted = true
			inc.Run.Outcomes = append(inc.Run.Outcomes, types.StepOutcome{
				Name:        step.Name,
				Status:      "failed",
				Automatic:   true,
				Detail:      err.Error(),
				CompletedAt: &now,
			})
			o.appendTimeline(inc, "step_failed", "system", step.Name+": "+err.Error())
			o.notifyTeam(inc, "playbook step failed", fmt.Sprintf("step %q failed: %v", step.Name, err))
			o.mu.Unlock()
			o.log.Error().
				Err(err).
				Str("incident_id", id).
				Str("step", step.Name).
				Msg("automatic step failed, playbook halted")
			return
		}

		inc.Run.Outcomes = append(inc.Run.Outcomes, types.StepOutcome{
			Name:        step.Name,
			Status:      "completed",
			Automatic:   true,
			Actor:       "system",
			CompletedAt: &now,
		})
		o.appendTimeline(inc, "step_completed", "system", step.Name)
		inc.Run.StepIndex++
		o.mu.Unlock()
	}
}

// runAction executes an automatic step's action against a snapshot of
// the incident, converting panics to errors. Steps without a registered
// executor complete as no-ops.
func (o *Orchestrator) runAction(ctx context.Context, fn ActionFunc, step config.StepConfig, inc *types.Incident) (err error) {
	if fn == nil {
		o.log.Debug().
			Str("action", step.Action).
			Msg("no executor registered for action, completing as no-op")
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, inc)
}

// notifyTeam sends asynchronously so lock hold time stays short.
func (o *Orchestrator) notifyTeam(inc *types.Incident, subject, detail string) {
	if o.notify == nil {
		return
	}
	snapshot := copyIncident(inc)
	go o.notify(snapshot, subject, detail)
}

// appendTimeline must be called with the orchestrator lock held.
func (o *Orchestrator) appendTimeline(inc *types.Incident, event, actor, detail string) {
	inc.Timeline = append(inc.Timeline, types.TimelineEntry{
		Timestamp: time.Now(),
		Event:     event,
		Actor:     actor,
		Detail:    detail,
	})
}

// assembleTeam unions the severity-mandated stakeholder roles with the
// category's specialists, preserving order and dropping duplicates.
func (o *Orchestrator) assembleTeam(sev types.IncidentSeverity, category types.Category) []string {
	seen := make(map[string]bool)
	var team []string
	for _, role := range o.cfg.Stakeholders[string(sev)] {
		if !seen[role] {
			seen[role] = true
			team = append(team, role)
		}
	}
	for _, role := range o.cfg.Specialists[string(category)] {
		if !seen[role] {
			seen[role] = true
			team = append(team, role)
		}
	}
	return team
}

func (o *Orchestrator) playbookFor(faultType string) string {
	if name, ok := o.cfg.PlaybookByType[faultType]; ok {
		return name
	}
	return o.cfg.DefaultPlaybook
}

func (o *Orchestrator) slaFor(sev types.IncidentSeverity) types.SLATargets {
	budgets := o.cfg.SLA[string(sev)]
	return types.SLATargets{
		Acknowledge: budgets.Acknowledge.Std(),
		Respond:     budgets.Respond.Std(),
		Resolve:     budgets.Resolve.Std(),
	}
}

func copyIncident(inc *types.Incident) types.Incident {
	out := *inc
	out.SourceAlertIDs = append([]string(nil), inc.SourceAlertIDs...)
	out.ResponseTeam = append([]string(nil), inc.ResponseTeam...)
	out.Timeline = append([]types.TimelineEntry(nil), inc.Timeline...)
	out.Run.Outcomes = append([]types.StepOutcome(nil), inc.Run.Outcomes...)
	return out
}

// newIncidentID returns a time-ordered unique identifier.
func newIncidentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
