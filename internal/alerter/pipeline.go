package alerter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulseguard/pulseguard/internal/audit"
	"github.com/pulseguard/pulseguard/internal/config"
	"github.com/pulseguard/pulseguard/internal/escalation"
	"github.com/pulseguard/pulseguard/internal/incident"
	"github.com/pulseguard/pulseguard/internal/notifier"
	"github.com/pulseguard/pulseguard/internal/types"
	"github.com/rs/zerolog"
)

// Pipeline wires the full fault path: classification and recovery,
// escalation planning, notification delivery, and incident opening.
// It is the single entry point external detectors reach through the API.
type Pipeline struct {
	log        zerolog.Logger
	engine     *Engine
	planner    *escalation.Planner
	scheduler  *escalation.Scheduler
	dispatcher *notifier.Dispatcher
	incidents  *incident.Orchestrator
	channels   config.ChannelsConfig
	audit      *audit.Writer
}

// NewPipeline assembles the fault handling pipeline.
func NewPipeline(log zerolog.Logger, engine *Engine, planner *escalation.Planner, scheduler *escalation.Scheduler, dispatcher *notifier.Dispatcher, incidents *incident.Orchestrator, channels config.ChannelsConfig, auditWriter *audit.Writer) *Pipeline {
	return &Pipeline{
		log:        log.With().Str("component", "pipeline").Logger(),
		engine:     engine,
		planner:    planner,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		incidents:  incidents,
		channels:   channels,
		audit:      auditWriter,
	}
}

// Alerts exposes the alert store for read operations.
func (p *Pipeline) Alerts() *Store { return p.engine.Store() }

// Incidents exposes the incident orchestrator.
func (p *Pipeline) Incidents() *incident.Orchestrator { return p.incidents }

// SubmitFault processes one fault signal end to end and returns the
// created alert with its recovery outcome. Notification delivery runs
// detached so its retry sequences never block the submitter.
func (p *Pipeline) SubmitFault(ctx context.Context, fault types.Fault) (types.Alert, AlertOutcome) {
	alert, outcome := p.engine.Handle(ctx, fault)
	if alert == nil {
		return types.Alert{}, outcome
	}

	current, _ := p.engine.Store().Get(alert.ID)
	plan := p.planner.Plan(alert.ID, alert.Type, alert.Severity, time.Now())

	msg := notifier.Message{
		AlertID:  alert.ID,
		Title:    alert.Type,
		Body:     p.messageBody(current, outcome, plan),
		Severity: alert.Severity,
		Category: alert.Category,
		Resolved: current.Terminal(),
	}
	go p.deliver(msg)

	if !current.Terminal() {
		p.scheduler.Start(alert.ID, plan)
		if _, opened := p.incidents.OpenForAlert(ctx, current); opened {
			current, _ = p.engine.Store().Get(alert.ID)
		}
	}

	return current, outcome
}

// Acknowledge marks an alert acknowledged and cancels its pending
// escalation. Acknowledging a resolved alert is an idempotent no-op.
func (p *Pipeline) Acknowledge(ctx context.Context, id, actor, note string) (types.Alert, error) {
	alert, err := p.engine.Store().Acknowledge(id, actor, note)
	if err != nil {
		return types.Alert{}, err
	}
	p.scheduler.Cancel(id)
	p.audit.Record(ctx, audit.Record{
		Kind:   "alert_status",
		RefID:  id,
		Actor:  actor,
		Fields: map[string]string{"status": string(alert.Status)},
	})
	return alert, nil
}

// Resolve marks an alert resolved and cancels its pending escalation.
func (p *Pipeline) Resolve(ctx context.Context, id, actor, reason string) (types.Alert, error) {
	alert, err := p.engine.Store().Resolve(id, actor, reason)
	if err != nil {
		return types.Alert{}, err
	}
	p.scheduler.Cancel(id)
	p.audit.Record(ctx, audit.Record{
		Kind:   "alert_status",
		RefID:  id,
		Actor:  actor,
		Fields: map[string]string{"status": string(alert.Status)},
	})
	return alert, nil
}

// NotifyEscalation delivers an escalation notice for a level's team.
// Wired as the scheduler's notify callback.
func (p *Pipeline) NotifyEscalation(alert types.Alert, level escalation.Level) {
	msg := notifier.Message{
		AlertID:  alert.ID,
		Title:    fmt.Sprintf("%s (escalated to %s)", alert.Type, level.ID),
		Body:     fmt.Sprintf("%s\n\nUnhandled for %s. Now with: %s", alert.Message, time.Since(alert.CreatedAt).Round(time.Second), strings.Join(level.Team, ", ")),
		Severity: alert.Severity,
		Category: alert.Category,
	}
	p.deliver(msg)
}

// NotifyIncidentTeam delivers an incident notice on the ops channel
// with fallback. Wired as the orchestrator's notify callback.
func (p *Pipeline) NotifyIncidentTeam(inc types.Incident, subject, detail string) {
	msg := notifier.Message{
		Title:    fmt.Sprintf("Incident %s: %s", inc.ID, subject),
		Body:     fmt.Sprintf("%s\nSeverity: %s\nTeam: %s", detail, inc.Severity, strings.Join(inc.ResponseTeam, ", ")),
		Severity: types.SeverityCritical,
		Category: types.CategorySystem,
	}
	if _, err := p.dispatcher.DeliverWithFallback(context.Background(), p.opsChannel(), msg, notifier.Options{}); err != nil {
		p.log.Error().Err(err).Str("incident_id", inc.ID).Msg("incident notification undeliverable")
	}
}

// deliver routes by severity: critical alerts go through the fallback
// chain on the primary channel, everything else fans out concurrently.
func (p *Pipeline) deliver(msg notifier.Message) {
	ctx := context.Background()
	channels := p.routeFor(msg.Severity)
	if len(channels) == 0 {
		p.log.Warn().Str("severity", string(msg.Severity)).Msg("no channels routed for severity")
		return
	}

	if msg.Severity == types.SeverityCritical {
		if _, err := p.dispatcher.DeliverWithFallback(ctx, channels[0], msg, notifier.Options{}); err != nil {
			p.log.Error().Err(err).Str("alert_id", msg.AlertID).Msg("critical alert undeliverable")
		}
		return
	}
	p.dispatcher.Deliver(ctx, channels, msg, notifier.Options{})
}

// routeFor returns the channels for a severity, falling back to the
// default route.
func (p *Pipeline) routeFor(severity types.Severity) []string {
	if channels, ok := p.channels.Routes[string(severity)]; ok {
		return channels
	}
	return p.channels.Routes["default"]
}

func (p *Pipeline) opsChannel() string {
	if p.channels.OpsChannel != "" {
		return p.channels.OpsChannel
	}
	if channels := p.channels.Routes["default"]; len(channels) > 0 {
		return channels[0]
	}
	return ""
}

// messageBody summarizes the alert and its handling for humans.
func (p *Pipeline) messageBody(alert types.Alert, outcome AlertOutcome, plan escalation.Plan) string {
	var b strings.Builder
	b.WriteString(alert.Message)
	if outcome.Resolved {
		fmt.Fprintf(&b, "\n\nAuto-recovered via %s after %d attempt(s).", outcome.Method, outcome.Attempts)
	} else if outcome.Method != "" {
		fmt.Fprintf(&b, "\n\nNot auto-recovered (%s).", outcome.Method)
	}
	if len(plan.Levels) > 0 && len(plan.Levels[0].Team) > 0 {
		fmt.Fprintf(&b, "\nResponsible: %s", strings.Join(plan.Levels[0].Team, ", "))
	}
	return b.String()
}
