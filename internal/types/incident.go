package types

import "time"

// IncidentSeverity is the SEV level assigned when an incident is opened.
type IncidentSeverity string

const (
	Sev1 IncidentSeverity = "SEV1"
	Sev2 IncidentSeverity = "SEV2"
	Sev3 IncidentSeverity = "SEV3"
)

// IncidentStatus is the response workflow state. Transitions are linear:
// open -> acknowledged -> investigating -> resolved -> closed.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "open"
	IncidentAcknowledged  IncidentStatus = "acknowledged"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// IncidentPhase tracks the broad stage of the response effort.
type IncidentPhase string

const (
	PhaseDetection  IncidentPhase = "detection"
	PhaseResponse   IncidentPhase = "response"
	PhaseMitigation IncidentPhase = "mitigation"
	PhaseResolution IncidentPhase = "resolution"
	PhasePostMortem IncidentPhase = "post_mortem"
)

// TimelineEntry is one event in an incident's append-only timeline.
// The timeline is the sole source of truth for audit and SLA computation.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
}

// StepOutcome records the result of a single playbook step.
type StepOutcome struct {
	Name        string     `json:"name"`
	Status      string     `json:"status"` // completed, failed, awaiting_operator
	Automatic   bool       `json:"automatic"`
	Actor       string     `json:"actor,omitempty"`
	Detail      string     `json:"detail,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PlaybookRun tracks execution progress of a playbook against an incident.
type PlaybookRun struct {
	Name      string        `json:"name"`
	StepIndex int           `json:"step_index"`
	Outcomes  []StepOutcome `json:"step_outcomes"`
	Completed bool          `json:"completed"`
	Halted    bool          `json:"halted"` // waiting on a manual step or a failed automatic step
}

// SLATargets are the per-severity response time budgets.
type SLATargets struct {
	Acknowledge time.Duration `json:"acknowledge"`
	Respond     time.Duration `json:"respond"`
	Resolve     time.Duration `json:"resolve"`
}

// SLACompliance is the per-metric result computed from the timeline.
type SLACompliance struct {
	Acknowledged *bool `json:"acknowledged,omitempty"`
	Responded    *bool `json:"responded,omitempty"`
	Resolved     *bool `json:"resolved,omitempty"`
}

// Incident is a tracked, stateful response effort opened for alerts whose
// severity crosses the incident threshold.
type Incident struct {
	ID             string           `json:"id"`
	SourceAlertIDs []string         `json:"source_alert_ids"`
	Severity       IncidentSeverity `json:"severity"`
	Phase          IncidentPhase    `json:"phase"`
	Status         IncidentStatus   `json:"status"`
	Run            PlaybookRun      `json:"playbook_run"`
	ResponseTeam   []string         `json:"response_team"`
	Timeline       []TimelineEntry  `json:"timeline"`
	Resolution     string           `json:"resolution,omitempty"`
	RootCause      string           `json:"root_cause,omitempty"`
	SLA            SLATargets       `json:"sla_targets"`
	CreatedAt      time.Time        `json:"created_at"`
}
