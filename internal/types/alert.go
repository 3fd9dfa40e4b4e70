package types

import "time"

// Severity classifies how urgent a fault is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank returns an ordering value, higher meaning more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Category groups fault types by the subsystem they affect.
type Category string

const (
	CategoryMedical       Category = "medical"
	CategoryCompliance    Category = "compliance"
	CategoryAccessibility Category = "accessibility"
	CategoryPerformance   Category = "performance"
	CategorySystem        Category = "system"
)

// AlertStatus is the lifecycle state of an alert.
// Transitions are monotone: active -> acknowledged -> resolved,
// with acknowledgment optional and resolution terminal.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Fault is a raw fault signal submitted by an external detector.
type Fault struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// ContextFlags are booleans derived from the fault type at classification time.
type ContextFlags struct {
	PatientDataAffected bool `json:"patient_data_affected"`
	ComplianceRisk      bool `json:"compliance_risk"`
}

// NotificationRecord is one entry in an alert's append-only delivery log.
type NotificationRecord struct {
	Channel   string    `json:"channel"`
	Timestamp time.Time `json:"timestamp"`
	Outcome   string    `json:"outcome"` // sent, failed, rate_limited, fallback
	Attempts  int       `json:"attempts"`
	Detail    string    `json:"detail,omitempty"`
}

// Acknowledgment records an actor acknowledging an alert.
type Acknowledgment struct {
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
}

// EscalationState tracks where an alert sits in its escalation plan.
type EscalationState struct {
	CurrentLevel     int        `json:"current_level"`
	NextEscalationAt *time.Time `json:"next_escalation_at,omitempty"`
	Attempts         int        `json:"attempts"`
}

// Alert is a classified, auditable record of a detected fault,
// independent of whether it was automatically resolved.
type Alert struct {
	ID                string               `json:"id"`
	Type              string               `json:"type"`
	Severity          Severity             `json:"severity"`
	Category          Category             `json:"category"`
	CreatedAt         time.Time            `json:"created_at"`
	Status            AlertStatus          `json:"status"`
	Message           string               `json:"message"`
	Flags             ContextFlags         `json:"context_flags"`
	Escalation        EscalationState      `json:"escalation"`
	NotificationsSent []NotificationRecord `json:"notifications_sent"`
	Acknowledgments   []Acknowledgment     `json:"acknowledgments"`
	ResolvedAt        *time.Time           `json:"resolved_at,omitempty"`
	ResolvedBy        string               `json:"resolved_by,omitempty"`
	ResolveReason     string               `json:"resolve_reason,omitempty"`
}

// Terminal reports whether the alert has reached its final status.
func (a *Alert) Terminal() bool {
	return a.Status == AlertResolved
}
