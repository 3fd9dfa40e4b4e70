package audit

import (
	"context"
	"time"
)

// Record is a single structured audit entry. Every alert creation,
// status change, delivery attempt, and incident timeline event produces
// one.
type Record struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"` // alert_created, alert_status, delivery, incident_event, meta_error
	RefID     string            `json:"ref_id"`
	Actor     string            `json:"actor,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Sink receives audit records. Implementations may be remote; delivery
// is at-least-once, so sinks must tolerate duplicates.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}
