package incident

import (
	"time"

	"github.com/pulseguard/pulseguard/internal/types"
)

// Timeline events that anchor each SLA metric.
const (
	eventAcknowledged    = "acknowledged"
	eventResponseStarted = "response_started"
	eventResolved        = "resolved"
)

// SLACompliance computes compliance purely from timeline timestamps
// against the incident's severity budgets. Metrics whose anchoring
// event has not occurred yet are left nil.
func (o *Orchestrator) SLACompliance(id string) (types.SLACompliance, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	inc, ok := o.incidents[id]
	if !ok {
		return types.SLACompliance{}, ErrIncidentNotFound
	}
	return computeSLA(inc), nil
}

func computeSLA(inc *types.Incident) types.SLACompliance {
	var out types.SLACompliance
	if ts, ok := firstEvent(inc.Timeline, eventAcknowledged); ok {
		out.Acknowledged = within(ts, inc.CreatedAt, inc.SLA.Acknowledge)
	}
	if ts, ok := firstEvent(inc.Timeline, eventResponseStarted); ok {
		out.Responded = within(ts, inc.CreatedAt, inc.SLA.Respond)
	}
	if ts, ok := firstEvent(inc.Timeline, eventResolved); ok {
		out.Resolved = within(ts, inc.CreatedAt, inc.SLA.Resolve)
	}
	return out
}

// firstEvent returns the timestamp of the first timeline entry with the
// given event name.
func firstEvent(timeline []types.TimelineEntry, event string) (time.Time, bool) {
	for _, entry := range timeline {
		if entry.Event == event {
			return entry.Timestamp, true
		}
	}
	return time.Time{}, false
}

func within(ts, createdAt time.Time, budget time.Duration) *bool {
	ok := ts.Sub(createdAt) <= budget
	return &ok
}
