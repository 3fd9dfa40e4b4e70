package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the control plane.
// All metrics use the "pulseguard_" prefix.
type Metrics struct {
	// FaultsTotal counts ingested faults by type.
	FaultsTotal *prometheus.CounterVec

	// AlertsTotal counts created alerts by severity and category.
	AlertsTotal *prometheus.CounterVec

	// RecoveryOutcomes counts recovery results by method.
	RecoveryOutcomes *prometheus.CounterVec

	// DeliveriesTotal counts notification outcomes by channel and outcome.
	DeliveriesTotal *prometheus.CounterVec

	// EscalationsTotal counts fired escalation steps.
	EscalationsTotal prometheus.Counter

	// IncidentsOpened counts opened incidents by SEV level.
	IncidentsOpened *prometheus.CounterVec

	// CircuitState tracks breaker state per category (0=closed, 1=open, 2=half-open).
	CircuitState *prometheus.GaugeVec

	// ActiveAlerts tracks alerts not yet resolved.
	ActiveAlerts prometheus.Gauge
}

// New registers and returns the control plane metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FaultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_faults_total",
			Help: "Faults ingested, by fault type.",
		}, []string{"type"}),
		AlertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_alerts_total",
			Help: "Alerts created, by severity and category.",
		}, []string{"severity", "category"}),
		RecoveryOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_recovery_outcomes_total",
			Help: "Recovery attempts, by outcome method.",
		}, []string{"method"}),
		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_deliveries_total",
			Help: "Notification deliveries, by channel and outcome.",
		}, []string{"channel", "outcome"}),
		EscalationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "pulseguard_escalations_total",
			Help: "Escalation steps fired for unacknowledged alerts.",
		}),
		IncidentsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pulseguard_incidents_opened_total",
			Help: "Incidents opened, by SEV level.",
		}, []string{"severity"}),
		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulseguard_circuit_state",
			Help: "Circuit breaker state per category (0=closed, 1=open, 2=half-open).",
		}, []string{"category"}),
		ActiveAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pulseguard_active_alerts",
			Help: "Alerts not yet resolved.",
		}),
	}
}

// CircuitStateValue maps a breaker state name to its gauge value.
func CircuitStateValue(state string) float64 {
	switch state {
	case "open":
		return 1
	case "half_open":
		return 2
	default:
		return 0
	}
}
