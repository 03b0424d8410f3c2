package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the document registry.
// Tracks registrations, lifecycle transitions, retention sweeps and
// critical path durations.
type Metrics struct {
	Registered        prometheus.Counter
	Transitions       *prometheus.CounterVec
	TransitionFailure *prometheus.CounterVec
	SweepActions      *prometheus.CounterVec
	Compensations     prometheus.Counter
	OperationDuration *prometheus.HistogramVec
}

// New registers the document metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Registered: factory.NewCounter(prometheus.CounterOpts{
			Name: "docket_documents_registered_total",
			Help: "Total number of documents registered",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_document_transitions_total",
			Help: "Committed lifecycle transitions by source and target state",
		}, []string{"from", "to"}),
		TransitionFailure: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_document_transition_failures_total",
			Help: "Rejected or aborted lifecycle transitions by error code",
		}, []string{"code"}),
		SweepActions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_retention_sweep_actions_total",
			Help: "Retention sweep decisions by action and outcome (done, failed, skipped, planned)",
		}, []string{"action", "outcome"}),
		Compensations: factory.NewCounter(prometheus.CounterOpts{
			Name: "docket_archive_compensations_total",
			Help: "Archived content moved back after a failed commit",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_document_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

// IncrementRegistered records a successful registration.
func (m *Metrics) IncrementRegistered() {
	m.Registered.Inc()
}

// IncrementTransition records a committed transition.
func (m *Metrics) IncrementTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

// IncrementTransitionFailure records a transition that did not commit.
func (m *Metrics) IncrementTransitionFailure(code string) {
	m.TransitionFailure.WithLabelValues(code).Inc()
}

// IncrementSweepAction records one retention decision.
func (m *Metrics) IncrementSweepAction(action, outcome string) {
	m.SweepActions.WithLabelValues(action, outcome).Inc()
}

// IncrementCompensation records content moved back after a failed commit.
func (m *Metrics) IncrementCompensation() {
	m.Compensations.Inc()
}

// ObserveOperation records the duration of operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
