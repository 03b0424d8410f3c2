package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reference resolution.
type Metrics struct {
	Resolutions      *prometheus.CounterVec
	References       *prometheus.CounterVec
	ResolverDuration *prometheus.HistogramVec
	ContextCache     *prometheus.CounterVec
}

// New registers the resolution metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_resolutions_total",
			Help: "Top-level template resolutions by outcome (ok, warned, failed)",
		}, []string{"outcome"}),
		References: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_references_total",
			Help: "Reference lookups by kind and outcome (resolved, cache_hit, failed, degraded)",
		}, []string{"kind", "outcome"}),
		ResolverDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docket_resolver_duration_seconds",
			Help:    "Time spent inside a resolver, excluding nested re-resolution",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
		ContextCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docket_context_cache_lookups_total",
			Help: "@context: cache lookups by result (hit, miss, load_error)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementResolution(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementReference(kind, outcome string) {
	m.References.WithLabelValues(kind, outcome).Inc()
}

// ObserveResolver records the duration of one resolver call.
// Call with time.Now() at the start of the call.
func (m *Metrics) ObserveResolver(kind string, start time.Time) {
	m.ResolverDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementContextCache(result string) {
	m.ContextCache.WithLabelValues(result).Inc()
}
