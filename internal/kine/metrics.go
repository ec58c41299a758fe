package kine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for kinematics generation. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Events by outcome: accepted, exhausted, no_phase_space
	Events *prometheus.CounterVec

	// Rejection loop iterations across all events
	Iterations prometheus.Counter

	// Draws skipped because cos_theta0_max <= -1
	DegenerateDraws prometheus.Counter

	// Accepted draws sent back to sampling by the corrector, by reason
	CorrectorRejections *prometheus.CounterVec

	// Rates observed above their rejection bound
	BoundViolations prometheus.Counter

	// Cache lookups by result: hit, miss, bypass, invalidated
	CacheLookups *prometheus.CounterVec

	// Refinement layers used per maximum search
	SearchLayers prometheus.Histogram
}

// NewMetrics creates the generator metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinegen_events_total",
			Help: "Events processed by the kinematics generator by outcome",
		}, []string{"outcome"}),

		Iterations: f.NewCounter(prometheus.CounterOpts{
			Name: "kinegen_iterations_total",
			Help: "Rejection loop iterations across all events",
		}),

		DegenerateDraws: f.NewCounter(prometheus.CounterOpts{
			Name: "kinegen_degenerate_draws_total",
			Help: "Draws skipped because the allowed cos_theta0 range vanished",
		}),

		CorrectorRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinegen_corrector_rejections_total",
			Help: "Accepted draws returned to sampling by the binding energy correction",
		}, []string{"reason"}),

		BoundViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "kinegen_bound_violations_total",
			Help: "Rate evaluations that exceeded the rejection bound",
		}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kinegen_max_rate_cache_lookups_total",
			Help: "Max rate cache lookups by result",
		}, []string{"result"}),

		SearchLayers: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kinegen_max_rate_search_layers",
			Help:    "Grid refinement layers used per maximum search",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
		}),
	}
}

// IncrementEvent records an event outcome.
func (m *Metrics) IncrementEvent(outcome string) {
	if m != nil {
		m.Events.WithLabelValues(outcome).Inc()
	}
}

// AddIterations records iterations spent on one event.
func (m *Metrics) AddIterations(n int) {
	if m != nil {
		m.Iterations.Add(float64(n))
	}
}

// IncrementDegenerate records a skipped degenerate draw.
func (m *Metrics) IncrementDegenerate() {
	if m != nil {
		m.DegenerateDraws.Inc()
	}
}

// IncrementCorrectorRejection records a correction-stage rejection.
func (m *Metrics) IncrementCorrectorRejection(reason string) {
	if m != nil {
		m.CorrectorRejections.WithLabelValues(reason).Inc()
	}
}

// IncrementBoundViolation records a rate above its bound.
func (m *Metrics) IncrementBoundViolation() {
	if m != nil {
		m.BoundViolations.Inc()
	}
}

// IncrementCacheLookup records a cache lookup result.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveSearchLayers records the layers used by one maximum search.
func (m *Metrics) ObserveSearchLayers(n int) {
	if m != nil {
		m.SearchLayers.Observe(float64(n))
	}
}
