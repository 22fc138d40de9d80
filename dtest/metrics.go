package dtest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus metrics for graph execution, namespaced with
// "dtest_":
//
//   - results_total (counter): terminal transitions, labeled by state and
//     node kind. Fixture outcomes are labeled separately so that test
//     counts can be derived by filtering kind="test".
//   - inflight_nodes (gauge): nodes currently executing.
//   - phase_latency_ms (histogram): per-phase execution duration, labeled
//     by phase and outcome.
//
// All methods are safe for concurrent use.
type Metrics struct {
	results      *prometheus.CounterVec
	inflight     prometheus.Gauge
	phaseLatency *prometheus.HistogramVec
}

// NewMetrics creates and registers the execution metrics with the provided
// registry. Pass prometheus.DefaultRegisterer to use the global registry,
// or a private prometheus.NewRegistry() for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dtest",
			Name:      "results_total",
			Help:      "Terminal node transitions by state and node kind",
		}, []string{"state", "kind"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "dtest",
			Name:      "inflight_nodes",
			Help:      "Number of nodes currently executing",
		}),
		phaseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dtest",
			Name:      "phase_latency_ms",
			Help:      "Phase execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"phase", "outcome"}),
	}
}

// RecordResult counts one terminal transition.
func (m *Metrics) RecordResult(n *Node, s State) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(s), n.Kind().String()).Inc()
}

// RecordPhase observes one phase's execution latency.
func (m *Metrics) RecordPhase(res PhaseResult) {
	if m == nil {
		return
	}
	ms := float64(res.Duration) / float64(time.Millisecond)
	m.phaseLatency.WithLabelValues(string(res.Phase), res.Outcome.String()).Observe(ms)
}

// NodeStarted increments the in-flight gauge.
func (m *Metrics) NodeStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

// NodeFinished decrements the in-flight gauge.
func (m *Metrics) NodeFinished() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
