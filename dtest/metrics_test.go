package dtest

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsRecordResult verifies terminal transitions are counted by
// state and kind.
func TestMetricsRecordResult(t *testing.T) {
	reg := NewRegistry()
	m := NewMetrics(prometheus.NewRegistry())

	test := newTest(t, reg, "t")
	fixture := newFixture(t, reg, "f")

	m.RecordResult(test, StateOK)
	m.RecordResult(test, StateOK)
	m.RecordResult(fixture, StateFail)

	if got := testutil.ToFloat64(m.results.WithLabelValues("OK", "test")); got != 2 {
		t.Errorf("expected 2 OK test results, got %v", got)
	}
	if got := testutil.ToFloat64(m.results.WithLabelValues("FAIL", "fixture")); got != 1 {
		t.Errorf("expected 1 FAIL fixture result, got %v", got)
	}
}

// TestMetricsInflight verifies the gauge tracks starts and finishes.
func TestMetricsInflight(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.NodeStarted()
	m.NodeStarted()
	if got := testutil.ToFloat64(m.inflight); got != 2 {
		t.Errorf("expected 2 inflight, got %v", got)
	}
	m.NodeFinished()
	if got := testutil.ToFloat64(m.inflight); got != 1 {
		t.Errorf("expected 1 inflight, got %v", got)
	}
}

// TestMetricsPhaseLatency verifies phase observations land under their
// phase and outcome labels.
func TestMetricsPhaseLatency(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.RecordPhase(PhaseResult{
		Phase:    PhaseBody,
		Outcome:  OutcomeSuccess,
		Duration: 42 * time.Millisecond,
	})

	count := testutil.CollectAndCount(m.phaseLatency, "dtest_phase_latency_ms")
	if count != 1 {
		t.Errorf("expected 1 labeled histogram series, got %d", count)
	}
}

// TestMetricsNilReceiver verifies a nil Metrics is a silent no-op, so
// callers never need to guard recording sites.
func TestMetricsNilReceiver(t *testing.T) {
	reg := NewRegistry()
	var m *Metrics

	m.RecordResult(newTest(t, reg, "t"), StateOK)
	m.RecordPhase(PhaseResult{Phase: PhaseBody})
	m.NodeStarted()
	m.NodeFinished()
}
