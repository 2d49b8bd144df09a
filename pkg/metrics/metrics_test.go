package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetricsCounters(t *testing.T) {
	m := NewPrometheusMetrics("test")

	m.RecordOptimization("manual", []string{"slow_connection", "mobile_device"})
	m.RecordOptimization("scheduled", []string{"slow_connection"})
	m.RecordContentTransform("image", false)
	m.RecordContentTransform("video", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.optimizationsTotal.WithLabelValues("manual")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rulesFiredTotal.WithLabelValues("slow_connection")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contentTotal.WithLabelValues("video", "failure")))

	s := m.Summary()
	assert.EqualValues(t, 2, s.Optimizations)
	assert.EqualValues(t, 2, s.ContentTransforms)
	assert.EqualValues(t, 1, s.ContentFailures)
	assert.Equal(t, []string{"slow_connection", "mobile_device"}, s.TopRules)
}

func TestPrometheusMetricsSweeps(t *testing.T) {
	m := NewPrometheusMetrics("test")
	m.RecordSweep("optimization", 2*time.Second, 10, 2)
	m.RecordSweepSkipped("optimization")

	assert.Equal(t, 10.0, testutil.ToFloat64(m.sweepProfiles.WithLabelValues("optimization", "processed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sweepProfiles.WithLabelValues("optimization", "failed")))

	stat := m.Summary().Sweeps["optimization"]
	assert.EqualValues(t, 1, stat.Runs)
	assert.EqualValues(t, 1, stat.Skipped)
	assert.Equal(t, 2, stat.Failed)
}

func TestBreakerStateGauge(t *testing.T) {
	m := NewPrometheusMetrics("test")
	m.RecordBreakerState("half-open")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("half_open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerState.WithLabelValues("closed")))
	assert.Equal(t, "half_open", m.Summary().BreakerState)
}

func TestPopulationGauges(t *testing.T) {
	m := NewPrometheusMetrics("test")
	m.RecordPopulation(3, map[string]int{"good": 2, "poor": 1})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.profilesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.profilesByStatus.WithLabelValues("good")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSummaryIsACopy(t *testing.T) {
	m := NewPrometheusMetrics("test")
	m.RecordOptimization("manual", []string{"a"})
	s := m.Summary()
	s.RulesFired["a"] = 100
	assert.EqualValues(t, 1, m.Summary().RulesFired["a"])
}

func TestNoOpSatisfiesRecorder(t *testing.T) {
	var r Recorder = NewNoOpMetrics()
	r.RecordScore(50)
	r = NewPrometheusMetrics("test")
	r.RecordScore(50)
}
