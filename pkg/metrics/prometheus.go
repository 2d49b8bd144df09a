package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements Recorder on a dedicated registry.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	tracker  *tracker

	scores             prometheus.Histogram
	optimizationsTotal *prometheus.CounterVec
	rulesFiredTotal    *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
	sweepProfiles      *prometheus.CounterVec
	sweepSkipped       *prometheus.CounterVec
	contentTotal       *prometheus.CounterVec
	profilesTotal      prometheus.Gauge
	profilesByStatus   *prometheus.GaugeVec
	breakerState       *prometheus.GaugeVec
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// NewPrometheusMetrics registers the engine metrics on a fresh registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "client_optimizer"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,
		tracker:  newTracker(),
		scores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "performance_score",
			Help:      "Distribution of computed performance scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 75, 80, 90, 100},
		}),
		optimizationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimizations_total",
			Help:      "Total number of optimization runs by trigger",
		}, []string{"trigger"}),
		rulesFiredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Total number of times each optimization rule fired",
		}, []string{"rule"}),
		sweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of background sweeps",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 300},
		}, []string{"sweep"}),
		sweepProfiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "profiles_total",
			Help:      "Profiles handled by background sweeps",
		}, []string{"sweep", "result"}),
		sweepSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "skipped_total",
			Help:      "Sweep ticks skipped because a previous run was still active",
		}, []string{"sweep"}),
		contentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "content",
			Name:      "transforms_total",
			Help:      "Content transformations by type and result",
		}, []string{"content_type", "result"}),
		profilesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profiles",
			Help:      "Number of stored optimization profiles",
		}),
		profilesByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profiles_by_status",
			Help:      "Number of profiles per performance status",
		}, []string{"status"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_circuit_breaker_state",
			Help:      "Current state of the profile store circuit breaker (1 for the active state)",
		}, []string{"state"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by the monitoring server",
		}, []string{"route", "status_code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of monitoring server requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry exposes the registry for the /metrics handler.
func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Summary returns the in-process counters.
func (p *PrometheusMetrics) Summary() Summary {
	return p.tracker.snapshot()
}

func (p *PrometheusMetrics) RecordScore(score int) {
	p.scores.Observe(float64(score))
}

func (p *PrometheusMetrics) RecordOptimization(trigger string, rules []string) {
	p.optimizationsTotal.WithLabelValues(trigger).Inc()
	for _, r := range rules {
		p.rulesFiredTotal.WithLabelValues(r).Inc()
	}
	p.tracker.optimization(trigger, rules)
}

func (p *PrometheusMetrics) RecordSweep(sweep string, duration time.Duration, processed, failed int) {
	p.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
	p.sweepProfiles.WithLabelValues(sweep, "processed").Add(float64(processed))
	p.sweepProfiles.WithLabelValues(sweep, "failed").Add(float64(failed))
	p.tracker.sweep(sweep, duration, processed, failed)
}

func (p *PrometheusMetrics) RecordSweepSkipped(sweep string) {
	p.sweepSkipped.WithLabelValues(sweep).Inc()
	p.tracker.sweepSkipped(sweep)
}

func (p *PrometheusMetrics) RecordContentTransform(contentType string, failed bool) {
	result := "success"
	if failed {
		result = "failure"
	}
	p.contentTotal.WithLabelValues(contentType, result).Inc()
	p.tracker.content(failed)
}

func (p *PrometheusMetrics) RecordPopulation(total int, byStatus map[string]int) {
	p.profilesTotal.Set(float64(total))
	p.profilesByStatus.Reset()
	for status, n := range byStatus {
		p.profilesByStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (p *PrometheusMetrics) RecordBreakerState(state string) {
	state = normalizeBreakerState(state)
	p.breakerState.WithLabelValues("closed").Set(0)
	p.breakerState.WithLabelValues("half_open").Set(0)
	p.breakerState.WithLabelValues("open").Set(0)
	p.breakerState.WithLabelValues(state).Set(1)
	p.tracker.breaker(state)
}

func (p *PrometheusMetrics) RecordRequest(route string, statusCode int, duration time.Duration) {
	p.requestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	p.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
