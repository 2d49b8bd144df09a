package metrics

import (
	"sort"
	"sync"
	"time"
)

// Recorder defines the metrics the engine reports.
type Recorder interface {
	RecordScore(score int)
	RecordOptimization(trigger string, rules []string)
	RecordSweep(sweep string, duration time.Duration, processed, failed int)
	RecordSweepSkipped(sweep string)
	RecordContentTransform(contentType string, failed bool)
	RecordPopulation(total int, byStatus map[string]int)
	RecordBreakerState(state string)
	RecordRequest(route string, statusCode int, duration time.Duration)
}

// SweepStat is the outcome of the most recent run of one sweep.
type SweepStat struct {
	Runs         int64         `json:"runs"`
	Skipped      int64         `json:"skipped"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
	Processed    int           `json:"processed"`
	Failed       int           `json:"failed"`
}

// Summary is the in-process view served on /stats.
type Summary struct {
	Optimizations     int64                `json:"optimizations"`
	OptimizationsBy   map[string]int64     `json:"optimizations_by_trigger"`
	RulesFired        map[string]int64     `json:"rules_fired"`
	ContentTransforms int64                `json:"content_transforms"`
	ContentFailures   int64                `json:"content_failures"`
	BreakerState      string               `json:"breaker_state"`
	Sweeps            map[string]SweepStat `json:"sweeps"`
	TopRules          []string             `json:"top_rules,omitempty"`
	LastActivity      time.Time            `json:"last_activity"`
}

// tracker keeps the counters behind Summary.
type tracker struct {
	mu      sync.RWMutex
	summary Summary
}

func newTracker() *tracker {
	return &tracker{summary: Summary{
		OptimizationsBy: make(map[string]int64),
		RulesFired:      make(map[string]int64),
		Sweeps:          make(map[string]SweepStat),
		BreakerState:    "closed",
	}}
}

func (t *tracker) optimization(trigger string, rules []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Optimizations++
	t.summary.OptimizationsBy[trigger]++
	for _, r := range rules {
		t.summary.RulesFired[r]++
	}
	t.summary.LastActivity = time.Now()
}

func (t *tracker) sweep(name string, d time.Duration, processed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summary.Sweeps[name]
	s.Runs++
	s.LastRun = time.Now()
	s.LastDuration = d
	s.Processed = processed
	s.Failed = failed
	t.summary.Sweeps[name] = s
}

func (t *tracker) sweepSkipped(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.summary.Sweeps[name]
	s.Skipped++
	t.summary.Sweeps[name] = s
}

func (t *tracker) content(failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.ContentTransforms++
	if failed {
		t.summary.ContentFailures++
	}
}

func (t *tracker) breaker(state string) {
	t.mu.Lock()
	t.summary.BreakerState = state
	t.mu.Unlock()
}

func (t *tracker) snapshot() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := t.summary
	out.OptimizationsBy = make(map[string]int64, len(t.summary.OptimizationsBy))
	for k, v := range t.summary.OptimizationsBy {
		out.OptimizationsBy[k] = v
	}
	out.RulesFired = make(map[string]int64, len(t.summary.RulesFired))
	for k, v := range t.summary.RulesFired {
		out.RulesFired[k] = v
	}
	out.Sweeps = make(map[string]SweepStat, len(t.summary.Sweeps))
	for k, v := range t.summary.Sweeps {
		out.Sweeps[k] = v
	}
	out.TopRules = topRules(out.RulesFired, 5)
	return out
}

func topRules(counts map[string]int64, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// normalizeBreakerState maps gobreaker state names onto label values.
func normalizeBreakerState(state string) string {
	switch state {
	case "closed", "Closed", "CLOSED":
		return "closed"
	case "half_open", "half-open", "HalfOpen", "HALF_OPEN":
		return "half_open"
	case "open", "Open", "OPEN":
		return "open"
	default:
		return state
	}
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func NewNoOpMetrics() *NoOpMetrics { return &NoOpMetrics{} }

func (NoOpMetrics) RecordScore(int) {}
func (NoOpMetrics) RecordOptimization(string, []string) {}
func (NoOpMetrics) RecordSweep(string, time.Duration, int, int) {}
func (NoOpMetrics) RecordSweepSkipped(string) {}
func (NoOpMetrics) RecordContentTransform(string, bool) {}
func (NoOpMetrics) RecordPopulation(int, map[string]int) {}
func (NoOpMetrics) RecordBreakerState(string) {}
func (NoOpMetrics) RecordRequest(string, int, time.Duration) {}
