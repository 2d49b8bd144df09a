// Package scoring turns performance metrics into a single health score.
package scoring

import (
	"time"

	"client-optimizer/pkg/profile"
)

// Status is the qualitative bucket of a score.
type Status string

const (
	StatusExcellent Status = "excellent"
	StatusGood      Status = "good"
	StatusFair      Status = "fair"
	StatusPoor      Status = "poor"
	StatusCritical  Status = "critical"
)

const (
	MaxScore = 100
	MinScore = 0

	// NeedsOptimizationBelow is the score under which a profile is re-run.
	NeedsOptimizationBelow = 75
	// StaleAfter is how long a check stays fresh.
	StaleAfter = 24 * time.Hour
)

// Deduction is one threshold-gated penalty.
type Deduction struct {
	Name      string
	Threshold float64
	Points    int
	value     func(profile.PerformanceMetrics) (float64, bool)
}

// Deductions is the scoring table. Each entry applies independently.
var Deductions = []Deduction{
	{Name: "first_contentful_paint", Threshold: 3000, Points: 20, value: profile.PerformanceMetrics.FCP},
	{Name: "time_to_interactive", Threshold: 5000, Points: 20, value: profile.PerformanceMetrics.TTI},
	{Name: "battery_usage", Threshold: 10, Points: 15, value: profile.PerformanceMetrics.BatteryUsage},
	{Name: "memory_usage", Threshold: 100, Points: 15, value: profile.PerformanceMetrics.MemoryUsage},
	{Name: "bounce_rate", Threshold: 70, Points: 15, value: profile.PerformanceMetrics.BounceRate},
	{Name: "error_rate", Threshold: 5, Points: 15, value: profile.PerformanceMetrics.ErrorRate},
}

// Score computes the health score in [0,100]. Unreported metrics never deduct.
func Score(m profile.PerformanceMetrics) int {
	score := MaxScore
	for _, d := range Deductions {
		if v, ok := d.value(m); ok && v > d.Threshold {
			score -= d.Points
		}
	}
	if score < MinScore {
		return MinScore
	}
	return score
}

// Fired lists the names of the deductions that apply to m.
func Fired(m profile.PerformanceMetrics) []string {
	var out []string
	for _, d := range Deductions {
		if v, ok := d.value(m); ok && v > d.Threshold {
			out = append(out, d.Name)
		}
	}
	return out
}

// StatusOf maps a score to its status.
func StatusOf(score int) Status {
	switch {
	case score >= 90:
		return StatusExcellent
	case score >= 75:
		return StatusGood
	case score >= 60:
		return StatusFair
	case score >= 40:
		return StatusPoor
	default:
		return StatusCritical
	}
}

// NeedsOptimization reports whether a profile should be re-run outside an
// explicit request. A zero lastCheck is always stale.
func NeedsOptimization(score int, lastCheck, now time.Time) bool {
	if score < NeedsOptimizationBelow {
		return true
	}
	if lastCheck.IsZero() {
		return true
	}
	return now.Sub(lastCheck) > StaleAfter
}

// Evaluate scores a profile's current metrics.
func Evaluate(p *profile.OptimizationProfile) (int, Status) {
	s := Score(p.PerformanceMetrics)
	return s, StatusOf(s)
}
