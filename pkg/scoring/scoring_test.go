package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"client-optimizer/pkg/profile"
)

func TestScore(t *testing.T) {
	f := profile.Float

	tests := []struct {
		name     string
		metrics  profile.PerformanceMetrics
		expected int
	}{
		{
			name:     "no metrics reported",
			metrics:  profile.PerformanceMetrics{},
			expected: 100,
		},
		{
			name: "slow paint and interactivity",
			metrics: profile.PerformanceMetrics{
				PageLoad:    &profile.PageLoadMetrics{FirstContentfulPaint: f(3500), TimeToInteractive: f(6000)},
				Resources:   &profile.ResourceMetrics{BatteryUsage: f(5), MemoryUsage: f(50)},
				Interaction: &profile.InteractionMetrics{BounceRate: f(30)},
				Network:     &profile.NetworkMetrics{ErrorRate: f(1)},
			},
			expected: 60,
		},
		{
			name: "thresholds are exclusive",
			metrics: profile.PerformanceMetrics{
				PageLoad:  &profile.PageLoadMetrics{FirstContentfulPaint: f(3000), TimeToInteractive: f(5000)},
				Resources: &profile.ResourceMetrics{BatteryUsage: f(10), MemoryUsage: f(100)},
				Network:   &profile.NetworkMetrics{ErrorRate: f(5)},
			},
			expected: 100,
		},
		{
			name: "every deduction floors at zero",
			metrics: profile.PerformanceMetrics{
				PageLoad:    &profile.PageLoadMetrics{FirstContentfulPaint: f(9000), TimeToInteractive: f(9000)},
				Resources:   &profile.ResourceMetrics{BatteryUsage: f(40), MemoryUsage: f(900)},
				Interaction: &profile.InteractionMetrics{BounceRate: f(95)},
				Network:     &profile.NetworkMetrics{ErrorRate: f(50)},
			},
			expected: 0,
		},
		{
			name: "zero values are reported values",
			metrics: profile.PerformanceMetrics{
				PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: f(0)},
			},
			expected: 100,
		},
		{
			name: "group present with missing leaf",
			metrics: profile.PerformanceMetrics{
				Network: &profile.NetworkMetrics{CacheHitRate: f(10)},
			},
			expected: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.metrics)
			assert.Equal(t, tt.expected, got)
			assert.GreaterOrEqual(t, got, MinScore)
			assert.LessOrEqual(t, got, MaxScore)
		})
	}
}

func TestStatusBoundaries(t *testing.T) {
	tests := []struct {
		score    int
		expected Status
	}{
		{100, StatusExcellent},
		{90, StatusExcellent},
		{89, StatusGood},
		{75, StatusGood},
		{74, StatusFair},
		{60, StatusFair},
		{59, StatusPoor},
		{40, StatusPoor},
		{39, StatusCritical},
		{0, StatusCritical},
	}

	for _, tt := range tests {
		if got := StatusOf(tt.score); got != tt.expected {
			t.Errorf("StatusOf(%d) = %s, expected %s", tt.score, got, tt.expected)
		}
	}
}

func TestStatusTotality(t *testing.T) {
	valid := map[Status]bool{
		StatusExcellent: true, StatusGood: true, StatusFair: true, StatusPoor: true, StatusCritical: true,
	}
	for s := 0; s <= 100; s++ {
		if !valid[StatusOf(s)] {
			t.Fatalf("score %d mapped to unknown status %q", s, StatusOf(s))
		}
	}
}

func TestNeedsOptimization(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		score     int
		lastCheck time.Time
		expected  bool
	}{
		{name: "healthy and fresh", score: 80, lastCheck: now.Add(-time.Hour), expected: false},
		{name: "degraded and fresh", score: 70, lastCheck: now.Add(-time.Hour), expected: true},
		{name: "healthy and stale", score: 95, lastCheck: now.Add(-25 * time.Hour), expected: true},
		{name: "exactly one day old", score: 95, lastCheck: now.Add(-24 * time.Hour), expected: false},
		{name: "boundary score", score: 75, lastCheck: now.Add(-time.Hour), expected: false},
		{name: "never checked", score: 100, lastCheck: time.Time{}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsOptimization(tt.score, tt.lastCheck, now))
		})
	}
}

func TestFired(t *testing.T) {
	m := profile.PerformanceMetrics{
		PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(3500)},
		Network:  &profile.NetworkMetrics{ErrorRate: profile.Float(7)},
	}
	assert.Equal(t, []string{"first_contentful_paint", "error_rate"}, Fired(m))
}
