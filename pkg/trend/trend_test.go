package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"client-optimizer/pkg/profile"
)

func entries(path profile.MetricPath, values ...float64) []profile.HistoryEntry {
	out := make([]profile.HistoryEntry, 0, len(values))
	for i, v := range values {
		e := profile.NewHistoryEntry(time.Unix(int64(i), 0), "optimize", profile.TriggerScheduled, "")
		switch path {
		case profile.PathScore:
			e.PerformanceImpact.After.Score = profile.Float(v)
		case profile.PathFirstContentfulPaint:
			e.PerformanceImpact.After.FirstContentfulPaint = profile.Float(v)
		case profile.PathBatteryUsage:
			e.PerformanceImpact.After.BatteryUsage = profile.Float(v)
		}
		out = append(out, e)
	}
	return out
}

func TestTrend(t *testing.T) {
	a := NewAnalyzer(DefaultConfig())

	tests := []struct {
		name     string
		history  []profile.HistoryEntry
		path     profile.MetricPath
		expected Direction
	}{
		{name: "no history", history: nil, path: profile.PathScore, expected: Stable},
		{name: "single entry", history: entries(profile.PathScore, 10), path: profile.PathScore, expected: Stable},
		{name: "single entry with extreme value", history: entries(profile.PathFirstContentfulPaint, 99999), path: profile.PathFirstContentfulPaint, expected: Stable},
		{name: "score rising", history: entries(profile.PathScore, 50, 55, 70, 80, 85), path: profile.PathScore, expected: Improving},
		{name: "score falling", history: entries(profile.PathScore, 90, 88, 70, 65, 60), path: profile.PathScore, expected: Degrading},
		{name: "score within noise", history: entries(profile.PathScore, 80, 82, 83, 84), path: profile.PathScore, expected: Stable},
		{name: "paint getting faster", history: entries(profile.PathFirstContentfulPaint, 4000, 3800, 2500, 2400), path: profile.PathFirstContentfulPaint, expected: Improving},
		{name: "battery draining more", history: entries(profile.PathBatteryUsage, 5, 6, 12, 14), path: profile.PathBatteryUsage, expected: Degrading},
		{name: "two entries", history: entries(profile.PathScore, 40, 60), path: profile.PathScore, expected: Stable},
		{name: "path missing from entries", history: entries(profile.PathScore, 40, 60, 80), path: profile.PathMemoryUsage, expected: Stable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, a.Trend(tt.history, tt.path))
		})
	}
}

func TestTrendWindowsAreConfigurable(t *testing.T) {
	history := entries(profile.PathScore, 40, 60, 80)

	narrow := NewAnalyzer(Config{BaselineWindow: 1, RecentWindow: 1})
	assert.Equal(t, Improving, narrow.Trend(history, profile.PathScore))

	loose := NewAnalyzer(Config{Thresholds: map[profile.MetricPath]float64{profile.PathScore: 50}})
	assert.Equal(t, Stable, loose.Trend(history, profile.PathScore))
}

func TestNewAnalyzerFillsDefaults(t *testing.T) {
	cfg := NewAnalyzer(Config{}).Config()
	assert.Equal(t, 2, cfg.BaselineWindow)
	assert.Equal(t, 3, cfg.RecentWindow)
	assert.Equal(t, 500.0, cfg.Thresholds[profile.PathFirstContentfulPaint])
}

func TestAllCoversTrackedPaths(t *testing.T) {
	trends := NewAnalyzer(DefaultConfig()).All(nil)
	assert.Len(t, trends, len(TrackedPaths))
	for _, d := range trends {
		assert.Equal(t, Stable, d)
	}
}
