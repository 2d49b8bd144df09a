// Package trend classifies how tracked metrics move across optimization history.
package trend

import (
	"client-optimizer/pkg/profile"
)

// Direction is the qualitative trend of one metric.
type Direction string

const (
	Improving Direction = "improving"
	Stable    Direction = "stable"
	Degrading Direction = "degrading"
)

// Config holds the window sizes and per-metric noise thresholds.
type Config struct {
	// BaselineWindow is the number of earliest entries averaged as the baseline.
	BaselineWindow int `mapstructure:"baseline_window" yaml:"baseline_window" json:"baseline_window"`
	// RecentWindow is the number of latest entries averaged as the current value.
	RecentWindow int `mapstructure:"recent_window" yaml:"recent_window" json:"recent_window"`
	// MinEntries below which every trend is stable.
	MinEntries int                            `mapstructure:"min_entries" yaml:"min_entries" json:"min_entries"`
	Thresholds map[profile.MetricPath]float64 `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
}

// DefaultConfig returns the standard windows and thresholds.
func DefaultConfig() Config {
	return Config{
		BaselineWindow: 2,
		RecentWindow:   3,
		MinEntries:     2,
		Thresholds: map[profile.MetricPath]float64{
			profile.PathScore:                5,
			profile.PathBatteryUsage:         2,
			profile.PathFirstContentfulPaint: 500,
			profile.PathTimeToInteractive:    500,
			profile.PathMemoryUsage:          10,
			profile.PathErrorRate:            1,
		},
	}
}

// TrackedPaths lists the metric paths reported by analytics.
var TrackedPaths = []profile.MetricPath{
	profile.PathScore,
	profile.PathFirstContentfulPaint,
	profile.PathTimeToInteractive,
	profile.PathBatteryUsage,
	profile.PathMemoryUsage,
	profile.PathErrorRate,
}

// HigherIsBetter reports the polarity of a metric.
func HigherIsBetter(path profile.MetricPath) bool {
	return path == profile.PathScore
}

// Analyzer computes trends with a fixed configuration.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.BaselineWindow <= 0 {
		cfg.BaselineWindow = def.BaselineWindow
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.MinEntries < 2 {
		cfg.MinEntries = def.MinEntries
	}
	thresholds := make(map[profile.MetricPath]float64, len(def.Thresholds))
	for k, v := range def.Thresholds {
		thresholds[k] = v
	}
	for k, v := range cfg.Thresholds {
		thresholds[k] = v
	}
	cfg.Thresholds = thresholds
	return &Analyzer{cfg: cfg}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Trend compares the mean of the recent window with the mean of the baseline
// window over entries whose after-snapshot carries path.
func (a *Analyzer) Trend(history []profile.HistoryEntry, path profile.MetricPath) Direction {
	values := make([]float64, 0, len(history))
	for _, e := range history {
		if v, ok := e.PerformanceImpact.After.Value(path); ok {
			values = append(values, v)
		}
	}
	if len(values) < a.cfg.MinEntries {
		return Stable
	}

	baseline := mean(values[:min(a.cfg.BaselineWindow, len(values))])
	recent := mean(values[len(values)-min(a.cfg.RecentWindow, len(values)):])

	delta := recent - baseline
	if !HigherIsBetter(path) {
		delta = -delta
	}
	threshold := a.cfg.Thresholds[path]
	switch {
	case delta > threshold:
		return Improving
	case delta < -threshold:
		return Degrading
	default:
		return Stable
	}
}

// All returns the trend of every tracked path.
func (a *Analyzer) All(history []profile.HistoryEntry) map[profile.MetricPath]Direction {
	out := make(map[profile.MetricPath]Direction, len(TrackedPaths))
	for _, path := range TrackedPaths {
		out[path] = a.Trend(history, path)
	}
	return out
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
