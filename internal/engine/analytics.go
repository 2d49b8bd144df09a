package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
	"client-optimizer/pkg/scoring"
)

// DefaultPeriod is used when GetAnalytics is called without a period.
const DefaultPeriod = "7d"

var periodPattern = regexp.MustCompile(`^(\d+)([hdwmy])$`)

// ParsePeriod parses "<n><h|d|w|m|y>". Months are 30 days and years 365.
func ParsePeriod(period string) (time.Duration, error) {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return 0, fmt.Errorf("period %q must look like 24h, 7d, 4w, 6m or 1y", period)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("period %q must be positive", period)
	}

	var unit time.Duration
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	case "m":
		unit = 30 * 24 * time.Hour
	case "y":
		unit = 365 * 24 * time.Hour
	}
	if n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("period %q is too long", period)
	}
	return time.Duration(n) * unit, nil
}

// GetAnalytics reports the score, trends over the period and the most recent
// history entries within it.
func (s *Service) GetAnalytics(ctx context.Context, subjectID, period string) (*AnalyticsResult, error) {
	if err := requireSubject(opGetAnalytics, subjectID); err != nil {
		return nil, err
	}
	if period == "" {
		period = DefaultPeriod
	}
	window, err := ParsePeriod(period)
	if err != nil {
		return nil, engerrors.InvalidInput(opGetAnalytics, subjectID, "invalid period", err)
	}

	p, err := s.load(ctx, opGetAnalytics, subjectID)
	if err != nil {
		return nil, err
	}

	since := s.now().Add(-window)
	var inPeriod []profile.HistoryEntry
	for _, e := range p.OptimizationHistory {
		if !e.Timestamp.Before(since) {
			inPeriod = append(inPeriod, e)
		}
	}

	recent := inPeriod
	if len(recent) > s.config.RecentHistory {
		recent = recent[len(recent)-s.config.RecentHistory:]
	}

	score, status := scoring.Evaluate(p)
	return &AnalyticsResult{
		Period:          period,
		Score:           score,
		Status:          status,
		Trends:          s.trends.All(inPeriod),
		RecentHistory:   append([]profile.HistoryEntry{}, recent...),
		Recommendations: s.recommender.Generate(p),
		Settings:        summarize(p),
	}, nil
}

// GlobalStats aggregates the whole population. It only reads.
func (s *Service) GlobalStats(ctx context.Context) (*PopulationStats, error) {
	now := s.now()
	stats := &PopulationStats{
		ByStatus:       make(map[scoring.Status]int),
		AverageMetrics: make(map[string]float64),
		ComputedAt:     now,
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	scoreTotal := 0

	err := s.store.ForEach(ctx, func(p *profile.OptimizationProfile) error {
		score, status := scoring.Evaluate(p)
		stats.Profiles++
		scoreTotal += score
		stats.ByStatus[status]++
		if scoring.NeedsOptimization(score, p.LastOptimizationCheck, now) {
			stats.NeedsOptimization++
		}

		snap := profile.NewImpactSnapshot(p.PerformanceMetrics, score)
		for _, path := range populationPaths {
			if v, ok := snap.Value(path); ok {
				sums[string(path)] += v
				counts[string(path)]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, engerrors.WithSubject(err, opGlobalStats, "")
	}

	if stats.Profiles > 0 {
		stats.AverageScore = float64(scoreTotal) / float64(stats.Profiles)
	}
	for k, sum := range sums {
		stats.AverageMetrics[k] = sum / float64(counts[k])
	}
	return stats, nil
}

var populationPaths = []profile.MetricPath{
	profile.PathFirstContentfulPaint,
	profile.PathTimeToInteractive,
	profile.PathBatteryUsage,
	profile.PathMemoryUsage,
	profile.PathErrorRate,
}
