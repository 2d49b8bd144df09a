// Package recommend derives ranked, actionable recommendations from a profile.
package recommend

import (
	"sort"

	"client-optimizer/pkg/profile"
)

// Priority ranks recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight orders priorities; unknown priorities sort last.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Recommendation is one suggestion shown to the subject or operator.
type Recommendation struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Priority    Priority `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}

// Rule turns a matching profile into a recommendation.
type Rule struct {
	ID          string
	Type        string
	Priority    Priority
	Title       string
	Description string
	Actions     []string
	Matches     func(p *profile.OptimizationProfile) bool
}

// Generator evaluates a fixed rule table.
type Generator struct {
	rules []Rule
}

// NewGenerator returns a generator with the default rules.
func NewGenerator() *Generator {
	return &Generator{rules: DefaultRules()}
}

// NewGeneratorWithRules is used by callers that extend the table.
func NewGeneratorWithRules(rules []Rule) *Generator {
	return &Generator{rules: rules}
}

// Generate evaluates every rule independently and returns the matches ordered
// by priority. Ties keep rule order.
func (g *Generator) Generate(p *profile.OptimizationProfile) []Recommendation {
	recs := make([]Recommendation, 0)
	for _, rule := range g.rules {
		if rule.Matches == nil || !rule.Matches(p) {
			continue
		}
		recs = append(recs, Recommendation{
			ID:          rule.ID,
			Type:        rule.Type,
			Priority:    rule.Priority,
			Title:       rule.Title,
			Description: rule.Description,
			Actions:     append([]string(nil), rule.Actions...),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Priority.Weight() > recs[j].Priority.Weight()
	})
	return recs
}

// Top returns at most n recommendations.
func Top(recs []Recommendation, n int) []Recommendation {
	if n < 0 || len(recs) <= n {
		return recs
	}
	return recs[:n]
}

// Generate uses the default rule table.
func Generate(p *profile.OptimizationProfile) []Recommendation {
	return defaultGenerator.Generate(p)
}

var defaultGenerator = NewGenerator()

func above(get func(profile.PerformanceMetrics) (float64, bool), threshold float64) func(*profile.OptimizationProfile) bool {
	return func(p *profile.OptimizationProfile) bool {
		v, ok := get(p.PerformanceMetrics)
		return ok && v > threshold
	}
}

func below(get func(profile.PerformanceMetrics) (float64, bool), threshold float64) func(*profile.OptimizationProfile) bool {
	return func(p *profile.OptimizationProfile) bool {
		v, ok := get(p.PerformanceMetrics)
		return ok && v < threshold
	}
}

// DefaultRules returns the metric, device and usage rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:          "slow_first_paint",
			Type:        "performance",
			Priority:    PriorityHigh,
			Title:       "Speed up first contentful paint",
			Description: "Pages take more than 2.5s to show first content",
			Actions:     []string{"Serve images as WebP", "Increase image compression", "Enable lazy loading"},
			Matches:     above(profile.PerformanceMetrics.FCP, 2500),
		},
		{
			ID:          "high_battery_drain",
			Type:        "battery",
			Priority:    PriorityMedium,
			Title:       "Reduce battery drain",
			Description: "Battery usage is above 15% per hour",
			Actions:     []string{"Enable battery saver", "Reduce background activity", "Optimize polling intervals"},
			Matches:     above(profile.PerformanceMetrics.BatteryUsage, 15),
		},
		{
			ID:          "high_memory_usage",
			Type:        "memory",
			Priority:    PriorityMedium,
			Title:       "Lower memory usage",
			Description: "Memory usage is above 150MB",
			Actions:     []string{"Enable content caching", "Serve smaller images", "Enable lazy loading"},
			Matches:     above(profile.PerformanceMetrics.MemoryUsage, 150),
		},
		{
			ID:          "high_bounce_rate",
			Type:        "ux",
			Priority:    PriorityHigh,
			Title:       "Improve engagement",
			Description: "More than 60% of sessions bounce",
			Actions:     []string{"Simplify navigation", "Surface key content earlier", "Enlarge touch targets"},
			Matches:     above(profile.PerformanceMetrics.BounceRate, 60),
		},
		{
			ID:          "mobile_bottom_navigation",
			Type:        "ux",
			Priority:    PriorityMedium,
			Title:       "Enable bottom navigation",
			Description: "Bottom navigation is easier to reach on phones",
			Actions:     []string{"Turn on bottom navigation"},
			Matches: func(p *profile.OptimizationProfile) bool {
				return p.DeviceInfo.DeviceType == profile.DeviceMobile && !p.UXSettings.Navigation.UseBottomNavigation
			},
		},
		{
			ID:          "slow_connection_low_compression",
			Type:        "performance",
			Priority:    PriorityHigh,
			Title:       "Increase image compression",
			Description: "The connection is slow but images are lightly compressed",
			Actions:     []string{"Raise image compression to high"},
			Matches: func(p *profile.OptimizationProfile) bool {
				return p.DeviceInfo.IsSlowConnection() &&
					p.PerformanceSettings.Image.CompressionLevel.Rank() < profile.CompressionHigh.Rank()
			},
		},
		{
			ID:          "low_power_without_saver",
			Type:        "battery",
			Priority:    PriorityMedium,
			Title:       "Enable battery saver",
			Description: "The device is in low-power mode but battery saver is off",
			Actions:     []string{"Enable battery saver", "Reduce animations"},
			Matches: func(p *profile.OptimizationProfile) bool {
				return p.DeviceInfo.IsLowPowerMode && !p.PerformanceSettings.Battery.EnableBatterySaver
			},
		},
		{
			ID:          "high_density_without_webp",
			Type:        "performance",
			Priority:    PriorityLow,
			Title:       "Serve WebP images",
			Description: "High-density screens download large images",
			Actions:     []string{"Enable WebP"},
			Matches: func(p *profile.OptimizationProfile) bool {
				return p.DeviceInfo.PixelRatio >= 2 && !p.PerformanceSettings.Image.EnableWebP
			},
		},
		{
			ID:          "low_cache_hit_rate",
			Type:        "network",
			Priority:    PriorityLow,
			Title:       "Improve caching",
			Description: "Fewer than half of requests are served from cache",
			Actions:     []string{"Enable content caching", "Increase cache TTL"},
			Matches:     below(profile.PerformanceMetrics.CacheHitRate, 50),
		},
		{
			ID:          "elevated_error_rate",
			Type:        "network",
			Priority:    PriorityMedium,
			Title:       "Reduce failed requests",
			Description: "More than 5% of requests fail",
			Actions:     []string{"Enable offline reading", "Lower concurrent requests"},
			Matches:     above(profile.PerformanceMetrics.ErrorRate, 5),
		},
	}
}
