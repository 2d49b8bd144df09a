// Package optimizer holds the adaptive rule tables. Deciding is pure; a Plan
// is applied to a profile in one step by the caller.
package optimizer

import (
	"strings"

	"client-optimizer/pkg/profile"
)

// Rule is one condition-to-settings mapping.
type Rule struct {
	Name string
	// Gate reports whether the subject allows this rule family; nil means always.
	Gate    func(a profile.AutoOptimization) bool
	Matches func(p *profile.OptimizationProfile) bool
	Build   func(p *profile.OptimizationProfile, c *Change)
}

// Plan is the outcome of evaluating a rule table against a profile snapshot.
type Plan struct {
	// Rules lists every rule whose condition held, in table order.
	Rules   []string
	Actions []string
	Patches []profile.SettingsPatch
}

// Empty reports whether the plan changes no setting.
func (pl Plan) Empty() bool {
	return len(pl.Patches) == 0
}

// Apply merges the plan into p and returns the snapshot of touched categories.
func (pl Plan) Apply(p *profile.OptimizationProfile) profile.SettingsSnapshot {
	return profile.ApplyPatches(p, pl.Patches...)
}

// Evaluate runs rules against p without mutating it.
func Evaluate(rules []Rule, p *profile.OptimizationProfile) Plan {
	var plan Plan
	seen := make(map[string]bool)
	for _, r := range rules {
		if r.Gate != nil && !r.Gate(p.AdaptiveBehavior.AutoOptimization) {
			continue
		}
		if !r.Matches(p) {
			continue
		}
		plan.Rules = append(plan.Rules, r.Name)

		var c Change
		r.Build(p, &c)
		if c.Empty() {
			continue
		}
		plan.Patches = append(plan.Patches, c.Patch)
		for _, a := range c.Actions {
			if !seen[a] {
				seen[a] = true
				plan.Actions = append(plan.Actions, a)
			}
		}
	}
	return plan
}

// Decide evaluates the adaptive rule table.
func Decide(p *profile.OptimizationProfile) Plan {
	return Evaluate(AdaptiveRules, p)
}

// Initial evaluates the one-time heuristics applied when a profile is created.
func Initial(p *profile.OptimizationProfile) Plan {
	return Evaluate(InitialRules, p)
}

// Aggressive forces maximum savings regardless of the adaptive gates.
func Aggressive(p *profile.OptimizationProfile) Plan {
	return Evaluate(AggressiveRules, p)
}

func metricAbove(get func(profile.PerformanceMetrics) (float64, bool), threshold float64) func(*profile.OptimizationProfile) bool {
	return func(p *profile.OptimizationProfile) bool {
		v, ok := get(p.PerformanceMetrics)
		return ok && v > threshold
	}
}

func onSlowConnection(a profile.AutoOptimization) bool { return a.OnSlowConnection }
func onLowBattery(a profile.AutoOptimization) bool     { return a.OnLowBattery }
func onLowMemory(a profile.AutoOptimization) bool      { return a.OnLowMemory }
func onOffline(a profile.AutoOptimization) bool        { return a.OnOffline }

const (
	MinTouchTarget = 44

	SlowFirstPaintMs      = 3000
	HighBatteryUsage      = 15
	HighErrorRate         = 10
	HighMemoryUsage       = 150
	AggressiveFirstPaint  = 5000
	LowMemoryImageWidth   = 1280
	DesktopMaxConcurrency = 6
)

// AdaptiveRules is evaluated on every optimization run.
var AdaptiveRules = []Rule{
	{
		Name:    "slow_connection",
		Gate:    onSlowConnection,
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.ConnectionSpeed == profile.SpeedSlow },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.RaiseCompression(p, profile.CompressionHigh)
			c.EnableMinification(p)
			c.EnableOfflineReading(p)
		},
	},
	{
		Name:    "low_power_mode",
		Gate:    onLowBattery,
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.IsLowPowerMode },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.ReduceAnimations(p)
			c.ReduceBackgroundActivity(p)
			c.LimitNotifications(p, profile.NotifyHourly)
		},
	},
	{
		Name:    "mobile_device",
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.DeviceType == profile.DeviceMobile },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableBottomNavigation(p)
			c.RaiseTouchTarget(p, MinTouchTarget)
		},
	},
	{
		Name:    "slow_first_paint",
		Matches: metricAbove(profile.PerformanceMetrics.FCP, SlowFirstPaintMs),
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableLazyLoading(p)
			c.EnableMinification(p)
			c.EnableProgressiveLoading(p)
		},
	},
	{
		Name:    "high_battery_usage",
		Gate:    onLowBattery,
		Matches: metricAbove(profile.PerformanceMetrics.BatteryUsage, HighBatteryUsage),
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableBatterySaver(p)
			c.ReduceAnimations(p)
			c.LimitNotifications(p, profile.NotifyDaily)
		},
	},
	{
		Name:    "high_error_rate",
		Gate:    onOffline,
		Matches: metricAbove(profile.PerformanceMetrics.ErrorRate, HighErrorRate),
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableOfflineReading(p)
			c.DisableBackgroundSync(p)
		},
	},
	{
		Name:    "high_memory_usage",
		Gate:    onLowMemory,
		Matches: metricAbove(profile.PerformanceMetrics.MemoryUsage, HighMemoryUsage),
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableLazyLoading(p)
			c.EnableContentCaching(p)
			c.CapImageWidth(p, LowMemoryImageWidth)
		},
	},
}

// InitialRules run once, when a profile is created.
var InitialRules = []Rule{
	{
		Name:    "initial_mobile",
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.DeviceType == profile.DeviceMobile },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableBottomNavigation(p)
			c.RaiseTouchTarget(p, MinTouchTarget)
		},
	},
	{
		Name:    "initial_slow_connection",
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.IsSlowConnection() },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.RaiseCompression(p, profile.CompressionHigh)
			c.EnableLazyLoading(p)
			c.EnableDataSaver(p)
		},
	},
	{
		Name: "initial_ios",
		Matches: func(p *profile.OptimizationProfile) bool {
			os := strings.ToLower(p.DeviceInfo.OS)
			return strings.Contains(os, "ios") || strings.Contains(os, "ipados")
		},
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnableSwipeGestures(p)
		},
	},
	{
		Name:    "initial_low_power",
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.IsLowPowerMode },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.ReduceAnimations(p)
		},
	},
	{
		Name:    "initial_desktop",
		Matches: func(p *profile.OptimizationProfile) bool { return p.DeviceInfo.DeviceType == profile.DeviceDesktop },
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.EnablePrefetching(p)
			c.SetMaxConcurrentRequests(p, DesktopMaxConcurrency)
		},
	},
}

// AggressiveRules are the fast-path response to severely slow first paint.
var AggressiveRules = []Rule{
	{
		Name:    "aggressive_first_paint",
		Matches: metricAbove(profile.PerformanceMetrics.FCP, AggressiveFirstPaint),
		Build: func(p *profile.OptimizationProfile, c *Change) {
			c.RaiseCompression(p, profile.CompressionMax)
			c.EnableMinification(p)
			c.EnableDataSaver(p)
		},
	},
}
