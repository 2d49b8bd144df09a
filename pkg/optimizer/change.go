package optimizer

import (
	"strconv"

	"client-optimizer/pkg/profile"
)

// Change accumulates the settings patch and action descriptions of one rule.
type Change struct {
	Patch   profile.SettingsPatch
	Actions []string
}

func (c *Change) note(action string) {
	c.Actions = append(c.Actions, action)
}

// Empty reports whether the rule changed nothing.
func (c *Change) Empty() bool {
	return c.Patch.IsEmpty()
}

func (c *Change) performance() *profile.PerformancePatch {
	if c.Patch.Performance == nil {
		c.Patch.Performance = &profile.PerformancePatch{}
	}
	return c.Patch.Performance
}

func (c *Change) image() *profile.ImagePatch {
	perf := c.performance()
	if perf.Image == nil {
		perf.Image = &profile.ImagePatch{}
	}
	return perf.Image
}

func (c *Change) content() *profile.ContentPatch {
	perf := c.performance()
	if perf.Content == nil {
		perf.Content = &profile.ContentPatch{}
	}
	return perf.Content
}

func (c *Change) loading() *profile.LoadingPatch {
	perf := c.performance()
	if perf.Loading == nil {
		perf.Loading = &profile.LoadingPatch{}
	}
	return perf.Loading
}

func (c *Change) battery() *profile.BatteryPatch {
	perf := c.performance()
	if perf.Battery == nil {
		perf.Battery = &profile.BatteryPatch{}
	}
	return perf.Battery
}

func (c *Change) ux() *profile.UXPatch {
	if c.Patch.UX == nil {
		c.Patch.UX = &profile.UXPatch{}
	}
	return c.Patch.UX
}

func (c *Change) navigation() *profile.NavigationPatch {
	ux := c.ux()
	if ux.Navigation == nil {
		ux.Navigation = &profile.NavigationPatch{}
	}
	return ux.Navigation
}

func (c *Change) touch() *profile.TouchPatch {
	ux := c.ux()
	if ux.Touch == nil {
		ux.Touch = &profile.TouchPatch{}
	}
	return ux.Touch
}

func (c *Change) notifications() *profile.NotificationsPatch {
	ux := c.ux()
	if ux.Notifications == nil {
		ux.Notifications = &profile.NotificationsPatch{}
	}
	return ux.Notifications
}

func (c *Change) offline() *profile.OfflinePatch {
	if c.Patch.MobileFeatures == nil {
		c.Patch.MobileFeatures = &profile.MobileFeaturesPatch{}
	}
	if c.Patch.MobileFeatures.OfflineCapabilities == nil {
		c.Patch.MobileFeatures.OfflineCapabilities = &profile.OfflinePatch{}
	}
	return c.Patch.MobileFeatures.OfflineCapabilities
}

func (c *Change) bandwidth() *profile.BandwidthPatch {
	if c.Patch.AdaptiveBehavior == nil {
		c.Patch.AdaptiveBehavior = &profile.AdaptiveBehaviorPatch{}
	}
	if c.Patch.AdaptiveBehavior.Bandwidth == nil {
		c.Patch.AdaptiveBehavior.Bandwidth = &profile.BandwidthPatch{}
	}
	return c.Patch.AdaptiveBehavior.Bandwidth
}

// The helpers below only record a change when the current value differs.

func (c *Change) RaiseCompression(p *profile.OptimizationProfile, level profile.CompressionLevel) {
	if p.PerformanceSettings.Image.CompressionLevel.Rank() < level.Rank() {
		c.image().CompressionLevel = profile.Ptr(level)
		c.note("raised image compression to " + string(level))
	}
}

func (c *Change) EnableLazyLoading(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Image.EnableLazyLoading {
		c.image().EnableLazyLoading = profile.Ptr(true)
		c.note("enabled lazy loading")
	}
}

func (c *Change) CapImageWidth(p *profile.OptimizationProfile, width int) {
	if p.PerformanceSettings.Image.MaxWidth == 0 || p.PerformanceSettings.Image.MaxWidth > width {
		c.image().MaxWidth = profile.Ptr(width)
		c.note("limited image width to " + strconv.Itoa(width) + "px")
	}
}

func (c *Change) EnableMinification(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Content.EnableMinification {
		c.content().EnableMinification = profile.Ptr(true)
		c.note("enabled minification")
	}
}

func (c *Change) EnableContentCaching(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Content.EnableContentCaching {
		c.content().EnableContentCaching = profile.Ptr(true)
		c.note("enabled content caching")
	}
}

func (c *Change) EnableProgressiveLoading(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Loading.EnableProgressiveLoading {
		c.loading().EnableProgressiveLoading = profile.Ptr(true)
		c.note("enabled progressive loading")
	}
}

func (c *Change) EnablePrefetching(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Loading.EnablePrefetching {
		c.loading().EnablePrefetching = profile.Ptr(true)
		c.note("enabled prefetching")
	}
}

func (c *Change) SetMaxConcurrentRequests(p *profile.OptimizationProfile, n int) {
	if p.PerformanceSettings.Loading.MaxConcurrentRequests != n {
		c.loading().MaxConcurrentRequests = profile.Ptr(n)
		c.note("set max concurrent requests to " + strconv.Itoa(n))
	}
}

func (c *Change) EnableBatterySaver(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Battery.EnableBatterySaver {
		c.battery().EnableBatterySaver = profile.Ptr(true)
		c.note("enabled battery saver")
	}
}

func (c *Change) ReduceAnimations(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Battery.ReduceAnimations {
		c.battery().ReduceAnimations = profile.Ptr(true)
		c.note("reduced animations")
	}
}

func (c *Change) ReduceBackgroundActivity(p *profile.OptimizationProfile) {
	if !p.PerformanceSettings.Battery.ReduceBackgroundActivity {
		c.battery().ReduceBackgroundActivity = profile.Ptr(true)
		c.note("reduced background activity")
	}
}

func (c *Change) EnableBottomNavigation(p *profile.OptimizationProfile) {
	if !p.UXSettings.Navigation.UseBottomNavigation {
		c.navigation().UseBottomNavigation = profile.Ptr(true)
		c.note("enabled bottom navigation")
	}
}

func (c *Change) EnableSwipeGestures(p *profile.OptimizationProfile) {
	if !p.UXSettings.Navigation.EnableSwipeGestures {
		c.navigation().EnableSwipeGestures = profile.Ptr(true)
		c.note("enabled swipe gestures")
	}
}

// RaiseTouchTarget never lowers an existing larger size.
func (c *Change) RaiseTouchTarget(p *profile.OptimizationProfile, size int) {
	if p.UXSettings.Touch.TouchTargetSize < size {
		c.touch().TouchTargetSize = profile.Ptr(size)
		c.note("raised touch target size to " + strconv.Itoa(size) + "px")
	}
}

// LimitNotifications lowers the notification frequency to at most f.
func (c *Change) LimitNotifications(p *profile.OptimizationProfile, f profile.NotificationFrequency) {
	if frequencyRank(p.UXSettings.Notifications.Frequency) > frequencyRank(f) {
		c.notifications().Frequency = profile.Ptr(f)
		c.note("limited notifications to " + string(f))
	}
}

func (c *Change) EnableOfflineReading(p *profile.OptimizationProfile) {
	if !p.MobileFeatures.OfflineCapabilities.EnableOfflineReading {
		c.offline().EnableOfflineReading = profile.Ptr(true)
		c.note("enabled offline reading")
	}
}

func (c *Change) DisableBackgroundSync(p *profile.OptimizationProfile) {
	if p.MobileFeatures.OfflineCapabilities.EnableBackgroundSync {
		c.offline().EnableBackgroundSync = profile.Ptr(false)
		c.note("disabled background sync")
	}
}

func (c *Change) EnableDataSaver(p *profile.OptimizationProfile) {
	if !p.AdaptiveBehavior.Bandwidth.DataSaver {
		c.bandwidth().DataSaver = profile.Ptr(true)
		c.note("enabled data saver")
	}
}

// frequencyRank grows with delivery frequency.
func frequencyRank(f profile.NotificationFrequency) int {
	switch f {
	case profile.NotifyDisabled:
		return 0
	case profile.NotifyWeekly:
		return 1
	case profile.NotifyDaily:
		return 2
	case profile.NotifyHourly:
		return 3
	case profile.NotifyImmediate:
		return 4
	}
	return 4
}
