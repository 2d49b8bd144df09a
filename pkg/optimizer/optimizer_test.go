package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"client-optimizer/pkg/profile"
)

func newProfile() *profile.OptimizationProfile {
	return profile.New("user-1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
}

func TestDecideSlowConnection(t *testing.T) {
	p := newProfile()
	p.DeviceInfo.ConnectionSpeed = profile.SpeedSlow

	plan := Decide(p)
	require.Equal(t, []string{"slow_connection"}, plan.Rules)
	assert.False(t, p.PerformanceSettings.Content.EnableMinification, "deciding does not mutate")

	snap := plan.Apply(p)
	assert.Equal(t, profile.CompressionHigh, p.PerformanceSettings.Image.CompressionLevel)
	assert.True(t, p.PerformanceSettings.Content.EnableMinification)
	assert.True(t, p.MobileFeatures.OfflineCapabilities.EnableOfflineReading)
	assert.Equal(t, []profile.SettingCategory{
		profile.CategoryImage, profile.CategoryContent, profile.CategoryMobileFeatures,
	}, snap.Categories())
	assert.Len(t, plan.Actions, 3)
}

func TestDecideNeverLowersCompression(t *testing.T) {
	p := newProfile()
	p.DeviceInfo.ConnectionSpeed = profile.SpeedSlow
	p.PerformanceSettings.Image.CompressionLevel = profile.CompressionMax

	Decide(p).Apply(p)
	assert.Equal(t, profile.CompressionMax, p.PerformanceSettings.Image.CompressionLevel)
}

func TestDecideLowPowerMode(t *testing.T) {
	p := newProfile()
	p.DeviceInfo.IsLowPowerMode = true
	p.UXSettings.Notifications.Frequency = profile.NotifyImmediate

	Decide(p).Apply(p)
	assert.True(t, p.PerformanceSettings.Battery.ReduceAnimations)
	assert.True(t, p.PerformanceSettings.Battery.ReduceBackgroundActivity)
	assert.Equal(t, profile.NotifyHourly, p.UXSettings.Notifications.Frequency)
}

func TestDecideMobileTouchTarget(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		expected int
	}{
		{name: "raised to minimum", current: 32, expected: 44},
		{name: "larger value kept", current: 56, expected: 56},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProfile()
			p.DeviceInfo.DeviceType = profile.DeviceMobile
			p.UXSettings.Touch.TouchTargetSize = tt.current

			Decide(p).Apply(p)
			assert.Equal(t, tt.expected, p.UXSettings.Touch.TouchTargetSize)
			assert.True(t, p.UXSettings.Navigation.UseBottomNavigation)
		})
	}
}

func TestDecideMetricRules(t *testing.T) {
	p := newProfile()
	p.PerformanceSettings.Image.EnableLazyLoading = false
	p.PerformanceSettings.Loading.EnableProgressiveLoading = false
	p.MobileFeatures.OfflineCapabilities.EnableBackgroundSync = true
	p.UXSettings.Notifications.Frequency = profile.NotifyHourly
	p.PerformanceMetrics = profile.PerformanceMetrics{
		PageLoad:  &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(3200)},
		Resources: &profile.ResourceMetrics{BatteryUsage: profile.Float(18)},
		Network:   &profile.NetworkMetrics{ErrorRate: profile.Float(12)},
	}

	plan := Decide(p)
	assert.Equal(t, []string{"slow_first_paint", "high_battery_usage", "high_error_rate"}, plan.Rules)

	plan.Apply(p)
	assert.True(t, p.PerformanceSettings.Image.EnableLazyLoading)
	assert.True(t, p.PerformanceSettings.Content.EnableMinification)
	assert.True(t, p.PerformanceSettings.Loading.EnableProgressiveLoading)
	assert.True(t, p.PerformanceSettings.Battery.EnableBatterySaver)
	assert.True(t, p.PerformanceSettings.Battery.ReduceAnimations)
	assert.Equal(t, profile.NotifyDaily, p.UXSettings.Notifications.Frequency)
	assert.True(t, p.MobileFeatures.OfflineCapabilities.EnableOfflineReading)
	assert.False(t, p.MobileFeatures.OfflineCapabilities.EnableBackgroundSync)
}

func TestDecideRespectsAutoOptimizationGates(t *testing.T) {
	p := newProfile()
	p.DeviceInfo.ConnectionSpeed = profile.SpeedSlow
	p.AdaptiveBehavior.AutoOptimization.OnSlowConnection = false

	plan := Decide(p)
	assert.Empty(t, plan.Rules)
	assert.True(t, plan.Empty())
}

func TestDecideIsIdempotent(t *testing.T) {
	p := newProfile()
	p.DeviceInfo.ConnectionSpeed = profile.SpeedSlow
	p.DeviceInfo.DeviceType = profile.DeviceMobile

	Decide(p).Apply(p)
	second := Decide(p)
	assert.NotEmpty(t, second.Rules, "conditions still hold")
	assert.True(t, second.Empty(), "nothing left to change")
	assert.Empty(t, second.Actions)
}

func TestInitial(t *testing.T) {
	t.Run("mobile on 2g running ios", func(t *testing.T) {
		p := newProfile()
		p.DeviceInfo.DeviceType = profile.DeviceMobile
		p.DeviceInfo.ConnectionType = profile.Connection2G
		p.DeviceInfo.OS = "iOS 17"
		p.PerformanceSettings.Image.EnableLazyLoading = false

		plan := Initial(p)
		assert.Equal(t, []string{"initial_mobile", "initial_slow_connection", "initial_ios"}, plan.Rules)

		plan.Apply(p)
		assert.True(t, p.UXSettings.Navigation.UseBottomNavigation)
		assert.Equal(t, 44, p.UXSettings.Touch.TouchTargetSize)
		assert.Equal(t, profile.CompressionHigh, p.PerformanceSettings.Image.CompressionLevel)
		assert.True(t, p.PerformanceSettings.Image.EnableLazyLoading)
		assert.True(t, p.AdaptiveBehavior.Bandwidth.DataSaver)
		assert.True(t, p.UXSettings.Navigation.EnableSwipeGestures)
	})

	t.Run("desktop", func(t *testing.T) {
		p := newProfile()
		Initial(p).Apply(p)
		assert.True(t, p.PerformanceSettings.Loading.EnablePrefetching)
		assert.Equal(t, 6, p.PerformanceSettings.Loading.MaxConcurrentRequests)
	})

	t.Run("low power", func(t *testing.T) {
		p := newProfile()
		p.DeviceInfo.IsLowPowerMode = true
		Initial(p).Apply(p)
		assert.True(t, p.PerformanceSettings.Battery.ReduceAnimations)
	})
}

func TestAggressive(t *testing.T) {
	p := newProfile()
	p.AdaptiveBehavior.AutoOptimization = profile.AutoOptimization{}
	p.PerformanceMetrics.PageLoad = &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(6000)}

	plan := Aggressive(p)
	require.False(t, plan.Empty())
	plan.Apply(p)

	assert.Equal(t, profile.CompressionMax, p.PerformanceSettings.Image.CompressionLevel)
	assert.True(t, p.PerformanceSettings.Content.EnableMinification)
	assert.True(t, p.AdaptiveBehavior.Bandwidth.DataSaver)
	assert.True(t, Aggressive(p).Empty())
}

func TestAggressiveBelowThreshold(t *testing.T) {
	p := newProfile()
	p.PerformanceMetrics.PageLoad = &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(4000)}
	assert.Empty(t, Aggressive(p).Rules)
}
