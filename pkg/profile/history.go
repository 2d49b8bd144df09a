package profile

import (
	"time"

	"github.com/google/uuid"
)

// Trigger records what caused an optimization.
type Trigger string

const (
	TriggerInitial      Trigger = "initial"
	TriggerManual       Trigger = "manual"
	TriggerDeviceChange Trigger = "device_change"
	TriggerMetrics      Trigger = "metrics"
	TriggerScheduled    Trigger = "scheduled"
	TriggerAggressive   Trigger = "aggressive"
	TriggerRequest      Trigger = "request"
)

// SettingCategory names a top-level settings subtree.
type SettingCategory string

const (
	CategoryImage            SettingCategory = "image"
	CategoryContent          SettingCategory = "content"
	CategoryLoading          SettingCategory = "loading"
	CategoryBattery          SettingCategory = "battery"
	CategoryUX               SettingCategory = "ux"
	CategoryMobileFeatures   SettingCategory = "mobile_features"
	CategoryAdaptiveBehavior SettingCategory = "adaptive_behavior"
)

// SettingsSnapshot holds the post-change value of every category a change touched.
type SettingsSnapshot struct {
	Image            *ImageOptimization   `json:"image,omitempty" bson:"image,omitempty"`
	Content          *ContentOptimization `json:"content,omitempty" bson:"content,omitempty"`
	Loading          *LoadingOptimization `json:"loading,omitempty" bson:"loading,omitempty"`
	Battery          *BatteryOptimization `json:"battery,omitempty" bson:"battery,omitempty"`
	UX               *UXSettings          `json:"ux,omitempty" bson:"ux,omitempty"`
	MobileFeatures   *MobileFeatures      `json:"mobileFeatures,omitempty" bson:"mobile_features,omitempty"`
	AdaptiveBehavior *AdaptiveBehavior    `json:"adaptiveBehavior,omitempty" bson:"adaptive_behavior,omitempty"`
}

// Categories lists the touched categories in a fixed order.
func (s SettingsSnapshot) Categories() []SettingCategory {
	var out []SettingCategory
	if s.Image != nil {
		out = append(out, CategoryImage)
	}
	if s.Content != nil {
		out = append(out, CategoryContent)
	}
	if s.Loading != nil {
		out = append(out, CategoryLoading)
	}
	if s.Battery != nil {
		out = append(out, CategoryBattery)
	}
	if s.UX != nil {
		out = append(out, CategoryUX)
	}
	if s.MobileFeatures != nil {
		out = append(out, CategoryMobileFeatures)
	}
	if s.AdaptiveBehavior != nil {
		out = append(out, CategoryAdaptiveBehavior)
	}
	return out
}

// capture copies the named categories from p.
func (s *SettingsSnapshot) capture(p *OptimizationProfile, touched map[SettingCategory]bool) {
	if touched[CategoryImage] {
		s.Image = Ptr(p.PerformanceSettings.Image)
	}
	if touched[CategoryContent] {
		s.Content = Ptr(p.PerformanceSettings.Content)
	}
	if touched[CategoryLoading] {
		s.Loading = Ptr(p.PerformanceSettings.Loading)
	}
	if touched[CategoryBattery] {
		s.Battery = Ptr(p.PerformanceSettings.Battery)
	}
	if touched[CategoryUX] {
		s.UX = Ptr(p.UXSettings)
	}
	if touched[CategoryMobileFeatures] {
		s.MobileFeatures = Ptr(p.MobileFeatures)
	}
	if touched[CategoryAdaptiveBehavior] {
		s.AdaptiveBehavior = Ptr(p.AdaptiveBehavior)
	}
}

// MetricPath names a value tracked in impact snapshots.
type MetricPath string

const (
	PathScore                MetricPath = "score"
	PathFirstContentfulPaint MetricPath = "first_contentful_paint"
	PathTimeToInteractive    MetricPath = "time_to_interactive"
	PathBatteryUsage         MetricPath = "battery_usage"
	PathMemoryUsage          MetricPath = "memory_usage"
	PathErrorRate            MetricPath = "error_rate"
)

// ImpactSnapshot captures the tracked metrics at one point in time.
type ImpactSnapshot struct {
	Score                *float64 `json:"score,omitempty" bson:"score,omitempty"`
	FirstContentfulPaint *float64 `json:"firstContentfulPaint,omitempty" bson:"first_contentful_paint,omitempty"`
	TimeToInteractive    *float64 `json:"timeToInteractive,omitempty" bson:"time_to_interactive,omitempty"`
	BatteryUsage         *float64 `json:"batteryUsage,omitempty" bson:"battery_usage,omitempty"`
	MemoryUsage          *float64 `json:"memoryUsage,omitempty" bson:"memory_usage,omitempty"`
	ErrorRate            *float64 `json:"errorRate,omitempty" bson:"error_rate,omitempty"`
}

// NewImpactSnapshot captures metrics together with their computed score.
func NewImpactSnapshot(m PerformanceMetrics, score int) ImpactSnapshot {
	s := ImpactSnapshot{Score: Float(float64(score))}
	if v, ok := m.FCP(); ok {
		s.FirstContentfulPaint = Float(v)
	}
	if v, ok := m.TTI(); ok {
		s.TimeToInteractive = Float(v)
	}
	if v, ok := m.BatteryUsage(); ok {
		s.BatteryUsage = Float(v)
	}
	if v, ok := m.MemoryUsage(); ok {
		s.MemoryUsage = Float(v)
	}
	if v, ok := m.ErrorRate(); ok {
		s.ErrorRate = Float(v)
	}
	return s
}

// Value returns the snapshot value at path.
func (s ImpactSnapshot) Value(path MetricPath) (float64, bool) {
	switch path {
	case PathScore:
		return deref(s.Score)
	case PathFirstContentfulPaint:
		return deref(s.FirstContentfulPaint)
	case PathTimeToInteractive:
		return deref(s.TimeToInteractive)
	case PathBatteryUsage:
		return deref(s.BatteryUsage)
	case PathMemoryUsage:
		return deref(s.MemoryUsage)
	case PathErrorRate:
		return deref(s.ErrorRate)
	}
	return 0, false
}

type PerformanceImpact struct {
	Before ImpactSnapshot `json:"before" bson:"before"`
	After  ImpactSnapshot `json:"after" bson:"after"`
}

// HistoryEntry is one immutable record of an optimization or settings change.
type HistoryEntry struct {
	ID                string            `json:"id" bson:"id"`
	Timestamp         time.Time         `json:"timestamp" bson:"timestamp"`
	Action            string            `json:"action" bson:"action"`
	Trigger           Trigger           `json:"trigger" bson:"trigger"`
	Reason            string            `json:"reason,omitempty" bson:"reason,omitempty"`
	Actions           []string          `json:"actions" bson:"actions"`
	Settings          SettingsSnapshot  `json:"settings" bson:"settings"`
	PerformanceImpact PerformanceImpact `json:"performanceImpact" bson:"performance_impact"`
}

// NewHistoryEntry stamps a new entry with a fresh id.
func NewHistoryEntry(now time.Time, action string, trigger Trigger, reason string) HistoryEntry {
	return HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: now,
		Action:    action,
		Trigger:   trigger,
		Reason:    reason,
		Actions:   []string{},
	}
}
