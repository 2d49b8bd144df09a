package profile

import (
	"time"
)

// DeviceType is the device class reported by the client.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// ConnectionType is the network technology reported by the client.
type ConnectionType string

const (
	ConnectionWiFi    ConnectionType = "wifi"
	Connection4G      ConnectionType = "4g"
	Connection3G      ConnectionType = "3g"
	Connection2G      ConnectionType = "2g"
	ConnectionSlow2G  ConnectionType = "slow-2g"
	ConnectionOffline ConnectionType = "offline"
)

// ConnectionSpeed is the qualitative connection speed.
type ConnectionSpeed string

const (
	SpeedFast     ConnectionSpeed = "fast"
	SpeedModerate ConnectionSpeed = "moderate"
	SpeedSlow     ConnectionSpeed = "slow"
)

// CompressionLevel is the image compression level. Higher levels mean smaller, lossier images.
type CompressionLevel string

const (
	CompressionLow    CompressionLevel = "low"
	CompressionMedium CompressionLevel = "medium"
	CompressionHigh   CompressionLevel = "high"
	CompressionMax    CompressionLevel = "max"
)

// Rank orders compression levels; unknown levels rank below low.
func (c CompressionLevel) Rank() int {
	switch c {
	case CompressionLow:
		return 1
	case CompressionMedium:
		return 2
	case CompressionHigh:
		return 3
	case CompressionMax:
		return 4
	default:
		return 0
	}
}

// NotificationFrequency controls how often notifications are delivered.
type NotificationFrequency string

const (
	NotifyImmediate NotificationFrequency = "immediate"
	NotifyHourly    NotificationFrequency = "hourly"
	NotifyDaily     NotificationFrequency = "daily"
	NotifyWeekly    NotificationFrequency = "weekly"
	NotifyDisabled  NotificationFrequency = "disabled"
)

// ContentPriority decides what loads first when bandwidth is constrained.
type ContentPriority string

const (
	PriorityTextFirst   ContentPriority = "text_first"
	PriorityImagesFirst ContentPriority = "images_first"
	PriorityBalanced    ContentPriority = "balanced"
)

// FallbackMode is the progressive-enhancement level served to the client.
type FallbackMode string

const (
	FallbackFull    FallbackMode = "full"
	FallbackReduced FallbackMode = "reduced"
	FallbackMinimal FallbackMode = "minimal"
)

// DeviceInfo describes the subject's device and network.
type DeviceInfo struct {
	DeviceType      DeviceType      `json:"deviceType" bson:"device_type"`
	OS              string          `json:"os" bson:"os"`
	Browser         string          `json:"browser" bson:"browser"`
	ScreenWidth     int             `json:"screenWidth" bson:"screen_width"`
	ScreenHeight    int             `json:"screenHeight" bson:"screen_height"`
	PixelRatio      float64         `json:"pixelRatio" bson:"pixel_ratio"`
	IsLowPowerMode  bool            `json:"isLowPowerMode" bson:"is_low_power_mode"`
	ConnectionType  ConnectionType  `json:"connectionType" bson:"connection_type"`
	ConnectionSpeed ConnectionSpeed `json:"connectionSpeed" bson:"connection_speed"`
}

type ImageOptimization struct {
	CompressionLevel     CompressionLevel `json:"compressionLevel" bson:"compression_level"`
	EnableLazyLoading    bool             `json:"enableLazyLoading" bson:"enable_lazy_loading"`
	MaxWidth             int              `json:"maxWidth" bson:"max_width"`
	MaxHeight            int              `json:"maxHeight" bson:"max_height"`
	EnableAdaptiveImages bool             `json:"enableAdaptiveImages" bson:"enable_adaptive_images"`
	EnableWebP           bool             `json:"enableWebP" bson:"enable_webp"`
}

type ContentOptimization struct {
	EnableMinification   bool `json:"enableMinification" bson:"enable_minification"`
	EnableGzip           bool `json:"enableGzip" bson:"enable_gzip"`
	EnableBrotli         bool `json:"enableBrotli" bson:"enable_brotli"`
	EnableContentCaching bool `json:"enableContentCaching" bson:"enable_content_caching"`
	CacheTTLSeconds      int  `json:"cacheTTLSeconds" bson:"cache_ttl_seconds"`
	EnableOfflineMode    bool `json:"enableOfflineMode" bson:"enable_offline_mode"`
}

type LoadingOptimization struct {
	EnableProgressiveLoading bool `json:"enableProgressiveLoading" bson:"enable_progressive_loading"`
	EnablePreloading         bool `json:"enablePreloading" bson:"enable_preloading"`
	EnablePrefetching        bool `json:"enablePrefetching" bson:"enable_prefetching"`
	EnableCodeSplitting      bool `json:"enableCodeSplitting" bson:"enable_code_splitting"`
	MaxConcurrentRequests    int  `json:"maxConcurrentRequests" bson:"max_concurrent_requests"`
}

type BatteryOptimization struct {
	EnableBatterySaver       bool `json:"enableBatterySaver" bson:"enable_battery_saver"`
	ReduceAnimations         bool `json:"reduceAnimations" bson:"reduce_animations"`
	ReduceBackgroundActivity bool `json:"reduceBackgroundActivity" bson:"reduce_background_activity"`
	BatteryThresholdPercent  int  `json:"batteryThresholdPercent" bson:"battery_threshold_percent"`
}

// PerformanceSettings groups the delivery-side configuration.
type PerformanceSettings struct {
	Image   ImageOptimization   `json:"imageOptimization" bson:"image_optimization"`
	Content ContentOptimization `json:"contentOptimization" bson:"content_optimization"`
	Loading LoadingOptimization `json:"loadingOptimization" bson:"loading_optimization"`
	Battery BatteryOptimization `json:"batteryOptimization" bson:"battery_optimization"`
}

type TouchOptimization struct {
	TouchTargetSize  int `json:"touchTargetSize" bson:"touch_target_size"`
	GestureThreshold int `json:"gestureThreshold" bson:"gesture_threshold"`
}

type Navigation struct {
	UseBottomNavigation bool `json:"useBottomNavigation" bson:"use_bottom_navigation"`
	EnableSwipeGestures bool `json:"enableSwipeGestures" bson:"enable_swipe_gestures"`
	ShowBreadcrumbs     bool `json:"showBreadcrumbs" bson:"show_breadcrumbs"`
	CollapsibleMenus    bool `json:"collapsibleMenus" bson:"collapsible_menus"`
}

// Readability multipliers are bounded to [MinMultiplier, MaxMultiplier].
type Readability struct {
	FontSizeMultiplier   float64 `json:"fontSizeMultiplier" bson:"font_size_multiplier"`
	LineHeightMultiplier float64 `json:"lineHeightMultiplier" bson:"line_height_multiplier"`
	DarkMode             bool    `json:"darkMode" bson:"dark_mode"`
	HighContrast         bool    `json:"highContrast" bson:"high_contrast"`
	DyslexicFont         bool    `json:"dyslexicFont" bson:"dyslexic_font"`
}

const (
	MinMultiplier = 0.8
	MaxMultiplier = 2.0
)

// QuietHours uses "HH:MM" local times; the window may wrap midnight.
type QuietHours struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Start   string `json:"start,omitempty" bson:"start,omitempty"`
	End     string `json:"end,omitempty" bson:"end,omitempty"`
}

type Notifications struct {
	Frequency  NotificationFrequency `json:"frequency" bson:"frequency"`
	QuietHours QuietHours            `json:"quietHours" bson:"quiet_hours"`
}

// UXSettings groups the presentation-side configuration.
type UXSettings struct {
	Touch         TouchOptimization `json:"touchOptimization" bson:"touch_optimization"`
	Navigation    Navigation        `json:"navigation" bson:"navigation"`
	Readability   Readability       `json:"readability" bson:"readability"`
	Notifications Notifications     `json:"notifications" bson:"notifications"`
}

type AutoOptimization struct {
	OnSlowConnection bool `json:"onSlowConnection" bson:"on_slow_connection"`
	OnLowBattery     bool `json:"onLowBattery" bson:"on_low_battery"`
	OnLowMemory      bool `json:"onLowMemory" bson:"on_low_memory"`
	OnOffline        bool `json:"onOffline" bson:"on_offline"`
}

type BandwidthManagement struct {
	DataSaver                bool            `json:"dataSaver" bson:"data_saver"`
	MaxBandwidthPerSessionMB float64         `json:"maxBandwidthPerSessionMB" bson:"max_bandwidth_per_session_mb"`
	ContentPriority          ContentPriority `json:"contentPriority" bson:"content_priority"`
}

type ProgressiveEnhancement struct {
	FallbackMode FallbackMode `json:"fallbackMode" bson:"fallback_mode"`
}

type AdaptiveBehavior struct {
	AutoOptimization       AutoOptimization       `json:"autoOptimization" bson:"auto_optimization"`
	Bandwidth              BandwidthManagement    `json:"bandwidthManagement" bson:"bandwidth_management"`
	ProgressiveEnhancement ProgressiveEnhancement `json:"progressiveEnhancement" bson:"progressive_enhancement"`
}

type CameraFeature struct {
	Enabled       bool `json:"enabled" bson:"enabled"`
	MaxResolution int  `json:"maxResolution" bson:"max_resolution"`
	ImageQuality  int  `json:"imageQuality" bson:"image_quality"`
}

type LocationFeature struct {
	Enabled               bool `json:"enabled" bson:"enabled"`
	HighAccuracy          bool `json:"highAccuracy" bson:"high_accuracy"`
	UpdateIntervalSeconds int  `json:"updateIntervalSeconds" bson:"update_interval_seconds"`
}

type OfflineCapabilities struct {
	EnableOfflineReading bool `json:"enableOfflineReading" bson:"enable_offline_reading"`
	EnableBackgroundSync bool `json:"enableBackgroundSync" bson:"enable_background_sync"`
	StorageLimitMB       int  `json:"storageLimitMB" bson:"storage_limit_mb"`
}

type AppShellFeature struct {
	Enabled       bool   `json:"enabled" bson:"enabled"`
	CacheStrategy string `json:"cacheStrategy" bson:"cache_strategy"`
}

// MobileFeatures toggles device capabilities used by the client.
type MobileFeatures struct {
	Camera              CameraFeature       `json:"camera" bson:"camera"`
	Location            LocationFeature     `json:"location" bson:"location"`
	OfflineCapabilities OfflineCapabilities `json:"offlineCapabilities" bson:"offline_capabilities"`
	AppShell            AppShellFeature     `json:"appShell" bson:"app_shell"`
}

// FeedbackComment is one free-text comment.
type FeedbackComment struct {
	Text        string    `json:"text" bson:"text"`
	SubmittedAt time.Time `json:"submittedAt" bson:"submitted_at"`
}

// Feedback keeps the latest ratings and every comment.
type Feedback struct {
	PerformanceRating *int              `json:"performanceRating,omitempty" bson:"performance_rating,omitempty"`
	UsabilityRating   *int              `json:"usabilityRating,omitempty" bson:"usability_rating,omitempty"`
	BatteryRating     *int              `json:"batteryRating,omitempty" bson:"battery_rating,omitempty"`
	Comments          []FeedbackComment `json:"comments,omitempty" bson:"comments,omitempty"`
	LastSubmittedAt   time.Time         `json:"lastSubmittedAt,omitempty" bson:"last_submitted_at,omitempty"`
}

// FeedbackSubmission is a single user feedback submission.
type FeedbackSubmission struct {
	Performance *int   `json:"performance,omitempty" validate:"omitempty,min=1,max=5"`
	Usability   *int   `json:"usability,omitempty" validate:"omitempty,min=1,max=5"`
	Battery     *int   `json:"battery,omitempty" validate:"omitempty,min=1,max=5"`
	Comment     string `json:"comment,omitempty" validate:"max=2000"`
}

// Ratings returns the ratings present in the submission.
func (f FeedbackSubmission) Ratings() []int {
	ratings := make([]int, 0, 3)
	for _, r := range []*int{f.Performance, f.Usability, f.Battery} {
		if r != nil {
			ratings = append(ratings, *r)
		}
	}
	return ratings
}

// OptimizationProfile is the per-subject aggregate.
type OptimizationProfile struct {
	SubjectID             string              `json:"subjectId" bson:"_id"`
	DeviceInfo            DeviceInfo          `json:"deviceInfo" bson:"device_info"`
	PerformanceSettings   PerformanceSettings `json:"performanceSettings" bson:"performance_settings"`
	UXSettings            UXSettings          `json:"uxSettings" bson:"ux_settings"`
	PerformanceMetrics    PerformanceMetrics  `json:"performanceMetrics" bson:"performance_metrics"`
	AdaptiveBehavior      AdaptiveBehavior    `json:"adaptiveBehavior" bson:"adaptive_behavior"`
	MobileFeatures        MobileFeatures      `json:"mobileFeatures" bson:"mobile_features"`
	OptimizationHistory   []HistoryEntry      `json:"optimizationHistory" bson:"optimization_history"`
	Feedback              Feedback            `json:"feedback" bson:"feedback"`
	LastOptimizationCheck time.Time           `json:"lastOptimizationCheck" bson:"last_optimization_check"`
	CreatedAt             time.Time           `json:"createdAt" bson:"created_at"`
	UpdatedAt             time.Time           `json:"updatedAt" bson:"updated_at"`
}

// IsSlowConnection reports whether the device is on a slow link.
func (d DeviceInfo) IsSlowConnection() bool {
	if d.ConnectionSpeed == SpeedSlow {
		return true
	}
	switch d.ConnectionType {
	case Connection2G, ConnectionSlow2G:
		return true
	}
	return false
}
