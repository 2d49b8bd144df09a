package profile

// DeviceInfoPatch is a partial device update; nil fields are left unchanged.
type DeviceInfoPatch struct {
	DeviceType      *DeviceType      `json:"deviceType,omitempty" validate:"omitempty,oneof=mobile tablet desktop"`
	OS              *string          `json:"os,omitempty" validate:"omitempty,max=64"`
	Browser         *string          `json:"browser,omitempty" validate:"omitempty,max=64"`
	ScreenWidth     *int             `json:"screenWidth,omitempty" validate:"omitempty,gte=0,lte=20000"`
	ScreenHeight    *int             `json:"screenHeight,omitempty" validate:"omitempty,gte=0,lte=20000"`
	PixelRatio      *float64         `json:"pixelRatio,omitempty" validate:"omitempty,gt=0,lte=10"`
	IsLowPowerMode  *bool            `json:"isLowPowerMode,omitempty"`
	ConnectionType  *ConnectionType  `json:"connectionType,omitempty" validate:"omitempty,oneof=wifi 4g 3g 2g slow-2g offline"`
	ConnectionSpeed *ConnectionSpeed `json:"connectionSpeed,omitempty" validate:"omitempty,oneof=fast moderate slow"`
}

// ApplyTo merges the patch into d.
func (p DeviceInfoPatch) ApplyTo(d *DeviceInfo) {
	set(&d.DeviceType, p.DeviceType)
	set(&d.OS, p.OS)
	set(&d.Browser, p.Browser)
	set(&d.ScreenWidth, p.ScreenWidth)
	set(&d.ScreenHeight, p.ScreenHeight)
	set(&d.PixelRatio, p.PixelRatio)
	set(&d.IsLowPowerMode, p.IsLowPowerMode)
	set(&d.ConnectionType, p.ConnectionType)
	set(&d.ConnectionSpeed, p.ConnectionSpeed)
}

// set assigns *v to *dst when v is present and reports whether it did.
func set[T any](dst *T, v *T) bool {
	if v == nil {
		return false
	}
	*dst = *v
	return true
}

type ImagePatch struct {
	CompressionLevel     *CompressionLevel `json:"compressionLevel,omitempty" validate:"omitempty,oneof=low medium high max"`
	EnableLazyLoading    *bool             `json:"enableLazyLoading,omitempty"`
	MaxWidth             *int              `json:"maxWidth,omitempty" validate:"omitempty,gte=0"`
	MaxHeight            *int              `json:"maxHeight,omitempty" validate:"omitempty,gte=0"`
	EnableAdaptiveImages *bool             `json:"enableAdaptiveImages,omitempty"`
	EnableWebP           *bool             `json:"enableWebP,omitempty"`
}

type ContentPatch struct {
	EnableMinification   *bool `json:"enableMinification,omitempty"`
	EnableGzip           *bool `json:"enableGzip,omitempty"`
	EnableBrotli         *bool `json:"enableBrotli,omitempty"`
	EnableContentCaching *bool `json:"enableContentCaching,omitempty"`
	CacheTTLSeconds      *int  `json:"cacheTTLSeconds,omitempty" validate:"omitempty,gte=0"`
	EnableOfflineMode    *bool `json:"enableOfflineMode,omitempty"`
}

type LoadingPatch struct {
	EnableProgressiveLoading *bool `json:"enableProgressiveLoading,omitempty"`
	EnablePreloading         *bool `json:"enablePreloading,omitempty"`
	EnablePrefetching        *bool `json:"enablePrefetching,omitempty"`
	EnableCodeSplitting      *bool `json:"enableCodeSplitting,omitempty"`
	MaxConcurrentRequests    *int  `json:"maxConcurrentRequests,omitempty" validate:"omitempty,min=1,max=32"`
}

type BatteryPatch struct {
	EnableBatterySaver       *bool `json:"enableBatterySaver,omitempty"`
	ReduceAnimations         *bool `json:"reduceAnimations,omitempty"`
	ReduceBackgroundActivity *bool `json:"reduceBackgroundActivity,omitempty"`
	BatteryThresholdPercent  *int  `json:"batteryThresholdPercent,omitempty" validate:"omitempty,min=0,max=100"`
}

type PerformancePatch struct {
	Image   *ImagePatch   `json:"imageOptimization,omitempty"`
	Content *ContentPatch `json:"contentOptimization,omitempty"`
	Loading *LoadingPatch `json:"loadingOptimization,omitempty"`
	Battery *BatteryPatch `json:"batteryOptimization,omitempty"`
}

type TouchPatch struct {
	TouchTargetSize  *int `json:"touchTargetSize,omitempty" validate:"omitempty,min=16,max=96"`
	GestureThreshold *int `json:"gestureThreshold,omitempty" validate:"omitempty,gte=0"`
}

type NavigationPatch struct {
	UseBottomNavigation *bool `json:"useBottomNavigation,omitempty"`
	EnableSwipeGestures *bool `json:"enableSwipeGestures,omitempty"`
	ShowBreadcrumbs     *bool `json:"showBreadcrumbs,omitempty"`
	CollapsibleMenus    *bool `json:"collapsibleMenus,omitempty"`
}

type ReadabilityPatch struct {
	FontSizeMultiplier   *float64 `json:"fontSizeMultiplier,omitempty" validate:"omitempty,min=0.8,max=2"`
	LineHeightMultiplier *float64 `json:"lineHeightMultiplier,omitempty" validate:"omitempty,min=0.8,max=2"`
	DarkMode             *bool    `json:"darkMode,omitempty"`
	HighContrast         *bool    `json:"highContrast,omitempty"`
	DyslexicFont         *bool    `json:"dyslexicFont,omitempty"`
}

type QuietHoursPatch struct {
	Enabled *bool   `json:"enabled,omitempty"`
	Start   *string `json:"start,omitempty" validate:"omitempty,datetime=15:04"`
	End     *string `json:"end,omitempty" validate:"omitempty,datetime=15:04"`
}

type NotificationsPatch struct {
	Frequency  *NotificationFrequency `json:"frequency,omitempty" validate:"omitempty,oneof=immediate hourly daily weekly disabled"`
	QuietHours *QuietHoursPatch       `json:"quietHours,omitempty"`
}

type UXPatch struct {
	Touch         *TouchPatch         `json:"touchOptimization,omitempty"`
	Navigation    *NavigationPatch    `json:"navigation,omitempty"`
	Readability   *ReadabilityPatch   `json:"readability,omitempty"`
	Notifications *NotificationsPatch `json:"notifications,omitempty"`
}

type CameraPatch struct {
	Enabled       *bool `json:"enabled,omitempty"`
	MaxResolution *int  `json:"maxResolution,omitempty" validate:"omitempty,gte=0"`
	ImageQuality  *int  `json:"imageQuality,omitempty" validate:"omitempty,min=1,max=100"`
}

type LocationPatch struct {
	Enabled               *bool `json:"enabled,omitempty"`
	HighAccuracy          *bool `json:"highAccuracy,omitempty"`
	UpdateIntervalSeconds *int  `json:"updateIntervalSeconds,omitempty" validate:"omitempty,gte=0"`
}

type OfflinePatch struct {
	EnableOfflineReading *bool `json:"enableOfflineReading,omitempty"`
	EnableBackgroundSync *bool `json:"enableBackgroundSync,omitempty"`
	StorageLimitMB       *int  `json:"storageLimitMB,omitempty" validate:"omitempty,gte=0"`
}

type AppShellPatch struct {
	Enabled       *bool   `json:"enabled,omitempty"`
	CacheStrategy *string `json:"cacheStrategy,omitempty" validate:"omitempty,oneof=cache-first network-first stale-while-revalidate"`
}

type MobileFeaturesPatch struct {
	Camera              *CameraPatch   `json:"camera,omitempty"`
	Location            *LocationPatch `json:"location,omitempty"`
	OfflineCapabilities *OfflinePatch  `json:"offlineCapabilities,omitempty"`
	AppShell            *AppShellPatch `json:"appShell,omitempty"`
}

type AutoOptimizationPatch struct {
	OnSlowConnection *bool `json:"onSlowConnection,omitempty"`
	OnLowBattery     *bool `json:"onLowBattery,omitempty"`
	OnLowMemory      *bool `json:"onLowMemory,omitempty"`
	OnOffline        *bool `json:"onOffline,omitempty"`
}

type BandwidthPatch struct {
	DataSaver                *bool            `json:"dataSaver,omitempty"`
	MaxBandwidthPerSessionMB *float64         `json:"maxBandwidthPerSessionMB,omitempty" validate:"omitempty,gte=0"`
	ContentPriority          *ContentPriority `json:"contentPriority,omitempty" validate:"omitempty,oneof=text_first images_first balanced"`
}

type ProgressiveEnhancementPatch struct {
	FallbackMode *FallbackMode `json:"fallbackMode,omitempty" validate:"omitempty,oneof=full reduced minimal"`
}

type AdaptiveBehaviorPatch struct {
	AutoOptimization       *AutoOptimizationPatch       `json:"autoOptimization,omitempty"`
	Bandwidth              *BandwidthPatch              `json:"bandwidthManagement,omitempty"`
	ProgressiveEnhancement *ProgressiveEnhancementPatch `json:"progressiveEnhancement,omitempty"`
}

// SettingsPatch is a partial settings tree. Absent subtrees are left unchanged.
type SettingsPatch struct {
	Performance      *PerformancePatch      `json:"performanceSettings,omitempty"`
	UX               *UXPatch               `json:"uxSettings,omitempty"`
	MobileFeatures   *MobileFeaturesPatch   `json:"mobileFeatures,omitempty"`
	AdaptiveBehavior *AdaptiveBehaviorPatch `json:"adaptiveBehavior,omitempty"`
}

// IsEmpty reports whether the patch names no subtree.
func (s SettingsPatch) IsEmpty() bool {
	return s.Performance == nil && s.UX == nil && s.MobileFeatures == nil && s.AdaptiveBehavior == nil
}

// ApplyTo merges the patch into p and returns a snapshot of every category
// the patch named, taken after the merge.
func (s SettingsPatch) ApplyTo(p *OptimizationProfile) SettingsSnapshot {
	return ApplyPatches(p, s)
}

// ApplyPatches merges patches into p in order and snapshots every category
// any of them named.
func ApplyPatches(p *OptimizationProfile, patches ...SettingsPatch) SettingsSnapshot {
	touched := make(map[SettingCategory]bool)
	for _, s := range patches {
		s.apply(p, touched)
	}
	var snap SettingsSnapshot
	snap.capture(p, touched)
	return snap
}

func (s SettingsPatch) apply(p *OptimizationProfile, touched map[SettingCategory]bool) {
	if perf := s.Performance; perf != nil {
		if perf.Image != nil {
			touched[CategoryImage] = true
			perf.Image.applyTo(&p.PerformanceSettings.Image)
		}
		if perf.Content != nil {
			touched[CategoryContent] = true
			perf.Content.applyTo(&p.PerformanceSettings.Content)
		}
		if perf.Loading != nil {
			touched[CategoryLoading] = true
			perf.Loading.applyTo(&p.PerformanceSettings.Loading)
		}
		if perf.Battery != nil {
			touched[CategoryBattery] = true
			perf.Battery.applyTo(&p.PerformanceSettings.Battery)
		}
	}
	if ux := s.UX; ux != nil {
		touched[CategoryUX] = true
		ux.applyTo(&p.UXSettings)
	}
	if mf := s.MobileFeatures; mf != nil {
		touched[CategoryMobileFeatures] = true
		mf.applyTo(&p.MobileFeatures)
	}
	if ab := s.AdaptiveBehavior; ab != nil {
		touched[CategoryAdaptiveBehavior] = true
		ab.applyTo(&p.AdaptiveBehavior)
	}
}

func (p *ImagePatch) applyTo(d *ImageOptimization) {
	set(&d.CompressionLevel, p.CompressionLevel)
	set(&d.EnableLazyLoading, p.EnableLazyLoading)
	set(&d.MaxWidth, p.MaxWidth)
	set(&d.MaxHeight, p.MaxHeight)
	set(&d.EnableAdaptiveImages, p.EnableAdaptiveImages)
	set(&d.EnableWebP, p.EnableWebP)
}

func (p *ContentPatch) applyTo(d *ContentOptimization) {
	set(&d.EnableMinification, p.EnableMinification)
	set(&d.EnableGzip, p.EnableGzip)
	set(&d.EnableBrotli, p.EnableBrotli)
	set(&d.EnableContentCaching, p.EnableContentCaching)
	set(&d.CacheTTLSeconds, p.CacheTTLSeconds)
	set(&d.EnableOfflineMode, p.EnableOfflineMode)
}

func (p *LoadingPatch) applyTo(d *LoadingOptimization) {
	set(&d.EnableProgressiveLoading, p.EnableProgressiveLoading)
	set(&d.EnablePreloading, p.EnablePreloading)
	set(&d.EnablePrefetching, p.EnablePrefetching)
	set(&d.EnableCodeSplitting, p.EnableCodeSplitting)
	set(&d.MaxConcurrentRequests, p.MaxConcurrentRequests)
}

func (p *BatteryPatch) applyTo(d *BatteryOptimization) {
	set(&d.EnableBatterySaver, p.EnableBatterySaver)
	set(&d.ReduceAnimations, p.ReduceAnimations)
	set(&d.ReduceBackgroundActivity, p.ReduceBackgroundActivity)
	set(&d.BatteryThresholdPercent, p.BatteryThresholdPercent)
}

func (p *UXPatch) applyTo(d *UXSettings) {
	if t := p.Touch; t != nil {
		set(&d.Touch.TouchTargetSize, t.TouchTargetSize)
		set(&d.Touch.GestureThreshold, t.GestureThreshold)
	}
	if n := p.Navigation; n != nil {
		set(&d.Navigation.UseBottomNavigation, n.UseBottomNavigation)
		set(&d.Navigation.EnableSwipeGestures, n.EnableSwipeGestures)
		set(&d.Navigation.ShowBreadcrumbs, n.ShowBreadcrumbs)
		set(&d.Navigation.CollapsibleMenus, n.CollapsibleMenus)
	}
	if r := p.Readability; r != nil {
		set(&d.Readability.FontSizeMultiplier, r.FontSizeMultiplier)
		set(&d.Readability.LineHeightMultiplier, r.LineHeightMultiplier)
		set(&d.Readability.DarkMode, r.DarkMode)
		set(&d.Readability.HighContrast, r.HighContrast)
		set(&d.Readability.DyslexicFont, r.DyslexicFont)
	}
	if n := p.Notifications; n != nil {
		set(&d.Notifications.Frequency, n.Frequency)
		if q := n.QuietHours; q != nil {
			set(&d.Notifications.QuietHours.Enabled, q.Enabled)
			set(&d.Notifications.QuietHours.Start, q.Start)
			set(&d.Notifications.QuietHours.End, q.End)
		}
	}
}

func (p *MobileFeaturesPatch) applyTo(d *MobileFeatures) {
	if c := p.Camera; c != nil {
		set(&d.Camera.Enabled, c.Enabled)
		set(&d.Camera.MaxResolution, c.MaxResolution)
		set(&d.Camera.ImageQuality, c.ImageQuality)
	}
	if l := p.Location; l != nil {
		set(&d.Location.Enabled, l.Enabled)
		set(&d.Location.HighAccuracy, l.HighAccuracy)
		set(&d.Location.UpdateIntervalSeconds, l.UpdateIntervalSeconds)
	}
	if o := p.OfflineCapabilities; o != nil {
		set(&d.OfflineCapabilities.EnableOfflineReading, o.EnableOfflineReading)
		set(&d.OfflineCapabilities.EnableBackgroundSync, o.EnableBackgroundSync)
		set(&d.OfflineCapabilities.StorageLimitMB, o.StorageLimitMB)
	}
	if a := p.AppShell; a != nil {
		set(&d.AppShell.Enabled, a.Enabled)
		set(&d.AppShell.CacheStrategy, a.CacheStrategy)
	}
}

func (p *AdaptiveBehaviorPatch) applyTo(d *AdaptiveBehavior) {
	if a := p.AutoOptimization; a != nil {
		set(&d.AutoOptimization.OnSlowConnection, a.OnSlowConnection)
		set(&d.AutoOptimization.OnLowBattery, a.OnLowBattery)
		set(&d.AutoOptimization.OnLowMemory, a.OnLowMemory)
		set(&d.AutoOptimization.OnOffline, a.OnOffline)
	}
	if b := p.Bandwidth; b != nil {
		set(&d.Bandwidth.DataSaver, b.DataSaver)
		set(&d.Bandwidth.MaxBandwidthPerSessionMB, b.MaxBandwidthPerSessionMB)
		set(&d.Bandwidth.ContentPriority, b.ContentPriority)
	}
	if e := p.ProgressiveEnhancement; e != nil {
		set(&d.ProgressiveEnhancement.FallbackMode, e.FallbackMode)
	}
}
