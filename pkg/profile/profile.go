package profile

import (
	"time"
)

// New returns a profile with default settings for subjectID.
func New(subjectID string, now time.Time) *OptimizationProfile {
	return &OptimizationProfile{
		SubjectID: subjectID,
		DeviceInfo: DeviceInfo{
			DeviceType:      DeviceDesktop,
			PixelRatio:      1,
			ConnectionType:  ConnectionWiFi,
			ConnectionSpeed: SpeedFast,
		},
		PerformanceSettings: DefaultPerformanceSettings(),
		UXSettings:          DefaultUXSettings(),
		AdaptiveBehavior:    DefaultAdaptiveBehavior(),
		MobileFeatures:      DefaultMobileFeatures(),
		OptimizationHistory: []HistoryEntry{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func DefaultPerformanceSettings() PerformanceSettings {
	return PerformanceSettings{
		Image: ImageOptimization{
			CompressionLevel:     CompressionMedium,
			EnableLazyLoading:    true,
			MaxWidth:             1920,
			MaxHeight:            1080,
			EnableAdaptiveImages: true,
		},
		Content: ContentOptimization{
			EnableGzip:           true,
			EnableContentCaching: true,
			CacheTTLSeconds:      3600,
		},
		Loading: LoadingOptimization{
			EnableProgressiveLoading: true,
			EnableCodeSplitting:      true,
			MaxConcurrentRequests:    4,
		},
		Battery: BatteryOptimization{
			BatteryThresholdPercent: 20,
		},
	}
}

func DefaultUXSettings() UXSettings {
	return UXSettings{
		Touch: TouchOptimization{
			TouchTargetSize:  40,
			GestureThreshold: 10,
		},
		Navigation: Navigation{
			ShowBreadcrumbs: true,
		},
		Readability: Readability{
			FontSizeMultiplier:   1.0,
			LineHeightMultiplier: 1.5,
		},
		Notifications: Notifications{
			Frequency: NotifyDaily,
		},
	}
}

func DefaultAdaptiveBehavior() AdaptiveBehavior {
	return AdaptiveBehavior{
		AutoOptimization: AutoOptimization{
			OnSlowConnection: true,
			OnLowBattery:     true,
			OnLowMemory:      true,
			OnOffline:        true,
		},
		Bandwidth: BandwidthManagement{
			MaxBandwidthPerSessionMB: 50,
			ContentPriority:          PriorityBalanced,
		},
		ProgressiveEnhancement: ProgressiveEnhancement{
			FallbackMode: FallbackFull,
		},
	}
}

func DefaultMobileFeatures() MobileFeatures {
	return MobileFeatures{
		Camera: CameraFeature{
			MaxResolution: 1920,
			ImageQuality:  80,
		},
		Location: LocationFeature{
			UpdateIntervalSeconds: 300,
		},
		OfflineCapabilities: OfflineCapabilities{
			StorageLimitMB: 50,
		},
		AppShell: AppShellFeature{
			CacheStrategy: "network-first",
		},
	}
}

// Clone returns a deep copy. History entries are immutable and only their
// slices are copied.
func (p *OptimizationProfile) Clone() *OptimizationProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.PerformanceMetrics = p.PerformanceMetrics.Clone()
	out.OptimizationHistory = make([]HistoryEntry, len(p.OptimizationHistory))
	for i, e := range p.OptimizationHistory {
		e.Actions = append([]string(nil), e.Actions...)
		out.OptimizationHistory[i] = e
	}
	out.Feedback = p.Feedback.clone()
	return &out
}

func (f Feedback) clone() Feedback {
	out := f
	out.PerformanceRating = copyPtr(f.PerformanceRating)
	out.UsabilityRating = copyPtr(f.UsabilityRating)
	out.BatteryRating = copyPtr(f.BatteryRating)
	if f.Comments != nil {
		out.Comments = append([]FeedbackComment(nil), f.Comments...)
	}
	return out
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// MarkChecked advances LastOptimizationCheck; it never moves backwards.
func (p *OptimizationProfile) MarkChecked(t time.Time) {
	if t.After(p.LastOptimizationCheck) {
		p.LastOptimizationCheck = t
	}
}

// ApplyFeedback records a submission on the profile.
func (p *OptimizationProfile) ApplyFeedback(s FeedbackSubmission, now time.Time) {
	if s.Performance != nil {
		p.Feedback.PerformanceRating = copyPtr(s.Performance)
	}
	if s.Usability != nil {
		p.Feedback.UsabilityRating = copyPtr(s.Usability)
	}
	if s.Battery != nil {
		p.Feedback.BatteryRating = copyPtr(s.Battery)
	}
	if s.Comment != "" {
		p.Feedback.Comments = append(p.Feedback.Comments, FeedbackComment{Text: s.Comment, SubmittedAt: now})
	}
	p.Feedback.LastSubmittedAt = now
	p.UpdatedAt = now
}

// LatestHistory returns up to n most recent entries, newest last.
func (p *OptimizationProfile) LatestHistory(n int) []HistoryEntry {
	h := p.OptimizationHistory
	if n >= 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]HistoryEntry(nil), h...)
}
