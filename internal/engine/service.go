package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"client-optimizer/pkg/config"
	"client-optimizer/pkg/content"
	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/metrics"
	"client-optimizer/pkg/optimizer"
	"client-optimizer/pkg/profile"
	"client-optimizer/pkg/recommend"
	"client-optimizer/pkg/scoring"
	"client-optimizer/pkg/state"
	"client-optimizer/pkg/trend"
)

const (
	opInitialize      = "initialize"
	opGetStatus       = "get_status"
	opUpdateDevice    = "update_device_info"
	opRecordMetrics   = "record_metrics"
	opGetAnalytics    = "get_analytics"
	opApplySettings   = "apply_settings"
	opRecommendations = "get_recommendations"
	opSubmitFeedback  = "submit_feedback"
	opOptimize        = "optimize"
	opGlobalStats     = "global_stats"
)

// History entry actions.
const (
	actionInitial    = "initial_optimization"
	actionAdaptive   = "adaptive_optimization"
	actionManual     = "manual_settings_update"
	actionAggressive = "aggressive_optimization"
)

// Service owns the profile lifecycle. Every mutation of a subject runs under
// that subject's lock and persists through a single apply step.
type Service struct {
	store       state.ProfileStore
	content     *content.Optimizer
	recommender *recommend.Generator
	trends      *trend.Analyzer
	metrics     metrics.Recorder
	logger      *zap.Logger
	tracer      trace.Tracer
	config      config.EngineConfig
	locks       *keyedMutex
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTrendAnalyzer(a *trend.Analyzer) Option {
	return func(s *Service) {
		if a != nil {
			s.trends = a
		}
	}
}

func WithRecommender(g *recommend.Generator) Option {
	return func(s *Service) {
		if g != nil {
			s.recommender = g
		}
	}
}

func WithContentOptimizer(o *content.Optimizer) Option {
	return func(s *Service) {
		if o != nil {
			s.content = o
		}
	}
}

// NewService creates a Service over store. Zero engine thresholds take their
// defaults.
func NewService(store state.ProfileStore, cfg config.EngineConfig, opts ...Option) *Service {
	s := &Service{
		store:       store,
		recommender: recommend.NewGenerator(),
		trends:      trend.NewAnalyzer(trend.DefaultConfig()),
		metrics:     metrics.NewNoOpMetrics(),
		logger:      zap.NewNop(),
		tracer:      defaultTracer(),
		config:      withEngineDefaults(cfg),
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.content == nil {
		s.content = content.NewOptimizer(s.logger)
	}
	return s
}

func withEngineDefaults(cfg config.EngineConfig) config.EngineConfig {
	def := config.Default().Engine
	if cfg.ReoptimizeBelowScore <= 0 {
		cfg.ReoptimizeBelowScore = def.ReoptimizeBelowScore
	}
	if cfg.ScreenWidthDelta <= 0 {
		cfg.ScreenWidthDelta = def.ScreenWidthDelta
	}
	if cfg.InitRecommendations <= 0 {
		cfg.InitRecommendations = def.InitRecommendations
	}
	if cfg.MetricsRecommendations <= 0 {
		cfg.MetricsRecommendations = def.MetricsRecommendations
	}
	if cfg.RecentHistory <= 0 {
		cfg.RecentHistory = def.RecentHistory
	}
	if cfg.SweepFirstPaintMs <= 0 {
		cfg.SweepFirstPaintMs = def.SweepFirstPaintMs
	}
	if cfg.SweepBatteryUsage <= 0 {
		cfg.SweepBatteryUsage = def.SweepBatteryUsage
	}
	if cfg.SweepErrorRate <= 0 {
		cfg.SweepErrorRate = def.SweepErrorRate
	}
	if cfg.AggressiveFirstPaintMs <= 0 {
		cfg.AggressiveFirstPaintMs = def.AggressiveFirstPaintMs
	}
	return cfg
}

// TrendConfig converts the configured trend section.
func TrendConfig(c config.TrendConfig) trend.Config {
	out := trend.Config{
		BaselineWindow: c.BaselineWindow,
		RecentWindow:   c.RecentWindow,
		MinEntries:     c.MinEntries,
	}
	if len(c.Thresholds) > 0 {
		out.Thresholds = make(map[profile.MetricPath]float64, len(c.Thresholds))
		for k, v := range c.Thresholds {
			out.Thresholds[profile.MetricPath(k)] = v
		}
	}
	return out
}

// Store returns the backing profile store.
func (s *Service) Store() state.ProfileStore {
	return s.store
}

func (s *Service) load(ctx context.Context, op, subjectID string) (*profile.OptimizationProfile, error) {
	p, err := s.store.Get(ctx, subjectID)
	if err != nil {
		return nil, engerrors.WithSubject(err, op, subjectID)
	}
	return p, nil
}

func requireSubject(op, subjectID string) error {
	if subjectID == "" {
		return engerrors.InvalidInput(op, subjectID, "subject id is required", nil)
	}
	return nil
}

// Initialize creates the subject's profile with the one-time heuristics, or
// merges device info into an existing one.
func (s *Service) Initialize(ctx context.Context, subjectID string, device profile.DeviceInfoPatch) (*InitializeResult, error) {
	if err := requireSubject(opInitialize, subjectID); err != nil {
		return nil, err
	}
	if err := profile.ValidateDeviceInfoPatch(device); err != nil {
		return nil, engerrors.InvalidInput(opInitialize, subjectID, "invalid device info", err)
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	p, created, err := s.initialize(ctx, subjectID, device)
	if err != nil {
		return nil, err
	}

	score, status := scoring.Evaluate(p)
	s.metrics.RecordScore(score)
	return &InitializeResult{
		ProfileID:       p.SubjectID,
		Created:         created,
		Score:           score,
		Status:          status,
		Recommendations: recommend.Top(s.recommender.Generate(p), s.config.InitRecommendations),
	}, nil
}

func (s *Service) initialize(ctx context.Context, subjectID string, device profile.DeviceInfoPatch) (*profile.OptimizationProfile, bool, error) {
	existing, err := s.store.Get(ctx, subjectID)
	switch {
	case err == nil:
		return existing, false, s.mergeDevice(ctx, existing, device)
	case !engerrors.IsNotFound(err):
		return nil, false, engerrors.WithSubject(err, opInitialize, subjectID)
	}

	now := s.now()
	p := profile.New(subjectID, now)
	device.ApplyTo(&p.DeviceInfo)

	plan := optimizer.Initial(p)
	entry := s.apply(p, plan, actionInitial, profile.TriggerInitial, "profile created")
	p.OptimizationHistory = append(p.OptimizationHistory, entry)

	if err := s.store.Insert(ctx, p); err != nil {
		if !engerrors.IsConflict(err) {
			return nil, false, engerrors.WithSubject(err, opInitialize, subjectID)
		}
		// Another replica created it first.
		existing, err := s.load(ctx, opInitialize, subjectID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, s.mergeDevice(ctx, existing, device)
	}

	s.metrics.RecordOptimization(string(profile.TriggerInitial), plan.Rules)
	s.logger.Info("Profile initialized",
		zap.String("subject_id", subjectID),
		zap.Strings("rules", plan.Rules))
	return p, true, nil
}

func (s *Service) mergeDevice(ctx context.Context, p *profile.OptimizationProfile, device profile.DeviceInfoPatch) error {
	before := p.DeviceInfo
	device.ApplyTo(&p.DeviceInfo)
	if before == p.DeviceInfo {
		return nil
	}
	p.UpdatedAt = s.now()
	if err := s.store.Update(ctx, p); err != nil {
		return engerrors.WithSubject(err, opInitialize, p.SubjectID)
	}
	return nil
}

// GetStatus reports the subject's score and a settings summary.
func (s *Service) GetStatus(ctx context.Context, subjectID string) (*StatusResult, error) {
	if err := requireSubject(opGetStatus, subjectID); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, opGetStatus, subjectID)
	if err != nil {
		return nil, err
	}

	score, status := scoring.Evaluate(p)
	return &StatusResult{
		SubjectID:             p.SubjectID,
		Score:                 score,
		Status:                status,
		LastOptimizationCheck: p.LastOptimizationCheck,
		NeedsOptimization:     scoring.NeedsOptimization(score, p.LastOptimizationCheck, s.now()),
		Settings:              summarize(p),
		Metrics:               quickMetrics(p.PerformanceMetrics),
	}, nil
}

// UpdateDeviceInfo merges a partial device report and re-optimizes when the
// device changed significantly.
func (s *Service) UpdateDeviceInfo(ctx context.Context, subjectID string, device profile.DeviceInfoPatch) (*UpdateDeviceResult, error) {
	if err := requireSubject(opUpdateDevice, subjectID); err != nil {
		return nil, err
	}
	if err := profile.ValidateDeviceInfoPatch(device); err != nil {
		return nil, engerrors.InvalidInput(opUpdateDevice, subjectID, "invalid device info", err)
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	p, err := s.load(ctx, opUpdateDevice, subjectID)
	if err != nil {
		return nil, err
	}

	before := p.DeviceInfo
	device.ApplyTo(&p.DeviceInfo)
	p.UpdatedAt = s.now()

	result := &UpdateDeviceResult{Actions: []string{}}
	if s.deviceChanged(before, p.DeviceInfo) {
		plan := optimizer.Decide(p)
		if err := s.commit(ctx, opUpdateDevice, p, plan, actionAdaptive, profile.TriggerDeviceChange, "device changed"); err != nil {
			return nil, err
		}
		result.ReOptimized = true
		result.Actions = append(result.Actions, plan.Actions...)
	} else if err := s.store.Update(ctx, p); err != nil {
		return nil, engerrors.WithSubject(err, opUpdateDevice, subjectID)
	}

	result.Score, result.Status = scoring.Evaluate(p)
	result.Settings = summarize(p)
	return result, nil
}

func (s *Service) deviceChanged(before, after profile.DeviceInfo) bool {
	if before.DeviceType != after.DeviceType || before.OS != after.OS || before.ConnectionSpeed != after.ConnectionSpeed {
		return true
	}
	delta := after.ScreenWidth - before.ScreenWidth
	if delta < 0 {
		delta = -delta
	}
	return delta > s.config.ScreenWidthDelta
}

// RecordRawMetrics decodes a JSON metrics report and records it.
func (s *Service) RecordRawMetrics(ctx context.Context, subjectID string, raw []byte) (*RecordMetricsResult, error) {
	m, err := profile.DecodeMetrics(raw)
	if err != nil {
		return nil, engerrors.InvalidInput(opRecordMetrics, subjectID, "malformed metrics payload", err)
	}
	return s.RecordMetrics(ctx, subjectID, m)
}

// RecordMetrics merges a metrics report and re-optimizes when the resulting
// score drops below the configured floor.
func (s *Service) RecordMetrics(ctx context.Context, subjectID string, m profile.PerformanceMetrics) (*RecordMetricsResult, error) {
	if err := requireSubject(opRecordMetrics, subjectID); err != nil {
		return nil, err
	}
	if err := profile.ValidateMetrics(m); err != nil {
		return nil, engerrors.InvalidInput(opRecordMetrics, subjectID, "invalid metrics", err)
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	p, err := s.load(ctx, opRecordMetrics, subjectID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p.PerformanceMetrics.Merge(m)
	p.PerformanceMetrics.LastUpdated = now
	p.UpdatedAt = now

	result := &RecordMetricsResult{Actions: []string{}}
	score := scoring.Score(p.PerformanceMetrics)
	if score < s.config.ReoptimizeBelowScore {
		plan := optimizer.Decide(p)
		if err := s.commit(ctx, opRecordMetrics, p, plan, actionAdaptive, profile.TriggerMetrics, "score below threshold"); err != nil {
			return nil, err
		}
		result.ReOptimized = true
		result.Actions = append(result.Actions, plan.Actions...)
	} else if err := s.store.Update(ctx, p); err != nil {
		return nil, engerrors.WithSubject(err, opRecordMetrics, subjectID)
	}

	s.metrics.RecordScore(score)
	result.Score = score
	result.Status = scoring.StatusOf(score)
	result.Recommendations = recommend.Top(s.recommender.Generate(p), s.config.MetricsRecommendations)
	return result, nil
}

// ApplySettings merges a partial settings tree and records it as a manual
// change.
func (s *Service) ApplySettings(ctx context.Context, subjectID string, patch profile.SettingsPatch) (*ApplySettingsResult, error) {
	if err := requireSubject(opApplySettings, subjectID); err != nil {
		return nil, err
	}
	if err := profile.ValidateSettingsPatch(patch); err != nil {
		return nil, engerrors.InvalidInput(opApplySettings, subjectID, "invalid settings", err)
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	p, err := s.load(ctx, opApplySettings, subjectID)
	if err != nil {
		return nil, err
	}

	plan := optimizer.Plan{
		Actions: []string{"Applied user settings"},
		Patches: []profile.SettingsPatch{patch},
	}
	if err := s.commit(ctx, opApplySettings, p, plan, actionManual, profile.TriggerManual, "user request"); err != nil {
		return nil, err
	}

	return &ApplySettingsResult{
		Profile: p,
		Message: "Settings applied successfully",
	}, nil
}

// Optimize runs the adaptive rules now, regardless of the needs-optimization
// predicate.
func (s *Service) Optimize(ctx context.Context, subjectID string) (*OptimizeResult, error) {
	if err := requireSubject(opOptimize, subjectID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	p, err := s.load(ctx, opOptimize, subjectID)
	if err != nil {
		return nil, err
	}

	plan := optimizer.Decide(p)
	if err := s.commit(ctx, opOptimize, p, plan, actionAdaptive, profile.TriggerRequest, "explicit request"); err != nil {
		return nil, err
	}

	score, status := scoring.Evaluate(p)
	return &OptimizeResult{
		Rules:   nonNil(plan.Rules),
		Actions: nonNil(plan.Actions),
		Score:   score,
		Status:  status,
	}, nil
}

// GetRecommendations returns every matching recommendation, ranked.
func (s *Service) GetRecommendations(ctx context.Context, subjectID string) (*RecommendationsResult, error) {
	if err := requireSubject(opRecommendations, subjectID); err != nil {
		return nil, err
	}
	p, err := s.load(ctx, opRecommendations, subjectID)
	if err != nil {
		return nil, err
	}

	score, status := scoring.Evaluate(p)
	return &RecommendationsResult{
		Recommendations: s.recommender.Generate(p),
		Score:           score,
		Status:          status,
	}, nil
}

// GetOptimizedContent adapts payload to the subject's settings. It never
// fails: without a usable profile the payload is returned unchanged.
func (s *Service) GetOptimizedContent(ctx context.Context, subjectID, contentType string, payload map[string]interface{}) *ContentResult {
	p, err := s.store.Get(ctx, subjectID)
	if err != nil {
		s.logger.Warn("Serving unoptimized content",
			zap.String("subject_id", subjectID),
			zap.String("content_type", contentType),
			zap.Error(err))
		s.metrics.RecordContentTransform(contentType, true)
		return &ContentResult{Payload: payload, Optimizations: []string{}}
	}

	res := s.content.Optimize(p, contentType, content.Payload(payload))
	s.metrics.RecordContentTransform(contentType, res.Err != nil)
	return &ContentResult{
		Payload:       map[string]interface{}(res.Payload),
		Optimizations: res.Optimizations,
	}
}

// SubmitFeedback stores the ratings and optional comment.
func (s *Service) SubmitFeedback(ctx context.Context, subjectID string, sub profile.FeedbackSubmission) (*FeedbackResult, error) {
	if err := requireSubject(opSubmitFeedback, subjectID); err != nil {
		return nil, err
	}
	if err := profile.ValidateFeedback(sub); err != nil {
		return nil, engerrors.InvalidInput(opSubmitFeedback, subjectID, "invalid feedback", err)
	}

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	p, err := s.load(ctx, opSubmitFeedback, subjectID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p.ApplyFeedback(sub, now)

	var comment *profile.FeedbackComment
	if sub.Comment != "" {
		comment = &profile.FeedbackComment{Text: sub.Comment, SubmittedAt: now}
	}
	if err := s.store.SaveFeedback(ctx, subjectID, p.Feedback, comment); err != nil {
		return nil, engerrors.WithSubject(err, opSubmitFeedback, subjectID)
	}

	ratings := sub.Ratings()
	total := 0
	for _, r := range ratings {
		total += r
	}
	return &FeedbackResult{
		AverageRating: float64(total) / float64(len(ratings)),
		SubmittedAt:   now,
	}, nil
}

// apply mutates p with plan and returns the history entry describing it. The
// caller persists both.
func (s *Service) apply(p *profile.OptimizationProfile, plan optimizer.Plan, action string, trigger profile.Trigger, reason string) profile.HistoryEntry {
	score := scoring.Score(p.PerformanceMetrics)
	before := profile.NewImpactSnapshot(p.PerformanceMetrics, score)

	snapshot := plan.Apply(p)

	now := s.now()
	entry := profile.NewHistoryEntry(now, action, trigger, reason)
	entry.Actions = append(entry.Actions, plan.Actions...)
	entry.Settings = snapshot
	entry.PerformanceImpact = profile.PerformanceImpact{
		Before: before,
		After:  profile.NewImpactSnapshot(p.PerformanceMetrics, scoring.Score(p.PerformanceMetrics)),
	}

	p.MarkChecked(now)
	p.UpdatedAt = now
	return entry
}

// commit applies plan to an existing profile and persists the settings
// together with exactly one history entry. On failure nothing is stored, so a
// retry re-derives the same plan.
func (s *Service) commit(ctx context.Context, op string, p *profile.OptimizationProfile, plan optimizer.Plan, action string, trigger profile.Trigger, reason string) (err error) {
	ctx, span := s.tracer.Start(ctx, "engine.commit", trace.WithAttributes(
		attribute.String("subject_id", p.SubjectID),
		attribute.String("operation", op),
		attribute.String("trigger", string(trigger)),
		attribute.StringSlice("rules", plan.Rules),
	))
	defer func() { endSpan(span, err) }()

	entry := s.apply(p, plan, action, trigger, reason)

	if err := s.store.UpdateWithHistory(ctx, p, entry); err != nil {
		return engerrors.WithSubject(err, op, p.SubjectID)
	}
	p.OptimizationHistory = append(p.OptimizationHistory, entry)

	s.metrics.RecordOptimization(string(trigger), plan.Rules)
	s.logger.Debug("Optimization applied",
		zap.String("subject_id", p.SubjectID),
		zap.String("trigger", string(trigger)),
		zap.Strings("rules", plan.Rules),
		zap.Int("changes", len(plan.Patches)))
	return nil
}

func summarize(p *profile.OptimizationProfile) SettingsSummary {
	ps := p.PerformanceSettings
	return SettingsSummary{
		CompressionLevel:      ps.Image.CompressionLevel,
		LazyLoading:           ps.Image.EnableLazyLoading,
		Minification:          ps.Content.EnableMinification,
		ProgressiveLoading:    ps.Loading.EnableProgressiveLoading,
		BatterySaver:          ps.Battery.EnableBatterySaver,
		ReduceAnimations:      ps.Battery.ReduceAnimations,
		DataSaver:             p.AdaptiveBehavior.Bandwidth.DataSaver,
		BottomNavigation:      p.UXSettings.Navigation.UseBottomNavigation,
		OfflineReading:        p.MobileFeatures.OfflineCapabilities.EnableOfflineReading,
		NotificationFrequency: p.UXSettings.Notifications.Frequency,
	}
}

func quickMetrics(m profile.PerformanceMetrics) QuickMetrics {
	return QuickMetrics{
		FirstContentfulPaint: optional(m.FCP()),
		TimeToInteractive:    optional(m.TTI()),
		BatteryUsage:         optional(m.BatteryUsage()),
		MemoryUsage:          optional(m.MemoryUsage()),
		ErrorRate:            optional(m.ErrorRate()),
	}
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
