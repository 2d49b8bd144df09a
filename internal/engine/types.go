package engine

import (
	"context"
	"time"

	"client-optimizer/pkg/profile"
	"client-optimizer/pkg/recommend"
	"client-optimizer/pkg/scoring"
	"client-optimizer/pkg/trend"
)

// Sweep names, also used as metric labels and lock names.
const (
	SweepOptimization = "optimization"
	SweepGlobalStats  = "global_stats"
	SweepAggressive   = "aggressive"
)

// InitializeResult is returned by Service.Initialize.
type InitializeResult struct {
	ProfileID       string                     `json:"profileId"`
	Created         bool                       `json:"created"`
	Score           int                        `json:"score"`
	Status          scoring.Status             `json:"status"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// SettingsSummary is the compact view of the settings most clients care about.
type SettingsSummary struct {
	CompressionLevel      profile.CompressionLevel      `json:"compressionLevel"`
	LazyLoading           bool                          `json:"lazyLoading"`
	Minification          bool                          `json:"minification"`
	ProgressiveLoading    bool                          `json:"progressiveLoading"`
	BatterySaver          bool                          `json:"batterySaver"`
	ReduceAnimations      bool                          `json:"reduceAnimations"`
	DataSaver             bool                          `json:"dataSaver"`
	BottomNavigation      bool                          `json:"bottomNavigation"`
	OfflineReading        bool                          `json:"offlineReading"`
	NotificationFrequency profile.NotificationFrequency `json:"notificationFrequency"`
}

// QuickMetrics holds the headline metrics; nil means not reported.
type QuickMetrics struct {
	FirstContentfulPaint *float64 `json:"firstContentfulPaint,omitempty"`
	TimeToInteractive    *float64 `json:"timeToInteractive,omitempty"`
	BatteryUsage         *float64 `json:"batteryUsage,omitempty"`
	MemoryUsage          *float64 `json:"memoryUsage,omitempty"`
	ErrorRate            *float64 `json:"errorRate,omitempty"`
}

type StatusResult struct {
	SubjectID             string          `json:"subjectId"`
	Score                 int             `json:"score"`
	Status                scoring.Status  `json:"status"`
	LastOptimizationCheck time.Time       `json:"lastOptimizationCheck"`
	NeedsOptimization     bool            `json:"needsOptimization"`
	Settings              SettingsSummary `json:"settings"`
	Metrics               QuickMetrics    `json:"metrics"`
}

type UpdateDeviceResult struct {
	ReOptimized bool            `json:"reOptimized"`
	Actions     []string        `json:"actions"`
	Score       int             `json:"score"`
	Status      scoring.Status  `json:"status"`
	Settings    SettingsSummary `json:"settings"`
}

type RecordMetricsResult struct {
	Score           int                        `json:"score"`
	Status          scoring.Status             `json:"status"`
	ReOptimized     bool                       `json:"reOptimized"`
	Actions         []string                   `json:"actions"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// ContentResult always carries a payload; on any failure it is the input.
type ContentResult struct {
	Payload       map[string]interface{} `json:"payload"`
	Optimizations []string               `json:"optimizations"`
}

type AnalyticsResult struct {
	Period          string                                 `json:"period"`
	Score           int                                    `json:"score"`
	Status          scoring.Status                         `json:"status"`
	Trends          map[profile.MetricPath]trend.Direction `json:"trends"`
	RecentHistory   []profile.HistoryEntry                 `json:"recentHistory"`
	Recommendations []recommend.Recommendation             `json:"recommendations"`
	Settings        SettingsSummary                        `json:"settings"`
}

type ApplySettingsResult struct {
	Profile *profile.OptimizationProfile `json:"profile"`
	Message string                       `json:"message"`
}

type RecommendationsResult struct {
	Recommendations []recommend.Recommendation `json:"recommendations"`
	Score           int                        `json:"score"`
	Status          scoring.Status             `json:"status"`
}

type FeedbackResult struct {
	AverageRating float64   `json:"averageRating"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// OptimizeResult is returned by an explicit optimization request.
type OptimizeResult struct {
	Rules   []string       `json:"rules"`
	Actions []string       `json:"actions"`
	Score   int            `json:"score"`
	Status  scoring.Status `json:"status"`
}

// PopulationStats aggregates every stored profile. Averages only include
// profiles that reported the metric.
type PopulationStats struct {
	Profiles          int                    `json:"profiles"`
	AverageScore      float64                `json:"averageScore"`
	ByStatus          map[scoring.Status]int `json:"byStatus"`
	NeedsOptimization int                    `json:"needsOptimization"`
	AverageMetrics    map[string]float64     `json:"averageMetrics"`
	ComputedAt        time.Time              `json:"computedAt"`
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Sweep     string        `json:"sweep"`
	Selected  int           `json:"selected"`
	Optimized int           `json:"optimized"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"startedAt"`
}

// SweepFunc runs one sweep to completion.
type SweepFunc func(ctx context.Context) (*SweepReport, error)

// Locker guards a sweep across replicas. cache.RedisLocker implements it.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// SnapshotStore keeps the latest population stats for other replicas.
// cache.SnapshotCache implements it.
type SnapshotStore interface {
	Put(ctx context.Context, name string, v interface{}) error
	Get(ctx context.Context, name string, out interface{}) (bool, error)
}

// Job is one unit of sweep work for a single subject.
type Job struct {
	ID          string
	Sweep       string
	SubjectID   string
	Run         func(ctx context.Context) error
	ScheduledAt time.Time
	Timeout     time.Duration
	RetryCount  int

	done func(error)
}

// WorkerPoolConfig defines configuration for the worker pool
type WorkerPoolConfig struct {
	Size            int
	QueueSize       int
	MaxRetries      int
	RetryInterval   time.Duration
	GracefulTimeout time.Duration
	RateLimit       RateLimitConfig
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	Timeout           time.Duration
}

// WorkerPool runs sweep jobs concurrently
type WorkerPool interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Submit(ctx context.Context, job *Job) error
	GetStats() WorkerPoolStats
	Resize(size int) error
}

// WorkerPoolStats contains statistics about the worker pool
type WorkerPoolStats struct {
	Size                  int           `json:"size"`
	ActiveWorkers         int           `json:"activeWorkers"`
	QueuedJobs            int           `json:"queuedJobs"`
	CompletedJobs         int           `json:"completedJobs"`
	FailedJobs            int           `json:"failedJobs"`
	RetriedJobs           int           `json:"retriedJobs"`
	AverageWaitTime       time.Duration `json:"averageWaitTime"`
	AverageProcessingTime time.Duration `json:"averageProcessingTime"`
}

// SchedulerStats describes one sweep's schedule and outcomes.
type SchedulerStats struct {
	Sweep         string       `json:"sweep"`
	Schedule      string       `json:"schedule"`
	Running       bool         `json:"running"`
	CompletedRuns int64        `json:"completedRuns"`
	FailedRuns    int64        `json:"failedRuns"`
	SkippedRuns   int64        `json:"skippedRuns"`
	LastRunTime   time.Time    `json:"lastRunTime"`
	NextRunTime   time.Time    `json:"nextRunTime"`
	LastReport    *SweepReport `json:"lastReport,omitempty"`
}
