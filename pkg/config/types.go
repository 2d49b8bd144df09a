package config

import (
	"time"
)

type OptimizerConfig struct {
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine" json:"engine"`
	Trend      TrendConfig      `mapstructure:"trend" yaml:"trend" json:"trend"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage" json:"storage"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis" json:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging" json:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring" json:"monitoring"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
}

// EngineConfig holds the lifecycle thresholds.
type EngineConfig struct {
	ReoptimizeBelowScore   int     `mapstructure:"reoptimize_below_score" yaml:"reoptimize_below_score" json:"reoptimize_below_score"`
	ScreenWidthDelta       int     `mapstructure:"screen_width_delta" yaml:"screen_width_delta" json:"screen_width_delta"`
	InitRecommendations    int     `mapstructure:"init_recommendations" yaml:"init_recommendations" json:"init_recommendations"`
	MetricsRecommendations int     `mapstructure:"metrics_recommendations" yaml:"metrics_recommendations" json:"metrics_recommendations"`
	RecentHistory          int     `mapstructure:"recent_history" yaml:"recent_history" json:"recent_history"`
	SweepFirstPaintMs      float64 `mapstructure:"sweep_first_paint_ms" yaml:"sweep_first_paint_ms" json:"sweep_first_paint_ms"`
	SweepBatteryUsage      float64 `mapstructure:"sweep_battery_usage" yaml:"sweep_battery_usage" json:"sweep_battery_usage"`
	SweepErrorRate         float64 `mapstructure:"sweep_error_rate" yaml:"sweep_error_rate" json:"sweep_error_rate"`
	AggressiveFirstPaintMs float64 `mapstructure:"aggressive_first_paint_ms" yaml:"aggressive_first_paint_ms" json:"aggressive_first_paint_ms"`
}

type TrendConfig struct {
	BaselineWindow int                `mapstructure:"baseline_window" yaml:"baseline_window" json:"baseline_window"`
	RecentWindow   int                `mapstructure:"recent_window" yaml:"recent_window" json:"recent_window"`
	MinEntries     int                `mapstructure:"min_entries" yaml:"min_entries" json:"min_entries"`
	Thresholds     map[string]float64 `mapstructure:"thresholds" yaml:"thresholds" json:"thresholds"`
}

type SchedulerConfig struct {
	Enabled      bool            `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Optimization SweepConfig     `mapstructure:"optimization" yaml:"optimization" json:"optimization"`
	GlobalStats  SweepConfig     `mapstructure:"global_stats" yaml:"global_stats" json:"global_stats"`
	Aggressive   SweepConfig     `mapstructure:"aggressive" yaml:"aggressive" json:"aggressive"`
	Workers      int             `mapstructure:"workers" yaml:"workers" json:"workers"`
	QueueSize    int             `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	MaxRetries   int             `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
	RetryDelay   time.Duration   `mapstructure:"retry_delay" yaml:"retry_delay" json:"retry_delay"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	LockTTL      time.Duration   `mapstructure:"lock_ttl" yaml:"lock_ttl" json:"lock_ttl"`
}

// SweepConfig schedules one background sweep. Schedule accepts cron
// expressions and descriptors such as "@every 1h".
type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Schedule string        `mapstructure:"schedule" yaml:"schedule" json:"schedule"`
	Jitter   time.Duration `mapstructure:"jitter" yaml:"jitter" json:"jitter"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size" yaml:"burst_size" json:"burst_size"`
}

type StorageConfig struct {
	Type           string               `mapstructure:"type" yaml:"type" json:"type"` // "memory", "file", "mongo"
	File           FileStorageConfig    `mapstructure:"file" yaml:"file" json:"file"`
	Mongo          MongoConfig          `mapstructure:"mongo" yaml:"mongo" json:"mongo"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker" json:"circuit_breaker"`
}

type FileStorageConfig struct {
	Path             string        `mapstructure:"path" yaml:"path" json:"path"`
	Compression      bool          `mapstructure:"compression" yaml:"compression" json:"compression"`
	CreateBackups    bool          `mapstructure:"create_backups" yaml:"create_backups" json:"create_backups"`
	MaxBackups       int           `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	SyncWrites       bool          `mapstructure:"sync_writes" yaml:"sync_writes" json:"sync_writes"`
	AutoSaveInterval time.Duration `mapstructure:"auto_save_interval" yaml:"auto_save_interval" json:"auto_save_interval"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri" yaml:"uri" json:"uri"`
	Database       string        `mapstructure:"database" yaml:"database" json:"database"`
	Collection     string        `mapstructure:"collection" yaml:"collection" json:"collection"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MaxRequests      uint32        `mapstructure:"max_requests" yaml:"max_requests" json:"max_requests"`
	Interval         time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	MinRequests      uint32        `mapstructure:"min_requests" yaml:"min_requests" json:"min_requests"`
	FailureThreshold float64       `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address      string        `mapstructure:"address" yaml:"address" json:"address"`
	Password     string        `mapstructure:"password" yaml:"password" json:"password"`
	DB           int           `mapstructure:"db" yaml:"db" json:"db"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
	StatsTTL     time.Duration `mapstructure:"stats_ttl" yaml:"stats_ttl" json:"stats_ttl"`
}

type LoggingConfig struct {
	Level          string              `mapstructure:"level" yaml:"level" json:"level"`
	Format         string              `mapstructure:"format" yaml:"format" json:"format"` // "json", "console"
	Output         []string            `mapstructure:"output" yaml:"output" json:"output"` // "stdout", "stderr", "file"
	FilePath       string              `mapstructure:"file_path" yaml:"file_path" json:"file_path"`
	MaxSize        int                 `mapstructure:"max_size" yaml:"max_size" json:"max_size"` // MB
	MaxBackups     int                 `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge         int                 `mapstructure:"max_age" yaml:"max_age" json:"max_age"` // days
	Compress       bool                `mapstructure:"compress" yaml:"compress" json:"compress"`
	SanitizeFields []string            `mapstructure:"sanitize_fields" yaml:"sanitize_fields" json:"sanitize_fields"`
	CorrelationID  CorrelationIDConfig `mapstructure:"correlation_id" yaml:"correlation_id" json:"correlation_id"`
}

type CorrelationIDConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Header    string `mapstructure:"header" yaml:"header" json:"header"`
	FieldName string `mapstructure:"field_name" yaml:"field_name" json:"field_name"`
}

type MonitoringConfig struct {
	Enabled    bool             `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus" json:"prometheus"`
	Health     HealthConfig     `mapstructure:"health" yaml:"health" json:"health"`
	StatsPath  string           `mapstructure:"stats_path" yaml:"stats_path" json:"stats_path"`
}

type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path      string `mapstructure:"path" yaml:"path" json:"path"`
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
}

type HealthConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path         string        `mapstructure:"path" yaml:"path" json:"path"`
	ReadyPath    string        `mapstructure:"ready_path" yaml:"ready_path" json:"ready_path"`
	LivePath     string        `mapstructure:"live_path" yaml:"live_path" json:"live_path"`
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout" json:"check_timeout"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
}
