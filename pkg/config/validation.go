package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; "))
}

func (e *ValidationErrors) add(field, format string, args ...interface{}) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func ValidateConfig(config *OptimizerConfig) error {
	var errors ValidationErrors

	validateEngineConfig(&config.Engine, &errors)
	validateTrendConfig(&config.Trend, &errors)
	validateSchedulerConfig(&config.Scheduler, &errors)
	validateStorageConfig(&config.Storage, &errors)
	validateRedisConfig(&config.Redis, &errors)
	validateLoggingConfig(&config.Logging, &errors)
	validateMonitoringConfig(&config.Monitoring, &errors)
	validateServerConfig(&config.Server, &errors)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func validateEngineConfig(config *EngineConfig, errors *ValidationErrors) {
	if config.ReoptimizeBelowScore < 0 || config.ReoptimizeBelowScore > 100 {
		errors.add("engine.reoptimize_below_score", "must be between 0 and 100")
	}
	if config.ScreenWidthDelta < 0 {
		errors.add("engine.screen_width_delta", "must be 0 or greater")
	}
	if config.InitRecommendations <= 0 {
		errors.add("engine.init_recommendations", "must be greater than 0")
	}
	if config.MetricsRecommendations <= 0 {
		errors.add("engine.metrics_recommendations", "must be greater than 0")
	}
	if config.RecentHistory <= 0 {
		errors.add("engine.recent_history", "must be greater than 0")
	}
	if config.SweepFirstPaintMs <= 0 || config.AggressiveFirstPaintMs <= 0 {
		errors.add("engine.sweep_first_paint_ms", "first paint thresholds must be greater than 0")
	}
	if config.AggressiveFirstPaintMs < config.SweepFirstPaintMs {
		errors.add("engine.aggressive_first_paint_ms", "must not be lower than sweep_first_paint_ms")
	}
}

var trendPaths = map[string]bool{
	"score":                  true,
	"first_contentful_paint": true,
	"time_to_interactive":    true,
	"battery_usage":          true,
	"memory_usage":           true,
	"error_rate":             true,
}

func validateTrendConfig(config *TrendConfig, errors *ValidationErrors) {
	if config.BaselineWindow <= 0 {
		errors.add("trend.baseline_window", "must be greater than 0")
	}
	if config.RecentWindow <= 0 {
		errors.add("trend.recent_window", "must be greater than 0")
	}
	if config.MinEntries < 1 {
		errors.add("trend.min_entries", "must be at least 1")
	}
	for path, threshold := range config.Thresholds {
		if !trendPaths[path] {
			errors.add("trend.thresholds", "unknown metric path '%s'", path)
		}
		if threshold < 0 {
			errors.add("trend.thresholds."+path, "must be 0 or greater")
		}
	}
}

func validateSchedulerConfig(config *SchedulerConfig, errors *ValidationErrors) {
	sweeps := map[string]SweepConfig{
		"optimization": config.Optimization,
		"global_stats": config.GlobalStats,
		"aggressive":   config.Aggressive,
	}
	for name, sweep := range sweeps {
		field := "scheduler." + name
		if !sweep.Enabled {
			continue
		}
		if _, err := ParseSchedule(sweep.Schedule); err != nil {
			errors.add(field+".schedule", "invalid schedule %q: %v", sweep.Schedule, err)
		}
		if sweep.Jitter < 0 {
			errors.add(field+".jitter", "must be 0 or greater")
		}
		if sweep.Timeout < 0 {
			errors.add(field+".timeout", "must be 0 or greater")
		}
	}

	if config.Workers <= 0 {
		errors.add("scheduler.workers", "must be greater than 0")
	}
	if config.QueueSize <= 0 {
		errors.add("scheduler.queue_size", "must be greater than 0")
	}
	if config.MaxRetries < 0 {
		errors.add("scheduler.max_retries", "must be 0 or greater")
	}
	if config.RateLimit.RequestsPerSecond < 0 {
		errors.add("scheduler.rate_limit.requests_per_second", "must be 0 or greater")
	}
	if config.RateLimit.RequestsPerSecond > 0 && config.RateLimit.BurstSize <= 0 {
		errors.add("scheduler.rate_limit.burst_size", "must be greater than 0 when rate limiting is enabled")
	}
}

// ParseSchedule accepts standard five-field cron expressions and
// descriptors such as "@hourly" or "@every 15m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("schedule is empty")
	}
	return cron.ParseStandard(spec)
}

func validateStorageConfig(config *StorageConfig, errors *ValidationErrors) {
	switch config.Type {
	case "memory":
	case "file":
		if config.File.Path == "" {
			errors.add("storage.file.path", "path is required for file storage")
		}
		if config.File.MaxBackups < 0 {
			errors.add("storage.file.max_backups", "must be 0 or greater")
		}
	case "mongo":
		if config.Mongo.URI == "" {
			errors.add("storage.mongo.uri", "uri is required for mongo storage")
		} else if !strings.HasPrefix(config.Mongo.URI, "mongodb://") && !strings.HasPrefix(config.Mongo.URI, "mongodb+srv://") {
			errors.add("storage.mongo.uri", "uri must use the mongodb:// or mongodb+srv:// scheme")
		}
		if config.Mongo.Database == "" {
			errors.add("storage.mongo.database", "database is required for mongo storage")
		}
		if config.Mongo.Collection == "" {
			errors.add("storage.mongo.collection", "collection is required for mongo storage")
		}
	default:
		errors.add("storage.type", "type must be one of: memory, file, mongo")
	}

	cb := config.CircuitBreaker
	if cb.Enabled {
		if cb.FailureThreshold <= 0 || cb.FailureThreshold > 1 {
			errors.add("storage.circuit_breaker.failure_threshold", "must be in (0, 1]")
		}
		if cb.Timeout <= 0 {
			errors.add("storage.circuit_breaker.timeout", "must be greater than 0")
		}
	}
}

func validateRedisConfig(config *RedisConfig, errors *ValidationErrors) {
	if !config.Enabled {
		return
	}
	if config.Address == "" {
		errors.add("redis.address", "address is required when redis is enabled")
	}
	if config.DB < 0 {
		errors.add("redis.db", "must be 0 or greater")
	}
	if config.PoolSize < 0 {
		errors.add("redis.pool_size", "must be 0 or greater")
	}
	if config.StatsTTL <= 0 {
		errors.add("redis.stats_ttl", "must be greater than 0")
	}
}

func validateLoggingConfig(config *LoggingConfig, errors *ValidationErrors) {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLevels[strings.ToLower(config.Level)] {
		errors.add("logging.level", "level must be one of: debug, info, warn, error, fatal")
	}

	if config.Format != "json" && config.Format != "console" {
		errors.add("logging.format", "format must be one of: json, console")
	}

	if len(config.Output) == 0 {
		errors.add("logging.output", "at least one output must be specified")
	}

	hasFileOutput := false
	for _, output := range config.Output {
		switch output {
		case "stdout", "stderr":
		case "file":
			hasFileOutput = true
		default:
			errors.add("logging.output", "invalid output '%s': must be one of stdout, stderr, file", output)
		}
	}

	if hasFileOutput && config.FilePath == "" {
		errors.add("logging.file_path", "file_path is required when file output is specified")
	}
	if config.MaxSize <= 0 {
		errors.add("logging.max_size", "max_size must be greater than 0")
	}
	if config.MaxBackups < 0 {
		errors.add("logging.max_backups", "max_backups must be 0 or greater")
	}
	if config.MaxAge < 0 {
		errors.add("logging.max_age", "max_age must be 0 or greater")
	}
	if config.CorrelationID.Enabled && config.CorrelationID.Header == "" {
		errors.add("logging.correlation_id.header", "header is required when correlation IDs are enabled")
	}
}

func validateMonitoringConfig(config *MonitoringConfig, errors *ValidationErrors) {
	if !config.Enabled {
		return
	}

	paths := map[string]string{}
	check := func(field, path string) {
		if !strings.HasPrefix(path, "/") {
			errors.add(field, "path must start with '/'")
			return
		}
		if other, dup := paths[path]; dup {
			errors.add(field, "path %s is already used by %s", path, other)
		}
		paths[path] = field
	}

	if config.Prometheus.Enabled {
		check("monitoring.prometheus.path", config.Prometheus.Path)
	}
	if config.Health.Enabled {
		check("monitoring.health.path", config.Health.Path)
		check("monitoring.health.ready_path", config.Health.ReadyPath)
		check("monitoring.health.live_path", config.Health.LivePath)
	}
	if config.StatsPath != "" {
		check("monitoring.stats_path", config.StatsPath)
	}
}

func validateServerConfig(config *ServerConfig, errors *ValidationErrors) {
	if config.Port <= 0 || config.Port > 65535 {
		errors.add("server.port", "port must be between 1 and 65535")
	}
	if config.ReadTimeout < 0 || config.WriteTimeout < 0 || config.IdleTimeout < 0 {
		errors.add("server", "timeouts must be 0 or greater")
	}
	if config.ShutdownTimeout <= 0 {
		errors.add("server.shutdown_timeout", "must be greater than 0")
	}
}
