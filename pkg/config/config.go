package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// OPTIMIZER_STORAGE_TYPE=mongo.
const EnvPrefix = "OPTIMIZER"

func LoadConfig(configPath string) (*OptimizerConfig, error) {
	v := viper.New()
	SetDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		if !filepath.IsAbs(configPath) {
			wd, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("failed to get working directory: %w", err)
			}
			configPath = filepath.Join(wd, configPath)
		}

		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file does not exist: %s", configPath)
		}

		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read configuration file %s: %w", configPath, err)
		}
	}

	var config OptimizerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := NewEnvSubstituter().SubstituteConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration produced with no file and no environment.
func Default() *OptimizerConfig {
	v := viper.New()
	SetDefaults(v)

	var config OptimizerConfig
	// Defaults always decode.
	_ = v.Unmarshal(&config)
	return &config
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine.reoptimize_below_score", 60)
	v.SetDefault("engine.screen_width_delta", 200)
	v.SetDefault("engine.init_recommendations", 3)
	v.SetDefault("engine.metrics_recommendations", 5)
	v.SetDefault("engine.recent_history", 10)
	v.SetDefault("engine.sweep_first_paint_ms", 3000.0)
	v.SetDefault("engine.sweep_battery_usage", 15.0)
	v.SetDefault("engine.sweep_error_rate", 10.0)
	v.SetDefault("engine.aggressive_first_paint_ms", 5000.0)

	v.SetDefault("trend.baseline_window", 2)
	v.SetDefault("trend.recent_window", 3)
	v.SetDefault("trend.min_entries", 2)
	v.SetDefault("trend.thresholds.score", 5.0)
	v.SetDefault("trend.thresholds.battery_usage", 2.0)
	v.SetDefault("trend.thresholds.first_contentful_paint", 500.0)
	v.SetDefault("trend.thresholds.time_to_interactive", 500.0)
	v.SetDefault("trend.thresholds.memory_usage", 10.0)
	v.SetDefault("trend.thresholds.error_rate", 1.0)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.optimization.enabled", true)
	v.SetDefault("scheduler.optimization.schedule", "@every 1h")
	v.SetDefault("scheduler.optimization.jitter", 30*time.Second)
	v.SetDefault("scheduler.optimization.timeout", 30*time.Minute)
	v.SetDefault("scheduler.global_stats.enabled", true)
	v.SetDefault("scheduler.global_stats.schedule", "@every 30m")
	v.SetDefault("scheduler.global_stats.jitter", 10*time.Second)
	v.SetDefault("scheduler.global_stats.timeout", 10*time.Minute)
	v.SetDefault("scheduler.aggressive.enabled", true)
	v.SetDefault("scheduler.aggressive.schedule", "@every 15m")
	v.SetDefault("scheduler.aggressive.jitter", 10*time.Second)
	v.SetDefault("scheduler.aggressive.timeout", 10*time.Minute)
	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.queue_size", 100)
	v.SetDefault("scheduler.max_retries", 2)
	v.SetDefault("scheduler.retry_delay", 500*time.Millisecond)
	v.SetDefault("scheduler.rate_limit.requests_per_second", 50.0)
	v.SetDefault("scheduler.rate_limit.burst_size", 10)
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.file.path", "./data/profiles.json")
	v.SetDefault("storage.file.compression", false)
	v.SetDefault("storage.file.create_backups", true)
	v.SetDefault("storage.file.max_backups", 5)
	v.SetDefault("storage.file.sync_writes", true)
	v.SetDefault("storage.file.auto_save_interval", 30*time.Second)
	v.SetDefault("storage.mongo.uri", "")
	v.SetDefault("storage.mongo.database", "client_optimizer")
	v.SetDefault("storage.mongo.collection", "optimization_profiles")
	v.SetDefault("storage.mongo.connect_timeout", 10*time.Second)
	v.SetDefault("storage.circuit_breaker.enabled", true)
	v.SetDefault("storage.circuit_breaker.max_requests", 3)
	v.SetDefault("storage.circuit_breaker.interval", 60*time.Second)
	v.SetDefault("storage.circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("storage.circuit_breaker.min_requests", 5)
	v.SetDefault("storage.circuit_breaker.failure_threshold", 0.6)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.key_prefix", "client-optimizer")
	v.SetDefault("redis.stats_ttl", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", []string{"stdout"})
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.sanitize_fields", []string{"password", "token", "secret", "uri"})
	v.SetDefault("logging.correlation_id.enabled", true)
	v.SetDefault("logging.correlation_id.header", "X-Correlation-ID")
	v.SetDefault("logging.correlation_id.field_name", "correlation_id")

	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.path", "/metrics")
	v.SetDefault("monitoring.prometheus.namespace", "client_optimizer")
	v.SetDefault("monitoring.health.enabled", true)
	v.SetDefault("monitoring.health.path", "/health")
	v.SetDefault("monitoring.health.ready_path", "/ready")
	v.SetDefault("monitoring.health.live_path", "/live")
	v.SetDefault("monitoring.health.check_timeout", 5*time.Second)
	v.SetDefault("monitoring.stats_path", "/stats")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
}
