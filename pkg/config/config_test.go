package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "optimizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "@every 1h", cfg.Scheduler.Optimization.Schedule)
	assert.Equal(t, "@every 30m", cfg.Scheduler.GlobalStats.Schedule)
	assert.Equal(t, "@every 15m", cfg.Scheduler.Aggressive.Schedule)
	assert.Equal(t, 60, cfg.Engine.ReoptimizeBelowScore)
	assert.Equal(t, 200, cfg.Engine.ScreenWidthDelta)
	assert.Equal(t, 500.0, cfg.Trend.Thresholds["first_contentful_paint"])
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  type: file
  file:
    path: /tmp/profiles.json
scheduler:
  optimization:
    schedule: "*/10 * * * *"
  workers: 8
trend:
  thresholds:
    score: 3
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "/tmp/profiles.json", cfg.Storage.File.Path)
	assert.Equal(t, "*/10 * * * *", cfg.Scheduler.Optimization.Schedule)
	assert.Equal(t, 8, cfg.Scheduler.Workers)
	assert.Equal(t, 3.0, cfg.Trend.Thresholds["score"])
	assert.Equal(t, "@every 30m", cfg.Scheduler.GlobalStats.Schedule, "unset keys keep defaults")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPTIMIZER_STORAGE_TYPE", "mongo")
	t.Setenv("OPTIMIZER_STORAGE_MONGO_URI", "mongodb://localhost:27017")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.Storage.Type)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.Mongo.URI)
}

func TestEnvSubstitution(t *testing.T) {
	env := map[string]string{"MONGO_HOST": "db.internal"}
	es := NewEnvSubstituter(WithLookup(func(k string) string { return env[k] }))

	assert.Equal(t, "mongodb://db.internal:27017", es.Substitute("mongodb://${MONGO_HOST}:27017"))
	assert.Equal(t, "fallback", es.Substitute("${MISSING:-fallback}"))
	assert.Equal(t, "db.internal/x", es.Substitute("$MONGO_HOST/x"))
	assert.Equal(t, "$UNSET", es.Substitute("$UNSET"))
	assert.Equal(t, []string{"A"}, RequiredEnvVars("${A} ${B:-b}"))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OptimizerConfig)
		field  string
	}{
		{"bad storage type", func(c *OptimizerConfig) { c.Storage.Type = "etcd" }, "storage.type"},
		{"mongo without uri", func(c *OptimizerConfig) { c.Storage.Type = "mongo" }, "storage.mongo.uri"},
		{"bad schedule", func(c *OptimizerConfig) { c.Scheduler.Aggressive.Schedule = "every so often" }, "scheduler.aggressive.schedule"},
		{"no workers", func(c *OptimizerConfig) { c.Scheduler.Workers = 0 }, "scheduler.workers"},
		{"unknown trend path", func(c *OptimizerConfig) { c.Trend.Thresholds["fps"] = 1 }, "trend.thresholds"},
		{"redis without address", func(c *OptimizerConfig) { c.Redis.Enabled = true; c.Redis.Address = "" }, "redis.address"},
		{"file output without path", func(c *OptimizerConfig) { c.Logging.Output = []string{"file"} }, "logging.file_path"},
		{"duplicate paths", func(c *OptimizerConfig) { c.Monitoring.StatsPath = "/health" }, "monitoring.stats_path"},
		{"bad port", func(c *OptimizerConfig) { c.Server.Port = 70000 }, "server.port"},
		{"inverted first paint thresholds", func(c *OptimizerConfig) { c.Engine.AggressiveFirstPaintMs = 1000 }, "engine.aggressive_first_paint_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			fields := make([]string, 0, len(verrs))
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestParseSchedule(t *testing.T) {
	for _, spec := range []string{"@every 1h", "@hourly", "*/15 * * * *"} {
		_, err := ParseSchedule(spec)
		assert.NoError(t, err, spec)
	}
	_, err := ParseSchedule("")
	assert.Error(t, err)
}

func TestExportMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Redis.Password = "hunter2"
	cfg.Storage.Mongo.URI = "mongodb://user:pw@db:27017"

	data, err := NewConfigExporter().ExportConfig(cfg, ExportOptions{Format: FormatYAML, MaskSecrets: true})
	require.NoError(t, err)
	out := string(data)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "user:pw")
	assert.Contains(t, out, maskedValue)
	assert.Contains(t, out, "key_prefix: client-optimizer")

	assert.Equal(t, "hunter2", cfg.Redis.Password, "export must not mutate the source")
}

func TestExportImportRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Scheduler.Workers = 12

	exporter := NewConfigExporter()
	data, err := exporter.ExportConfig(cfg, ExportOptions{Format: FormatYAML})
	require.NoError(t, err)

	imported, err := exporter.ImportConfig(data, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 12, imported.Scheduler.Workers)
	assert.Equal(t, cfg.Scheduler.Optimization.Jitter, imported.Scheduler.Optimization.Jitter)

	_, err = exporter.ImportConfig([]byte("storage:\n  type: etcd\n"), FormatYAML)
	assert.Error(t, err)
}

// recorder captures the worker counts it is notified with.
type recorder struct {
	name string
	seen []int
	err  error
}

func (r *recorder) OnConfigChange(oldConfig, newConfig *OptimizerConfig) error {
	r.seen = append(r.seen, oldConfig.Scheduler.Workers, newConfig.Scheduler.Workers)
	return r.err
}

func (r *recorder) GetSubscriberName() string { return r.name }

func TestManagerNotifiesSubscribersOnReload(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  workers: 2\n")

	m := NewManager(path, WithLogger(zap.NewNop()))
	require.NoError(t, m.Start())
	defer m.Stop()

	failing := &recorder{name: "failing", err: errors.New("cannot apply")}
	ok := &recorder{name: "ok"}
	require.NoError(t, m.Subscribe(failing))
	require.NoError(t, m.Subscribe(ok))
	assert.Error(t, m.Subscribe(&recorder{name: "ok"}))

	m.watcher.StopWatching()

	// Same content: nothing to apply.
	require.NoError(t, m.Reload())
	assert.Empty(t, ok.seen)
	assert.Zero(t, m.Reloads())

	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  workers: 6\n"), 0644))
	require.NoError(t, m.Reload())

	assert.Equal(t, []int{2, 6}, failing.seen)
	assert.Equal(t, []int{2, 6}, ok.seen, "a failing subscriber does not block the others")
	assert.Equal(t, 6, m.Current().Scheduler.Workers)
	assert.EqualValues(t, 1, m.Reloads())
}

func TestManagerKeepsConfigOnInvalidReload(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  workers: 2\n")

	m := NewManager(path)
	assert.Error(t, m.Reload(), "reload before start")
	require.NoError(t, m.Start())
	defer m.Stop()
	m.watcher.StopWatching()

	require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  workers: 0\n"), 0644))
	err := m.Reload()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "scheduler.workers"))
	assert.Equal(t, 2, m.Current().Scheduler.Workers)
}

func TestChangedSections(t *testing.T) {
	a := Default()
	b := Default()
	assert.Empty(t, ChangedSections(a, b))
	assert.Nil(t, ChangedSections(nil, b))

	b.Engine.ReoptimizeBelowScore = 50
	b.Scheduler.Workers = 8
	b.Trend.Thresholds["score"] = 7
	assert.Equal(t, []string{"engine", "trend", "scheduler"}, ChangedSections(a, b))
}
