package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ConfigSubscriber is notified after a reloaded configuration passed
// validation and differs from the previous one.
type ConfigSubscriber interface {
	OnConfigChange(oldConfig, newConfig *OptimizerConfig) error
	GetSubscriberName() string
}

// liveSections are the sections subscribers re-apply at runtime. Changes to
// any other section are logged and take effect on the next start.
var liveSections = map[string]bool{
	"scheduler": true,
}

// Manager owns the live configuration of a running optimizer and fans file
// reloads out to subscribers.
type Manager struct {
	mu          sync.RWMutex
	current     *OptimizerConfig
	watcher     *ConfigWatcher
	logger      *zap.Logger
	subscribers []ConfigSubscriber
	started     bool
	reloads     int64
}

type ManagerOption func(*Manager)

func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewManager(configPath string, options ...ManagerOption) *Manager {
	m := &Manager{logger: zap.NewNop()}
	for _, option := range options {
		option(m)
	}
	m.watcher = NewConfigWatcher(configPath, m.logger)
	return m
}

// Start loads and validates the file, then watches it for changes.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("configuration manager is already started")
	}

	cfg, err := m.watcher.LoadInitialConfig()
	if err != nil {
		return fmt.Errorf("failed to load initial configuration: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("initial configuration validation failed: %w", err)
	}
	m.current = cfg

	m.watcher.AddChangeHandler(m.handleConfigChange)
	if err := m.watcher.StartWatching(); err != nil {
		return fmt.Errorf("failed to start configuration watching: %w", err)
	}

	m.started = true
	m.logger.Info("Configuration manager started", zap.Int("subscribers", len(m.subscribers)))
	return nil
}

func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	m.watcher.StopWatching()
	m.started = false
	return nil
}

// Current returns a copy of the active configuration, or nil before Start.
func (m *Manager) Current() *OptimizerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

// Subscribe registers s. Names must be unique.
func (m *Manager) Subscribe(s ConfigSubscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.subscribers {
		if existing.GetSubscriberName() == s.GetSubscriberName() {
			return fmt.Errorf("subscriber with name '%s' already exists", s.GetSubscriberName())
		}
	}
	m.subscribers = append(m.subscribers, s)
	return nil
}

// Reload re-reads the file immediately instead of waiting for a file event.
func (m *Manager) Reload() error {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return fmt.Errorf("configuration manager is not started")
	}
	return m.watcher.ReloadConfig()
}

// Reloads counts applied reloads that changed at least one section.
func (m *Manager) Reloads() int64 {
	return atomic.LoadInt64(&m.reloads)
}

func (m *Manager) handleConfigChange(oldConfig, newConfig *OptimizerConfig) error {
	changed := ChangedSections(oldConfig, newConfig)
	if len(changed) == 0 {
		m.logger.Debug("Configuration file rewritten without changes")
		return nil
	}

	var restart []string
	for _, section := range changed {
		if !liveSections[section] {
			restart = append(restart, section)
		}
	}
	if len(restart) > 0 {
		m.logger.Warn("Configuration sections changed that apply on restart", zap.Strings("sections", restart))
	}

	m.mu.Lock()
	m.current = newConfig
	subscribers := append([]ConfigSubscriber(nil), m.subscribers...)
	m.mu.Unlock()
	atomic.AddInt64(&m.reloads, 1)

	m.logger.Info("Configuration changed", zap.Strings("sections", changed))

	var errs []error
	for _, s := range subscribers {
		if err := s.OnConfigChange(oldConfig, newConfig); err != nil {
			m.logger.Error("Subscriber failed to apply configuration",
				zap.String("subscriber", s.GetSubscriberName()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("subscriber %s: %w", s.GetSubscriberName(), err))
		}
	}
	return errors.Join(errs...)
}

// ChangedSections lists the top-level sections that differ, in file order.
func ChangedSections(oldConfig, newConfig *OptimizerConfig) []string {
	if oldConfig == nil || newConfig == nil {
		return nil
	}
	sections := []struct {
		name     string
		old, new interface{}
	}{
		{"engine", oldConfig.Engine, newConfig.Engine},
		{"trend", oldConfig.Trend, newConfig.Trend},
		{"scheduler", oldConfig.Scheduler, newConfig.Scheduler},
		{"storage", oldConfig.Storage, newConfig.Storage},
		{"redis", oldConfig.Redis, newConfig.Redis},
		{"logging", oldConfig.Logging, newConfig.Logging},
		{"monitoring", oldConfig.Monitoring, newConfig.Monitoring},
		{"server", oldConfig.Server, newConfig.Server},
	}
	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
