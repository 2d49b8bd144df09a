package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type ConfigChangeHandler func(oldConfig, newConfig *OptimizerConfig) error

// ConfigWatcher reloads the file on write events and hands the validated
// result to its handlers.
type ConfigWatcher struct {
	mu             sync.RWMutex
	config         *OptimizerConfig
	viper          *viper.Viper
	logger         *zap.Logger
	configPath     string
	changeHandlers []ConfigChangeHandler
	isWatching     bool
}

func NewConfigWatcher(configPath string, logger *zap.Logger) *ConfigWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfigWatcher{
		configPath:     configPath,
		logger:         logger,
		changeHandlers: make([]ConfigChangeHandler, 0),
	}
}

func (cw *ConfigWatcher) LoadInitialConfig() (*OptimizerConfig, error) {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return nil, err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()
	return config, nil
}

func (cw *ConfigWatcher) GetCurrentConfig() *OptimizerConfig {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	if cw.config == nil {
		return nil
	}

	configCopy := *cw.config
	return &configCopy
}

func (cw *ConfigWatcher) AddChangeHandler(handler ConfigChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.changeHandlers = append(cw.changeHandlers, handler)
}

// StartWatching is a no-op without a config file.
func (cw *ConfigWatcher) StartWatching() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isWatching || cw.configPath == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(cw.configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read configuration file %s: %w", cw.configPath, err)
	}

	cw.viper = v
	cw.isWatching = true

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if !cw.IsWatching() {
			return
		}
		cw.logger.Info("Configuration file change detected", zap.String("event", e.String()))
		if err := cw.ReloadConfig(); err != nil {
			cw.logger.Error("Configuration reload rejected", zap.Error(err))
		}
	})
	v.WatchConfig()

	cw.logger.Info("Configuration file watching started",
		zap.String("config_path", cw.configPath))

	return nil
}

// StopWatching detaches the handlers; viper keeps its watcher goroutine
// until the process exits.
func (cw *ConfigWatcher) StopWatching() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.isWatching {
		return
	}
	cw.isWatching = false

	cw.logger.Info("Configuration file watching stopped")
}

func (cw *ConfigWatcher) IsWatching() bool {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	return cw.isWatching
}

// ReloadConfig re-reads the file. An invalid file leaves the current
// configuration in place.
func (cw *ConfigWatcher) ReloadConfig() error {
	oldConfig := cw.GetCurrentConfig()

	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.Error("Failed to reload configuration",
			zap.Error(err),
			zap.String("config_path", cw.configPath))
		return err
	}

	if err := ValidateConfig(newConfig); err != nil {
		cw.logger.Error("New configuration is invalid",
			zap.Error(err),
			zap.String("config_path", cw.configPath))
		return err
	}

	cw.mu.Lock()
	cw.config = newConfig
	handlers := make([]ConfigChangeHandler, len(cw.changeHandlers))
	copy(handlers, cw.changeHandlers)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, handler := range handlers {
		if err := handler(oldConfig, newConfig); err != nil {
			cw.logger.Error("Configuration change handler failed", zap.Error(err))
		}
	}

	return nil
}
