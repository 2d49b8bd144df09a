package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"client-optimizer/pkg/config"
)

// Orchestrator owns the worker pool and one scheduler per enabled sweep.
type Orchestrator struct {
	sweeper    *Sweeper
	workerPool WorkerPool
	schedulers map[string]*SchedulerImpl
	logger     *zap.Logger
	mu         sync.RWMutex
	started    int32
	stopped    int32
}

// NewOrchestrator builds the pool and schedulers from cfg. A nil locker
// disables the cross-replica guard.
func NewOrchestrator(service *Service, cfg config.SchedulerConfig, locker Locker, snapshot SnapshotStore) (*Orchestrator, error) {
	pool := NewWorkerPool(WorkerPoolConfig{
		Size:          cfg.Workers,
		QueueSize:     cfg.QueueSize,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryDelay,
		RateLimit: RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		},
	}, service.logger)

	sweeperOpts := []SweeperOption{WithWorkerPool(pool)}
	if snapshot != nil {
		sweeperOpts = append(sweeperOpts, WithSnapshotStore(snapshot))
	}
	sweeper := NewSweeper(service, sweeperOpts...)

	o := &Orchestrator{
		sweeper:    sweeper,
		workerPool: pool,
		schedulers: make(map[string]*SchedulerImpl),
		logger:     service.logger,
	}

	sweeps := []struct {
		name string
		cfg  config.SweepConfig
		run  SweepFunc
	}{
		{SweepOptimization, cfg.Optimization, sweeper.OptimizationSweep},
		{SweepGlobalStats, cfg.GlobalStats, sweeper.GlobalStatsSweep},
		{SweepAggressive, cfg.Aggressive, sweeper.AggressiveSweep},
	}
	for _, sw := range sweeps {
		if !sw.cfg.Enabled {
			continue
		}
		opts := []SchedulerOption{
			WithSchedulerLogger(service.logger),
			WithSchedulerMetrics(service.metrics),
			WithSchedulerTracer(service.tracer),
		}
		if locker != nil {
			opts = append(opts, WithLocker(locker, cfg.LockTTL))
		}
		s, err := NewScheduler(sw.name, sw.cfg, sw.run, opts...)
		if err != nil {
			return nil, err
		}
		o.schedulers[sw.name] = s
	}
	return o, nil
}

// Sweeper returns the sweep implementation, e.g. for LatestStats.
func (o *Orchestrator) Sweeper() *Sweeper {
	return o.sweeper
}

// Start starts the worker pool and every scheduler.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&o.started, 0, 1) {
		return fmt.Errorf("orchestrator already started")
	}

	if err := o.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	for name, s := range o.schedulers {
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s scheduler: %w", name, err)
		}
	}

	o.logger.Info("Sweep orchestrator started", zap.Int("sweeps", len(o.schedulers)))
	return nil
}

// Stop stops the schedulers first, then drains the worker pool.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if atomic.LoadInt32(&o.started) == 0 {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&o.stopped, 0, 1) {
		return fmt.Errorf("orchestrator already stopped")
	}

	var firstErr error
	o.mu.RLock()
	for _, s := range o.schedulers {
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	o.mu.RUnlock()

	if err := o.workerPool.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	o.logger.Info("Sweep orchestrator stopped")
	return firstErr
}

// Trigger requests an immediate run of the named sweep.
func (o *Orchestrator) Trigger(name string) error {
	o.mu.RLock()
	s, ok := o.schedulers[name]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("sweep %s is not scheduled", name)
	}
	return s.TriggerImmediate()
}

// RunOnce runs the named sweep synchronously.
func (o *Orchestrator) RunOnce(ctx context.Context, name string) (*SweepReport, error) {
	o.mu.RLock()
	s, ok := o.schedulers[name]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("sweep %s is not scheduled", name)
	}
	return s.RunOnce(ctx)
}

// Stats returns per-sweep scheduler stats ordered by sweep name.
func (o *Orchestrator) Stats() []SchedulerStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]SchedulerStats, 0, len(o.schedulers))
	for _, s := range o.schedulers {
		out = append(out, s.GetStats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sweep < out[j].Sweep })
	return out
}

// WorkerPoolStats returns the shared pool's stats.
func (o *Orchestrator) WorkerPoolStats() WorkerPoolStats {
	return o.workerPool.GetStats()
}

// OnConfigChange re-applies sweep schedules and the pool size. Enabling or
// disabling a sweep takes effect on restart.
func (o *Orchestrator) OnConfigChange(oldConfig, newConfig *config.OptimizerConfig) error {
	sweeps := map[string]config.SweepConfig{
		SweepOptimization: newConfig.Scheduler.Optimization,
		SweepGlobalStats:  newConfig.Scheduler.GlobalStats,
		SweepAggressive:   newConfig.Scheduler.Aggressive,
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	for name, s := range o.schedulers {
		if err := s.UpdateSchedule(sweeps[name]); err != nil {
			return err
		}
	}

	if oldConfig == nil || oldConfig.Scheduler.Workers != newConfig.Scheduler.Workers {
		if atomic.LoadInt32(&o.started) == 1 && newConfig.Scheduler.Workers > 0 {
			if err := o.workerPool.Resize(newConfig.Scheduler.Workers); err != nil {
				return fmt.Errorf("failed to resize worker pool: %w", err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) GetSubscriberName() string {
	return "sweep-orchestrator"
}
