package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"client-optimizer/pkg/config"
	"client-optimizer/pkg/metrics"
)

// ErrSweepRunning is returned when a sweep is asked to start while the
// previous run of the same sweep has not finished.
var ErrSweepRunning = errors.New("sweep already running")

// ErrSweepLocked is returned when another replica holds the sweep lock.
var ErrSweepLocked = errors.New("sweep locked by another replica")

// SchedulerImpl runs one sweep on its own schedule. Runs never overlap.
type SchedulerImpl struct {
	name        string
	run         SweepFunc
	spec        string
	schedule    cron.Schedule
	jitter      time.Duration
	timeout     time.Duration
	locker      Locker
	lockTTL     time.Duration
	metrics     metrics.Recorder
	logger      *zap.Logger
	tracer      trace.Tracer
	triggerChan chan struct{}
	resetChan   chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	started     int32
	stopped     int32
	running     int32
	stats       *schedulerStats
}

// schedulerStats tracks scheduler statistics
type schedulerStats struct {
	completedRuns int64
	failedRuns    int64
	skippedRuns   int64
	lastRunTime   int64 // Unix timestamp in nanoseconds
	nextRunTime   int64 // Unix timestamp in nanoseconds
	mu            sync.Mutex
	lastReport    *SweepReport
}

// SchedulerOption configures a SchedulerImpl.
type SchedulerOption func(*SchedulerImpl)

// WithLocker guards every run with a cross-replica lock held for at most ttl.
func WithLocker(locker Locker, ttl time.Duration) SchedulerOption {
	return func(s *SchedulerImpl) {
		s.locker = locker
		s.lockTTL = ttl
	}
}

func WithSchedulerMetrics(recorder metrics.Recorder) SchedulerOption {
	return func(s *SchedulerImpl) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *SchedulerImpl) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates a scheduler for the named sweep.
func NewScheduler(name string, cfg config.SweepConfig, run SweepFunc, opts ...SchedulerOption) (*SchedulerImpl, error) {
	schedule, err := config.ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", name, err)
	}
	if run == nil {
		return nil, fmt.Errorf("sweep %s: run function is required", name)
	}

	s := &SchedulerImpl{
		name:        name,
		run:         run,
		spec:        cfg.Schedule,
		schedule:    schedule,
		jitter:      cfg.Jitter,
		timeout:     cfg.Timeout,
		metrics:     metrics.NewNoOpMetrics(),
		logger:      zap.NewNop(),
		tracer:      defaultTracer(),
		triggerChan: make(chan struct{}, 1),
		resetChan:   make(chan struct{}, 1),
		stats:       &schedulerStats{},
	}
	if s.jitter < 0 {
		s.jitter = 0
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("sweep", name))
	return s, nil
}

// Name returns the sweep name.
func (s *SchedulerImpl) Name() string {
	return s.name
}

// Start starts the scheduler
func (s *SchedulerImpl) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return fmt.Errorf("scheduler %s already started", s.name)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.schedulerLoop()

	s.wg.Add(1)
	go s.triggerHandler()

	s.logger.Info("Sweep scheduler started", zap.String("schedule", s.spec))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *SchedulerImpl) Stop(ctx context.Context) error {
	if atomic.LoadInt32(&s.started) == 0 {
		return fmt.Errorf("scheduler %s not started", s.name)
	}
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return fmt.Errorf("scheduler %s already stopped", s.name)
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler %s shutdown timeout", s.name)
	}
}

// TriggerImmediate asks for a run outside the schedule. A trigger already
// pending absorbs this one.
func (s *SchedulerImpl) TriggerImmediate() error {
	if atomic.LoadInt32(&s.stopped) == 1 {
		return fmt.Errorf("scheduler %s is stopped", s.name)
	}

	select {
	case s.triggerChan <- struct{}{}:
	default:
	}
	return nil
}

// UpdateSchedule replaces the schedule; the next run is recomputed at once.
func (s *SchedulerImpl) UpdateSchedule(cfg config.SweepConfig) error {
	schedule, err := config.ParseSchedule(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("sweep %s: %w", s.name, err)
	}

	s.mu.Lock()
	changed := s.spec != cfg.Schedule || s.jitter != cfg.Jitter
	s.spec = cfg.Schedule
	s.schedule = schedule
	s.jitter = cfg.Jitter
	if s.jitter < 0 {
		s.jitter = 0
	}
	s.timeout = cfg.Timeout
	s.mu.Unlock()

	if changed {
		s.logger.Info("Sweep schedule updated", zap.String("schedule", cfg.Schedule))
		select {
		case s.resetChan <- struct{}{}:
		default:
		}
	}
	return nil
}

// RunOnce runs the sweep now in the caller's goroutine. It returns
// ErrSweepRunning when a run is in progress and ErrSweepLocked when another
// replica holds the lock.
func (s *SchedulerImpl) RunOnce(ctx context.Context) (*SweepReport, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		atomic.AddInt64(&s.stats.skippedRuns, 1)
		s.metrics.RecordSweepSkipped(s.name)
		return nil, ErrSweepRunning
	}
	defer atomic.StoreInt32(&s.running, 0)

	if s.locker != nil {
		release, acquired, err := s.locker.TryLock(ctx, "sweep:"+s.name, s.lockTTL)
		if err != nil {
			// Lock outage: run unguarded.
			s.logger.Warn("Sweep lock unavailable, running without it", zap.Error(err))
		} else if !acquired {
			atomic.AddInt64(&s.stats.skippedRuns, 1)
			s.metrics.RecordSweepSkipped(s.name)
			return nil, ErrSweepLocked
		} else {
			defer release()
		}
	}

	s.mu.RLock()
	timeout := s.timeout
	s.mu.RUnlock()

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	atomic.StoreInt64(&s.stats.lastRunTime, start.UnixNano())

	runCtx, span := s.tracer.Start(runCtx, "engine.sweep", trace.WithAttributes(attribute.String("sweep", s.name)))
	report, err := s.run(runCtx)
	if report != nil {
		span.SetAttributes(
			attribute.Int("selected", report.Selected),
			attribute.Int("optimized", report.Optimized),
			attribute.Int("failed", report.Failed))
	}
	endSpan(span, err)
	if err != nil {
		atomic.AddInt64(&s.stats.failedRuns, 1)
		s.logger.Error("Sweep failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return report, err
	}

	atomic.AddInt64(&s.stats.completedRuns, 1)
	s.stats.mu.Lock()
	s.stats.lastReport = report
	s.stats.mu.Unlock()

	if report != nil {
		s.logger.Info("Sweep completed",
			zap.Int("selected", report.Selected),
			zap.Int("optimized", report.Optimized),
			zap.Int("failed", report.Failed),
			zap.Duration("duration", report.Duration))
	}
	return report, nil
}

// schedulerLoop is the main scheduling loop
func (s *SchedulerImpl) schedulerLoop() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Until(s.nextRun(time.Now())))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.execute()
			timer.Reset(time.Until(s.nextRun(time.Now())))

		case <-s.resetChan:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(time.Until(s.nextRun(time.Now())))

		case <-s.ctx.Done():
			return
		}
	}
}

// triggerHandler handles immediate triggers
func (s *SchedulerImpl) triggerHandler() {
	defer s.wg.Done()

	for {
		select {
		case <-s.triggerChan:
			s.execute()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *SchedulerImpl) execute() {
	if _, err := s.RunOnce(s.ctx); err != nil {
		switch {
		case errors.Is(err, ErrSweepRunning):
			s.logger.Debug("Previous sweep still running, skipping")
		case errors.Is(err, ErrSweepLocked):
			s.logger.Debug("Sweep held by another replica, skipping")
		}
	}
}

// nextRun returns the next scheduled time after from, with jitter.
func (s *SchedulerImpl) nextRun(from time.Time) time.Time {
	s.mu.RLock()
	next := s.schedule.Next(from)
	jitter := s.jitter
	s.mu.RUnlock()

	if jitter > 0 {
		next = next.Add(time.Duration(rand.Int63n(int64(jitter))))
	}
	atomic.StoreInt64(&s.stats.nextRunTime, next.UnixNano())
	return next
}

// GetStats returns scheduler statistics
func (s *SchedulerImpl) GetStats() SchedulerStats {
	s.mu.RLock()
	spec := s.spec
	s.mu.RUnlock()

	s.stats.mu.Lock()
	report := s.stats.lastReport
	s.stats.mu.Unlock()

	stats := SchedulerStats{
		Sweep:         s.name,
		Schedule:      spec,
		Running:       atomic.LoadInt32(&s.running) == 1,
		CompletedRuns: atomic.LoadInt64(&s.stats.completedRuns),
		FailedRuns:    atomic.LoadInt64(&s.stats.failedRuns),
		SkippedRuns:   atomic.LoadInt64(&s.stats.skippedRuns),
		LastReport:    report,
	}
	if t := atomic.LoadInt64(&s.stats.lastRunTime); t > 0 {
		stats.LastRunTime = time.Unix(0, t)
	}
	if t := atomic.LoadInt64(&s.stats.nextRunTime); t > 0 {
		stats.NextRunTime = time.Unix(0, t)
	}
	return stats
}
