package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/metrics"
	"client-optimizer/pkg/optimizer"
	"client-optimizer/pkg/profile"
	"client-optimizer/pkg/scoring"
)

// PopulationStatsKey is the snapshot cache key of the latest population stats.
const PopulationStatsKey = "population_stats"

// Sweeper implements the three background sweeps over the profile store.
type Sweeper struct {
	service  *Service
	pool     WorkerPool
	snapshot SnapshotStore
	metrics  metrics.Recorder
	logger   *zap.Logger
	timeout  time.Duration

	mu     sync.RWMutex
	latest *PopulationStats
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithWorkerPool runs per-subject work on pool instead of inline.
func WithWorkerPool(pool WorkerPool) SweeperOption {
	return func(s *Sweeper) { s.pool = pool }
}

// WithSnapshotStore publishes population stats to store.
func WithSnapshotStore(store SnapshotStore) SweeperOption {
	return func(s *Sweeper) { s.snapshot = store }
}

// WithJobTimeout bounds each per-subject job.
func WithJobTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.timeout = d }
}

func NewSweeper(service *Service, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		service: service,
		metrics: service.metrics,
		logger:  service.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NeedsSweep is the optimization sweep's selection predicate: the
// needs-optimization gate or any degraded metric.
func (s *Sweeper) NeedsSweep(p *profile.OptimizationProfile, now time.Time) bool {
	cfg := s.service.config
	score := scoring.Score(p.PerformanceMetrics)
	if scoring.NeedsOptimization(score, p.LastOptimizationCheck, now) {
		return true
	}
	m := p.PerformanceMetrics
	if v, ok := m.FCP(); ok && v > cfg.SweepFirstPaintMs {
		return true
	}
	if v, ok := m.BatteryUsage(); ok && v > cfg.SweepBatteryUsage {
		return true
	}
	if v, ok := m.ErrorRate(); ok && v > cfg.SweepErrorRate {
		return true
	}
	return false
}

// NeedsAggressive selects profiles with severely degraded first paint.
func (s *Sweeper) NeedsAggressive(p *profile.OptimizationProfile, _ time.Time) bool {
	v, ok := p.PerformanceMetrics.FCP()
	return ok && v > s.service.config.AggressiveFirstPaintMs
}

// OptimizationSweep runs the adaptive rules on every selected profile.
func (s *Sweeper) OptimizationSweep(ctx context.Context) (*SweepReport, error) {
	return s.sweep(ctx, SweepOptimization, s.NeedsSweep, func(p *profile.OptimizationProfile) (optimizer.Plan, string, profile.Trigger) {
		return optimizer.Decide(p), actionAdaptive, profile.TriggerScheduled
	})
}

// AggressiveSweep forces maximum savings on profiles with very slow first
// paint, bypassing the adaptive gates.
func (s *Sweeper) AggressiveSweep(ctx context.Context) (*SweepReport, error) {
	return s.sweep(ctx, SweepAggressive, s.NeedsAggressive, func(p *profile.OptimizationProfile) (optimizer.Plan, string, profile.Trigger) {
		return optimizer.Aggressive(p), actionAggressive, profile.TriggerAggressive
	})
}

type planFunc func(p *profile.OptimizationProfile) (optimizer.Plan, string, profile.Trigger)

func (s *Sweeper) sweep(ctx context.Context, name string, selectFn func(*profile.OptimizationProfile, time.Time) bool, plan planFunc) (*SweepReport, error) {
	start := time.Now()
	report := &SweepReport{Sweep: name, StartedAt: start}

	now := s.service.now()
	var selected []string
	err := s.service.store.ForEach(ctx, func(p *profile.OptimizationProfile) error {
		if selectFn(p, now) {
			selected = append(selected, p.SubjectID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s sweep: listing profiles: %w", name, err)
	}
	report.Selected = len(selected)

	var (
		mu        sync.Mutex
		optimized int
		failed    int
	)
	record := func(subjectID string, applied bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed++
			s.logger.Warn("Sweep skipped profile",
				zap.String("sweep", name),
				zap.String("subject_id", subjectID),
				zap.Error(err))
			return
		}
		if applied {
			optimized++
		}
	}

	s.forEachSubject(ctx, name, selected, func(jobCtx context.Context, subjectID string) (bool, error) {
		return s.service.sweepOne(jobCtx, subjectID, func(p *profile.OptimizationProfile) bool {
			return selectFn(p, s.service.now())
		}, plan)
	}, record)

	report.Optimized = optimized
	report.Failed = failed
	report.Duration = time.Since(start)
	s.metrics.RecordSweep(name, report.Duration, report.Selected, report.Failed)
	return report, ctx.Err()
}

// forEachSubject runs fn for every subject on the pool, or inline without
// one, and waits for all of them.
func (s *Sweeper) forEachSubject(ctx context.Context, name string, subjects []string, fn func(context.Context, string) (bool, error), record func(string, bool, error)) {
	if s.pool == nil {
		for _, id := range subjects {
			if ctx.Err() != nil {
				record(id, false, ctx.Err())
				continue
			}
			applied, err := fn(ctx, id)
			record(id, applied, err)
		}
		return
	}

	// Pool workers run on their own context; keep jobs in the sweep's trace.
	parent := trace.SpanContextFromContext(ctx)

	var wg sync.WaitGroup
	for i, id := range subjects {
		subjectID := id
		var applied bool
		job := &Job{
			ID:        fmt.Sprintf("%s-%d-%d", name, time.Now().UnixNano(), i),
			Sweep:     name,
			SubjectID: subjectID,
			Timeout:   s.timeout,
		}
		job.Run = func(jobCtx context.Context) error {
			var err error
			applied, err = fn(trace.ContextWithSpanContext(jobCtx, parent), subjectID)
			return err
		}
		job.done = func(err error) {
			record(subjectID, applied && err == nil, err)
			wg.Done()
		}

		wg.Add(1)
		if err := s.pool.Submit(ctx, job); err != nil {
			wg.Done()
			record(subjectID, false, err)
		}
	}
	wg.Wait()
}

// sweepOne re-reads the subject under its lock, re-checks selection and
// applies the plan. An empty plan only advances the check time.
func (s *Service) sweepOne(ctx context.Context, subjectID string, stillSelected func(*profile.OptimizationProfile) bool, plan planFunc) (applied bool, err error) {
	ctx, span := s.tracer.Start(ctx, "engine.sweep_subject", trace.WithAttributes(attribute.String("subject_id", subjectID)))
	defer func() {
		span.SetAttributes(attribute.Bool("optimized", applied))
		endSpan(span, err)
	}()

	unlock := s.locks.Lock(subjectID)
	defer unlock()

	const op = "sweep_optimize"
	p, err := s.load(ctx, op, subjectID)
	if err != nil {
		if engerrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !stillSelected(p) {
		return false, nil
	}

	pl, action, trigger := plan(p)
	if pl.Empty() {
		p.MarkChecked(s.now())
		if err := s.store.Update(ctx, p); err != nil {
			return false, engerrors.WithSubject(err, op, subjectID)
		}
		return false, nil
	}

	if err := s.commit(ctx, op, p, pl, action, trigger, "scheduled sweep"); err != nil {
		return false, err
	}
	return true, nil
}

// GlobalStatsSweep recomputes population stats and publishes them.
func (s *Sweeper) GlobalStatsSweep(ctx context.Context) (*SweepReport, error) {
	start := time.Now()

	stats, err := s.service.GlobalStats(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.latest = stats
	s.mu.Unlock()

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	s.metrics.RecordPopulation(stats.Profiles, byStatus)

	if s.snapshot != nil {
		if err := s.snapshot.Put(ctx, PopulationStatsKey, stats); err != nil {
			s.logger.Warn("Failed to publish population stats", zap.Error(err))
		}
	}

	report := &SweepReport{
		Sweep:     SweepGlobalStats,
		Selected:  stats.Profiles,
		Duration:  time.Since(start),
		StartedAt: start,
	}
	s.metrics.RecordSweep(SweepGlobalStats, report.Duration, stats.Profiles, 0)
	return report, nil
}

// LatestStats returns the most recent population stats: this replica's, or
// the published snapshot, or nil when none exist yet.
func (s *Sweeper) LatestStats(ctx context.Context) *PopulationStats {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		return latest
	}

	if s.snapshot != nil {
		var stats PopulationStats
		found, err := s.snapshot.Get(ctx, PopulationStatsKey, &stats)
		if err != nil {
			s.logger.Debug("Population stats snapshot unavailable", zap.Error(err))
			return nil
		}
		if found {
			return &stats
		}
	}
	return nil
}
