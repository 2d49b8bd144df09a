package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"client-optimizer/pkg/config"
	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
	"client-optimizer/pkg/state"
)

type memorySnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memorySnapshots) Put(ctx context.Context, name string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[name] = b
	return nil
}

func (m *memorySnapshots) Get(ctx context.Context, name string, out interface{}) (bool, error) {
	m.mu.Lock()
	b, ok := m.data[name]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

type stubLocker struct {
	acquired bool
	err      error
	calls    int32
	released int32
}

func (l *stubLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { atomic.AddInt32(&l.released, 1) }, true, nil
}

// seedSweepProfiles creates a (slow paint), b (healthy) and c (battery drain),
// then makes writes for c fail.
func seedSweepProfiles(t *testing.T) (*Service, *flakyStore, *clock) {
	t.Helper()
	store := &flakyStore{ProfileStore: state.NewMemoryStore()}
	c := &clock{now: base}
	svc := NewService(store, config.Default().Engine, WithClock(c.Now))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Initialize(ctx, id, profile.DeviceInfoPatch{})
		require.NoError(t, err)
	}
	_, err := svc.RecordMetrics(ctx, "a", profile.PerformanceMetrics{
		PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(3500)},
	})
	require.NoError(t, err)
	_, err = svc.RecordMetrics(ctx, "c", profile.PerformanceMetrics{
		Resources: &profile.ResourceMetrics{BatteryUsage: profile.Float(20)},
	})
	require.NoError(t, err)

	store.fail("c")
	return svc, store, c
}

func TestOptimizationSweepSkipsFailingProfiles(t *testing.T) {
	tests := []struct {
		name    string
		usePool bool
	}{
		{"inline", false},
		{"worker pool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := seedSweepProfiles(t)
			ctx := context.Background()

			var opts []SweeperOption
			var pool *WorkerPoolImpl
			if tt.usePool {
				pool = NewWorkerPool(WorkerPoolConfig{Size: 2, QueueSize: 4, MaxRetries: 1, RetryInterval: time.Millisecond}, zap.NewNop())
				require.NoError(t, pool.Start(ctx))
				defer pool.Stop(ctx)
				opts = append(opts, WithWorkerPool(pool))
			}

			report, err := NewSweeper(svc, opts...).OptimizationSweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, SweepOptimization, report.Sweep)
			assert.Equal(t, 2, report.Selected)
			assert.Equal(t, 1, report.Optimized)
			assert.Equal(t, 1, report.Failed)

			a, err := store.Get(ctx, "a")
			require.NoError(t, err)
			require.Len(t, a.OptimizationHistory, 2)
			assert.Equal(t, profile.TriggerScheduled, a.OptimizationHistory[1].Trigger)
			assert.True(t, a.PerformanceSettings.Content.EnableMinification)

			b, err := store.Get(ctx, "b")
			require.NoError(t, err)
			assert.Len(t, b.OptimizationHistory, 1)

			if tt.usePool {
				stats := pool.GetStats()
				assert.Equal(t, 1, stats.CompletedJobs)
				assert.Equal(t, 1, stats.FailedJobs)
				assert.Equal(t, 1, stats.RetriedJobs)
			}
		})
	}
}

func TestOptimizationSweepRetryKeepsHistory(t *testing.T) {
	store := &flakyStore{ProfileStore: state.NewMemoryStore()}
	svc := NewService(store, config.Default().Engine, WithClock(func() time.Time { return base }))
	ctx := context.Background()

	_, err := svc.Initialize(ctx, "a", profile.DeviceInfoPatch{})
	require.NoError(t, err)
	_, err = svc.RecordMetrics(ctx, "a", profile.PerformanceMetrics{
		PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(3500)},
	})
	require.NoError(t, err)
	before, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, before.PerformanceSettings.Content.EnableMinification)

	pool := NewWorkerPool(WorkerPoolConfig{Size: 1, QueueSize: 2, MaxRetries: 2, RetryInterval: time.Millisecond}, zap.NewNop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(ctx)

	store.failOnce("a")
	report, err := NewSweeper(svc, WithWorkerPool(pool)).OptimizationSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	assert.Equal(t, 1, report.Optimized)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, pool.GetStats().RetriedJobs)

	after, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, after.PerformanceSettings.Content.EnableMinification)
	require.Len(t, after.OptimizationHistory, len(before.OptimizationHistory)+1)
	assert.Equal(t, profile.TriggerScheduled, after.OptimizationHistory[len(before.OptimizationHistory)].Trigger)
}

func spansByName(spans []sdktrace.ReadOnlySpan) map[string][]sdktrace.ReadOnlySpan {
	out := make(map[string][]sdktrace.ReadOnlySpan)
	for _, sp := range spans {
		out[sp.Name()] = append(out[sp.Name()], sp)
	}
	return out
}

func hasAttribute(sp sdktrace.ReadOnlySpan, kv attribute.KeyValue) bool {
	for _, a := range sp.Attributes() {
		if a == kv {
			return true
		}
	}
	return false
}

func TestSweepTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	store := &flakyStore{ProfileStore: state.NewMemoryStore()}
	svc := NewService(store, config.Default().Engine, WithClock(func() time.Time { return base }), WithTracerProvider(tp))
	ctx := context.Background()

	for _, id := range []string{"a", "c"} {
		_, err := svc.Initialize(ctx, id, profile.DeviceInfoPatch{})
		require.NoError(t, err)
		_, err = svc.RecordMetrics(ctx, id, profile.PerformanceMetrics{
			PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(3500)},
		})
		require.NoError(t, err)
	}
	store.fail("c")

	cfg := config.Default().Scheduler.Optimization
	sched, err := NewScheduler(SweepOptimization, cfg, NewSweeper(svc).OptimizationSweep,
		WithSchedulerTracer(tp.Tracer("test")))
	require.NoError(t, err)

	report, err := sched.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Optimized)

	spans := spansByName(recorder.Ended())
	require.Len(t, spans["engine.sweep"], 1)
	sweep := spans["engine.sweep"][0]
	assert.True(t, hasAttribute(sweep, attribute.String("sweep", SweepOptimization)))
	assert.True(t, hasAttribute(sweep, attribute.Int("selected", 2)))
	assert.True(t, hasAttribute(sweep, attribute.Int("failed", 1)))

	require.Len(t, spans["engine.sweep_subject"], 2)
	for _, sp := range spans["engine.sweep_subject"] {
		assert.Equal(t, sweep.SpanContext().TraceID(), sp.SpanContext().TraceID())
		if hasAttribute(sp, attribute.String("subject_id", "c")) {
			assert.Equal(t, codes.Error, sp.Status().Code)
		} else {
			assert.True(t, hasAttribute(sp, attribute.Bool("optimized", true)))
		}
	}

	require.Len(t, spans["engine.commit"], 2)
	for _, sp := range spans["engine.commit"] {
		assert.True(t, hasAttribute(sp, attribute.String("trigger", string(profile.TriggerScheduled))))
	}
}

func TestOptimizationSweepEmptyPlanOnlyAdvancesCheck(t *testing.T) {
	svc, store, c := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "user-1", profile.DeviceInfoPatch{})
	require.NoError(t, err)

	c.Advance(25 * time.Hour)
	report, err := NewSweeper(svc).OptimizationSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	assert.Zero(t, report.Optimized)

	p, err := store.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, p.OptimizationHistory, 1)
	assert.Equal(t, base.Add(25*time.Hour), p.LastOptimizationCheck)

	report, err = NewSweeper(svc).OptimizationSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Selected, "a fresh check is not selected again")
}

func TestAggressiveSweep(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"slow", "ok"} {
		_, err := svc.Initialize(ctx, id, profile.DeviceInfoPatch{})
		require.NoError(t, err)
	}
	_, err := svc.RecordMetrics(ctx, "slow", profile.PerformanceMetrics{
		PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(6000)},
	})
	require.NoError(t, err)
	_, err = svc.RecordMetrics(ctx, "ok", profile.PerformanceMetrics{
		PageLoad: &profile.PageLoadMetrics{FirstContentfulPaint: profile.Float(4000)},
	})
	require.NoError(t, err)

	report, err := NewSweeper(svc).AggressiveSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	assert.Equal(t, 1, report.Optimized)

	p, err := store.Get(ctx, "slow")
	require.NoError(t, err)
	assert.Equal(t, profile.CompressionMax, p.PerformanceSettings.Image.CompressionLevel)
	assert.True(t, p.PerformanceSettings.Content.EnableMinification)
	assert.True(t, p.AdaptiveBehavior.Bandwidth.DataSaver)
	last := p.OptimizationHistory[len(p.OptimizationHistory)-1]
	assert.Equal(t, profile.TriggerAggressive, last.Trigger)

	ok, err := store.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, profile.CompressionMedium, ok.PerformanceSettings.Image.CompressionLevel)
}

func TestGlobalStatsSweepPublishesSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := svc.Initialize(ctx, id, profile.DeviceInfoPatch{})
		require.NoError(t, err)
	}

	snapshots := &memorySnapshots{}
	other := NewSweeper(svc, WithSnapshotStore(snapshots))
	assert.Nil(t, other.LatestStats(ctx))

	report, err := NewSweeper(svc, WithSnapshotStore(snapshots)).GlobalStatsSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Selected)

	stats := other.LatestStats(ctx)
	require.NotNil(t, stats, "other replicas read the published snapshot")
	assert.Equal(t, 2, stats.Profiles)
	assert.Equal(t, 100.0, stats.AverageScore)
}

func TestSchedulerRejectsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	run := func(ctx context.Context) (*SweepReport, error) {
		close(started)
		<-release
		return &SweepReport{Sweep: "test"}, nil
	}

	s, err := NewScheduler("test", config.SweepConfig{Schedule: "@every 1h"}, run)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-started

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepRunning)
	assert.True(t, s.GetStats().Running)

	close(release)
	require.NoError(t, <-done)

	stats := s.GetStats()
	assert.False(t, stats.Running)
	assert.EqualValues(t, 1, stats.CompletedRuns)
	assert.EqualValues(t, 1, stats.SkippedRuns)
	require.NotNil(t, stats.LastReport)
}

func TestSchedulerLocker(t *testing.T) {
	var runs int32
	run := func(ctx context.Context) (*SweepReport, error) {
		atomic.AddInt32(&runs, 1)
		return &SweepReport{}, nil
	}
	cfg := config.SweepConfig{Schedule: "*/5 * * * *"}

	held := &stubLocker{acquired: false}
	s, err := NewScheduler("test", cfg, run, WithLocker(held, time.Minute))
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepLocked)
	assert.Zero(t, atomic.LoadInt32(&runs))

	free := &stubLocker{acquired: true}
	s, err = NewScheduler("test", cfg, run, WithLocker(free, time.Minute))
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&runs))
	assert.EqualValues(t, 1, atomic.LoadInt32(&free.released))

	down := &stubLocker{err: errors.New("redis: connection refused")}
	s, err = NewScheduler("test", cfg, run, WithLocker(down, time.Minute))
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&runs))
}

func TestSchedulerTriggerImmediate(t *testing.T) {
	var runs int32
	run := func(ctx context.Context) (*SweepReport, error) {
		atomic.AddInt32(&runs, 1)
		return &SweepReport{}, nil
	}

	s, err := NewScheduler("test", config.SweepConfig{Schedule: "@every 1h"}, run)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.TriggerImmediate())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, time.Second, 5*time.Millisecond)

	stats := s.GetStats()
	assert.WithinDuration(t, time.Now().Add(time.Hour), stats.NextRunTime, time.Minute)

	require.NoError(t, s.Stop(context.Background()))
	assert.Error(t, s.TriggerImmediate())
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	run := func(ctx context.Context) (*SweepReport, error) { return nil, nil }

	_, err := NewScheduler("test", config.SweepConfig{Schedule: "every hour"}, run)
	assert.Error(t, err)
	_, err = NewScheduler("test", config.SweepConfig{Schedule: ""}, run)
	assert.Error(t, err)
	_, err = NewScheduler("test", config.SweepConfig{Schedule: "@hourly"}, nil)
	assert.Error(t, err)
}

func TestWorkerPoolRetriesTransientErrorsOnly(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(WorkerPoolConfig{Size: 1, QueueSize: 2, MaxRetries: 2, RetryInterval: time.Millisecond}, zap.NewNop())
	require.NoError(t, pool.Start(ctx))
	defer pool.Stop(ctx)

	var wg sync.WaitGroup
	results := make(map[string]error)
	var mu sync.Mutex
	submit := func(id string, run func(context.Context) error) {
		wg.Add(1)
		job := &Job{ID: id, Sweep: "test", SubjectID: id, Run: run}
		job.done = func(err error) {
			mu.Lock()
			results[id] = err
			mu.Unlock()
			wg.Done()
		}
		require.NoError(t, pool.Submit(ctx, job))
	}

	var flakyAttempts int32
	submit("flaky", func(context.Context) error {
		if atomic.AddInt32(&flakyAttempts, 1) < 3 {
			return engerrors.TransientStorage("update", "flaky", errors.New("timeout"))
		}
		return nil
	})

	var invalidAttempts int32
	submit("invalid", func(context.Context) error {
		atomic.AddInt32(&invalidAttempts, 1)
		return engerrors.InvalidInput("update", "invalid", "bad", nil)
	})

	submit("panics", func(context.Context) error {
		panic("boom")
	})

	wg.Wait()

	assert.NoError(t, results["flaky"])
	assert.EqualValues(t, 3, atomic.LoadInt32(&flakyAttempts))
	assert.True(t, engerrors.IsInvalidInput(results["invalid"]))
	assert.EqualValues(t, 1, atomic.LoadInt32(&invalidAttempts))
	assert.ErrorContains(t, results["panics"], "panicked")

	stats := pool.GetStats()
	assert.Equal(t, 1, stats.CompletedJobs)
	assert.Equal(t, 2, stats.FailedJobs)
	assert.Equal(t, 2, stats.RetriedJobs)
}

func TestWorkerPoolResize(t *testing.T) {
	ctx := context.Background()
	pool := NewWorkerPool(WorkerPoolConfig{Size: 2}, zap.NewNop())
	assert.Error(t, pool.Resize(4), "not running")

	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Resize(4))
	assert.Equal(t, 4, pool.GetStats().Size)
	require.NoError(t, pool.Resize(1))
	assert.Equal(t, 1, pool.GetStats().Size)
	assert.Error(t, pool.Resize(0))

	require.NoError(t, pool.Stop(ctx))
	assert.Error(t, pool.Submit(ctx, &Job{ID: "late", Run: func(context.Context) error { return nil }}))
}

func TestOrchestrator(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "user-1", profile.DeviceInfoPatch{})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Scheduler.Aggressive.Enabled = false
	o, err := NewOrchestrator(svc, cfg.Scheduler, nil, nil)
	require.NoError(t, err)

	stats := o.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, SweepGlobalStats, stats[0].Sweep)
	assert.Equal(t, SweepOptimization, stats[1].Sweep)

	require.NoError(t, o.Start(ctx))
	defer o.Stop(ctx)

	report, err := o.RunOnce(ctx, SweepGlobalStats)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Selected)
	require.NotNil(t, o.Sweeper().LatestStats(ctx))

	_, err = o.RunOnce(ctx, SweepAggressive)
	assert.Error(t, err, "disabled sweeps are not scheduled")
	assert.Error(t, o.Trigger("unknown"))

	updated := config.Default()
	updated.Scheduler.Optimization.Schedule = "@every 2h"
	updated.Scheduler.Workers = 2
	require.NoError(t, o.OnConfigChange(cfg, updated))
	assert.Equal(t, "@every 2h", o.Stats()[1].Schedule)
	assert.Equal(t, 2, o.WorkerPoolStats().Size)

	updated.Scheduler.GlobalStats.Schedule = "whenever"
	assert.Error(t, o.OnConfigChange(cfg, updated))
}
