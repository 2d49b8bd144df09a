package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	engerrors "client-optimizer/pkg/errors"
)

// WorkerPoolImpl implements the WorkerPool interface
type WorkerPoolImpl struct {
	config      WorkerPoolConfig
	workers     []*worker
	jobQueue    chan *Job
	resultQueue chan *jobResult
	rateLimiter *rate.Limiter
	stats       *workerPoolStats
	logger      *zap.Logger
	wg          sync.WaitGroup
	resultsWg   sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	started     int32
	stopped     int32
	mu          sync.RWMutex
}

// worker represents a single worker in the pool
type worker struct {
	id          int
	pool        *WorkerPoolImpl
	jobQueue    <-chan *Job
	resultQueue chan<- *jobResult
	quit        chan struct{}
	active      int32
	ctx         context.Context
}

// jobResult represents the result of a job execution
type jobResult struct {
	job       *Job
	err       error
	duration  time.Duration
	timestamp time.Time
}

// workerPoolStats implements WorkerPoolStats with atomic counters
type workerPoolStats struct {
	size                int64
	activeWorkers       int64
	queuedJobs          int64
	completedJobs       int64
	failedJobs          int64
	retriedJobs         int64
	totalWaitTime       int64 // in nanoseconds
	totalProcessingTime int64 // in nanoseconds
	jobsSubmitted       int64
}

// NewWorkerPool creates a new worker pool with the given configuration
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPoolImpl {
	if config.Size <= 0 {
		config.Size = 4
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 500 * time.Millisecond
	}
	if config.GracefulTimeout <= 0 {
		config.GracefulTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var rateLimiter *rate.Limiter
	if config.RateLimit.RequestsPerSecond > 0 {
		burst := config.RateLimit.BurstSize
		if burst <= 0 {
			burst = 1
		}
		rateLimiter = rate.NewLimiter(rate.Limit(config.RateLimit.RequestsPerSecond), burst)
	}

	return &WorkerPoolImpl{
		config:      config,
		jobQueue:    make(chan *Job, config.QueueSize),
		resultQueue: make(chan *jobResult, config.QueueSize),
		rateLimiter: rateLimiter,
		logger:      logger,
		stats: &workerPoolStats{
			size: int64(config.Size),
		},
	}
}

// Start initializes and starts the worker pool
func (wp *WorkerPoolImpl) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&wp.started, 0, 1) {
		return fmt.Errorf("worker pool already started")
	}

	wp.ctx, wp.cancel = context.WithCancel(ctx)

	wp.mu.Lock()
	wp.workers = make([]*worker, wp.config.Size)
	for i := 0; i < wp.config.Size; i++ {
		wp.workers[i] = wp.newWorker(i)
		wp.wg.Add(1)
		go wp.workers[i].start()
	}
	wp.mu.Unlock()

	wp.resultsWg.Add(1)
	go wp.processResults()

	return nil
}

func (wp *WorkerPoolImpl) newWorker(id int) *worker {
	return &worker{
		id:          id,
		pool:        wp,
		jobQueue:    wp.jobQueue,
		resultQueue: wp.resultQueue,
		quit:        make(chan struct{}),
		ctx:         wp.ctx,
	}
}

// Stop gracefully stops the worker pool. Jobs still queued are failed.
func (wp *WorkerPoolImpl) Stop(ctx context.Context) error {
	if atomic.LoadInt32(&wp.started) == 0 {
		return fmt.Errorf("worker pool not started")
	}
	if !atomic.CompareAndSwapInt32(&wp.stopped, 0, 1) {
		return fmt.Errorf("worker pool already stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, wp.config.GracefulTimeout)
	defer shutdownCancel()

	wp.mu.Lock()
	for _, w := range wp.workers {
		close(w.quit)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-shutdownCtx.Done():
		// Abort in-flight jobs.
		wp.cancel()
		forceCtx, forceCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer forceCancel()

		select {
		case <-done:
		case <-forceCtx.Done():
			stopErr = fmt.Errorf("worker pool failed to stop within timeout")
		}
	}

	wp.cancel()
	wp.resultsWg.Wait()
	wp.drain()
	return stopErr
}

// drain fails every job nobody will run so that waiting sweeps return.
func (wp *WorkerPoolImpl) drain() {
	for {
		select {
		case job := <-wp.jobQueue:
			atomic.AddInt64(&wp.stats.queuedJobs, -1)
			atomic.AddInt64(&wp.stats.failedJobs, 1)
			job.complete(fmt.Errorf("worker pool stopped"))
		case res := <-wp.resultQueue:
			res.job.complete(res.err)
		default:
			return
		}
	}
}

// Submit queues a job, waiting for the rate limiter and for queue space.
func (wp *WorkerPoolImpl) Submit(ctx context.Context, job *Job) error {
	if atomic.LoadInt32(&wp.started) == 0 {
		return fmt.Errorf("worker pool not started")
	}
	if atomic.LoadInt32(&wp.stopped) == 1 {
		return fmt.Errorf("worker pool is stopped")
	}

	if wp.rateLimiter != nil {
		rateLimitCtx := ctx
		if wp.config.RateLimit.Timeout > 0 {
			var cancel context.CancelFunc
			rateLimitCtx, cancel = context.WithTimeout(ctx, wp.config.RateLimit.Timeout)
			defer cancel()
		}

		if err := wp.rateLimiter.Wait(rateLimitCtx); err != nil {
			return fmt.Errorf("rate limit exceeded: %w", err)
		}
	}

	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}

	select {
	case wp.jobQueue <- job:
		atomic.AddInt64(&wp.stats.queuedJobs, 1)
		atomic.AddInt64(&wp.stats.jobsSubmitted, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool context cancelled")
	}
}

// GetStats returns worker pool statistics
func (wp *WorkerPoolImpl) GetStats() WorkerPoolStats {
	totalJobs := atomic.LoadInt64(&wp.stats.completedJobs) + atomic.LoadInt64(&wp.stats.failedJobs)
	var avgWaitTime, avgProcessingTime time.Duration

	if totalJobs > 0 {
		avgWaitTime = time.Duration(atomic.LoadInt64(&wp.stats.totalWaitTime) / totalJobs)
		avgProcessingTime = time.Duration(atomic.LoadInt64(&wp.stats.totalProcessingTime) / totalJobs)
	}

	return WorkerPoolStats{
		Size:                  int(atomic.LoadInt64(&wp.stats.size)),
		ActiveWorkers:         int(atomic.LoadInt64(&wp.stats.activeWorkers)),
		QueuedJobs:            int(atomic.LoadInt64(&wp.stats.queuedJobs)),
		CompletedJobs:         int(atomic.LoadInt64(&wp.stats.completedJobs)),
		FailedJobs:            int(atomic.LoadInt64(&wp.stats.failedJobs)),
		RetriedJobs:           int(atomic.LoadInt64(&wp.stats.retriedJobs)),
		AverageWaitTime:       avgWaitTime,
		AverageProcessingTime: avgProcessingTime,
	}
}

// Resize changes the number of workers
func (wp *WorkerPoolImpl) Resize(size int) error {
	if size <= 0 {
		return fmt.Errorf("worker pool size must be positive")
	}
	if atomic.LoadInt32(&wp.started) == 0 || atomic.LoadInt32(&wp.stopped) == 1 {
		return fmt.Errorf("worker pool is not running")
	}

	wp.mu.Lock()
	defer wp.mu.Unlock()

	currentSize := len(wp.workers)
	if size == currentSize {
		return nil
	}

	if size > currentSize {
		for i := currentSize; i < size; i++ {
			w := wp.newWorker(i)
			wp.workers = append(wp.workers, w)
			wp.wg.Add(1)
			go w.start()
		}
	} else {
		for i := size; i < currentSize; i++ {
			close(wp.workers[i].quit)
		}
		wp.workers = wp.workers[:size]
	}

	atomic.StoreInt64(&wp.stats.size, int64(size))
	wp.config.Size = size

	return nil
}

// start begins the worker's job processing loop
func (w *worker) start() {
	defer w.pool.wg.Done()

	for {
		select {
		case <-w.quit:
			return
		case <-w.ctx.Done():
			return
		default:
		}

		select {
		case job := <-w.jobQueue:
			w.processJob(job)
		case <-w.quit:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

// processJob runs a job, retrying transient failures only.
func (w *worker) processJob(job *Job) {
	atomic.AddInt64(&w.pool.stats.activeWorkers, 1)
	atomic.AddInt64(&w.pool.stats.queuedJobs, -1)
	atomic.StoreInt32(&w.active, 1)

	defer func() {
		atomic.AddInt64(&w.pool.stats.activeWorkers, -1)
		atomic.StoreInt32(&w.active, 0)
	}()

	startTime := time.Now()
	waitTime := startTime.Sub(job.ScheduledAt)

	var err error
	for attempt := 0; attempt <= w.pool.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(w.pool.config.RetryInterval):
			case <-w.ctx.Done():
				err = fmt.Errorf("job %s abandoned: %w", job.ID, w.ctx.Err())
			}
			if w.ctx.Err() != nil {
				break
			}
			job.RetryCount = attempt
			atomic.AddInt64(&w.pool.stats.retriedJobs, 1)
		}

		err = w.executeJob(job)
		if err == nil || !isRetryableError(err) {
			break
		}
	}

	duration := time.Since(startTime)

	atomic.AddInt64(&w.pool.stats.totalWaitTime, waitTime.Nanoseconds())
	atomic.AddInt64(&w.pool.stats.totalProcessingTime, duration.Nanoseconds())

	if err != nil {
		atomic.AddInt64(&w.pool.stats.failedJobs, 1)
	} else {
		atomic.AddInt64(&w.pool.stats.completedJobs, 1)
	}

	res := &jobResult{
		job:       job,
		err:       err,
		duration:  duration,
		timestamp: time.Now(),
	}

	select {
	case w.resultQueue <- res:
	case <-w.ctx.Done():
		job.complete(err)
	}
}

// executeJob runs one attempt under the job timeout and turns panics into
// errors.
func (w *worker) executeJob(job *Job) (err error) {
	ctx := w.ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()

	return job.Run(ctx)
}

// processResults processes job results
func (wp *WorkerPoolImpl) processResults() {
	defer wp.resultsWg.Done()

	for {
		select {
		case result := <-wp.resultQueue:
			wp.handleJobResult(result)
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPoolImpl) handleJobResult(result *jobResult) {
	if result.err != nil {
		wp.logger.Warn("Sweep job failed",
			zap.String("job_id", result.job.ID),
			zap.String("sweep", result.job.Sweep),
			zap.String("subject_id", result.job.SubjectID),
			zap.Int("retries", result.job.RetryCount),
			zap.Duration("duration", result.duration),
			zap.Error(result.err))
	}
	result.job.complete(result.err)
}

func (j *Job) complete(err error) {
	if j.done != nil {
		j.done(err)
	}
}

// isRetryableError reports whether another attempt may succeed. Only store
// failures are retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return engerrors.IsTransient(err)
}
