package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"client-optimizer/internal/engine"
	"client-optimizer/pkg/config"
	"client-optimizer/pkg/logger"
	"client-optimizer/pkg/metrics"
)

// Server exposes health, Prometheus metrics and engine stats over HTTP.
type Server struct {
	config       *config.OptimizerConfig
	logger       *logger.Logger
	health       *HealthChecker
	metrics      *metrics.PrometheusMetrics
	orchestrator *engine.Orchestrator
	router       *gin.Engine
	server       *http.Server

	mu              sync.RWMutex
	started         bool
	startTime       time.Time
	requestsServed  int64
	lastRequestTime int64
}

// ServerStats describes the HTTP server itself.
type ServerStats struct {
	Started         bool      `json:"started"`
	StartTime       time.Time `json:"start_time"`
	Uptime          string    `json:"uptime"`
	RequestsServed  int64     `json:"requests_served"`
	LastRequestTime time.Time `json:"last_request_time"`
	Address         string    `json:"address"`
}

// StatsResponse is the /stats body.
type StatsResponse struct {
	Server     ServerStats             `json:"server"`
	Metrics    *metrics.Summary        `json:"metrics,omitempty"`
	Population *engine.PopulationStats `json:"population,omitempty"`
	Sweeps     []engine.SchedulerStats `json:"sweeps,omitempty"`
	WorkerPool *engine.WorkerPoolStats `json:"worker_pool,omitempty"`
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPrometheus serves pm's registry and records request metrics into it.
func WithPrometheus(pm *metrics.PrometheusMetrics) ServerOption {
	return func(s *Server) { s.metrics = pm }
}

// WithOrchestrator adds sweep and population stats to /stats.
func WithOrchestrator(o *engine.Orchestrator) ServerOption {
	return func(s *Server) { s.orchestrator = o }
}

// WithServerLogger sets the request logger.
func WithServerLogger(l *logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the router; nothing listens until Run.
func NewServer(cfg *config.OptimizerConfig, health *HealthChecker, opts ...ServerOption) *Server {
	s := &Server{
		config: cfg,
		logger: logger.NewNop(),
		health: health,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestCountingMiddleware())
	router.Use(logger.GinMiddleware(s.logger, &s.config.Logging.CorrelationID))

	mon := s.config.Monitoring
	if mon.Health.Enabled && s.health != nil {
		s.health.Register(router)
	}
	if mon.Prometheus.Enabled && s.metrics != nil {
		handler := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})
		router.GET(pathOr(mon.Prometheus.Path, "/metrics"), gin.WrapH(handler))
	}
	router.GET(pathOr(mon.StatsPath, "/stats"), s.statsHandler)

	return router
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.server = &http.Server{
		Addr:         listener.Addr().String(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
	s.started = true
	s.startTime = time.Now()
	s.mu.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if s.health != nil {
		s.health.MarkShuttingDown()
	}
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// GetStats returns server statistics.
func (s *Server) GetStats() ServerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ServerStats{
		Started:        s.started,
		StartTime:      s.startTime,
		RequestsServed: atomic.LoadInt64(&s.requestsServed),
	}
	if s.started {
		stats.Uptime = time.Since(s.startTime).String()
	}
	if t := atomic.LoadInt64(&s.lastRequestTime); t > 0 {
		stats.LastRequestTime = time.Unix(0, t)
	}
	if s.server != nil {
		stats.Address = s.server.Addr
	}
	return stats
}

// requestCountingMiddleware counts requests and records their latency
// under the matched route.
func (s *Server) requestCountingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		atomic.AddInt64(&s.requestsServed, 1)
		atomic.StoreInt64(&s.lastRequestTime, start.UnixNano())

		c.Next()

		if s.metrics != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.RecordRequest(route, c.Writer.Status(), time.Since(start))
		}
	}
}

func (s *Server) statsHandler(c *gin.Context) {
	resp := StatsResponse{Server: s.GetStats()}
	if s.metrics != nil {
		summary := s.metrics.Summary()
		resp.Metrics = &summary
	}
	if s.orchestrator != nil {
		resp.Population = s.orchestrator.Sweeper().LatestStats(c.Request.Context())
		resp.Sweeps = s.orchestrator.Stats()
		pool := s.orchestrator.WorkerPoolStats()
		resp.WorkerPool = &pool
	}
	c.JSON(http.StatusOK, resp)
}
