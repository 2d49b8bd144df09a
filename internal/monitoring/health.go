package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"client-optimizer/pkg/config"
	"client-optimizer/pkg/state"
)

// Pinger is implemented by stores with a cheap connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerStater reports the state of a circuit breaker.
type BreakerStater interface {
	State() gobreaker.State
}

// HealthChecker serves the health, readiness and liveness endpoints.
type HealthChecker struct {
	store     state.ProfileStore
	breaker   BreakerStater
	config    config.HealthConfig
	logger    *zap.Logger
	startTime time.Time
	version   string

	shutdownMutex  sync.RWMutex
	isShuttingDown bool
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Uptime    float64                `json:"uptime_seconds"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ReadinessResponse is the /ready body.
type ReadinessResponse struct {
	Ready             bool                   `json:"ready"`
	Reason            string                 `json:"reason,omitempty"`
	InitializationAge float64                `json:"initialization_age_seconds"`
	Details           map[string]interface{} `json:"details,omitempty"`
}

// NewHealthChecker creates a checker over store. breaker may be nil.
func NewHealthChecker(store state.ProfileStore, breaker BreakerStater, cfg config.HealthConfig, version string, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	return &HealthChecker{
		store:     store,
		breaker:   breaker,
		config:    cfg,
		logger:    logger.Named("health"),
		startTime: time.Now(),
		version:   version,
	}
}

// Register mounts the endpoints on router at their configured paths.
func (hc *HealthChecker) Register(router gin.IRoutes) {
	router.GET(pathOr(hc.config.Path, "/health"), hc.healthHandler)
	router.GET(pathOr(hc.config.ReadyPath, "/ready"), hc.readyHandler)
	router.GET(pathOr(hc.config.LivePath, "/live"), hc.livenessHandler)
}

// checkStore pings the store, or counts its profiles when it cannot be pinged.
func (hc *HealthChecker) checkStore(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, hc.config.CheckTimeout)
	defer cancel()

	details := map[string]interface{}{}
	if p, ok := hc.store.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return details, err
		}
	}
	count, err := hc.store.Count(ctx)
	if err != nil {
		return details, err
	}
	details["profiles"] = count
	return details, nil
}

func (hc *HealthChecker) healthHandler(c *gin.Context) {
	if hc.IsShuttingDown() {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "shutting_down",
			Version:   hc.version,
			Uptime:    time.Since(hc.startTime).Seconds(),
			Timestamp: time.Now(),
		})
		return
	}

	details := make(map[string]interface{})
	overallStatus := "healthy"

	if hc.store != nil {
		storeDetails, err := hc.checkStore(c.Request.Context())
		if err != nil {
			storeDetails["error"] = err.Error()
			overallStatus = "unhealthy"
		}
		details["store"] = storeDetails
	}

	if hc.breaker != nil {
		st := hc.breaker.State()
		details["circuit_breaker"] = st.String()
		if st != gobreaker.StateClosed && overallStatus == "healthy" {
			overallStatus = "degraded"
		}
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	details["runtime"] = map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"memory_mb":  m.Alloc / 1024 / 1024,
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, HealthResponse{
		Status:    overallStatus,
		Version:   hc.version,
		Uptime:    time.Since(hc.startTime).Seconds(),
		Timestamp: time.Now(),
		Details:   details,
	})
}

func (hc *HealthChecker) readyHandler(c *gin.Context) {
	age := time.Since(hc.startTime).Seconds()
	if hc.IsShuttingDown() {
		c.JSON(http.StatusServiceUnavailable, ReadinessResponse{
			Ready:             false,
			Reason:            "server is shutting down",
			InitializationAge: age,
		})
		return
	}
	if hc.store == nil {
		c.JSON(http.StatusServiceUnavailable, ReadinessResponse{
			Ready:             false,
			Reason:            "profile store not initialized",
			InitializationAge: age,
		})
		return
	}

	details, err := hc.checkStore(c.Request.Context())
	if err != nil {
		hc.logger.Warn("Readiness check failed", zap.Error(err))
		details["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, ReadinessResponse{
			Ready:             false,
			Reason:            fmt.Sprintf("profile store not ready: %v", err),
			InitializationAge: age,
			Details:           details,
		})
		return
	}

	c.JSON(http.StatusOK, ReadinessResponse{
		Ready:             true,
		Reason:            "all systems ready",
		InitializationAge: age,
		Details:           details,
	})
}

func (hc *HealthChecker) livenessHandler(c *gin.Context) {
	if hc.IsShuttingDown() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"alive":     false,
			"status":    "shutting_down",
			"timestamp": time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alive":     true,
		"status":    "running",
		"uptime":    time.Since(hc.startTime).Seconds(),
		"timestamp": time.Now(),
	})
}

// MarkShuttingDown makes every endpoint report unavailability.
func (hc *HealthChecker) MarkShuttingDown() {
	hc.shutdownMutex.Lock()
	defer hc.shutdownMutex.Unlock()
	hc.isShuttingDown = true
	hc.logger.Info("Health checker marked as shutting down")
}

func (hc *HealthChecker) IsShuttingDown() bool {
	hc.shutdownMutex.RLock()
	defer hc.shutdownMutex.RUnlock()
	return hc.isShuttingDown
}

func pathOr(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}
