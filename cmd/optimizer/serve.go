package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"client-optimizer/internal/engine"
	"client-optimizer/internal/monitoring"
	"client-optimizer/pkg/cache"
	"client-optimizer/pkg/config"
	"client-optimizer/pkg/logger"
	"client-optimizer/pkg/metrics"
	"client-optimizer/pkg/state"
	"client-optimizer/pkg/trend"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sweep scheduler and the monitoring server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	zl := log.Zap()

	log.Info("Starting client optimizer",
		"version", version,
		"config", configPath,
		"storage", cfg.Storage.Type,
	)

	pm := metrics.NewPrometheusMetrics(cfg.Monitoring.Prometheus.Namespace)

	store, breaker, err := openStore(ctx, cfg.Storage, zl, pm)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error("Failed to close profile store", "error", err)
		}
	}()

	var (
		locker   engine.Locker
		snapshot engine.SnapshotStore
	)
	if cfg.Redis.Enabled {
		rdb, err := cache.NewClient(ctx, cache.Config{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			Database:     cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = cache.NewRedisLocker(rdb, cfg.Redis.KeyPrefix, zl)
		snapshot = cache.NewSnapshotCache(rdb, cfg.Redis.KeyPrefix, cfg.Redis.StatsTTL, zl)
	}

	svc := engine.NewService(store, cfg.Engine,
		engine.WithLogger(zl),
		engine.WithMetrics(pm),
		engine.WithTrendAnalyzer(trend.NewAnalyzer(engine.TrendConfig(cfg.Trend))),
		engine.WithTracerProvider(otel.GetTracerProvider()),
	)

	var orch *engine.Orchestrator
	if cfg.Scheduler.Enabled {
		orch, err = engine.NewOrchestrator(svc, cfg.Scheduler, locker, snapshot)
		if err != nil {
			return fmt.Errorf("failed to create sweep orchestrator: %w", err)
		}
	}

	var manager *config.Manager
	if configPath != "" {
		manager = config.NewManager(configPath, config.WithLogger(zl))
		if orch != nil {
			if err := manager.Subscribe(orch); err != nil {
				return err
			}
		}
		if err := manager.Start(); err != nil {
			return err
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	if orch != nil {
		if err := orch.Start(gCtx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gCtx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return orch.Stop(stopCtx)
		})
	}

	if cfg.Monitoring.Enabled {
		var breakerState monitoring.BreakerStater
		if breaker != nil {
			breakerState = breaker
		}
		health := monitoring.NewHealthChecker(store, breakerState, cfg.Monitoring.Health, version, zl)
		srv := monitoring.NewServer(cfg, health,
			monitoring.WithPrometheus(pm),
			monitoring.WithServerLogger(log),
			monitoring.WithOrchestrator(orch),
		)
		g.Go(func() error {
			return srv.Run(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down client optimizer")
		if manager != nil {
			return manager.Stop()
		}
		return nil
	})

	log.Info("Client optimizer started")
	err = g.Wait()
	log.Info("Client optimizer shutdown complete")
	return err
}

// openStore opens the configured store, wrapped in a circuit breaker when
// enabled. The returned breaker is nil without one.
func openStore(ctx context.Context, cfg config.StorageConfig, zl *zap.Logger, rec metrics.Recorder) (state.ProfileStore, *state.BreakerStore, error) {
	var (
		store state.ProfileStore
		err   error
	)
	switch cfg.Type {
	case "memory", "":
		store = state.NewMemoryStore()
	case "file":
		fileCfg := state.DefaultFileStoreConfig()
		fileCfg.EnableCompression = cfg.File.Compression
		fileCfg.CreateBackups = cfg.File.CreateBackups
		fileCfg.MaxBackups = cfg.File.MaxBackups
		fileCfg.SyncWrites = cfg.File.SyncWrites
		if cfg.File.AutoSaveInterval > 0 {
			fileCfg.AutoSaveInterval = cfg.File.AutoSaveInterval
		}
		store, err = state.NewFileStore(cfg.File.Path, zl, fileCfg)
	case "mongo":
		store, err = state.NewMongoStore(ctx, state.MongoConfig{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			Collection:     cfg.Mongo.Collection,
			ConnectTimeout: cfg.Mongo.ConnectTimeout,
		}, zl)
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Type, err)
	}

	if !cfg.CircuitBreaker.Enabled {
		return store, nil, nil
	}
	breaker := state.NewBreakerStore(store, state.BreakerConfig{
		Name:             "profile-store",
		MaxRequests:      cfg.CircuitBreaker.MaxRequests,
		Interval:         cfg.CircuitBreaker.Interval,
		Timeout:          cfg.CircuitBreaker.Timeout,
		MinRequests:      cfg.CircuitBreaker.MinRequests,
		FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
	}, zl, func(name string, from, to gobreaker.State) {
		rec.RecordBreakerState(to.String())
	})
	return breaker, breaker, nil
}
