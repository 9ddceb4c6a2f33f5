// Package main is the entry point for the Run Community Hub background worker.
//
// The worker owns the periodic reconciliation tasks:
// - Incremental import of new runs from the results pipeline
// - Full-corpus backfill that repairs drifted ranks, points, and totals
//
// The API server handles per-operation reconciliation; the worker is the
// safety net that squares away whatever drifts between operations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runhub/run-community-hub/config"

	// Application layer
	"github.com/runhub/run-community-hub/internal/application/command"
	"github.com/runhub/run-community-hub/internal/application/eventhandler"

	// Domain layer
	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/runhub/run-community-hub/internal/infrastructure/external/results"
	"github.com/runhub/run-community-hub/internal/infrastructure/messaging"
	"github.com/runhub/run-community-hub/internal/infrastructure/persistence/postgres"
	"github.com/runhub/run-community-hub/internal/infrastructure/persistence/redis"
	"github.com/runhub/run-community-hub/internal/infrastructure/scheduler"
	"github.com/runhub/run-community-hub/internal/infrastructure/scheduler/jobs"
	"github.com/runhub/run-community-hub/internal/infrastructure/service"

	// Packages
	"github.com/runhub/run-community-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting Run Community Hub Worker",
		"env", cfg.App.Environment,
		"debug", cfg.App.Debug,
		"version", cfg.App.Version,
	)

	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS (the worker also needs the current schema)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("checking database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional, for board cache invalidation after backfill)
	// ─────────────────────────────────────────────────────────────────────────
	var redisCache *redis.Cache
	var boardCache *redis.BoardCache
	var nameCache *redis.NameCache

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, cache invalidation disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			boardCache = redis.NewBoardCache(redisCache, appLog)
			if cfg.Features.IsEnabled(config.FeatureLinkNameCache, nil) {
				nameCache = redis.NewNameCache(redisCache, appLog)
			}
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. RECONCILIATION ENGINE
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing reconciliation engine...")
	runRepo := postgres.NewRunRepositoryWithLimit(dbConn, cfg.Reconcile.FetchLimit)
	playerRepo := postgres.NewPlayerRepository(dbConn)
	registryRepo := postgres.NewRegistryRepository(dbConn)
	batchWriter := postgres.NewBatchWriterWithChunkSize(dbConn, cfg.Reconcile.BatchSize)

	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log

	// The worker publishes over Redis Pub/Sub when it can, so API instances
	// hear about rank rewrites and drop their cached boards.
	var eventBus shared.EventBus
	if redisCache != nil {
		redisBus, busErr := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisAdapter(redisCache.Client()),
			ChannelName:    redis.PubSubChannel("domain"),
			LocalBusConfig: localBusConfig,
			Logger:         log,
		})
		if busErr != nil {
			return fmt.Errorf("failed to create redis event bus: %w", busErr)
		}
		defer func() {
			_ = redisBus.Close()
		}()
		eventBus = redisBus
	} else {
		localBus := messaging.NewInMemoryEventBus(localBusConfig)
		defer func() {
			_ = localBus.Close()
		}()
		eventBus = localBus
	}

	if boardCache != nil && cfg.Features.IsEnabled(config.FeatureReconcileEventBus, nil) {
		rankChanged := eventhandler.NewOnRankChangedHandler(boardCache, log)
		if err := rankChanged.Register(eventBus); err != nil {
			return fmt.Errorf("failed to register rank-changed handler: %w", err)
		}
	}

	formula := service.NewPointsFormula()
	names := service.NewRegistryNames(registryRepo, appLog)
	resolver := service.NewLinkingResolver(playerRepo, nameCache, appLog)
	calc := board.NewCalculator(runRepo, formula, names, cfg.Reconcile.FetchLimit)

	// Backfill emits one rank-changed event per recomputed group. The buffer
	// absorbs those bursts and hands them to Redis in batches instead of one
	// publish per group.
	publishBus := messaging.NewBufferedEventBus(messaging.BufferedEventBusConfig{
		Inner:         eventBus,
		BufferSize:    256,
		FlushInterval: 2 * time.Second,
		Logger:        log,
	})
	defer func() {
		_ = publishBus.Close()
	}()

	rec := command.NewReconciler(runRepo, playerRepo, resolver, calc, batchWriter, publishBus, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. SCHEDULER & JOBS
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler is disabled, worker has nothing to do")
		return nil
	}

	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedConfig)

	cron := scheduler.NewCronScheduler(
		scheduler.WithLocation(cfg.App.Location),
		scheduler.WithCronLogger(log),
	)

	// Backfill: the full-corpus repair pass, run off-peak by cron.
	if cfg.Features.IsEnabled(config.FeatureImportBackfill, nil) {
		backfillHandler := command.NewBackfillHandler(rec, cfg.Reconcile.FetchLimit)

		backfillJobCfg := jobs.DefaultBackfillJobConfig()
		backfillJobCfg.Timeout = cfg.Scheduler.JobTimeout

		// A nil *redis.BoardCache must not reach the interface slot.
		var flusher jobs.BoardFlusher
		if boardCache != nil {
			flusher = boardCache
		}

		backfillJob := jobs.NewBackfillJob(backfillHandler, flusher, log, backfillJobCfg)
		if err := cron.AddJob(backfillJob.Name(), cfg.Scheduler.BackfillCron, backfillJob); err != nil {
			return fmt.Errorf("failed to register backfill job: %w", err)
		}
		log.Info("registered backfill job", "cron", cfg.Scheduler.BackfillCron)
	}

	// Incremental import: needs the results pipeline client.
	if cfg.Features.IsEnabled(config.FeatureImportScheduled, nil) {
		if cfg.Results.BaseURL == "" {
			log.Warn("RESULTS_BASE_URL not set, incremental import disabled")
		} else {
			clientCfg := results.DefaultClientConfig(cfg.Results.BaseURL)
			clientCfg.APIKey = cfg.Results.APIKey
			clientCfg.Timeout = cfg.Results.RequestTimeout
			clientCfg.PageSize = cfg.Results.PageSize
			clientCfg.RateLimiterConfig.RequestsPerSecond = cfg.Results.RequestsPerSecond
			clientCfg.RateLimiterConfig.BurstSize = cfg.Results.BurstSize
			clientCfg.RateLimiterConfig.MinInterval = cfg.Results.MinInterval
			clientCfg.RateLimiterConfig.WaitTimeout = cfg.Results.WaitTimeout
			clientCfg.Logger = log
			clientCfg.Debug = cfg.App.Debug
			resultsClient := results.NewClient(clientCfg)

			importHandler := command.NewImportRunsHandler(rec, resultsClient, cfg.Scheduler.ImportLimit)

			importJobCfg := jobs.DefaultImportRunsJobConfig()
			importJobCfg.Limit = cfg.Scheduler.ImportLimit
			importJobCfg.Overlap = cfg.Scheduler.ImportOverlap

			importJob := jobs.NewImportRunsJob(importHandler, log, importJobCfg)
			if err := sched.Register(importJob, scheduler.NewIntervalSchedule(cfg.Scheduler.ImportInterval)); err != nil {
				return fmt.Errorf("failed to register import job: %w", err)
			}
			log.Info("registered import job", "interval", cfg.Scheduler.ImportInterval.String())
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. START & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting schedulers...")
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := cron.Start(ctx); err != nil {
		return fmt.Errorf("failed to start cron scheduler: %w", err)
	}

	log.Info("Run Community Hub Worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	cron.Stop()
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler gracefully", "error", err)
	}

	for _, job := range sched.Jobs() {
		log.Info("job summary",
			"job", job.Name,
			"runs", job.Runs,
			"failures", job.Failures,
			"last_run", job.LastRun,
		)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger configures structured logging for the process.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
