// Package main is the entry point for the Run Community Hub API server.
//
// The server exposes the public board and profile reads plus the API-key
// protected moderation surface that drives the reconciliation engine.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: ranking and points logic with no external dependencies
// - Application: use case orchestration (Commands/Queries/Event handlers)
// - Infrastructure: PostgreSQL, Redis, the results pipeline client
// - Interface: REST API handlers
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/runhub/run-community-hub/config"

	// Application layer
	"github.com/runhub/run-community-hub/internal/application/command"
	"github.com/runhub/run-community-hub/internal/application/eventhandler"
	"github.com/runhub/run-community-hub/internal/application/query"

	// Domain layer
	"github.com/runhub/run-community-hub/internal/domain/board"
	"github.com/runhub/run-community-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/runhub/run-community-hub/internal/infrastructure/external/results"
	"github.com/runhub/run-community-hub/internal/infrastructure/messaging"
	"github.com/runhub/run-community-hub/internal/infrastructure/persistence/postgres"
	"github.com/runhub/run-community-hub/internal/infrastructure/persistence/redis"
	"github.com/runhub/run-community-hub/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/runhub/run-community-hub/internal/interface/http"
	"github.com/runhub/run-community-hub/internal/interface/http/handlers"

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
	log.Info("starting Run Community Hub API",
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
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("running database migrations...")
	migrator := postgres.NewMigrator(dbConn)
	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. REDIS (optional)
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
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			log.Warn("failed to connect to Redis, caching disabled", "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			if cfg.Features.IsEnabled(config.FeatureBoardCache, nil) {
				boardCache = redis.NewBoardCache(redisCache, appLog)
			}
			if cfg.Features.IsEnabled(config.FeatureLinkNameCache, nil) {
				nameCache = redis.NewNameCache(redisCache, appLog)
			}
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	runRepo := postgres.NewRunRepositoryWithLimit(dbConn, cfg.Reconcile.FetchLimit)
	playerRepo := postgres.NewPlayerRepository(dbConn)
	registryRepo := postgres.NewRegistryRepository(dbConn)
	batchWriter := postgres.NewBatchWriterWithChunkSize(dbConn, cfg.Reconcile.BatchSize)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	localBusConfig := messaging.DefaultInMemoryEventBusConfig()
	localBusConfig.Logger = log
	localBusConfig.AsyncMode = true

	// With Redis available the bus goes through Pub/Sub, so rank rewrites done
	// by the worker process invalidate this instance's cached boards too.
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
			log.Info("closing event bus...")
			_ = redisBus.Close()
		}()
		eventBus = redisBus
	} else {
		localBus := messaging.NewInMemoryEventBus(localBusConfig)
		defer func() {
			log.Info("closing event bus...")
			_ = localBus.Close()
		}()
		eventBus = localBus
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. DOMAIN SERVICES & RECONCILER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing reconciliation engine...")
	formula := service.NewPointsFormula()
	names := service.NewRegistryNames(registryRepo, appLog)
	resolver := service.NewLinkingResolver(playerRepo, nameCache, appLog)
	calc := board.NewCalculator(runRepo, formula, names, cfg.Reconcile.FetchLimit)

	rec := command.NewReconciler(runRepo, playerRepo, resolver, calc, batchWriter, eventBus, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 9. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	var resultsClient *results.Client
	if cfg.Results.BaseURL != "" {
		log.Info("initializing results pipeline client...", "base_url", cfg.Results.BaseURL)
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
		resultsClient = results.NewClient(clientCfg)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. APPLICATION LAYER (Commands, Queries)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	recomputeOnDelete := cfg.Reconcile.DeleteTriggersRecompute &&
		cfg.Features.IsEnabled(config.FeatureReconcileDeleteRecompute, nil)

	verifyCmd := command.NewVerifyRunHandler(rec)
	unverifyCmd := command.NewUnverifyRunHandler(rec)
	editCmd := command.NewEditRunHandler(rec)
	toggleObsoleteCmd := command.NewToggleObsoleteHandler(rec)
	deleteCmd := command.NewDeleteRunHandler(rec, recomputeOnDelete)
	recomputeCmd := command.NewRecomputeTotalsHandler(rec)

	// Claim and autolink routes answer 501 while their flags are off.
	var claimCmd *command.ClaimRunHandler
	if cfg.Features.IsEnabled(config.FeatureLinkClaims, nil) {
		claimCmd = command.NewClaimRunHandler(rec)
	}
	var autolinkCmd *command.AutoLinkRunsHandler
	if cfg.Features.IsEnabled(config.FeatureLinkAutolink, nil) {
		autolinkCmd = command.NewAutoLinkRunsHandler(rec)
	}
	backfillCmd := command.NewBackfillHandler(rec, cfg.Reconcile.FetchLimit)

	var importCmd *command.ImportRunsHandler
	if resultsClient != nil {
		importCmd = command.NewImportRunsHandler(rec, resultsClient, cfg.Scheduler.ImportLimit)
	}

	// The typed-nil trap: a nil *redis.BoardCache wrapped in the interface
	// is not a nil interface, so only assign when the cache exists.
	var boardQueryCache query.BoardCache
	if boardCache != nil {
		boardQueryCache = boardCache
	}
	boardQuery := query.NewGetBoardHandler(runRepo, boardQueryCache, cfg.Reconcile.BoardCacheTTL)
	profileQuery := query.NewGetPlayerProfileHandler(playerRepo, runRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. EVENT DISPATCH
	// ─────────────────────────────────────────────────────────────────────────
	if boardCache != nil && cfg.Features.IsEnabled(config.FeatureReconcileEventBus, nil) {
		log.Info("registering event handlers...")

		dispatcher := messaging.NewDispatcherBuilder(eventBus).
			WithLogger(log).
			Build()
		dispatcher.Use(messaging.RecoveryMiddleware(log))
		dispatcher.Use(messaging.MetricsMiddleware(dispatcher.Metrics()))

		rankChanged := eventhandler.NewOnRankChangedHandler(boardCache, log)
		if err := dispatcher.Register(shared.EventRankChanged, "board-cache-invalidation", rankChanged.Handle); err != nil {
			return fmt.Errorf("failed to register rank-changed handler: %w", err)
		}
		if err := dispatcher.Start(); err != nil {
			return fmt.Errorf("failed to start event dispatcher: %w", err)
		}
		defer func() {
			_ = dispatcher.Stop()
		}()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 12. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	healthChecker := handlers.NewCompositeHealthChecker(cfg.App.Version)
	healthChecker.AddCheck("database", handlers.NewDatabaseCheck(dbConn))
	if redisCache != nil {
		healthChecker.AddCheck("cache", handlers.NewCacheCheck(redisCache))
	}
	if resultsClient != nil {
		healthChecker.AddCheck("results_api", handlers.NewExternalAPICheck(resultsClient))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 13. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing HTTP server...")

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Host = cfg.HTTP.Host
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	httpConfig.EnableCORS = cfg.HTTP.EnableCORS
	httpConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpConfig.EnableMetrics = cfg.HTTP.EnableMetrics
	httpConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	httpConfig.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpConfig.APIKeys = cfg.HTTP.APIKeys
	httpConfig.AllowFreshParam = cfg.Features.IsEnabled(config.FeatureBoardFreshParam, nil)
	httpConfig.AllowObsoleteParam = cfg.Features.IsEnabled(config.FeatureBoardObsoleteRows, nil)

	httpDeps := httpserver.Dependencies{
		GetBoardHandler:         boardQuery,
		GetPlayerProfileHandler: profileQuery,
		VerifyRunHandler:        verifyCmd,
		UnverifyRunHandler:      unverifyCmd,
		EditRunHandler:          editCmd,
		ToggleObsoleteHandler:   toggleObsoleteCmd,
		DeleteRunHandler:        deleteCmd,
		ClaimRunHandler:         claimCmd,
		AutoLinkRunsHandler:     autolinkCmd,
		RecomputeTotalsHandler:  recomputeCmd,
		BackfillHandler:         backfillCmd,
		ImportRunsHandler:       importCmd,
		Logger:                  appLog,
		HealthChecker:           healthChecker,
	}

	httpServer := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 14. START & GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", "address", httpServer.Address())
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	log.Info("Run Community Hub API is running", "http_address", httpServer.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		log.Error("service error", "error", err)
		return err
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		return err
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
