package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tintworks/dyeops/internal/analytics"
	"github.com/tintworks/dyeops/internal/app"
	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/observability"
	"github.com/tintworks/dyeops/internal/platform/cache"
	"github.com/tintworks/dyeops/internal/platform/db"
	"github.com/tintworks/dyeops/internal/realtime"
	"github.com/tintworks/dyeops/internal/shared"
	"github.com/tintworks/dyeops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := metrics.Jobs()

	// Notifications raised here reach API websocket clients through Redis.
	bridge := realtime.NewRedisBridge(redisClient, logger)
	notificationService := notifications.NewService(notifications.NewRepository(pool), bridge, logger)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), shared.NewAuditLogger(pool), nil)
	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL, logger)
	analyticsService := analytics.NewService(analytics.NewRepository(pool), analyticsCache)

	lowStockJob := &jobs.LowStockScanJob{
		Materials: inventoryService,
		Notifier:  notificationService,
		Logger:    logger,
		Metrics:   jobMetrics,
	}
	warmupJob := &jobs.AnalyticsWarmupJob{
		Analytics: analyticsService,
		Logger:    logger,
		Metrics:   jobMetrics,
	}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:   shared.NewIdempotencyStore(pool),
		Logger:  logger,
		Metrics: jobMetrics,
	}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.IdempotencyCleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Redis().Asynq(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskAnalyticsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockScanCron, Task: jobs.NewLowStockScanTask()},
			{Spec: cfg.AnalyticsWarmupCron, Task: jobs.NewAnalyticsWarmupTask(), Options: []asynq.Option{asynq.Unique(time.Minute)}},
			{Spec: cfg.IdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting metrics server", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
