package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tintworks/dyeops/cmd/dyeops/cli"
	"github.com/tintworks/dyeops/internal/analytics"
	analytichttp "github.com/tintworks/dyeops/internal/analytics/http"
	"github.com/tintworks/dyeops/internal/app"
	"github.com/tintworks/dyeops/internal/audit"
	audithttp "github.com/tintworks/dyeops/internal/audit/http"
	"github.com/tintworks/dyeops/internal/auth"
	"github.com/tintworks/dyeops/internal/inventory"
	"github.com/tintworks/dyeops/internal/notifications"
	"github.com/tintworks/dyeops/internal/observability"
	"github.com/tintworks/dyeops/internal/platform/cache"
	"github.com/tintworks/dyeops/internal/platform/db"
	"github.com/tintworks/dyeops/internal/procurement"
	"github.com/tintworks/dyeops/internal/rbac"
	"github.com/tintworks/dyeops/internal/realtime"
	"github.com/tintworks/dyeops/internal/requisition"
	"github.com/tintworks/dyeops/internal/shared"
	"github.com/tintworks/dyeops/internal/suppliers"
	"github.com/tintworks/dyeops/jobs"
	"github.com/tintworks/dyeops/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = db.Migrate(ctx, cfg.PGDSN, migrations.FS)
	case "jobs":
		jobsCLI := cli.NewJobsCLI(cfg.Redis().Asynq())
		err = jobsCLI.Run(ctx, os.Args[2:], os.Stdout)
		if closeErr := jobsCLI.Close(); closeErr != nil {
			logger.Warn("jobs cli close", slog.Any("error", closeErr))
		}
	default:
		logger.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrationsAuto {
		if err := db.Migrate(ctx, cfg.PGDSN, migrations.FS); err != nil {
			return err
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}
	auditLogger := shared.NewAuditLogger(dbpool)

	hub := realtime.NewHub(logger)
	bridge := realtime.NewRedisBridge(redisClient, logger)
	go func() {
		if err := bridge.Run(ctx, hub); err != nil {
			logger.Error("realtime bridge", slog.Any("error", err))
		}
	}()
	notificationService := notifications.NewService(notifications.NewRepository(dbpool), bridge, logger)

	jobClient, err := jobs.NewClient(cfg.Redis().Asynq(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	analyticsCache := analytics.NewCache(redisClient, cfg.AnalyticsCacheTTL, logger)
	analyticsService := analytics.NewService(analytics.NewRepository(dbpool), analyticsCache)

	stockObservers := inventory.Observers{
		metrics,
		analyticsCache,
		inventory.LowStockAlerter{Notifier: notificationService, Logger: logger},
		jobClient,
	}
	transitions := shared.Transitions{metrics, analyticsCache}

	authRepo := auth.NewRepository(dbpool)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL).WithAccounts(authRepo)
	authService := auth.NewService(authRepo, tokens, auditLogger)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, stockObservers)
	requisitionService := requisition.NewService(requisition.NewRepository(dbpool), requisition.Deps{
		Notifier:    notificationService,
		Audit:       auditLogger,
		Stock:       stockObservers,
		Transitions: transitions,
		Logger:      logger,
	})
	procurementService := procurement.NewService(procurement.NewRepository(dbpool), procurement.Deps{
		Notifier:    notificationService,
		Audit:       auditLogger,
		Stock:       stockObservers,
		Transitions: transitions,
		Logger:      logger,
	})
	supplierService := suppliers.NewService(suppliers.NewRepository(dbpool))
	auditService := audit.NewService(audit.NewRepository(dbpool))

	inspector := asynq.NewInspector(cfg.Redis().Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Tokens:               tokens,
		Auditor:              auditLogger,
		Metrics:              metrics,
		AuthHandler:          auth.NewHandler(logger, authService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(),
		InventoryHandler:     inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		RequisitionHandler:   requisition.NewHandler(logger, requisitionService, rbacMiddleware),
		ProcurementHandler:   procurement.NewHandler(logger, procurementService, rbacMiddleware),
		SupplierHandler:      suppliers.NewHandler(logger, supplierService, rbacMiddleware),
		NotificationsHandler: notifications.NewHandler(logger, notificationService, rbacMiddleware),
		RealtimeHandler:      realtime.NewHandler(hub, tokens, logger, allowOrigins(cfg.CORSOrigins)),
		AnalyticsHandler:     analytichttp.NewHandler(logger, analyticsService, rbacMiddleware),
		AuditHandler:         audithttp.NewHandler(logger, auditService, rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// allowOrigins accepts websocket upgrades from the configured CORS origins
// and from same-origin clients that send no Origin header.
func allowOrigins(origins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin)
	}
}
