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

	"github.com/odyssey-erp/wms-ledger/internal/app"
	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/observability"
	"github.com/odyssey-erp/wms-ledger/internal/periods"
	"github.com/odyssey-erp/wms-ledger/internal/platform/cache"
	"github.com/odyssey-erp/wms-ledger/internal/platform/db"
	"github.com/odyssey-erp/wms-ledger/internal/reconcile"
	"github.com/odyssey-erp/wms-ledger/internal/reports"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
	"github.com/odyssey-erp/wms-ledger/internal/tenant"
	"github.com/odyssey-erp/wms-ledger/jobs"
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
	logger := app.NewLogger(cfg, "ledger")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
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
	engineMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, logger)
	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	ledgerService.Observe(reportCache)
	reportService := reports.NewService(reports.NewRepository(pool), reportCache, logger)

	periodService := periods.NewService(
		periods.NewRepository(pool),
		ledgerService,
		periods.NewRedisLocker(redisClient, cfg.PeriodCloseLockTTL),
		auditLogger,
		logger,
	)

	redisOpts, err := cache.AsynqOpt(cfg.RedisAddr)
	if err != nil {
		logger.Error("queue redis options", slog.Any("error", err))
		os.Exit(1)
	}
	queue := jobs.NewClient(redisOpts, jobs.ClientConfig{MaxRetry: cfg.IntegrationMaxRetry})
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	integrationRepo := integration.NewRepository(pool)
	engine := integration.NewEngine(integrationRepo, ledgerService, integration.Rates{
		SalesTax:     cfg.SalesTaxRate,
		LaborPerHour: cfg.LaborRate,
	}, engineMetrics, logger)
	dispatcher := integration.NewDispatcher(integrationRepo, engine, queue, idempotencyStore, integration.DispatcherConfig{
		MaxAttempts: cfg.IntegrationOutboxAttempts,
	}, logger)
	monitor := integration.NewMonitor(integrationRepo, cfg.HealthPendingThreshold, logger)

	reconcileService := reconcile.NewService(reconcile.NewRepository(pool), engine, engineMetrics, cfg.ReconcileVarianceThreshold, logger)
	tenantService := tenant.NewService(tenant.NewRepository(pool), auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		TenantHandler:      tenant.NewHandler(logger, tenantService),
		LedgerHandler:      ledger.NewHandler(logger, ledgerService, periods.Guard(periodService, logger)),
		PeriodsHandler:     periods.NewHandler(logger, periodService),
		IntegrationHandler: integration.NewHandler(logger, dispatcher, engine, monitor, cfg.IntegrationAwaitTimeout),
		ReconcileHandler:   reconcile.NewHandler(logger, reconcileService),
		ReportsHandler:     reports.NewHandler(logger, reportService),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
