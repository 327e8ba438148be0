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

	"github.com/go-chi/chi/v5"
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
	"github.com/odyssey-erp/wms-ledger/jobs"
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
	logger := app.NewLogger(cfg, "worker")

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), auditLogger, logger)
	ledgerService.Observe(reports.NewCache(redisClient, cfg.ReportCacheTTL))
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
	}, jobMetrics, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	dispatcher := integration.NewDispatcher(integrationRepo, engine, queue, idempotencyStore, integration.DispatcherConfig{
		MaxAttempts: cfg.IntegrationOutboxAttempts,
	}, logger)
	monitor := integration.NewMonitor(integrationRepo, cfg.HealthPendingThreshold, logger)

	reconcileRepo := reconcile.NewRepository(pool)
	reconcileService := reconcile.NewService(reconcileRepo, engine, jobMetrics, cfg.ReconcileVarianceThreshold, logger)

	eventJob := jobs.NewIntegrationEventJob(dispatcher, logger, jobMetrics)
	reconcileJob := jobs.NewReconcileJob(reconcileService, logger, jobMetrics)
	healthJob := jobs.NewHealthCheckJob(monitor, reconcileRepo, logger, jobMetrics)
	sweepJob := jobs.NewOutboxSweepJob(dispatcher, logger, jobMetrics).WithKeyRetention(idempotencyStore, cfg.IdempotencyKeyRetention)
	performanceJob := jobs.NewPerformanceReportJob(monitor, reconcileRepo, logger, jobMetrics)
	integrityJob := jobs.NewGLIntegrityJob(periodService, reconcileRepo, logger, jobMetrics)
	jobLock := jobs.NewJobLock(redisClient, time.Hour, logger)

	reconcileTask, err := jobs.NewReconcileTask(time.Time{})
	if err != nil {
		logger.Error("build reconcile task", slog.Any("error", err))
		os.Exit(1)
	}
	sweepTask, err := jobs.NewOutboxSweepTask(15*time.Minute, 500)
	if err != nil {
		logger.Error("build outbox sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	performanceTask, err := jobs.NewPerformanceReportTask(7)
	if err != nil {
		logger.Error("build performance task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIntegrationEvent, Handler: eventJob.Handle},
			{Type: jobs.TaskReconcile, Handler: jobLock.Exclusive(jobs.TaskReconcile, reconcileJob.Handle)},
			{Type: jobs.TaskHealthCheck, Handler: healthJob.Handle},
			{Type: jobs.TaskOutboxSweep, Handler: jobLock.Exclusive(jobs.TaskOutboxSweep, sweepJob.Handle)},
			{Type: jobs.TaskPerformanceReport, Handler: performanceJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: jobLock.Exclusive(jobs.TaskGLIntegrity, integrityJob.Handle)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CronReconcile, Task: reconcileTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CronHealth, Task: jobs.NewHealthCheckTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.CronOutboxSweep, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.CronPerformance, Task: performanceTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: cfg.CronIntegrity, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/metrics", metrics.Handler())
	mux.Route("/jobs", jobs.NewHandler(inspector, logger).MountRoutes)
	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting worker metrics server", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("scheduler_tz", cfg.Location().String()))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
