package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/reconcile"
)

// Reconciler reconciles every tenant for one day.
type Reconciler interface {
	RunAll(ctx context.Context, day time.Time) ([]reconcile.Report, error)
}

// ReconcileJob runs the daily batch reconciliation.
type ReconcileJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob constructs the handler.
func NewReconcileJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes one reconciliation run. Per-tenant failures fail the task so
// asynq retries it; tenants already reconciled replay as duplicates.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("reconcile: bad payload: %w", asynq.SkipRetry)
		}
	}
	var day time.Time
	if payload.Date != "" {
		parsed, err := time.Parse(time.DateOnly, payload.Date)
		if err != nil {
			return fmt.Errorf("reconcile: bad date %q: %w", payload.Date, asynq.SkipRetry)
		}
		day = parsed
	}

	tracker := jobMetricsOrDefault(j.Metrics).Track(TaskReconcile)
	logger := jobLogger(j.Logger, TaskReconcile)
	start := time.Now()
	logger.Info("starting reconciliation", slog.String("date", payload.Date))

	reports, err := j.Service.RunAll(ctx, day)
	var redriven, failures int
	for _, r := range reports {
		redriven += r.Waves.Redriven + r.Shipments.Redriven
		failures += len(r.Failures)
	}
	if err != nil {
		logger.Error("reconciliation incomplete", slog.Any("error", err))
	}
	logger.Info("completed reconciliation",
		slog.Int("tenants", len(reports)),
		slog.Int("redriven", redriven),
		slog.Int("failures", failures),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(err)
}
