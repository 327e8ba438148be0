package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
)

// PerformanceReportJob logs the weekly integration performance of every tenant.
type PerformanceReportJob struct {
	Monitor HealthMonitor
	Tenants TenantLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPerformanceReportJob constructs the handler.
func NewPerformanceReportJob(monitor HealthMonitor, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *PerformanceReportJob {
	return &PerformanceReportJob{Monitor: monitor, Tenants: tenants, Logger: logger, Metrics: metrics, clock: utcNow}
}

// Handle builds the report for the trailing window.
func (j *PerformanceReportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Monitor == nil || j.Tenants == nil {
		return errors.New("performance report: handler not configured")
	}
	payload := PerformanceReportPayload{}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("performance report: bad payload: %w", asynq.SkipRetry)
		}
	}
	if payload.Days <= 0 {
		payload.Days = 7
	}
	tracker := jobMetricsOrDefault(j.Metrics).Track(TaskPerformanceReport)
	logger := jobLogger(j.Logger, TaskPerformanceReport)

	to := j.now()
	from := to.AddDate(0, 0, -payload.Days)
	tenants, err := j.Tenants.ListTenants(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("performance report: list tenants: %w", err))
	}
	var errs []error
	for _, tenantID := range tenants {
		p, err := j.Monitor.Performance(ctx, tenantID, from, to)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		logger.Info("integration performance",
			slog.String("tenant_id", tenantID),
			slog.Time("from", from),
			slog.Time("to", to),
			slog.Int("integration_entries", p.IntegrationEntries),
			slog.Int("invoices", p.Invoices),
			slog.Int("cost_allocations", p.CostAllocations),
			slog.String("revenue", p.RevenueRecognized.StringFixed(2)),
			slog.Int("failed_events", p.Events[integration.StatusFailed]+p.Events[integration.StatusDead]))
	}
	return tracker.End(errors.Join(errs...))
}

func (j *PerformanceReportJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return utcNow()
}
