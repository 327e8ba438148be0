package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
)

// AnomalyIntegrationUnhealthy counts tenants whose health check reported a warning.
const AnomalyIntegrationUnhealthy = "integration_unhealthy"

// TenantLister enumerates tenants for fan-out jobs.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// HealthMonitor reads integration health and throughput.
type HealthMonitor interface {
	Health(ctx context.Context, tenantID string) (integration.Health, error)
	Performance(ctx context.Context, tenantID string, from, to time.Time) (integration.Performance, error)
}

// HealthCheckJob runs the hourly integration health snapshot for every tenant.
type HealthCheckJob struct {
	Monitor HealthMonitor
	Tenants TenantLister
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewHealthCheckJob constructs the handler.
func NewHealthCheckJob(monitor HealthMonitor, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *HealthCheckJob {
	return &HealthCheckJob{Monitor: monitor, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle checks each tenant; one failing tenant does not hide the others.
func (j *HealthCheckJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Monitor == nil || j.Tenants == nil {
		return errors.New("health check: handler not configured")
	}
	metrics := jobMetricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskHealthCheck)
	logger := jobLogger(j.Logger, TaskHealthCheck)

	tenants, err := j.Tenants.ListTenants(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("health check: list tenants: %w", err))
	}
	var errs []error
	warnings := 0
	for _, tenantID := range tenants {
		h, err := j.Monitor.Health(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		if !h.Healthy() {
			warnings++
			metrics.AddAnomalies(AnomalyIntegrationUnhealthy, tenantID, 1)
		}
	}
	logger.Info("integration health checked", slog.Int("tenants", len(tenants)), slog.Int("warnings", warnings))
	return tracker.End(errors.Join(errs...))
}
