package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/periods"
)

// AnomalyUnbalancedEntry counts stored entries whose lines do not balance.
const AnomalyUnbalancedEntry = "unbalanced_entry"

// IntegrityVerifier checks the open periods of a tenant.
type IntegrityVerifier interface {
	VerifyOpenPeriods(ctx context.Context, tenantID string) ([]periods.IntegrityFinding, error)
}

// GLIntegrityJob scans open periods for entries that no longer balance.
type GLIntegrityJob struct {
	Verifier IntegrityVerifier
	Tenants  TenantLister
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewGLIntegrityJob constructs the handler.
func NewGLIntegrityJob(verifier IntegrityVerifier, tenants TenantLister, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Verifier: verifier, Tenants: tenants, Logger: logger, Metrics: metrics}
}

// Handle runs the scan. Findings are logged and counted; they do not fail the task.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Verifier == nil || j.Tenants == nil {
		return errors.New("gl integrity: handler not configured")
	}
	metrics := jobMetricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskGLIntegrity)
	logger := jobLogger(j.Logger, TaskGLIntegrity)

	tenants, err := j.Tenants.ListTenants(ctx)
	if err != nil {
		return tracker.End(fmt.Errorf("gl integrity: list tenants: %w", err))
	}
	var errs []error
	total := 0
	for _, tenantID := range tenants {
		findings, err := j.Verifier.VerifyOpenPeriods(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		for _, f := range findings {
			numbers := make([]string, 0, len(f.Entries))
			for _, e := range f.Entries {
				numbers = append(numbers, e.Number)
			}
			logger.Warn("unbalanced entries in open period",
				slog.String("tenant_id", tenantID),
				slog.String("period", f.Period.Name),
				slog.String("entries", strings.Join(numbers, ",")))
			metrics.AddAnomalies(AnomalyUnbalancedEntry, tenantID, len(f.Entries))
			total += len(f.Entries)
		}
	}
	logger.Info("gl integrity check complete", slog.Int("tenants", len(tenants)), slog.Int("unbalanced", total))
	return tracker.End(errors.Join(errs...))
}
