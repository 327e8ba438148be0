//go:build integration

package reconcile_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/reconcile"
	"github.com/odyssey-erp/wms-ledger/internal/reports"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
	"github.com/odyssey-erp/wms-ledger/internal/tenant"
	"github.com/odyssey-erp/wms-ledger/internal/testutil/pgtest"
)

func TestPostgresReconciliationRedrivesMissingWave(t *testing.T) {
	pool := pgtest.NewPool(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	audit := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())

	_, err := tenant.NewService(tenant.NewRepository(pool), audit, logger).
		Initialize(ctx, tenant.InitInput{TenantID: "T-PG", Year: 2025})
	require.NoError(t, err)

	ledgerSvc := ledger.NewService(ledger.NewRepository(pool), audit, logger)
	engine := integration.NewEngine(integration.NewRepository(pool), ledgerSvc, integration.DefaultRates(), metrics, logger)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	completed := day.Add(14 * time.Hour)
	_, err = pool.Exec(ctx, `INSERT INTO waves (id, tenant_id, warehouse_id, status, total_tasks, total_time, completed_at)
VALUES ('W-1', 'T-PG', 'WH-1', 'COMPLETED', 24, 180, $1), ('W-2', 'T-PG', 'WH-1', 'COMPLETED', 8, 60, $1)`, completed)
	require.NoError(t, err)

	payload, err := json.Marshal(integration.WaveCompleted{
		WaveID: "W-1",
		LaborFields: integration.LaborFields{
			TotalTasks:  24,
			TotalTime:   decimal.NewFromInt(180),
			WarehouseID: "WH-1",
			OccurredAt:  integration.OccurredAt{At: &completed},
		},
	})
	require.NoError(t, err)
	res := engine.ProcessEvent(ctx, integration.EventWaveCompleted, payload, "T-PG")
	require.Equal(t, integration.StatusProcessed, res.Status, res.Error)

	svc := reconcile.NewService(reconcile.NewRepository(pool), engine, metrics, decimal.NewFromInt(100), logger)
	report, err := svc.Run(ctx, "T-PG", day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Waves.Checked)
	assert.Equal(t, 1, report.Waves.Missing)
	assert.Equal(t, 1, report.Waves.Redriven)
	assert.Empty(t, report.Failures)

	again, err := svc.Run(ctx, "T-PG", day)
	require.NoError(t, err)
	assert.Zero(t, again.Waves.Missing)
	assert.True(t, again.Clean())

	tb, err := reports.NewService(reports.NewRepository(pool), nil, logger).TrialBalance(ctx, "T-PG", day)
	require.NoError(t, err)
	assert.True(t, tb.IsBalanced)
	assert.True(t, tb.TotalDebits.IsPositive())
}
