package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

var reconcileNow = time.Date(2025, time.March, 11, 2, 0, 0, 0, time.UTC)

func march(day, hour int) time.Time {
	return time.Date(2025, time.March, day, hour, 0, 0, 0, time.UTC)
}

type fakeRepo struct {
	mu         sync.Mutex
	tenants    []string
	waves      map[string][]Wave
	shipments  map[string][]Shipment
	allocated  map[uuid.UUID]bool
	invoiced   map[uuid.UUID]bool
	inventory  map[string]decimal.Decimal
	balances   map[string]decimal.Decimal
	failTenant string
}

func newFakeRepo(tenants ...string) *fakeRepo {
	return &fakeRepo{
		tenants:   tenants,
		waves:     map[string][]Wave{},
		shipments: map[string][]Shipment{},
		allocated: map[uuid.UUID]bool{},
		invoiced:  map[uuid.UUID]bool{},
		inventory: map[string]decimal.Decimal{},
		balances:  map[string]decimal.Decimal{},
	}
}

func (r *fakeRepo) ListTenants(context.Context) ([]string, error) {
	return r.tenants, nil
}

func (r *fakeRepo) CompletedWaves(_ context.Context, tenantID string, from, to time.Time) ([]Wave, error) {
	if tenantID == r.failTenant {
		return nil, errors.New("waves: relation does not exist")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Wave
	for _, w := range r.waves[tenantID] {
		if !w.CompletedAt.Before(from) && w.CompletedAt.Before(to) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeliveredShipments(_ context.Context, tenantID string, from, to time.Time) ([]Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Shipment
	for _, sh := range r.shipments[tenantID] {
		if !sh.DeliveredAt.Before(from) && sh.DeliveredAt.Before(to) {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (r *fakeRepo) AllocatedKeys(_ context.Context, _ string, keys []uuid.UUID) (map[uuid.UUID]bool, error) {
	return r.lookup(r.allocated, keys), nil
}

func (r *fakeRepo) InvoicedKeys(_ context.Context, _ string, keys []uuid.UUID) (map[uuid.UUID]bool, error) {
	return r.lookup(r.invoiced, keys), nil
}

func (r *fakeRepo) lookup(set map[uuid.UUID]bool, keys []uuid.UUID) map[uuid.UUID]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, k := range keys {
		if set[k] {
			out[k] = true
		}
	}
	return out
}

func (r *fakeRepo) InventoryValue(_ context.Context, tenantID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inventory[tenantID], nil
}

func (r *fakeRepo) AccountBalance(_ context.Context, tenantID, _ string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[tenantID], nil
}

func (r *fakeRepo) mark(evt integration.EventType, key uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if evt == integration.EventWaveCompleted {
		r.allocated[key] = true
		return
	}
	r.invoiced[key] = true
}

type processCall struct {
	eventType string
	tenantID  string
	payload   json.RawMessage
}

// fakeProcessor posts each operation once and writes its satellite into the repo,
// answering DUPLICATE for anything already posted.
type fakeProcessor struct {
	repo   *fakeRepo
	mu     sync.Mutex
	calls  []processCall
	posted map[uuid.UUID]bool
	fail   map[string]string
}

func newFakeProcessor(repo *fakeRepo) *fakeProcessor {
	return &fakeProcessor{repo: repo, posted: map[uuid.UUID]bool{}, fail: map[string]string{}}
}

func (p *fakeProcessor) ProcessEvent(_ context.Context, eventType string, payload json.RawMessage, tenantID string) integration.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, processCall{eventType: eventType, tenantID: tenantID, payload: payload})

	var ids struct {
		WaveID     string `json:"waveId"`
		ShipmentID string `json:"shipmentId"`
	}
	_ = json.Unmarshal(payload, &ids)
	opID := ids.WaveID + ids.ShipmentID
	res := integration.Result{EventType: eventType, TenantID: tenantID}
	if msg, ok := p.fail[opID]; ok {
		res.Status, res.Error = integration.StatusFailed, msg
		return res
	}
	evt := integration.EventType(eventType)
	key := integration.SourceKey(tenantID, evt, opID)
	if p.posted[key] {
		res.Status, res.Success = integration.StatusDuplicate, true
		return res
	}
	p.posted[key] = true
	p.repo.mark(evt, key)
	res.Status, res.Success = integration.StatusProcessed, true
	return res
}

func newTestService(repo *fakeRepo, proc integration.Processor, metrics *jobmetrics.Metrics) *Service {
	svc := NewService(repo, proc, metrics, decimal.NewFromInt(100), nil)
	svc.WithNow(func() time.Time { return reconcileNow })
	return svc
}

func seedDay(repo *fakeRepo, tenantID string) {
	repo.waves[tenantID] = []Wave{
		{ID: "W-1", WarehouseID: "WH-1", TotalTasks: 4, TotalTime: decimal.NewFromInt(90), CompletedAt: march(10, 9)},
		{ID: "W-2", WarehouseID: "WH-1", CompletedAt: march(10, 14)},
		{ID: "W-OLD", WarehouseID: "WH-1", TotalTasks: 2, TotalTime: decimal.NewFromInt(30), CompletedAt: march(9, 23)},
	}
	cost := decimal.NewFromInt(400)
	repo.shipments[tenantID] = []Shipment{
		{ID: "S-1", ClientID: "C-1", ServiceType: "TRANSPORTATION", TotalCost: &cost, DeliveredAt: march(10, 11)},
		{ID: "S-2", ClientID: "C-2", Weight: decimal.NewFromInt(100), DeliveredAt: march(10, 16)},
	}
}

func TestRunRedrivesMissingOperations(t *testing.T) {
	repo := newFakeRepo("T1")
	seedDay(repo, "T1")
	repo.invoiced[integration.SourceKey("T1", integration.EventShipmentDelivered, "S-1")] = true
	proc := newFakeProcessor(repo)
	svc := newTestService(repo, proc, nil)

	report, err := svc.Run(context.Background(), "T1", time.Time{})

	require.NoError(t, err)
	assert.Equal(t, march(10, 0), report.Date)
	assert.Equal(t, Counts{Checked: 2, Missing: 2, Redriven: 2}, report.Waves)
	assert.Equal(t, Counts{Checked: 2, Missing: 1, Redriven: 1}, report.Shipments)
	require.Len(t, proc.calls, 3)

	var wave integration.WaveCompleted
	require.NoError(t, json.Unmarshal(proc.calls[1].payload, &wave))
	assert.Equal(t, "W-2", wave.WaveID)
	assert.Equal(t, 10, wave.TotalTasks)
	assert.Equal(t, "120", wave.TotalTime.String())
	require.NotNil(t, wave.At)
	assert.Equal(t, march(10, 14), wave.At.UTC())

	var shipment integration.ShipmentDelivered
	require.NoError(t, json.Unmarshal(proc.calls[2].payload, &shipment))
	assert.Equal(t, string(integration.EventShipmentDelivered), proc.calls[2].eventType)
	assert.Equal(t, "S-2", shipment.ShipmentID)
	assert.Nil(t, shipment.TotalCost)
	assert.Equal(t, "100", shipment.Weight.String())
}

func TestRunIsSafeToRepeat(t *testing.T) {
	repo := newFakeRepo("T1")
	seedDay(repo, "T1")
	proc := newFakeProcessor(repo)
	svc := newTestService(repo, proc, nil)
	ctx := context.Background()

	first, err := svc.Run(ctx, "T1", march(10, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Waves.Redriven)
	assert.Equal(t, 2, first.Shipments.Redriven)

	second, err := svc.Run(ctx, "T1", march(10, 0))
	require.NoError(t, err)
	assert.True(t, second.Clean())
	assert.Len(t, proc.calls, 4)
}

func TestRunCountsDuplicatesAndFailures(t *testing.T) {
	repo := newFakeRepo("T1")
	seedDay(repo, "T1")
	proc := newFakeProcessor(repo)
	// Posted earlier but the satellite row is missing.
	proc.posted[integration.SourceKey("T1", integration.EventWaveCompleted, "W-1")] = true
	proc.fail["S-2"] = "ledger: period closed"
	svc := newTestService(repo, proc, nil)

	report, err := svc.Run(context.Background(), "T1", march(10, 0))

	require.NoError(t, err)
	assert.Equal(t, 1, report.Waves.Duplicates)
	assert.Equal(t, 1, report.Waves.Redriven)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, Failure{Kind: "shipment.delivered", OperationID: "S-2", Error: "ledger: period closed"}, report.Failures[0])
	assert.False(t, report.Clean())
}

func TestRunFlagsInventoryVariance(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	repo := newFakeRepo("T1")
	repo.inventory["T1"] = decimal.RequireFromString("5250.40")
	repo.balances["T1"] = decimal.RequireFromString("5000")
	svc := newTestService(repo, newFakeProcessor(repo), metrics)

	report, err := svc.Run(context.Background(), "T1", march(10, 0))

	require.NoError(t, err)
	assert.True(t, report.Inventory.Flagged)
	assert.Equal(t, "250.40", report.Inventory.Variance.StringFixed(2))
	expected := `
# HELP ledger_finance_anomalies_total Detected finance anomalies grouped by kind and tenant.
# TYPE ledger_finance_anomalies_total counter
ledger_finance_anomalies_total{kind="inventory_variance",tenant="T1"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "ledger_finance_anomalies_total"))

	repo.balances["T1"] = decimal.RequireFromString("5200")
	report, err = svc.Run(context.Background(), "T1", march(10, 0))
	require.NoError(t, err)
	assert.False(t, report.Inventory.Flagged)
}

func TestRunRequiresTenant(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeProcessor(repo), nil)

	_, err := svc.Run(context.Background(), "", time.Time{})

	assert.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestRunAllIsolatesTenantFailures(t *testing.T) {
	repo := newFakeRepo("T1", "T2", "T3")
	seedDay(repo, "T1")
	seedDay(repo, "T3")
	repo.failTenant = "T2"
	proc := newFakeProcessor(repo)
	svc := newTestService(repo, proc, nil)

	reports, err := svc.RunAll(context.Background(), time.Time{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant T2")
	require.Len(t, reports, 3)
	assert.Equal(t, 2, reports[0].Waves.Redriven)
	assert.Equal(t, "T2", reports[1].TenantID)
	assert.Contains(t, reports[1].Error, "relation does not exist")
	assert.Equal(t, 2, reports[2].Shipments.Redriven)
	for _, c := range proc.calls {
		assert.NotEqual(t, "T2", c.tenantID)
	}
}
