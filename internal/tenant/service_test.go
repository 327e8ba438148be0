package tenant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/periods"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type memState struct {
	tenants   map[string]Tenant
	accounts  map[string]map[string]ledger.ChartAccount
	sequences map[string]int64
	periods   map[string][]periods.CreateInput
}

func (s memState) clone() memState {
	out := memState{
		tenants:   make(map[string]Tenant, len(s.tenants)),
		accounts:  make(map[string]map[string]ledger.ChartAccount, len(s.accounts)),
		sequences: make(map[string]int64, len(s.sequences)),
		periods:   make(map[string][]periods.CreateInput, len(s.periods)),
	}
	for k, v := range s.tenants {
		out.tenants[k] = v
	}
	for k, v := range s.accounts {
		chart := make(map[string]ledger.ChartAccount, len(v))
		for code, a := range v {
			chart[code] = a
		}
		out.accounts[k] = chart
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.periods {
		out.periods[k] = append([]periods.CreateInput(nil), v...)
	}
	return out
}

type memRepo struct {
	mu         sync.Mutex
	state      memState
	failPeriod string
}

func newMemRepo() *memRepo {
	return &memRepo{state: memState{}.clone()}
}

type memTx struct {
	repo *memRepo
	st   memState
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{repo: m, st: m.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.state = tx.st
	return nil
}

func (m *memRepo) ListTenants(context.Context) ([]Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tenant, 0, len(m.state.tenants))
	for _, t := range m.state.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertTenant(_ context.Context, id, name string) (bool, error) {
	if _, ok := t.st.tenants[id]; ok {
		return false, nil
	}
	t.st.tenants[id] = Tenant{ID: id, Name: name, CreatedAt: initNow}
	return true, nil
}

func (t *memTx) InsertAccount(_ context.Context, tenantID string, a ledger.ChartAccount) (bool, error) {
	chart, ok := t.st.accounts[tenantID]
	if !ok {
		chart = map[string]ledger.ChartAccount{}
		t.st.accounts[tenantID] = chart
	}
	if _, ok := chart[a.Code]; ok {
		return false, nil
	}
	chart[a.Code] = a
	return true, nil
}

func (t *memTx) InsertSequence(_ context.Context, tenantID string) (bool, error) {
	if _, ok := t.st.sequences[tenantID]; ok {
		return false, nil
	}
	t.st.sequences[tenantID] = 0
	return true, nil
}

func (t *memTx) InsertPeriod(_ context.Context, in periods.CreateInput) (bool, error) {
	if in.Name == t.repo.failPeriod {
		return false, errors.New("disk full")
	}
	for _, p := range t.st.periods[in.TenantID] {
		if !p.StartDate.After(in.EndDate) && !p.EndDate.Before(in.StartDate) {
			return false, nil
		}
	}
	t.st.periods[in.TenantID] = append(t.st.periods[in.TenantID], in)
	return true, nil
}

type auditSpy struct {
	logs []shared.AuditLog
}

func (a *auditSpy) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var initNow = time.Date(2025, time.June, 3, 9, 0, 0, 0, time.UTC)

func newTestService(repo *memRepo, audit *auditSpy) *Service {
	var port AuditPort
	if audit != nil {
		port = audit
	}
	svc := NewService(repo, port, nil)
	svc.WithNow(func() time.Time { return initNow })
	return svc
}

func TestInitializeCreatesDefaultBooks(t *testing.T) {
	repo := newMemRepo()
	audit := &auditSpy{}
	svc := newTestService(repo, audit)

	res, err := svc.Initialize(context.Background(), InitInput{TenantID: "T1", Name: "Acme Logistics", Actor: "ops"})

	require.NoError(t, err)
	assert.Equal(t, InitResult{
		TenantID: "T1", Year: 2025, TenantCreated: true,
		AccountsCreated: len(ledger.DefaultChart()), SequenceCreated: true, PeriodsCreated: 12,
	}, res)
	chart := repo.state.accounts["T1"]
	assert.Equal(t, ledger.NormalCredit, chart[ledger.CodeAccumulatedDepreciation].NormalBalance)
	assert.Equal(t, ledger.AccountTypeAsset, chart[ledger.CodeAccumulatedDepreciation].Type)
	assert.Equal(t, int64(0), repo.state.sequences["T1"])
	first := repo.state.periods["T1"][0]
	assert.Equal(t, "January 2025", first.Name)
	assert.Equal(t, time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC), repo.state.periods["T1"][1].EndDate)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "tenant.initialized", audit.logs[0].Action)
	assert.Equal(t, "ops", audit.logs[0].Actor)
}

func TestInitializeIsIdempotent(t *testing.T) {
	repo := newMemRepo()
	audit := &auditSpy{}
	svc := newTestService(repo, audit)
	ctx := context.Background()

	_, err := svc.Initialize(ctx, InitInput{TenantID: "T1", Year: 2025})
	require.NoError(t, err)
	again, err := svc.Initialize(ctx, InitInput{TenantID: "T1", Year: 2025})

	require.NoError(t, err)
	assert.False(t, again.Changed())
	assert.Len(t, repo.state.periods["T1"], 12)
	assert.Len(t, audit.logs, 1)

	next, err := svc.Initialize(ctx, InitInput{TenantID: "T1", Year: 2026})
	require.NoError(t, err)
	assert.False(t, next.TenantCreated)
	assert.Zero(t, next.AccountsCreated)
	assert.Equal(t, 12, next.PeriodsCreated)
}

func TestInitializeRollsBackOnFailure(t *testing.T) {
	repo := newMemRepo()
	repo.failPeriod = "July 2025"
	svc := newTestService(repo, nil)

	_, err := svc.Initialize(context.Background(), InitInput{TenantID: "T1"})

	require.ErrorContains(t, err, "insert period July 2025")
	assert.Empty(t, repo.state.tenants)
	assert.Empty(t, repo.state.accounts)
}

func TestInitializeValidatesInput(t *testing.T) {
	svc := newTestService(newMemRepo(), nil)
	ctx := context.Background()

	_, err := svc.Initialize(ctx, InitInput{})
	assert.ErrorIs(t, err, shared.ErrTenantRequired)

	_, err = svc.Initialize(ctx, InitInput{TenantID: "a/b"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Initialize(ctx, InitInput{TenantID: "T1", Year: 12})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func newTenantRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r
}

func TestHandlerInitializesTenant(t *testing.T) {
	r := newTenantRouter(newTestService(newMemRepo(), nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants/T9/initialize", strings.NewReader(`{"name":"Nine","year":2024}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"periodsCreated":12`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants/T9/initialize", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tenantCreated":false`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Nine"`)
}

func TestHandlerRejectsBadInitialization(t *testing.T) {
	r := newTenantRouter(newTestService(newMemRepo(), nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants/T9/initialize", strings.NewReader(`{"year":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants/T9/initialize", strings.NewReader(`{"year":99999}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Tenant")
}
