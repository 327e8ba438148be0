package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/observability"
	"github.com/odyssey-erp/wms-ledger/internal/periods"
	"github.com/odyssey-erp/wms-ledger/internal/reconcile"
	"github.com/odyssey-erp/wms-ledger/internal/reports"
	"github.com/odyssey-erp/wms-ledger/internal/tenant"
	"github.com/odyssey-erp/wms-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	TenantHandler      *tenant.Handler
	LedgerHandler      *ledger.Handler
	PeriodsHandler     *periods.Handler
	IntegrationHandler *integration.Handler
	ReconcileHandler   *reconcile.Handler
	ReportsHandler     *reports.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the ledger API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.TenantHandler != nil {
		params.TenantHandler.MountRoutes(r)
	}
	if params.LedgerHandler != nil {
		params.LedgerHandler.MountRoutes(r)
	}
	if params.PeriodsHandler != nil {
		params.PeriodsHandler.MountRoutes(r)
	}
	if params.IntegrationHandler != nil {
		var extra []func(chi.Router)
		if params.ReconcileHandler != nil {
			extra = append(extra, params.ReconcileHandler.MountRoutes)
		}
		params.IntegrationHandler.MountRoutes(r, extra...)
	}
	if params.ReportsHandler != nil {
		params.ReportsHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}
