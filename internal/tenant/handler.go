package tenant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type tenantService interface {
	Initialize(ctx context.Context, in InitInput) (InitResult, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// Handler exposes tenant setup.
type Handler struct {
	logger  *slog.Logger
	service tenantService
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service tenantService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /tenants routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{tenantID}/initialize", h.initialize)
	})
}

type initializeRequest struct {
	Name string `json:"name"`
	Year int    `json:"year"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.ListTenants(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if tenants == nil {
		tenants = []Tenant{}
	}
	httpx.JSON(w, http.StatusOK, tenants)
}

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	res, err := h.service.Initialize(r.Context(), InitInput{
		TenantID: chi.URLParam(r, "tenantID"),
		Name:     req.Name,
		Year:     req.Year,
		Actor:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	status := http.StatusOK
	if res.TenantCreated {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidInput) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Tenant", err.Error())
		return
	}
	ledger.RespondError(w, err, h.logger)
}
