package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type runner interface {
	Run(ctx context.Context, tenantID string, day time.Time) (Report, error)
}

// Handler triggers an on-demand reconciliation for the request tenant.
type Handler struct {
	logger  *slog.Logger
	service runner
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service runner) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers POST /reconcile on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reconcile", h.reconcile)
}

type reconcileRequest struct {
	Date string `json:"date"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	var day time.Time
	if req.Date != "" {
		parsed, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	report, err := h.service.Run(r.Context(), shared.TenantFromContext(r.Context()), day)
	if err != nil {
		ledger.RespondError(w, err, h.logger)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
