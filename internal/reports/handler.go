package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type reportService interface {
	TrialBalance(ctx context.Context, tenantID string, asOf time.Time) (TrialBalance, error)
	BalanceSheet(ctx context.Context, tenantID string, asOf time.Time) (BalanceSheet, error)
	ProfitAndLoss(ctx context.Context, tenantID string, from, to time.Time) (ProfitAndLoss, error)
	CashFlow(ctx context.Context, tenantID string, from, to time.Time) (CashFlow, error)
	Ratios(ctx context.Context, tenantID string, asOf time.Time) (Ratios, error)
}

// Handler exposes the statement endpoints.
type Handler struct {
	logger  *slog.Logger
	service reportService
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service reportService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /reports routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/trial-balance", h.trialBalance)
		r.Get("/balance-sheet", h.balanceSheet)
		r.Get("/profit-loss", h.profitAndLoss)
		r.Get("/cash-flow", h.cashFlow)
		r.Get("/ratios", h.ratios)
	})
}

type badDate struct {
	param string
	err   error
}

func (e *badDate) Error() string { return fmt.Sprintf("%s: %v", e.param, e.err) }

func dateParam(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &badDate{param: name, err: err}
	}
	return t, nil
}

func rangeParams(r *http.Request) (time.Time, time.Time, error) {
	from, err := dateParam(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := dateParam(r, "to")
	return from, to, err
}

func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv"
}

func writeCSV(w http.ResponseWriter, filename string, write func(http.ResponseWriter) error) error {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return write(w)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of")
	if err != nil {
		h.respondError(w, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), shared.TenantFromContext(r.Context()), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if wantsCSV(r) {
		name := "trial-balance-" + tb.AsOf.Format(time.DateOnly) + ".csv"
		if err := writeCSV(w, name, func(w http.ResponseWriter) error { return WriteTrialBalanceCSV(w, tb) }); err != nil {
			h.logger.Warn("write trial balance csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of")
	if err != nil {
		h.respondError(w, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), shared.TenantFromContext(r.Context()), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bs)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), shared.TenantFromContext(r.Context()), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if wantsCSV(r) {
		name := fmt.Sprintf("profit-loss-%s-%s.csv", pl.From.Format(time.DateOnly), pl.To.Format(time.DateOnly))
		if err := writeCSV(w, name, func(w http.ResponseWriter) error { return WriteProfitAndLossCSV(w, pl) }); err != nil {
			h.logger.Warn("write profit and loss csv", slog.Any("error", err))
		}
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) cashFlow(w http.ResponseWriter, r *http.Request) {
	from, to, err := rangeParams(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	cf, err := h.service.CashFlow(r.Context(), shared.TenantFromContext(r.Context()), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cf)
}

func (h *Handler) ratios(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "as_of")
	if err != nil {
		h.respondError(w, err)
		return
	}
	ratios, err := h.service.Ratios(r.Context(), shared.TenantFromContext(r.Context()), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ratios)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var bd *badDate
	switch {
	case errors.As(err, &bd):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
	case errors.Is(err, ErrInvalidRange):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
	default:
		ledger.RespondError(w, err, h.logger)
	}
}
