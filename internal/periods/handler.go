package periods

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type periodService interface {
	ListPeriods(ctx context.Context, filter ListFilter) ([]Period, error)
	CreatePeriod(ctx context.Context, in CreateInput) (Period, error)
	Close(ctx context.Context, tenantID string, periodID int64, actor string) (CloseResult, error)
	Reopen(ctx context.Context, tenantID string, periodID int64, actor string) (Period, error)
	FindClosedPeriod(ctx context.Context, tenantID string, date time.Time) (*Period, error)
}

// Handler wires reporting period endpoints.
type Handler struct {
	logger    *slog.Logger
	service   periodService
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service periodService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/check", h.check)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/reopen", h.reopen)
	})
}

type createPeriodRequest struct {
	Name       string `json:"name" validate:"required"`
	PeriodType string `json:"periodType" validate:"omitempty,oneof=MONTHLY QUARTERLY YEARLY"`
	StartDate  string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string `json:"endDate" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		TenantID: shared.TenantFromContext(r.Context()),
		Status:   Status(r.URL.Query().Get("status")),
	}
	if y := r.URL.Query().Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Year", err.Error())
			return
		}
		filter.Year = year
	}
	list, err := h.service.ListPeriods(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondInvalid(w, err)
		return
	}
	start, _ := time.Parse(time.DateOnly, req.StartDate)
	end, _ := time.Parse(time.DateOnly, req.EndDate)
	period, err := h.service.CreatePeriod(r.Context(), CreateInput{
		TenantID:  shared.TenantFromContext(r.Context()),
		Name:      req.Name,
		Type:      Type(req.PeriodType),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	period, err := h.service.FindClosedPeriod(r.Context(), shared.TenantFromContext(r.Context()), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	resp := map[string]any{"date": date.Format(time.DateOnly), "closed": period != nil}
	if period != nil {
		resp["period"] = period
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Close(r.Context(), shared.TenantFromContext(r.Context()), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	id, ok := h.periodID(w, r)
	if !ok {
		return
	}
	period, err := h.service.Reopen(r.Context(), shared.TenantFromContext(r.Context()), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) periodID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period", "period id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var unbalanced *UnbalancedEntriesError
	switch {
	case errors.As(err, &unbalanced):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Title:   "Unbalanced Entries",
			Status:  http.StatusConflict,
			Detail:  unbalanced.Error(),
			Invalid: unbalanced.Numbers(),
		})
	case errors.Is(err, ErrPeriodNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyClosed), errors.Is(err, ErrNotClosed),
		errors.Is(err, ErrSubsequentPeriodClosed), errors.Is(err, ErrPeriodOverlap):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrCloseInProgress):
		httpx.Problem(w, http.StatusLocked, "Close In Progress", err.Error())
	case errors.Is(err, ErrInvalidPeriod):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		ledger.RespondError(w, err, h.logger)
	}
}
