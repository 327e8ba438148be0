package ledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type ledgerService interface {
	ListAccounts(ctx context.Context, tenantID string) ([]Account, error)
	GetAccount(ctx context.Context, tenantID, code string) (Account, error)
	CreateEntry(ctx context.Context, in EntryInput) (JournalEntry, error)
	GetEntry(ctx context.Context, tenantID, number string) (JournalEntry, error)
}

// Handler wires ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ledgerService
	validator *validator.Validate
	postGuard []func(http.Handler) http.Handler
}

// NewHandler builds a Handler. postGuard wraps POST /ledger/entries, typically the period lock guard.
func NewHandler(logger *slog.Logger, service ledgerService, postGuard ...func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New(), postGuard: postGuard}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/accounts", h.listAccounts)
		r.Get("/accounts/{code}", h.getAccount)
		r.With(h.postGuard...).Post("/entries", h.createEntry)
		r.Get("/entries/{number}", h.getEntry)
	})
}

type createEntryRequest struct {
	Description     string    `json:"description" validate:"required"`
	TransactionDate string    `json:"transactionDate" validate:"required,datetime=2006-01-02"`
	ReferenceType   string    `json:"referenceType"`
	ReferenceID     string    `json:"referenceId"`
	Postings        []Posting `json:"postings" validate:"required,min=2,dive"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccount(r.Context(), shared.TenantFromContext(r.Context()), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondInvalid(w, err)
		return
	}
	date, _ := time.Parse(time.DateOnly, req.TransactionDate)
	entry, err := h.service.CreateEntry(r.Context(), EntryInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		Description:     req.Description,
		TransactionDate: date,
		ReferenceType:   ReferenceType(req.ReferenceType),
		ReferenceID:     req.ReferenceID,
		CreatedBy:       shared.ActorFromContext(r.Context()),
		Postings:        req.Postings,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.service.GetEntry(r.Context(), shared.TenantFromContext(r.Context()), chi.URLParam(r, "number"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	RespondError(w, err, h.logger)
}

// RespondError maps ledger errors to problem documents. Shared by modules that post entries.
func RespondError(w http.ResponseWriter, err error, logger *slog.Logger) {
	var unknown *UnknownAccountError
	var closed *PeriodClosedError
	switch {
	case errors.As(err, &unknown):
		httpx.ProblemWith(w, httpx.ProblemDetail{
			Title:   "Unknown Account",
			Status:  http.StatusUnprocessableEntity,
			Detail:  unknown.Error(),
			Invalid: unknown.Codes,
		})
	case errors.As(err, &closed):
		httpx.Problem(w, http.StatusConflict, "Period Closed", closed.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrSequenceContention):
		httpx.Problem(w, http.StatusServiceUnavailable, "Sequence Contention", err.Error())
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrTenantRequired):
		httpx.Problem(w, http.StatusBadRequest, "Tenant Required", err.Error())
	default:
		if logger != nil {
			logger.Error("ledger request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
