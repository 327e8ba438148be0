package integration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

type dispatcher interface {
	Submit(ctx context.Context, in SubmitInput) (Event, bool, error)
	Get(ctx context.Context, tenantID string, id uuid.UUID) (Event, error)
	Await(ctx context.Context, tenantID string, id uuid.UUID, timeout time.Duration) (Event, error)
}

type healthMonitor interface {
	Health(ctx context.Context, tenantID string) (Health, error)
	Performance(ctx context.Context, tenantID string, from, to time.Time) (Performance, error)
}

// Handler exposes the integration endpoints.
type Handler struct {
	logger     *slog.Logger
	dispatcher dispatcher
	engine     Processor
	monitor    healthMonitor
	validator  *validator.Validate
	maxWait    time.Duration
}

// NewHandler constructs the handler. maxWait caps the ?wait= parameter.
func NewHandler(logger *slog.Logger, d dispatcher, engine Processor, monitor healthMonitor, maxWait time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}
	return &Handler{logger: logger, dispatcher: d, engine: engine, monitor: monitor, validator: validator.New(), maxWait: maxWait}
}

// MountRoutes registers /integration routes. extra mounts sibling routes such as reconciliation.
func (h *Handler) MountRoutes(r chi.Router, extra ...func(chi.Router)) {
	r.Route("/integration", func(r chi.Router) {
		r.Post("/events", h.submit)
		r.Post("/events/process", h.process)
		r.Get("/events/{id}", h.getEvent)
		r.Get("/health", h.health)
		r.Get("/performance", h.performance)
		for _, mount := range extra {
			mount(r)
		}
	})
}

type eventRequest struct {
	EventType string          `json:"eventType" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondInvalid(w, err)
		return
	}
	var wait time.Duration
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Wait", "wait must be a duration such as 5s")
			return
		}
		wait = min(d, h.maxWait)
	}
	tenantID := shared.TenantFromContext(r.Context())
	evt, created, err := h.dispatcher.Submit(r.Context(), SubmitInput{
		TenantID:       tenantID,
		EventType:      req.EventType,
		Payload:        req.Payload,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !created {
		w.Header().Set("Idempotent-Replay", "true")
	}
	if wait > 0 && !evt.Status.Terminal() {
		awaited, err := h.dispatcher.Await(r.Context(), tenantID, evt.ID, wait)
		switch {
		case err == nil:
			evt = awaited
		case errors.Is(err, ErrAwaitTimeout):
			if awaited.ID != uuid.Nil {
				evt = awaited
			}
		default:
			h.respondError(w, err)
			return
		}
	}
	status := http.StatusAccepted
	if evt.Status.Terminal() {
		status = http.StatusOK
	}
	httpx.JSON(w, status, evt)
}

// process runs an event synchronously without the outbox.
func (h *Handler) process(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondInvalid(w, err)
		return
	}
	res := h.engine.ProcessEvent(r.Context(), req.EventType, req.Payload, shared.TenantFromContext(r.Context()))
	status := http.StatusOK
	switch res.Status {
	case StatusProcessed:
		status = http.StatusCreated
	case StatusFailed:
		status = http.StatusUnprocessableEntity
		if res.Retryable {
			status = http.StatusServiceUnavailable
		}
	}
	httpx.JSON(w, status, res)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Event ID", err.Error())
		return
	}
	evt, err := h.dispatcher.Get(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, evt)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.Health(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) performance(w http.ResponseWriter, r *http.Request) {
	from, err := optionalDate(r.URL.Query().Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	to, err := optionalDate(r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	report, err := h.monitor.Performance(r.Context(), shared.TenantFromContext(r.Context()), from, to)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func optionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Event", err.Error())
	case errors.Is(err, ErrEventNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		ledger.RespondError(w, err, h.logger)
	}
}
