package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

var (
	// ErrEventNotFound indicates an unknown outbox event id.
	ErrEventNotFound = errors.New("integration: event not found")
	// ErrRetryLater is returned by Process when the failure is transient and the queue should redeliver.
	ErrRetryLater = errors.New("integration: event failed, retry later")
	// ErrAwaitTimeout is returned by Await when the event is still in flight at the deadline.
	ErrAwaitTimeout = errors.New("integration: event not finished before timeout")
)

var eventNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:wms-ledger:integration-event"))

// Event is one row of the integration outbox.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    string          `json:"tenantId"`
	Type        string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	Warning     string          `json:"warning,omitempty"`
	EntryNumber string          `json:"entryNumber,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
}

// EventStore persists outbox events.
type EventStore interface {
	// InsertEvent stores evt unless its id exists; created reports which happened.
	InsertEvent(ctx context.Context, evt Event) (stored Event, created bool, err error)
	GetEvent(ctx context.Context, id uuid.UUID) (Event, error)
	// BeginAttempt increments attempts of a non-terminal event; started is false for terminal events.
	BeginAttempt(ctx context.Context, id uuid.UUID, at time.Time) (evt Event, started bool, err error)
	CompleteAttempt(ctx context.Context, id uuid.UUID, status Status, res Result, at time.Time) error
	// StaleEvents lists PENDING or FAILED events not touched since before.
	StaleEvents(ctx context.Context, before time.Time, limit int) ([]Event, error)
}

// Enqueuer delivers an event id to the worker queue. Attempt distinguishes redeliveries.
type Enqueuer interface {
	EnqueueEvent(ctx context.Context, id uuid.UUID, attempt int) error
}

// Processor is satisfied by *Engine.
type Processor interface {
	ProcessEvent(ctx context.Context, eventType string, payload json.RawMessage, tenantID string) Result
}

// KeyGuard records request idempotency keys.
type KeyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
}

// SubmitInput is an event raised by an operational caller.
type SubmitInput struct {
	TenantID       string
	EventType      string
	Payload        json.RawMessage
	IdempotencyKey string
}

// DispatcherConfig tunes delivery.
type DispatcherConfig struct {
	MaxAttempts  int
	PollInterval time.Duration
}

// Dispatcher stores events durably and hands them to the queue for at-least-once processing.
type Dispatcher struct {
	store  EventStore
	engine Processor
	queue  Enqueuer
	keys   KeyGuard
	cfg    DispatcherConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher constructs the outbox dispatcher. keys may be nil.
func NewDispatcher(store EventStore, engine Processor, queue Enqueuer, keys KeyGuard, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:  store,
		engine: engine,
		queue:  queue,
		keys:   keys,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "integration.outbox")),
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (d *Dispatcher) WithNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Submit stores the event and enqueues it. A repeated idempotency key returns the
// stored event with created=false. Queue failures leave the event PENDING for the sweep.
func (d *Dispatcher) Submit(ctx context.Context, in SubmitInput) (Event, bool, error) {
	if in.TenantID == "" {
		return Event{}, false, shared.ErrTenantRequired
	}
	if strings.TrimSpace(in.EventType) == "" {
		return Event{}, false, fmt.Errorf("%w: event type required", ErrInvalidPayload)
	}
	if len(in.Payload) == 0 || !json.Valid(in.Payload) {
		return Event{}, false, fmt.Errorf("%w: payload must be a JSON document", ErrInvalidPayload)
	}
	id := uuid.New()
	if in.IdempotencyKey != "" {
		id = uuid.NewSHA1(eventNamespace, []byte(in.TenantID+":"+in.IdempotencyKey))
		if d.keys != nil {
			err := d.keys.CheckAndInsert(ctx, id.String(), "integration.events")
			if err != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
				return Event{}, false, err
			}
		}
	}
	now := d.now()
	stored, created, err := d.store.InsertEvent(ctx, Event{
		ID:        id,
		TenantID:  in.TenantID,
		Type:      strings.TrimSpace(in.EventType),
		Payload:   in.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Event{}, false, err
	}
	if !created {
		return stored, false, nil
	}
	if d.queue != nil {
		if err := d.queue.EnqueueEvent(ctx, stored.ID, 0); err != nil {
			d.logger.Warn("enqueue integration event", slog.String("event", stored.ID.String()), slog.Any("error", err))
		}
	}
	return stored, true, nil
}

// Process runs one delivery attempt. It returns ErrRetryLater while a transient
// failure still has attempts left so the queue redelivers.
func (d *Dispatcher) Process(ctx context.Context, id uuid.UUID) (Event, error) {
	evt, started, err := d.store.BeginAttempt(ctx, id, d.now())
	if err != nil {
		return Event{}, err
	}
	if !started {
		return evt, nil
	}
	res := d.engine.ProcessEvent(ctx, evt.Type, evt.Payload, evt.TenantID)
	status := res.Status
	if status == StatusFailed {
		switch {
		case !res.Retryable:
			status = StatusRejected
		case evt.Attempts >= d.cfg.MaxAttempts:
			status = StatusDead
		}
	}
	now := d.now()
	if err := d.store.CompleteAttempt(ctx, id, status, res, now); err != nil {
		return evt, err
	}
	evt.Status = status
	evt.LastError = res.Error
	evt.Warning = res.Warning
	evt.EntryNumber = res.EntryNumber
	evt.UpdatedAt = now
	if status.Terminal() {
		evt.ProcessedAt = &now
	}
	switch status {
	case StatusFailed:
		return evt, fmt.Errorf("%w: %s", ErrRetryLater, res.Error)
	case StatusDead:
		d.logger.Error("integration event dead", slog.String("event", id.String()), slog.Int("attempts", evt.Attempts), slog.String("error", res.Error))
	}
	return evt, nil
}

// Get returns an event of the tenant.
func (d *Dispatcher) Get(ctx context.Context, tenantID string, id uuid.UUID) (Event, error) {
	evt, err := d.store.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if evt.TenantID != tenantID {
		return Event{}, ErrEventNotFound
	}
	return evt, nil
}

// Await polls until the event reaches a terminal status or timeout elapses.
func (d *Dispatcher) Await(ctx context.Context, tenantID string, id uuid.UUID, timeout time.Duration) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		evt, err := d.Get(ctx, tenantID, id)
		if err != nil && ctx.Err() == nil {
			return Event{}, err
		}
		if err == nil && evt.Status.Terminal() {
			return evt, nil
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return Event{}, ErrAwaitTimeout
			}
			return evt, ErrAwaitTimeout
		case <-ticker.C:
		}
	}
}

// RequeueReport summarises one sweep.
type RequeueReport struct {
	Requeued int `json:"requeued"`
	Dead     int `json:"dead"`
	Errors   int `json:"errors"`
}

// Requeue redelivers PENDING and FAILED events idle for longer than idle.
// Events that used every attempt are marked DEAD.
func (d *Dispatcher) Requeue(ctx context.Context, idle time.Duration, limit int) (RequeueReport, error) {
	var report RequeueReport
	now := d.now()
	events, err := d.store.StaleEvents(ctx, now.Add(-idle), limit)
	if err != nil {
		return report, err
	}
	for _, evt := range events {
		if evt.Attempts >= d.cfg.MaxAttempts {
			res := Result{EventType: evt.Type, TenantID: evt.TenantID, Status: StatusDead, Error: evt.LastError}
			if err := d.store.CompleteAttempt(ctx, evt.ID, StatusDead, res, now); err != nil {
				return report, err
			}
			report.Dead++
			continue
		}
		if d.queue == nil {
			continue
		}
		if err := d.queue.EnqueueEvent(ctx, evt.ID, evt.Attempts+1); err != nil {
			d.logger.Warn("requeue integration event", slog.String("event", evt.ID.String()), slog.Any("error", err))
			report.Errors++
			continue
		}
		report.Requeued++
	}
	return report, nil
}
