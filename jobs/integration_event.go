package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
)

// EventProcessor runs one outbox delivery attempt.
type EventProcessor interface {
	Process(ctx context.Context, id uuid.UUID) (integration.Event, error)
}

// IntegrationEventJob hands queued event ids to the outbox dispatcher.
type IntegrationEventJob struct {
	Dispatcher EventProcessor
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// NewIntegrationEventJob constructs the handler.
func NewIntegrationEventJob(dispatcher EventProcessor, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrationEventJob {
	return &IntegrationEventJob{Dispatcher: dispatcher, Logger: logger, Metrics: metrics}
}

// Handle processes one delivery. A transient engine failure is returned so asynq
// redelivers; unknown events and malformed payloads are not retried.
func (j *IntegrationEventJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dispatcher == nil {
		return errors.New("integration event: handler not configured")
	}
	var payload IntegrationEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.EventID == uuid.Nil {
		return fmt.Errorf("integration event: bad payload: %w", asynq.SkipRetry)
	}
	tracker := jobMetricsOrDefault(j.Metrics).Track(TaskIntegrationEvent)
	logger := jobLogger(j.Logger, TaskIntegrationEvent).With(
		slog.String("event_id", payload.EventID.String()),
		slog.Int("attempt", payload.Attempt),
	)

	evt, err := j.Dispatcher.Process(ctx, payload.EventID)
	switch {
	case errors.Is(err, integration.ErrEventNotFound):
		logger.Warn("integration event missing")
		return tracker.End(fmt.Errorf("%w: %w", err, asynq.SkipRetry))
	case errors.Is(err, integration.ErrRetryLater):
		logger.Warn("integration event will retry", slog.Any("error", err))
		return tracker.End(err)
	case err != nil:
		logger.Error("integration event failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Debug("integration delivery complete",
		slog.String("tenant_id", evt.TenantID),
		slog.String("event_type", evt.Type),
		slog.String("status", string(evt.Status)),
		slog.String("entry_number", evt.EntryNumber))
	return tracker.End(nil)
}
