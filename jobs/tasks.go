package jobs

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
)

const (
	// QueueDefault is the queue for scheduled maintenance jobs.
	QueueDefault = "default"
	// QueueIntegration carries integration event deliveries.
	QueueIntegration = "integration"

	// TaskIntegrationEvent delivers one outbox event to the engine.
	TaskIntegrationEvent = "integration:event"
	// TaskReconcile re-drives missing postings and checks inventory valuation.
	TaskReconcile = "ledger:reconcile"
	// TaskHealthCheck snapshots integration health for every tenant.
	TaskHealthCheck = "integration:health_check"
	// TaskOutboxSweep re-enqueues stale outbox events.
	TaskOutboxSweep = "integration:outbox_sweep"
	// TaskPerformanceReport summarises integration output.
	TaskPerformanceReport = "integration:performance_report"
	// TaskGLIntegrity scans open periods for unbalanced entries.
	TaskGLIntegrity = "ledger:gl_integrity"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrationEventPayload identifies the outbox event to process.
type IntegrationEventPayload struct {
	EventID uuid.UUID `json:"event_id"`
	Attempt int       `json:"attempt"`
}

// ReconcilePayload selects the day to reconcile. Empty means yesterday.
type ReconcilePayload struct {
	Date string `json:"date,omitempty"`
}

// OutboxSweepPayload tunes one sweep.
type OutboxSweepPayload struct {
	IdleSeconds int `json:"idle_seconds"`
	Limit       int `json:"limit"`
}

// PerformanceReportPayload sets the trailing window in days.
type PerformanceReportPayload struct {
	Days int `json:"days"`
}

// NewIntegrationEventTask builds the delivery task for an outbox event.
func NewIntegrationEventTask(id uuid.UUID, attempt int) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrationEventPayload{EventID: id, Attempt: attempt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrationEvent, body, asynq.Queue(QueueIntegration)), nil
}

// NewReconcileTask builds a reconciliation task. A zero day reconciles yesterday.
func NewReconcileTask(day time.Time) (*asynq.Task, error) {
	payload := ReconcilePayload{}
	if !day.IsZero() {
		payload.Date = day.Format(time.DateOnly)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewHealthCheckTask builds the hourly health check task.
func NewHealthCheckTask() *asynq.Task {
	return asynq.NewTask(TaskHealthCheck, nil, asynq.Queue(QueueDefault))
}

// NewOutboxSweepTask builds an outbox sweep for events idle longer than idle.
func NewOutboxSweepTask(idle time.Duration, limit int) (*asynq.Task, error) {
	body, err := json.Marshal(OutboxSweepPayload{IdleSeconds: int(idle.Seconds()), Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewPerformanceReportTask builds the weekly performance report task.
func NewPerformanceReportTask(days int) (*asynq.Task, error) {
	body, err := json.Marshal(PerformanceReportPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPerformanceReport, body, asynq.Queue(QueueDefault)), nil
}

// NewGLIntegrityTask builds the daily integrity scan task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil, asynq.Queue(QueueDefault))
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func jobMetricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func utcNow() time.Time { return time.Now().UTC() }
