package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/wms-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
)

const (
	defaultSweepIdle  = 15 * time.Minute
	defaultSweepLimit = 500
)

// Requeuer redelivers stale outbox events.
type Requeuer interface {
	Requeue(ctx context.Context, idle time.Duration, limit int) (integration.RequeueReport, error)
}

// KeyPruner deletes submission idempotency keys past their retention.
type KeyPruner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OutboxSweepJob picks up events whose delivery was lost or exhausted.
type OutboxSweepJob struct {
	Dispatcher Requeuer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics

	keys         KeyPruner
	keyRetention time.Duration
}

// NewOutboxSweepJob constructs the handler.
func NewOutboxSweepJob(dispatcher Requeuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *OutboxSweepJob {
	return &OutboxSweepJob{Dispatcher: dispatcher, Logger: logger, Metrics: metrics}
}

// WithKeyRetention also prunes idempotency keys older than retention on every sweep.
func (j *OutboxSweepJob) WithKeyRetention(keys KeyPruner, retention time.Duration) *OutboxSweepJob {
	j.keys, j.keyRetention = keys, retention
	return j
}

// Handle runs one sweep.
func (j *OutboxSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dispatcher == nil {
		return errors.New("outbox sweep: handler not configured")
	}
	payload := OutboxSweepPayload{}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("outbox sweep: bad payload: %w", asynq.SkipRetry)
		}
	}
	idle := time.Duration(payload.IdleSeconds) * time.Second
	if idle <= 0 {
		idle = defaultSweepIdle
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultSweepLimit
	}

	metrics := jobMetricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskOutboxSweep)
	logger := jobLogger(j.Logger, TaskOutboxSweep)

	report, err := j.Dispatcher.Requeue(ctx, idle, payload.Limit)
	if err != nil {
		logger.Error("outbox sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.AddAnomalies("dead_event", "", report.Dead)
	if j.keys != nil && j.keyRetention > 0 {
		pruned, err := j.keys.Cleanup(ctx, j.keyRetention)
		if err != nil {
			logger.Warn("prune idempotency keys", slog.Any("error", err))
		} else if pruned > 0 {
			logger.Debug("pruned idempotency keys", slog.Int64("keys", pruned))
		}
	}
	if report.Requeued+report.Dead+report.Errors > 0 {
		logger.Info("outbox swept",
			slog.Int("requeued", report.Requeued),
			slog.Int("dead", report.Dead),
			slog.Int("errors", report.Errors))
	}
	return tracker.End(nil)
}
