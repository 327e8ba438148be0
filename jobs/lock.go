package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// JobLock keeps fan-out jobs single-instance across worker replicas.
type JobLock struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewJobLock constructs the lock. ttl bounds how long a crashed worker blocks the job.
func NewJobLock(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *JobLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobLock{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

// Exclusive wraps handler so a run that finds the job already running is skipped.
func (l *JobLock) Exclusive(job string, handler asynq.HandlerFunc) asynq.HandlerFunc {
	if l == nil {
		return handler
	}
	return func(ctx context.Context, t *asynq.Task) error {
		lock, err := l.client.Obtain(ctx, shared.JobLockKey(job), l.ttl, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			l.logger.Info("job already running, skipping", slog.String("job", job))
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: obtain lock: %w", job, err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				l.logger.Warn("release job lock", slog.String("job", job), slog.Any("error", err))
			}
		}()
		return handler(ctx, t)
	}
}
