package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxTxAttempts bounds how often WithTx re-runs fn after a serialization failure or deadlock.
const MaxTxAttempts = 3

// ErrTxRetriesExhausted is returned when every attempt hit a retryable conflict.
var ErrTxRetriesExhausted = errors.New("platform/db: transaction retries exhausted")

// Beginner is satisfied by *pgxpool.Pool and test doubles.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ Beginner = (*pgxpool.Pool)(nil)

// WithTx executes fn within a transaction at the given isolation level.
// Serialization failures and deadlocks roll back and re-run fn up to MaxTxAttempts times.
func WithTx(ctx context.Context, pool Beginner, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < MaxTxAttempts; attempt++ {
		err := runTx(ctx, pool, iso, fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrTxRetriesExhausted, lastErr)
}

func runTx(ctx context.Context, pool Beginner, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports serialization failures (40001) and deadlocks (40P01).
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// IsUniqueViolation reports a 23505 error, optionally restricted to one constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
