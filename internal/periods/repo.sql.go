package periods

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/db"
)

const periodColumns = `id, tenant_id, name, period_type, start_date, end_date, status, closed_at,
COALESCE(closed_by, ''), COALESCE(closing_entry, ''), created_at, updated_at`

// Repository persists reporting periods.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx runs fn at READ COMMITTED: the FOR UPDATE period lock waits for in-flight
// postings, and later statements then see what they committed.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("periods repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.NewTxRepository(r.tx)
}

func (r *txRepository) LockPeriod(ctx context.Context, tenantID string, id int64) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM reporting_periods WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) UnbalancedEntries(ctx context.Context, tenantID string, from, to time.Time) ([]UnbalancedEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT j.entry_number, COALESCE(SUM(l.debit_amount), 0), COALESCE(SUM(l.credit_amount), 0)
FROM journal_entries j LEFT JOIN ledger_entries l ON l.journal_entry_id = j.id
WHERE j.tenant_id=$1 AND j.transaction_date BETWEEN $2 AND $3
GROUP BY j.id
HAVING ABS(COALESCE(SUM(l.debit_amount), 0) - COALESCE(SUM(l.credit_amount), 0)) > $4 OR COUNT(l.id) = 0
ORDER BY j.sequence`, tenantID, from, to, ledger.Tolerance)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UnbalancedEntry
	for rows.Next() {
		var u UnbalancedEntry
		if err := rows.Scan(&u.Number, &u.Debit, &u.Credit); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *txRepository) NominalBalances(ctx context.Context, tenantID string, asOf time.Time) ([]NominalBalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.code, a.type, COALESCE(SUM(l.debit_amount), 0), COALESCE(SUM(l.credit_amount), 0)
FROM accounts a JOIN ledger_entries l ON l.account_id = a.id
WHERE a.tenant_id=$1 AND a.type IN ('REVENUE', 'EXPENSE') AND l.transaction_date <= $2
GROUP BY a.code, a.type ORDER BY a.code`, tenantID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NominalBalance
	for rows.Next() {
		var b NominalBalance
		if err := rows.Scan(&b.AccountCode, &b.Type, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *txRepository) HasClosedPeriodAfter(ctx context.Context, tenantID string, start time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reporting_periods WHERE tenant_id=$1 AND status='CLOSED' AND start_date > $2)`,
		tenantID, start).Scan(&exists)
	return exists, err
}

func (r *txRepository) MarkClosed(ctx context.Context, id int64, actor string, at time.Time, closingEntry string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE reporting_periods SET status='CLOSED', closed_at=$2, closed_by=NULLIF($3, ''),
closing_entry=NULLIF($4, ''), updated_at=$2 WHERE id=$1`, id, at, actor, closingEntry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *txRepository) MarkOpen(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE reporting_periods SET status='OPEN', closed_at=NULL, closed_by=NULL, updated_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

// RangeConflict serialises period creation per tenant with an advisory lock before checking overlap.
func (r *txRepository) RangeConflict(ctx context.Context, tenantID string, start, end time.Time) (bool, error) {
	if _, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('reporting_periods:' || $1))`, tenantID); err != nil {
		return false, err
	}
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reporting_periods WHERE tenant_id=$1 AND start_date <= $3 AND end_date >= $2)`,
		tenantID, start, end).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertPeriod(ctx context.Context, in CreateInput) (Period, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO reporting_periods (tenant_id, name, period_type, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,'OPEN') RETURNING `+periodColumns, in.TenantID, in.Name, string(in.Type), in.StartDate, in.EndDate)
	return scanPeriod(row)
}

// GetPeriod loads one period.
func (r *Repository) GetPeriod(ctx context.Context, tenantID string, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM reporting_periods WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrPeriodNotFound
		}
		return Period{}, err
	}
	return p, nil
}

// ListPeriods loads periods matching filter.
func (r *Repository) ListPeriods(ctx context.Context, filter ListFilter) ([]Period, error) {
	where := []string{"tenant_id=$1"}
	args := []any{filter.TenantID}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Year > 0 {
		args = append(args, filter.Year)
		where = append(where, fmt.Sprintf("EXTRACT(YEAR FROM start_date)=$%d", len(args)))
	}
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM reporting_periods WHERE `+strings.Join(where, " AND ")+` ORDER BY start_date`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindClosedPeriod returns the CLOSED period containing date, or nil.
func (r *Repository) FindClosedPeriod(ctx context.Context, tenantID string, date time.Time) (*Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM reporting_periods
WHERE tenant_id=$1 AND status='CLOSED' AND $2::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, tenantID, date)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Type, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt,
		&p.ClosedBy, &p.ClosingEntry, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
