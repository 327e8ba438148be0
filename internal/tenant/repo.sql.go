package tenant

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/periods"
	"github.com/odyssey-erp/wms-ledger/internal/platform/db"
)

// PgRepository stores tenants and their initial books in Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx implements Repository.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("tenant repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// ListTenants implements Repository.
func (r *PgRepository) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, created_at FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertTenant(ctx context.Context, id, name string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, name)
	return tag.RowsAffected() == 1, err
}

func (r *txRepository) InsertAccount(ctx context.Context, tenantID string, a ledger.ChartAccount) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO accounts (tenant_id, code, name, type, normal_balance)
VALUES ($1, $2, $3, $4, $5) ON CONFLICT (tenant_id, code) DO NOTHING`,
		tenantID, a.Code, a.Name, string(a.Type), string(a.NormalBalance))
	return tag.RowsAffected() == 1, err
}

func (r *txRepository) InsertSequence(ctx context.Context, tenantID string) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO entry_sequences (tenant_id, last_number) VALUES ($1, 0)
ON CONFLICT (tenant_id) DO NOTHING`, tenantID)
	return tag.RowsAffected() == 1, err
}

func (r *txRepository) InsertPeriod(ctx context.Context, in periods.CreateInput) (bool, error) {
	tag, err := r.tx.Exec(ctx, `INSERT INTO reporting_periods (tenant_id, name, period_type, start_date, end_date, status)
SELECT $1, $2, $3, $4, $5, 'OPEN'
WHERE NOT EXISTS (
    SELECT 1 FROM reporting_periods WHERE tenant_id=$1 AND start_date <= $5 AND end_date >= $4
)`, in.TenantID, in.Name, string(in.Type), in.StartDate, in.EndDate)
	return tag.RowsAffected() == 1, err
}

var _ Repository = (*PgRepository)(nil)
