package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PgRepository reads operational and satellite tables from Postgres.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// ListTenants implements Repository.
func (r *PgRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CompletedWaves implements Repository.
func (r *PgRepository) CompletedWaves(ctx context.Context, tenantID string, from, to time.Time) ([]Wave, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, total_tasks, total_time, completed_at
FROM waves WHERE tenant_id=$1 AND status='COMPLETED' AND completed_at >= $2 AND completed_at < $3
ORDER BY completed_at, id`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Wave
	for rows.Next() {
		var w Wave
		if err := rows.Scan(&w.ID, &w.WarehouseID, &w.TotalTasks, &w.TotalTime, &w.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// DeliveredShipments implements Repository.
func (r *PgRepository) DeliveredShipments(ctx context.Context, tenantID string, from, to time.Time) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, client_id, COALESCE(service_type, ''), weight, total_cost, delivered_at
FROM shipments WHERE tenant_id=$1 AND status='DELIVERED' AND delivered_at >= $2 AND delivered_at < $3
ORDER BY delivered_at, id`, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Shipment
	for rows.Next() {
		var (
			sh   Shipment
			cost decimal.NullDecimal
		)
		if err := rows.Scan(&sh.ID, &sh.ClientID, &sh.ServiceType, &sh.Weight, &cost, &sh.DeliveredAt); err != nil {
			return nil, err
		}
		if cost.Valid {
			sh.TotalCost = &cost.Decimal
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// AllocatedKeys implements Repository.
func (r *PgRepository) AllocatedKeys(ctx context.Context, tenantID string, keys []uuid.UUID) (map[uuid.UUID]bool, error) {
	return r.existingKeys(ctx, `SELECT idempotency_key FROM cost_allocations
WHERE tenant_id=$1 AND idempotency_key = ANY($2)`, tenantID, keys)
}

// InvoicedKeys implements Repository.
func (r *PgRepository) InvoicedKeys(ctx context.Context, tenantID string, keys []uuid.UUID) (map[uuid.UUID]bool, error) {
	return r.existingKeys(ctx, `SELECT idempotency_key FROM invoices
WHERE tenant_id=$1 AND idempotency_key = ANY($2)`, tenantID, keys)
}

func (r *PgRepository) existingKeys(ctx context.Context, query, tenantID string, keys []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, query, tenantID, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var key uuid.UUID
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out[key] = true
	}
	return out, rows.Err()
}

// InventoryValue implements Repository.
func (r *PgRepository) InventoryValue(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(quantity * average_cost), 0)
FROM inventory_valuations WHERE tenant_id=$1`, tenantID).Scan(&total)
	return total, err
}

// AccountBalance implements Repository. The balance is signed by the account's normal side.
func (r *PgRepository) AccountBalance(ctx context.Context, tenantID, code string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(
    CASE WHEN a.normal_balance = 'DEBIT'
        THEN COALESCE(le.debit_amount, 0) - COALESCE(le.credit_amount, 0)
        ELSE COALESCE(le.credit_amount, 0) - COALESCE(le.debit_amount, 0) END), 0)
FROM accounts a
LEFT JOIN ledger_entries le ON le.account_id = a.id AND le.tenant_id = a.tenant_id
WHERE a.tenant_id=$1 AND a.code=$2`, tenantID, code).Scan(&total)
	return total, err
}

var _ Repository = (*PgRepository)(nil)
