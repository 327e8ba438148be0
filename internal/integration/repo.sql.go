package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/platform/db"
)

// Repository persists integration satellites, outbox events and monitoring reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx     pgx.Tx
	ledger ledger.TxRepository
}

// WithTx runs satellite writes and the ledger posting in one READ COMMITTED transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("integration repository not initialised")
	}
	err := db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, ledger: ledger.NewTxRepository(tx)})
	})
	if errors.Is(err, db.ErrTxRetriesExhausted) {
		return errors.Join(ledger.ErrSequenceContention, err)
	}
	return err
}

func (r *txRepository) Ledger() ledger.TxRepository { return r.ledger }

func (r *txRepository) AverageCost(ctx context.Context, tenantID, sku, warehouseID string) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT average_cost FROM inventory_valuations
WHERE tenant_id=$1 AND sku=$2 AND warehouse_id=$3 FOR UPDATE`, tenantID, sku, warehouseID).Scan(&avg)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return avg, err
}

func (r *txRepository) activityCenter(ctx context.Context, tenantID, warehouseID string) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO activity_centers (tenant_id, name, activity_type)
VALUES ($1, $2, 'WAREHOUSING')
ON CONFLICT ON CONSTRAINT uq_activity_centers DO UPDATE SET is_active = activity_centers.is_active
RETURNING id`, tenantID, "Warehouse-"+warehouseID).Scan(&id)
	return id, err
}

func (r *txRepository) InsertCostAllocation(ctx context.Context, a CostAllocation) (CostAllocation, error) {
	centerID, err := r.activityCenter(ctx, a.TenantID, a.WarehouseID)
	if err != nil {
		return CostAllocation{}, fmt.Errorf("activity center: %w", err)
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO cost_allocations (tenant_id, idempotency_key, journal_entry_id, activity_center_id,
service, total_cost, unit_cost, quantity, allocation_date, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		a.TenantID, a.IdempotencyKey, a.EntryID, centerID, a.Service, a.TotalCost, a.UnitCost,
		a.Quantity, a.AllocationDate, a.Metadata).Scan(&a.ID)
	if db.IsUniqueViolation(err, "uq_cost_allocations_key") {
		return CostAllocation{}, ErrSatelliteExists
	}
	return a, err
}

func (r *txRepository) NextInvoiceNumber(ctx context.Context, tenantID string, year int) (int64, error) {
	var next int64
	err := r.tx.QueryRow(ctx, `INSERT INTO invoice_sequences (tenant_id, year, last_number) VALUES ($1, $2, 1)
ON CONFLICT (tenant_id, year) DO UPDATE SET last_number = invoice_sequences.last_number + 1
RETURNING last_number`, tenantID, year).Scan(&next)
	return next, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO invoices (tenant_id, idempotency_key, journal_entry_id, invoice_number, customer_id,
shipment_id, issue_date, due_date, subtotal, tax_amount, total_amount, status, billing_type, service_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		inv.TenantID, inv.IdempotencyKey, inv.EntryID, inv.Number, inv.CustomerID, inv.ShipmentID,
		inv.IssueDate, inv.DueDate, inv.Subtotal, inv.TaxAmount, inv.TotalAmount, inv.Status,
		inv.BillingType, inv.ServiceType).Scan(&inv.ID)
	if db.IsUniqueViolation(err, "uq_invoices_key") {
		return Invoice{}, ErrSatelliteExists
	}
	if err != nil {
		return Invoice{}, err
	}
	batch := &pgx.Batch{}
	for _, l := range inv.Lines {
		batch.Queue(`INSERT INTO invoice_lines (invoice_id, description, quantity, unit_price, total_price, service_type)
VALUES ($1,$2,$3,$4,$5,$6)`, inv.ID, l.Description, l.Quantity, l.UnitPrice, l.TotalPrice, l.ServiceType)
	}
	if err := r.tx.SendBatch(ctx, batch).Close(); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (r *txRepository) InsertExpense(ctx context.Context, e Expense) (Expense, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO expenses (tenant_id, idempotency_key, journal_entry_id, description, amount,
category, expense_date, status, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		e.TenantID, e.IdempotencyKey, e.EntryID, e.Description, e.Amount, e.Category,
		e.ExpenseDate, e.Status, e.Metadata).Scan(&e.ID)
	if db.IsUniqueViolation(err, "uq_expenses_key") {
		return Expense{}, ErrSatelliteExists
	}
	return e, err
}

func (r *txRepository) InsertSupplierInvoice(ctx context.Context, si SupplierInvoice) (SupplierInvoice, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO supplier_invoices (tenant_id, idempotency_key, journal_entry_id, invoice_number,
supplier_id, amount, status, invoice_date, due_date, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		si.TenantID, si.IdempotencyKey, si.EntryID, si.Number, si.SupplierID, si.Amount, si.Status,
		si.InvoiceDate, si.DueDate, si.Description).Scan(&si.ID)
	if db.IsUniqueViolation(err, "uq_supplier_invoices_key") {
		return SupplierInvoice{}, ErrSatelliteExists
	}
	return si, err
}

// ApplyStock folds a delta into the weighted average valuation of (sku, warehouse).
func (r *txRepository) ApplyStock(ctx context.Context, tenantID string, d StockDelta) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_valuations AS v (tenant_id, sku, warehouse_id, quantity, total_value, average_cost)
VALUES ($1, $2, $3, $4, $5, CASE WHEN $4::numeric > 0 THEN ROUND($5::numeric / $4::numeric, 4) ELSE 0 END)
ON CONFLICT (tenant_id, sku, warehouse_id) DO UPDATE SET
    quantity = v.quantity + EXCLUDED.quantity,
    total_value = v.total_value + EXCLUDED.total_value,
    average_cost = CASE WHEN v.quantity + EXCLUDED.quantity > 0
        THEN ROUND((v.total_value + EXCLUDED.total_value) / (v.quantity + EXCLUDED.quantity), 4)
        ELSE v.average_cost END,
    updated_at = NOW()`, tenantID, d.SKU, d.WarehouseID, d.Quantity, d.Value)
	return err
}

const eventColumns = `id, tenant_id, event_type, payload, status, attempts, COALESCE(last_error, ''),
COALESCE(warning, ''), COALESCE(entry_number, ''), created_at, updated_at, processed_at`

func scanEvent(row pgx.Row) (Event, error) {
	var (
		evt     Event
		payload []byte
		status  string
	)
	err := row.Scan(&evt.ID, &evt.TenantID, &evt.Type, &payload, &status, &evt.Attempts, &evt.LastError,
		&evt.Warning, &evt.EntryNumber, &evt.CreatedAt, &evt.UpdatedAt, &evt.ProcessedAt)
	if err != nil {
		return Event{}, err
	}
	evt.Payload = payload
	evt.Status = Status(status)
	return evt, nil
}

// InsertEvent implements EventStore.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, bool, error) {
	stored, err := scanEvent(r.pool.QueryRow(ctx, `INSERT INTO integration_events (id, tenant_id, event_type, payload, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (id) DO NOTHING
RETURNING `+eventColumns, evt.ID, evt.TenantID, evt.Type, []byte(evt.Payload), string(evt.Status), evt.CreatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetEvent(ctx, evt.ID)
		return existing, false, err
	}
	if err != nil {
		return Event{}, false, err
	}
	return stored, true, nil
}

// GetEvent implements EventStore.
func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (Event, error) {
	evt, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM integration_events WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	return evt, err
}

// BeginAttempt implements EventStore.
func (r *Repository) BeginAttempt(ctx context.Context, id uuid.UUID, at time.Time) (Event, bool, error) {
	evt, err := scanEvent(r.pool.QueryRow(ctx, `UPDATE integration_events SET attempts = attempts + 1, updated_at = $2
WHERE id=$1 AND status IN ('PENDING', 'FAILED')
RETURNING `+eventColumns, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := r.GetEvent(ctx, id)
		return existing, false, err
	}
	if err != nil {
		return Event{}, false, err
	}
	return evt, true, nil
}

// CompleteAttempt implements EventStore.
func (r *Repository) CompleteAttempt(ctx context.Context, id uuid.UUID, status Status, res Result, at time.Time) error {
	var processedAt *time.Time
	if status.Terminal() {
		processedAt = &at
	}
	tag, err := r.pool.Exec(ctx, `UPDATE integration_events SET status=$2, last_error=NULLIF($3,''), warning=NULLIF($4,''),
entry_number=COALESCE(NULLIF($5,''), entry_number), updated_at=$6, processed_at=$7 WHERE id=$1`,
		id, string(status), res.Error, res.Warning, res.EntryNumber, at, processedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// StaleEvents implements EventStore.
func (r *Repository) StaleEvents(ctx context.Context, before time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM integration_events
WHERE status IN ('PENDING', 'FAILED') AND updated_at < $1
ORDER BY updated_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

// IntegrationEntries implements MonitorRepository.
func (r *Repository) IntegrationEntries(ctx context.Context, tenantID string, from, to time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries
WHERE tenant_id=$1 AND created_by=$2 AND created_at >= $3 AND created_at < $4`, tenantID, Actor, from, to).Scan(&n)
	return n, err
}

// EventCounts implements MonitorRepository.
func (r *Repository) EventCounts(ctx context.Context, tenantID string, since time.Time) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM integration_events
WHERE tenant_id=$1 AND updated_at >= $2 GROUP BY status`, tenantID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

// Throughput implements MonitorRepository.
func (r *Repository) Throughput(ctx context.Context, tenantID string, from, to time.Time) (Throughput, error) {
	var tp Throughput
	err := r.pool.QueryRow(ctx, `SELECT
    (SELECT COUNT(*) FROM invoices WHERE tenant_id=$1 AND created_at >= $2 AND created_at < $3),
    (SELECT COUNT(*) FROM cost_allocations WHERE tenant_id=$1 AND created_at >= $2 AND created_at < $3),
    (SELECT COALESCE(SUM(subtotal), 0) FROM invoices WHERE tenant_id=$1 AND created_at >= $2 AND created_at < $3)`,
		tenantID, from, to).Scan(&tp.Invoices, &tp.CostAllocations, &tp.RevenueRecognized)
	return tp, err
}

var (
	_ RepositoryPort    = (*Repository)(nil)
	_ EventStore        = (*Repository)(nil)
	_ MonitorRepository = (*Repository)(nil)
)
