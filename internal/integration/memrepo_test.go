package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/ledger/ledgertest"
)

type valuation struct {
	quantity decimal.Decimal
	value    decimal.Decimal
	average  decimal.Decimal
}

type satState struct {
	allocations      []CostAllocation
	invoices         []Invoice
	expenses         []Expense
	supplierInvoices []SupplierInvoice
	invoiceSeq       map[string]int64
	stock            map[string]valuation
	keys             map[string]bool
	nextID           int64
}

func (s *satState) clone() *satState {
	out := &satState{
		allocations:      append([]CostAllocation(nil), s.allocations...),
		invoices:         append([]Invoice(nil), s.invoices...),
		expenses:         append([]Expense(nil), s.expenses...),
		supplierInvoices: append([]SupplierInvoice(nil), s.supplierInvoices...),
		invoiceSeq:       make(map[string]int64, len(s.invoiceSeq)),
		stock:            make(map[string]valuation, len(s.stock)),
		keys:             make(map[string]bool, len(s.keys)),
		nextID:           s.nextID,
	}
	for k, v := range s.invoiceSeq {
		out.invoiceSeq[k] = v
	}
	for k, v := range s.stock {
		out.stock[k] = v
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	return out
}

type memRepo struct {
	store *ledgertest.Store

	mu          sync.Mutex
	sat         *satState
	failExpense error
	panicCosts  bool
}

func newMemRepo(store *ledgertest.Store) *memRepo {
	return &memRepo{store: store, sat: (&satState{}).clone()}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	ltx := m.store.Begin()
	committed := false
	defer func() {
		if !committed {
			ltx.Rollback()
		}
	}()
	m.mu.Lock()
	tx := &memTx{repo: m, ledgerTx: ltx, st: m.sat.clone()}
	m.mu.Unlock()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.mu.Lock()
	m.sat = tx.st
	m.mu.Unlock()
	ltx.Commit()
	committed = true
	return nil
}

func (m *memRepo) state() *satState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sat.clone()
}

func (m *memRepo) valuation(tenantID, sku, warehouseID string) valuation {
	return m.state().stock[stockKey(tenantID, sku, warehouseID)]
}

func stockKey(tenantID, sku, warehouseID string) string {
	return tenantID + "|" + sku + "|" + warehouseID
}

type memTx struct {
	repo     *memRepo
	ledgerTx *ledgertest.Tx
	st       *satState
}

func (tx *memTx) Ledger() ledger.TxRepository { return tx.ledgerTx }

func (tx *memTx) AverageCost(_ context.Context, tenantID, sku, warehouseID string) (decimal.Decimal, error) {
	if tx.repo.panicCosts {
		panic("valuation table corrupted")
	}
	return tx.st.stock[stockKey(tenantID, sku, warehouseID)].average, nil
}

func (tx *memTx) claim(kind, tenantID string, a fmt.Stringer) error {
	key := kind + ":" + tenantID + ":" + a.String()
	if tx.st.keys[key] {
		return ErrSatelliteExists
	}
	tx.st.keys[key] = true
	tx.st.nextID++
	return nil
}

func (tx *memTx) InsertCostAllocation(_ context.Context, a CostAllocation) (CostAllocation, error) {
	if err := tx.claim("allocation", a.TenantID, a.IdempotencyKey); err != nil {
		return CostAllocation{}, err
	}
	a.ID = tx.st.nextID
	tx.st.allocations = append(tx.st.allocations, a)
	return a, nil
}

func (tx *memTx) NextInvoiceNumber(_ context.Context, tenantID string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", tenantID, year)
	tx.st.invoiceSeq[key]++
	return tx.st.invoiceSeq[key], nil
}

func (tx *memTx) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	if err := tx.claim("invoice", inv.TenantID, inv.IdempotencyKey); err != nil {
		return Invoice{}, err
	}
	inv.ID = tx.st.nextID
	tx.st.invoices = append(tx.st.invoices, inv)
	return inv, nil
}

func (tx *memTx) InsertExpense(_ context.Context, e Expense) (Expense, error) {
	if err := tx.repo.failExpense; err != nil {
		return Expense{}, err
	}
	if err := tx.claim("expense", e.TenantID, e.IdempotencyKey); err != nil {
		return Expense{}, err
	}
	e.ID = tx.st.nextID
	tx.st.expenses = append(tx.st.expenses, e)
	return e, nil
}

func (tx *memTx) InsertSupplierInvoice(_ context.Context, si SupplierInvoice) (SupplierInvoice, error) {
	if err := tx.claim("supplier-invoice", si.TenantID, si.IdempotencyKey); err != nil {
		return SupplierInvoice{}, err
	}
	si.ID = tx.st.nextID
	tx.st.supplierInvoices = append(tx.st.supplierInvoices, si)
	return si, nil
}

func (tx *memTx) ApplyStock(_ context.Context, tenantID string, d StockDelta) error {
	key := stockKey(tenantID, d.SKU, d.WarehouseID)
	v := tx.st.stock[key]
	v.quantity = v.quantity.Add(d.Quantity)
	v.value = v.value.Add(d.Value)
	if v.quantity.IsPositive() {
		v.average = v.value.DivRound(v.quantity, 4)
	}
	tx.st.stock[key] = v
	return nil
}
