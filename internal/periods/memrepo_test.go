package periods

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/ledger/ledgertest"
)

type memRepo struct {
	store   *ledgertest.Store
	mu      sync.Mutex
	periods map[int64]Period
	nextID  int64
}

func newMemRepo(store *ledgertest.Store) *memRepo {
	return &memRepo{store: store, periods: map[int64]Period{}}
}

func (m *memRepo) snapshot() (map[int64]Period, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]Period, len(m.periods))
	for k, v := range m.periods {
		out[k] = v
	}
	return out, m.nextID
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	ltx := m.store.Begin()
	staged, nextID := m.snapshot()
	tx := &memTx{ledgerTx: ltx, periods: staged, nextID: nextID}
	if err := fn(ctx, tx); err != nil {
		ltx.Rollback()
		return err
	}
	m.mu.Lock()
	m.periods = tx.periods
	m.nextID = tx.nextID
	m.mu.Unlock()
	ltx.Commit()
	return nil
}

func (m *memRepo) GetPeriod(_ context.Context, tenantID string, id int64) (Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok || p.TenantID != tenantID {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (m *memRepo) ListPeriods(_ context.Context, filter ListFilter) ([]Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Period
	for _, p := range m.periods {
		if p.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Year > 0 && p.StartDate.Year() != filter.Year {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (m *memRepo) FindClosedPeriod(_ context.Context, tenantID string, date time.Time) (*Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.TenantID == tenantID && p.Status == StatusClosed && p.Contains(date) {
			found := p
			return &found, nil
		}
	}
	return nil, nil
}

type memTx struct {
	ledgerTx *ledgertest.Tx
	periods  map[int64]Period
	nextID   int64
}

func (tx *memTx) Ledger() ledger.TxRepository { return tx.ledgerTx }

func (tx *memTx) LockPeriod(_ context.Context, tenantID string, id int64) (Period, error) {
	p, ok := tx.periods[id]
	if !ok || p.TenantID != tenantID {
		return Period{}, ErrPeriodNotFound
	}
	return p, nil
}

func (tx *memTx) UnbalancedEntries(_ context.Context, tenantID string, from, to time.Time) ([]UnbalancedEntry, error) {
	var out []UnbalancedEntry
	for _, e := range tx.ledgerTx.Entries(tenantID, from, to) {
		debit, credit := ledger.SumLines(e.Lines)
		if len(e.Lines) == 0 || !ledger.Balanced(debit, credit) {
			out = append(out, UnbalancedEntry{Number: e.Number, Debit: debit, Credit: credit})
		}
	}
	return out, nil
}

func (tx *memTx) NominalBalances(_ context.Context, tenantID string, asOf time.Time) ([]NominalBalance, error) {
	types := map[string]ledger.AccountType{}
	for _, a := range tx.ledgerTx.Accounts(tenantID) {
		types[a.Code] = a.Type
	}
	sums := map[string]*NominalBalance{}
	for _, e := range tx.ledgerTx.Entries(tenantID, time.Time{}, asOf) {
		for _, l := range e.Lines {
			if !types[l.AccountCode].Nominal() {
				continue
			}
			b, ok := sums[l.AccountCode]
			if !ok {
				b = &NominalBalance{AccountCode: l.AccountCode, Type: types[l.AccountCode], Debit: decimal.Zero, Credit: decimal.Zero}
				sums[l.AccountCode] = b
			}
			b.Debit = b.Debit.Add(l.Debit)
			b.Credit = b.Credit.Add(l.Credit)
		}
	}
	out := make([]NominalBalance, 0, len(sums))
	for _, b := range sums {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountCode < out[j].AccountCode })
	return out, nil
}

func (tx *memTx) HasClosedPeriodAfter(_ context.Context, tenantID string, start time.Time) (bool, error) {
	for _, p := range tx.periods {
		if p.TenantID == tenantID && p.Status == StatusClosed && p.StartDate.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) MarkClosed(_ context.Context, id int64, actor string, at time.Time, closingEntry string) error {
	p, ok := tx.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = StatusClosed
	p.ClosedAt = &at
	p.ClosedBy = actor
	p.ClosingEntry = closingEntry
	tx.periods[id] = p
	tx.ledgerTx.SetPeriod(p.TenantID, p.Ref(), true)
	return nil
}

func (tx *memTx) MarkOpen(_ context.Context, id int64, _ time.Time) error {
	p, ok := tx.periods[id]
	if !ok {
		return ErrPeriodNotFound
	}
	p.Status = StatusOpen
	p.ClosedAt = nil
	p.ClosedBy = ""
	tx.periods[id] = p
	tx.ledgerTx.SetPeriod(p.TenantID, p.Ref(), false)
	return nil
}

func (tx *memTx) RangeConflict(_ context.Context, tenantID string, start, end time.Time) (bool, error) {
	for _, p := range tx.periods {
		if p.TenantID == tenantID && !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) InsertPeriod(_ context.Context, in CreateInput) (Period, error) {
	tx.nextID++
	p := Period{
		ID: tx.nextID, TenantID: in.TenantID, Name: in.Name, Type: in.Type,
		StartDate: in.StartDate, EndDate: in.EndDate, Status: StatusOpen,
	}
	tx.periods[p.ID] = p
	tx.ledgerTx.SetPeriod(p.TenantID, p.Ref(), false)
	return p, nil
}
