// Package ledgertest provides an in-memory ledger store for tests of modules that post entries.
package ledgertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
)

type sourceKey struct {
	tenant string
	source ledger.SourceKey
}

type period struct {
	tenant string
	ref    ledger.PeriodRef
	closed bool
}

type state struct {
	accounts  map[string]map[string]ledger.Account
	sequences map[string]int64
	entries   []ledger.JournalEntry
	sources   map[sourceKey]int64
	periods   []period
	nextID    int64
}

func (s *state) clone() *state {
	out := &state{
		accounts:  make(map[string]map[string]ledger.Account, len(s.accounts)),
		sequences: make(map[string]int64, len(s.sequences)),
		entries:   append([]ledger.JournalEntry(nil), s.entries...),
		sources:   make(map[sourceKey]int64, len(s.sources)),
		periods:   append([]period(nil), s.periods...),
		nextID:    s.nextID,
	}
	for tenant, chart := range s.accounts {
		copied := make(map[string]ledger.Account, len(chart))
		for code, acc := range chart {
			copied[code] = acc
		}
		out.accounts[tenant] = copied
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.sources {
		out.sources[k] = v
	}
	return out
}

// Store is a serialised in-memory ledger. Transactions hold the store lock until commit or rollback.
type Store struct {
	mu    sync.Mutex
	state *state
	// FailLines, when set, is returned by the next InsertLines call.
	FailLines error
}

// New returns an empty store.
func New() *Store {
	return &Store{state: (&state{}).clone()}
}

// SeedChart installs the default chart for tenantID.
func (s *Store) SeedChart(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chart := make(map[string]ledger.Account)
	for _, c := range ledger.DefaultChart() {
		s.state.nextID++
		chart[c.Code] = ledger.Account{
			ID: s.state.nextID, TenantID: tenantID, Code: c.Code, Name: c.Name,
			Type: c.Type, NormalBalance: c.NormalBalance, Active: true,
		}
	}
	s.state.accounts[tenantID] = chart
}

// SetPeriod registers or updates a period used by the closed-period check.
func (s *Store) SetPeriod(tenantID string, ref ledger.PeriodRef, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.setPeriod(tenantID, ref, closed)
}

func (st *state) setPeriod(tenantID string, ref ledger.PeriodRef, closed bool) {
	for i, p := range st.periods {
		if p.tenant == tenantID && p.ref.ID == ref.ID {
			st.periods[i] = period{tenant: tenantID, ref: ref, closed: closed}
			return
		}
	}
	st.periods = append(st.periods, period{tenant: tenantID, ref: ref, closed: closed})
}

// InsertRaw stores an entry without validation, e.g. a corrupted unbalanced entry.
func (s *Store) InsertRaw(entry ledger.JournalEntry) ledger.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.sequences[entry.TenantID]++
	seq := s.state.sequences[entry.TenantID]
	s.state.nextID++
	entry.ID = s.state.nextID
	entry.Sequence = seq
	entry.Number = ledger.FormatEntryNumber(seq)
	for i := range entry.Lines {
		entry.Lines[i].EntryID = entry.ID
		entry.Lines[i].AccountID = s.state.accounts[entry.TenantID][entry.Lines[i].AccountCode].ID
		entry.Lines[i].TransactionDate = entry.TransactionDate
	}
	s.state.entries = append(s.state.entries, entry)
	return entry
}

// Entries returns committed entries of a tenant ordered by sequence.
func (s *Store) Entries(tenantID string) []ledger.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.tenantEntries(tenantID, time.Time{}, time.Time{})
}

// Sequence returns the tenant's last issued number.
func (s *Store) Sequence(tenantID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.sequences[tenantID]
}

func (st *state) tenantEntries(tenantID string, from, to time.Time) []ledger.JournalEntry {
	var out []ledger.JournalEntry
	for _, e := range st.entries {
		if e.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && e.TransactionDate.Before(from) {
			continue
		}
		if !to.IsZero() && e.TransactionDate.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Begin locks the store and stages a copy of its state.
func (s *Store) Begin() *Tx {
	s.mu.Lock()
	return &Tx{store: s, st: s.state.clone()}
}

// WithTx implements ledger.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	tx := s.Begin()
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	tx.Commit()
	return nil
}

// GetAccount implements ledger.RepositoryPort.
func (s *Store) GetAccount(_ context.Context, tenantID, code string) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.state.accounts[tenantID][code]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acc, nil
}

// ListAccounts implements ledger.RepositoryPort.
func (s *Store) ListAccounts(_ context.Context, tenantID string) ([]ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.chart(tenantID), nil
}

func (st *state) chart(tenantID string) []ledger.Account {
	out := make([]ledger.Account, 0, len(st.accounts[tenantID]))
	for _, acc := range st.accounts[tenantID] {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// GetEntry implements ledger.RepositoryPort.
func (s *Store) GetEntry(_ context.Context, tenantID, number string) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.state.entries {
		if e.TenantID == tenantID && e.Number == number {
			return e, nil
		}
	}
	return ledger.JournalEntry{}, ledger.ErrEntryNotFound
}

// Tx is a staged transaction over the store.
type Tx struct {
	store *Store
	st    *state
	done  bool
}

// Commit publishes staged writes and releases the store.
func (tx *Tx) Commit() {
	if tx.done {
		return
	}
	tx.done = true
	tx.store.state = tx.st
	tx.store.mu.Unlock()
}

// Rollback drops staged writes and releases the store.
func (tx *Tx) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	tx.store.mu.Unlock()
}

// Entries returns staged entries of a tenant dated within [from, to]; zero bounds are open.
func (tx *Tx) Entries(tenantID string, from, to time.Time) []ledger.JournalEntry {
	return tx.st.tenantEntries(tenantID, from, to)
}

// Accounts returns the staged chart of a tenant.
func (tx *Tx) Accounts(tenantID string) []ledger.Account {
	return tx.st.chart(tenantID)
}

// SetPeriod stages a period status change.
func (tx *Tx) SetPeriod(tenantID string, ref ledger.PeriodRef, closed bool) {
	tx.st.setPeriod(tenantID, ref, closed)
}

// SourceLinked reports whether a source key already produced an entry.
func (tx *Tx) SourceLinked(tenantID string, source ledger.SourceKey) bool {
	_, ok := tx.st.sources[sourceKey{tenant: tenantID, source: source}]
	return ok
}

// AccountsByCode implements ledger.TxRepository.
func (tx *Tx) AccountsByCode(_ context.Context, tenantID string, codes []string) (map[string]ledger.Account, error) {
	out := make(map[string]ledger.Account, len(codes))
	for _, code := range codes {
		if acc, ok := tx.st.accounts[tenantID][code]; ok {
			out[code] = acc
		}
	}
	return out, nil
}

// ClosedPeriodCovering implements ledger.TxRepository.
func (tx *Tx) ClosedPeriodCovering(_ context.Context, tenantID string, date time.Time) (*ledger.PeriodRef, error) {
	for _, p := range tx.st.periods {
		if p.tenant != tenantID || !p.closed {
			continue
		}
		if !date.Before(p.ref.StartDate) && !date.After(p.ref.EndDate) {
			ref := p.ref
			return &ref, nil
		}
	}
	return nil, nil
}

// NextEntrySequence implements ledger.TxRepository.
func (tx *Tx) NextEntrySequence(_ context.Context, tenantID string) (int64, error) {
	tx.st.sequences[tenantID]++
	return tx.st.sequences[tenantID], nil
}

// InsertEntry implements ledger.TxRepository.
func (tx *Tx) InsertEntry(_ context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error) {
	tx.st.nextID++
	entry.ID = tx.st.nextID
	tx.st.entries = append(tx.st.entries, entry)
	return entry, nil
}

// InsertLines implements ledger.TxRepository.
func (tx *Tx) InsertLines(_ context.Context, entryID int64, lines []ledger.LedgerLine) ([]ledger.LedgerLine, error) {
	if err := tx.store.FailLines; err != nil {
		tx.store.FailLines = nil
		return nil, err
	}
	out := make([]ledger.LedgerLine, len(lines))
	for i, l := range lines {
		tx.st.nextID++
		l.ID = tx.st.nextID
		l.EntryID = entryID
		out[i] = l
	}
	for i := range tx.st.entries {
		if tx.st.entries[i].ID == entryID {
			tx.st.entries[i].Lines = append([]ledger.LedgerLine(nil), out...)
		}
	}
	return out, nil
}

// LinkSource implements ledger.TxRepository.
func (tx *Tx) LinkSource(_ context.Context, tenantID string, source ledger.SourceKey, entryID int64) error {
	key := sourceKey{tenant: tenantID, source: source}
	if _, ok := tx.st.sources[key]; ok {
		return ledger.ErrSourceConflict
	}
	tx.st.sources[key] = entryID
	return nil
}

var (
	_ ledger.RepositoryPort = (*Store)(nil)
	_ ledger.TxRepository   = (*Tx)(nil)
)
