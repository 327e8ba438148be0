package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/wms-ledger/internal/jobs"
	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// Actor recorded as creator of integration postings.
const Actor = "integration"

// ErrSatelliteExists is returned by repositories when a satellite with the same idempotency key exists.
var ErrSatelliteExists = errors.New("integration: satellite record already exists")

// Status is the outcome of processing one event.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusDuplicate Status = "DUPLICATE"
	StatusSkipped   Status = "SKIPPED"
	StatusNoHandler Status = "NO_HANDLER"
	StatusFailed    Status = "FAILED"
	StatusRejected  Status = "REJECTED"
	StatusDead      Status = "DEAD"
)

// Terminal reports whether an outbox event in this status will not be attempted again.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusFailed && s != ""
}

// Result reports what ProcessEvent did. It never carries a Go error.
type Result struct {
	EventType      string          `json:"eventType"`
	TenantID       string          `json:"tenantId"`
	Status         Status          `json:"status"`
	Success        bool            `json:"success"`
	EntryNumber    string          `json:"entryNumber,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Record         string          `json:"record,omitempty"`
	Warning        string          `json:"warning,omitempty"`
	Error          string          `json:"error,omitempty"`
	Retryable      bool            `json:"retryable,omitempty"`
}

// TxRepository exposes satellite writes and ledger access inside the posting transaction.
type TxRepository interface {
	CostLookup
	Ledger() ledger.TxRepository
	InsertCostAllocation(ctx context.Context, a CostAllocation) (CostAllocation, error)
	NextInvoiceNumber(ctx context.Context, tenantID string, year int) (int64, error)
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertExpense(ctx context.Context, e Expense) (Expense, error)
	InsertSupplierInvoice(ctx context.Context, si SupplierInvoice) (SupplierInvoice, error)
	ApplyStock(ctx context.Context, tenantID string, d StockDelta) error
}

// RepositoryPort opens posting transactions.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Poster writes journal entries through a caller-owned transaction.
type Poster interface {
	PostInTx(ctx context.Context, tx ledger.TxRepository, in ledger.EntryInput) (ledger.JournalEntry, error)
	AfterCommit(ctx context.Context, entry ledger.JournalEntry)
}

// Engine translates operational events into balanced journal entries and their satellite records.
type Engine struct {
	repo    RepositoryPort
	poster  Poster
	table   dispatchTable
	rates   Rates
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine builds the engine and its dispatch table.
func NewEngine(repo RepositoryPort, poster Poster, rates Rates, metrics *jobmetrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:    repo,
		poster:  poster,
		table:   newDispatchTable(validator.New()),
		rates:   rates,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "integration")),
		now:     time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// ProcessEvent posts the entry for one event. Every failure, including a panic in a
// rule, is reported through the Result; nothing already committed is rolled back.
func (e *Engine) ProcessEvent(ctx context.Context, eventType string, payload json.RawMessage, tenantID string) (res Result) {
	res = Result{EventType: eventType, TenantID: tenantID}
	defer func() {
		if r := recover(); r != nil {
			res.Status, res.Success, res.Retryable = StatusFailed, false, false
			res.Error = fmt.Sprintf("integration: handler panic: %v", r)
		}
		e.report(res)
	}()

	if tenantID == "" {
		return e.fail(res, shared.ErrTenantRequired)
	}
	evt, ok := ParseEventType(eventType)
	if !ok {
		res.Status = StatusNoHandler
		res.Warning = "no handler for event type " + strconv.Quote(eventType)
		return res
	}
	apply, ok := e.table[evt]
	if !ok {
		res.Status = StatusNoHandler
		return res
	}

	var (
		plan   Plan
		posted ledger.JournalEntry
		record string
	)
	env := ruleEnv{rates: e.rates, now: e.now()}
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		env.costs = tx
		p, err := apply(ctx, env, tenantID, payload)
		if err != nil {
			return err
		}
		plan = p
		if p.Skip != "" {
			return nil
		}
		key := SourceKey(tenantID, evt, p.OperationID)
		p.Entry.TenantID = tenantID
		p.Entry.CreatedBy = Actor
		p.Entry.Source = &ledger.SourceKey{Name: string(evt), Key: key}
		posted, err = e.poster.PostInTx(ctx, tx.Ledger(), p.Entry)
		if err != nil {
			return err
		}
		record, err = writeSatellites(ctx, tx, tenantID, key, p, posted)
		return err
	})
	if plan.OperationID != "" {
		res.IdempotencyKey = SourceKey(tenantID, evt, plan.OperationID).String()
	}

	switch {
	case err == nil && plan.Skip != "":
		res.Status, res.Success, res.Warning = StatusSkipped, true, plan.Skip
	case err == nil:
		res.Status, res.Success = StatusProcessed, true
		res.EntryNumber = posted.Number
		res.Amount = posted.TotalAmount
		res.Record = record
		e.poster.AfterCommit(ctx, posted)
	case errors.Is(err, ledger.ErrSourceAlreadyLinked), errors.Is(err, ErrSatelliteExists):
		res.Status, res.Success = StatusDuplicate, true
		res.Warning = "event already posted"
	default:
		return e.fail(res, err)
	}
	return res
}

func (e *Engine) fail(res Result, err error) Result {
	res.Status = StatusFailed
	res.Success = false
	res.Error = err.Error()
	res.Retryable = retryable(err)
	return res
}

// retryable separates transient store failures from input the engine will never accept.
func retryable(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrUnknownAccount),
		errors.Is(err, ledger.ErrPeriodClosed),
		errors.Is(err, shared.ErrTenantRequired),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (e *Engine) report(res Result) {
	e.metrics.ObserveEvent(res.EventType, string(res.Status))
	attrs := []any{
		slog.String("event_type", res.EventType),
		slog.String("tenant", res.TenantID),
		slog.String("status", string(res.Status)),
	}
	if res.EntryNumber != "" {
		attrs = append(attrs, slog.String("entry", res.EntryNumber))
	}
	switch res.Status {
	case StatusFailed:
		attrs = append(attrs, slog.String("error", res.Error), slog.Bool("retryable", res.Retryable))
		e.logger.Error("integration event failed", attrs...)
	case StatusNoHandler, StatusSkipped:
		attrs = append(attrs, slog.String("warning", res.Warning))
		e.logger.Warn("integration event not posted", attrs...)
	default:
		e.logger.Info("integration event processed", attrs...)
	}
}

func writeSatellites(ctx context.Context, tx TxRepository, tenantID string, key uuid.UUID, p Plan, posted ledger.JournalEntry) (string, error) {
	var record string
	if a := p.Allocation; a != nil {
		a.TenantID, a.IdempotencyKey, a.EntryID = tenantID, key, posted.ID
		saved, err := tx.InsertCostAllocation(ctx, *a)
		if err != nil {
			return "", err
		}
		record = "cost-allocation:" + strconv.FormatInt(saved.ID, 10)
	}
	if inv := p.Invoice; inv != nil {
		seq, err := tx.NextInvoiceNumber(ctx, tenantID, inv.IssueDate.Year())
		if err != nil {
			return "", err
		}
		inv.TenantID, inv.IdempotencyKey, inv.EntryID = tenantID, key, posted.ID
		inv.Number = FormatInvoiceNumber(inv.IssueDate.Year(), seq)
		saved, err := tx.InsertInvoice(ctx, *inv)
		if err != nil {
			return "", err
		}
		record = saved.Number
	}
	if ex := p.Expense; ex != nil {
		ex.TenantID, ex.IdempotencyKey, ex.EntryID = tenantID, key, posted.ID
		saved, err := tx.InsertExpense(ctx, *ex)
		if err != nil {
			return "", err
		}
		record = "expense:" + strconv.FormatInt(saved.ID, 10)
	}
	if si := p.SupplierInvoice; si != nil {
		si.TenantID, si.IdempotencyKey, si.EntryID = tenantID, key, posted.ID
		saved, err := tx.InsertSupplierInvoice(ctx, *si)
		if err != nil {
			return "", err
		}
		record = saved.Number
	}
	for _, d := range p.Stock {
		if err := tx.ApplyStock(ctx, tenantID, d); err != nil {
			return "", err
		}
	}
	return record, nil
}

// FormatInvoiceNumber renders INV-<year>-<seq> with at least four digits.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%04d", year, seq)
}
