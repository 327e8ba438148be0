package periods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// TxRepository exposes period writes and ledger reads inside one transaction.
type TxRepository interface {
	// LockPeriod loads the period row FOR UPDATE.
	LockPeriod(ctx context.Context, tenantID string, id int64) (Period, error)
	UnbalancedEntries(ctx context.Context, tenantID string, from, to time.Time) ([]UnbalancedEntry, error)
	// NominalBalances sums revenue and expense lines dated on or before asOf.
	NominalBalances(ctx context.Context, tenantID string, asOf time.Time) ([]NominalBalance, error)
	HasClosedPeriodAfter(ctx context.Context, tenantID string, start time.Time) (bool, error)
	MarkClosed(ctx context.Context, id int64, actor string, at time.Time, closingEntry string) error
	MarkOpen(ctx context.Context, id int64, at time.Time) error
	RangeConflict(ctx context.Context, tenantID string, start, end time.Time) (bool, error)
	InsertPeriod(ctx context.Context, in CreateInput) (Period, error)
	Ledger() ledger.TxRepository
}

// RepositoryPort abstracts period persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPeriod(ctx context.Context, tenantID string, id int64) (Period, error)
	ListPeriods(ctx context.Context, filter ListFilter) ([]Period, error)
	FindClosedPeriod(ctx context.Context, tenantID string, date time.Time) (*Period, error)
}

// Poster writes the closing entry through the period transaction.
type Poster interface {
	PostInTx(ctx context.Context, tx ledger.TxRepository, in ledger.EntryInput) (ledger.JournalEntry, error)
	AfterCommit(ctx context.Context, entry ledger.JournalEntry)
}

// Locker provides mutual exclusion across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// AuditPort records lifecycle changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the reporting period lifecycle.
type Service struct {
	repo   RepositoryPort
	poster Poster
	locker Locker
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, poster Poster, locker Locker, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		poster: poster,
		locker: locker,
		audit:  audit,
		logger: logger.With(slog.String("component", "periods")),
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListPeriods returns periods matching filter ordered by start date.
func (s *Service) ListPeriods(ctx context.Context, filter ListFilter) ([]Period, error) {
	if filter.TenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListPeriods(ctx, filter)
}

// GetPeriod returns a single period.
func (s *Service) GetPeriod(ctx context.Context, tenantID string, id int64) (Period, error) {
	return s.repo.GetPeriod(ctx, tenantID, id)
}

// CreatePeriod inserts a new OPEN period after validating overlap.
func (s *Service) CreatePeriod(ctx context.Context, in CreateInput) (Period, error) {
	if in.Type == "" {
		in.Type = TypeMonthly
	}
	in.StartDate = ledger.DateOnly(in.StartDate)
	in.EndDate = ledger.DateOnly(in.EndDate)
	if err := in.Validate(); err != nil {
		return Period{}, err
	}
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := tx.RangeConflict(ctx, in.TenantID, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if conflict {
			return ErrPeriodOverlap
		}
		period, err = tx.InsertPeriod(ctx, in)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// IntegrityFinding lists the unbalanced entries found inside one open period.
type IntegrityFinding struct {
	Period  Period            `json:"period"`
	Entries []UnbalancedEntry `json:"entries"`
}

// VerifyOpenPeriods re-checks every entry dated inside an OPEN period and returns
// the periods holding entries whose lines no longer balance.
func (s *Service) VerifyOpenPeriods(ctx context.Context, tenantID string) ([]IntegrityFinding, error) {
	open, err := s.ListPeriods(ctx, ListFilter{TenantID: tenantID, Status: StatusOpen})
	if err != nil {
		return nil, err
	}
	var findings []IntegrityFinding
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, p := range open {
			bad, err := tx.UnbalancedEntries(ctx, tenantID, p.StartDate, p.EndDate)
			if err != nil {
				return fmt.Errorf("verify period %s: %w", p.Name, err)
			}
			if len(bad) > 0 {
				findings = append(findings, IntegrityFinding{Period: p, Entries: bad})
			}
		}
		return nil
	})
	return findings, err
}

// FindClosedPeriod returns the CLOSED period containing date, or nil.
func (s *Service) FindClosedPeriod(ctx context.Context, tenantID string, date time.Time) (*Period, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.FindClosedPeriod(ctx, tenantID, ledger.DateOnly(date))
}

// IsDateInClosedPeriod reports whether a posting on date would be rejected.
func (s *Service) IsDateInClosedPeriod(ctx context.Context, tenantID string, date time.Time) (bool, error) {
	p, err := s.FindClosedPeriod(ctx, tenantID, date)
	if err != nil {
		return false, err
	}
	return p != nil, nil
}

// Close verifies every entry in the period balances, sweeps revenue and expense
// balances into retained earnings with one closing entry, then marks the period CLOSED.
func (s *Service) Close(ctx context.Context, tenantID string, periodID int64, actor string) (CloseResult, error) {
	release, err := s.lock(ctx, tenantID, periodID)
	if err != nil {
		return CloseResult{}, err
	}
	defer s.unlock(release, tenantID, periodID)

	var result CloseResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.LockPeriod(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if period.Status == StatusClosed {
			return ErrAlreadyClosed
		}
		if err := shared.ValidatePeriodTransition(string(period.Status), string(StatusClosed)); err != nil {
			return err
		}
		bad, err := tx.UnbalancedEntries(ctx, tenantID, period.StartDate, period.EndDate)
		if err != nil {
			return err
		}
		if len(bad) > 0 {
			return &UnbalancedEntriesError{PeriodID: period.ID, Entries: bad}
		}
		balances, err := tx.NominalBalances(ctx, tenantID, period.EndDate)
		if err != nil {
			return err
		}
		postings, net := closingPostings(balances)
		var entryNumber string
		if len(postings) > 0 {
			entry, err := s.poster.PostInTx(ctx, tx.Ledger(), ledger.EntryInput{
				TenantID:        tenantID,
				Description:     fmt.Sprintf("Period close %s", period.Name),
				TransactionDate: period.EndDate,
				ReferenceType:   ledger.RefPeriodClose,
				ReferenceID:     strconv.FormatInt(period.ID, 10),
				Status:          ledger.EntryStatusApproved,
				CreatedBy:       actor,
				Postings:        postings,
			})
			if err != nil {
				return fmt.Errorf("periods: post closing entry: %w", err)
			}
			result.ClosingEntry = &entry
			entryNumber = entry.Number
		}
		closedAt := s.now()
		if err := tx.MarkClosed(ctx, period.ID, actor, closedAt, entryNumber); err != nil {
			return err
		}
		period.Status = StatusClosed
		period.ClosedAt = &closedAt
		period.ClosedBy = actor
		period.ClosingEntry = entryNumber
		result.Period = period
		result.NetIncome = net
		return nil
	})
	if err != nil {
		return CloseResult{}, err
	}
	if result.ClosingEntry != nil {
		s.poster.AfterCommit(ctx, *result.ClosingEntry)
	}
	s.record(ctx, tenantID, actor, "period.close", result.Period, map[string]any{
		"closing_entry": result.Period.ClosingEntry,
		"net_income":    result.NetIncome.StringFixed(2),
	})
	s.logger.Info("period closed",
		slog.String("tenant", tenantID),
		slog.String("period", result.Period.Name),
		slog.String("closing_entry", result.Period.ClosingEntry),
		slog.String("net_income", result.NetIncome.StringFixed(2)))
	return result, nil
}

// Reopen unlocks postings for a CLOSED period. The closing entry is left in place.
func (s *Service) Reopen(ctx context.Context, tenantID string, periodID int64, actor string) (Period, error) {
	release, err := s.lock(ctx, tenantID, periodID)
	if err != nil {
		return Period{}, err
	}
	defer s.unlock(release, tenantID, periodID)

	var period Period
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.LockPeriod(ctx, tenantID, periodID)
		if err != nil {
			return err
		}
		if period.Status != StatusClosed {
			return ErrNotClosed
		}
		later, err := tx.HasClosedPeriodAfter(ctx, tenantID, period.StartDate)
		if err != nil {
			return err
		}
		if later {
			return ErrSubsequentPeriodClosed
		}
		if err := tx.MarkOpen(ctx, period.ID, s.now()); err != nil {
			return err
		}
		period.Status = StatusOpen
		period.ClosedAt = nil
		period.ClosedBy = ""
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.record(ctx, tenantID, actor, "period.reopen", period, nil)
	return period, nil
}

func (s *Service) lock(ctx context.Context, tenantID string, periodID int64) (func(context.Context) error, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	if s.locker == nil {
		return func(context.Context) error { return nil }, nil
	}
	return s.locker.Acquire(ctx, shared.PeriodLockKey(tenantID, periodID))
}

func (s *Service) unlock(release func(context.Context) error, tenantID string, periodID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := release(ctx); err != nil {
		s.logger.Warn("release period lock",
			slog.String("tenant", tenantID),
			slog.Int64("period_id", periodID),
			slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, tenantID, actor, action string, p Period, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["name"] = p.Name
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		Actor:    actor,
		Action:   action,
		Entity:   "reporting_period",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit period change", slog.String("action", action), slog.Any("error", err))
	}
}
