package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// TxRepository exposes the writes and locks a posting needs inside one transaction.
type TxRepository interface {
	AccountsByCode(ctx context.Context, tenantID string, codes []string) (map[string]Account, error)
	// ClosedPeriodCovering share-locks and returns the CLOSED period containing date, or nil.
	ClosedPeriodCovering(ctx context.Context, tenantID string, date time.Time) (*PeriodRef, error)
	// NextEntrySequence atomically advances the tenant counter and returns the new value.
	NextEntrySequence(ctx context.Context, tenantID string) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LedgerLine) ([]LedgerLine, error)
	LinkSource(ctx context.Context, tenantID string, source SourceKey, entryID int64) error
}

// RepositoryPort abstracts transactional and read access to the ledger store.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, tenantID, code string) (Account, error)
	ListAccounts(ctx context.Context, tenantID string) ([]Account, error)
	GetEntry(ctx context.Context, tenantID, number string) (JournalEntry, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingObserver is notified after an entry commits.
type PostingObserver interface {
	EntryPosted(ctx context.Context, entry JournalEntry) error
}

// Service validates and persists journal entries.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	logger    *slog.Logger
	observers []PostingObserver
	now       func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger.With(slog.String("component", "ledger")), now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Observe registers a post-commit observer.
func (s *Service) Observe(o PostingObserver) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// GetAccount resolves one account of the tenant chart.
func (s *Service) GetAccount(ctx context.Context, tenantID, code string) (Account, error) {
	if tenantID == "" {
		return Account{}, shared.ErrTenantRequired
	}
	return s.repo.GetAccount(ctx, tenantID, strings.TrimSpace(code))
}

// ListAccounts returns the tenant chart ordered by code.
func (s *Service) ListAccounts(ctx context.Context, tenantID string) ([]Account, error) {
	if tenantID == "" {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.ListAccounts(ctx, tenantID)
}

// GetEntry loads an entry with its lines by entry number.
func (s *Service) GetEntry(ctx context.Context, tenantID, number string) (JournalEntry, error) {
	if _, err := ParseEntryNumber(number); err != nil {
		return JournalEntry{}, err
	}
	return s.repo.GetEntry(ctx, tenantID, number)
}

// CreateEntry validates and persists a balanced entry in its own transaction.
func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (JournalEntry, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := s.PostInTx(ctx, tx, in)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.AfterCommit(ctx, entry)
	return entry, nil
}

// PostInTx writes an entry through a caller-owned transaction.
// Callers must invoke AfterCommit once the transaction commits.
func (s *Service) PostInTx(ctx context.Context, tx TxRepository, in EntryInput) (JournalEntry, error) {
	in = in.normalized()
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	accounts, err := tx.AccountsByCode(ctx, in.TenantID, in.accountCodes())
	if err != nil {
		return JournalEntry{}, err
	}
	if missing := missingCodes(in.accountCodes(), accounts); len(missing) > 0 {
		return JournalEntry{}, &UnknownAccountError{TenantID: in.TenantID, Codes: missing}
	}
	period, err := tx.ClosedPeriodCovering(ctx, in.TenantID, in.TransactionDate)
	if err != nil {
		return JournalEntry{}, err
	}
	if period != nil {
		return JournalEntry{}, &PeriodClosedError{Period: *period, Date: in.TransactionDate}
	}
	seq, err := tx.NextEntrySequence(ctx, in.TenantID)
	if err != nil {
		return JournalEntry{}, err
	}
	total, _ := in.Totals()
	inserted, err := tx.InsertEntry(ctx, JournalEntry{
		TenantID:        in.TenantID,
		Number:          FormatEntryNumber(seq),
		Sequence:        seq,
		Description:     in.Description,
		TransactionDate: in.TransactionDate,
		TotalAmount:     total,
		Status:          in.Status,
		ReferenceType:   in.ReferenceType,
		ReferenceID:     in.ReferenceID,
		CreatedBy:       in.CreatedBy,
		CreatedAt:       s.now(),
	})
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := tx.InsertLines(ctx, inserted.ID, buildLines(inserted, in, accounts))
	if err != nil {
		return JournalEntry{}, err
	}
	if in.Source != nil {
		if err := tx.LinkSource(ctx, in.TenantID, *in.Source, inserted.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return JournalEntry{}, ErrSourceAlreadyLinked
			}
			return JournalEntry{}, err
		}
	}
	inserted.Lines = lines
	return inserted, nil
}

// AfterCommit records the audit trail and notifies observers. Failures are logged only.
func (s *Service) AfterCommit(ctx context.Context, entry JournalEntry) {
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			TenantID: entry.TenantID,
			Actor:    entry.CreatedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: entry.Number,
			Meta: map[string]any{
				"reference_type": string(entry.ReferenceType),
				"reference_id":   entry.ReferenceID,
				"total":          entry.TotalAmount.StringFixed(2),
			},
			At: s.now(),
		})
		if err != nil {
			s.logger.Warn("audit journal post", slog.String("entry", entry.Number), slog.Any("error", err))
		}
	}
	for _, o := range s.observers {
		if err := o.EntryPosted(ctx, entry); err != nil {
			s.logger.Warn("posting observer", slog.String("entry", entry.Number), slog.Any("error", err))
		}
	}
}

func missingCodes(codes []string, found map[string]Account) []string {
	var missing []string
	for _, code := range codes {
		acc, ok := found[code]
		if !ok || !acc.Active {
			missing = append(missing, code)
		}
	}
	sort.Strings(missing)
	return missing
}

func buildLines(entry JournalEntry, in EntryInput, accounts map[string]Account) []LedgerLine {
	lines := make([]LedgerLine, 0, len(in.Postings))
	for i, p := range in.Postings {
		desc := p.Description
		if desc == "" {
			desc = in.Description
		}
		lines = append(lines, LedgerLine{
			EntryID:         entry.ID,
			LineNo:          i + 1,
			AccountID:       accounts[p.AccountCode].ID,
			AccountCode:     p.AccountCode,
			Debit:           p.Debit,
			Credit:          p.Credit,
			Description:     desc,
			TransactionDate: entry.TransactionDate,
			ReferenceType:   entry.ReferenceType,
			ReferenceID:     entry.ReferenceID,
		})
	}
	return lines
}

// String renders an entry for logs.
func (e JournalEntry) String() string {
	return fmt.Sprintf("%s %s %s", e.Number, e.TransactionDate.Format(time.DateOnly), e.TotalAmount.StringFixed(2))
}
