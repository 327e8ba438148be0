package periods

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/wms-ledger/internal/ledger"
	"github.com/odyssey-erp/wms-ledger/internal/shared"
)

// Status enumerates reporting period lifecycle stages.
type Status string

const (
	StatusOpen   Status = shared.PeriodStatusOpen
	StatusClosed Status = shared.PeriodStatusClosed
)

// Type describes the length of a reporting period.
type Type string

const (
	TypeMonthly   Type = "MONTHLY"
	TypeQuarterly Type = "QUARTERLY"
	TypeYearly    Type = "YEARLY"
)

// Period is a bounded date range whose status gates postings.
type Period struct {
	ID           int64      `json:"id"`
	TenantID     string     `json:"tenantId"`
	Name         string     `json:"name"`
	Type         Type       `json:"periodType"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      time.Time  `json:"endDate"`
	Status       Status     `json:"status"`
	ClosedAt     *time.Time `json:"closedDate,omitempty"`
	ClosedBy     string     `json:"closedBy,omitempty"`
	ClosingEntry string     `json:"closingEntry,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Ref converts the period into the shape the ledger reports on rejection.
func (p Period) Ref() ledger.PeriodRef {
	return ledger.PeriodRef{ID: p.ID, Name: p.Name, StartDate: p.StartDate, EndDate: p.EndDate}
}

// Contains reports whether date falls within the period, inclusive.
func (p Period) Contains(date time.Time) bool {
	d := ledger.DateOnly(date)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// CreateInput captures validation rules for new periods.
type CreateInput struct {
	TenantID  string
	Name      string
	Type      Type
	StartDate time.Time
	EndDate   time.Time
}

// Validate ensures the create input is coherent.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.TenantID) == "" {
		return shared.ErrTenantRequired
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidPeriod)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start and end date required", ErrInvalidPeriod)
	}
	if in.StartDate.After(in.EndDate) {
		return fmt.Errorf("%w: start date cannot be after end date", ErrInvalidPeriod)
	}
	switch in.Type {
	case "", TypeMonthly, TypeQuarterly, TypeYearly:
	default:
		return fmt.Errorf("%w: unknown period type %q", ErrInvalidPeriod, in.Type)
	}
	return nil
}

// ListFilter narrows period listings. Zero values match everything.
type ListFilter struct {
	TenantID string
	Status   Status
	Year     int
}

// UnbalancedEntry reports one stored entry whose lines do not balance.
type UnbalancedEntry struct {
	Number string          `json:"entryNumber"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// NominalBalance is the raw debit and credit total of a revenue or expense account.
type NominalBalance struct {
	AccountCode string
	Type        ledger.AccountType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CloseResult describes a successful close.
type CloseResult struct {
	Period       Period               `json:"period"`
	ClosingEntry *ledger.JournalEntry `json:"closingEntry,omitempty"`
	NetIncome    decimal.Decimal      `json:"netIncome"`
}

var (
	// ErrInvalidPeriod indicates rejected create input.
	ErrInvalidPeriod = errors.New("periods: invalid period")
	// ErrPeriodNotFound indicates a missing period.
	ErrPeriodNotFound = errors.New("periods: period not found")
	// ErrAlreadyClosed is returned when closing a CLOSED period.
	ErrAlreadyClosed = errors.New("periods: period already closed")
	// ErrNotClosed is returned when reopening an OPEN period.
	ErrNotClosed = errors.New("periods: period is not closed")
	// ErrSubsequentPeriodClosed blocks reopen while a later period is CLOSED.
	ErrSubsequentPeriodClosed = errors.New("periods: a subsequent period is closed")
	// ErrCloseInProgress indicates another close or reopen holds the period lock.
	ErrCloseInProgress = errors.New("periods: close already in progress")
	// ErrPeriodOverlap indicates the requested period conflicts with an existing range.
	ErrPeriodOverlap = errors.New("periods: period overlaps existing range")
	// ErrUnbalancedEntries matches *UnbalancedEntriesError.
	ErrUnbalancedEntries = errors.New("periods: period contains unbalanced entries")
)

// UnbalancedEntriesError lists the entries that block a close.
type UnbalancedEntriesError struct {
	PeriodID int64
	Entries  []UnbalancedEntry
}

func (e *UnbalancedEntriesError) Error() string {
	return fmt.Sprintf("periods: period %d has unbalanced entries: %s", e.PeriodID, strings.Join(e.Numbers(), ", "))
}

// Is matches ErrUnbalancedEntries.
func (e *UnbalancedEntriesError) Is(target error) bool {
	return target == ErrUnbalancedEntries
}

// Numbers returns the offending entry numbers.
func (e *UnbalancedEntriesError) Numbers() []string {
	out := make([]string, 0, len(e.Entries))
	for _, entry := range e.Entries {
		out = append(out, entry.Number)
	}
	return out
}

// MonthlyPeriods returns the twelve calendar months of year.
func MonthlyPeriods(tenantID string, year int) []CreateInput {
	out := make([]CreateInput, 0, 12)
	for m := time.January; m <= time.December; m++ {
		start := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC)
		out = append(out, CreateInput{
			TenantID:  tenantID,
			Name:      fmt.Sprintf("%s %d", m.String(), year),
			Type:      TypeMonthly,
			StartDate: start,
			EndDate:   start.AddDate(0, 1, -1),
		})
	}
	return out
}

// closingPostings zeroes every nominal balance against retained earnings.
// The returned net income is positive for a profit.
func closingPostings(balances []NominalBalance) ([]ledger.Posting, decimal.Decimal) {
	var postings []ledger.Posting
	net := decimal.Zero
	for _, b := range balances {
		raw := b.Debit.Sub(b.Credit)
		if raw.IsZero() {
			continue
		}
		net = net.Sub(raw)
		if raw.IsPositive() {
			postings = append(postings, ledger.Posting{AccountCode: b.AccountCode, Credit: raw, Description: "Close " + b.AccountCode})
		} else {
			postings = append(postings, ledger.Posting{AccountCode: b.AccountCode, Debit: raw.Neg(), Description: "Close " + b.AccountCode})
		}
	}
	if len(postings) == 0 {
		return nil, decimal.Zero
	}
	switch {
	case net.IsPositive():
		postings = append(postings, ledger.Posting{AccountCode: ledger.CodeRetainedEarnings, Credit: net, Description: "Net income to retained earnings"})
	case net.IsNegative():
		postings = append(postings, ledger.Posting{AccountCode: ledger.CodeRetainedEarnings, Debit: net.Neg(), Description: "Net loss to retained earnings"})
	}
	return postings, net
}
