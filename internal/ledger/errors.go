package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation groups every rejected-input failure.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("%w: journal lines must balance", ErrValidation)
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = fmt.Errorf("%w: journal requires at least two lines", ErrValidation)
	// ErrInvalidPosting indicates a line without exactly one positive side.
	ErrInvalidPosting = fmt.Errorf("%w: invalid posting line", ErrValidation)
	// ErrUnknownAccount matches *UnknownAccountError.
	ErrUnknownAccount = errors.New("ledger: unknown account")
	// ErrPeriodClosed matches *PeriodClosedError.
	ErrPeriodClosed = errors.New("ledger: posting date falls in a closed period")
	// ErrSequenceContention indicates the entry transaction kept losing to concurrent writers.
	ErrSequenceContention = errors.New("ledger: entry sequence contention")
	// ErrEntryNotFound indicates missing entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAccountNotFound indicates missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrSourceAlreadyLinked indicates the operational source already produced an entry.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked")
	// ErrSourceConflict is returned by repositories on a source_links unique violation.
	ErrSourceConflict = errors.New("ledger: source link conflict")
)

// UnknownAccountError lists account codes missing from the tenant chart.
type UnknownAccountError struct {
	TenantID string
	Codes    []string
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("ledger: unknown account(s) %s for tenant %s", strings.Join(e.Codes, ","), e.TenantID)
}

// Is matches ErrUnknownAccount.
func (e *UnknownAccountError) Is(target error) bool {
	return target == ErrUnknownAccount
}

// PeriodClosedError names the closed period and the rejected date.
type PeriodClosedError struct {
	Period PeriodRef
	Date   time.Time
}

func (e *PeriodClosedError) Error() string {
	return fmt.Sprintf("ledger: %s falls in closed period %s (%s to %s)",
		e.Date.Format(time.DateOnly), e.Period.Name,
		e.Period.StartDate.Format(time.DateOnly), e.Period.EndDate.Format(time.DateOnly))
}

// Is matches ErrPeriodClosed.
func (e *PeriodClosedError) Is(target error) bool {
	return target == ErrPeriodClosed
}
