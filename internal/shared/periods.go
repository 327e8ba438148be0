package shared

import "errors"

// Period statuses reused outside the periods module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks OPEN -> CLOSED -> OPEN.
func ValidatePeriodTransition(current, target string) error {
	switch {
	case current == PeriodStatusOpen && target == PeriodStatusClosed:
		return nil
	case current == PeriodStatusClosed && target == PeriodStatusOpen:
		return nil
	}
	return ErrInvalidPeriodTransition
}
