package payroll

import (
	"errors"

	"github.com/nikhilbhutani/payrollflow/internal/principal"
	"github.com/nikhilbhutani/payrollflow/internal/store"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrDuplicatePeriod = store.ErrDuplicatePeriod
	ErrForbidden       = principal.ErrForbidden

	ErrInvalidPeriod       = errors.New("invalid payroll period")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidAttendance   = errors.New("invalid attendance days")
	ErrInvalidStatus       = errors.New("unknown payroll status")
	ErrInsufficientFunds   = errors.New("insufficient company funds")
	ErrInvalidTransition   = errors.New("invalid payroll status transition")
	ErrConcurrencyConflict = errors.New("concurrency conflict, retries exhausted")
	ErrInactiveEmployee    = errors.New("employee is inactive")
)

// Failure reasons reported per item by BatchApprove.
const (
	ReasonInsufficientFunds   = "insufficient_funds"
	ReasonInvalidTransition   = "invalid_transition"
	ReasonNotFound            = "not_found"
	ReasonConcurrencyConflict = "concurrency_conflict"
	ReasonForbidden           = "forbidden"
	ReasonInternal            = "internal"
)

// FailureReason classifies err into a stable, caller-facing code.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, ErrInvalidTransition):
		return ReasonInvalidTransition
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrConcurrencyConflict):
		return ReasonConcurrencyConflict
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	default:
		return ReasonInternal
	}
}
