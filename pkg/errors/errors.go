package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidTransition    = errors.New("invalid loan state transition")
	ErrUnbalancedAllocation = errors.New("allocation does not balance to payment total")
	ErrForbidden            = errors.New("actor is not allowed to perform this action")
	ErrNotFound             = errors.New("resource not found")
	ErrDuplicate            = errors.New("resource already exists")
	ErrDatabase             = errors.New("database operation failed")
	ErrCache                = errors.New("cache operation failed")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *BusinessError) Error() string {
	msg := e.Message
	if len(e.Details) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Details, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeInsufficientFunds    = "INSUFFICIENT_FUNDS"
	ErrCodeInvalidTransition    = "INVALID_TRANSITION"
	ErrCodeUnbalancedAllocation = "UNBALANCED_ALLOCATION"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeDuplicate            = "DUPLICATE"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// CodeOf returns the business code carried by err, or "" when err is not a BusinessError.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Violations collects constraint violations so a caller sees all of them at once.
type Violations []string

// Addf records a violation when cond is true.
func (v *Violations) Addf(cond bool, format string, args ...any) {
	if cond {
		*v = append(*v, fmt.Sprintf(format, args...))
	}
}

// Err returns nil when nothing was violated, otherwise a validation error listing every violation.
func (v Violations) Err(subject string) error {
	if len(v) == 0 {
		return nil
	}
	return WrapValidation(subject, v...)
}

func WrapValidation(subject string, violations ...string) *BusinessError {
	return &BusinessError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("invalid %s", subject),
		Details: violations,
		Err:     ErrValidation,
	}
}

func WrapInsufficientFunds(fundID string, available, requested decimal.Decimal) *BusinessError {
	return NewBusinessError(
		ErrCodeInsufficientFunds,
		fmt.Sprintf("Fund %s has balance %s, %s requested", fundID, available.StringFixed(2), requested.StringFixed(2)),
		ErrInsufficientFunds,
	)
}

func WrapInvalidTransition(loanID, from, to string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidTransition,
		fmt.Sprintf("Loan %s cannot move from %s to %s", loanID, from, to),
		ErrInvalidTransition,
	)
}

// WrapUnbalancedAllocation names the shortfall (sum below total) or the excess (sum above total).
func WrapUnbalancedAllocation(total, sum decimal.Decimal) *BusinessError {
	diff := total.Sub(sum)
	kind := "shortfall"
	if diff.IsNegative() {
		kind = "excess"
	}
	return NewBusinessError(
		ErrCodeUnbalancedAllocation,
		fmt.Sprintf("Allocations sum to %s against payment total %s (%s of %s)",
			sum.StringFixed(2), total.StringFixed(2), kind, diff.Abs().StringFixed(2)),
		ErrUnbalancedAllocation,
	)
}

func WrapForbidden(actorID, action string) *BusinessError {
	return NewBusinessError(
		ErrCodeForbidden,
		fmt.Sprintf("Actor %s is not allowed to %s", actorID, action),
		ErrForbidden,
	)
}

func WrapNotFound(kind, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeNotFound,
		fmt.Sprintf("%s with ID %s not found", kind, id),
		ErrNotFound,
	)
}

func WrapDuplicate(kind, id string) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicate,
		fmt.Sprintf("%s %s already exists", kind, id),
		ErrDuplicate,
	)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeDatabaseError,
		"database operation failed",
		errors.Join(ErrDatabase, err),
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeCacheError,
		"Cache operation failed",
		errors.Join(ErrCache, err),
	)
}
