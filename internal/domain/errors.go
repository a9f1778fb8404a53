package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the abstract failure class a caller maps to its own transport codes.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindInvalidState    ErrorKind = "INVALID_STATE"
	KindForbidden       ErrorKind = "FORBIDDEN"
	KindPolicyViolation ErrorKind = "POLICY_VIOLATION"
	KindConflict        ErrorKind = "CONFLICT"
)

// Error is a recoverable circulation failure. Sentinel values below are compared
// with errors.Is; wrapped errors keep their kind.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Expected marks circulation failures as normal outcomes for log levels.
func (e *Error) Expected() bool {
	return true
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrNotFound = newError(KindNotFound, "NOT_FOUND", "not found")

	ErrInvalidState       = newError(KindInvalidState, "INVALID_STATE", "operation not allowed in current state")
	ErrCopyNotAvailable   = newError(KindInvalidState, "COPY_NOT_AVAILABLE", "copy is not available")
	ErrAlreadyReturned    = newError(KindInvalidState, "ALREADY_RETURNED", "loan already returned")
	ErrLoanOverdue        = newError(KindInvalidState, "LOAN_OVERDUE", "loan is overdue")
	ErrAlreadyFulfilled   = newError(KindInvalidState, "ALREADY_FULFILLED", "reservation already fulfilled")
	ErrAlreadyCancelled   = newError(KindInvalidState, "ALREADY_CANCELLED", "reservation already cancelled")
	ErrAlreadyExpired     = newError(KindInvalidState, "ALREADY_EXPIRED", "reservation already expired")
	ErrNoCopyAssigned     = newError(KindInvalidState, "NO_COPY_ASSIGNED", "reservation has no assigned copy")
	ErrIllegalTransition  = newError(KindInvalidState, "ILLEGAL_COPY_TRANSITION", "illegal copy status transition")

	ErrForbidden = newError(KindForbidden, "FORBIDDEN", "actor may not perform this operation")

	ErrBorrowLimitExceeded  = newError(KindPolicyViolation, "BORROW_LIMIT_EXCEEDED", "borrow limit exceeded")
	ErrUserBlocked          = newError(KindPolicyViolation, "USER_BLOCKED", "patron is blocked")
	ErrMaxExtensionsReached = newError(KindPolicyViolation, "MAX_EXTENSIONS_REACHED", "maximum number of extensions reached")
	ErrExtensionTooLong     = newError(KindPolicyViolation, "EXTENSION_TOO_LONG", "extension exceeds the allowed number of days")
	ErrTitleHasWaitlist     = newError(KindPolicyViolation, "TITLE_HAS_WAITLIST", "other patrons are waiting for this title")
	ErrAlreadyReserved      = newError(KindPolicyViolation, "ALREADY_RESERVED", "patron already holds an active reservation for this title")

	ErrConflict = newError(KindConflict, "CONFLICT", "concurrent modification detected")
)

// NotFound wraps ErrNotFound with the missing entity.
func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err is
// not a circulation failure.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsDomainError reports whether err is one of the recoverable circulation failures.
func IsDomainError(err error) bool {
	return KindOf(err) != ""
}
