package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	// KindValidation is a malformed address, email or amount: the caller's
	// fault, retryable with corrected input.
	KindValidation Kind = iota
	// KindNotFound is an unknown token or missing rate: not retryable
	// without a configuration change.
	KindNotFound
	// KindState is a legitimate business state such as a crowdsale that
	// has not started or has ended.
	KindState
	// KindDependency is an unreachable or timed-out chain node or price
	// feed: transient, the caller may retry.
	KindDependency
	// KindConflict is a duplicate registration: idempotent-safe to retry.
	KindConflict
)

// Wire codes surfaced as {"detail": CODE}.
const (
	CodeInvalidAddress      = "INVALID_ADDRESS"
	CodeInvalidEmail        = "INVALID_EMAIL"
	CodeInvalidTokenAddress = "INVALID_TOKEN_ADDRESS"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeNotStarted          = "NOT_STARTED"
	CodeEnded               = "ENDED"
	CodeRateUnavailable     = "RATE_UNAVAILABLE"
	CodeAlreadyRegistered   = "ALREADY_REGISTERED"
	CodeDependencyFailure   = "DEPENDENCY_FAILURE"
)

// Error is a classified error carrying a wire code.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error with no underlying cause.
func New(kind Kind, code string) *Error {
	return &Error{Kind: kind, Code: code}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Validation is shorthand for a KindValidation error.
func Validation(code string) *Error {
	return New(KindValidation, code)
}

// Dependency wraps err as a transient dependency failure.
func Dependency(err error) *Error {
	return Wrap(KindDependency, CodeDependencyFailure, err)
}

// CodeOf extracts the wire code from err, or "" if err is unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// KindOf extracts the kind from err. The second return is false for
// unclassified errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
