package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("resource not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrDatabaseError          = errors.New("database error")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrStoreUnavailable       = errors.New("shared store unavailable")
	ErrPolicyMisconfiguration = errors.New("policy misconfiguration")
	ErrBatchNotAllowed        = errors.New("plan does not allow batch lookups")
	ErrBatchTooLarge          = errors.New("batch exceeds plan limit")
)

type Error struct {
	Err     error
	Message string
	Code    string
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
		Code:    "INTERNAL_ERROR",
	}
}

// Database wraps a failed query so callers can match ErrDatabaseError
// as well as the driver's own error.
func Database(err error, message string) *Error {
	wrapped := Wrap(fmt.Errorf("%w: %w", ErrDatabaseError, err), message)
	wrapped.Code = "DATABASE_ERROR"
	return wrapped
}

// AdmissionDenied reports a request that legitimately exceeds its policy.
// It is the only quota error surfaced to API callers.
type AdmissionDenied struct {
	Limit      int
	Remaining  int
	RetryAfter int // seconds
	Reason     string
}

func (e *AdmissionDenied) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("rate limit exceeded: limit %d, retry after %ds", e.Limit, e.RetryAfter)
}

// IsAdmissionDenied unwraps err into an *AdmissionDenied when it carries one.
func IsAdmissionDenied(err error) (*AdmissionDenied, bool) {
	var denied *AdmissionDenied
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}
