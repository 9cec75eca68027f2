// Package apperr defines the tagged error taxonomy shared by both services.
//
// Every failure surfaced to a client is one of these variants; the HTTP
// layer maps a variant to a status code and wire error code in exactly one
// place. Internal causes are wrapped, never serialized.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an Error with its taxonomy variant.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
	KindDistributedTransaction
	KindDatabase
	KindInternal
)

// Error is the single error type crossing service-layer boundaries.
type Error struct {
	Kind    Kind
	Message string
	Details any   // optional structured validation details
	cause   error // wrapped cause, for logs only
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Code returns the wire error code for the variant.
func (e *Error) Code() string {
	switch e.Kind {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindDistributedTransaction:
		return "DISTRIBUTED_TRANSACTION_ERROR"
	case KindDatabase:
		return "DATABASE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus returns the HTTP status for the variant.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindDistributedTransaction, KindDatabase:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a client-input error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// ValidationDetails creates a client-input error with structured details.
func ValidationDetails(msg string, details any) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

// Unauthorized creates a missing/invalid-credential error.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// NotFound creates an absent-row error. Rows owned by a different principal
// also collapse to this variant for information hiding.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Conflict creates a unique-constraint violation error.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// RateLimited creates a too-many-requests error.
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

// DistributedTransaction is the sole externalization of saga failure.
// The reason is preserved so operators can distinguish consistency
// failures from business failures.
func DistributedTransaction(reason string, cause error) *Error {
	return &Error{
		Kind:    KindDistributedTransaction,
		Message: "Audit log creation failed or timed out: " + reason,
		cause:   cause,
	}
}

// Database wraps a query failure not captured by a more specific variant.
func Database(msg string, cause error) *Error {
	return &Error{Kind: KindDatabase, Message: msg, cause: cause}
}

// Internal wraps an uncategorized failure.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// From normalizes any error into an *Error, wrapping unknown errors as Internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// IsKind reports whether err is an *Error with the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
