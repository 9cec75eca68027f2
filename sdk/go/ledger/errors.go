// Package ledger provides a Go client for the transaction service API.
package ledger

import (
	"errors"
	"fmt"
)

// Error represents an error from the transaction service API with the HTTP
// status code and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsValidation returns true if the error is a 400.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsConflict returns true if the error is a 409.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 409
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsSagaFailure returns true if the error carries the distributed
// transaction error code: the write was rolled back because the audit
// trail never confirmed it.
func IsSagaFailure(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == "DISTRIBUTED_TRANSACTION_ERROR"
	}
	return false
}
