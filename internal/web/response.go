// Package web provides the HTTP envelope, error mapping, and middleware
// shared by the transaction and audit services.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/meridianfi/ledger/internal/apperr"
)

// Response is the uniform wire envelope. Success responses carry data;
// failures carry error. Timestamp and path are always present.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Path      string     `json:"path"`
}

// ErrorBody is the serialized error detail. Stack is populated only outside
// production.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
	})
}

// WriteError maps err through the error taxonomy and writes a failure
// envelope. Internal causes are logged, never serialized.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, includeStack bool) {
	ae := apperr.From(err)

	if ae.HTTPStatus() >= 500 {
		logger.Error("request failed",
			"path", r.URL.Path,
			"code", ae.Code(),
			"error", ae.Error(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	}

	body := &ErrorBody{
		Code:    ae.Code(),
		Message: ae.Message,
		Details: ae.Details,
	}
	if includeStack {
		body.Stack = string(debug.Stack())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.HTTPStatus())
	_ = json.NewEncoder(w).Encode(Response{
		Success:   false,
		Error:     body,
		Timestamp: time.Now().UTC(),
		Path:      r.URL.Path,
	})
}

// DecodeJSON decodes a JSON request body into target, rejecting unknown
// fields and oversized or malformed bodies with a Validation error.
func DecodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.Validation("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body: " + err.Error())
	}
	return nil
}
