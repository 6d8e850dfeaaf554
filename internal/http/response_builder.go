// Package http provides the JSON API server and its handlers.
//
// This file implements the builder used for every JSON response and the
// mapping from ledger error kinds to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"moneypools/internal/core"
	"moneypools/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body sends no
// content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	data, err := json.Marshal(b.body)
	if err != nil {
		http.Error(w, `{"error":{"code":"internal_error","message":"encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(data)
}

// Error codes sent in error bodies.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeRateUnavailable   = "rate_unavailable"
	CodePartiallyReverted = "partially_reverted"
	CodeInconsistentState = "inconsistent_state"
	CodePartialFailure    = "partial_failure"
	CodeTooMany           = "too_many_transactions"
	CodeForbidden         = "forbidden"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
	// Result carries the partial outcome of transfer and sync failures.
	Result any `json:"result,omitempty"`
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeValidation, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, CodeNotFound, message)
}

// statusFor maps an error to its status and code. Compound outcomes are
// checked first since they may also wrap a validation or rate cause.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInconsistentState):
		return http.StatusInternalServerError, CodeInconsistentState
	case errors.Is(err, core.ErrPartiallyReverted):
		return http.StatusConflict, CodePartiallyReverted
	case errors.Is(err, core.ErrPartialFailure):
		return http.StatusMultiStatus, CodePartialFailure
	case errors.Is(err, core.ErrTooManyTransactions):
		return http.StatusUnprocessableEntity, CodeTooMany
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, core.ErrRateUnavailable):
		return http.StatusServiceUnavailable, CodeRateUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError logs err and writes the mapped error response. result is
// attached to the body when not nil.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error, result any) {
	status, code := statusFor(err)
	message := err.Error()
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithOperation(op).WithError(err).WithErrorType(code)
	if status >= http.StatusInternalServerError {
		if code == CodeInternal {
			message = "internal server error"
		}
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	NewJSONResponse().
		Status(status).
		Body(errorBody{Error: errorDetail{Code: code, Message: message}, Result: result}).
		Write(w)
}
