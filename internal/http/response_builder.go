// Package http provides HTTP server and handler implementations.
//
// This file implements the builder used for every JSON response and the
// mapping from domain errors to status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"arcreceipts/internal/chain"
	"arcreceipts/internal/core"
	"arcreceipts/internal/export"
	"arcreceipts/internal/services"
)

// Error states reported in the "state" field of error bodies. Clients use
// them to tell a failed scan apart from an empty result.
const (
	StateInvalidRequest   = "invalid_request"
	StateNoWallet         = "no_wallet"
	StatePrivate          = "private"
	StateNotFound         = "not_found"
	StateNoReceipts       = "no_receipts"
	StateScanFailed       = "scan_failed"
	StateChainUnavailable = "chain_unavailable"
	StateRateLimited      = "rate_limited"
	StateCanceled         = "canceled"
	StateInternal         = "internal"
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

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body sends none.
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
		slog.Error("Failed to encode response", "component", "http", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error","state":"internal"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	State string `json:"state"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, state, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message, State: state})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, StateInvalidRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, StateNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, StateInternal, message)
}

// errorStatus maps err to a status code and state.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidAddress),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidHistoryMode),
		errors.Is(err, core.ErrInvalidFormat),
		errors.Is(err, ErrInvalidReceiptID):
		return http.StatusBadRequest, StateInvalidRequest
	case errors.Is(err, services.ErrViewerRequired):
		return http.StatusUnauthorized, StateNoWallet
	case errors.Is(err, services.ErrPrivateReceipt):
		return http.StatusForbidden, StatePrivate
	case errors.Is(err, chain.ErrNotFound), errors.Is(err, chain.ErrMalformedReceipt):
		return http.StatusNotFound, StateNotFound
	case errors.Is(err, export.ErrNothingToExport):
		return http.StatusNotFound, StateNoReceipts
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, StateCanceled
	case errors.Is(err, chain.ErrScanFailed):
		return http.StatusBadGateway, StateScanFailed
	case errors.Is(err, chain.ErrConnection), errors.Is(err, chain.ErrContractRevert):
		return http.StatusBadGateway, StateChainUnavailable
	default:
		return http.StatusInternalServerError, StateInternal
	}
}

// errorMessage hides internal causes from clients.
func errorMessage(err error, status int) string {
	switch {
	case errors.Is(err, export.ErrNothingToExport):
		return "No receipts to export."
	case status == http.StatusBadGateway:
		return "Failed to read receipts from the chain"
	case status >= 500:
		return "Internal error"
	default:
		return err.Error()
	}
}

// FromError builds the error response for err.
func FromError(err error) *JSONResponseBuilder {
	status, state := errorStatus(err)
	return ErrorResponse(status, state, errorMessage(err, status))
}
