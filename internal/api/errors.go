//
//
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/radio-control/mavbridge/internal/link"
	"github.com/radio-control/mavbridge/internal/session"
)

// APIError represents an API-layer error with HTTP status code.
type APIError struct {
	Code       string
	Message    string
	Details    interface{}
	StatusCode int
}

// API error codes for transport/security/lookup conditions
var (
	ErrBadRequest   = errors.New("BAD_REQUEST")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrNotFoundPath = errors.New("NOT_FOUND")
)

// ToAPIError converts an error to an API error with HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, marshalErrorResponse(apiErr.Code, apiErr.Message, apiErr.Details)
	}

	var linkErr *link.Error
	if errors.As(err, &linkErr) {
		code, statusCode := mapLinkError(linkErr.Kind)
		return statusCode, marshalErrorResponse(code, linkErr.Error(), map[string]interface{}{
			"op": linkErr.Op,
		})
	}

	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, marshalErrorResponse("BAD_REQUEST", "Malformed or missing required parameter", nil)
	case errors.Is(err, ErrUnavailable), errors.Is(err, session.ErrHubStopped):
		return http.StatusServiceUnavailable, marshalErrorResponse("UNAVAILABLE", "Service is temporarily unavailable", nil)
	case errors.Is(err, ErrNotFoundPath):
		return http.StatusNotFound, marshalErrorResponse("NOT_FOUND", "Resource not found", nil)
	}

	// Default to internal server error for unknown errors
	return http.StatusInternalServerError, marshalErrorResponse("INTERNAL", "Internal server error", map[string]interface{}{
		"original": err.Error(),
	})
}

// mapLinkError maps link error kinds to API error codes and HTTP status codes.
func mapLinkError(kind link.Kind) (string, int) {
	switch kind {
	case link.KindInvalidParameter, link.KindUnsupportedMode:
		return "INVALID_RANGE", http.StatusBadRequest
	case link.KindNotConnected, link.KindTransport:
		return "UNAVAILABLE", http.StatusServiceUnavailable
	case link.KindSend:
		return "BUSY", http.StatusServiceUnavailable
	default:
		return "INTERNAL", http.StatusInternalServerError
	}
}

// writeAPIError writes the response ToAPIError builds for err.
func writeAPIError(w http.ResponseWriter, err error) {
	status, body := ToAPIError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// marshalErrorResponse creates a JSON error response with correlation ID.
func marshalErrorResponse(code, message string, details interface{}) []byte {
	response := Response{
		Result:        "error",
		Code:          code,
		Message:       message,
		Details:       details,
		CorrelationID: generateCorrelationID(),
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		// Fallback error response if marshaling fails
		fallback := map[string]interface{}{
			"result":        "error",
			"code":          "INTERNAL",
			"message":       "Failed to marshal error response",
			"correlationId": generateCorrelationID(),
		}
		jsonBytes, _ := json.Marshal(fallback)
		return jsonBytes
	}

	return jsonBytes
}

// NewAPIError creates a new API error.
func NewAPIError(code string, message string, statusCode int, details interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: statusCode,
	}
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
