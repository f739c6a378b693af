// Package apierror defines the canonical error shape returned by every
// Guardian endpoint and the mapping from internal errors to HTTP statuses.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/auralis-ai/guardian/pkg/guardian/types"
)

// Error represents an API error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrPermission     ErrorType = "permission_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
)

// Envelope is the JSON body written for every error response.
type Envelope struct {
	Error *Error `json:"error"`
}

// NewInvalidRequest creates an invalid request error.
func NewInvalidRequest(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestWithParam creates an invalid request error with a parameter.
func NewInvalidRequestWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewAuthentication creates an authentication error.
func NewAuthentication(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewPermission creates a permission error.
func NewPermission(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// NewNotFound creates a not found error.
func NewNotFound(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewRateLimit creates a rate limit error.
func NewRateLimit(message string, retryAfter int) *Error {
	return &Error{Type: ErrRateLimit, Message: message, RetryAfter: &retryAfter}
}

// NewAPI creates a generic API error.
func NewAPI(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// FromError maps any error to the canonical shape plus an HTTP status.
// Unknown errors become opaque 500s; internal details never leak.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrAPI, Message: "request timeout", RequestID: requestID}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Type: ErrAPI, Message: "request cancelled", Code: "cancelled", RequestID: requestID}, http.StatusRequestTimeout
	}

	// Already canonical.
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr != nil {
		out := *apiErr
		out.RequestID = requestID
		return &out, StatusFromType(apiErr.Type)
	}

	// Strict decode errors (ingest envelope bodies).
	var decodeErr *types.DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		return &Error{
			Type:      ErrInvalidRequest,
			Message:   decodeErr.Message,
			Param:     decodeErr.Param,
			RequestID: requestID,
		}, http.StatusBadRequest
	}

	return &Error{Type: ErrAPI, Message: "internal error", RequestID: requestID}, http.StatusInternalServerError
}

// StatusFromType maps an error type to its HTTP status.
func StatusFromType(t ErrorType) int {
	switch t {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrPermission:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimit:
		return http.StatusTooManyRequests
	case ErrOverloaded:
		return 529
	default:
		return http.StatusInternalServerError
	}
}
