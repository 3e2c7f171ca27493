package errors

import (
	stderrors "errors"
	"fmt"
)

// APIError is the JSON error body every handler responds with
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
	Status  int       `json:"-"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, message string) *APIError {
	return &APIError{Code: code, Message: message, Status: code.StatusCode()}
}

func NotFound(resource string) *APIError {
	return newError(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

func Unauthorized(message string) *APIError {
	return newError(ErrUnauthorized, message)
}

func Forbidden(message string) *APIError {
	return newError(ErrForbidden, message)
}

// Conflict reports a resource in a state that does not allow the operation
func Conflict(message string) *APIError {
	return newError(ErrConflict, message)
}

func ValidationError(field, message string) *APIError {
	e := newError(ErrValidation, message)
	e.Field = field
	return e
}

func BadRequest(message string) *APIError {
	return newError(ErrBadRequest, message)
}

func InternalError(message string) *APIError {
	return newError(ErrInternalError, message)
}

func AlreadyExists(resource string) *APIError {
	return newError(ErrAlreadyExists, fmt.Sprintf("%s already exists", resource))
}

func RateLimited(message string) *APIError {
	if message == "" {
		message = "rate limit exceeded"
	}
	return newError(ErrRateLimited, message)
}

func ServiceUnavailable(service string) *APIError {
	return newError(ErrServiceUnavail, fmt.Sprintf("%s is temporarily unavailable", service))
}

func Timeout(operation string) *APIError {
	return newError(ErrTimeout, fmt.Sprintf("%s timed out", operation))
}

func PayloadTooLarge(limitMB int64) *APIError {
	return newError(ErrPayloadTooLarge, fmt.Sprintf("upload exceeds the %d MB limit", limitMB))
}

func UnsupportedMedia(ext string) *APIError {
	return newError(ErrUnsupportedMedia, fmt.Sprintf("unsupported file type %q", ext))
}

// WithDetails adds additional details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// AsAPIError unwraps err into an *APIError when one is in the chain
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
