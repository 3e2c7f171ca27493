package errors

import "net/http"

// ErrorCode is the machine-readable error category returned to clients
type ErrorCode string

const (
	ErrNotFound         ErrorCode = "NOT_FOUND"
	ErrUnauthorized     ErrorCode = "UNAUTHORIZED"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrConflict         ErrorCode = "CONFLICT"
	ErrValidation       ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest       ErrorCode = "BAD_REQUEST"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
	ErrAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrServiceUnavail   ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrPayloadTooLarge  ErrorCode = "PAYLOAD_TOO_LARGE"
	ErrUnsupportedMedia ErrorCode = "UNSUPPORTED_MEDIA"
)

var statusCodes = map[ErrorCode]int{
	ErrNotFound:         http.StatusNotFound,
	ErrUnauthorized:     http.StatusUnauthorized,
	ErrForbidden:        http.StatusForbidden,
	ErrConflict:         http.StatusConflict,
	ErrValidation:       http.StatusUnprocessableEntity,
	ErrBadRequest:       http.StatusBadRequest,
	ErrInternalError:    http.StatusInternalServerError,
	ErrAlreadyExists:    http.StatusConflict,
	ErrRateLimited:      http.StatusTooManyRequests,
	ErrServiceUnavail:   http.StatusServiceUnavailable,
	ErrTimeout:          http.StatusGatewayTimeout,
	ErrPayloadTooLarge:  http.StatusRequestEntityTooLarge,
	ErrUnsupportedMedia: http.StatusUnsupportedMediaType,
}

// StatusCode returns the HTTP status for the code, 500 when unknown
func (e ErrorCode) StatusCode() int {
	if code, ok := statusCodes[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}
