package dto

import "net/http"

// Error codes returned by the API. Domain errors carry these codes already;
// the HTTP layer adds the transport-only ones below.
const (
	// Transport / framework errors
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeInternal        = "INTERNAL_ERROR"

	// Domain errors (see internal/domain/shared)
	ErrCodeDuplicateSerial     = "DUPLICATE_SERIAL"
	ErrCodeItemUnavailable     = "ITEM_UNAVAILABLE"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound: http.StatusNotFound,

	ErrCodeDuplicateSerial:     http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeItemUnavailable: http.StatusUnprocessableEntity,
	ErrCodeInvalidState:    http.StatusUnprocessableEntity,

	ErrCodeStoreUnavailable: http.StatusServiceUnavailable,
	ErrCodeInternal:         http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code, defaulting
// to 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
