package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrDuplicateSerial  = NewDomainError("DUPLICATE_SERIAL", "Serial number already exists")
	ErrItemUnavailable  = NewDomainError("ITEM_UNAVAILABLE", "One or more items are not available for this operation")
	ErrInvalidState     = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrNotFound         = NewDomainError("NOT_FOUND", "Resource not found")
	ErrStoreUnavailable = NewDomainError("STORE_UNAVAILABLE", "Persistent store is temporarily unavailable")
	ErrInvalidInput     = NewDomainError("INVALID_INPUT", "Invalid input provided")

	// ErrConcurrencyConflict signals that a batched write lost a commit-time
	// race (for example two writers claiming the same entry number). The
	// losing batch applied nothing; callers retry the read-then-decide step.
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Write conflicted with a concurrent commit")
)

// AsDomainError reports whether err is (or wraps) a DomainError.
// Infrastructure failures are never DomainErrors; callers use this to separate
// business rejections from faults worth retrying.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
