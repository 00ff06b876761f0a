package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/serialtrack/backend/internal/domain/shared"
)

// storeFault wraps a driver failure as a store-unavailable rejection so the
// transport layer can answer 503 instead of a generic server error. Context
// cancellation passes through untouched.
func storeFault(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, shared.ErrStoreUnavailable)
}
