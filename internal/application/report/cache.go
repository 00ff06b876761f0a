package report

import (
	"context"
	"time"
)

// DefaultCacheTTL is the validity window of a memoized monthly report.
const DefaultCacheTTL = 5 * time.Minute

// Cache is the port to the report memoization store. Values are opaque
// bytes; entries expire by TTL only and are never invalidated on write.
// Implementations must be safe for concurrent use; last writer wins per key.
type Cache interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
