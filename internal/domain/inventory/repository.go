package inventory

import (
	"context"
	"time"
)

// ItemRepository defines read access to the inventory ledger projection.
// All mutations go through batched unit-of-work writers owned by the
// application layer, never through per-entity save calls, so that every
// state change commits atomically with its transaction-log append.
type ItemRepository interface {
	// FindBySerial finds an item by its serial number.
	FindBySerial(ctx context.Context, serialNumber string) (*InventoryItem, error)

	// FindBySerials finds multiple items by serial number. Lookups are
	// batched into bounded key-set queries; missing serials are simply
	// absent from the result.
	FindBySerials(ctx context.Context, serialNumbers []string) ([]InventoryItem, error)

	// FindByStatus pages through items in a given status. startAfter is the
	// serial number of the last item of the previous page ("" for the first).
	FindByStatus(ctx context.Context, status ItemStatus, limit int, startAfter string) ([]InventoryItem, error)

	// ScanActiveCreatedBefore pages through Active items created at or before
	// cutoff, invoking fn once per page. Scanning stops early when fn or the
	// context reports an error.
	ScanActiveCreatedBefore(ctx context.Context, cutoff time.Time, pageSize int, fn func(items []InventoryItem) error) error
}

// TransactionRepository defines read access to the append-only transaction log.
type TransactionRepository interface {
	// FindByEntryNumber finds a single log entry.
	FindByEntryNumber(ctx context.Context, entryNumber int64) (*Transaction, error)

	// FindByEntryNumbers resolves a list of entry numbers with bounded
	// key-set queries.
	FindByEntryNumbers(ctx context.Context, entryNumbers []int64) ([]Transaction, error)

	// FindBySerial returns the full history for a serial number in
	// entry-number order.
	FindBySerial(ctx context.Context, serialNumber string) ([]Transaction, error)

	// NextEntryNumber returns max(existing)+1, or FirstEntryNumber when the
	// log is empty. The number is only tentatively held: commit-time create
	// semantics reject duplicates, and callers retry allocation.
	NextEntryNumber(ctx context.Context) (int64, error)

	// ScanByDateRange pages through transactions whose event date falls in
	// [from, to), invoking fn once per page. Entries with a missing date are
	// excluded.
	ScanByDateRange(ctx context.Context, from, to time.Time, pageSize int, fn func(transactions []Transaction) error) error
}
