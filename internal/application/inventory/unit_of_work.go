package inventory

import (
	"context"
	"time"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
)

// UnitOfWork opens atomic write batches against the document store. Every
// mutating operation in the system commits exactly one batch: the ledger
// update, the transaction-log append, and the order update it implies either
// all apply or none do. Atomicity across two separate batches is never
// assumed.
type UnitOfWork interface {
	// NewBatch starts an empty batch.
	NewBatch() Batch
}

// Batch accumulates the writes of one logical operation. Writes are staged
// in memory and applied atomically by Commit.
type Batch interface {
	// CreateItem stages creation of a new ledger item. Commit fails with a
	// conflict if the serial number already exists.
	CreateItem(item *inventory.InventoryItem)

	// SetItemStatus stages a status change on the ledger projection. The
	// write is guarded by the item's updated_at as of the read that
	// validated the change: if a rival writer has flipped the item since,
	// Commit fails with a conflict and applies nothing.
	SetItemStatus(serialNumber string, status inventory.ItemStatus, seenUpdatedAt, updatedAt time.Time)

	// CreateTransaction stages an append to the transaction log. Commit
	// fails with a conflict if the entry number is already taken, which is
	// how concurrent writers are prevented from sharing a number.
	CreateTransaction(tx *inventory.Transaction)

	// CreateOrder stages creation of a new order. Commit fails with a
	// conflict if the order number already exists.
	CreateOrder(o *order.Order)

	// SaveOrder stages an unconditional write of an existing order.
	SaveOrder(o *order.Order)

	// Commit applies all staged writes atomically. On
	// shared.ErrConcurrencyConflict the batch applied nothing and the whole
	// read-validate-write cycle may be retried.
	Commit(ctx context.Context) error
}
