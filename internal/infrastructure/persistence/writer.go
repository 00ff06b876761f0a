package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
)

// Writer implements the application layer's UnitOfWork on docstore batches.
type Writer struct {
	store docstore.Store
}

// NewWriter creates a Writer.
func NewWriter(store docstore.Store) *Writer {
	return &Writer{store: store}
}

// Ensure Writer implements the application port
var _ invapp.UnitOfWork = (*Writer)(nil)

// NewBatch starts an empty atomic batch.
func (w *Writer) NewBatch() invapp.Batch {
	return &writeBatch{batch: w.store.Batch()}
}

type writeBatch struct {
	batch docstore.Batch
}

func (b *writeBatch) CreateItem(item *inventory.InventoryItem) {
	b.batch.Create(ItemsCollection, item.SerialNumber, itemToDoc(item))
}

func (b *writeBatch) SetItemStatus(serialNumber string, status inventory.ItemStatus, seenUpdatedAt, updatedAt time.Time) {
	b.batch.UpdateIf(ItemsCollection, serialNumber, "updated_at", seenUpdatedAt, map[string]any{
		"status":     string(status),
		"updated_at": updatedAt,
	})
}

func (b *writeBatch) CreateTransaction(tx *inventory.Transaction) {
	b.batch.Create(TransactionsCollection, entryKey(tx.EntryNumber), transactionToDoc(tx))
}

func (b *writeBatch) CreateOrder(o *order.Order) {
	b.batch.Create(OrdersCollection, o.OrderNumber, orderToDoc(o))
}

func (b *writeBatch) SaveOrder(o *order.Order) {
	b.batch.Set(OrdersCollection, o.OrderNumber, orderToDoc(o))
}

// Commit applies the batch atomically. Create conflicts, failed status
// guards, and updates on documents that vanished mid-flight all surface as a
// concurrency conflict: the batch applied nothing and the operation may
// re-read and retry.
func (b *writeBatch) Commit(ctx context.Context) error {
	err := b.batch.Commit(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrAlreadyExists) ||
		errors.Is(err, docstore.ErrNotFound) ||
		errors.Is(err, docstore.ErrPreconditionFailed) {
		return fmt.Errorf("%v: %w", err, shared.ErrConcurrencyConflict)
	}
	return storeFault("commit batch", err)
}
