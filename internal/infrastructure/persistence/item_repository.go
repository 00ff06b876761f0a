package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
)

// ItemRepository implements inventory.ItemRepository on the docstore port.
type ItemRepository struct {
	store docstore.Store
}

// NewItemRepository creates an ItemRepository.
func NewItemRepository(store docstore.Store) *ItemRepository {
	return &ItemRepository{store: store}
}

// Ensure ItemRepository implements the domain interface
var _ inventory.ItemRepository = (*ItemRepository)(nil)

// FindBySerial finds an item by its serial number.
func (r *ItemRepository) FindBySerial(ctx context.Context, serialNumber string) (*inventory.InventoryItem, error) {
	doc, err := r.store.Collection(ItemsCollection).Get(ctx, serialNumber)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("item %s: %w", serialNumber, shared.ErrNotFound)
		}
		return nil, storeFault("find item "+serialNumber, err)
	}
	item := docToItem(doc.Data)
	return &item, nil
}

// FindBySerials resolves serial numbers in key-set chunks no larger than the
// store's maximum, avoiding one round trip per serial.
func (r *ItemRepository) FindBySerials(ctx context.Context, serialNumbers []string) ([]inventory.InventoryItem, error) {
	items := make([]inventory.InventoryItem, 0, len(serialNumbers))
	for start := 0; start < len(serialNumbers); start += docstore.MaxKeySetSize {
		end := start + docstore.MaxKeySetSize
		if end > len(serialNumbers) {
			end = len(serialNumbers)
		}
		keys := make([]any, 0, end-start)
		for _, sn := range serialNumbers[start:end] {
			keys = append(keys, sn)
		}

		docs, err := r.store.Collection(ItemsCollection).Query().
			WhereIn("serial_number", keys).
			GetAll(ctx)
		if err != nil {
			return nil, storeFault("find items by serials", err)
		}
		for _, doc := range docs {
			items = append(items, docToItem(doc.Data))
		}
	}
	return items, nil
}

// FindByStatus pages through items in a status, ordered by serial number.
func (r *ItemRepository) FindByStatus(ctx context.Context, status inventory.ItemStatus, limit int, startAfter string) ([]inventory.InventoryItem, error) {
	q := r.store.Collection(ItemsCollection).Query().
		Where("status", "==", string(status)).
		Limit(limit)
	if startAfter != "" {
		q = q.StartAfter(startAfter)
	}
	docs, err := q.GetAll(ctx)
	if err != nil {
		return nil, storeFault("find items by status "+string(status), err)
	}
	items := make([]inventory.InventoryItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, docToItem(doc.Data))
	}
	return items, nil
}

// ScanActiveCreatedBefore pages through Active items, filtering the creation
// cutoff client-side, and hands each page to fn. The scan honors context
// cancellation between pages.
func (r *ItemRepository) ScanActiveCreatedBefore(ctx context.Context, cutoff time.Time, pageSize int, fn func(items []inventory.InventoryItem) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := r.store.Collection(ItemsCollection).Query().
			Where("status", "==", string(inventory.StatusActive)).
			Limit(pageSize)
		if cursor != "" {
			q = q.StartAfter(cursor)
		}
		docs, err := q.GetAll(ctx)
		if err != nil {
			return storeFault("scan active items", err)
		}
		if len(docs) == 0 {
			return nil
		}

		page := make([]inventory.InventoryItem, 0, len(docs))
		for _, doc := range docs {
			item := docToItem(doc.Data)
			if item.CreatedAt.IsZero() || item.CreatedAt.After(cutoff) {
				continue
			}
			page = append(page, item)
		}
		if len(page) > 0 {
			if err := fn(page); err != nil {
				return err
			}
		}
		if len(docs) < pageSize {
			return nil
		}
		cursor = docs[len(docs)-1].Key
	}
}
