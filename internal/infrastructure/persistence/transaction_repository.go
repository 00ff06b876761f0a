package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
)

// TransactionRepository implements inventory.TransactionRepository on the
// docstore port.
type TransactionRepository struct {
	store docstore.Store
}

// NewTransactionRepository creates a TransactionRepository.
func NewTransactionRepository(store docstore.Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

// Ensure TransactionRepository implements the domain interface
var _ inventory.TransactionRepository = (*TransactionRepository)(nil)

// FindByEntryNumber finds a single log entry.
func (r *TransactionRepository) FindByEntryNumber(ctx context.Context, entryNumber int64) (*inventory.Transaction, error) {
	doc, err := r.store.Collection(TransactionsCollection).Get(ctx, entryKey(entryNumber))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", entryNumber, shared.ErrNotFound)
		}
		return nil, storeFault(fmt.Sprintf("find transaction %d", entryNumber), err)
	}
	tx := docToTransaction(doc.Data)
	return &tx, nil
}

// FindByEntryNumbers resolves entry numbers in bounded key-set chunks.
func (r *TransactionRepository) FindByEntryNumbers(ctx context.Context, entryNumbers []int64) ([]inventory.Transaction, error) {
	transactions := make([]inventory.Transaction, 0, len(entryNumbers))
	for start := 0; start < len(entryNumbers); start += docstore.MaxKeySetSize {
		end := start + docstore.MaxKeySetSize
		if end > len(entryNumbers) {
			end = len(entryNumbers)
		}
		keys := make([]any, 0, end-start)
		for _, n := range entryNumbers[start:end] {
			keys = append(keys, n)
		}

		docs, err := r.store.Collection(TransactionsCollection).Query().
			WhereIn("entry_number", keys).
			GetAll(ctx)
		if err != nil {
			return nil, storeFault("find transactions by entry numbers", err)
		}
		for _, doc := range docs {
			transactions = append(transactions, docToTransaction(doc.Data))
		}
	}
	sort.Slice(transactions, func(a, b int) bool {
		return transactions[a].EntryNumber < transactions[b].EntryNumber
	})
	return transactions, nil
}

// FindBySerial returns the full history for a serial in entry-number order.
func (r *TransactionRepository) FindBySerial(ctx context.Context, serialNumber string) ([]inventory.Transaction, error) {
	docs, err := r.store.Collection(TransactionsCollection).Query().
		Where("serial_number", "==", serialNumber).
		GetAll(ctx)
	if err != nil {
		return nil, storeFault("find transactions for "+serialNumber, err)
	}
	transactions := make([]inventory.Transaction, 0, len(docs))
	for _, doc := range docs {
		transactions = append(transactions, docToTransaction(doc.Data))
	}
	sort.Slice(transactions, func(a, b int) bool {
		return transactions[a].EntryNumber < transactions[b].EntryNumber
	})
	return transactions, nil
}

// NextEntryNumber returns max(existing)+1. When the log is empty or the
// lookup yields nothing, it returns FirstEntryNumber; this fallback is part
// of the entry-number contract, not an error path. The number is confirmed
// only when the commit's create succeeds, so two concurrent callers can
// never both keep the same number.
func (r *TransactionRepository) NextEntryNumber(ctx context.Context) (int64, error) {
	docs, err := r.store.Collection(TransactionsCollection).Query().
		OrderBy("entry_number", true).
		Limit(1).
		GetAll(ctx)
	if err != nil {
		return 0, storeFault("look up max entry number", err)
	}
	if len(docs) == 0 {
		return inventory.FirstEntryNumber, nil
	}
	max := asInt64(docs[0].Data["entry_number"])
	if max <= 0 {
		return inventory.FirstEntryNumber, nil
	}
	return max + 1, nil
}

// ScanByDateRange pages through the whole log in fixed-size pages, keeping
// only entries whose date falls in [from, to). Entries without a parseable
// date are excluded. The scan honors context cancellation between pages.
func (r *TransactionRepository) ScanByDateRange(ctx context.Context, from, to time.Time, pageSize int, fn func(transactions []inventory.Transaction) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := r.store.Collection(TransactionsCollection).Query().Limit(pageSize)
		if cursor != "" {
			q = q.StartAfter(cursor)
		}
		docs, err := q.GetAll(ctx)
		if err != nil {
			return storeFault("scan transactions", err)
		}
		if len(docs) == 0 {
			return nil
		}

		page := make([]inventory.Transaction, 0, len(docs))
		for _, doc := range docs {
			tx := docToTransaction(doc.Data)
			if tx.Date.IsZero() || tx.Date.Before(from) || !tx.Date.Before(to) {
				continue
			}
			page = append(page, tx)
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
