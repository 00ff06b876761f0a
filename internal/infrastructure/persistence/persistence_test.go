package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
)

func newItem(t *testing.T, serial string) *inventory.InventoryItem {
	t.Helper()
	item, err := inventory.NewInventoryItem(serial, "Trampoline", "TR-12", "12ft", "B-1", "")
	require.NoError(t, err)
	return item
}

func seedItem(t *testing.T, store docstore.Store, item *inventory.InventoryItem) {
	t.Helper()
	batch := store.Batch()
	batch.Create(ItemsCollection, item.SerialNumber, itemToDoc(item))
	require.NoError(t, batch.Commit(context.Background()))
}

func seedTransaction(t *testing.T, store docstore.Store, tx *inventory.Transaction) {
	t.Helper()
	batch := store.Batch()
	batch.Create(TransactionsCollection, entryKey(tx.EntryNumber), transactionToDoc(tx))
	require.NoError(t, batch.Commit(context.Background()))
}

func TestItemRepositoryRoundTrip(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewItemRepository(store)
	ctx := context.Background()

	item := newItem(t, "SN-1")
	item.Remarks = "scratched frame"
	seedItem(t, store, item)

	got, err := repo.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "SN-1", got.SerialNumber)
	assert.Equal(t, "Trampoline", got.EquipmentCategory)
	assert.Equal(t, "12ft", got.Size)
	assert.Equal(t, "scratched frame", got.Remarks)
	assert.Equal(t, inventory.StatusActive, got.Status)
	assert.WithinDuration(t, item.CreatedAt, got.CreatedAt, time.Second)

	_, err = repo.FindBySerial(ctx, "SN-MISSING")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestItemRepositoryFindBySerialsBatchesKeySets(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewItemRepository(store)
	ctx := context.Background()

	// More serials than one whereIn key set can carry.
	want := docstore.MaxKeySetSize + 5
	serials := make([]string, 0, want)
	for i := 0; i < want; i++ {
		serial := fmt.Sprintf("SN-%02d", i)
		seedItem(t, store, newItem(t, serial))
		serials = append(serials, serial)
	}

	items, err := repo.FindBySerials(ctx, append(serials, "SN-MISSING"))
	require.NoError(t, err)
	assert.Len(t, items, want)
}

func TestItemRepositoryFindByStatusPages(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewItemRepository(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedItem(t, store, newItem(t, fmt.Sprintf("SN-%d", i)))
	}
	reserved := newItem(t, "SN-9")
	require.NoError(t, reserved.Reserve())
	seedItem(t, store, reserved)

	page1, err := repo.FindByStatus(ctx, inventory.StatusActive, 3, "")
	require.NoError(t, err)
	require.Len(t, page1, 3)

	page2, err := repo.FindByStatus(ctx, inventory.StatusActive, 3, page1[2].SerialNumber)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	seen := map[string]bool{}
	for _, it := range append(page1, page2...) {
		assert.Equal(t, inventory.StatusActive, it.Status)
		seen[it.SerialNumber] = true
	}
	assert.Len(t, seen, 5)
	assert.False(t, seen["SN-9"])
}

func TestItemRepositoryScanActiveCreatedBefore(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewItemRepository(store)
	ctx := context.Background()

	old := newItem(t, "SN-OLD")
	old.CreatedAt = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	seedItem(t, store, old)

	recent := newItem(t, "SN-NEW")
	recent.CreatedAt = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	seedItem(t, store, recent)

	var scanned []string
	cutoff := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	err := repo.ScanActiveCreatedBefore(ctx, cutoff, 2, func(items []inventory.InventoryItem) error {
		for _, it := range items {
			scanned = append(scanned, it.SerialNumber)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"SN-OLD"}, scanned)
}

func TestTransactionRepositoryEntryNumbers(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewTransactionRepository(store)
	ctx := context.Background()

	n, err := repo.NextEntryNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, inventory.FirstEntryNumber, n)

	item := newItem(t, "SN-1")
	for i := int64(1); i <= 3; i++ {
		tx := inventory.NewTransaction(item, inventory.TypeStockIn, inventory.StatusActive)
		tx.EntryNumber = i
		seedTransaction(t, store, tx)
	}

	n, err = repo.NextEntryNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	got, err := repo.FindByEntryNumber(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.EntryNumber)
	assert.Equal(t, "SN-1", got.SerialNumber)

	_, err = repo.FindByEntryNumber(ctx, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	list, err := repo.FindByEntryNumbers(ctx, []int64{1, 3, 99})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestTransactionRepositoryFindBySerialOrdersByEntry(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewTransactionRepository(store)
	ctx := context.Background()

	item := newItem(t, "SN-1")
	other := newItem(t, "SN-2")

	for i, tx := range []*inventory.Transaction{
		inventory.NewTransaction(item, inventory.TypeStockIn, inventory.StatusActive),
		inventory.NewTransaction(other, inventory.TypeStockIn, inventory.StatusActive),
		inventory.NewTransaction(item, inventory.TypeStockOut, inventory.StatusReserved),
	} {
		tx.EntryNumber = int64(i + 1)
		seedTransaction(t, store, tx)
	}

	history, err := repo.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].EntryNumber)
	assert.Equal(t, int64(3), history[1].EntryNumber)
}

func TestTransactionRepositoryScanByDateRange(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewTransactionRepository(store)
	ctx := context.Background()

	item := newItem(t, "SN-1")
	dates := []time.Time{
		time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), // first instant of the next month is out
	}
	for i, d := range dates {
		tx := inventory.NewTransaction(item, inventory.TypeStockIn, inventory.StatusActive)
		tx.EntryNumber = int64(i + 1)
		tx.Date = d
		seedTransaction(t, store, tx)
	}

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	var entries []int64
	err := repo.ScanByDateRange(ctx, from, to, 2, func(txs []inventory.Transaction) error {
		for _, tx := range txs {
			entries = append(entries, tx.EntryNumber)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, entries)
}

func TestOrderRepositoryRoundTrip(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewOrderRepository(store)
	writer := NewWriter(store)
	ctx := context.Background()

	ord, err := order.NewOrder("ORD-1", "Acme Dealer", "Beta Client", "north")
	require.NoError(t, err)
	ord.TransactionIDs = []int64{1, 2}

	batch := writer.NewBatch()
	batch.CreateOrder(ord)
	require.NoError(t, batch.Commit(ctx))

	got, err := repo.FindByOrderNumber(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Dealer", got.Dealer)
	assert.Equal(t, order.InvoiceReserved, got.InvoiceStatus)
	assert.Equal(t, order.DeliveryPending, got.DeliveryStatus)
	assert.Equal(t, []int64{1, 2}, got.TransactionIDs)

	_, err = repo.FindByOrderNumber(ctx, "ORD-MISSING")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOrderRepositoryFindByDealerPages(t *testing.T) {
	store := docstore.NewMemoryStore()
	repo := NewOrderRepository(store)
	writer := NewWriter(store)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ord, err := order.NewOrder(fmt.Sprintf("ORD-%d", i), "Acme Dealer", "", "north")
		require.NoError(t, err)
		batch := writer.NewBatch()
		batch.CreateOrder(ord)
		require.NoError(t, batch.Commit(ctx))
	}
	other, err := order.NewOrder("ORD-X", "Other Dealer", "", "north")
	require.NoError(t, err)
	batch := writer.NewBatch()
	batch.CreateOrder(other)
	require.NoError(t, batch.Commit(ctx))

	page1, err := repo.FindByDealer(ctx, "Acme Dealer", 3, "")
	require.NoError(t, err)
	require.Len(t, page1, 3)

	page2, err := repo.FindByDealer(ctx, "Acme Dealer", 3, page1[2].OrderNumber)
	require.NoError(t, err)
	require.Len(t, page2, 1)
}

func TestWriterCommitMapsCreateConflicts(t *testing.T) {
	store := docstore.NewMemoryStore()
	writer := NewWriter(store)
	ctx := context.Background()

	item := newItem(t, "SN-1")
	batch := writer.NewBatch()
	batch.CreateItem(item)
	require.NoError(t, batch.Commit(ctx))

	// Creating the same key again is a commit-time conflict.
	dup := newItem(t, "SN-1")
	batch = writer.NewBatch()
	batch.CreateItem(dup)
	err := batch.Commit(ctx)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestWriterSetItemStatusUpdatesProjectionOnly(t *testing.T) {
	store := docstore.NewMemoryStore()
	writer := NewWriter(store)
	repo := NewItemRepository(store)
	ctx := context.Background()

	item := newItem(t, "SN-1")
	item.Remarks = "keep me"
	batch := writer.NewBatch()
	batch.CreateItem(item)
	require.NoError(t, batch.Commit(ctx))

	flipped := time.Now().Add(time.Minute)
	batch = writer.NewBatch()
	batch.SetItemStatus("SN-1", inventory.StatusReserved, item.UpdatedAt, flipped)
	require.NoError(t, batch.Commit(ctx))

	got, err := repo.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusReserved, got.Status)
	assert.Equal(t, "keep me", got.Remarks)
	assert.WithinDuration(t, flipped, got.UpdatedAt, time.Second)
}

func TestWriterSetItemStatusOnMissingItemConflicts(t *testing.T) {
	store := docstore.NewMemoryStore()
	writer := NewWriter(store)
	ctx := context.Background()

	batch := writer.NewBatch()
	batch.SetItemStatus("SN-MISSING", inventory.StatusReserved, time.Now(), time.Now())
	err := batch.Commit(ctx)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
}

func TestWriterSetItemStatusLosesToRivalWrite(t *testing.T) {
	store := docstore.NewMemoryStore()
	writer := NewWriter(store)
	repo := NewItemRepository(store)
	ctx := context.Background()

	item := newItem(t, "SN-1")
	batch := writer.NewBatch()
	batch.CreateItem(item)
	require.NoError(t, batch.Commit(ctx))

	seen := item.UpdatedAt

	// A rival flips the item after our read.
	rival := writer.NewBatch()
	rival.SetItemStatus("SN-1", inventory.StatusReserved, seen, seen.Add(time.Second))
	require.NoError(t, rival.Commit(ctx))

	// Our write was validated against the stale read and must not land.
	batch = writer.NewBatch()
	batch.SetItemStatus("SN-1", inventory.StatusReserved, seen, time.Now())
	err := batch.Commit(ctx)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	got, err := repo.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusReserved, got.Status)
	assert.True(t, got.UpdatedAt.Equal(seen.Add(time.Second)))
}

func TestWriterCommitIsAtomic(t *testing.T) {
	store := docstore.NewMemoryStore()
	writer := NewWriter(store)
	items := NewItemRepository(store)
	ctx := context.Background()

	existing := newItem(t, "SN-1")
	batch := writer.NewBatch()
	batch.CreateItem(existing)
	require.NoError(t, batch.Commit(ctx))

	// One good write and one conflicting write in the same batch: neither
	// may land.
	fresh := newItem(t, "SN-2")
	dup := newItem(t, "SN-1")
	batch = writer.NewBatch()
	batch.CreateItem(fresh)
	batch.CreateItem(dup)
	require.Error(t, batch.Commit(ctx))

	_, err := items.FindBySerial(ctx, "SN-2")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

// faultyStore fails every round trip the way a driver does when the backing
// service is unreachable.
type faultyStore struct{}

var errStoreDown = errors.New("rpc error: code = Unavailable")

func (faultyStore) Collection(string) docstore.Collection { return faultyCollection{} }
func (faultyStore) Batch() docstore.Batch                 { return &faultyBatch{} }
func (faultyStore) Close() error                          { return nil }

type faultyCollection struct{}

func (faultyCollection) Get(context.Context, string) (docstore.Document, error) {
	return docstore.Document{}, errStoreDown
}
func (faultyCollection) Query() docstore.Query { return faultyQuery{} }

type faultyQuery struct{}

func (q faultyQuery) Where(string, string, any) docstore.Query { return q }
func (q faultyQuery) WhereIn(string, []any) docstore.Query     { return q }
func (q faultyQuery) OrderBy(string, bool) docstore.Query      { return q }
func (q faultyQuery) StartAfter(any) docstore.Query            { return q }
func (q faultyQuery) Limit(int) docstore.Query                 { return q }
func (q faultyQuery) GetAll(context.Context) ([]docstore.Document, error) {
	return nil, errStoreDown
}

type faultyBatch struct{ n int }

func (b *faultyBatch) Create(string, string, map[string]any) docstore.Batch { b.n++; return b }
func (b *faultyBatch) Set(string, string, map[string]any) docstore.Batch    { b.n++; return b }
func (b *faultyBatch) Update(string, string, map[string]any) docstore.Batch { b.n++; return b }
func (b *faultyBatch) UpdateIf(string, string, string, any, map[string]any) docstore.Batch {
	b.n++
	return b
}
func (b *faultyBatch) Delete(string, string) docstore.Batch { b.n++; return b }
func (b *faultyBatch) Len() int                             { return b.n }
func (b *faultyBatch) Commit(context.Context) error         { return errStoreDown }

func TestRepositoriesSurfaceStoreFaults(t *testing.T) {
	ctx := context.Background()

	items := NewItemRepository(faultyStore{})
	_, err := items.FindBySerial(ctx, "SN-1")
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "STORE_UNAVAILABLE", de.Code)

	txs := NewTransactionRepository(faultyStore{})
	_, err = txs.NextEntryNumber(ctx)
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)

	orders := NewOrderRepository(faultyStore{})
	_, err = orders.FindByOrderNumber(ctx, "ORD-1")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
}

func TestWriterCommitSurfacesStoreFault(t *testing.T) {
	writer := NewWriter(faultyStore{})
	batch := writer.NewBatch()
	batch.CreateItem(newItem(t, "SN-1"))
	err := batch.Commit(context.Background())
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
}
