package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
	"github.com/serialtrack/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires the services against an in-memory document store, the same
// way the composition root wires them against Firestore.
type fixture struct {
	store   docstore.Store
	items   *persistence.ItemRepository
	txs     *persistence.TransactionRepository
	orders  *persistence.OrderRepository
	writer  *persistence.Writer
	ledger  *invapp.LedgerService
	returns *invapp.ReturnService
}

func newFixture(t *testing.T, opts ...invapp.LedgerServiceOption) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	items := persistence.NewItemRepository(store)
	txs := persistence.NewTransactionRepository(store)
	orders := persistence.NewOrderRepository(store)
	writer := persistence.NewWriter(store)

	return &fixture{
		store:   store,
		items:   items,
		txs:     txs,
		orders:  orders,
		writer:  writer,
		ledger:  invapp.NewLedgerService(items, txs, orders, writer, opts...),
		returns: invapp.NewReturnService(items, txs, orders, writer, nil),
	}
}

func (f *fixture) stockIn(t *testing.T, serial, category, model, size string) {
	t.Helper()
	_, err := f.ledger.StockIn(context.Background(), invapp.StockInInput{
		SerialNumber:      serial,
		EquipmentCategory: category,
		Model:             model,
		Size:              size,
		Batch:             "B-2026-01",
		WarrantyType:      "standard",
		CreatedByUID:      "tester",
	})
	require.NoError(t, err)
}

func TestStockInCreatesItemAndLogEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	serial, err := f.ledger.StockIn(ctx, invapp.StockInInput{
		SerialNumber:      "  SN-1001 ",
		EquipmentCategory: "Panel",
		Model:             "PX-400",
		Size:              "65",
		Batch:             "B-2026-01",
		WarrantyType:      "extended",
		Location:          "north",
		CreatedByUID:      "u-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "SN-1001", serial, "serial should be trimmed")

	item, err := f.items.FindBySerial(ctx, "SN-1001")
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusActive, item.Status)

	history, err := f.txs.FindBySerial(ctx, "SN-1001")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, inventory.FirstEntryNumber, history[0].EntryNumber)
	assert.Equal(t, inventory.TypeStockIn, history[0].Type)
	assert.Equal(t, inventory.StatusActive, history[0].Status)
	assert.Equal(t, "extended", history[0].WarrantyType)
	assert.Equal(t, 3, history[0].WarrantyPeriodYears)
	assert.Equal(t, "north", history[0].Location)
}

func TestStockInRejectsDuplicateSerial(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")

	_, err := f.ledger.StockIn(context.Background(), invapp.StockInInput{
		SerialNumber:      "SN-1",
		EquipmentCategory: "Panel",
		Model:             "PX-500",
	})
	assert.ErrorIs(t, err, shared.ErrDuplicateSerial)

	// The original item is untouched.
	item, err := f.items.FindBySerial(context.Background(), "SN-1")
	require.NoError(t, err)
	assert.Equal(t, "PX-400", item.Model)
}

func TestStockInRejectsUnknownLocation(t *testing.T) {
	f := newFixture(t, invapp.WithLocations([]string{"north", "south"}))

	_, err := f.ledger.StockIn(context.Background(), invapp.StockInInput{
		SerialNumber:      "SN-1",
		EquipmentCategory: "Panel",
		Model:             "PX-400",
		Location:          "west",
	})
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", de.Code)
}

func TestReserveFlipsStatusAndAppendsLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")
	f.stockIn(t, "SN-2", "Panel", "PX-400", "75")

	res, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1", "SN-2"},
		OrderNumber:   "ORD-1",
		Dealer:        "Acme Dealer",
		Client:        "Beta Client",
		CreatedByUID:  "u-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", res.OrderNumber)
	// Entries follow the two stock-ins and are sequential per item.
	assert.Equal(t, []int64{3, 4}, res.EntryNumbers)

	for _, sn := range []string{"SN-1", "SN-2"} {
		item, err := f.items.FindBySerial(ctx, sn)
		require.NoError(t, err)
		assert.Equal(t, inventory.StatusReserved, item.Status)
	}

	ord, err := f.orders.FindByOrderNumber(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Dealer", ord.Dealer)
	assert.Equal(t, []int64{3, 4}, ord.TransactionIDs)

	history, err := f.txs.FindBySerial(ctx, "SN-2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, inventory.StatusReserved, history[1].Status)
	assert.Equal(t, "ORD-1", history[1].OrderNumber)
	assert.Equal(t, "Beta Client", history[1].Client)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")
	f.stockIn(t, "SN-2", "Panel", "PX-400", "75")

	// SN-2 is already held by another order.
	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-2"},
		OrderNumber:   "ORD-0",
		Dealer:        "Acme Dealer",
	})
	require.NoError(t, err)

	_, err = f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1", "SN-2", "SN-MISSING"},
		OrderNumber:   "ORD-1",
		Dealer:        "Acme Dealer",
	})
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "ITEM_UNAVAILABLE", de.Code)
	assert.Contains(t, de.Message, "SN-2")
	assert.Contains(t, de.Message, "SN-MISSING")
	assert.NotContains(t, de.Message, "SN-1,")

	// The available item was not touched and the order was not created.
	item, err := f.items.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusActive, item.Status)
	_, err = f.orders.FindByOrderNumber(ctx, "ORD-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReserveAppendsToExistingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")
	f.stockIn(t, "SN-2", "Panel", "PX-400", "65")

	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1"},
		OrderNumber:   "ORD-1",
		Dealer:        "Acme Dealer",
		Client:        "Beta Client",
	})
	require.NoError(t, err)

	res, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-2"},
		OrderNumber:   "ORD-1",
	})
	require.NoError(t, err)

	ord, err := f.orders.FindByOrderNumber(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Len(t, ord.TransactionIDs, 2)
	assert.Contains(t, ord.TransactionIDs, res.EntryNumbers[0])
	// The order keeps its original association.
	assert.Equal(t, "Acme Dealer", ord.Dealer)
	assert.Equal(t, "Beta Client", ord.Client)
}

func TestReserveRejectsDuplicateSerialInRequest(t *testing.T) {
	f := newFixture(t)
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")

	_, err := f.ledger.Reserve(context.Background(), invapp.ReserveInput{
		SerialNumbers: []string{"SN-1", "SN-1"},
		OrderNumber:   "ORD-1",
	})
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", de.Code)
}

// racingUnitOfWork injects a competing transaction-log append between the
// service's read phase and its first commit, forcing the entry-number
// conflict path.
type racingUnitOfWork struct {
	inner invapp.UnitOfWork
	store docstore.Store
	fired bool
}

func (r *racingUnitOfWork) NewBatch() invapp.Batch {
	return &racingBatch{Batch: r.inner.NewBatch(), uow: r}
}

type racingBatch struct {
	invapp.Batch
	uow   *racingUnitOfWork
	entry int64
}

func (b *racingBatch) CreateTransaction(tx *inventory.Transaction) {
	if b.entry == 0 || tx.EntryNumber < b.entry {
		b.entry = tx.EntryNumber
	}
	b.Batch.CreateTransaction(tx)
}

func (b *racingBatch) Commit(ctx context.Context) error {
	if !b.uow.fired && b.entry > 0 {
		b.uow.fired = true
		steal := b.uow.store.Batch()
		steal.Create(persistence.TransactionsCollection,
			fmt.Sprintf("%012d", b.entry),
			map[string]any{
				"entry_number":  b.entry,
				"serial_number": "SN-RIVAL",
				"type":          string(inventory.TypeStockIn),
				"status":        string(inventory.StatusActive),
				"quantity":      int64(1),
			})
		if err := steal.Commit(ctx); err != nil {
			return err
		}
	}
	return b.Batch.Commit(ctx)
}

func TestStockInRetriesAfterEntryNumberConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	racing := &racingUnitOfWork{inner: f.writer, store: f.store}
	ledger := invapp.NewLedgerService(f.items, f.txs, f.orders, racing)

	_, err := ledger.StockIn(ctx, invapp.StockInInput{
		SerialNumber:      "SN-1",
		EquipmentCategory: "Panel",
		Model:             "PX-400",
	})
	require.NoError(t, err)
	require.True(t, racing.fired)

	// The rival took entry 1; the retried stock-in landed on entry 2.
	history, err := f.txs.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(2), history[0].EntryNumber)
}

func TestEntryNumbersAreGapFreeAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		f.stockIn(t, fmt.Sprintf("SN-%d", i), "Panel", "PX-400", "65")
	}
	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1", "SN-3"},
		OrderNumber:   "ORD-1",
		Dealer:        "Acme Dealer",
	})
	require.NoError(t, err)

	var all []inventory.Transaction
	err = f.txs.ScanByDateRange(ctx, time.Time{}, time.Now().Add(time.Hour), 100,
		func(page []inventory.Transaction) error {
			all = append(all, page...)
			return nil
		})
	require.NoError(t, err)
	require.Len(t, all, 6)
	seen := make(map[int64]bool)
	for _, tx := range all {
		seen[tx.EntryNumber] = true
	}
	for n := int64(1); n <= 6; n++ {
		assert.True(t, seen[n], "entry %d missing", n)
	}
}

func TestHistoryAndConsistency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")

	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1"},
		OrderNumber:   "ORD-1",
		Dealer:        "Acme Dealer",
	})
	require.NoError(t, err)

	history, err := f.ledger.History(ctx, "SN-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, inventory.TypeStockIn, history[0].Type)
	assert.Equal(t, inventory.TypeStockOut, history[1].Type)

	report, err := f.ledger.CheckConsistency(ctx, "SN-1")
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Equal(t, inventory.StatusReserved, report.ProjectedStatus)
	assert.Equal(t, inventory.StatusReserved, report.DerivedStatus)
	assert.Equal(t, 2, report.TransactionCount)

	_, err = f.ledger.History(ctx, "SN-GHOST")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestItemsByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")
	f.stockIn(t, "SN-2", "Panel", "PX-400", "65")
	f.stockIn(t, "SN-3", "Mount", "MK-2", "")

	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-2"},
		OrderNumber:   "ORD-1",
	})
	require.NoError(t, err)

	active, err := f.ledger.ItemsByStatus(ctx, inventory.StatusActive, 10, "")
	require.NoError(t, err)
	require.Len(t, active, 2)

	reserved, err := f.ledger.ItemsByStatus(ctx, inventory.StatusReserved, 10, "")
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.Equal(t, "SN-2", reserved[0].SerialNumber)

	_, err = f.ledger.ItemsByStatus(ctx, inventory.ItemStatus("broken"), 10, "")
	var de *shared.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "INVALID_INPUT", de.Code)
}

// rivalTransactionLog lets a test run a competing operation between a
// service's read phase and its entry-number allocation.
type rivalTransactionLog struct {
	inventory.TransactionRepository
	rival func()
	fired bool
}

func (r *rivalTransactionLog) NextEntryNumber(ctx context.Context) (int64, error) {
	if !r.fired {
		r.fired = true
		r.rival()
	}
	return r.TransactionRepository.NextEntryNumber(ctx)
}

func TestReserveLosesWhenRivalReservesSameSerial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stockIn(t, "SN-1", "Panel", "PX-400", "65")

	// A rival reserves the same serial after our read validated it as
	// active. Our commit must not land on top of the rival's.
	txs := &rivalTransactionLog{TransactionRepository: f.txs}
	txs.rival = func() {
		_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
			SerialNumbers: []string{"SN-1"},
			OrderNumber:   "ORD-FIRST",
			Dealer:        "Acme Dealer",
		})
		require.NoError(t, err)
	}
	ledger := invapp.NewLedgerService(f.items, txs, f.orders, f.writer)

	_, err := ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1"},
		OrderNumber:   "ORD-SECOND",
		Dealer:        "Beta Dealer",
	})
	require.True(t, txs.fired)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "second reservation must fail, got %v", err)
	assert.Equal(t, "ITEM_UNAVAILABLE", de.Code)

	// The serial is reserved exactly once, under the first order.
	item, err := f.items.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusReserved, item.Status)

	history, err := f.txs.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ORD-FIRST", history[1].OrderNumber)

	_, err = f.orders.FindByOrderNumber(ctx, "ORD-SECOND")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentReservationsGetDistinctEntryNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 3
	for i := 1; i <= n; i++ {
		f.stockIn(t, fmt.Sprintf("SN-%d", i), "Panel", "PX-400", "65")
	}

	var wg sync.WaitGroup
	results := make([]*invapp.ReservationResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.ledger.Reserve(ctx, invapp.ReserveInput{
				SerialNumbers: []string{fmt.Sprintf("SN-%d", i+1)},
				OrderNumber:   fmt.Sprintf("ORD-%d", i+1),
				Dealer:        "Acme Dealer",
			})
		}(i)
	}
	wg.Wait()

	// Every reservation lands, and the log entries they claimed are
	// distinct and consecutive after the stock-in entries.
	entries := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Len(t, results[i].EntryNumbers, 1)
		entries[results[i].EntryNumbers[0]] = true
	}
	require.Len(t, entries, n)
	for e := int64(n + 1); e <= int64(2*n); e++ {
		assert.True(t, entries[e], "entry %d missing", e)
	}
}

func TestStockInRejectsUnknownWarrantyType(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.StockIn(context.Background(), invapp.StockInInput{
		SerialNumber:      "SN-1",
		EquipmentCategory: "Panel",
		Model:             "PX-400",
		WarrantyType:      "lifetime",
	})
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", de.Code)
}

func TestStockInUsesConfiguredWarrantyCatalog(t *testing.T) {
	f := newFixture(t, invapp.WithWarrantyPeriods(map[string]int{"Basic": 2}))
	ctx := context.Background()

	_, err := f.ledger.StockIn(ctx, invapp.StockInInput{
		SerialNumber:      "SN-1",
		EquipmentCategory: "Panel",
		Model:             "PX-400",
		WarrantyType:      "basic",
	})
	require.NoError(t, err)

	history, err := f.txs.FindBySerial(ctx, "SN-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "basic", history[0].WarrantyType)
	assert.Equal(t, 2, history[0].WarrantyPeriodYears)

	// The built-in catalog no longer applies once overridden.
	_, err = f.ledger.StockIn(ctx, invapp.StockInInput{
		SerialNumber:      "SN-2",
		EquipmentCategory: "Panel",
		Model:             "PX-400",
		WarrantyType:      "standard",
	})
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", de.Code)
}
