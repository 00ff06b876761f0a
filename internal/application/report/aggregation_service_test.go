package report_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	"github.com/serialtrack/backend/internal/application/report"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/cache"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
	"github.com/serialtrack/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger  *invapp.LedgerService
	reports *report.AggregationService
	cache   *cache.MemoryCache
}

func newFixture(t *testing.T, opts ...report.AggregationOption) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	items := persistence.NewItemRepository(store)
	txs := persistence.NewTransactionRepository(store)
	orders := persistence.NewOrderRepository(store)
	writer := persistence.NewWriter(store)
	memCache := cache.NewMemoryCache()
	t.Cleanup(func() { _ = memCache.Close() })

	return &fixture{
		ledger:  invapp.NewLedgerService(items, txs, orders, writer),
		reports: report.NewAggregationService(items, txs, memCache, opts...),
		cache:   memCache,
	}
}

func (f *fixture) stockInDated(t *testing.T, serial, category, size string, date time.Time) {
	t.Helper()
	_, err := f.ledger.StockIn(context.Background(), invapp.StockInInput{
		SerialNumber:      serial,
		EquipmentCategory: category,
		Model:             "M-1",
		Size:              size,
		Date:              date,
	})
	require.NoError(t, err)
}

func jan(day int) time.Time {
	return time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC)
}

func TestMonthlyReportSizeBreakdown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three panels, sizes 65, 65, 75, all stocked in January.
	f.stockInDated(t, "SN-1", "Panel", "65", jan(3))
	f.stockInDated(t, "SN-2", "Panel", "65", jan(10))
	f.stockInDated(t, "SN-3", "Panel", "75", jan(21))
	// February movement must not leak into January.
	f.stockInDated(t, "SN-4", "Panel", "75", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	rep, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)

	assert.Equal(t, report.MovementCount{StockIn: 2}, rep.SizeBreakdown["65"])
	assert.Equal(t, report.MovementCount{StockIn: 1}, rep.SizeBreakdown["75"])
	assert.Equal(t, report.MovementCount{StockIn: 3}, rep.CategoryBreakdown["panel"])
}

func TestMonthlyReportCountsBothMovementDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stockInDated(t, "SN-1", "Panel", "65", jan(3))
	f.stockInDated(t, "SN-2", "Panel", "65", jan(4))
	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-1"},
		OrderNumber:   "ORD-1",
		Dealer:        "Acme Dealer",
		Date:          jan(20),
	})
	require.NoError(t, err)

	rep, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, report.MovementCount{StockIn: 2, StockOut: 1}, rep.SizeBreakdown["65"])
	assert.Equal(t, report.MovementCount{StockIn: 2, StockOut: 1}, rep.CategoryBreakdown["panel"])
}

func TestSizelessCategoryGroupsUnderCategoryBucket(t *testing.T) {
	f := newFixture(t, report.WithSizelessCategories([]string{"Mount"}))
	ctx := context.Background()

	f.stockInDated(t, "SN-1", "Panel", "65", jan(3))
	// A mount carries a nominal size that must be ignored.
	f.stockInDated(t, "SN-2", "Mount", "XL", jan(5))
	f.stockInDated(t, "SN-3", "Mount", "", jan(6))

	rep, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)

	assert.Equal(t, report.MovementCount{StockIn: 1}, rep.SizeBreakdown["65"])
	assert.Equal(t, report.MovementCount{StockIn: 2}, rep.SizeBreakdown["mount"])
	assert.NotContains(t, rep.SizeBreakdown, "XL")

	// The category breakdown still carries every category.
	assert.Equal(t, report.MovementCount{StockIn: 2}, rep.CategoryBreakdown["mount"])
	assert.Equal(t, report.MovementCount{StockIn: 1}, rep.CategoryBreakdown["panel"])
}

func TestCategoryNormalizationMergesSpellings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stockInDated(t, "SN-1", "TV_Stand", "", jan(3))
	f.stockInDated(t, "SN-2", "tv stand", "", jan(4))
	f.stockInDated(t, "SN-3", "TV  STAND", "", jan(5))

	rep, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)
	require.Len(t, rep.CategoryBreakdown, 1, "spellings must collapse into one bucket")
	assert.Equal(t, report.MovementCount{StockIn: 3}, rep.CategoryBreakdown["tv stand"])
}

func TestCumulativeRemainingHonorsCutoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stockInDated(t, "SN-1", "Panel", "65", jan(3))
	f.stockInDated(t, "SN-2", "Panel", "65", jan(10))
	f.stockInDated(t, "SN-3", "Panel", "65", time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC))

	// A reserved item is no longer remaining.
	_, err := f.ledger.Reserve(ctx, invapp.ReserveInput{
		SerialNumbers: []string{"SN-2"},
		OrderNumber:   "ORD-1",
		Date:          jan(15),
	})
	require.NoError(t, err)

	janReport, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, janReport.CumulativeRemaining, "only SN-1 is Active and created by end of January")

	febReport, err := f.reports.MonthlyReport(ctx, 2026, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, febReport.CumulativeRemaining, "February adds SN-3")

	decReport, err := f.reports.MonthlyReport(ctx, 2025, 12)
	require.NoError(t, err)
	assert.Equal(t, 0, decReport.CumulativeRemaining)
}

func TestMonthlyReportIsCachedBytewise(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stockInDated(t, "SN-1", "Panel", "65", jan(3))

	first, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)

	// A write after the first read is invisible within the cache window.
	f.stockInDated(t, "SN-2", "Panel", "75", jan(4))

	second, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON, "cache hit must return byte-identical results")

	// Bypassing the cache sees the write and refreshes the entry.
	fresh, err := f.reports.MonthlyReport(ctx, 2026, 1, report.BypassCache())
	require.NoError(t, err)
	assert.Equal(t, report.MovementCount{StockIn: 1}, fresh.SizeBreakdown["75"])

	cachedAgain, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, fresh.SizeBreakdown, cachedAgain.SizeBreakdown)
}

func TestMonthlyReportExpiredCacheRegenerates(t *testing.T) {
	f := newFixture(t, report.WithCacheTTL(10*time.Millisecond))
	ctx := context.Background()

	f.stockInDated(t, "SN-1", "Panel", "65", jan(3))
	_, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)

	f.stockInDated(t, "SN-2", "Panel", "75", jan(4))
	time.Sleep(30 * time.Millisecond)

	rep, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, report.MovementCount{StockIn: 1}, rep.SizeBreakdown["75"])
}

func TestMonthlyReportValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.reports.MonthlyReport(context.Background(), 2026, 13)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", de.Code)

	_, err = f.reports.MonthlyReport(context.Background(), 123, 1)
	de, ok = shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_INPUT", de.Code)
}

func TestMonthlyReportSmallScanPages(t *testing.T) {
	f := newFixture(t, report.WithScanPageSize(2))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		f.stockInDated(t, "SN-"+string(rune('A'+i)), "Panel", "65", jan(1+i))
	}

	rep, err := f.reports.MonthlyReport(ctx, 2026, 1)
	require.NoError(t, err)
	assert.Equal(t, report.MovementCount{StockIn: 7}, rep.SizeBreakdown["65"])
	assert.Equal(t, 7, rep.CumulativeRemaining)
}
