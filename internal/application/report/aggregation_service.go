package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultScanPageSize bounds how many log documents one scan page loads.
// The store has no server-side aggregation, so reports paginate through the
// full range and accumulate counts client-side.
const DefaultScanPageSize = 500

// MovementCount counts units moved into and out of inventory in a period.
type MovementCount struct {
	StockIn  int `json:"stock_in"`
	StockOut int `json:"stock_out"`
}

// MonthlyReport is the aggregate answer for one calendar month.
//
// SizeBreakdown buckets movements by physical size; items from size-less
// categories appear under a bucket named by their category instead.
// CategoryBreakdown has no exclusions. CumulativeRemaining counts items
// currently Active that were created up to the end of the month.
type MonthlyReport struct {
	Year                int                      `json:"year"`
	Month               int                      `json:"month"`
	SizeBreakdown       map[string]MovementCount `json:"size_breakdown"`
	CategoryBreakdown   map[string]MovementCount `json:"category_breakdown"`
	CumulativeRemaining int                      `json:"cumulative_remaining"`
	GeneratedAt         time.Time                `json:"generated_at"`
}

// AggregationService answers monthly movement and remaining-stock queries
// over the transaction log. Results are memoized per (year, month) for a
// fixed validity window; a cache hit skips the scan entirely.
type AggregationService struct {
	items inventory.ItemRepository
	txs   inventory.TransactionRepository
	cache Cache

	cacheTTL     time.Duration
	scanPageSize int
	sizeless     map[string]struct{}
	logger       *zap.Logger
}

// AggregationOption configures an AggregationService.
type AggregationOption func(*AggregationService)

// WithCacheTTL overrides the report cache validity window.
func WithCacheTTL(ttl time.Duration) AggregationOption {
	return func(s *AggregationService) {
		s.cacheTTL = ttl
	}
}

// WithScanPageSize overrides the log scan page size.
func WithScanPageSize(size int) AggregationOption {
	return func(s *AggregationService) {
		if size > 0 {
			s.scanPageSize = size
		}
	}
}

// WithSizelessCategories configures the categories that have no meaningful
// physical dimension. Their items are excluded from size buckets and grouped
// under a category-named bucket instead.
func WithSizelessCategories(categories []string) AggregationOption {
	return func(s *AggregationService) {
		s.sizeless = make(map[string]struct{}, len(categories))
		for _, c := range categories {
			s.sizeless[NormalizeCategory(c)] = struct{}{}
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) AggregationOption {
	return func(s *AggregationService) {
		s.logger = logger
	}
}

// NewAggregationService creates an AggregationService.
func NewAggregationService(
	items inventory.ItemRepository,
	txs inventory.TransactionRepository,
	cache Cache,
	opts ...AggregationOption,
) *AggregationService {
	s := &AggregationService{
		items:        items,
		txs:          txs,
		cache:        cache,
		cacheTTL:     DefaultCacheTTL,
		scanPageSize: DefaultScanPageSize,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryOption modifies one report query.
type QueryOption func(*queryOptions)

type queryOptions struct {
	bypassCache bool
}

// BypassCache forces a fresh scan. Callers that just wrote data and need
// immediate consistency use this; the fresh result still replaces the
// cached entry.
func BypassCache() QueryOption {
	return func(o *queryOptions) {
		o.bypassCache = true
	}
}

// MonthlyReport returns the movement breakdown and cumulative remaining for
// one calendar month. Within the cache window, repeated calls with no
// intervening expiry return byte-identical results.
func (s *AggregationService) MonthlyReport(ctx context.Context, year, month int, opts ...QueryOption) (*MonthlyReport, error) {
	if month < 1 || month > 12 {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Month out of range: %d", month))
	}
	if year < 1970 || year > 9999 {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Year out of range: %d", year))
	}
	var q queryOptions
	for _, opt := range opts {
		opt(&q)
	}

	key := cacheKey(year, month)
	if !q.bypassCache {
		if cached, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			var report MonthlyReport
			if err := json.Unmarshal(cached, &report); err == nil {
				return &report, nil
			}
			s.logger.Warn("report cache entry corrupt, regenerating", zap.String("key", key))
		}
	}

	report, err := s.buildMonthlyReport(ctx, year, month)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode monthly report: %w", err)
	}
	if err := s.cache.Set(ctx, key, encoded, s.cacheTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}

func (s *AggregationService) buildMonthlyReport(ctx context.Context, year, month int) (*MonthlyReport, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	report := &MonthlyReport{
		Year:              year,
		Month:             month,
		SizeBreakdown:     make(map[string]MovementCount),
		CategoryBreakdown: make(map[string]MovementCount),
		GeneratedAt:       time.Now().UTC(),
	}

	// Log entries lacking item details are resolved afterwards in grouped
	// multi-key fetches instead of one lookup per serial.
	unresolved := make(map[string]MovementCount)

	err := s.txs.ScanByDateRange(ctx, from, to, s.scanPageSize, func(page []inventory.Transaction) error {
		for _, tx := range page {
			if tx.EquipmentCategory == "" {
				mc := unresolved[tx.SerialNumber]
				addMovement(&mc, tx)
				unresolved[tx.SerialNumber] = mc
				continue
			}
			var mc MovementCount
			addMovement(&mc, tx)
			fold(report, s.sizeBucket(tx.EquipmentCategory, tx.Size), NormalizeCategory(tx.EquipmentCategory), mc)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan log for %04d-%02d: %w", year, month, err)
	}

	if err := s.resolveMissing(ctx, report, unresolved); err != nil {
		return nil, err
	}

	remaining := 0
	err = s.items.ScanActiveCreatedBefore(ctx, to.Add(-time.Nanosecond), s.scanPageSize, func(items []inventory.InventoryItem) error {
		remaining += len(items)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("count remaining stock: %w", err)
	}
	report.CumulativeRemaining = remaining

	return report, nil
}

// resolveMissing folds in movements whose log entries carried no category,
// resolving item details through batched key-set lookups.
func (s *AggregationService) resolveMissing(ctx context.Context, report *MonthlyReport, unresolved map[string]MovementCount) error {
	if len(unresolved) == 0 {
		return nil
	}
	serials := make([]string, 0, len(unresolved))
	for sn := range unresolved {
		serials = append(serials, sn)
	}
	items, err := s.items.FindBySerials(ctx, serials)
	if err != nil {
		return fmt.Errorf("resolve item details: %w", err)
	}

	details := make(map[string]inventory.InventoryItem, len(items))
	for _, item := range items {
		details[item.SerialNumber] = item
	}
	for sn, mc := range unresolved {
		category, size := "unknown", ""
		if item, ok := details[sn]; ok {
			category, size = item.EquipmentCategory, item.Size
		}
		fold(report, s.sizeBucket(category, size), NormalizeCategory(category), mc)
	}
	return nil
}

// sizeBucket names the size-breakdown bucket for an item: the size itself,
// or the category for size-less categories and items without a recorded
// size.
func (s *AggregationService) sizeBucket(category, size string) string {
	normalized := NormalizeCategory(category)
	if _, sizeless := s.sizeless[normalized]; sizeless || size == "" {
		return normalized
	}
	return size
}

func fold(report *MonthlyReport, sizeBucket, categoryBucket string, mc MovementCount) {
	sb := report.SizeBreakdown[sizeBucket]
	sb.StockIn += mc.StockIn
	sb.StockOut += mc.StockOut
	report.SizeBreakdown[sizeBucket] = sb

	cb := report.CategoryBreakdown[categoryBucket]
	cb.StockIn += mc.StockIn
	cb.StockOut += mc.StockOut
	report.CategoryBreakdown[categoryBucket] = cb
}

func addMovement(mc *MovementCount, tx inventory.Transaction) {
	qty := tx.Quantity
	if qty <= 0 {
		qty = 1
	}
	switch tx.Type {
	case inventory.TypeStockIn:
		mc.StockIn += qty
	case inventory.TypeStockOut:
		mc.StockOut += qty
	}
}

// NormalizeCategory canonicalizes a category string for grouping: lower
// case, underscores as spaces, runs of whitespace collapsed. Historical
// data entry was not consistent about any of these.
func NormalizeCategory(category string) string {
	category = strings.ToLower(strings.ReplaceAll(category, "_", " "))
	return strings.Join(strings.Fields(category), " ")
}

func cacheKey(year, month int) string {
	return fmt.Sprintf("monthly:%04d-%02d", year, month)
}
