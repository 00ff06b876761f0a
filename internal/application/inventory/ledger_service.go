package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// maxCommitRetries bounds how often a service re-runs its read-validate-write
// cycle after losing a commit-time race (typically an entry-number conflict).
const maxCommitRetries = 3

// LedgerService owns the canonical write path of the inventory ledger:
// stock-in and reservation. Every mutation appends to the transaction log
// and updates the denormalized item status in one atomic batch.
type LedgerService struct {
	items  inventory.ItemRepository
	txs    inventory.TransactionRepository
	orders order.Repository
	uow    UnitOfWork

	locations  map[string]struct{}
	warranties map[string]int
	logger     *zap.Logger
}

// LedgerServiceOption configures a LedgerService.
type LedgerServiceOption func(*LedgerService)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) LedgerServiceOption {
	return func(s *LedgerService) {
		s.logger = logger
	}
}

// WithLocations restricts transaction locations to a closed set of regional
// codes. With no restriction configured, any location string is accepted.
func WithLocations(locations []string) LedgerServiceOption {
	return func(s *LedgerService) {
		s.locations = make(map[string]struct{}, len(locations))
		for _, l := range locations {
			s.locations[l] = struct{}{}
		}
	}
}

// WithWarrantyPeriods overrides the warranty catalog: type to period in
// years. Stock-in rejects warranty types outside the catalog.
func WithWarrantyPeriods(periods map[string]int) LedgerServiceOption {
	return func(s *LedgerService) {
		s.warranties = make(map[string]int, len(periods))
		for warrantyType, years := range periods {
			s.warranties[strings.ToLower(strings.TrimSpace(warrantyType))] = years
		}
	}
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(
	items inventory.ItemRepository,
	txs inventory.TransactionRepository,
	orders order.Repository,
	uow UnitOfWork,
	opts ...LedgerServiceOption,
) *LedgerService {
	s := &LedgerService{
		items:      items,
		txs:        txs,
		orders:     orders,
		uow:        uow,
		warranties: inventory.WarrantyPeriods,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) warrantyYears(warrantyType string) (int, error) {
	warrantyType = strings.ToLower(strings.TrimSpace(warrantyType))
	if warrantyType == "" {
		return 0, nil
	}
	years, ok := s.warranties[warrantyType]
	if !ok {
		return 0, shared.NewDomainError("INVALID_INPUT", "Unknown warranty type: "+warrantyType)
	}
	return years, nil
}

func (s *LedgerService) validateLocation(location string) error {
	if len(s.locations) == 0 || location == "" {
		return nil
	}
	if _, ok := s.locations[location]; !ok {
		return shared.NewDomainError("INVALID_INPUT", "Unknown location code: "+location)
	}
	return nil
}

// StockIn registers a new serialized item. The item (status Active) and its
// Stock_In log entry commit in one all-or-nothing batch. An existing serial
// number is rejected with DUPLICATE_SERIAL before anything is written.
func (s *LedgerService) StockIn(ctx context.Context, input StockInInput) (string, error) {
	if err := s.validateLocation(input.Location); err != nil {
		return "", err
	}
	warrantyYears, err := s.warrantyYears(input.WarrantyType)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		item, err := inventory.NewInventoryItem(
			input.SerialNumber, input.EquipmentCategory, input.Model,
			input.Size, input.Batch, input.Remarks,
		)
		if err != nil {
			return "", err
		}

		_, err = s.items.FindBySerial(ctx, item.SerialNumber)
		if err == nil {
			return "", fmt.Errorf("stock-in %s: %w", item.SerialNumber, shared.ErrDuplicateSerial)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return "", err
		}

		entry, err := s.txs.NextEntryNumber(ctx)
		if err != nil {
			return "", err
		}

		// A backdated stock-in backdates the item itself; cumulative
		// remaining counts by creation date.
		if !input.Date.IsZero() {
			item.CreatedAt = input.Date
		}

		tx := inventory.NewTransaction(item, inventory.TypeStockIn, inventory.StatusActive).
			WithWarrantyPeriod(input.WarrantyType, warrantyYears)
		tx.EntryNumber = entry
		tx.Location = input.Location
		tx.CreatedByUID = input.CreatedByUID
		if !input.Date.IsZero() {
			tx.Date = input.Date
		}
		if err := tx.Validate(); err != nil {
			return "", err
		}

		batch := s.uow.NewBatch()
		batch.CreateItem(item)
		batch.CreateTransaction(tx)

		err = batch.Commit(ctx)
		if err == nil {
			s.logger.Info("stock-in committed",
				zap.String("serial_number", item.SerialNumber),
				zap.Int64("entry_number", entry))
			return item.SerialNumber, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return "", err
		}
		lastErr = err
		s.logger.Warn("stock-in commit conflict, retrying",
			zap.String("serial_number", item.SerialNumber),
			zap.Int("attempt", attempt+1))
	}
	return "", lastErr
}

// Reserve associates Active items with an order. Validation happens before
// any write: if any listed serial is missing or not Active, the whole
// reservation is rejected naming the offending serials and nothing changes.
// On success, each item's status flip, its Stock_Out(Reserved) log entry with
// a distinct sequential entry number, and the order update commit in one
// atomic batch.
func (s *LedgerService) Reserve(ctx context.Context, input ReserveInput) (*ReservationResult, error) {
	if len(input.SerialNumbers) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "At least one serial number is required")
	}
	if strings.TrimSpace(input.OrderNumber) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order number is required")
	}
	if err := s.validateLocation(input.Location); err != nil {
		return nil, err
	}
	if dup := firstDuplicate(input.SerialNumbers); dup != "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Serial number listed twice: "+dup)
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		items, err := s.items.FindBySerials(ctx, input.SerialNumbers)
		if err != nil {
			return nil, err
		}
		bySerial := make(map[string]*inventory.InventoryItem, len(items))
		for i := range items {
			bySerial[items[i].SerialNumber] = &items[i]
		}

		offending := make([]string, 0)
		for _, sn := range input.SerialNumbers {
			item, ok := bySerial[sn]
			if !ok || !item.Status.CanReserve() {
				offending = append(offending, sn)
			}
		}
		if len(offending) > 0 {
			sort.Strings(offending)
			return nil, shared.NewDomainError("ITEM_UNAVAILABLE",
				"Items not available for reservation: "+strings.Join(offending, ", "))
		}

		ord, created, err := s.orderForReservation(ctx, input)
		if err != nil {
			return nil, err
		}

		base, err := s.txs.NextEntryNumber(ctx)
		if err != nil {
			return nil, err
		}

		batch := s.uow.NewBatch()
		entries := make([]int64, 0, len(input.SerialNumbers))
		for i, sn := range input.SerialNumbers {
			item := bySerial[sn]
			seen := item.UpdatedAt
			if err := item.Reserve(); err != nil {
				return nil, err
			}

			tx := inventory.NewTransaction(item, inventory.TypeStockOut, inventory.StatusReserved).
				WithOrder(ord.OrderNumber, ord.Dealer, ord.Client)
			tx.EntryNumber = base + int64(i)
			tx.Location = input.Location
			tx.CreatedByUID = input.CreatedByUID
			if !input.Date.IsZero() {
				tx.Date = input.Date
			}
			if err := tx.Validate(); err != nil {
				return nil, err
			}

			batch.SetItemStatus(sn, inventory.StatusReserved, seen, item.UpdatedAt)
			batch.CreateTransaction(tx)
			entries = append(entries, tx.EntryNumber)
		}

		ord.AppendTransactions(entries...)
		if created {
			batch.CreateOrder(ord)
		} else {
			batch.SaveOrder(ord)
		}

		err = batch.Commit(ctx)
		if err == nil {
			s.logger.Info("reservation committed",
				zap.String("order_number", ord.OrderNumber),
				zap.Int("items", len(entries)),
				zap.Int64s("entry_numbers", entries))
			return &ReservationResult{OrderNumber: ord.OrderNumber, EntryNumbers: entries}, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("reservation commit conflict, retrying",
			zap.String("order_number", input.OrderNumber),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// orderForReservation loads the target order or prepares a new one. The
// second return value reports whether the order is new, so the batch can use
// create semantics and lose cleanly to a concurrent creator.
func (s *LedgerService) orderForReservation(ctx context.Context, input ReserveInput) (*order.Order, bool, error) {
	existing, err := s.orders.FindByOrderNumber(ctx, input.OrderNumber)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}
	created, err := order.NewOrder(input.OrderNumber, input.Dealer, input.Client, input.Location)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// Item returns one ledger item by serial number.
func (s *LedgerService) Item(ctx context.Context, serialNumber string) (*inventory.InventoryItem, error) {
	return s.items.FindBySerial(ctx, serialNumber)
}

// ItemsByStatus pages through items in a given status.
func (s *LedgerService) ItemsByStatus(ctx context.Context, status inventory.ItemStatus, limit int, startAfter string) ([]inventory.InventoryItem, error) {
	if !status.Valid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Unknown status: "+string(status))
	}
	return s.items.FindByStatus(ctx, status, limit, startAfter)
}

// History returns the full transaction history of a serial number.
func (s *LedgerService) History(ctx context.Context, serialNumber string) ([]inventory.Transaction, error) {
	if _, err := s.items.FindBySerial(ctx, serialNumber); err != nil {
		return nil, err
	}
	return s.txs.FindBySerial(ctx, serialNumber)
}

// CheckConsistency replays the transaction log of one serial and compares
// the derived status against the ledger projection. The projection is the
// value reports consult; this check validates the re-derivation rule that
// backs it.
func (s *LedgerService) CheckConsistency(ctx context.Context, serialNumber string) (*ConsistencyReport, error) {
	item, err := s.items.FindBySerial(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	history, err := s.txs.FindBySerial(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	derived, ok := inventory.DeriveStatus(history)
	report := &ConsistencyReport{
		SerialNumber:     serialNumber,
		ProjectedStatus:  item.Status,
		DerivedStatus:    derived,
		TransactionCount: len(history),
		Consistent:       ok && derived == item.Status,
	}
	return report, nil
}

func firstDuplicate(serials []string) string {
	seen := make(map[string]struct{}, len(serials))
	for _, sn := range serials {
		if _, ok := seen[sn]; ok {
			return sn
		}
		seen[sn] = struct{}{}
	}
	return ""
}
