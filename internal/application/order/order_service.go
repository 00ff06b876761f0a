package order

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// maxCommitRetries bounds retries of the read-validate-write cycle after a
// commit-time conflict.
const maxCommitRetries = 3

// AllowedContentTypes is the whitelist for uploaded order documents.
// Executables and scriptable formats are rejected.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
}

// OrderService drives the order workflow: the invoicing axis and the
// delivery axis. The two axes never move together; each operation advances
// exactly one of them. Transitions that change item statuses commit the
// order update, the item flips, and the log appends in one atomic batch.
type OrderService struct {
	orders  order.Repository
	items   inventory.ItemRepository
	txs     inventory.TransactionRepository
	uow     invapp.UnitOfWork
	storage ObjectStorageService
	logger  *zap.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(
	orders order.Repository,
	items inventory.ItemRepository,
	txs inventory.TransactionRepository,
	uow invapp.UnitOfWork,
	storage ObjectStorageService,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orders:  orders,
		items:   items,
		txs:     txs,
		uow:     uow,
		storage: storage,
		logger:  logger,
	}
}

// Order returns one order by number.
func (s *OrderService) Order(ctx context.Context, orderNumber string) (*order.Order, error) {
	return s.orders.FindByOrderNumber(ctx, orderNumber)
}

// OrderDetail is an order with its log entries resolved.
type OrderDetail struct {
	Order        *order.Order            `json:"order"`
	Transactions []inventory.Transaction `json:"transactions"`
}

// Detail returns one order with its transaction log entries resolved through
// bounded key-set lookups.
func (s *OrderService) Detail(ctx context.Context, orderNumber string) (*OrderDetail, error) {
	ord, err := s.orders.FindByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	txs, err := s.txs.FindByEntryNumbers(ctx, ord.TransactionIDs)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: ord, Transactions: txs}, nil
}

// OrdersByDealer pages through a dealer's orders.
func (s *OrderService) OrdersByDealer(ctx context.Context, dealer string, limit int, startAfter string) ([]order.Order, error) {
	if strings.TrimSpace(dealer) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Dealer is required")
	}
	return s.orders.FindByDealer(ctx, dealer, limit, startAfter)
}

// AttachInvoice uploads the invoice document and advances the invoicing axis
// Reserved -> Invoiced. Every item of the order still in Reserved flips to
// Invoiced, each with a log entry recording the flip, so replaying a
// serial's transactions keeps agreeing with its projected status. The
// delivery axis is untouched.
func (s *OrderService) AttachInvoice(ctx context.Context, input AttachInvoiceInput) (*TransitionResult, error) {
	ord, err := s.orders.FindByOrderNumber(ctx, input.OrderNumber)
	if err != nil {
		return nil, err
	}
	if ord.InvoiceStatus != order.InvoiceReserved {
		return nil, shared.NewDomainError("INVALID_STATE",
			"Order "+ord.OrderNumber+" is already invoiced")
	}

	doc, err := s.uploadDocument(ctx, ord.OrderNumber, "invoice", input.Document)
	if err != nil {
		return nil, err
	}

	result, err := s.commitTransition(ctx, input.OrderNumber, func(ord *order.Order, batch invapp.Batch) ([]int64, error) {
		if err := ord.MarkInvoiced(doc); err != nil {
			return nil, err
		}
		entries, err := s.flipOrderItems(ctx, ord, batch, flipSpec{
			from:   []inventory.ItemStatus{inventory.StatusReserved},
			apply:  func(item *inventory.InventoryItem) error { return item.MarkInvoiced() },
			status: inventory.StatusInvoiced,
			date:   input.Date,
			uid:    input.CreatedByUID,
		})
		if err != nil {
			return nil, err
		}
		ord.AppendTransactions(entries...)
		batch.SaveOrder(ord)
		return entries, nil
	})
	if err != nil {
		// The order was not invoiced; do not leave the document behind.
		if delErr := s.storage.DeleteObject(ctx, doc.Path); delErr != nil {
			s.logger.Warn("orphaned invoice document",
				zap.String("path", doc.Path), zap.Error(delErr))
		}
		return nil, err
	}
	result.DocumentURL = doc.URL
	return result, nil
}

// RemoveInvoice rolls the invoicing axis back to Reserved, deletes the
// invoice document, and flips the order's Invoiced items back to Reserved
// with log entries recording the rollback. The delivery axis is untouched.
func (s *OrderService) RemoveInvoice(ctx context.Context, orderNumber, createdByUID string) (*TransitionResult, error) {
	var docPath string
	result, err := s.commitTransition(ctx, orderNumber, func(ord *order.Order, batch invapp.Batch) ([]int64, error) {
		if ord.InvoiceDoc != nil {
			docPath = ord.InvoiceDoc.Path
		}
		if err := ord.RevertInvoice(); err != nil {
			return nil, err
		}
		entries, err := s.flipOrderItems(ctx, ord, batch, flipSpec{
			from:   []inventory.ItemStatus{inventory.StatusInvoiced},
			apply:  func(item *inventory.InventoryItem) error { return item.RevertInvoiced() },
			status: inventory.StatusReserved,
			uid:    createdByUID,
		})
		if err != nil {
			return nil, err
		}
		ord.AppendTransactions(entries...)
		batch.SaveOrder(ord)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	// Delete the file only after the rollback is durable.
	if docPath != "" {
		if err := s.storage.DeleteObject(ctx, docPath); err != nil {
			s.logger.Warn("invoice document left in storage",
				zap.String("path", docPath), zap.Error(err))
		}
	}
	return result, nil
}

// IssueDelivery uploads the delivery note and advances the delivery axis
// Pending -> Issued. Item statuses and the transaction log are untouched
// until delivery is confirmed.
func (s *OrderService) IssueDelivery(ctx context.Context, input IssueDeliveryInput) (*TransitionResult, error) {
	ord, err := s.orders.FindByOrderNumber(ctx, input.OrderNumber)
	if err != nil {
		return nil, err
	}
	if ord.DeliveryStatus != order.DeliveryPending {
		return nil, shared.NewDomainError("INVALID_STATE",
			"Order "+ord.OrderNumber+" delivery is "+string(ord.DeliveryStatus)+", not pending")
	}

	doc, err := s.uploadDocument(ctx, ord.OrderNumber, "delivery", input.Document)
	if err != nil {
		return nil, err
	}

	result, err := s.commitTransition(ctx, input.OrderNumber, func(ord *order.Order, batch invapp.Batch) ([]int64, error) {
		if err := ord.IssueDelivery(doc); err != nil {
			return nil, err
		}
		batch.SaveOrder(ord)
		return nil, nil
	})
	if err != nil {
		if delErr := s.storage.DeleteObject(ctx, doc.Path); delErr != nil {
			s.logger.Warn("orphaned delivery document",
				zap.String("path", doc.Path), zap.Error(delErr))
		}
		return nil, err
	}
	result.DocumentURL = doc.URL
	return result, nil
}

// ConfirmDelivery advances the delivery axis Issued -> Delivered. Each
// deliverable item of the order gets a new Stock_Out(Delivered) log entry
// alongside its status flip; the original reservation entries stay untouched
// as audit points. All writes commit in one atomic batch.
func (s *OrderService) ConfirmDelivery(ctx context.Context, input ConfirmDeliveryInput) (*TransitionResult, error) {
	return s.commitTransition(ctx, input.OrderNumber, func(ord *order.Order, batch invapp.Batch) ([]int64, error) {
		if err := ord.ConfirmDelivery(); err != nil {
			return nil, err
		}
		entries, err := s.flipOrderItems(ctx, ord, batch, flipSpec{
			from:   []inventory.ItemStatus{inventory.StatusReserved, inventory.StatusInvoiced},
			apply:  func(item *inventory.InventoryItem) error { return item.MarkDelivered() },
			status: inventory.StatusDelivered,
			date:   input.Date,
			uid:    input.CreatedByUID,
		})
		if err != nil {
			return nil, err
		}
		ord.AppendTransactions(entries...)
		batch.SaveOrder(ord)
		return entries, nil
	})
}

// RemoveDeliveryData deletes the delivery document reference and reverts the
// delivery axis to Pending. The invoicing axis and previously written log
// entries are never touched.
func (s *OrderService) RemoveDeliveryData(ctx context.Context, orderNumber string) (*TransitionResult, error) {
	var docPath string
	result, err := s.commitTransition(ctx, orderNumber, func(ord *order.Order, batch invapp.Batch) ([]int64, error) {
		if ord.DeliveryDoc != nil {
			docPath = ord.DeliveryDoc.Path
		}
		if err := ord.RemoveDeliveryData(); err != nil {
			return nil, err
		}
		batch.SaveOrder(ord)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if docPath != "" {
		if err := s.storage.DeleteObject(ctx, docPath); err != nil {
			s.logger.Warn("delivery document left in storage",
				zap.String("path", docPath), zap.Error(err))
		}
	}
	return result, nil
}

// DownloadURL generates a time-limited link to a stored order document.
func (s *OrderService) DownloadURL(ctx context.Context, storagePath string) (string, time.Time, error) {
	if strings.TrimSpace(storagePath) == "" {
		return "", time.Time{}, shared.NewDomainError("INVALID_INPUT", "Document path is required")
	}
	return s.storage.GenerateDownloadURL(ctx, storagePath, DefaultDownloadURLExpiry)
}

// commitTransition runs one order transition inside the conflict-retry
// cycle: re-read the order, apply the mutation into a fresh batch, commit.
func (s *OrderService) commitTransition(
	ctx context.Context,
	orderNumber string,
	apply func(ord *order.Order, batch invapp.Batch) ([]int64, error),
) (*TransitionResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		ord, err := s.orders.FindByOrderNumber(ctx, orderNumber)
		if err != nil {
			return nil, err
		}

		batch := s.uow.NewBatch()
		entries, err := apply(ord, batch)
		if err != nil {
			return nil, err
		}

		err = batch.Commit(ctx)
		if err == nil {
			s.logger.Info("order transition committed",
				zap.String("order_number", ord.OrderNumber),
				zap.String("invoice_status", string(ord.InvoiceStatus)),
				zap.String("delivery_status", string(ord.DeliveryStatus)),
				zap.Int("log_entries", len(entries)))
			return &TransitionResult{OrderNumber: ord.OrderNumber, EntryNumbers: entries}, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("order transition conflict, retrying",
			zap.String("order_number", orderNumber),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// flipSpec describes one bulk item-status flip over an order's items.
type flipSpec struct {
	from   []inventory.ItemStatus
	apply  func(item *inventory.InventoryItem) error
	status inventory.ItemStatus
	date   time.Time
	uid    string
}

// flipOrderItems flips every order item currently in one of spec.from,
// staging a status update and a log entry per item. Items outside spec.from
// (returned ones, or already past the flip) are skipped. Entry numbers are
// allocated as one contiguous run.
func (s *OrderService) flipOrderItems(ctx context.Context, ord *order.Order, batch invapp.Batch, spec flipSpec) ([]int64, error) {
	serials, err := s.orderSerials(ctx, ord)
	if err != nil {
		return nil, err
	}
	if len(serials) == 0 {
		return nil, nil
	}

	items, err := s.items.FindBySerials(ctx, serials)
	if err != nil {
		return nil, err
	}

	eligible := make([]*inventory.InventoryItem, 0, len(items))
	for i := range items {
		for _, from := range spec.from {
			if items[i].Status == from {
				eligible = append(eligible, &items[i])
				break
			}
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	base, err := s.txs.NextEntryNumber(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]int64, 0, len(eligible))
	for i, item := range eligible {
		seen := item.UpdatedAt
		if err := spec.apply(item); err != nil {
			return nil, err
		}

		tx := inventory.NewTransaction(item, inventory.TypeStockOut, spec.status).
			WithOrder(ord.OrderNumber, ord.Dealer, ord.Client)
		tx.EntryNumber = base + int64(i)
		tx.Location = ord.Location
		tx.CreatedByUID = spec.uid
		if !spec.date.IsZero() {
			tx.Date = spec.date
		}
		if err := tx.Validate(); err != nil {
			return nil, err
		}

		batch.SetItemStatus(item.SerialNumber, spec.status, seen, item.UpdatedAt)
		batch.CreateTransaction(tx)
		entries = append(entries, tx.EntryNumber)
	}
	return entries, nil
}

// orderSerials resolves the distinct serial numbers referenced by an
// order's log entries, in first-seen order.
func (s *OrderService) orderSerials(ctx context.Context, ord *order.Order) ([]string, error) {
	if len(ord.TransactionIDs) == 0 {
		return nil, nil
	}
	txs, err := s.txs.FindByEntryNumbers(ctx, ord.TransactionIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(txs))
	serials := make([]string, 0, len(txs))
	for _, tx := range txs {
		if _, ok := seen[tx.SerialNumber]; ok {
			continue
		}
		seen[tx.SerialNumber] = struct{}{}
		serials = append(serials, tx.SerialNumber)
	}
	return serials, nil
}

func (s *OrderService) uploadDocument(ctx context.Context, orderNumber, kind string, doc DocumentUpload) (order.DocumentRef, error) {
	if doc.Body == nil {
		return order.DocumentRef{}, shared.NewDomainError("INVALID_INPUT", "Document body is required")
	}
	if !AllowedContentTypes[doc.ContentType] {
		return order.DocumentRef{}, shared.NewDomainError("INVALID_INPUT",
			"Content type not allowed: "+doc.ContentType)
	}
	name := filepath.Base(strings.TrimSpace(doc.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return order.DocumentRef{}, shared.NewDomainError("INVALID_INPUT", "File name is required")
	}

	key := path.Join("orders", orderNumber, kind, fmt.Sprintf("%d-%s", time.Now().UnixNano(), name))
	url, err := s.storage.Upload(ctx, key, doc.ContentType, doc.Body)
	if err != nil {
		return order.DocumentRef{}, fmt.Errorf("upload %s document: %w", kind, err)
	}
	return order.DocumentRef{URL: url, Path: key, UploadedAt: time.Now()}, nil
}
