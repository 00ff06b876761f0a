package inventory

import (
	"context"
	"errors"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReturnService exchanges one serialized item for another within an existing
// order. The swap keeps the order's logical item count stable while both
// serials retain their full audit history.
type ReturnService struct {
	items  inventory.ItemRepository
	txs    inventory.TransactionRepository
	orders order.Repository
	uow    UnitOfWork
	logger *zap.Logger
}

// NewReturnService creates a ReturnService.
func NewReturnService(
	items inventory.ItemRepository,
	txs inventory.TransactionRepository,
	orders order.Repository,
	uow UnitOfWork,
	logger *zap.Logger,
) *ReturnService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReturnService{
		items:  items,
		txs:    txs,
		orders: orders,
		uow:    uow,
		logger: logger,
	}
}

// ProcessReturn marks the returned item Returned and reserves the
// replacement in its place. The replacement inherits the dealer/client
// association of the original reservation, not the return's own metadata, so
// the order's item set stays coherent. Both status flips and both log
// appends commit in one atomic batch; a failed precondition writes nothing.
func (s *ReturnService) ProcessReturn(ctx context.Context, input ReturnInput) (*ReturnResult, error) {
	if input.ReturnedSerial == input.ReplacementSerial {
		return nil, shared.NewDomainError("INVALID_INPUT",
			"Returned and replacement serial numbers must differ")
	}

	var lastErr error
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		returned, err := s.items.FindBySerial(ctx, input.ReturnedSerial)
		if err != nil {
			return nil, err
		}
		replacement, err := s.items.FindBySerial(ctx, input.ReplacementSerial)
		if err != nil {
			return nil, err
		}

		if !returned.Status.CanReturn() {
			return nil, shared.NewDomainError("INVALID_STATE",
				"Item "+returned.SerialNumber+" is "+string(returned.Status)+" and cannot be returned")
		}
		if !replacement.Status.CanReserve() {
			return nil, shared.NewDomainError("INVALID_STATE",
				"Replacement "+replacement.SerialNumber+" is "+string(replacement.Status)+", not active")
		}

		linkage, err := s.reservationLinkage(ctx, returned.SerialNumber)
		if err != nil {
			return nil, err
		}

		base, err := s.txs.NextEntryNumber(ctx)
		if err != nil {
			return nil, err
		}

		seenReturned := returned.UpdatedAt
		seenReplacement := replacement.UpdatedAt
		if err := returned.MarkReturned(); err != nil {
			return nil, err
		}
		if err := replacement.Reserve(); err != nil {
			return nil, err
		}

		returnDealer := input.Dealer
		if returnDealer == "" {
			returnDealer = linkage.Dealer
		}
		returnTx := inventory.NewTransaction(returned, inventory.TypeStockOut, inventory.StatusReturned).
			WithOrder(linkage.OrderNumber, returnDealer, linkage.Client)
		returnTx.EntryNumber = base
		returnTx.Remarks = input.Remarks
		returnTx.CreatedByUID = input.CreatedByUID
		if !input.Date.IsZero() {
			returnTx.Date = input.Date
		}

		replacementTx := inventory.NewTransaction(replacement, inventory.TypeStockOut, inventory.StatusReserved).
			WithOrder(linkage.OrderNumber, linkage.Dealer, linkage.Client)
		replacementTx.EntryNumber = base + 1
		replacementTx.CreatedByUID = input.CreatedByUID
		if !input.Date.IsZero() {
			replacementTx.Date = input.Date
		}

		for _, tx := range []*inventory.Transaction{returnTx, replacementTx} {
			if err := tx.Validate(); err != nil {
				return nil, err
			}
		}

		batch := s.uow.NewBatch()
		batch.SetItemStatus(returned.SerialNumber, inventory.StatusReturned, seenReturned, returned.UpdatedAt)
		batch.SetItemStatus(replacement.SerialNumber, inventory.StatusReserved, seenReplacement, replacement.UpdatedAt)
		batch.CreateTransaction(returnTx)
		batch.CreateTransaction(replacementTx)

		if linkage.OrderNumber != "" {
			ord, err := s.orders.FindByOrderNumber(ctx, linkage.OrderNumber)
			if err == nil {
				ord.AppendTransactions(returnTx.EntryNumber, replacementTx.EntryNumber)
				batch.SaveOrder(ord)
			} else if !errors.Is(err, shared.ErrNotFound) {
				return nil, err
			}
		}

		err = batch.Commit(ctx)
		if err == nil {
			s.logger.Info("return/replacement committed",
				zap.String("returned", returned.SerialNumber),
				zap.String("replacement", replacement.SerialNumber),
				zap.String("order_number", linkage.OrderNumber))
			return &ReturnResult{
				ReturnedSerial:    returned.SerialNumber,
				ReplacementSerial: replacement.SerialNumber,
				OrderNumber:       linkage.OrderNumber,
				ReturnEntry:       returnTx.EntryNumber,
				ReplacementEntry:  replacementTx.EntryNumber,
			}, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("return commit conflict, retrying",
			zap.String("returned", input.ReturnedSerial),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

type orderLinkage struct {
	OrderNumber string
	Dealer      string
	Client      string
}

// reservationLinkage recovers the order association the returned item held
// at its most recent reservation, by replaying its history.
func (s *ReturnService) reservationLinkage(ctx context.Context, serialNumber string) (orderLinkage, error) {
	history, err := s.txs.FindBySerial(ctx, serialNumber)
	if err != nil {
		return orderLinkage{}, err
	}
	// History is in entry-number order; walk backwards to the latest entry
	// that carries order linkage.
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].OrderNumber != "" {
			return orderLinkage{
				OrderNumber: history[i].OrderNumber,
				Dealer:      history[i].Dealer,
				Client:      history[i].Client,
			}, nil
		}
	}
	return orderLinkage{}, nil
}
