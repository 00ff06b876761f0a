package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/domain/shared"
	"github.com/serialtrack/backend/internal/infrastructure/docstore"
)

// OrderRepository implements order.Repository on the docstore port.
type OrderRepository struct {
	store docstore.Store
}

// NewOrderRepository creates an OrderRepository.
func NewOrderRepository(store docstore.Store) *OrderRepository {
	return &OrderRepository{store: store}
}

// Ensure OrderRepository implements the domain interface
var _ order.Repository = (*OrderRepository)(nil)

// FindByOrderNumber finds an order by its number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	doc, err := r.store.Collection(OrdersCollection).Get(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderNumber, shared.ErrNotFound)
		}
		return nil, storeFault("find order "+orderNumber, err)
	}
	o := docToOrder(doc.Data)
	return &o, nil
}

// FindByDealer pages through a dealer's orders, ordered by order number.
func (r *OrderRepository) FindByDealer(ctx context.Context, dealer string, limit int, startAfter string) ([]order.Order, error) {
	q := r.store.Collection(OrdersCollection).Query().
		Where("dealer", "==", dealer).
		Limit(limit)
	if startAfter != "" {
		q = q.StartAfter(startAfter)
	}
	docs, err := q.GetAll(ctx)
	if err != nil {
		return nil, storeFault("find orders for dealer "+dealer, err)
	}
	orders := make([]order.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, docToOrder(doc.Data))
	}
	return orders, nil
}
