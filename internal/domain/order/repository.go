package order

import "context"

// Repository defines read access to orders. Mutations commit through the
// application layer's batched writers together with their ledger effects.
type Repository interface {
	// FindByOrderNumber finds an order by its number.
	FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)

	// FindByDealer pages through a dealer's orders. startAfter is the order
	// number of the last order of the previous page ("" for the first).
	FindByDealer(ctx context.Context, dealer string, limit int, startAfter string) ([]Order, error)
}
