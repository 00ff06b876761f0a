package order

import (
	"strings"
	"time"

	"github.com/serialtrack/backend/internal/domain/shared"
)

// InvoiceStatus tracks the invoicing axis of an order.
type InvoiceStatus string

const (
	InvoiceReserved InvoiceStatus = "reserved"
	InvoiceInvoiced InvoiceStatus = "invoiced"
)

// DeliveryStatus tracks the delivery axis of an order. The two axes are
// independent: advancing one never implicitly advances the other. The legacy
// single-status design conflated them, which this model deliberately fixes.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryIssued    DeliveryStatus = "issued"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// DocumentRef points at an uploaded document (invoice or delivery note).
// Orders store only the reference returned by the object storage
// collaborator, never raw bytes.
type DocumentRef struct {
	URL        string    `json:"url"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Order groups reservations under one order number. It references the
// transaction log by entry number; item details are never duplicated here.
type Order struct {
	OrderNumber    string         `json:"order_number"`
	Dealer         string         `json:"dealer"`
	Client         string         `json:"client"`
	Location       string         `json:"location"`
	TransactionIDs []int64        `json:"transaction_ids"`
	InvoiceStatus  InvoiceStatus  `json:"invoice_status"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	InvoiceDoc     *DocumentRef   `json:"invoice_doc,omitempty"`
	DeliveryDoc    *DocumentRef   `json:"delivery_doc,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewOrder creates an order in the initial (Reserved, Pending) state.
func NewOrder(orderNumber, dealer, client, location string) (*Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order number is required")
	}
	now := time.Now()
	return &Order{
		OrderNumber:    orderNumber,
		Dealer:         dealer,
		Client:         client,
		Location:       location,
		TransactionIDs: make([]int64, 0),
		InvoiceStatus:  InvoiceReserved,
		DeliveryStatus: DeliveryPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AppendTransactions adds entry numbers to the order's reference list,
// preserving order and skipping duplicates.
func (o *Order) AppendTransactions(entryNumbers ...int64) {
	seen := make(map[int64]struct{}, len(o.TransactionIDs))
	for _, id := range o.TransactionIDs {
		seen[id] = struct{}{}
	}
	for _, id := range entryNumbers {
		if _, ok := seen[id]; ok {
			continue
		}
		o.TransactionIDs = append(o.TransactionIDs, id)
		seen[id] = struct{}{}
	}
	o.touch()
}

// MarkInvoiced advances the invoicing axis and records the invoice document.
// The delivery axis is untouched.
func (o *Order) MarkInvoiced(doc DocumentRef) error {
	if o.InvoiceStatus != InvoiceReserved {
		return shared.NewDomainError("INVALID_STATE",
			"Order "+o.OrderNumber+" is already invoiced")
	}
	o.InvoiceStatus = InvoiceInvoiced
	o.InvoiceDoc = &doc
	o.touch()
	return nil
}

// RevertInvoice rolls the invoicing axis back to Reserved and drops the
// invoice document reference. The delivery axis is untouched.
func (o *Order) RevertInvoice() error {
	if o.InvoiceStatus != InvoiceInvoiced {
		return shared.NewDomainError("INVALID_STATE",
			"Order "+o.OrderNumber+" has no invoice to revert")
	}
	o.InvoiceStatus = InvoiceReserved
	o.InvoiceDoc = nil
	o.touch()
	return nil
}

// IssueDelivery advances the delivery axis Pending -> Issued and records the
// delivery note document.
func (o *Order) IssueDelivery(doc DocumentRef) error {
	if o.DeliveryStatus != DeliveryPending {
		return shared.NewDomainError("INVALID_STATE",
			"Order "+o.OrderNumber+" delivery is "+string(o.DeliveryStatus)+", not pending")
	}
	o.DeliveryStatus = DeliveryIssued
	o.DeliveryDoc = &doc
	o.touch()
	return nil
}

// ConfirmDelivery advances the delivery axis Issued -> Delivered.
func (o *Order) ConfirmDelivery() error {
	if o.DeliveryStatus != DeliveryIssued {
		return shared.NewDomainError("INVALID_STATE",
			"Order "+o.OrderNumber+" delivery is "+string(o.DeliveryStatus)+", not issued")
	}
	o.DeliveryStatus = DeliveryDelivered
	o.touch()
	return nil
}

// RemoveDeliveryData reverts the delivery axis to Pending and drops the
// delivery document reference. Invoicing state and previously written
// transactions are never touched by this operation.
func (o *Order) RemoveDeliveryData() error {
	if o.DeliveryStatus == DeliveryPending {
		return shared.NewDomainError("INVALID_STATE",
			"Order "+o.OrderNumber+" has no delivery data to remove")
	}
	o.DeliveryStatus = DeliveryPending
	o.DeliveryDoc = nil
	o.touch()
	return nil
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now()
}
