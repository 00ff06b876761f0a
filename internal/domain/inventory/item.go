package inventory

import (
	"strings"
	"time"

	"github.com/serialtrack/backend/internal/domain/shared"
)

// ItemStatus is the denormalized lifecycle status of a serialized item.
// It is a projection of the item's transaction history: replaying the
// transactions for a serial must always yield the same value.
type ItemStatus string

const (
	// StatusActive means the item is in stock and free to be reserved.
	StatusActive ItemStatus = "active"
	// StatusReserved means the item is held against an order.
	StatusReserved ItemStatus = "reserved"
	// StatusInvoiced means the order holding the item has been invoiced
	// but the item has not yet been delivered.
	StatusInvoiced ItemStatus = "invoiced"
	// StatusDelivered means the item has left the warehouse.
	StatusDelivered ItemStatus = "delivered"
	// StatusReturned means the item came back through a return/replacement.
	StatusReturned ItemStatus = "returned"
)

// Valid reports whether s is one of the five enumerated statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusActive, StatusReserved, StatusInvoiced, StatusDelivered, StatusReturned:
		return true
	}
	return false
}

// CanReserve reports whether an item in this status may be reserved.
// Only Active items are reservable.
func (s ItemStatus) CanReserve() bool {
	return s == StatusActive
}

// CanReturn reports whether an item in this status may be returned.
// Returns only make sense after the item has been associated with an order.
func (s ItemStatus) CanReturn() bool {
	switch s {
	case StatusReserved, StatusInvoiced, StatusDelivered:
		return true
	}
	return false
}

// InventoryItem is one physical serialized unit. The serial number is the
// immutable identity; everything else is descriptive. Items are never
// physically deleted, only moved through statuses.
type InventoryItem struct {
	SerialNumber      string     `json:"serial_number"`
	EquipmentCategory string     `json:"equipment_category"`
	Model             string     `json:"model"`
	Size              string     `json:"size,omitempty"`
	Batch             string     `json:"batch"`
	Remarks           string     `json:"remarks,omitempty"`
	Status            ItemStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// NewInventoryItem creates an item in the Active status. Serial number,
// category and model are required; size is optional because some categories
// have no meaningful physical dimension.
func NewInventoryItem(serialNumber, category, model, size, batch, remarks string) (*InventoryItem, error) {
	serialNumber = strings.TrimSpace(serialNumber)
	if serialNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Serial number is required")
	}
	if strings.TrimSpace(category) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Equipment category is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Model is required")
	}

	now := time.Now()
	return &InventoryItem{
		SerialNumber:      serialNumber,
		EquipmentCategory: category,
		Model:             model,
		Size:              strings.TrimSpace(size),
		Batch:             batch,
		Remarks:           remarks,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Reserve moves the item to Reserved. Fails unless the item is Active.
func (i *InventoryItem) Reserve() error {
	if !i.Status.CanReserve() {
		return shared.NewDomainError("ITEM_UNAVAILABLE",
			"Item "+i.SerialNumber+" is "+string(i.Status)+", not active")
	}
	i.setStatus(StatusReserved)
	return nil
}

// MarkInvoiced moves a Reserved item to Invoiced when the holding order is
// invoiced. A Delivered or Returned item cannot be invoiced.
func (i *InventoryItem) MarkInvoiced() error {
	if i.Status != StatusReserved {
		return shared.NewDomainError("INVALID_STATE",
			"Item "+i.SerialNumber+" cannot be invoiced while "+string(i.Status))
	}
	i.setStatus(StatusInvoiced)
	return nil
}

// RevertInvoiced undoes MarkInvoiced when an invoice is rolled back.
func (i *InventoryItem) RevertInvoiced() error {
	if i.Status != StatusInvoiced {
		return shared.NewDomainError("INVALID_STATE",
			"Item "+i.SerialNumber+" is not invoiced")
	}
	i.setStatus(StatusReserved)
	return nil
}

// MarkDelivered moves the item to Delivered. Delivery is only valid once the
// item has been reserved (directly or via an invoiced order).
func (i *InventoryItem) MarkDelivered() error {
	if i.Status != StatusReserved && i.Status != StatusInvoiced {
		return shared.NewDomainError("INVALID_STATE",
			"Item "+i.SerialNumber+" cannot be delivered while "+string(i.Status))
	}
	i.setStatus(StatusDelivered)
	return nil
}

// MarkReturned moves the item to Returned as part of a return/replacement.
func (i *InventoryItem) MarkReturned() error {
	if !i.Status.CanReturn() {
		return shared.NewDomainError("INVALID_STATE",
			"Item "+i.SerialNumber+" cannot be returned while "+string(i.Status))
	}
	i.setStatus(StatusReturned)
	return nil
}

func (i *InventoryItem) setStatus(s ItemStatus) {
	i.Status = s
	i.UpdatedAt = time.Now()
}
