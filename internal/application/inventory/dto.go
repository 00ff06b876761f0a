package inventory

import (
	"time"

	"github.com/serialtrack/backend/internal/domain/inventory"
)

// StockInInput carries the attributes of a stock-in operation.
type StockInInput struct {
	SerialNumber      string
	EquipmentCategory string
	Model             string
	Size              string
	Batch             string
	Remarks           string
	Location          string
	WarrantyType      string
	Date              time.Time
	CreatedByUID      string
}

// ReserveInput reserves a set of serials against one order.
type ReserveInput struct {
	SerialNumbers []string
	OrderNumber   string
	Dealer        string
	Client        string
	Location      string
	Date          time.Time
	CreatedByUID  string
}

// ReservationResult reports the committed reservation.
type ReservationResult struct {
	OrderNumber  string  `json:"order_number"`
	EntryNumbers []int64 `json:"entry_numbers"`
}

// ReturnInput swaps a returned serial for a replacement within its order.
type ReturnInput struct {
	ReturnedSerial    string
	ReplacementSerial string
	Dealer            string
	Remarks           string
	Date              time.Time
	CreatedByUID      string
}

// ReturnResult reports the committed return/replacement.
type ReturnResult struct {
	ReturnedSerial    string `json:"returned_serial"`
	ReplacementSerial string `json:"replacement_serial"`
	OrderNumber       string `json:"order_number,omitempty"`
	ReturnEntry       int64  `json:"return_entry"`
	ReplacementEntry  int64  `json:"replacement_entry"`
}

// ConsistencyReport compares the ledger projection of one serial against the
// status derived by replaying its transaction log.
type ConsistencyReport struct {
	SerialNumber     string               `json:"serial_number"`
	ProjectedStatus  inventory.ItemStatus `json:"projected_status"`
	DerivedStatus    inventory.ItemStatus `json:"derived_status"`
	TransactionCount int                  `json:"transaction_count"`
	Consistent       bool                 `json:"consistent"`
}
