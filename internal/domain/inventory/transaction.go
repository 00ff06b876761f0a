package inventory

import (
	"sort"
	"strings"
	"time"

	"github.com/serialtrack/backend/internal/domain/shared"
)

// TransactionType distinguishes stock movements into and out of inventory.
type TransactionType string

const (
	TypeStockIn  TransactionType = "stock_in"
	TypeStockOut TransactionType = "stock_out"
)

// FirstEntryNumber is assigned when the log is empty or the max-entry lookup
// fails. The fallback is documented behavior, not a silent default.
const FirstEntryNumber int64 = 1

// Transaction is one append-only record of a lifecycle event on an item.
// Transactions are immutable once written; corrections are new transactions.
// A serial number accumulates multiple StockOut transactions over its life
// (Reserved and Delivered are separate records), which is what makes replay
// of the log well-defined.
type Transaction struct {
	EntryNumber         int64           `json:"entry_number"`
	SerialNumber        string          `json:"serial_number"`
	Type                TransactionType `json:"type"`
	Status              ItemStatus      `json:"status"`
	EquipmentCategory   string          `json:"equipment_category"`
	Model               string          `json:"model"`
	Size                string          `json:"size,omitempty"`
	Quantity            int             `json:"quantity"`
	Location            string          `json:"location"`
	WarrantyType        string          `json:"warranty_type,omitempty"`
	WarrantyPeriodYears int             `json:"warranty_period_years"`
	OrderNumber         string          `json:"order_number,omitempty"`
	Dealer              string          `json:"dealer,omitempty"`
	Client              string          `json:"client,omitempty"`
	Date                time.Time       `json:"date"`
	Remarks             string          `json:"remarks,omitempty"`
	CreatedByUID        string          `json:"created_by_uid"`
}

// WarrantyPeriods is the default warranty catalog: type to period in years.
// Deployments override it through configuration.
var WarrantyPeriods = map[string]int{
	"standard": 1,
	"extended": 3,
	"premium":  5,
}

// WarrantyYears returns the default warranty period for a warranty type.
// Unknown or empty types carry no warranty.
func WarrantyYears(warrantyType string) int {
	return WarrantyPeriods[strings.ToLower(strings.TrimSpace(warrantyType))]
}

// NewTransaction builds a transaction for an item event. The entry number is
// assigned by the persistence layer at commit time; callers leave it zero.
func NewTransaction(item *InventoryItem, txType TransactionType, status ItemStatus) *Transaction {
	return &Transaction{
		SerialNumber:      item.SerialNumber,
		Type:              txType,
		Status:            status,
		EquipmentCategory: item.EquipmentCategory,
		Model:             item.Model,
		Size:              item.Size,
		Quantity:          1,
		Date:              time.Now(),
	}
}

// WithOrder attaches order linkage to the transaction.
func (t *Transaction) WithOrder(orderNumber, dealer, client string) *Transaction {
	t.OrderNumber = orderNumber
	t.Dealer = dealer
	t.Client = client
	return t
}

// WithWarranty sets the warranty type and its default-catalog period.
func (t *Transaction) WithWarranty(warrantyType string) *Transaction {
	return t.WithWarrantyPeriod(warrantyType, WarrantyYears(warrantyType))
}

// WithWarrantyPeriod sets the warranty type and an explicit period, for
// callers resolving the period against a configured catalog.
func (t *Transaction) WithWarrantyPeriod(warrantyType string, years int) *Transaction {
	t.WarrantyType = warrantyType
	t.WarrantyPeriodYears = years
	return t
}

// Validate checks the invariants that must hold before a transaction is
// committed to the log.
func (t *Transaction) Validate() error {
	if t.SerialNumber == "" {
		return shared.NewDomainError("INVALID_INPUT", "Transaction requires a serial number")
	}
	if t.Type != TypeStockIn && t.Type != TypeStockOut {
		return shared.NewDomainError("INVALID_INPUT", "Unknown transaction type")
	}
	if !t.Status.Valid() {
		return shared.NewDomainError("INVALID_INPUT", "Unknown transaction status")
	}
	if t.Quantity <= 0 {
		return shared.NewDomainError("INVALID_INPUT", "Transaction quantity must be positive")
	}
	return nil
}

// DeriveStatus replays a serial's transactions and returns the status the
// ledger projection should hold: the status recorded by the latest applicable
// transaction, in entry-number order. This is the re-derivation rule the
// denormalized InventoryItem.Status must always agree with.
func DeriveStatus(transactions []Transaction) (ItemStatus, bool) {
	if len(transactions) == 0 {
		return "", false
	}
	sorted := make([]Transaction, len(transactions))
	copy(sorted, transactions)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].EntryNumber < sorted[b].EntryNumber
	})
	return sorted[len(sorted)-1].Status, true
}
