// Package persistence implements the domain repositories and the atomic
// unit-of-work writer on top of the document-store port. State lives in three
// collections: items keyed by serial number, transactions keyed by
// zero-padded entry number, orders keyed by order number.
package persistence

import (
	"fmt"
	"time"

	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/domain/order"
)

// Collection names.
const (
	ItemsCollection        = "items"
	TransactionsCollection = "transactions"
	OrdersCollection       = "orders"
)

// entryKey formats an entry number as a fixed-width document key so that key
// order matches numeric order and cursors stay exact.
func entryKey(entryNumber int64) string {
	return fmt.Sprintf("%012d", entryNumber)
}

func itemToDoc(item *inventory.InventoryItem) map[string]any {
	return map[string]any{
		"serial_number":      item.SerialNumber,
		"equipment_category": item.EquipmentCategory,
		"model":              item.Model,
		"size":               item.Size,
		"batch":              item.Batch,
		"remarks":            item.Remarks,
		"status":             string(item.Status),
		"created_at":         item.CreatedAt,
		"updated_at":         item.UpdatedAt,
	}
}

func docToItem(data map[string]any) inventory.InventoryItem {
	return inventory.InventoryItem{
		SerialNumber:      asString(data["serial_number"]),
		EquipmentCategory: asString(data["equipment_category"]),
		Model:             asString(data["model"]),
		Size:              asString(data["size"]),
		Batch:             asString(data["batch"]),
		Remarks:           asString(data["remarks"]),
		Status:            inventory.ItemStatus(asString(data["status"])),
		CreatedAt:         asTime(data["created_at"]),
		UpdatedAt:         asTime(data["updated_at"]),
	}
}

func transactionToDoc(tx *inventory.Transaction) map[string]any {
	doc := map[string]any{
		"entry_number":          tx.EntryNumber,
		"serial_number":         tx.SerialNumber,
		"type":                  string(tx.Type),
		"status":                string(tx.Status),
		"equipment_category":    tx.EquipmentCategory,
		"model":                 tx.Model,
		"size":                  tx.Size,
		"quantity":              int64(tx.Quantity),
		"location":              tx.Location,
		"warranty_type":         tx.WarrantyType,
		"warranty_period_years": int64(tx.WarrantyPeriodYears),
		"order_number":          tx.OrderNumber,
		"dealer":                tx.Dealer,
		"client":                tx.Client,
		"remarks":               tx.Remarks,
		"created_by_uid":        tx.CreatedByUID,
	}
	// A zero date is stored as an absent field; date-bounded scans must
	// exclude such entries rather than defaulting them to epoch or now.
	if !tx.Date.IsZero() {
		doc["date"] = tx.Date
	}
	return doc
}

func docToTransaction(data map[string]any) inventory.Transaction {
	return inventory.Transaction{
		EntryNumber:         asInt64(data["entry_number"]),
		SerialNumber:        asString(data["serial_number"]),
		Type:                inventory.TransactionType(asString(data["type"])),
		Status:              inventory.ItemStatus(asString(data["status"])),
		EquipmentCategory:   asString(data["equipment_category"]),
		Model:               asString(data["model"]),
		Size:                asString(data["size"]),
		Quantity:            int(asInt64(data["quantity"])),
		Location:            asString(data["location"]),
		WarrantyType:        asString(data["warranty_type"]),
		WarrantyPeriodYears: int(asInt64(data["warranty_period_years"])),
		OrderNumber:         asString(data["order_number"]),
		Dealer:              asString(data["dealer"]),
		Client:              asString(data["client"]),
		Date:                asTime(data["date"]),
		Remarks:             asString(data["remarks"]),
		CreatedByUID:        asString(data["created_by_uid"]),
	}
}

func orderToDoc(o *order.Order) map[string]any {
	doc := map[string]any{
		"order_number":    o.OrderNumber,
		"dealer":          o.Dealer,
		"client":          o.Client,
		"location":        o.Location,
		"transaction_ids": append([]int64(nil), o.TransactionIDs...),
		"invoice_status":  string(o.InvoiceStatus),
		"delivery_status": string(o.DeliveryStatus),
		"created_at":      o.CreatedAt,
		"updated_at":      o.UpdatedAt,
	}
	if o.InvoiceDoc != nil {
		doc["invoice_doc"] = docRefToMap(*o.InvoiceDoc)
	}
	if o.DeliveryDoc != nil {
		doc["delivery_doc"] = docRefToMap(*o.DeliveryDoc)
	}
	return doc
}

func docToOrder(data map[string]any) order.Order {
	o := order.Order{
		OrderNumber:    asString(data["order_number"]),
		Dealer:         asString(data["dealer"]),
		Client:         asString(data["client"]),
		Location:       asString(data["location"]),
		TransactionIDs: asInt64Slice(data["transaction_ids"]),
		InvoiceStatus:  order.InvoiceStatus(asString(data["invoice_status"])),
		DeliveryStatus: order.DeliveryStatus(asString(data["delivery_status"])),
		CreatedAt:      asTime(data["created_at"]),
		UpdatedAt:      asTime(data["updated_at"]),
	}
	if ref, ok := mapToDocRef(data["invoice_doc"]); ok {
		o.InvoiceDoc = &ref
	}
	if ref, ok := mapToDocRef(data["delivery_doc"]); ok {
		o.DeliveryDoc = &ref
	}
	return o
}

func docRefToMap(ref order.DocumentRef) map[string]any {
	return map[string]any{
		"url":         ref.URL,
		"path":        ref.Path,
		"uploaded_at": ref.UploadedAt,
	}
}

func mapToDocRef(v any) (order.DocumentRef, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return order.DocumentRef{}, false
	}
	return order.DocumentRef{
		URL:        asString(m["url"]),
		Path:       asString(m["path"]),
		UploadedAt: asTime(m["uploaded_at"]),
	}, true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

// asInt64Slice handles both the native []int64 written by the in-memory
// driver and the []any a remote driver decodes arrays into.
func asInt64Slice(v any) []int64 {
	switch s := v.(type) {
	case []int64:
		return append([]int64(nil), s...)
	case []any:
		out := make([]int64, 0, len(s))
		for _, e := range s {
			out = append(out, asInt64(e))
		}
		return out
	}
	return []int64{}
}
