package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransaction(t *testing.T) {
	item, err := NewInventoryItem("SN-001", "Panel", "P-6500", "65", "B2024-01", "")
	require.NoError(t, err)

	tx := NewTransaction(item, TypeStockOut, StatusReserved).
		WithOrder("ORD-1", "dealer-a", "client-a").
		WithWarranty("extended")

	assert.Zero(t, tx.EntryNumber, "entry number is assigned at commit time")
	assert.Equal(t, "SN-001", tx.SerialNumber)
	assert.Equal(t, TypeStockOut, tx.Type)
	assert.Equal(t, StatusReserved, tx.Status)
	assert.Equal(t, "Panel", tx.EquipmentCategory)
	assert.Equal(t, "65", tx.Size)
	assert.Equal(t, 1, tx.Quantity)
	assert.Equal(t, "ORD-1", tx.OrderNumber)
	assert.Equal(t, "dealer-a", tx.Dealer)
	assert.Equal(t, 3, tx.WarrantyPeriodYears)
	assert.NoError(t, tx.Validate())
}

func TestTransactionValidate(t *testing.T) {
	item, err := NewInventoryItem("SN-001", "Panel", "P-6500", "65", "B", "")
	require.NoError(t, err)

	t.Run("rejects unknown type", func(t *testing.T) {
		tx := NewTransaction(item, TransactionType("adjustment"), StatusActive)
		require.Error(t, tx.Validate())
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		tx := NewTransaction(item, TypeStockIn, ItemStatus("scrapped"))
		require.Error(t, tx.Validate())
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		tx := NewTransaction(item, TypeStockIn, StatusActive)
		tx.Quantity = 0
		require.Error(t, tx.Validate())
	})
}

func TestWarrantyYears(t *testing.T) {
	assert.Equal(t, 1, WarrantyYears("standard"))
	assert.Equal(t, 3, WarrantyYears("Extended"))
	assert.Equal(t, 5, WarrantyYears(" premium "))
	assert.Equal(t, 0, WarrantyYears(""))
	assert.Equal(t, 0, WarrantyYears("lifetime"))
}

func TestDeriveStatus(t *testing.T) {
	t.Run("empty history", func(t *testing.T) {
		_, ok := DeriveStatus(nil)
		assert.False(t, ok)
	})

	t.Run("latest entry wins regardless of slice order", func(t *testing.T) {
		history := []Transaction{
			{EntryNumber: 7, SerialNumber: "SN-1", Type: TypeStockOut, Status: StatusDelivered},
			{EntryNumber: 1, SerialNumber: "SN-1", Type: TypeStockIn, Status: StatusActive},
			{EntryNumber: 3, SerialNumber: "SN-1", Type: TypeStockOut, Status: StatusReserved},
		}
		status, ok := DeriveStatus(history)
		require.True(t, ok)
		assert.Equal(t, StatusDelivered, status)
	})

	t.Run("reserve then deliver leaves two stock-out entries", func(t *testing.T) {
		// The Reserved record survives delivery as an immutable audit point.
		history := []Transaction{
			{EntryNumber: 1, SerialNumber: "SN-1", Type: TypeStockIn, Status: StatusActive},
			{EntryNumber: 2, SerialNumber: "SN-1", Type: TypeStockOut, Status: StatusReserved},
			{EntryNumber: 5, SerialNumber: "SN-1", Type: TypeStockOut, Status: StatusDelivered},
		}
		status, ok := DeriveStatus(history)
		require.True(t, ok)
		assert.Equal(t, StatusDelivered, status)

		outs := 0
		for _, tx := range history {
			if tx.Type == TypeStockOut {
				outs++
			}
		}
		assert.Equal(t, 2, outs)
	})
}
