package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	"github.com/serialtrack/backend/internal/domain/inventory"
	"github.com/serialtrack/backend/internal/interfaces/http/dto"
	"github.com/serialtrack/backend/internal/interfaces/http/router"
)

// InventoryHandler handles item ledger API endpoints
type InventoryHandler struct {
	BaseHandler
	ledger  *invapp.LedgerService
	returns *invapp.ReturnService
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(ledger *invapp.LedgerService, returns *invapp.ReturnService) *InventoryHandler {
	return &InventoryHandler{
		ledger:  ledger,
		returns: returns,
	}
}

// RegisterRoutes registers inventory routes
func (h *InventoryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	items := rg.Group("/inventory/items")
	{
		items.POST("", h.StockIn)
		items.GET("", h.ListByStatus)
		items.GET("/:serial", h.GetItem)
		items.GET("/:serial/history", h.GetHistory)
		items.GET("/:serial/consistency", h.CheckConsistency)
	}
	rg.POST("/inventory/returns", h.ProcessReturn)
}

var _ router.RouteRegistrar = (*InventoryHandler)(nil)

// StockInRequest registers a new serialized item
type StockInRequest struct {
	SerialNumber      string `json:"serial_number" binding:"required"`
	EquipmentCategory string `json:"equipment_category" binding:"required"`
	Model             string `json:"model" binding:"required"`
	Size              string `json:"size"`
	Batch             string `json:"batch"`
	Remarks           string `json:"remarks"`
	Location          string `json:"location" binding:"required"`
	WarrantyType      string `json:"warranty_type"`
	Date              string `json:"date"`
}

// ReturnRequest swaps a returned serial for a replacement
type ReturnRequest struct {
	ReturnedSerial    string `json:"returned_serial" binding:"required"`
	ReplacementSerial string `json:"replacement_serial" binding:"required"`
	Dealer            string `json:"dealer"`
	Remarks           string `json:"remarks"`
	Date              string `json:"date"`
}

// StockIn registers a serialized item and writes its Stock_In log entry
func (h *InventoryHandler) StockIn(c *gin.Context) {
	var req StockInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.BadRequest(c, "Invalid date: "+req.Date)
		return
	}

	serial, err := h.ledger.StockIn(c.Request.Context(), invapp.StockInInput{
		SerialNumber:      req.SerialNumber,
		EquipmentCategory: req.EquipmentCategory,
		Model:             req.Model,
		Size:              req.Size,
		Batch:             req.Batch,
		Remarks:           req.Remarks,
		Location:          req.Location,
		WarrantyType:      req.WarrantyType,
		Date:              date,
		CreatedByUID:      getUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, gin.H{"serial_number": serial})
}

// GetItem returns one item by serial number
func (h *InventoryHandler) GetItem(c *gin.Context) {
	item, err := h.ledger.Item(c.Request.Context(), c.Param("serial"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// ListByStatus returns items in a given lifecycle status, cursor paginated
func (h *InventoryHandler) ListByStatus(c *gin.Context) {
	status := inventory.ItemStatus(c.Query("status"))
	if !status.Valid() {
		h.BadRequest(c, "Unknown status: "+c.Query("status"))
		return
	}

	list := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&list); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	list.Normalize()

	items, err := h.ledger.ItemsByStatus(c.Request.Context(), status, list.Limit, list.StartAfter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	// The cursor advances over the unfiltered page, so a category filter may
	// return short pages without exhausting the listing.
	nextToken := ""
	if len(items) == list.Limit {
		nextToken = items[len(items)-1].SerialNumber
	}

	if category := c.Query("category"); category != "" {
		filtered := items[:0]
		for _, item := range items {
			if strings.EqualFold(item.EquipmentCategory, category) {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}

	h.List(c, items, len(items), list.Limit, nextToken)
}

// GetHistory returns the full transaction log of one serial, oldest first
func (h *InventoryHandler) GetHistory(c *gin.Context) {
	txs, err := h.ledger.History(c.Request.Context(), c.Param("serial"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, txs)
}

// CheckConsistency replays the serial's log and compares the derived status
// against the stored projection
func (h *InventoryHandler) CheckConsistency(c *gin.Context) {
	report, err := h.ledger.CheckConsistency(c.Request.Context(), c.Param("serial"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// ProcessReturn marks a serial returned and reserves its replacement in the
// same commit
func (h *InventoryHandler) ProcessReturn(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.BadRequest(c, "Invalid date: "+req.Date)
		return
	}

	result, err := h.returns.ProcessReturn(c.Request.Context(), invapp.ReturnInput{
		ReturnedSerial:    req.ReturnedSerial,
		ReplacementSerial: req.ReplacementSerial,
		Dealer:            req.Dealer,
		Remarks:           req.Remarks,
		Date:              date,
		CreatedByUID:      getUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// parseDate accepts RFC3339 or a bare calendar date. Empty means "now",
// resolved downstream.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
