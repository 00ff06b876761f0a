package handler

import (
	"mime/multipart"

	"github.com/gin-gonic/gin"

	invapp "github.com/serialtrack/backend/internal/application/inventory"
	orderapp "github.com/serialtrack/backend/internal/application/order"
	"github.com/serialtrack/backend/internal/domain/order"
	"github.com/serialtrack/backend/internal/interfaces/http/dto"
	"github.com/serialtrack/backend/internal/interfaces/http/router"
)

// OrderHandler handles order lifecycle API endpoints
type OrderHandler struct {
	BaseHandler
	ledger *invapp.LedgerService
	orders *orderapp.OrderService
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(ledger *invapp.LedgerService, orders *orderapp.OrderService) *OrderHandler {
	return &OrderHandler{
		ledger: ledger,
		orders: orders,
	}
}

// RegisterRoutes registers order routes
func (h *OrderHandler) RegisterRoutes(rg *gin.RouterGroup) {
	orders := rg.Group("/orders")
	{
		orders.POST("", h.Reserve)
		orders.GET("", h.ListByDealer)
		orders.GET("/:orderNumber", h.GetOrder)

		orders.POST("/:orderNumber/invoice", h.AttachInvoice)
		orders.DELETE("/:orderNumber/invoice", h.RemoveInvoice)
		orders.GET("/:orderNumber/invoice/url", h.InvoiceURL)

		orders.POST("/:orderNumber/delivery", h.IssueDelivery)
		orders.POST("/:orderNumber/delivery/confirm", h.ConfirmDelivery)
		orders.DELETE("/:orderNumber/delivery", h.RemoveDeliveryData)
		orders.GET("/:orderNumber/delivery/url", h.DeliveryNoteURL)
	}
}

var _ router.RouteRegistrar = (*OrderHandler)(nil)

// ReserveRequest reserves a set of serials against one order
type ReserveRequest struct {
	OrderNumber   string   `json:"order_number" binding:"required"`
	SerialNumbers []string `json:"serial_numbers" binding:"required,min=1,dive,required"`
	Dealer        string   `json:"dealer" binding:"required"`
	Client        string   `json:"client"`
	Location      string   `json:"location" binding:"required"`
	Date          string   `json:"date"`
}

// ConfirmDeliveryRequest confirms physical delivery
type ConfirmDeliveryRequest struct {
	Date string `json:"date"`
}

// Reserve flips the requested serials to Reserved and creates or extends
// the order, all in one commit
func (h *OrderHandler) Reserve(c *gin.Context) {
	var req ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindingError(c, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.BadRequest(c, "Invalid date: "+req.Date)
		return
	}

	result, err := h.ledger.Reserve(c.Request.Context(), invapp.ReserveInput{
		SerialNumbers: req.SerialNumbers,
		OrderNumber:   req.OrderNumber,
		Dealer:        req.Dealer,
		Client:        req.Client,
		Location:      req.Location,
		Date:          date,
		CreatedByUID:  getUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, result)
}

// GetOrder returns one order by order number. With include=transactions the
// order's log entries are resolved and returned alongside it.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	if c.Query("include") == "transactions" {
		detail, err := h.orders.Detail(c.Request.Context(), c.Param("orderNumber"))
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, detail)
		return
	}

	ord, err := h.orders.Order(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ord)
}

// ListByDealer returns a dealer's orders, cursor paginated
func (h *OrderHandler) ListByDealer(c *gin.Context) {
	dealer := c.Query("dealer")
	if dealer == "" {
		h.BadRequest(c, "Query parameter dealer is required")
		return
	}

	list := dto.DefaultListRequest()
	if err := c.ShouldBindQuery(&list); err != nil {
		h.HandleBindingError(c, err)
		return
	}
	list.Normalize()

	orders, err := h.orders.OrdersByDealer(c.Request.Context(), dealer, list.Limit, list.StartAfter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	nextToken := ""
	if len(orders) == list.Limit {
		nextToken = orders[len(orders)-1].OrderNumber
	}
	h.List(c, orders, len(orders), list.Limit, nextToken)
}

// AttachInvoice uploads the invoice document and invoices the order
func (h *OrderHandler) AttachInvoice(c *gin.Context) {
	doc, file, ok := h.formDocument(c)
	if !ok {
		return
	}
	defer file.Close()

	date, err := parseDate(c.PostForm("date"))
	if err != nil {
		h.BadRequest(c, "Invalid date: "+c.PostForm("date"))
		return
	}

	result, err := h.orders.AttachInvoice(c.Request.Context(), orderapp.AttachInvoiceInput{
		OrderNumber:  c.Param("orderNumber"),
		Document:     doc,
		Date:         date,
		CreatedByUID: getUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RemoveInvoice reverts the order to Reserved and deletes the invoice file
func (h *OrderHandler) RemoveInvoice(c *gin.Context) {
	result, err := h.orders.RemoveInvoice(c.Request.Context(), c.Param("orderNumber"), getUserID(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// IssueDelivery uploads the delivery note and marks the delivery issued
func (h *OrderHandler) IssueDelivery(c *gin.Context) {
	doc, file, ok := h.formDocument(c)
	if !ok {
		return
	}
	defer file.Close()

	result, err := h.orders.IssueDelivery(c.Request.Context(), orderapp.IssueDeliveryInput{
		OrderNumber: c.Param("orderNumber"),
		Document:    doc,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ConfirmDelivery marks the order delivered and flips its remaining items
func (h *OrderHandler) ConfirmDelivery(c *gin.Context) {
	// The body is optional; confirming without one stamps the current time.
	var req ConfirmDeliveryRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.HandleBindingError(c, err)
			return
		}
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.BadRequest(c, "Invalid date: "+req.Date)
		return
	}

	result, err := h.orders.ConfirmDelivery(c.Request.Context(), orderapp.ConfirmDeliveryInput{
		OrderNumber:  c.Param("orderNumber"),
		Date:         date,
		CreatedByUID: getUserID(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// RemoveDeliveryData reverts the delivery axis to Pending and deletes the
// delivery note
func (h *OrderHandler) RemoveDeliveryData(c *gin.Context) {
	result, err := h.orders.RemoveDeliveryData(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// InvoiceURL returns a short-lived download URL for the invoice document
func (h *OrderHandler) InvoiceURL(c *gin.Context) {
	h.documentURL(c, func(ord *order.Order) *order.DocumentRef { return ord.InvoiceDoc })
}

// DeliveryNoteURL returns a short-lived download URL for the delivery note
func (h *OrderHandler) DeliveryNoteURL(c *gin.Context) {
	h.documentURL(c, func(ord *order.Order) *order.DocumentRef { return ord.DeliveryDoc })
}

func (h *OrderHandler) documentURL(c *gin.Context, pick func(*order.Order) *order.DocumentRef) {
	ord, err := h.orders.Order(c.Request.Context(), c.Param("orderNumber"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	doc := pick(ord)
	if doc == nil {
		h.BadRequest(c, "Order has no such document")
		return
	}

	url, expiresAt, err := h.orders.DownloadURL(c.Request.Context(), doc.Path)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"url": url, "expires_at": expiresAt})
}

// formDocument extracts the uploaded file from a multipart form. On failure
// the error response is already written and ok is false.
func (h *OrderHandler) formDocument(c *gin.Context) (orderapp.DocumentUpload, multipart.File, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.BadRequest(c, "Multipart field 'file' is required")
		return orderapp.DocumentUpload{}, nil, false
	}

	return orderapp.DocumentUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}, file, true
}
