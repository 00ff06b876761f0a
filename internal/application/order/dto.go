package order

import (
	"io"
	"time"
)

// DocumentUpload carries the file attached to an order transition.
type DocumentUpload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// AttachInvoiceInput invoices an order with its invoice document.
type AttachInvoiceInput struct {
	OrderNumber  string
	Document     DocumentUpload
	Date         time.Time
	CreatedByUID string
}

// IssueDeliveryInput issues delivery paperwork for an order.
type IssueDeliveryInput struct {
	OrderNumber string
	Document    DocumentUpload
}

// ConfirmDeliveryInput confirms physical delivery of an order's items.
type ConfirmDeliveryInput struct {
	OrderNumber  string
	Date         time.Time
	CreatedByUID string
}

// TransitionResult reports an order transition and the log entries it wrote.
type TransitionResult struct {
	OrderNumber  string  `json:"order_number"`
	EntryNumbers []int64 `json:"entry_numbers,omitempty"`
	DocumentURL  string  `json:"document_url,omitempty"`
}
