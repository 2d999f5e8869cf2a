package entity

import (
	"time"

	"github.com/google/uuid"
)

// SupplierInvoice represents a stored supplier invoice for data transfer between layers.
type SupplierInvoice struct {
	ID            uuid.UUID    `json:"id"`
	ProjectID     uuid.UUID    `json:"project_id"`
	Filename      string       `json:"filename"`
	ContentHash   string       `json:"content_hash"`
	Method        string       `json:"method"`
	VendorName    string       `json:"vendor_name"`
	InvoiceNumber string       `json:"invoice_number"`
	InvoiceDate   time.Time    `json:"invoice_date"`
	Subtotal      float64      `json:"subtotal"`
	Tax           float64      `json:"tax"`
	Discount      float64      `json:"discount"`
	TotalSum      float64      `json:"total_sum"`
	Items         []RecordItem `json:"items"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ExtractionRun records one attempt to turn an uploaded file into an invoice.
type ExtractionRun struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	Filename     string     `json:"filename"`
	ContentHash  string     `json:"content_hash"`
	Method       string     `json:"method"`
	Status       string     `json:"status"`
	InvoiceID    *uuid.UUID `json:"invoice_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
