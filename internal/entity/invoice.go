package entity

import "time"

// InvoiceFields is the structured shape either extraction strategy produces.
// Every string defaults to "" and every number to 0; Items is never nil.
type InvoiceFields struct {
	VendorName    string     `json:"vendorName"`
	InvoiceNumber string     `json:"invoiceNumber"`
	InvoiceDate   string     `json:"invoiceDate"` // dd/mm/yyyy
	Subtotal      float64    `json:"subtotal"`
	Tax           float64    `json:"tax"`
	Discount      float64    `json:"discount"`
	TotalSum      float64    `json:"totalSum"`
	Items         []LineItem `json:"items"`
}

// LineItem is one row of an invoice's itemized charges.
type LineItem struct {
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	ElementCost float64 `json:"elementCost"`
}

// NewInvoiceFields returns a fully defaulted field set.
func NewInvoiceFields() InvoiceFields {
	return InvoiceFields{Items: []LineItem{}}
}

// InvoiceRecord is the normalized record handed to the persistence layer.
type InvoiceRecord struct {
	VendorName    string       `json:"vendorName"`
	InvoiceNumber string       `json:"invoiceNumber"`
	InvoiceDate   time.Time    `json:"invoiceDate"`
	Subtotal      float64      `json:"subtotal"`
	Tax           float64      `json:"tax"`
	Discount      float64      `json:"discount"`
	TotalSum      float64      `json:"totalSum"`
	Items         []RecordItem `json:"items"`
}

// RecordItem is a line item keyed by a generated identifier.
type RecordItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	ElementCost float64 `json:"elementCost"`
}
