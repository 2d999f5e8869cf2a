package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrExtractionFailed is returned when the model call fails or neither the
// primary nor the repaired output matches the schema.
var ErrExtractionFailed = errors.New("model extraction failed")

// ModelInvoice is the field set the model returns, using the schema's names.
type ModelInvoice struct {
	VendorName  string          `json:"vendor_name"`
	InvoiceNo   string          `json:"invoice_no"`
	InvoiceDate string          `json:"invoice_date"` // dd/mm/yyyy
	Subtotal    float64         `json:"subtotal"`
	Tax         float64         `json:"tax"`
	Discount    float64         `json:"discount"`
	TotalSum    float64         `json:"total_sum"`
	Items       []ModelLineItem `json:"items"`
}

// ModelLineItem is one row of ModelInvoice.Items. Quantity is decoded as a
// number and rounded by the normalizer; models sometimes emit 10.0.
type ModelLineItem struct {
	Description string  `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	ElementCost float64 `json:"element_cost"`
}

// Completer sends a single prompt to a language model and returns its text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ParseError reports model output that could not be parsed against the schema.
type ParseError struct {
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
