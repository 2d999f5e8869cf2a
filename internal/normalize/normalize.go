// Package normalize turns extracted invoice fields into the record handed to
// persistence. It performs no I/O and never fails.
package normalize

import (
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
	"github.com/joseph-ayodele/site-invoices/internal/llm"
)

// DateLayout is the dd/mm/yyyy form both extractors emit.
const DateLayout = "02/01/2006"

// Normalizer converts InvoiceFields and ModelInvoice values to InvoiceRecord.
type Normalizer struct {
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for invalid or missing dates.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithIDGenerator overrides line-item id generation.
func WithIDGenerator(newID func() string) Option {
	return func(n *Normalizer) { n.newID = newID }
}

// New returns a Normalizer with the real clock and random UUIDs.
func New(logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// FromFields normalizes heuristic parser output.
func (n *Normalizer) FromFields(f entity.InvoiceFields) entity.InvoiceRecord {
	rec := entity.InvoiceRecord{
		VendorName:    f.VendorName,
		InvoiceNumber: f.InvoiceNumber,
		InvoiceDate:   n.date(f.InvoiceDate),
		Subtotal:      f.Subtotal,
		Tax:           f.Tax,
		Discount:      f.Discount,
		TotalSum:      f.TotalSum,
		Items:         make([]entity.RecordItem, 0, len(f.Items)),
	}
	for _, it := range f.Items {
		rec.Items = append(rec.Items, entity.RecordItem{
			ID:          n.newID(),
			Description: it.Description,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			ElementCost: it.ElementCost,
		})
	}
	return rec
}

// FromModel renames the model's snake_case fields one-to-one and normalizes
// them like FromFields. Units outside the vocabulary become NR.
func (n *Normalizer) FromModel(m llm.ModelInvoice) entity.InvoiceRecord {
	f := entity.InvoiceFields{
		VendorName:    m.VendorName,
		InvoiceNumber: m.InvoiceNo,
		InvoiceDate:   m.InvoiceDate,
		Subtotal:      m.Subtotal,
		Tax:           m.Tax,
		Discount:      m.Discount,
		TotalSum:      m.TotalSum,
		Items:         make([]entity.LineItem, 0, len(m.Items)),
	}
	for _, it := range m.Items {
		f.Items = append(f.Items, entity.LineItem{
			Description: it.Description,
			Unit:        string(constants.CanonicalUnit(it.Unit)),
			Quantity:    int(math.Round(it.Quantity)),
			UnitPrice:   it.UnitPrice,
			ElementCost: it.ElementCost,
		})
	}
	return n.FromFields(f)
}

// date parses dd/mm/yyyy (single-digit day and month allowed). Anything else
// falls back to the current time.
func (n *Normalizer) date(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2/1/2006", s, time.UTC); err == nil {
		return t
	}
	now := n.now()
	n.logger.Warn("normalize.invalid_date", "value", s, "fallback", now.Format(DateLayout))
	return now
}
