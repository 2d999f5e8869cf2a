package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/site-invoices/internal/entity"
	"github.com/joseph-ayodele/site-invoices/internal/llm"
	"github.com/joseph-ayodele/site-invoices/internal/normalize"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func newNormalizer() *normalize.Normalizer {
	return normalize.New(nil, normalize.WithClock(func() time.Time { return fixedNow }))
}

func TestFromFields_ParsesDate(t *testing.T) {
	rec := newNormalizer().FromFields(entity.InvoiceFields{InvoiceDate: "15/03/2024"})
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec.InvoiceDate)

	rec = newNormalizer().FromFields(entity.InvoiceFields{InvoiceDate: "5/3/2024"})
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rec.InvoiceDate)
}

func TestFromFields_InvalidDateFallsBackToNow(t *testing.T) {
	for _, in := range []string{"99/99/9999", "", "2024-03-15", "31/02/2024"} {
		rec := newNormalizer().FromFields(entity.InvoiceFields{InvoiceDate: in})
		assert.Equal(t, fixedNow, rec.InvoiceDate, in)
	}
}

func TestFromFields_PassesThroughAndAssignsIDs(t *testing.T) {
	in := entity.InvoiceFields{
		VendorName:    "ACME Ltd",
		InvoiceNumber: "INV-1",
		InvoiceDate:   "01/02/2024",
		Subtotal:      100,
		Tax:           20,
		Discount:      5,
		TotalSum:      115,
		Items: []entity.LineItem{
			{Description: "Cabling", Unit: "M", Quantity: 10, UnitPrice: 10, ElementCost: 100},
		},
	}

	rec := newNormalizer().FromFields(in)
	assert.Equal(t, "ACME Ltd", rec.VendorName)
	assert.Equal(t, "INV-1", rec.InvoiceNumber)
	assert.Equal(t, 115.0, rec.TotalSum)
	require.Len(t, rec.Items, 1)
	assert.NotEmpty(t, rec.Items[0].ID)
	assert.Equal(t, "Cabling", rec.Items[0].Description)
	assert.Equal(t, 10, rec.Items[0].Quantity)
}

func TestFromFields_NilItemsBecomeEmpty(t *testing.T) {
	rec := newNormalizer().FromFields(entity.InvoiceFields{})
	assert.NotNil(t, rec.Items)
	assert.Empty(t, rec.Items)
}

func TestFromFields_IDsDisjointAcrossCalls(t *testing.T) {
	items := make([]entity.LineItem, 25)
	n := newNormalizer()

	first := n.FromFields(entity.InvoiceFields{Items: items})
	second := n.FromFields(entity.InvoiceFields{Items: items})

	seen := make(map[string]struct{}, 50)
	for _, rec := range []entity.InvoiceRecord{first, second} {
		for _, it := range rec.Items {
			_, dup := seen[it.ID]
			assert.False(t, dup, "duplicate id %s", it.ID)
			seen[it.ID] = struct{}{}
		}
	}
	assert.Len(t, seen, 50)
}

func TestFromModel_RenamesFields(t *testing.T) {
	m := llm.ModelInvoice{
		VendorName:  "ACME Ltd",
		InvoiceNo:   "INV-9",
		InvoiceDate: "15/03/2024",
		Subtotal:    250,
		Tax:         50,
		TotalSum:    300,
		Items: []llm.ModelLineItem{
			{Description: "Cabling", Unit: "M", Quantity: 10.0, UnitPrice: 25, ElementCost: 250},
			{Description: "Labour", Unit: "hours", Quantity: 2.4, UnitPrice: 40, ElementCost: 96},
		},
	}

	var ids []string
	n := normalize.New(nil, normalize.WithIDGenerator(func() string {
		id := "id-" + string(rune('a'+len(ids)))
		ids = append(ids, id)
		return id
	}))
	rec := n.FromModel(m)

	assert.Equal(t, "INV-9", rec.InvoiceNumber)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), rec.InvoiceDate)
	require.Len(t, rec.Items, 2)
	assert.Equal(t, entity.RecordItem{ID: "id-a", Description: "Cabling", Unit: "M", Quantity: 10, UnitPrice: 25, ElementCost: 250}, rec.Items[0])
	assert.Equal(t, "NR", rec.Items[1].Unit)
	assert.Equal(t, 2, rec.Items[1].Quantity)
	assert.Equal(t, "id-b", rec.Items[1].ID)
}
