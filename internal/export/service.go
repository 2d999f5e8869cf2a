package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/site-invoices/internal/entity"
)

const (
	invoicesSheet = "Invoices"
	itemsSheet    = "Line Items"
)

// InvoiceLister is the slice of the repository the export needs.
type InvoiceLister interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.SupplierInvoice, error)
}

// Service is a tiny façade over the invoice repository that produces XLSX bytes.
type Service struct {
	invoices InvoiceLister
	logger   *slog.Logger
}

func NewService(invoices InvoiceLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// InvoicesXLSX returns a workbook with one row per invoice on the Invoices
// sheet and one row per line item on the Line Items sheet.
func (s *Service) InvoicesXLSX(ctx context.Context, projectID uuid.UUID) ([]byte, error) {
	start := time.Now()

	invs, err := s.invoices.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f, err := WriteWorkbook(invs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_error", "error", err)
		}
	}()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"project_id", projectID.String(),
		"rows", len(invs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteWorkbook lays the invoices out in a new workbook.
func WriteWorkbook(invs []*entity.SupplierInvoice) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), invoicesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	writeRow(f, invoicesSheet, 1, "Invoice Date", "Vendor", "Invoice No", "Subtotal", "Tax", "Discount",
		"Total", "Items", "Method", "File")
	writeRow(f, itemsSheet, 1, "Invoice No", "Vendor", "Description", "Unit", "Quantity", "Unit Price",
		"Element Cost")

	itemRow := 2
	for i, inv := range invs {
		writeRow(f, invoicesSheet, i+2,
			inv.InvoiceDate.Format("02/01/2006"),
			inv.VendorName,
			inv.InvoiceNumber,
			inv.Subtotal,
			inv.Tax,
			inv.Discount,
			inv.TotalSum,
			len(inv.Items),
			inv.Method,
			truncate(inv.Filename, 140),
		)
		for _, it := range inv.Items {
			writeRow(f, itemsSheet, itemRow,
				inv.InvoiceNumber,
				inv.VendorName,
				it.Description,
				it.Unit,
				it.Quantity,
				it.UnitPrice,
				it.ElementCost,
			)
			itemRow++
		}
	}

	_ = f.SetColWidth(invoicesSheet, "A", "A", 14) // date
	_ = f.SetColWidth(invoicesSheet, "B", "C", 28) // vendor, number
	_ = f.SetColWidth(invoicesSheet, "D", "G", 14) // amounts
	_ = f.SetColWidth(invoicesSheet, "J", "J", 48) // file
	_ = f.SetColWidth(itemsSheet, "A", "B", 24)
	_ = f.SetColWidth(itemsSheet, "C", "C", 48)
	_ = f.SetColWidth(itemsSheet, "D", "G", 14)

	if idx, err := f.GetSheetIndex(invoicesSheet); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
