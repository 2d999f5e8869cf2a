package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

var invoiceColumns = []string{
	"id", "project_id", "filename", "content_hash", "method", "vendor_name", "invoice_number",
	"invoice_date", "subtotal", "tax", "discount", "total_sum", "created_at",
}

var itemColumns = []string{
	"id", "invoice_id", "position", "description", "unit", "quantity", "unit_price", "element_cost",
}

// CreateInvoiceRequest wraps parameters for storing a normalized invoice.
type CreateInvoiceRequest struct {
	ProjectID   uuid.UUID
	Filename    string
	ContentHash string
	Method      constants.ExtractionMode
	Record      entity.InvoiceRecord
}

type SupplierInvoiceRepository interface {
	Create(ctx context.Context, req *CreateInvoiceRequest) (*entity.SupplierInvoice, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.SupplierInvoice, error)
	GetByContentHash(ctx context.Context, projectID uuid.UUID, hash string) (*entity.SupplierInvoice, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.SupplierInvoice, error)
}

type supplierInvoiceRepo struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewSupplierInvoiceRepository(db *DB, logger *slog.Logger) SupplierInvoiceRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &supplierInvoiceRepo{db: db, now: time.Now, logger: logger}
}

func (r *supplierInvoiceRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect())
}

// Create inserts the invoice and its items in one transaction.
func (r *supplierInvoiceRepo) Create(ctx context.Context, req *CreateInvoiceRequest) (*entity.SupplierInvoice, error) {
	rec := req.Record
	inv := &entity.SupplierInvoice{
		ID:            uuid.New(),
		ProjectID:     req.ProjectID,
		Filename:      req.Filename,
		ContentHash:   req.ContentHash,
		Method:        string(req.Method),
		VendorName:    rec.VendorName,
		InvoiceNumber: rec.InvoiceNumber,
		InvoiceDate:   rec.InvoiceDate,
		Subtotal:      rec.Subtotal,
		Tax:           rec.Tax,
		Discount:      rec.Discount,
		TotalSum:      rec.TotalSum,
		Items:         rec.Items,
		CreatedAt:     r.now().UTC(),
	}
	if inv.Items == nil {
		inv.Items = []entity.RecordItem{}
	}

	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return nil, err
	}

	query, args := r.builder().Insert(invoicesTable).
		Columns(invoiceColumns...).
		Values(
			inv.ID.String(), inv.ProjectID.String(), inv.Filename, inv.ContentHash, inv.Method,
			inv.VendorName, inv.InvoiceNumber, inv.InvoiceDate.Format(dateLayout),
			inv.Subtotal, inv.Tax, inv.Discount, inv.TotalSum, inv.CreatedAt.Format(timestampLayout),
		).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		if isUniqueViolation(err) {
			r.logger.Info("supplier invoice already stored", "project_id", req.ProjectID, "content_hash", req.ContentHash)
			return nil, rollback(tx, fmt.Errorf("%w: %w", common.ErrAlreadyExists, err))
		}
		r.logger.Error("failed to create supplier invoice", "project_id", req.ProjectID, "filename", req.Filename, "error", err)
		return nil, rollback(tx, err)
	}

	if len(inv.Items) > 0 {
		ins := r.builder().Insert(itemsTable).Columns(itemColumns...)
		for i, it := range inv.Items {
			ins.Values(it.ID, inv.ID.String(), i, it.Description, it.Unit, it.Quantity, it.UnitPrice, it.ElementCost)
		}
		query, args = ins.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			r.logger.Error("failed to create supplier invoice items", "invoice_id", inv.ID, "error", err)
			return nil, rollback(tx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	r.logger.Info("supplier invoice created", "invoice_id", inv.ID, "project_id", inv.ProjectID, "items", len(inv.Items))
	return inv, nil
}

func (r *supplierInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.SupplierInvoice, error) {
	return r.getOne(ctx, entsql.EQ("id", id.String()))
}

func (r *supplierInvoiceRepo) GetByContentHash(ctx context.Context, projectID uuid.UUID, hash string) (*entity.SupplierInvoice, error) {
	return r.getOne(ctx, entsql.And(
		entsql.EQ("project_id", projectID.String()),
		entsql.EQ("content_hash", hash),
	))
}

func (r *supplierInvoiceRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.SupplierInvoice, error) {
	invs, err := r.selectInvoices(ctx, entsql.EQ("project_id", projectID.String()))
	if err != nil {
		r.logger.Error("failed to list supplier invoices", "project_id", projectID, "error", err)
		return nil, err
	}
	if err := r.attachItems(ctx, invs); err != nil {
		return nil, err
	}
	return invs, nil
}

func (r *supplierInvoiceRepo) getOne(ctx context.Context, where *entsql.Predicate) (*entity.SupplierInvoice, error) {
	invs, err := r.selectInvoices(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(invs) == 0 {
		return nil, common.ErrNotFound
	}
	if err := r.attachItems(ctx, invs[:1]); err != nil {
		return nil, err
	}
	return invs[0], nil
}

func (r *supplierInvoiceRepo) selectInvoices(ctx context.Context, where *entsql.Predicate) ([]*entity.SupplierInvoice, error) {
	b := r.builder()
	query, args := b.Select(invoiceColumns...).
		From(b.Table(invoicesTable)).
		Where(where).
		OrderBy(entsql.Asc("invoice_date"), entsql.Asc("created_at")).
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.SupplierInvoice
	for rows.Next() {
		var (
			inv                          entity.SupplierInvoice
			id, projectID, date, created string
		)
		if err := rows.Scan(&id, &projectID, &inv.Filename, &inv.ContentHash, &inv.Method,
			&inv.VendorName, &inv.InvoiceNumber, &date,
			&inv.Subtotal, &inv.Tax, &inv.Discount, &inv.TotalSum, &created); err != nil {
			return nil, err
		}
		var err error
		if inv.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invoice id %q: %w", id, err)
		}
		if inv.ProjectID, err = uuid.Parse(projectID); err != nil {
			return nil, fmt.Errorf("project id %q: %w", projectID, err)
		}
		if inv.InvoiceDate, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("invoice date %q: %w", date, err)
		}
		if inv.CreatedAt, err = time.Parse(timestampLayout, created); err != nil {
			return nil, fmt.Errorf("created_at %q: %w", created, err)
		}
		inv.Items = []entity.RecordItem{}
		out = append(out, &inv)
	}
	return out, rows.Err()
}

func (r *supplierInvoiceRepo) attachItems(ctx context.Context, invs []*entity.SupplierInvoice) error {
	if len(invs) == 0 {
		return nil
	}
	byID := make(map[string]*entity.SupplierInvoice, len(invs))
	ids := make([]any, 0, len(invs))
	for _, inv := range invs {
		byID[inv.ID.String()] = inv
		ids = append(ids, inv.ID.String())
	}

	b := r.builder()
	query, args := b.Select(itemColumns...).
		From(b.Table(itemsTable)).
		Where(entsql.In("invoice_id", ids...)).
		OrderBy("invoice_id", "position").
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to load supplier invoice items", "error", err)
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it        entity.RecordItem
			invoiceID string
			position  int
		)
		if err := rows.Scan(&it.ID, &invoiceID, &position, &it.Description, &it.Unit,
			&it.Quantity, &it.UnitPrice, &it.ElementCost); err != nil {
			return err
		}
		if inv, ok := byID[invoiceID]; ok {
			inv.Items = append(inv.Items, it)
		}
	}
	return rows.Err()
}

func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
	}
	return err
}
