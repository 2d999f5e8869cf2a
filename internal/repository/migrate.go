package repository

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
)

const (
	invoicesTable = "supplier_invoices"
	itemsTable    = "supplier_invoice_items"
	runsTable     = "extraction_runs"
)

// Migrate creates the tables if they do not exist. Column types are chosen to
// be valid on both Postgres and SQLite.
func Migrate(ctx context.Context, db *DB) error {
	b := entsql.Dialect(db.Dialect())

	stmts := []entsql.Querier{
		b.CreateTable(invoicesTable).IfNotExists().
			Columns(
				entsql.Column("id").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("project_id").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("filename").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("content_hash").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("method").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("vendor_name").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("invoice_number").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("invoice_date").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("subtotal").Type("DOUBLE PRECISION").Attr("NOT NULL"),
				entsql.Column("tax").Type("DOUBLE PRECISION").Attr("NOT NULL"),
				entsql.Column("discount").Type("DOUBLE PRECISION").Attr("NOT NULL"),
				entsql.Column("total_sum").Type("DOUBLE PRECISION").Attr("NOT NULL"),
				entsql.Column("created_at").Type("TEXT").Attr("NOT NULL"),
			).
			PrimaryKey("id"),
		b.CreateIndex("supplier_invoices_project_hash").IfNotExists().Unique().
			Table(invoicesTable).
			Columns("project_id", "content_hash"),
		b.CreateTable(itemsTable).IfNotExists().
			Columns(
				entsql.Column("id").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("invoice_id").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("position").Type("INTEGER").Attr("NOT NULL"),
				entsql.Column("description").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("unit").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("quantity").Type("INTEGER").Attr("NOT NULL"),
				entsql.Column("unit_price").Type("DOUBLE PRECISION").Attr("NOT NULL"),
				entsql.Column("element_cost").Type("DOUBLE PRECISION").Attr("NOT NULL"),
			).
			PrimaryKey("id").
			ForeignKeys(
				entsql.ForeignKey().Columns("invoice_id").
					Reference(entsql.Reference().Table(invoicesTable).Columns("id")).
					OnDelete("CASCADE"),
			),
		b.CreateTable(runsTable).IfNotExists().
			Columns(
				entsql.Column("id").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("project_id").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("filename").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("content_hash").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("method").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("status").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("invoice_id").Type("TEXT"),
				entsql.Column("error_message").Type("TEXT"),
				entsql.Column("started_at").Type("TEXT").Attr("NOT NULL"),
				entsql.Column("finished_at").Type("TEXT"),
			).
			PrimaryKey("id"),
	}

	for _, stmt := range stmts {
		query, args := stmt.Query()
		if err := db.drv.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
