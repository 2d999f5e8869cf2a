package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
)

type ExtractionRunRepository interface {
	Start(ctx context.Context, projectID uuid.UUID, filename, hash string, method constants.ExtractionMode) (*entity.ExtractionRun, error)
	FinishSuccess(ctx context.Context, runID, invoiceID uuid.UUID) error
	FinishFailure(ctx context.Context, runID uuid.UUID, message string) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.ExtractionRun, error)
}

type extractionRunRepo struct {
	db  *DB
	now func() time.Time
	log *slog.Logger
}

func NewExtractionRunRepository(db *DB, log *slog.Logger) ExtractionRunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractionRunRepo{db: db, now: time.Now, log: log}
}

func (r *extractionRunRepo) Start(ctx context.Context, projectID uuid.UUID, filename, hash string, method constants.ExtractionMode) (*entity.ExtractionRun, error) {
	run := &entity.ExtractionRun{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Filename:    filename,
		ContentHash: hash,
		Method:      string(method),
		Status:      string(constants.RunRunning),
		StartedAt:   r.now().UTC(),
	}
	query, args := entsql.Dialect(r.db.Dialect()).Insert(runsTable).
		Columns("id", "project_id", "filename", "content_hash", "method", "status", "started_at").
		Values(run.ID.String(), projectID.String(), filename, hash, run.Method, run.Status, run.StartedAt.Format(timestampLayout)).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.log.Error("extraction_run start failed", "project_id", projectID, "filename", filename, "err", err)
		return nil, err
	}
	r.log.Info("extraction_run started", "run_id", run.ID, "filename", filename, "method", method)
	return run, nil
}

func (r *extractionRunRepo) FinishSuccess(ctx context.Context, runID, invoiceID uuid.UUID) error {
	err := r.finish(ctx, runID, entsql.Dialect(r.db.Dialect()).Update(runsTable).
		Set("status", string(constants.RunSucceeded)).
		Set("invoice_id", invoiceID.String()))
	if err != nil {
		r.log.Error("extraction_run finish(OK) failed", "run_id", runID, "err", err)
		return err
	}
	r.log.Info("extraction_run finished (SUCCEEDED)", "run_id", runID, "invoice_id", invoiceID)
	return nil
}

func (r *extractionRunRepo) FinishFailure(ctx context.Context, runID uuid.UUID, message string) error {
	err := r.finish(ctx, runID, entsql.Dialect(r.db.Dialect()).Update(runsTable).
		Set("status", string(constants.RunFailed)).
		Set("error_message", message))
	if err != nil {
		r.log.Error("extraction_run finish(FAILED) failed", "run_id", runID, "err", err)
		return err
	}
	r.log.Warn("extraction_run finished (FAILED)", "run_id", runID, "error", message)
	return nil
}

func (r *extractionRunRepo) finish(ctx context.Context, runID uuid.UUID, upd *entsql.UpdateBuilder) error {
	query, args := upd.
		Set("finished_at", r.now().UTC().Format(timestampLayout)).
		Where(entsql.EQ("id", runID.String())).
		Query()
	var res sql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *extractionRunRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*entity.ExtractionRun, error) {
	b := entsql.Dialect(r.db.Dialect())
	query, args := b.Select("id", "project_id", "filename", "content_hash", "method", "status",
		"invoice_id", "error_message", "started_at", "finished_at").
		From(b.Table(runsTable)).
		Where(entsql.EQ("project_id", projectID.String())).
		OrderBy(entsql.Asc("started_at")).
		Query()

	var rows entsql.Rows
	if err := r.db.drv.Query(ctx, query, args, &rows); err != nil {
		r.log.Error("extraction_run list failed", "project_id", projectID, "err", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.ExtractionRun
	for rows.Next() {
		var (
			run                    entity.ExtractionRun
			id, project, started   string
			invoiceID, errMsg, fin sql.NullString
		)
		if err := rows.Scan(&id, &project, &run.Filename, &run.ContentHash, &run.Method, &run.Status,
			&invoiceID, &errMsg, &started, &fin); err != nil {
			return nil, err
		}
		run.ID = uuid.MustParse(id)
		run.ProjectID = uuid.MustParse(project)
		run.ErrorMessage = errMsg.String
		if invoiceID.Valid {
			v, err := uuid.Parse(invoiceID.String)
			if err != nil {
				return nil, fmt.Errorf("run %s invoice id: %w", id, err)
			}
			run.InvoiceID = &v
		}
		var err error
		if run.StartedAt, err = time.Parse(timestampLayout, started); err != nil {
			return nil, err
		}
		if fin.Valid {
			t, err := time.Parse(timestampLayout, fin.String)
			if err != nil {
				return nil, err
			}
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}
