// Package ingest feeds invoice files from the local filesystem into the
// invoices service.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/invoices"
)

// FileResult is the per-file ingest outcome.
type FileResult struct {
	Path         string
	InvoiceID    string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingester is the part of the invoices service this package drives.
type Ingester interface {
	Ingest(ctx context.Context, req invoices.IngestRequest) (invoices.IngestResult, error)
}

type Usecase struct {
	svc    Ingester
	logger *slog.Logger
}

func NewUsecase(svc Ingester, logger *slog.Logger) *Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Usecase{svc: svc, logger: logger}
}

// IngestPath reads one file and stores it as an invoice of the project.
func (u *Usecase) IngestPath(ctx context.Context, projectID uuid.UUID, mode constants.ExtractionMode, path string) (FileResult, error) {
	out := FileResult{Path: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	if !AllowedExt(filepath.Ext(abs)) {
		return out, fmt.Errorf("unsupported or missing extension: %q", filepath.Ext(abs))
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}

	res, err := u.svc.Ingest(ctx, invoices.IngestRequest{
		ProjectID: projectID.String(),
		Filename:  filepath.Base(abs),
		Data:      data,
		Mode:      string(mode),
	})
	if err != nil {
		u.logger.Warn("ingest.file.failed", "path", abs, "error", err)
		return out, err
	}
	out.InvoiceID = res.Invoice.ID.String()
	out.Deduplicated = res.Deduplicated
	return out, nil
}

// AllowedExt reports whether ext is an accepted upload extension.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}
