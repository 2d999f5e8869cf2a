// Package invoices is the supplier-invoice use-case layer: upload validation,
// extraction by either strategy, normalization, storage and export.
package invoices

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
	"github.com/joseph-ayodele/site-invoices/internal/llm"
	"github.com/joseph-ayodele/site-invoices/internal/normalize"
	"github.com/joseph-ayodele/site-invoices/internal/parser"
	"github.com/joseph-ayodele/site-invoices/internal/pdftext"
	"github.com/joseph-ayodele/site-invoices/internal/repository"
)

// TextExtractor reads the text layer of an uploaded file.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (pdftext.Result, error)
}

// ModelExtractor is the schema-guided model path.
type ModelExtractor interface {
	Extract(ctx context.Context, text string) (llm.ModelInvoice, error)
}

// Exporter renders a project's invoices as a workbook.
type Exporter interface {
	InvoicesXLSX(ctx context.Context, projectID uuid.UUID) ([]byte, error)
}

// Deps are the collaborators of Service. Model and Runs may be nil.
type Deps struct {
	Text       TextExtractor
	Model      ModelExtractor
	Normalizer *normalize.Normalizer
	Invoices   repository.SupplierInvoiceRepository
	Runs       repository.ExtractionRunRepository
	Exporter   Exporter
}

// Service handles supplier-invoice business logic.
type Service struct {
	deps           Deps
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewService creates a new invoices service.
func NewService(deps Deps, maxUploadBytes int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Normalizer == nil {
		deps.Normalizer = normalize.New(logger)
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = constants.MaxUploadBytes
	}
	return &Service{deps: deps, maxUploadBytes: maxUploadBytes, logger: logger}
}

// ModelEnabled reports whether model extraction is configured.
func (s *Service) ModelEnabled() bool {
	return s.deps.Model != nil
}

// ValidateUpload is the acceptance gate for uploaded files. It returns the
// file's text when the heuristic parser recognizes it as an invoice.
func (s *Service) ValidateUpload(ctx context.Context, filename string, data []byte) (string, error) {
	v := common.NewValidator().
		Field("filename", filename, common.Required, common.MaxLength(255)).
		Field("file", data, common.Required, common.MaxBytes(s.maxUploadBytes))
	if err := common.ValidateAndReturnError(v); err != nil {
		s.logger.Warn("invoices.validate.invalid", "filename", filename, "error", err)
		return "", err
	}

	ext := constants.NormalizeExt(filepath.Ext(filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		s.logger.Warn("invoices.validate.bad_extension", "filename", filename, "ext", ext)
		return "", common.InvalidArgumentError("file must be a PDF or TXT document")
	}

	res, err := s.deps.Text.Extract(ctx, filename, data)
	if err != nil {
		s.logger.Warn("invoices.validate.unreadable", "filename", filename, "error", err)
		return "", common.InvalidArgumentErrorf("could not read %s", filename)
	}

	if !parser.Matches(res.Text) {
		s.logger.Info("invoices.validate.rejected", "filename", filename, "text_len", len(res.Text))
		return "", common.NotInvoiceError()
	}
	return res.Text, nil
}

// ExtractRequest asks for fields from already-extracted text.
type ExtractRequest struct {
	Text string
	Mode string
}

// Extract runs the selected strategy and normalizes its output.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (entity.InvoiceRecord, error) {
	mode, ok := constants.ParseMode(req.Mode)
	if !ok {
		return entity.InvoiceRecord{}, common.InvalidArgumentErrorf("unknown extraction mode %q", req.Mode)
	}
	return s.extract(ctx, mode, req.Text)
}

func (s *Service) extract(ctx context.Context, mode constants.ExtractionMode, text string) (entity.InvoiceRecord, error) {
	start := time.Now()
	switch mode {
	case constants.ModeModel:
		if s.deps.Model == nil {
			return entity.InvoiceRecord{}, common.FailedPreconditionError("model extraction is not configured")
		}
		out, err := s.deps.Model.Extract(ctx, text)
		if err != nil {
			s.logger.Error("invoices.extract.model_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
			return entity.InvoiceRecord{}, common.ExtractionFailedError()
		}
		return s.deps.Normalizer.FromModel(out), nil
	default:
		fields := parser.Parse(text)
		if fields == nil {
			s.logger.Info("invoices.extract.no_match", "text_len", len(text))
			return entity.InvoiceRecord{}, common.NotInvoiceError()
		}
		return s.deps.Normalizer.FromFields(*fields), nil
	}
}

// IngestRequest is an upload to validate, extract and store.
type IngestRequest struct {
	ProjectID string
	Filename  string
	Data      []byte
	Mode      string
}

// IngestResult is the stored invoice and whether it was already present.
type IngestResult struct {
	Invoice      *entity.SupplierInvoice
	Deduplicated bool
}

// Ingest validates the upload, skips files already stored for the project,
// extracts, normalizes and persists the invoice.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	projectID, err := uuid.Parse(strings.TrimSpace(req.ProjectID))
	if err != nil {
		s.logger.Error("invalid project_id format for ingest", "project_id", req.ProjectID, "error", err)
		return IngestResult{}, common.InvalidArgumentError("project_id must be a UUID")
	}
	mode, ok := constants.ParseMode(req.Mode)
	if !ok {
		return IngestResult{}, common.InvalidArgumentErrorf("unknown extraction mode %q", req.Mode)
	}
	filename := filepath.Base(req.Filename)

	text, err := s.ValidateUpload(ctx, filename, req.Data)
	if err != nil {
		return IngestResult{}, err
	}

	sum := sha256.Sum256(req.Data)
	hash := hex.EncodeToString(sum[:])
	existing, err := s.deps.Invoices.GetByContentHash(ctx, projectID, hash)
	switch {
	case err == nil:
		s.logger.Info("invoices.ingest.deduplicated", "project_id", projectID, "invoice_id", existing.ID, "filename", filename)
		return IngestResult{Invoice: existing, Deduplicated: true}, nil
	case !errors.Is(err, common.ErrNotFound):
		return IngestResult{}, common.InternalErrorf("lookup invoice: %v", err)
	}

	var run *entity.ExtractionRun
	if s.deps.Runs != nil {
		if run, err = s.deps.Runs.Start(ctx, projectID, filename, hash, mode); err != nil {
			return IngestResult{}, common.InternalErrorf("start extraction run: %v", err)
		}
	}

	record, err := s.extract(ctx, mode, text)
	if err != nil {
		s.finishRun(ctx, run, uuid.Nil, status.Convert(err).Message())
		return IngestResult{}, err
	}

	inv, err := s.deps.Invoices.Create(ctx, &repository.CreateInvoiceRequest{
		ProjectID:   projectID,
		Filename:    filename,
		ContentHash: hash,
		Method:      mode,
		Record:      record,
	})
	if errors.Is(err, common.ErrAlreadyExists) {
		// A concurrent ingest of the same bytes won the insert.
		existing, lerr := s.deps.Invoices.GetByContentHash(ctx, projectID, hash)
		if lerr != nil {
			s.finishRun(ctx, run, uuid.Nil, "store invoice failed")
			return IngestResult{}, common.InternalErrorf("lookup invoice: %v", lerr)
		}
		s.finishRun(ctx, run, existing.ID, "")
		s.logger.Info("invoices.ingest.deduplicated", "project_id", projectID, "invoice_id", existing.ID, "filename", filename)
		return IngestResult{Invoice: existing, Deduplicated: true}, nil
	}
	if err != nil {
		s.finishRun(ctx, run, uuid.Nil, "store invoice failed")
		return IngestResult{}, common.InternalErrorf("store invoice: %v", err)
	}
	s.finishRun(ctx, run, inv.ID, "")

	s.logger.Info("invoices.ingest.ok", "project_id", projectID, "invoice_id", inv.ID, "method", mode, "items", len(inv.Items))
	return IngestResult{Invoice: inv}, nil
}

// finishRun records the outcome; a failure to do so is logged, not returned.
func (s *Service) finishRun(ctx context.Context, run *entity.ExtractionRun, invoiceID uuid.UUID, failure string) {
	if run == nil {
		return
	}
	var err error
	if invoiceID != uuid.Nil {
		err = s.deps.Runs.FinishSuccess(ctx, run.ID, invoiceID)
	} else {
		err = s.deps.Runs.FinishFailure(ctx, run.ID, failure)
	}
	if err != nil {
		s.logger.Warn("invoices.run.finish_failed", "run_id", run.ID, "error", err)
	}
}

// Get returns one stored invoice.
func (s *Service) Get(ctx context.Context, id string) (*entity.SupplierInvoice, error) {
	invoiceID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, common.InvalidArgumentError("id must be a UUID")
	}
	inv, err := s.deps.Invoices.GetByID(ctx, invoiceID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NotFoundError("invoice not found")
	}
	if err != nil {
		return nil, common.InternalErrorf("get invoice: %v", err)
	}
	return inv, nil
}

// List returns a project's invoices ordered by invoice date.
func (s *Service) List(ctx context.Context, projectID string) ([]*entity.SupplierInvoice, error) {
	pid, err := uuid.Parse(strings.TrimSpace(projectID))
	if err != nil {
		return nil, common.InvalidArgumentError("project_id must be a UUID")
	}
	invs, err := s.deps.Invoices.ListByProject(ctx, pid)
	if err != nil {
		return nil, common.InternalErrorf("list invoices: %v", err)
	}
	if invs == nil {
		invs = []*entity.SupplierInvoice{}
	}
	return invs, nil
}

// Runs returns a project's extraction runs.
func (s *Service) Runs(ctx context.Context, projectID string) ([]*entity.ExtractionRun, error) {
	pid, err := uuid.Parse(strings.TrimSpace(projectID))
	if err != nil {
		return nil, common.InvalidArgumentError("project_id must be a UUID")
	}
	if s.deps.Runs == nil {
		return []*entity.ExtractionRun{}, nil
	}
	runs, err := s.deps.Runs.ListByProject(ctx, pid)
	if err != nil {
		return nil, common.InternalErrorf("list extraction runs: %v", err)
	}
	if runs == nil {
		runs = []*entity.ExtractionRun{}
	}
	return runs, nil
}

// Export renders a project's invoices as XLSX.
func (s *Service) Export(ctx context.Context, projectID string) ([]byte, error) {
	pid, err := uuid.Parse(strings.TrimSpace(projectID))
	if err != nil {
		return nil, common.InvalidArgumentError("project_id must be a UUID")
	}
	if s.deps.Exporter == nil {
		return nil, common.FailedPreconditionError("export is not configured")
	}
	out, err := s.deps.Exporter.InvoicesXLSX(ctx, pid)
	if err != nil {
		return nil, common.InternalErrorf("export invoices: %v", err)
	}
	return out, nil
}
