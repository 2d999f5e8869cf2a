// Package app wires configuration into the collaborators shared by the
// binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/export"
	"github.com/joseph-ayodele/site-invoices/internal/invoices"
	"github.com/joseph-ayodele/site-invoices/internal/llm"
	"github.com/joseph-ayodele/site-invoices/internal/llm/openai"
	"github.com/joseph-ayodele/site-invoices/internal/normalize"
	"github.com/joseph-ayodele/site-invoices/internal/pdftext"
	"github.com/joseph-ayodele/site-invoices/internal/repository"
)

// OpenDB connects to the configured database and applies migrations.
func OpenDB(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repository.DB, error) {
	var (
		db  *repository.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		db, err = repository.OpenSQLite(ctx, cfg.DSN, logger)
	default:
		db, err = repository.Open(ctx, repository.Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// TextExtractor builds the PDF/TXT reader.
func TextExtractor(cfg common.PDFConfig, logger *slog.Logger) *pdftext.Extractor {
	return pdftext.NewExtractor(pdftext.Config{Pdftotext: cfg.PdftotextPath, Timeout: cfg.Timeout}, logger)
}

// ModelExtractor builds the OpenAI-backed extractor, or nil when no API key
// is configured.
func ModelExtractor(cfg common.LLMConfig, logger *slog.Logger) (*llm.Extractor, error) {
	if cfg.APIKey == "" {
		logger.Info("model extraction disabled: OPENAI_API_KEY not set")
		return nil, nil
	}
	client := openai.NewClient(openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}, &http.Client{Timeout: cfg.Timeout}, logger)
	return llm.NewExtractor(client, logger)
}

// InvoiceService assembles the invoices service over db.
func InvoiceService(cfg *common.Config, db *repository.DB, logger *slog.Logger) (*invoices.Service, error) {
	model, err := ModelExtractor(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	repo := repository.NewSupplierInvoiceRepository(db, logger)
	deps := invoices.Deps{
		Text:       TextExtractor(cfg.PDF, logger),
		Normalizer: normalize.New(logger),
		Invoices:   repo,
		Runs:       repository.NewExtractionRunRepository(db, logger),
		Exporter:   export.NewService(repo, logger),
	}
	if model != nil {
		deps.Model = model
	}
	return invoices.NewService(deps, cfg.Storage.MaxUploadBytes, logger), nil
}

// Logger returns a JSON slog logger at the named level.
func Logger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
