// Package pdftext turns uploaded invoice files into plain text in reading order.
package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/site-invoices/constants"
)

// ErrUnsupportedFormat is returned for extensions other than pdf and txt.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Extraction methods recorded in Result.Method.
const (
	MethodPlain     = "plain"
	MethodPDFText   = "pdf-text"
	MethodPdftotext = "pdftotext"
)

type Config struct {
	Pdftotext string        // binary name or absolute path; empty disables the fallback
	Timeout   time.Duration // per-file limit for the external fallback
}

type Result struct {
	Text     string
	Pages    int
	Method   string
	Duration time.Duration
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// Extract returns the text of a pdf or txt upload. PDFs are read from their
// text layer; when that yields nothing and pdftotext is configured, the
// external tool is tried.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (Result, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(filename))

	var (
		res Result
		err error
	)
	switch constants.MapExtToFormat(ext) {
	case constants.TXT:
		res = Result{Text: string(data), Pages: 1, Method: MethodPlain}
	case constants.PDF:
		res, err = e.fromPDF(ctx, data)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		e.logger.Error("pdftext.extract.failed", "filename", filename, "error", err)
		return Result{}, err
	}
	res.Duration = time.Since(start)
	e.logger.Info("pdftext.extract.ok",
		"filename", filename,
		"method", res.Method,
		"pages", res.Pages,
		"text_len", len(res.Text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) fromPDF(ctx context.Context, data []byte) (Result, error) {
	text, pages, err := readTextLayer(data)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: text, Pages: pages, Method: MethodPDFText}, nil
	}
	if e.cfg.Pdftotext == "" {
		if err != nil {
			return Result{}, fmt.Errorf("read pdf: %w", err)
		}
		return Result{Text: text, Pages: pages, Method: MethodPDFText}, nil
	}
	if err != nil {
		e.logger.Warn("pdftext.text_layer.failed", "error", err, "fallback", e.cfg.Pdftotext)
	}
	return e.pdftotext(ctx, data)
}

// readTextLayer joins each page's rows with newlines and pages with a form feed.
func readTextLayer(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	pages = r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		if i > 1 {
			b.WriteString("\f\n")
		}
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, word := range row.Content {
				words = append(words, word.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
	}
	return b.String(), pages, nil
}

func (e *Extractor) pdftotext(ctx context.Context, data []byte) (Result, error) {
	tmp, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil {
			e.logger.Warn("pdftext.tmp.remove_failed", "path", tmp.Name(), "error", err)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Result{}, err
	}
	if err := tmp.Close(); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", tmp.Name(), "-")
	if err != nil {
		return Result{}, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}
	text := cleanLayout(string(out))
	return Result{Text: text, Pages: 1 + strings.Count(text, "\f"), Method: MethodPdftotext}, nil
}
