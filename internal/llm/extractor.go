package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Extractor obtains invoice fields from a language model, with exactly one
// repair call when the primary output does not parse.
type Extractor struct {
	completer Completer
	schema    Schema
	validator *jsonschema.Schema
	logger    *slog.Logger
}

// NewExtractor builds an Extractor over InvoiceSchema.
func NewExtractor(completer Completer, logger *slog.Logger) (*Extractor, error) {
	if completer == nil {
		return nil, errors.New("llm: completer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema := InvoiceSchema()
	validator, err := compileSchema(schema.JSONSchema())
	if err != nil {
		return nil, err
	}
	return &Extractor{
		completer: completer,
		schema:    schema,
		validator: validator,
		logger:    logger,
	}, nil
}

// Extract runs the primary call and, only if its output fails to parse, a
// single repair call whose result is final.
func (e *Extractor) Extract(ctx context.Context, text string) (ModelInvoice, error) {
	rid := uuid.New().String()
	start := time.Now()
	e.logger.Info("llm.extract.start", "req_id", rid, "text_len", len(text))

	raw, err := e.completer.Complete(ctx, BuildExtractionPrompt(e.schema, text))
	if err != nil {
		e.logger.Error("llm.extract.call_error", "req_id", rid, "stage", "primary", "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return ModelInvoice{}, fmt.Errorf("%w: primary call: %w", ErrExtractionFailed, err)
	}

	out, err := e.ParsePrimary(raw)
	if err == nil {
		e.logger.Info("llm.extract.ok", "req_id", rid, "repaired", false, "items", len(out.Items),
			"elapsed_ms", time.Since(start).Milliseconds())
		return out, nil
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		return ModelInvoice{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	e.logger.Warn("llm.extract.parse_failed", "req_id", rid, "error", perr.Err)

	out, err = e.parseWithRepair(ctx, perr)
	if err != nil {
		e.logger.Error("llm.extract.repair_failed", "req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return ModelInvoice{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	e.logger.Info("llm.extract.ok", "req_id", rid, "repaired", true, "items", len(out.Items),
		"elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// ParsePrimary parses raw model output against the schema. Any failure is
// reported as a *ParseError carrying the output.
func (e *Extractor) ParsePrimary(raw string) (ModelInvoice, error) {
	data := []byte(stripFences(raw))
	if err := validateJSON(e.validator, data); err != nil {
		return ModelInvoice{}, &ParseError{Output: raw, Err: err}
	}
	var out ModelInvoice
	if err := json.Unmarshal(data, &out); err != nil {
		return ModelInvoice{}, &ParseError{Output: raw, Err: err}
	}
	if out.Items == nil {
		out.Items = []ModelLineItem{}
	}
	return out, nil
}

func (e *Extractor) parseWithRepair(ctx context.Context, perr *ParseError) (ModelInvoice, error) {
	raw, err := e.completer.Complete(ctx, BuildRepairPrompt(e.schema, perr.Output, perr.Err))
	if err != nil {
		return ModelInvoice{}, fmt.Errorf("repair call: %w", err)
	}
	return e.ParsePrimary(raw)
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
