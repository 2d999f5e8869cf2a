package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexflint/go-arg"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/site-invoices/internal/app"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/invoices"
	"github.com/joseph-ayodele/site-invoices/internal/normalize"
)

var args struct {
	File      string `arg:"positional,required" help:"PDF or TXT invoice to parse"`
	Mode      string `arg:"-m,--mode,env:EXTRACTION_MODE" default:"heuristic" help:"heuristic or model"`
	Pdftotext string `arg:"--pdftotext,env:PDFTOTEXT_PATH" help:"pdftotext binary used when a PDF has no text layer"`
	Text      bool   `arg:"--text" help:"print the extracted text instead of fields"`
	LogLevel  string `arg:"--log-level,env:LOG_LEVEL" default:"warn"`
}

func main() {
	arg.MustParse(&args)
	logger := app.Logger(args.LogLevel)

	cfg, err := common.LoadConfig()
	if err != nil {
		fail(err)
	}
	if args.Pdftotext != "" {
		cfg.PDF.PdftotextPath = args.Pdftotext
	}

	data, err := os.ReadFile(args.File)
	if err != nil {
		fail(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout+cfg.PDF.Timeout)
	defer cancel()

	res, err := app.TextExtractor(cfg.PDF, logger).Extract(ctx, filepath.Base(args.File), data)
	if err != nil {
		fail(err)
	}
	if args.Text {
		fmt.Print(res.Text)
		return
	}

	model, err := app.ModelExtractor(cfg.LLM, logger)
	if err != nil {
		fail(err)
	}
	deps := invoices.Deps{Normalizer: normalize.New(logger)}
	if model != nil {
		deps.Model = model
	}
	svc := invoices.NewService(deps, cfg.Storage.MaxUploadBytes, logger)

	rec, err := svc.Extract(ctx, invoices.ExtractRequest{Text: res.Text, Mode: args.Mode})
	if err != nil {
		fail(err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		fail(err)
	}
}

func fail(err error) {
	if st, ok := status.FromError(err); ok {
		fmt.Fprintln(os.Stderr, "error:", st.Message())
	} else {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(1)
}
