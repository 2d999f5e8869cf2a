package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/app"
	"github.com/joseph-ayodele/site-invoices/internal/async"
	"github.com/joseph-ayodele/site-invoices/internal/common"
	"github.com/joseph-ayodele/site-invoices/internal/ingest"
)

var args struct {
	Root       string   `arg:"positional,required" help:"directory of invoice files"`
	ProjectID  string   `arg:"-p,--project,required,env:PROJECT_ID" help:"project the invoices belong to"`
	Mode       string   `arg:"-m,--mode,env:EXTRACTION_MODE" default:"heuristic" help:"heuristic or model"`
	Ext        []string `arg:"--ext,separate" help:"extensions to include (default pdf and txt)"`
	Hidden     bool     `arg:"--hidden" help:"include hidden files and directories"`
	Workers    int      `arg:"-w,--workers" default:"4"`
	Timeout    string   `arg:"--timeout" default:"3m" help:"per-file processing limit"`
	Watch      bool     `arg:"--watch" help:"keep running and ingest new files as they appear"`
	ExportPath string   `arg:"-o,--export" help:"write the project's invoices as XLSX when done"`
	LogLevel   string   `arg:"--log-level,env:LOG_LEVEL" default:"info"`
}

func main() {
	p := arg.MustParse(&args)
	logger := app.Logger(args.LogLevel)
	slog.SetDefault(logger)

	projectID, err := uuid.Parse(args.ProjectID)
	if err != nil {
		p.Fail("--project must be a UUID")
	}
	mode, ok := constants.ParseMode(args.Mode)
	if !ok {
		p.Fail("--mode must be heuristic or model")
	}
	timeout, err := time.ParseDuration(args.Timeout)
	if err != nil {
		p.Fail("--timeout must be a duration such as 90s")
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(mode == constants.ModeModel); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	svc, err := app.InvoiceService(cfg, db, logger)
	if err != nil {
		logger.Error("build invoice service", "error", err)
		os.Exit(1)
	}
	usecase := ingest.NewUsecase(svc, logger)

	var failed uint32
	if args.Watch {
		failed = watch(ctx, usecase, projectID, mode, timeout, logger)
	} else {
		results, stats, err := usecase.IngestDirectory(ctx, projectID, mode, args.Root, ingest.DirOptions{
			Extensions: args.Ext,
			SkipHidden: !args.Hidden,
			Workers:    args.Workers,
			Timeout:    timeout,
		})
		if err != nil {
			logger.Error("walk", "root", args.Root, "error", err)
		}
		for _, r := range results {
			if r.Err != "" {
				fmt.Printf("FAILED %s: %s\n", r.Path, r.Err)
			}
		}
		fmt.Printf("scanned=%d matched=%d succeeded=%d deduplicated=%d failed=%d\n",
			stats.Scanned, stats.Matched, stats.Succeeded, stats.Deduplicated, stats.Failed)
		failed = stats.Failed
	}

	if args.ExportPath != "" {
		out, err := svc.Export(context.Background(), projectID.String())
		if err != nil {
			logger.Error("export", "error", err)
			os.Exit(1)
		}
		if err := os.WriteFile(args.ExportPath, out, 0o644); err != nil {
			logger.Error("write export", "path", args.ExportPath, "error", err)
			os.Exit(1)
		}
		logger.Info("export written", "path", args.ExportPath)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// watch ingests files as they appear under the root until ctx ends and
// returns the number of files that failed.
func watch(ctx context.Context, usecase *ingest.Usecase, projectID uuid.UUID, mode constants.ExtractionMode, timeout time.Duration, logger *slog.Logger) uint32 {
	var succeeded, deduped, failed atomic.Uint32
	q := async.NewQueue(async.ProcessorFunc(func(ctx context.Context, job async.Job) error {
		res, err := usecase.IngestPath(ctx, job.ProjectID, job.Mode, job.Path)
		if err != nil {
			failed.Add(1)
			return err
		}
		succeeded.Add(1)
		if res.Deduplicated {
			deduped.Add(1)
		}
		return nil
	}), logger, async.WithWorkers(args.Workers), async.WithProcessTimeout(timeout))

	events, _, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       []string{args.Root},
		Extensions:  args.Ext,
		InitialScan: true,
		SkipHidden:  !args.Hidden,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("watch", "error", err)
		os.Exit(1)
	}
	logger.Info("watching for invoices", "root", args.Root)
	for path := range events {
		if err := q.Enqueue(ctx, async.Job{Path: path, ProjectID: projectID, Mode: mode}); err != nil {
			logger.Warn("enqueue failed", "path", path, "error", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), timeout+30*time.Second)
	defer cancel()
	q.Shutdown(drainCtx)

	fmt.Printf("succeeded=%d deduplicated=%d failed=%d\n", succeeded.Load(), deduped.Load(), failed.Load())
	return failed.Load()
}
