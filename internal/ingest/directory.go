package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/async"
)

// WalkFiles calls fn for every file under root whose extension is in exts
// (the upload extensions when empty). Hidden entries are skipped when asked.
// Walk errors on single entries are counted as failures, not returned.
func WalkFiles(root string, exts []string, skipHidden bool, fn func(path string) error) (DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return stats, errors.New("root path is required")
	}
	allow := extSet(exts)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if _, ok := allow[constants.NormalizeExt(filepath.Ext(path))]; !ok {
			return nil
		}
		stats.Matched++
		return fn(path)
	})
	if err != nil {
		return stats, fmt.Errorf("walk: %w", err)
	}
	return stats, nil
}

// DirOptions selects and paces the files of a directory ingest.
type DirOptions struct {
	Extensions []string // upload extensions when empty
	SkipHidden bool
	Workers    int
	Timeout    time.Duration // per file
}

// IngestDirectory ingests every matching file under root on a worker queue
// and returns per-file results, sorted by path, with aggregate stats.
// Files still queued when ctx ends are reported as failed.
func (u *Usecase) IngestDirectory(ctx context.Context, projectID uuid.UUID, mode constants.ExtractionMode, root string, opts DirOptions) ([]FileResult, DirStats, error) {
	var (
		mu      sync.Mutex
		results []FileResult
		agg     DirStats
	)
	q := async.NewQueue(async.ProcessorFunc(func(jobCtx context.Context, job async.Job) error {
		var (
			res FileResult
			err = ctx.Err()
		)
		if err == nil {
			res, err = u.IngestPath(jobCtx, job.ProjectID, job.Mode, job.Path)
		}
		res.Path = job.Path

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Err = err.Error()
			agg.Failed++
		} else {
			agg.Succeeded++
			if res.Deduplicated {
				agg.Deduplicated++
			}
		}
		results = append(results, res)
		return err
	}), u.logger, async.WithWorkers(opts.Workers), async.WithProcessTimeout(opts.Timeout))

	stats, err := WalkFiles(root, opts.Extensions, opts.SkipHidden, func(path string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return q.Enqueue(ctx, async.Job{Path: path, ProjectID: projectID, Mode: mode})
	})
	q.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	stats.Succeeded = agg.Succeeded
	stats.Deduplicated = agg.Deduplicated
	stats.Failed += agg.Failed
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	u.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, err
}

func extSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return constants.AllowedExtensions
	}
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if e = constants.NormalizeExt(strings.TrimSpace(e)); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func normalizedExt(path string) string {
	return constants.NormalizeExt(filepath.Ext(path))
}
