package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string // directories to watch (recursive)
	Extensions  []string // empty means the upload extensions
	InitialScan bool     // emit files already present under Roots
	SkipHidden  bool
	Debounce    time.Duration // coalesce create/write bursts per file
}

// Watch emits paths of invoice files created or rewritten under the roots
// until ctx is done. Both channels are closed on return.
func Watch(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no roots provided")
	}
	allow := extSet(cfg.Extensions)
	matches := func(path string) bool {
		if cfg.SkipHidden && IsHidden(path) {
			return false
		}
		_, ok := allow[normalizedExt(path)]
		return ok
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("ingest.watch.create_failed", "error", err)
		return nil, nil, err
	}

	var initial []string
	for _, root := range cfg.Roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if cfg.SkipHidden && path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if cfg.InitialScan && matches(path) {
				initial = append(initial, path)
			}
			return nil
		})
		if err != nil {
			logger.Error("ingest.watch.add_root_failed", "root", root, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(evCh)
		defer w.Close()

		var (
			mu      sync.Mutex
			timers  = map[string]*time.Timer{}
			emitted sync.WaitGroup
		)
		defer emitted.Wait()

		emit := func(path string) {
			select {
			case evCh <- path:
			case <-ctx.Done():
			}
		}
		for _, p := range initial {
			emit(p)
		}

		for {
			select {
			case <-ctx.Done():
				mu.Lock()
				for p, t := range timers {
					if t.Stop() {
						emitted.Done()
					}
					delete(timers, p)
				}
				mu.Unlock()
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					// New directories are watched too; files make Add fail harmlessly.
					_ = w.Add(e.Name)
				}
				if !matches(e.Name) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
					continue
				}
				if cfg.Debounce <= 0 {
					emit(e.Name)
					continue
				}
				path := e.Name
				mu.Lock()
				if t, ok := timers[path]; ok && t.Stop() {
					emitted.Done()
				}
				emitted.Add(1)
				timers[path] = time.AfterFunc(cfg.Debounce, func() {
					defer emitted.Done()
					mu.Lock()
					delete(timers, path)
					mu.Unlock()
					emit(path)
				})
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("ingest.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
