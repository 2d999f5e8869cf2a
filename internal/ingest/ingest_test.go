package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/site-invoices/constants"
	"github.com/joseph-ayodele/site-invoices/internal/entity"
	"github.com/joseph-ayodele/site-invoices/internal/invoices"
)

type fakeIngester struct {
	mu   sync.Mutex
	seen map[string]bool
	reqs []invoices.IngestRequest
}

func (f *fakeIngester) Ingest(_ context.Context, req invoices.IngestRequest) (invoices.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if string(req.Data) == "broken" {
		return invoices.IngestResult{}, errors.New("not an invoice")
	}
	key := string(req.Data)
	dup := f.seen[key]
	f.seen[key] = true
	return invoices.IngestResult{Invoice: &entity.SupplierInvoice{ID: uuid.New()}, Deduplicated: dup}, nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "one")
	writeFile(t, filepath.Join(root, "nested", "b.TXT"), "two")
	writeFile(t, filepath.Join(root, "nested", "copy.txt"), "one")
	writeFile(t, filepath.Join(root, "bad.txt"), "broken")
	writeFile(t, filepath.Join(root, "photo.jpg"), "img")
	writeFile(t, filepath.Join(root, ".hidden", "c.pdf"), "three")
	writeFile(t, filepath.Join(root, ".d.pdf"), "four")
	return root
}

func TestWalkFiles(t *testing.T) {
	root := fixtureDir(t)

	var got []string
	stats, err := WalkFiles(root, nil, true, func(path string) error {
		rel, _ := filepath.Rel(root, path)
		got = append(got, rel)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.pdf", "bad.txt", filepath.Join("nested", "b.TXT"), filepath.Join("nested", "copy.txt")}, got)
	assert.Equal(t, uint32(5), stats.Scanned)
	assert.Equal(t, uint32(4), stats.Matched)

	got = nil
	stats, err = WalkFiles(root, []string{".pdf"}, false, func(path string) error {
		got = append(got, filepath.Base(path))
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.pdf", "c.pdf", ".d.pdf"}, got)
	assert.Equal(t, uint32(3), stats.Matched)

	_, err = WalkFiles(" ", nil, true, func(string) error { return nil })
	assert.Error(t, err)
}

func TestIngestDirectory(t *testing.T) {
	root := fixtureDir(t)
	fake := &fakeIngester{seen: map[string]bool{}}
	u := NewUsecase(fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
	projectID := uuid.New()

	results, stats, err := u.IngestDirectory(context.Background(), projectID, constants.ModeModel, root, DirOptions{
		SkipHidden: true,
		Workers:    3,
		Timeout:    time.Second,
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, filepath.Join(root, "a.pdf"), results[0].Path)
	assert.Equal(t, "not an invoice", results[1].Err)
	assert.Equal(t, uint32(4), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(1), stats.Failed)

	for _, req := range fake.reqs {
		assert.Equal(t, projectID.String(), req.ProjectID)
		assert.Equal(t, "MODEL", req.Mode)
		assert.NotContains(t, req.Filename, string(filepath.Separator))
	}
}

func TestIngestDirectory_CanceledContext(t *testing.T) {
	root := fixtureDir(t)
	fake := &fakeIngester{seen: map[string]bool{}}
	u := NewUsecase(fake, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, stats, err := u.IngestDirectory(ctx, uuid.New(), constants.ModeHeuristic, root, DirOptions{SkipHidden: true})
	require.Error(t, err)
	assert.Zero(t, stats.Succeeded)
	for _, r := range results {
		assert.NotEmpty(t, r.Err)
	}
	assert.Empty(t, fake.reqs)
}

func TestIngestPath_RejectsExtension(t *testing.T) {
	root := fixtureDir(t)
	u := NewUsecase(&fakeIngester{seen: map[string]bool{}}, nil)

	_, err := u.IngestPath(context.Background(), uuid.New(), constants.ModeHeuristic, filepath.Join(root, "photo.jpg"))
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, SkipHidden: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	select {
	case p := <-events:
		assert.Equal(t, filepath.Join(root, "existing.pdf"), p)
	case <-time.After(2 * time.Second):
		t.Fatal("initial scan did not emit")
	}

	writeFile(t, filepath.Join(root, "notes.md"), "ignored")
	writeFile(t, filepath.Join(root, "new.txt"), "y")
	select {
	case p := <-events:
		assert.Equal(t, filepath.Join(root, "new.txt"), p)
	case <-time.After(2 * time.Second):
		t.Fatal("new file was not emitted")
	}

	cancel()
	assert.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_NoRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
