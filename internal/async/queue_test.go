package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestQueue_ProcessesAllJobs(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	proc := ProcessorFunc(func(_ context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Path)
		return nil
	})
	q := NewQueue(proc, discard(), WithWorkers(3), WithQueueSize(2))

	for _, p := range []string{"a.pdf", "b.pdf", "c.txt", "d.pdf", "e.pdf"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p}))
	}
	q.Shutdown(context.Background())

	assert.ElementsMatch(t, []string{"a.pdf", "b.pdf", "c.txt", "d.pdf", "e.pdf"}, seen)
}

func TestQueue_FailuresDoNotStopWorkers(t *testing.T) {
	var ok atomic.Int32
	proc := ProcessorFunc(func(_ context.Context, job Job) error {
		if job.Path == "bad" {
			return errors.New("boom")
		}
		ok.Add(1)
		return nil
	})
	q := NewQueue(proc, discard(), WithWorkers(1))
	for _, p := range []string{"bad", "good", "bad", "good"} {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: p}))
	}
	q.Shutdown(context.Background())
	assert.Equal(t, int32(2), ok.Load())
}

func TestQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewQueue(ProcessorFunc(func(context.Context, Job) error { return nil }), discard())
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())

	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{Path: "late.pdf"}), ErrQueueClosed)
}

func TestQueue_ProcessTimeout(t *testing.T) {
	got := make(chan error, 1)
	proc := ProcessorFunc(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		got <- ctx.Err()
		return ctx.Err()
	})
	q := NewQueue(proc, discard(), WithWorkers(1), WithProcessTimeout(10*time.Millisecond))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow.pdf"}))
	q.Shutdown(context.Background())

	assert.ErrorIs(t, <-got, context.DeadlineExceeded)
}

func TestQueue_EnqueueRespectsContextWhenFull(t *testing.T) {
	block := make(chan struct{})
	proc := ProcessorFunc(func(context.Context, Job) error {
		<-block
		return nil
	})
	q := NewQueue(proc, discard(), WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(block)
		q.Shutdown(context.Background())
	}()

	// One job is held by the worker, one fills the buffer.
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "1"}))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "2"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Enqueue(ctx, Job{Path: "3"}), context.DeadlineExceeded)
}
