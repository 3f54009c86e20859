package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunStopsAtMutationCap(t *testing.T) {
	p := New(4, 50)
	var count int64
	err := p.Run(context.Background(), func(ctx context.Context, workerID int) error {
		atomic.AddInt64(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 50 {
		t.Fatalf("expected exactly 50 iterations run, got %d", count)
	}
	if p.WorkersFinished() != 4 {
		t.Fatalf("expected all 4 workers to report finished, got %d", p.WorkersFinished())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p := New(3, 0)
	ctx, cancel := context.WithCancel(context.Background())

	var count int64
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, func(ctx context.Context, workerID int) error {
			atomic.AddInt64(&count, 1)
			time.Sleep(time.Millisecond)
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after context cancellation")
	}
	if atomic.LoadInt64(&count) == 0 {
		t.Fatal("expected at least some iterations to have run before cancellation")
	}
}

func TestRunPropagatesFatalError(t *testing.T) {
	p := New(2, 0)
	wantErr := context.Canceled
	err := p.Run(context.Background(), func(ctx context.Context, workerID int) error {
		return wantErr
	})
	if err == nil {
		t.Fatal("expected fatal iteration error to propagate")
	}
}

func TestNewClampsThreadsToAtLeastOne(t *testing.T) {
	p := New(0, 0)
	if p.threads != 1 {
		t.Fatalf("expected threads to clamp to 1, got %d", p.threads)
	}
}
