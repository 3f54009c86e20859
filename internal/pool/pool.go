// Package pool implements the worker pool & lifecycle (C6): fanning
// out detached workers over errgroup, a shared mutation counter, and
// cooperative shutdown via cancellation. Grounded on the errgroup usage
// in tools/serial's test harness and on command.CancelOnSignals for the
// signal-driven shutdown path.
package pool

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Bluebear171/honggfuzz/internal/logger"
)

// IterationFunc runs one supervisor iteration for worker id, returning
// an error only for fatal conditions; per-iteration failures (seed-read,
// stage, external-mutator, timeout, crash) are the caller's concern and
// must be handled and logged inside IterationFunc, not returned here
// (spec.md §7: "the worker loop never panics on per-iteration errors;
// only fatal kinds terminate the process").
type IterationFunc func(ctx context.Context, workerID int) error

// Pool runs threads workers, each looping IterationFunc until ctx is
// canceled or the shared mutation counter reaches mutationsMax.
type Pool struct {
	threads      int
	mutationsMax uint64

	mutationsDone   uint64
	workersFinished int32
}

// New returns a Pool sized for threads workers. A pre-existing-process
// attach configuration (pid/pid_file) is reduced to a single worker by
// config.Validate before the pool is built; the pool has no attach mode
// of its own, and the supervisor still launches the target each
// iteration.
func New(threads int, mutationsMax uint64) *Pool {
	if threads < 1 {
		threads = 1
	}
	return &Pool{threads: threads, mutationsMax: mutationsMax}
}

// Run spawns the configured number of workers and blocks until they all
// exit, either because ctx was canceled or the mutation cap was
// reached. It returns the first fatal error encountered, if any.
func (p *Pool) Run(ctx context.Context, iter IterationFunc) error {
	eg, egCtx := errgroup.WithContext(ctx)

	for w := 0; w < p.threads; w++ {
		workerID := w
		eg.Go(func() error {
			return p.runWorker(egCtx, workerID, iter)
		})
	}

	return eg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID int, iter IterationFunc) error {
	defer atomic.AddInt32(&p.workersFinished, 1)

	for {
		select {
		case <-ctx.Done():
			logger.Debugf(ctx, "pool: worker %d stopping: %s", workerID, ctx.Err())
			return nil
		default:
		}

		done := atomic.AddUint64(&p.mutationsDone, 1)
		if p.mutationsMax > 0 && done > p.mutationsMax {
			// Give back the claim: this worker runs no further iteration.
			atomic.AddUint64(&p.mutationsDone, ^uint64(0))
			return nil
		}

		if err := iter(ctx, workerID); err != nil {
			return err
		}
	}
}

// MutationsDone returns the number of iterations claimed by workers so
// far (eventually consistent, per spec.md §5).
func (p *Pool) MutationsDone() uint64 {
	return atomic.LoadUint64(&p.mutationsDone)
}

// WorkersFinished returns how many workers have exited their loop.
func (p *Pool) WorkersFinished() int32 {
	return atomic.LoadInt32(&p.workersFinished)
}
