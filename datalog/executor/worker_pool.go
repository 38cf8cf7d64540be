package executor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// WorkerPool runs independent tasks on a bounded number of goroutines.
// With one worker, tasks run in order on the caller's goroutine.
type WorkerPool struct {
	workerCount int
}

// NewWorkerPool creates a new worker pool. workerCount <= 0 means 1.
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{workerCount: workerCount}
}

// Execute calls task(ctx, i) for every i in [0, n). The first error
// cancels the context passed to the remaining tasks and is returned once
// all started tasks have finished. Tasks not yet started when the context
// is done are skipped.
func (p *WorkerPool) Execute(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}

	if p.workerCount == 1 || n == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := task(ctx, i); err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := task(gctx, i); err != nil {
				return fmt.Errorf("task %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// WorkerCount returns the number of worker goroutines
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}
