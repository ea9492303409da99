package engine

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// gate caps the number of simultaneously running tasks. It is a thin
// wrapper over a weighted semaphore so a blocked acquire aborts when
// the task is cancelled or the engine shuts down.
type gate struct {
	sem *semaphore.Weighted
}

func newGate(maxConcurrency int) *gate {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &gate{sem: semaphore.NewWeighted(int64(maxConcurrency))}
}

func (g *gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *gate) Release() {
	g.sem.Release(1)
}
