package engine

import (
	"context"
	"testing"
	"time"
)

// startEngine builds and starts an engine, forcing shutdown when the
// test ends.
func startEngine[R any](t *testing.T, opts ...Option) *Engine[R] {
	t.Helper()
	eng := New[R](opts...)
	if err := eng.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Shutdown(false) })
	return eng
}

// gateWork returns a work function that signals started (when non-nil)
// and then blocks until release is closed or the task context is done.
func gateWork(started chan<- struct{}, release <-chan struct{}) Work[int] {
	return func(ctx context.Context) (int, error) {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// waitSignal fails the test if ch does not receive within the timeout.
func waitSignal(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for signal")
	}
}

func mustSubmit[R any](t *testing.T, eng *Engine[R], work Work[R], opts ...SubmitOption) *Handle[R] {
	t.Helper()
	h, err := eng.Submit(context.Background(), work, opts...)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return h
}
