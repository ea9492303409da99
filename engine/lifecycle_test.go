package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEngine_Start_Twice(t *testing.T) {
	eng := startEngine[int](t)
	if err := eng.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestEngine_Start_AfterShutdown(t *testing.T) {
	eng := New[int]()
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := eng.Shutdown(true); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := eng.Start(); !errors.Is(err, ErrEngineShutdown) {
		t.Errorf("expected ErrEngineShutdown, got %v", err)
	}
}

func TestEngine_Shutdown_BeforeStart(t *testing.T) {
	eng := New[int]()
	if err := eng.Shutdown(true); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestEngine_Shutdown_Graceful_DrainsPendingWork(t *testing.T) {
	eng := New[int](WithMaxConcurrency(2), WithQueueCapacity(32))
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var completed atomic.Int32
	handles := make([]*Handle[int], 0, 10)
	for i := 0; i < 10; i++ {
		handles = append(handles, mustSubmit(t, eng, func(ctx context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return 1, nil
		}))
	}

	if err := eng.Shutdown(true); err != nil {
		t.Fatalf("graceful shutdown: %v", err)
	}

	if got := completed.Load(); got != 10 {
		t.Errorf("expected all 10 tasks to complete before shutdown returned, got %d", got)
	}
	for _, h := range handles {
		if res := h.Get(); res.Outcome != OutcomeSuccess {
			t.Errorf("expected success, got %v (err=%v)", res.Outcome, res.Err)
		}
	}

	if _, err := eng.Submit(context.Background(), func(ctx context.Context) (int, error) {
		return 0, nil
	}); !errors.Is(err, ErrEngineShutdown) {
		t.Errorf("Submit after shutdown: expected ErrEngineShutdown, got %v", err)
	}
	if err := eng.Shutdown(true); !errors.Is(err, ErrEngineShutdown) {
		t.Errorf("second shutdown: expected ErrEngineShutdown, got %v", err)
	}
}

func TestEngine_Shutdown_Forced_CancelsEverything(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	eng := New[int](
		WithMaxConcurrency(1),
		WithWorkerCount(1),
		WithQueueCapacity(10),
	)
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	handles := []*Handle[int]{mustSubmit(t, eng, gateWork(started, release))}
	waitSignal(t, started, time.Second)
	for i := 0; i < 3; i++ {
		handles = append(handles, mustSubmit(t, eng, gateWork(nil, release)))
	}

	if err := eng.Shutdown(false); err != nil {
		t.Fatalf("forced shutdown: %v", err)
	}

	// The running task and all queued tasks resolve as cancelled.
	for i, h := range handles {
		res, err := h.GetWithTimeout(time.Second)
		if err != nil {
			t.Fatalf("handle %d did not resolve: %v", i, err)
		}
		if res.Outcome != OutcomeCancelled {
			t.Errorf("handle %d: expected cancelled, got %v", i, res.Outcome)
		}
		if !errors.Is(res.Err, ErrCancelled) {
			t.Errorf("handle %d: expected ErrCancelled, got %v", i, res.Err)
		}
	}
}

func TestEngine_Shutdown_GracePeriodExceeded(t *testing.T) {
	eng := New[int](
		WithMaxConcurrency(1),
		WithShutdownGracePeriod(100*time.Millisecond),
	)
	if err := eng.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Deliberately ignores its context, so it cannot drain in time.
	h := mustSubmit(t, eng, func(ctx context.Context) (int, error) {
		time.Sleep(time.Second)
		return 1, nil
	})

	start := time.Now()
	err := eng.Shutdown(true)
	if !errors.Is(err, ErrShutdownTimeout) {
		t.Fatalf("expected ErrShutdownTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 700*time.Millisecond {
		t.Errorf("shutdown should give up after the grace period, took %v", elapsed)
	}

	res, err := h.GetWithTimeout(time.Second)
	if err != nil {
		t.Fatalf("handle did not resolve after forced sweep: %v", err)
	}
	if res.Outcome != OutcomeCancelled {
		t.Errorf("expected cancelled, got %v", res.Outcome)
	}
}

func TestEngine_AwaitIdle_Immediate(t *testing.T) {
	eng := startEngine[int](t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := eng.AwaitIdle(ctx); err != nil {
		t.Errorf("expected immediate idle, got %v", err)
	}
}

func TestEngine_AwaitIdle_WaitsForRetryDelays(t *testing.T) {
	eng := startEngine[int](t, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   150 * time.Millisecond,
		MaxDelay:    time.Second,
	}))

	var attempts atomic.Int32
	mustSubmit(t, eng, func(ctx context.Context) (int, error) {
		if attempts.Add(1) == 1 {
			return 0, errors.New("first attempt fails")
		}
		return 1, nil
	})

	start := time.Now()
	if err := eng.AwaitIdle(context.Background()); err != nil {
		t.Fatalf("await idle: %v", err)
	}
	elapsed := time.Since(start)

	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts before idle, got %d", got)
	}
	// A task waiting out its backoff delay is still pending.
	if minWait := 100 * time.Millisecond; elapsed < minWait {
		t.Errorf("AwaitIdle returned during the retry delay after %v", elapsed)
	}
}

func TestEngine_AwaitIdle_ContextCancelled(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	eng := startEngine[int](t, WithMaxConcurrency(1))

	mustSubmit(t, eng, gateWork(started, release))
	waitSignal(t, started, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := eng.AwaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}
