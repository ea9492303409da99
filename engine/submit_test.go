package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestEngine_Submit_DeliversResult(t *testing.T) {
	eng := startEngine[int](t)

	h := mustSubmit(t, eng, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	res := h.Get()
	if res.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %v (err=%v)", res.Outcome, res.Err)
	}
	if res.Value != 42 {
		t.Errorf("expected value 42, got %d", res.Value)
	}
	if res.Err != nil {
		t.Errorf("expected nil error, got %v", res.Err)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if res.TaskID != h.ID() {
		t.Errorf("result task ID %q does not match handle ID %q", res.TaskID, h.ID())
	}
	if res.Latency <= 0 {
		t.Errorf("expected positive latency, got %v", res.Latency)
	}
}

func TestEngine_Submit_BeforeStart(t *testing.T) {
	eng := New[int]()

	work := func(ctx context.Context) (int, error) { return 0, nil }
	if _, err := eng.Submit(context.Background(), work); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Submit: expected ErrNotStarted, got %v", err)
	}
	if _, err := eng.TrySubmit(work); !errors.Is(err, ErrNotStarted) {
		t.Errorf("TrySubmit: expected ErrNotStarted, got %v", err)
	}
}

func TestEngine_Submit_NilWork(t *testing.T) {
	eng := startEngine[int](t)

	if _, err := eng.Submit(context.Background(), nil); err == nil {
		t.Error("expected error for nil work function")
	}
}

func TestEngine_TrySubmit_QueueFull(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	eng := startEngine[int](t,
		WithMaxConcurrency(1),
		WithWorkerCount(1),
		WithQueueCapacity(1),
	)

	// Occupy the single worker, then fill the single queue slot.
	mustSubmit(t, eng, gateWork(started, release))
	waitSignal(t, started, time.Second)
	mustSubmit(t, eng, gateWork(nil, release))

	if _, err := eng.TrySubmit(gateWork(nil, release)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	if err := eng.AwaitIdle(context.Background()); err != nil {
		t.Fatalf("await idle: %v", err)
	}

	// Capacity freed up; a new submission is accepted again.
	h, err := eng.TrySubmit(func(ctx context.Context) (int, error) { return 7, nil })
	if err != nil {
		t.Fatalf("TrySubmit after drain: %v", err)
	}
	if res := h.Get(); res.Value != 7 {
		t.Errorf("expected value 7, got %d", res.Value)
	}
}

func TestEngine_Submit_BlocksOnFullQueue(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	eng := startEngine[int](t,
		WithMaxConcurrency(1),
		WithWorkerCount(1),
		WithQueueCapacity(1),
	)

	mustSubmit(t, eng, gateWork(started, release))
	waitSignal(t, started, time.Second)
	mustSubmit(t, eng, gateWork(nil, release))

	submitted := make(chan *Handle[int], 1)
	go func() {
		h, err := eng.Submit(context.Background(), func(ctx context.Context) (int, error) {
			return 3, nil
		})
		if err == nil {
			submitted <- h
		}
	}()

	// The queue is full, so the blocking submit must not complete yet.
	select {
	case <-submitted:
		t.Fatal("Submit returned while the queue was full")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case h := <-submitted:
		if res := h.Get(); res.Outcome != OutcomeSuccess {
			t.Errorf("expected success after unblock, got %v", res.Outcome)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not unblock after the queue drained")
	}
}

func TestEngine_Submit_ContextCancelledWhileBlocked(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	defer close(release)
	eng := startEngine[int](t,
		WithMaxConcurrency(1),
		WithWorkerCount(1),
		WithQueueCapacity(1),
	)

	mustSubmit(t, eng, gateWork(started, release))
	waitSignal(t, started, time.Second)
	mustSubmit(t, eng, gateWork(nil, release))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := eng.Submit(ctx, func(ctx context.Context) (int, error) { return 0, nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestEngine_Submit_PriorityOrdering(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	eng := startEngine[int](t,
		WithMaxConcurrency(1),
		WithWorkerCount(1),
		WithQueueCapacity(10),
	)

	// Hold the single worker so the queue backs up.
	mustSubmit(t, eng, gateWork(started, release))
	waitSignal(t, started, time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) Work[int] {
		return func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return 0, nil
		}
	}

	mustSubmit(t, eng, record("low-a"))
	mustSubmit(t, eng, record("low-b"))
	mustSubmit(t, eng, record("high"), WithPriority(5))

	close(release)
	if err := eng.AwaitIdle(context.Background()); err != nil {
		t.Fatalf("await idle: %v", err)
	}

	want := []string{"high", "low-a", "low-b"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("expected %d executions, got %v", len(want), order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected execution order %v, got %v", want, order)
		}
	}
}

func TestEngine_Results_StreamsEveryOutcome(t *testing.T) {
	eng := New[int](WithResultBuffer(16))
	if err := eng.Start(); err != nil {
		t.Fatalf("start engine: %v", err)
	}

	for i := 0; i < 3; i++ {
		mustSubmit(t, eng, func(ctx context.Context) (int, error) { return 1, nil })
	}
	mustSubmit(t, eng, func(ctx context.Context) (int, error) {
		return 0, Permanentf("bad input")
	})

	if err := eng.Shutdown(true); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	var succeeded, failed int
	for res := range eng.Results() {
		switch res.Outcome {
		case OutcomeSuccess:
			succeeded++
		case OutcomeFailure:
			failed++
		default:
			t.Errorf("unexpected outcome %v", res.Outcome)
		}
	}
	if succeeded != 3 || failed != 1 {
		t.Errorf("expected 3 successes and 1 failure, got %d and %d", succeeded, failed)
	}
}

func TestEngine_Results_NilWithoutBuffer(t *testing.T) {
	eng := startEngine[int](t)
	if eng.Results() != nil {
		t.Error("expected nil results stream when no buffer is configured")
	}
}

func TestEngine_Stats(t *testing.T) {
	eng := startEngine[int](t)

	for i := 0; i < 2; i++ {
		mustSubmit(t, eng, func(ctx context.Context) (int, error) { return 1, nil })
	}
	mustSubmit(t, eng, func(ctx context.Context) (int, error) {
		return 0, Permanentf("nope")
	})

	if err := eng.AwaitIdle(context.Background()); err != nil {
		t.Fatalf("await idle: %v", err)
	}

	st := eng.Stats()
	if st.Submitted != 3 {
		t.Errorf("expected 3 submitted, got %d", st.Submitted)
	}
	if st.Succeeded != 2 {
		t.Errorf("expected 2 succeeded, got %d", st.Succeeded)
	}
	if st.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", st.Failed)
	}
	if st.Running != 0 || st.QueueDepth != 0 {
		t.Errorf("expected idle engine, got running=%d depth=%d", st.Running, st.QueueDepth)
	}
}
