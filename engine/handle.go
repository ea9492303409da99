package engine

import (
	"context"
	"sync"
	"time"
)

// Handle is the caller's view of a submitted task. It exposes the
// task's identity, cancellation, and four ways to observe the single
// terminal Result: blocking Get, context- and timeout-bounded variants,
// and OnComplete callbacks. All of them observe the same underlying
// completion event.
//
// Type parameters:
//   - R: The result type produced by the task's work function
//
// Example:
//
//	h, err := eng.Submit(ctx, fetchUser)
//	if err != nil {
//	    return err
//	}
//	res := h.Get()
//	if res.Outcome == engine.OutcomeSuccess {
//	    use(res.Value)
//	}
type Handle[R any] struct {
	id   string
	done chan struct{}
	res  Result[R]

	mu        sync.Mutex
	callbacks []func(Result[R])

	cancelFn func()
}

func newHandle[R any](id string) *Handle[R] {
	return &Handle[R]{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the task's unique identifier.
func (h *Handle[R]) ID() string {
	return h.id
}

// Cancel withdraws interest in the task. A queued task never starts; a
// running task is interrupted at its next suspension point (or runs to
// completion with its result discarded if the work ignores its
// context). Cancelling an already-terminal task is a no-op.
func (h *Handle[R]) Cancel() {
	h.cancelFn()
}

// Done returns a channel closed when the terminal Result is available.
func (h *Handle[R]) Done() <-chan struct{} {
	return h.done
}

// IsReady reports whether the terminal Result is available without
// blocking.
func (h *Handle[R]) IsReady() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Get blocks until the terminal Result is available and returns it.
func (h *Handle[R]) Get() Result[R] {
	<-h.done
	return h.res
}

// GetWithContext blocks until the terminal Result is available or ctx
// is done, whichever comes first.
func (h *Handle[R]) GetWithContext(ctx context.Context) (Result[R], error) {
	select {
	case <-h.done:
		return h.res, nil
	case <-ctx.Done():
		var zero Result[R]
		return zero, ctx.Err()
	}
}

// GetWithTimeout blocks for at most d waiting for the terminal Result.
func (h *Handle[R]) GetWithTimeout(d time.Duration) (Result[R], error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return h.GetWithContext(ctx)
}

// OnComplete registers fn to run when the terminal Result is delivered.
// If the task is already terminal, fn runs immediately on the calling
// goroutine; otherwise it runs on the worker goroutine that finalized
// the task. Keep callbacks short or hand off to another goroutine.
func (h *Handle[R]) OnComplete(fn func(Result[R])) {
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		fn(h.res)
		return
	default:
	}
	h.callbacks = append(h.callbacks, fn)
	h.mu.Unlock()
}

// complete publishes the terminal result and fires callbacks. Called
// exactly once, guarded by the task's terminal CAS.
func (h *Handle[R]) complete(res Result[R]) {
	h.res = res
	close(h.done)

	h.mu.Lock()
	cbs := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	for _, cb := range cbs {
		cb(res)
	}
}
