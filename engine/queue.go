package engine

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
)

// taskQueue is the bounded buffer between producers and workers, and
// the engine's backpressure boundary. Ordering is strict priority
// (higher first) with FIFO tie-break by enqueue sequence, so a retry
// re-enqueues behind its priority peers.
//
// Capacity is enforced with a slot channel and availability is signaled
// with an item channel, so both Enqueue and Dequeue are cancellable
// selects; the heap itself is touched only under the mutex.
type taskQueue[R any] struct {
	mu   sync.Mutex
	heap taskHeap[R]
	seq  atomic.Uint64

	// slots holds one token per queued task; sending blocks when the
	// queue is at capacity.
	slots chan struct{}
	// items holds one token per queued task; receiving blocks when the
	// queue is empty. Capacity matches slots so sends never block.
	items chan struct{}

	closed atomic.Bool
	closeC chan struct{}
}

func newTaskQueue[R any](capacity int) *taskQueue[R] {
	if capacity <= 0 {
		capacity = 1
	}
	return &taskQueue[R]{
		heap:   make(taskHeap[R], 0, capacity),
		slots:  make(chan struct{}, capacity),
		items:  make(chan struct{}, capacity),
		closeC: make(chan struct{}),
	}
}

// Enqueue adds t, blocking while the queue is full. It returns
// ErrQueueClosed after Close, or ctx.Err() if ctx is done while
// blocked.
func (q *taskQueue[R]) Enqueue(ctx context.Context, t *task[R]) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	select {
	case q.slots <- struct{}{}:
	case <-q.closeC:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	q.push(t)
	return nil
}

// TryEnqueue adds t without blocking, returning ErrQueueFull when the
// queue is at capacity.
func (q *taskQueue[R]) TryEnqueue(t *task[R]) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	select {
	case q.slots <- struct{}{}:
	default:
		return ErrQueueFull
	}

	q.push(t)
	return nil
}

func (q *taskQueue[R]) push(t *task[R]) {
	q.mu.Lock()
	heap.Push(&q.heap, queuedTask[R]{t: t, seq: q.seq.Add(1)})
	q.mu.Unlock()

	// Guaranteed non-blocking: items capacity matches slots and we hold
	// a slot token.
	q.items <- struct{}{}
}

// Dequeue removes the highest-priority task, blocking while the queue
// is empty. After Close it drains the remaining tasks, then returns
// ErrQueueClosed.
func (q *taskQueue[R]) Dequeue(ctx context.Context) (*task[R], error) {
	select {
	case <-q.items:
		return q.pop(), nil
	case <-q.closeC:
		// Drain whatever is left before reporting closed.
		select {
		case <-q.items:
			return q.pop(), nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *taskQueue[R]) pop() *task[R] {
	q.mu.Lock()
	qt := heap.Pop(&q.heap).(queuedTask[R])
	q.mu.Unlock()

	<-q.slots
	return qt.t
}

// Close stops accepting tasks and wakes blocked producers and
// consumers. Idempotent.
func (q *taskQueue[R]) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.closeC)
	}
}

// Len returns the number of queued tasks.
func (q *taskQueue[R]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

type queuedTask[R any] struct {
	t   *task[R]
	seq uint64
}

// taskHeap orders tasks by descending priority, then ascending enqueue
// sequence. Implements heap.Interface.
type taskHeap[R any] []queuedTask[R]

func (h taskHeap[R]) Len() int { return len(h) }

func (h taskHeap[R]) Less(i, j int) bool {
	if h[i].t.priority != h[j].t.priority {
		return h[i].t.priority > h[j].t.priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap[R]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap[R]) Push(x any) {
	qt, ok := x.(queuedTask[R])
	if !ok {
		panic("taskHeap.Push: invalid type assertion")
	}
	*h = append(*h, qt)
}

func (h *taskHeap[R]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queuedTask[R]{}
	*h = old[:n-1]
	return item
}
