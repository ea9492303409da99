package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/execq/internal/backoff"
)

// Engine executes submitted tasks under a concurrency bound, an
// optional rate limit, and a retry policy, delivering exactly one
// terminal Result per task. Construct with New, call Start, submit
// work, and call Shutdown when done.
//
// Type parameters:
//   - R: The result type produced by task work functions
//
// Example:
//
//	eng := engine.New[string](
//	    engine.WithMaxConcurrency(8),
//	    engine.WithRateLimit(50, 10),
//	    engine.WithRetryPolicy(engine.RetryPolicy{
//	        MaxAttempts: 3,
//	        BaseDelay:   100 * time.Millisecond,
//	        MaxDelay:    5 * time.Second,
//	    }),
//	)
//	if err := eng.Start(); err != nil {
//	    return err
//	}
//	defer eng.Shutdown(true)
//
//	h, err := eng.Submit(ctx, fetchPage)
//	if err != nil {
//	    return err
//	}
//	res := h.Get()
type Engine[R any] struct {
	conf    *config
	logger  *slog.Logger
	metrics *metrics

	mu       sync.Mutex
	started  bool
	stopping atomic.Bool

	// baseCtx is the root of every task context; baseCancel is the
	// engine-wide kill switch pulled during Shutdown.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	queue   *taskQueue[R]
	gate    *gate
	limiter *rateLimiter

	// backoff is shared across workers so stateful strategies (the
	// decorrelated kind) see the full retry history.
	backoff backoff.Strategy

	// registry tracks every non-terminal task so Cancel-by-ID and the
	// shutdown sweep can reach tasks the caller no longer holds.
	regMu    sync.Mutex
	registry map[string]*task[R]

	// pending counts tasks between acceptance and terminal outcome.
	// idleCh is closed and replaced each time pending reaches zero.
	pending atomic.Int64
	idleMu  sync.Mutex
	idleCh  chan struct{}

	workersDone chan struct{}

	// stream is non-nil only when WithResultBuffer is set.
	stream chan Result[R]

	submitted atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	retries   atomic.Uint64
	running   atomic.Int64
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Submitted  uint64
	Succeeded  uint64
	Failed     uint64
	Cancelled  uint64
	Retries    uint64
	QueueDepth int
	Running    int
}

// New creates an engine with the given options. The engine does not
// accept work until Start is called.
func New[R any](opts ...Option) *Engine[R] {
	cfg := newConfig(opts...)
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine[R]{
		conf:        cfg,
		logger:      cfg.logger,
		metrics:     newMetrics(cfg.registerer),
		baseCtx:     ctx,
		baseCancel:  cancel,
		queue:       newTaskQueue[R](cfg.queueCapacity),
		gate:        newGate(cfg.maxConcurrency),
		limiter:     newRateLimiter(cfg.ratePerSecond, cfg.burst),
		backoff:     cfg.retry.strategy(),
		registry:    make(map[string]*task[R]),
		idleCh:      make(chan struct{}),
		workersDone: make(chan struct{}),
	}
	if cfg.resultBuffer > 0 {
		e.stream = make(chan Result[R], cfg.resultBuffer)
	}
	return e
}

// Start launches the worker pool. It returns ErrAlreadyStarted on a
// second call and ErrEngineShutdown after Shutdown.
func (e *Engine[R]) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopping.Load() {
		return ErrEngineShutdown
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	g := new(errgroup.Group)
	for i := range e.conf.workerCount {
		g.Go(func() error {
			e.workerLoop(i)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(e.workersDone)
	}()

	e.logger.Info("engine started",
		slog.Int("workers", e.conf.workerCount),
		slog.Int("max_concurrency", e.conf.maxConcurrency),
		slog.Int("queue_capacity", e.conf.queueCapacity),
		slog.Float64("rate_per_second", e.conf.ratePerSecond),
	)
	return nil
}

// Submit enqueues work and returns a Handle for observing its terminal
// Result. When the queue is full, Submit blocks until space frees up,
// ctx is done, or shutdown begins. Returns ErrNotStarted before Start
// and ErrEngineShutdown once shutdown has begun.
func (e *Engine[R]) Submit(ctx context.Context, work Work[R], opts ...SubmitOption) (*Handle[R], error) {
	return e.submit(ctx, work, true, opts...)
}

// TrySubmit is the non-blocking variant of Submit: when the queue is
// full it returns ErrQueueFull immediately instead of waiting.
func (e *Engine[R]) TrySubmit(work Work[R], opts ...SubmitOption) (*Handle[R], error) {
	return e.submit(context.Background(), work, false, opts...)
}

func (e *Engine[R]) submit(ctx context.Context, work Work[R], blocking bool, opts ...SubmitOption) (*Handle[R], error) {
	if work == nil {
		return nil, errors.New("work function is nil")
	}

	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}
	if e.stopping.Load() {
		return nil, ErrEngineShutdown
	}

	so := submitOptions{
		timeout:     e.conf.defaultTimeout,
		maxAttempts: e.conf.retry.MaxAttempts,
	}
	for _, opt := range opts {
		opt(&so)
	}

	tctx, cancel := context.WithCancel(e.baseCtx)
	t := &task[R]{
		id:          newTaskID(),
		work:        work,
		priority:    so.priority,
		timeout:     so.timeout,
		maxAttempts: so.maxAttempts,
		ctx:         tctx,
		cancel:      cancel,
		submittedAt: time.Now(),
	}

	h := newHandle[R](t.id)
	h.cancelFn = func() { e.cancelTask(t) }
	t.handle = h

	// Register before enqueueing so the task is visible to Cancel and
	// the shutdown sweep the moment a worker can see it.
	e.register(t)
	e.pending.Add(1)

	var err error
	if blocking {
		err = e.queue.Enqueue(ctx, t)
	} else {
		err = e.queue.TryEnqueue(t)
	}
	if err != nil {
		// A concurrent shutdown sweep may have finalized the task
		// between registration and enqueue; the terminal CAS decides
		// who rolls back.
		if t.terminal.CompareAndSwap(false, true) {
			e.unregister(t.id)
			e.decPending()
			cancel()
		}
		if errors.Is(err, ErrQueueClosed) {
			return nil, ErrEngineShutdown
		}
		return nil, err
	}

	e.submitted.Add(1)
	e.metrics.submitted.Inc()
	e.metrics.queueDepth.Inc()
	return h, nil
}

// Cancel withdraws the task with the given ID. It reports whether the
// task was found and still live; cancelling an unknown or terminal task
// returns false.
func (e *Engine[R]) Cancel(taskID string) bool {
	e.regMu.Lock()
	t, ok := e.registry[taskID]
	e.regMu.Unlock()
	if !ok {
		return false
	}
	e.cancelTask(t)
	return true
}

// cancelTask cancels t's context and, when t is not currently running,
// finalizes it immediately so the handle resolves without waiting for a
// worker to reach it. A running task is finalized by its worker, which
// observes the cancelled context.
func (e *Engine[R]) cancelTask(t *task[R]) {
	t.cancel()
	if t.getState() == stateRunning {
		return
	}
	e.finishCancelled(t, ErrCancelled)
}

// AwaitIdle blocks until the engine has no pending tasks (queued,
// running, or waiting on a retry delay), or until ctx is done.
func (e *Engine[R]) AwaitIdle(ctx context.Context) error {
	for {
		e.idleMu.Lock()
		ch := e.idleCh
		e.idleMu.Unlock()

		if e.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Shutdown stops the engine. With graceful true it waits up to the
// configured grace period for pending work to drain before cancelling
// whatever remains; with graceful false it cancels everything
// immediately. Either way no new submissions are accepted once Shutdown
// begins, every pending task still receives its terminal Result, and
// the Results stream (when enabled) is closed after the workers exit.
//
// Returns ErrShutdownTimeout when the drain or worker exit did not
// complete within the grace period, and ErrEngineShutdown on a second
// call.
func (e *Engine[R]) Shutdown(graceful bool) error {
	e.mu.Lock()
	started := e.started
	e.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if !e.stopping.CompareAndSwap(false, true) {
		return ErrEngineShutdown
	}

	e.logger.Info("engine shutting down", slog.Bool("graceful", graceful))

	var drainErr error
	if graceful {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if e.conf.gracePeriod > 0 {
			ctx, cancel = context.WithTimeout(ctx, e.conf.gracePeriod)
		}
		drainErr = e.AwaitIdle(ctx)
		cancel()
	}

	e.queue.Close()
	e.baseCancel()

	// Sweep tasks that survived the drain. Each finish is guarded by
	// the task's terminal CAS, so racing workers are harmless.
	swept := 0
	for _, t := range e.snapshotRegistry() {
		e.finishCancelled(t, fmt.Errorf("%w: engine shutdown", ErrCancelled))
		swept++
	}
	e.metrics.queueDepth.Set(0)
	if swept > 0 {
		e.logger.Info("cancelled remaining tasks", slog.Int("count", swept))
	}

	if err := waitUntil(e.workersDone, e.conf.gracePeriod); err != nil {
		return err
	}
	if e.stream != nil {
		close(e.stream)
	}
	if drainErr != nil {
		return ErrShutdownTimeout
	}
	e.logger.Info("engine stopped")
	return nil
}

// Results returns the result stream, or nil when WithResultBuffer was
// not set. The channel carries every terminal Result and is closed by
// Shutdown; consumers must drain it, since workers block on a full
// buffer.
func (e *Engine[R]) Results() <-chan Result[R] {
	return e.stream
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine[R]) Stats() Stats {
	return Stats{
		Submitted:  e.submitted.Load(),
		Succeeded:  e.succeeded.Load(),
		Failed:     e.failed.Load(),
		Cancelled:  e.cancelled.Load(),
		Retries:    e.retries.Load(),
		QueueDepth: e.queue.Len(),
		Running:    int(e.running.Load()),
	}
}

func (e *Engine[R]) register(t *task[R]) {
	e.regMu.Lock()
	e.registry[t.id] = t
	e.regMu.Unlock()
}

func (e *Engine[R]) unregister(id string) {
	e.regMu.Lock()
	delete(e.registry, id)
	e.regMu.Unlock()
}

func (e *Engine[R]) snapshotRegistry() []*task[R] {
	e.regMu.Lock()
	defer e.regMu.Unlock()
	out := make([]*task[R], 0, len(e.registry))
	for _, t := range e.registry {
		out = append(out, t)
	}
	return out
}

// decPending decrements the pending count and wakes AwaitIdle waiters
// when it reaches zero.
func (e *Engine[R]) decPending() {
	if e.pending.Add(-1) == 0 {
		e.idleMu.Lock()
		close(e.idleCh)
		e.idleCh = make(chan struct{})
		e.idleMu.Unlock()
	}
}

// finish publishes t's terminal Result. The terminal CAS makes it safe
// to call from a worker, a cancellation, and the shutdown sweep
// concurrently; exactly one caller wins.
func (e *Engine[R]) finish(t *task[R], res Result[R]) {
	if !t.terminal.CompareAndSwap(false, true) {
		return
	}

	res.TaskID = t.id
	res.Attempts = int(t.attempts.Load())
	res.Latency = time.Since(t.submittedAt)

	switch res.Outcome {
	case OutcomeSuccess:
		t.setState(stateSucceeded)
		e.succeeded.Add(1)
	case OutcomeFailure:
		t.setState(stateFailed)
		e.failed.Add(1)
	case OutcomeCancelled:
		t.setState(stateCancelled)
		e.cancelled.Add(1)
	}

	t.cancel()
	e.unregister(t.id)

	t.handle.complete(res)

	if e.stream != nil {
		// Prefer a non-blocking send so the shutdown sweep can still
		// deliver into buffer space after baseCtx is cancelled.
		select {
		case e.stream <- res:
		default:
			select {
			case e.stream <- res:
			case <-e.baseCtx.Done():
			}
		}
	}

	e.metrics.completed.WithLabelValues(outcomeLabel(res.Outcome)).Inc()
	e.metrics.duration.Observe(res.Latency.Seconds())
	e.decPending()
}

func (e *Engine[R]) finishCancelled(t *task[R], err error) {
	e.finish(t, Result[R]{Outcome: OutcomeCancelled, Err: err})
}

// waitUntil waits for done, bounded by d when d is positive.
func waitUntil(done <-chan struct{}, d time.Duration) error {
	if d <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(d):
		return ErrShutdownTimeout
	}
}
