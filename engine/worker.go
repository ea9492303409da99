package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// workerLoop pulls tasks from the queue until shutdown closes it or
// cancels the engine context.
func (e *Engine[R]) workerLoop(id int) {
	log := e.logger.With(slog.Int("worker", id))
	for {
		t, err := e.queue.Dequeue(e.baseCtx)
		if err != nil {
			return
		}
		e.metrics.queueDepth.Dec()

		// Cancelled while queued: already finalized, nothing to run.
		if t.isTerminal() {
			continue
		}
		e.runTask(log, t)
	}
}

// runTask drives one task through admission (concurrency gate, then
// rate limiter), a single execution attempt, and the
// success/retry/failure decision. Retries hand the task back to the
// queue; everything else finalizes it.
func (e *Engine[R]) runTask(log *slog.Logger, t *task[R]) {
	if err := e.gate.Acquire(t.ctx); err != nil {
		e.finishCancelled(t, cancelErr(t.ctx))
		return
	}
	if err := e.limiter.Admit(t.ctx); err != nil {
		e.gate.Release()
		e.finishCancelled(t, cancelErr(t.ctx))
		return
	}
	// Re-check after possibly long waits at the gate and limiter.
	if t.isTerminal() {
		e.gate.Release()
		return
	}

	attempt := t.markAttempt()
	t.setState(stateRunning)
	e.running.Add(1)
	e.metrics.running.Inc()

	val, err := e.runAttempt(t)

	e.running.Add(-1)
	e.metrics.running.Dec()
	e.gate.Release()

	switch {
	case t.ctx.Err() != nil:
		// Cancelled mid-attempt. Even a late success is discarded; the
		// caller withdrew interest.
		e.finishCancelled(t, cancelErr(t.ctx))

	case err == nil:
		e.finish(t, Result[R]{Outcome: OutcomeSuccess, Value: val})

	case attempt < t.maxAttempts && e.conf.retry.Retryable(err):
		e.scheduleRetry(log, t, attempt, err)

	default:
		log.Debug("task failed",
			slog.String("task", t.id),
			slog.Int("attempts", attempt),
			slog.Any("error", err),
		)
		e.finish(t, Result[R]{Outcome: OutcomeFailure, Err: err})
	}
}

// runAttempt executes the work function once under the per-attempt
// timeout, converting panics into permanent errors.
func (e *Engine[R]) runAttempt(t *task[R]) (val R, err error) {
	ctx := t.ctx
	cancel := context.CancelFunc(func() {})
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(t.ctx, t.timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("task panicked: %v\n%s", r, debug.Stack()))
		}
	}()

	val, err = t.work(ctx)

	// Attribute attempt-deadline expiry even when the work function
	// surfaces its own error, so the retry policy's timeout rule sees
	// it. Task-level cancellation is handled by the caller.
	if err != nil && t.ctx.Err() == nil &&
		errors.Is(ctx.Err(), context.DeadlineExceeded) &&
		!errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(context.DeadlineExceeded, err)
	}
	return val, err
}

// scheduleRetry re-enqueues t after the backoff delay. The wait runs on
// its own goroutine so the worker is free to pick up other tasks; the
// task stays pending (AwaitIdle keeps waiting) until it finalizes.
func (e *Engine[R]) scheduleRetry(log *slog.Logger, t *task[R], attempt int, cause error) {
	delay := e.backoff.NextDelay(attempt-1, cause)

	t.setState(stateQueued)
	e.retries.Add(1)
	e.metrics.retries.Inc()
	log.Debug("retrying task",
		slog.String("task", t.id),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.Any("error", cause),
	)

	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-t.ctx.Done():
			e.finishCancelled(t, cancelErr(t.ctx))
			return
		}
		if err := e.queue.Enqueue(t.ctx, t); err != nil {
			e.finishCancelled(t, fmt.Errorf("%w: %v", ErrCancelled, err))
			return
		}
		e.metrics.queueDepth.Inc()
	}()
}

// cancelErr builds the Result error for a cancelled task, preserving
// the context cause when there is one.
func cancelErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return ErrCancelled
}
