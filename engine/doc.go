// Package engine provides a bounded-concurrency, rate-limited task
// execution engine with retries and graceful cancellation.
//
// The primary type is Engine[R], a long-lived pool of workers that pull
// submitted tasks from a bounded priority queue and execute them under
// a concurrency cap, an optional token-bucket rate limit, and a
// configurable retry policy with exponential backoff and jitter. Every
// submitted task produces exactly one terminal Result, observable
// through its Handle, through OnComplete callbacks, or through the
// optional Results stream.
//
// # Basic Usage
//
//	eng := engine.New[string](engine.WithMaxConcurrency(8))
//	if err := eng.Start(); err != nil {
//	    return err
//	}
//	defer eng.Shutdown(true)
//
//	h, err := eng.Submit(ctx, func(ctx context.Context) (string, error) {
//	    return fetch(ctx, url)
//	})
//	if err != nil {
//	    return err
//	}
//	res := h.Get()
//
// # Retries
//
// Failed attempts are retried with backoff when the retry policy
// classifies the error as transient:
//
//	eng := engine.New[string](
//	    engine.WithRetryPolicy(engine.RetryPolicy{
//	        MaxAttempts: 5,
//	        BaseDelay:   100 * time.Millisecond,
//	        MaxDelay:    2 * time.Second,
//	    }),
//	)
//
// Delays grow exponentially (100ms, 200ms, 400ms, ...) up to MaxDelay,
// perturbed by jitter. Wrap errors with Permanent to fail immediately
// without retries, or with Transient to force a retry; timeouts are
// retryable by default.
//
// # Rate Limiting
//
// Throughput can be capped independently of concurrency, which is
// useful when the work calls a service with its own limits:
//
//	eng := engine.New[Resp](
//	    engine.WithMaxConcurrency(20),
//	    engine.WithRateLimit(5, 1), // 5 task starts/sec
//	)
//
// # Backpressure
//
// The queue is bounded. Submit blocks while the queue is full;
// TrySubmit returns ErrQueueFull instead. Priorities reorder the queue
// (higher first, FIFO within a priority) via the WithPriority submit
// option.
//
// # Cancellation and Shutdown
//
// Handle.Cancel (or Engine.Cancel by task ID) withdraws a task: a
// queued task never starts, a running one is interrupted through its
// context. Shutdown(true) drains pending work within the grace period
// and then cancels whatever remains; Shutdown(false) cancels
// immediately. In both cases every pending task still receives its
// terminal Result.
package engine
