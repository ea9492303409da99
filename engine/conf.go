package engine

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultTimeout is the per-attempt timeout applied when neither the
// engine nor the submission specifies one.
const DefaultTimeout = 30 * time.Second

// DefaultGracePeriod bounds how long a graceful Shutdown waits for
// in-flight work to drain.
const DefaultGracePeriod = 30 * time.Second

// Option is a functional option for configuring an Engine.
type Option func(*config)

type config struct {
	maxConcurrency int
	workerCount    int
	ratePerSecond  float64
	burst          int
	queueCapacity  int
	retry          RetryPolicy
	gracePeriod    time.Duration
	defaultTimeout time.Duration
	resultBuffer   int
	logger         *slog.Logger
	registerer     prometheus.Registerer
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		maxConcurrency: runtime.GOMAXPROCS(0),
		retry:          DefaultRetryPolicy(),
		gracePeriod:    DefaultGracePeriod,
		defaultTimeout: DefaultTimeout,
		logger:         slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.workerCount == 0 {
		cfg.workerCount = cfg.maxConcurrency
	}
	if cfg.queueCapacity == 0 {
		cfg.queueCapacity = cfg.maxConcurrency * 2
	}

	return cfg
}

// WithMaxConcurrency caps the number of tasks that may be in the
// Running state simultaneously. Defaults to runtime.GOMAXPROCS(0).
func WithMaxConcurrency(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.maxConcurrency = n
		}
	}
}

// WithWorkerCount sets the number of worker goroutines pulling from the
// queue. Defaults to the max concurrency; a larger pool lets workers
// pre-stage at the gate and rate limiter while others execute.
func WithWorkerCount(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.workerCount = n
		}
	}
}

// WithRateLimit caps throughput across all workers at perSecond task
// starts per second with the given burst, independent of concurrency.
// This is useful for not overwhelming a downstream service. If not
// specified, no rate limiting is applied.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 task starts/sec, burst of 5
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *config) {
		if perSecond > 0 && burst > 0 {
			cfg.ratePerSecond = perSecond
			cfg.burst = burst
		}
	}
}

// WithQueueCapacity bounds the task queue. Blocking Submit waits when
// the queue is full (backpressure); TrySubmit fails with ErrQueueFull.
// Defaults to twice the max concurrency.
func WithQueueCapacity(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.queueCapacity = n
		}
	}
}

// WithRetryPolicy sets the engine-wide retry policy. Individual
// submissions may override the attempt budget via WithMaxAttempts.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *config) {
		cfg.retry = p.normalized()
	}
}

// WithShutdownGracePeriod bounds how long a graceful Shutdown waits for
// in-flight and queued work before cancelling the remainder. Zero means
// wait forever.
func WithShutdownGracePeriod(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.gracePeriod = d
		}
	}
}

// WithDefaultTimeout sets the per-attempt timeout applied to
// submissions that do not carry their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.defaultTimeout = d
		}
	}
}

// WithResultBuffer enables the Results() stream with the given buffer
// size. Without this option the stream is disabled and results are
// observed through handles and callbacks only. A consumer must drain
// the stream; workers block on it once the buffer fills.
func WithResultBuffer(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.resultBuffer = n
		}
	}
}

// WithLogger sets the structured logger used for lifecycle, retry, and
// shutdown events. Defaults to a discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithMetrics registers the engine's Prometheus collectors with reg.
// Each engine owns its own collector instances, so multiple engines can
// coexist by registering against different registries (or one engine
// against the default registry).
func WithMetrics(reg prometheus.Registerer) Option {
	return func(cfg *config) {
		cfg.registerer = reg
	}
}

// SubmitOption is a functional option applied to a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	priority    int
	timeout     time.Duration
	maxAttempts int
}

// WithPriority sets the task's queue priority. Higher values dequeue
// first; tasks of equal priority dequeue in submission order. Defaults
// to 0.
func WithPriority(p int) SubmitOption {
	return func(so *submitOptions) {
		so.priority = p
	}
}

// WithTimeout overrides the engine's default per-attempt timeout for
// this task.
func WithTimeout(d time.Duration) SubmitOption {
	return func(so *submitOptions) {
		if d > 0 {
			so.timeout = d
		}
	}
}

// WithMaxAttempts overrides the retry policy's attempt budget for this
// task.
func WithMaxAttempts(n int) SubmitOption {
	return func(so *submitOptions) {
		if n > 0 {
			so.maxAttempts = n
		}
	}
}
