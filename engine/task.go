package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// Work is the opaque unit of work executed by the engine. The engine
// does not know or care what it does; it only observes the returned
// value or error. Implementations should honor ctx cancellation if they
// want cancellation and per-attempt timeouts to interrupt them mid-run;
// work that ignores ctx runs to completion and has its result discarded
// on cancellation.
//
// Type parameters:
//   - R: The result type produced on success
type Work[R any] func(ctx context.Context) (R, error)

// Outcome is the terminal disposition of a task.
type Outcome int8

const (
	// OutcomeSuccess means the work function returned without error.
	OutcomeSuccess Outcome = iota
	// OutcomeFailure means the task exhausted its attempts or hit a
	// permanent error.
	OutcomeFailure
	// OutcomeCancelled means the caller or engine shutdown withdrew the
	// task before it could succeed. Never produced by a work error.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the single terminal record produced for every submitted
// task. Exactly one Result is delivered per task: to the task's Handle,
// to the Results stream when enabled, and to any OnComplete callbacks.
type Result[R any] struct {
	// TaskID identifies the task this result belongs to.
	TaskID string
	// Outcome is the terminal disposition.
	Outcome Outcome
	// Value is the work function's return value. Only meaningful when
	// Outcome is OutcomeSuccess.
	Value R
	// Err is the last error observed. Nil on success, ErrCancelled (or
	// a wrapping of it) on cancellation.
	Err error
	// Attempts is the number of execution attempts made.
	Attempts int
	// Latency is the time from submission to the terminal outcome,
	// including queueing, pacing, and retry delays.
	Latency time.Duration
}

// taskState tracks a task through its lifecycle. Transitions only move
// forward, except Running -> Queued which happens when a retry is
// re-enqueued.
type taskState int32

const (
	stateQueued taskState = iota
	stateRunning
	stateSucceeded
	stateFailed
	stateCancelled
)

func (s taskState) String() string {
	switch s {
	case stateQueued:
		return "queued"
	case stateRunning:
		return "running"
	case stateSucceeded:
		return "succeeded"
	case stateFailed:
		return "failed"
	case stateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// task pairs an immutable unit of work with its mutable execution
// state. The mutable fields are owned by whichever worker currently
// holds the task; ownership transfers at enqueue/dequeue boundaries.
// The terminal flag is the exception: it is a CAS guard shared between
// workers, cancellation, and shutdown so that exactly one of them
// finalizes the task.
type task[R any] struct {
	id          string
	work        Work[R]
	priority    int
	timeout     time.Duration
	maxAttempts int

	// ctx is cancelled when the task is cancelled or the engine shuts
	// down; every blocking stage of the pipeline waits on it.
	ctx    context.Context
	cancel context.CancelFunc

	state         atomic.Int32
	attempts      atomic.Int32
	terminal      atomic.Bool
	submittedAt   time.Time
	lastAttemptAt atomic.Int64 // unix nanos, 0 until the first attempt

	handle *Handle[R]
}

func (t *task[R]) setState(s taskState) {
	t.state.Store(int32(s))
}

func (t *task[R]) getState() taskState {
	return taskState(t.state.Load())
}

func (t *task[R]) isTerminal() bool {
	return t.terminal.Load()
}

func (t *task[R]) markAttempt() int {
	t.lastAttemptAt.Store(time.Now().UnixNano())
	return int(t.attempts.Add(1))
}
