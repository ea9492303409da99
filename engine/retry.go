package engine

import (
	"context"
	"errors"
	"time"

	"github.com/utkarsh5026/execq/internal/backoff"
)

// BackoffKind selects the retry delay algorithm used by a RetryPolicy.
type BackoffKind int

const (
	// BackoffJittered is exponential backoff perturbed by ±JitterFraction
	// (the default; plain exponential invites retry storms).
	BackoffJittered BackoffKind = iota
	// BackoffExponential is plain exponential backoff.
	BackoffExponential
	// BackoffDecorrelated is AWS-style decorrelated jitter.
	BackoffDecorrelated
)

// RetryPolicy decides whether and when a failed attempt is retried.
// The zero value is not useful; start from DefaultRetryPolicy.
type RetryPolicy struct {
	// MaxAttempts is the total execution attempt budget, including the
	// first attempt. 1 means no retries.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// JitterFraction perturbs each delay by ±fraction (0..1).
	JitterFraction float64
	// Backoff selects the delay algorithm. Defaults to BackoffJittered.
	Backoff BackoffKind
	// TimeoutsAreFatal makes a per-attempt timeout terminal instead of
	// retryable.
	TimeoutsAreFatal bool
	// Classify overrides the built-in error classification. Return true
	// for retryable. When set, the Transient/Permanent wrappers and the
	// timeout rule are not consulted.
	Classify func(error) bool
}

// DefaultRetryPolicy returns a policy with no retries and sane backoff
// parameters, so enabling retries is a one-field change:
//
//	p := engine.DefaultRetryPolicy()
//	p.MaxAttempts = 3
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    1,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		JitterFraction: 0.1,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Retryable classifies err. Cancellation is never retryable; Permanent
// wrapping makes an error terminal; timeouts follow TimeoutsAreFatal;
// everything else is treated as transient.
func (p RetryPolicy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if p.Classify != nil {
		return p.Classify(err)
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return !p.TimeoutsAreFatal
	}
	return true
}

// ShouldRetry reports whether a task that has made attempt execution
// attempts and last failed with err should be retried.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	return attempt < max(p.MaxAttempts, 1) && p.Retryable(err)
}

// NextDelay returns the backoff delay before execution attempt
// attempt+1; attempt starts at 1 for the first retry computation.
// For the default jittered policy this is
// min(MaxDelay, BaseDelay*2^(attempt-1)) perturbed by ±JitterFraction.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.strategy().NextDelay(attempt-1, nil)
}

// strategy builds the backoff strategy for this policy. The engine
// calls this once and shares the instance across workers, which matters
// for the stateful decorrelated kind.
func (p RetryPolicy) strategy() backoff.Strategy {
	kind := backoff.Jittered
	switch p.Backoff {
	case BackoffExponential:
		kind = backoff.Exponential
	case BackoffDecorrelated:
		kind = backoff.Decorrelated
	}
	return backoff.New(kind, p.BaseDelay, p.MaxDelay, p.JitterFraction)
}
