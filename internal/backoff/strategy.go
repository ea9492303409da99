package backoff

import "time"

// Strategy computes the delay to wait before a retry attempt.
//
// Implementations must be safe for concurrent use; a single Strategy
// instance is shared by every worker in an engine.
type Strategy interface {
	// NextDelay returns the delay before the next execution attempt.
	// retry is 0-indexed: 0 is the delay before the second execution
	// attempt. lastErr is the error that triggered the retry and may be
	// used by adaptive strategies.
	NextDelay(retry int, lastErr error) time.Duration

	// Reset clears any internal state. Stateless strategies treat this
	// as a no-op.
	Reset()
}
