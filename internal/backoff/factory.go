package backoff

import "time"

// Kind selects the retry delay algorithm.
type Kind int

const (
	// Exponential uses plain exponential backoff.
	Exponential Kind = iota
	// Jittered adds uniform random jitter to exponential backoff.
	Jittered
	// Decorrelated uses AWS-style decorrelated jitter.
	Decorrelated
)

// New builds a Strategy for the given kind. fraction is only consulted
// by the Jittered kind.
func New(kind Kind, base, max time.Duration, fraction float64) Strategy {
	switch kind {
	case Jittered:
		return newJittered(base, max, fraction)

	case Decorrelated:
		return newDecorrelated(base, max)

	default:
		return newExponential(base, max)
	}
}
