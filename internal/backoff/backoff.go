package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// maxRetryShift caps the exponent so the bit shift below cannot overflow.
const maxRetryShift = 62

// exponential doubles the delay with each retry: base * 2^retry, capped
// at max.
type exponential struct {
	base time.Duration
	max  time.Duration
}

func newExponential(base, max time.Duration) *exponential {
	return &exponential{base: base, max: max}
}

func (e *exponential) NextDelay(retry int, _ error) time.Duration {
	return expDelay(retry, e.base, e.max)
}

func (e *exponential) Reset() {}

// jittered perturbs exponential backoff by a uniformly random factor in
// [1-fraction, 1+fraction]. The randomization prevents tasks that failed
// at the same instant from retrying at the same instant.
type jittered struct {
	base     time.Duration
	max      time.Duration
	fraction float64
	mu       sync.Mutex
	rng      *rand.Rand
}

func newJittered(base, max time.Duration, fraction float64) *jittered {
	return &jittered{
		base:     base,
		max:      max,
		fraction: clamp(fraction, 0, 1),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
	}
}

func (j *jittered) NextDelay(retry int, _ error) time.Duration {
	if retry < 0 {
		return 0
	}

	delay := expDelay(retry, j.base, j.max)

	j.mu.Lock()
	factor := 1.0 + (j.rng.Float64()*2-1)*j.fraction
	j.mu.Unlock()

	perturbed := time.Duration(float64(delay) * factor)
	if perturbed < 0 {
		return 0
	}
	return perturbed
}

func (j *jittered) Reset() {}

// decorrelated implements AWS-style decorrelated jitter:
// delay = random(base, prev*3), capped at max. Each delay depends on the
// previous one rather than the attempt number, which spreads concurrent
// failures apart more effectively than fixed-ratio jitter.
//
// Reference: "Exponential Backoff And Jitter", AWS Architecture Blog.
type decorrelated struct {
	base time.Duration
	max  time.Duration
	mu   sync.Mutex
	prev time.Duration
	rng  *rand.Rand
}

func newDecorrelated(base, max time.Duration) *decorrelated {
	return &decorrelated{
		base: base,
		max:  max,
		prev: base,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
	}
}

func (d *decorrelated) NextDelay(retry int, _ error) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if retry <= 0 {
		d.prev = d.base
		return d.base
	}

	upper := min(d.prev*3, d.max)
	span := upper - d.base
	if span <= 0 {
		d.prev = d.base
		return d.base
	}

	delay := d.base + time.Duration(d.rng.Int63n(int64(span)))
	d.prev = delay
	return delay
}

func (d *decorrelated) Reset() {
	d.mu.Lock()
	d.prev = d.base
	d.mu.Unlock()
}

// expDelay is the shared exponential core: base << retry, clamped to
// [0, max]. Overflow from the shift is treated as max.
func expDelay(retry int, base, max time.Duration) time.Duration {
	if retry < 0 {
		return 0
	}
	if retry >= maxRetryShift {
		return max
	}

	delay := base << uint(retry)
	if delay > max || delay < 0 {
		return max
	}
	return delay
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
