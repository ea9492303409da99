package engine

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimiter paces task starts across all workers using a token
// bucket: tokens refill at perSecond and accumulate up to burst. It is
// distinct from the concurrency gate. The gate bounds how many tasks
// run at once, the limiter bounds how many start per unit time, and
// both apply.
//
// A nil *rateLimiter admits everything immediately.
type rateLimiter struct {
	lim *rate.Limiter
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	return &rateLimiter{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Admit blocks until a token is available or ctx is done.
func (r *rateLimiter) Admit(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.lim.Wait(ctx)
}
