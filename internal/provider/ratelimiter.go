package provider

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared by the HTTP providers. OANDA and
// FRED both throttle aggressively, so every outbound call goes through
// Wait first.
type RateLimiter struct {
	mu       sync.Mutex
	capacity int
	interval time.Duration
	tokens   int
	lastFill time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter allows capacity calls immediately, then one more per
// interval.
func NewRateLimiter(capacity int, interval time.Duration) *RateLimiter {
	r := &RateLimiter{
		capacity: capacity,
		interval: interval,
		tokens:   capacity,
		now:      time.Now,
		sleep:    sleepCtx,
	}
	r.lastFill = r.now()
	return r
}

// Wait takes one token, blocking until one accrues or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.credit()
		if r.tokens > 0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := r.interval - r.now().Sub(r.lastFill)
		r.mu.Unlock()

		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// credit converts elapsed time into tokens, carrying the remainder so a
// steady caller gets exactly capacity-per-interval throughput.
func (r *RateLimiter) credit() {
	elapsed := r.now().Sub(r.lastFill)
	earned := int(elapsed / r.interval)
	if earned <= 0 {
		return
	}
	r.tokens += earned
	if r.tokens > r.capacity {
		r.tokens = r.capacity
	}
	r.lastFill = r.lastFill.Add(time.Duration(earned) * r.interval)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
