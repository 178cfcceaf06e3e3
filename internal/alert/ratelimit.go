package alert

import (
	"context"
	"sync"
	"time"
)

// TokenBucket refills continuously at perMinute/60 tokens a second, holding
// at most burst. A nil bucket allows everything.
type TokenBucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewTokenBucket returns nil when perMinute <= 0. Burst defaults to
// perMinute.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	b := &TokenBucket{
		rate:   float64(perMinute) / 60,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
	b.last = b.now()
	return b
}

func (b *TokenBucket) Allow() bool {
	_, ok := b.take()
	return ok
}

// Wait takes a token, sleeping for the refill if it lands within maxWait.
// It gives up at once when the next token is further away than that.
func (b *TokenBucket) Wait(ctx context.Context, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		next, ok := b.take()
		if ok {
			return true
		}
		if next > time.Until(deadline) {
			return false
		}
		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// take consumes a token if one is available. Otherwise it reports how long
// until one will be.
func (b *TokenBucket) take() (time.Duration, bool) {
	if b == nil {
		return 0, true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(b.tokens+elapsed*b.rate, b.burst)
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	return time.Duration((1 - b.tokens) / b.rate * float64(time.Second)), false
}
