package resilience

import (
	"sync"
	"time"
)

// RateLimiter is a per-key token bucket. Buckets refill continuously at
// ratePerMinute and cap at burst. Stale buckets are removed by Sweep, which
// callers should run from a timer.
type RateLimiter struct {
	mu            sync.Mutex
	buckets       map[string]*bucket
	ratePerMinute float64
	burst         float64
	now           func() time.Time
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing ratePerMinute requests per key.
func NewRateLimiter(ratePerMinute int, burst int) *RateLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 60
	}
	if burst <= 0 {
		burst = ratePerMinute
	}
	return &RateLimiter{
		buckets:       make(map[string]*bucket),
		ratePerMinute: float64(ratePerMinute),
		burst:         float64(burst),
		now:           time.Now,
	}
}

// Allow consumes one token for key, reporting whether the request may proceed.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastSeen).Minutes()
		b.tokens += elapsed * l.ratePerMinute
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.lastSeen = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Sweep removes buckets idle longer than maxIdle, returning the count removed.
func (l *RateLimiter) Sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
