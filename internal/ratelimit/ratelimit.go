// Package ratelimit bounds how many turns one requester may start.
//
// Every key gets its own token bucket, so one noisy user cannot exhaust
// another's quota. Buckets idle for longer than the eviction window are
// dropped lazily on later calls.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soyeahso/roombot/internal/config"
)

// ErrRateLimited is returned when a key has exhausted its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Message is the reply sent to a rate-limited requester.
const Message = "You're sending requests too quickly. Please wait a moment and try again."

const evictAfter = 10 * time.Minute

// Limiter is a per-key token bucket limiter. A nil *Limiter allows
// everything.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*entry
	now     func() time.Time
	swept   time.Time
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// New creates a limiter refilling perMinute tokens per minute with the
// given burst. perMinute <= 0 returns nil (unlimited).
func New(perMinute float64, burst int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, int(perMinute))
	}
	return &Limiter{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		buckets: make(map[string]*entry),
		now:     time.Now,
	}
}

// FromConfig builds a limiter from the gateway rate limit section.
func FromConfig(cfg config.RateLimitConfig) *Limiter {
	return New(cfg.PerMinute, cfg.Burst)
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.buckets[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = e
	}
	e.seen = now
	if !e.lim.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < evictAfter {
		return
	}
	l.swept = now
	for k, e := range l.buckets {
		if now.Sub(e.seen) > evictAfter {
			delete(l.buckets, k)
		}
	}
}
