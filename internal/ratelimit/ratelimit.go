// Package ratelimit throttles commands per Telegram user with a token
// bucket. Buckets refill lazily on each Allow call; there is no background
// goroutine.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a user's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// idleBuckets is how long an untouched full bucket is kept before Allow
// drops it.
const idleBuckets = 30 * time.Minute

// Config configures the limiter.
type Config struct {
	RequestsPerMinute int // 0 = unlimited
	BurstSize         int // 0 = RequestsPerMinute
}

// Limiter holds one bucket per user id.
type Limiter struct {
	mu     sync.Mutex
	users  map[int64]*bucket
	rate   float64 // tokens per second
	burst  float64
	now    func() time.Time
	lastGC time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a limiter. RequestsPerMinute 0 disables limiting.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		users: make(map[int64]*bucket),
		rate:  float64(cfg.RequestsPerMinute) / 60.0,
		burst: float64(burst),
		now:   time.Now,
	}
}

// Allow consumes a token for userID or returns ErrRateLimited.
func (l *Limiter) Allow(userID int64) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.collect(now)

	b, ok := l.users[userID]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.users[userID] = b
	}
	b.refill(now, l.rate, l.burst)

	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

func (b *bucket) refill(now time.Time, rate, burst float64) {
	b.tokens += now.Sub(b.lastFill).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastFill = now
}

// collect drops buckets idle long enough to have refilled completely.
func (l *Limiter) collect(now time.Time) {
	if now.Sub(l.lastGC) < idleBuckets {
		return
	}
	l.lastGC = now
	for id, b := range l.users {
		if now.Sub(b.lastFill) >= idleBuckets {
			delete(l.users, id)
		}
	}
}
