// Package ratelimit implements a per-client token bucket limiter for the
// routing gateways. Buckets are refilled lazily on each call and idle
// buckets are dropped by Prune, so there are no background goroutines.
package ratelimit

import (
	"errors"
	"math"
	"sync"
	"time"
)

// ErrRateLimited is returned when a client has exhausted its bucket.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config configures the limiter.
type Config struct {
	RequestsPerMinute int // Tokens added per minute. 0 = unlimited.
	BurstSize         int // Bucket capacity. 0 = RequestsPerMinute.
}

// Limiter keeps an independent bucket per client key (an API key
// principal, a WebSocket session owner or a remote address).
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewLimiter creates a limiter. With RequestsPerMinute 0 every call is allowed.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		clients: make(map[string]*bucket),
		rate:    float64(cfg.RequestsPerMinute) / 60.0,
		burst:   float64(burst),
		now:     time.Now,
	}
}

// Enabled reports whether the limiter ever rejects.
func (l *Limiter) Enabled() bool {
	return l != nil && l.rate > 0
}

// Allow consumes one token for client or returns ErrRateLimited.
// A nil Limiter allows everything.
func (l *Limiter) Allow(client string) error {
	if !l.Enabled() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(client, l.now())
	if b.tokens < 1 {
		return ErrRateLimited
	}
	b.tokens--
	return nil
}

// RetryAfter returns how long client must wait for the next token,
// rounded up to whole seconds for a Retry-After header. Zero means a
// request would be allowed now.
func (l *Limiter) RetryAfter(client string) time.Duration {
	if !l.Enabled() {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.refill(client, l.now())
	if b.tokens >= 1 {
		return 0
	}
	secs := math.Ceil((1 - b.tokens) / l.rate)
	return time.Duration(secs) * time.Second
}

// Prune drops buckets that have been full and untouched for longer than
// idle, returning how many were removed.
func (l *Limiter) Prune(idle time.Duration) int {
	if !l.Enabled() {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.clients {
		if now.Sub(b.lastFill) < idle {
			continue
		}
		if b.tokens+now.Sub(b.lastFill).Seconds()*l.rate >= l.burst {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// refill tops up client's bucket for the time elapsed. Caller holds l.mu.
func (l *Limiter) refill(client string, now time.Time) *bucket {
	b, ok := l.clients[client]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: now}
		l.clients[client] = b
		return b
	}
	b.tokens = math.Min(l.burst, b.tokens+now.Sub(b.lastFill).Seconds()*l.rate)
	b.lastFill = now
	return b
}
