// Package ratelimit keeps one token bucket per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults used when a limit is not configured
const (
	DefaultRPS   = 5
	DefaultBurst = 10
)

// Limiter implements per-client rate limiting
// ARCHITECTURAL DISCOVERY: Per-client state tracking with periodic cleanup prevents memory leaks
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a limiter allowing rps requests per second per key with the given burst
func New(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = DefaultRPS
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Cleanup removes clients idle for longer than maxIdle and returns how many were dropped
func (l *Limiter) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > maxIdle {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// RunCleanup calls Cleanup every interval until stop is closed
func (l *Limiter) RunCleanup(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Cleanup(maxIdle)
		case <-stop:
			return
		}
	}
}
