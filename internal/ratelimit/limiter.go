package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key
type Limiter struct {
	limiters map[string]*entry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	perHour  int
	now      func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing requestsPerHour per client with
// bursts of up to burst requests. A non-positive requestsPerHour disables
// limiting.
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	r := rate.Inf
	if requestsPerHour > 0 {
		r = rate.Limit(float64(requestsPerHour) / 3600.0)
	}
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiters: make(map[string]*entry),
		rate:     r,
		burst:    burst,
		perHour:  requestsPerHour,
		now:      time.Now,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, exists := l.limiters[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = l.now()
	return e.limiter
}

// Allow reports whether the client may make a request now
func (l *Limiter) Allow(key string) bool {
	return l.get(key).AllowN(l.now(), 1)
}

// Tokens returns the tokens currently available to the client
func (l *Limiter) Tokens(key string) float64 {
	return l.get(key).TokensAt(l.now())
}

// PerHour is the configured hourly allowance, zero when unlimited
func (l *Limiter) PerHour() int {
	return l.perHour
}

// Prune forgets clients not seen for idle and returns how many were dropped
func (l *Limiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	n := 0
	for k, e := range l.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(l.limiters, k)
			n++
		}
	}
	return n
}
