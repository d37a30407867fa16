// Package ratelimit implements the sliding-window request limiter that
// guards the API's expensive routes.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts hits per key over a sliding window. Keys are caller
// identities, typically client IPs.
type Limiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	window  time.Duration
	maxHits int
}

// NewLimiter allows maxHits per key within each window
func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		hits:    make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
	}
}

// Allow records a hit for key and reports whether it fits the limit.
// Hits older than the window no longer count against the key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	recent := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.maxHits {
		l.hits[key] = recent
		return false
	}

	l.hits[key] = append(recent, now)
	return true
}
