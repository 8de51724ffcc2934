// Package ratelimit enforces per-broker request budgets so removal traffic
// stays polite.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token bucket per key. Each key accrues perHour tokens per
// hour, capped at perHour.
type Limiter struct {
	mu      sync.Mutex
	perHour float64
	buckets map[string]*bucket
	now     func() time.Time
}

func New(perHour int) *Limiter {
	if perHour < 1 {
		perHour = 1
	}
	return &Limiter{perHour: float64(perHour), buckets: map[string]*bucket{}, now: time.Now}
}

// NewAt builds a limiter with an injected clock.
func NewAt(perHour int, now func() time.Time) *Limiter {
	l := New(perHour)
	l.now = now
	return l
}

// Allow consumes one token for the key if available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.perHour, last: now}
		l.buckets[key] = b
	}
	elapsed := now.Sub(b.last).Hours()
	if elapsed > 0 {
		b.tokens += elapsed * l.perHour
		if b.tokens > l.perHour {
			b.tokens = l.perHour
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remaining reports the whole tokens left for a key without consuming any.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return int(l.perHour)
	}
	elapsed := l.now().Sub(b.last).Hours()
	tokens := b.tokens + elapsed*l.perHour
	if tokens > l.perHour {
		tokens = l.perHour
	}
	return int(tokens)
}
