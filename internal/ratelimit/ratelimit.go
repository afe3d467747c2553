// Package ratelimit provides token bucket rate limiters: a single shared
// bucket (provider politeness, platform API limits) and a per-key variant
// (per-user request throttling).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter implements a token bucket rate limiter.
// It is safe for concurrent use.
//
// Tokens are added at refillRate per second up to maxTokens; each request takes one.
type Limiter struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// New creates a new rate limiter with a full bucket.
//
// Example:
//
//	// Nominatim usage policy: at most one request per second, no bursts
//	limiter := ratelimit.New(1, 1)
func New(maxTokens, refillRate float64) *Limiter {
	return &Limiter{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// refill adds tokens based on elapsed time since last refill.
// Must be called with mu held.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens = min(l.maxTokens, l.tokens+elapsed*l.refillRate)
	l.lastRefill = now
}

// take consumes a token if one is available, otherwise it reports how long
// until the next token. Must be called with mu held.
func (l *Limiter) take(now time.Time) (bool, time.Duration) {
	l.refill(now)
	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}
	if l.refillRate <= 0 {
		return false, time.Hour
	}
	return false, time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
}

// Allow consumes a token if available. It never blocks.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, _ := l.take(time.Now())
	return ok
}

// Wait blocks until a token is available or the context is done.
// Returns nil if a token was acquired, or ctx.Err() otherwise.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		ok, wait := l.take(time.Now())
		l.mu.Unlock()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current number of available tokens.
func (l *Limiter) Available() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	return l.tokens
}

// IsFull reports whether the bucket is at capacity, meaning the limiter has been idle.
func (l *Limiter) IsFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	return l.tokens >= l.maxTokens
}

// Reset refills the bucket to capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokens = l.maxTokens
	l.lastRefill = time.Now()
}
