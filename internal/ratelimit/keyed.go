package ratelimit

import (
	"sync"
	"time"
)

// KeyedLimiter keeps one token bucket per key (client address, API key)
type KeyedLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*Limiter
	rate     float64
	burst    int
	now      func() time.Time
	lastScan time.Time
}

// scanInterval bounds how often idle buckets are evicted
const scanInterval = time.Minute

// NewPerMinute creates a keyed limiter allowing requests per minute per key,
// with the full minute available as burst
func NewPerMinute(requests int) *KeyedLimiter {
	return newKeyed(float64(requests)/60, requests, time.Now)
}

func newKeyed(ratePerSecond float64, burst int, now func() time.Time) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:  make(map[string]*Limiter),
		rate:     ratePerSecond,
		burst:    burst,
		now:      now,
		lastScan: now(),
	}
}

// Allow consumes a token from the bucket for key
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	k.evictIdle()
	b, ok := k.buckets[key]
	if !ok {
		b = newLimiter(k.rate, k.burst, k.now)
		k.buckets[key] = b
	}
	k.mu.Unlock()

	return b.Allow()
}

// evictIdle drops buckets that have refilled completely. Caller holds mu.
func (k *KeyedLimiter) evictIdle() {
	now := k.now()
	if now.Sub(k.lastScan) < scanInterval {
		return
	}
	k.lastScan = now
	for key, b := range k.buckets {
		if b.full() {
			delete(k.buckets, key)
		}
	}
}

// Len returns the number of tracked keys
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
