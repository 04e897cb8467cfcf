// Package ratelimit provides token buckets for outbound RPC calls and inbound API clients.
package ratelimit

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// Limiter is a token bucket refilled at a fixed rate.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing rps events per second with bursts of up to burst.
// A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(limit, max(burst, 1))}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow takes a token if one is available.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// RetryAfter is how long until the next token, zero when one is available now.
func (l *Limiter) RetryAfter() time.Duration {
	r := l.limiter.Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Keyed hands out one Limiter per key. The least recently used keys are evicted once
// size keys are tracked, so an evicted client starts again with a full bucket.
type Keyed struct {
	rps     float64
	burst   int
	buckets *lru.Cache[string, *Limiter]
}

// NewKeyed creates a Keyed limiter tracking at most size keys.
func NewKeyed(rps float64, burst, size int) (*Keyed, error) {
	buckets, err := lru.New[string, *Limiter](size)
	if err != nil {
		return nil, err
	}
	return &Keyed{rps: rps, burst: burst, buckets: buckets}, nil
}

// Get returns the limiter for key, creating it on first use.
func (k *Keyed) Get(key string) *Limiter {
	if lim, ok := k.buckets.Get(key); ok {
		return lim
	}
	lim := New(k.rps, k.burst)
	if prev, ok, _ := k.buckets.PeekOrAdd(key, lim); ok {
		return prev
	}
	return lim
}

// Allow takes a token from key's bucket.
func (k *Keyed) Allow(key string) bool {
	return k.Get(key).Allow()
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	return k.buckets.Len()
}
