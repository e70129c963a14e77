// Package ratelimit throttles job submissions per family with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// defaultKey buckets submissions that carry no family.
const defaultKey = "_"

// Config holds rate limiter configuration. RPS <= 0 disables limiting.
type Config struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Limiter keeps one token bucket per family.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (l *Limiter) bucket(family string) *rate.Limiter {
	if family == "" {
		family = defaultKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[family]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[family] = lim
	}
	return lim
}

// Allow reports whether a submission for family may proceed now.
func (l *Limiter) Allow(family string) bool {
	return l.bucket(family).Allow()
}

// Wait blocks until family has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, family string) error {
	if err := l.bucket(family).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %q: %w", family, err)
	}
	return nil
}
