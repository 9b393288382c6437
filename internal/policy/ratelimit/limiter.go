// Package ratelimit implements a token bucket rate limiter for per-package ingestion control.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-package rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	maxKeys      int
}

// Config holds rate limiter configuration.
//   - DefaultRPS: sustained events per second per package; <= 0 disables limiting.
//   - DefaultBurst: bucket size (minimum 1).
//   - MaxKeys: number of packages tracked before the table is reset (default 4096).
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	MaxKeys      int
}

const defaultMaxKeys = 4096

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = defaultMaxKeys
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		maxKeys:      maxKeys,
	}
}

// Allow reports whether an event from pkg may be processed now. It never blocks.
func (l *Limiter) Allow(pkg string) bool {
	if l == nil || l.defaultRate == rate.Inf {
		return true
	}
	return l.limiter(pkg).Allow()
}

// Wait blocks until a token is available for pkg, respecting the context.
func (l *Limiter) Wait(ctx context.Context, pkg string) error {
	if l == nil || l.defaultRate == rate.Inf {
		return nil
	}
	if err := l.limiter(pkg).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) limiter(pkg string) *rate.Limiter {
	if pkg == "" {
		pkg = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[pkg]
	if !exists {
		if len(l.limiters) >= l.maxKeys {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[pkg] = limiter
	}
	return limiter
}
