// Package ratelimit implements the process-wide capture throttle: a bounded number of
// in-flight operations plus a minimum spacing between successive dispatches.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/toolshots/internal/metrics"
)

// Limiter bounds concurrent captures and paces their dispatch.
// Waiters are served in FIFO order; nothing is dropped.
type Limiter struct {
	slots *semaphore.Weighted
	pace  *rate.Limiter
	max   int64
}

// Config holds rate limiter configuration.
type Config struct {
	MaxConcurrent int
	MinTime       time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	maxConcurrent := int64(cfg.MaxConcurrent)
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	every := rate.Inf
	if cfg.MinTime > 0 {
		every = rate.Every(cfg.MinTime)
	}
	return &Limiter{
		slots: semaphore.NewWeighted(maxConcurrent),
		pace:  rate.NewLimiter(every, 1),
		max:   maxConcurrent,
	}
}

// Acquire blocks until a slot is free and the dispatch spacing has elapsed.
// The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	start := time.Now()
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire capture slot: %w", err)
	}
	if err := l.pace.Wait(ctx); err != nil {
		l.slots.Release(1)
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveLimiterWait(waited)
	}
	metrics.IncInFlight()
	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.DecInFlight()
			l.slots.Release(1)
		})
	}, nil
}

// Do runs fn while holding a limiter slot.
func (l *Limiter) Do(ctx context.Context, fn func(context.Context) error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// MaxConcurrent returns the configured slot count.
func (l *Limiter) MaxConcurrent() int {
	return int(l.max)
}
