// Package ratelimit provides a per-identity fixed-window request counter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxRequests is the chat relay's per-window allowance.
	DefaultMaxRequests = 20

	// DefaultWindow is the chat relay's window length.
	DefaultWindow = 60 * time.Second

	// DefaultSweepInterval controls how often expired buckets are evicted.
	DefaultSweepInterval = 5 * time.Minute
)

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per identity in fixed windows. The window starts at
// an identity's first request and is not sliding.
//
// State lives in process memory only: it is not shared between replicas and
// does not survive a restart.
type Limiter struct {
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	sweepInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSweepInterval sets how often expired buckets are evicted. Zero disables sweeping.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		l.sweepInterval = d
	}
}

// New creates a limiter and starts its background sweep, which runs until
// Stop is called or ctx is cancelled.
func New(ctx context.Context, opts ...Option) *Limiter {
	limiterCtx, cancel := context.WithCancel(ctx)

	l := &Limiter{
		now:           time.Now,
		buckets:       make(map[string]*bucket),
		sweepInterval: DefaultSweepInterval,
		ctx:           limiterCtx,
		cancel:        cancel,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.sweepInterval > 0 {
		l.wg.Add(1)
		go l.sweepLoop()
	}

	return l
}

// Allow records a request for identity and reports whether it is within the
// limit of requests allowed per window. A denied request does not change state.
func (l *Limiter) Allow(identity string, limit int, window time.Duration) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identity]
	if !ok || now.After(b.resetAt) {
		l.buckets[identity] = &bucket{count: 1, resetAt: now.Add(window)}
		return true
	}

	if b.count >= limit {
		return false
	}

	b.count++
	return true
}

// Remaining returns how many requests identity may still make in its current window.
func (l *Limiter) Remaining(identity string, limit int) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[identity]
	if !ok || now.After(b.resetAt) {
		return limit
	}
	return max(0, limit-b.count)
}

// Len returns the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.buckets)
}

// Sweep evicts buckets whose window has ended and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Stop halts the background sweep.
func (l *Limiter) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *Limiter) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			log.Debug().Msg("Rate limiter sweep stopped")
			return

		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("Evicted expired rate limit buckets")
			}
		}
	}
}
