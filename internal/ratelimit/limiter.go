// Package ratelimit provides sliding-window request admission control
// keyed by caller identity, with a cooldown block once the window is
// exceeded. State is process-local; a horizontally scaled deployment
// needs this externalized.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relaymesh/messaging-relay/pkg/logger"
	"github.com/relaymesh/messaging-relay/pkg/metrics"
)

const sweepInterval = 5 * time.Minute

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Options configures a Limiter.
type Options struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

type entry struct {
	timestamps []time.Time
	blockUntil time.Time
}

// Limiter admits at most MaxRequests per key within a sliding Window and
// blocks offending keys for BlockDuration.
type Limiter struct {
	name   string
	opts   Options
	logger *logger.Logger

	mu      sync.Mutex
	entries map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter and starts its background sweep.
func New(name string, opts Options, log *logger.Logger) *Limiter {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = 60
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = time.Minute
	}

	l := &Limiter{
		name:    name,
		opts:    opts,
		logger:  log,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}

	go l.sweepLoop()
	return l
}

// Check records an attempt for key and reports whether it is admitted.
func (l *Limiter) Check(key string) Result {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}

	if !e.blockUntil.IsZero() {
		if now.Before(e.blockUntil) {
			metrics.RateLimitDenialsTotal.WithLabelValues(l.name).Inc()
			return Result{Allowed: false, ResetAt: e.blockUntil}
		}
		e.blockUntil = time.Time{}
	}

	// Prune timestamps outside the window.
	cutoff := now.Add(-l.opts.Window)
	kept := e.timestamps[:0]
	for _, ts := range e.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.timestamps = kept

	if len(e.timestamps) >= l.opts.MaxRequests {
		e.blockUntil = now.Add(l.opts.BlockDuration)
		metrics.RateLimitDenialsTotal.WithLabelValues(l.name).Inc()
		l.logger.Warn("rate limit exceeded",
			zap.String("limiter", l.name),
			zap.String("key", key),
			zap.Time("block_until", e.blockUntil),
		)
		return Result{Allowed: false, ResetAt: e.blockUntil}
	}

	e.timestamps = append(e.timestamps, now)
	return Result{
		Allowed:   true,
		Remaining: l.opts.MaxRequests - len(e.timestamps),
	}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep(time.Now())
		case <-l.stop:
			return
		}
	}
}

// sweep evicts keys idle for 2x the window with no active block.
func (l *Limiter) sweep(now time.Time) {
	idleCutoff := now.Add(-2 * l.opts.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, e := range l.entries {
		if !e.blockUntil.IsZero() && now.Before(e.blockUntil) {
			continue
		}
		idle := true
		for _, ts := range e.timestamps {
			if ts.After(idleCutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.entries, key)
		}
	}
}

// Size returns the tracked key count (for tests and debugging).
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
