// Package ratelimit bounds calls to the external scrape API with a sliding
// window shared across all jobs. The window is a single API budget: job keys
// only partition metrics, not the counter.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config holds sliding-window parameters.
type Config struct {
	// Limit is the number of calls allowed per window.
	Limit int
	// Window is the sliding-window length.
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 5
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}

// clock is the subset of llmstxt.Clock the limiter needs.
type clock interface {
	Now() time.Time
}

// Local is an in-process sliding-window limiter. It backs single-node
// deployments and serves as the fallback when Redis is unavailable.
type Local struct {
	mu    sync.Mutex
	calls map[string][]time.Time
	cfg   Config
	clock clock
}

// NewLocal constructs a Local limiter.
func NewLocal(cfg Config, clk clock) *Local {
	return &Local{
		calls: make(map[string][]time.Time),
		cfg:   cfg.withDefaults(),
		clock: clk,
	}
}

// Allow reports whether a call under key may proceed now, recording it if so.
func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	now := l.clock.Now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.calls[key][:0]
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.cfg.Limit {
		l.calls[key] = kept
		return false, nil
	}
	l.calls[key] = append(kept, now)
	return true, nil
}
