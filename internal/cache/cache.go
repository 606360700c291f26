// Package cache memoizes expensive aggregate computations per key with a
// time-to-live. A read never returns a value older than its own ttl: expired
// entries are treated as misses and recomputed. A periodic sweep removes
// expired entries so memory stays bounded.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"focusd/internal/clock"
)

type entry struct {
	value      any
	computedAt time.Time
	ttl        time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.computedAt) > e.ttl
}

type Cache struct {
	mu      sync.Mutex
	entries map[string]entry

	clk clock.Clock
	log *slog.Logger

	sweepInterval time.Duration
	stopCh        chan struct{}
	stopped       sync.WaitGroup
}

func New(clk clock.Clock, log *slog.Logger, sweepInterval time.Duration) *Cache {
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Minute
	}
	return &Cache{
		entries:       map[string]entry{},
		clk:           clk,
		log:           log,
		sweepInterval: sweepInterval,
	}
}

// GetOrCompute returns the live cached value for key, or invokes fn, stores
// the result, and returns it. A compute error is returned to the caller and
// nothing is stored.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	now := c.clk.Now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.expired(now) {
		c.mu.Unlock()
		return e.value, nil
	}
	c.mu.Unlock()

	// Compute outside the lock so one slow aggregate doesn't stall
	// unrelated keys. Concurrent misses on the same key may compute twice;
	// the last write wins, which is harmless for memoized aggregates.
	v, err := fn()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: v, computedAt: now, ttl: ttl}
	c.mu.Unlock()
	return v, nil
}

// GetOrCompute is the typed wrapper most callers use.
func GetOrCompute[T any](c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	v, err := c.GetOrCompute(key, ttl, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Invalidate drops the entry for key regardless of its age.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes all entries whose ttl has elapsed and returns the count.
func (c *Cache) Sweep() int {
	now := c.clk.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Start launches the periodic sweeper. Calling Start on a running cache is
// a no-op.
func (c *Cache) Start(ctx context.Context) {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	interval := c.sweepInterval
	c.mu.Unlock()

	c.stopped.Add(1)
	go func() {
		defer c.stopped.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-t.C:
				if n := c.Sweep(); n > 0 && c.log != nil {
					c.log.Debug("cache sweep", slog.Int("removed", n))
				}
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.mu.Lock()
	stopCh := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	c.stopped.Wait()
}
