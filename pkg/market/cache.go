package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/deagle/cryptodigest/pkg/core"
	"github.com/deagle/cryptodigest/pkg/logger"
)

const defaultTTL = 300 * time.Second

// Fetcher retrieves a fresh market snapshot from the upstream provider.
type Fetcher interface {
	Fetch(ctx context.Context) (*core.Snapshot, error)
}

// Cache is a single-slot cache over the upstream fetch protocol. It
// shields the provider from repeated calls within the validity window
// and serves the previous snapshot when a refresh fails.
type Cache struct {
	mu      sync.Mutex
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	current *core.Snapshot
	log     logger.Logger
}

// CacheOption configures a Cache instance.
type CacheOption func(*Cache)

// WithTTL sets the snapshot validity window.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

func NewCache(fetcher Fetcher, log logger.Logger, options ...CacheOption) *Cache {
	cache := &Cache{
		fetcher: fetcher,
		ttl:     defaultTTL,
		now:     time.Now,
		log:     log,
	}

	for _, option := range options {
		option(cache)
	}

	return cache
}

// Snapshot implements core.SnapshotProvider. A snapshot younger than the
// validity window is returned as is. Otherwise one refresh is attempted;
// on failure the stale snapshot is served, or core.ErrNoSnapshot when
// nothing has ever been fetched. A failed refresh never clears the slot.
func (c *Cache) Snapshot(ctx context.Context) (*core.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.current != nil && now.Sub(c.current.FetchedAt) < c.ttl {
		return c.current, nil
	}

	fresh, err := c.fetcher.Fetch(ctx)
	if err != nil {
		if c.current != nil {
			c.log.WithError(err).Warn("market fetch failed, serving stale snapshot")
			return c.current, nil
		}
		return nil, fmt.Errorf("%w: %w", core.ErrNoSnapshot, err)
	}

	fresh.FetchedAt = now
	c.current = fresh
	return fresh, nil
}
