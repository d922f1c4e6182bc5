package reputation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/y0ug/hashguard/internal/database"
	"github.com/y0ug/hashguard/internal/database/models"
)

// DefaultFreshnessWindow is how long a computed verdict is served without recomputation.
const DefaultFreshnessWindow = 30 * 24 * time.Hour

const forcedFlightSuffix = "#force"

// ComputeFunc produces a new entry for a key. It runs at most once at a time per key.
type ComputeFunc func(ctx context.Context) (models.ReputationEntry, error)

// Cache maps normalized URL keys to their last verdict. Lookups hit process memory
// first and fall back to the backing database. Recomputations are coalesced per key:
// concurrent callers for the same key share one in-flight computation.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.ReputationEntry

	store  database.Database
	group  singleflight.Group
	window time.Duration
	logger *logrus.Logger
}

// NewCache creates a cache. store may be nil for a memory-only cache.
func NewCache(store database.Database, window time.Duration, logger *logrus.Logger) *Cache {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &Cache{
		entries: make(map[string]models.ReputationEntry),
		store:   store,
		window:  window,
		logger:  logger,
	}
}

// FreshnessWindow returns the configured window.
func (c *Cache) FreshnessWindow() time.Duration {
	return c.window
}

// IsFresh reports whether entry is younger than the freshness window at now.
func (c *Cache) IsFresh(entry models.ReputationEntry, now time.Time) bool {
	return now.Sub(entry.ComputedAt) < c.window
}

// Get returns the stored entry for key, fresh or not.
func (c *Cache) Get(ctx context.Context, key string) (models.ReputationEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry, true
	}
	if c.store == nil {
		return models.ReputationEntry{}, false
	}

	entry, err := c.store.GetEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, database.ErrEntryNotFound) {
			c.logger.WithError(err).WithField("url_key", key).Warn("Failed to read reputation entry from database")
		}
		return models.ReputationEntry{}, false
	}

	c.mu.Lock()
	// A concurrent Put may have landed while we were reading the store.
	if current, ok := c.entries[key]; ok && current.ComputedAt.After(entry.ComputedAt) {
		entry = current
	} else {
		c.entries[key] = entry
	}
	c.mu.Unlock()
	return entry, true
}

// Put replaces the entry stored under key. The memory copy is always updated; a
// failing backing store is reported but does not roll it back.
func (c *Cache) Put(ctx context.Context, key string, entry models.ReputationEntry) error {
	entry.URLKey = key
	entry.FromCache = false
	entry.Stale = false

	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.PutEntry(ctx, entry)
}

// Delete removes the entry for key from memory and from the backing store.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	return c.store.DeleteEntry(ctx, key)
}

// Len returns the number of entries known to the cache.
func (c *Cache) Len(ctx context.Context) int {
	if c.store != nil {
		if n, err := c.store.CountEntries(ctx); err == nil {
			return n
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Do runs fn for key unless a computation for key is already in flight, in which
// case it waits for that one. The computation is detached from ctx: a caller that
// gives up does not cancel the work other callers are waiting on. Entries returned
// by fn are stored unless they are marked FromCache or Stale. shared reports whether
// the result was delivered to more than one caller.
func (c *Cache) Do(ctx context.Context, key string, fn ComputeFunc) (entry models.ReputationEntry, shared bool, err error) {
	return c.do(ctx, key, key, fn)
}

// DoForced is Do for computations that must not reuse a fresh entry. Forced
// computations for a key are coalesced with each other, never with regular ones.
func (c *Cache) DoForced(ctx context.Context, key string, fn ComputeFunc) (entry models.ReputationEntry, shared bool, err error) {
	return c.do(ctx, key+forcedFlightSuffix, key, fn)
}

func (c *Cache) do(ctx context.Context, flight, key string, fn ComputeFunc) (models.ReputationEntry, bool, error) {
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		computed, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return computed, err
		}
		if !computed.FromCache && !computed.Stale {
			if err := c.Put(context.WithoutCancel(ctx), key, computed); err != nil {
				c.logger.WithError(err).WithField("url_key", key).Error("Failed to persist reputation entry")
			}
		}
		return computed, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.ReputationEntry{}, res.Shared, res.Err
		}
		return res.Val.(models.ReputationEntry), res.Shared, nil
	case <-ctx.Done():
		return models.ReputationEntry{}, false, ctx.Err()
	}
}
