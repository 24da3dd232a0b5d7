// Package cache holds recognition results for one drawing run so that no
// tile/channel pair is recognized twice.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	apperrors "go-drawing-inspector/internal/errors"
	"go-drawing-inspector/pkg/models"

	"golang.org/x/sync/singleflight"
)

// Key identifies one cache slot
type Key struct {
	TileKey string
	Channel models.Channel
}

func (k Key) String() string {
	return k.TileKey + "/" + string(k.Channel)
}

// Stats reports cache activity for a run
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Computed  int64 `json:"computed"`
	Corrupted int64 `json:"corrupted"`
	Entries   int   `json:"entries"`
}

// Lookup describes how a Fetch was satisfied
type Lookup struct {
	Hit       bool
	Shared    bool
	Corrupted bool
}

// SliceResultCache maps (tile, channel) to a recognition payload.
// One instance belongs to exactly one drawing run.
type SliceResultCache struct {
	mu      sync.RWMutex
	entries map[Key]models.CacheEntry
	group   singleflight.Group
	now     func() time.Time

	hits, misses, computed, corrupted atomic.Int64
}

// New creates an empty cache
func New() *SliceResultCache {
	return &SliceResultCache{
		entries: make(map[Key]models.CacheEntry),
		now:     time.Now,
	}
}

func (c *SliceResultCache) lookup(k Key) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	return e.Payload, ok
}

// Get returns the cached payload for a tile and channel
func (c *SliceResultCache) Get(tileKey string, ch models.Channel) (interface{}, bool) {
	v, ok := c.lookup(Key{tileKey, ch})
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Entry returns the full cache entry including its creation time
func (c *SliceResultCache) Entry(tileKey string, ch models.Channel) (models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key{tileKey, ch}]
	return e, ok
}

// Put stores a payload. A second Put for the same key overwrites it.
func (c *SliceResultCache) Put(tileKey string, ch models.Channel, payload interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[Key{tileKey, ch}] = models.CacheEntry{
		TileKey:   tileKey,
		Channel:   ch,
		Payload:   payload,
		CreatedAt: c.now(),
	}
}

// Evict drops a single entry
func (c *SliceResultCache) Evict(tileKey string, ch models.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, Key{tileKey, ch})
}

// Len returns the number of cached entries
func (c *SliceResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters
func (c *SliceResultCache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Computed:  c.computed.Load(),
		Corrupted: c.corrupted.Load(),
		Entries:   c.Len(),
	}
}

// GetOrCompute returns the cached payload or runs compute exactly once per
// key, even when several goroutines ask for the same key concurrently.
// Failed computations are not cached.
func (c *SliceResultCache) GetOrCompute(ctx context.Context, tileKey string, ch models.Channel,
	compute func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	if v, ok := c.Get(tileKey, ch); ok {
		return v, true, nil
	}
	v, _, err := c.do(ctx, Key{tileKey, ch}, func(v interface{}) bool { return true }, compute)
	return v, false, err
}

// do runs compute under singleflight. accept decides whether an entry found
// on the second check is usable.
func (c *SliceResultCache) do(ctx context.Context, k Key, accept func(interface{}) bool,
	compute func(context.Context) (interface{}, error)) (interface{}, bool, error) {
	v, err, shared := c.group.Do(k.String(), func() (interface{}, error) {
		if v, ok := c.lookup(k); ok && accept(v) {
			return v, nil
		}
		c.computed.Add(1)
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(k.TileKey, k.Channel, v)
		return v, nil
	})
	return v, shared, err
}

// Fetch is the typed entry point used by the recognition stages. A cached
// payload of the wrong type counts as corruption: the entry is evicted and
// the value is recomputed.
func Fetch[T any](ctx context.Context, c *SliceResultCache, tileKey string, ch models.Channel,
	compute func(context.Context) (T, error)) (T, Lookup, error) {
	var zero T
	var look Lookup
	k := Key{tileKey, ch}

	if v, ok := c.lookup(k); ok {
		if typed, ok := v.(T); ok {
			c.hits.Add(1)
			look.Hit = true
			return typed, look, nil
		}
		c.Evict(tileKey, ch)
		c.corrupted.Add(1)
		look.Corrupted = true
	}
	c.misses.Add(1)

	accept := func(v interface{}) bool {
		_, ok := v.(T)
		return ok
	}
	v, shared, err := c.do(ctx, k, accept, func(ctx context.Context) (interface{}, error) {
		out, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	look.Shared = shared
	if err != nil {
		return zero, look, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, look, apperrors.NewCacheCorruptionError(k.String(), v)
	}
	return typed, look, nil
}
