package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"nepse-observer/src/models"
)

// MemoryCache is an in-process ICache for single-node runs without Redis.
// Expiry is checked lazily on access.
type MemoryCache struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	zsets   map[string]map[string]int64
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]int64),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// expireLocked drops key if its deadline has passed.
func (c *MemoryCache) expireLocked(key string) {
	if at, ok := c.expires[key]; ok && !c.now().Before(at) {
		delete(c.hashes, key)
		delete(c.zsets, key)
		delete(c.expires, key)
	}
}

func (c *MemoryCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)

	h, ok := c.hashes[key]
	if !ok {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (c *MemoryCache) HGet(_ context.Context, key, field string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)

	v, ok := c.hashes[key][field]
	return v, ok, nil
}

func (c *MemoryCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)

	out := make(map[string]string, len(c.hashes[key]))
	for k, v := range c.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (c *MemoryCache) ZAdd(_ context.Context, key string, score int64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)

	z, ok := c.zsets[key]
	if !ok {
		z = make(map[string]int64)
		c.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (c *MemoryCache) sortedLocked(key string) []models.MSeriesEntry {
	z := c.zsets[key]
	out := make([]models.MSeriesEntry, 0, len(z))
	for m, s := range z {
		out = append(out, models.MSeriesEntry{Member: m, Timestamp: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp == out[j].Timestamp {
			return out[i].Member < out[j].Member
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}

func (c *MemoryCache) ZLast(_ context.Context, key string) (*models.MSeriesEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)

	all := c.sortedLocked(key)
	if len(all) == 0 {
		return nil, nil
	}
	last := all[len(all)-1]
	return &last, nil
}

func (c *MemoryCache) ZRange(_ context.Context, key string) ([]models.MSeriesEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(key)
	return c.sortedLocked(key), nil
}

func (c *MemoryCache) ExpireAt(_ context.Context, key string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.hashes[key]; ok {
		c.expires[key] = at
	} else if _, ok := c.zsets[key]; ok {
		c.expires[key] = at
	}
	return nil
}

func (c *MemoryCache) Ping(context.Context) error {
	return nil
}
