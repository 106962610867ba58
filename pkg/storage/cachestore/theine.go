// Package cachestore provides CacheStore implementations: an in-process
// cache for single-node deployments, a shared redis cache, and a no-op
// used when caching is disabled.
package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/Yiling-J/theine-go"
	"github.com/cespare/xxhash/v2"

	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

type InMemoryCache struct {
	mu      sync.RWMutex
	cache   *theine.Cache[uint64, types.Element]
	maxSize int64
	ttl     time.Duration
}

var _ storage.CacheStore = (*InMemoryCache)(nil)

func NewInMemoryCache(maxSize int64, ttl time.Duration) (*InMemoryCache, error) {
	cache, err := theine.NewBuilder[uint64, types.Element](maxSize).Build()
	if err != nil {
		return nil, err
	}
	return &InMemoryCache{cache: cache, maxSize: maxSize, ttl: ttl}, nil
}

func (c *InMemoryCache) Get(ctx context.Context, id string) (types.Element, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.Get(hashKey(id))
}

func (c *InMemoryCache) Set(ctx context.Context, elements []types.Element) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, element := range elements {
		c.cache.SetWithTTL(hashKey(element.InternalID()), element, 1, c.ttl)
	}
	return nil
}

func (c *InMemoryCache) Delete(ctx context.Context, ids []string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range ids {
		c.cache.Delete(hashKey(id))
	}
	return nil
}

// Purge drops the whole cache by swapping in a fresh instance.
func (c *InMemoryCache) Purge(ctx context.Context) error {
	fresh, err := theine.NewBuilder[uint64, types.Element](c.maxSize).Build()
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.cache
	c.cache = fresh
	c.mu.Unlock()
	old.Close()
	return nil
}

func (c *InMemoryCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Close()
}

func hashKey(id string) uint64 {
	return xxhash.Sum64String(id)
}
