package cachestore

import (
	"context"

	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

// NoopCache satisfies CacheStore while caching nothing. Cache-miss-
// always is a valid degraded mode.
type NoopCache struct{}

var _ storage.CacheStore = (*NoopCache)(nil)

func NewNoopCache() *NoopCache { return &NoopCache{} }

func (NoopCache) Get(ctx context.Context, id string) (types.Element, bool) { return nil, false }

func (NoopCache) Set(ctx context.Context, elements []types.Element) error { return nil }

func (NoopCache) Delete(ctx context.Context, ids []string) error { return nil }

func (NoopCache) Purge(ctx context.Context) error { return nil }
