package graph

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/storage/memory"
	"github.com/sightline/sightline/pkg/types"
)

// Shared fixtures for the store tests. Everything runs against the
// in-process engine so the full read/write paths are exercised without
// a cluster.

var bypassUser = &types.User{ID: "admin", Capabilities: []string{types.CapabilityBypass}}

const (
	markingGreen = "marking--tlp-green"
	markingRed   = "marking--tlp-red"
)

// greenUser is granted TLP green out of a {green, red} universe.
func greenUser() *types.User {
	return &types.User{
		ID:              "analyst",
		AllowedMarkings: []types.Marking{{InternalID: markingGreen, Type: "TLP"}},
		AllMarkings: []types.Marking{
			{InternalID: markingGreen, Type: "TLP"},
			{InternalID: markingRed, Type: "TLP"},
		},
	}
}

// countingEngine wraps an engine and counts calls per operation, so
// tests can assert that a path issued no engine round-trip at all.
type countingEngine struct {
	storage.Engine
	searches   atomic.Int32
	counts     atomic.Int32
	aggregates atomic.Int32
	bulks      atomic.Int32
	updates    atomic.Int32
}

func newCountingEngine() *countingEngine {
	return &countingEngine{Engine: memory.New()}
}

func (e *countingEngine) Search(ctx context.Context, req storage.SearchRequest) (*storage.SearchResult, error) {
	e.searches.Add(1)
	return e.Engine.Search(ctx, req)
}

func (e *countingEngine) Count(ctx context.Context, indices []string, q *query.Query) (int64, error) {
	e.counts.Add(1)
	return e.Engine.Count(ctx, indices, q)
}

func (e *countingEngine) Aggregate(ctx context.Context, req storage.AggregateRequest) ([]storage.Bucket, error) {
	e.aggregates.Add(1)
	return e.Engine.Aggregate(ctx, req)
}

func (e *countingEngine) Bulk(ctx context.Context, ops []storage.BulkOp) error {
	e.bulks.Add(1)
	return e.Engine.Bulk(ctx, ops)
}

func (e *countingEngine) UpdateByQuery(ctx context.Context, indices []string, q *query.Query, script storage.Script) error {
	e.updates.Add(1)
	return e.Engine.UpdateByQuery(ctx, indices, q, script)
}

// mapCache is a deterministic CacheStore for tests: synchronous, no
// eviction, keyed by both identifiers like the production caches.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]types.Element
}

var _ storage.CacheStore = (*mapCache)(nil)

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]types.Element)}
}

func (c *mapCache) Get(ctx context.Context, id string) (types.Element, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

func (c *mapCache) Set(ctx context.Context, elements []types.Element) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range elements {
		if id := e.InternalID(); id != "" {
			c.entries[id] = e
		}
		if id := e.StandardID(); id != "" {
			c.entries[id] = e
		}
	}
	return nil
}

func (c *mapCache) Delete(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			delete(c.entries, e.InternalID())
			delete(c.entries, e.StandardID())
		}
		delete(c.entries, id)
	}
	return nil
}

func (c *mapCache) Purge(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]types.Element)
	return nil
}

func (c *mapCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *countingEngine) {
	t.Helper()
	engine := newCountingEngine()
	return New(engine, opts...), engine
}

func entity(entityType, id, name string, extra map[string]any) types.Element {
	e := types.Element{
		types.FieldInternalID: id,
		types.FieldStandardID: entityType + "--" + id,
		types.FieldEntityType: entityType,
		types.FieldName:       name,
	}
	for k, v := range extra {
		e[k] = v
	}
	return e
}

func relationship(relType, id string, from, to types.Element) types.Element {
	return types.Element{
		types.FieldInternalID: id,
		types.FieldStandardID: relType + "--" + id,
		types.FieldEntityType: relType,
		types.FieldFrom:       from,
		types.FieldTo:         to,
		types.FieldFromRole:   FromRole(relType),
		types.FieldToRole:     ToRole(relType),
	}
}

// rawDoc fetches a stored document straight from the engine, bypassing
// the decode path, to assert on the persisted shape.
func rawDoc(t *testing.T, engine storage.Engine, index, id string) map[string]any {
	t.Helper()
	result, err := engine.Search(context.Background(), storage.SearchRequest{
		Indices: []string{index},
		Query:   query.Term(types.FieldInternalID, id),
		Size:    1,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	return result.Hits[0].Source
}

func rawDocMissing(t *testing.T, engine storage.Engine, index, id string) {
	t.Helper()
	result, err := engine.Search(context.Background(), storage.SearchRequest{
		Indices: []string{index},
		Query:   query.Term(types.FieldInternalID, id),
		Size:    1,
	})
	require.NoError(t, err)
	require.Empty(t, result.Hits)
}

func idsOf(elements []types.Element) []string {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		out = append(out, e.InternalID())
	}
	return out
}
