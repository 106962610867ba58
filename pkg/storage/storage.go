// Package storage contains the backing-engine and collaborator
// contracts consumed by the graph store, together with their shared
// request/response types.
package storage

import (
	"context"

	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/types"
)

// EngineInfo is returned by the startup health check.
type EngineInfo struct {
	ClusterName string
	Version     string
	Healthy     bool
}

// SearchRequest is a paged query against one or more indices.
// SearchAfter, when set, resumes past the hit carrying those sort
// values; it is the engine's native resume point, not an offset.
type SearchRequest struct {
	Indices     []string
	Query       *query.Query
	Size        int
	Sort        []query.Sort
	SearchAfter []any
}

// Hit is one returned document with its sort tuple preserved for
// cursor continuation.
type Hit struct {
	Index  string
	ID     string
	Score  float64
	Source map[string]any
	Sort   []any
}

type SearchResult struct {
	Hits  []Hit
	Total int64
}

// AggregateRequest runs a terms or date-histogram aggregation over the
// documents matched by Query.
type AggregateRequest struct {
	Indices     []string
	Query       *query.Query
	Aggregation query.Aggregation
}

// Bucket is one label/value aggregation pair. Buckets of a date
// histogram are ordered by date ascending; terms buckets by count
// descending.
type Bucket struct {
	Label string
	Value int64
}

// BulkAction discriminates bulk operations.
type BulkAction int

const (
	BulkActionIndex BulkAction = iota
	BulkActionUpdate
	BulkActionDelete
)

// BulkOp is one document operation inside a bulk call. Update ops carry
// a script intent; per-op conflict retry is bounded by RetryOnConflict.
type BulkOp struct {
	Index           string
	ID              string
	Action          BulkAction
	Doc             map[string]any
	Script          *Script
	RetryOnConflict int
}

// Engine is the backing search/index engine contract. Implementations
// must translate script intents natively and must return
// ErrIndexNotFound (possibly wrapped) when a queried index or mapping
// does not exist yet.
type Engine interface {
	Health(ctx context.Context) (EngineInfo, error)

	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string) error
	DeleteIndex(ctx context.Context, name string) error

	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
	Count(ctx context.Context, indices []string, q *query.Query) (int64, error)
	Aggregate(ctx context.Context, req AggregateRequest) ([]Bucket, error)

	Bulk(ctx context.Context, ops []BulkOp) error
	UpdateByQuery(ctx context.Context, indices []string, q *query.Query, script Script) error
}

// CacheStore is the read-through cache collaborator. It is an
// optimization layer only: correctness must hold when every call is a
// no-op.
type CacheStore interface {
	Get(ctx context.Context, id string) (types.Element, bool)
	Set(ctx context.Context, elements []types.Element) error
	Delete(ctx context.Context, ids []string) error
	Purge(ctx context.Context) error
}

// Loader materializes an element in fully decoded form, used by the
// cascading deletion engine before documents are erased.
type Loader interface {
	LoadFullByID(ctx context.Context, user *types.User, id string) (types.Element, error)
}
