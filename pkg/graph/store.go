// Package graph implements the graph-relationship store on top of a
// document search engine: access-filtered query construction,
// cursor-based pagination and streaming, relation projection,
// denormalized-reference maintenance on write, and recursive cascading
// deletion.
package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/encoder"
	"github.com/sightline/sightline/pkg/logger"
	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/storage/cachestore"
)

// Index names. Entities and relationships are kept apart so traversal
// queries can be type-restricted at the index level.
const (
	IndexEntities      = "sightline_entities"
	IndexRelationships = "sightline_relationships"
)

// Indices returns every read index.
func Indices() []string {
	return []string{IndexEntities, IndexRelationships}
}

type Config struct {
	// DefaultPageSize applies when a pagination request leaves first
	// unset.
	DefaultPageSize int

	// MaxPageSize rejects larger page requests before any query is
	// issued.
	MaxPageSize int

	// AggregationBucketLimit is the hard ceiling on aggregation result
	// size; requesting more is a configuration error.
	AggregationBucketLimit int

	// MaxBatchSize bounds the documents per bulk call and the ids per
	// traversal query.
	MaxBatchSize int

	// MaxConcurrency caps concurrent engine calls for fanned-out
	// batches, shared by traversal and bulk writes.
	MaxConcurrency int

	// MaxRetriesOnConflict bounds optimistic-concurrency retries per
	// document.
	MaxRetriesOnConflict int
}

func DefaultConfig() Config {
	return Config{
		DefaultPageSize:        200,
		MaxPageSize:            5000,
		AggregationBucketLimit: 5000,
		MaxBatchSize:           500,
		MaxConcurrency:         4,
		MaxRetriesOnConflict:   3,
	}
}

// Store is the graph-relationship store. All reads apply the caller's
// marking-based access filter; all writes maintain denormalized
// references and invalidate the read-through cache.
type Store struct {
	engine   storage.Engine
	cache    storage.CacheStore
	loader   storage.Loader
	registry *schema.Registry
	logger   logger.Logger
	cursors  *encoder.CursorSerializer
	conf     Config
}

type StoreOption func(*Store)

func WithLogger(l logger.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func WithCache(c storage.CacheStore) StoreOption {
	return func(s *Store) { s.cache = c }
}

// WithLoader overrides the loader used to materialize relationships
// before cascade deletion; the store itself is the default.
func WithLoader(l storage.Loader) StoreOption {
	return func(s *Store) { s.loader = l }
}

func WithRegistry(r *schema.Registry) StoreOption {
	return func(s *Store) { s.registry = r }
}

func WithConfig(c Config) StoreOption {
	return func(s *Store) { s.conf = c }
}

func New(engine storage.Engine, opts ...StoreOption) *Store {
	s := &Store{
		engine:   engine,
		cache:    cachestore.NewNoopCache(),
		registry: schema.NewRegistry(),
		logger:   logger.NewNoopLogger(),
		cursors:  encoder.NewCursorSerializer(),
		conf:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader = s
	}
	return s
}

// Health verifies the backing engine is reachable; failure here is
// fatal at startup.
func (s *Store) Health(ctx context.Context) (storage.EngineInfo, error) {
	info, err := s.engine.Health(ctx)
	if err != nil {
		return storage.EngineInfo{}, errors.Configuration("search engine health check failed", err)
	}
	s.logger.Info("search engine reachable",
		zap.String("cluster", info.ClusterName),
		zap.String("version", info.Version))
	return info, nil
}

// EnsureIndices creates the store's indices when absent, applying the
// fixed schema.
func (s *Store) EnsureIndices(ctx context.Context) error {
	for _, name := range Indices() {
		exists, err := s.engine.IndexExists(ctx, name)
		if err != nil {
			return errors.Configuration("checking index existence", err)
		}
		if exists {
			continue
		}
		if err := s.engine.CreateIndex(ctx, name); err != nil {
			return errors.Configuration("creating index "+name, err)
		}
		s.logger.Info("created index", zap.String("index", name))
	}
	return nil
}

// Registry exposes the model registry for callers resolving lineage.
func (s *Store) Registry() *schema.Registry { return s.registry }

// indexFor routes an element to its storage index.
func (s *Store) indexFor(elementType string, baseType string) string {
	if baseType == "relation" || s.registry.IsRelationshipType(elementType) {
		return IndexRelationships
	}
	return IndexEntities
}
