package graph

import (
	"context"
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/sightline/sightline/internal/concurrency"
	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

// discovered is one relationship found during cascade traversal, tagged
// with the level of the pass that found it.
type discovered struct {
	element types.Element
	level   int
}

// DeleteElements removes a batch of elements together with every
// relationship that references them, directly or transitively
// (relationships between relationships included). It returns the
// cascaded non-meta relationships in fully decoded form, loaded before
// any document was erased, so callers can notify collaborators of the
// removals.
//
// Order of writes is an invariant: denormalized-reference cleanup on
// surviving endpoints, then relationship deletions, then target
// deletions — each as bounded-concurrency batched bulk calls. Deleting
// an empty batch performs zero writes.
func (s *Store) DeleteElements(ctx context.Context, user *types.User, elements []types.Element) ([]types.Element, error) {
	if len(elements) == 0 {
		return nil, nil
	}

	targets := make(map[string]types.Element, len(elements))
	frontier := make([]string, 0, len(elements))
	for _, element := range elements {
		id := element.InternalID()
		if id == "" {
			return nil, errors.Functionalf("cannot delete an element without an internal id")
		}
		targets[id] = element
		frontier = append(frontier, id)
	}

	visited, err := s.discoverDependencies(ctx, user, targets, frontier)
	if err != nil {
		return nil, err
	}

	// Materialize real typed relationships before their documents are
	// erased; reference relationships carry nothing worth notifying
	// about. Lineage decides, not the unimpacted-role table: an
	// unimpacted core relationship still gets reported.
	var dependency []types.Element
	for id, d := range visited {
		if !s.registry.IsCoreRelationType(d.element.EntityType()) {
			continue
		}
		full, err := s.loader.LoadFullByID(ctx, user, id)
		if err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		dependency = append(dependency, full)
	}

	cleanupOps, touched := s.referenceCleanups(targets, visited)

	if err := s.cache.Delete(ctx, touched); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}

	// Cleanup precedes deletion so no dangling reference outlives one
	// bulk round-trip.
	if err := s.fanOutBulk(ctx, cleanupOps); err != nil {
		return nil, errors.Database("denormalized reference cleanup failed", err, nil)
	}

	relDeletes := make([]storage.BulkOp, 0, len(visited))
	for id := range visited {
		relDeletes = append(relDeletes, storage.BulkOp{
			Index:  IndexRelationships,
			ID:     id,
			Action: storage.BulkActionDelete,
		})
	}
	if err := s.fanOutBulk(ctx, relDeletes); err != nil {
		return nil, errors.Database("cascaded relationship deletion failed", err, nil)
	}

	targetDeletes := make([]storage.BulkOp, 0, len(targets))
	for id, element := range targets {
		targetDeletes = append(targetDeletes, storage.BulkOp{
			Index:  s.indexFor(element.EntityType(), element.BaseType()),
			ID:     id,
			Action: storage.BulkActionDelete,
		})
	}
	if err := s.fanOutBulk(ctx, targetDeletes); err != nil {
		return nil, errors.Database("target deletion failed", err, nil)
	}

	cascadeDeletesTotal.Add(float64(len(visited) + len(targets)))
	s.logger.Info("cascading deletion completed",
		zap.Int("targets", len(targets)),
		zap.Int("cascaded_relationships", len(visited)))
	return dependency, nil
}

// discoverDependencies walks the relationship graph breadth-first from
// the target set. Each pass queries the relationships whose connections
// reference the current frontier, partitioned into bounded-size groups
// fanned out under the concurrency ceiling. Once an id is visited it is
// never re-queued, so cycles terminate.
func (s *Store) discoverDependencies(ctx context.Context, user *types.User, targets map[string]types.Element, frontier []string) (map[string]discovered, error) {
	visited := make(map[string]discovered)

	for level := 0; len(frontier) > 0; level++ {
		var mu sync.Mutex
		var found []types.Element

		pool := concurrency.NewPool(ctx, s.conf.MaxConcurrency)
		for _, batch := range concurrency.Chunk(frontier, s.conf.MaxBatchSize) {
			batch := batch
			pool.Go(func(ctx context.Context) error {
				ids := make([]any, 0, len(batch))
				for _, id := range batch {
					ids = append(ids, id)
				}
				spec := FilterSpec{
					Types: []string{schema.TypeBasicRelation},
					Nested: []NestedFilter{{
						Path:    types.FieldConnections,
						Filters: []Filter{{Key: types.FieldInternalID, Values: ids}},
					}},
				}
				batchHits, err := s.List(ctx, user, []string{IndexRelationships}, spec, ListOptions{})
				if err != nil {
					return err
				}
				mu.Lock()
				found = append(found, batchHits...)
				mu.Unlock()
				return nil
			})
		}
		if err := pool.Wait(); err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, rel := range found {
			id := rel.InternalID()
			if _, ok := visited[id]; ok {
				continue
			}
			if _, ok := targets[id]; ok {
				continue
			}
			visited[id] = discovered{element: rel, level: level}
			frontier = append(frontier, id)
		}
	}
	return visited, nil
}

// referenceCleanups computes the surgical array-removal updates for
// every endpoint that survives the deletion and whose relationship role
// is impactful, plus the full list of ids whose cache entries must be
// invalidated.
func (s *Store) referenceCleanups(targets map[string]types.Element, visited map[string]discovered) ([]storage.BulkOp, []string) {
	removal := func(id string) bool {
		if _, ok := targets[id]; ok {
			return true
		}
		_, ok := visited[id]
		return ok
	}

	rels := make([]types.Element, 0, len(visited))
	for _, d := range visited {
		rels = append(rels, d.element)
	}
	for _, element := range targets {
		if element.IsRelationship() {
			rels = append(rels, element)
		}
	}

	type cleanup struct {
		sourceID string
		index    string
		field    string
		ids      []any
	}
	cleanups := make(map[string]*cleanup)
	touchedSet := make(map[string]bool)
	for id := range targets {
		touchedSet[id] = true
	}
	for id := range visited {
		touchedSet[id] = true
	}

	for _, rel := range rels {
		relType := rel.EntityType()
		if !s.registry.IsImpactful(relType) {
			continue
		}
		fromID, _ := rel[types.FieldFromID].(string)
		toID, _ := rel[types.FieldToID].(string)
		fromType, _ := rel[types.FieldFromType].(string)
		if fromID == "" || toID == "" || removal(fromID) {
			continue
		}
		// The source survives: remove the target id from its
		// denormalized reference array without disturbing other entries.
		key := fromID + "|" + relType
		entry, ok := cleanups[key]
		if !ok {
			entry = &cleanup{
				sourceID: fromID,
				index:    s.indexFor(fromType, ""),
				field:    schema.RelField(relType),
			}
			cleanups[key] = entry
		}
		entry.ids = append(entry.ids, toID)
		touchedSet[fromID] = true
	}

	ops := make([]storage.BulkOp, 0, len(cleanups))
	for _, entry := range cleanups {
		script := storage.RemoveFromArray(entry.field, entry.ids...)
		ops = append(ops, storage.BulkOp{
			Index:           entry.index,
			ID:              entry.sourceID,
			Action:          storage.BulkActionUpdate,
			Script:          &script,
			RetryOnConflict: s.conf.MaxRetriesOnConflict,
		})
	}

	touched := make([]string, 0, len(touchedSet))
	for id := range touchedSet {
		touched = append(touched, id)
	}
	return ops, touched
}
