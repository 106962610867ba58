package graph

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sightline/sightline/internal/concurrency"
	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

// BulkIndex writes a batch of entities and relationships. Relationships
// are projected through the connection codec, and for every written
// relationship whose role is impactful a second bulk of scripted
// updates appends the target id to the denormalized reference field on
// the source element. Fields are never overwritten by the reference
// maintenance: absent fields are created as empty lists first.
func (s *Store) BulkIndex(ctx context.Context, elements []types.Element) error {
	if len(elements) == 0 {
		return nil
	}

	ops := make([]storage.BulkOp, 0, len(elements))
	type impact struct {
		sourceID string
		index    string
		field    string
		ids      []any
	}
	impacts := make(map[string]*impact)
	touched := make([]string, 0, len(elements))

	for _, element := range elements {
		prepared := prepareElement(element)
		if prepared.InternalID() == "" {
			prepared[types.FieldInternalID] = types.NewInternalID()
		}
		id := prepared.InternalID()
		touched = append(touched, id)

		relType := prepared.EntityType()
		if !s.registry.IsRelationshipType(relType) {
			if _, ok := prepared[types.FieldBaseType]; !ok {
				prepared[types.FieldBaseType] = types.BaseEntity
			}
			if _, ok := prepared[types.FieldParentTypes]; !ok {
				prepared[types.FieldParentTypes] = s.registry.ParentTypes(relType)
			}
			ops = append(ops, storage.BulkOp{
				Index:  IndexEntities,
				ID:     id,
				Action: storage.BulkActionIndex,
				Doc:    prepared,
			})
			continue
		}

		from := endpointOf(prepared[types.FieldFrom])
		to := endpointOf(prepared[types.FieldTo])
		doc, err := s.encodeRelationship(prepared)
		if err != nil {
			return err
		}
		ops = append(ops, storage.BulkOp{
			Index:  IndexRelationships,
			ID:     id,
			Action: storage.BulkActionIndex,
			Doc:    doc,
		})

		if s.registry.IsImpactful(relType) {
			sourceID := from.InternalID()
			key := sourceID + "|" + relType
			entry, ok := impacts[key]
			if !ok {
				entry = &impact{
					sourceID: sourceID,
					index:    s.indexFor(from.EntityType(), from.BaseType()),
					field:    schema.RelField(relType),
				}
				impacts[key] = entry
			}
			entry.ids = append(entry.ids, to.InternalID())
			touched = append(touched, sourceID)
		}
	}

	if err := s.cache.Delete(ctx, touched); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
	if err := s.fanOutBulk(ctx, ops); err != nil {
		return errors.Database("bulk indexing failed", err, map[string]any{"count": len(ops)})
	}

	if len(impacts) == 0 {
		return nil
	}
	refOps := make([]storage.BulkOp, 0, len(impacts))
	for _, entry := range impacts {
		script := storage.AppendToArray(entry.field, entry.ids...)
		refOps = append(refOps, storage.BulkOp{
			Index:           entry.index,
			ID:              entry.sourceID,
			Action:          storage.BulkActionUpdate,
			Script:          &script,
			RetryOnConflict: s.conf.MaxRetriesOnConflict,
		})
	}
	if err := s.fanOutBulk(ctx, refOps); err != nil {
		return errors.Database("denormalized reference maintenance failed", err, map[string]any{"count": len(refOps)})
	}
	return nil
}

// AttributeValueUpdate rewrites every occurrence of an attribute value
// across the store: a direct assignment for single-valued attributes, a
// scripted in-place array substitution for multi-valued ones. Being a
// cross-cutting rename, it purges the whole read-through cache.
func (s *Store) AttributeValueUpdate(ctx context.Context, key string, previous, next any) error {
	var script storage.Script
	if s.registry.IsMultiple(key) {
		script = storage.ReplaceInArray(key, previous, next)
	} else {
		script = storage.SetField(key, next)
	}
	if err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn("cache purge failed", zap.Error(err))
	}
	err := s.updateByQueryWithRetry(ctx, Indices(), query.Term(key, previous), script)
	if err != nil && !stderrors.Is(err, storage.ErrIndexNotFound) {
		return errors.Database("attribute value update failed", err, map[string]any{"key": key})
	}
	return nil
}

// EntityConnectionUpdate substitutes one endpoint identity inside an
// array attribute: the field is created when absent, appended when no
// prior value is replaced, and otherwise From is substituted in place
// while other entries survive. Used when an endpoint's identity changes
// (e.g. a merge).
type EntityConnectionUpdate struct {
	TargetIDs []string
	Key       string
	From      any
	To        []any
}

func (s *Store) EntityConnectionsUpdate(ctx context.Context, updates []EntityConnectionUpdate) error {
	for _, u := range updates {
		if err := s.cache.Delete(ctx, u.TargetIDs); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Error(err))
		}
		idValues := make([]any, 0, len(u.TargetIDs))
		for _, id := range u.TargetIDs {
			idValues = append(idValues, id)
		}
		err := s.updateByQueryWithRetry(ctx,
			Indices(),
			query.Terms(types.FieldInternalID, idValues...),
			storage.ReplaceConnectionValue(u.Key, u.From, u.To...),
		)
		if err != nil && !stderrors.Is(err, storage.ErrIndexNotFound) {
			return errors.Database("entity connections update failed", err, map[string]any{"key": u.Key})
		}
	}
	return nil
}

// ConnectionPatch propagates an endpoint's new display name or type to
// the connection sub-record of every relationship mentioning it.
type ConnectionPatch struct {
	ConnectionID string
	Fields       map[string]any
}

func (s *Store) RelationConnectionsUpdate(ctx context.Context, patches []ConnectionPatch) error {
	// The touched relationship ids are not known up front, so the whole
	// cache is invalidated.
	if err := s.cache.Purge(ctx); err != nil {
		s.logger.Warn("cache purge failed", zap.Error(err))
	}
	for _, p := range patches {
		q := query.Nested(types.FieldConnections,
			query.Term(types.FieldConnections+"."+types.FieldInternalID, p.ConnectionID))
		err := s.updateByQueryWithRetry(ctx,
			[]string{IndexRelationships},
			q,
			storage.PatchConnection(p.ConnectionID, p.Fields),
		)
		if err != nil && !stderrors.Is(err, storage.ErrIndexNotFound) {
			return errors.Database("relation connections update failed", err, map[string]any{"connection": p.ConnectionID})
		}
	}
	return nil
}

// Replace applies a partial document: per changed field either a
// removal (empty value) or an assignment, joined into one composite
// script so concurrently written untouched fields survive.
func (s *Store) Replace(ctx context.Context, user *types.User, id string, doc map[string]any) error {
	element, err := s.LoadByID(ctx, user, id)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	scripts := make([]storage.Script, 0, len(keys))
	for _, k := range keys {
		if isEmptyValue(doc[k]) {
			scripts = append(scripts, storage.RemoveField(k))
		} else {
			scripts = append(scripts, storage.SetField(k, doc[k]))
		}
	}
	if len(scripts) == 0 {
		return nil
	}

	if err := s.cache.Delete(ctx, []string{element.InternalID()}); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
	composite := storage.Composite(scripts...)
	op := storage.BulkOp{
		Index:           s.indexFor(element.EntityType(), element.BaseType()),
		ID:              element.InternalID(),
		Action:          storage.BulkActionUpdate,
		Script:          &composite,
		RetryOnConflict: s.conf.MaxRetriesOnConflict,
	}
	if err := s.bulkWithRetry(ctx, []storage.BulkOp{op}); err != nil {
		return errors.Database("replace failed", err, map[string]any{"id": id})
	}
	return nil
}

// fanOutBulk issues bulk operations as bounded-size batches drained by
// a bounded-concurrency pool. Batches are independent; phases of one
// batch never run concurrently.
func (s *Store) fanOutBulk(ctx context.Context, ops []storage.BulkOp) error {
	chunks := concurrency.Chunk(ops, s.conf.MaxBatchSize)
	if len(chunks) == 1 {
		return s.bulkWithRetry(ctx, chunks[0])
	}
	pool := concurrency.NewPool(ctx, s.conf.MaxConcurrency)
	for _, chunk := range chunks {
		chunk := chunk
		pool.Go(func(ctx context.Context) error {
			return s.bulkWithRetry(ctx, chunk)
		})
	}
	return pool.Wait()
}

// bulkWithRetry retries a bulk call a bounded number of times when the
// failure is exclusively optimistic-concurrency conflicts.
func (s *Store) bulkWithRetry(ctx context.Context, ops []storage.BulkOp) error {
	if len(ops) == 0 {
		return nil
	}
	bulkOpsTotal.Add(float64(len(ops)))
	operation := func() error {
		err := s.engine.Bulk(ctx, ops)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, storage.ErrWriteConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.conf.MaxRetriesOnConflict)),
		ctx,
	)
	return backoff.Retry(operation, bo)
}

func (s *Store) updateByQueryWithRetry(ctx context.Context, indices []string, q *query.Query, script storage.Script) error {
	operation := func() error {
		err := s.engine.UpdateByQuery(ctx, indices, q, script)
		if err == nil {
			return nil
		}
		if stderrors.Is(err, storage.ErrWriteConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.conf.MaxRetriesOnConflict)),
		ctx,
	)
	return backoff.Retry(operation, bo)
}

// prepareElement applies array compaction and boolean-string coercion
// before indexing. Null entries are dropped from arrays; empty arrays
// stay empty rather than being omitted.
func prepareElement(element types.Element) types.Element {
	prepared := element.Copy()
	for k, v := range prepared {
		switch vv := v.(type) {
		case []any:
			compacted := make([]any, 0, len(vv))
			for _, item := range vv {
				if item != nil {
					compacted = append(compacted, item)
				}
			}
			prepared[k] = compacted
		case bool:
			if vv {
				prepared[k] = "true"
			} else {
				prepared[k] = "false"
			}
		}
	}
	return prepared
}

func isEmptyValue(v any) bool {
	switch vv := v.(type) {
	case nil:
		return true
	case string:
		return vv == ""
	case []any:
		return len(vv) == 0
	case []string:
		return len(vv) == 0
	default:
		return false
	}
}
