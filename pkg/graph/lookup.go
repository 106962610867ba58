package graph

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

// LoadByID resolves an element by internal or standard identifier,
// consulting the read-through cache before falling back to an indexed
// search. Cached hits are re-filtered through the caller's visibility
// invariant; an invisible element reports storage.ErrNotFound exactly
// like an absent one.
func (s *Store) LoadByID(ctx context.Context, user *types.User, id string) (types.Element, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		cacheHitCounter.Inc()
		if !canView(user, cached) {
			return nil, storage.ErrNotFound
		}
		return cached, nil
	}
	cacheMissCounter.Inc()

	elements, err := s.loadManyByIDs(ctx, user, []string{id})
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, storage.ErrNotFound
	}
	return elements[0], nil
}

// LoadByIDs resolves a batch of identifiers, returning only the
// elements that exist and are visible.
func (s *Store) LoadByIDs(ctx context.Context, user *types.User, ids []string) ([]types.Element, error) {
	var resolved []types.Element
	var misses []string
	for _, id := range ids {
		if cached, ok := s.cache.Get(ctx, id); ok {
			cacheHitCounter.Inc()
			if canView(user, cached) {
				resolved = append(resolved, cached)
			}
			continue
		}
		cacheMissCounter.Inc()
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return resolved, nil
	}
	loaded, err := s.loadManyByIDs(ctx, user, misses)
	if err != nil {
		return nil, err
	}
	return append(resolved, loaded...), nil
}

// LoadFullByID implements storage.Loader; the paginate path already
// returns elements in fully decoded form.
func (s *Store) LoadFullByID(ctx context.Context, user *types.User, id string) (types.Element, error) {
	return s.LoadByID(ctx, user, id)
}

func (s *Store) loadManyByIDs(ctx context.Context, user *types.User, ids []string) ([]types.Element, error) {
	must, mustNot := BuildUserFilter(user)
	idValues := make([]any, 0, len(ids))
	for _, id := range ids {
		idValues = append(idValues, id)
	}
	q := query.Bool().
		AppendMust(must...).
		AppendMustNot(mustNot...).
		AppendMust(query.Bool().
			AppendShould(
				query.Terms(types.FieldInternalID, idValues...),
				query.Terms(types.FieldStandardID, idValues...),
			).
			WithMinimumShouldMatch(1).
			Query()).
		Query()

	searchesTotal.WithLabelValues("load_by_id").Inc()
	result, err := s.engine.Search(ctx, storage.SearchRequest{
		Indices: Indices(),
		Query:   q,
		Size:    len(ids),
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrIndexNotFound) {
			return nil, nil
		}
		s.logger.Error("id lookup failed", zap.Int("ids", len(ids)), zap.Error(err))
		return nil, errors.Database("id lookup failed", err, map[string]any{"ids": ids})
	}

	elements := make([]types.Element, 0, len(result.Hits))
	for _, hit := range result.Hits {
		element, err := s.decodeHit(hit.Source)
		if err != nil {
			return nil, err
		}
		elements = append(elements, element)
	}
	if err := s.cache.Set(ctx, elements); err != nil {
		s.logger.Warn("caching resolved elements failed", zap.Error(err))
	}
	return elements, nil
}
