package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

func TestLoadByID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.BulkIndex(ctx, []types.Element{
		entity("Report", "r1", "Report", nil),
	}))

	loaded, err := s.LoadByID(ctx, bypassUser, "r1")
	require.NoError(t, err)
	require.Equal(t, "Report", loaded.Name())

	// Standard identifiers resolve too.
	loaded, err = s.LoadByID(ctx, bypassUser, "Report--r1")
	require.NoError(t, err)
	require.Equal(t, "r1", loaded.InternalID())
}

func TestLoadByIDNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedReports(t, s, 1)

	_, err := s.LoadByID(ctx, bypassUser, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoadByIDMissingIndex(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.LoadByID(ctx, bypassUser, "r1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoadByIDPopulatesCache(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	s, engine := newTestStore(t, WithCache(cache))
	require.NoError(t, s.BulkIndex(ctx, []types.Element{
		entity("Report", "r1", "Report", nil),
	}))

	_, err := s.LoadByID(ctx, bypassUser, "r1")
	require.NoError(t, err)
	searchesAfterMiss := engine.searches.Load()

	// The second load is served from the cache.
	_, err = s.LoadByID(ctx, bypassUser, "r1")
	require.NoError(t, err)
	require.Equal(t, searchesAfterMiss, engine.searches.Load())
}

func TestLoadByIDCachedHitStillFiltered(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	s, _ := newTestStore(t, WithCache(cache))
	require.NoError(t, s.BulkIndex(ctx, []types.Element{
		entity("Report", "red", "Red", map[string]any{
			schema.MarkingRefField: []any{markingRed},
		}),
	}))

	// Warm the cache with a privileged load.
	_, err := s.LoadByID(ctx, bypassUser, "red")
	require.NoError(t, err)

	// The cached element is invisible to the restricted user.
	_, err = s.LoadByID(ctx, greenUser(), "red")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLoadByIDs(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	s, _ := newTestStore(t, WithCache(cache))
	require.NoError(t, s.BulkIndex(ctx, []types.Element{
		entity("Report", "r1", "One", nil),
		entity("Report", "r2", "Two", nil),
	}))

	// Warm one entry so the batch mixes cache hits and engine loads.
	_, err := s.LoadByID(ctx, bypassUser, "r1")
	require.NoError(t, err)

	elements, err := s.LoadByIDs(ctx, bypassUser, []string{"r1", "r2", "missing"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"r1", "r2"}, idsOf(elements))
}

func TestLoadByIDsFiltersInvisible(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.BulkIndex(ctx, []types.Element{
		entity("Report", "plain", "Unmarked", nil),
		entity("Report", "red", "Red", map[string]any{
			schema.MarkingRefField: []any{markingRed},
		}),
	}))

	elements, err := s.LoadByIDs(ctx, greenUser(), []string{"plain", "red"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"plain"}, idsOf(elements))
}
