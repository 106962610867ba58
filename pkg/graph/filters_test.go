package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline/pkg/types"
)

func seedFilterCorpus(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.BulkIndex(context.Background(), []types.Element{
		entity("Indicator", "ind-low", "Low", map[string]any{
			"confidence": float64(20),
			"pattern":    "file-hash",
		}),
		entity("Indicator", "ind-high", "High", map[string]any{
			"confidence": float64(90),
			"pattern":    "domain-name",
		}),
		entity("Malware", "mal-1", "Emotet", nil),
	}))
}

func names(elements []types.Element) []string {
	out := make([]string, 0, len(elements))
	for _, e := range elements {
		out = append(out, e.Name())
	}
	return out
}

func TestFilterEquality(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "pattern", Values: []any{"file-hash"}}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Low"}, names(page.Elements))
}

func TestFilterNilValueMeansAbsent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "confidence", Values: []any{nil}}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Emotet"}, names(page.Elements))
}

func TestFilterExistsSentinel(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "confidence", Values: []any{ValueExists}}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Low", "High"}, names(page.Elements))
}

func TestFilterRangeOperators(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "confidence", Values: []any{float64(50)}, Operator: OpGt}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"High"}, names(page.Elements))

	page, err = s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "confidence", Values: []any{float64(20)}, Operator: OpLte}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Low"}, names(page.Elements))
}

func TestFilterWildcard(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "pattern", Values: []any{"*hash*"}, Operator: OpWildcard}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"Low"}, names(page.Elements))
}

func TestFilterValueModeOr(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{
			Key:    "pattern",
			Values: []any{"file-hash", "domain-name"},
		}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Low", "High"}, names(page.Elements))
}

func TestFilterTopLevelModeOr(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{
			Mode: ModeOr,
			Filters: []Filter{
				{Key: "pattern", Values: []any{"file-hash"}},
				{Key: "name", Values: []any{"Emotet"}},
			},
		},
		PaginateOptions{})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Low", "Emotet"}, names(page.Elements))
}

func TestFilterNestedPath(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	mal := entity("Malware", "mal-1", "Emotet", nil)
	org := entity("Identity", "org-1", "Acme", nil)
	other := entity("Identity", "org-2", "Globex", nil)
	require.NoError(t, s.BulkIndex(ctx, []types.Element{mal, org, other,
		relationship("targets", "rel-1", mal, org),
		relationship("targets", "rel-2", mal, other),
	}))

	page, err := s.Paginate(ctx, bypassUser, []string{IndexRelationships},
		FilterSpec{Nested: []NestedFilter{{
			Path:    types.FieldConnections,
			Filters: []Filter{{Key: types.FieldInternalID, Values: []any{"org-1"}}},
		}}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Len(t, page.Elements, 1)
	require.Equal(t, "rel-1", page.Elements[0].InternalID())
}

func TestFilterPolymorphicTypeMatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	// Matching on an abstract parent returns every descendant.
	page, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Types: []string{"Domain-Object"}},
		PaginateOptions{})
	require.NoError(t, err)
	require.Len(t, page.Elements, 3)
}

func TestFilterWithoutValuesRejected(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seedFilterCorpus(t, s)

	_, err := s.Paginate(ctx, bypassUser, []string{IndexEntities},
		FilterSpec{Filters: []Filter{{Key: "pattern"}}},
		PaginateOptions{})
	require.Error(t, err)
}
