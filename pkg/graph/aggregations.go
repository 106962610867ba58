package graph

import (
	"context"
	stderrors "errors"
	"sort"

	"go.uber.org/zap"

	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

// Count returns the number of elements matching the specification,
// under the caller's access filter.
func (s *Store) Count(ctx context.Context, user *types.User, indices []string, spec FilterSpec) (int64, error) {
	q, err := s.buildQuery(user, spec)
	if err != nil {
		return 0, err
	}
	searchesTotal.WithLabelValues("count").Inc()
	n, err := s.engine.Count(ctx, indices, q)
	if err != nil {
		if stderrors.Is(err, storage.ErrIndexNotFound) {
			return 0, nil
		}
		s.logger.Error("count query failed", zap.Strings("indices", indices), zap.Error(err))
		return 0, errors.Database("count query failed", err, map[string]any{"indices": indices})
	}
	return n, nil
}

// TermsAggregation buckets matching elements by the given field. size
// defaults to the configured ceiling; requesting more than the ceiling
// is a configuration error, not a runtime one.
func (s *Store) TermsAggregation(ctx context.Context, user *types.User, indices []string, field string, size int, spec FilterSpec) ([]storage.Bucket, error) {
	if size <= 0 {
		size = s.conf.AggregationBucketLimit
	}
	if size > s.conf.AggregationBucketLimit {
		return nil, errors.Configuration("aggregation size exceeds the configured bucket ceiling", nil)
	}
	q, err := s.buildQuery(user, spec)
	if err != nil {
		return nil, err
	}
	searchesTotal.WithLabelValues("terms_aggregation").Inc()
	buckets, err := s.engine.Aggregate(ctx, storage.AggregateRequest{
		Indices:     indices,
		Query:       q,
		Aggregation: query.Aggregation{Kind: query.AggTerms, Field: field, Size: size},
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrIndexNotFound) {
			return nil, nil
		}
		s.logger.Error("terms aggregation failed", zap.String("field", field), zap.Error(err))
		return nil, errors.Database("terms aggregation failed", err, map[string]any{"field": field})
	}
	return buckets, nil
}

var validIntervals = map[string]bool{"year": true, "month": true, "day": true}

// DateHistogram buckets matching elements over time. interval must be
// year, month or day; anything else fails before any engine call.
func (s *Store) DateHistogram(ctx context.Context, user *types.User, indices []string, field, interval string, spec FilterSpec) ([]storage.Bucket, error) {
	if !validIntervals[interval] {
		return nil, errors.Functionalf("unsupported date histogram interval %q", interval)
	}
	q, err := s.buildQuery(user, spec)
	if err != nil {
		return nil, err
	}
	searchesTotal.WithLabelValues("date_histogram").Inc()
	buckets, err := s.engine.Aggregate(ctx, storage.AggregateRequest{
		Indices:     indices,
		Query:       q,
		Aggregation: query.Aggregation{Kind: query.AggDateHistogram, Field: field, Interval: interval},
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrIndexNotFound) {
			return nil, nil
		}
		s.logger.Error("date histogram failed", zap.String("field", field), zap.Error(err))
		return nil, errors.Database("date histogram failed", err, map[string]any{"field": field})
	}
	return buckets, nil
}

// Aggregation fields accepted by RelationshipAggregation.
const (
	RelAggByType = types.FieldEntityType
	RelAggByID   = types.FieldInternalID
)

// Direction restricts which side of a relationship the pivot element
// occupies.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
)

// RelationshipAggregationOptions selects the relationships to pivot on.
type RelationshipAggregationOptions struct {
	// FromID restricts to relationships touching this element.
	FromID string
	// Direction further restricts to relationships where the pivot
	// occupies the from or the to role.
	Direction Direction
	// ToTypes restricts the counted opposite endpoints by type family.
	ToTypes []string
	// RelationshipTypes restricts the relationship types traversed.
	RelationshipTypes []string
	// Field is the connection attribute aggregated: entity_type or
	// internal_id.
	Field string
}

// RelationshipAggregation aggregates over the nested connection list of
// matching relationships. When aggregating by type, each returned
// document's connection-type arrays are cross-referenced so the pivot
// element and its own type family are excluded from the counts.
func (s *Store) RelationshipAggregation(ctx context.Context, user *types.User, opts RelationshipAggregationOptions) ([]storage.Bucket, error) {
	if opts.Field != RelAggByType && opts.Field != RelAggByID {
		return nil, errors.Functionalf("unsupported relationship aggregation field %q", opts.Field)
	}

	spec := FilterSpec{Types: opts.RelationshipTypes}
	if len(spec.Types) == 0 {
		spec.Types = []string{schema.TypeBasicRelation}
	}
	if opts.FromID != "" {
		filters := []Filter{{Key: types.FieldInternalID, Values: []any{opts.FromID}}}
		// Roles suffix the relationship type, so a direction translates
		// to a suffix wildcard on the same connection.
		switch opts.Direction {
		case DirectionFrom:
			filters = append(filters, Filter{Key: "role", Operator: OpWildcard, Values: []any{"*" + roleFromSuffix}})
		case DirectionTo:
			filters = append(filters, Filter{Key: "role", Operator: OpWildcard, Values: []any{"*" + roleToSuffix}})
		case "":
		default:
			return nil, errors.Functionalf("unsupported relationship aggregation direction %q", opts.Direction)
		}
		spec.Nested = append(spec.Nested, NestedFilter{
			Path:    types.FieldConnections,
			Filters: filters,
		})
	} else if opts.Direction != "" {
		return nil, errors.Functionalf("relationship aggregation direction requires a pivot element")
	}

	if opts.Field == RelAggByID {
		q, err := s.buildQuery(user, spec)
		if err != nil {
			return nil, err
		}
		searchesTotal.WithLabelValues("relationship_aggregation").Inc()
		buckets, err := s.engine.Aggregate(ctx, storage.AggregateRequest{
			Indices: []string{IndexRelationships},
			Query:   q,
			Aggregation: query.Aggregation{
				Kind:       query.AggTerms,
				Field:      types.FieldConnections + "." + types.FieldInternalID,
				Size:       s.conf.AggregationBucketLimit,
				NestedPath: types.FieldConnections,
			},
		})
		if err != nil {
			if stderrors.Is(err, storage.ErrIndexNotFound) {
				return nil, nil
			}
			return nil, errors.Database("relationship aggregation failed", err, map[string]any{"from": opts.FromID})
		}
		// The pivot appears in every relationship's connections; drop it.
		out := buckets[:0]
		for _, b := range buckets {
			if b.Label != opts.FromID {
				out = append(out, b)
			}
		}
		return out, nil
	}

	return s.relationshipTypeAggregation(ctx, user, spec, opts)
}

// relationshipTypeAggregation counts opposite-endpoint types by walking
// the matched relationships' connections rather than a pure engine
// aggregation, because excluding the pivot's own type family requires
// each document's connection-type arrays.
func (s *Store) relationshipTypeAggregation(ctx context.Context, user *types.User, spec FilterSpec, opts RelationshipAggregationOptions) ([]storage.Bucket, error) {
	counts := make(map[string]int64)
	total := 0
	_, err := s.List(ctx, user, []string{IndexRelationships}, spec, ListOptions{
		Callback: func(batch []types.Element) bool {
			for _, rel := range batch {
				countOppositeTypes(rel, opts, counts)
			}
			total += len(batch)
			return total < s.conf.AggregationBucketLimit
		},
	})
	if err != nil {
		return nil, err
	}

	buckets := make([]storage.Bucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, storage.Bucket{Label: label, Value: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Value != buckets[j].Value {
			return buckets[i].Value > buckets[j].Value
		}
		return buckets[i].Label < buckets[j].Label
	})
	return buckets, nil
}

func countOppositeTypes(rel types.Element, opts RelationshipAggregationOptions, counts map[string]int64) {
	fromID, _ := rel[types.FieldFromID].(string)
	toID, _ := rel[types.FieldToID].(string)
	sides := []struct {
		id      string
		lineage []string
	}{
		{fromID, endpointLineage(rel, types.FieldFrom)},
		{toID, endpointLineage(rel, types.FieldTo)},
	}

	var pivotType string
	for _, side := range sides {
		if side.id == opts.FromID {
			pivotType = specificType(side.lineage)
		}
	}
	for _, side := range sides {
		elemType := specificType(side.lineage)
		if side.id == opts.FromID || elemType == "" {
			continue
		}
		// Exclude endpoints of the pivot's own type family: the full
		// connection lineage decides, so subtypes are excluded too.
		if pivotType != "" && containsString(side.lineage, pivotType) {
			continue
		}
		if len(opts.ToTypes) > 0 && !lineageMatchesAny(side.lineage, opts.ToTypes) {
			continue
		}
		counts[elemType]++
	}
}

// endpointLineage recovers an endpoint's full type lineage from the
// decoded relationship's from/to stub.
func endpointLineage(rel types.Element, key string) []string {
	stub := endpointOf(rel[key])
	if stub == nil {
		return nil
	}
	if t := stub.EntityType(); t != "" {
		return append([]string{t}, stub.ParentTypes()...)
	}
	return nil
}

func lineageMatchesAny(lineage []string, wanted []string) bool {
	for _, t := range lineage {
		if containsString(wanted, t) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
