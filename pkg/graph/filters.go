package graph

import (
	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/types"
)

type Operator string

const (
	OpEq       Operator = "eq"
	OpMatch    Operator = "match"
	OpWildcard Operator = "wildcard"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
)

type FilterMode string

const (
	ModeAnd FilterMode = "and"
	ModeOr  FilterMode = "or"
)

// ValueExists is the sentinel meaning "field must exist" with no value
// constraint. It is matched literally, so a field genuinely holding
// this string cannot be filtered by value.
const ValueExists = "EXISTS"

// Filter is one field constraint. A nil entry in Values means the field
// must not exist.
type Filter struct {
	Key      string
	Values   []any
	Operator Operator
	Mode     FilterMode
}

// NestedFilter addresses a nested-object array by its dotted path
// (e.g. "connections").
type NestedFilter struct {
	Path    string
	Filters []Filter
}

// FilterSpec is the domain-level filter specification accepted by every
// read operation. Top-level filters combine by AND unless Mode is or.
type FilterSpec struct {
	Mode    FilterMode
	Types   []string
	Filters []Filter
	Nested  []NestedFilter
	Search  string
}

// buildQuery translates a filter specification into an engine query
// with the caller's access fragments merged in.
func (s *Store) buildQuery(user *types.User, spec FilterSpec) (*query.Query, error) {
	root := query.Bool()

	must, mustNot := BuildUserFilter(user)
	root.AppendMust(must...)
	root.AppendMustNot(mustNot...)

	if len(spec.Types) > 0 {
		root.AppendMust(typeQuery(spec.Types))
	}

	var clauses []*query.Query
	for _, f := range spec.Filters {
		clause, err := filterClause(f, "")
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	for _, nf := range spec.Nested {
		inner := query.Bool()
		for _, f := range nf.Filters {
			clause, err := filterClause(f, nf.Path+".")
			if err != nil {
				return nil, err
			}
			inner.AppendMust(clause)
		}
		clauses = append(clauses, query.Nested(nf.Path, inner.Query()))
	}

	if spec.Mode == ModeOr && len(clauses) > 1 {
		root.AppendMust(query.Bool().AppendShould(clauses...).WithMinimumShouldMatch(1).Query())
	} else {
		root.AppendMust(clauses...)
	}

	if spec.Search != "" {
		root.AppendMust(buildSearchQuery(spec.Search))
	}

	return root.Query(), nil
}

// typeQuery matches a type against either the concrete entity type or
// the parent lineage, giving polymorphic matching.
func typeQuery(typeNames []string) *query.Query {
	values := make([]any, 0, len(typeNames))
	for _, t := range typeNames {
		values = append(values, t)
	}
	return query.Bool().
		AppendShould(
			query.Terms(types.FieldEntityType, values...),
			query.Terms(types.FieldParentTypes, values...),
		).
		WithMinimumShouldMatch(1).
		Query()
}

func filterClause(f Filter, keyPrefix string) (*query.Query, error) {
	key := keyPrefix + f.Key
	var valueClauses []*query.Query
	for _, v := range f.Values {
		if v == nil {
			valueClauses = append(valueClauses,
				query.Bool().AppendMustNot(query.Exists(key)).Query())
			continue
		}
		if s, ok := v.(string); ok && s == ValueExists {
			valueClauses = append(valueClauses, query.Exists(key))
			continue
		}
		switch f.Operator {
		case OpEq, "":
			valueClauses = append(valueClauses, query.Term(key, v))
		case OpMatch:
			phrase, ok := v.(string)
			if !ok {
				return nil, errors.Functionalf("match filter on %s requires a string value", f.Key)
			}
			valueClauses = append(valueClauses, query.MatchPhrase(key, phrase))
		case OpWildcard:
			pattern, ok := v.(string)
			if !ok {
				return nil, errors.Functionalf("wildcard filter on %s requires a string value", f.Key)
			}
			valueClauses = append(valueClauses, query.Wildcard(key, pattern))
		case OpGt:
			valueClauses = append(valueClauses, query.Range(key).Gt(v).Query())
		case OpGte:
			valueClauses = append(valueClauses, query.Range(key).Gte(v).Query())
		case OpLt:
			valueClauses = append(valueClauses, query.Range(key).Lt(v).Query())
		case OpLte:
			valueClauses = append(valueClauses, query.Range(key).Lte(v).Query())
		default:
			return nil, errors.Functionalf("unsupported filter operator %q on %s", f.Operator, f.Key)
		}
	}

	if len(valueClauses) == 0 {
		return nil, errors.Functionalf("filter on %s carries no value", f.Key)
	}
	if len(valueClauses) == 1 {
		return valueClauses[0], nil
	}
	if f.Mode == ModeAnd {
		return query.Bool().AppendMust(valueClauses...).Query(), nil
	}
	return query.Bool().AppendShould(valueClauses...).WithMinimumShouldMatch(1).Query(), nil
}
