// Package query models the subset of the backing engine's query DSL the
// store emits: boolean composition with minimum-match thresholds,
// term/phrase/range/wildcard matching, nested-object queries, id lookups
// and free-text query strings. Queries marshal to the engine's native
// JSON; the in-process backend evaluates them structurally.
package query

import "encoding/json"

// Query is a tagged union; exactly one member is set.
type Query struct {
	BoolQ        *BoolQuery
	TermQ        *TermQuery
	TermsQ       *TermsQuery
	ExistsQ      *ExistsQuery
	RangeQ       *RangeQuery
	WildcardQ    *WildcardQuery
	PhraseQ      *MatchPhraseQuery
	QueryStringQ *QueryStringQuery
	NestedQ      *NestedQuery
	IDsQ         *IDsQuery
	MatchAllQ    bool
}

type BoolQuery struct {
	Must               []*Query
	MustNot            []*Query
	Should             []*Query
	MinimumShouldMatch int
}

type TermQuery struct {
	Field string
	Value any
}

type TermsQuery struct {
	Field  string
	Values []any
}

type ExistsQuery struct {
	Field string
}

// RangeQuery bounds are optional; nil means unbounded.
type RangeQuery struct {
	Field string
	GT    any
	GTE   any
	LT    any
	LTE   any
}

type WildcardQuery struct {
	Field   string
	Pattern string
}

type MatchPhraseQuery struct {
	Field  string
	Phrase string
}

// QueryStringQuery is the engine's free-text query over all fields.
type QueryStringQuery struct {
	Query           string
	AnalyzeWildcard bool
	DefaultOperator string
}

// NestedQuery scopes an inner query to a nested-object array addressed
// by Path (e.g. "connections").
type NestedQuery struct {
	Path  string
	Query *Query
}

type IDsQuery struct {
	Values []string
}

// Constructors.

func Bool() *BoolQuery { return &BoolQuery{} }

func (b *BoolQuery) AppendMust(qs ...*Query) *BoolQuery {
	b.Must = append(b.Must, qs...)
	return b
}

func (b *BoolQuery) AppendMustNot(qs ...*Query) *BoolQuery {
	b.MustNot = append(b.MustNot, qs...)
	return b
}

func (b *BoolQuery) AppendShould(qs ...*Query) *BoolQuery {
	b.Should = append(b.Should, qs...)
	return b
}

func (b *BoolQuery) WithMinimumShouldMatch(n int) *BoolQuery {
	b.MinimumShouldMatch = n
	return b
}

func (b *BoolQuery) Query() *Query { return &Query{BoolQ: b} }

func Term(field string, value any) *Query {
	return &Query{TermQ: &TermQuery{Field: field, Value: value}}
}

func Terms(field string, values ...any) *Query {
	return &Query{TermsQ: &TermsQuery{Field: field, Values: values}}
}

func TermsStr(field string, values []string) *Query {
	anys := make([]any, 0, len(values))
	for _, v := range values {
		anys = append(anys, v)
	}
	return Terms(field, anys...)
}

func Exists(field string) *Query {
	return &Query{ExistsQ: &ExistsQuery{Field: field}}
}

func Range(field string) *RangeQuery { return &RangeQuery{Field: field} }

func (r *RangeQuery) Gt(v any) *RangeQuery  { r.GT = v; return r }
func (r *RangeQuery) Gte(v any) *RangeQuery { r.GTE = v; return r }
func (r *RangeQuery) Lt(v any) *RangeQuery  { r.LT = v; return r }
func (r *RangeQuery) Lte(v any) *RangeQuery { r.LTE = v; return r }
func (r *RangeQuery) Query() *Query         { return &Query{RangeQ: r} }

func Wildcard(field, pattern string) *Query {
	return &Query{WildcardQ: &WildcardQuery{Field: field, Pattern: pattern}}
}

func MatchPhrase(field, phrase string) *Query {
	return &Query{PhraseQ: &MatchPhraseQuery{Field: field, Phrase: phrase}}
}

func QueryString(q string) *Query {
	return &Query{QueryStringQ: &QueryStringQuery{
		Query:           q,
		AnalyzeWildcard: true,
		DefaultOperator: "AND",
	}}
}

func Nested(path string, inner *Query) *Query {
	return &Query{NestedQ: &NestedQuery{Path: path, Query: inner}}
}

func IDs(values ...string) *Query {
	return &Query{IDsQ: &IDsQuery{Values: values}}
}

func MatchAll() *Query { return &Query{MatchAllQ: true} }

// MarshalJSON renders the engine's native DSL.
func (q *Query) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.toMap())
}

func (q *Query) toMap() map[string]any {
	switch {
	case q.BoolQ != nil:
		b := map[string]any{}
		if len(q.BoolQ.Must) > 0 {
			b["must"] = clauseMaps(q.BoolQ.Must)
		}
		if len(q.BoolQ.MustNot) > 0 {
			b["must_not"] = clauseMaps(q.BoolQ.MustNot)
		}
		if len(q.BoolQ.Should) > 0 {
			b["should"] = clauseMaps(q.BoolQ.Should)
		}
		if q.BoolQ.MinimumShouldMatch > 0 {
			b["minimum_should_match"] = q.BoolQ.MinimumShouldMatch
		}
		return map[string]any{"bool": b}
	case q.TermQ != nil:
		return map[string]any{"term": map[string]any{q.TermQ.Field: q.TermQ.Value}}
	case q.TermsQ != nil:
		return map[string]any{"terms": map[string]any{q.TermsQ.Field: q.TermsQ.Values}}
	case q.ExistsQ != nil:
		return map[string]any{"exists": map[string]any{"field": q.ExistsQ.Field}}
	case q.RangeQ != nil:
		bounds := map[string]any{}
		if q.RangeQ.GT != nil {
			bounds["gt"] = q.RangeQ.GT
		}
		if q.RangeQ.GTE != nil {
			bounds["gte"] = q.RangeQ.GTE
		}
		if q.RangeQ.LT != nil {
			bounds["lt"] = q.RangeQ.LT
		}
		if q.RangeQ.LTE != nil {
			bounds["lte"] = q.RangeQ.LTE
		}
		return map[string]any{"range": map[string]any{q.RangeQ.Field: bounds}}
	case q.WildcardQ != nil:
		return map[string]any{"wildcard": map[string]any{
			q.WildcardQ.Field: map[string]any{"value": q.WildcardQ.Pattern},
		}}
	case q.PhraseQ != nil:
		return map[string]any{"match_phrase": map[string]any{q.PhraseQ.Field: q.PhraseQ.Phrase}}
	case q.QueryStringQ != nil:
		return map[string]any{"query_string": map[string]any{
			"query":            q.QueryStringQ.Query,
			"analyze_wildcard": q.QueryStringQ.AnalyzeWildcard,
			"default_operator": q.QueryStringQ.DefaultOperator,
		}}
	case q.NestedQ != nil:
		return map[string]any{"nested": map[string]any{
			"path":  q.NestedQ.Path,
			"query": q.NestedQ.Query.toMap(),
		}}
	case q.IDsQ != nil:
		return map[string]any{"ids": map[string]any{"values": q.IDsQ.Values}}
	default:
		return map[string]any{"match_all": map[string]any{}}
	}
}

func clauseMaps(qs []*Query) []map[string]any {
	out := make([]map[string]any, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.toMap())
	}
	return out
}

// Sort is one ordering criterion.
type Sort struct {
	Field string
	Order string // "asc" or "desc"
}

// SortByScore orders by relevance; only meaningful with free-text
// search.
var SortByScore = Sort{Field: "_score", Order: "desc"}

// Aggregation kinds.
const (
	AggTerms         = "terms"
	AggDateHistogram = "date_histogram"
)

// Aggregation describes a terms or date-histogram aggregation,
// optionally scoped to a nested path.
type Aggregation struct {
	Kind       string
	Field      string
	Interval   string // date histogram only: year, month, day
	Size       int    // terms only: bucket ceiling
	NestedPath string
}
