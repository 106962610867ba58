package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, q *Query) string {
	t.Helper()
	data, err := json.Marshal(q)
	require.NoError(t, err)
	return string(data)
}

func TestMarshalComposedBool(t *testing.T) {
	q := Bool().
		AppendMust(Term("entity_type", "Report")).
		AppendMustNot(Exists("rel_object-marking")).
		AppendShould(Term("name", "a"), Term("name", "b")).
		WithMinimumShouldMatch(1).
		Query()

	require.JSONEq(t, `{
		"bool": {
			"must": [{"term": {"entity_type": "Report"}}],
			"must_not": [{"exists": {"field": "rel_object-marking"}}],
			"should": [{"term": {"name": "a"}}, {"term": {"name": "b"}}],
			"minimum_should_match": 1
		}
	}`, marshal(t, q))
}

func TestMarshalLeafQueries(t *testing.T) {
	tests := []struct {
		name string
		q    *Query
		want string
	}{
		{
			name: "terms",
			q:    Terms("parent_types", "Domain-Object", "Core-Object"),
			want: `{"terms": {"parent_types": ["Domain-Object", "Core-Object"]}}`,
		},
		{
			name: "range",
			q:    Range("confidence").Gte(50).Lt(90).Query(),
			want: `{"range": {"confidence": {"gte": 50, "lt": 90}}}`,
		},
		{
			name: "wildcard",
			q:    Wildcard("name", "*emotet*"),
			want: `{"wildcard": {"name": {"value": "*emotet*"}}}`,
		},
		{
			name: "match phrase",
			q:    MatchPhrase("description", "banking trojan"),
			want: `{"match_phrase": {"description": "banking trojan"}}`,
		},
		{
			name: "nested",
			q:    Nested("connections", Term("connections.internal_id", "x")),
			want: `{"nested": {"path": "connections", "query": {"term": {"connections.internal_id": "x"}}}}`,
		},
		{
			name: "ids",
			q:    IDs("a", "b"),
			want: `{"ids": {"values": ["a", "b"]}}`,
		},
		{
			name: "match all",
			q:    MatchAll(),
			want: `{"match_all": {}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.JSONEq(t, tc.want, marshal(t, tc.q))
		})
	}
}

func TestMarshalQueryString(t *testing.T) {
	out := marshal(t, QueryString("*emotet*"))
	require.JSONEq(t, `{
		"query_string": {
			"query": "*emotet*",
			"analyze_wildcard": true,
			"default_operator": "AND"
		}
	}`, out)
}

func TestTermsStr(t *testing.T) {
	q := TermsStr("internal_id", []string{"a", "b"})
	require.Equal(t, []any{"a", "b"}, q.TermsQ.Values)
}
