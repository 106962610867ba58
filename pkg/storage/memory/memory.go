// Package memory provides a fully in-process Engine implementation. It
// evaluates the query subset emitted by the graph store structurally
// instead of via the engine's JSON DSL, and applies script intents
// directly to stored documents. It backs the test suite and an embedded
// degraded mode.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/storage"
)

type Engine struct {
	mu      sync.RWMutex
	indices map[string]map[string]map[string]any
}

var _ storage.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{indices: make(map[string]map[string]map[string]any)}
}

func (e *Engine) Health(ctx context.Context) (storage.EngineInfo, error) {
	return storage.EngineInfo{ClusterName: "memory", Version: "0", Healthy: true}, nil
}

func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.indices[name]
	return ok, nil
}

func (e *Engine) CreateIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.indices[name]; !ok {
		e.indices[name] = make(map[string]map[string]any)
	}
	return nil
}

func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.indices, name)
	return nil
}

func (e *Engine) Search(ctx context.Context, req storage.SearchRequest) (*storage.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	hits, err := e.collect(req.Indices, req.Query)
	if err != nil {
		return nil, err
	}

	sorts := req.Sort
	if len(sorts) == 0 {
		sorts = []query.Sort{{Field: "standard_id", Order: "asc"}}
	}
	sortHits(hits, sorts)

	for i := range hits {
		hits[i].Sort = sortTuple(hits[i].Source, sorts)
	}

	total := int64(len(hits))
	if len(req.SearchAfter) > 0 {
		idx := 0
		for idx < len(hits) && compareTuples(hits[idx].Sort, req.SearchAfter, sorts) <= 0 {
			idx++
		}
		hits = hits[idx:]
	}
	if req.Size > 0 && len(hits) > req.Size {
		hits = hits[:req.Size]
	}

	out := make([]storage.Hit, 0, len(hits))
	for _, h := range hits {
		out = append(out, storage.Hit{
			Index:  h.Index,
			ID:     h.ID,
			Score:  1,
			Source: deepCopy(h.Source).(map[string]any),
			Sort:   h.Sort,
		})
	}
	return &storage.SearchResult{Hits: out, Total: total}, nil
}

func (e *Engine) Count(ctx context.Context, indices []string, q *query.Query) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	hits, err := e.collect(indices, q)
	if err != nil {
		return 0, err
	}
	return int64(len(hits)), nil
}

func (e *Engine) Aggregate(ctx context.Context, req storage.AggregateRequest) ([]storage.Bucket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	hits, err := e.collect(req.Indices, req.Query)
	if err != nil {
		return nil, err
	}

	agg := req.Aggregation
	counts := make(map[string]int64)
	for _, h := range hits {
		field := agg.Field
		source := []map[string]any{h.Source}
		if agg.NestedPath != "" {
			source = nestedObjects(h.Source, agg.NestedPath)
			field = strings.TrimPrefix(field, agg.NestedPath+".")
		}
		for _, doc := range source {
			for _, v := range fieldValues(doc, field) {
				label, ok := bucketLabel(v, agg)
				if !ok {
					continue
				}
				counts[label]++
			}
		}
	}

	buckets := make([]storage.Bucket, 0, len(counts))
	for label, n := range counts {
		buckets = append(buckets, storage.Bucket{Label: label, Value: n})
	}
	if agg.Kind == query.AggDateHistogram {
		sort.Slice(buckets, func(i, j int) bool { return buckets[i].Label < buckets[j].Label })
	} else {
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Value != buckets[j].Value {
				return buckets[i].Value > buckets[j].Value
			}
			return buckets[i].Label < buckets[j].Label
		})
		if agg.Size > 0 && len(buckets) > agg.Size {
			buckets = buckets[:agg.Size]
		}
	}
	return buckets, nil
}

func bucketLabel(v any, agg query.Aggregation) (string, bool) {
	if agg.Kind == query.AggDateHistogram {
		t, ok := parseDate(v)
		if !ok {
			return "", false
		}
		switch agg.Interval {
		case "year":
			return t.Format("2006"), true
		case "month":
			return t.Format("2006-01"), true
		default:
			return t.Format("2006-01-02"), true
		}
	}
	return fmt.Sprintf("%v", v), true
}

func (e *Engine) Bulk(ctx context.Context, ops []storage.BulkOp) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var failed []storage.BulkItemError
	for _, op := range ops {
		idx, ok := e.indices[op.Index]
		if !ok {
			// Mappings are created lazily on first write.
			idx = make(map[string]map[string]any)
			e.indices[op.Index] = idx
		}
		switch op.Action {
		case storage.BulkActionIndex:
			idx[op.ID] = deepCopy(op.Doc).(map[string]any)
		case storage.BulkActionUpdate:
			doc, ok := idx[op.ID]
			if !ok {
				failed = append(failed, storage.BulkItemError{Index: op.Index, ID: op.ID, Reason: "document_missing"})
				continue
			}
			if op.Script != nil {
				applyScript(doc, *op.Script)
			}
		case storage.BulkActionDelete:
			delete(idx, op.ID)
		}
	}
	if len(failed) > 0 {
		return &storage.BulkError{Items: failed}
	}
	return nil
}

func (e *Engine) UpdateByQuery(ctx context.Context, indices []string, q *query.Query, script storage.Script) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	matched := false
	for _, name := range indices {
		idx, ok := e.indices[name]
		if !ok {
			continue
		}
		matched = true
		for _, doc := range idx {
			if evalQuery(doc, q) {
				applyScript(doc, script)
			}
		}
	}
	if !matched && len(indices) > 0 {
		return fmt.Errorf("update by query on %v: %w", indices, storage.ErrIndexNotFound)
	}
	return nil
}

type rawHit struct {
	Index  string
	ID     string
	Source map[string]any
	Sort   []any
}

func (e *Engine) collect(indices []string, q *query.Query) ([]rawHit, error) {
	var hits []rawHit
	found := false
	for _, name := range indices {
		idx, ok := e.indices[name]
		if !ok {
			continue
		}
		found = true
		for id, doc := range idx {
			if evalQuery(doc, q) {
				hits = append(hits, rawHit{Index: name, ID: id, Source: doc})
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("search on %v: %w", indices, storage.ErrIndexNotFound)
	}
	return hits, nil
}

// Query evaluation.

func evalQuery(doc map[string]any, q *query.Query) bool {
	if q == nil {
		return true
	}
	switch {
	case q.BoolQ != nil:
		return evalBool(doc, q.BoolQ)
	case q.TermQ != nil:
		return containsValue(fieldValues(doc, q.TermQ.Field), q.TermQ.Value)
	case q.TermsQ != nil:
		values := fieldValues(doc, q.TermsQ.Field)
		for _, want := range q.TermsQ.Values {
			if containsValue(values, want) {
				return true
			}
		}
		return false
	case q.ExistsQ != nil:
		return fieldExists(doc, q.ExistsQ.Field)
	case q.RangeQ != nil:
		return evalRange(doc, q.RangeQ)
	case q.WildcardQ != nil:
		re := wildcardRegexp(q.WildcardQ.Pattern)
		for _, v := range fieldValues(doc, q.WildcardQ.Field) {
			if s, ok := v.(string); ok && re.MatchString(strings.ToLower(s)) {
				return true
			}
		}
		return false
	case q.PhraseQ != nil:
		for _, v := range fieldValues(doc, q.PhraseQ.Field) {
			if s, ok := v.(string); ok &&
				strings.Contains(strings.ToLower(s), strings.ToLower(q.PhraseQ.Phrase)) {
				return true
			}
		}
		return false
	case q.QueryStringQ != nil:
		return evalQueryString(doc, q.QueryStringQ.Query)
	case q.NestedQ != nil:
		for _, obj := range nestedObjects(doc, q.NestedQ.Path) {
			if evalQuery(scopedDoc(obj, q.NestedQ.Path), q.NestedQ.Query) {
				return true
			}
		}
		return false
	case q.IDsQ != nil:
		id, _ := doc["internal_id"].(string)
		for _, want := range q.IDsQ.Values {
			if id == want {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func evalBool(doc map[string]any, b *query.BoolQuery) bool {
	for _, m := range b.Must {
		if !evalQuery(doc, m) {
			return false
		}
	}
	for _, m := range b.MustNot {
		if evalQuery(doc, m) {
			return false
		}
	}
	if len(b.Should) > 0 {
		minimum := b.MinimumShouldMatch
		if minimum == 0 {
			if len(b.Must) == 0 && len(b.MustNot) == 0 {
				minimum = 1
			}
		}
		matched := 0
		for _, s := range b.Should {
			if evalQuery(doc, s) {
				matched++
			}
		}
		if matched < minimum {
			return false
		}
	}
	return true
}

func evalRange(doc map[string]any, r *query.RangeQuery) bool {
	for _, v := range fieldValues(doc, r.Field) {
		ok := true
		if r.GT != nil && compareValues(v, r.GT) <= 0 {
			ok = false
		}
		if r.GTE != nil && compareValues(v, r.GTE) < 0 {
			ok = false
		}
		if r.LT != nil && compareValues(v, r.LT) >= 0 {
			ok = false
		}
		if r.LTE != nil && compareValues(v, r.LTE) > 0 {
			ok = false
		}
		if ok {
			return true
		}
	}
	return false
}

var quotedSegment = regexp.MustCompile(`"([^"]*)"`)

func evalQueryString(doc map[string]any, raw string) bool {
	values := allStringValues(doc)

	matched := true
	rest := quotedSegment.ReplaceAllStringFunc(raw, func(m string) string {
		phrase := strings.ToLower(strings.ReplaceAll(strings.Trim(m, `"`), `\`, ""))
		found := false
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), phrase) {
				found = true
				break
			}
		}
		if !found {
			matched = false
		}
		return " "
	})
	if !matched {
		return false
	}

	for _, tok := range strings.Fields(rest) {
		re := wildcardRegexp(strings.ReplaceAll(tok, `\`, ""))
		found := false
		for _, v := range values {
			if re.MatchString(strings.ToLower(v)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func allStringValues(doc map[string]any) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch vv := v.(type) {
		case string:
			out = append(out, vv)
		case []any:
			for _, item := range vv {
				walk(item)
			}
		case map[string]any:
			for _, item := range vv {
				walk(item)
			}
		}
	}
	walk(doc)
	return out
}

// fieldValues resolves a possibly dotted path to the list of leaf
// values it holds in the document.
func fieldValues(doc map[string]any, field string) []any {
	parts := strings.Split(field, ".")
	current := []any{doc}
	for _, part := range parts {
		var next []any
		for _, c := range current {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			v, ok := m[part]
			if !ok {
				continue
			}
			if arr, ok := v.([]any); ok {
				next = append(next, arr...)
			} else {
				next = append(next, v)
			}
		}
		current = next
	}
	return current
}

func fieldExists(doc map[string]any, field string) bool {
	for _, v := range fieldValues(doc, field) {
		if v != nil {
			return true
		}
	}
	return false
}

func nestedObjects(doc map[string]any, path string) []map[string]any {
	raw, _ := doc[path].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// scopedDoc re-roots a nested object so that inner queries addressed as
// "<path>.<field>" resolve against it.
func scopedDoc(obj map[string]any, path string) map[string]any {
	return map[string]any{path: []any{obj}}
}

func containsValue(values []any, want any) bool {
	for _, v := range values {
		if compareValues(v, want) == 0 {
			return true
		}
	}
	return false
}

// compareValues orders two document values; strings compare
// case-insensitively to mirror the engine's normalized keyword mapping.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	at, aok := parseDate(a)
	bt, bok := parseDate(b)
	if aok && bok {
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(
		strings.ToLower(fmt.Sprintf("%v", a)),
		strings.ToLower(fmt.Sprintf("%v", b)),
	)
}

func toFloat(v any) (float64, bool) {
	switch vv := v.(type) {
	case float64:
		return vv, true
	case float32:
		return float64(vv), true
	case int:
		return float64(vv), true
	case int32:
		return float64(vv), true
	case int64:
		return float64(vv), true
	default:
		return 0, false
	}
}

func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func wildcardRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range strings.ToLower(pattern) {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// Sorting.

func sortHits(hits []rawHit, sorts []query.Sort) {
	sort.SliceStable(hits, func(i, j int) bool {
		return compareTuples(sortTuple(hits[i].Source, sorts), sortTuple(hits[j].Source, sorts), sorts) < 0
	})
}

func sortTuple(doc map[string]any, sorts []query.Sort) []any {
	tuple := make([]any, 0, len(sorts))
	for _, s := range sorts {
		if s.Field == "_score" {
			tuple = append(tuple, float64(1))
			continue
		}
		values := fieldValues(doc, s.Field)
		if len(values) == 0 {
			tuple = append(tuple, nil)
			continue
		}
		tuple = append(tuple, values[0])
	}
	return tuple
}

func compareTuples(a, b []any, sorts []query.Sort) int {
	for i := range sorts {
		if i >= len(a) || i >= len(b) {
			break
		}
		av, bv := a[i], b[i]
		if av == nil && bv == nil {
			continue
		}
		// Missing values sort last regardless of order.
		if av == nil {
			return 1
		}
		if bv == nil {
			return -1
		}
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if sorts[i].Order == "desc" {
			return -c
		}
		return c
	}
	return 0
}

// Script application.

func applyScript(doc map[string]any, s storage.Script) {
	switch s.Kind {
	case storage.ScriptSet:
		if len(s.Values) > 0 {
			doc[s.Field] = deepCopy(s.Values[0])
		}
	case storage.ScriptRemove:
		delete(doc, s.Field)
	case storage.ScriptAppend:
		arr, _ := doc[s.Field].([]any)
		if doc[s.Field] == nil {
			arr = []any{}
		}
		for _, v := range s.Values {
			if !containsValue(arr, v) {
				arr = append(arr, deepCopy(v))
			}
		}
		doc[s.Field] = arr
	case storage.ScriptRemoveFromArray:
		arr, ok := doc[s.Field].([]any)
		if !ok {
			return
		}
		kept := make([]any, 0, len(arr))
		for _, v := range arr {
			if !containsValue(s.Values, v) {
				kept = append(kept, v)
			}
		}
		doc[s.Field] = kept
	case storage.ScriptReplaceInArray:
		arr, ok := doc[s.Field].([]any)
		if !ok || len(s.Values) == 0 {
			return
		}
		for i, v := range arr {
			if compareValues(v, s.Previous) == 0 {
				arr[i] = deepCopy(s.Values[0])
			}
		}
	case storage.ScriptReplaceConnectionValue:
		applyReplaceConnectionValue(doc, s)
	case storage.ScriptPatchConnection:
		for _, obj := range nestedObjects(doc, "connections") {
			if id, _ := obj["internal_id"].(string); id == s.ConnectionID {
				for k, v := range s.Fields {
					obj[k] = deepCopy(v)
				}
			}
		}
	case storage.ScriptComposite:
		for _, sub := range s.Scripts {
			applyScript(doc, sub)
		}
	}
}

func applyReplaceConnectionValue(doc map[string]any, s storage.Script) {
	arr, ok := doc[s.Field].([]any)
	if !ok {
		arr = []any{}
	}
	replaced := false
	out := make([]any, 0, len(arr)+len(s.Values))
	for _, v := range arr {
		if s.Previous != nil && compareValues(v, s.Previous) == 0 {
			if !replaced {
				for _, next := range s.Values {
					out = append(out, deepCopy(next))
				}
				replaced = true
			}
			continue
		}
		out = append(out, v)
	}
	if !replaced {
		for _, next := range s.Values {
			if !containsValue(out, next) {
				out = append(out, deepCopy(next))
			}
		}
	}
	doc[s.Field] = out
}

func deepCopy(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, item := range vv {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(vv))
		for _, item := range vv {
			out = append(out, deepCopy(item))
		}
		return out
	default:
		return v
	}
}
