// Package elastic implements the Engine contract on top of the official
// Elasticsearch client. Queries are rendered to the native JSON DSL,
// script intents to Painless, and responses are navigated with gjson.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sightline/sightline/pkg/logger"
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/storage"
)

type Config struct {
	Addresses []string
	Username  string
	Password  string

	// MaxHTTPRetries bounds transport-level retries on transient HTTP
	// failures.
	MaxHTTPRetries int
}

type Engine struct {
	es     *elasticsearch.Client
	logger logger.Logger
}

var _ storage.Engine = (*Engine)(nil)

func New(cfg Config, log logger.Logger) (*Engine, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxHTTPRetries
	retryClient.Logger = nil

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &retryablehttp.RoundTripper{Client: retryClient},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing search engine client: %w", err)
	}
	return &Engine{es: es, logger: log}, nil
}

func (e *Engine) Health(ctx context.Context) (storage.EngineInfo, error) {
	res, err := e.es.Info(e.es.Info.WithContext(ctx))
	if err != nil {
		return storage.EngineInfo{}, fmt.Errorf("search engine unreachable: %w", err)
	}
	body, err := readBody(res)
	if err != nil {
		return storage.EngineInfo{}, err
	}
	return storage.EngineInfo{
		ClusterName: gjson.GetBytes(body, "cluster_name").String(),
		Version:     gjson.GetBytes(body, "version.number").String(),
		Healthy:     true,
	}, nil
}

func (e *Engine) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := e.es.Indices.Exists([]string{name}, e.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)
	return res.StatusCode == 200, nil
}

func (e *Engine) CreateIndex(ctx context.Context, name string) error {
	res, err := e.es.Indices.Create(name,
		e.es.Indices.Create.WithContext(ctx),
		e.es.Indices.Create.WithBody(strings.NewReader(indexDefinition)),
	)
	if err != nil {
		return err
	}
	_, err = readBody(res)
	return err
}

func (e *Engine) DeleteIndex(ctx context.Context, name string) error {
	res, err := e.es.Indices.Delete([]string{name}, e.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	_, err = readBody(res)
	return err
}

func (e *Engine) Search(ctx context.Context, req storage.SearchRequest) (*storage.SearchResult, error) {
	body := map[string]any{
		"query":            req.Query,
		"track_total_hits": true,
	}
	if req.Size > 0 {
		body["size"] = req.Size
	}
	if len(req.Sort) > 0 {
		body["sort"] = sortBody(req.Sort)
	}
	if len(req.SearchAfter) > 0 {
		body["search_after"] = req.SearchAfter
	}

	buf, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(req.Indices...),
		e.es.Search.WithBody(buf),
	)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(res)
	if err != nil {
		return nil, err
	}

	result := &storage.SearchResult{
		Total: gjson.GetBytes(raw, "hits.total.value").Int(),
	}
	for _, hit := range gjson.GetBytes(raw, "hits.hits").Array() {
		var source map[string]any
		if err := json.Unmarshal([]byte(hit.Get("_source").Raw), &source); err != nil {
			return nil, fmt.Errorf("decoding search hit: %w", err)
		}
		var sortValues []any
		if sortRaw := hit.Get("sort"); sortRaw.Exists() {
			_ = json.Unmarshal([]byte(sortRaw.Raw), &sortValues)
		}
		result.Hits = append(result.Hits, storage.Hit{
			Index:  hit.Get("_index").String(),
			ID:     hit.Get("_id").String(),
			Score:  hit.Get("_score").Float(),
			Source: source,
			Sort:   sortValues,
		})
	}
	return result, nil
}

func (e *Engine) Count(ctx context.Context, indices []string, q *query.Query) (int64, error) {
	buf, err := encodeBody(map[string]any{"query": q})
	if err != nil {
		return 0, err
	}
	res, err := e.es.Count(
		e.es.Count.WithContext(ctx),
		e.es.Count.WithIndex(indices...),
		e.es.Count.WithBody(buf),
	)
	if err != nil {
		return 0, err
	}
	raw, err := readBody(res)
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(raw, "count").Int(), nil
}

func (e *Engine) Aggregate(ctx context.Context, req storage.AggregateRequest) ([]storage.Bucket, error) {
	agg := req.Aggregation
	var aggBody map[string]any
	switch agg.Kind {
	case query.AggDateHistogram:
		aggBody = map[string]any{
			"date_histogram": map[string]any{
				"field":             agg.Field,
				"calendar_interval": agg.Interval,
				"format":            dateFormat(agg.Interval),
			},
		}
	default:
		aggBody = map[string]any{
			"terms": map[string]any{
				"field": agg.Field,
				"size":  agg.Size,
			},
		}
	}

	path := "aggregations.agg.buckets"
	if agg.NestedPath != "" {
		aggBody = map[string]any{
			"nested": map[string]any{"path": agg.NestedPath},
			"aggs":   map[string]any{"inner": aggBody},
		}
		path = "aggregations.agg.inner.buckets"
	}

	buf, err := encodeBody(map[string]any{
		"size":  0,
		"query": req.Query,
		"aggs":  map[string]any{"agg": aggBody},
	})
	if err != nil {
		return nil, err
	}
	res, err := e.es.Search(
		e.es.Search.WithContext(ctx),
		e.es.Search.WithIndex(req.Indices...),
		e.es.Search.WithBody(buf),
	)
	if err != nil {
		return nil, err
	}
	raw, err := readBody(res)
	if err != nil {
		return nil, err
	}

	var buckets []storage.Bucket
	for _, b := range gjson.GetBytes(raw, path).Array() {
		label := b.Get("key_as_string")
		if !label.Exists() {
			label = b.Get("key")
		}
		buckets = append(buckets, storage.Bucket{
			Label: label.String(),
			Value: b.Get("doc_count").Int(),
		})
	}
	return buckets, nil
}

func (e *Engine) Bulk(ctx context.Context, ops []storage.BulkOp) error {
	if len(ops) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, op := range ops {
		switch op.Action {
		case storage.BulkActionIndex:
			if err := enc.Encode(map[string]any{"index": map[string]any{"_index": op.Index, "_id": op.ID}}); err != nil {
				return err
			}
			if err := enc.Encode(op.Doc); err != nil {
				return err
			}
		case storage.BulkActionUpdate:
			meta := map[string]any{"_index": op.Index, "_id": op.ID}
			if op.RetryOnConflict > 0 {
				meta["retry_on_conflict"] = op.RetryOnConflict
			}
			if err := enc.Encode(map[string]any{"update": meta}); err != nil {
				return err
			}
			source, params, err := RenderScript(*op.Script)
			if err != nil {
				return err
			}
			if err := enc.Encode(map[string]any{"script": map[string]any{
				"source": source,
				"params": params,
				"lang":   "painless",
			}}); err != nil {
				return err
			}
		case storage.BulkActionDelete:
			if err := enc.Encode(map[string]any{"delete": map[string]any{"_index": op.Index, "_id": op.ID}}); err != nil {
				return err
			}
		}
	}

	res, err := e.es.Bulk(
		bytes.NewReader(body.Bytes()),
		e.es.Bulk.WithContext(ctx),
		e.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return err
	}
	raw, err := readBody(res)
	if err != nil {
		return err
	}

	if !gjson.GetBytes(raw, "errors").Bool() {
		return nil
	}
	bulkErr := &storage.BulkError{}
	for _, item := range gjson.GetBytes(raw, "items").Array() {
		item.ForEach(func(_, action gjson.Result) bool {
			if errObj := action.Get("error"); errObj.Exists() {
				bulkErr.Items = append(bulkErr.Items, storage.BulkItemError{
					Index:  action.Get("_index").String(),
					ID:     action.Get("_id").String(),
					Reason: errObj.Get("type").String() + ": " + errObj.Get("reason").String(),
				})
			}
			return true
		})
	}
	return bulkErr
}

func (e *Engine) UpdateByQuery(ctx context.Context, indices []string, q *query.Query, script storage.Script) error {
	source, params, err := RenderScript(script)
	if err != nil {
		return err
	}
	buf, err := encodeBody(map[string]any{
		"query": q,
		"script": map[string]any{
			"source": source,
			"params": params,
			"lang":   "painless",
		},
	})
	if err != nil {
		return err
	}
	res, err := e.es.UpdateByQuery(
		indices,
		e.es.UpdateByQuery.WithContext(ctx),
		e.es.UpdateByQuery.WithBody(buf),
		e.es.UpdateByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	raw, err := readBody(res)
	if err != nil {
		return err
	}
	if gjson.GetBytes(raw, "version_conflicts").Int() > 0 {
		return fmt.Errorf("update by query on %v: %w", indices, storage.ErrWriteConflict)
	}
	return nil
}

func sortBody(sorts []query.Sort) []any {
	out := make([]any, 0, len(sorts))
	for _, s := range sorts {
		if s.Field == "_score" {
			out = append(out, "_score")
			continue
		}
		out = append(out, map[string]any{s.Field: map[string]any{"order": s.Order}})
	}
	return out
}

func dateFormat(interval string) string {
	switch interval {
	case "year":
		return "yyyy"
	case "month":
		return "yyyy-MM"
	default:
		return "yyyy-MM-dd"
	}
}

func encodeBody(body map[string]any) (io.Reader, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	return &buf, nil
}

// readBody consumes a response, translating engine error payloads.
// Missing-index failures map to ErrIndexNotFound only when every root
// cause is the missing index; anything else surfaces as-is.
func readBody(res *esapi.Response) ([]byte, error) {
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if !res.IsError() {
		return raw, nil
	}

	rootCauses := gjson.GetBytes(raw, "error.root_cause").Array()
	if len(rootCauses) > 0 {
		allMissing := true
		for _, rc := range rootCauses {
			if rc.Get("type").String() != "index_not_found_exception" {
				allMissing = false
				break
			}
		}
		if allMissing {
			return nil, fmt.Errorf("%s: %w", gjson.GetBytes(raw, "error.reason").String(), storage.ErrIndexNotFound)
		}
	}
	if gjson.GetBytes(raw, "error.type").String() == "version_conflict_engine_exception" {
		return nil, fmt.Errorf("%s: %w", gjson.GetBytes(raw, "error.reason").String(), storage.ErrWriteConflict)
	}
	return nil, fmt.Errorf("engine call failed [%d]: %s", res.StatusCode, string(raw))
}
