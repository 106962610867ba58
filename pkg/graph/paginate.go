package graph

import (
	"context"
	stderrors "errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/storage"
	"github.com/sightline/sightline/pkg/types"
)

// PaginateOptions controls one paged read. First defaults to the
// configured page size; After is an opaque cursor from a previous page.
type PaginateOptions struct {
	First     int
	After     string
	OrderBy   string
	OrderMode string // "asc" or "desc", default asc
}

// Page is one bounded result window. EndCursor resumes past the last
// element when fed back as After.
type Page struct {
	Elements  []types.Element
	EndCursor string
	Total     int64
}

// Paginate executes one filtered, access-controlled, ordered page
// query. Ordering is deterministic: free-text searches sort by
// relevance, everything else by standard identifier ascending, unless
// OrderBy restricts and sorts by an explicit field.
func (s *Store) Paginate(ctx context.Context, user *types.User, indices []string, spec FilterSpec, opts PaginateOptions) (*Page, error) {
	first := opts.First
	if first <= 0 {
		first = s.conf.DefaultPageSize
	}
	if first > s.conf.MaxPageSize {
		return nil, errors.Functionalf("page size %d exceeds the maximum of %d", first, s.conf.MaxPageSize)
	}

	q, err := s.buildQuery(user, spec)
	if err != nil {
		return nil, err
	}

	var sorts []query.Sort
	switch {
	case opts.OrderBy != "":
		mode := opts.OrderMode
		if mode != "desc" {
			mode = "asc"
		}
		// Restrict to documents where the ordering field exists so the
		// sort is total.
		q.BoolQ.AppendMust(query.Exists(opts.OrderBy))
		sorts = append(sorts, query.Sort{Field: opts.OrderBy, Order: mode})
	case spec.Search != "":
		sorts = append(sorts, query.SortByScore)
	}
	sorts = append(sorts, query.Sort{Field: types.FieldStandardID, Order: "asc"})

	var searchAfter []any
	if opts.After != "" {
		searchAfter, err = s.cursors.Deserialize(opts.After)
		if err != nil {
			return nil, errors.Functional("invalid pagination cursor", storage.ErrInvalidCursor)
		}
	}

	searchesTotal.WithLabelValues("paginate").Inc()
	result, err := s.engine.Search(ctx, storage.SearchRequest{
		Indices:     indices,
		Query:       q,
		Size:        first,
		Sort:        sorts,
		SearchAfter: searchAfter,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrIndexNotFound) {
			// Mappings are created lazily on first write; an absent
			// index is an expected transient state.
			return &Page{}, nil
		}
		s.logger.Error("paginate query failed",
			zap.Strings("indices", indices),
			zap.Error(err))
		return nil, errors.Database("paginate query failed", err, map[string]any{"indices": indices})
	}

	page := &Page{Total: result.Total}
	for _, hit := range result.Hits {
		element, err := s.decodeHit(hit.Source)
		if err != nil {
			return nil, err
		}
		page.Elements = append(page.Elements, element)
	}
	if n := len(result.Hits); n > 0 {
		cursor, err := s.cursors.Serialize(result.Hits[n-1].Sort)
		if err != nil {
			return nil, errors.Database("encoding pagination cursor", err, nil)
		}
		page.EndCursor = cursor
	}
	return page, nil
}

// ListOptions extends pagination with a per-batch callback. Returning
// false from the callback stops iteration early; this is the only
// cancellation primitive at this layer. Without a callback, every
// result accumulates in memory.
type ListOptions struct {
	PaginateOptions
	Callback func(batch []types.Element) bool
}

// List streams every element matching the specification, advancing the
// cursor from the last result of each page until a short page is
// returned.
func (s *Store) List(ctx context.Context, user *types.User, indices []string, spec FilterSpec, opts ListOptions) ([]types.Element, error) {
	first := opts.First
	if first <= 0 {
		first = s.conf.DefaultPageSize
	}

	var accumulated []types.Element
	after := opts.After
	for {
		page, err := s.Paginate(ctx, user, indices, spec, PaginateOptions{
			First:     first,
			After:     after,
			OrderBy:   opts.OrderBy,
			OrderMode: opts.OrderMode,
		})
		if err != nil {
			return nil, err
		}
		if len(page.Elements) == 0 {
			break
		}
		if opts.Callback != nil {
			if !opts.Callback(page.Elements) {
				break
			}
		} else {
			accumulated = append(accumulated, page.Elements...)
		}
		if len(page.Elements) < first {
			break
		}
		after = page.EndCursor
	}
	return accumulated, nil
}

// Free-text search processing.

var (
	phrasePattern = regexp.MustCompile(`"([^"]+)"`)
	schemePattern = regexp.MustCompile(`^(https?|ftp):$`)
)

// engine special characters escaped before tokenization.
const specialChars = `+-=&|><!(){}[]^~*?:\/`

// buildSearchQuery turns a raw search string into the engine free-text
// query: quoted segments become exact phrases, the remainder is
// escaped, tokenized on whitespace and slashes, wildcarded per token,
// and bare URL-scheme prefixes are dropped so URL searches match their
// remainder.
func buildSearchQuery(raw string) *query.Query {
	var parts []string

	rest := phrasePattern.ReplaceAllStringFunc(raw, func(match string) string {
		phrase := strings.Trim(match, `"`)
		parts = append(parts, `"`+escapeSearch(phrase)+`"`)
		return " "
	})

	for _, token := range tokenizeSearch(rest) {
		// Tokenizing on slashes reduces a URL scheme to a bare
		// "https:" token; drop it so URL searches match the remainder.
		if schemePattern.MatchString(token) {
			continue
		}
		parts = append(parts, "*"+escapeSearch(token)+"*")
	}

	if len(parts) == 0 {
		return query.MatchAll()
	}
	return query.QueryString(strings.Join(parts, " "))
}

func tokenizeSearch(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '/'
	})
}

func escapeSearch(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
