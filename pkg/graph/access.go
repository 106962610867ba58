package graph

import (
	"github.com/sightline/sightline/pkg/query"
	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/types"
)

// BuildUserFilter produces the must/must-not fragments enforcing
// marking-based read visibility for a user. It is recomputed per call
// because grants and the marking universe are dynamic, and it is
// applied to every read path without exception.
//
// An element is visible iff it carries no marking at all, or no
// forbidden marking in any definition-type group. A user holding the
// bypass capability skips marking checks entirely.
func BuildUserFilter(user *types.User) (must []*query.Query, mustNot []*query.Query) {
	if user == nil || user.HasCapability(types.CapabilityBypass) {
		return nil, nil
	}

	if len(user.AllowedMarkings) == 0 {
		// Only unmarked data is visible.
		return nil, []*query.Query{query.Exists(schema.MarkingRefField)}
	}

	allowed := user.AllowedMarkingIDs()
	noForbidden := query.Bool()
	for _, group := range user.MarkingsByType() {
		var forbidden []string
		for _, marking := range group {
			if !allowed[marking.InternalID] {
				forbidden = append(forbidden, marking.InternalID)
			}
		}
		if len(forbidden) > 0 {
			noForbidden.AppendMustNot(query.TermsStr(schema.MarkingRefField, forbidden))
		}
	}
	if len(noForbidden.MustNot) == 0 {
		// Every existing marking is granted.
		return nil, nil
	}

	notMarked := query.Bool().AppendMustNot(query.Exists(schema.MarkingRefField)).Query()
	visible := query.Bool().
		AppendShould(notMarked, noForbidden.Query()).
		WithMinimumShouldMatch(1).
		Query()
	return []*query.Query{visible}, nil
}

// canView re-applies the visibility invariant to an element fetched
// outside a filtered query (i.e. from the cache).
func canView(user *types.User, element types.Element) bool {
	if user == nil || user.HasCapability(types.CapabilityBypass) {
		return true
	}
	markings := types.AsStrings(element[schema.MarkingRefField])
	if len(markings) == 0 {
		// Decoded elements carry markings under the projected name.
		markings = types.AsStrings(element[schema.MarkingAttribute])
	}
	if len(markings) == 0 {
		return true
	}
	allowed := user.AllowedMarkingIDs()
	universe := make(map[string]bool, len(user.AllMarkings))
	for _, m := range user.AllMarkings {
		universe[m.InternalID] = true
	}
	for _, id := range markings {
		if universe[id] && !allowed[id] {
			return false
		}
	}
	return true
}
