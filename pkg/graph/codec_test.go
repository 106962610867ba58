package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/types"
)

func TestEncodeRelationship(t *testing.T) {
	s, _ := newTestStore(t)
	from := entity("Malware", "mal-1", "Emotet", nil)
	to := entity("Identity", "org-1", "Acme", nil)
	rel := relationship("uses", "rel-1", from, to)

	doc, err := s.encodeRelationship(rel)
	require.NoError(t, err)

	require.Equal(t, types.BaseRelation, doc.BaseType())
	require.Equal(t, []string{"core-relationship", "basic-relationship"}, doc.ParentTypes())

	conns := doc.Connections()
	require.Len(t, conns, 2)
	require.Equal(t, "mal-1", conns[0].InternalID)
	require.Equal(t, "uses_from", conns[0].Role)
	require.Equal(t, []string{"Malware", "Domain-Object", "Core-Object", "Basic-Object"}, conns[0].Types)
	require.Equal(t, "org-1", conns[1].InternalID)
	require.Equal(t, "uses_to", conns[1].Role)

	// The directional fields never reach storage.
	for _, field := range []string{types.FieldFrom, types.FieldTo, types.FieldFromRole, types.FieldToRole} {
		require.NotContains(t, doc, field)
	}
	// The input element is left untouched.
	require.Contains(t, rel, types.FieldFrom)
}

func TestEncodeRelationshipUnresolvedEndpoint(t *testing.T) {
	s, _ := newTestStore(t)
	rel := relationship("uses", "rel-1", entity("Malware", "mal-1", "Emotet", nil), nil)

	_, err := s.encodeRelationship(rel)
	require.ErrorIs(t, err, errors.ErrDataIntegrity)
}

func TestEncodeRelationshipMissingRole(t *testing.T) {
	s, _ := newTestStore(t)
	rel := relationship("uses", "rel-1",
		entity("Malware", "mal-1", "Emotet", nil),
		entity("Identity", "org-1", "Acme", nil))
	delete(rel, types.FieldToRole)

	_, err := s.encodeRelationship(rel)
	require.ErrorIs(t, err, errors.ErrDataIntegrity)
}

func TestDecodeRebuildsRelationship(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	from := entity("Malware", "mal-1", "Emotet", nil)
	to := entity("Identity", "org-1", "Acme", nil)
	require.NoError(t, s.BulkIndex(ctx, []types.Element{from, to,
		relationship("uses", "rel-1", from, to)}))

	page, err := s.Paginate(ctx, bypassUser, []string{IndexRelationships},
		FilterSpec{Types: []string{"uses"}}, PaginateOptions{})
	require.NoError(t, err)
	require.Len(t, page.Elements, 1)

	rel := page.Elements[0]
	require.Equal(t, "uses", rel[types.FieldRelationshipType])
	require.Equal(t, "mal-1", rel[types.FieldFromID])
	require.Equal(t, "Malware", rel[types.FieldFromType])
	require.Equal(t, "Emotet", rel[types.FieldFromName])
	require.Equal(t, "uses_from", rel[types.FieldFromRole])
	require.Equal(t, "org-1", rel[types.FieldToID])
	require.Equal(t, "Identity", rel[types.FieldToType])
	require.NotContains(t, rel, types.FieldConnections)

	stub, ok := rel[types.FieldFrom].(types.Element)
	require.True(t, ok)
	require.Equal(t, "mal-1", stub.InternalID())
	require.Equal(t, "Malware", stub.EntityType())
}

func TestDecodeRelationshipMissingConnection(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.decodeHit(map[string]any{
		types.FieldInternalID: "rel-1",
		types.FieldEntityType: "uses",
		types.FieldBaseType:   types.BaseRelation,
		types.FieldConnections: []any{
			map[string]any{"internal_id": "mal-1", "role": "uses_from", "types": []any{"Malware"}},
		},
	})
	require.ErrorIs(t, err, errors.ErrDataIntegrity)
}

func TestDecodeProjectsReferenceFields(t *testing.T) {
	s, _ := newTestStore(t)
	element, err := s.decodeHit(map[string]any{
		types.FieldInternalID:      "report-1",
		types.FieldEntityType:      "Report",
		"rel_object-marking":       []any{"marking--a", "marking--b"},
		"rel_created-by":           []any{"identity--author"},
		"rel_uses":                 []any{"mal-1"},
		"rel_unknown-ref-relation": []any{"x"},
	})
	require.NoError(t, err)

	require.Equal(t, []string{"marking--a", "marking--b"}, element["object_marking"])
	require.NotContains(t, element, "rel_object-marking")

	// created-by is single-valued: the projection unwraps the list.
	require.Equal(t, "identity--author", element["created_by"])
	require.NotContains(t, element, "rel_created-by")

	// Reference keys without a registered projection stay raw.
	require.Contains(t, element, "rel_uses")
	require.Contains(t, element, "rel_unknown-ref-relation")
}

func TestDecodeExpandsInferenceRules(t *testing.T) {
	s, _ := newTestStore(t)
	element, err := s.decodeHit(map[string]any{
		types.FieldInternalID: "rel-1",
		types.FieldEntityType: "Report",
		"i_rule_transitivity": []any{
			map[string]any{
				"explanation": []any{"a", "b"},
				"attributes":  map[string]any{"confidence": float64(80)},
			},
		},
	})
	require.NoError(t, err)

	inferences, ok := element["rule_inferences"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, inferences, 1)
	require.Equal(t, "transitivity", inferences[0]["rule"])
	require.Equal(t, []any{"a", "b"}, inferences[0]["explanation"])
	// The bookkeeping key survives alongside the expansion.
	require.Contains(t, element, "i_rule_transitivity")
}
