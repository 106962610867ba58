package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineage(t *testing.T) {
	r := NewRegistry()

	require.Equal(t, []string{"Report", TypeDomainObject, TypeCoreObject, TypeBasicObject},
		r.Lineage("Report"))
	require.Equal(t, []string{TypeDomainObject, TypeCoreObject, TypeBasicObject},
		r.ParentTypes("Report"))
	require.Empty(t, r.ParentTypes("Unknown-Type"))
}

func TestIsRelationshipType(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.IsRelationshipType("uses"))
	require.True(t, r.IsRelationshipType("object-marking"))
	require.True(t, r.IsRelationshipType(TypeBasicRelation))
	require.False(t, r.IsRelationshipType("Report"))
	require.False(t, r.IsRelationshipType("unknown"))
}

func TestIsImpactful(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.IsImpactful("uses"))
	require.True(t, r.IsImpactful("targets"))
	for relType := range UnimpactedRelations {
		require.False(t, r.IsImpactful(relType), relType)
	}
}

func TestIsCoreRelationType(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.IsCoreRelationType("uses"))
	// detects is unimpacted but still a core relationship.
	require.True(t, r.IsCoreRelationType("detects"))
	require.True(t, r.IsCoreRelationType(TypeCoreRelation))
	// object maintains a denormalized reference but is a reference
	// relationship.
	require.False(t, r.IsCoreRelationType("object"))
	require.False(t, r.IsCoreRelationType("object-marking"))
	require.False(t, r.IsCoreRelationType("Report"))
}

func TestRegisterTypeExtendsModel(t *testing.T) {
	r := NewRegistry()
	r.RegisterType("exploits", TypeCoreRelation, TypeBasicRelation)

	require.True(t, r.IsRelationshipType("exploits"))
	require.Equal(t, []string{"exploits", TypeCoreRelation, TypeBasicRelation}, r.Lineage("exploits"))
}

func TestAttributeDefaults(t *testing.T) {
	r := NewRegistry()

	require.True(t, r.IsMultiple("aliases"))
	require.False(t, r.IsMultiple("name"))
	require.True(t, r.IsDate("created_at"))
	require.False(t, r.IsDate("description"))

	// Unknown attributes default to single-valued text.
	a := r.Attribute("x_custom")
	require.Equal(t, KindText, a.Kind)
	require.False(t, a.Multiple)
}

func TestReservedKeyInversion(t *testing.T) {
	require.Equal(t, "rel_uses", RelField("uses"))

	relType, ok := RelTypeOfField("rel_uses")
	require.True(t, ok)
	require.Equal(t, "uses", relType)

	_, ok = RelTypeOfField("name")
	require.False(t, ok)

	rule, ok := RuleOfField("i_rule_transitivity")
	require.True(t, ok)
	require.Equal(t, "transitivity", rule)

	_, ok = RuleOfField("rel_uses")
	require.False(t, ok)
}

func TestRelationRefProjections(t *testing.T) {
	r := NewRegistry()

	ref, ok := r.RelationRefByType("object-marking")
	require.True(t, ok)
	require.Equal(t, "object_marking", ref.Attribute)
	require.True(t, ref.Multiple)

	ref, ok = r.RelationRefByType("created-by")
	require.True(t, ok)
	require.False(t, ref.Multiple)

	_, ok = r.RelationRefByType("uses")
	require.False(t, ok)
}
