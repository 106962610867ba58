// Package schema holds the static model registry: type lineage for
// polymorphic matching, attribute definitions driving query-matching
// and projection rules, relation-reference definitions for denormalized
// fields, and the closed unimpacted-role table. The registry is built
// once at startup and read concurrently afterwards.
package schema

import "strings"

// Abstract types forming the lineage roots.
const (
	TypeBasicObject      = "Basic-Object"
	TypeCoreObject       = "Core-Object"
	TypeDomainObject     = "Domain-Object"
	TypeMetaObject       = "Meta-Object"
	TypeBasicRelation    = "basic-relationship"
	TypeCoreRelation     = "core-relationship"
	TypeRefRelation      = "ref-relationship"
	TypeMarkingDef       = "Marking-Definition"
	TypeInferenceRuleDoc = "Inference-Rule"
)

// Reserved storage-key prefixes.
const (
	// RelPrefix marks denormalized reference fields (rel_<relation type>).
	RelPrefix = "rel_"
	// RulePrefix marks inference-rule bookkeeping fields.
	RulePrefix = "i_rule_"
)

// Relation types whose roles are unimpacted: their targets are not
// reference-denormalized onto the source entity. Closed policy table,
// not configurable.
var UnimpactedRelations = map[string]bool{
	"object-marking":   true,
	"object-label":     true,
	"kill-chain-phase": true,
	"created-by":       true,
	"detects":          true,
}

// MarkingRefField is the denormalized field carrying an element's
// classification markings; the access filter matches against it.
// MarkingAttribute is its projected name on decoded elements.
var (
	MarkingRefField  = RelField("object-marking")
	MarkingAttribute = "object_marking"
)

// AttributeKind determines an attribute's query-matching rules.
type AttributeKind int

const (
	KindText AttributeKind = iota
	KindDate
	KindNumeric
	KindBoolean
)

type Attribute struct {
	Name     string
	Kind     AttributeKind
	Multiple bool
}

// RelationRef describes a relation type whose target ids are also
// exposed as a named attribute on read (projected back from the
// rel_<type> storage key).
type RelationRef struct {
	Relation  string
	Attribute string
	Multiple  bool
}

// Registry is the process-wide model table.
type Registry struct {
	parents    map[string][]string
	attributes map[string]Attribute
	refs       map[string]RelationRef
}

// NewRegistry builds the registry with the built-in model. Additional
// types may be registered before the store starts serving.
func NewRegistry() *Registry {
	r := &Registry{
		parents:    make(map[string][]string),
		attributes: make(map[string]Attribute),
		refs:       make(map[string]RelationRef),
	}

	entityLineage := []string{TypeDomainObject, TypeCoreObject, TypeBasicObject}
	for _, t := range []string{
		"Report", "Indicator", "Malware", "Intrusion-Set", "Campaign",
		"Threat-Actor", "Identity", "Attack-Pattern", "Vulnerability",
		"Tool", "Incident", "Observed-Data", "Note", "Opinion",
	} {
		r.RegisterType(t, entityLineage...)
	}
	r.RegisterType(TypeMarkingDef, TypeMetaObject, TypeBasicObject)
	r.RegisterType("Label", TypeMetaObject, TypeBasicObject)
	r.RegisterType("Kill-Chain-Phase", TypeMetaObject, TypeBasicObject)

	coreRelLineage := []string{TypeCoreRelation, TypeBasicRelation}
	for _, t := range []string{
		"uses", "targets", "indicates", "attributed-to", "mitigates",
		"located-at", "related-to", "derived-from", "part-of", "detects",
	} {
		r.RegisterType(t, coreRelLineage...)
	}
	refRelLineage := []string{TypeRefRelation, TypeBasicRelation}
	for _, t := range []string{
		"object-marking", "object-label", "kill-chain-phase",
		"created-by", "object",
	} {
		r.RegisterType(t, refRelLineage...)
	}

	for _, a := range []Attribute{
		{Name: "created_at", Kind: KindDate},
		{Name: "updated_at", Kind: KindDate},
		{Name: "first_seen", Kind: KindDate},
		{Name: "last_seen", Kind: KindDate},
		{Name: "start_time", Kind: KindDate},
		{Name: "stop_time", Kind: KindDate},
		{Name: "published", Kind: KindDate},
		{Name: "valid_from", Kind: KindDate},
		{Name: "valid_until", Kind: KindDate},
		{Name: "confidence", Kind: KindNumeric},
		{Name: "x_severity", Kind: KindNumeric},
		{Name: "revoked", Kind: KindBoolean},
		{Name: "is_inferred", Kind: KindBoolean},
		{Name: "name", Kind: KindText},
		{Name: "description", Kind: KindText},
		{Name: "aliases", Kind: KindText, Multiple: true},
		{Name: "labels", Kind: KindText, Multiple: true},
		{Name: "pattern", Kind: KindText},
	} {
		r.attributes[a.Name] = a
	}

	for _, ref := range []RelationRef{
		{Relation: "created-by", Attribute: "created_by", Multiple: false},
		{Relation: "object-marking", Attribute: "object_marking", Multiple: true},
		{Relation: "object-label", Attribute: "object_label", Multiple: true},
		{Relation: "kill-chain-phase", Attribute: "kill_chain_phases", Multiple: true},
		{Relation: "object", Attribute: "objects", Multiple: true},
	} {
		r.refs[ref.Relation] = ref
	}

	return r
}

// RegisterType records a type and its lineage, most specific first.
func (r *Registry) RegisterType(name string, parents ...string) {
	r.parents[name] = parents
}

// ParentTypes returns the lineage of a type, excluding the type itself.
func (r *Registry) ParentTypes(name string) []string {
	return r.parents[name]
}

// Lineage returns the type followed by its parents.
func (r *Registry) Lineage(name string) []string {
	return append([]string{name}, r.parents[name]...)
}

// IsRelationshipType reports whether the type descends from the
// relationship abstraction.
func (r *Registry) IsRelationshipType(name string) bool {
	if name == TypeBasicRelation {
		return true
	}
	for _, p := range r.parents[name] {
		if p == TypeBasicRelation {
			return true
		}
	}
	return false
}

// IsImpactful reports whether writing a relationship of this type must
// maintain a denormalized reference on its source entity.
func (r *Registry) IsImpactful(relType string) bool {
	return !UnimpactedRelations[relType]
}

// IsCoreRelationType reports whether the type descends from the core
// (real typed) relationship abstraction, as opposed to a reference
// relationship. Orthogonal to IsImpactful: a core relationship may
// still be unimpacted.
func (r *Registry) IsCoreRelationType(name string) bool {
	if name == TypeCoreRelation {
		return true
	}
	for _, p := range r.parents[name] {
		if p == TypeCoreRelation {
			return true
		}
	}
	return false
}

// Attribute returns the definition for a name; unknown attributes
// default to single-valued text.
func (r *Registry) Attribute(name string) Attribute {
	if a, ok := r.attributes[name]; ok {
		return a
	}
	return Attribute{Name: name, Kind: KindText}
}

func (r *Registry) IsMultiple(name string) bool {
	return r.Attribute(name).Multiple
}

func (r *Registry) IsDate(name string) bool {
	return r.Attribute(name).Kind == KindDate
}

// RelationRefByType returns the read-side attribute projection for a
// relation type, if one is defined.
func (r *Registry) RelationRefByType(relType string) (RelationRef, bool) {
	ref, ok := r.refs[relType]
	return ref, ok
}

// RelField returns the denormalized storage key for a relation type.
func RelField(relType string) string {
	return RelPrefix + relType
}

// RelTypeOfField inverts RelField; ok is false for non-reserved keys.
func RelTypeOfField(field string) (string, bool) {
	if !strings.HasPrefix(field, RelPrefix) {
		return "", false
	}
	return strings.TrimPrefix(field, RelPrefix), true
}

// RuleOfField extracts the rule name from an inference bookkeeping key.
func RuleOfField(field string) (string, bool) {
	if !strings.HasPrefix(field, RulePrefix) {
		return "", false
	}
	return strings.TrimPrefix(field, RulePrefix), true
}
