package graph

import (
	"github.com/sightline/sightline/internal/errors"
	"github.com/sightline/sightline/pkg/schema"
	"github.com/sightline/sightline/pkg/types"
)

// Roles suffix the relationship type on each side of a connection.
const (
	roleFromSuffix = "_from"
	roleToSuffix   = "_to"
)

// FromRole and ToRole name the two connection roles of a relationship
// type.
func FromRole(relType string) string { return relType + roleFromSuffix }

func ToRole(relType string) string { return relType + roleToSuffix }

// encodeRelationship projects a relationship with resolved endpoints
// into its stored shape: a two-element connections array carrying the
// endpoint ids, names, type lineages and roles. The resolved from/to
// fields are stripped; connections are the only place the endpoint ids
// live in the raw document.
func (s *Store) encodeRelationship(rel types.Element) (types.Element, error) {
	relType := rel.EntityType()
	from := endpointOf(rel[types.FieldFrom])
	to := endpointOf(rel[types.FieldTo])
	fromRole, _ := rel[types.FieldFromRole].(string)
	toRole, _ := rel[types.FieldToRole].(string)

	if from == nil || to == nil {
		return nil, errors.DataIntegrity("relationship endpoint is not resolved", map[string]any{
			"id":   rel.InternalID(),
			"type": relType,
		})
	}
	if fromRole == "" || toRole == "" {
		return nil, errors.DataIntegrity("relationship role is missing", map[string]any{
			"id":   rel.InternalID(),
			"type": relType,
		})
	}

	doc := rel.Copy()
	doc[types.FieldBaseType] = types.BaseRelation
	if _, ok := doc[types.FieldParentTypes]; !ok {
		doc[types.FieldParentTypes] = s.registry.ParentTypes(relType)
	}
	doc[types.FieldConnections] = []any{
		types.Connection{
			InternalID: from.InternalID(),
			Name:       from.Name(),
			Types:      s.lineageOf(from),
			Role:       fromRole,
		}.ToMap(),
		types.Connection{
			InternalID: to.InternalID(),
			Name:       to.Name(),
			Types:      s.lineageOf(to),
			Role:       toRole,
		}.ToMap(),
	}
	for _, field := range []string{
		types.FieldFrom, types.FieldFromID, types.FieldFromType,
		types.FieldFromName, types.FieldFromRole,
		types.FieldTo, types.FieldToID, types.FieldToType,
		types.FieldToName, types.FieldToRole,
		types.FieldRelationshipType,
	} {
		delete(doc, field)
	}
	return doc, nil
}

// decodeHit converts a raw engine document into its consumer shape:
// denormalized reference keys are projected to their external attribute
// names, inference-rule keys are expanded, and relationships are
// rebuilt into the directional from/to shape.
func (s *Store) decodeHit(source map[string]any) (types.Element, error) {
	element := types.Element(source).Copy()

	var inferences []map[string]any
	for key, value := range source {
		if relType, ok := schema.RelTypeOfField(key); ok {
			if ref, ok := s.registry.RelationRefByType(relType); ok {
				ids := types.AsStrings(value)
				if !ref.Multiple {
					if len(ids) > 0 {
						element[ref.Attribute] = ids[0]
					}
				} else {
					element[ref.Attribute] = ids
				}
				delete(element, key)
			}
			continue
		}
		if rule, ok := schema.RuleOfField(key); ok {
			for _, entry := range asMaps(value) {
				inferences = append(inferences, map[string]any{
					"rule":        rule,
					"explanation": entry["explanation"],
					"attributes":  entry["attributes"],
				})
			}
			// The raw key stays verbatim alongside the expansion.
		}
	}
	if len(inferences) > 0 {
		element["rule_inferences"] = inferences
	}

	if element.BaseType() != types.BaseRelation {
		return element, nil
	}
	return s.rebuildRelationship(element)
}

func (s *Store) rebuildRelationship(element types.Element) (types.Element, error) {
	relType := element.EntityType()
	var from, to *types.Connection
	for _, conn := range element.Connections() {
		conn := conn
		switch conn.Role {
		case FromRole(relType):
			from = &conn
		case ToRole(relType):
			to = &conn
		}
	}
	if from == nil || to == nil {
		return nil, errors.DataIntegrity("stored relationship is missing a connection", map[string]any{
			"id":   element.InternalID(),
			"type": relType,
		})
	}

	element[types.FieldFrom] = connectionStub(*from)
	element[types.FieldFromID] = from.InternalID
	element[types.FieldFromType] = specificType(from.Types)
	element[types.FieldFromName] = from.Name
	element[types.FieldFromRole] = from.Role
	element[types.FieldTo] = connectionStub(*to)
	element[types.FieldToID] = to.InternalID
	element[types.FieldToType] = specificType(to.Types)
	element[types.FieldToName] = to.Name
	element[types.FieldToRole] = to.Role
	element[types.FieldRelationshipType] = relType
	delete(element, types.FieldConnections)
	return element, nil
}

func connectionStub(conn types.Connection) types.Element {
	return types.Element{
		types.FieldInternalID:  conn.InternalID,
		types.FieldName:        conn.Name,
		types.FieldEntityType:  specificType(conn.Types),
		types.FieldParentTypes: conn.Types[min(1, len(conn.Types)):],
	}
}

// specificType returns the most specific entry of a type lineage.
func specificType(lineage []string) string {
	if len(lineage) == 0 {
		return ""
	}
	return lineage[0]
}

func (s *Store) lineageOf(element types.Element) []string {
	if parents := element.ParentTypes(); len(parents) > 0 {
		return append([]string{element.EntityType()}, parents...)
	}
	return s.registry.Lineage(element.EntityType())
}

func endpointOf(v any) types.Element {
	switch vv := v.(type) {
	case types.Element:
		return vv
	case map[string]any:
		return types.Element(vv)
	default:
		return nil
	}
}

func asMaps(v any) []map[string]any {
	raw, _ := v.([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
