// Package types defines the documents and principals moving through the
// graph store: elements (entities and relationships), the embedded
// connection records carried by relationships, and users with their
// classification-marking grants.
package types

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Well-known element fields.
const (
	FieldInternalID  = "internal_id"
	FieldStandardID  = "standard_id"
	FieldEntityType  = "entity_type"
	FieldParentTypes = "parent_types"
	FieldBaseType    = "base_type"
	FieldConnections = "connections"
	FieldName        = "name"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"

	// Relationship-only fields, reconstructed on read and stripped on
	// write by the projection codec.
	FieldRelationshipType = "relationship_type"
	FieldFrom             = "from"
	FieldFromID           = "fromId"
	FieldFromType         = "fromType"
	FieldFromName         = "fromName"
	FieldFromRole         = "fromRole"
	FieldTo               = "to"
	FieldToID             = "toId"
	FieldToType           = "toType"
	FieldToName           = "toName"
	FieldToRole           = "toRole"
)

// Base types discriminate entities from relationships at the document
// level. A relationship is itself addressable and can be the endpoint
// of another relationship.
const (
	BaseEntity   = "entity"
	BaseRelation = "relation"
)

// Element is a stored graph document. Attributes are schemaless at this
// layer; the schema registry drives their query-matching rules.
type Element map[string]any

func (e Element) InternalID() string { return e.str(FieldInternalID) }

func (e Element) StandardID() string { return e.str(FieldStandardID) }

func (e Element) EntityType() string { return e.str(FieldEntityType) }

func (e Element) BaseType() string { return e.str(FieldBaseType) }

func (e Element) IsRelationship() bool { return e.BaseType() == BaseRelation }

func (e Element) Name() string { return e.str(FieldName) }

// ParentTypes returns the type lineage used for polymorphic matching.
func (e Element) ParentTypes() []string {
	return AsStrings(e[FieldParentTypes])
}

// Connections returns the embedded endpoint records of a relationship.
func (e Element) Connections() []Connection {
	raw, ok := e[FieldConnections].([]any)
	if !ok {
		if typed, ok := e[FieldConnections].([]Connection); ok {
			return typed
		}
		return nil
	}
	conns := make([]Connection, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		conns = append(conns, ConnectionFromMap(m))
	}
	return conns
}

// Copy returns a shallow copy, used before codec rewrites so callers
// keep their input untouched.
func (e Element) Copy() Element {
	out := make(Element, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (e Element) str(key string) string {
	s, _ := e[key].(string)
	return s
}

// Connection is the embedded endpoint record inside a stored
// relationship document. Exactly two exist per relationship, with roles
// suffixed "_from" and "_to".
type Connection struct {
	InternalID string   `json:"internal_id"`
	Name       string   `json:"name"`
	Types      []string `json:"types"`
	Role       string   `json:"role"`
}

func ConnectionFromMap(m map[string]any) Connection {
	return Connection{
		InternalID: str(m["internal_id"]),
		Name:       str(m["name"]),
		Types:      AsStrings(m["types"]),
		Role:       str(m["role"]),
	}
}

func (c Connection) ToMap() map[string]any {
	types := make([]any, 0, len(c.Types))
	for _, t := range c.Types {
		types = append(types, t)
	}
	return map[string]any{
		"internal_id": c.InternalID,
		"name":        c.Name,
		"types":       types,
		"role":        c.Role,
	}
}

// NewInternalID mints an engine-assigned internal identifier.
func NewInternalID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// NewStandardID derives the content-addressed standard identifier for an
// element, stable across edits of non-identifying attributes.
func NewStandardID(entityType string, seed string) string {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte(entityType))
	return entityType + "--" + uuid.NewSHA1(ns, []byte(seed)).String()
}

// AsStrings coerces a decoded JSON value into a string slice.
func AsStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{vv}
	default:
		return nil
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
