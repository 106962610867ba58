package storage

// ScriptKind enumerates the field-level transformation intents applied
// by scripted partial updates. Backends render each intent in their
// native script syntax and apply it atomically per document.
type ScriptKind int

const (
	// ScriptSet assigns Field to the single value in Values.
	ScriptSet ScriptKind = iota

	// ScriptRemove deletes Field from the document.
	ScriptRemove

	// ScriptAppend creates Field as an empty list when absent, then
	// appends Values. Existing entries are never overwritten.
	ScriptAppend

	// ScriptRemoveFromArray removes every element of Field equal to one
	// of Values, leaving unrelated entries untouched.
	ScriptRemoveFromArray

	// ScriptReplaceInArray replaces every element of Field equal to
	// Previous with the single value in Values.
	ScriptReplaceInArray

	// ScriptReplaceConnectionValue creates Field when absent, appends
	// Values when Previous is not present, and otherwise substitutes
	// Previous with Values in place, preserving other entries.
	ScriptReplaceConnectionValue

	// ScriptPatchConnection locates the connection sub-record with id
	// ConnectionID inside the nested connections array and applies
	// Fields as a field-by-field patch.
	ScriptPatchConnection

	// ScriptComposite applies Scripts in order as one atomic update.
	ScriptComposite
)

// Script is a backend-agnostic update intent.
type Script struct {
	Kind         ScriptKind
	Field        string
	Values       []any
	Previous     any
	ConnectionID string
	Fields       map[string]any
	Scripts      []Script
}

func SetField(field string, value any) Script {
	return Script{Kind: ScriptSet, Field: field, Values: []any{value}}
}

func RemoveField(field string) Script {
	return Script{Kind: ScriptRemove, Field: field}
}

func AppendToArray(field string, values ...any) Script {
	return Script{Kind: ScriptAppend, Field: field, Values: values}
}

func RemoveFromArray(field string, values ...any) Script {
	return Script{Kind: ScriptRemoveFromArray, Field: field, Values: values}
}

func ReplaceInArray(field string, previous, next any) Script {
	return Script{Kind: ScriptReplaceInArray, Field: field, Previous: previous, Values: []any{next}}
}

func ReplaceConnectionValue(field string, previous any, next ...any) Script {
	return Script{Kind: ScriptReplaceConnectionValue, Field: field, Previous: previous, Values: next}
}

func PatchConnection(connectionID string, fields map[string]any) Script {
	return Script{Kind: ScriptPatchConnection, ConnectionID: connectionID, Fields: fields}
}

func Composite(scripts ...Script) Script {
	return Script{Kind: ScriptComposite, Scripts: scripts}
}
