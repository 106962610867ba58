package elastic

import (
	"fmt"
	"strings"

	"github.com/sightline/sightline/pkg/storage"
)

// RenderScript maps a script intent to Painless source plus params. It
// is a pure function so the generated syntax can be tested without an
// engine.
func RenderScript(s storage.Script) (string, map[string]any, error) {
	r := &scriptRenderer{params: make(map[string]any)}
	if err := r.render(s); err != nil {
		return "", nil, err
	}
	return strings.Join(r.fragments, " "), r.params, nil
}

type scriptRenderer struct {
	fragments []string
	params    map[string]any
	seq       int
}

func (r *scriptRenderer) bind(value any) string {
	name := fmt.Sprintf("p%d", r.seq)
	r.seq++
	r.params[name] = value
	return "params." + name
}

func (r *scriptRenderer) emit(format string, args ...any) {
	r.fragments = append(r.fragments, fmt.Sprintf(format, args...))
}

func (r *scriptRenderer) render(s storage.Script) error {
	switch s.Kind {
	case storage.ScriptSet:
		if len(s.Values) != 1 {
			return fmt.Errorf("set script on %s requires exactly one value", s.Field)
		}
		r.emit("ctx._source[%s] = %s;", r.bind(s.Field), r.bind(s.Values[0]))

	case storage.ScriptRemove:
		r.emit("ctx._source.remove(%s);", r.bind(s.Field))

	case storage.ScriptAppend:
		f, v := r.bind(s.Field), r.bind(s.Values)
		r.emit("if (ctx._source[%s] == null) { ctx._source[%s] = []; } "+
			"for (item in %s) { if (!ctx._source[%s].contains(item)) { ctx._source[%s].add(item); } }",
			f, f, v, f, f)

	case storage.ScriptRemoveFromArray:
		f, v := r.bind(s.Field), r.bind(s.Values)
		r.emit("if (ctx._source[%s] != null) { ctx._source[%s].removeIf(item -> %s.contains(item)); }",
			f, f, v)

	case storage.ScriptReplaceInArray:
		if len(s.Values) != 1 {
			return fmt.Errorf("replace-in-array script on %s requires exactly one value", s.Field)
		}
		f, prev, next := r.bind(s.Field), r.bind(s.Previous), r.bind(s.Values[0])
		r.emit("if (ctx._source[%s] != null) { "+
			"for (int i = 0; i < ctx._source[%s].size(); i++) { "+
			"if (ctx._source[%s][i] == %s) { ctx._source[%s][i] = %s; } } }",
			f, f, f, prev, f, next)

	case storage.ScriptReplaceConnectionValue:
		f, prev, next := r.bind(s.Field), r.bind(s.Previous), r.bind(s.Values)
		r.emit("if (ctx._source[%s] == null) { ctx._source[%s] = %s; } "+
			"else if (%s != null && ctx._source[%s].contains(%s)) { "+
			"int i = ctx._source[%s].indexOf(%s); ctx._source[%s].remove(i); "+
			"for (item in %s) { if (!ctx._source[%s].contains(item)) { ctx._source[%s].add(i, item); i++; } } } "+
			"else { for (item in %s) { if (!ctx._source[%s].contains(item)) { ctx._source[%s].add(item); } } }",
			f, f, next,
			prev, f, prev,
			f, prev, f,
			next, f, f,
			next, f, f)

	case storage.ScriptPatchConnection:
		id, fields := r.bind(s.ConnectionID), r.bind(s.Fields)
		r.emit("for (conn in ctx._source.connections) { if (conn.internal_id == %s) { "+
			"for (entry in %s.entrySet()) { conn[entry.getKey()] = entry.getValue(); } } }",
			id, fields)

	case storage.ScriptComposite:
		for _, sub := range s.Scripts {
			if err := r.render(sub); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("unsupported script kind %d", s.Kind)
	}
	return nil
}
