package models

// Payload is the loosely-typed field set of an entity or mutation. Business
// rule validation happens in the UI layer; the sync core only moves payloads
// around and rewrites identifier references inside them.
type Payload map[string]any

// Clone returns a deep copy of the payload. Nested maps and slices are
// copied recursively; scalar values are shared (they are immutable).
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// RewriteRefs replaces every string value equal to oldID with newID,
// descending into nested maps and slices. It returns true if at least one
// replacement was made.
func (p Payload) RewriteRefs(oldID, newID string) bool {
	return rewriteValue(map[string]any(p), oldID, newID)
}

// References reports whether any string value in the payload equals id.
func (p Payload) References(id string) bool {
	return referencesValue(map[string]any(p), id)
}

// HasTempRef reports whether the payload references a temporary id other
// than ownID. Such a mutation depends on a create that has not been
// confirmed by the server yet.
func (p Payload) HasTempRef(ownID string) bool {
	found := false
	walkStrings(map[string]any(p), func(s string) {
		if IsTempID(s) && s != ownID {
			found = true
		}
	})
	return found
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Payload:
		return map[string]any(t.Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func rewriteValue(v any, oldID, newID string) bool {
	changed := false
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			if s, ok := e.(string); ok && s == oldID {
				t[k] = newID
				changed = true
				continue
			}
			if rewriteValue(e, oldID, newID) {
				changed = true
			}
		}
	case []any:
		for i, e := range t {
			if s, ok := e.(string); ok && s == oldID {
				t[i] = newID
				changed = true
				continue
			}
			if rewriteValue(e, oldID, newID) {
				changed = true
			}
		}
	}
	return changed
}

func referencesValue(v any, id string) bool {
	switch t := v.(type) {
	case string:
		return t == id
	case map[string]any:
		for _, e := range t {
			if referencesValue(e, id) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if referencesValue(e, id) {
				return true
			}
		}
	}
	return false
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case map[string]any:
		for _, e := range t {
			walkStrings(e, fn)
		}
	case []any:
		for _, e := range t {
			walkStrings(e, fn)
		}
	}
}
