package localddb

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/acksell/dynawire/attr"
)

// pathPart is one step of a document path: a map key or a list index.
type pathPart struct {
	name    string
	index   int
	isIndex bool
}

// parseDocPath parses a document path like #n0.#n1[2], resolving name
// placeholders. Raw attribute names are accepted alongside placeholders.
func parseDocPath(s string, names map[string]string) ([]pathPart, *wireError) {
	if s == "" {
		return nil, validationErr("empty document path")
	}
	var parts []pathPart
	rest := s
	for rest != "" {
		switch rest[0] {
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, validationErr("unterminated index in path %q", s)
			}
			idx, err := strconv.Atoi(rest[1:end])
			if err != nil || idx < 0 {
				return nil, validationErr("bad list index in path %q", s)
			}
			if len(parts) == 0 {
				return nil, validationErr("path %q must start with an attribute name", s)
			}
			parts = append(parts, pathPart{index: idx, isIndex: true})
			rest = rest[end+1:]

		case '.':
			if len(parts) == 0 || len(rest) == 1 || rest[1] == '.' || rest[1] == '[' {
				return nil, validationErr("malformed document path %q", s)
			}
			rest = rest[1:]

		default:
			end := strings.IndexAny(rest, ".[")
			tok := rest
			if end >= 0 {
				tok = rest[:end]
				rest = rest[end:]
			} else {
				rest = ""
			}
			name := tok
			if strings.HasPrefix(tok, "#") {
				resolved, ok := names[tok]
				if !ok {
					return nil, validationErr("expression attribute name %s is undefined", tok)
				}
				name = resolved
			}
			if name == "" {
				return nil, validationErr("malformed document path %q", s)
			}
			parts = append(parts, pathPart{name: name})
		}
	}
	return parts, nil
}

func resolveValue(tok string, values map[string]attr.Value) (attr.Value, *wireError) {
	if !strings.HasPrefix(tok, ":") {
		return attr.Value{}, validationErr("expected an expression attribute value, got %q", tok)
	}
	v, ok := values[tok]
	if !ok {
		return attr.Value{}, validationErr("expression attribute value %s is undefined", tok)
	}
	return v, nil
}

func lookupPath(item attr.Item, path []pathPart) (attr.Value, bool) {
	if len(path) == 0 || path[0].isIndex {
		return attr.Value{}, false
	}
	v, ok := item[path[0].name]
	if !ok {
		return attr.Value{}, false
	}
	for _, p := range path[1:] {
		if p.isIndex {
			l, isList := v.AsList()
			if !isList || p.index >= len(l) {
				return attr.Value{}, false
			}
			v = l[p.index]
			continue
		}
		m, isMap := v.AsMap()
		if !isMap {
			return attr.Value{}, false
		}
		v, ok = m[p.name]
		if !ok {
			return attr.Value{}, false
		}
	}
	return v, true
}

// applySet writes nv at path, rebuilding the containers along the way. The
// parents of a nested path must already exist.
func applySet(item attr.Item, path []pathPart, nv attr.Value) *wireError {
	root := path[0]
	if len(path) == 1 {
		item[root.name] = nv
		return nil
	}
	cur, ok := item[root.name]
	if !ok {
		return validationErr("document path refers to a missing attribute %s", root.name)
	}
	updated, werr := setWithin(cur, path[1:], nv)
	if werr != nil {
		return werr
	}
	item[root.name] = updated
	return nil
}

func setWithin(v attr.Value, rest []pathPart, nv attr.Value) (attr.Value, *wireError) {
	p := rest[0]
	if p.isIndex {
		l, ok := v.AsList()
		if !ok {
			return attr.Value{}, validationErr("document path indexes a non-list value")
		}
		if len(rest) == 1 {
			// Out-of-range assignments append, as DynamoDB does.
			if p.index >= len(l) {
				return attr.List(append(slices.Clone(l), nv)...), nil
			}
			l2 := slices.Clone(l)
			l2[p.index] = nv
			return attr.List(l2...), nil
		}
		if p.index >= len(l) {
			return attr.Value{}, validationErr("document path index %d is out of range", p.index)
		}
		inner, werr := setWithin(l[p.index], rest[1:], nv)
		if werr != nil {
			return attr.Value{}, werr
		}
		l2 := slices.Clone(l)
		l2[p.index] = inner
		return attr.List(l2...), nil
	}

	m, ok := v.AsMap()
	if !ok {
		return attr.Value{}, validationErr("document path descends into a non-map value")
	}
	m2 := maps.Clone(m)
	if m2 == nil {
		m2 = map[string]attr.Value{}
	}
	if len(rest) == 1 {
		m2[p.name] = nv
		return attr.Map(m2), nil
	}
	inner, ok := m2[p.name]
	if !ok {
		return attr.Value{}, validationErr("document path refers to a missing attribute %s", p.name)
	}
	updated, werr := setWithin(inner, rest[1:], nv)
	if werr != nil {
		return attr.Value{}, werr
	}
	m2[p.name] = updated
	return attr.Map(m2), nil
}

// applyRemove deletes the value at path. Missing paths are left alone.
func applyRemove(item attr.Item, path []pathPart) {
	root := path[0]
	if len(path) == 1 {
		delete(item, root.name)
		return
	}
	cur, ok := item[root.name]
	if !ok {
		return
	}
	item[root.name] = removeWithin(cur, path[1:])
}

func removeWithin(v attr.Value, rest []pathPart) attr.Value {
	p := rest[0]
	if p.isIndex {
		l, ok := v.AsList()
		if !ok || p.index >= len(l) {
			return v
		}
		if len(rest) == 1 {
			l2 := slices.Clone(l)
			return attr.List(slices.Delete(l2, p.index, p.index+1)...)
		}
		l2 := slices.Clone(l)
		l2[p.index] = removeWithin(l2[p.index], rest[1:])
		return attr.List(l2...)
	}

	m, ok := v.AsMap()
	if !ok {
		return v
	}
	if _, exists := m[p.name]; !exists {
		return v
	}
	m2 := maps.Clone(m)
	if len(rest) == 1 {
		delete(m2, p.name)
		return attr.Map(m2)
	}
	m2[p.name] = removeWithin(m2[p.name], rest[1:])
	return attr.Map(m2)
}

// evalCondition evaluates the condition subset the server supports:
// attribute_exists, attribute_not_exists, = and <> comparisons, and AND
// combinations thereof. Anything else is a loud ValidationException rather
// than a silently wrong answer.
func evalCondition(expr string, item attr.Item, names map[string]string, values map[string]attr.Value) (bool, *wireError) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, validationErr("empty condition expression")
	}
	for wrapped(expr) {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	if l, r, ok := splitTopLevel(expr, " AND "); ok {
		lv, werr := evalCondition(l, item, names, values)
		if werr != nil {
			return false, werr
		}
		rv, werr := evalCondition(r, item, names, values)
		if werr != nil {
			return false, werr
		}
		return lv && rv, nil
	}
	if _, _, ok := splitTopLevel(expr, " OR "); ok {
		return false, validationErr("OR conditions are not supported")
	}
	if strings.HasPrefix(expr, "NOT ") {
		return false, validationErr("NOT conditions are not supported")
	}

	if inner, ok := cutCall(expr, "attribute_exists"); ok {
		path, werr := parseDocPath(inner, names)
		if werr != nil {
			return false, werr
		}
		_, found := lookupPath(item, path)
		return found, nil
	}
	if inner, ok := cutCall(expr, "attribute_not_exists"); ok {
		path, werr := parseDocPath(inner, names)
		if werr != nil {
			return false, werr
		}
		_, found := lookupPath(item, path)
		return !found, nil
	}

	if lhs, rhs, ok := strings.Cut(expr, " <> "); ok {
		return evalCompare(lhs, rhs, false, item, names, values)
	}
	if lhs, rhs, ok := strings.Cut(expr, " = "); ok {
		return evalCompare(lhs, rhs, true, item, names, values)
	}
	return false, validationErr("unsupported condition expression %q", expr)
}

// evalCompare evaluates path = :v or path <> :v. A missing attribute fails
// both comparisons, matching DynamoDB.
func evalCompare(lhs, rhs string, wantEqual bool, item attr.Item, names map[string]string, values map[string]attr.Value) (bool, *wireError) {
	path, werr := parseDocPath(lhs, names)
	if werr != nil {
		return false, werr
	}
	v, werr := resolveValue(rhs, values)
	if werr != nil {
		return false, werr
	}
	cur, ok := lookupPath(item, path)
	if !ok {
		return false, nil
	}
	return cur.Equal(v) == wantEqual, nil
}

// wrapped reports whether s is entirely enclosed by one pair of parens.
func wrapped(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i == len(s)-1
			}
		}
	}
	return false
}

// splitTopLevel splits s at the first occurrence of sep outside parens.
func splitTopLevel(s, sep string) (string, string, bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(s[i:], sep) {
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}

// cutCall extracts the argument of fn(...) when expr is exactly that call.
func cutCall(expr, fn string) (string, bool) {
	inner, ok := strings.CutPrefix(expr, fn+"(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return "", false
	}
	return inner[:len(inner)-1], true
}

// applyProjection cuts an item down to the projected paths. Paths that are
// absent from the item are skipped.
func applyProjection(item attr.Item, expr string, names map[string]string) (attr.Item, *wireError) {
	out := attr.Item{}
	for _, entry := range strings.Split(expr, ",") {
		path, werr := parseDocPath(strings.TrimSpace(entry), names)
		if werr != nil {
			return nil, werr
		}
		v, ok := lookupPath(item, path)
		if !ok {
			continue
		}
		if len(path) == 1 {
			out[path[0].name] = v
			continue
		}
		out[path[0].name] = mergeProjected(out[path[0].name], path[1:], v)
	}
	return out, nil
}

// mergeProjected rebuilds the nested shape of a projected path, merging
// with whatever earlier paths already placed under the same root. Projected
// list elements are compacted in path order.
func mergeProjected(existing attr.Value, rest []pathPart, v attr.Value) attr.Value {
	p := rest[0]
	if p.isIndex {
		l, _ := existing.AsList()
		if len(rest) == 1 {
			return attr.List(append(slices.Clone(l), v)...)
		}
		return attr.List(append(slices.Clone(l), mergeProjected(attr.Value{}, rest[1:], v))...)
	}
	m, ok := existing.AsMap()
	var m2 map[string]attr.Value
	if ok {
		m2 = maps.Clone(m)
	} else {
		m2 = map[string]attr.Value{}
	}
	if len(rest) == 1 {
		m2[p.name] = v
	} else {
		m2[p.name] = mergeProjected(m2[p.name], rest[1:], v)
	}
	return attr.Map(m2)
}
