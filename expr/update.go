package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/acksell/dynawire/attr"
)

// Update is an update expression. The zero Update performs no actions and
// encodes to the empty string. Updates built from Path methods merge with
// And; a later action on the same path replaces the earlier one.
//
// The rendered expression lists each clause at most once, in the order
// SET, REMOVE, ADD, DELETE, with entries comma-joined.
type Update struct {
	sets    []setEntry
	removes []removeEntry
	adds    []opEntry
	deletes []opEntry
	err     error
}

type setEntry struct {
	key    string
	path   Path
	action setAction
}

type removeEntry struct {
	key  string
	path Path
}

type opEntry struct {
	key   string
	path  Path
	value any
}

type setAction interface {
	encode(p *Parameters, path Path) (string, error)
}

// Set assigns a value to the field. Setting an empty string or empty
// binary removes the field instead, since DynamoDB cannot store them.
func (f Path) Set(value any) Update {
	if isEmptyScalar(value) {
		return f.Remove()
	}
	return Update{sets: []setEntry{{key: f.key(), path: f, action: valueAction{value: value}}}}
}

// SetIfNotExists assigns a value only when the field is absent from the
// item. With an empty string or binary this is a no-op.
func (f Path) SetIfNotExists(value any) Update {
	if isEmptyScalar(value) {
		return Update{}
	}
	return Update{sets: []setEntry{{key: f.key(), path: f, action: ifNotExistsAction{value: value}}}}
}

// Change adjusts a numeric field by delta. The sign of delta picks the
// operator, so Change(-2) renders as "path = path - :v" with :v holding 2.
func (f Path) Change(delta any) Update {
	return Update{sets: []setEntry{{key: f.key(), path: f, action: modifyAction{delta: delta}}}}
}

// Append appends values to the end of a list field.
func (f Path) Append(values ...any) Update {
	return Update{sets: []setEntry{{key: f.key(), path: f, action: appendAction{values: values}}}}
}

// Remove deletes the field from the item.
func (f Path) Remove() Update {
	return Update{removes: []removeEntry{{key: f.key(), path: f}}}
}

// Add increments a numeric field or unions a set field with the given set.
// Only top-level attributes can be added to.
func (f Path) Add(value any) Update {
	if f.Nested() {
		return Update{err: ErrCannotAddToNestedField}
	}
	return Update{adds: []opEntry{{key: f.key(), path: f, value: value}}}
}

// Delete removes the members of the given set from a set field. Only
// top-level attributes can be deleted from.
func (f Path) Delete(value any) Update {
	if f.Nested() {
		return Update{err: ErrCannotDeleteFromNestedField}
	}
	return Update{deletes: []opEntry{{key: f.key(), path: f, value: value}}}
}

func isEmptyScalar(value any) bool {
	switch x := value.(type) {
	case string:
		return x == ""
	case []byte:
		return len(x) == 0
	case attr.Value:
		return (x.Tag() == attr.TagS || x.Tag() == attr.TagB) && x.Empty()
	}
	return false
}

// IsZero reports whether the update performs no actions.
func (u Update) IsZero() bool {
	return len(u.sets) == 0 && len(u.removes) == 0 && len(u.adds) == 0 && len(u.deletes) == 0 && u.err == nil
}

// And merges two updates. Where both touch the same path within a clause,
// the action from other wins, keeping the original position.
func (u Update) And(other Update) Update {
	if u.err != nil {
		return u
	}
	if other.err != nil {
		return other
	}
	out := Update{
		sets:    mergeEntries(u.sets, other.sets, func(e setEntry) string { return e.key }),
		removes: mergeEntries(u.removes, other.removes, func(e removeEntry) string { return e.key }),
		adds:    mergeEntries(u.adds, other.adds, func(e opEntry) string { return e.key }),
		deletes: mergeEntries(u.deletes, other.deletes, func(e opEntry) string { return e.key }),
	}
	return out
}

func mergeEntries[T any](a, b []T, key func(T) string) []T {
	out := make([]T, len(a))
	copy(out, a)
	index := make(map[string]int, len(a))
	for i, e := range a {
		index[key(e)] = i
	}
	for _, e := range b {
		if i, ok := index[key(e)]; ok {
			out[i] = e
			continue
		}
		index[key(e)] = len(out)
		out = append(out, e)
	}
	return out
}

// Encode renders the update expression. An update with no actions encodes
// to the empty string.
func (u Update) Encode(p *Parameters) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	var bits []string
	if len(u.sets) > 0 {
		entries := make([]string, len(u.sets))
		for i, e := range u.sets {
			path, err := p.EncodePath(e.path)
			if err != nil {
				return "", err
			}
			action, err := e.action.encode(p, e.path)
			if err != nil {
				return "", err
			}
			entries[i] = path + " = " + action
		}
		bits = append(bits, "SET "+strings.Join(entries, ", "))
	}
	if len(u.removes) > 0 {
		entries := make([]string, len(u.removes))
		for i, e := range u.removes {
			path, err := p.EncodePath(e.path)
			if err != nil {
				return "", err
			}
			entries[i] = path
		}
		bits = append(bits, "REMOVE "+strings.Join(entries, ", "))
	}
	if len(u.adds) > 0 {
		entries, err := encodeOpEntries(p, u.adds)
		if err != nil {
			return "", err
		}
		bits = append(bits, "ADD "+strings.Join(entries, ", "))
	}
	if len(u.deletes) > 0 {
		entries, err := encodeOpEntries(p, u.deletes)
		if err != nil {
			return "", err
		}
		bits = append(bits, "DELETE "+strings.Join(entries, ", "))
	}
	return strings.Join(bits, " "), nil
}

func encodeOpEntries(p *Parameters, entries []opEntry) ([]string, error) {
	out := make([]string, len(entries))
	for i, e := range entries {
		path, err := p.EncodePath(e.path)
		if err != nil {
			return nil, err
		}
		v, err := p.EncodeValue(e.value)
		if err != nil {
			return nil, err
		}
		out[i] = path + " " + v
	}
	return out, nil
}

type valueAction struct {
	value any
}

func (a valueAction) encode(p *Parameters, _ Path) (string, error) {
	return p.EncodeValue(a.value)
}

type ifNotExistsAction struct {
	value any
}

func (a ifNotExistsAction) encode(p *Parameters, path Path) (string, error) {
	enc, err := p.EncodePath(path)
	if err != nil {
		return "", err
	}
	v, err := p.EncodeValue(a.value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("if_not_exists(%s, %s)", enc, v), nil
}

type modifyAction struct {
	delta any
}

func (a modifyAction) encode(p *Parameters, path Path) (string, error) {
	op, magnitude, err := splitSign(a.delta)
	if err != nil {
		return "", err
	}
	enc, err := p.EncodePath(path)
	if err != nil {
		return "", err
	}
	v, err := p.EncodeValue(magnitude)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", enc, op, v), nil
}

// splitSign folds the sign of a numeric delta into the update operator and
// returns the magnitude as an exact decimal. Formatting before negating
// sidesteps the MinInt64 overflow.
func splitSign(delta any) (string, attr.Value, error) {
	var text string
	switch d := delta.(type) {
	case int:
		text = strconv.Itoa(d)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		text = fmt.Sprintf("%d", d)
	case float32:
		text = strconv.FormatFloat(float64(d), 'f', -1, 32)
	case float64:
		text = strconv.FormatFloat(d, 'f', -1, 64)
	case attr.Number:
		text = string(d)
	case attr.Value:
		n, ok := d.AsNumber()
		if !ok {
			return "", attr.Value{}, fmt.Errorf("expr: change needs a numeric delta, got %s value", d.Tag())
		}
		text = string(n)
	default:
		return "", attr.Value{}, fmt.Errorf("expr: change needs a numeric delta, got %T", delta)
	}
	if strings.HasPrefix(text, "-") {
		return "-", attr.Num(attr.Number(text[1:])), nil
	}
	return "+", attr.Num(attr.Number(text)), nil
}

type appendAction struct {
	values []any
}

func (a appendAction) encode(p *Parameters, path Path) (string, error) {
	enc, err := p.EncodePath(path)
	if err != nil {
		return "", err
	}
	list := make([]attr.Value, len(a.values))
	for i, v := range a.values {
		el, err := attr.From(v)
		if err != nil {
			return "", fmt.Errorf("expr: encode value: %w", err)
		}
		list[i] = el
	}
	v, err := p.EncodeValue(attr.List(list...))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("list_append(%s, %s)", enc, v), nil
}
