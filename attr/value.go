// Package attr implements the DynamoDB attribute value model: the tagged
// union the wire protocol encodes as single-key JSON objects like
// {"S":"hello"} or {"N":"42"}.
package attr

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/exp/constraints"
)

// Tag identifies which member of the attribute value union is set. The tag
// string is exactly the key used on the wire.
type Tag string

const (
	TagS    Tag = "S"
	TagN    Tag = "N"
	TagB    Tag = "B"
	TagBOOL Tag = "BOOL"
	TagNULL Tag = "NULL"
	TagSS   Tag = "SS"
	TagNS   Tag = "NS"
	TagBS   Tag = "BS"
	TagL    Tag = "L"
	TagM    Tag = "M"
)

// Value is a single DynamoDB attribute value. The zero Value is invalid and
// cannot be encoded. Values are immutable once constructed.
type Value struct {
	tag Tag

	s  string
	n  Number
	b  []byte
	bl bool
	ss []string
	ns []Number
	bs [][]byte
	l  []Value
	m  map[string]Value
}

// Item is a full DynamoDB item keyed by attribute name.
type Item map[string]Value

// ErrEmptyItem is returned when an item has no storable attributes left
// after empty values are pruned. DynamoDB rejects such writes, so they are
// refused before any request is made.
var ErrEmptyItem = errors.New("attr: item has no storable attributes")

// ErrEmptyValue is returned when an empty value (empty string, empty binary
// or empty set) is encoded on its own. Inside items and documents empty
// values are pruned instead.
var ErrEmptyValue = errors.New("attr: cannot encode empty value")

// Named slice types so callers can distinguish sets from lists. A plain
// []string becomes an L of S values; a StringSet becomes an SS.
type (
	StringSet []string
	NumberSet []Number
	BinarySet [][]byte
)

func String(s string) Value { return Value{tag: TagS, s: s} }

func Binary(b []byte) Value { return Value{tag: TagB, b: b} }

func Bool(b bool) Value { return Value{tag: TagBOOL, bl: b} }

func Null() Value { return Value{tag: TagNULL} }

// Num wraps an exact decimal string. The text is sent to DynamoDB verbatim.
func Num(n Number) Value { return Value{tag: TagN, n: n} }

// Int builds an N value from any integer type.
func Int[T constraints.Integer](v T) Value {
	return Value{tag: TagN, n: Number(fmt.Sprintf("%d", v))}
}

// Float builds an N value from a float, rendered with the shortest exact
// decimal representation.
func Float[T constraints.Float](v T) Value {
	return Value{tag: TagN, n: formatFloat(v)}
}

func formatFloat[T constraints.Float](v T) Number {
	bits := 64
	if _, ok := any(v).(float32); ok {
		bits = 32
	}
	return Number(strconv.FormatFloat(float64(v), 'f', -1, bits))
}

func List(vs ...Value) Value { return Value{tag: TagL, l: vs} }

func Map(m map[string]Value) Value { return Value{tag: TagM, m: m} }

// Strings builds an SS value. Duplicates are collapsed, keeping first
// occurrence order; DynamoDB rejects sets with repeated members.
func Strings(ss ...string) Value {
	return Value{tag: TagSS, ss: dedupe(ss, func(s string) string { return s })}
}

// Numbers builds an NS value, collapsing duplicates by their decimal text.
func Numbers(ns ...Number) Value {
	return Value{tag: TagNS, ns: dedupe(ns, func(n Number) string { return string(n) })}
}

// Binaries builds a BS value, collapsing byte-identical members.
func Binaries(bs ...[]byte) Value {
	return Value{tag: TagBS, bs: dedupe(bs, func(b []byte) string { return string(b) })}
}

func dedupe[T any](in []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		k := key(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Tag reports which union member is set, or "" for the zero Value.
func (v Value) Tag() Tag { return v.tag }

// IsZero reports whether v is the invalid zero Value.
func (v Value) IsZero() bool { return v.tag == "" }

// Empty reports whether v cannot be stored by DynamoDB: empty strings,
// empty binaries and zero-member sets. Empty lists and maps are storable
// and not considered empty. The zero Value counts as empty.
func (v Value) Empty() bool {
	switch v.tag {
	case TagS:
		return v.s == ""
	case TagB:
		return len(v.b) == 0
	case TagSS:
		return len(v.ss) == 0
	case TagNS:
		return len(v.ns) == 0
	case TagBS:
		return len(v.bs) == 0
	case "":
		return true
	}
	return false
}

func (v Value) AsString() (string, bool) { return v.s, v.tag == TagS }

func (v Value) AsNumber() (Number, bool) { return v.n, v.tag == TagN }

func (v Value) AsBinary() ([]byte, bool) { return v.b, v.tag == TagB }

func (v Value) AsBool() (bool, bool) { return v.bl, v.tag == TagBOOL }

func (v Value) IsNull() bool { return v.tag == TagNULL }

func (v Value) AsStringSet() ([]string, bool) { return v.ss, v.tag == TagSS }

func (v Value) AsNumberSet() ([]Number, bool) { return v.ns, v.tag == TagNS }

func (v Value) AsBinarySet() ([][]byte, bool) { return v.bs, v.tag == TagBS }

func (v Value) AsList() ([]Value, bool) { return v.l, v.tag == TagL }

func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.tag == TagM }

// Equal reports deep equality. Sets compare without regard to member order;
// numbers compare by their exact decimal text.
func (v Value) Equal(o Value) bool {
	if v.tag != o.tag {
		return false
	}
	switch v.tag {
	case TagS:
		return v.s == o.s
	case TagN:
		return v.n == o.n
	case TagB:
		return bytes.Equal(v.b, o.b)
	case TagBOOL:
		return v.bl == o.bl
	case TagNULL, "":
		return true
	case TagSS:
		return equalSorted(v.ss, o.ss, func(s string) string { return s })
	case TagNS:
		return equalSorted(v.ns, o.ns, func(n Number) string { return string(n) })
	case TagBS:
		return equalSorted(v.bs, o.bs, func(b []byte) string { return string(b) })
	case TagL:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	case TagM:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

func equalSorted[T any](a, b []T, key func(T) string) bool {
	if len(a) != len(b) {
		return false
	}
	ka := make([]string, len(a))
	kb := make([]string, len(b))
	for i := range a {
		ka[i] = key(a[i])
		kb[i] = key(b[i])
	}
	sort.Strings(ka)
	sort.Strings(kb)
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}

// String renders the wire form for debugging. Invalid values render as
// <zero> and unencodable ones fall back to the tag name.
func (v Value) String() string {
	if v.tag == "" {
		return "<zero>"
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s>", v.tag)
	}
	return string(data)
}

// Clean returns a copy of the item without empty attributes. It returns
// ErrEmptyItem when nothing storable remains, which is also the case for an
// item with no attributes at all.
func (it Item) Clean() (Item, error) {
	out := make(Item, len(it))
	for k, v := range it {
		if v.Empty() {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil, ErrEmptyItem
	}
	return out, nil
}

// Equal reports deep equality of two items.
func (it Item) Equal(o Item) bool {
	if len(it) != len(o) {
		return false
	}
	for k, a := range it {
		b, ok := o[k]
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}
