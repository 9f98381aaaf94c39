package expr

import (
	"strconv"

	"github.com/acksell/dynawire/attr"
)

// Path references an attribute in an item, optionally descending into
// nested documents. String parts index into maps, int parts into lists:
// F("foo", 1, "bar") refers to foo[1].bar.
//
// A Path is the starting point for condition, update and projection
// expressions.
type Path struct {
	root  string
	parts []any
}

// F builds a document path from a root attribute name and nested parts.
func F(root string, parts ...any) Path {
	return Path{root: root, parts: parts}
}

// Root returns the top-level attribute name.
func (f Path) Root() string { return f.root }

// Nested reports whether the path descends below the top-level attribute.
func (f Path) Nested() bool { return len(f.parts) > 0 }

// key is a canonical identity for deduplication in update expressions.
func (f Path) key() string {
	out := f.root
	for _, part := range f.parts {
		switch x := part.(type) {
		case int:
			out += "\x00i" + strconv.Itoa(x)
		case string:
			out += "\x00s" + x
		default:
			out += "\x00?"
		}
	}
	return out
}

// Condition expressions.

func (f Path) Equals(other any) Condition    { return compare(f, "=", other) }
func (f Path) NotEquals(other any) Condition { return compare(f, "<>", other) }
func (f Path) Gt(other any) Condition        { return compare(f, ">", other) }
func (f Path) Gte(other any) Condition       { return compare(f, ">=", other) }
func (f Path) Lt(other any) Condition        { return compare(f, "<", other) }
func (f Path) Lte(other any) Condition       { return compare(f, "<=", other) }

// Between checks that the field is within the inclusive range [low, high].
func (f Path) Between(low, high any) Condition {
	return Condition{node: betweenNode{path: f, low: low, high: high}}
}

// In checks that the field equals one of the given values. Between 1 and
// 100 values must be provided.
func (f Path) In(values ...any) Condition {
	return Condition{node: inNode{path: f, values: values}}
}

// BeginsWith checks that a string field starts with the given substring,
// which must not be empty. Fields equal to the full substring also match.
func (f Path) BeginsWith(substr string) Condition {
	if substr == "" {
		return Condition{err: errEmptySubstring}
	}
	return Condition{node: beginsWithNode{path: f, substr: substr}}
}

// Contains checks that a set or list field contains the value, or that a
// string field contains the substring.
func (f Path) Contains(value any) Condition {
	return Condition{node: containsNode{path: f, value: value}}
}

func (f Path) Exists() Condition {
	return Condition{node: existsNode{path: f}}
}

func (f Path) NotExists() Condition {
	return Condition{node: existsNode{path: f, negate: true}}
}

// IsType checks the attribute type of the field against a wire type tag.
func (f Path) IsType(t attr.Tag) Condition {
	return Condition{node: typeNode{path: f, t: t}}
}

// Size compares the size of the field: string length, binary length,
// element count for sets, lists and maps.
func (f Path) Size() Size { return Size{path: f} }

// Size builds conditions on the stored size of a field.
type Size struct {
	path Path
}

func (s Size) Equals(other any) Condition    { return sizeCompare(s.path, "=", other) }
func (s Size) NotEquals(other any) Condition { return sizeCompare(s.path, "<>", other) }
func (s Size) Gt(other any) Condition        { return sizeCompare(s.path, ">", other) }
func (s Size) Gte(other any) Condition       { return sizeCompare(s.path, ">=", other) }
func (s Size) Lt(other any) Condition        { return sizeCompare(s.path, "<", other) }
func (s Size) Lte(other any) Condition       { return sizeCompare(s.path, "<=", other) }

func compare(path Path, op string, other any) Condition {
	return Condition{node: comparisonNode{path: path, op: op, other: other}}
}

func sizeCompare(path Path, op string, other any) Condition {
	return Condition{node: sizeNode{path: path, op: op, other: other}}
}
