package expr

import (
	"fmt"

	"github.com/acksell/dynawire/attr"
)

// Condition is a condition or filter expression. The zero Condition means
// "no condition" and encodes to nothing; request builders skip it.
//
// Conditions combine with And, Or and Not. Errors made while building (an
// empty begins_with substring, an unrepresentable value) surface when the
// condition is encoded.
type Condition struct {
	node condNode
	err  error
}

type condNode interface {
	encode(p *Parameters) (string, error)
}

// IsZero reports whether no condition was set.
func (c Condition) IsZero() bool { return c.node == nil && c.err == nil }

// And combines two conditions; both operands are parenthesized.
func (c Condition) And(other Condition) Condition {
	return combine(c, other, "AND")
}

// Or combines two conditions; both operands are parenthesized.
func (c Condition) Or(other Condition) Condition {
	return combine(c, other, "OR")
}

// Not negates the condition.
func (c Condition) Not() Condition {
	if c.err != nil {
		return c
	}
	return Condition{node: notNode{base: c.node}}
}

// Encode renders the condition against the request's parameters. The zero
// Condition encodes to the empty string.
func (c Condition) Encode(p *Parameters) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if c.node == nil {
		return "", nil
	}
	return c.node.encode(p)
}

func combine(l, r Condition, op string) Condition {
	if l.err != nil {
		return l
	}
	if r.err != nil {
		return r
	}
	return Condition{node: binaryNode{op: op, lhs: l.node, rhs: r.node}}
}

type binaryNode struct {
	op       string
	lhs, rhs condNode
}

func (n binaryNode) encode(p *Parameters) (string, error) {
	lhs, err := n.lhs.encode(p)
	if err != nil {
		return "", err
	}
	rhs, err := n.rhs.encode(p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s %s %s)", lhs, n.op, rhs), nil
}

type notNode struct {
	base condNode
}

func (n notNode) encode(p *Parameters) (string, error) {
	base, err := n.base.encode(p)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(NOT %s)", base), nil
}

type comparisonNode struct {
	path  Path
	op    string
	other any
}

func (n comparisonNode) encode(p *Parameters) (string, error) {
	lhs, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	rhs, err := encodeOperand(p, n.other)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", lhs, n.op, rhs), nil
}

// encodeOperand renders a right-hand side, which may be another Path.
func encodeOperand(p *Parameters, operand any) (string, error) {
	if path, ok := operand.(Path); ok {
		return p.EncodePath(path)
	}
	return p.EncodeValue(operand)
}

type betweenNode struct {
	path      Path
	low, high any
}

func (n betweenNode) encode(p *Parameters) (string, error) {
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	low, err := p.EncodeValue(n.low)
	if err != nil {
		return "", err
	}
	high, err := p.EncodeValue(n.high)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", path, low, high), nil
}

type inNode struct {
	path   Path
	values []any
}

func (n inNode) encode(p *Parameters) (string, error) {
	if len(n.values) < 1 || len(n.values) > 100 {
		return "", fmt.Errorf("%w, got %d", ErrInvalidOperandCount, len(n.values))
	}
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	out := path + " IN ("
	for i, v := range n.values {
		ph, err := p.EncodeValue(v)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out += ","
		}
		out += ph
	}
	return out + ")", nil
}

type beginsWithNode struct {
	path   Path
	substr string
}

func (n beginsWithNode) encode(p *Parameters) (string, error) {
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	v, err := p.EncodeValue(n.substr)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("begins_with(%s, %s)", path, v), nil
}

type containsNode struct {
	path  Path
	value any
}

func (n containsNode) encode(p *Parameters) (string, error) {
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	v, err := p.EncodeValue(n.value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("contains(%s, %s)", path, v), nil
}

type existsNode struct {
	path   Path
	negate bool
}

func (n existsNode) encode(p *Parameters) (string, error) {
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	if n.negate {
		return fmt.Sprintf("attribute_not_exists(%s)", path), nil
	}
	return fmt.Sprintf("attribute_exists(%s)", path), nil
}

type typeNode struct {
	path Path
	t    attr.Tag
}

func (n typeNode) encode(p *Parameters) (string, error) {
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("attribute_type(%s, %s)", path, n.t), nil
}

type sizeNode struct {
	path  Path
	op    string
	other any
}

func (n sizeNode) encode(p *Parameters) (string, error) {
	path, err := p.EncodePath(n.path)
	if err != nil {
		return "", err
	}
	rhs, err := encodeOperand(p, n.other)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("size(%s) %s %s", path, n.op, rhs), nil
}
