package expr

import (
	"errors"
	"fmt"
)

// KeyCondition is the key condition of a Query: an equality on the
// partition key, optionally constrained further on the sort key.
//
//	expr.HashKey("pk", "user#1").And(expr.RangeKey("sk").BeginsWith("order#"))
//
// The zero KeyCondition is invalid for Query and rejected by the client.
type KeyCondition struct {
	name     string
	value    any
	rangeKey Condition
	err      error
}

// HashKey builds the mandatory partition key equality.
func HashKey(name string, value any) KeyCondition {
	return KeyCondition{name: name, value: value}
}

// And constrains the key condition by the sort key. The condition must be
// built from RangeKey; only one sort key clause is allowed.
func (k KeyCondition) And(rangeCond Condition) KeyCondition {
	if k.err != nil {
		return k
	}
	if !k.rangeKey.IsZero() {
		k.err = errors.New("expr: key condition already has a sort key clause")
		return k
	}
	k.rangeKey = rangeCond
	return k
}

// IsZero reports whether no key condition was set.
func (k KeyCondition) IsZero() bool {
	return k.name == "" && k.value == nil && k.rangeKey.IsZero() && k.err == nil
}

// Encode renders the key condition as "hash" or "hash AND range".
func (k KeyCondition) Encode(p *Parameters) (string, error) {
	if k.err != nil {
		return "", k.err
	}
	name := p.EncodeName(k.name)
	value, err := p.EncodeValue(k.value)
	if err != nil {
		return "", err
	}
	hash := fmt.Sprintf("%s = %s", name, value)
	if k.rangeKey.IsZero() {
		return hash, nil
	}
	rangePart, err := k.rangeKey.Encode(p)
	if err != nil {
		return "", err
	}
	return hash + " AND " + rangePart, nil
}

// RangeKey names the sort key of the queried table or index and builds
// sort key clauses for key conditions. The methods mirror the Path
// comparators; DynamoDB accepts =, <, <=, >, >=, BETWEEN and begins_with
// on sort keys and rejects anything else at the service.
type RangeKey string

func (r RangeKey) Equals(other any) Condition    { return F(string(r)).Equals(other) }
func (r RangeKey) NotEquals(other any) Condition { return F(string(r)).NotEquals(other) }
func (r RangeKey) Gt(other any) Condition        { return F(string(r)).Gt(other) }
func (r RangeKey) Gte(other any) Condition       { return F(string(r)).Gte(other) }
func (r RangeKey) Lt(other any) Condition        { return F(string(r)).Lt(other) }
func (r RangeKey) Lte(other any) Condition       { return F(string(r)).Lte(other) }

func (r RangeKey) Between(low, high any) Condition {
	return F(string(r)).Between(low, high)
}

func (r RangeKey) BeginsWith(substr string) Condition {
	return F(string(r)).BeginsWith(substr)
}

func (r RangeKey) Contains(value any) Condition { return F(string(r)).Contains(value) }

func (r RangeKey) In(values ...any) Condition { return F(string(r)).In(values...) }

func (r RangeKey) Size() Size { return F(string(r)).Size() }
