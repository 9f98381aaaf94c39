// Package expr compiles DynamoDB expressions: conditions, key conditions,
// update and projection expressions. All expressions of a request share one
// Parameters collector so attribute names and values are deduplicated into
// #n and :v placeholders.
package expr

import (
	"fmt"

	"github.com/acksell/dynawire/attr"
)

// Parameters collects the name and value placeholders referenced by the
// expressions of a single request. Placeholders are handed out from two
// counters that only ever move forward; encoding the same name or the same
// value twice yields the same placeholder.
type Parameters struct {
	names  map[string]string
	values map[string]attr.Value

	nameCache  map[string]string
	valueCache map[string]string
	nameIdx    int
	valueIdx   int
}

func NewParameters() *Parameters {
	return &Parameters{
		names:      map[string]string{},
		values:     map[string]attr.Value{},
		nameCache:  map[string]string{},
		valueCache: map[string]string{},
	}
}

// EncodeName returns the #n placeholder for an attribute name.
func (p *Parameters) EncodeName(name string) string {
	if ph, ok := p.nameCache[name]; ok {
		return ph
	}
	ph := fmt.Sprintf("#n%d", p.nameIdx)
	p.nameIdx++
	p.nameCache[name] = ph
	p.names[ph] = name
	return ph
}

// EncodeValue returns the :v placeholder for a value. Values are compared
// by type tag and rendered wire bytes, so documents that serialize the same
// share a placeholder.
func (p *Parameters) EncodeValue(value any) (string, error) {
	v, err := attr.From(value)
	if err != nil {
		return "", fmt.Errorf("expr: encode value: %w", err)
	}
	rendered, err := v.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("expr: encode value: %w", err)
	}
	key := string(v.Tag()) + "\x00" + string(rendered)
	if ph, ok := p.valueCache[key]; ok {
		return ph, nil
	}
	ph := fmt.Sprintf(":v%d", p.valueIdx)
	p.valueIdx++
	p.valueCache[key] = ph
	p.values[ph] = v
	return ph, nil
}

// EncodePath renders a document path, e.g. F("a", "b", 2) as "#n0.#n1[2]".
func (p *Parameters) EncodePath(path Path) (string, error) {
	out := p.EncodeName(path.root)
	for _, part := range path.parts {
		switch x := part.(type) {
		case int:
			out += fmt.Sprintf("[%d]", x)
		case string:
			out += "." + p.EncodeName(x)
		default:
			return "", fmt.Errorf("expr: path part must be a string or int, got %T", part)
		}
	}
	return out, nil
}

// Names returns the ExpressionAttributeNames map, or nil when no name was
// encoded.
func (p *Parameters) Names() map[string]string {
	if len(p.names) == 0 {
		return nil
	}
	return p.names
}

// Values returns the ExpressionAttributeValues map, or nil when no value
// was encoded.
func (p *Parameters) Values() map[string]attr.Value {
	if len(p.values) == 0 {
		return nil
	}
	return p.values
}

// Payload returns the two expression attribute maps keyed the way the wire
// protocol wants them, leaving out empty ones.
func (p *Parameters) Payload() map[string]any {
	payload := map[string]any{}
	if len(p.names) > 0 {
		payload["ExpressionAttributeNames"] = p.names
	}
	if len(p.values) > 0 {
		payload["ExpressionAttributeValues"] = p.values
	}
	return payload
}
