package attr

import (
	"encoding/json"
	"fmt"
)

// DecodeError reports a wire object that does not follow the attribute
// value format, carrying the offending JSON.
type DecodeError struct {
	Raw    json.RawMessage
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("attr: cannot decode %s: %s: %v", e.Raw, e.Reason, e.Err)
	}
	return fmt.Sprintf("attr: cannot decode %s: %s", e.Raw, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// normalize prunes empty members recursively. The second return is false
// when the value itself has nothing left to store.
func (v Value) normalize() (Value, bool) {
	switch v.tag {
	case "":
		return Value{}, false
	case TagS:
		return v, v.s != ""
	case TagB:
		return v, len(v.b) > 0
	case TagSS:
		kept := make([]string, 0, len(v.ss))
		for _, s := range v.ss {
			if s != "" {
				kept = append(kept, s)
			}
		}
		return Value{tag: TagSS, ss: kept}, len(kept) > 0
	case TagBS:
		kept := make([][]byte, 0, len(v.bs))
		for _, b := range v.bs {
			if len(b) > 0 {
				kept = append(kept, b)
			}
		}
		return Value{tag: TagBS, bs: kept}, len(kept) > 0
	case TagNS:
		return v, len(v.ns) > 0
	case TagL:
		kept := make([]Value, 0, len(v.l))
		for _, el := range v.l {
			if nv, ok := el.normalize(); ok {
				kept = append(kept, nv)
			}
		}
		return Value{tag: TagL, l: kept}, true
	case TagM:
		kept := make(map[string]Value, len(v.m))
		for k, el := range v.m {
			if nv, ok := el.normalize(); ok {
				kept[k] = nv
			}
		}
		return Value{tag: TagM, m: kept}, true
	}
	return v, true
}

// MarshalJSON renders the single-key wire object. Empty values inside lists,
// maps and sets are pruned; a value that is empty on its own cannot be
// rendered and returns ErrEmptyValue.
func (v Value) MarshalJSON() ([]byte, error) {
	nv, ok := v.normalize()
	if !ok {
		return nil, ErrEmptyValue
	}
	var payload any
	switch nv.tag {
	case TagS:
		payload = nv.s
	case TagN:
		payload = string(nv.n)
	case TagB:
		payload = nv.b
	case TagBOOL:
		payload = nv.bl
	case TagNULL:
		payload = true
	case TagSS:
		payload = nv.ss
	case TagNS:
		payload = nv.ns
	case TagBS:
		payload = nv.bs
	case TagL:
		payload = nv.l
	case TagM:
		payload = nv.m
	}
	return json.Marshal(map[string]any{string(nv.tag): payload})
}

// UnmarshalJSON parses a wire object. Objects with zero or more than one
// type tag, unknown tags or malformed payloads yield a DecodeError.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return &DecodeError{Raw: cloneRaw(data), Reason: "not a JSON object", Err: err}
	}
	if len(raw) != 1 {
		return &DecodeError{Raw: cloneRaw(data), Reason: fmt.Sprintf("expected exactly one type tag, got %d", len(raw))}
	}
	for tag, payload := range raw {
		parsed, err := parseTagged(Tag(tag), payload)
		if err != nil {
			if de, ok := err.(*DecodeError); ok {
				return de
			}
			return &DecodeError{Raw: cloneRaw(data), Reason: fmt.Sprintf("bad %s payload", tag), Err: err}
		}
		*v = parsed
	}
	return nil
}

func parseTagged(tag Tag, payload json.RawMessage) (Value, error) {
	switch tag {
	case TagS:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, err
		}
		return Value{tag: TagS, s: s}, nil
	case TagN:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, err
		}
		return Value{tag: TagN, n: Number(s)}, nil
	case TagB:
		var b []byte
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, err
		}
		return Value{tag: TagB, b: b}, nil
	case TagBOOL:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, err
		}
		return Value{tag: TagBOOL, bl: b}, nil
	case TagNULL:
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, err
		}
		return Value{tag: TagNULL}, nil
	case TagSS:
		var ss []string
		if err := json.Unmarshal(payload, &ss); err != nil {
			return Value{}, err
		}
		return Value{tag: TagSS, ss: ss}, nil
	case TagNS:
		var raw []string
		if err := json.Unmarshal(payload, &raw); err != nil {
			return Value{}, err
		}
		ns := make([]Number, len(raw))
		for i, s := range raw {
			ns[i] = Number(s)
		}
		return Value{tag: TagNS, ns: ns}, nil
	case TagBS:
		var bs [][]byte
		if err := json.Unmarshal(payload, &bs); err != nil {
			return Value{}, err
		}
		return Value{tag: TagBS, bs: bs}, nil
	case TagL:
		var l []Value
		if err := json.Unmarshal(payload, &l); err != nil {
			return Value{}, err
		}
		if l == nil {
			l = []Value{}
		}
		return Value{tag: TagL, l: l}, nil
	case TagM:
		var m map[string]Value
		if err := json.Unmarshal(payload, &m); err != nil {
			return Value{}, err
		}
		if m == nil {
			m = map[string]Value{}
		}
		return Value{tag: TagM, m: m}, nil
	}
	return Value{}, &DecodeError{Raw: cloneRaw(payload), Reason: fmt.Sprintf("unknown type tag %q", tag)}
}

func cloneRaw(data []byte) json.RawMessage {
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
