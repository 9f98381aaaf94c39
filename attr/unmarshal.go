package attr

import (
	"encoding"
	"fmt"
	"reflect"
)

// NumberMode controls what N values decode to when the target is untyped
// (interface{} fields, map[string]any and friends).
type NumberMode int

const (
	// NumbersAsNumber keeps the exact decimal text as a Number.
	NumbersAsNumber NumberMode = iota
	// NumbersAsFloat parses N values into float64, trading precision for
	// convenience.
	NumbersAsFloat
)

// Decoder decodes attribute values into Go values. The zero Decoder keeps
// numbers exact.
type Decoder struct {
	Numbers NumberMode
}

// Unmarshal decodes an item into dst, which must be a non-nil pointer to a
// struct or a string-keyed map.
func Unmarshal(item Item, dst any) error { return Decoder{}.Unmarshal(item, dst) }

// UnmarshalValue decodes a single attribute value into dst.
func UnmarshalValue(v Value, dst any) error { return Decoder{}.UnmarshalValue(v, dst) }

func (d Decoder) Unmarshal(item Item, dst any) error {
	return d.UnmarshalValue(Map(item), dst)
}

func (d Decoder) UnmarshalValue(v Value, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("attr: unmarshal target must be a non-nil pointer, got %T", dst)
	}
	return d.decode(v, rv.Elem())
}

var valueType = reflect.TypeOf(Value{})

func (d Decoder) decode(v Value, dst reflect.Value) error {
	if dst.Type() == valueType {
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	if v.tag == TagNULL {
		dst.SetZero()
		return nil
	}
	if dst.Kind() == reflect.Pointer {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return d.decode(v, dst.Elem())
	}
	if dst.Kind() == reflect.Interface && dst.NumMethod() == 0 {
		generic, err := d.generic(v)
		if err != nil {
			return err
		}
		if generic == nil {
			dst.SetZero()
		} else {
			dst.Set(reflect.ValueOf(generic))
		}
		return nil
	}
	if s, ok := v.AsString(); ok && dst.Kind() != reflect.String {
		if tu, ok := textUnmarshaler(dst); ok {
			return tu.UnmarshalText([]byte(s))
		}
	}

	switch v.tag {
	case TagS:
		if dst.Kind() != reflect.String {
			return d.mismatch(v, dst)
		}
		dst.SetString(v.s)
		return nil
	case TagN:
		return d.decodeNumber(v.n, dst)
	case TagB:
		if dst.Kind() == reflect.Slice && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes(append([]byte(nil), v.b...))
			return nil
		}
		return d.mismatch(v, dst)
	case TagBOOL:
		if dst.Kind() != reflect.Bool {
			return d.mismatch(v, dst)
		}
		dst.SetBool(v.bl)
		return nil
	case TagSS:
		return d.decodeSlice(len(v.ss), dst, func(i int) Value { return String(v.ss[i]) })
	case TagNS:
		return d.decodeSlice(len(v.ns), dst, func(i int) Value { return Num(v.ns[i]) })
	case TagBS:
		return d.decodeSlice(len(v.bs), dst, func(i int) Value { return Binary(v.bs[i]) })
	case TagL:
		return d.decodeSlice(len(v.l), dst, func(i int) Value { return v.l[i] })
	case TagM:
		switch dst.Kind() {
		case reflect.Map:
			return d.decodeMap(v.m, dst)
		case reflect.Struct:
			return d.decodeStruct(v.m, dst)
		}
		return d.mismatch(v, dst)
	}
	return fmt.Errorf("attr: cannot decode zero Value")
}

func textUnmarshaler(dst reflect.Value) (encoding.TextUnmarshaler, bool) {
	if dst.Kind() == reflect.String {
		return nil, false
	}
	if dst.CanAddr() {
		if tu, ok := dst.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return tu, true
		}
	}
	return nil, false
}

func (d Decoder) decodeNumber(n Number, dst reflect.Value) error {
	switch dst.Kind() {
	case reflect.String:
		// Covers Number itself and any other string-backed type.
		dst.SetString(string(n))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := n.Int64()
		if err != nil {
			return fmt.Errorf("attr: number %q: %w", n, err)
		}
		if dst.OverflowInt(i) {
			return fmt.Errorf("attr: number %q overflows %s", n, dst.Type())
		}
		dst.SetInt(i)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return fmt.Errorf("attr: number %q does not fit %s", n, dst.Type())
		}
		if dst.OverflowUint(uint64(i)) {
			return fmt.Errorf("attr: number %q overflows %s", n, dst.Type())
		}
		dst.SetUint(uint64(i))
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("attr: number %q: %w", n, err)
		}
		dst.SetFloat(f)
		return nil
	}
	return d.mismatch(Num(n), dst)
}

func (d Decoder) decodeSlice(n int, dst reflect.Value, at func(int) Value) error {
	switch dst.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(dst.Type(), n, n)
		for i := 0; i < n; i++ {
			if err := d.decode(at(i), out.Index(i)); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	case reflect.Array:
		if dst.Len() < n {
			return fmt.Errorf("attr: %d elements overflow %s", n, dst.Type())
		}
		for i := 0; i < n; i++ {
			if err := d.decode(at(i), dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("attr: cannot decode list value into %s", dst.Type())
}

func (d Decoder) decodeMap(m map[string]Value, dst reflect.Value) error {
	t := dst.Type()
	if t.Key().Kind() != reflect.String {
		return fmt.Errorf("attr: map target must have string keys, got %s", t)
	}
	out := reflect.MakeMapWithSize(t, len(m))
	for k, v := range m {
		el := reflect.New(t.Elem()).Elem()
		if err := d.decode(v, el); err != nil {
			return fmt.Errorf("attr: key %q: %w", k, err)
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), el)
	}
	dst.Set(out)
	return nil
}

func (d Decoder) decodeStruct(m map[string]Value, dst reflect.Value) error {
	for _, f := range reflect.VisibleFields(dst.Type()) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		name, _, skip := fieldName(f)
		if skip {
			continue
		}
		v, ok := m[name]
		if !ok {
			continue
		}
		if err := d.decode(v, dst.FieldByIndex(f.Index)); err != nil {
			return fmt.Errorf("attr: field %s: %w", f.Name, err)
		}
	}
	return nil
}

func (d Decoder) generic(v Value) (any, error) {
	switch v.tag {
	case TagS:
		return v.s, nil
	case TagN:
		if d.Numbers == NumbersAsFloat {
			f, err := v.n.Float64()
			if err != nil {
				return nil, fmt.Errorf("attr: number %q: %w", v.n, err)
			}
			return f, nil
		}
		return v.n, nil
	case TagB:
		return append([]byte(nil), v.b...), nil
	case TagBOOL:
		return v.bl, nil
	case TagNULL:
		return nil, nil
	case TagSS:
		return append([]string(nil), v.ss...), nil
	case TagNS:
		if d.Numbers == NumbersAsFloat {
			out := make([]float64, len(v.ns))
			for i, n := range v.ns {
				f, err := n.Float64()
				if err != nil {
					return nil, fmt.Errorf("attr: number %q: %w", n, err)
				}
				out[i] = f
			}
			return out, nil
		}
		return append([]Number(nil), v.ns...), nil
	case TagBS:
		out := make([][]byte, len(v.bs))
		for i, b := range v.bs {
			out[i] = append([]byte(nil), b...)
		}
		return out, nil
	case TagL:
		out := make([]any, len(v.l))
		for i, el := range v.l {
			g, err := d.generic(el)
			if err != nil {
				return nil, err
			}
			out[i] = g
		}
		return out, nil
	case TagM:
		out := make(map[string]any, len(v.m))
		for k, el := range v.m {
			g, err := d.generic(el)
			if err != nil {
				return nil, err
			}
			out[k] = g
		}
		return out, nil
	}
	return nil, fmt.Errorf("attr: cannot decode zero Value")
}

func (d Decoder) mismatch(v Value, dst reflect.Value) error {
	return fmt.Errorf("attr: cannot decode %s value into %s", v.tag, dst.Type())
}
