package attr

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
)

// From converts a Go value into an attribute value. Scalars, maps, slices
// and structs are covered; named set types map to DynamoDB sets while plain
// slices map to lists. Types implementing encoding.TextMarshaler become S
// values. Struct fields use the `dynawire` tag, falling back to `json`, with
// "-" skipping a field and ",omitempty" dropping zero values.
func From(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case Number:
		return Num(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Binary(x), nil
	case bool:
		return Bool(x), nil
	case StringSet:
		return Strings(x...), nil
	case NumberSet:
		return Numbers(x...), nil
	case BinarySet:
		return Binaries(x...), nil
	case Item:
		return Map(x), nil
	case map[string]Value:
		return Map(x), nil
	case []Value:
		return List(x...), nil
	case int:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(x), nil
	}
	if tm, ok := v.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return Value{}, fmt.Errorf("attr: marshal %T: %w", v, err)
		}
		return String(string(text)), nil
	}
	return fromReflect(reflect.ValueOf(v))
}

// MarshalItem converts a struct or string-keyed map into an Item.
func MarshalItem(v any) (Item, error) {
	val, err := From(v)
	if err != nil {
		return nil, err
	}
	m, ok := val.AsMap()
	if !ok {
		return nil, fmt.Errorf("attr: cannot marshal %T as an item", v)
	}
	return Item(m), nil
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return From(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Int(rv.Uint()), nil
	case reflect.Float32:
		return Float(float32(rv.Float())), nil
	case reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Binary(rv.Bytes()), nil
		}
		return listFrom(rv)
	case reflect.Array:
		return listFrom(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("attr: map keys must be strings, got %s", rv.Type())
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			el, err := From(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			m[iter.Key().String()] = el
		}
		return Map(m), nil
	case reflect.Struct:
		return structFrom(rv)
	}
	return Value{}, fmt.Errorf("attr: cannot represent %s", rv.Type())
}

func listFrom(rv reflect.Value) (Value, error) {
	l := make([]Value, rv.Len())
	for i := range l {
		el, err := From(rv.Index(i).Interface())
		if err != nil {
			return Value{}, err
		}
		l[i] = el
	}
	return List(l...), nil
}

func structFrom(rv reflect.Value) (Value, error) {
	m := make(map[string]Value)
	for _, f := range reflect.VisibleFields(rv.Type()) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		name, omitempty, skip := fieldName(f)
		if skip {
			continue
		}
		fv := rv.FieldByIndex(f.Index)
		if omitempty && fv.IsZero() {
			continue
		}
		el, err := From(fv.Interface())
		if err != nil {
			return Value{}, fmt.Errorf("attr: field %s: %w", f.Name, err)
		}
		m[name] = el
	}
	return Map(m), nil
}

func fieldName(f reflect.StructField) (name string, omitempty, skip bool) {
	tag, ok := f.Tag.Lookup("dynawire")
	if !ok {
		tag, ok = f.Tag.Lookup("json")
	}
	if !ok {
		return f.Name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", false, true
	}
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}
