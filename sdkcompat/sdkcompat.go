// Package sdkcompat converts items between their dynawire and
// aws-sdk-go-v2 representations, so codebases can migrate from the SDK
// piecemeal and hand items across the seam in either direction.
package sdkcompat

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/dynawire/attr"
)

// FromSDK converts an SDK item. The conversion is lossless; it fails only
// on attribute value implementations outside the SDK's own set.
func FromSDK(item map[string]types.AttributeValue) (attr.Item, error) {
	if item == nil {
		return nil, nil
	}
	out := make(attr.Item, len(item))
	for name, av := range item {
		v, err := FromSDKValue(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// FromSDKValue converts a single SDK attribute value.
func FromSDKValue(av types.AttributeValue) (attr.Value, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return attr.String(v.Value), nil
	case *types.AttributeValueMemberN:
		return attr.Num(attr.Number(v.Value)), nil
	case *types.AttributeValueMemberB:
		return attr.Binary(v.Value), nil
	case *types.AttributeValueMemberBOOL:
		return attr.Bool(v.Value), nil
	case *types.AttributeValueMemberNULL:
		return attr.Null(), nil
	case *types.AttributeValueMemberSS:
		return attr.Strings(v.Value...), nil
	case *types.AttributeValueMemberNS:
		ns := make([]attr.Number, len(v.Value))
		for i, n := range v.Value {
			ns[i] = attr.Number(n)
		}
		return attr.Numbers(ns...), nil
	case *types.AttributeValueMemberBS:
		return attr.Binaries(v.Value...), nil
	case *types.AttributeValueMemberL:
		l := make([]attr.Value, len(v.Value))
		for i, el := range v.Value {
			lv, err := FromSDKValue(el)
			if err != nil {
				return attr.Value{}, fmt.Errorf("list element %d: %w", i, err)
			}
			l[i] = lv
		}
		return attr.List(l...), nil
	case *types.AttributeValueMemberM:
		m := make(map[string]attr.Value, len(v.Value))
		for k, el := range v.Value {
			mv, err := FromSDKValue(el)
			if err != nil {
				return attr.Value{}, fmt.Errorf("map key %s: %w", k, err)
			}
			m[k] = mv
		}
		return attr.Map(m), nil
	default:
		return attr.Value{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

// ToSDK converts an item to its SDK shape. It does not prune empty strings
// or sets the way the wire encoder does: what goes in comes out.
func ToSDK(item attr.Item) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		out[name] = ToSDKValue(v)
	}
	return out
}

// ToSDKValue converts a single value. It panics on the zero Value, which
// no constructor produces.
func ToSDKValue(v attr.Value) types.AttributeValue {
	switch v.Tag() {
	case attr.TagS:
		s, _ := v.AsString()
		return &types.AttributeValueMemberS{Value: s}
	case attr.TagN:
		n, _ := v.AsNumber()
		return &types.AttributeValueMemberN{Value: string(n)}
	case attr.TagB:
		b, _ := v.AsBinary()
		return &types.AttributeValueMemberB{Value: b}
	case attr.TagBOOL:
		b, _ := v.AsBool()
		return &types.AttributeValueMemberBOOL{Value: b}
	case attr.TagNULL:
		return &types.AttributeValueMemberNULL{Value: true}
	case attr.TagSS:
		ss, _ := v.AsStringSet()
		return &types.AttributeValueMemberSS{Value: ss}
	case attr.TagNS:
		ns, _ := v.AsNumberSet()
		out := make([]string, len(ns))
		for i, n := range ns {
			out[i] = string(n)
		}
		return &types.AttributeValueMemberNS{Value: out}
	case attr.TagBS:
		bs, _ := v.AsBinarySet()
		return &types.AttributeValueMemberBS{Value: bs}
	case attr.TagL:
		l, _ := v.AsList()
		out := make([]types.AttributeValue, len(l))
		for i, el := range l {
			out[i] = ToSDKValue(el)
		}
		return &types.AttributeValueMemberL{Value: out}
	case attr.TagM:
		m, _ := v.AsMap()
		out := make(map[string]types.AttributeValue, len(m))
		for k, el := range m {
			out[k] = ToSDKValue(el)
		}
		return &types.AttributeValueMemberM{Value: out}
	default:
		panic("sdkcompat: cannot convert a zero attr.Value")
	}
}
