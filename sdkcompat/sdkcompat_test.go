package sdkcompat

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/dynawire/attr"
)

func TestRoundTrip(t *testing.T) {
	item := attr.Item{
		"id":     attr.String("alice"),
		"age":    attr.Num("39.5"),
		"raw":    attr.Binary([]byte{0x01, 0x02}),
		"active": attr.Bool(true),
		"gone":   attr.Null(),
		"tags":   attr.Strings("go", "db"),
		"scores": attr.Numbers("1", "2.5"),
		"blobs":  attr.Binaries([]byte{0x01}, []byte{0x02}),
		"lines":  attr.List(attr.String("a"), attr.Int(7)),
		"home":   attr.Map(map[string]attr.Value{"city": attr.String("berlin")}),
	}

	back, err := FromSDK(ToSDK(item))
	require.NoError(t, err)
	assert.True(t, back.Equal(item))
}

func TestToSDKShapes(t *testing.T) {
	got := ToSDK(attr.Item{"n": attr.Num("12")})
	n, ok := got["n"].(*types.AttributeValueMemberN)
	require.True(t, ok)
	assert.Equal(t, "12", n.Value)
}

func TestToSDKKeepsEmptyStrings(t *testing.T) {
	got := ToSDK(attr.Item{"s": attr.String("")})
	s, ok := got["s"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	assert.Equal(t, "", s.Value)
}

func TestFromSDKNestedDocument(t *testing.T) {
	in := map[string]types.AttributeValue{
		"order": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"lines": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberN{Value: "2"},
			}},
		}},
	}
	item, err := FromSDK(in)
	require.NoError(t, err)
	want := attr.Item{"order": attr.Map(map[string]attr.Value{
		"lines": attr.List(attr.Num("2")),
	})}
	assert.True(t, item.Equal(want))
}

func TestFromSDKRejectsUnknownImpl(t *testing.T) {
	_, err := FromSDK(map[string]types.AttributeValue{"x": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attribute x")
}
