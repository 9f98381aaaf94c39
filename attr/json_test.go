package attr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_MarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		in   Value
		want string
	}{
		{"string", String("hello"), `{"S":"hello"}`},
		{"number", Num("3.99999999999999999999"), `{"N":"3.99999999999999999999"}`},
		{"binary", Binary([]byte{1, 2}), `{"B":"AQI="}`},
		{"bool", Bool(false), `{"BOOL":false}`},
		{"null", Null(), `{"NULL":true}`},
		{"string set", Strings("a", "b"), `{"SS":["a","b"]}`},
		{"number set", Numbers("1", "2"), `{"NS":["1","2"]}`},
		{"list", List(Int(1), String("x")), `{"L":[{"N":"1"},{"S":"x"}]}`},
		{"map", Map(map[string]Value{"k": String("v")}), `{"M":{"k":{"S":"v"}}}`},
		{"empty list", List(), `{"L":[]}`},
		{"empty map", Map(nil), `{"M":{}}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := json.Marshal(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, string(data))
		})
	}
}

func TestValue_MarshalPrunesNestedEmpties(t *testing.T) {
	v := Map(map[string]Value{
		"keep": String("x"),
		"drop": String(""),
		"l":    List(String(""), Int(1)),
		"ss":   Strings("a", ""),
	})
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"M":{"keep":{"S":"x"},"l":{"L":[{"N":"1"}]},"ss":{"SS":["a"]}}}`, string(data))
}

func TestValue_MarshalEmpty(t *testing.T) {
	for _, v := range []Value{String(""), Binary(nil), Strings(), Strings(""), {}} {
		_, err := json.Marshal(v)
		assert.ErrorIs(t, err, ErrEmptyValue, "value %s", v)
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := Map(map[string]Value{
			"s":  String("hello"),
			"n":  Num("1.5"),
			"b":  Binary([]byte("raw")),
			"ss": Strings("a", "b"),
			"ns": Numbers("1", "2"),
			"bs": Binaries([]byte{0}, []byte{1}),
			"l":  List(Bool(true), Null()),
			"m":  Map(map[string]Value{"inner": Int(9)}),
		})
		data, err := json.Marshal(in)
		require.NoError(t, err)

		var out Value
		require.NoError(t, json.Unmarshal(data, &out))
		assert.True(t, in.Equal(out), "got %s", out)
	})

	t.Run("number text preserved", func(t *testing.T) {
		var v Value
		require.NoError(t, json.Unmarshal([]byte(`{"N":"3.99999999999999999999"}`), &v))
		n, ok := v.AsNumber()
		require.True(t, ok)
		assert.Equal(t, Number("3.99999999999999999999"), n)
	})

	t.Run("zero tags", func(t *testing.T) {
		var v Value
		err := json.Unmarshal([]byte(`{}`), &v)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Contains(t, de.Error(), "exactly one type tag")
	})

	t.Run("two tags", func(t *testing.T) {
		var v Value
		err := json.Unmarshal([]byte(`{"S":"x","N":"1"}`), &v)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
	})

	t.Run("unknown tag", func(t *testing.T) {
		var v Value
		err := json.Unmarshal([]byte(`{"X":"x"}`), &v)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
		assert.Contains(t, de.Error(), `unknown type tag "X"`)
	})

	t.Run("bad payload shape", func(t *testing.T) {
		var v Value
		err := json.Unmarshal([]byte(`{"SS":"not-an-array"}`), &v)
		var de *DecodeError
		require.ErrorAs(t, err, &de)
	})

	t.Run("item decode", func(t *testing.T) {
		var item Item
		data := []byte(`{"pk":{"S":"user#1"},"age":{"N":"30"}}`)
		require.NoError(t, json.Unmarshal(data, &item))
		assert.True(t, item.Equal(Item{"pk": String("user#1"), "age": Int(30)}))
	})
}
