package localddb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/dynawire/attr"
)

func TestParseTables(t *testing.T) {
	defs, err := ParseTables([]byte(`
tables:
  - name: people
    partitionKey:
      name: id
      kind: S
  - name: orders
    partitionKey:
      name: user
      kind: S
    sortKey:
      name: placed
      kind: N
`))
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, TableDef{Name: "people", PartitionKey: KeyDef{Name: "id", Kind: KindString}}, defs[0])
	require.NotNil(t, defs[1].SortKey)
	assert.Equal(t, KeyDef{Name: "placed", Kind: KindNumber}, *defs[1].SortKey)
}

func TestParseTablesRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty document": ``,
		"no tables":      `tables: []`,
		"missing name":   "tables:\n  - partitionKey: {name: id, kind: S}",
		"missing kind":   "tables:\n  - name: x\n    partitionKey: {name: id}",
		"unknown kind":   "tables:\n  - name: x\n    partitionKey: {name: id, kind: Q}",
		"bad sort key":   "tables:\n  - name: x\n    partitionKey: {name: id, kind: S}\n    sortKey: {name: at}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTables([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestExtractKey(t *testing.T) {
	def := TableDef{
		Name:         "orders",
		PartitionKey: KeyDef{Name: "user", Kind: KindString},
		SortKey:      &KeyDef{Name: "placed", Kind: KindNumber},
	}

	key, err := def.extractKey(attr.Item{
		"user":   attr.String("alice"),
		"placed": attr.Num("17"),
		"total":  attr.Num("99"),
	})
	require.NoError(t, err)
	assert.True(t, key.Equal(attr.Item{"user": attr.String("alice"), "placed": attr.Num("17")}))

	_, err = def.extractKey(attr.Item{"user": attr.String("alice")})
	assert.ErrorContains(t, err, "missing sort key placed")

	_, err = def.extractKey(attr.Item{"user": attr.String("alice"), "placed": attr.String("17")})
	assert.ErrorContains(t, err, "placed must be of type N")
}
