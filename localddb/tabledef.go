package localddb

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/acksell/dynawire/attr"
)

// KeyKind is the attribute type of a key attribute.
type KeyKind string

const (
	KindString KeyKind = "S"
	KindNumber KeyKind = "N"
	KindBinary KeyKind = "B"
)

func (k KeyKind) valid() bool {
	return k == KindString || k == KindNumber || k == KindBinary
}

// KeyDef names one key attribute and its type.
type KeyDef struct {
	Name string  `yaml:"name"`
	Kind KeyKind `yaml:"kind"`
}

// TableDef describes a table the server hosts: its name, partition key and
// optional sort key.
type TableDef struct {
	Name         string  `yaml:"name"`
	PartitionKey KeyDef  `yaml:"partitionKey"`
	SortKey      *KeyDef `yaml:"sortKey,omitempty"`
}

// ParseTables reads table definitions from a YAML document of the form:
//
//	tables:
//	  - name: people
//	    partitionKey: {name: id, kind: S}
//	    sortKey: {name: ts, kind: N}
func ParseTables(data []byte) ([]TableDef, error) {
	var doc struct {
		Tables []TableDef `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing table definitions: %w", err)
	}
	if len(doc.Tables) == 0 {
		return nil, errors.New("no tables defined")
	}
	for _, def := range doc.Tables {
		if err := def.validate(); err != nil {
			return nil, err
		}
	}
	return doc.Tables, nil
}

func (d TableDef) validate() error {
	if d.Name == "" {
		return errors.New("table needs a name")
	}
	if d.PartitionKey.Name == "" || !d.PartitionKey.Kind.valid() {
		return fmt.Errorf("table %s: partition key needs a name and a kind of S, N or B", d.Name)
	}
	if d.SortKey != nil && (d.SortKey.Name == "" || !d.SortKey.Kind.valid()) {
		return fmt.Errorf("table %s: sort key needs a name and a kind of S, N or B", d.Name)
	}
	return nil
}

// extractKey pulls the key attributes out of an item and checks their types
// against the table schema.
func (d TableDef) extractKey(item attr.Item) (attr.Item, error) {
	key := attr.Item{}
	pk, ok := item[d.PartitionKey.Name]
	if !ok {
		return nil, fmt.Errorf("missing partition key %s", d.PartitionKey.Name)
	}
	if kindOf(pk) != d.PartitionKey.Kind {
		return nil, fmt.Errorf("partition key %s must be of type %s", d.PartitionKey.Name, d.PartitionKey.Kind)
	}
	key[d.PartitionKey.Name] = pk

	if d.SortKey != nil {
		sk, ok := item[d.SortKey.Name]
		if !ok {
			return nil, fmt.Errorf("missing sort key %s", d.SortKey.Name)
		}
		if kindOf(sk) != d.SortKey.Kind {
			return nil, fmt.Errorf("sort key %s must be of type %s", d.SortKey.Name, d.SortKey.Kind)
		}
		key[d.SortKey.Name] = sk
	}
	return key, nil
}

func kindOf(v attr.Value) KeyKind {
	switch v.Tag() {
	case attr.TagS:
		return KindString
	case attr.TagN:
		return KindNumber
	case attr.TagB:
		return KindBinary
	}
	return ""
}

// keyAttributes cuts an item down to its key attributes, for
// LastEvaluatedKey construction.
func (d TableDef) keyAttributes(item attr.Item) attr.Item {
	out := attr.Item{}
	if v, ok := item[d.PartitionKey.Name]; ok {
		out[d.PartitionKey.Name] = v
	}
	if d.SortKey != nil {
		if v, ok := item[d.SortKey.Name]; ok {
			out[d.SortKey.Name] = v
		}
	}
	return out
}
