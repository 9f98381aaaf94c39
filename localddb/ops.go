package localddb

import (
	"maps"
	"slices"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/acksell/dynawire/attr"
)

type getItemInput struct {
	TableName                string            `json:"TableName"`
	Key                      attr.Item         `json:"Key"`
	ProjectionExpression     string            `json:"ProjectionExpression"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames"`
	ConsistentRead           bool              `json:"ConsistentRead"`
}

type getItemOutput struct {
	Item attr.Item `json:"Item,omitempty"`
}

// getItem looks up one item. ConsistentRead is accepted and ignored; a
// single-node store has no eventually consistent reads to offer.
func (s *Server) getItem(in getItemInput) (getItemOutput, error) {
	def, werr := s.getTable(in.TableName)
	if werr != nil {
		return getItemOutput{}, werr
	}
	k, werr := exactKey(def, in.Key)
	if werr != nil {
		return getItemOutput{}, werr
	}
	dbKey, err := itemKey(def, k)
	if err != nil {
		return getItemOutput{}, validationErr("%s", err)
	}

	var item attr.Item
	if err := s.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = readItem(txn, dbKey)
		return err
	}); err != nil {
		return getItemOutput{}, err
	}

	if item != nil && in.ProjectionExpression != "" {
		item, werr = applyProjection(item, in.ProjectionExpression, in.ExpressionAttributeNames)
		if werr != nil {
			return getItemOutput{}, werr
		}
	}
	return getItemOutput{Item: item}, nil
}

type putItemInput struct {
	TableName                 string                `json:"TableName"`
	Item                      attr.Item             `json:"Item"`
	ConditionExpression       string                `json:"ConditionExpression"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues"`
	ReturnValues              string                `json:"ReturnValues"`
}

type putItemOutput struct {
	Attributes attr.Item `json:"Attributes,omitempty"`
}

// putItem stores an item whole. The condition, when present, is evaluated
// against the stored item, or against nothing when the key is new, so
// attribute_not_exists works as a create guard.
func (s *Server) putItem(in putItemInput) (putItemOutput, error) {
	def, werr := s.getTable(in.TableName)
	if werr != nil {
		return putItemOutput{}, werr
	}
	if werr := checkReturnValues(in.ReturnValues, "ALL_OLD"); werr != nil {
		return putItemOutput{}, werr
	}
	key, err := def.extractKey(in.Item)
	if err != nil {
		return putItemOutput{}, validationErr("%s", err)
	}
	dbKey, err := itemKey(def, key)
	if err != nil {
		return putItemOutput{}, validationErr("%s", err)
	}
	data, err := marshalItem(in.Item)
	if err != nil {
		return putItemOutput{}, err
	}

	var old attr.Item
	err = s.db.Update(func(txn *badger.Txn) error {
		var err error
		old, err = readItem(txn, dbKey)
		if err != nil {
			return err
		}
		if in.ConditionExpression != "" {
			ok, werr := evalCondition(in.ConditionExpression, old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if werr != nil {
				return werr
			}
			if !ok {
				return conditionFailedErr()
			}
		}
		return txn.Set(dbKey, data)
	})
	if err != nil {
		return putItemOutput{}, err
	}

	out := putItemOutput{}
	if in.ReturnValues == "ALL_OLD" {
		out.Attributes = old
	}
	return out, nil
}

type deleteItemInput struct {
	TableName                 string                `json:"TableName"`
	Key                       attr.Item             `json:"Key"`
	ConditionExpression       string                `json:"ConditionExpression"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues"`
	ReturnValues              string                `json:"ReturnValues"`
}

type deleteItemOutput struct {
	Attributes attr.Item `json:"Attributes,omitempty"`
}

func (s *Server) deleteItem(in deleteItemInput) (deleteItemOutput, error) {
	def, werr := s.getTable(in.TableName)
	if werr != nil {
		return deleteItemOutput{}, werr
	}
	if werr := checkReturnValues(in.ReturnValues, "ALL_OLD"); werr != nil {
		return deleteItemOutput{}, werr
	}
	k, werr := exactKey(def, in.Key)
	if werr != nil {
		return deleteItemOutput{}, werr
	}
	dbKey, err := itemKey(def, k)
	if err != nil {
		return deleteItemOutput{}, validationErr("%s", err)
	}

	var old attr.Item
	err = s.db.Update(func(txn *badger.Txn) error {
		var err error
		old, err = readItem(txn, dbKey)
		if err != nil {
			return err
		}
		if in.ConditionExpression != "" {
			ok, werr := evalCondition(in.ConditionExpression, old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if werr != nil {
				return werr
			}
			if !ok {
				return conditionFailedErr()
			}
		}
		return txn.Delete(dbKey)
	})
	if err != nil {
		return deleteItemOutput{}, err
	}

	out := deleteItemOutput{}
	if in.ReturnValues == "ALL_OLD" {
		out.Attributes = old
	}
	return out, nil
}

type updateItemInput struct {
	TableName                 string                `json:"TableName"`
	Key                       attr.Item             `json:"Key"`
	UpdateExpression          string                `json:"UpdateExpression"`
	ConditionExpression       string                `json:"ConditionExpression"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues"`
	ReturnValues              string                `json:"ReturnValues"`
}

type updateItemOutput struct {
	Attributes attr.Item `json:"Attributes,omitempty"`
}

// updateItem applies an update expression. An update against a missing key
// creates the item from its key attributes, as DynamoDB does. The
// expression is parsed once, before the store transaction.
func (s *Server) updateItem(in updateItemInput) (updateItemOutput, error) {
	def, werr := s.getTable(in.TableName)
	if werr != nil {
		return updateItemOutput{}, werr
	}
	if werr := checkReturnValues(in.ReturnValues, "ALL_OLD", "ALL_NEW", "UPDATED_OLD", "UPDATED_NEW"); werr != nil {
		return updateItemOutput{}, werr
	}
	k, werr := exactKey(def, in.Key)
	if werr != nil {
		return updateItemOutput{}, werr
	}
	dbKey, err := itemKey(def, k)
	if err != nil {
		return updateItemOutput{}, validationErr("%s", err)
	}
	plan, werr := parseUpdate(in.UpdateExpression, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if werr != nil {
		return updateItemOutput{}, werr
	}
	roots := plan.roots()
	for _, root := range roots {
		if root == def.PartitionKey.Name || (def.SortKey != nil && root == def.SortKey.Name) {
			return updateItemOutput{}, validationErr("cannot update attribute %s, it is part of the key", root)
		}
	}

	var oldItem, newItem attr.Item
	err = s.db.Update(func(txn *badger.Txn) error {
		old, err := readItem(txn, dbKey)
		if err != nil {
			return err
		}
		oldItem = old
		if in.ConditionExpression != "" {
			ok, werr := evalCondition(in.ConditionExpression, old, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
			if werr != nil {
				return werr
			}
			if !ok {
				return conditionFailedErr()
			}
		}
		base := attr.Item{}
		if old != nil {
			base = maps.Clone(old)
		}
		maps.Copy(base, k)
		if werr := plan.apply(base); werr != nil {
			return werr
		}
		newItem = base
		data, err := marshalItem(base)
		if err != nil {
			return err
		}
		return txn.Set(dbKey, data)
	})
	if err != nil {
		return updateItemOutput{}, err
	}

	out := updateItemOutput{}
	switch in.ReturnValues {
	case "ALL_NEW":
		out.Attributes = newItem
	case "ALL_OLD":
		out.Attributes = oldItem
	case "UPDATED_NEW":
		out.Attributes = pickRoots(newItem, roots)
	case "UPDATED_OLD":
		out.Attributes = pickRoots(oldItem, roots)
	}
	return out, nil
}

// exactKey validates that key carries exactly the table's key attributes.
func exactKey(def TableDef, key attr.Item) (attr.Item, *wireError) {
	want := 1
	if def.SortKey != nil {
		want = 2
	}
	if len(key) != want {
		return nil, validationErr("the provided key does not match the schema of table %s", def.Name)
	}
	k, err := def.extractKey(key)
	if err != nil {
		return nil, validationErr("%s", err)
	}
	return k, nil
}

func checkReturnValues(got string, allowed ...string) *wireError {
	if got == "" || got == "NONE" || slices.Contains(allowed, got) {
		return nil
	}
	return validationErr("unsupported ReturnValues %q", got)
}

// pickRoots cuts an item down to the listed top-level attributes.
func pickRoots(item attr.Item, roots []string) attr.Item {
	if item == nil {
		return nil
	}
	out := attr.Item{}
	for _, root := range roots {
		if v, ok := item[root]; ok {
			out[root] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
