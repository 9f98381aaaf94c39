package localddb

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/acksell/dynawire/attr"
)

type batchGetInput struct {
	RequestItems map[string]batchGetEntry `json:"RequestItems"`
}

type batchGetEntry struct {
	Keys                     []attr.Item       `json:"Keys"`
	ProjectionExpression     string            `json:"ProjectionExpression"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames"`
	ConsistentRead           bool              `json:"ConsistentRead"`
}

// batchGetOutput always reports empty UnprocessedKeys: the local store
// never runs out of capacity mid-batch.
type batchGetOutput struct {
	Responses       map[string][]attr.Item `json:"Responses"`
	UnprocessedKeys struct{}               `json:"UnprocessedKeys"`
}

func (s *Server) batchGetItem(in batchGetInput) (batchGetOutput, error) {
	if len(in.RequestItems) == 0 {
		return batchGetOutput{}, validationErr("batch request names no tables")
	}
	total := 0
	for table, entry := range in.RequestItems {
		if len(entry.Keys) == 0 {
			return batchGetOutput{}, validationErr("table %s names no keys", table)
		}
		total += len(entry.Keys)
	}
	if total > 100 {
		return batchGetOutput{}, validationErr("too many items requested for the BatchGetItem call")
	}

	out := batchGetOutput{Responses: map[string][]attr.Item{}}
	err := s.db.View(func(txn *badger.Txn) error {
		for table, entry := range in.RequestItems {
			def, werr := s.getTable(table)
			if werr != nil {
				return werr
			}
			for _, rawKey := range entry.Keys {
				k, werr := exactKey(def, rawKey)
				if werr != nil {
					return werr
				}
				dbKey, err := itemKey(def, k)
				if err != nil {
					return validationErr("%s", err)
				}
				item, err := readItem(txn, dbKey)
				if err != nil {
					return err
				}
				if item == nil {
					continue
				}
				if entry.ProjectionExpression != "" {
					item, werr = applyProjection(item, entry.ProjectionExpression, entry.ExpressionAttributeNames)
					if werr != nil {
						return werr
					}
				}
				out.Responses[table] = append(out.Responses[table], item)
			}
		}
		return nil
	})
	if err != nil {
		return batchGetOutput{}, err
	}
	return out, nil
}

type batchWriteInput struct {
	RequestItems map[string][]batchWriteEntry `json:"RequestItems"`
}

type batchWriteEntry struct {
	PutRequest    *batchPut    `json:"PutRequest"`
	DeleteRequest *batchDelete `json:"DeleteRequest"`
}

type batchPut struct {
	Item attr.Item `json:"Item"`
}

type batchDelete struct {
	Key attr.Item `json:"Key"`
}

type batchWriteOutput struct {
	UnprocessedItems struct{} `json:"UnprocessedItems"`
}

// batchWriteItem applies every put and delete in one store transaction.
// DynamoDB makes no atomicity promise for batches; being atomic anyway is
// not something callers can observe through the protocol.
func (s *Server) batchWriteItem(in batchWriteInput) (batchWriteOutput, error) {
	if len(in.RequestItems) == 0 {
		return batchWriteOutput{}, validationErr("batch request names no tables")
	}
	total := 0
	for table, entries := range in.RequestItems {
		if len(entries) == 0 {
			return batchWriteOutput{}, validationErr("table %s names no writes", table)
		}
		total += len(entries)
	}
	if total > 25 {
		return batchWriteOutput{}, validationErr("too many items requested for the BatchWriteItem call")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for table, entries := range in.RequestItems {
			def, werr := s.getTable(table)
			if werr != nil {
				return werr
			}
			for _, entry := range entries {
				switch {
				case entry.PutRequest != nil && entry.DeleteRequest == nil:
					if err := putInTxn(txn, def, entry.PutRequest.Item); err != nil {
						return err
					}
				case entry.DeleteRequest != nil && entry.PutRequest == nil:
					k, werr := exactKey(def, entry.DeleteRequest.Key)
					if werr != nil {
						return werr
					}
					dbKey, err := itemKey(def, k)
					if err != nil {
						return validationErr("%s", err)
					}
					if err := txn.Delete(dbKey); err != nil {
						return err
					}
				default:
					return validationErr("each batch write entry takes exactly one of PutRequest and DeleteRequest")
				}
			}
		}
		return nil
	})
	if err != nil {
		return batchWriteOutput{}, err
	}
	return batchWriteOutput{}, nil
}

func putInTxn(txn *badger.Txn, def TableDef, item attr.Item) error {
	key, err := def.extractKey(item)
	if err != nil {
		return validationErr("%s", err)
	}
	dbKey, err := itemKey(def, key)
	if err != nil {
		return validationErr("%s", err)
	}
	data, err := marshalItem(item)
	if err != nil {
		return err
	}
	return txn.Set(dbKey, data)
}
