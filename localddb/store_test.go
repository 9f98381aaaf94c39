package localddb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/dynawire/attr"
)

var (
	peopleTable = TableDef{
		Name:         "people",
		PartitionKey: KeyDef{Name: "id", Kind: KindString},
	}
	ordersTable = TableDef{
		Name:         "orders",
		PartitionKey: KeyDef{Name: "user", Kind: KindString},
		SortKey:      &KeyDef{Name: "placed", Kind: KindNumber},
	}
	eventsTable = TableDef{
		Name:         "events",
		PartitionKey: KeyDef{Name: "day", Kind: KindString},
		SortKey:      &KeyDef{Name: "id", Kind: KindString},
	}
)

func newTestServer(t *testing.T, defs ...TableDef) *Server {
	t.Helper()
	s, err := New(Options{}, defs...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func putOrder(t *testing.T, s *Server, user string, placed attr.Number, status string) {
	t.Helper()
	_, err := s.putItem(putItemInput{TableName: "orders", Item: attr.Item{
		"user":   attr.String(user),
		"placed": attr.Num(placed),
		"status": attr.String(status),
	}})
	require.NoError(t, err)
}

func placedValues(t *testing.T, items []attr.Item) []string {
	t.Helper()
	var out []string
	for _, item := range items {
		n, ok := item["placed"].AsNumber()
		require.True(t, ok)
		out = append(out, string(n))
	}
	return out
}

func TestPutGetDelete(t *testing.T) {
	s := newTestServer(t, peopleTable)
	alice := attr.Item{"id": attr.String("alice"), "age": attr.Num("39")}

	_, err := s.putItem(putItemInput{TableName: "people", Item: alice})
	require.NoError(t, err)

	t.Run("reads the item back", func(t *testing.T) {
		out, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("alice")}})
		require.NoError(t, err)
		assert.True(t, out.Item.Equal(alice))
	})

	t.Run("a miss returns no item", func(t *testing.T) {
		out, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("nobody")}})
		require.NoError(t, err)
		assert.Nil(t, out.Item)
	})

	t.Run("projection narrows the item", func(t *testing.T) {
		out, err := s.getItem(getItemInput{
			TableName:                "people",
			Key:                      attr.Item{"id": attr.String("alice")},
			ProjectionExpression:     "#n0",
			ExpressionAttributeNames: map[string]string{"#n0": "age"},
		})
		require.NoError(t, err)
		assert.True(t, out.Item.Equal(attr.Item{"age": attr.Num("39")}))
	})

	t.Run("create guard refuses an existing key", func(t *testing.T) {
		_, err := s.putItem(putItemInput{
			TableName:                "people",
			Item:                     attr.Item{"id": attr.String("alice")},
			ConditionExpression:      "attribute_not_exists(#n0)",
			ExpressionAttributeNames: map[string]string{"#n0": "id"},
		})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ConditionalCheckFailedException", werr.name)
	})

	t.Run("create guard lets a new key through", func(t *testing.T) {
		_, err := s.putItem(putItemInput{
			TableName:                "people",
			Item:                     attr.Item{"id": attr.String("bob")},
			ConditionExpression:      "attribute_not_exists(#n0)",
			ExpressionAttributeNames: map[string]string{"#n0": "id"},
		})
		require.NoError(t, err)
	})

	t.Run("delete returns the old item on request", func(t *testing.T) {
		out, err := s.deleteItem(deleteItemInput{
			TableName:    "people",
			Key:          attr.Item{"id": attr.String("alice")},
			ReturnValues: "ALL_OLD",
		})
		require.NoError(t, err)
		assert.True(t, out.Attributes.Equal(alice))

		got, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("alice")}})
		require.NoError(t, err)
		assert.Nil(t, got.Item)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := s.getItem(getItemInput{TableName: "ghosts", Key: attr.Item{"id": attr.String("x")}})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ResourceNotFoundException", werr.name)
	})

	t.Run("wrong key shape", func(t *testing.T) {
		_, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{
			"id":    attr.String("alice"),
			"extra": attr.String("nope"),
		}})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ValidationException", werr.name)
	})
}

func TestUpdateItem(t *testing.T) {
	s := newTestServer(t, peopleTable)
	key := attr.Item{"id": attr.String("alice")}
	seed := func() {
		_, err := s.putItem(putItemInput{TableName: "people", Item: attr.Item{
			"id": attr.String("alice"), "age": attr.Num("39"),
		}})
		require.NoError(t, err)
	}

	t.Run("applies arithmetic and returns the new item", func(t *testing.T) {
		seed()
		out, err := s.updateItem(updateItemInput{
			TableName:                 "people",
			Key:                       key,
			UpdateExpression:          "SET #n0 = #n0 + :v0",
			ExpressionAttributeNames:  map[string]string{"#n0": "age"},
			ExpressionAttributeValues: map[string]attr.Value{":v0": attr.Num("1")},
			ReturnValues:              "ALL_NEW",
		})
		require.NoError(t, err)
		assert.True(t, out.Attributes.Equal(attr.Item{"id": attr.String("alice"), "age": attr.Num("40")}))
	})

	t.Run("updated_old reports just the touched attributes", func(t *testing.T) {
		seed()
		out, err := s.updateItem(updateItemInput{
			TableName:                 "people",
			Key:                       key,
			UpdateExpression:          "SET #n0 = :v0",
			ExpressionAttributeNames:  map[string]string{"#n0": "age"},
			ExpressionAttributeValues: map[string]attr.Value{":v0": attr.Num("50")},
			ReturnValues:              "UPDATED_OLD",
		})
		require.NoError(t, err)
		assert.True(t, out.Attributes.Equal(attr.Item{"age": attr.Num("39")}))
	})

	t.Run("a missing key is created from its key attributes", func(t *testing.T) {
		out, err := s.updateItem(updateItemInput{
			TableName:                 "people",
			Key:                       attr.Item{"id": attr.String("carol")},
			UpdateExpression:          "SET #n0 = :v0",
			ExpressionAttributeNames:  map[string]string{"#n0": "age"},
			ExpressionAttributeValues: map[string]attr.Value{":v0": attr.Num("1")},
			ReturnValues:              "ALL_NEW",
		})
		require.NoError(t, err)
		assert.True(t, out.Attributes.Equal(attr.Item{"id": attr.String("carol"), "age": attr.Num("1")}))
	})

	t.Run("a failed condition leaves the item alone", func(t *testing.T) {
		seed()
		_, err := s.updateItem(updateItemInput{
			TableName:                 "people",
			Key:                       key,
			UpdateExpression:          "SET #n0 = :v0",
			ConditionExpression:       "#n0 = :v1",
			ExpressionAttributeNames:  map[string]string{"#n0": "age"},
			ExpressionAttributeValues: map[string]attr.Value{":v0": attr.Num("0"), ":v1": attr.Num("1")},
		})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ConditionalCheckFailedException", werr.name)

		got, err := s.getItem(getItemInput{TableName: "people", Key: key})
		require.NoError(t, err)
		assert.True(t, got.Item.Equal(attr.Item{"id": attr.String("alice"), "age": attr.Num("39")}))
	})

	t.Run("key attributes are off limits", func(t *testing.T) {
		_, err := s.updateItem(updateItemInput{
			TableName:                 "people",
			Key:                       key,
			UpdateExpression:          "SET #n0 = :v0",
			ExpressionAttributeNames:  map[string]string{"#n0": "id"},
			ExpressionAttributeValues: map[string]attr.Value{":v0": attr.String("eve")},
		})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ValidationException", werr.name)
		assert.Contains(t, werr.message, "part of the key")
	})
}

func seedOrders(t *testing.T, s *Server) {
	t.Helper()
	putOrder(t, s, "alice", "1", "open")
	putOrder(t, s, "alice", "2", "done")
	putOrder(t, s, "alice", "3", "open")
	putOrder(t, s, "alice", "4", "done")
	putOrder(t, s, "alice", "5", "open")
	putOrder(t, s, "bob", "1", "open")
}

func TestQuery(t *testing.T) {
	s := newTestServer(t, ordersTable)
	seedOrders(t, s)

	names := map[string]string{"#n0": "user", "#n1": "placed"}
	alice := map[string]attr.Value{":v0": attr.String("alice")}

	t.Run("whole partition in sort order", func(t *testing.T) {
		out, err := s.query(pageInput{
			TableName:                 "orders",
			KeyConditionExpression:    "#n0 = :v0",
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: alice,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, placedValues(t, out.Items))
		assert.Equal(t, 5, out.Count)
		assert.Equal(t, 5, out.ScannedCount)
		assert.Nil(t, out.LastEvaluatedKey)
	})

	t.Run("descending", func(t *testing.T) {
		desc := false
		out, err := s.query(pageInput{
			TableName:                 "orders",
			KeyConditionExpression:    "#n0 = :v0",
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: alice,
			ScanIndexForward:          &desc,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "4", "3", "2", "1"}, placedValues(t, out.Items))
	})

	t.Run("between", func(t *testing.T) {
		out, err := s.query(pageInput{
			TableName:                "orders",
			KeyConditionExpression:   "#n0 = :v0 AND #n1 BETWEEN :v1 AND :v2",
			ExpressionAttributeNames: names,
			ExpressionAttributeValues: map[string]attr.Value{
				":v0": attr.String("alice"), ":v1": attr.Num("2"), ":v2": attr.Num("4"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"2", "3", "4"}, placedValues(t, out.Items))
	})

	t.Run("lower bound", func(t *testing.T) {
		out, err := s.query(pageInput{
			TableName:                "orders",
			KeyConditionExpression:   "#n0 = :v0 AND #n1 >= :v1",
			ExpressionAttributeNames: names,
			ExpressionAttributeValues: map[string]attr.Value{
				":v0": attr.String("alice"), ":v1": attr.Num("3"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "4", "5"}, placedValues(t, out.Items))
	})

	t.Run("limit pages through the partition", func(t *testing.T) {
		req := pageInput{
			TableName:                 "orders",
			KeyConditionExpression:    "#n0 = :v0",
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: alice,
			Limit:                     2,
		}
		out, err := s.query(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, placedValues(t, out.Items))
		require.NotNil(t, out.LastEvaluatedKey)

		req.ExclusiveStartKey = out.LastEvaluatedKey
		out, err = s.query(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "4"}, placedValues(t, out.Items))
		require.NotNil(t, out.LastEvaluatedKey)

		req.ExclusiveStartKey = out.LastEvaluatedKey
		out, err = s.query(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"5"}, placedValues(t, out.Items))
		assert.Nil(t, out.LastEvaluatedKey)
	})

	t.Run("descending pagination skips the start key", func(t *testing.T) {
		desc := false
		req := pageInput{
			TableName:                 "orders",
			KeyConditionExpression:    "#n0 = :v0",
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: alice,
			ScanIndexForward:          &desc,
			Limit:                     2,
		}
		out, err := s.query(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"5", "4"}, placedValues(t, out.Items))
		require.NotNil(t, out.LastEvaluatedKey)

		req.ExclusiveStartKey = out.LastEvaluatedKey
		out, err = s.query(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"3", "2"}, placedValues(t, out.Items))
	})

	t.Run("filter runs after the key condition", func(t *testing.T) {
		out, err := s.query(pageInput{
			TableName:                "orders",
			KeyConditionExpression:   "#n0 = :v0",
			FilterExpression:         "#n2 = :v1",
			ExpressionAttributeNames: map[string]string{"#n0": "user", "#n2": "status"},
			ExpressionAttributeValues: map[string]attr.Value{
				":v0": attr.String("alice"), ":v1": attr.String("open"),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "3", "5"}, placedValues(t, out.Items))
		assert.Equal(t, 3, out.Count)
		assert.Equal(t, 5, out.ScannedCount)
	})

	t.Run("count omits the items", func(t *testing.T) {
		out, err := s.query(pageInput{
			TableName:                 "orders",
			KeyConditionExpression:    "#n0 = :v0",
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: alice,
			Select:                    "COUNT",
		})
		require.NoError(t, err)
		assert.Equal(t, 5, out.Count)
		assert.Nil(t, out.Items)
	})

	t.Run("wrong key name is refused", func(t *testing.T) {
		_, err := s.query(pageInput{
			TableName:                 "orders",
			KeyConditionExpression:    "#n0 = :v0",
			ExpressionAttributeNames:  map[string]string{"#n0": "status"},
			ExpressionAttributeValues: alice,
		})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ValidationException", werr.name)
		assert.Contains(t, werr.message, "missed key schema element")
	})
}

func TestQueryBeginsWith(t *testing.T) {
	s := newTestServer(t, eventsTable)
	for _, id := range []string{"a1", "a2", "b1"} {
		_, err := s.putItem(putItemInput{TableName: "events", Item: attr.Item{
			"day": attr.String("2026-08-26"),
			"id":  attr.String(id),
		}})
		require.NoError(t, err)
	}

	out, err := s.query(pageInput{
		TableName:                "events",
		KeyConditionExpression:   "#n0 = :v0 AND begins_with(#n1, :v1)",
		ExpressionAttributeNames: map[string]string{"#n0": "day", "#n1": "id"},
		ExpressionAttributeValues: map[string]attr.Value{
			":v0": attr.String("2026-08-26"), ":v1": attr.String("a"),
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 2)
	a1, _ := out.Items[0]["id"].AsString()
	a2, _ := out.Items[1]["id"].AsString()
	assert.Equal(t, []string{"a1", "a2"}, []string{a1, a2})
}

func TestScan(t *testing.T) {
	s := newTestServer(t, ordersTable)
	seedOrders(t, s)

	t.Run("walks the whole table", func(t *testing.T) {
		out, err := s.scan(pageInput{TableName: "orders"})
		require.NoError(t, err)
		assert.Len(t, out.Items, 6)
		assert.Equal(t, 6, out.Count)
	})

	t.Run("pages with a limit", func(t *testing.T) {
		req := pageInput{TableName: "orders", Limit: 4}
		out, err := s.scan(req)
		require.NoError(t, err)
		assert.Len(t, out.Items, 4)
		require.NotNil(t, out.LastEvaluatedKey)

		req.ExclusiveStartKey = out.LastEvaluatedKey
		out, err = s.scan(req)
		require.NoError(t, err)
		assert.Len(t, out.Items, 2)
		assert.Nil(t, out.LastEvaluatedKey)
	})

	t.Run("filter", func(t *testing.T) {
		out, err := s.scan(pageInput{
			TableName:                 "orders",
			FilterExpression:          "#n0 = :v0",
			ExpressionAttributeNames:  map[string]string{"#n0": "status"},
			ExpressionAttributeValues: map[string]attr.Value{":v0": attr.String("done")},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Count)
		assert.Equal(t, 6, out.ScannedCount)
	})
}

func TestBatchOps(t *testing.T) {
	s := newTestServer(t, peopleTable)

	_, err := s.batchWriteItem(batchWriteInput{RequestItems: map[string][]batchWriteEntry{
		"people": {
			{PutRequest: &batchPut{Item: attr.Item{"id": attr.String("alice"), "age": attr.Num("39")}}},
			{PutRequest: &batchPut{Item: attr.Item{"id": attr.String("bob")}}},
		},
	}})
	require.NoError(t, err)

	out, err := s.batchGetItem(batchGetInput{RequestItems: map[string]batchGetEntry{
		"people": {Keys: []attr.Item{
			{"id": attr.String("alice")},
			{"id": attr.String("bob")},
			{"id": attr.String("nobody")},
		}},
	}})
	require.NoError(t, err)
	assert.Len(t, out.Responses["people"], 2)

	_, err = s.batchWriteItem(batchWriteInput{RequestItems: map[string][]batchWriteEntry{
		"people": {
			{DeleteRequest: &batchDelete{Key: attr.Item{"id": attr.String("bob")}}},
		},
	}})
	require.NoError(t, err)

	got, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("bob")}})
	require.NoError(t, err)
	assert.Nil(t, got.Item)
}

func TestTransactWrite(t *testing.T) {
	s := newTestServer(t, peopleTable)
	seedPerson := func(id string, age attr.Number) {
		_, err := s.putItem(putItemInput{TableName: "people", Item: attr.Item{
			"id": attr.String(id), "age": attr.Num(age),
		}})
		require.NoError(t, err)
	}

	t.Run("all actions apply together", func(t *testing.T) {
		seedPerson("bob", "30")
		seedPerson("dave", "60")

		_, err := s.transactWriteItems(transactWriteInput{TransactItems: []map[string]transactAction{
			{"Put": {TableName: "people", Item: attr.Item{"id": attr.String("carol")}}},
			{"Update": {
				TableName:                 "people",
				Key:                       attr.Item{"id": attr.String("bob")},
				UpdateExpression:          "SET #n0 = #n0 + :v0",
				ExpressionAttributeNames:  map[string]string{"#n0": "age"},
				ExpressionAttributeValues: map[string]attr.Value{":v0": attr.Num("1")},
			}},
			{"Delete": {TableName: "people", Key: attr.Item{"id": attr.String("dave")}}},
			{"ConditionCheck": {
				TableName:                "people",
				Key:                      attr.Item{"id": attr.String("bob")},
				ConditionExpression:      "attribute_exists(#n0)",
				ExpressionAttributeNames: map[string]string{"#n0": "id"},
			}},
		}})
		require.NoError(t, err)

		bob, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("bob")}})
		require.NoError(t, err)
		assert.True(t, bob.Item.Equal(attr.Item{"id": attr.String("bob"), "age": attr.Num("31")}))

		dave, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("dave")}})
		require.NoError(t, err)
		assert.Nil(t, dave.Item)
	})

	t.Run("one failed condition cancels everything", func(t *testing.T) {
		_, err := s.transactWriteItems(transactWriteInput{TransactItems: []map[string]transactAction{
			{"Put": {TableName: "people", Item: attr.Item{"id": attr.String("eve")}}},
			{"ConditionCheck": {
				TableName:                "people",
				Key:                      attr.Item{"id": attr.String("nobody")},
				ConditionExpression:      "attribute_exists(#n0)",
				ExpressionAttributeNames: map[string]string{"#n0": "id"},
			}},
		}})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "TransactionCanceledException", werr.name)
		require.Len(t, werr.reasons, 2)
		assert.Equal(t, "None", werr.reasons[0].Code)
		assert.Equal(t, "ConditionalCheckFailed", werr.reasons[1].Code)

		eve, err := s.getItem(getItemInput{TableName: "people", Key: attr.Item{"id": attr.String("eve")}})
		require.NoError(t, err)
		assert.Nil(t, eve.Item, "the put must not survive a canceled transaction")
	})

	t.Run("the same item cannot be written twice", func(t *testing.T) {
		_, err := s.transactWriteItems(transactWriteInput{TransactItems: []map[string]transactAction{
			{"Put": {TableName: "people", Item: attr.Item{"id": attr.String("x")}}},
			{"Delete": {TableName: "people", Key: attr.Item{"id": attr.String("x")}}},
		}})
		var werr *wireError
		require.ErrorAs(t, err, &werr)
		assert.Equal(t, "ValidationException", werr.name)
	})
}

func TestTransactGet(t *testing.T) {
	s := newTestServer(t, peopleTable)
	_, err := s.putItem(putItemInput{TableName: "people", Item: attr.Item{
		"id": attr.String("alice"), "age": attr.Num("39"),
	}})
	require.NoError(t, err)

	out, err := s.transactGetItems(transactGetInput{TransactItems: []map[string]transactAction{
		{"Get": {TableName: "people", Key: attr.Item{"id": attr.String("alice")}}},
		{"Get": {TableName: "people", Key: attr.Item{"id": attr.String("nobody")}}},
	}})
	require.NoError(t, err)
	require.Len(t, out.Responses, 2)
	assert.True(t, out.Responses[0].Item.Equal(attr.Item{"id": attr.String("alice"), "age": attr.Num("39")}))
	assert.Nil(t, out.Responses[1].Item)
}
