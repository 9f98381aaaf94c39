package dynawire

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
	"github.com/acksell/dynawire/transport"
)

func TestTransactWriteItems(t *testing.T) {
	ctx := context.Background()

	t.Run("builds all four action kinds", func(t *testing.T) {
		script := transport.NewScript().Respond(200, []byte(`{}`))
		c := newTestClient(script)

		err := c.TransactWriteItems(ctx, []TransactItem{
			TransactPut("people", attr.Item{"id": attr.String("alice"), "age": attr.Int(39)},
				WithCondition(expr.F("id").NotExists())),
			TransactCheck("people", attr.Item{"id": attr.String("bob")}, expr.F("age").Gte(21)),
			TransactDelete("people", attr.Item{"id": attr.String("carol")}),
			TransactUpdate("people", attr.Item{"id": attr.String("dave")}, expr.F("age").Change(1)),
		}, "tok-1")
		require.NoError(t, err)

		require.Len(t, script.Calls(), 1)
		assert.JSONEq(t, `{
			"TransactItems": [
				{"Put": {
					"TableName": "people",
					"Item": {"id": {"S": "alice"}, "age": {"N": "39"}},
					"ConditionExpression": "attribute_not_exists(#n0)",
					"ExpressionAttributeNames": {"#n0": "id"}
				}},
				{"ConditionCheck": {
					"TableName": "people",
					"Key": {"id": {"S": "bob"}},
					"ConditionExpression": "#n0 >= :v0",
					"ExpressionAttributeNames": {"#n0": "age"},
					"ExpressionAttributeValues": {":v0": {"N": "21"}}
				}},
				{"Delete": {
					"TableName": "people",
					"Key": {"id": {"S": "carol"}}
				}},
				{"Update": {
					"TableName": "people",
					"Key": {"id": {"S": "dave"}},
					"UpdateExpression": "SET #n0 = #n0 + :v0",
					"ExpressionAttributeNames": {"#n0": "age"},
					"ExpressionAttributeValues": {":v0": {"N": "1"}}
				}}
			],
			"ClientRequestToken": "tok-1"
		}`, string(script.Calls()[0].Body))
	})

	t.Run("generates a request token when none is given", func(t *testing.T) {
		script := transport.NewScript().Respond(200, []byte(`{}`))
		c := newTestClient(script)

		err := c.TransactWriteItems(ctx, []TransactItem{
			TransactDelete("people", aliceKey),
		}, "")
		require.NoError(t, err)

		var sent struct {
			ClientRequestToken string
		}
		require.NoError(t, json.Unmarshal(script.Calls()[0].Body, &sent))
		_, err = uuid.Parse(sent.ClientRequestToken)
		assert.NoError(t, err)
	})

	t.Run("cancellation reasons are surfaced in action order", func(t *testing.T) {
		script := transport.NewScript().Respond(400, []byte(`{
			"__type": "com.amazonaws.dynamodb.v20120810#TransactionCanceledException",
			"message": "Transaction cancelled, please refer cancellation reasons for specific reasons",
			"CancellationReasons": [
				{"Code": "ConditionalCheckFailed", "Message": "The conditional request failed"},
				{"Code": "None"}
			]
		}`))
		c := newTestClient(script)

		err := c.TransactWriteItems(ctx, []TransactItem{
			TransactPut("people", attr.Item{"id": attr.String("alice")},
				WithCondition(expr.F("id").NotExists())),
			TransactDelete("people", attr.Item{"id": attr.String("bob")}),
		}, "tok-1")
		require.ErrorIs(t, err, ErrTransactionCanceled)
		require.ErrorIs(t, err, ErrConditionalCheckFailed)

		var canceled *TransactionCanceled
		require.ErrorAs(t, err, &canceled)
		require.Len(t, canceled.Reasons, 2)
		assert.Equal(t, "ConditionalCheckFailed", canceled.Reasons[0].Code)
		assert.Equal(t, "None", canceled.Reasons[1].Code)
	})

	t.Run("an empty update fails before the network", func(t *testing.T) {
		script := transport.NewScript()
		c := newTestClient(script)

		err := c.TransactWriteItems(ctx, []TransactItem{
			TransactUpdate("people", aliceKey, expr.Update{}),
		}, "tok-1")
		require.ErrorIs(t, err, ErrEmptyUpdate)
		assert.Empty(t, script.Calls())
	})

	t.Run("a check without a condition fails fast", func(t *testing.T) {
		script := transport.NewScript()
		c := newTestClient(script)

		err := c.TransactWriteItems(ctx, []TransactItem{
			TransactCheck("people", aliceKey, expr.Condition{}),
		}, "tok-1")
		require.ErrorContains(t, err, "condition")
		assert.Empty(t, script.Calls())
	})

	t.Run("no actions is a no-op", func(t *testing.T) {
		script := transport.NewScript()
		c := newTestClient(script)

		require.NoError(t, c.TransactWriteItems(ctx, nil, ""))
		assert.Empty(t, script.Calls())
	})
}

func TestTransactGetItems(t *testing.T) {
	ctx := context.Background()

	t.Run("reads come back in request order, nil for missing", func(t *testing.T) {
		script := transport.NewScript().Respond(200, []byte(`{
			"Responses": [
				{"Item": {"id": {"S": "alice"}, "age": {"N": "39"}}},
				{}
			]
		}`))
		c := newTestClient(script)

		items, err := c.TransactGetItems(ctx, []TransactGet{
			{Table: "people", Key: attr.Item{"id": attr.String("alice")}},
			{Table: "orders", Key: attr.Item{"id": attr.String("o-1")}, Projection: expr.Project(expr.F("total"))},
		})
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.True(t, items[0].Equal(attr.Item{"id": attr.String("alice"), "age": attr.Num("39")}))
		assert.Nil(t, items[1])

		require.Len(t, script.Calls(), 1)
		assert.JSONEq(t, `{
			"TransactItems": [
				{"Get": {
					"TableName": "people",
					"Key": {"id": {"S": "alice"}}
				}},
				{"Get": {
					"TableName": "orders",
					"Key": {"id": {"S": "o-1"}},
					"ProjectionExpression": "#n0",
					"ExpressionAttributeNames": {"#n0": "total"}
				}}
			]
		}`, string(script.Calls()[0].Body))
	})

	t.Run("nothing to read is a no-op", func(t *testing.T) {
		script := transport.NewScript()
		c := newTestClient(script)

		items, err := c.TransactGetItems(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, items)
		assert.Empty(t, script.Calls())
	})
}
