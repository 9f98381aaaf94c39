package dynawire

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
	"github.com/acksell/dynawire/transport"
)

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("pages lazily and caps the total", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{
				"Items": [{"id":{"S":"alice"},"ts":{"N":"1"}}, {"id":{"S":"alice"},"ts":{"N":"2"}}],
				"Count": 2,
				"LastEvaluatedKey": {"id":{"S":"alice"},"ts":{"N":"2"}}
			}`)).
			Respond(200, []byte(`{
				"Items": [{"id":{"S":"alice"},"ts":{"N":"3"}}],
				"Count": 1,
				"LastEvaluatedKey": {"id":{"S":"alice"},"ts":{"N":"3"}}
			}`))
		c := newTestClient(script)

		pages := c.Query("events", expr.HashKey("id", "alice"), WithLimit(3))
		items, err := pages.All(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)

		calls := script.Calls()
		require.Len(t, calls, 2)
		assert.JSONEq(t, `{
			"TableName": "events",
			"KeyConditionExpression": "#n0 = :v0",
			"ExpressionAttributeNames": {"#n0": "id"},
			"ExpressionAttributeValues": {":v0": {"S": "alice"}},
			"Limit": 3
		}`, string(calls[0].Body))
		assert.JSONEq(t, `{
			"TableName": "events",
			"KeyConditionExpression": "#n0 = :v0",
			"ExpressionAttributeNames": {"#n0": "id"},
			"ExpressionAttributeValues": {":v0": {"S": "alice"}},
			"Limit": 1,
			"ExclusiveStartKey": {"id":{"S":"alice"},"ts":{"N":"2"}}
		}`, string(calls[1].Body))

		assert.False(t, pages.More())
		_, err = pages.NextPage(ctx)
		assert.Error(t, err)
	})

	t.Run("stops when the server stops handing out keys", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{"Items": [{"id":{"S":"alice"},"ts":{"N":"1"}}], "Count": 1}`))
		c := newTestClient(script)

		items, err := c.Query("events", expr.HashKey("id", "alice")).All(ctx)
		require.NoError(t, err)
		assert.Len(t, items, 1)
		assert.Len(t, script.Calls(), 1)
	})

	t.Run("breaking out of the iteration leaves later pages unfetched", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{
				"Items": [{"id":{"S":"alice"},"ts":{"N":"1"}}],
				"Count": 1,
				"LastEvaluatedKey": {"id":{"S":"alice"},"ts":{"N":"1"}}
			}`)).
			Respond(200, []byte(`{"Items": [], "Count": 0}`))
		c := newTestClient(script)

		pages := c.Query("events", expr.HashKey("id", "alice"))
		for range pages.Items(ctx) {
			break
		}
		assert.Len(t, script.Calls(), 1)
		assert.Equal(t, 1, script.Remaining())
	})

	t.Run("range condition, ordering, index and filter", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{"Items": [], "Count": 0}`))
		c := newTestClient(script)

		keyCond := expr.HashKey("id", "alice").And(expr.RangeKey("ts").Between(1, 5))
		_, err := c.Query("events", keyCond,
			Descending(),
			WithIndex("by-ts"),
			ConsistentRead(),
			WithFilter(expr.F("level").Gte(3))).All(ctx)
		require.NoError(t, err)

		require.Len(t, script.Calls(), 1)
		assert.JSONEq(t, `{
			"TableName": "events",
			"IndexName": "by-ts",
			"KeyConditionExpression": "#n0 = :v0 AND #n1 BETWEEN :v1 AND :v2",
			"FilterExpression": "#n2 >= :v3",
			"ExpressionAttributeNames": {"#n0": "id", "#n1": "ts", "#n2": "level"},
			"ExpressionAttributeValues": {
				":v0": {"S": "alice"},
				":v1": {"N": "1"},
				":v2": {"N": "5"},
				":v3": {"N": "3"}
			},
			"ConsistentRead": true,
			"ScanIndexForward": false
		}`, string(script.Calls()[0].Body))
	})

	t.Run("a query without a key condition fails fast", func(t *testing.T) {
		script := transport.NewScript()
		c := newTestClient(script)

		_, err := c.Query("events", expr.KeyCondition{}).All(ctx)
		require.ErrorContains(t, err, "key condition")
		assert.Empty(t, script.Calls())
	})
}

func TestScan(t *testing.T) {
	ctx := context.Background()

	t.Run("walks every page", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{
				"Items": [{"id":{"S":"a"}}, {"id":{"S":"b"}}],
				"Count": 2,
				"LastEvaluatedKey": {"id":{"S":"b"}}
			}`)).
			Respond(200, []byte(`{"Items": [{"id":{"S":"c"}}], "Count": 1}`))
		c := newTestClient(script)

		items, err := c.Scan("people").All(ctx)
		require.NoError(t, err)
		require.Len(t, items, 3)

		calls := script.Calls()
		require.Len(t, calls, 2)
		assert.JSONEq(t, `{"TableName": "people"}`, string(calls[0].Body))
		assert.JSONEq(t, `{
			"TableName": "people",
			"ExclusiveStartKey": {"id":{"S":"b"}}
		}`, string(calls[1].Body))
	})

	t.Run("filter and projection ride along", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{"Items": [], "Count": 0}`))
		c := newTestClient(script)

		_, err := c.Scan("people",
			WithFilter(expr.F("age").Gte(18)),
			WithProjection(expr.Project(expr.F("id")))).All(ctx)
		require.NoError(t, err)

		require.Len(t, script.Calls(), 1)
		assert.JSONEq(t, `{
			"TableName": "people",
			"FilterExpression": "#n0 >= :v0",
			"ProjectionExpression": "#n1",
			"ExpressionAttributeNames": {"#n0": "age", "#n1": "id"},
			"ExpressionAttributeValues": {":v0": {"N": "18"}}
		}`, string(script.Calls()[0].Body))
	})

	t.Run("resumes from a caller-provided start key", func(t *testing.T) {
		script := transport.NewScript().
			Respond(200, []byte(`{"Items": [], "Count": 0}`))
		c := newTestClient(script)

		_, err := c.Scan("people", WithStartKey(attr.Item{"id": attr.String("m")})).All(ctx)
		require.NoError(t, err)
		require.Len(t, script.Calls(), 1)
		assert.JSONEq(t, `{
			"TableName": "people",
			"ExclusiveStartKey": {"id":{"S":"m"}}
		}`, string(script.Calls()[0].Body))
	})
}

func TestCount(t *testing.T) {
	ctx := context.Background()

	script := transport.NewScript().
		Respond(200, []byte(`{"Count": 2, "ScannedCount": 4, "LastEvaluatedKey": {"id":{"S":"b"}}}`)).
		Respond(200, []byte(`{"Count": 3, "ScannedCount": 3}`))
	c := newTestClient(script)

	total, err := c.Count(ctx, "events", expr.HashKey("id", "alice"))
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	calls := script.Calls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Contains(t, string(call.Body), `"Select":"COUNT"`)
	}
}
