package dynawire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
)

// ErrUnprocessedItems reports that DynamoDB kept returning unprocessed
// batch entries for longer than the throttle policy's patience.
var ErrUnprocessedItems = errors.New("batch entries remain unprocessed")

// BatchGet names the keys to read from one table.
type BatchGet struct {
	Keys           []attr.Item
	Projection     expr.Projection
	ConsistentRead bool
}

// BatchWrite names the items to put and the keys to delete in one table.
type BatchWrite struct {
	Put    []attr.Item
	Delete []attr.Item
}

type batchRequest struct {
	RequestItems any `json:"RequestItems"`
}

type batchGetTable struct {
	Keys                     []attr.Item       `json:"Keys"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ConsistentRead           bool              `json:"ConsistentRead,omitempty"`
}

type batchGetResponse struct {
	Responses       map[string][]attr.Item     `json:"Responses"`
	UnprocessedKeys map[string]json.RawMessage `json:"UnprocessedKeys"`
}

// BatchGetItem reads up to 100 keys across tables in one round trip.
// Entries the server leaves unprocessed are resubmitted under the throttle
// policy; if the policy gives up first, the items fetched so far are
// returned together with a Throttled error wrapping ErrUnprocessedItems.
func (c *Client) BatchGetItem(ctx context.Context, tables map[string]BatchGet) (map[string][]attr.Item, error) {
	requestItems := map[string]batchGetTable{}
	for table, get := range tables {
		if len(get.Keys) == 0 {
			continue
		}
		entry := batchGetTable{Keys: get.Keys, ConsistentRead: get.ConsistentRead}
		if !get.Projection.IsZero() {
			p := expr.NewParameters()
			projection, err := get.Projection.Encode(p)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", table, err)
			}
			entry.ProjectionExpression = projection
			entry.ExpressionAttributeNames = p.Names()
		}
		requestItems[table] = entry
	}
	results := map[string][]attr.Item{}
	if len(requestItems) == 0 {
		return results, nil
	}

	request := any(requestItems)
	start := c.clock()
	schedule := c.throttle.Attempts()
	for attempt := 1; ; attempt++ {
		var resp batchGetResponse
		if err := c.call(ctx, "BatchGetItem", batchRequest{RequestItems: request}, &resp); err != nil {
			return nil, err
		}
		for table, items := range resp.Responses {
			results[table] = append(results[table], items...)
		}
		if len(resp.UnprocessedKeys) == 0 {
			return results, nil
		}
		request = resp.UnprocessedKeys
		delay, retry := schedule(attempt, c.clock().Sub(start))
		if !retry {
			return results, &Throttled{Err: ErrUnprocessedItems}
		}
		c.log.Debug().Int("attempt", attempt).Int("tables", len(resp.UnprocessedKeys)).Msg("resubmitting unprocessed batch keys")
		if err := sleep(ctx, delay); err != nil {
			return results, err
		}
	}
}

type writeRequest struct {
	PutRequest    *putRequest    `json:"PutRequest,omitempty"`
	DeleteRequest *deleteRequest `json:"DeleteRequest,omitempty"`
}

type putRequest struct {
	Item attr.Item `json:"Item"`
}

type deleteRequest struct {
	Key attr.Item `json:"Key"`
}

type batchWriteResponse struct {
	UnprocessedItems map[string]json.RawMessage `json:"UnprocessedItems"`
}

// BatchWriteItem puts and deletes up to 25 entries across tables in one
// round trip. Items are pruned like PutItem prunes them. Entries the server
// leaves unprocessed are resubmitted under the throttle policy; if the
// policy gives up first, a Throttled error wrapping ErrUnprocessedItems is
// returned.
func (c *Client) BatchWriteItem(ctx context.Context, tables map[string]BatchWrite) error {
	requestItems := map[string][]writeRequest{}
	for table, write := range tables {
		entries := make([]writeRequest, 0, len(write.Put)+len(write.Delete))
		for _, item := range write.Put {
			cleaned, err := item.Clean()
			if err != nil {
				return fmt.Errorf("table %s: %w", table, err)
			}
			entries = append(entries, writeRequest{PutRequest: &putRequest{Item: cleaned}})
		}
		for _, key := range write.Delete {
			entries = append(entries, writeRequest{DeleteRequest: &deleteRequest{Key: key}})
		}
		if len(entries) > 0 {
			requestItems[table] = entries
		}
	}
	if len(requestItems) == 0 {
		return nil
	}

	request := any(requestItems)
	start := c.clock()
	schedule := c.throttle.Attempts()
	for attempt := 1; ; attempt++ {
		var resp batchWriteResponse
		if err := c.call(ctx, "BatchWriteItem", batchRequest{RequestItems: request}, &resp); err != nil {
			return err
		}
		if len(resp.UnprocessedItems) == 0 {
			return nil
		}
		request = resp.UnprocessedItems
		delay, retry := schedule(attempt, c.clock().Sub(start))
		if !retry {
			return &Throttled{Err: ErrUnprocessedItems}
		}
		c.log.Debug().Int("attempt", attempt).Int("tables", len(resp.UnprocessedItems)).Msg("resubmitting unprocessed batch writes")
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
