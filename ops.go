package dynawire

import (
	"context"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
)

type getItemRequest struct {
	TableName                string            `json:"TableName"`
	Key                      attr.Item         `json:"Key"`
	ProjectionExpression     string            `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames map[string]string `json:"ExpressionAttributeNames,omitempty"`
	ConsistentRead           bool              `json:"ConsistentRead,omitempty"`
}

// GetItem fetches the item stored under key. A missing item is reported as
// ErrItemNotFound. Honors ConsistentRead and WithProjection.
func (c *Client) GetItem(ctx context.Context, table string, key attr.Item, opts ...OpOption) (attr.Item, error) {
	cfg := applyOptions(opts)
	req := getItemRequest{TableName: table, Key: key, ConsistentRead: cfg.consistent}
	if !cfg.projection.IsZero() {
		p := expr.NewParameters()
		projection, err := cfg.projection.Encode(p)
		if err != nil {
			return nil, err
		}
		req.ProjectionExpression = projection
		req.ExpressionAttributeNames = p.Names()
	}
	var resp struct {
		Item attr.Item `json:"Item"`
	}
	if err := c.call(ctx, "GetItem", req, &resp); err != nil {
		return nil, err
	}
	if resp.Item == nil {
		return nil, ErrItemNotFound
	}
	return resp.Item, nil
}

type putItemRequest struct {
	TableName                 string                `json:"TableName"`
	Item                      attr.Item             `json:"Item"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              ReturnValues          `json:"ReturnValues,omitempty"`
}

// PutItem stores item, replacing whatever lives under its key. Empty
// strings and binaries nested inside the item are pruned first; an item
// with nothing left to store fails with attr.ErrEmptyItem before any
// network traffic. Honors WithCondition and WithReturnValues; the previous
// attributes come back under ReturnAllOld, otherwise nil.
func (c *Client) PutItem(ctx context.Context, table string, item attr.Item, opts ...OpOption) (attr.Item, error) {
	cfg := applyOptions(opts)
	cleaned, err := item.Clean()
	if err != nil {
		return nil, err
	}
	req := putItemRequest{TableName: table, Item: cleaned, ReturnValues: cfg.returnValues}
	if !cfg.condition.IsZero() {
		p := expr.NewParameters()
		condition, err := cfg.condition.Encode(p)
		if err != nil {
			return nil, err
		}
		req.ConditionExpression = condition
		req.ExpressionAttributeNames = p.Names()
		req.ExpressionAttributeValues = p.Values()
	}
	var resp struct {
		Attributes attr.Item `json:"Attributes"`
	}
	if err := c.call(ctx, "PutItem", req, &resp); err != nil {
		return nil, err
	}
	return resp.Attributes, nil
}

type deleteItemRequest struct {
	TableName                 string                `json:"TableName"`
	Key                       attr.Item             `json:"Key"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              ReturnValues          `json:"ReturnValues,omitempty"`
}

// DeleteItem removes the item stored under key. Deleting an absent item is
// not an error. Honors WithCondition and WithReturnValues.
func (c *Client) DeleteItem(ctx context.Context, table string, key attr.Item, opts ...OpOption) (attr.Item, error) {
	cfg := applyOptions(opts)
	req := deleteItemRequest{TableName: table, Key: key, ReturnValues: cfg.returnValues}
	if !cfg.condition.IsZero() {
		p := expr.NewParameters()
		condition, err := cfg.condition.Encode(p)
		if err != nil {
			return nil, err
		}
		req.ConditionExpression = condition
		req.ExpressionAttributeNames = p.Names()
		req.ExpressionAttributeValues = p.Values()
	}
	var resp struct {
		Attributes attr.Item `json:"Attributes"`
	}
	if err := c.call(ctx, "DeleteItem", req, &resp); err != nil {
		return nil, err
	}
	return resp.Attributes, nil
}

type updateItemRequest struct {
	TableName                 string                `json:"TableName"`
	Key                       attr.Item             `json:"Key"`
	UpdateExpression          string                `json:"UpdateExpression"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ReturnValues              ReturnValues          `json:"ReturnValues,omitempty"`
}

// UpdateItem applies update to the item stored under key, creating it if
// absent. An update with no actions fails with ErrEmptyUpdate before any
// network traffic. Honors WithCondition and WithReturnValues.
func (c *Client) UpdateItem(ctx context.Context, table string, key attr.Item, update expr.Update, opts ...OpOption) (attr.Item, error) {
	cfg := applyOptions(opts)
	if update.IsZero() {
		return nil, ErrEmptyUpdate
	}
	p := expr.NewParameters()
	expression, err := update.Encode(p)
	if err != nil {
		return nil, err
	}
	req := updateItemRequest{
		TableName:        table,
		Key:              key,
		UpdateExpression: expression,
		ReturnValues:     cfg.returnValues,
	}
	if !cfg.condition.IsZero() {
		condition, err := cfg.condition.Encode(p)
		if err != nil {
			return nil, err
		}
		req.ConditionExpression = condition
	}
	req.ExpressionAttributeNames = p.Names()
	req.ExpressionAttributeValues = p.Values()
	var resp struct {
		Attributes attr.Item `json:"Attributes"`
	}
	if err := c.call(ctx, "UpdateItem", req, &resp); err != nil {
		return nil, err
	}
	return resp.Attributes, nil
}
