package dynawire

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
)

// TransactItem is one action of a TransactWriteItems call. Build them with
// TransactPut, TransactCheck, TransactDelete and TransactUpdate.
type TransactItem struct {
	kind      string
	table     string
	item      attr.Item
	key       attr.Item
	update    expr.Update
	condition expr.Condition
}

// TransactPut stores an item as part of a transaction. Honors
// WithCondition.
func TransactPut(table string, item attr.Item, opts ...OpOption) TransactItem {
	cfg := applyOptions(opts)
	return TransactItem{kind: "Put", table: table, item: item, condition: cfg.condition}
}

// TransactCheck asserts a condition on an item without writing it. The
// whole transaction fails if the condition does not hold.
func TransactCheck(table string, key attr.Item, condition expr.Condition) TransactItem {
	return TransactItem{kind: "ConditionCheck", table: table, key: key, condition: condition}
}

// TransactDelete removes an item as part of a transaction. Honors
// WithCondition.
func TransactDelete(table string, key attr.Item, opts ...OpOption) TransactItem {
	cfg := applyOptions(opts)
	return TransactItem{kind: "Delete", table: table, key: key, condition: cfg.condition}
}

// TransactUpdate applies an update expression as part of a transaction.
// Honors WithCondition.
func TransactUpdate(table string, key attr.Item, update expr.Update, opts ...OpOption) TransactItem {
	cfg := applyOptions(opts)
	return TransactItem{kind: "Update", table: table, key: key, update: update, condition: cfg.condition}
}

type transactAction struct {
	TableName                 string                `json:"TableName"`
	Item                      attr.Item             `json:"Item,omitempty"`
	Key                       attr.Item             `json:"Key,omitempty"`
	UpdateExpression          string                `json:"UpdateExpression,omitempty"`
	ConditionExpression       string                `json:"ConditionExpression,omitempty"`
	ProjectionExpression      string                `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
}

func (t TransactItem) encode() (map[string]transactAction, error) {
	p := expr.NewParameters()
	action := transactAction{TableName: t.table}
	switch t.kind {
	case "Put":
		cleaned, err := t.item.Clean()
		if err != nil {
			return nil, err
		}
		action.Item = cleaned
	case "Update":
		if t.update.IsZero() {
			return nil, ErrEmptyUpdate
		}
		expression, err := t.update.Encode(p)
		if err != nil {
			return nil, err
		}
		action.Key = t.key
		action.UpdateExpression = expression
	case "ConditionCheck":
		if t.condition.IsZero() {
			return nil, errors.New("condition check needs a condition")
		}
		action.Key = t.key
	default:
		action.Key = t.key
	}
	if !t.condition.IsZero() {
		condition, err := t.condition.Encode(p)
		if err != nil {
			return nil, err
		}
		action.ConditionExpression = condition
	}
	action.ExpressionAttributeNames = p.Names()
	action.ExpressionAttributeValues = p.Values()
	return map[string]transactAction{t.kind: action}, nil
}

type transactWriteRequest struct {
	TransactItems      []map[string]transactAction `json:"TransactItems"`
	ClientRequestToken string                      `json:"ClientRequestToken"`
}

// TransactWriteItems applies up to 100 actions atomically. The token makes
// the call idempotent for ten minutes; pass "" to have one generated. A
// refused transaction comes back as *TransactionCanceled.
func (c *Client) TransactWriteItems(ctx context.Context, items []TransactItem, token string) error {
	if len(items) == 0 {
		return nil
	}
	if token == "" {
		token = uuid.NewString()
	}
	actions := make([]map[string]transactAction, 0, len(items))
	for _, item := range items {
		action, err := item.encode()
		if err != nil {
			return err
		}
		actions = append(actions, action)
	}
	req := transactWriteRequest{TransactItems: actions, ClientRequestToken: token}
	return c.call(ctx, "TransactWriteItems", req, nil)
}

// TransactGet names one item to read in a TransactGetItems call.
type TransactGet struct {
	Table      string
	Key        attr.Item
	Projection expr.Projection
}

type transactGetRequest struct {
	TransactItems []map[string]transactAction `json:"TransactItems"`
}

// TransactGetItems reads up to 100 items from a consistent snapshot. The
// result holds one entry per requested item, in request order, nil where
// the item does not exist.
func (c *Client) TransactGetItems(ctx context.Context, gets []TransactGet) ([]attr.Item, error) {
	if len(gets) == 0 {
		return nil, nil
	}
	actions := make([]map[string]transactAction, 0, len(gets))
	for _, get := range gets {
		action := transactAction{TableName: get.Table, Key: get.Key}
		if !get.Projection.IsZero() {
			p := expr.NewParameters()
			projection, err := get.Projection.Encode(p)
			if err != nil {
				return nil, err
			}
			action.ProjectionExpression = projection
			action.ExpressionAttributeNames = p.Names()
		}
		actions = append(actions, map[string]transactAction{"Get": action})
	}
	var resp struct {
		Responses []struct {
			Item attr.Item `json:"Item"`
		} `json:"Responses"`
	}
	if err := c.call(ctx, "TransactGetItems", transactGetRequest{TransactItems: actions}, &resp); err != nil {
		return nil, err
	}
	items := make([]attr.Item, len(resp.Responses))
	for i, r := range resp.Responses {
		items[i] = r.Item
	}
	return items, nil
}
