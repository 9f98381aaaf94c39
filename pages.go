package dynawire

import (
	"context"
	"errors"
	"iter"

	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
)

type queryRequest struct {
	TableName                 string                `json:"TableName"`
	IndexName                 string                `json:"IndexName,omitempty"`
	KeyConditionExpression    string                `json:"KeyConditionExpression,omitempty"`
	FilterExpression          string                `json:"FilterExpression,omitempty"`
	ProjectionExpression      string                `json:"ProjectionExpression,omitempty"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames,omitempty"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues,omitempty"`
	ConsistentRead            bool                  `json:"ConsistentRead,omitempty"`
	ScanIndexForward          *bool                 `json:"ScanIndexForward,omitempty"`
	Select                    string                `json:"Select,omitempty"`
	Limit                     int                   `json:"Limit,omitempty"`
	ExclusiveStartKey         attr.Item             `json:"ExclusiveStartKey,omitempty"`
}

type queryResponse struct {
	Items            []attr.Item `json:"Items"`
	Count            int         `json:"Count"`
	ScannedCount     int         `json:"ScannedCount"`
	LastEvaluatedKey attr.Item   `json:"LastEvaluatedKey"`
}

// Page is one server response of a Query or Scan. LastEvaluatedKey is nil
// on the final page.
type Page struct {
	Items            []attr.Item
	LastEvaluatedKey attr.Item
}

// Pages walks a Query or Scan lazily: nothing is fetched until the first
// page is asked for, and each page's LastEvaluatedKey feeds the next
// request. A Pages is consumed by iterating it; it cannot be restarted. Not
// safe for concurrent use.
type Pages struct {
	client  *Client
	action  string
	req     *queryRequest
	limit   int
	yielded int
	next    attr.Item
	done    bool
	err     error
}

var errNoMorePages = errors.New("no pages left")

// Query reads items whose key matches keyCond, in range key order. Honors
// WithFilter, WithProjection, WithIndex, WithLimit, WithStartKey,
// ConsistentRead and Descending.
func (c *Client) Query(table string, keyCond expr.KeyCondition, opts ...OpOption) *Pages {
	cfg := applyOptions(opts)
	req, err := buildQueryRequest(table, keyCond, cfg)
	return &Pages{client: c, action: "Query", req: req, limit: cfg.limit, next: cfg.startKey, err: err}
}

// Scan reads every item of the table. Honors WithFilter, WithProjection,
// WithIndex, WithLimit, WithStartKey and ConsistentRead.
func (c *Client) Scan(table string, opts ...OpOption) *Pages {
	cfg := applyOptions(opts)
	req, err := buildScanRequest(table, cfg)
	return &Pages{client: c, action: "Scan", req: req, limit: cfg.limit, next: cfg.startKey, err: err}
}

// Count runs a Select COUNT query and sums the per-page counts until the
// server stops handing out continuation keys.
func (c *Client) Count(ctx context.Context, table string, keyCond expr.KeyCondition, opts ...OpOption) (int, error) {
	cfg := applyOptions(opts)
	req, err := buildQueryRequest(table, keyCond, cfg)
	if err != nil {
		return 0, err
	}
	req.Select = "COUNT"
	total := 0
	for {
		var resp queryResponse
		if err := c.call(ctx, "Query", req, &resp); err != nil {
			return 0, err
		}
		total += resp.Count
		if resp.LastEvaluatedKey == nil {
			return total, nil
		}
		req.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

func buildQueryRequest(table string, keyCond expr.KeyCondition, cfg opConfig) (*queryRequest, error) {
	if keyCond.IsZero() {
		return nil, errors.New("query needs a key condition")
	}
	p := expr.NewParameters()
	condition, err := keyCond.Encode(p)
	if err != nil {
		return nil, err
	}
	req := &queryRequest{
		TableName:              table,
		IndexName:              cfg.index,
		KeyConditionExpression: condition,
		ConsistentRead:         cfg.consistent,
	}
	if cfg.descending {
		forward := false
		req.ScanIndexForward = &forward
	}
	if err := encodeFilterAndProjection(req, cfg, p); err != nil {
		return nil, err
	}
	return req, nil
}

func buildScanRequest(table string, cfg opConfig) (*queryRequest, error) {
	p := expr.NewParameters()
	req := &queryRequest{
		TableName:      table,
		IndexName:      cfg.index,
		ConsistentRead: cfg.consistent,
	}
	if err := encodeFilterAndProjection(req, cfg, p); err != nil {
		return nil, err
	}
	return req, nil
}

func encodeFilterAndProjection(req *queryRequest, cfg opConfig, p *expr.Parameters) error {
	if !cfg.filter.IsZero() {
		filter, err := cfg.filter.Encode(p)
		if err != nil {
			return err
		}
		req.FilterExpression = filter
	}
	if !cfg.projection.IsZero() {
		projection, err := cfg.projection.Encode(p)
		if err != nil {
			return err
		}
		req.ProjectionExpression = projection
	}
	req.ExpressionAttributeNames = p.Names()
	req.ExpressionAttributeValues = p.Values()
	return nil
}

// More reports whether another page may be fetched.
func (p *Pages) More() bool { return !p.done }

// NextPage fetches the next page. When a total limit is set, the request
// asks the server for no more than the items still owed.
func (p *Pages) NextPage(ctx context.Context) (Page, error) {
	if p.err != nil {
		p.done = true
		return Page{}, p.err
	}
	if p.done {
		return Page{}, errNoMorePages
	}
	if p.limit > 0 {
		p.req.Limit = p.limit - p.yielded
	}
	p.req.ExclusiveStartKey = p.next
	var resp queryResponse
	if err := p.client.call(ctx, p.action, p.req, &resp); err != nil {
		p.done = true
		p.err = err
		return Page{}, err
	}
	p.yielded += len(resp.Items)
	p.next = resp.LastEvaluatedKey
	if p.next == nil || (p.limit > 0 && p.yielded >= p.limit) {
		p.done = true
	}
	return Page{Items: resp.Items, LastEvaluatedKey: resp.LastEvaluatedKey}, nil
}

// Items iterates the remaining items one by one, fetching pages as needed.
// A failed fetch yields the error as the final element.
func (p *Pages) Items(ctx context.Context) iter.Seq2[attr.Item, error] {
	return func(yield func(attr.Item, error) bool) {
		for p.More() {
			page, err := p.NextPage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// All collects the remaining items into a slice.
func (p *Pages) All(ctx context.Context) ([]attr.Item, error) {
	var items []attr.Item
	for item, err := range p.Items(ctx) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
