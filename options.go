package dynawire

import (
	"github.com/acksell/dynawire/attr"
	"github.com/acksell/dynawire/expr"
)

// ReturnValues controls which attribute snapshot a write operation sends
// back.
type ReturnValues string

const (
	ReturnNone       ReturnValues = "NONE"
	ReturnAllOld     ReturnValues = "ALL_OLD"
	ReturnUpdatedOld ReturnValues = "UPDATED_OLD"
	ReturnAllNew     ReturnValues = "ALL_NEW"
	ReturnUpdatedNew ReturnValues = "UPDATED_NEW"
)

// OpOption tunes a single operation. Every option documents which
// operations honor it; the rest ignore it.
type OpOption func(*opConfig)

type opConfig struct {
	consistent   bool
	projection   expr.Projection
	condition    expr.Condition
	filter       expr.Condition
	returnValues ReturnValues
	index        string
	limit        int
	startKey     attr.Item
	descending   bool
}

func applyOptions(opts []OpOption) opConfig {
	var cfg opConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ConsistentRead makes GetItem, Query and Scan strongly consistent.
func ConsistentRead() OpOption {
	return func(cfg *opConfig) { cfg.consistent = true }
}

// WithProjection limits which attributes GetItem, Query and Scan return.
func WithProjection(projection expr.Projection) OpOption {
	return func(cfg *opConfig) { cfg.projection = projection }
}

// WithCondition guards PutItem, DeleteItem and UpdateItem (and the
// transactional actions) with a condition expression.
func WithCondition(condition expr.Condition) OpOption {
	return func(cfg *opConfig) { cfg.condition = condition }
}

// WithReturnValues selects the attribute snapshot PutItem, DeleteItem and
// UpdateItem send back. The zero value means NONE.
func WithReturnValues(rv ReturnValues) OpOption {
	return func(cfg *opConfig) { cfg.returnValues = rv }
}

// WithFilter adds a server-side post-read filter to Query and Scan.
// Filtered-out items still consume read capacity.
func WithFilter(filter expr.Condition) OpOption {
	return func(cfg *opConfig) { cfg.filter = filter }
}

// WithIndex runs Query or Scan against a secondary index.
func WithIndex(name string) OpOption {
	return func(cfg *opConfig) { cfg.index = name }
}

// WithLimit caps the total number of items a Query or Scan yields across
// all pages.
func WithLimit(n int) OpOption {
	return func(cfg *opConfig) { cfg.limit = n }
}

// WithStartKey resumes a Query or Scan from a LastEvaluatedKey of an
// earlier run.
func WithStartKey(key attr.Item) OpOption {
	return func(cfg *opConfig) { cfg.startKey = key }
}

// Descending reverses Query's traversal of the range key.
func Descending() OpOption {
	return func(cfg *opConfig) { cfg.descending = true }
}
