package localddb

import (
	"bytes"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/acksell/dynawire/attr"
)

// pageInput is the shared request shape of Query and Scan.
type pageInput struct {
	TableName                 string                `json:"TableName"`
	IndexName                 string                `json:"IndexName"`
	KeyConditionExpression    string                `json:"KeyConditionExpression"`
	FilterExpression          string                `json:"FilterExpression"`
	ProjectionExpression      string                `json:"ProjectionExpression"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues"`
	ConsistentRead            bool                  `json:"ConsistentRead"`
	ScanIndexForward          *bool                 `json:"ScanIndexForward"`
	Select                    string                `json:"Select"`
	Limit                     int                   `json:"Limit"`
	ExclusiveStartKey         attr.Item             `json:"ExclusiveStartKey"`
}

type pageOutput struct {
	Items            []attr.Item `json:"Items,omitempty"`
	Count            int         `json:"Count"`
	ScannedCount     int         `json:"ScannedCount"`
	LastEvaluatedKey attr.Item   `json:"LastEvaluatedKey,omitempty"`
}

// pageRead is a prepared Query or Scan, ready to walk the store.
type pageRead struct {
	def       TableDef
	prefix    []byte
	forward   bool
	start     []byte // exclusive start key, nil for the beginning
	limit     int
	cond      *keyCondition // nil for scans
	filter    string
	project   string
	names     map[string]string
	values    map[string]attr.Value
	countOnly bool
}

func (s *Server) query(in pageInput) (pageOutput, error) {
	def, werr := s.getTable(in.TableName)
	if werr != nil {
		return pageOutput{}, werr
	}
	if in.IndexName != "" {
		return pageOutput{}, validationErr("secondary indexes are not supported")
	}
	cond, werr := parseKeyCondition(in.KeyConditionExpression, def, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if werr != nil {
		return pageOutput{}, werr
	}
	prefix, err := partitionPrefix(def, cond.pk)
	if err != nil {
		return pageOutput{}, validationErr("%s", err)
	}

	r := pageRead{
		def:     def,
		prefix:  prefix,
		forward: in.ScanIndexForward == nil || *in.ScanIndexForward,
		cond:    cond,
	}
	if werr := r.fill(def, in); werr != nil {
		return pageOutput{}, werr
	}
	return s.readPage(r)
}

func (s *Server) scan(in pageInput) (pageOutput, error) {
	def, werr := s.getTable(in.TableName)
	if werr != nil {
		return pageOutput{}, werr
	}
	if in.IndexName != "" {
		return pageOutput{}, validationErr("secondary indexes are not supported")
	}
	if in.KeyConditionExpression != "" {
		return pageOutput{}, validationErr("scans take no key condition")
	}

	r := pageRead{
		def:     def,
		prefix:  tablePrefix(def.Name),
		forward: true,
	}
	if werr := r.fill(def, in); werr != nil {
		return pageOutput{}, werr
	}
	return s.readPage(r)
}

// fill applies the request parts Query and Scan share.
func (r *pageRead) fill(def TableDef, in pageInput) *wireError {
	switch in.Select {
	case "", "ALL_ATTRIBUTES", "SPECIFIC_ATTRIBUTES":
	case "COUNT":
		if in.ProjectionExpression != "" {
			return validationErr("a COUNT request takes no projection")
		}
		r.countOnly = true
	default:
		return validationErr("unsupported Select %q", in.Select)
	}
	if in.Limit < 0 {
		return validationErr("Limit must be positive")
	}
	r.limit = in.Limit
	r.filter = in.FilterExpression
	r.project = in.ProjectionExpression
	r.names = in.ExpressionAttributeNames
	r.values = in.ExpressionAttributeValues

	if in.ExclusiveStartKey != nil {
		k, werr := exactKey(def, in.ExclusiveStartKey)
		if werr != nil {
			return werr
		}
		start, err := itemKey(def, k)
		if err != nil {
			return validationErr("%s", err)
		}
		r.start = start
	}
	return nil
}

// readPage walks the store in key order. Limit bounds the items evaluated,
// not the items returned: the filter runs after the limit is charged, as
// it does in DynamoDB, and hitting the limit hands out a LastEvaluatedKey
// even when nothing follows.
func (s *Server) readPage(r pageRead) (pageOutput, error) {
	out := pageOutput{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = !r.forward
		opts.Prefix = r.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := r.prefix
		if !r.forward {
			seek = incrementBytes(r.prefix)
		}
		if r.start != nil {
			seek = r.start
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			key := it.Item().Key()
			if !bytes.HasPrefix(key, r.prefix) {
				break
			}
			if r.start != nil && bytes.Equal(key, r.start) {
				continue
			}
			if r.cond != nil {
				include, stop := r.cond.match(key[len(r.prefix):], r.forward)
				if stop {
					break
				}
				if !include {
					continue
				}
			}

			var item attr.Item
			if err := it.Item().Value(func(val []byte) error {
				var err error
				item, err = unmarshalItem(val)
				return err
			}); err != nil {
				return err
			}
			out.ScannedCount++

			included := true
			if r.filter != "" {
				ok, werr := evalCondition(r.filter, item, r.names, r.values)
				if werr != nil {
					return werr
				}
				included = ok
			}
			if included {
				out.Count++
				if !r.countOnly {
					view := item
					if r.project != "" {
						var werr *wireError
						view, werr = applyProjection(item, r.project, r.names)
						if werr != nil {
							return werr
						}
					}
					out.Items = append(out.Items, view)
				}
			}
			if r.limit > 0 && out.ScannedCount == r.limit {
				out.LastEvaluatedKey = r.def.keyAttributes(item)
				break
			}
		}
		return nil
	})
	if err != nil {
		return pageOutput{}, err
	}
	return out, nil
}

type compareOp int

const (
	opAll compareOp = iota // partition key only, every sort key matches
	opEQ
	opLT
	opLE
	opGT
	opGE
	opBetween
	opBegins
)

// keyCondition is a parsed KeyConditionExpression. Sort key operands are
// encoded once, up front; matching compares encoded bytes, which order the
// same way the values do.
type keyCondition struct {
	pk    attr.Value
	op    compareOp
	loEnc []byte
	hiEnc []byte
}

// match reports whether an encoded sort key satisfies the condition, and
// whether iteration in the given direction has left the matching range
// for good.
func (c *keyCondition) match(skEnc []byte, forward bool) (include, stop bool) {
	switch c.op {
	case opAll:
		return true, false
	case opEQ:
		cmp := bytes.Compare(skEnc, c.loEnc)
		return cmp == 0, (forward && cmp > 0) || (!forward && cmp < 0)
	case opLT:
		cmp := bytes.Compare(skEnc, c.loEnc)
		return cmp < 0, forward && cmp >= 0
	case opLE:
		cmp := bytes.Compare(skEnc, c.loEnc)
		return cmp <= 0, forward && cmp > 0
	case opGT:
		cmp := bytes.Compare(skEnc, c.loEnc)
		return cmp > 0, !forward && cmp <= 0
	case opGE:
		cmp := bytes.Compare(skEnc, c.loEnc)
		return cmp >= 0, !forward && cmp < 0
	case opBetween:
		lo := bytes.Compare(skEnc, c.loEnc)
		hi := bytes.Compare(skEnc, c.hiEnc)
		return lo >= 0 && hi <= 0, (forward && hi > 0) || (!forward && lo < 0)
	case opBegins:
		if bytes.HasPrefix(skEnc, c.loEnc) {
			return true, false
		}
		cmp := bytes.Compare(skEnc, c.loEnc)
		return false, (forward && cmp > 0) || (!forward && cmp < 0)
	}
	return false, false
}

// parseKeyCondition parses the canonical key condition grammar: a partition
// key equality, optionally followed by AND and one sort key comparison,
// BETWEEN or begins_with.
func parseKeyCondition(expr string, def TableDef, names map[string]string, values map[string]attr.Value) (*keyCondition, *wireError) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, validationErr("missing key condition expression")
	}
	hashPart, rangePart, hasRange := strings.Cut(expr, " AND ")

	lhs, rhs, ok := strings.Cut(hashPart, " = ")
	if !ok {
		return nil, validationErr("the partition key condition must be an equality, got %q", hashPart)
	}
	name, werr := keyName(lhs, names)
	if werr != nil {
		return nil, werr
	}
	if name != def.PartitionKey.Name {
		return nil, validationErr("query condition missed key schema element: %s", def.PartitionKey.Name)
	}
	pk, werr := resolveValue(strings.TrimSpace(rhs), values)
	if werr != nil {
		return nil, werr
	}

	cond := &keyCondition{pk: pk}
	if !hasRange {
		return cond, nil
	}
	if def.SortKey == nil {
		return nil, validationErr("table %s has no sort key", def.Name)
	}
	sk := *def.SortKey
	rangePart = strings.TrimSpace(rangePart)

	switch {
	case strings.Contains(rangePart, " BETWEEN "):
		nameTok, rest, _ := strings.Cut(rangePart, " BETWEEN ")
		loTok, hiTok, ok := strings.Cut(rest, " AND ")
		if !ok {
			return nil, validationErr("malformed BETWEEN in %q", rangePart)
		}
		if werr := checkSortKeyName(nameTok, sk, names); werr != nil {
			return nil, werr
		}
		cond.op = opBetween
		if cond.loEnc, werr = sortOperand(loTok, sk, values); werr != nil {
			return nil, werr
		}
		if cond.hiEnc, werr = sortOperand(hiTok, sk, values); werr != nil {
			return nil, werr
		}

	case strings.HasPrefix(rangePart, "begins_with("):
		inner, ok := cutCall(rangePart, "begins_with")
		if !ok {
			return nil, validationErr("malformed begins_with in %q", rangePart)
		}
		nameTok, valTok, ok := strings.Cut(inner, ",")
		if !ok {
			return nil, validationErr("begins_with takes two arguments")
		}
		if werr := checkSortKeyName(nameTok, sk, names); werr != nil {
			return nil, werr
		}
		if sk.Kind == KindNumber {
			return nil, validationErr("begins_with does not apply to number keys")
		}
		cond.op = opBegins
		if cond.loEnc, werr = sortOperand(valTok, sk, values); werr != nil {
			return nil, werr
		}

	default:
		ops := []struct {
			sep string
			op  compareOp
		}{
			{" >= ", opGE},
			{" <= ", opLE},
			{" > ", opGT},
			{" < ", opLT},
			{" = ", opEQ},
		}
		for _, o := range ops {
			nameTok, valTok, ok := strings.Cut(rangePart, o.sep)
			if !ok {
				continue
			}
			if werr := checkSortKeyName(nameTok, sk, names); werr != nil {
				return nil, werr
			}
			cond.op = o.op
			if cond.loEnc, werr = sortOperand(valTok, sk, values); werr != nil {
				return nil, werr
			}
			break
		}
		if cond.op == opAll {
			return nil, validationErr("unsupported sort key condition %q", rangePart)
		}
	}
	return cond, nil
}

// keyName resolves a key condition operand to a bare top-level name.
func keyName(tok string, names map[string]string) (string, *wireError) {
	path, werr := parseDocPath(strings.TrimSpace(tok), names)
	if werr != nil {
		return "", werr
	}
	if len(path) != 1 || path[0].isIndex {
		return "", validationErr("key conditions apply to top-level key attributes, got %q", tok)
	}
	return path[0].name, nil
}

func checkSortKeyName(tok string, sk KeyDef, names map[string]string) *wireError {
	name, werr := keyName(tok, names)
	if werr != nil {
		return werr
	}
	if name != sk.Name {
		return validationErr("query condition missed key schema element: %s", sk.Name)
	}
	return nil
}

func sortOperand(tok string, sk KeyDef, values map[string]attr.Value) ([]byte, *wireError) {
	v, werr := resolveValue(strings.TrimSpace(tok), values)
	if werr != nil {
		return nil, werr
	}
	enc, err := encodeKeyValue(v, sk.Kind)
	if err != nil {
		return nil, validationErr("%s", err)
	}
	return enc, nil
}
