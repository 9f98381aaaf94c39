package localddb

import (
	"errors"
	"maps"
	"net/http"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/acksell/dynawire/attr"
)

// transactAction is one member of TransactItems, keyed by its kind: Put,
// Delete, Update, ConditionCheck or Get.
type transactAction struct {
	TableName                 string                `json:"TableName"`
	Item                      attr.Item             `json:"Item"`
	Key                       attr.Item             `json:"Key"`
	UpdateExpression          string                `json:"UpdateExpression"`
	ConditionExpression       string                `json:"ConditionExpression"`
	ProjectionExpression      string                `json:"ProjectionExpression"`
	ExpressionAttributeNames  map[string]string     `json:"ExpressionAttributeNames"`
	ExpressionAttributeValues map[string]attr.Value `json:"ExpressionAttributeValues"`
}

type transactWriteInput struct {
	TransactItems      []map[string]transactAction `json:"TransactItems"`
	ClientRequestToken string                      `json:"ClientRequestToken"`
}

type transactWriteOutput struct{}

// plannedAction is a pre-parsed transaction member: everything that can
// fail before touching the store has already failed.
type plannedAction struct {
	kind   string
	def    TableDef
	action transactAction
	key    attr.Item
	dbKey  []byte
	plan   *updatePlan // updates only
	old    attr.Item   // loaded by the condition pass
}

// transactWriteItems runs all actions in one store transaction. The first
// pass evaluates every condition and collects one cancellation reason per
// action; writes happen only when every condition held. ClientRequestToken
// is accepted but not tracked, so replays are not deduplicated.
func (s *Server) transactWriteItems(in transactWriteInput) (transactWriteOutput, error) {
	if len(in.TransactItems) == 0 {
		return transactWriteOutput{}, validationErr("transaction names no actions")
	}
	if len(in.TransactItems) > 100 {
		return transactWriteOutput{}, validationErr("too many actions for the TransactWriteItems call")
	}

	planned := make([]plannedAction, 0, len(in.TransactItems))
	targeted := map[string]bool{}
	for _, member := range in.TransactItems {
		p, werr := s.planAction(member, "Put", "Delete", "Update", "ConditionCheck")
		if werr != nil {
			return transactWriteOutput{}, werr
		}
		if p.kind != "ConditionCheck" {
			if targeted[string(p.dbKey)] {
				return transactWriteOutput{}, validationErr("transaction cannot target the same item twice")
			}
			targeted[string(p.dbKey)] = true
		}
		planned = append(planned, p)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		reasons := make([]reason, len(planned))
		canceled := false
		for i := range planned {
			p := &planned[i]
			old, err := readItem(txn, p.dbKey)
			if err != nil {
				return err
			}
			p.old = old
			reasons[i] = reason{Code: "None"}
			if p.action.ConditionExpression == "" {
				continue
			}
			ok, werr := evalCondition(p.action.ConditionExpression, old, p.action.ExpressionAttributeNames, p.action.ExpressionAttributeValues)
			if werr != nil {
				return werr
			}
			if !ok {
				reasons[i] = reason{Code: "ConditionalCheckFailed", Message: "The conditional request failed"}
				canceled = true
			}
		}
		if canceled {
			return &wireError{
				status:  http.StatusBadRequest,
				name:    "TransactionCanceledException",
				message: "Transaction cancelled, please refer cancellation reasons for specific reasons",
				reasons: reasons,
			}
		}

		for _, p := range planned {
			switch p.kind {
			case "Put":
				data, err := marshalItem(p.action.Item)
				if err != nil {
					return err
				}
				if err := txn.Set(p.dbKey, data); err != nil {
					return err
				}
			case "Delete":
				if err := txn.Delete(p.dbKey); err != nil {
					return err
				}
			case "Update":
				base := attr.Item{}
				if p.old != nil {
					base = maps.Clone(p.old)
				}
				maps.Copy(base, p.key)
				if werr := p.plan.apply(base); werr != nil {
					return werr
				}
				data, err := marshalItem(base)
				if err != nil {
					return err
				}
				if err := txn.Set(p.dbKey, data); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return transactWriteOutput{}, &wireError{
			status:  http.StatusBadRequest,
			name:    "TransactionConflictException",
			message: "Transaction is ongoing for the item",
		}
	}
	if err != nil {
		return transactWriteOutput{}, err
	}
	return transactWriteOutput{}, nil
}

// planAction validates one TransactItems member and resolves its store key.
func (s *Server) planAction(member map[string]transactAction, kinds ...string) (plannedAction, *wireError) {
	if len(member) != 1 {
		return plannedAction{}, validationErr("each transaction member takes exactly one action")
	}
	var p plannedAction
	for kind, action := range member {
		p = plannedAction{kind: kind, action: action}
	}
	ok := false
	for _, kind := range kinds {
		if p.kind == kind {
			ok = true
			break
		}
	}
	if !ok {
		return plannedAction{}, validationErr("unsupported transaction action %q", p.kind)
	}

	def, werr := s.getTable(p.action.TableName)
	if werr != nil {
		return plannedAction{}, werr
	}
	p.def = def

	if p.kind == "Put" {
		key, err := def.extractKey(p.action.Item)
		if err != nil {
			return plannedAction{}, validationErr("%s", err)
		}
		p.key = key
	} else {
		key, werr := exactKey(def, p.action.Key)
		if werr != nil {
			return plannedAction{}, werr
		}
		p.key = key
	}
	dbKey, err := itemKey(def, p.key)
	if err != nil {
		return plannedAction{}, validationErr("%s", err)
	}
	p.dbKey = dbKey

	switch p.kind {
	case "ConditionCheck":
		if p.action.ConditionExpression == "" {
			return plannedAction{}, validationErr("a condition check needs a condition expression")
		}
	case "Update":
		plan, werr := parseUpdate(p.action.UpdateExpression, p.action.ExpressionAttributeNames, p.action.ExpressionAttributeValues)
		if werr != nil {
			return plannedAction{}, werr
		}
		for _, root := range plan.roots() {
			if root == def.PartitionKey.Name || (def.SortKey != nil && root == def.SortKey.Name) {
				return plannedAction{}, validationErr("cannot update attribute %s, it is part of the key", root)
			}
		}
		p.plan = plan
	}
	return p, nil
}

type transactGetInput struct {
	TransactItems []map[string]transactAction `json:"TransactItems"`
}

type transactGetOutput struct {
	Responses []itemResponse `json:"Responses"`
}

type itemResponse struct {
	Item attr.Item `json:"Item,omitempty"`
}

// transactGetItems reads all items in one snapshot. Responses line up with
// the request; missing items come back as empty objects.
func (s *Server) transactGetItems(in transactGetInput) (transactGetOutput, error) {
	if len(in.TransactItems) == 0 {
		return transactGetOutput{}, validationErr("transaction names no actions")
	}
	if len(in.TransactItems) > 100 {
		return transactGetOutput{}, validationErr("too many actions for the TransactGetItems call")
	}

	planned := make([]plannedAction, 0, len(in.TransactItems))
	for _, member := range in.TransactItems {
		p, werr := s.planAction(member, "Get")
		if werr != nil {
			return transactGetOutput{}, werr
		}
		planned = append(planned, p)
	}

	out := transactGetOutput{Responses: make([]itemResponse, len(planned))}
	err := s.db.View(func(txn *badger.Txn) error {
		for i, p := range planned {
			item, err := readItem(txn, p.dbKey)
			if err != nil {
				return err
			}
			if item == nil {
				continue
			}
			if p.action.ProjectionExpression != "" {
				var werr *wireError
				item, werr = applyProjection(item, p.action.ProjectionExpression, p.action.ExpressionAttributeNames)
				if werr != nil {
					return werr
				}
			}
			out.Responses[i].Item = item
		}
		return nil
	})
	if err != nil {
		return transactGetOutput{}, err
	}
	return out, nil
}
