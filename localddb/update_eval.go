package localddb

import (
	"bytes"
	"slices"
	"strings"

	"github.com/acksell/dynawire/attr"
)

// updatePlan is a parsed UpdateExpression. Parsing happens once, outside
// the store transaction; apply runs against each candidate item inside it.
type updatePlan struct {
	sets    []setAction
	removes [][]pathPart
	adds    []modifyAction
	deletes []modifyAction
}

type setForm int

const (
	setValue       setForm = iota // path = a
	setIfNotExists                // path = if_not_exists(a, b)
	setListAppend                 // path = list_append(a, b)
	setAdd                        // path = a + b
	setSub                        // path = a - b
)

type setAction struct {
	path []pathPart
	form setForm
	a, b operand
}

type modifyAction struct {
	path []pathPart
	val  attr.Value
}

// operand is either a value placeholder resolved at parse time or a
// document path looked up against the item at apply time.
type operand struct {
	val    attr.Value
	path   []pathPart
	isPath bool
}

func (o operand) eval(item attr.Item) (attr.Value, bool) {
	if !o.isPath {
		return o.val, true
	}
	return lookupPath(item, o.path)
}

func parseOperand(tok string, names map[string]string, values map[string]attr.Value) (operand, *wireError) {
	if strings.HasPrefix(tok, ":") {
		v, werr := resolveValue(tok, values)
		if werr != nil {
			return operand{}, werr
		}
		return operand{val: v}, nil
	}
	path, werr := parseDocPath(tok, names)
	if werr != nil {
		return operand{}, werr
	}
	return operand{path: path, isPath: true}, nil
}

var updateVerbs = []string{"SET", "REMOVE", "ADD", "DELETE"}

func parseUpdate(expr string, names map[string]string, values map[string]attr.Value) (*updatePlan, *wireError) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, validationErr("empty update expression")
	}

	type clauseMark struct {
		verb      string
		start     int
		bodyStart int
	}
	var marks []clauseMark
	depth := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth != 0 || (i > 0 && expr[i-1] != ' ') {
			continue
		}
		for _, verb := range updateVerbs {
			if strings.HasPrefix(expr[i:], verb+" ") {
				marks = append(marks, clauseMark{verb, i, i + len(verb) + 1})
				break
			}
		}
	}
	if len(marks) == 0 || marks[0].start != 0 {
		return nil, validationErr("update expression must start with SET, REMOVE, ADD or DELETE")
	}

	plan := &updatePlan{}
	seen := map[string]bool{}
	for i, m := range marks {
		if seen[m.verb] {
			return nil, validationErr("duplicate %s clause", m.verb)
		}
		seen[m.verb] = true
		end := len(expr)
		if i+1 < len(marks) {
			end = marks[i+1].start
		}
		body := strings.TrimSpace(expr[m.bodyStart:end])
		if body == "" {
			return nil, validationErr("empty %s clause", m.verb)
		}
		for _, entry := range splitEntries(body) {
			var werr *wireError
			switch m.verb {
			case "SET":
				werr = plan.parseSet(entry, names, values)
			case "REMOVE":
				werr = plan.parseRemove(entry, names)
			case "ADD":
				werr = plan.parseModify(entry, names, values, &plan.adds)
			case "DELETE":
				werr = plan.parseModify(entry, names, values, &plan.deletes)
			}
			if werr != nil {
				return nil, werr
			}
		}
	}
	return plan, nil
}

// splitEntries splits a clause body on commas outside parens.
func splitEntries(body string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(body[start:]))
}

func (p *updatePlan) parseSet(entry string, names map[string]string, values map[string]attr.Value) *wireError {
	lhs, rhs, ok := strings.Cut(entry, " = ")
	if !ok {
		return validationErr("malformed SET entry %q", entry)
	}
	path, werr := parseDocPath(strings.TrimSpace(lhs), names)
	if werr != nil {
		return werr
	}
	act := setAction{path: path}
	rhs = strings.TrimSpace(rhs)

	switch {
	case strings.HasPrefix(rhs, "if_not_exists("), strings.HasPrefix(rhs, "list_append("):
		fn := "if_not_exists"
		act.form = setIfNotExists
		if strings.HasPrefix(rhs, "list_append(") {
			fn = "list_append"
			act.form = setListAppend
		}
		inner, ok := cutCall(rhs, fn)
		if !ok {
			return validationErr("malformed %s in %q", fn, entry)
		}
		a, b, ok := strings.Cut(inner, ",")
		if !ok {
			return validationErr("%s takes two arguments", fn)
		}
		if act.a, werr = parseOperand(strings.TrimSpace(a), names, values); werr != nil {
			return werr
		}
		if act.b, werr = parseOperand(strings.TrimSpace(b), names, values); werr != nil {
			return werr
		}
		if act.form == setIfNotExists && !act.a.isPath {
			return validationErr("if_not_exists needs a document path as its first argument")
		}

	case strings.Contains(rhs, " + "), strings.Contains(rhs, " - "):
		op := " + "
		act.form = setAdd
		if !strings.Contains(rhs, " + ") {
			op = " - "
			act.form = setSub
		}
		a, b, _ := strings.Cut(rhs, op)
		if act.a, werr = parseOperand(strings.TrimSpace(a), names, values); werr != nil {
			return werr
		}
		if act.b, werr = parseOperand(strings.TrimSpace(b), names, values); werr != nil {
			return werr
		}

	default:
		if act.a, werr = parseOperand(rhs, names, values); werr != nil {
			return werr
		}
	}
	p.sets = append(p.sets, act)
	return nil
}

func (p *updatePlan) parseRemove(entry string, names map[string]string) *wireError {
	path, werr := parseDocPath(entry, names)
	if werr != nil {
		return werr
	}
	p.removes = append(p.removes, path)
	return nil
}

// parseModify handles the shared "path :value" shape of ADD and DELETE.
func (p *updatePlan) parseModify(entry string, names map[string]string, values map[string]attr.Value, dst *[]modifyAction) *wireError {
	pathTok, valTok, ok := strings.Cut(entry, " ")
	if !ok {
		return validationErr("malformed entry %q, want a path and a value", entry)
	}
	path, werr := parseDocPath(pathTok, names)
	if werr != nil {
		return werr
	}
	v, werr := resolveValue(strings.TrimSpace(valTok), values)
	if werr != nil {
		return werr
	}
	*dst = append(*dst, modifyAction{path: path, val: v})
	return nil
}

// roots lists the top-level attribute names the plan touches, in first-use
// order. Used for key protection and UPDATED_* return values.
func (p *updatePlan) roots() []string {
	var roots []string
	note := func(path []pathPart) {
		if name := path[0].name; !slices.Contains(roots, name) {
			roots = append(roots, name)
		}
	}
	for _, a := range p.sets {
		note(a.path)
	}
	for _, path := range p.removes {
		note(path)
	}
	for _, a := range p.adds {
		note(a.path)
	}
	for _, a := range p.deletes {
		note(a.path)
	}
	return roots
}

// apply mutates item in place. Clauses run in SET, REMOVE, ADD, DELETE
// order; DynamoDB forbids one expression touching a path twice, so the
// order is not observable for valid input.
func (p *updatePlan) apply(item attr.Item) *wireError {
	for _, act := range p.sets {
		if werr := applySetAction(item, act); werr != nil {
			return werr
		}
	}
	for _, path := range p.removes {
		applyRemove(item, path)
	}
	for _, act := range p.adds {
		if werr := applyAddAction(item, act); werr != nil {
			return werr
		}
	}
	for _, act := range p.deletes {
		if werr := applyDeleteAction(item, act); werr != nil {
			return werr
		}
	}
	return nil
}

func applySetAction(item attr.Item, act setAction) *wireError {
	var nv attr.Value
	switch act.form {
	case setValue:
		v, ok := act.a.eval(item)
		if !ok {
			return validationErr("SET operand refers to a missing attribute")
		}
		nv = v

	case setIfNotExists:
		if cur, ok := lookupPath(item, act.a.path); ok {
			nv = cur
			break
		}
		v, ok := act.b.eval(item)
		if !ok {
			return validationErr("if_not_exists fallback refers to a missing attribute")
		}
		nv = v

	case setListAppend:
		av, aok := act.a.eval(item)
		bv, bok := act.b.eval(item)
		if !aok || !bok {
			return validationErr("list_append operand refers to a missing attribute")
		}
		al, aIsList := av.AsList()
		bl, bIsList := bv.AsList()
		if !aIsList || !bIsList {
			return validationErr("list_append operands must be lists")
		}
		nv = attr.List(append(slices.Clone(al), bl...)...)

	case setAdd, setSub:
		af, werr := numberOperand(item, act.a)
		if werr != nil {
			return werr
		}
		bf, werr := numberOperand(item, act.b)
		if werr != nil {
			return werr
		}
		if act.form == setSub {
			bf = -bf
		}
		nv = attr.Float(af + bf)
	}
	return applySet(item, act.path, nv)
}

func numberOperand(item attr.Item, o operand) (float64, *wireError) {
	v, ok := o.eval(item)
	if !ok {
		return 0, validationErr("arithmetic operand refers to a missing attribute")
	}
	n, isNum := v.AsNumber()
	if !isNum {
		return 0, validationErr("arithmetic operands must be numbers, got %s", v.Tag())
	}
	f, err := n.Float64()
	if err != nil {
		return 0, validationErr("unparseable number %q", n)
	}
	return f, nil
}

// applyAddAction implements ADD: numbers accumulate, sets union, and a
// missing attribute takes the value as-is.
func applyAddAction(item attr.Item, act modifyAction) *wireError {
	cur, exists := lookupPath(item, act.path)
	if !exists {
		return applySet(item, act.path, act.val)
	}
	switch cur.Tag() {
	case attr.TagN:
		vn, ok := act.val.AsNumber()
		if !ok {
			return validationErr("ADD to a number needs a number, got %s", act.val.Tag())
		}
		cn, _ := cur.AsNumber()
		cf, err := cn.Float64()
		if err != nil {
			return validationErr("unparseable number %q", cn)
		}
		vf, err := vn.Float64()
		if err != nil {
			return validationErr("unparseable number %q", vn)
		}
		return applySet(item, act.path, attr.Float(cf+vf))

	case attr.TagSS:
		add, ok := act.val.AsStringSet()
		if !ok {
			return validationErr("ADD to a string set needs a string set, got %s", act.val.Tag())
		}
		cs, _ := cur.AsStringSet()
		return applySet(item, act.path, attr.Strings(append(slices.Clone(cs), add...)...))

	case attr.TagNS:
		add, ok := act.val.AsNumberSet()
		if !ok {
			return validationErr("ADD to a number set needs a number set, got %s", act.val.Tag())
		}
		cs, _ := cur.AsNumberSet()
		return applySet(item, act.path, attr.Numbers(append(slices.Clone(cs), add...)...))

	case attr.TagBS:
		add, ok := act.val.AsBinarySet()
		if !ok {
			return validationErr("ADD to a binary set needs a binary set, got %s", act.val.Tag())
		}
		cs, _ := cur.AsBinarySet()
		return applySet(item, act.path, attr.Binaries(append(slices.Clone(cs), add...)...))
	}
	return validationErr("ADD applies to numbers and sets, not %s", cur.Tag())
}

// applyDeleteAction implements DELETE: set difference, removing the
// attribute entirely when it empties out.
func applyDeleteAction(item attr.Item, act modifyAction) *wireError {
	cur, exists := lookupPath(item, act.path)
	if !exists {
		return nil
	}
	var kept attr.Value
	switch cur.Tag() {
	case attr.TagSS:
		del, ok := act.val.AsStringSet()
		if !ok {
			return validationErr("DELETE from a string set needs a string set, got %s", act.val.Tag())
		}
		cs, _ := cur.AsStringSet()
		left := slices.DeleteFunc(slices.Clone(cs), func(s string) bool { return slices.Contains(del, s) })
		if len(left) == 0 {
			applyRemove(item, act.path)
			return nil
		}
		kept = attr.Strings(left...)

	case attr.TagNS:
		del, ok := act.val.AsNumberSet()
		if !ok {
			return validationErr("DELETE from a number set needs a number set, got %s", act.val.Tag())
		}
		cs, _ := cur.AsNumberSet()
		left := slices.DeleteFunc(slices.Clone(cs), func(n attr.Number) bool { return slices.Contains(del, n) })
		if len(left) == 0 {
			applyRemove(item, act.path)
			return nil
		}
		kept = attr.Numbers(left...)

	case attr.TagBS:
		del, ok := act.val.AsBinarySet()
		if !ok {
			return validationErr("DELETE from a binary set needs a binary set, got %s", act.val.Tag())
		}
		cs, _ := cur.AsBinarySet()
		left := slices.DeleteFunc(slices.Clone(cs), func(b []byte) bool {
			return slices.ContainsFunc(del, func(d []byte) bool { return bytes.Equal(b, d) })
		})
		if len(left) == 0 {
			applyRemove(item, act.path)
			return nil
		}
		kept = attr.Binaries(left...)

	default:
		return validationErr("DELETE applies to sets, not %s", cur.Tag())
	}
	return applySet(item, act.path, kept)
}
