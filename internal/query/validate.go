package query

import (
	"fmt"
	"strings"

	"github.com/roach88/querylift/internal/ir"
)

// Issue is one structural problem found by Validate.
type Issue struct {
	// Position locates the node, e.g. "ops[1].where.body.args[0]".
	Position string
	Message  string

	// ClientMethod names the client call of a misplaced client evaluation.
	ClientMethod string
}

func (i Issue) String() string {
	if i.Position == "" {
		return i.Message
	}
	return i.Position + ": " + i.Message
}

// ValidationResult lists the structural problems of a query.
type ValidationResult struct {
	// Valid is true when Issues is empty.
	Valid  bool
	Issues []Issue
}

// Err returns the issues as a single error, or nil when the query is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	msgs := make([]string, len(r.Issues))
	for i, is := range r.Issues {
		msgs[i] = is.String()
	}
	return fmt.Errorf("invalid query: %s", strings.Join(msgs, "; "))
}

// ClientEvaluation returns the first issue reporting a client call outside
// the final projection.
func (r ValidationResult) ClientEvaluation() (Issue, bool) {
	for _, is := range r.Issues {
		if is.ClientMethod != "" {
			return is, true
		}
	}
	return Issue{}, false
}

// Validate checks a query for structural problems before translation.
//
// Checked rules:
//  1. A source entity set is named and every operation is non-nil
//  2. Lambdas have the arity their operation requires
//  3. Every Param refers to a parameter of an enclosing lambda
//  4. ClientCall appears only in a final Select
//  5. NewObject projections have at least one field and unique names
//  6. ThenBy follows an OrderBy; a terminal aggregate is the last operation
//  7. Skip/Take counts are integer constants or captured integers
//  8. A captured name is bound to exactly one value and type
//
// Validate does not consult the model: unknown properties and unsupported
// operations are reported by translation.
func Validate(q *Query) ValidationResult {
	v := &validator{captured: make(map[string]*Captured)}
	v.validateQuery(q, "", true)
	return ValidationResult{Valid: len(v.issues) == 0, Issues: v.issues}
}

type validator struct {
	issues   []Issue
	captured map[string]*Captured
}

func (v *validator) add(pos, format string, args ...any) {
	v.issues = append(v.issues, Issue{Position: pos, Message: fmt.Sprintf(format, args...)})
}

// validateQuery checks q. top is false for nested queries, where client
// evaluation is never allowed.
func (v *validator) validateQuery(q *Query, prefix string, top bool) {
	if q == nil {
		v.add(prefix, "nil query")
		return
	}
	if q.Source == "" {
		v.add(prefix, "query has no source entity set")
	}

	ordered := false
	for i, op := range q.Ops {
		pos := fmt.Sprintf("%sops[%d]", prefix, i)
		last := i == len(q.Ops)-1
		clientOK := top && last

		if op == nil {
			v.add(pos, "nil operation")
			continue
		}

		switch o := op.(type) {
		case *Where:
			v.lambda(o.Predicate, pos+".where", 1, nil, false)
		case *Select:
			v.lambda(o.Selector, pos+".select", 1, nil, clientOK)
		case *OrderBy:
			name := OpName(o)
			if o.Then && !ordered {
				v.add(pos, "%s without a preceding orderBy", name)
			}
			ordered = true
			v.lambda(o.Key, pos+"."+name, 1, nil, false)
		case *Join:
			v.validateQuery(o.Inner, pos+".join.inner.", false)
			v.lambda(o.OuterKey, pos+".join.outerKey", 1, nil, false)
			v.lambda(o.InnerKey, pos+".join.innerKey", 1, nil, false)
			v.lambda(o.Result, pos+".join.result", 2, nil, false)
		case *GroupBy:
			ordered = false
			v.lambda(o.Key, pos+".groupBy", 1, nil, false)
		case *SelectMany:
			v.lambda(o.Collection, pos+".selectMany.collection", 1, nil, false)
			if o.Result != nil {
				v.lambda(o.Result, pos+".selectMany.result", 2, nil, false)
			}
		case *Skip:
			v.count(o.Count, pos+".skip")
		case *Take:
			v.count(o.Count, pos+".take")
		case *Distinct:
		case *Aggregate:
			name := OpName(o)
			if !last {
				v.add(pos, "terminal %s must be the last operation", name)
			}
			if o.Lambda != nil {
				v.lambda(o.Lambda, pos+"."+name, 1, nil, false)
			} else if o.Func == AggAll {
				v.add(pos, "all requires a predicate")
			}
		default:
			v.add(pos, "unknown operation type %T", op)
		}
	}
}

func (v *validator) count(e Expr, pos string) {
	switch c := e.(type) {
	case *Constant:
		if _, ok := c.Value.(ir.IRInt); !ok {
			v.add(pos, "count must be an integer, got %T", c.Value)
		}
	case *Captured:
		v.expr(c, pos, nil, false)
		if _, ok := c.Value.(ir.IRInt); !ok {
			v.add(pos, "count must be an integer, got %T", c.Value)
		}
	default:
		v.add(pos, "count must be a constant or captured integer")
	}
}

func (v *validator) lambda(l *Lambda, pos string, arity int, scope map[string]bool, clientOK bool) {
	if l == nil {
		v.add(pos, "missing lambda")
		return
	}
	if arity >= 0 && len(l.Params) != arity {
		v.add(pos, "lambda takes %d parameter(s), want %d", len(l.Params), arity)
	}
	inner := make(map[string]bool, len(scope)+len(l.Params))
	for k := range scope {
		inner[k] = true
	}
	for _, p := range l.Params {
		if p == "" {
			v.add(pos, "lambda parameter has no name")
		}
		inner[p] = true
	}
	v.expr(l.Body, pos+".body", inner, clientOK)
}

func (v *validator) expr(e Expr, pos string, scope map[string]bool, clientOK bool) {
	if e == nil {
		v.add(pos, "missing expression")
		return
	}

	switch n := e.(type) {
	case *Param:
		if !scope[n.Name] {
			v.add(pos, "unknown lambda parameter %q", n.Name)
		}
	case *Member:
		if n.Name == "" {
			v.add(pos, "member has no name")
		}
		v.expr(n.Target, pos+".target", scope, false)
	case *Call:
		if n.Method == "" {
			v.add(pos, "call has no method name")
		}
		if n.Receiver != nil {
			v.expr(n.Receiver, pos+".receiver", scope, false)
		}
		for i, a := range n.Args {
			if l, ok := a.(*Lambda); ok {
				v.lambda(l, fmt.Sprintf("%s.args[%d]", pos, i), -1, scope, false)
				continue
			}
			v.expr(a, fmt.Sprintf("%s.args[%d]", pos, i), scope, false)
		}
	case *Index:
		v.expr(n.Target, pos+".target", scope, false)
		v.expr(n.Index, pos+".index", scope, false)
	case *Binary:
		v.expr(n.Left, pos+".left", scope, false)
		v.expr(n.Right, pos+".right", scope, false)
	case *Unary:
		v.expr(n.Operand, pos+".operand", scope, false)
	case *Conditional:
		v.expr(n.Test, pos+".test", scope, false)
		v.expr(n.Then, pos+".then", scope, false)
		v.expr(n.Else, pos+".else", scope, false)
	case *Constant:
		if n.Value == nil {
			v.add(pos, "constant has no value")
		}
	case *Captured:
		v.captured1(n, pos)
	case *NewArray:
		for i, el := range n.Elems {
			v.expr(el, fmt.Sprintf("%s.elems[%d]", pos, i), scope, false)
		}
	case *NewObject:
		if len(n.Fields) == 0 {
			v.add(pos, "empty projection")
		}
		seen := make(map[string]bool, len(n.Fields))
		for i, f := range n.Fields {
			fpos := fmt.Sprintf("%s.fields[%d]", pos, i)
			if f.Name == "" {
				v.add(fpos, "projected field has no name")
			} else if seen[f.Name] {
				v.add(fpos, "duplicate projected field %q", f.Name)
			}
			seen[f.Name] = true
			v.expr(f.Value, fpos, scope, clientOK)
		}
	case *Lambda:
		v.lambda(n, pos, -1, scope, false)
	case *Subquery:
		v.validateQuery(n.Query, pos+".query.", false)
	case *ClientCall:
		if !clientOK {
			v.add(pos, "client evaluation of %s is only allowed in the final projection", n.Method)
			v.issues[len(v.issues)-1].ClientMethod = n.Method
		}
		for i, a := range n.Args {
			v.expr(a, fmt.Sprintf("%s.args[%d]", pos, i), scope, false)
		}
	case *Convert:
		if n.Type.Kind == "" {
			v.add(pos, "conversion has no target type")
		}
		v.expr(n.Operand, pos+".operand", scope, false)
	default:
		v.add(pos, "unknown expression type %T", e)
	}
}

func (v *validator) captured1(c *Captured, pos string) {
	if c.Name == "" {
		v.add(pos, "captured value has no name")
		return
	}
	if c.Type.Kind == "" {
		v.add(pos, "captured %q has no type", c.Name)
	}
	prev, ok := v.captured[c.Name]
	if !ok {
		v.captured[c.Name] = c
		return
	}
	if prev.Type.String() != c.Type.String() || !ir.Equal(prev.Value, c.Value) {
		v.add(pos, "captured %q is bound to more than one value", c.Name)
	}
}

// OpName returns the position label of an operation, e.g. "where" or
// "thenByDescending".
func OpName(op Operation) string {
	switch o := op.(type) {
	case *Where:
		return "where"
	case *Select:
		return "select"
	case *OrderBy:
		switch {
		case o.Then && o.Descending:
			return "thenByDescending"
		case o.Then:
			return "thenBy"
		case o.Descending:
			return "orderByDescending"
		}
		return "orderBy"
	case *Join:
		return "join"
	case *GroupBy:
		return "groupBy"
	case *SelectMany:
		return "selectMany"
	case *Skip:
		return "skip"
	case *Take:
		return "take"
	case *Distinct:
		return "distinct"
	case *Aggregate:
		name := string(o.Func)
		if name == "" {
			return "aggregate"
		}
		return strings.ToLower(name[:1]) + name[1:]
	}
	return fmt.Sprintf("%T", op)
}
