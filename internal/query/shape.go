package query

import (
	"fmt"

	"github.com/roach88/querylift/internal/ir"
)

// Shape returns the structural description of q as a canonical IR value.
//
// Captured values are replaced by their name and type, so two queries that
// differ only in captured values have equal shapes. Constants are part of
// the shape because they are rendered inline.
func Shape(q *Query) (ir.IRValue, error) {
	return shapeQuery(q)
}

// ShapeHash returns the plan-cache key of q.
func ShapeHash(q *Query) (string, error) {
	s, err := Shape(q)
	if err != nil {
		return "", err
	}
	return ir.ShapeHash(s)
}

// Captures returns the captured variables of q in first-occurrence order.
func Captures(q *Query) []*Captured {
	var out []*Captured
	seen := make(map[string]bool)
	WalkQuery(q, func(e Expr) bool {
		if c, ok := e.(*Captured); ok && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, c)
		}
		return true
	})
	return out
}

// CapturedValues returns the captured variables of q by name.
func CapturedValues(q *Query) map[string]ir.IRValue {
	out := make(map[string]ir.IRValue)
	for _, c := range Captures(q) {
		out[c.Name] = c.Value
	}
	return out
}

// WalkQuery calls fn for every expression of q in depth-first order,
// descending into nested queries. Returning false skips the node's children.
func WalkQuery(q *Query, fn func(Expr) bool) {
	if q == nil {
		return
	}
	for _, op := range q.Ops {
		switch o := op.(type) {
		case *Where:
			walkLambda(o.Predicate, fn)
		case *Select:
			walkLambda(o.Selector, fn)
		case *OrderBy:
			walkLambda(o.Key, fn)
		case *Join:
			WalkQuery(o.Inner, fn)
			walkLambda(o.OuterKey, fn)
			walkLambda(o.InnerKey, fn)
			walkLambda(o.Result, fn)
		case *GroupBy:
			walkLambda(o.Key, fn)
		case *SelectMany:
			walkLambda(o.Collection, fn)
			walkLambda(o.Result, fn)
		case *Skip:
			Walk(o.Count, fn)
		case *Take:
			Walk(o.Count, fn)
		case *Aggregate:
			walkLambda(o.Lambda, fn)
		}
	}
}

func walkLambda(l *Lambda, fn func(Expr) bool) {
	if l != nil {
		Walk(l, fn)
	}
}

// Walk calls fn for e and its descendants in depth-first order.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *Member:
		Walk(n.Target, fn)
	case *Call:
		Walk(n.Receiver, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Index:
		Walk(n.Target, fn)
		Walk(n.Index, fn)
	case *Binary:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Unary:
		Walk(n.Operand, fn)
	case *Conditional:
		Walk(n.Test, fn)
		Walk(n.Then, fn)
		Walk(n.Else, fn)
	case *NewArray:
		for _, el := range n.Elems {
			Walk(el, fn)
		}
	case *NewObject:
		for _, f := range n.Fields {
			Walk(f.Value, fn)
		}
	case *Lambda:
		Walk(n.Body, fn)
	case *Subquery:
		WalkQuery(n.Query, fn)
	case *ClientCall:
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Convert:
		Walk(n.Operand, fn)
	}
}

func shapeQuery(q *Query) (ir.IRValue, error) {
	if q == nil {
		return ir.IRNull{}, nil
	}
	ops := make(ir.IRArray, 0, len(q.Ops))
	for i, op := range q.Ops {
		s, err := shapeOp(op)
		if err != nil {
			return nil, fmt.Errorf("ops[%d]: %w", i, err)
		}
		ops = append(ops, s)
	}
	return ir.IRObject{"source": ir.IRString(q.Source), "ops": ops}, nil
}

func shapeOp(op Operation) (ir.IRValue, error) {
	obj := ir.IRObject{"op": ir.IRString(OpName(op))}
	var err error
	set := func(key string, e Expr) {
		if err != nil || e == nil {
			return
		}
		var s ir.IRValue
		s, err = shapeExpr(e)
		obj[key] = s
	}
	setLambda := func(key string, l *Lambda) {
		if l != nil {
			set(key, l)
		}
	}

	switch o := op.(type) {
	case *Where:
		setLambda("lambda", o.Predicate)
	case *Select:
		setLambda("lambda", o.Selector)
	case *OrderBy:
		setLambda("lambda", o.Key)
	case *Join:
		var inner ir.IRValue
		inner, err = shapeQuery(o.Inner)
		obj["inner"] = inner
		setLambda("outerKey", o.OuterKey)
		setLambda("innerKey", o.InnerKey)
		setLambda("result", o.Result)
	case *GroupBy:
		setLambda("lambda", o.Key)
	case *SelectMany:
		setLambda("collection", o.Collection)
		setLambda("result", o.Result)
	case *Skip:
		set("count", o.Count)
	case *Take:
		set("count", o.Count)
	case *Distinct:
	case *Aggregate:
		setLambda("lambda", o.Lambda)
	default:
		return nil, fmt.Errorf("unknown operation type %T", op)
	}
	return obj, err
}

func shapeExprs(es []Expr) (ir.IRArray, error) {
	out := make(ir.IRArray, len(es))
	for i, e := range es {
		s, err := shapeExpr(e)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func shapeExpr(e Expr) (ir.IRValue, error) {
	if e == nil {
		return ir.IRNull{}, nil
	}
	node := func(kind string, pairs ...ir.IRPair) ir.IRObject {
		obj := ir.NewIRObjectFromPairs(pairs...)
		obj["k"] = ir.IRString(kind)
		return obj
	}
	sub := func(es ...Expr) ([]ir.IRValue, error) {
		return shapeExprs(es)
	}

	switch n := e.(type) {
	case *Param:
		return node("param", ir.O("name", ir.IRString(n.Name))), nil
	case *Member:
		s, err := sub(n.Target)
		if err != nil {
			return nil, err
		}
		return node("member", ir.O("name", ir.IRString(n.Name)), ir.O("target", s[0])), nil
	case *Call:
		recv, err := sub(n.Receiver)
		if err != nil {
			return nil, err
		}
		args, err := shapeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return node("call", ir.O("method", ir.IRString(n.Method)), ir.O("receiver", recv[0]), ir.O("args", args)), nil
	case *Index:
		s, err := sub(n.Target, n.Index)
		if err != nil {
			return nil, err
		}
		return node("index", ir.O("target", s[0]), ir.O("index", s[1])), nil
	case *Binary:
		s, err := sub(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return node("binary", ir.O("op", ir.IRString(n.Op)), ir.O("left", s[0]), ir.O("right", s[1])), nil
	case *Unary:
		s, err := sub(n.Operand)
		if err != nil {
			return nil, err
		}
		return node("unary", ir.O("op", ir.IRString(n.Op)), ir.O("operand", s[0])), nil
	case *Conditional:
		s, err := sub(n.Test, n.Then, n.Else)
		if err != nil {
			return nil, err
		}
		return node("cond", ir.O("test", s[0]), ir.O("then", s[1]), ir.O("else", s[2])), nil
	case *Constant:
		v := n.Value
		if v == nil {
			v = ir.IRNull{}
		}
		return node("const", ir.O("value", v), ir.O("type", ir.IRString(n.Type.String()))), nil
	case *Captured:
		return node("captured", ir.O("name", ir.IRString(n.Name)), ir.O("type", ir.IRString(n.Type.String()))), nil
	case *NewArray:
		elems, err := shapeExprs(n.Elems)
		if err != nil {
			return nil, err
		}
		return node("array", ir.O("elem", ir.IRString(n.Elem.String())), ir.O("elems", elems)), nil
	case *NewObject:
		fields := make(ir.IRArray, len(n.Fields))
		for i, f := range n.Fields {
			s, err := shapeExpr(f.Value)
			if err != nil {
				return nil, err
			}
			fields[i] = ir.IRObject{"name": ir.IRString(f.Name), "value": s}
		}
		return node("object", ir.O("fields", fields)), nil
	case *Lambda:
		params := make(ir.IRArray, len(n.Params))
		for i, p := range n.Params {
			params[i] = ir.IRString(p)
		}
		body, err := shapeExpr(n.Body)
		if err != nil {
			return nil, err
		}
		return node("lambda", ir.O("params", params), ir.O("body", body)), nil
	case *Subquery:
		q, err := shapeQuery(n.Query)
		if err != nil {
			return nil, err
		}
		return node("subquery", ir.O("query", q)), nil
	case *ClientCall:
		args, err := shapeExprs(n.Args)
		if err != nil {
			return nil, err
		}
		return node("client", ir.O("method", ir.IRString(n.Method)), ir.O("args", args)), nil
	case *Convert:
		s, err := sub(n.Operand)
		if err != nil {
			return nil, err
		}
		return node("convert", ir.O("type", ir.IRString(n.Type.String())), ir.O("operand", s[0])), nil
	}
	return nil, fmt.Errorf("unknown expression type %T", e)
}
