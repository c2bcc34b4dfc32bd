package translate

import (
	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// nullRewriter expands comparisons over nullable operands so that SQL's
// three-valued logic reproduces host equality: null == null is true and
// null == x is false.
//
// Expressions are visited in one of two contexts. In a predicate context
// (WHERE, ON, HAVING, CASE WHEN conditions and AND/OR operands below them)
// an unknown result filters the row exactly like false, so a shorter form
// is enough. Everywhere else the result must never be NULL.
//
// Every comparison the rewriter produces is marked NullSafe, so running it
// twice yields the same tree.
type nullRewriter struct {
	boolean *typemap.Mapping
}

// RewriteNulls returns a copy of q with null semantics made explicit.
func RewriteNulls(q sqlexpr.Query, reg *typemap.Registry) sqlexpr.Query {
	r := &nullRewriter{boolean: reg.Bool()}
	return r.query(q)
}

func (r *nullRewriter) query(q sqlexpr.Query) sqlexpr.Query {
	switch n := q.(type) {
	case *sqlexpr.Select:
		return r.selectStmt(n)
	case *sqlexpr.SetOp:
		return &sqlexpr.SetOp{Op: n.Op, Left: r.query(n.Left), Right: r.query(n.Right)}
	}
	return q
}

func (r *nullRewriter) selectStmt(s *sqlexpr.Select) *sqlexpr.Select {
	if s == nil {
		return nil
	}
	cp := *s
	if s.With != nil {
		cp.With = make([]*sqlexpr.CTE, len(s.With))
		for i, c := range s.With {
			cp.With[i] = &sqlexpr.CTE{Name: c.Name, Query: r.query(c.Query)}
		}
	}
	cp.Projection = make([]*sqlexpr.Projection, len(s.Projection))
	for i, p := range s.Projection {
		cp.Projection[i] = &sqlexpr.Projection{Expr: r.expr(p.Expr, false), Alias: p.Alias}
	}
	cp.From = r.source(s.From)
	if s.Joins != nil {
		cp.Joins = make([]*sqlexpr.Join, len(s.Joins))
		for i, j := range s.Joins {
			cp.Joins[i] = &sqlexpr.Join{Kind: j.Kind, Lateral: j.Lateral, Source: r.source(j.Source), On: r.expr(j.On, true)}
		}
	}
	cp.Where = r.expr(s.Where, true)
	cp.Having = r.expr(s.Having, true)
	cp.GroupBy = r.exprs(s.GroupBy)
	if s.OrderBy != nil {
		cp.OrderBy = make([]*sqlexpr.Ordering, len(s.OrderBy))
		for i, o := range s.OrderBy {
			cp.OrderBy[i] = &sqlexpr.Ordering{Expr: r.expr(o.Expr, false), Descending: o.Descending}
		}
	}
	cp.Limit = r.expr(s.Limit, false)
	cp.Offset = r.expr(s.Offset, false)
	return &cp
}

func (r *nullRewriter) source(s sqlexpr.Source) sqlexpr.Source {
	switch n := s.(type) {
	case *sqlexpr.DerivedTable:
		return &sqlexpr.DerivedTable{Query: r.query(n.Query), Alias: n.Alias}
	case *sqlexpr.TableFunction:
		cp := *n
		if call, ok := r.expr(n.Call, false).(*sqlexpr.FunctionCall); ok {
			cp.Call = call
		}
		return &cp
	case *sqlexpr.Values:
		cp := *n
		cp.Rows = make([][]sqlexpr.Expr, len(n.Rows))
		for i, row := range n.Rows {
			cp.Rows[i] = r.exprs(row)
		}
		return &cp
	}
	return s
}

func (r *nullRewriter) exprs(es []sqlexpr.Expr) []sqlexpr.Expr {
	if es == nil {
		return nil
	}
	out := make([]sqlexpr.Expr, len(es))
	for i, e := range es {
		out[i] = r.expr(e, false)
	}
	return out
}

func (r *nullRewriter) expr(e sqlexpr.Expr, pred bool) sqlexpr.Expr {
	switch n := e.(type) {
	case nil:
		return nil

	case *sqlexpr.BinaryOp:
		switch {
		case n.Op == "AND" || n.Op == "OR":
			cp := *n
			cp.Left = r.expr(n.Left, pred)
			cp.Right = r.expr(n.Right, pred)
			return &cp
		case (n.Op == "=" || n.Op == "<>") && !n.NullSafe:
			return r.equality(n.Op, r.expr(n.Left, false), r.expr(n.Right, false), pred)
		}

	case *sqlexpr.UnaryOp:
		if n.Op == "NOT" {
			switch inner := n.Operand.(type) {
			case *sqlexpr.Any:
				if !inner.NullSafe && inner.Op == "=" {
					return r.any(inner, !inner.Negated, pred)
				}
			case *sqlexpr.In:
				if !inner.NullSafe {
					return r.in(inner, !inner.Negated, pred)
				}
			}
		}

	case *sqlexpr.CaseWhen:
		cp := *n
		cp.Operand = r.expr(n.Operand, false)
		cp.Whens = make([]sqlexpr.When, len(n.Whens))
		for i, w := range n.Whens {
			cp.Whens[i] = sqlexpr.When{Cond: r.expr(w.Cond, true), Result: r.expr(w.Result, false)}
		}
		cp.Else = r.expr(n.Else, false)
		return &cp

	case *sqlexpr.Any:
		if !n.NullSafe && n.Op == "=" {
			return r.any(n, n.Negated, pred)
		}

	case *sqlexpr.In:
		if !n.NullSafe {
			return r.in(n, n.Negated, pred)
		}
		cp := *n
		cp.Operand = r.expr(n.Operand, false)
		cp.Values = r.exprs(n.Values)
		if n.Query != nil {
			cp.Query = r.query(n.Query)
		}
		return &cp

	case *sqlexpr.Subquery:
		cp := *n
		cp.Query = r.query(n.Query)
		return &cp

	case *sqlexpr.Exists:
		cp := *n
		cp.Query = r.query(n.Query)
		return &cp
	}
	return sqlexpr.MapChildren(e, func(child sqlexpr.Expr) sqlexpr.Expr {
		return r.expr(child, false)
	})
}

func (r *nullRewriter) and(l, rt sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewBinary("AND", l, rt, r.boolean)
}

func (r *nullRewriter) or(l, rt sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewBinary("OR", l, rt, r.boolean)
}

func (r *nullRewriter) not(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewUnary("NOT", e, r.boolean)
}

func (r *nullRewriter) isNull(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewPostfix("IS NULL", e, r.boolean)
}

func (r *nullRewriter) isNotNull(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewPostfix("IS NOT NULL", e, r.boolean)
}

func (r *nullRewriter) safe(op string, l, rt sqlexpr.Expr) *sqlexpr.BinaryOp {
	b := sqlexpr.NewBinary(op, l, rt, r.boolean)
	b.NullSafe = true
	return b
}

// coalesceFalse turns an unknown result into false.
func (r *nullRewriter) coalesceFalse(e sqlexpr.Expr) sqlexpr.Expr {
	return sqlexpr.NewFunction("COALESCE", r.boolean, false, e, sqlexpr.NewConstant(ir.IRBool(false), r.boolean))
}

func (r *nullRewriter) equality(op string, a, b sqlexpr.Expr, pred bool) sqlexpr.Expr {
	an, bn := isNullConstant(a), isNullConstant(b)
	switch {
	case an && bn:
		return sqlexpr.NewConstant(ir.IRBool(op == "="), r.boolean)
	case bn:
		return r.nullTest(op, a)
	case an:
		return r.nullTest(op, b)
	}

	la, lb := sqlexpr.Nullable(a), sqlexpr.Nullable(b)
	if !la && lb {
		a, b = b, a
		la, lb = lb, la
	}
	cmp := r.safe(op, a, b)

	switch {
	case !la:
		return cmp
	case op == "=" && lb && pred:
		return r.or(cmp, r.and(r.isNull(a), r.isNull(b)))
	case op == "=" && lb:
		return r.or(r.and(r.and(cmp, r.isNotNull(a)), r.isNotNull(b)), r.and(r.isNull(a), r.isNull(b)))
	case op == "=" && pred:
		return cmp
	case op == "=":
		return r.and(cmp, r.isNotNull(a))
	case lb:
		return r.and(
			r.or(r.or(cmp, r.isNull(a)), r.isNull(b)),
			r.or(r.isNotNull(a), r.isNotNull(b)),
		)
	}
	return r.or(cmp, r.isNull(a))
}

func (r *nullRewriter) nullTest(op string, e sqlexpr.Expr) sqlexpr.Expr {
	if op == "=" {
		return r.isNull(e)
	}
	return r.isNotNull(e)
}

// arrayHasNull is array_position(arr, NULL) IS NOT NULL, or IS NULL when
// absent is set.
func (r *nullRewriter) arrayHasNull(arr sqlexpr.Expr, absent bool) sqlexpr.Expr {
	m := arr.Mapping()
	elem := m.Element
	if elem == nil {
		elem = m
	}
	pos := sqlexpr.NewFunction("array_position", elem, true, arr, sqlexpr.NewConstant(ir.IRNull{}, elem))
	if absent {
		return r.isNull(pos)
	}
	return r.isNotNull(pos)
}

// any rewrites x = ANY(arr). A NULL element never compares equal to a NULL
// x, so membership of NULL is tested with array_position.
func (r *nullRewriter) any(n *sqlexpr.Any, negated, pred bool) sqlexpr.Expr {
	cp := *n
	cp.Operand = r.expr(n.Operand, false)
	cp.Array = r.expr(n.Array, false)
	cp.Negated = false
	cp.NullSafe = true
	x := cp.Operand
	xNull := sqlexpr.Nullable(x)
	compensate := xNull && n.ElemNullable

	if negated {
		if !xNull && !n.ElemNullable {
			cp.Negated = true
			return &cp
		}
		out := r.not(r.coalesceFalse(&cp))
		if compensate {
			out = r.and(out, r.or(r.isNotNull(x), r.arrayHasNull(cp.Array, true)))
		}
		return out
	}

	var out sqlexpr.Expr = &cp
	if !pred && (xNull || n.ElemNullable) {
		out = r.coalesceFalse(out)
	}
	if compensate {
		out = r.or(out, r.and(r.isNull(x), r.arrayHasNull(cp.Array, false)))
	}
	return out
}

// queryHasNull is EXISTS (SELECT TRUE FROM (q) AS nq WHERE nq.value IS NULL),
// or NOT EXISTS when absent is set. q's first column is renamed to value.
func (r *nullRewriter) queryHasNull(q sqlexpr.Query, absent bool) sqlexpr.Expr {
	named, col := firstColumnAs(q, "value")
	if named == nil {
		return sqlexpr.NewConstant(ir.IRBool(absent), r.boolean)
	}
	nulls := &sqlexpr.Select{
		Projection: []*sqlexpr.Projection{{Expr: sqlexpr.NewConstant(ir.IRBool(true), r.boolean)}},
		From:       &sqlexpr.DerivedTable{Query: named, Alias: "nq"},
		Where:      r.isNull(sqlexpr.NewColumn("nq", "value", col.Mapping(), true)),
	}
	return sqlexpr.NewExists(nulls, absent, r.boolean)
}

// firstColumnAs returns a copy of q whose first projected column is named
// alias, together with that column's expression.
func firstColumnAs(q sqlexpr.Query, alias string) (sqlexpr.Query, sqlexpr.Expr) {
	switch n := q.(type) {
	case *sqlexpr.Select:
		if len(n.Projection) == 0 {
			return nil, nil
		}
		cp := *n
		cp.Projection = append([]*sqlexpr.Projection(nil), n.Projection...)
		first := *n.Projection[0]
		first.Alias = alias
		cp.Projection[0] = &first
		return &cp, first.Expr
	case *sqlexpr.SetOp:
		left, col := firstColumnAs(n.Left, alias)
		if left == nil {
			return nil, nil
		}
		return &sqlexpr.SetOp{Op: n.Op, Left: left, Right: n.Right}, col
	}
	return nil, nil
}

// projectsNull reports whether q's first column may hold NULL.
func projectsNull(q sqlexpr.Query) bool {
	switch n := q.(type) {
	case *sqlexpr.Select:
		return len(n.Projection) > 0 && sqlexpr.Nullable(n.Projection[0].Expr)
	case *sqlexpr.SetOp:
		return projectsNull(n.Left) || projectsNull(n.Right)
	}
	return true
}

// in rewrites x IN (values). NULL list elements are dropped and replaced by
// an explicit x IS NULL test. Subqueries are coalesced, which keeps a NULL
// row from eliminating every result of NOT IN, and a NULL x is a member
// exactly when the subquery yields a NULL.
func (r *nullRewriter) in(n *sqlexpr.In, negated, pred bool) sqlexpr.Expr {
	cp := *n
	cp.Operand = r.expr(n.Operand, false)
	cp.NullSafe = true
	cp.Negated = false
	x := cp.Operand
	xNull := sqlexpr.Nullable(x)

	if n.Query != nil {
		cp.Query = r.query(n.Query)
		compensate := xNull && projectsNull(cp.Query)
		if negated {
			out := r.not(r.coalesceFalse(&cp))
			if compensate {
				out = r.and(out, r.or(r.isNotNull(x), r.queryHasNull(cp.Query, true)))
			}
			return out
		}
		var out sqlexpr.Expr = &cp
		if !pred {
			out = r.coalesceFalse(out)
		}
		if compensate {
			out = r.or(out, r.and(r.isNull(x), r.queryHasNull(cp.Query, false)))
		}
		return out
	}

	hadNull := false
	cp.Values = nil
	for _, v := range n.Values {
		v = r.expr(v, false)
		if isNullConstant(v) {
			hadNull = true
			continue
		}
		cp.Values = append(cp.Values, v)
	}

	if len(cp.Values) == 0 {
		switch {
		case !hadNull:
			return sqlexpr.NewConstant(ir.IRBool(negated), r.boolean)
		case negated:
			return r.isNotNull(x)
		}
		return r.isNull(x)
	}

	if negated {
		cp.Negated = true
		switch {
		case hadNull:
			return r.and(&cp, r.isNotNull(x))
		case xNull:
			return r.or(&cp, r.isNull(x))
		}
		return &cp
	}

	var out sqlexpr.Expr = &cp
	if !pred && xNull && !hadNull {
		out = r.coalesceFalse(out)
	}
	if hadNull && xNull {
		out = r.or(out, r.isNull(x))
	}
	return out
}
