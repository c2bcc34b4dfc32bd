package sqlexpr

// Walk calls fn for e and its descendants in print order, descending into
// nested queries. Returning false skips the node's children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case *FunctionCall:
		walkAll(n.Args, fn)
		for _, o := range n.OrderBy {
			Walk(o.Expr, fn)
		}
	case *BinaryOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *UnaryOp:
		Walk(n.Operand, fn)
	case *CaseWhen:
		Walk(n.Operand, fn)
		for _, w := range n.Whens {
			Walk(w.Cond, fn)
			Walk(w.Result, fn)
		}
		Walk(n.Else, fn)
	case *Subquery:
		WalkQuery(n.Query, fn)
	case *ArrayLiteral:
		walkAll(n.Elems, fn)
	case *ArraySlice:
		Walk(n.Array, fn)
		Walk(n.Lower, fn)
		Walk(n.Upper, fn)
	case *ArrayIndex:
		Walk(n.Array, fn)
		Walk(n.Index, fn)
	case *Cast:
		Walk(n.Operand, fn)
	case *Exists:
		WalkQuery(n.Query, fn)
	case *In:
		Walk(n.Operand, fn)
		walkAll(n.Values, fn)
		WalkQuery(n.Query, fn)
	case *Any:
		Walk(n.Operand, fn)
		Walk(n.Array, fn)
	case *JsonPath:
		Walk(n.Operand, fn)
		walkAll(n.Path, fn)
	}
}

func walkAll(es []Expr, fn func(Expr) bool) {
	for _, e := range es {
		Walk(e, fn)
	}
}

// WalkQuery calls fn for every expression of q in print order.
func WalkQuery(q Query, fn func(Expr) bool) {
	switch n := q.(type) {
	case *Select:
		for _, c := range n.With {
			WalkQuery(c.Query, fn)
		}
		for _, p := range n.Projection {
			Walk(p.Expr, fn)
		}
		walkSource(n.From, fn)
		for _, j := range n.Joins {
			walkSource(j.Source, fn)
			Walk(j.On, fn)
		}
		Walk(n.Where, fn)
		walkAll(n.GroupBy, fn)
		Walk(n.Having, fn)
		for _, o := range n.OrderBy {
			Walk(o.Expr, fn)
		}
		Walk(n.Limit, fn)
		Walk(n.Offset, fn)
	case *SetOp:
		WalkQuery(n.Left, fn)
		WalkQuery(n.Right, fn)
	}
}

func walkSource(s Source, fn func(Expr) bool) {
	switch n := s.(type) {
	case *DerivedTable:
		WalkQuery(n.Query, fn)
	case *TableFunction:
		Walk(n.Call, fn)
	case *Values:
		for _, row := range n.Rows {
			walkAll(row, fn)
		}
	}
}

// Rewrite rebuilds e bottom-up, replacing every node with fn(node) after its
// children have been rewritten. Nested queries are rewritten too. The input
// tree is never modified.
func Rewrite(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	var out Expr
	switch n := e.(type) {
	case *FunctionCall:
		cp := *n
		cp.Args = rewriteAll(n.Args, fn)
		cp.OrderBy = rewriteOrderings(n.OrderBy, fn)
		out = &cp
	case *BinaryOp:
		cp := *n
		cp.Left = Rewrite(n.Left, fn)
		cp.Right = Rewrite(n.Right, fn)
		out = &cp
	case *UnaryOp:
		cp := *n
		cp.Operand = Rewrite(n.Operand, fn)
		out = &cp
	case *CaseWhen:
		cp := *n
		cp.Operand = Rewrite(n.Operand, fn)
		cp.Whens = make([]When, len(n.Whens))
		for i, w := range n.Whens {
			cp.Whens[i] = When{Cond: Rewrite(w.Cond, fn), Result: Rewrite(w.Result, fn)}
		}
		cp.Else = Rewrite(n.Else, fn)
		out = &cp
	case *Subquery:
		cp := *n
		cp.Query = RewriteQuery(n.Query, fn)
		out = &cp
	case *ArrayLiteral:
		cp := *n
		cp.Elems = rewriteAll(n.Elems, fn)
		out = &cp
	case *ArraySlice:
		cp := *n
		cp.Array = Rewrite(n.Array, fn)
		cp.Lower = Rewrite(n.Lower, fn)
		cp.Upper = Rewrite(n.Upper, fn)
		out = &cp
	case *ArrayIndex:
		cp := *n
		cp.Array = Rewrite(n.Array, fn)
		cp.Index = Rewrite(n.Index, fn)
		out = &cp
	case *Cast:
		cp := *n
		cp.Operand = Rewrite(n.Operand, fn)
		out = &cp
	case *Exists:
		cp := *n
		cp.Query = RewriteQuery(n.Query, fn)
		out = &cp
	case *In:
		cp := *n
		cp.Operand = Rewrite(n.Operand, fn)
		cp.Values = rewriteAll(n.Values, fn)
		cp.Query = RewriteQuery(n.Query, fn)
		out = &cp
	case *Any:
		cp := *n
		cp.Operand = Rewrite(n.Operand, fn)
		cp.Array = Rewrite(n.Array, fn)
		out = &cp
	case *JsonPath:
		cp := *n
		cp.Operand = Rewrite(n.Operand, fn)
		cp.Path = rewriteAll(n.Path, fn)
		out = &cp
	default:
		out = e
	}
	return fn(out)
}

func rewriteAll(es []Expr, fn func(Expr) Expr) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = Rewrite(e, fn)
	}
	return out
}

func rewriteOrderings(os []*Ordering, fn func(Expr) Expr) []*Ordering {
	if os == nil {
		return nil
	}
	out := make([]*Ordering, len(os))
	for i, o := range os {
		out[i] = &Ordering{Expr: Rewrite(o.Expr, fn), Descending: o.Descending}
	}
	return out
}

// RewriteQuery applies Rewrite to every expression of q, returning a copy.
func RewriteQuery(q Query, fn func(Expr) Expr) Query {
	switch n := q.(type) {
	case *Select:
		return RewriteSelect(n, fn)
	case *SetOp:
		return &SetOp{Op: n.Op, Left: RewriteQuery(n.Left, fn), Right: RewriteQuery(n.Right, fn)}
	}
	return q
}

// RewriteSelect applies Rewrite to every expression of s, returning a copy.
func RewriteSelect(s *Select, fn func(Expr) Expr) *Select {
	if s == nil {
		return nil
	}
	cp := *s
	if s.With != nil {
		cp.With = make([]*CTE, len(s.With))
		for i, c := range s.With {
			cp.With[i] = &CTE{Name: c.Name, Query: RewriteQuery(c.Query, fn)}
		}
	}
	cp.Projection = make([]*Projection, len(s.Projection))
	for i, p := range s.Projection {
		cp.Projection[i] = &Projection{Expr: Rewrite(p.Expr, fn), Alias: p.Alias}
	}
	cp.From = rewriteSource(s.From, fn)
	if s.Joins != nil {
		cp.Joins = make([]*Join, len(s.Joins))
		for i, j := range s.Joins {
			cp.Joins[i] = &Join{Kind: j.Kind, Lateral: j.Lateral, Source: rewriteSource(j.Source, fn), On: Rewrite(j.On, fn)}
		}
	}
	cp.Where = Rewrite(s.Where, fn)
	cp.GroupBy = rewriteAll(s.GroupBy, fn)
	cp.Having = Rewrite(s.Having, fn)
	cp.OrderBy = rewriteOrderings(s.OrderBy, fn)
	cp.Limit = Rewrite(s.Limit, fn)
	cp.Offset = Rewrite(s.Offset, fn)
	return &cp
}

func rewriteSource(s Source, fn func(Expr) Expr) Source {
	switch n := s.(type) {
	case *DerivedTable:
		return &DerivedTable{Query: RewriteQuery(n.Query, fn), Alias: n.Alias}
	case *TableFunction:
		cp := *n
		call, ok := Rewrite(n.Call, fn).(*FunctionCall)
		if !ok {
			call = n.Call
		}
		cp.Call = call
		return &cp
	case *Values:
		cp := *n
		cp.Rows = make([][]Expr, len(n.Rows))
		for i, row := range n.Rows {
			cp.Rows[i] = rewriteAll(row, fn)
		}
		return &cp
	}
	return s
}

// MapChildren returns a copy of e whose direct expression children are
// replaced by fn(child). Nested queries are left untouched; callers that
// need to descend into them handle Subquery, Exists and In themselves.
func MapChildren(e Expr, fn func(Expr) Expr) Expr {
	apply := func(c Expr) Expr {
		if c == nil {
			return nil
		}
		return fn(c)
	}
	applyAll := func(es []Expr) []Expr {
		if es == nil {
			return nil
		}
		out := make([]Expr, len(es))
		for i, c := range es {
			out[i] = apply(c)
		}
		return out
	}

	switch n := e.(type) {
	case *FunctionCall:
		cp := *n
		cp.Args = applyAll(n.Args)
		if n.OrderBy != nil {
			cp.OrderBy = make([]*Ordering, len(n.OrderBy))
			for i, o := range n.OrderBy {
				cp.OrderBy[i] = &Ordering{Expr: apply(o.Expr), Descending: o.Descending}
			}
		}
		return &cp
	case *BinaryOp:
		cp := *n
		cp.Left, cp.Right = apply(n.Left), apply(n.Right)
		return &cp
	case *UnaryOp:
		cp := *n
		cp.Operand = apply(n.Operand)
		return &cp
	case *CaseWhen:
		cp := *n
		cp.Operand = apply(n.Operand)
		cp.Whens = make([]When, len(n.Whens))
		for i, w := range n.Whens {
			cp.Whens[i] = When{Cond: apply(w.Cond), Result: apply(w.Result)}
		}
		cp.Else = apply(n.Else)
		return &cp
	case *ArrayLiteral:
		cp := *n
		cp.Elems = applyAll(n.Elems)
		return &cp
	case *ArraySlice:
		cp := *n
		cp.Array, cp.Lower, cp.Upper = apply(n.Array), apply(n.Lower), apply(n.Upper)
		return &cp
	case *ArrayIndex:
		cp := *n
		cp.Array, cp.Index = apply(n.Array), apply(n.Index)
		return &cp
	case *Cast:
		cp := *n
		cp.Operand = apply(n.Operand)
		return &cp
	case *In:
		cp := *n
		cp.Operand = apply(n.Operand)
		cp.Values = applyAll(n.Values)
		return &cp
	case *Any:
		cp := *n
		cp.Operand, cp.Array = apply(n.Operand), apply(n.Array)
		return &cp
	case *JsonPath:
		cp := *n
		cp.Operand = apply(n.Operand)
		cp.Path = applyAll(n.Path)
		return &cp
	}
	return e
}
