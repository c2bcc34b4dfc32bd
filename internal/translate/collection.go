package translate

import (
	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// expanded is a collection turned into a row source.
type expanded struct {
	source  sqlexpr.Source
	element *Value
	order   []*orderKey
}

// expansion turns a collection value into a row source:
//
//	queryable        (SELECT ...) AS t
//	inline literal   (VALUES (10, 1), (999, 2)) AS v(value, ordinality)
//	native array     unnest(x) AS u(value)
//	list of structs  jsonb_to_recordset(x) AS o("Id" integer, ...)
//	                 or ROWS FROM (...) WITH ORDINALITY when order matters
//	list of scalars  jsonb_array_elements_text(x) AS j(value)
//	JSON array       jsonb_array_elements(x) AS j(value)
func (c *Context) expansion(v *Value) (*expanded, error) {
	switch {
	case v.Seq != nil:
		alias := c.Alias("t")
		m, err := c.materialize(v.Seq, alias)
		if err != nil {
			return nil, err
		}
		return &expanded{
			source:  &sqlexpr.DerivedTable{Query: v.Seq.Select, Alias: alias},
			element: m.element,
			order:   m.order,
		}, nil

	case v.Inline != nil && len(v.Inline) > 0:
		return c.valuesExpansion(v)

	case v.IsNativeArray():
		return c.unnest(v.Expr, v.Type.ElemType())

	case v.IsScalar() && v.Type.Kind == typemap.KindList:
		return c.listExpansion(v)

	case v.IsScalar() && (v.Type.Kind == typemap.KindJSON || v.Type.Kind == typemap.KindJSONB):
		store := v.Type.JSONStore()
		m := c.mustScalar(typemap.Kind(store))
		alias := c.Alias("j")
		fn := &sqlexpr.TableFunction{
			Call:        sqlexpr.NewFunction(store+"_array_elements", m, false, v.Expr),
			Alias:       alias,
			ColumnNames: []string{"value"},
		}
		return &expanded{
			source:  fn,
			element: scalar(sqlexpr.NewColumn(alias, "value", m, false), typemap.Type{Kind: m.Kind}),
			order:   []*orderKey{{fn: fn, alias: alias}},
		}, nil
	}
	return nil, c.Unsupported("", string(v.receiverKind()), "%s is not a collection", v.receiverKind())
}

func (c *Context) valuesExpansion(v *Value) (*expanded, error) {
	elemType := v.ElemType()
	em, err := c.Mapping(elemType)
	if err != nil {
		return nil, err
	}
	alias := c.Alias("v")
	rows := make([][]sqlexpr.Expr, len(v.Inline))
	for i, e := range v.Inline {
		rows[i] = []sqlexpr.Expr{e.Expr, c.intConst(int64(i + 1))}
	}
	return &expanded{
		source:  &sqlexpr.Values{Rows: rows, Alias: alias, Columns: []string{"value", "ordinality"}},
		element: scalar(sqlexpr.NewColumn(alias, "value", em, elemType.Nullable), elemType),
		order:   []*orderKey{{expr: sqlexpr.NewColumn(alias, "ordinality", c.mustScalar(typemap.KindInt), false)}},
	}, nil
}

func (c *Context) unnest(arr sqlexpr.Expr, elemType typemap.Type) (*expanded, error) {
	em := arr.Mapping().Element
	if em == nil {
		return nil, c.Mismatch("", arr.Mapping().StoreType, "%s is not an array", arr.Mapping())
	}
	if p, ok := arr.(*sqlexpr.Parameter); ok && p.ElemNullable {
		elemType.Nullable = true
	}
	alias := c.Alias("u")
	fn := &sqlexpr.TableFunction{
		Call:        sqlexpr.NewFunction("unnest", em, elemType.Nullable, arr),
		Alias:       alias,
		ColumnNames: []string{"value"},
	}
	return &expanded{
		source:  fn,
		element: scalar(sqlexpr.NewColumn(alias, "value", em, elemType.Nullable), elemType),
		order:   []*orderKey{{fn: fn, alias: alias}},
	}, nil
}

// listExpansion expands a JSON-owned collection. Element structs get an
// explicit column manifest; scalars are extracted as text and cast.
func (c *Context) listExpansion(v *Value) (*expanded, error) {
	store := v.Type.JSONStore()
	elemType := v.Type.ElemType()

	if elemType.Struct != nil {
		st := ownedStruct(elemType.Struct, store)
		cols := make([]sqlexpr.ColumnDef, len(st.Properties))
		for i, p := range st.Properties {
			m, err := c.Mapping(p.Type)
			if err != nil {
				return nil, err
			}
			cols[i] = sqlexpr.ColumnDef{Name: p.ColumnName(), Type: m.StoreType}
		}
		alias := c.Alias("o")
		fn := &sqlexpr.TableFunction{
			Call:    sqlexpr.NewFunction(store+"_to_recordset", c.mustScalar(typemap.Kind(store)), false, v.Expr),
			Alias:   alias,
			Columns: cols,
		}
		return &expanded{
			source:  fn,
			element: &Value{Row: &RowRef{Alias: alias, Struct: st}},
			order:   []*orderKey{{fn: fn, alias: alias}},
		}, nil
	}

	em, err := c.Mapping(elemType)
	if err != nil {
		return nil, err
	}
	text := c.mustScalar(typemap.KindText)
	alias := c.Alias("j")
	fn := &sqlexpr.TableFunction{
		Call:        sqlexpr.NewFunction(store+"_array_elements_text", text, false, v.Expr),
		Alias:       alias,
		ColumnNames: []string{"value"},
	}
	var elem sqlexpr.Expr = sqlexpr.NewColumn(alias, "value", text, elemType.Nullable)
	if em.StoreType != text.StoreType {
		elem = sqlexpr.NewCast(elem, em)
	}
	return &expanded{
		source:  fn,
		element: scalar(elem, elemType),
		order:   []*orderKey{{fn: fn, alias: alias}},
	}, nil
}

// ownedStruct returns s with nested JSON properties stored like their
// parent document, so one translation never mixes json and jsonb.
func ownedStruct(s *typemap.Struct, store string) *typemap.Struct {
	props := make([]*typemap.Property, len(s.Properties))
	for i, p := range s.Properties {
		cp := *p
		if cp.Type.Kind == typemap.KindStruct || cp.Type.Kind == typemap.KindList {
			cp.Type.Store = store
		}
		props[i] = &cp
	}
	return &typemap.Struct{Name: s.Name, Properties: props}
}

// sequence returns a queryable sequence over a collection value.
func (c *Context) sequence(v *Value) (*Sequence, error) {
	if v.Seq != nil {
		return v.Seq, nil
	}
	ex, err := c.expansion(v)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		Select:  &sqlexpr.Select{From: ex.source},
		Element: ex.element,
		Order:   ex.order,
	}, nil
}

func registerCollection(r *Recognizer) {
	coll := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(InCategory(typemap.CategoryCollection, method, arity), fn)
	}

	coll("Contains", 1, collContains)
	coll("Count", Variadic, collCount)
	coll("LongCount", Variadic, collCount)
	coll("Length", 0, collCount)
	coll("Any", Variadic, collAny)
	coll("All", 1, collAll)

	for _, fn := range []query.AggregateFunc{query.AggSum, query.AggAverage, query.AggMin, query.AggMax} {
		coll(string(fn), Variadic, collReduce(fn))
	}
	for _, fn := range []query.AggregateFunc{query.AggFirst, query.AggFirstOrDefault, query.AggSingle} {
		coll(string(fn), Variadic, collFirst(fn))
	}
	coll("ElementAt", 1, collElementAt)
	coll("Index", 1, collElementAt)

	coll("Where", 1, collSeq(func(c *Context, seq *Sequence, arg *Value) error { return c.where(seq, arg) }))
	coll("Select", 1, collSeq(func(c *Context, seq *Sequence, arg *Value) error { return c.selectElem(seq, arg) }))
	coll("OrderBy", 1, collOrder(false, false))
	coll("OrderByDescending", 1, collOrder(true, false))
	coll("ThenBy", 1, collOrder(false, true))
	coll("ThenByDescending", 1, collOrder(true, true))
	coll("Skip", 1, collSkipTake(true))
	coll("Take", 1, collSkipTake(false))
	coll("Distinct", 0, collDistinct)
	coll("Reverse", 0, collReverse)
	coll("SelectMany", 1, collSelectMany)

	coll("Concat", 1, collSetOp(sqlexpr.UnionAll))
	coll("Union", 1, collSetOp(sqlexpr.Union))
	coll("Except", 1, collSetOp(sqlexpr.Except))
	coll("Intersect", 1, collSetOp(sqlexpr.Intersect))

	coll("ToArray", 0, collToArray)
	coll("ToList", 0, collToArray)
	coll("IndexOf", 1, collIndexOf)
	coll("SequenceEqual", 1, collSequenceEqual)

	r.MustRegister(Static("Join", 2), stringJoin)
}

// optionalLambda returns the single lambda argument of an overload that
// takes zero or one, or an error for anything else.
func optionalLambda(c *Context, inv *Invocation) (*Value, error) {
	switch len(inv.Args) {
	case 0:
		return nil, nil
	case 1:
		if inv.Args[0].Lambda == nil {
			return nil, c.Unsupported(inv.Method, "", "%s expects a lambda argument", inv.Method)
		}
		return inv.Args[0], nil
	}
	return nil, c.Unsupported(inv.Method, "", "%s takes at most one argument", inv.Method)
}

func collContains(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	item, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}

	if recv.Inline != nil {
		return c.containsInline(recv, item)
	}

	if recv.IsNativeArray() {
		em := recv.Expr.Mapping().Element
		item = retypeItem(item, em, recv.ElemType())
		if !typemap.Compatible(item.Expr.Mapping(), em) {
			return nil, c.Mismatch("Contains", item.Type.String(), "cannot look for %s in %s", item.Expr.Mapping(), recv.Expr.Mapping())
		}
		elemNullable := recv.ElemType().Nullable
		if p, ok := recv.Expr.(*sqlexpr.Parameter); ok {
			elemNullable = p.ElemNullable
		}
		return scalar(sqlexpr.NewAny(item.Expr, recv.Expr, elemNullable, c.Bool()), typemap.Bool()), nil
	}

	seq, err := c.sequence(recv)
	if err != nil {
		return nil, err
	}
	elem, err := c.toScalar(seq.Element)
	if err != nil {
		return nil, err
	}
	item = retypeItem(item, elem.Expr.Mapping(), elem.Type)
	if !typemap.Compatible(item.Expr.Mapping(), elem.Expr.Mapping()) {
		return nil, c.Mismatch("Contains", item.Type.String(), "cannot look for %s in a collection of %s", item.Expr.Mapping(), elem.Expr.Mapping())
	}
	s := seq.Select
	if s.Limit == nil && s.Offset == nil {
		s.OrderBy = nil
	}
	s.Projection = []*sqlexpr.Projection{{Expr: elem.Expr}}
	return scalar(sqlexpr.NewInQuery(item.Expr, s, c.Bool()), typemap.Bool()), nil
}

// retypeItem gives an untyped NULL item the element mapping.
func retypeItem(item *Value, em *typemap.Mapping, elemType typemap.Type) *Value {
	if isNullConstant(item.Expr) && em != nil {
		return scalar(sqlexpr.NewConstant(ir.IRNull{}, em), elemType.WithNullable(true))
	}
	return item
}

// containsInline translates Contains over a literal collection by size:
// none is FALSE, one is an equality, more is IN or = ANY(array parameter).
func (c *Context) containsInline(recv, item *Value) (*Value, error) {
	elems := recv.Inline
	em := recv.Expr.Mapping().Element
	item = retypeItem(item, em, recv.ElemType())
	if !typemap.Compatible(item.Expr.Mapping(), em) {
		return nil, c.Mismatch("Contains", item.Type.String(), "cannot look for %s in %s", item.Expr.Mapping(), recv.Expr.Mapping())
	}

	switch len(elems) {
	case 0:
		return scalar(c.boolConst(false), typemap.Bool()), nil
	case 1:
		return c.binaryOp(query.OpEqual, item, elems[0])
	}

	allConst := true
	values := make([]sqlexpr.Expr, len(elems))
	elemNullable := false
	for i, e := range elems {
		values[i] = e.Expr
		if _, ok := e.Expr.(*sqlexpr.Constant); !ok {
			allConst = false
		}
		if sqlexpr.Nullable(e.Expr) || e.Type.Nullable {
			elemNullable = true
		}
	}

	foldable := !em.PerValueSQL
	if allConst {
		limit := c.opts.MaxInlineList
		foldable = foldable && limit > 0 && len(elems) > limit
	}
	if foldable {
		p, err := c.elementsParam(elems, c.reg.ArrayOf(em), elemNullable)
		if err != nil {
			return nil, err
		}
		if p != nil {
			return scalar(sqlexpr.NewAny(item.Expr, p, elemNullable, c.Bool()), typemap.Bool()), nil
		}
	}
	return scalar(sqlexpr.NewIn(item.Expr, values, c.Bool()), typemap.Bool()), nil
}

// elementsParam folds constants and captured values into one array
// parameter whose elements are resolved at bind time. It returns nil when
// an element is neither.
func (c *Context) elementsParam(elems []*Value, m *typemap.Mapping, elemNullable bool) (*sqlexpr.Parameter, error) {
	parts := make(ir.IRArray, len(elems))
	pes := make([]sqlexpr.ParamElement, len(elems))
	for i, e := range elems {
		switch n := e.Expr.(type) {
		case *sqlexpr.Constant:
			pes[i] = sqlexpr.ParamElement{Value: n.Value}
			parts[i] = ir.IRObject{"value": n.Value}
		case *sqlexpr.Parameter:
			if n.Captured == "" || len(n.Elements) > 0 {
				return nil, nil
			}
			pes[i] = sqlexpr.ParamElement{Captured: n.Captured}
			parts[i] = ir.IRObject{"captured": ir.IRString(n.Key)}
		default:
			return nil, nil
		}
	}
	key, err := ir.ParameterKey("", m.StoreType, parts)
	if err != nil {
		return nil, c.Mismatch("Contains", m.StoreType, "%v", err)
	}
	p := sqlexpr.NewParameter(key, "", m, false)
	p.Elements = pes
	p.ElemNullable = elemNullable
	return p, nil
}

func collCount(c *Context, inv *Invocation) (*Value, error) {
	lam, err := optionalLambda(c, inv)
	if err != nil {
		return nil, err
	}
	recv := inv.Receiver
	fn := query.AggCount
	t := typemap.Int()
	if inv.Method == "LongCount" {
		fn, t = query.AggLongCount, typemap.BigInt()
	}

	if lam == nil {
		switch {
		case recv.Inline != nil:
			return scalar(c.intConst(int64(len(recv.Inline))), t), nil
		case recv.IsNativeArray():
			// cardinality is NULL for a NULL array, like the host's
			// null-propagating Length.
			m := c.mustScalar(t.Kind)
			return scalar(sqlexpr.NewFunction("cardinality", m, false, recv.Expr), t.WithNullable(recv.Type.Nullable)), nil
		case recv.IsScalar() && recv.Type.Kind == typemap.KindList:
			m := c.mustScalar(t.Kind)
			return scalar(sqlexpr.NewFunction(recv.Type.JSONStore()+"_array_length", m, false, recv.Expr), t.WithNullable(recv.Type.Nullable)), nil
		}
	}
	seq, err := c.sequence(recv)
	if err != nil {
		return nil, err
	}
	return c.aggregate(seq, fn, lam)
}

func collAny(c *Context, inv *Invocation) (*Value, error) {
	lam, err := optionalLambda(c, inv)
	if err != nil {
		return nil, err
	}
	recv := inv.Receiver
	if lam == nil {
		var size sqlexpr.Expr
		switch {
		case recv.Inline != nil:
			return scalar(c.boolConst(len(recv.Inline) > 0), typemap.Bool()), nil
		case recv.IsNativeArray():
			size = sqlexpr.NewFunction("cardinality", c.mustScalar(typemap.KindInt), false, recv.Expr)
		case recv.IsScalar() && recv.Type.Kind == typemap.KindList:
			size = sqlexpr.NewFunction(recv.Type.JSONStore()+"_array_length", c.mustScalar(typemap.KindInt), false, recv.Expr)
		}
		if size != nil {
			return scalar(c.cmp(">", size, c.intConst(0)), typemap.Bool()), nil
		}
	}
	seq, err := c.sequence(recv)
	if err != nil {
		return nil, err
	}
	return c.aggregate(seq, query.AggAny, lam)
}

func collAll(c *Context, inv *Invocation) (*Value, error) {
	lam, err := optionalLambda(c, inv)
	if err != nil {
		return nil, err
	}
	seq, err := c.sequence(inv.Receiver)
	if err != nil {
		return nil, err
	}
	return c.aggregate(seq, query.AggAll, lam)
}

// collReduce translates Sum, Average, Min and Max. Min and Max over a
// literal collection become LEAST and GREATEST.
func collReduce(fn query.AggregateFunc) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		lam, err := optionalLambda(c, inv)
		if err != nil {
			return nil, err
		}
		recv := inv.Receiver
		if lam == nil && len(recv.Inline) > 0 && (fn == query.AggMin || fn == query.AggMax) {
			name := "LEAST"
			if fn == query.AggMax {
				name = "GREATEST"
			}
			args := make([]sqlexpr.Expr, len(recv.Inline))
			for i, e := range recv.Inline {
				args[i] = e.Expr
			}
			return scalar(sqlexpr.NewFunction(name, recv.Expr.Mapping().Element, false, args...), recv.ElemType()), nil
		}
		seq, err := c.sequence(recv)
		if err != nil {
			return nil, err
		}
		return c.aggregate(seq, fn, lam)
	}
}

func collFirst(fn query.AggregateFunc) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		lam, err := optionalLambda(c, inv)
		if err != nil {
			return nil, err
		}
		recv := inv.Receiver
		if lam == nil && fn != query.AggSingle && recv.IsNativeArray() {
			return c.arrayIndex(recv, c.intConst(1)), nil
		}
		seq, err := c.sequence(recv)
		if err != nil {
			return nil, err
		}
		return c.aggregate(seq, fn, lam)
	}
}

// arrayIndex subscripts a native array with a 1-based index.
func (c *Context) arrayIndex(arr *Value, idx sqlexpr.Expr) *Value {
	return scalar(sqlexpr.NewArrayIndex(arr.Expr, idx), arr.ElemType().WithNullable(true))
}

// collElementAt translates e.Ints[i] and ElementAt(i). Host indexes are
// 0-based; out-of-range positions yield NULL.
func collElementAt(c *Context, inv *Invocation) (*Value, error) {
	idx, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if !isIntegral(idx.Expr.Mapping().Kind) {
		return nil, c.Mismatch(inv.Method, idx.Type.String(), "index must be an integer, got %s", idx.Expr.Mapping())
	}
	recv := inv.Receiver
	if recv.IsNativeArray() {
		return c.arrayIndex(recv, c.plus(idx.Expr, c.intConst(1))), nil
	}
	seq, err := c.sequence(recv)
	if err != nil {
		return nil, err
	}
	if seq.Select.IsLimited() {
		if err := c.wrap(seq); err != nil {
			return nil, err
		}
	}
	elem, err := c.toScalar(seq.Element)
	if err != nil {
		return nil, err
	}
	c.needOrder(seq)
	s := seq.Select
	s.Offset = idx.Expr
	s.Limit = c.intConst(1)
	s.Projection = []*sqlexpr.Projection{{Expr: elem.Expr}}
	return scalar(sqlexpr.NewSubquery(s, elem.Expr.Mapping()), elem.Type.WithNullable(true)), nil
}

// collSeq adapts an operation that transforms a sequence in place.
func collSeq(op func(c *Context, seq *Sequence, arg *Value) error) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		arg := inv.Arg(0)
		if arg.Lambda == nil {
			return nil, c.Unsupported(inv.Method, "", "%s expects a lambda argument", inv.Method)
		}
		seq, err := c.sequence(inv.Receiver)
		if err != nil {
			return nil, err
		}
		if err := op(c, seq, arg); err != nil {
			return nil, err
		}
		return c.seqValue(seq), nil
	}
}

func collOrder(desc, then bool) TranslateFunc {
	return collSeq(func(c *Context, seq *Sequence, arg *Value) error {
		return c.orderBy(seq, arg, desc, then)
	})
}

// collSkipTake slices native arrays directly and pages everything else.
func collSkipTake(skip bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		n, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		count, err := c.countExpr(n)
		if err != nil {
			return nil, err
		}
		recv := inv.Receiver
		if recv.IsNativeArray() && recv.Inline == nil {
			var slice *sqlexpr.ArraySlice
			if skip {
				slice = sqlexpr.NewArraySlice(recv.Expr, c.plus(count, c.intConst(1)), nil)
			} else {
				slice = sqlexpr.NewArraySlice(recv.Expr, nil, count)
			}
			return scalar(slice, recv.Type), nil
		}
		seq, err := c.sequence(recv)
		if err != nil {
			return nil, err
		}
		if skip {
			err = c.skip(seq, n)
		} else {
			err = c.take(seq, n)
		}
		if err != nil {
			return nil, err
		}
		return c.seqValue(seq), nil
	}
}

func collDistinct(c *Context, inv *Invocation) (*Value, error) {
	seq, err := c.sequence(inv.Receiver)
	if err != nil {
		return nil, err
	}
	if err := c.distinct(seq); err != nil {
		return nil, err
	}
	return c.seqValue(seq), nil
}

// collReverse orders by the element position descending, or flips an
// explicit ordering.
func collReverse(c *Context, inv *Invocation) (*Value, error) {
	seq, err := c.sequence(inv.Receiver)
	if err != nil {
		return nil, err
	}
	if seq.Ordered {
		for _, o := range seq.Select.OrderBy {
			o.Descending = !o.Descending
		}
		return c.seqValue(seq), nil
	}
	if seq.Select.IsLimited() {
		if err := c.wrap(seq); err != nil {
			return nil, err
		}
	}
	keys := c.ordinals(seq)
	if len(keys) == 0 {
		return nil, c.Unsupported("Reverse", "", "collection has no element order")
	}
	seq.Select.OrderBy = orderings(keys, true)
	seq.Ordered = true
	return c.seqValue(seq), nil
}

func collSelectMany(c *Context, inv *Invocation) (*Value, error) {
	arg := inv.Arg(0)
	if arg.Lambda == nil {
		return nil, c.Unsupported(inv.Method, "", "SelectMany expects a lambda argument")
	}
	seq, err := c.sequence(inv.Receiver)
	if err != nil {
		return nil, err
	}
	if err := c.selectMany(seq, arg, nil); err != nil {
		return nil, err
	}
	return c.seqValue(seq), nil
}

// collSetOp translates Concat, Union, Except and Intersect. Two native
// arrays concatenate with ||; everything else becomes a set operation over
// the expanded operands.
func collSetOp(op sqlexpr.SetOpKind) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		left, right := inv.Receiver, inv.Arg(0)
		if op == sqlexpr.UnionAll && left.IsNativeArray() && right.IsNativeArray() {
			lm, rm := left.Expr.Mapping(), right.Expr.Mapping()
			if !typemap.Compatible(lm, rm) {
				return nil, c.Mismatch(inv.Method, "", "cannot concatenate %s and %s", lm, rm)
			}
			t := left.Type.WithNullable(left.Type.Nullable || right.Type.Nullable)
			return scalar(sqlexpr.NewBinary("||", left.Expr, right.Expr, lm), t), nil
		}

		ls, err := c.valueSelect(left)
		if err != nil {
			return nil, err
		}
		rs, err := c.valueSelect(right)
		if err != nil {
			return nil, err
		}
		if !typemap.Compatible(ls.elem.Expr.Mapping(), rs.elem.Expr.Mapping()) {
			return nil, c.Mismatch(inv.Method, "", "cannot combine collections of %s and %s", ls.elem.Expr.Mapping(), rs.elem.Expr.Mapping())
		}
		alias := c.Alias("s")
		m := ls.elem.Expr.Mapping()
		nullable := ls.elem.Type.Nullable || rs.elem.Type.Nullable
		seq := &Sequence{
			Select: &sqlexpr.Select{From: &sqlexpr.DerivedTable{
				Query: &sqlexpr.SetOp{Op: op, Left: ls.stmt, Right: rs.stmt},
				Alias: alias,
			}},
			Element: scalar(sqlexpr.NewColumn(alias, "value", m, nullable), ls.elem.Type.WithNullable(nullable)),
		}
		return c.seqValue(seq), nil
	}
}

type valueStmt struct {
	stmt *sqlexpr.Select
	elem *Value
}

// valueSelect projects the scalar elements of a collection as "value".
func (c *Context) valueSelect(v *Value) (*valueStmt, error) {
	seq, err := c.sequence(v)
	if err != nil {
		return nil, err
	}
	if seq.Select.Limit != nil || seq.Select.Offset != nil {
		if err := c.wrap(seq); err != nil {
			return nil, err
		}
	}
	elem, err := c.toScalar(seq.Element)
	if err != nil {
		return nil, err
	}
	s := seq.Select
	s.OrderBy = nil
	s.Projection = []*sqlexpr.Projection{{Expr: elem.Expr, Alias: "value"}}
	return &valueStmt{stmt: s, elem: elem}, nil
}

func collToArray(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	if recv.Seq != nil {
		return c.seqArray(recv.Seq)
	}
	if recv.IsNativeArray() {
		return scalar(recv.Expr, recv.Type), nil
	}
	seq, err := c.sequence(recv)
	if err != nil {
		return nil, err
	}
	return c.seqArray(seq)
}

// collIndexOf maps array_position's 1-based result (NULL when absent) to
// the host's 0-based index (-1 when absent).
func collIndexOf(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	if !recv.IsNativeArray() {
		return nil, nil
	}
	item, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if !typemap.Compatible(item.Expr.Mapping(), recv.Expr.Mapping().Element) {
		return nil, c.Mismatch("IndexOf", item.Type.String(), "cannot look for %s in %s", item.Expr.Mapping(), recv.Expr.Mapping())
	}
	im := c.mustScalar(typemap.KindInt)
	pos := sqlexpr.NewFunction("array_position", im, true, recv.Expr, item.Expr)
	idx := sqlexpr.NewBinary("-", pos, c.intConst(1), im)
	return scalar(sqlexpr.NewFunction("COALESCE", im, false, idx, c.intConst(-1)), typemap.Int()), nil
}

func collSequenceEqual(c *Context, inv *Invocation) (*Value, error) {
	l, err := c.toScalar(inv.Receiver)
	if err != nil {
		return nil, err
	}
	r, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	return c.binaryOp(query.OpEqual, l, r)
}

// stringJoin translates string.Join(separator, values).
func stringJoin(c *Context, inv *Invocation) (*Value, error) {
	sep, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if !sep.Expr.Mapping().IsText() {
		return nil, c.Mismatch("Join", sep.Type.String(), "separator must be text, got %s", sep.Expr.Mapping())
	}
	values, err := c.toScalar(inv.Arg(1))
	if err != nil {
		return nil, err
	}
	if !values.Expr.Mapping().IsArray() {
		return nil, c.Mismatch("Join", values.Type.String(), "cannot join %s", values.Expr.Mapping())
	}
	text := c.mustScalar(typemap.KindText)
	return scalar(sqlexpr.NewFunction("array_to_string", text, false, values.Expr, sep.Expr), typemap.Text().WithNullable(values.Type.Nullable)), nil
}
