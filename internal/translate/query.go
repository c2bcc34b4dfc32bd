package translate

import (
	"fmt"
	"slices"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// ResultShape describes what the rows of a plan represent.
type ResultShape string

const (
	// ShapeRows is a row set.
	ShapeRows ResultShape = "rows"
	// ShapeRow is at most one row (First, FirstOrDefault).
	ShapeRow ResultShape = "row"
	// ShapeSingle is at most two rows; the caller checks there is exactly one.
	ShapeSingle ResultShape = "single"
	// ShapeScalar is one row with one column (Count, Sum, Any, ...).
	ShapeScalar ResultShape = "scalar"
)

// root starts a sequence over an entity set.
func (c *Context) root(source string) (*Sequence, error) {
	ent, ok := c.model.Entity(source)
	if !ok {
		return nil, c.Unsupported("", source, "unknown entity set %q", source)
	}
	alias := c.Alias(ent.Name)
	return &Sequence{
		Select:  &sqlexpr.Select{From: &sqlexpr.Table{Name: ent.Table, Schema: ent.Schema, Alias: alias}},
		Element: &Value{Row: &RowRef{Alias: alias, Struct: ent}},
	}, nil
}

// build applies every operation of q except a trailing aggregate, which is
// returned for the caller to translate in its own context.
func (c *Context) build(q *query.Query, top bool) (*Sequence, *query.Aggregate, error) {
	seq, err := c.root(q.Source)
	if err != nil {
		return nil, nil, err
	}
	for i, op := range q.Ops {
		last := i == len(q.Ops)-1
		if agg, ok := op.(*query.Aggregate); ok && last {
			return seq, agg, nil
		}
		pop := c.at(fmt.Sprintf("ops[%d]", i))
		err := c.operation(seq, op, top && last)
		pop()
		if err != nil {
			return nil, nil, err
		}
	}
	return seq, nil, nil
}

// queryValue translates a nested query: a queryable sequence, or a scalar
// when the query ends in an aggregate.
func (c *Context) queryValue(q *query.Query) (*Value, error) {
	seq, agg, err := c.build(q, false)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return c.seqValue(seq), nil
	}
	defer c.at(fmt.Sprintf("ops[%d]", len(q.Ops)-1))()
	return c.aggregate(seq, agg.Func, aggLambda(agg))
}

func aggLambda(agg *query.Aggregate) *Value {
	if agg.Lambda == nil {
		return nil
	}
	return &Value{Lambda: agg.Lambda, pos: "." + query.OpName(agg)}
}

func (c *Context) seqValue(seq *Sequence) *Value {
	v := &Value{Seq: seq}
	if seq.Element != nil && seq.Element.IsScalar() {
		v.Type = typemap.ArrayOf(seq.Element.Type)
	}
	return v
}

func (c *Context) operation(seq *Sequence, op query.Operation, final bool) error {
	name := query.OpName(op)
	switch o := op.(type) {
	case *query.Where:
		return c.where(seq, &Value{Lambda: o.Predicate, pos: ".where"})
	case *query.Select:
		c.clientOK = final
		defer func() { c.clientOK = false }()
		return c.selectElem(seq, &Value{Lambda: o.Selector, pos: ".select"})
	case *query.OrderBy:
		return c.orderBy(seq, &Value{Lambda: o.Key, pos: "." + name}, o.Descending, o.Then)
	case *query.Skip:
		defer c.at(".skip")()
		n, err := c.scalarExpr(o.Count)
		if err != nil {
			return err
		}
		return c.skip(seq, n)
	case *query.Take:
		defer c.at(".take")()
		n, err := c.scalarExpr(o.Count)
		if err != nil {
			return err
		}
		return c.take(seq, n)
	case *query.Distinct:
		return c.distinct(seq)
	case *query.GroupBy:
		return c.groupBy(seq, &Value{Lambda: o.Key, pos: ".groupBy"})
	case *query.SelectMany:
		var result *Value
		if o.Result != nil {
			result = &Value{Lambda: o.Result, pos: ".selectMany.result"}
		}
		return c.selectMany(seq, &Value{Lambda: o.Collection, pos: ".selectMany.collection"}, result)
	case *query.Join:
		return c.join(seq, o)
	case *query.Aggregate:
		return c.Unsupported(name, "", "terminal %s must be the last operation", name)
	}
	return c.Unsupported("", "", "unknown operation %T", op)
}

func (c *Context) grouped(seq *Sequence) bool {
	return seq.Element.Group != nil || len(seq.Select.GroupBy) > 0
}

// filter adds a predicate at the level the current element lives on.
func (c *Context) filter(seq *Sequence, pred sqlexpr.Expr) {
	if c.grouped(seq) {
		seq.Select.Having = c.and(seq.Select.Having, pred)
		return
	}
	seq.Select.AndWhere(pred)
}

func (c *Context) where(seq *Sequence, lam *Value) error {
	s := seq.Select
	if s.Limit != nil || s.Offset != nil || s.Distinct {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	pred, err := c.applyArgPredicate(lam, seq.Element)
	if err != nil {
		return err
	}
	c.filter(seq, pred)
	return nil
}

func (c *Context) selectElem(seq *Sequence, lam *Value) error {
	if seq.Select.Distinct {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	elem, err := c.applyArg(lam, seq.Element)
	if err != nil {
		return err
	}
	seq.Element = elem
	seq.Projected = true
	return nil
}

func (c *Context) orderBy(seq *Sequence, lam *Value, desc, then bool) error {
	s := seq.Select
	if s.Limit != nil || s.Offset != nil || s.Distinct {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	key, err := c.applyArg(lam, seq.Element)
	if err != nil {
		return err
	}
	var keys []*Value
	if key.Object != nil {
		for _, f := range key.Object {
			keys = append(keys, f.Value)
		}
	} else {
		keys = []*Value{key}
	}
	orderings := make([]*sqlexpr.Ordering, 0, len(keys))
	for _, k := range keys {
		v, err := c.toScalar(k)
		if err != nil {
			return err
		}
		orderings = append(orderings, &sqlexpr.Ordering{Expr: v.Expr, Descending: desc})
	}
	if then && seq.Ordered {
		seq.Select.OrderBy = append(seq.Select.OrderBy, orderings...)
	} else {
		seq.Select.OrderBy = orderings
	}
	seq.Ordered = true
	return nil
}

func (c *Context) countExpr(n *Value) (sqlexpr.Expr, error) {
	if !isIntegral(n.Expr.Mapping().Kind) {
		return nil, c.Mismatch("", n.Type.String(), "row count must be an integer, got %s", n.Expr.Mapping())
	}
	return n.Expr, nil
}

func (c *Context) skip(seq *Sequence, n *Value) error {
	count, err := c.countExpr(n)
	if err != nil {
		return err
	}
	if seq.Select.Limit != nil {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	c.needOrder(seq)
	s := seq.Select
	if s.Offset != nil {
		s.Offset = c.plus(s.Offset, count)
		return nil
	}
	s.Offset = count
	return nil
}

func (c *Context) take(seq *Sequence, n *Value) error {
	count, err := c.countExpr(n)
	if err != nil {
		return err
	}
	c.needOrder(seq)
	c.limit(seq.Select, count)
	return nil
}

// limit sets LIMIT n, keeping the smaller of n and an existing limit.
func (c *Context) limit(s *sqlexpr.Select, n sqlexpr.Expr) {
	if s.Limit == nil {
		s.Limit = n
		return
	}
	if a, ok := intValue(s.Limit); ok {
		if b, ok := intValue(n); ok {
			s.Limit = c.intConst(min(a, b))
			return
		}
	}
	s.Limit = sqlexpr.NewFunction("LEAST", s.Limit.Mapping(), false, s.Limit, n)
}

func intValue(e sqlexpr.Expr) (int64, bool) {
	if k, ok := e.(*sqlexpr.Constant); ok {
		if n, ok := k.Value.(ir.IRInt); ok {
			return int64(n), true
		}
	}
	return 0, false
}

// plus adds two integer expressions, folding constants.
func (c *Context) plus(a, b sqlexpr.Expr) sqlexpr.Expr {
	if x, ok := intValue(a); ok {
		if y, ok := intValue(b); ok {
			return c.intConst(x + y)
		}
	}
	return sqlexpr.NewBinary("+", a, b, a.Mapping())
}

func (c *Context) distinct(seq *Sequence) error {
	s := seq.Select
	if s.Limit != nil || s.Offset != nil {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	seq.Select.Distinct = true
	seq.Select.OrderBy = nil
	seq.Ordered = false
	seq.Order = nil
	return nil
}

func (c *Context) groupBy(seq *Sequence, lam *Value) error {
	if seq.Select.IsLimited() {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	key, err := c.applyArg(lam, seq.Element)
	if err != nil {
		return err
	}
	var exprs []sqlexpr.Expr
	if key.Object != nil {
		for i, f := range key.Object {
			v, err := c.toScalar(f.Value)
			if err != nil {
				return err
			}
			key.Object[i] = &Field{Name: f.Name, Value: v}
			exprs = append(exprs, v.Expr)
		}
	} else {
		key, err = c.toScalar(key)
		if err != nil {
			return err
		}
		exprs = []sqlexpr.Expr{key.Expr}
	}
	s := seq.Select
	s.GroupBy = exprs
	s.OrderBy = nil
	seq.Element = &Value{Group: &Group{Key: key, Element: seq.Element}}
	seq.Ordered = false
	seq.Order = nil
	return nil
}

func (c *Context) selectMany(seq *Sequence, collection, result *Value) error {
	if seq.Select.IsLimited() {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}
	outer := seq.Element
	outerOrder := seq.Order
	if len(outerOrder) == 0 {
		outerOrder = c.rowKey(outer)
	}
	coll, err := c.applyArg(collection, outer)
	if err != nil {
		return err
	}
	ex, err := c.expansion(coll)
	if err != nil {
		return err
	}
	c.addLateral(seq.Select, &sqlexpr.Join{Kind: sqlexpr.CrossJoin, Lateral: true, Source: ex.source})

	elem := ex.element
	if result != nil {
		elem, err = c.applyArg(result, outer, ex.element)
		if err != nil {
			return err
		}
	}
	seq.Element = elem
	seq.Projected = result != nil
	if seq.Ordered {
		// Explicitly ordered parents: ties between parents must not
		// interleave their elements.
		for _, k := range slices.Concat(c.rowKey(outer), ex.order) {
			seq.Select.OrderBy = append(seq.Select.OrderBy, &sqlexpr.Ordering{Expr: c.orderExpr(k)})
		}
		return nil
	}
	seq.Order = slices.Concat(outerOrder, ex.order)
	return nil
}

// rowKey returns the key columns of an entity row, or nil for other values.
func (c *Context) rowKey(v *Value) []*orderKey {
	if v == nil || v.Row == nil || v.Row.Struct == nil || v.Row.Struct.Table == "" {
		return nil
	}
	var keys []*orderKey
	for _, p := range v.Row.Struct.KeyProperties() {
		col, ok := c.rowMember(v.Row, p.Name)
		if !ok {
			return nil
		}
		keys = append(keys, &orderKey{expr: col.Expr})
	}
	return keys
}

func (c *Context) join(seq *Sequence, j *query.Join) error {
	if seq.Select.IsLimited() {
		if err := c.wrap(seq); err != nil {
			return err
		}
	}

	source, inner, err := c.joinSource(j.Inner)
	if err != nil {
		return err
	}
	outerKey, err := c.applyArg(&Value{Lambda: j.OuterKey, pos: ".join.outerKey"}, seq.Element)
	if err != nil {
		return err
	}
	innerKey, err := c.applyArg(&Value{Lambda: j.InnerKey, pos: ".join.innerKey"}, inner)
	if err != nil {
		return err
	}
	on, err := c.keyEquality(outerKey, innerKey)
	if err != nil {
		return err
	}
	seq.Select.Joins = append(seq.Select.Joins, &sqlexpr.Join{Kind: sqlexpr.InnerJoin, Source: source, On: on})

	elem, err := c.applyArg(&Value{Lambda: j.Result, pos: ".join.result"}, seq.Element, inner)
	if err != nil {
		return err
	}
	seq.Element = elem
	seq.Projected = true
	return nil
}

// joinSource returns the row source of a join's inner query. Bare entity
// sets are joined directly; queries with operations become a CTE.
func (c *Context) joinSource(q *query.Query) (sqlexpr.Source, *Value, error) {
	defer c.at(".join.inner.")()
	if q == nil {
		return nil, nil, c.Unsupported("Join", "", "join has no inner query")
	}
	if len(q.Ops) == 0 {
		inner, err := c.root(q.Source)
		if err != nil {
			return nil, nil, err
		}
		return inner.Select.From, inner.Element, nil
	}
	inner, agg, err := c.build(q, false)
	if err != nil {
		return nil, nil, err
	}
	if agg != nil {
		return nil, nil, c.Unsupported(query.OpName(agg), "", "the inner query of a join cannot end in an aggregate")
	}
	alias := c.Alias(q.Source)
	m, err := c.materialize(inner, alias)
	if err != nil {
		return nil, nil, err
	}
	name := c.addCTE(q.Source+"_cte", inner.Select)
	return &sqlexpr.Table{Name: name, Alias: alias}, m.element, nil
}

// keyEquality builds the ON clause of an equi-join. Join keys never match
// on null, which is plain SQL equality, so the comparisons are marked
// null-safe.
func (c *Context) keyEquality(outer, inner *Value) (sqlexpr.Expr, error) {
	var ls, rs []*Value
	switch {
	case outer.Object != nil && inner.Object != nil:
		if len(outer.Object) != len(inner.Object) {
			return nil, c.Mismatch("Join", "", "join keys have %d and %d members", len(outer.Object), len(inner.Object))
		}
		for i := range outer.Object {
			ls = append(ls, outer.Object[i].Value)
			rs = append(rs, inner.Object[i].Value)
		}
	default:
		ls, rs = []*Value{outer}, []*Value{inner}
	}

	var on sqlexpr.Expr
	for i := range ls {
		l, err := c.toScalar(ls[i])
		if err != nil {
			return nil, err
		}
		r, err := c.toScalar(rs[i])
		if err != nil {
			return nil, err
		}
		if !typemap.Compatible(l.Expr.Mapping(), r.Expr.Mapping()) {
			return nil, c.Mismatch("Join", "", "cannot join %s with %s", l.Expr.Mapping(), r.Expr.Mapping())
		}
		eq := sqlexpr.NewBinary("=", l.Expr, r.Expr, c.Bool())
		eq.NullSafe = true
		on = c.and(on, eq)
	}
	return on, nil
}

// needOrder makes an expanded collection keep its element order.
func (c *Context) needOrder(seq *Sequence) {
	if seq.Ordered {
		return
	}
	keys := c.ordinals(seq)
	if len(keys) > 0 && len(seq.Select.OrderBy) == 0 {
		seq.Select.OrderBy = orderings(keys, false)
	}
}

// ordinals returns the element order keys of seq, adding every ordinality
// column they need.
func (c *Context) ordinals(seq *Sequence) []sqlexpr.Expr {
	keys := make([]sqlexpr.Expr, 0, len(seq.Order))
	for _, k := range seq.Order {
		keys = append(keys, c.orderExpr(k))
	}
	return keys
}

func (c *Context) orderExpr(k *orderKey) sqlexpr.Expr {
	if k.expr == nil {
		k.fn.WithOrdinality = true
		if len(k.fn.Columns) == 0 {
			k.fn.ColumnNames = append(k.fn.ColumnNames, "ordinality")
		}
		k.expr = sqlexpr.NewColumn(k.alias, "ordinality", c.mustScalar(typemap.KindBigInt), false)
	}
	return k.expr
}

func orderings(keys []sqlexpr.Expr, desc bool) []*sqlexpr.Ordering {
	out := make([]*sqlexpr.Ordering, len(keys))
	for i, k := range keys {
		out[i] = &sqlexpr.Ordering{Expr: k, Descending: desc}
	}
	return out
}

// materialized is a sequence turned into a named row source.
type materialized struct {
	element *Value
	order   []*orderKey
	sorts   []*sqlexpr.Ordering
}

// materialize sets the projection of seq.Select so it can be referenced
// under alias, and returns the element as seen through alias.
func (c *Context) materialize(seq *Sequence, alias string) (*materialized, error) {
	projs, rebuild, err := c.flatten("", seq.Element)
	if err != nil {
		return nil, err
	}
	s := seq.Select
	out := &materialized{}
	if !seq.Ordered {
		for i, k := range c.ordinals(seq) {
			name := "ordinality"
			if i > 0 {
				name = fmt.Sprintf("ordinality%d", i+1)
			}
			projs = append(projs, &sqlexpr.Projection{Expr: k, Alias: name})
			out.order = append(out.order, &orderKey{expr: sqlexpr.NewColumn(alias, name, k.Mapping(), sqlexpr.Nullable(k))})
		}
	}
	for i, o := range s.OrderBy {
		name := fmt.Sprintf("_order%d", i)
		projs = append(projs, &sqlexpr.Projection{Expr: o.Expr, Alias: name})
		out.sorts = append(out.sorts, &sqlexpr.Ordering{
			Expr:       sqlexpr.NewColumn(alias, name, o.Expr.Mapping(), sqlexpr.Nullable(o.Expr)),
			Descending: o.Descending,
		})
	}
	if s.Limit == nil && s.Offset == nil {
		s.OrderBy = nil
	}
	s.Projection = projs
	out.element = rebuild(alias)
	return out, nil
}

// wrap turns the current select into a derived table so later operations
// apply to its result.
func (c *Context) wrap(seq *Sequence) error {
	alias := c.Alias("t")
	m, err := c.materialize(seq, alias)
	if err != nil {
		return err
	}
	seq.Select = &sqlexpr.Select{
		From:    &sqlexpr.DerivedTable{Query: seq.Select, Alias: alias},
		OrderBy: m.sorts,
	}
	seq.Element = m.element
	seq.Order = m.order
	return nil
}

// flatten lists the columns of a value and returns a function rebuilding
// the value from those columns under a new alias. Nested names are joined
// with dots ("Customer.Name").
func (c *Context) flatten(prefix string, v *Value) ([]*sqlexpr.Projection, func(alias string) *Value, error) {
	name := func(n string) string {
		if prefix == "" {
			return n
		}
		return prefix + "." + n
	}

	switch {
	case v == nil:
		return nil, nil, c.Unsupported("", "", "missing value")

	case v.Row != nil:
		row := v.Row
		var projs []*sqlexpr.Projection
		props := make([]*typemap.Property, len(row.Struct.Properties))
		for i, p := range row.Struct.Properties {
			col, _ := c.rowMember(row, p.Name)
			if col == nil {
				return nil, nil, c.Mismatch("", p.Name, "property %s.%s has no store mapping", row.Struct.Name, p.Name)
			}
			colName := name(p.ColumnName())
			projs = append(projs, &sqlexpr.Projection{Expr: col.Expr, Alias: colName})
			cp := *p
			cp.Column = colName
			props[i] = &cp
		}
		st := &typemap.Struct{Name: row.Struct.Name, Properties: props}
		return projs, func(alias string) *Value {
			return &Value{Row: &RowRef{Alias: alias, Struct: st, Nullable: row.Nullable}}
		}, nil

	case v.Object != nil:
		var projs []*sqlexpr.Projection
		rebuilds := make([]func(string) *Value, len(v.Object))
		for i, f := range v.Object {
			ps, rb, err := c.flatten(name(f.Name), f.Value)
			if err != nil {
				return nil, nil, err
			}
			projs = append(projs, ps...)
			rebuilds[i] = rb
		}
		return projs, func(alias string) *Value {
			fields := make([]*Field, len(v.Object))
			for i, f := range v.Object {
				fields[i] = &Field{Name: f.Name, Value: rebuilds[i](alias)}
			}
			return &Value{Object: fields}
		}, nil

	case v.Group != nil:
		projs, rb, err := c.flatten(name("Key"), v.Group.Key)
		if err != nil {
			return nil, nil, err
		}
		return projs, func(alias string) *Value {
			return &Value{Object: []*Field{{Name: "Key", Value: rb(alias)}}}
		}, nil
	}

	sv, err := c.toScalar(v)
	if err != nil {
		return nil, nil, err
	}
	colName := name("value")
	if prefix != "" {
		colName = prefix
	}
	m, nullable, t := sv.Expr.Mapping(), sqlexpr.Nullable(sv.Expr), sv.Type
	return []*sqlexpr.Projection{{Expr: sv.Expr, Alias: colName}}, func(alias string) *Value {
		return scalar(sqlexpr.NewColumn(alias, colName, m, nullable), t)
	}, nil
}

// seqArray collects a sequence of scalars into ARRAY(subquery).
func (c *Context) seqArray(seq *Sequence) (*Value, error) {
	elem, err := c.toScalar(seq.Element)
	if err != nil {
		return nil, err
	}
	c.needOrder(seq)
	seq.Select.Projection = []*sqlexpr.Projection{{Expr: elem.Expr}}
	m := c.reg.ArrayOf(elem.Expr.Mapping())
	return scalar(sqlexpr.NewArraySubquery(seq.Select, m), typemap.ArrayOf(elem.Type)), nil
}

// aggregate translates a terminal operator over seq into a scalar value
// usable inside an enclosing expression.
func (c *Context) aggregate(seq *Sequence, fn query.AggregateFunc, lam *Value) (*Value, error) {
	t, err := c.terminal(seq, fn, lam, false)
	if err != nil {
		return nil, err
	}
	if t.value != nil {
		return t.value, nil
	}
	// First/Single inside an expression: a scalar subquery of the element.
	elem, err := c.toScalar(t.element)
	if err != nil {
		return nil, c.Unsupported(string(fn), "", "only sequences of scalars can be reduced inside an expression")
	}
	t.stmt.Projection = []*sqlexpr.Projection{{Expr: elem.Expr}}
	return scalar(sqlexpr.NewSubquery(t.stmt, elem.Expr.Mapping()), elem.Type.WithNullable(true)), nil
}

// terminalResult is a translated terminal operator. Reductions set value
// (nested form) and expr (the reduced expression projected by stmt);
// element-returning operators (First, Single) set element instead.
type terminalResult struct {
	stmt    *sqlexpr.Select
	value   *Value
	expr    *Value
	element *Value
	shape   ResultShape
}

func (c *Context) terminal(seq *Sequence, fn query.AggregateFunc, lam *Value, top bool) (*terminalResult, error) {
	reduce := func(e sqlexpr.Expr, t typemap.Type) *terminalResult {
		s := seq.Select
		s.OrderBy = nil
		s.Projection = []*sqlexpr.Projection{{Expr: e}}
		return &terminalResult{
			stmt:  s,
			value: scalar(sqlexpr.NewSubquery(s, e.Mapping()), t),
			expr:  scalar(e, t),
			shape: ShapeScalar,
		}
	}
	// selector applies the optional selector lambda of Sum/Min/Max/Average.
	selector := func() (*Value, error) {
		if seq.Select.IsLimited() {
			if err := c.wrap(seq); err != nil {
				return nil, err
			}
		}
		if lam != nil {
			return c.applyArgScalar(lam, seq.Element)
		}
		return c.toScalar(seq.Element)
	}

	switch fn {
	case query.AggCount, query.AggLongCount:
		if lam != nil {
			if err := c.where(seq, lam); err != nil {
				return nil, err
			}
		}
		if seq.Select.IsLimited() {
			if err := c.wrap(seq); err != nil {
				return nil, err
			}
		}
		t := typemap.Int()
		if fn == query.AggLongCount {
			t = typemap.BigInt()
		}
		count := sqlexpr.NewAggregate("COUNT", c.mustScalar(t.Kind))
		count.Star = true
		return reduce(count, t), nil

	case query.AggSum:
		x, err := selector()
		if err != nil {
			return nil, err
		}
		m := x.Expr.Mapping()
		if typemap.CategoryOf(m.Kind) != typemap.CategoryNumeric {
			return nil, c.Mismatch(string(fn), x.Type.String(), "cannot sum %s", m)
		}
		var sum sqlexpr.Expr = sqlexpr.NewFunction("COALESCE", m, false,
			sqlexpr.NewAggregate("SUM", m, x.Expr), c.intConst(0))
		if isIntegral(m.Kind) {
			sum = sqlexpr.NewCast(sum, m)
		}
		return reduce(sum, x.Type.WithNullable(false)), nil

	case query.AggAverage:
		x, err := selector()
		if err != nil {
			return nil, err
		}
		m := x.Expr.Mapping()
		if typemap.CategoryOf(m.Kind) != typemap.CategoryNumeric {
			return nil, c.Mismatch(string(fn), x.Type.String(), "cannot average %s", m)
		}
		var avg sqlexpr.Expr = sqlexpr.NewAggregate("AVG", m, x.Expr)
		t := x.Type.WithNullable(true)
		if isIntegral(m.Kind) {
			dm := c.mustScalar(typemap.KindDouble)
			avg = sqlexpr.NewCast(avg, dm)
			t = typemap.Nullable(typemap.Double())
		}
		return reduce(avg, t), nil

	case query.AggMin, query.AggMax:
		x, err := selector()
		if err != nil {
			return nil, err
		}
		name := "MIN"
		if fn == query.AggMax {
			name = "MAX"
		}
		return reduce(sqlexpr.NewAggregate(name, x.Expr.Mapping(), x.Expr), x.Type.WithNullable(true)), nil

	case query.AggAny:
		if lam != nil {
			if err := c.where(seq, lam); err != nil {
				return nil, err
			}
		}
		s := seq.Select
		if s.Limit == nil && s.Offset == nil {
			s.OrderBy = nil
		}
		s.Projection = nil
		ex := sqlexpr.NewExists(s, false, c.Bool())
		return c.existsResult(ex), nil

	case query.AggAll:
		if lam == nil {
			return nil, c.Unsupported(string(fn), "", "All requires a predicate")
		}
		if seq.Select.IsLimited() && !c.grouped(seq) {
			if err := c.wrap(seq); err != nil {
				return nil, err
			}
		}
		pred, err := c.applyArgPredicate(lam, seq.Element)
		if err != nil {
			return nil, err
		}
		c.filter(seq, c.not(pred))
		s := seq.Select
		s.OrderBy = nil
		s.Projection = nil
		ex := sqlexpr.NewExists(s, true, c.Bool())
		return c.existsResult(ex), nil

	case query.AggFirst, query.AggFirstOrDefault, query.AggSingle:
		if lam != nil {
			if err := c.where(seq, lam); err != nil {
				return nil, err
			}
		}
		shape := ShapeRow
		switch {
		case fn != query.AggSingle:
			c.needOrder(seq)
			c.limit(seq.Select, c.intConst(1))
		case top:
			// Two rows are enough to tell "one" from "more than one".
			c.limit(seq.Select, c.intConst(2))
			shape = ShapeSingle
		}
		return &terminalResult{stmt: seq.Select, element: seq.Element, shape: shape}, nil
	}
	return nil, c.Unsupported(string(fn), "", "unknown aggregate %s", fn)
}

func (c *Context) existsResult(ex *sqlexpr.Exists) *terminalResult {
	v := scalar(ex, typemap.Bool())
	return &terminalResult{
		stmt:  &sqlexpr.Select{Projection: []*sqlexpr.Projection{{Expr: ex}}},
		value: v,
		expr:  v,
		shape: ShapeScalar,
	}
}

// Column is one output column of a plan.
type Column struct {
	// Name is the host-side name: a property, an object field path
	// ("Customer.Name") or "Value" for scalar results.
	Name string

	// Ordinal is the index of the SQL result column, or -1 for columns
	// computed on the client.
	Ordinal int

	StoreType string

	// Client describes a column computed after reading the row.
	Client *ClientColumn
}

// ClientColumn is a call evaluated on materialized rows. Args are the
// ordinals of the SQL columns passed to it.
type ClientColumn struct {
	Method string
	Args   []int
}

// finalize sets the projection of the top-level statement.
func (c *Context) finalize(s *sqlexpr.Select, elem *Value) ([]Column, error) {
	var cols []Column
	add := func(name string, e sqlexpr.Expr, alias string) int {
		s.Projection = append(s.Projection, &sqlexpr.Projection{Expr: e, Alias: alias})
		ord := len(s.Projection) - 1
		cols = append(cols, Column{Name: name, Ordinal: ord, StoreType: e.Mapping().StoreType})
		return ord
	}

	var walk func(name string, v *Value) error
	walk = func(name string, v *Value) error {
		join := func(n string) string {
			if name == "" {
				return n
			}
			return name + "." + n
		}
		switch {
		case v.Row != nil:
			for _, p := range v.Row.Struct.Properties {
				col, ok := c.rowMember(v.Row, p.Name)
				if !ok {
					return c.Mismatch("", p.Name, "property %s.%s has no store mapping", v.Row.Struct.Name, p.Name)
				}
				add(join(p.Name), col.Expr, join(p.Name))
			}
			return nil
		case v.Object != nil:
			for _, f := range v.Object {
				if err := walk(join(f.Name), f.Value); err != nil {
					return err
				}
			}
			return nil
		case v.Client != nil:
			colName := name
			if colName == "" {
				colName = "Value"
			}
			cc := &ClientColumn{Method: v.Client.Method}
			for i, a := range v.Client.Args {
				sv, err := c.toScalar(a)
				if err != nil {
					return err
				}
				cc.Args = append(cc.Args, add(fmt.Sprintf("%s.$%d", colName, i), sv.Expr, fmt.Sprintf("%s.$%d", colName, i)))
			}
			cols = append(cols, Column{Name: colName, Ordinal: -1, Client: cc})
			return nil
		case v.Group != nil:
			return c.Unsupported("GroupBy", "", "a grouping must be projected with Select")
		}
		sv, err := c.toScalar(v)
		if err != nil {
			return err
		}
		if name == "" {
			add("Value", sv.Expr, "")
			return nil
		}
		add(name, sv.Expr, name)
		return nil
	}

	s.Projection = nil
	if err := walk("", elem); err != nil {
		return nil, err
	}
	return cols, nil
}

// statement is the translated top-level query before rewriting.
type statement struct {
	sel     *sqlexpr.Select
	columns []Column
	shape   ResultShape
}

// compile translates a top-level query.
func (c *Context) compile(q *query.Query) (*statement, error) {
	seq, agg, err := c.build(q, true)
	if err != nil {
		return nil, err
	}

	st := &statement{shape: ShapeRows}
	if agg != nil {
		pop := c.at(fmt.Sprintf("ops[%d]", len(q.Ops)-1))
		t, err := c.terminal(seq, agg.Func, aggLambda(agg), true)
		pop()
		if err != nil {
			return nil, err
		}
		st.sel, st.shape = t.stmt, t.shape
		if t.expr != nil {
			t.stmt.Projection = nil
			st.columns, err = c.finalize(t.stmt, t.expr)
		} else {
			st.columns, err = c.finalize(t.stmt, t.element)
		}
		if err != nil {
			return nil, err
		}
	} else {
		st.sel = seq.Select
		st.columns, err = c.finalize(seq.Select, seq.Element)
		if err != nil {
			return nil, err
		}
	}
	st.sel.With = append(st.sel.With, c.ctes...)
	return st, nil
}
