package translate

import (
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// rangeOperators map host range methods to native operators. Boolean
// operators compare; the rest compute a new range.
var rangeOperators = []struct {
	method  string
	op      string
	boolean bool
}{
	{"ContainedBy", "<@", true},
	{"Overlaps", "&&", true},
	{"IsStrictlyLeftOf", "<<", true},
	{"IsStrictlyRightOf", ">>", true},
	{"DoesNotExtendLeftOf", "&>", true},
	{"DoesNotExtendRightOf", "&<", true},
	{"IsAdjacentTo", "-|-", true},
	{"Union", "+", false},
	{"Intersect", "*", false},
	{"Except", "-", false},
}

// rangeAccessors map bound accessors to scalar functions. Inclusivity is
// reported as the database normalizes it.
var rangeAccessors = []struct {
	method string
	fn     string
	bound  bool
}{
	{"LowerBound", "lower", true},
	{"UpperBound", "upper", true},
	{"IsEmpty", "isempty", false},
	{"LowerBoundIsInclusive", "lower_inc", false},
	{"UpperBoundIsInclusive", "upper_inc", false},
	{"LowerBoundInfinite", "lower_inf", false},
	{"UpperBoundInfinite", "upper_inf", false},
}

func registerRange(r *Recognizer) {
	rng := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(InCategory(typemap.CategoryRange, method, arity), fn)
	}

	rng("Contains", 1, rangeContains)
	for _, o := range rangeOperators {
		rng(o.method, 1, rangeOperator(o.op, o.boolean))
	}
	rng("Merge", 1, rangeMerge)
	for _, a := range rangeAccessors {
		rng(a.method, 0, rangeAccessor(a.fn, a.bound))
	}

	r.MustRegister(Exact(KindGroup, "RangeAgg", 1), rangeAggregate("range_agg"))
	r.MustRegister(Exact(KindGroup, "RangeIntersectAgg", 1), rangeAggregate("range_intersect_agg"))
}

// sameRange requires both operands to be ranges over the same subtype.
func (c *Context) sameRange(method string, l, r *Value) error {
	lm, rm := l.Expr.Mapping(), r.Expr.Mapping()
	if lm.Kind != typemap.KindRange || rm.Kind != typemap.KindRange || lm.StoreType != rm.StoreType {
		return c.Mismatch(method, r.Type.String(), "%s needs two ranges of the same type, got %s and %s", method, lm, rm)
	}
	return nil
}

// rangeContains translates both r.Contains(range) and r.Contains(value).
func rangeContains(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	arg, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	rm := recv.Expr.Mapping()
	am := arg.Expr.Mapping()
	if am.Kind == typemap.KindRange {
		if err := c.sameRange("Contains", recv, arg); err != nil {
			return nil, err
		}
	} else {
		if rm.Element == nil {
			return nil, c.Mismatch("Contains", recv.Type.String(), "%s has no subtype", rm)
		}
		arg = retypeItem(arg, rm.Element, recv.Type.ElemType())
		if k, ok := arg.Expr.(*sqlexpr.Constant); ok && typemap.Compatible(am, rm.Element) {
			// Literals take the subtype; 3 in an int8range is a bigint.
			arg = scalar(sqlexpr.NewConstant(k.Value, rm.Element), recv.Type.ElemType())
		}
		if arg.Expr.Mapping().StoreType != rm.Element.StoreType {
			return nil, c.Mismatch("Contains", arg.Type.String(), "%s cannot contain %s", rm, arg.Expr.Mapping())
		}
	}
	return scalar(sqlexpr.NewBinary("@>", recv.Expr, arg.Expr, c.Bool()), typemap.Bool()), nil
}

func rangeOperator(op string, boolean bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		arg, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		if err := c.sameRange(inv.Method, recv, arg); err != nil {
			return nil, err
		}
		if boolean {
			return scalar(sqlexpr.NewBinary(op, recv.Expr, arg.Expr, c.Bool()), typemap.Bool()), nil
		}
		t := recv.Type.WithNullable(recv.Type.Nullable || arg.Type.Nullable)
		return scalar(sqlexpr.NewBinary(op, recv.Expr, arg.Expr, recv.Expr.Mapping()), t), nil
	}
}

// rangeMerge is the smallest range covering both operands.
func rangeMerge(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	arg, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if err := c.sameRange("Merge", recv, arg); err != nil {
		return nil, err
	}
	t := recv.Type.WithNullable(recv.Type.Nullable || arg.Type.Nullable)
	return scalar(sqlexpr.NewFunction("range_merge", recv.Expr.Mapping(), false, recv.Expr, arg.Expr), t), nil
}

func rangeAccessor(fn string, bound bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		if !bound {
			return scalar(sqlexpr.NewFunction(fn, c.Bool(), false, recv.Expr), typemap.Bool().WithNullable(recv.Type.Nullable)), nil
		}
		// Empty and unbounded ranges have NULL bounds.
		sub := recv.Expr.Mapping().Element
		return scalar(sqlexpr.NewFunction(fn, sub, true, recv.Expr), recv.Type.ElemType().WithNullable(true)), nil
	}
}

// rangeAggregate translates g.RangeAgg(x => x.Range) and
// g.RangeIntersectAgg(...). range_agg returns a multirange.
func rangeAggregate(fn string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		g := inv.Receiver.Group
		v, err := c.applyArgScalar(inv.Arg(0), g.Element)
		if err != nil {
			return nil, err
		}
		m := v.Expr.Mapping()
		if m.Kind != typemap.KindRange {
			return nil, c.Mismatch(inv.Method, v.Type.String(), "%s needs a range, got %s", inv.Method, m)
		}
		t := v.Type.WithNullable(true)
		if fn == "range_agg" {
			m = c.reg.MultirangeOf(m)
			t = typemap.Type{Kind: typemap.KindMultirange, Elem: v.Type.Elem, Nullable: true}
		}
		return scalar(sqlexpr.NewAggregate(fn, m, v.Expr), t), nil
	}
}
