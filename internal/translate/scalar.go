package translate

import (
	"strings"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

func registerScalar(r *Recognizer) {
	text := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(Exact(typemap.KindText, method, arity), fn)
	}
	text("Length", 0, textFunction("length", typemap.KindInt))
	text("ToUpper", 0, textFunction("upper", typemap.KindText))
	text("ToLower", 0, textFunction("lower", typemap.KindText))
	text("Trim", 0, textFunction("btrim", typemap.KindText))
	text("TrimStart", 0, textFunction("ltrim", typemap.KindText))
	text("TrimEnd", 0, textFunction("rtrim", typemap.KindText))
	text("Trim", 1, textTrim("btrim"))
	text("TrimStart", 1, textTrim("ltrim"))
	text("TrimEnd", 1, textTrim("rtrim"))
	text("Contains", 1, textContains)
	text("StartsWith", 1, textAffix(false))
	text("EndsWith", 1, textAffix(true))
	text("IndexOf", 1, textIndexOf)
	text("Substring", 1, textSubstring)
	text("Substring", 2, textSubstring)
	text("Replace", 2, textReplace)

	r.MustRegister(Static("IsNullOrEmpty", 1), textIsNullOr(false))
	r.MustRegister(Static("IsNullOrWhiteSpace", 1), textIsNullOr(true))
	r.MustRegister(Static("Like", 2), textLike("LIKE"))
	r.MustRegister(Static("ILike", 2), textLike("ILIKE"))

	for method, fn := range map[string]string{
		"Abs":     "abs",
		"Ceiling": "ceil",
		"Floor":   "floor",
		"Sign":    "sign",
	} {
		r.MustRegister(Static(method, 1), mathFunction(fn, ""))
	}
	r.MustRegister(Static("Sqrt", 1), mathFunction("sqrt", typemap.KindDouble))
	r.MustRegister(Static("Pow", 2), mathFunction("power", typemap.KindDouble))
	r.MustRegister(Static("Round", 1), mathRound)
	r.MustRegister(Static("Round", 2), mathRound)
	r.MustRegister(Static("Max", 2), mathExtreme("GREATEST"))
	r.MustRegister(Static("Min", 2), mathExtreme("LEAST"))
	r.MustRegister(Static("UtcNow", 0), func(c *Context, inv *Invocation) (*Value, error) {
		return scalar(sqlexpr.NewFunction("now", c.mustScalar(typemap.KindTimestamp), false), typemap.Timestamp()), nil
	})

	r.MustRegister(AnyKind("Equals", 1), anyEquals)
	r.MustRegister(AnyKind("HasValue", 0), anyHasValue)
	r.MustRegister(AnyKind("Value", 0), anyValue)
	r.MustRegister(AnyKind("GetValueOrDefault", 0), anyValueOrDefault)
	r.MustRegister(AnyKind("GetValueOrDefault", 1), anyValueOrDefault)
	r.MustRegister(AnyKind("ToString", 0), anyToString)

	for _, k := range []typemap.Kind{typemap.KindTimestamp, typemap.KindDate} {
		for method, field := range dateParts {
			if k == typemap.KindDate && timeParts[method] {
				continue
			}
			r.MustRegister(Exact(k, method, 0), datePart(field))
		}
	}
	r.MustRegister(Exact(typemap.KindTimestamp, "Date", 0), func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		return scalar(sqlexpr.NewCast(recv.Expr, c.mustScalar(typemap.KindDate)), typemap.Date().WithNullable(recv.Type.Nullable)), nil
	})
}

var dateParts = map[string]string{
	"Year":      "year",
	"Month":     "month",
	"Day":       "day",
	"Hour":      "hour",
	"Minute":    "minute",
	"Second":    "second",
	"DayOfYear": "doy",
	"DayOfWeek": "dow",
}

var timeParts = map[string]bool{"Hour": true, "Minute": true, "Second": true}

// textFunction wraps the receiver in a one-argument string function.
func textFunction(fn string, result typemap.Kind) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		t := typemap.Type{Kind: result, Nullable: recv.Type.Nullable}
		return scalar(sqlexpr.NewFunction(fn, c.mustScalar(result), false, recv.Expr), t), nil
	}
}

func textTrim(fn string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		chars, err := c.textArg(inv, 0)
		if err != nil {
			return nil, err
		}
		t := typemap.Text().WithNullable(recv.Type.Nullable || chars.Type.Nullable)
		return scalar(sqlexpr.NewFunction(fn, c.mustScalar(typemap.KindText), false, recv.Expr, chars.Expr), t), nil
	}
}

func (c *Context) strpos(s, sub sqlexpr.Expr, nullable bool) sqlexpr.Expr {
	return sqlexpr.NewFunction("strpos", c.mustScalar(typemap.KindInt), nullable, s, sub)
}

func textContains(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	sub, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	pos := c.strpos(recv.Expr, sub.Expr, false)
	return scalar(c.cmp(">", pos, c.intConst(0)), typemap.Bool()), nil
}

// likeSpecial lists characters that make a literal unusable as a LIKE
// prefix without an ESCAPE clause, which not every dialect defaults.
const likeSpecial = `%_\`

// textAffix translates StartsWith and EndsWith. Literals become a LIKE
// pattern; everything else compares the leading or trailing substring.
func textAffix(suffix bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		affix, err := c.textArg(inv, 0)
		if err != nil {
			return nil, err
		}
		if k, ok := affix.Expr.(*sqlexpr.Constant); ok {
			if s, ok := k.Value.(ir.IRString); ok && !strings.ContainsAny(string(s), likeSpecial) {
				pattern := string(s) + "%"
				if suffix {
					pattern = "%" + string(s)
				}
				return scalar(c.cmp("LIKE", recv.Expr, c.textConst(pattern)), typemap.Bool()), nil
			}
		}

		text := c.mustScalar(typemap.KindText)
		n := sqlexpr.NewFunction("length", c.mustScalar(typemap.KindInt), false, affix.Expr)
		var part sqlexpr.Expr
		if suffix {
			part = sqlexpr.NewFunction("right", text, false, recv.Expr, n)
		} else {
			part = sqlexpr.NewFunction("substr", text, false, recv.Expr, c.intConst(1), n)
		}
		return scalar(c.cmp("=", part, affix.Expr), typemap.Bool()), nil
	}
}

// textIndexOf returns the 0-based position of a substring, -1 if absent.
func textIndexOf(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	sub, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	pos := c.strpos(recv.Expr, sub.Expr, false)
	t := typemap.Int().WithNullable(recv.Type.Nullable || sub.Type.Nullable)
	return scalar(sqlexpr.NewBinary("-", pos, c.intConst(1), c.mustScalar(typemap.KindInt)), t), nil
}

// textSubstring shifts the 0-based host start index to SQL's 1-based one.
func textSubstring(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	args := []sqlexpr.Expr{recv.Expr}
	nullable := recv.Type.Nullable
	for i := range inv.Args {
		v, err := c.toScalar(inv.Arg(i))
		if err != nil {
			return nil, err
		}
		if !isIntegral(v.Expr.Mapping().Kind) {
			return nil, c.Mismatch(inv.Method, v.Type.String(), "%s needs integer arguments, got %s", inv.Method, v.Expr.Mapping())
		}
		e := v.Expr
		if i == 0 {
			e = c.plus(e, c.intConst(1))
		}
		args = append(args, e)
		nullable = nullable || v.Type.Nullable
	}
	return scalar(sqlexpr.NewFunction("substr", c.mustScalar(typemap.KindText), false, args...), typemap.Text().WithNullable(nullable)), nil
}

func textReplace(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	from, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	to, err := c.textArg(inv, 1)
	if err != nil {
		return nil, err
	}
	t := typemap.Text().WithNullable(recv.Type.Nullable || from.Type.Nullable || to.Type.Nullable)
	return scalar(sqlexpr.NewFunction("replace", c.mustScalar(typemap.KindText), false, recv.Expr, from.Expr, to.Expr), t), nil
}

func textIsNullOr(blank bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		s, err := c.textArg(inv, 0)
		if err != nil {
			return nil, err
		}
		e := s.Expr
		if blank {
			e = sqlexpr.NewFunction("btrim", c.mustScalar(typemap.KindText), false, e)
		}
		empty := c.cmp("=", e, c.textConst(""))
		if !s.Type.Nullable {
			return scalar(empty, typemap.Bool()), nil
		}
		return scalar(c.or(c.isNull(s.Expr), empty), typemap.Bool()), nil
	}
}

func textLike(op string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		s, err := c.textArg(inv, 0)
		if err != nil {
			return nil, err
		}
		pattern, err := c.textArg(inv, 1)
		if err != nil {
			return nil, err
		}
		return scalar(c.cmp(op, s.Expr, pattern.Expr), typemap.Bool()), nil
	}
}

func (c *Context) numericArg(inv *Invocation, i int) (*Value, error) {
	v, err := c.toScalar(inv.Arg(i))
	if err != nil {
		return nil, err
	}
	if typemap.CategoryOf(v.Expr.Mapping().Kind) != typemap.CategoryNumeric {
		return nil, c.Mismatch(inv.Method, v.Type.String(), "%s needs a numeric argument, got %s", inv.Method, v.Expr.Mapping())
	}
	return v, nil
}

// mathFunction translates a numeric function. An empty result kind keeps
// the type of the first argument.
func mathFunction(fn string, result typemap.Kind) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		var args []sqlexpr.Expr
		var first *Value
		nullable := false
		for i := range inv.Args {
			v, err := c.numericArg(inv, i)
			if err != nil {
				return nil, err
			}
			if first == nil {
				first = v
			}
			args = append(args, v.Expr)
			nullable = nullable || v.Type.Nullable
		}
		t, m := first.Type, first.Expr.Mapping()
		if result != "" {
			t, m = typemap.Type{Kind: result}, c.mustScalar(result)
		}
		return scalar(sqlexpr.NewFunction(fn, m, false, args...), t.WithNullable(nullable)), nil
	}
}

// mathRound translates Round(x) and Round(x, digits). PostgreSQL only
// rounds numeric to a number of digits, so floats go through numeric and
// back.
func mathRound(c *Context, inv *Invocation) (*Value, error) {
	x, err := c.numericArg(inv, 0)
	if err != nil {
		return nil, err
	}
	m := x.Expr.Mapping()
	if len(inv.Args) == 1 {
		return scalar(sqlexpr.NewFunction("round", m, false, x.Expr), x.Type), nil
	}
	digits, err := c.toScalar(inv.Arg(1))
	if err != nil {
		return nil, err
	}
	if !isIntegral(digits.Expr.Mapping().Kind) {
		return nil, c.Mismatch(inv.Method, digits.Type.String(), "digits must be an integer, got %s", digits.Expr.Mapping())
	}
	t := x.Type.WithNullable(x.Type.Nullable || digits.Type.Nullable)
	if m.Kind == typemap.KindDecimal {
		return scalar(sqlexpr.NewFunction("round", m, false, x.Expr, digits.Expr), t), nil
	}
	num := c.mustScalar(typemap.KindDecimal)
	rounded := sqlexpr.NewFunction("round", num, false, sqlexpr.NewCast(x.Expr, num), digits.Expr)
	return scalar(sqlexpr.NewCast(rounded, m), t), nil
}

func mathExtreme(fn string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		a, err := c.numericArg(inv, 0)
		if err != nil {
			return nil, err
		}
		b, err := c.numericArg(inv, 1)
		if err != nil {
			return nil, err
		}
		t, m := c.promote(a, b)
		return scalar(sqlexpr.NewFunction(fn, m, false, a.Expr, b.Expr), t.WithNullable(a.Type.Nullable || b.Type.Nullable)), nil
	}
}

func anyEquals(c *Context, inv *Invocation) (*Value, error) {
	if !inv.Receiver.IsScalar() {
		return nil, nil
	}
	other, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	return c.binaryOp(query.OpEqual, inv.Receiver, other)
}

func anyHasValue(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	if !recv.IsScalar() {
		return nil, nil
	}
	if !recv.Type.Nullable {
		return scalar(c.boolConst(true), typemap.Bool()), nil
	}
	return scalar(c.isNotNull(recv.Expr), typemap.Bool()), nil
}

// anyValue unwraps a nullable value. The SQL is unchanged; only the host
// type loses its nullability.
func anyValue(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	if !recv.IsScalar() {
		return nil, nil
	}
	return scalar(recv.Expr, recv.Type.WithNullable(false)), nil
}

// zeroValues are the host default values of value kinds.
var zeroValues = map[typemap.Kind]ir.IRValue{
	typemap.KindInt:      ir.IRInt(0),
	typemap.KindBigInt:   ir.IRInt(0),
	typemap.KindSmallInt: ir.IRInt(0),
	typemap.KindDouble:   ir.IRFloat(0),
	typemap.KindReal:     ir.IRFloat(0),
	typemap.KindDecimal:  ir.IRFloat(0),
	typemap.KindBool:     ir.IRBool(false),
}

func anyValueOrDefault(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	if !recv.IsScalar() {
		return nil, nil
	}
	m := recv.Expr.Mapping()
	var def *Value
	if len(inv.Args) == 1 {
		v, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		if !typemap.Compatible(m, v.Expr.Mapping()) {
			return nil, c.Mismatch(inv.Method, v.Type.String(), "default %s does not match %s", v.Expr.Mapping(), m)
		}
		def = v
	} else {
		zero, ok := zeroValues[m.Kind]
		if !ok {
			return nil, c.Unsupported(inv.Method, recv.Type.String(), "%s has no default value", m)
		}
		def = scalar(sqlexpr.NewConstant(zero, m), recv.Type.WithNullable(false))
	}
	if !recv.Type.Nullable {
		return recv, nil
	}
	return scalar(sqlexpr.NewFunction("COALESCE", m, false, recv.Expr, def.Expr), recv.Type.WithNullable(def.Type.Nullable)), nil
}

func anyToString(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	if !recv.IsScalar() {
		return nil, nil
	}
	if recv.Expr.Mapping().IsText() {
		return recv, nil
	}
	if isJSONDocument(recv) {
		return scalar(c.jsonText(recv), typemap.Text().WithNullable(true)), nil
	}
	return scalar(c.asText(recv), typemap.Text().WithNullable(recv.Type.Nullable)), nil
}

// datePart extracts a calendar field as an integer.
func datePart(field string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		m := c.mustScalar(typemap.KindInt)
		part := sqlexpr.NewFunction("date_part", c.mustScalar(typemap.KindDouble), false, c.textConst(field), recv.Expr)
		return scalar(sqlexpr.NewCast(part, m), typemap.Int().WithNullable(recv.Type.Nullable)), nil
	}
}

func registerGroup(r *Recognizer) {
	g := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(Exact(KindGroup, method, arity), fn)
	}
	g("Count", 0, groupCount(typemap.KindInt))
	g("Count", 1, groupCount(typemap.KindInt))
	g("LongCount", 0, groupCount(typemap.KindBigInt))
	g("LongCount", 1, groupCount(typemap.KindBigInt))
	for _, fn := range []query.AggregateFunc{query.AggSum, query.AggAverage, query.AggMin, query.AggMax} {
		g(string(fn), 0, groupReduce(fn))
		g(string(fn), 1, groupReduce(fn))
	}
	g("Any", 1, groupBoolean("bool_or", false))
	g("All", 1, groupBoolean("bool_and", true))
}

// groupCount translates g.Count() and g.Count(pred). A predicate counts
// only the rows it holds for: COUNT(CASE WHEN pred THEN 1 END).
func groupCount(k typemap.Kind) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		m := c.mustScalar(k)
		if len(inv.Args) == 0 {
			count := sqlexpr.NewAggregate("COUNT", m)
			count.Star = true
			return scalar(count, typemap.Type{Kind: k}), nil
		}
		pred, err := c.applyArgPredicate(inv.Arg(0), inv.Receiver.Group.Element)
		if err != nil {
			return nil, err
		}
		when := sqlexpr.NewCase([]sqlexpr.When{{Cond: pred, Result: c.intConst(1)}}, nil, c.mustScalar(typemap.KindInt))
		return scalar(sqlexpr.NewAggregate("COUNT", m, when), typemap.Type{Kind: k}), nil
	}
}

// groupReduce translates the numeric aggregates over a group's elements,
// with the same result types as the terminal operators.
func groupReduce(fn query.AggregateFunc) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		elem := inv.Receiver.Group.Element
		var x *Value
		var err error
		if len(inv.Args) == 1 {
			x, err = c.applyArgScalar(inv.Arg(0), elem)
		} else {
			x, err = c.toScalar(elem)
		}
		if err != nil {
			return nil, err
		}
		m := x.Expr.Mapping()
		numeric := typemap.CategoryOf(m.Kind) == typemap.CategoryNumeric

		switch fn {
		case query.AggSum:
			if !numeric {
				return nil, c.Mismatch(inv.Method, x.Type.String(), "cannot sum %s", m)
			}
			var sum sqlexpr.Expr = sqlexpr.NewFunction("COALESCE", m, false, sqlexpr.NewAggregate("SUM", m, x.Expr), c.intConst(0))
			if isIntegral(m.Kind) {
				sum = sqlexpr.NewCast(sum, m)
			}
			return scalar(sum, x.Type.WithNullable(false)), nil
		case query.AggAverage:
			if !numeric {
				return nil, c.Mismatch(inv.Method, x.Type.String(), "cannot average %s", m)
			}
			var avg sqlexpr.Expr = sqlexpr.NewAggregate("AVG", m, x.Expr)
			t := x.Type.WithNullable(true)
			if isIntegral(m.Kind) {
				avg = sqlexpr.NewCast(avg, c.mustScalar(typemap.KindDouble))
				t = typemap.Nullable(typemap.Double())
			}
			return scalar(avg, t), nil
		}
		name := "MIN"
		if fn == query.AggMax {
			name = "MAX"
		}
		return scalar(sqlexpr.NewAggregate(name, m, x.Expr), x.Type.WithNullable(true)), nil
	}
}

// groupBoolean translates g.Any(pred) and g.All(pred). Groups are never
// empty, but the aggregate skips NULL predicates, so the result is
// coalesced to the empty-set answer.
func groupBoolean(fn string, empty bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		pred, err := c.applyArgPredicate(inv.Arg(0), inv.Receiver.Group.Element)
		if err != nil {
			return nil, err
		}
		agg := sqlexpr.NewAggregate(fn, c.Bool(), pred)
		return scalar(sqlexpr.NewFunction("COALESCE", c.Bool(), false, agg, c.boolConst(empty)), typemap.Bool()), nil
	}
}
