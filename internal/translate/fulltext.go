package translate

import (
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

func registerFullText(r *Recognizer) {
	for method, fn := range map[string]string{
		"ToTsVector":         "to_tsvector",
		"ToTsQuery":          "to_tsquery",
		"PlainToTsQuery":     "plainto_tsquery",
		"PhraseToTsQuery":    "phraseto_tsquery",
		"WebSearchToTsQuery": "websearch_to_tsquery",
	} {
		r.MustRegister(Static(method, 1), tsParse(fn))
		r.MustRegister(Static(method, 2), tsParse(fn))
	}
	r.MustRegister(Static("ArrayToTsVector", 1), tsFromArray)

	vec := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(Exact(typemap.KindTsVector, method, arity), fn)
	}
	vec("Matches", 1, tsMatches)
	vec("Concat", 1, tsOperator("||", typemap.KindTsVector, typemap.KindTsVector))
	vec("SetWeight", 1, tsSetWeight)
	vec("SetWeight", 2, tsSetWeight)
	vec("Length", 0, tsFunction("length", typemap.KindInt))
	vec("Delete", 1, tsDelete)
	vec("Filter", 1, tsFilter)
	vec("Strip", 0, tsFunction("strip", typemap.KindTsVector))
	vec("Rank", 1, tsRank("ts_rank"))
	vec("Rank", 2, tsRank("ts_rank"))
	vec("RankCoverDensity", 1, tsRank("ts_rank_cd"))
	vec("RankCoverDensity", 2, tsRank("ts_rank_cd"))

	q := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(Exact(typemap.KindTsQuery, method, arity), fn)
	}
	q("Matches", 1, tsQueryMatches)
	q("And", 1, tsOperator("&&", typemap.KindTsQuery, typemap.KindTsQuery))
	q("Or", 1, tsOperator("||", typemap.KindTsQuery, typemap.KindTsQuery))
	q("ToNegative", 0, func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		return scalar(sqlexpr.NewUnary("!!", recv.Expr, recv.Expr.Mapping()), recv.Type), nil
	})
	q("Contains", 1, tsOperator("@>", typemap.KindTsQuery, typemap.KindBool))
	q("IsContainedIn", 1, tsOperator("<@", typemap.KindTsQuery, typemap.KindBool))
	q("GetNodeCount", 0, tsFunction("numnode", typemap.KindInt))
	q("GetQueryTree", 0, tsFunction("querytree", typemap.KindText))
	q("Rewrite", 1, tsRewrite)
	q("Rewrite", 2, tsRewrite)
	q("GetResultHeadline", 1, tsHeadline)
	q("GetResultHeadline", 2, tsHeadline)
}

// tsArg translates argument i as a value of kind k. Text literals are
// retyped so they render tagged (TSQUERY 'a & b'); other text values are
// rejected rather than cast implicitly.
func (c *Context) tsArg(inv *Invocation, i int, k typemap.Kind) (*Value, error) {
	v, err := c.toScalar(inv.Arg(i))
	if err != nil {
		return nil, err
	}
	m := c.mustScalar(k)
	v = retypeItem(v, m, typemap.Type{Kind: k})
	if lit, ok := v.Expr.(*sqlexpr.Constant); ok && lit.Mapping().IsText() {
		v = scalar(sqlexpr.NewConstant(lit.Value, m), typemap.Type{Kind: k})
	}
	if v.Expr.Mapping().Kind != k {
		return nil, c.Mismatch(inv.Method, v.Type.String(), "%s needs %s, got %s", inv.Method, m, v.Expr.Mapping())
	}
	return v, nil
}

// tsConfig converts a text search configuration name to regconfig. Text
// parameters are cast; literals become REGCONFIG 'english'.
func (c *Context) tsConfig(inv *Invocation, i int) (*Value, error) {
	v, err := c.toScalar(inv.Arg(i))
	if err != nil {
		return nil, err
	}
	m := c.mustScalar(typemap.KindRegConfig)
	switch am := v.Expr.Mapping(); {
	case am.Kind == typemap.KindRegConfig:
		return v, nil
	case !am.IsText():
		return nil, c.Mismatch(inv.Method, v.Type.String(), "text search configuration must be text, got %s", am)
	}
	if k, ok := v.Expr.(*sqlexpr.Constant); ok {
		return scalar(sqlexpr.NewConstant(k.Value, m), typemap.RegConfig().WithNullable(v.Type.Nullable)), nil
	}
	return scalar(sqlexpr.NewCast(v.Expr, m), typemap.RegConfig().WithNullable(v.Type.Nullable)), nil
}

// tsParse translates ToTsVector(text) and ToTsVector(config, text), and the
// query parsers of the same form.
func tsParse(fn string) TranslateFunc {
	result := typemap.KindTsQuery
	if fn == "to_tsvector" {
		result = typemap.KindTsVector
	}
	return func(c *Context, inv *Invocation) (*Value, error) {
		var args []sqlexpr.Expr
		nullable := false
		textIdx := 0
		if len(inv.Args) == 2 {
			cfg, err := c.tsConfig(inv, 0)
			if err != nil {
				return nil, err
			}
			args = append(args, cfg.Expr)
			nullable = cfg.Type.Nullable
			textIdx = 1
		}
		text, err := c.textArg(inv, textIdx)
		if err != nil {
			return nil, err
		}
		args = append(args, text.Expr)
		nullable = nullable || text.Type.Nullable
		return scalar(sqlexpr.NewFunction(fn, c.mustScalar(result), false, args...), typemap.Type{Kind: result, Nullable: nullable}), nil
	}
}

func tsFromArray(c *Context, inv *Invocation) (*Value, error) {
	arr, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	am := arr.Expr.Mapping()
	if !am.IsArray() || !am.Element.IsText() {
		return nil, c.Mismatch(inv.Method, arr.Type.String(), "%s needs a text array, got %s", inv.Method, am)
	}
	m := c.mustScalar(typemap.KindTsVector)
	return scalar(sqlexpr.NewFunction("array_to_tsvector", m, false, arr.Expr), typemap.TsVector().WithNullable(arr.Type.Nullable)), nil
}

// tsMatches translates vector.Matches(query). A text argument is parsed
// with plainto_tsquery, matching what a user typing words expects.
func tsMatches(c *Context, inv *Invocation) (*Value, error) {
	arg, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	q := arg.Expr
	switch am := arg.Expr.Mapping(); {
	case am.Kind == typemap.KindTsQuery:
	case am.IsText():
		q = sqlexpr.NewFunction("plainto_tsquery", c.mustScalar(typemap.KindTsQuery), false, arg.Expr)
	default:
		return nil, c.Mismatch("Matches", arg.Type.String(), "cannot match a tsvector against %s", am)
	}
	return scalar(sqlexpr.NewBinary("@@", inv.Receiver.Expr, q, c.Bool()), typemap.Bool()), nil
}

func tsQueryMatches(c *Context, inv *Invocation) (*Value, error) {
	vec, err := c.tsArg(inv, 0, typemap.KindTsVector)
	if err != nil {
		return nil, err
	}
	return scalar(sqlexpr.NewBinary("@@", inv.Receiver.Expr, vec.Expr, c.Bool()), typemap.Bool()), nil
}

// tsOperator translates a binary operator whose right operand has the
// receiver's kind.
func tsOperator(op string, arg, result typemap.Kind) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		other, err := c.tsArg(inv, 0, arg)
		if err != nil {
			return nil, err
		}
		if result == typemap.KindBool {
			return scalar(sqlexpr.NewBinary(op, recv.Expr, other.Expr, c.Bool()), typemap.Bool()), nil
		}
		t := recv.Type.WithNullable(recv.Type.Nullable || other.Type.Nullable)
		return scalar(sqlexpr.NewBinary(op, recv.Expr, other.Expr, recv.Expr.Mapping()), t), nil
	}
}

func tsFunction(fn string, result typemap.Kind) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		t := typemap.Type{Kind: result, Nullable: recv.Type.Nullable}
		return scalar(sqlexpr.NewFunction(fn, c.mustScalar(result), false, recv.Expr), t), nil
	}
}

// charArray maps the "char"[] weight lists of setweight and ts_filter.
// Weights are written as text and cast, since "char" has no host kind.
func (c *Context) charArray() *typemap.Mapping {
	text := c.mustScalar(typemap.KindText)
	char := &typemap.Mapping{
		Kind:      typemap.KindText,
		StoreType: `"char"`,
		Literal:   text.Literal,
		Param:     text.Param,
	}
	return c.reg.ArrayOf(char)
}

// tsSetWeight translates SetWeight(weight) and SetWeight(weight, lexemes).
func tsSetWeight(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	weight, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	args := []sqlexpr.Expr{recv.Expr, sqlexpr.NewCast(weight.Expr, c.charArray().Element)}
	if len(inv.Args) == 2 {
		lexemes, err := c.toScalar(inv.Arg(1))
		if err != nil {
			return nil, err
		}
		if lm := lexemes.Expr.Mapping(); !lm.IsArray() || !lm.Element.IsText() {
			return nil, c.Mismatch(inv.Method, lexemes.Type.String(), "lexemes must be a text array, got %s", lm)
		}
		args = append(args, lexemes.Expr)
	}
	return scalar(sqlexpr.NewFunction("setweight", recv.Expr.Mapping(), false, args...), recv.Type), nil
}

// tsDelete removes one lexeme or an array of lexemes.
func tsDelete(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	arg, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	arg = retypeItem(arg, c.mustScalar(typemap.KindText), typemap.Text())
	am := arg.Expr.Mapping()
	if !am.IsText() && !(am.IsArray() && am.Element.IsText()) {
		return nil, c.Mismatch(inv.Method, arg.Type.String(), "cannot delete %s from a tsvector", am)
	}
	return scalar(sqlexpr.NewFunction("ts_delete", recv.Expr.Mapping(), false, recv.Expr, arg.Expr), recv.Type), nil
}

// tsFilter keeps only lexemes with the given weights.
func tsFilter(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	arg, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if am := arg.Expr.Mapping(); !am.IsArray() || !am.Element.IsText() {
		return nil, c.Mismatch(inv.Method, arg.Type.String(), "weights must be a text array, got %s", am)
	}
	weights := sqlexpr.NewCast(arg.Expr, c.charArray())
	return scalar(sqlexpr.NewFunction("ts_filter", recv.Expr.Mapping(), false, recv.Expr, weights), recv.Type), nil
}

// tsRank translates Rank(query) and Rank(query, normalization).
func tsRank(fn string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		q, err := c.tsArg(inv, 0, typemap.KindTsQuery)
		if err != nil {
			return nil, err
		}
		args := []sqlexpr.Expr{recv.Expr, q.Expr}
		if len(inv.Args) == 2 {
			norm, err := c.toScalar(inv.Arg(1))
			if err != nil {
				return nil, err
			}
			if !isIntegral(norm.Expr.Mapping().Kind) {
				return nil, c.Mismatch(inv.Method, norm.Type.String(), "normalization must be an integer, got %s", norm.Expr.Mapping())
			}
			args = append(args, norm.Expr)
		}
		t := typemap.Real().WithNullable(recv.Type.Nullable || q.Type.Nullable)
		return scalar(sqlexpr.NewFunction(fn, c.mustScalar(typemap.KindReal), false, args...), t), nil
	}
}

// tsRewrite translates Rewrite(target, substitute) and Rewrite(select),
// where select is the text of a query yielding target/substitute pairs.
func tsRewrite(c *Context, inv *Invocation) (*Value, error) {
	recv := inv.Receiver
	args := []sqlexpr.Expr{recv.Expr}
	if len(inv.Args) == 1 {
		sel, err := c.textArg(inv, 0)
		if err != nil {
			return nil, err
		}
		args = append(args, sel.Expr)
	} else {
		for i := range inv.Args {
			v, err := c.tsArg(inv, i, typemap.KindTsQuery)
			if err != nil {
				return nil, err
			}
			args = append(args, v.Expr)
		}
	}
	return scalar(sqlexpr.NewFunction("ts_rewrite", recv.Expr.Mapping(), false, args...), recv.Type.WithNullable(true)), nil
}

// tsHeadline translates query.GetResultHeadline(document[, options]).
func tsHeadline(c *Context, inv *Invocation) (*Value, error) {
	doc, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	args := []sqlexpr.Expr{doc.Expr, inv.Receiver.Expr}
	if len(inv.Args) == 2 {
		opts, err := c.textArg(inv, 1)
		if err != nil {
			return nil, err
		}
		args = append(args, opts.Expr)
	}
	t := typemap.Text().WithNullable(doc.Type.Nullable || inv.Receiver.Type.Nullable)
	return scalar(sqlexpr.NewFunction("ts_headline", c.mustScalar(typemap.KindText), false, args...), t), nil
}
