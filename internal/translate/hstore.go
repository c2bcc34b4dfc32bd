package translate

import (
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

func registerHstore(r *Recognizer) {
	h := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(Exact(typemap.KindHstore, method, arity), fn)
	}

	h("ContainsKey", 1, hstoreContainsKey)
	h("ContainsValue", 1, hstoreContainsValue)
	h("Index", 1, hstoreIndex)
	h("Keys", 0, hstoreArray("akeys"))
	h("Values", 0, hstoreArray("avals"))
	h("Count", 0, hstoreCount)
	h("Concat", 1, hstoreConcat)
	h("Union", 1, hstoreConcat)
	h("Except", 1, hstoreExcept)
	h("Remove", 1, hstoreExcept)
	h("Contains", 1, hstoreContains)
}

func (c *Context) textArg(inv *Invocation, i int) (*Value, error) {
	v, err := c.toScalar(inv.Arg(i))
	if err != nil {
		return nil, err
	}
	v = retypeItem(v, c.mustScalar(typemap.KindText), typemap.Text())
	if !v.Expr.Mapping().IsText() {
		return nil, c.Mismatch(inv.Method, v.Type.String(), "%s needs a text argument, got %s", inv.Method, v.Expr.Mapping())
	}
	return v, nil
}

func hstoreArg(c *Context, inv *Invocation) (*Value, error) {
	v, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	if v.Expr.Mapping().Kind != typemap.KindHstore {
		return nil, c.Mismatch(inv.Method, v.Type.String(), "%s needs another hstore, got %s", inv.Method, v.Expr.Mapping())
	}
	return v, nil
}

func hstoreContainsKey(c *Context, inv *Invocation) (*Value, error) {
	key, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	return scalar(sqlexpr.NewBinary("?", inv.Receiver.Expr, key.Expr, c.Bool()), typemap.Bool()), nil
}

func hstoreContainsValue(c *Context, inv *Invocation) (*Value, error) {
	val, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	text := c.mustScalar(typemap.KindText)
	vals := sqlexpr.NewFunction("avals", c.reg.ArrayOf(text), false, inv.Receiver.Expr)
	return scalar(sqlexpr.NewAny(val.Expr, vals, true, c.Bool()), typemap.Bool()), nil
}

// hstoreIndex translates m[key] to m -> key. The lookup shares the path
// node with JSON navigation: it prints the same way and is NULL for a
// missing key.
func hstoreIndex(c *Context, inv *Invocation) (*Value, error) {
	key, err := c.textArg(inv, 0)
	if err != nil {
		return nil, err
	}
	text := c.mustScalar(typemap.KindText)
	return scalar(sqlexpr.NewJsonPath(inv.Receiver.Expr, []sqlexpr.Expr{key.Expr}, false, text), typemap.Nullable(typemap.Text())), nil
}

func hstoreArray(fn string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		text := c.mustScalar(typemap.KindText)
		t := typemap.ArrayOf(typemap.Text())
		if fn == "avals" {
			t = typemap.ArrayOf(typemap.Nullable(typemap.Text()))
		}
		return scalar(sqlexpr.NewFunction(fn, c.reg.ArrayOf(text), false, inv.Receiver.Expr), t.WithNullable(inv.Receiver.Type.Nullable)), nil
	}
}

func hstoreCount(c *Context, inv *Invocation) (*Value, error) {
	text := c.mustScalar(typemap.KindText)
	keys := sqlexpr.NewFunction("akeys", c.reg.ArrayOf(text), false, inv.Receiver.Expr)
	return scalar(sqlexpr.NewFunction("cardinality", c.mustScalar(typemap.KindInt), false, keys), typemap.Int().WithNullable(inv.Receiver.Type.Nullable)), nil
}

func hstoreConcat(c *Context, inv *Invocation) (*Value, error) {
	other, err := hstoreArg(c, inv)
	if err != nil {
		return nil, err
	}
	recv := inv.Receiver
	t := recv.Type.WithNullable(recv.Type.Nullable || other.Type.Nullable)
	return scalar(sqlexpr.NewBinary("||", recv.Expr, other.Expr, recv.Expr.Mapping()), t), nil
}

// hstoreExcept removes a key, an array of keys, or the pairs of another
// hstore.
func hstoreExcept(c *Context, inv *Invocation) (*Value, error) {
	arg, err := c.toScalar(inv.Arg(0))
	if err != nil {
		return nil, err
	}
	am := arg.Expr.Mapping()
	switch {
	case am.IsText(), am.Kind == typemap.KindHstore, am.IsArray() && am.Element.IsText():
	default:
		return nil, c.Mismatch(inv.Method, arg.Type.String(), "cannot remove %s from an hstore", am)
	}
	recv := inv.Receiver
	return scalar(sqlexpr.NewBinary("-", recv.Expr, arg.Expr, recv.Expr.Mapping()), recv.Type), nil
}

func hstoreContains(c *Context, inv *Invocation) (*Value, error) {
	other, err := hstoreArg(c, inv)
	if err != nil {
		return nil, err
	}
	return scalar(sqlexpr.NewBinary("@>", inv.Receiver.Expr, other.Expr, c.Bool()), typemap.Bool()), nil
}
