package translate

import (
	"fmt"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// expr translates one host expression.
func (c *Context) expr(e query.Expr) (*Value, error) {
	// Client calls are only accepted where the caller explicitly allowed
	// them (the final projection and its direct object fields).
	clientOK := c.clientOK
	c.clientOK = false
	defer func() { c.clientOK = clientOK }()

	switch n := e.(type) {
	case *query.Param:
		v, ok := c.lookup(n.Name)
		if !ok {
			return nil, c.Unsupported("", n.Name, "unknown lambda parameter %q", n.Name)
		}
		return v, nil
	case *query.Member:
		return c.member(n)
	case *query.Call:
		return c.call(n)
	case *query.Index:
		return c.index(n)
	case *query.Binary:
		return c.binary(n)
	case *query.Unary:
		return c.unary(n)
	case *query.Conditional:
		return c.conditional(n)
	case *query.Constant:
		return c.constantValue(n)
	case *query.Captured:
		return c.captured(n)
	case *query.NewArray:
		return c.newArray(n)
	case *query.NewObject:
		return c.newObject(n, clientOK)
	case *query.Lambda:
		return &Value{Lambda: n}, nil
	case *query.Subquery:
		defer c.at(".query.")()
		return c.queryValue(n.Query)
	case *query.ClientCall:
		return c.clientCall(n, clientOK)
	case *query.Convert:
		return c.convert(n)
	case nil:
		return nil, c.Unsupported("", "", "missing expression")
	}
	return nil, c.Unsupported("", "", "unknown expression type %T", e)
}

// scalarExpr translates e and requires a plain SQL expression.
func (c *Context) scalarExpr(e query.Expr) (*Value, error) {
	v, err := c.expr(e)
	if err != nil {
		return nil, err
	}
	return c.toScalar(v)
}

// toScalar turns v into a plain SQL expression. Queryable collections of
// scalars become ARRAY(subquery).
func (c *Context) toScalar(v *Value) (*Value, error) {
	switch {
	case v == nil:
		return nil, c.Unsupported("", "", "missing value")
	case v.IsScalar():
		return v, nil
	case v.Seq != nil:
		return c.seqArray(v.Seq)
	case v.Client != nil:
		return nil, c.fail(NewClientEvaluationError(v.Client.Method))
	case v.Row != nil:
		return nil, c.Unsupported("", v.Row.Struct.Name, "entity rows cannot be used as values")
	case v.Object != nil:
		return nil, c.Unsupported("", "", "anonymous objects cannot be used as values")
	case v.Group != nil:
		return nil, c.Unsupported("", "", "groupings cannot be used as values")
	case v.Lambda != nil:
		return nil, c.Unsupported("", "", "lambda used as a value")
	}
	return nil, c.Unsupported("", "", "value has no SQL form")
}

func (c *Context) member(n *query.Member) (*Value, error) {
	target, err := func() (*Value, error) {
		defer c.at(".target")()
		return c.expr(n.Target)
	}()
	if err != nil {
		return nil, err
	}

	switch {
	case target.Group != nil && n.Name == "Key":
		return target.Group.Key, nil
	case target.Object != nil:
		if f, ok := target.field(n.Name); ok {
			return f, nil
		}
		return nil, c.Unsupported(n.Name, "", "anonymous object has no member %q", n.Name)
	case target.Row != nil:
		if v, ok := c.rowMember(target.Row, n.Name); ok {
			return v, nil
		}
	case target.IsScalar() && target.Type.Kind == typemap.KindStruct:
		if v, ok, err := c.jsonMember(target, n.Name); ok || err != nil {
			return v, err
		}
	}
	return c.invoke(target, n.Name, nil)
}

// rowMember resolves a declared property of a row source.
func (c *Context) rowMember(row *RowRef, name string) (*Value, bool) {
	if row.Struct == nil {
		return nil, false
	}
	p, ok := row.Struct.Property(name)
	if !ok {
		return nil, false
	}
	t := p.Type
	if row.Nullable {
		t.Nullable = true
	}
	m, err := c.reg.Find(t)
	if err != nil {
		return nil, false
	}
	return scalar(sqlexpr.NewColumn(row.Alias, p.ColumnName(), m, t.Nullable), t), true
}

func (c *Context) index(n *query.Index) (*Value, error) {
	target, err := func() (*Value, error) {
		defer c.at(".target")()
		return c.expr(n.Target)
	}()
	if err != nil {
		return nil, err
	}
	idx, err := func() (*Value, error) {
		defer c.at(".index")()
		return c.scalarExpr(n.Index)
	}()
	if err != nil {
		return nil, err
	}
	return c.invoke(target, "Index", []*Value{idx})
}

func (c *Context) call(n *query.Call) (*Value, error) {
	var recv *Value
	if n.Receiver != nil {
		v, err := func() (*Value, error) {
			defer c.at(".receiver")()
			return c.expr(n.Receiver)
		}()
		if err != nil {
			return nil, err
		}
		recv = v
	}

	args := make([]*Value, len(n.Args))
	for i, a := range n.Args {
		seg := fmt.Sprintf(".args[%d]", i)
		if l, ok := a.(*query.Lambda); ok {
			args[i] = &Value{Lambda: l, pos: seg}
			continue
		}
		pop := c.at(seg)
		v, err := c.expr(a)
		pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if recv == nil {
		return c.invokeStatic(n.Method, args)
	}
	return c.invoke(recv, n.Method, args)
}

// invoke dispatches a method call through the recognizer.
func (c *Context) invoke(recv *Value, method string, args []*Value) (*Value, error) {
	kind := recv.receiverKind()
	return c.dispatch(Shape{Receiver: kind, Method: method, Arity: len(args)}, &Invocation{
		Method:   method,
		Receiver: recv,
		Args:     args,
	})
}

func (c *Context) invokeStatic(method string, args []*Value) (*Value, error) {
	return c.dispatch(Shape{Receiver: KindStatic, Method: method, Arity: len(args)}, &Invocation{
		Method: method,
		Args:   args,
	})
}

func (c *Context) dispatch(s Shape, inv *Invocation) (*Value, error) {
	fn, err := c.rec.Resolve(s)
	if err != nil {
		return nil, c.fail(err)
	}
	if fn == nil {
		return nil, c.Unsupported(s.Method, string(s.Receiver), "no translation for %s", s)
	}
	v, err := fn(c, inv)
	if err != nil {
		return nil, c.fail(err)
	}
	if v == nil {
		return nil, c.Unsupported(s.Method, string(s.Receiver), "%s is not applicable to these operands", s)
	}
	return v, nil
}

// applyArg translates a lambda argument of a call.
func (c *Context) applyArg(arg *Value, args ...*Value) (*Value, error) {
	if arg == nil || arg.Lambda == nil {
		return nil, c.Unsupported("", "", "expected a lambda argument")
	}
	defer c.at(arg.pos)()
	return c.apply(arg.Lambda, args...)
}

func (c *Context) applyArgScalar(arg *Value, args ...*Value) (*Value, error) {
	v, err := c.applyArg(arg, args...)
	if err != nil {
		return nil, err
	}
	return c.toScalar(v)
}

func (c *Context) applyArgPredicate(arg *Value, args ...*Value) (sqlexpr.Expr, error) {
	v, err := c.applyArgScalar(arg, args...)
	if err != nil {
		return nil, err
	}
	if v.Type.Kind != typemap.KindBool {
		return nil, c.Mismatch("", v.Type.String(), "predicate must be boolean, got %s", v.Type)
	}
	return v.Expr, nil
}

func (c *Context) binary(n *query.Binary) (*Value, error) {
	l, err := func() (*Value, error) {
		defer c.at(".left")()
		return c.scalarExpr(n.Left)
	}()
	if err != nil {
		return nil, err
	}
	r, err := func() (*Value, error) {
		defer c.at(".right")()
		return c.scalarExpr(n.Right)
	}()
	if err != nil {
		return nil, err
	}
	return c.binaryOp(n.Op, l, r)
}

func isNullConstant(e sqlexpr.Expr) bool {
	k, ok := e.(*sqlexpr.Constant)
	return ok && k.IsNull()
}

// retypeNull gives an untyped NULL literal the mapping of the other operand.
func retypeNull(l, r *Value) (*Value, *Value) {
	switch {
	case isNullConstant(l.Expr) && !isNullConstant(r.Expr):
		l = scalar(sqlexpr.NewConstant(ir.IRNull{}, r.Expr.Mapping()), r.Type.WithNullable(true))
	case isNullConstant(r.Expr) && !isNullConstant(l.Expr):
		r = scalar(sqlexpr.NewConstant(ir.IRNull{}, l.Expr.Mapping()), l.Type.WithNullable(true))
	}
	return l, r
}

func (c *Context) binaryOp(op query.BinaryOp, l, r *Value) (*Value, error) {
	l, r = retypeNull(l, r)
	lm, rm := l.Expr.Mapping(), r.Expr.Mapping()
	boolType := typemap.Bool()
	nullable := l.Type.Nullable || r.Type.Nullable

	switch op {
	case query.OpAndAlso, query.OpOrElse:
		if lm.Kind != typemap.KindBool || rm.Kind != typemap.KindBool {
			return nil, c.Mismatch(string(op), "", "%s needs boolean operands, got %s and %s", op, lm, rm)
		}
		sqlOp := "AND"
		if op == query.OpOrElse {
			sqlOp = "OR"
		}
		return scalar(sqlexpr.NewBinary(sqlOp, l.Expr, r.Expr, c.Bool()), boolType), nil

	case query.OpEqual, query.OpNotEqual:
		if !typemap.Compatible(lm, rm) {
			return nil, c.Mismatch(string(op), "", "cannot compare %s with %s", lm, rm)
		}
		if lm.Kind == typemap.KindJSON || rm.Kind == typemap.KindJSON {
			return nil, c.Mismatch(string(op), "json", "json values have no equality operator; use jsonb")
		}
		sqlOp := "="
		if op == query.OpNotEqual {
			sqlOp = "<>"
		}
		return scalar(c.cmp(sqlOp, l.Expr, r.Expr), boolType), nil

	case query.OpLess, query.OpLessEqual, query.OpGreater, query.OpGreaterEqual:
		if !typemap.Compatible(lm, rm) {
			return nil, c.Mismatch(string(op), "", "cannot compare %s with %s", lm, rm)
		}
		return scalar(c.cmp(string(op), l.Expr, r.Expr), boolType), nil

	case query.OpCoalesce:
		if !typemap.Compatible(lm, rm) {
			return nil, c.Mismatch(string(op), "", "cannot coalesce %s with %s", lm, rm)
		}
		t := l.Type.WithNullable(r.Type.Nullable)
		return scalar(sqlexpr.NewFunction("COALESCE", lm, false, l.Expr, r.Expr), t), nil

	case query.OpAnd, query.OpOr:
		if lm.Kind == typemap.KindBool && rm.Kind == typemap.KindBool {
			sqlOp := "AND"
			if op == query.OpOr {
				sqlOp = "OR"
			}
			return scalar(sqlexpr.NewBinary(sqlOp, l.Expr, r.Expr, c.Bool()), boolType), nil
		}
		if (isAddressKind(lm.Kind) && isAddressKind(rm.Kind)) || (isIntegral(lm.Kind) && isIntegral(rm.Kind)) {
			t, m := c.promote(l, r)
			return scalar(sqlexpr.NewBinary(string(op), l.Expr, r.Expr, m), t.WithNullable(nullable)), nil
		}
		return nil, c.Mismatch(string(op), "", "bitwise %s needs integer or address operands, got %s and %s", op, lm, rm)

	case query.OpAdd:
		if lm.IsText() || rm.IsText() {
			le, re := c.asText(l), c.asText(r)
			return scalar(sqlexpr.NewBinary("||", le, re, c.mustScalar(typemap.KindText)), typemap.Text().WithNullable(nullable)), nil
		}
		fallthrough
	case query.OpSubtract, query.OpMultiply, query.OpDivide, query.OpModulo:
		if isAddressKind(lm.Kind) && (op == query.OpAdd || op == query.OpSubtract) {
			return c.addressArithmetic(op, l, r)
		}
		if typemap.CategoryOf(lm.Kind) != typemap.CategoryNumeric || typemap.CategoryOf(rm.Kind) != typemap.CategoryNumeric {
			return nil, c.Mismatch(string(op), "", "arithmetic %s needs numeric operands, got %s and %s", op, lm, rm)
		}
		t, m := c.promote(l, r)
		return scalar(sqlexpr.NewBinary(string(op), l.Expr, r.Expr, m), t.WithNullable(nullable)), nil
	}
	return nil, c.Unsupported(string(op), "", "unknown binary operator %s", op)
}

// addressArithmetic handles inet + int, inet - int and inet - inet.
func (c *Context) addressArithmetic(op query.BinaryOp, l, r *Value) (*Value, error) {
	rm := r.Expr.Mapping()
	nullable := l.Type.Nullable || r.Type.Nullable
	switch {
	case isIntegral(rm.Kind):
		return scalar(sqlexpr.NewBinary(string(op), l.Expr, r.Expr, l.Expr.Mapping()), l.Type.WithNullable(nullable)), nil
	case op == query.OpSubtract && isAddressKind(rm.Kind):
		return scalar(sqlexpr.NewBinary("-", l.Expr, r.Expr, c.mustScalar(typemap.KindBigInt)), typemap.BigInt().WithNullable(nullable)), nil
	}
	return nil, c.Mismatch(string(op), string(l.Type.Kind), "cannot apply %s to %s and %s", op, l.Expr.Mapping(), rm)
}

func isAddressKind(k typemap.Kind) bool {
	return k == typemap.KindInet || k == typemap.KindCidr
}

func isIntegral(k typemap.Kind) bool {
	return k == typemap.KindInt || k == typemap.KindBigInt || k == typemap.KindSmallInt
}

// promotion lists numeric kinds widest first.
var promotion = []typemap.Kind{
	typemap.KindDouble, typemap.KindReal, typemap.KindDecimal, typemap.KindBigInt, typemap.KindInt,
}

// promote returns the result type of a numeric or bitwise operation.
func (c *Context) promote(l, r *Value) (typemap.Type, *typemap.Mapping) {
	lk, rk := l.Expr.Mapping().Kind, r.Expr.Mapping().Kind
	if lk == rk && lk != typemap.KindSmallInt {
		return l.Type, l.Expr.Mapping()
	}
	for _, k := range promotion {
		if lk == k || rk == k {
			return typemap.Type{Kind: k}, c.mustScalar(k)
		}
	}
	return typemap.Int(), c.mustScalar(typemap.KindInt)
}

func (c *Context) asText(v *Value) sqlexpr.Expr {
	if v.Expr.Mapping().IsText() {
		return v.Expr
	}
	return sqlexpr.NewCast(v.Expr, c.mustScalar(typemap.KindText))
}

func (c *Context) unary(n *query.Unary) (*Value, error) {
	v, err := func() (*Value, error) {
		defer c.at(".operand")()
		return c.scalarExpr(n.Operand)
	}()
	if err != nil {
		return nil, err
	}
	m := v.Expr.Mapping()
	switch n.Op {
	case query.OpNot:
		if m.Kind != typemap.KindBool {
			return nil, c.Mismatch(string(n.Op), "", "! needs a boolean operand, got %s", m)
		}
		return scalar(c.not(v.Expr), v.Type), nil
	case query.OpNegate:
		if typemap.CategoryOf(m.Kind) != typemap.CategoryNumeric {
			return nil, c.Mismatch(string(n.Op), "", "negation needs a numeric operand, got %s", m)
		}
		return scalar(sqlexpr.NewUnary("-", v.Expr, m), v.Type), nil
	case query.OpComplement:
		if !isIntegral(m.Kind) && typemap.CategoryOf(m.Kind) != typemap.CategoryNetwork {
			return nil, c.Mismatch(string(n.Op), "", "~ needs an integer or address operand, got %s", m)
		}
		return scalar(sqlexpr.NewUnary("~", v.Expr, m), v.Type), nil
	}
	return nil, c.Unsupported(string(n.Op), "", "unknown unary operator %s", n.Op)
}

func (c *Context) conditional(n *query.Conditional) (*Value, error) {
	test, err := func() (*Value, error) {
		defer c.at(".test")()
		return c.scalarExpr(n.Test)
	}()
	if err != nil {
		return nil, err
	}
	if test.Type.Kind != typemap.KindBool {
		return nil, c.Mismatch("?:", "", "condition must be boolean, got %s", test.Type)
	}
	then, err := func() (*Value, error) {
		defer c.at(".then")()
		return c.scalarExpr(n.Then)
	}()
	if err != nil {
		return nil, err
	}
	els, err := func() (*Value, error) {
		defer c.at(".else")()
		return c.scalarExpr(n.Else)
	}()
	if err != nil {
		return nil, err
	}
	then, els = retypeNull(then, els)
	if !typemap.Compatible(then.Expr.Mapping(), els.Expr.Mapping()) {
		return nil, c.Mismatch("?:", "", "branches have incompatible types %s and %s", then.Expr.Mapping(), els.Expr.Mapping())
	}
	t := then.Type.WithNullable(then.Type.Nullable || els.Type.Nullable)
	node := sqlexpr.NewCase([]sqlexpr.When{{Cond: test.Expr, Result: then.Expr}}, els.Expr, then.Expr.Mapping())
	return scalar(node, t), nil
}

func (c *Context) constantValue(n *query.Constant) (*Value, error) {
	t := n.Type
	if t.Kind == "" {
		t = query.InferType(n.Value)
	}
	if ir.IsNull(n.Value) {
		t.Nullable = true
	}
	m, err := c.Mapping(t)
	if err != nil {
		return nil, err
	}
	if arr, ok := n.Value.(ir.IRArray); ok && t.Kind == typemap.KindArray {
		elem := t.ElemType()
		inline := make([]*Value, len(arr))
		for i, v := range arr {
			inline[i] = scalar(sqlexpr.NewConstant(v, m.Element), elem)
		}
		return &Value{Expr: sqlexpr.NewConstant(arr, m), Type: t, Inline: inline}, nil
	}
	return scalar(sqlexpr.NewConstant(n.Value, m), t), nil
}

func (c *Context) captured(n *query.Captured) (*Value, error) {
	m, err := c.Mapping(n.Type)
	if err != nil {
		return nil, err
	}
	if m.IsArray() && m.PerValueSQL {
		return nil, c.Unsupported("", n.Name, "captured array of %s cannot be sent as one parameter", m.Element)
	}
	p, err := c.capturedParam(n, m)
	if err != nil {
		return nil, err
	}
	return scalar(p, n.Type), nil
}

func (c *Context) newArray(n *query.NewArray) (*Value, error) {
	elems := make([]*Value, len(n.Elems))
	for i, e := range n.Elems {
		pop := c.at(fmt.Sprintf(".elems[%d]", i))
		v, err := c.scalarExpr(e)
		pop()
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}

	elemType := n.Elem
	if elemType.Kind == "" {
		for _, v := range elems {
			if !isNullConstant(v.Expr) {
				elemType = v.Type.WithNullable(false)
				break
			}
		}
	}
	if elemType.Kind == "" {
		return nil, c.Mismatch("new[]", "", "cannot infer the element type of an array of nulls")
	}
	em, err := c.Mapping(elemType)
	if err != nil {
		return nil, err
	}

	allConst := true
	values := make(ir.IRArray, len(elems))
	exprs := make([]sqlexpr.Expr, len(elems))
	for i, v := range elems {
		if isNullConstant(v.Expr) {
			v = scalar(sqlexpr.NewConstant(ir.IRNull{}, em), elemType.WithNullable(true))
			elems[i] = v
		}
		if !typemap.Compatible(em, v.Expr.Mapping()) {
			return nil, c.Mismatch("new[]", "", "element %d has type %s, want %s", i, v.Expr.Mapping(), em)
		}
		if v.Type.Nullable {
			elemType.Nullable = true
		}
		exprs[i] = v.Expr
		if k, ok := v.Expr.(*sqlexpr.Constant); ok {
			values[i] = k.Value
		} else {
			allConst = false
		}
	}

	t := typemap.ArrayOf(elemType)
	am := c.reg.ArrayOf(em)
	var node sqlexpr.Expr = sqlexpr.NewArrayLiteral(exprs, am)
	if allConst {
		node = sqlexpr.NewConstant(values, am)
	}
	return &Value{Expr: node, Type: t, Inline: elems}, nil
}

func (c *Context) newObject(n *query.NewObject, clientOK bool) (*Value, error) {
	fields := make([]*Field, len(n.Fields))
	for i, f := range n.Fields {
		pop := c.at(fmt.Sprintf(".fields[%d]", i))
		c.clientOK = clientOK
		v, err := c.expr(f.Value)
		pop()
		if err != nil {
			return nil, err
		}
		fields[i] = &Field{Name: f.Name, Value: v}
	}
	return &Value{Object: fields}, nil
}

func (c *Context) clientCall(n *query.ClientCall, clientOK bool) (*Value, error) {
	if !clientOK {
		return nil, c.fail(NewClientEvaluationError(n.Method))
	}
	args := make([]*Value, len(n.Args))
	for i, a := range n.Args {
		pop := c.at(fmt.Sprintf(".args[%d]", i))
		v, err := c.scalarExpr(a)
		pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return &Value{Client: &ClientValue{Method: n.Method, Args: args}}, nil
}

func (c *Context) convert(n *query.Convert) (*Value, error) {
	v, err := func() (*Value, error) {
		defer c.at(".operand")()
		return c.scalarExpr(n.Operand)
	}()
	if err != nil {
		return nil, err
	}
	t := n.Type
	t.Nullable = t.Nullable || v.Type.Nullable
	m, err := c.Mapping(t)
	if err != nil {
		return nil, err
	}
	if v.Expr.Mapping().StoreType == m.StoreType {
		return scalar(v.Expr, t), nil
	}
	return scalar(sqlexpr.NewCast(v.Expr, m), t), nil
}
