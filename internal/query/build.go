package query

import (
	"strings"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

// Path builds a parameter-rooted member chain from dotted notation.
// Path("e.Json.Orders") is e.Json.Orders.
func Path(dotted string) Expr {
	parts := strings.Split(dotted, ".")
	var e Expr = &Param{Name: parts[0]}
	for _, p := range parts[1:] {
		e = &Member{Target: e, Name: p}
	}
	return e
}

// Lam builds a lambda.
func Lam(body Expr, params ...string) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// CallOn builds a method call.
func CallOn(receiver Expr, method string, args ...Expr) *Call {
	return &Call{Receiver: receiver, Method: method, Args: args}
}

// Static builds a static function call.
func Static(fn string, args ...Expr) *Call {
	return &Call{Method: fn, Args: args}
}

// Const builds a constant with an inferred type.
func Const(v ir.IRValue) *Constant {
	return &Constant{Value: v, Type: InferType(v)}
}

// Capture builds a captured variable.
func Capture(name string, t typemap.Type, v ir.IRValue) *Captured {
	return &Captured{Name: name, Type: t, Value: v}
}

// Bin builds a binary operation.
func Bin(op BinaryOp, left, right Expr) *Binary {
	return &Binary{Op: op, Left: left, Right: right}
}

// Not builds a logical negation.
func Not(e Expr) *Unary {
	return &Unary{Op: OpNot, Operand: e}
}

// InferType returns the natural host type of a value. Null has no natural
// type and yields a nullable text.
func InferType(v ir.IRValue) typemap.Type {
	switch val := v.(type) {
	case ir.IRInt:
		return typemap.Int()
	case ir.IRFloat:
		return typemap.Double()
	case ir.IRString:
		return typemap.Text()
	case ir.IRBool:
		return typemap.Bool()
	case ir.IRArray:
		elem := typemap.Text()
		nullable := false
		for _, e := range val {
			if ir.IsNull(e) {
				nullable = true
				continue
			}
			elem = InferType(e)
		}
		return typemap.ArrayOf(elem.WithNullable(nullable))
	case ir.IRObject:
		return typemap.JSONB()
	}
	return typemap.Nullable(typemap.Text())
}
