package translate

import (
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

// networkFunc describes a scalar function over one address. A zero result
// kind keeps the receiver's type.
type networkFunc struct {
	method  string
	fn      string
	result  typemap.Kind
	mac     bool
	argKind typemap.Kind
}

var networkFuncs = []networkFunc{
	{method: "Abbreviate", fn: "abbrev", result: typemap.KindText},
	{method: "Broadcast", fn: "broadcast", result: typemap.KindInet},
	{method: "Family", fn: "family", result: typemap.KindInt},
	{method: "Host", fn: "host", result: typemap.KindText},
	{method: "HostMask", fn: "hostmask", result: typemap.KindInet},
	{method: "MaskLength", fn: "masklen", result: typemap.KindInt},
	{method: "Netmask", fn: "netmask", result: typemap.KindInet},
	{method: "Network", fn: "network", result: typemap.KindCidr},
	{method: "Text", fn: "text", result: typemap.KindText},
	{method: "SetMaskLength", fn: "set_masklen", argKind: typemap.KindInt},
	{method: "SameFamily", fn: "inet_same_family", result: typemap.KindBool, argKind: typemap.KindInet},
	{method: "Merge", fn: "inet_merge", result: typemap.KindCidr, argKind: typemap.KindInet},
	{method: "Truncate", fn: "trunc", mac: true},
	{method: "Set7BitMac8", fn: "macaddr8_set7bit", mac: true},
}

var networkOperators = []struct {
	method  string
	op      string
	address bool
}{
	{"ContainedBy", "<<", true},
	{"ContainedByOrEqual", "<<=", true},
	{"Contains", ">>", true},
	{"ContainsOrEqual", ">>=", true},
	{"ContainsOrContainedBy", "&&", true},
	{"LessThan", "<", false},
	{"LessThanOrEqual", "<=", false},
	{"GreaterThan", ">", false},
	{"GreaterThanOrEqual", ">=", false},
}

func registerNetwork(r *Recognizer) {
	net := func(method string, arity int, fn TranslateFunc) {
		r.MustRegister(InCategory(typemap.CategoryNetwork, method, arity), fn)
	}

	for _, o := range networkOperators {
		net(o.method, 1, networkCompare(o.op, o.address))
	}
	for _, f := range networkFuncs {
		arity := 0
		if f.argKind != "" {
			arity = 1
		}
		net(f.method, arity, networkFunction(f))
	}

	net("BitwiseNot", 0, func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		return scalar(sqlexpr.NewUnary("~", recv.Expr, recv.Expr.Mapping()), recv.Type), nil
	})
	net("BitwiseAnd", 1, networkBinary(query.OpAnd))
	net("BitwiseOr", 1, networkBinary(query.OpOr))
	net("Add", 1, networkBinary(query.OpAdd))
	net("Subtract", 1, networkBinary(query.OpSubtract))
}

func isMac(k typemap.Kind) bool {
	return k == typemap.KindMacAddr || k == typemap.KindMacAddr8
}

func networkCompare(op string, address bool) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		arg, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		lm, rm := recv.Expr.Mapping(), arg.Expr.Mapping()
		if address && (!isAddressKind(lm.Kind) || !isAddressKind(rm.Kind)) {
			return nil, c.Mismatch(inv.Method, arg.Type.String(), "%s needs inet or cidr operands, got %s and %s", inv.Method, lm, rm)
		}
		if !typemap.Compatible(lm, rm) {
			return nil, c.Mismatch(inv.Method, arg.Type.String(), "cannot compare %s with %s", lm, rm)
		}
		return scalar(c.cmp(op, recv.Expr, arg.Expr), typemap.Bool()), nil
	}
}

// networkBinary shares operator checks with the host operators & | + -.
func networkBinary(op query.BinaryOp) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		arg, err := c.toScalar(inv.Arg(0))
		if err != nil {
			return nil, err
		}
		return c.binaryOp(op, inv.Receiver, arg)
	}
}

func networkFunction(f networkFunc) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		recv := inv.Receiver
		rk := recv.Expr.Mapping().Kind
		if f.mac != isMac(rk) {
			want := "inet or cidr"
			if f.mac {
				want = "macaddr"
			}
			return nil, c.Mismatch(inv.Method, recv.Type.String(), "%s needs %s, got %s", inv.Method, want, recv.Expr.Mapping())
		}
		if f.fn == "macaddr8_set7bit" && rk != typemap.KindMacAddr8 {
			return nil, c.Mismatch(inv.Method, recv.Type.String(), "%s needs macaddr8, got %s", inv.Method, recv.Expr.Mapping())
		}

		args := []sqlexpr.Expr{recv.Expr}
		nullable := recv.Type.Nullable
		if f.argKind != "" {
			arg, err := c.toScalar(inv.Arg(0))
			if err != nil {
				return nil, err
			}
			am := arg.Expr.Mapping()
			ok := isIntegral(am.Kind)
			if f.argKind == typemap.KindInet {
				ok = isAddressKind(am.Kind)
			}
			if !ok {
				return nil, c.Mismatch(inv.Method, arg.Type.String(), "%s cannot take %s", inv.Method, am)
			}
			args = append(args, arg.Expr)
			nullable = nullable || arg.Type.Nullable
		}

		t := recv.Type
		m := recv.Expr.Mapping()
		if f.result != "" {
			t = typemap.Type{Kind: f.result}
			m = c.mustScalar(f.result)
		}
		return scalar(sqlexpr.NewFunction(f.fn, m, false, args...), t.WithNullable(nullable)), nil
	}
}
