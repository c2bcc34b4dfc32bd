package sqlexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

var reg = typemap.NewRegistry()

func intCol(name string, nullable bool) *ColumnRef {
	return NewColumn("e", name, reg.MustFind(typemap.Int()), nullable)
}

func TestConstructorsRequireMapping(t *testing.T) {
	assert.Panics(t, func() { NewColumn("e", "Int", nil, false) })
	assert.Panics(t, func() { NewBinary("=", intCol("A", false), intCol("B", false), nil) })
	assert.NotPanics(t, func() { NewConstant(nil, reg.MustFind(typemap.Int())) })
}

func TestNullable(t *testing.T) {
	boolM := reg.Bool()
	intM := reg.MustFind(typemap.Int())

	tests := []struct {
		name     string
		expr     Expr
		nullable bool
	}{
		{"non-null column", intCol("Int", false), false},
		{"nullable column", intCol("NullableInt", true), true},
		{"null literal", NewConstant(ir.IRNull{}, intM), true},
		{"literal", NewConstant(ir.IRInt(1), intM), false},
		{"comparison with nullable side", NewBinary("=", intCol("Int", false), intCol("NullableInt", true), boolM), true},
		{"null-safe comparison", &BinaryOp{typed: typed{boolM}, Op: "=", Left: intCol("A", true), Right: intCol("B", true), NullSafe: true}, false},
		{"is null", NewPostfix("IS NULL", intCol("NullableInt", true), boolM), false},
		{"coalesce with fallback", NewFunction("COALESCE", intM, false, intCol("NullableInt", true), NewConstant(ir.IRInt(0), intM)), false},
		{"count", NewAggregate("COUNT", reg.MustFind(typemap.BigInt())), false},
		{"sum", NewAggregate("SUM", intM, intCol("Int", false)), true},
		{"json path", NewJsonPath(intCol("Json", false), nil, true, reg.MustFind(typemap.Text())), true},
		{"exists", NewExists(&Select{}, false, boolM), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.nullable, Nullable(tt.expr))
		})
	}
}

func TestKey_StructuralEquality(t *testing.T) {
	boolM := reg.Bool()
	a := NewBinary("=", intCol("Int", false), NewConstant(ir.IRInt(3), reg.MustFind(typemap.Int())), boolM)
	b := NewBinary("=", intCol("Int", false), NewConstant(ir.IRInt(3), reg.MustFind(typemap.Int())), boolM)
	c := NewBinary("=", intCol("Int", false), NewConstant(ir.IRInt(4), reg.MustFind(typemap.Int())), boolM)

	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c))
	assert.Equal(t, `(op = (col "e"."Int") (const 3::integer))`, Key(a))
}

func TestWalk_PrintOrder(t *testing.T) {
	intM := reg.MustFind(typemap.Int())
	p := func(key string) *Parameter { return NewParameter(key, key, intM, false) }

	sel := &Select{
		Projection: []*Projection{{Expr: p("proj")}},
		From:       &Table{Name: "Entities", Alias: "e"},
		Joins: []*Join{{
			Kind:    CrossJoin,
			Lateral: true,
			Source:  &TableFunction{Call: NewFunction("unnest", intM, false, p("join")), Alias: "u"},
		}},
		Where:   NewBinary("=", intCol("Int", false), p("where"), reg.Bool()),
		OrderBy: []*Ordering{{Expr: p("order")}},
		Limit:   p("limit"),
		Offset:  p("offset"),
	}

	var keys []string
	WalkQuery(sel, func(e Expr) bool {
		if pp, ok := e.(*Parameter); ok {
			keys = append(keys, pp.Key)
		}
		return true
	})

	assert.Equal(t, []string{"proj", "join", "where", "order", "limit", "offset"}, keys)
}

func TestRewrite_DoesNotModifyInput(t *testing.T) {
	boolM := reg.Bool()
	orig := NewBinary("AND",
		NewBinary("=", intCol("A", false), intCol("B", false), boolM),
		NewBinary("=", intCol("C", false), intCol("D", false), boolM),
		boolM)
	before := Key(orig)

	out := Rewrite(orig, func(e Expr) Expr {
		if c, ok := e.(*ColumnRef); ok {
			return NewColumn("x", c.Column, c.Mapping(), c.Nullable)
		}
		return e
	})

	assert.Equal(t, before, Key(orig))
	assert.Contains(t, Key(out), `(col "x"."A")`)
	assert.NotContains(t, Key(out), `(col "e"`)
}

func TestSelect_AndWhere(t *testing.T) {
	s := &Select{}
	first := NewPostfix("IS NULL", intCol("A", true), reg.Bool())
	s.AndWhere(first)
	assert.Same(t, first, s.Where)

	s.AndWhere(NewPostfix("IS NULL", intCol("B", true), reg.Bool()))
	and, ok := s.Where.(*BinaryOp)
	require.True(t, ok)
	assert.Equal(t, "AND", and.Op)
}

func TestSelect_IsLimited(t *testing.T) {
	assert.False(t, (&Select{}).IsLimited())
	assert.True(t, (&Select{Distinct: true}).IsLimited())
	assert.True(t, (&Select{Limit: NewConstant(ir.IRInt(1), reg.MustFind(typemap.Int()))}).IsLimited())
	assert.True(t, (&Select{GroupBy: []Expr{intCol("A", false)}}).IsLimited())
}

func TestMapChildren_OneLevel(t *testing.T) {
	boolM := reg.Bool()
	inner := NewBinary("=", intCol("A", false), intCol("B", false), boolM)
	outer := NewUnary("NOT", inner, boolM)

	var seen []Expr
	out := MapChildren(outer, func(e Expr) Expr {
		seen = append(seen, e)
		return e
	})

	require.Len(t, seen, 1)
	assert.Same(t, inner, seen[0])
	assert.NotSame(t, outer, out)
	assert.Equal(t, Key(outer), Key(out))

	col := intCol("A", false)
	assert.Same(t, col, MapChildren(col, func(e Expr) Expr { return nil }).(*ColumnRef))
}
