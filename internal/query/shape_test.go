package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

func containsQuery(values ir.IRArray) *Query {
	arr := Capture("nullableIntArray", typemap.ArrayOf(typemap.Nullable(typemap.Int())), values)
	return &Query{Source: "Entity", Ops: []Operation{
		&Where{Predicate: Lam(CallOn(arr, "Contains", Path("e.NullableInt")), "e")},
	}}
}

func TestShapeHash_IgnoresCapturedValues(t *testing.T) {
	a, err := ShapeHash(containsQuery(ir.IRArray{ir.IRInt(1), ir.IRNull{}}))
	require.NoError(t, err)
	b, err := ShapeHash(containsQuery(ir.IRArray{ir.IRInt(7), ir.IRInt(8), ir.IRInt(9)}))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestShapeHash_ConstantsAreShape(t *testing.T) {
	q := func(n int64) *Query {
		return &Query{Source: "Entity", Ops: []Operation{
			&Where{Predicate: Lam(Bin(OpEqual, Path("e.Int"), Const(ir.IRInt(n))), "e")},
		}}
	}

	a, err := ShapeHash(q(1))
	require.NoError(t, err)
	b, err := ShapeHash(q(2))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestShapeHash_CapturedTypeIsShape(t *testing.T) {
	q := func(typ typemap.Type) *Query {
		return &Query{Source: "Entity", Ops: []Operation{
			&Where{Predicate: Lam(Bin(OpEqual, Path("e.Int"), Capture("v", typ, ir.IRInt(1))), "e")},
		}}
	}

	a, err := ShapeHash(q(typemap.Int()))
	require.NoError(t, err)
	b, err := ShapeHash(q(typemap.Nullable(typemap.Int())))
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "nullability changes the generated SQL")
}

func TestCaptures(t *testing.T) {
	key := Capture("key", typemap.Text(), ir.IRString("a"))
	q := &Query{Source: "Entity", Ops: []Operation{
		&Where{Predicate: Lam(CallOn(Path("e.Map"), "ContainsKey", key), "e")},
		&Where{Predicate: Lam(Bin(OpEqual, Path("e.Name"), key), "e")},
		&Take{Count: Capture("n", typemap.Int(), ir.IRInt(5))},
	}}

	caps := Captures(q)
	require.Len(t, caps, 2)
	assert.Equal(t, "key", caps[0].Name)
	assert.Equal(t, "n", caps[1].Name)

	values := CapturedValues(q)
	assert.Equal(t, ir.IRString("a"), values["key"])
	assert.Equal(t, ir.IRInt(5), values["n"])
}

func TestInferType(t *testing.T) {
	assert.Equal(t, "int", InferType(ir.IRInt(1)).String())
	assert.Equal(t, "double", InferType(ir.IRFloat(1.5)).String())
	assert.Equal(t, "int?[]", InferType(ir.IRArray{ir.IRInt(1), ir.IRNull{}}).String())
	assert.Equal(t, "text?", InferType(ir.IRNull{}).String())
}
