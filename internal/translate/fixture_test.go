package translate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/typemap"
)

var (
	address = &typemap.Struct{
		Name: "Address",
		Properties: []*typemap.Property{
			{Name: "City", Type: typemap.Text()},
			{Name: "Zip", Type: typemap.Nullable(typemap.Text())},
		},
	}

	customer = &typemap.Struct{
		Name: "Customer",
		Properties: []*typemap.Property{
			{Name: "Name", Type: typemap.Text()},
			{Name: "Address", Type: typemap.StructOf(address, "jsonb")},
		},
	}

	line = &typemap.Struct{
		Name: "Line",
		Properties: []*typemap.Property{
			{Name: "Sku", Type: typemap.Text()},
			{Name: "Qty", Type: typemap.Int()},
			{Name: "Tags", Type: typemap.ListOf(typemap.Text(), "jsonb")},
		},
	}

	point = &typemap.Struct{
		Name: "Point",
		Properties: []*typemap.Property{
			{Name: "X", Type: typemap.Int()},
			{Name: "Y", Type: typemap.Int()},
		},
	}

	entity = &typemap.Struct{
		Name:  "Entity",
		Table: "entities",
		Properties: []*typemap.Property{
			{Name: "Id", Type: typemap.Int()},
			{Name: "Int", Type: typemap.Int()},
			{Name: "NullableInt", Type: typemap.Nullable(typemap.Int())},
			{Name: "Text", Type: typemap.Text()},
			{Name: "NullableText", Type: typemap.Nullable(typemap.Text())},
			{Name: "IntArray", Type: typemap.ArrayOf(typemap.Int())},
			{Name: "NullableIntArray", Type: typemap.ArrayOf(typemap.Nullable(typemap.Int()))},
			{Name: "TextArray", Type: typemap.ArrayOf(typemap.Text())},
			{Name: "Map", Type: typemap.Hstore()},
			{Name: "Json", Type: typemap.JSONB()},
			{Name: "Customer", Type: typemap.StructOf(customer, "jsonb")},
			{Name: "IntRange", Type: typemap.RangeOf(typemap.Int())},
			{Name: "Inet", Type: typemap.Inet()},
			{Name: "Cidr", Type: typemap.Cidr()},
			{Name: "MacAddr", Type: typemap.MacAddr()},
			{Name: "Vector", Type: typemap.TsVector()},
			{Name: "Created", Type: typemap.Timestamp()},
			{Name: "Lines", Type: typemap.ListOf(typemap.StructOf(line, "jsonb"), "jsonb")},
			{Name: "Tags", Type: typemap.ListOf(typemap.Text(), "json")},
			{Name: "Point", Type: typemap.CompositeOf(point, "point_t")},
		},
	}

	order = &typemap.Struct{
		Name:  "Order",
		Table: "orders",
		Properties: []*typemap.Property{
			{Name: "Id", Type: typemap.Int()},
			{Name: "EntityId", Type: typemap.Int()},
			{Name: "Amount", Type: typemap.Decimal()},
		},
	}
)

func testModel(t *testing.T) *typemap.Model {
	t.Helper()
	m, err := typemap.NewModel(entity, order)
	require.NoError(t, err)
	return m
}

func newTestTranslator(t *testing.T, opts ...Option) *Translator {
	t.Helper()
	return New(typemap.NewRegistry(), testModel(t), opts...)
}

func entities(ops ...query.Operation) *query.Query {
	return &query.Query{Source: "Entity", Ops: ops}
}

func where(body query.Expr) *query.Where {
	return &query.Where{Predicate: query.Lam(body, "e")}
}

func project(body query.Expr) *query.Select {
	return &query.Select{Selector: query.Lam(body, "e")}
}

func intArray(vals ...int64) *query.NewArray {
	elems := make([]query.Expr, len(vals))
	for i, v := range vals {
		elems[i] = query.Const(ir.IRInt(v))
	}
	return &query.NewArray{Elems: elems, Elem: typemap.Int()}
}

func text(s string) *query.Constant {
	return query.Const(ir.IRString(s))
}

func integer(n int64) *query.Constant {
	return query.Const(ir.IRInt(n))
}

// translateSQL translates q and returns the SQL text.
func translateSQL(t *testing.T, q *query.Query, opts ...Option) string {
	t.Helper()
	cmd, err := newTestTranslator(t, opts...).Translate(q)
	require.NoError(t, err)
	return cmd.SQL
}
