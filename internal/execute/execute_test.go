package execute

import (
	"context"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/translate"
	"github.com/roach88/querylift/internal/typemap"
)

var item = &typemap.Struct{
	Name:  "Item",
	Table: "items",
	Properties: []*typemap.Property{
		{Name: "Id", Type: typemap.Int()},
		{Name: "Name", Type: typemap.Text()},
		{Name: "Price", Type: typemap.Nullable(typemap.Double())},
		{Name: "Active", Type: typemap.Bool()},
	},
}

var itemRows = []map[string]ir.IRValue{
	{"Id": ir.IRInt(1), "Name": ir.IRString("pen"), "Price": ir.IRFloat(1.5), "Active": ir.IRBool(true)},
	{"Id": ir.IRInt(2), "Name": ir.IRString("book"), "Price": ir.IRFloat(12), "Active": ir.IRBool(true)},
	{"Id": ir.IRInt(3), "Name": ir.IRString("lamp"), "Active": ir.IRBool(false)},
}

type fixture struct {
	exec *Executor
	tr   *translate.Translator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	exec, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })

	reg := typemap.NewRegistry()
	require.NoError(t, exec.CreateTable(ctx, reg, item))
	for _, r := range itemRows {
		require.NoError(t, exec.Insert(ctx, reg, item, r))
	}

	m, err := typemap.NewModel(item)
	require.NoError(t, err)
	return &fixture{
		exec: exec,
		tr:   translate.New(reg, m, translate.WithDialect(exec.Dialect())),
	}
}

func (f *fixture) run(t *testing.T, q *query.Query) (*Result, error) {
	t.Helper()
	cmd, err := f.tr.Translate(q)
	require.NoError(t, err)
	return f.exec.Query(context.Background(), cmd)
}

func items(ops ...query.Operation) *query.Query {
	return &query.Query{Source: "Item", Ops: ops}
}

func lam(body query.Expr) *query.Lambda {
	return query.Lam(body, "e")
}

func fields(fs ...query.Field) *query.Select {
	return &query.Select{Selector: lam(&query.NewObject{Fields: fs})}
}

func TestQuery_Rows(t *testing.T) {
	f := newFixture(t)

	res, err := f.run(t, items(
		&query.Where{Predicate: lam(query.Bin(query.OpGreater, query.Path("e.Price"), query.Const(ir.IRFloat(1))))},
		&query.OrderBy{Key: lam(query.Path("e.Id"))},
		fields(
			query.Field{Name: "Name", Value: query.Path("e.Name")},
			query.Field{Name: "Price", Value: query.Path("e.Price")},
		),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Price"}, res.Columns)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, Row{"Name": "pen", "Price": 1.5}, res.Rows[0])
	assert.Equal(t, Row{"Name": "book", "Price": 12.0}, res.Rows[1])
}

func TestQuery_CapturedParameter(t *testing.T) {
	f := newFixture(t)

	res, err := f.run(t, items(
		&query.Where{Predicate: lam(query.Bin(query.OpEqual, query.Path("e.Name"),
			query.Capture("name", typemap.Text(), ir.IRString("lamp"))))},
		fields(query.Field{Name: "Id", Value: query.Path("e.Id")}),
	))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(3), res.Rows[0]["Id"])
}

func TestQuery_Scalar(t *testing.T) {
	f := newFixture(t)

	res, err := f.run(t, items(&query.Aggregate{
		Func:   query.AggCount,
		Lambda: lam(query.Path("e.Active")),
	}))
	require.NoError(t, err)
	assert.Equal(t, translate.ShapeScalar, res.Shape)

	v, err := res.Scalar()
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestQuery_Single(t *testing.T) {
	f := newFixture(t)
	byName := func(name string) *query.Where {
		return &query.Where{Predicate: lam(query.Bin(query.OpEqual, query.Path("e.Name"), query.Const(ir.IRString(name))))}
	}
	single := &query.Aggregate{Func: query.AggSingle}

	res, err := f.run(t, items(byName("pen"), single))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	_, err = f.run(t, items(single))
	assert.ErrorIs(t, err, ErrNotSingle)

	_, err = f.run(t, items(byName("missing"), single))
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestQuery_ClientColumns(t *testing.T) {
	f := newFixture(t)

	res, err := f.run(t, items(
		&query.Where{Predicate: lam(query.Bin(query.OpEqual, query.Path("e.Id"), query.Const(ir.IRInt(2))))},
		fields(
			query.Field{Name: "Id", Value: query.Path("e.Id")},
			query.Field{Name: "Label", Value: &query.ClientCall{
				Method: "Format",
				Args:   []query.Expr{query.Const(ir.IRString("{0} #{1}")), query.Path("e.Name"), query.Path("e.Id")},
			}},
		),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{"Id", "Label"}, res.Columns, "argument columns stay internal")
	require.Len(t, res.Rows, 1)
	assert.Equal(t, Row{"Id": int64(2), "Label": "book #2"}, res.Rows[0])
}

func TestQuery_UnknownClientFunc(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, items(fields(
		query.Field{Name: "X", Value: &query.ClientCall{Method: "Frobnicate", Args: []query.Expr{query.Path("e.Name")}}},
	)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no client function "Frobnicate"`)
}

func TestDriverValue(t *testing.T) {
	pg := New(nil, DriverPostgres)
	v, err := pg.driverValue("p0", []any{int64(1), int64(2)})
	require.NoError(t, err)
	assert.IsType(t, &pq.GenericArray{}, v)

	v, err = pg.driverValue("p1", "x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	lite := New(nil, DriverSQLite)
	_, err = lite.driverValue("p0", []any{int64(1)})
	assert.Error(t, err)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "")
	assert.Error(t, err)
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "sqlite", DialectFor(DriverSQLite).Name)
	assert.Equal(t, "postgres-positional", DialectFor(DriverPostgres).Name)
}

func TestClientFuncs(t *testing.T) {
	tests := []struct {
		name string
		fn   ClientFunc
		args []any
		want any
	}{
		{"to string", toString, []any{int64(4)}, "4"},
		{"to string null", toString, []any{nil}, nil},
		{"concat skips nulls", concat, []any{"a", nil, int64(1)}, "a1"},
		{"format", format, []any{"{1}-{0}", "x", "y"}, "y-x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := format(int64(1))
	assert.Error(t, err)
}
