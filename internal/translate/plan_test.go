package translate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/typemap"
)

func TestTranslate_Examples(t *testing.T) {
	nullableIntArray := typemap.ArrayOf(typemap.Nullable(typemap.Int()))

	tests := []struct {
		name string
		q    *query.Query
		want string
	}{
		{
			name: "constant array contains",
			q:    entities(where(query.CallOn(intArray(10, 999), "Contains", query.Path("e.Int")))),
			want: `WHERE e."Int" IN (10, 999)`,
		},
		{
			name: "hstore contains key",
			q: entities(where(query.CallOn(query.Path("e.Map"), "ContainsKey",
				query.Capture("key", typemap.Text(), ir.IRString("color"))))),
			want: `WHERE e."Map" ? @key`,
		},
		{
			name: "json array length",
			q: entities(project(query.CallOn(
				query.CallOn(query.Path("e.Json"), "GetProperty", text("Orders")),
				"GetArrayLength"))),
			want: `SELECT jsonb_array_length(e."Json"->'Orders')`,
		},
		{
			name: "range contains value",
			q:    entities(where(query.CallOn(query.Path("e.IntRange"), "Contains", integer(3)))),
			want: `WHERE e."IntRange" @> 3`,
		},
		{
			name: "nullable array contains nullable column",
			q: entities(where(query.CallOn(
				query.Capture("nullableIntArray", nullableIntArray, ir.IRArray{ir.IRInt(1), ir.IRNull{}}),
				"Contains", query.Path("e.NullableInt")))),
			want: `WHERE e."NullableInt" = ANY(@nullableIntArray) OR (e."NullableInt" IS NULL AND array_position(@nullableIntArray, NULL) IS NOT NULL)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, translateSQL(t, tt.q), tt.want)
		})
	}
}

func TestTranslate_ContainsBySize(t *testing.T) {
	tests := []struct {
		name string
		arr  *query.NewArray
		opts []Option
		want string
	}{
		{name: "empty", arr: intArray(), want: "WHERE FALSE"},
		{name: "single", arr: intArray(10), want: `WHERE e."Int" = 10`},
		{name: "several", arr: intArray(1, 2, 3), want: `WHERE e."Int" IN (1, 2, 3)`},
		{name: "beyond inline limit", arr: intArray(1, 2, 3), opts: []Option{WithMaxInlineList(2)}, want: `WHERE e."Int" = ANY(@p0)`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := entities(where(query.CallOn(tt.arr, "Contains", query.Path("e.Int"))))
			assert.Contains(t, translateSQL(t, q, tt.opts...), tt.want)
		})
	}
}

func TestTranslate_FoldedArrayParameter(t *testing.T) {
	q := entities(where(query.CallOn(intArray(1, 2, 3), "Contains", query.Path("e.Int"))))
	cmd, err := newTestTranslator(t, WithMaxInlineList(2)).Translate(q)
	require.NoError(t, err)

	require.Len(t, cmd.Parameters, 1)
	assert.Equal(t, "p0", cmd.Parameters[0].Name)
	assert.Equal(t, "integer[]", cmd.Parameters[0].StoreType)
	assert.NotNil(t, cmd.Parameters[0].Value)
}

func TestTranslate_SameShapeSameSQL(t *testing.T) {
	tr := newTestTranslator(t)
	build := func(key string) *query.Query {
		return entities(where(query.CallOn(query.Path("e.Map"), "ContainsKey",
			query.Capture("key", typemap.Text(), ir.IRString(key)))))
	}

	a, err := tr.Translate(build("red"))
	require.NoError(t, err)
	b, err := tr.Translate(build("blue"))
	require.NoError(t, err)

	assert.Equal(t, a.SQL, b.SQL)
	assert.Equal(t, a.Plan.ID, b.Plan.ID)
	require.Len(t, a.Parameters, 1)
	require.Len(t, b.Parameters, 1)
	assert.Equal(t, "red", a.Parameters[0].Value)
	assert.Equal(t, "blue", b.Parameters[0].Value)
}

func TestTranslate_DistinctCapturesGetDistinctNames(t *testing.T) {
	q := entities(where(query.Bin(query.OpAndAlso,
		query.Bin(query.OpGreater, query.Path("e.Int"), query.Capture("min", typemap.Int(), ir.IRInt(1))),
		query.Bin(query.OpLess, query.Path("e.Int"), query.Capture("max", typemap.Int(), ir.IRInt(9))),
	)))
	cmd, err := newTestTranslator(t).Translate(q)
	require.NoError(t, err)

	assert.Contains(t, cmd.SQL, `e."Int" > @min AND e."Int" < @max`)
	require.Len(t, cmd.Parameters, 2)
	assert.Equal(t, "min", cmd.Parameters[0].Name)
	assert.Equal(t, "max", cmd.Parameters[1].Name)
}

func TestTranslate_RepeatedCaptureSharesParameter(t *testing.T) {
	x := query.Capture("x", typemap.Int(), ir.IRInt(5))
	q := entities(where(query.Bin(query.OpOrElse,
		query.Bin(query.OpEqual, query.Path("e.Int"), x),
		query.Bin(query.OpEqual, query.Path("e.Id"), x),
	)))
	cmd, err := newTestTranslator(t, WithDialect(sqlprint.PostgresPositional)).Translate(q)
	require.NoError(t, err)

	assert.Contains(t, cmd.SQL, `e."Int" = $1 OR e."Id" = $1`)
	require.Len(t, cmd.Parameters, 1)
	assert.Equal(t, int64(5), cmd.Parameters[0].Value)
}

func TestBind_MissingCapturedValue(t *testing.T) {
	q := entities(where(query.Bin(query.OpEqual, query.Path("e.Int"), query.Capture("x", typemap.Int(), ir.IRInt(5)))))
	p, err := newTestTranslator(t).Compile(q)
	require.NoError(t, err)

	_, err = p.Bind(map[string]ir.IRValue{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x"`)

	cmd, err := p.Bind(map[string]ir.IRValue{"x": ir.IRInt(7)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), cmd.Parameters[0].Value)
}

func TestCompile_RejectsInvalidQuery(t *testing.T) {
	q := entities(where(query.Bin(query.OpEqual, query.Path("x.Int"), integer(1))))
	_, err := newTestTranslator(t).Compile(q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query")
}

func TestCompile_ResultColumns(t *testing.T) {
	q := entities(project(&query.NewObject{Fields: []query.Field{
		{Name: "A", Value: query.Path("e.Int")},
		{Name: "B", Value: query.Path("e.Int")},
		{Name: "Name", Value: query.Path("e.Text")},
	}}))
	p, err := newTestTranslator(t).Compile(q)
	require.NoError(t, err)

	require.Len(t, p.Columns, 3)
	assert.Equal(t, "A", p.Columns[0].Name)
	assert.Equal(t, "B", p.Columns[1].Name)
	assert.Equal(t, p.Columns[0].Ordinal, p.Columns[1].Ordinal, "duplicate projection is emitted once")
	assert.Equal(t, 1, p.Columns[2].Ordinal)
	assert.Equal(t, ShapeRows, p.Shape)
	assert.False(t, p.HasClientColumns())
}

func TestCompile_ClientProjection(t *testing.T) {
	q := entities(project(&query.NewObject{Fields: []query.Field{
		{Name: "Id", Value: query.Path("e.Id")},
		{Name: "Label", Value: &query.ClientCall{Method: "Format", Args: []query.Expr{query.Path("e.Text")}}},
	}}))
	p, err := newTestTranslator(t).Compile(q)
	require.NoError(t, err)

	require.True(t, p.HasClientColumns())
	last := p.Columns[len(p.Columns)-1]
	assert.Equal(t, "Label", last.Name)
	assert.Equal(t, -1, last.Ordinal)
	require.NotNil(t, last.Client)
	assert.Equal(t, "Format", last.Client.Method)
	assert.Len(t, last.Client.Args, 1)
}

func TestCompile_TerminalShapes(t *testing.T) {
	tests := []struct {
		name  string
		op    *query.Aggregate
		shape ResultShape
		want  string
	}{
		{name: "count", op: &query.Aggregate{Func: query.AggCount}, shape: ShapeScalar, want: "COUNT(*)"},
		{name: "first", op: &query.Aggregate{Func: query.AggFirst}, shape: ShapeRow, want: "LIMIT 1"},
		{name: "single", op: &query.Aggregate{Func: query.AggSingle}, shape: ShapeSingle, want: "LIMIT 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newTestTranslator(t).Compile(entities(tt.op))
			require.NoError(t, err)
			assert.Equal(t, tt.shape, p.Shape)
			assert.Contains(t, p.SQL, tt.want)
		})
	}
}

// countingCache is a minimal Cache that serializes computations.
type countingCache struct {
	mu       sync.Mutex
	plans    map[string]*Plan
	computes int
}

func (c *countingCache) GetOrCompute(key string, compute func() (*Plan, error)) (*Plan, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.plans[key]; ok {
		return p, true, nil
	}
	c.computes++
	p, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.plans[key] = p
	return p, false, nil
}

func TestCompile_UsesCache(t *testing.T) {
	cache := &countingCache{plans: make(map[string]*Plan)}
	tr := newTestTranslator(t, WithCache(cache))

	for _, v := range []int64{1, 2, 3} {
		q := entities(where(query.Bin(query.OpEqual, query.Path("e.Int"), query.Capture("x", typemap.Int(), ir.IRInt(v)))))
		cmd, err := tr.Translate(q)
		require.NoError(t, err)
		assert.Equal(t, v, cmd.Parameters[0].Value)
	}
	assert.Equal(t, 1, cache.computes)
}

func TestCompile_SQLiteRejectsArrayOperators(t *testing.T) {
	q := entities(where(query.CallOn(query.Path("e.IntRange"), "Contains", integer(3))))
	_, err := newTestTranslator(t, WithDialect(sqlprint.SQLite)).Compile(q)
	require.Error(t, err)
	assert.True(t, IsUnsupported(err))
}
