package translate

import (
	"database/sql"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/typemap"
)

var pair = &typemap.Struct{
	Name:  "Pair",
	Table: "pairs",
	Properties: []*typemap.Property{
		{Name: "Id", Type: typemap.Int()},
		{Name: "A", Type: typemap.Nullable(typemap.Int())},
		{Name: "B", Type: typemap.Nullable(typemap.Int())},
	},
}

// pairRows covers every null/non-null combination. Host equality holds for
// rows 1 and 5.
var pairRows = []struct {
	id   int64
	a, b *int64
}{
	{1, ptr(1), ptr(1)},
	{2, ptr(1), ptr(2)},
	{3, ptr(1), nil},
	{4, nil, ptr(1)},
	{5, nil, nil},
}

func ptr(n int64) *int64 { return &n }

func hostEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func openPairs(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE pairs ("Id" INTEGER PRIMARY KEY, "A" INTEGER, "B" INTEGER)`)
	require.NoError(t, err)
	for _, r := range pairRows {
		_, err = db.Exec(`INSERT INTO pairs ("Id", "A", "B") VALUES (?, ?, ?)`, r.id, r.a, r.b)
		require.NoError(t, err)
	}
	return db
}

func pairTranslator(t *testing.T) *Translator {
	t.Helper()
	m, err := typemap.NewModel(pair)
	require.NoError(t, err)
	return New(typemap.NewRegistry(), m, WithDialect(sqlprint.SQLite))
}

func pairs(ops ...query.Operation) *query.Query {
	return &query.Query{Source: "Pair", Ops: ops}
}

func queryIDs(t *testing.T, db *sql.DB, cmd *Command) []int64 {
	t.Helper()
	rows, err := db.Query(cmd.SQL, cmd.Args()...)
	require.NoError(t, err, cmd.SQL)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestNullSemantics_SQLitePredicates(t *testing.T) {
	db := openPairs(t)
	tr := pairTranslator(t)

	tests := []struct {
		name string
		op   query.BinaryOp
		want func(a, b *int64) bool
	}{
		{name: "equal", op: query.OpEqual, want: hostEqual},
		{name: "not equal", op: query.OpNotEqual, want: func(a, b *int64) bool { return !hostEqual(a, b) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := pairs(
				where(query.Bin(tt.op, query.Path("e.A"), query.Path("e.B"))),
				project(query.Path("e.Id")),
			)
			cmd, err := tr.Translate(q)
			require.NoError(t, err)

			var want []int64
			for _, r := range pairRows {
				if tt.want(r.a, r.b) {
					want = append(want, r.id)
				}
			}
			assert.Equal(t, want, queryIDs(t, db, cmd), cmd.SQL)
		})
	}
}

func TestNullSemantics_SQLiteProjectedComparison(t *testing.T) {
	db := openPairs(t)
	tr := pairTranslator(t)

	for _, op := range []query.BinaryOp{query.OpEqual, query.OpNotEqual} {
		t.Run(string(op), func(t *testing.T) {
			q := pairs(project(&query.NewObject{Fields: []query.Field{
				{Name: "Id", Value: query.Path("e.Id")},
				{Name: "Eq", Value: query.Bin(op, query.Path("e.A"), query.Path("e.B"))},
			}}))
			cmd, err := tr.Translate(q)
			require.NoError(t, err)

			rows, err := db.Query(cmd.SQL, cmd.Args()...)
			require.NoError(t, err, cmd.SQL)
			defer rows.Close()

			got := make(map[int64]bool)
			for rows.Next() {
				var id int64
				// A NULL result fails the scan: projected comparisons
				// must always be two-valued.
				var eq bool
				require.NoError(t, rows.Scan(&id, &eq), cmd.SQL)
				got[id] = eq
			}
			require.NoError(t, rows.Err())

			for _, r := range pairRows {
				want := hostEqual(r.a, r.b)
				if op == query.OpNotEqual {
					want = !want
				}
				assert.Equal(t, want, got[r.id], "row %d", r.id)
			}
		})
	}
}

func TestNullSemantics_SQLiteCapturedNull(t *testing.T) {
	db := openPairs(t)
	tr := pairTranslator(t)

	build := func(v ir.IRValue) *query.Query {
		return pairs(
			where(query.Bin(query.OpEqual, query.Path("e.A"), query.Capture("x", typemap.Nullable(typemap.Int()), v))),
			project(query.Path("e.Id")),
		)
	}

	cmd, err := tr.Translate(build(ir.IRNull{}))
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, queryIDs(t, db, cmd), cmd.SQL)

	cmd, err = tr.Translate(build(ir.IRInt(1)))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, queryIDs(t, db, cmd), cmd.SQL)
}

func TestNullSemantics_SQLiteSubqueryContains(t *testing.T) {
	db := openPairs(t)
	tr := pairTranslator(t)

	allB := func() query.Expr {
		return &query.Subquery{Query: pairs(
			&query.Select{Selector: query.Lam(query.Path("p.B"), "p")},
		)}
	}
	presentB := func() query.Expr {
		return &query.Subquery{Query: pairs(
			&query.Where{Predicate: query.Lam(query.Bin(query.OpGreater, query.Path("p.B"), query.Const(ir.IRInt(0))), "p")},
			&query.Select{Selector: query.Lam(query.Path("p.B"), "p")},
		)}
	}
	members := func(withNull bool) []*int64 {
		var bs []*int64
		for _, r := range pairRows {
			if r.b != nil || withNull {
				bs = append(bs, r.b)
			}
		}
		return bs
	}
	contains := func(bs []*int64, x *int64) bool {
		for _, b := range bs {
			if hostEqual(x, b) {
				return true
			}
		}
		return false
	}

	tests := []struct {
		name    string
		sub     func() query.Expr
		item    string
		negated bool
		nulls   bool
	}{
		{name: "nullable item, subquery yields null", sub: allB, item: "e.A", nulls: true},
		{name: "nullable item, subquery yields null, negated", sub: allB, item: "e.A", negated: true, nulls: true},
		{name: "nullable item, no null in subquery", sub: presentB, item: "e.A"},
		{name: "nullable item, no null in subquery, negated", sub: presentB, item: "e.A", negated: true},
		{name: "non-null item, negated", sub: allB, item: "e.Id", negated: true, nulls: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pred query.Expr = query.CallOn(tt.sub(), "Contains", query.Path(tt.item))
			if tt.negated {
				pred = query.Not(pred)
			}
			cmd, err := tr.Translate(pairs(where(pred), project(query.Path("e.Id"))))
			require.NoError(t, err)

			bs := members(tt.nulls)
			var want []int64
			for _, r := range pairRows {
				x := r.a
				if tt.item == "e.Id" {
					x = ptr(r.id)
				}
				if contains(bs, x) != tt.negated {
					want = append(want, r.id)
				}
			}
			assert.Equal(t, want, queryIDs(t, db, cmd), cmd.SQL)
		})
	}

	t.Run("projected membership is two-valued", func(t *testing.T) {
		q := pairs(project(&query.NewObject{Fields: []query.Field{
			{Name: "Id", Value: query.Path("e.Id")},
			{Name: "In", Value: query.CallOn(allB(), "Contains", query.Path("e.A"))},
		}}))
		cmd, err := tr.Translate(q)
		require.NoError(t, err)

		rows, err := db.Query(cmd.SQL, cmd.Args()...)
		require.NoError(t, err, cmd.SQL)
		defer rows.Close()
		got := make(map[int64]bool)
		for rows.Next() {
			var id int64
			var in bool
			require.NoError(t, rows.Scan(&id, &in), cmd.SQL)
			got[id] = in
		}
		require.NoError(t, rows.Err())

		bs := members(true)
		for _, r := range pairRows {
			assert.Equal(t, contains(bs, r.a), got[r.id], "row %d", r.id)
		}
	})
}

func TestRewriteNulls(t *testing.T) {
	reg := typemap.NewRegistry()
	boolM := reg.Bool()
	intM := reg.MustFind(typemap.Int())
	col := func(name string, nullable bool) *sqlexpr.ColumnRef {
		return sqlexpr.NewColumn("e", name, intM, nullable)
	}
	null := sqlexpr.NewConstant(ir.IRNull{}, intM)
	one := sqlexpr.NewConstant(ir.IRInt(1), intM)

	tests := []struct {
		name string
		expr sqlexpr.Expr
		want string
	}{
		{
			name: "non-nullable operands are untouched",
			expr: sqlexpr.NewBinary("=", col("Int", false), one, boolM),
			want: `e."Int" = 1`,
		},
		{
			name: "comparison with null literal",
			expr: sqlexpr.NewBinary("=", col("A", true), null, boolM),
			want: `e."A" IS NULL`,
		},
		{
			name: "inequality with null literal",
			expr: sqlexpr.NewBinary("<>", null, col("A", true), boolM),
			want: `e."A" IS NOT NULL`,
		},
		{
			name: "two nullable columns",
			expr: sqlexpr.NewBinary("=", col("A", true), col("B", true), boolM),
			want: `e."A" = e."B" OR (e."A" IS NULL AND e."B" IS NULL)`,
		},
		{
			name: "in list with null",
			expr: sqlexpr.NewIn(col("A", true), []sqlexpr.Expr{one, null}, boolM),
			want: `e."A" IN (1) OR e."A" IS NULL`,
		},
		{
			name: "in list of nulls only",
			expr: sqlexpr.NewIn(col("A", true), []sqlexpr.Expr{null}, boolM),
			want: `e."A" IS NULL`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := &sqlexpr.Select{
				Projection: []*sqlexpr.Projection{{Expr: col("Id", false)}},
				From:       &sqlexpr.Table{Name: "entities", Alias: "e"},
				Where:      tt.expr,
			}
			once := RewriteNulls(sel, reg)
			res, err := sqlprint.Print(once, sqlprint.Postgres)
			require.NoError(t, err)
			assert.Contains(t, res.SQL, "WHERE "+tt.want)

			twice, err := sqlprint.Print(RewriteNulls(once, reg), sqlprint.Postgres)
			require.NoError(t, err)
			assert.Equal(t, res.SQL, twice.SQL, "rewriting is idempotent")
		})
	}
}

func TestRewriteNulls_SubqueryMembership(t *testing.T) {
	reg := typemap.NewRegistry()
	boolM := reg.Bool()
	intM := reg.MustFind(typemap.Int())
	sub := func(nullable bool) *sqlexpr.Select {
		return &sqlexpr.Select{
			Projection: []*sqlexpr.Projection{{Expr: sqlexpr.NewColumn("p", "B", intM, nullable)}},
			From:       &sqlexpr.Table{Name: "pairs", Alias: "p"},
		}
	}
	item := sqlexpr.NewColumn("e", "A", intM, true)

	tests := []struct {
		name    string
		expr    sqlexpr.Expr
		want    []string
		notWant string
	}{
		{
			name: "member",
			expr: sqlexpr.NewInQuery(item, sub(true), boolM),
			want: []string{`e."A" IS NULL AND EXISTS (`, "AS nq"},
		},
		{
			name: "not a member",
			expr: sqlexpr.NewUnary("NOT", sqlexpr.NewInQuery(item, sub(true), boolM), boolM),
			want: []string{"NOT (COALESCE(", `e."A" IS NOT NULL OR NOT EXISTS (`, "AS nq"},
		},
		{
			name:    "non-nullable column needs no null test",
			expr:    sqlexpr.NewUnary("NOT", sqlexpr.NewInQuery(item, sub(false), boolM), boolM),
			want:    []string{"NOT (COALESCE("},
			notWant: "EXISTS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := &sqlexpr.Select{
				Projection: []*sqlexpr.Projection{{Expr: sqlexpr.NewColumn("e", "Id", intM, false)}},
				From:       &sqlexpr.Table{Name: "entities", Alias: "e"},
				Where:      tt.expr,
			}
			once := RewriteNulls(sel, reg)
			res, err := sqlprint.Print(once, sqlprint.Postgres)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, res.SQL, w)
			}
			if tt.notWant != "" {
				assert.NotContains(t, res.SQL, tt.notWant)
			}

			twice, err := sqlprint.Print(RewriteNulls(once, reg), sqlprint.Postgres)
			require.NoError(t, err)
			assert.Equal(t, res.SQL, twice.SQL)
		})
	}
}
