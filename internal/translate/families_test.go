package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/query"
	"github.com/roach88/querylift/internal/sqlprint"
	"github.com/roach88/querylift/internal/typemap"
)

func TestFamilies(t *testing.T) {
	cidr := &query.Constant{Value: ir.IRString("10.0.0.0/8"), Type: typemap.Cidr()}

	pt := typemap.CompositeOf(point, "point_t")
	a := query.Capture("a", pt, ir.IRObject{"X": ir.IRInt(1), "Y": ir.IRInt(2)})
	b := query.Capture("b", pt, ir.IRObject{"X": ir.IRInt(3), "Y": ir.IRInt(4)})
	greater := func(param string, rhs query.Expr) *query.Lambda {
		return query.Lam(query.Bin(query.OpGreater, query.Path(param), rhs), param)
	}

	tests := []struct {
		name    string
		q       *query.Query
		want    string
		notWant string
	}{
		// Collections
		{
			name: "array skip slices",
			q:    entities(project(query.CallOn(query.Path("e.IntArray"), "Skip", integer(1)))),
			want: `SELECT e."IntArray"[2:]`,
		},
		{
			name: "array take slices",
			q:    entities(project(query.CallOn(query.Path("e.IntArray"), "Take", integer(2)))),
			want: `SELECT e."IntArray"[:2]`,
		},
		{
			name: "filtered take unnests with ordinality",
			q: entities(project(query.CallOn(
				query.CallOn(query.Path("e.IntArray"), "Where", greater("i", integer(1))),
				"Take", integer(2)))),
			want: `FROM unnest(e."IntArray") WITH ORDINALITY AS u(value, ordinality) WHERE u.value > 1 ORDER BY u.ordinality LIMIT 2`,
		},
		{
			name: "filtered count needs no ordinality",
			q: entities(project(query.CallOn(
				query.CallOn(query.Path("e.IntArray"), "Where", greater("i", integer(1))),
				"Count"))),
			want:    `FROM unnest(e."IntArray") AS u(value) WHERE u.value > 1`,
			notWant: "ordinality",
		},
		{
			name: "count with predicate over inline set",
			q:    entities(project(query.CallOn(intArray(1, 2, 3), "Count", greater("i", query.Path("e.Int"))))),
			want: `FROM (VALUES (1, 1), (2, 2), (3, 3)) AS v(value, ordinality) WHERE v.value > e."Int"`,
		},
		{
			name: "inline min",
			q: entities(project(query.CallOn(
				&query.NewArray{Elems: []query.Expr{query.Path("e.Int"), query.Path("e.Id")}, Elem: typemap.Int()},
				"Min"))),
			want: `SELECT LEAST(e."Int", e."Id")`,
		},
		{
			name: "inline max",
			q:    entities(project(query.CallOn(intArray(1, 5, 3), "Max"))),
			want: `SELECT GREATEST(1, 5, 3)`,
		},
		{
			name: "union of arrays",
			q:    entities(project(query.CallOn(query.Path("e.IntArray"), "Union", query.Path("e.NullableIntArray")))),
			want: `(SELECT u.value FROM unnest(e."IntArray") AS u(value) UNION SELECT u1.value FROM unnest(e."NullableIntArray") AS u1(value)) AS s`,
		},
		{
			name:    "select many joins laterally",
			q:       entities(&query.SelectMany{Collection: query.Lam(query.Path("e.IntArray"), "e")}),
			want:    "SELECT u.value\nFROM entities AS e\nCROSS JOIN LATERAL unnest(e.\"IntArray\") AS u(value)",
			notWant: "ordinality",
		},
		{
			name: "paged select many orders by parent first",
			q: entities(
				&query.SelectMany{Collection: query.Lam(query.Path("e.IntArray"), "e")},
				&query.Take{Count: integer(2)},
			),
			want: "CROSS JOIN LATERAL unnest(e.\"IntArray\") WITH ORDINALITY AS u(value, ordinality)\nORDER BY e.\"Id\", u.ordinality\nLIMIT 2",
		},
		{
			name: "ordered select many breaks ties by parent",
			q: entities(
				&query.OrderBy{Key: query.Lam(query.Path("e.Int"), "e")},
				&query.SelectMany{Collection: query.Lam(query.Path("e.IntArray"), "e")},
			),
			want: `ORDER BY e."Int", e."Id", u.ordinality`,
		},
		{
			name:    "recordset column manifest",
			q:       entities(&query.SelectMany{Collection: query.Lam(query.Path("e.Lines"), "e")}),
			want:    `CROSS JOIN LATERAL jsonb_to_recordset(e."Lines") AS o("Sku" text, "Qty" integer, "Tags" jsonb)`,
			notWant: "ROWS FROM",
		},
		{
			name: "nested select many orders by every level",
			q: entities(
				&query.SelectMany{Collection: query.Lam(query.Path("e.Lines"), "e")},
				&query.SelectMany{Collection: query.Lam(query.Path("l.Tags"), "l")},
				&query.Take{Count: integer(3)},
			),
			want: "CROSS JOIN LATERAL ROWS FROM (jsonb_to_recordset(e.\"Lines\") AS (\"Sku\" text, \"Qty\" integer, \"Tags\" jsonb)) WITH ORDINALITY AS o(\"Sku\", \"Qty\", \"Tags\", ordinality)\n" +
				"CROSS JOIN LATERAL jsonb_array_elements_text(o.\"Tags\") WITH ORDINALITY AS j(value, ordinality)\n" +
				"ORDER BY e.\"Id\", o.ordinality, j.ordinality\nLIMIT 3",
		},
		{
			name: "jsonb list count",
			q:    entities(project(query.CallOn(query.Path("e.Lines"), "Count"))),
			want: `SELECT jsonb_array_length(e."Lines")`,
		},
		{
			name: "json list count",
			q:    entities(project(query.CallOn(query.Path("e.Tags"), "Count"))),
			want: `SELECT json_array_length(e."Tags")`,
		},
		{
			name: "composite contains falls back to IN",
			q: entities(where(query.CallOn(
				&query.NewArray{Elems: []query.Expr{a, b}, Elem: pt},
				"Contains", query.Path("e.Point")))),
			want:    `WHERE e."Point" IN (@a, @b)`,
			notWant: "ANY",
		},
		{
			name: "array contains column",
			q:    entities(where(query.CallOn(query.Path("e.IntArray"), "Contains", query.Path("e.Int")))),
			want: `WHERE e."Int" = ANY(e."IntArray")`,
		},
		{
			name: "array length",
			q:    entities(project(query.CallOn(query.Path("e.IntArray"), "Length"))),
			want: `SELECT cardinality(e."IntArray")`,
		},

		// Key-value mappings
		{
			name: "hstore lookup",
			q:    entities(project(query.CallOn(query.Path("e.Map"), "Index", text("color")))),
			want: `SELECT e."Map"->'color'`,
		},

		// JSON
		{
			name: "json string property",
			q: entities(project(query.CallOn(
				query.CallOn(query.Path("e.Json"), "GetProperty", text("name")),
				"GetString"))),
			want: `SELECT e."Json"->>'name'`,
		},
		{
			name: "owned json member",
			q:    entities(where(query.Bin(query.OpEqual, query.Path("e.Customer.Name"), text("Ann")))),
			want: `e."Customer"->>'Name' = 'Ann'`,
		},

		// Ranges
		{
			name: "range lower bound",
			q:    entities(project(query.CallOn(query.Path("e.IntRange"), "LowerBound"))),
			want: `SELECT lower(e."IntRange")`,
		},
		{
			name: "range overlaps",
			q:    entities(where(query.CallOn(query.Path("e.IntRange"), "Overlaps", query.Path("e.IntRange")))),
			want: `WHERE e."IntRange" && e."IntRange"`,
		},

		// Network addresses
		{
			name: "address contained by network",
			q:    entities(where(query.CallOn(query.Path("e.Inet"), "ContainedBy", cidr))),
			want: `WHERE e."Inet" << CIDR '10.0.0.0/8'`,
		},
		{
			name: "address family",
			q:    entities(project(query.CallOn(query.Path("e.Inet"), "Family"))),
			want: `SELECT family(e."Inet")`,
		},
		{
			name: "mac truncate",
			q:    entities(project(query.CallOn(query.Path("e.MacAddr"), "Truncate"))),
			want: `SELECT trunc(e."MacAddr")`,
		},

		// Full-text search
		{
			name: "vector matches plain text",
			q:    entities(where(query.CallOn(query.Path("e.Vector"), "Matches", text("cat")))),
			want: `WHERE e."Vector" @@ plainto_tsquery('cat')`,
		},
		{
			name: "to_tsvector with configuration",
			q:    entities(project(query.Static("ToTsVector", text("english"), query.Path("e.Text")))),
			want: `SELECT to_tsvector(REGCONFIG 'english', e."Text")`,
		},

		// Scalars
		{
			name: "starts with literal",
			q:    entities(where(query.CallOn(query.Path("e.Text"), "StartsWith", text("ab")))),
			want: `WHERE e."Text" LIKE 'ab%'`,
		},
		{
			name: "string length",
			q:    entities(project(query.CallOn(query.Path("e.Text"), "Length"))),
			want: `SELECT length(e."Text")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql := translateSQL(t, tt.q)
			assert.Contains(t, sql, tt.want)
			if tt.notWant != "" {
				assert.NotContains(t, sql, tt.notWant)
			}
		})
	}
}

func TestFamilies_CompositeNetworkParameter(t *testing.T) {
	value := ir.IRObject{"address": ir.IRString("10.1.2.3"), "subnet": ir.IRInt(8)}

	tests := []struct {
		name  string
		typ   typemap.Type
		value any
	}{
		{name: "cidr", typ: typemap.Cidr(), value: "10.0.0.0/8"},
		{name: "inet keeps host bits", typ: typemap.Inet(), value: "10.1.2.3/8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net := query.Capture("net", tt.typ, value)
			q := entities(where(query.Bin(query.OpOrElse,
				query.CallOn(query.Path("e.Inet"), "ContainedBy", net),
				query.CallOn(query.Path("e.Cidr"), "ContainedByOrEqual", net),
			)))
			cmd, err := newTestTranslator(t, WithDialect(sqlprint.PostgresPositional)).Translate(q)
			require.NoError(t, err)

			assert.Contains(t, cmd.SQL, `e."Inet" << $1 OR e."Cidr" <<= $1`)
			require.Len(t, cmd.Parameters, 1)
			assert.Equal(t, tt.value, cmd.Parameters[0].Value)
		})
	}
}

func TestFamilies_TypeMismatch(t *testing.T) {
	tests := []struct {
		name string
		q    *query.Query
	}{
		{
			name: "mac function on inet",
			q:    entities(project(query.CallOn(query.Path("e.Inet"), "Truncate"))),
		},
		{
			name: "range overlaps array",
			q:    entities(where(query.CallOn(query.Path("e.IntRange"), "Overlaps", query.Path("e.IntArray")))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestTranslator(t).Translate(tt.q)
			assert.True(t, IsTypeMismatch(err), "got %v", err)
		})
	}
}

func TestGroupBy_Aggregates(t *testing.T) {
	q := entities(
		&query.GroupBy{Key: query.Lam(query.Path("e.Int"), "e")},
		&query.Select{Selector: query.Lam(&query.NewObject{Fields: []query.Field{
			{Name: "Key", Value: query.Path("g.Key")},
			{Name: "Count", Value: query.CallOn(&query.Param{Name: "g"}, "Count")},
		}}, "g")},
	)
	sql := translateSQL(t, q)
	assert.Contains(t, sql, `GROUP BY e."Int"`)
	assert.Contains(t, sql, "COUNT(*)")
}
