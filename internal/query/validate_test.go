package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/typemap"
)

func TestValidate_ValidQuery(t *testing.T) {
	q := &Query{
		Source: "Entity",
		Ops: []Operation{
			&Where{Predicate: Lam(Bin(OpGreater, Path("e.Int"), Const(ir.IRInt(3))), "e")},
			&OrderBy{Key: Lam(Path("e.Id"), "e")},
			&OrderBy{Key: Lam(Path("e.Int"), "e"), Then: true, Descending: true},
			&Take{Count: Capture("n", typemap.Int(), ir.IRInt(10))},
			&Select{Selector: Lam(&NewObject{Fields: []Field{
				{Name: "Id", Value: Path("e.Id")},
				{Name: "Label", Value: &ClientCall{Method: "Format", Args: []Expr{Path("e.Int")}}},
			}}, "e")},
		},
	}

	result := Validate(q)

	assert.True(t, result.Valid, "issues: %v", result.Issues)
	assert.NoError(t, result.Err())
}

func TestValidate_Issues(t *testing.T) {
	tests := []struct {
		name     string
		query    *Query
		position string
		contains string
	}{
		{
			name:     "missing source",
			query:    &Query{},
			contains: "no source",
		},
		{
			name: "unknown lambda parameter",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Where{Predicate: Lam(Bin(OpEqual, Path("x.Int"), Const(ir.IRInt(1))), "e")},
			}},
			position: "ops[0].where.body.left.target",
			contains: `unknown lambda parameter "x"`,
		},
		{
			name: "client evaluation in where",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Where{Predicate: Lam(&ClientCall{Method: "IsPrime", Args: []Expr{Path("e.Int")}}, "e")},
			}},
			position: "ops[0].where.body",
			contains: "client evaluation",
		},
		{
			name: "client evaluation in non-final select",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Select{Selector: Lam(&ClientCall{Method: "Format"}, "e")},
				&Take{Count: Const(ir.IRInt(1))},
			}},
			position: "ops[0].select.body",
			contains: "client evaluation",
		},
		{
			name: "client evaluation nested in a call",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Select{Selector: Lam(CallOn(&ClientCall{Method: "Format"}, "ToUpper"), "e")},
			}},
			position: "ops[0].select.body.receiver",
			contains: "client evaluation",
		},
		{
			name: "client evaluation in a conditional branch",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Select{Selector: Lam(&Conditional{
					Test: Path("e.Bool"),
					Then: &ClientCall{Method: "Format"},
					Else: Const(ir.IRString("")),
				}, "e")},
			}},
			position: "ops[0].select.body.then",
			contains: "client evaluation",
		},
		{
			name: "empty projection",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Select{Selector: Lam(&NewObject{}, "e")},
			}},
			position: "ops[0].select.body",
			contains: "empty projection",
		},
		{
			name: "thenBy without orderBy",
			query: &Query{Source: "Entity", Ops: []Operation{
				&OrderBy{Key: Lam(Path("e.Id"), "e"), Then: true},
			}},
			position: "ops[0]",
			contains: "thenBy without",
		},
		{
			name: "aggregate not last",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Aggregate{Func: AggCount},
				&Distinct{},
			}},
			position: "ops[0]",
			contains: "must be the last operation",
		},
		{
			name: "non-integer take",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Take{Count: Const(ir.IRString("ten"))},
			}},
			position: "ops[0].take",
			contains: "must be an integer",
		},
		{
			name: "wrong lambda arity",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Where{Predicate: Lam(Const(ir.IRBool(true)), "a", "b")},
			}},
			position: "ops[0].where",
			contains: "takes 2 parameter(s), want 1",
		},
		{
			name: "captured name bound twice",
			query: &Query{Source: "Entity", Ops: []Operation{
				&Where{Predicate: Lam(Bin(OpAndAlso,
					Bin(OpEqual, Path("e.Int"), Capture("v", typemap.Int(), ir.IRInt(1))),
					Bin(OpEqual, Path("e.Int"), Capture("v", typemap.Int(), ir.IRInt(2))),
				), "e")},
			}},
			position: "ops[0].where.body.right.right",
			contains: "more than one value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)

			require.False(t, result.Valid)
			require.NotEmpty(t, result.Issues)
			issue := result.Issues[0]
			assert.Equal(t, tt.position, issue.Position)
			assert.Contains(t, issue.Message, tt.contains)
			assert.Error(t, result.Err())
		})
	}
}

func TestValidate_NestedLambdaScope(t *testing.T) {
	// e.Ints.Any(i => i > e.Int): the inner lambda sees both i and e.
	q := &Query{Source: "Entity", Ops: []Operation{
		&Where{Predicate: Lam(CallOn(Path("e.Ints"), "Any",
			Lam(Bin(OpGreater, Path("i"), Path("e.Int")), "i"),
		), "e")},
	}}

	result := Validate(q)
	assert.True(t, result.Valid, "issues: %v", result.Issues)
}

func TestValidate_SubqueryIsNested(t *testing.T) {
	q := &Query{Source: "Entity", Ops: []Operation{
		&Select{Selector: Lam(CallOn(&Subquery{Query: &Query{
			Source: "Order",
			Ops: []Operation{
				&Select{Selector: Lam(&ClientCall{Method: "Format"}, "o")},
			},
		}}, "Count"), "e")},
	}}

	result := Validate(q)
	require.False(t, result.Valid)
	assert.Equal(t, "ops[0].select.body.receiver.query.ops[0].select.body", result.Issues[0].Position)
}

func TestOpName(t *testing.T) {
	assert.Equal(t, "orderByDescending", OpName(&OrderBy{Descending: true}))
	assert.Equal(t, "thenBy", OpName(&OrderBy{Then: true}))
	assert.Equal(t, "firstOrDefault", OpName(&Aggregate{Func: AggFirstOrDefault}))
	assert.Equal(t, "selectMany", OpName(&SelectMany{}))
}
