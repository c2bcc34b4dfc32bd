package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
)

func TestDecode_Where(t *testing.T) {
	src := `
name: nullable-contains
source: Entity
captured:
  nullableIntArray: {type: "int?[]", value: [1, null]}
ops:
  - where:
      params: [e]
      body:
        call: Contains
        receiver: {captured: nullableIntArray}
        args: [{path: e.NullableInt}]
`
	doc, err := Decode([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, "nullable-contains", doc.Name)
	require.Equal(t, "Entity", doc.Query.Source)
	require.Len(t, doc.Query.Ops, 1)

	where, ok := doc.Query.Ops[0].(*Where)
	require.True(t, ok)
	assert.Equal(t, []string{"e"}, where.Predicate.Params)

	call, ok := where.Predicate.Body.(*Call)
	require.True(t, ok)
	assert.Equal(t, "Contains", call.Method)

	captured, ok := call.Receiver.(*Captured)
	require.True(t, ok)
	assert.Equal(t, "int?[]", captured.Type.String())
	assert.Equal(t, ir.IRArray{ir.IRInt(1), ir.IRNull{}}, captured.Value)

	member, ok := call.Args[0].(*Member)
	require.True(t, ok)
	assert.Equal(t, "NullableInt", member.Name)

	assert.True(t, Validate(doc.Query).Valid)
}

func TestDecode_ProjectionKeepsFieldOrder(t *testing.T) {
	src := `
source: Entity
ops:
  - orderByDescending: {params: [e], body: {path: e.Id}}
  - skip: 10
  - select:
      params: [e]
      body:
        new:
          Zeta: {path: e.Int}
          Alpha: {op: "+", left: {path: e.Int}, right: 1}
          Label: {client: Format, args: [{path: e.Name}]}
  - distinct: true
`
	doc, err := Decode([]byte(src))
	require.NoError(t, err)
	require.Len(t, doc.Query.Ops, 4)

	order := doc.Query.Ops[0].(*OrderBy)
	assert.True(t, order.Descending)
	assert.False(t, order.Then)

	skip := doc.Query.Ops[1].(*Skip)
	assert.Equal(t, ir.IRInt(10), skip.Count.(*Constant).Value)

	obj := doc.Query.Ops[2].(*Select).Selector.Body.(*NewObject)
	require.Len(t, obj.Fields, 3)
	assert.Equal(t, "Zeta", obj.Fields[0].Name)
	assert.Equal(t, "Alpha", obj.Fields[1].Name)
	assert.IsType(t, &ClientCall{}, obj.Fields[2].Value)

	assert.IsType(t, &Distinct{}, doc.Query.Ops[3])
}

func TestDecode_AggregatesAndJoin(t *testing.T) {
	src := `{
  "source": "Blog",
  "ops": [
    {"join": {
      "inner": {"source": "Post"},
      "outerKey": {"params": ["b"], "body": {"path": "b.Id"}},
      "innerKey": {"params": ["p"], "body": {"path": "p.BlogId"}},
      "result": {"params": ["b", "p"], "body": {"new": {"Title": {"path": "p.Title"}}}}
    }},
    {"count": null}
  ]
}`
	doc, err := Decode([]byte(src))
	require.NoError(t, err)

	join := doc.Query.Ops[0].(*Join)
	assert.Equal(t, "Post", join.Inner.Source)
	assert.Equal(t, []string{"b", "p"}, join.Result.Params)

	agg := doc.Query.Ops[1].(*Aggregate)
	assert.Equal(t, AggCount, agg.Func)
	assert.Nil(t, agg.Lambda)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
	}{
		{"not a mapping", "[1, 2]", "document must be a mapping"},
		{"unknown header key", "source: Entity\nlimit: 3\n", "limit"},
		{"captured without type", "source: Entity\ncaptured: {x: {value: 1}}\n", "needs a type"},
		{"bad type", "source: Entity\ncaptured: {x: {type: widget, value: 1}}\n", "unknown type"},
		{"undeclared captured", "source: Entity\nops:\n  - where: {params: [e], body: {captured: nope}}\n", `captured "nope" is not declared`},
		{"unknown operation", "source: Entity\nops:\n  - frobnicate: {}\n", `unknown operation "frobnicate"`},
		{"lambda without body", "source: Entity\nops:\n  - where: {params: [e]}\n", "lambda has no body"},
		{"unrecognized expression", "source: Entity\nops:\n  - where: {params: [e], body: {wat: 1}}\n", "unrecognized expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.src))
			require.Error(t, err)
			assert.True(t, IsDecodeError(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestDecodeError_Position(t *testing.T) {
	src := "source: Entity\nops:\n  - where:\n      params: [e]\n      body: {wat: 1}\n"

	_, err := Decode([]byte(src))
	require.Error(t, err)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 5, de.Line)
	assert.Equal(t, "ops[0].where.body", de.Path)
}
