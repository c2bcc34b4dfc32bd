package harness

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/translate"
)

func TestScenarios(t *testing.T) {
	fsys := afero.NewOsFs()
	scenarios, err := LoadScenarios(fsys, "testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	h := New(fsys, nil)
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := h.Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "failures: %v\nsql:\n%s", result.Failures, result.SQL)
		})
	}
}

func TestScenarios_Golden(t *testing.T) {
	fsys := afero.NewOsFs()
	h := New(fsys, nil)
	for _, name := range []string{"contains_inline_list", "hstore_contains_key"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(fsys, "testdata/scenarios/"+name+".yaml")
			require.NoError(t, err)
			h.RunWithGolden(t, s)
		})
	}
}

func TestScenario_SeededRows(t *testing.T) {
	fsys := afero.NewOsFs()
	s, err := LoadScenario(fsys, "testdata/scenarios/sqlite_null_equality.yaml")
	require.NoError(t, err)

	result, err := New(fsys, nil).Run(context.Background(), s)
	require.NoError(t, err)
	require.True(t, result.Pass, "%v", result.Failures)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, int64(1), result.Rows[0]["Id"])
	assert.Equal(t, int64(5), result.Rows[1]["Id"])
}

func TestScenario_ExpectedError(t *testing.T) {
	fsys := afero.NewOsFs()
	s, err := LoadScenario(fsys, "testdata/scenarios/unknown_method.yaml")
	require.NoError(t, err)

	result, err := New(fsys, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, translate.ErrCodeUnsupportedOperation, result.ErrorCode)
	assert.Empty(t, result.SQL)
	assert.Contains(t, string(Snapshot(result)), "-- error --")
}

func TestRun_FailedExpectations(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "m/model.cue", []byte(`entity: Entity: {
	table: "entities"
	properties: {Id: "int", Int: "int"}
}`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "m/wrong.yaml", []byte(`
name: wrong
description: "Every expectation is wrong"
model: model.cue
query:
  source: Entity
  ops:
    - where: {params: [e], body: {op: ">", left: {path: e.Int}, right: 1}}
expect:
  contains: ["LIMIT"]
  not_contains: ["WHERE"]
  shape: scalar
  parameters:
    - {name: p0}
`), 0o644))

	s, err := LoadScenario(fsys, "m/wrong.yaml")
	require.NoError(t, err)
	assert.Equal(t, "m/model.cue", s.Model)

	result, err := New(fsys, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Failures, 4)
}

func TestRun_MissingModel(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: x
description: "model does not exist"
model: nowhere.cue
query: {source: Entity}
`))
	require.NoError(t, err)

	_, err = New(afero.NewMemMapFs(), nil).Run(context.Background(), s)
	assert.Error(t, err)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown field",
			src:  "name: a\ndescription: b\nmodel: m\nquery: {source: E}\nexpectt: {}\n",
			want: "field expectt not found",
		},
		{
			name: "missing description",
			src:  "name: a\nmodel: m\nquery: {source: E}\n",
			want: "description is required",
		},
		{
			name: "missing query",
			src:  "name: a\ndescription: b\nmodel: m\n",
			want: "query is required",
		},
		{
			name: "unknown dialect",
			src:  "name: a\ndescription: b\nmodel: m\ndialect: oracle\nquery: {source: E}\n",
			want: "unknown dialect",
		},
		{
			name: "seed outside sqlite",
			src:  "name: a\ndescription: b\nmodel: m\nquery: {source: E}\nseed: {E: [{Id: 1}]}\n",
			want: "seed requires",
		},
		{
			name: "rows without seed",
			src:  "name: a\ndescription: b\nmodel: m\ndialect: sqlite\nquery: {source: E}\nexpect: {rows: [{Id: 1}]}\n",
			want: "expect.rows requires seed",
		},
		{
			name: "bad query document",
			src:  "name: a\ndescription: b\nmodel: m\nquery: {source: E, ops: 3}\n",
			want: "ops must be a list",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name      string
		want, got any
		equal     bool
	}{
		{"int and int64", 1, int64(1), true},
		{"int and float", 12, 12.0, true},
		{"different numbers", 1, int64(2), false},
		{"bool and sqlite int", true, int64(1), true},
		{"false and sqlite int", false, int64(1), false},
		{"nulls", nil, nil, true},
		{"null and value", nil, int64(0), false},
		{"arrays", []any{1, nil}, []any{int64(1), nil}, true},
		{"array length", []any{1}, []any{int64(1), int64(2)}, false},
		{"strings", "red", "red", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, valuesEqual(tt.want, tt.got))
		})
	}
}
