package model

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/typemap"
)

const shopModel = `
entity: Order: {
	table:  "orders"
	schema: "shop"
	properties: {
		Id:       "int"
		Total:    "decimal?"
		Tags:     "text[]"
		Period:   "range<timestamp>"
		Customer: {struct: "Customer", nullable: true}
		Lines:    {list: "Line", store: "json"}
		Origin:   {composite: "Point"}
		Created:  {type: "timestamp", column: "created_at"}
	}
}

struct: Customer: properties: {
	Name:    "text"
	Address: {struct: "Address"}
}
struct: Address: properties: {City: "text", Zip: "text?"}
struct: Line: properties: {Sku: "text", Qty: "int"}

composite: Point: {
	store: "point_t"
	properties: {X: "int", Y: "int"}
}
`

func TestCompileString_Shop(t *testing.T) {
	m, err := CompileString(shopModel, WithRegistry(typemap.NewRegistry()))
	require.NoError(t, err)

	order, ok := m.Entity("Order")
	require.True(t, ok)
	assert.Equal(t, "orders", order.Table)
	assert.Equal(t, "shop", order.Schema)

	names := make([]string, len(order.Properties))
	for i, p := range order.Properties {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"Id", "Total", "Tags", "Period", "Customer", "Lines", "Origin", "Created"}, names,
		"declaration order is kept")

	tests := []struct {
		prop string
		want string
	}{
		{"Id", "int"},
		{"Total", "decimal?"},
		{"Tags", "text[]"},
		{"Period", "range<timestamp>"},
		{"Customer", "Customer?"},
		{"Lines", "list<Line>"},
		{"Origin", "composite"},
	}
	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			p, ok := order.Property(tt.prop)
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Type.String())
		})
	}

	customer, _ := order.Property("Customer")
	assert.Equal(t, "jsonb", customer.Type.JSONStore())
	addr, ok := customer.Type.Struct.Property("Address")
	require.True(t, ok)
	assert.Equal(t, typemap.KindStruct, addr.Type.Kind)

	lines, _ := order.Property("Lines")
	assert.Equal(t, "json", lines.Type.Store)

	origin, _ := order.Property("Origin")
	assert.Equal(t, "point_t", origin.Type.Store)

	created, _ := order.Property("Created")
	assert.Equal(t, "created_at", created.ColumnName())
}

func TestCompileString_DefaultTable(t *testing.T) {
	m, err := CompileString(`entity: Blog: properties: {Id: "int"}`)
	require.NoError(t, err)
	blog, ok := m.Entity("Blog")
	require.True(t, ok)
	assert.Equal(t, "Blog", blog.Table)
}

func TestCompileString_Key(t *testing.T) {
	m, err := CompileString(`entity: Line: {
	key: ["Order", "No"]
	properties: {Order: "int", No: "int", Sku: "text"}
}`)
	require.NoError(t, err)
	line, ok := m.Entity("Line")
	require.True(t, ok)
	assert.Equal(t, []string{"Order", "No"}, line.Key)
	require.Len(t, line.KeyProperties(), 2)
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code ErrorCode
	}{
		{
			name: "cue syntax",
			src:  `entity: {`,
			code: ErrCodeSyntax,
		},
		{
			name: "no entities",
			src:  `struct: A: properties: {X: "int"}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "unknown scalar type",
			src:  `entity: A: properties: {X: "money"}`,
			code: ErrCodeUnknownType,
		},
		{
			name: "unknown struct",
			src:  `entity: A: properties: {X: {struct: "Missing"}}`,
			code: ErrCodeUnknownType,
		},
		{
			name: "two type forms",
			src:  `entity: A: properties: {X: {type: "int", list: "B"}}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "bad json store",
			src: `
entity: A: properties: {X: {struct: "B", store: "xml"}}
struct: B: properties: {Y: "int"}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "empty properties",
			src:  `entity: A: properties: {}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "non string property",
			src:  `entity: A: properties: {X: 3}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "undeclared key",
			src:  `entity: A: {key: ["Id"], properties: {X: "int"}}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "key not a list",
			src:  `entity: A: {key: 3, properties: {X: "int"}}`,
			code: ErrCodeInvalidModel,
		},
		{
			name: "struct and composite clash",
			src: `
entity: A: properties: {X: "int"}
struct: P: properties: {Y: "int"}
composite: P: properties: {Y: "int"}`,
			code: ErrCodeInvalidModel,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err), "got %v", err)
		})
	}
}

func TestLoadError_Message(t *testing.T) {
	err := &LoadError{Code: ErrCodeUnknownType, Message: `unknown struct "X"`, Path: "entity.A.properties.B"}
	assert.Equal(t, `UNKNOWN_TYPE: unknown struct "X" (at entity.A.properties.B)`, err.Error())
	assert.True(t, IsLoadError(err, ErrCodeUnknownType))
	assert.False(t, IsLoadError(err, ErrCodeSyntax))
}

func TestLoadDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "models/orders.cue", []byte(`
entity: Order: {
	table: "orders"
	properties: {Id: "int", Customer: {struct: "Customer"}}
}`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "models/types/customer.cue", []byte(`
struct: Customer: properties: {Name: "text"}`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "models/README.md", []byte("ignored"), 0o644))

	files, err := FindCUEFiles(fsys, "models")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	m, err := LoadDir(fsys, "models")
	require.NoError(t, err)
	order, ok := m.Entity("Order")
	require.True(t, ok)
	customer, ok := order.Property("Customer")
	require.True(t, ok)
	assert.Equal(t, "Customer", customer.Type.Struct.Name)
}

func TestLoadDir_Errors(t *testing.T) {
	fsys := afero.NewMemMapFs()

	_, err := LoadDir(fsys, "missing")
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))

	require.NoError(t, fsys.MkdirAll("empty", 0o755))
	_, err = LoadDir(fsys, "empty")
	assert.Equal(t, ErrCodeNoFiles, CodeOf(err))

	require.NoError(t, afero.WriteFile(fsys, "conflict/a.cue", []byte(`entity: A: table: "a"`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "conflict/b.cue", []byte(`entity: A: table: "b"`), 0o644))
	_, err = LoadDir(fsys, "conflict")
	assert.Equal(t, ErrCodeSyntax, CodeOf(err), "conflicting values fail unification")
}

func TestLoad_FileOrDir(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "shop/model.cue", []byte(shopModel), 0o644))

	fromFile, err := Load(fsys, "shop/model.cue")
	require.NoError(t, err)
	fromDir, err := Load(fsys, "shop")
	require.NoError(t, err)
	assert.Len(t, fromFile.Entities(), 1)
	assert.Len(t, fromDir.Entities(), 1)

	_, err = Load(fsys, "nope.cue")
	assert.True(t, IsLoadError(err, ErrCodeNotFound))
}
