package typemap

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
)

func TestRegistry_ScalarStoreTypes(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		typ   Type
		store string
	}{
		{Int(), "integer"},
		{BigInt(), "bigint"},
		{Double(), "double precision"},
		{Text(), "text"},
		{Bool(), "boolean"},
		{JSONB(), "jsonb"},
		{Inet(), "inet"},
		{TsVector(), "tsvector"},
		{Nullable(Int()), "integer"},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			m, err := r.Find(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.store, m.StoreType)
		})
	}
}

func TestRegistry_DerivedMappings(t *testing.T) {
	r := NewRegistry()

	arr, err := r.Find(ArrayOf(Nullable(Int())))
	require.NoError(t, err)
	assert.Equal(t, "integer[]", arr.StoreType)
	assert.Equal(t, KindArray, arr.Kind)
	assert.Equal(t, "integer", arr.Element.StoreType)
	require.NotNil(t, arr.Comparer)

	again, err := r.Find(ArrayOf(Int()))
	require.NoError(t, err)
	assert.Same(t, arr, again, "derived mappings are cached by store type")

	rng, err := r.Find(RangeOf(Int()))
	require.NoError(t, err)
	assert.Equal(t, "int4range", rng.StoreType)
	assert.Equal(t, LiteralTagged, rng.Style)

	_, err = r.Find(RangeOf(Text()))
	require.Error(t, err)

	owned, err := r.Find(StructOf(&Struct{Name: "Customer"}, "json"))
	require.NoError(t, err)
	assert.Equal(t, "json", owned.StoreType)

	_, err = r.Find(EntityOf(&Struct{Name: "Blog"}))
	require.Error(t, err)
}

func TestMapping_Literals(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name     string
		typ      Type
		value    ir.IRValue
		expected string
	}{
		{"int", Int(), ir.IRInt(10), "10"},
		{"double", Double(), ir.IRFloat(2), "2.0"},
		{"text escapes quotes", Text(), ir.IRString("it's"), "'it''s'"},
		{"bool", Bool(), ir.IRBool(true), "TRUE"},
		{"null", Int(), ir.IRNull{}, "NULL"},
		{"inet", Inet(), ir.IRString("192.168.1.1"), "'192.168.1.1'"},
		{"cidr composite", Cidr(), ir.IRObject{"address": ir.IRString("10.1.2.3"), "subnet": ir.IRInt(8)}, "'10.0.0.0/8'"},
		{"inet composite keeps host bits", Inet(), ir.IRObject{"address": ir.IRString("10.1.2.3"), "subnet": ir.IRInt(8)}, "'10.1.2.3/8'"},
		{"macaddr", MacAddr(), ir.IRString("08-00-2B-01-02-03"), "'08:00:2b:01:02:03'"},
		{"int array", ArrayOf(Int()), ir.IRArray{ir.IRInt(1), ir.IRNull{}}, "ARRAY[1,NULL]"},
		{"range object", RangeOf(Int()), ir.IRObject{"lower": ir.IRInt(1), "upper": ir.IRInt(10)}, "'[1,10)'"},
		{"range unbounded", RangeOf(Int()), ir.IRObject{"lower": ir.IRNull{}, "upper": ir.IRInt(10), "upper_inclusive": ir.IRBool(true)}, "'(,10]'"},
		{"hstore", Hstore(), ir.IRObject{"b": ir.IRString("2"), "a": ir.IRNull{}}, `'"a"=>NULL, "b"=>"2"'`},
		{"jsonb object", JSONB(), ir.IRObject{"b": ir.IRInt(1), "a": ir.IRBool(true)}, `'{"a":true,"b":1}'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Find(tt.typ)
			require.NoError(t, err)
			lit, err := m.FormatLiteral(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, lit)
		})
	}
}

func TestMapping_LiteralErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.MustFind(Cidr()).FormatLiteral(ir.IRString("10.0.0.1/8"))
	require.Error(t, err, "cidr rejects host bits")

	_, err = r.MustFind(Int()).FormatLiteral(ir.IRString("ten"))
	require.Error(t, err)

	_, err = r.MustFind(UUID()).FormatLiteral(ir.IRString("not-a-uuid"))
	require.Error(t, err)
}

func TestMapping_Params(t *testing.T) {
	r := NewRegistry()

	v, err := r.MustFind(ArrayOf(Nullable(Int()))).FormatParam(ir.IRArray{ir.IRInt(1), ir.IRNull{}})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), nil}, v)

	id := uuid.New()
	v, err = r.MustFind(UUID()).FormatParam(ir.IRString(id.String()))
	require.NoError(t, err)
	assert.Equal(t, id, v)

	v, err = r.MustFind(Inet()).FormatParam(ir.IRObject{"address": ir.IRString("10.0.0.1"), "subnet": ir.IRInt(24)})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1/24", v, "address and subnet travel as one value")

	v, err = r.MustFind(Text()).FormatParam(ir.IRNull{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRegistry_Composite(t *testing.T) {
	r := NewRegistry()
	point := &Struct{Name: "Point", Properties: []*Property{
		{Name: "X", Type: Int()},
		{Name: "Y", Type: Int()},
	}}

	m, err := r.Find(CompositeOf(point, "point_t"))
	require.NoError(t, err)
	assert.True(t, m.PerValueSQL)
	assert.Equal(t, LiteralCast, m.Style)

	lit, err := m.FormatLiteral(ir.IRObject{"X": ir.IRInt(1), "Y": ir.IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, "ROW(1, 2)", lit)

	arr := r.ArrayOf(m)
	assert.True(t, arr.PerValueSQL)

	_, err = m.FormatParam(ir.IRObject{})
	require.Error(t, err)
}

func TestCompatible(t *testing.T) {
	r := NewRegistry()

	assert.True(t, Compatible(r.MustFind(Int()), r.MustFind(BigInt())))
	assert.True(t, Compatible(r.MustFind(Inet()), r.MustFind(Cidr())))
	assert.True(t, Compatible(r.MustFind(ArrayOf(Int())), r.MustFind(ArrayOf(Double()))))
	assert.False(t, Compatible(r.MustFind(Int()), r.MustFind(Text())))
	assert.False(t, Compatible(r.MustFind(RangeOf(Int())), r.MustFind(RangeOf(BigInt()))))
	assert.False(t, Compatible(nil, r.MustFind(Int())))
}

func TestModel(t *testing.T) {
	blog := &Struct{Name: "Blog", Table: "Blogs", Properties: []*Property{
		{Name: "Id", Type: Int()},
		{Name: "Title", Column: "title", Type: Nullable(Text())},
	}}

	m, err := NewModel(blog)
	require.NoError(t, err)

	got, ok := m.Entity("Blog")
	require.True(t, ok)
	title, ok := got.Property("Title")
	require.True(t, ok)
	assert.Equal(t, "title", title.ColumnName())

	assert.Error(t, m.Add(blog), "duplicate entity")
	assert.Error(t, m.Add(&Struct{Name: "NoTable"}))
	assert.Error(t, m.Add(&Struct{Name: "BadKey", Table: "t", Key: []string{"Missing"}}))
}

func TestStruct_KeyProperties(t *testing.T) {
	byID := &Struct{Name: "Blog", Properties: []*Property{{Name: "Title", Type: Text()}, {Name: "Id", Type: Int()}}}
	require.Len(t, byID.KeyProperties(), 1)
	assert.Equal(t, "Id", byID.KeyProperties()[0].Name)

	declared := &Struct{Name: "Line", Key: []string{"Order", "No"}, Properties: []*Property{
		{Name: "Order", Type: Int()}, {Name: "No", Type: Int()},
	}}
	assert.Len(t, declared.KeyProperties(), 2)

	assert.Nil(t, (&Struct{Name: "Point", Properties: []*Property{{Name: "X", Type: Int()}}}).KeyProperties())
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "int?[]", ArrayOf(Nullable(Int())).String())
	assert.Equal(t, "range<bigint>", RangeOf(BigInt()).String())
	assert.Equal(t, "Customer", StructOf(&Struct{Name: "Customer"}, "jsonb").String())
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"int", "int"},
		{"int?", "int?"},
		{"int?[]", "int?[]"},
		{"string[]?", "text[]?"},
		{"range<int>", "range<int>"},
		{"Inet", "inet"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, err := ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, typ.String())
		})
	}

	for _, bad := range []string{"", "widget", "range<text>", "int[]x"} {
		_, err := ParseType(bad)
		assert.Error(t, err, bad)
	}
}

func TestCategories(t *testing.T) {
	assert.Equal(t, []Category{CategoryCollection, CategoryJSON}, Categories(KindList))
	assert.Equal(t, []Category{CategoryCollection}, Categories(KindArray))
	assert.Equal(t, []Category{CategoryNetwork}, Categories(KindMacAddr8))
	assert.Nil(t, Categories(KindText))
}

func TestRegistry_Multirange(t *testing.T) {
	r := NewRegistry()
	rng := r.MustFind(RangeOf(Int()))
	m := r.MultirangeOf(rng)
	assert.Equal(t, "int4multirange", m.StoreType)
	assert.Equal(t, KindMultirange, m.Kind)
	assert.Same(t, rng, m.Element)
	assert.Same(t, m, r.MultirangeOf(rng))
}
