package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"key", "key"},
		{"my-key", "my_key"},
		{"x.y", "x_y"},
		{"1st", "_1st"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitize(tt.in), tt.in)
	}
}

func TestBinder_Names(t *testing.T) {
	reg := typemap.NewRegistry()
	intM := reg.MustFind(typemap.Int())
	boolM := reg.Bool()
	param := func(key, hint string) *sqlexpr.Parameter {
		p := sqlexpr.NewParameter(key, hint, intM, false)
		p.Captured = hint
		return p
	}
	col := sqlexpr.NewColumn("e", "Int", intM, false)

	// Two distinct values captured under the same name, one repeated
	// value, and two anonymous parameters.
	a1 := param("k1", "a")
	a2 := param("k2", "a")
	a1again := param("k1", "a")
	anon1 := sqlexpr.NewParameter("k3", "", intM, false)
	anon2 := sqlexpr.NewParameter("k4", "", intM, false)
	p0 := param("k5", "p0")

	var where sqlexpr.Expr
	for _, p := range []*sqlexpr.Parameter{a1, a2, a1again, p0, anon1, anon2} {
		eq := sqlexpr.NewBinary("=", col, p, boolM)
		if where == nil {
			where = eq
			continue
		}
		where = sqlexpr.NewBinary("OR", where, eq, boolM)
	}
	s := &sqlexpr.Select{From: &sqlexpr.Table{Name: "entities", Alias: "e"}, Where: where}

	slots := newBinder("").bind(s)

	assert.Equal(t, "a", a1.Name)
	assert.Equal(t, "a_1", a2.Name)
	assert.Equal(t, "a", a1again.Name, "equal keys share a name")
	assert.Equal(t, "p0", p0.Name)
	assert.Equal(t, "p1", anon1.Name, "anonymous names skip used ones")
	assert.Equal(t, "p2", anon2.Name)

	require.Len(t, slots, 5)
	names := make([]string, len(slots))
	for i, sl := range slots {
		names[i] = sl.Name
	}
	assert.Equal(t, []string{"a", "a_1", "p0", "p1", "p2"}, names)
}

func TestSlot_ResolveElements(t *testing.T) {
	s := &Slot{
		Name: "p0",
		Elements: []sqlexpr.ParamElement{
			{Value: ir.IRInt(1)},
			{Captured: "x"},
		},
	}
	v, err := s.resolve(map[string]ir.IRValue{"x": ir.IRInt(2)})
	require.NoError(t, err)
	assert.Equal(t, ir.IRArray{ir.IRInt(1), ir.IRInt(2)}, v)

	_, err = s.resolve(nil)
	assert.Error(t, err)

	v, err = (&Slot{Name: "n"}).resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, ir.IRNull{}, v)
}
