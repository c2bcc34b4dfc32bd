package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querylift/internal/ir"
	"github.com/roach88/querylift/internal/sqlexpr"
	"github.com/roach88/querylift/internal/typemap"
)

func constTranslator(name string) TranslateFunc {
	return func(c *Context, inv *Invocation) (*Value, error) {
		return scalar(c.textConst(name), typemap.Text()), nil
	}
}

func resolvedName(t *testing.T, fn TranslateFunc) string {
	t.Helper()
	require.NotNil(t, fn)
	c := newContext(typemap.NewRegistry(), nil, nil, &Options{})
	v, err := fn(c, &Invocation{})
	require.NoError(t, err)
	return string(v.Expr.(*sqlexpr.Constant).Value.(ir.IRString))
}

func TestRecognizer_ResolutionOrder(t *testing.T) {
	r := NewRecognizer()
	r.MustRegister(AnyKind("Contains", 1), constTranslator("any"))
	r.MustRegister(InCategory(typemap.CategoryCollection, "Contains", 1), constTranslator("collection"))
	r.MustRegister(Exact(typemap.KindHstore, "Contains", 1), constTranslator("hstore"))

	tests := []struct {
		name  string
		shape Shape
		want  string
	}{
		{name: "exact kind wins", shape: Shape{Receiver: typemap.KindHstore, Method: "Contains", Arity: 1}, want: "hstore"},
		{name: "category before any", shape: Shape{Receiver: typemap.KindArray, Method: "Contains", Arity: 1}, want: "collection"},
		{name: "any as fallback", shape: Shape{Receiver: typemap.KindText, Method: "Contains", Arity: 1}, want: "any"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, err := r.Resolve(tt.shape)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resolvedName(t, fn))
		})
	}

	fn, err := r.Resolve(Shape{Receiver: typemap.KindText, Method: "Contains", Arity: 2})
	require.NoError(t, err)
	assert.Nil(t, fn, "arity must match")
}

func TestRecognizer_Variadic(t *testing.T) {
	r := NewRecognizer()
	r.MustRegister(InCategory(typemap.CategoryCollection, "Count", Variadic), constTranslator("count"))

	for _, arity := range []int{0, 1} {
		fn, err := r.Resolve(Shape{Receiver: typemap.KindArray, Method: "Count", Arity: arity})
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}
}

func TestRecognizer_Ambiguous(t *testing.T) {
	r := NewRecognizer()
	r.MustRegister(InCategory(typemap.CategoryCollection, "Flatten", 0), constTranslator("collection"))
	r.MustRegister(InCategory(typemap.CategoryJSON, "Flatten", 0), constTranslator("json"))

	// JSON-owned lists are in both categories.
	_, err := r.Resolve(Shape{Receiver: typemap.KindList, Method: "Flatten", Arity: 0})
	require.Error(t, err)
	assert.True(t, IsAmbiguous(err))

	fn, err := r.Resolve(Shape{Receiver: typemap.KindArray, Method: "Flatten", Arity: 0})
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestRecognizer_DuplicateRegistration(t *testing.T) {
	r := NewRecognizer()
	require.NoError(t, r.Register(Exact(typemap.KindText, "Trim", 0), constTranslator("a")))

	err := r.Register(Exact(typemap.KindText, "Trim", 0), constTranslator("b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = r.Register(Exact(typemap.KindText, "Trim", Variadic), constTranslator("c"))
	require.Error(t, err, "variadic overlaps every arity")

	require.NoError(t, r.Register(Exact(typemap.KindText, "Trim", 1), constTranslator("d")))
	assert.Equal(t, 2, r.Len())
}

func TestRecognizer_StaticShapes(t *testing.T) {
	r := NewRecognizer()
	r.MustRegister(Static("ToTsVector", 1), constTranslator("static"))
	r.MustRegister(AnyKind("ToTsVector", 1), constTranslator("method"))

	fn, err := r.Resolve(Shape{Receiver: KindStatic, Method: "ToTsVector", Arity: 1})
	require.NoError(t, err)
	assert.Equal(t, "static", resolvedName(t, fn))
}

func TestDefaultRecognizer_NoConflicts(t *testing.T) {
	var r *Recognizer
	require.NotPanics(t, func() { r = DefaultRecognizer() })
	assert.Greater(t, r.Len(), 50)

	// Generic Contains must not shadow the hstore and range overloads.
	for _, k := range []typemap.Kind{typemap.KindHstore, typemap.KindRange, typemap.KindArray, typemap.KindList, typemap.KindText} {
		fn, err := r.Resolve(Shape{Receiver: k, Method: "Contains", Arity: 1})
		require.NoError(t, err, k)
		assert.NotNil(t, fn, k)
	}
}
