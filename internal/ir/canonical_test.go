package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("red"), `"red"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(999), "999"},
		{"min int64", IRInt(math.MinInt64), "-9223372036854775808"},
		{"bool", IRBool(false), "false"},
		{"null", IRNull{}, "null"},
		{"nil", nil, "null"},
		{"float", IRFloat(1.5), "1.5"},
		{"integral float", IRFloat(12), "12"},
		{"small float", float64(0.1), "0.1"},
		{"empty array", IRArray{}, "[]"},
		{"nullable int array", IRArray{IRInt(1), IRNull{}}, "[1,null]"},
		{"empty object", IRObject{}, "{}"},
		{
			name: "captured slot shape",
			input: IRObject{
				"type":     IRString("int?[]"),
				"captured": IRString("nullableIntArray"),
			},
			expected: `{"captured":"nullableIntArray","type":"int?[]"}`,
		},
		{
			name: "nested keys sorted",
			input: IRObject{
				"where": IRObject{"op": IRString("=="), "left": IRString("e.A")},
				"kind":  IRString("call"),
			},
			expected: `{"kind":"call","where":{"left":"e.A","op":"=="}}`,
		},
		{"go string", "Orders", `"Orders"`},
		{"go int", 42, "42"},
		{"go map", map[string]any{"b": int64(1), "a": "x"}, `{"a":"x","b":1}`},
		{"go slice", []any{int64(10), "y", true}, `[10,"y",true]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+10000 encodes as the surrogate pair D800 DC00, which sorts before
	// E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonical_Escaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"html is not escaped", `e."Int" < 3 && x > 1`, `"e.\"Int\" < 3 && x > 1"`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"line separators kept literal", "a\u2028b\u2029c", "\"a\u2028b\u2029c\""},
		{"literal backslash-u2028 text", `seq \u2028`, `"seq \\u2028"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
			assert.NotContains(t, string(result), `\u003c`)
			assert.NotContains(t, string(result), `\u0026`)
		})
	}
}

func TestMarshalCanonical_NFC(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	a, err := MarshalCanonical(IRObject{composed: IRString(composed)})
	require.NoError(t, err)
	b, err := MarshalCanonical(IRObject{decomposed: IRString(decomposed)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalCanonical_RejectsNonFiniteFloats(t *testing.T) {
	for _, f := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		_, err := MarshalCanonical(IRArray{IRFloat(f)})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "non-finite")
	}
}

func TestMarshalCanonical_Idempotent(t *testing.T) {
	values := []IRValue{
		IRString("hello"),
		IRArray{IRInt(1), IRString("two"), IRBool(false)},
		IRObject{
			"ops":    IRArray{IRObject{"where": IRString("e.Int")}},
			"source": IRString("Entity"),
		},
	}

	for _, original := range values {
		first, err := MarshalCanonical(original)
		require.NoError(t, err)

		decoded, err := UnmarshalIRValue(first)
		require.NoError(t, err)

		second, err := MarshalCanonical(decoded)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.NotContains(t, string(first), " ")
	}
}
