package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(1.5)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"a", "aa", -1},
		// U+FB33 (Hebrew) sorts AFTER U+1F600 (emoji, surrogate pair 0xD83D...) in UTF-16.
		{"\U0001F600", "דּ", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, compareKeysRFC8785(tt.a, tt.b))
		})
	}
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(IRNull{}))
	assert.False(t, IsNull(IRInt(0)))
	assert.False(t, IsNull(IRString("")))
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  IRValue
		equal bool
	}{
		{"same ints", IRInt(1), IRInt(1), true},
		{"int vs float", IRInt(1), IRFloat(1), false},
		{"null vs null", IRNull{}, nil, true},
		{"null vs value", IRNull{}, IRInt(0), false},
		{"arrays", IRArray{IRInt(1), IRNull{}}, IRArray{IRInt(1), IRNull{}}, true},
		{"array length", IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(2)}, false},
		{"objects", IRObject{"a": IRBool(true)}, IRObject{"a": IRBool(true)}, true},
		{"object keys", IRObject{"a": IRBool(true)}, IRObject{"b": IRBool(true)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, Equal(tt.a, tt.b))
		})
	}
}

func TestFromGo(t *testing.T) {
	v, err := FromGo(map[string]any{
		"ints":   []any{1, int64(2), nil},
		"ratio":  0.25,
		"name":   "x",
		"active": true,
	})
	require.NoError(t, err)

	expected := IRObject{
		"ints":   IRArray{IRInt(1), IRInt(2), IRNull{}},
		"ratio":  IRFloat(0.25),
		"name":   IRString("x"),
		"active": IRBool(true),
	}
	assert.True(t, Equal(expected, v))

	_, err = FromGo(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestToGoRoundTrip(t *testing.T) {
	in := IRObject{"a": IRArray{IRInt(1), IRFloat(1.5), IRNull{}}}
	out, err := FromGo(ToGo(in))
	require.NoError(t, err)
	assert.True(t, Equal(in, out))
}

func TestUnmarshalIRValueNumbers(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`[1, 2.5, null, "x"]`))
	require.NoError(t, err)
	assert.Equal(t, IRArray{IRInt(1), IRFloat(2.5), IRNull{}, IRString("x")}, v)
}

func TestMarshalIRObjectKeyOrder(t *testing.T) {
	obj := IRObject{"z": IRInt(1), "a": IRFloat(0.5), "m": IRNull{}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":0.5,"m":null,"z":1}`, string(data))
}

func TestIRObjectUnmarshalJSON(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"address":"10.0.0.0","subnet":8}`), &obj))
	assert.Equal(t, IRString("10.0.0.0"), obj["address"])
	assert.Equal(t, IRInt(8), obj["subnet"])
}
