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
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNull, KindOf(nil))
	assert.Equal(t, KindNull, KindOf(IRNull{}))
	assert.Equal(t, KindBool, KindOf(IRBool(false)))
	assert.Equal(t, KindInt, KindOf(IRInt(0)))
	assert.Equal(t, KindString, KindOf(IRString("")))
	assert.Equal(t, KindArray, KindOf(IRArray{}))
	assert.Equal(t, KindObject, KindOf(IRObject{}))
	assert.Equal(t, "string", KindString.String())
}

func TestEqual_NullNeverEqual(t *testing.T) {
	assert.False(t, Equal(Null, Null))
	assert.False(t, Equal(Null, IRInt(1)))
	assert.False(t, Equal(IRInt(1), Null))
	assert.True(t, Identical(Null, Null))
	assert.True(t, Equal(IRString("a"), IRString("a")))
	assert.False(t, Equal(IRInt(1), IRString("1")))
}

func TestCompare(t *testing.T) {
	testCases := []struct {
		name string
		a, b IRValue
		want int
	}{
		{"ints ascending", IRInt(1), IRInt(2), -1},
		{"ints equal", IRInt(7), IRInt(7), 0},
		{"negative ints", IRInt(-5), IRInt(3), -1},
		{"strings", IRString("b"), IRString("a"), 1},
		{"bools", IRBool(false), IRBool(true), -1},
		{"null last", Null, IRInt(-100), 1},
		{"null vs null", Null, Null, 0},
		{"value before null", IRString("z"), Null, -1},
		{"arrays elementwise", IRArray{IRInt(1), IRInt(2)}, IRArray{IRInt(1), IRInt(3)}, -1},
		{"array prefix", IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(0)}, -1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Compare(tc.a, tc.b))
		})
	}
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

func TestFromAny(t *testing.T) {
	v, err := FromAny(nil)
	require.NoError(t, err)
	assert.Equal(t, IRNull{}, v)

	v, err = FromAny(3.0)
	require.NoError(t, err)
	assert.Equal(t, IRInt(3), v)

	v, err = FromAny(json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, IRInt(12), v)

	v, err = FromAny([]any{"a", 1, true})
	require.NoError(t, err)
	assert.Equal(t, IRArray{IRString("a"), IRInt(1), IRBool(true)}, v)

	_, err = FromAny(1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = FromAny(struct{}{})
	require.Error(t, err)
}

func TestToAnyRoundTrip(t *testing.T) {
	in := IRObject{"k": IRArray{IRInt(1), Null, IRString("x")}}
	out, err := FromAny(ToAny(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestString(t *testing.T) {
	assert.Equal(t, `"a"`, String(IRString("a")))
	assert.Equal(t, "null", String(Null))
	assert.Equal(t, "42", String(IRInt(42)))
	assert.Equal(t, "[1, true]", String(IRArray{IRInt(1), IRBool(true)}))
}
