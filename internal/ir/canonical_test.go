package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(Doc{"b": Int(2), "a": Int(1), "c": List{Bool(true), Null{}}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2,"c":[true,null]}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(Str("<a&b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a&b>"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute accent normalizes to U+00E9.
	got, err := MarshalCanonical(Str("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_LineSeparatorsVerbatim(t *testing.T) {
	got, err := MarshalCanonical(Str("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))

	got, err = MarshalCanonical(Str(`a\u2028b`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(got), "escaped backslash must survive")
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 (surrogate pair D83D DE00) sorts before U+FFFD in UTF-16.
	got, err := MarshalCanonical(Doc{"\uFFFD": Int(1), "\U0001F600": Int(2)})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uFFFD\":1}", string(got))
}

func TestVersionDigest_Stable(t *testing.T) {
	v := Version{Stamp: activeStamp(10), Payload: StringPayload{Value: "x"}}
	d1, err := VersionDigest(v)
	require.NoError(t, err)
	d2, err := VersionDigest(v)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	v.Stamp.Time = 11
	d3, err := VersionDigest(v)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}
