package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeScalars(t *testing.T) {
	cases := []struct {
		dataType string
		value    interface{}
	}{
		{"int", 42},
		{"float", 3.25},
		{"str", "survival-1"},
		{"bool", true},
		{"bool", false},
	}
	for _, c := range cases {
		encoded, err := Encode(c.value, c.dataType)
		require.NoError(t, err)
		decoded, err := Decode(encoded, c.dataType)
		require.NoError(t, err)
		require.Equal(t, c.value, decoded)
	}
}

func TestEncodeDecodeDatetimeRoundTripsToTheSecond(t *testing.T) {
	now := time.Unix(time.Now().Unix(), 0)
	encoded, err := Encode(now, "datetime")
	require.NoError(t, err)
	decoded, err := Decode(encoded, "datetime")
	require.NoError(t, err)
	require.True(t, now.Equal(decoded.(time.Time)))
}

func TestEncodeDecodeVersion(t *testing.T) {
	v, err := ParseVersion("1.20.4")
	require.NoError(t, err)
	encoded, err := Encode(v, "Version")
	require.NoError(t, err)
	require.Equal(t, "1.20.4", encoded)
	decoded, err := Decode(encoded, "Version")
	require.NoError(t, err)
	require.Equal(t, v, decoded)
}

func TestEncodeDecodeList(t *testing.T) {
	items := []interface{}{"alice", "bob", "carol"}
	encoded, err := Encode(items, "list[str]")
	require.NoError(t, err)
	decoded, err := Decode(encoded, "list[str]")
	require.NoError(t, err)
	require.Equal(t, items, decoded)
}

func TestEncodeDecodeEmptyList(t *testing.T) {
	encoded, err := Encode([]interface{}{}, "list[str]")
	require.NoError(t, err)
	require.Equal(t, "[]", encoded)
	decoded, err := Decode(encoded, "list[str]")
	require.NoError(t, err)
	require.Equal(t, []interface{}{}, decoded)
}

func TestEncodeDecodeTuple(t *testing.T) {
	tup := Tuple{"survival-1", 25565}
	encoded, err := Encode(tup, "tuple[str, int]")
	require.NoError(t, err)
	decoded, err := Decode(encoded, "tuple[str, int]")
	require.NoError(t, err)
	require.Equal(t, tup, decoded)
}

func TestEncodeDecodeDict(t *testing.T) {
	dict := map[interface{}]interface{}{"alice": 10, "bob": 20}
	encoded, err := Encode(dict, "dict[str, int]")
	require.NoError(t, err)
	decoded, err := Decode(encoded, "dict[str, int]")
	require.NoError(t, err)
	require.Equal(t, dict, decoded)
}

func TestEncodeDecodeNestedListOfTuples(t *testing.T) {
	items := []interface{}{Tuple{"a", 1}, Tuple{"b", 2}}
	encoded, err := Encode(items, "list[tuple[str, int]]")
	require.NoError(t, err)
	decoded, err := Decode(encoded, "list[tuple[str, int]]")
	require.NoError(t, err)
	require.Equal(t, items, decoded)
}

func TestEncodeDecodeAny(t *testing.T) {
	encoded, err := Encode(7, "Any")
	require.NoError(t, err)
	decoded, err := Decode(encoded, "Any")
	require.NoError(t, err)
	require.Equal(t, 7, decoded)
}

func TestGuessTypeUnionAlphabetizes(t *testing.T) {
	guessed := GuessType([]interface{}{"x", 1})
	require.Equal(t, "list[int|str]", guessed)
}

func TestGuessTypeEmptyContainers(t *testing.T) {
	require.Equal(t, "list", GuessType([]interface{}{}))
	require.Equal(t, "dict", GuessType(map[interface{}]interface{}{}))
}

func TestSplitWithNestedIgnoresBracketedSeparators(t *testing.T) {
	parts := SplitWithNested("a,[b,c],d", ',')
	require.Equal(t, []string{"a", "[b,c]", "d"}, parts)
}

func TestSplitWithNestedDropsEmptyTrailingElement(t *testing.T) {
	// Mirrors the original's split_with_nested: a trailing empty
	// remainder after the last separator is never appended.
	parts := SplitWithNested("a,b,", ',')
	require.Equal(t, []string{"a", "b"}, parts)
}

func TestDecodeRejectsMalformedBool(t *testing.T) {
	_, err := Decode("maybe", "bool")
	require.Error(t, err)
}

func TestVersionCompare(t *testing.T) {
	a, err := ParseVersion("1.2")
	require.NoError(t, err)
	b, err := ParseVersion("1.2.1")
	require.NoError(t, err)
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
	require.Equal(t, 0, a.Compare(a))
}
