package bus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypesEqualLeafNamesCaseInsensitive(t *testing.T) {
	require.True(t, TypesEqual("str", "STR"))
	require.True(t, TypesEqual("typing.str", "str"))
	require.False(t, TypesEqual("str", "int"))
}

func TestTypesEqualRecursesIntoList(t *testing.T) {
	require.True(t, TypesEqual("list[str]", "List[str]"))
	require.False(t, TypesEqual("list[str]", "list[int]"))
	require.False(t, TypesEqual("list[str]", "tuple[str]"))
}

func TestTypesEqualRecursesIntoDict(t *testing.T) {
	require.True(t, TypesEqual("dict[str, int]", "dict[str,int]"))
	require.False(t, TypesEqual("dict[str, int]", "dict[str, bool]"))
}

func TestTypesEqualRecursesIntoTuple(t *testing.T) {
	require.True(t, TypesEqual("tuple[str, int]", "tuple[str, int]"))
	require.False(t, TypesEqual("tuple[str, int]", "tuple[str, int, bool]"))
}
