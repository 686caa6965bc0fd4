package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", Truncate("abc", 5))
	require.Equal(t, "ab...", Truncate("abcdef", 2))
	require.Equal(t, "Приве...", Truncate("Привет мир", 5))
}

func TestNormalizeSpaces(t *testing.T) {
	require.Equal(t, "a b c", NormalizeSpaces("  a\n\tb  c "))
}

func TestTitleCase(t *testing.T) {
	require.Equal(t, "Walmart", TitleCase("walmart"))
	require.Equal(t, "", TitleCase(""))
}
