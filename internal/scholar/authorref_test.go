package scholar

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAuthorRef_NumericID(t *testing.T) {
	t.Parallel()

	ref, err := ParseAuthorRef("40066064")
	require.NoError(t, err)
	require.Equal(t, RefNumericID, ref.Kind)
	require.Equal(t, "40066064", ref.Value)
}

func TestParseAuthorRef_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	ref, err := ParseAuthorRef("  40066064 ")
	require.NoError(t, err)
	require.Equal(t, RefNumericID, ref.Kind)
	require.Equal(t, "40066064", ref.Value)
	require.Equal(t, "  40066064 ", ref.Raw)
}

func TestParseAuthorRef_ProfileURLWithID(t *testing.T) {
	t.Parallel()

	ref, err := ParseAuthorRef("https://www.semanticscholar.org/author/Jane-Doe/1754053")
	require.NoError(t, err)
	require.Equal(t, RefProfileURL, ref.Kind)
	require.Equal(t, "1754053", ref.Value)
}

func TestParseAuthorRef_ProfileURLWithoutID(t *testing.T) {
	t.Parallel()

	ref, err := ParseAuthorRef("https://www.semanticscholar.org/author/Jane-Q.-Doe")
	require.NoError(t, err)
	require.Equal(t, RefName, ref.Kind)
	require.Equal(t, "Jane Q  Doe", ref.Value)
}

func TestParseAuthorRef_FreeTextName(t *testing.T) {
	t.Parallel()

	ref, err := ParseAuthorRef("Grace Hopper")
	require.NoError(t, err)
	require.Equal(t, RefName, ref.Kind)
	require.Equal(t, "Grace Hopper", ref.Value)
}

func TestParseAuthorRef_Empty(t *testing.T) {
	t.Parallel()

	_, err := ParseAuthorRef("   ")
	require.Error(t, err)
}
