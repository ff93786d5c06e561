package graphstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeRelType(t *testing.T) {
	require.Equal(t, "RELATES_TO", sanitizeRelType("relates-to"))
	require.Equal(t, "PREREQUISITE_FOR", sanitizeRelType("prerequisite for"))
	require.Equal(t, "APPLIES", sanitizeRelType("APPLIES"))
}

func TestToFloat64Slice(t *testing.T) {
	require.Nil(t, toFloat64Slice(nil))
	require.Equal(t, []float64{1, 2.5}, toFloat64Slice([]float32{1, 2.5}))
}

func TestFlattenMetadataDropsNestedValues(t *testing.T) {
	in := map[string]any{
		"ok_string": "x",
		"ok_int":    5,
		"ok_float":  1.5,
		"ok_bool":   true,
		"nested":    map[string]any{"a": 1},
		"list":      []string{"a", "b"},
	}
	out := flattenMetadata(in)
	require.Len(t, out, 4)
	require.Equal(t, "x", out["ok_string"])
	require.NotContains(t, out, "nested")
	require.NotContains(t, out, "list")
}

func TestFlattenMetadataNilReturnsEmptyMap(t *testing.T) {
	require.Equal(t, map[string]any{}, flattenMetadata(nil))
}

func TestAppendUniqueSkipsDuplicates(t *testing.T) {
	got := appendUnique([]string{"BC"}, "BC")
	require.Equal(t, []string{"BC"}, got)

	got = appendUnique([]string{"BC"}, "RL")
	require.Equal(t, []string{"BC", "RL"}, got)
}

func TestCanonicalNameMatchesConceptPackage(t *testing.T) {
	require.Equal(t, "behavior cloning", canonicalName("Behavior Cloning (BC)"))
}
