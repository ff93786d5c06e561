package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
domains:
  ml:
    architecture:
      transformers: {}
status:
  - reviewed
  - draft
quality:
  - high
`

func writeSample(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadAndValidateDomainTags(t *testing.T) {
	path := writeSample(t)
	c := NewCache(path, time.Minute)
	require.NoError(t, c.Load())

	require.True(t, c.Validate("ml"))
	require.True(t, c.Validate("ml/architecture"))
	require.True(t, c.Validate("ml/architecture/transformers"))
	require.False(t, c.Validate("nonexistent"))
}

func TestValidateMetaTags(t *testing.T) {
	path := writeSample(t)
	c := NewCache(path, time.Minute)
	require.NoError(t, c.Load())

	require.True(t, c.Validate("status/reviewed"))
	require.True(t, c.Validate("quality/high"))
	require.False(t, c.Validate("status/nonexistent"))
}

func TestPartitionSplitsValidAndSuggested(t *testing.T) {
	path := writeSample(t)
	c := NewCache(path, time.Minute)
	require.NoError(t, c.Load())

	valid, suggested := c.Partition([]string{"ml/architecture", "invented-tag"})
	require.Equal(t, []string{"ml/architecture"}, valid)
	require.Equal(t, []string{"invented-tag"}, suggested)
}

func TestLoadReReadsOnInvalidate(t *testing.T) {
	path := writeSample(t)
	c := NewCache(path, time.Hour)
	require.NoError(t, c.Load())
	require.False(t, c.Validate("quality/archived"))

	// sampleYAML ends with the quality list, so the appended item joins it.
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"  - archived\n"), 0o644))
	c.Invalidate()
	require.NoError(t, c.Load())
	require.True(t, c.Validate("quality/archived"))
}
