package knowledge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeIndexFile(t *testing.T, dir, name string, idx *Index) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := json.Marshal(idx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoaderMissingFileYieldsEmptyIndex(t *testing.T) {
	loader := NewLoader("/nonexistent/index.json", []string{"/also/nonexistent.json"})

	idx := loader.Load()

	require.NotNil(t, idx)
	assert.Empty(t, idx.Items)
}

func TestLoaderReadsConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	path := writeIndexFile(t, dir, "index.json", &Index{
		Items:      []Item{{ID: "a", Title: "CO2 tables"}},
		Categories: []string{"training"},
	})

	loader := NewLoader(path, nil)

	idx := loader.Load()

	require.Len(t, idx.Items, 1)
	assert.Equal(t, "a", idx.Items[0].ID)
	assert.Equal(t, []string{"training"}, idx.Categories)
}

func TestLoaderFallsBackInOrder(t *testing.T) {
	dir := t.TempDir()
	fallback := writeIndexFile(t, dir, "fallback.json", &Index{
		Items: []Item{{ID: "from-fallback"}},
	})

	loader := NewLoader(filepath.Join(dir, "missing.json"), []string{fallback})

	idx := loader.Load()

	require.Len(t, idx.Items, 1)
	assert.Equal(t, "from-fallback", idx.Items[0].ID)
}

func TestLoaderSkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte("{not json"), 0644))
	good := writeIndexFile(t, dir, "good.json", &Index{
		Items: []Item{{ID: "good"}},
	})

	loader := NewLoader(broken, []string{good})

	idx := loader.Load()

	require.Len(t, idx.Items, 1)
	assert.Equal(t, "good", idx.Items[0].ID)
}

func TestLoaderCachesAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	path := writeIndexFile(t, dir, "index.json", &Index{
		Items: []Item{{ID: "a"}},
	})

	loader := NewLoader(path, nil)
	first := loader.Load()

	// Deleting the file does not affect the cached index.
	require.NoError(t, os.Remove(path))
	second := loader.Load()

	assert.Same(t, first, second)
}
