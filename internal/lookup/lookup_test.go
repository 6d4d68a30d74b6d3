package lookup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCollections(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "collections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNew_LoadsMapping(t *testing.T) {
	path := writeCollections(t, `
collections:
  - owner_id: "123.4"
    accepted_name: "The Greenwich Collection"
  - owner_id: "200"
    suggested_name: "Possibly the Armoury"
  - owner_id: "300"
    accepted_name: "Unknown"
  - owner_id: ""
    accepted_name: "No Owner"
`)

	c, err := New(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	name, ok := c.Name("123.4")
	assert.True(t, ok)
	assert.Equal(t, "The Greenwich Collection", name)

	// Suggested name is the fallback when no accepted name exists.
	name, ok = c.Name("200")
	assert.True(t, ok)
	assert.Equal(t, "Possibly the Armoury", name)

	// "Unknown" entries and empty owner ids are dropped.
	_, ok = c.Name("300")
	assert.False(t, ok)
}

func TestNew_MissingFileStartsEmpty(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestReload_ReplacesMapping(t *testing.T) {
	path := writeCollections(t, `
collections:
  - owner_id: "1"
    accepted_name: "First"
`)
	c, err := New(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	require.NoError(t, os.WriteFile(path, []byte(`
collections:
  - owner_id: "2"
    accepted_name: "Second"
`), 0o644))
	require.NoError(t, c.Reload())

	_, ok := c.Name("1")
	assert.False(t, ok, "old mapping replaced, not merged")
	name, ok := c.Name("2")
	assert.True(t, ok)
	assert.Equal(t, "Second", name)
}

func TestAll_ReturnsCopy(t *testing.T) {
	path := writeCollections(t, `
collections:
  - owner_id: "1"
    accepted_name: "First"
`)
	c, err := New(path)
	require.NoError(t, err)

	all := c.All()
	all["1"] = "mutated"

	name, _ := c.Name("1")
	assert.Equal(t, "First", name)
}
