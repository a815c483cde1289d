package datadir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_ExtractRoundTrip(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	in := []map[string]string{{"key": "NRS-1"}, {"key": "NRS-2"}}
	require.NoError(t, dir.WriteExtract("work_packages", 0, in, false))
	assert.True(t, dir.HasExtract("work_packages", 0))

	var out []map[string]string
	require.NoError(t, dir.ReadExtract("work_packages", 0, &out))
	assert.Equal(t, in, out)
}

func TestDir_ExtractCacheNotOverwrittenWithoutForce(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, dir.WriteExtract("users", 1, []string{"original"}, false))
	require.NoError(t, dir.WriteExtract("users", 1, []string{"replacement"}, false))

	var out []string
	require.NoError(t, dir.ReadExtract("users", 1, &out))
	assert.Equal(t, []string{"original"}, out)

	require.NoError(t, dir.WriteExtract("users", 1, []string{"replacement"}, true))
	require.NoError(t, dir.ReadExtract("users", 1, &out))
	assert.Equal(t, []string{"replacement"}, out)
}

func TestDir_ExtractBatches(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	for _, batch := range []int{2, 0, 1} {
		require.NoError(t, dir.WriteExtract("projects", batch, batch, false))
	}
	require.NoError(t, dir.WriteExtract("users", 0, 0, false))

	batches, err := dir.ExtractBatches("projects")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, batches)
}

func TestDir_MappingRoundTrip(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	// Missing file reads as empty: the cache is non-authoritative.
	m, err := dir.ReadMapping("users")
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, dir.WriteMapping("users", map[string]int{"jdoe": 12}))
	m, err = dir.ReadMapping("users")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"jdoe": 12}, m)
}

func TestDir_WorkPackageMapping(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	assert.False(t, dir.HasWorkPackageMapping())
	require.NoError(t, dir.WriteWorkPackageMapping(map[string]int{"NRS-1": 455, "NRS-2": 456}))
	assert.True(t, dir.HasWorkPackageMapping())

	m, err := dir.ReadWorkPackageMapping()
	require.NoError(t, err)
	assert.Equal(t, 455, m["NRS-1"])
}

func TestDir_WriteBulkResult(t *testing.T) {
	dir, err := New(t.TempDir())
	require.NoError(t, err)

	at := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	path, err := dir.WriteBulkResult("journals", at, map[string]int{"created": 23})
	require.NoError(t, err)
	assert.Equal(t, "bulk_result_journals_20260825T093000.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created": 23`)
}

func TestDir_AtomicWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	dir, err := New(root)
	require.NoError(t, err)

	require.NoError(t, dir.WriteMapping("users", map[string]int{"a": 1}))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.Contains(entry.Name(), ".tmp-"), "leftover temp file %s", entry.Name())
	}
}
