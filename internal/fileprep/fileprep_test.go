package fileprep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreallocateGrowsFileToExactSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dest.bin")

	require.NoError(t, Preallocate(path, 1<<20))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 1<<20, info.Size())
}

func TestPreallocateOverwritesExistingFileSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dest.bin")

	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0o644))
	require.NoError(t, Preallocate(path, 5000))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, info.Size())
}
