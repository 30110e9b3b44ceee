//go:build !linux

package fileprep

import "os"

// preallocate falls back to a simple create+truncate on non-Linux
// platforms, per spec §6 ("elsewhere a simple create + truncate is
// acceptable").
func preallocate(f *os.File, size uint64) error {
	return f.Truncate(int64(size))
}
