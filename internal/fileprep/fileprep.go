// Package fileprep implements the PreallocateFile external collaborator
// from spec §6: grow a destination file to exactly `size` bytes before any
// worker starts issuing positional writes into it. Workers seek-then-write
// at absolute offsets and complete blocks in arbitrary order, so the file
// must already be the right length (sparse or fully allocated) before the
// Slot Scheduler spawns its first worker.
package fileprep

import (
	"fmt"
	"os"
)

// Preallocate grows (or creates) the file at path to exactly size bytes.
// The platform-specific implementation prefers fallocate on Linux; see
// fileprep_linux.go / fileprep_other.go.
func Preallocate(path string, size uint64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("fileprep: opening %s: %w", path, err)
	}
	defer f.Close()

	if err := preallocate(f, size); err != nil {
		return fmt.Errorf("fileprep: preallocating %s to %d bytes: %w", path, size, err)
	}
	return nil
}
