package utils

import (
	"fmt"
	"os"
)

// TruncateAt cuts f down to offset bytes and syncs it, so the dropped tail
// does not come back after a crash.
func TruncateAt(f *os.File, offset int64) error {
	if err := f.Truncate(offset); err != nil {
		return fmt.Errorf("truncate %s at %d: %w", f.Name(), offset, err)
	}
	return f.Sync()
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	// 0 (special bit - ignored), 7 (rwx - owner), 5 (r-x - user group), 5 (r-x - others)
	return os.MkdirAll(dir, 0755)
}
