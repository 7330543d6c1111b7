//go:build linux

package segment

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes file data without forcing a metadata-only update
// such as the access time.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
