//go:build unix

package lock

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/omriShneor/rustdex/errors"
)

// FileName is the name of the lock file created inside a data directory.
const FileName = "LOCK"

// LockDirectory attempts to acquire an exclusive, non-blocking advisory lock
// on the given directory using a lock file.
//
// On Unix systems, this uses flock(2) to place an exclusive lock on a file
// named "LOCK" inside the directory. If the lock cannot be acquired, the
// directory is assumed to be in use by another engine and the error has
// kind errors.Locked.
//
// The returned file handle must remain open for the duration of the lock.
func LockDirectory(path string) (*os.File, error) {
	const op = "lock.LockDirectory"

	f, err := os.OpenFile(filepath.Join(path, FileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.E(op, errors.Locked, errors.Errorf("%s already in use by another bitcask instance", path))
	}

	return f, nil
}

// UnlockDirectory releases a directory lock acquired via LockDirectory.
//
// On Unix systems, this releases the advisory flock and closes the file.
func UnlockDirectory(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
