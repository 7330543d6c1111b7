//go:build windows

package lock

import (
	"os"
	"path/filepath"

	"github.com/omriShneor/rustdex/errors"
)

// FileName is the name of the lock file created inside a data directory.
const FileName = "LOCK"

// LockDirectory attempts to acquire an exclusive lock on the given directory
// using a lock file.
//
// On Windows, this is implemented by atomically creating a file named "LOCK"
// inside the directory. If the file already exists, the directory is assumed
// to be in use by another engine and the error has kind errors.Locked.
//
// The returned file handle must be kept open for the duration of the lock.
func LockDirectory(path string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(path, FileName), os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.E("lock.LockDirectory", errors.Locked, errors.Errorf("%s already in use by another bitcask instance", path))
	}

	return f, nil
}

// UnlockDirectory releases a directory lock acquired via LockDirectory.
//
// On Windows, this removes the lock file from disk. UnlockDirectory should
// be called exactly once for each successful LockDirectory call.
func UnlockDirectory(f *os.File) {
	name := f.Name()
	f.Close()
	os.Remove(name)
}
