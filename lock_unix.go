//go:build unix || linux || darwin || freebsd || openbsd || netbsd

// Unix advisory locking for a queue directory, mirroring the build-tag
// split _examples/vnykmshr-ledgerq uses for its own platform-specific
// filesystem calls (validation_unix.go / validation_windows.go).
package persistqueue

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type flockLock struct {
	f *os.File
}

func newDirLock(dir string) (dirLock, error) {
	path := filepath.Join(dir, ".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("persistqueue: open lock file: %w", err)
	}
	return &flockLock{f: f}, nil
}

func (l *flockLock) TryLock() (bool, error) {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return false, nil
		}
		return false, fmt.Errorf("persistqueue: flock: %w", err)
	}
	return true, nil
}

func (l *flockLock) Unlock() error {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
