// Package runlock keeps two pipeline runs from overlapping, e.g. a manual
// trigger racing the scheduled one.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// Lock is a held lock file. Release it when the run ends.
type Lock struct {
	path string
	f    *os.File
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// TryLock acquires path without blocking. The file records the holder's PID.
func TryLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(path)), 0o755); err != nil {
		return nil, fmt.Errorf("runlock: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runlock: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("runlock %s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("runlock %s: %w", path, err)
	}
	if err := f.Truncate(0); err == nil {
		f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return &Lock{path: path, f: f}, nil
}

// Release drops the lock. The file is left in place.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
