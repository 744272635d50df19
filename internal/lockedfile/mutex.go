// Package lockedfile provides a mutex backed by an advisory file lock, for
// serializing work across cellar processes.
package lockedfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mutex is a mutual-exclusion lock held on a file. The file is created on
// first use and never removed.
type Mutex struct {
	path string
}

// MutexAt returns a mutex locking the file at path.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: empty path")
	}
	return &Mutex{path: path}
}

func (mu *Mutex) String() string {
	return fmt.Sprintf("lockedfile.Mutex(%s)", mu.path)
}

// Lock blocks until the lock is held and returns the function releasing it.
func (mu *Mutex) Lock() (unlock func(), err error) {
	return mu.lock(lockBlocking)
}

// TryLock acquires the lock without waiting. ok is false when another
// process holds it.
func (mu *Mutex) TryLock() (unlock func(), ok bool, err error) {
	unlock, err = mu.lock(lockNonBlocking)
	if err == errWouldBlock {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return unlock, true, nil
}

func (mu *Mutex) lock(mode lockMode) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(mu.path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(mu.path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f, mode); err != nil {
		f.Close()
		if err == errWouldBlock {
			return nil, err
		}
		return nil, fmt.Errorf("lock %s: %w", mu.path, err)
	}
	return func() {
		unlockFile(f)
		f.Close()
	}, nil
}
