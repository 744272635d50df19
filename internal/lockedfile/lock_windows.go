//go:build windows

package lockedfile

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

type lockMode int

const (
	lockBlocking lockMode = iota
	lockNonBlocking
)

var errWouldBlock = errors.New("lock held by another process")

const allBytes = ^uint32(0)

func lockFile(f *os.File, mode lockMode) error {
	flags := uint32(windows.LOCKFILE_EXCLUSIVE_LOCK)
	if mode == lockNonBlocking {
		flags |= windows.LOCKFILE_FAIL_IMMEDIATELY
	}
	ol := new(windows.Overlapped)
	err := windows.LockFileEx(windows.Handle(f.Fd()), flags, 0, allBytes, allBytes, ol)
	if err == windows.ERROR_LOCK_VIOLATION {
		return errWouldBlock
	}
	return err
}

func unlockFile(f *os.File) error {
	ol := new(windows.Overlapped)
	return windows.UnlockFileEx(windows.Handle(f.Fd()), 0, allBytes, allBytes, ol)
}
