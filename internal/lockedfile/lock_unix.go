//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package lockedfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

type lockMode int

const (
	lockBlocking lockMode = iota
	lockNonBlocking
)

var errWouldBlock = errors.New("lock held by another process")

func lockFile(f *os.File, mode lockMode) error {
	how := unix.LOCK_EX
	if mode == lockNonBlocking {
		how |= unix.LOCK_NB
	}
	for {
		err := unix.Flock(int(f.Fd()), how)
		switch err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		case unix.EWOULDBLOCK:
			return errWouldBlock
		}
		return err
	}
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
