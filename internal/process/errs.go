package process

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

var (
	// ErrVanished indicates the process exited between enumeration and the metric read.
	ErrVanished = errors.New("process: vanished")

	// ErrUnreadable indicates the process still exists but one of its records could not be
	// read (permission, timeout, unexpected file type). Its identity is kept for the next cycle.
	ErrUnreadable = errors.New("process: unreadable")

	// ErrNoIdentity indicates <pid>/stat was readable but its start time was not, so the
	// observation cannot be tied to a process instance.
	ErrNoIdentity = errors.New("process: no identity")

	// ErrMalformedStat indicates <pid>/stat did not have the "pid (comm) fields..." layout.
	ErrMalformedStat = errors.New("process: malformed stat")
)

// gone reports whether a read failed because the pid no longer exists.
func gone(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESRCH)
}

// readFailure maps a failed read of a pid's file to ErrVanished or ErrUnreadable.
func readFailure(err error) error {
	if gone(err) {
		return fmt.Errorf("%w: %w", ErrVanished, err)
	}
	return fmt.Errorf("%w: %w", ErrUnreadable, err)
}
