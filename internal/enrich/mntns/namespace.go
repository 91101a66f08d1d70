// Package mntns switches the calling thread between mount namespaces.
//
// Namespace membership is per-thread kernel state. A goroutine that uses a Handle must
// stay on one OS thread for the whole Enter/Exit pair, and the thread must have its own
// filesystem context (see PinThread). Handles must not be shared between goroutines.
package mntns

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrAlreadyEntered is returned by Enter when the handle is already entered
	ErrAlreadyEntered = errors.New("mount namespace already entered")
	// ErrNotEntered is returned by Exit without a matching Enter
	ErrNotEntered = errors.New("mount namespace not entered")
	// ErrClosed is returned when using a released handle
	ErrClosed = errors.New("mount namespace handle closed")
	// ErrUnsupported is returned on platforms without mount namespaces
	ErrUnsupported = errors.New("mount namespaces are only supported on linux")
)

// MismatchError is returned by Open when the pid already left the expected namespace
type MismatchError struct {
	Pid  int
	Want uint32
	Got  uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("pid %d mount namespace changed: want inum=%d, got inum=%d", e.Pid, e.Want, e.Got)
}

// Handle is an open reference to a target mount namespace
type Handle struct {
	pid  int
	inum uint32

	target *os.File
	// namespace to return to, captured on first Enter
	self    *os.File
	entered bool
}

// Inum returns the inode number of the target namespace
func (h *Handle) Inum() uint32 {
	return h.inum
}

// Pid returns the pid the handle was opened through
func (h *Handle) Pid() int {
	return h.pid
}

// Entered reports whether the calling thread is currently switched into the namespace
func (h *Handle) Entered() bool {
	return h.entered
}

// Close releases the namespace descriptors. Closing an entered handle fails.
func (h *Handle) Close() error {
	if h.entered {
		return fmt.Errorf("close inum=%d: %w", h.inum, ErrAlreadyEntered)
	}

	var errs []error
	if h.target != nil {
		errs = append(errs, h.target.Close())
		h.target = nil
	}
	if h.self != nil {
		errs = append(errs, h.self.Close())
		h.self = nil
	}
	return errors.Join(errs...)
}

func procPath(pid int) string {
	return fmt.Sprintf("/proc/%d/ns/mnt", pid)
}
