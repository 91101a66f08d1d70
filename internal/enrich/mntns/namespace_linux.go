//go:build linux
// +build linux

package mntns

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

const threadSelfPath = "/proc/thread-self/ns/mnt"

// Open acquires the mount namespace of pid and checks that it is inum
func Open(pid int, inum uint32) (*Handle, error) {
	path := procPath(pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	got, err := inodeOf(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if got != inum {
		f.Close()
		return nil, &MismatchError{Pid: pid, Want: inum, Got: got}
	}

	return &Handle{pid: pid, inum: inum, target: f}, nil
}

// PinThread wires the calling goroutine to its OS thread for good and gives the thread
// a private filesystem context, which setns(CLONE_NEWNS) requires. The thread is never
// handed back to the scheduler and exits together with the goroutine.
func PinThread() error {
	runtime.LockOSThread()
	if err := unix.Unshare(unix.CLONE_FS); err != nil {
		return fmt.Errorf("failed to unshare filesystem context: %w", err)
	}
	return nil
}

// CurrentInum returns the mount namespace inode of the calling thread
func CurrentInum() (uint32, error) {
	var st unix.Stat_t
	if err := unix.Stat(threadSelfPath, &st); err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", threadSelfPath, err)
	}
	return uint32(st.Ino), nil
}

// Enter switches the calling thread into the target namespace.
// Every successful Enter must be paired with Exit on the same goroutine.
func (h *Handle) Enter() error {
	if h.target == nil {
		return ErrClosed
	}
	if h.entered {
		return ErrAlreadyEntered
	}

	runtime.LockOSThread()

	if h.self == nil {
		self, err := os.Open(threadSelfPath)
		if err != nil {
			runtime.UnlockOSThread()
			return fmt.Errorf("failed to open %s: %w", threadSelfPath, err)
		}
		h.self = self
	}

	if err := unix.Setns(int(h.target.Fd()), unix.CLONE_NEWNS); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("setns inum=%d: %w", h.inum, err)
	}

	h.entered = true
	return nil
}

// Exit switches the calling thread back to the namespace it was in before Enter.
// A failure leaves the thread in the target namespace.
func (h *Handle) Exit() error {
	if !h.entered {
		return ErrNotEntered
	}

	if err := unix.Setns(int(h.self.Fd()), unix.CLONE_NEWNS); err != nil {
		return fmt.Errorf("setns back from inum=%d: %w", h.inum, err)
	}

	h.entered = false
	runtime.UnlockOSThread()
	return nil
}

func inodeOf(f *os.File) (uint32, error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", f.Name(), err)
	}
	return uint32(st.Ino), nil
}
