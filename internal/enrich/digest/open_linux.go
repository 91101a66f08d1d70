//go:build linux
// +build linux

package digest

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// openSnapshot opens path without blocking on FIFOs or devices and checks that the
// descriptor is the regular file described by snap
func openSnapshot(path string, snap domain.FileMetadata) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat failed: %w", err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFREG {
		unix.Close(fd)
		return nil, fmt.Errorf("not a regular file: mode %#o", st.Mode&unix.S_IFMT)
	}

	var reason string
	sec, nsec := st.Mtim.Unix()
	switch {
	case uint64(st.Ino) != snap.Ino:
		reason = "inode changed"
	case uint64(st.Size) != snap.Size:
		reason = "size changed"
	case (domain.Timespec{Sec: sec, Nsec: nsec}) != snap.Mtime:
		reason = "mtime changed"
	}
	if reason != "" {
		unix.Close(fd)
		return nil, fmt.Errorf("file changed before read: %s", reason)
	}

	return os.NewFile(uintptr(fd), path), nil
}
