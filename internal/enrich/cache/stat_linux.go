//go:build linux
// +build linux

package cache

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

func stat(path string) (*unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, ErrFileNotFound
		}
		return nil, &IOError{Path: path, Err: err}
	}
	return &st, nil
}

func statPath(path string) (fileStat, error) {
	st, err := stat(path)
	if err != nil {
		return fileStat{}, err
	}
	return fileStat{
		Ino:   uint64(st.Ino),
		Size:  uint64(st.Size),
		Mtime: timespec(st.Mtim),
	}, nil
}

// Snapshot reads the inode metadata of path the way kernel events report it
func Snapshot(path string) (domain.FileMetadata, error) {
	st, err := stat(path)
	if err != nil {
		return domain.FileMetadata{}, err
	}
	return domain.FileMetadata{
		Ino:   uint64(st.Ino),
		Size:  uint64(st.Size),
		Mtime: timespec(st.Mtim),
		Atime: timespec(st.Atim),
		Ctime: timespec(st.Ctim),
	}, nil
}

func timespec(ts unix.Timespec) domain.Timespec {
	sec, nsec := ts.Unix()
	return domain.Timespec{Sec: sec, Nsec: nsec}
}
