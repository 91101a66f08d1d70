//go:build !linux
// +build !linux

package cache

import (
	"errors"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

var errStatUnsupported = errors.New("inode snapshots are only supported on linux")

func statPath(path string) (fileStat, error) {
	return fileStat{}, &IOError{Path: path, Err: errStatUnsupported}
}

// Snapshot is not available outside linux
func Snapshot(path string) (domain.FileMetadata, error) {
	return domain.FileMetadata{}, &IOError{Path: path, Err: errStatUnsupported}
}
