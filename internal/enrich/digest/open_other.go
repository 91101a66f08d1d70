//go:build !linux
// +build !linux

package digest

import (
	"fmt"
	"os"

	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// openSnapshot opens path and checks that it is a regular file of the snapshot size.
// Inode and mtime are not comparable outside linux.
func openSnapshot(path string, snap domain.FileMetadata) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open failed: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat failed: %w", err)
	}
	if !fi.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("not a regular file: %s", fi.Mode().Type())
	}
	if uint64(fi.Size()) != snap.Size {
		f.Close()
		return nil, fmt.Errorf("file changed before read: size changed")
	}
	return f, nil
}
