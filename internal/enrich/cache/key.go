package cache

import (
	"github.com/yairfalse/tapio-enrich/pkg/domain"
)

// Key identifies one version of one file in one mount namespace.
// Two on-disk versions of the same path differ in size or timestamps and get distinct keys.
type Key struct {
	MntNamespace uint32
	Path         string
	Size         uint64
	Modified     domain.Timespec
	Created      domain.Timespec
	Accessed     domain.Timespec
}

// fileStat is the subset of on-disk metadata checked against the kernel snapshot
type fileStat struct {
	Ino   uint64
	Size  uint64
	Mtime domain.Timespec
}

// NewKey builds the cache key for a kernel path. The caller must already be inside the
// namespace identified by inum. The key is only built when size, inode and mtime on disk
// still match the kernel snapshot; its timestamps come from the snapshot.
func NewKey(inum uint32, p domain.Path) (Key, error) {
	path := p.NativePath()

	st, err := statPath(path)
	if err != nil {
		return Key{}, err
	}

	meta := p.Metadata
	if meta == nil {
		return Key{}, ErrMetadataRequired
	}

	if meta.Size != st.Size {
		return Key{}, &FileModifiedError{Reason: "size changed"}
	}
	if meta.Ino != st.Ino {
		return Key{}, &FileModifiedError{Reason: "inode changed"}
	}
	if meta.Mtime != st.Mtime {
		return Key{}, &FileModifiedError{Reason: "mtime changed"}
	}

	return Key{
		MntNamespace: inum,
		Path:         path,
		Size:         meta.Size,
		Modified:     meta.Mtime,
		Created:      meta.Ctime,
		Accessed:     meta.Atime,
	}, nil
}
