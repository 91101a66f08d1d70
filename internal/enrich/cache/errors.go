package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrFileNotFound means the file disappeared between the kernel event and enrichment
	ErrFileNotFound = errors.New("file not found")
	// ErrMetadataRequired means the kernel event did not attach an inode snapshot to the path
	ErrMetadataRequired = errors.New("kernel metadata is required to build a cache key")
	// ErrFileModified matches every *FileModifiedError
	ErrFileModified = errors.New("file changed since kernel event")
)

// UnknownNamespaceError is returned for a namespace that was never registered
type UnknownNamespaceError struct {
	Inum uint32
}

func (e *UnknownNamespaceError) Error() string {
	return fmt.Sprintf("unknown namespace inum=%d", e.Inum)
}

// NamespaceError wraps a failure to open or switch into a mount namespace
type NamespaceError struct {
	Op   string
	Inum uint32
	Err  error
}

func (e *NamespaceError) Error() string {
	return fmt.Sprintf("namespace %s inum=%d: %v", e.Op, e.Inum, e.Err)
}

func (e *NamespaceError) Unwrap() error {
	return e.Err
}

// IOError wraps a filesystem failure while reading file metadata
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io error on %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// FileModifiedError reports which attribute differs from the kernel snapshot.
// Reason is diagnostic text only.
type FileModifiedError struct {
	Reason string
}

func (e *FileModifiedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrFileModified, e.Reason)
}

func (e *FileModifiedError) Is(target error) bool {
	return target == ErrFileModified
}

// Kind classifies an error returned by the cache, for metrics and logs
func Kind(err error) string {
	var (
		unknown  *UnknownNamespaceError
		nsErr    *NamespaceError
		ioErr    *IOError
		modified *FileModifiedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &unknown):
		return "unknown_ns"
	case errors.As(err, &nsErr):
		return "namespace"
	case errors.Is(err, ErrFileNotFound):
		return "file_not_found"
	case errors.As(err, &modified):
		return "file_modified"
	case errors.Is(err, ErrMetadataRequired):
		return "metadata_required"
	case errors.As(err, &ioErr):
		return "io"
	default:
		return "other"
	}
}
