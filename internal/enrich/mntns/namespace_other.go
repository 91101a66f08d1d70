//go:build !linux
// +build !linux

package mntns

// Open is not available outside linux
func Open(pid int, inum uint32) (*Handle, error) {
	return nil, ErrUnsupported
}

// PinThread is not available outside linux
func PinThread() error {
	return ErrUnsupported
}

// CurrentInum is not available outside linux
func CurrentInum() (uint32, error) {
	return 0, ErrUnsupported
}

// Enter is not available outside linux
func (h *Handle) Enter() error {
	return ErrUnsupported
}

// Exit is not available outside linux
func (h *Handle) Exit() error {
	return ErrUnsupported
}
