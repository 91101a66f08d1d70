//go:build !linux
// +build !linux

package filehash

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var errRingbufUnsupported = errors.New("ring buffer sources are only supported on linux")

// RingbufSource is unavailable on this platform
type RingbufSource struct{}

// NewRingbufSource always fails on this platform
func NewRingbufSource(path string, logger *zap.Logger) (*RingbufSource, error) {
	return nil, errRingbufUnsupported
}

// Read always fails on this platform
func (s *RingbufSource) Read(ctx context.Context) ([]byte, error) {
	return nil, errRingbufUnsupported
}

// Close is a no-op on this platform
func (s *RingbufSource) Close() error {
	return nil
}
