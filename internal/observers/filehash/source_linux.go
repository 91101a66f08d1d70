//go:build linux
// +build linux

package filehash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	"go.uber.org/zap"
)

// readPollInterval bounds how long a ring buffer read blocks before ctx is checked again
const readPollInterval = 100 * time.Millisecond

// RingbufSource reads kernel records from a ring buffer map pinned on bpffs by the eBPF loader
type RingbufSource struct {
	events *ebpf.Map
	reader *ringbuf.Reader
	logger *zap.Logger
}

// NewRingbufSource opens the ring buffer pinned at path
func NewRingbufSource(path string, logger *zap.Logger) (*RingbufSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Remove memory lock limit for eBPF
	if err := rlimit.RemoveMemlock(); err != nil {
		logger.Warn("Failed to remove memlock limit", zap.Error(err))
	}

	events, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load pinned events map %s: %w", path, err)
	}
	if events.Type() != ebpf.RingBuf {
		events.Close()
		return nil, fmt.Errorf("pinned map %s is a %s, want %s", path, events.Type(), ebpf.RingBuf)
	}

	reader, err := ringbuf.NewReader(events)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("failed to create ring buffer reader: %w", err)
	}

	logger.Info("Opened pinned events ring buffer",
		zap.String("path", path),
		zap.Int("size", reader.BufferSize()))

	return &RingbufSource{events: events, reader: reader, logger: logger}, nil
}

// Read returns the next record from the ring buffer
func (s *RingbufSource) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Use a deadline to allow periodic context checks
		s.reader.SetDeadline(time.Now().Add(readPollInterval))
		record, err := s.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil, ErrSourceClosed
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return nil, fmt.Errorf("ring buffer read: %w", err)
		}
		return record.RawSample, nil
	}
}

// Close stops pending reads and releases the map
func (s *RingbufSource) Close() error {
	return errors.Join(s.reader.Close(), s.events.Close())
}
