package filehash

import (
	"context"
	"errors"
	"sync"
)

// ErrSourceClosed is returned by Read once the source is closed or drained
var ErrSourceClosed = errors.New("event source closed")

// Source delivers raw kernel records, one per Read.
// Read blocks until a record is available, ctx is done or the source is closed.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// ChanSource is a Source fed from memory, for replay and tests
type ChanSource struct {
	records   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChanSource creates a source buffering up to size records
func NewChanSource(size int) *ChanSource {
	return &ChanSource{
		records: make(chan []byte, size),
		closed:  make(chan struct{}),
	}
}

// Push queues a record. It blocks while the buffer is full and fails after Close.
func (s *ChanSource) Push(ctx context.Context, record []byte) error {
	select {
	case <-s.closed:
		return ErrSourceClosed
	default:
	}

	select {
	case s.records <- record:
		return nil
	case <-s.closed:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Read returns the next queued record. Records queued before Close are still delivered.
func (s *ChanSource) Read(ctx context.Context) ([]byte, error) {
	select {
	case record := <-s.records:
		return record, nil
	default:
	}

	select {
	case record := <-s.records:
		return record, nil
	case <-s.closed:
		return nil, ErrSourceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the source. Closing twice is safe.
func (s *ChanSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
