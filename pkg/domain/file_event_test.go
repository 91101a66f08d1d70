package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSizes(t *testing.T) {
	assert.Equal(t, 24, EventHeaderSize)
	assert.Equal(t, 24+PathMax+8+64, PathRecordSize)
	assert.Equal(t, 32, TargetRecordSize)
}

func TestDecodePathEvent(t *testing.T) {
	meta := &FileMetadata{
		Ino:   1234,
		Size:  42,
		Mtime: Timespec{Sec: 1700000000, Nsec: 5},
		Atime: Timespec{Sec: 1700000001, Nsec: 6},
		Ctime: Timespec{Sec: 1700000002, Nsec: 7},
	}
	raw, err := NewRawPath("/usr/bin/curl", meta)
	require.NoError(t, err)

	ts := time.Unix(1700000100, 0)
	rec := &PathRecord{
		Header: EventHeader{
			Type:      uint32(EventTypeExecve),
			Pid:       100,
			Tgid:      99,
			MntNs:     4026531840,
			Timestamp: uint64(ts.UnixNano()),
		},
		Path: raw,
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, PathRecordSize)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventTypeExecve, ev.Type)
	assert.Equal(t, uint32(100), ev.Pid)
	assert.Equal(t, uint32(99), ev.Tgid)
	assert.Equal(t, uint32(4026531840), ev.MntNs)
	assert.True(t, ts.Equal(ev.Timestamp))
	require.NotNil(t, ev.Path)
	assert.Equal(t, "/usr/bin/curl", ev.Path.NativePath())
	require.NotNil(t, ev.Path.Metadata)
	assert.Equal(t, *meta, *ev.Path.Metadata)
}

func TestDecodePathEventWithoutMetadata(t *testing.T) {
	raw, err := NewRawPath("/etc/passwd", nil)
	require.NoError(t, err)
	rec := &PathRecord{
		Header: EventHeader{Type: uint32(EventTypeFileOpen), MntNs: 1},
		Path:   raw,
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	require.NotNil(t, ev.Path)
	assert.Equal(t, "/etc/passwd", ev.Path.Value)
	assert.Nil(t, ev.Path.Metadata)
}

func TestDecodeTargetEvent(t *testing.T) {
	rec := &TargetRecord{
		Header: EventHeader{Type: uint32(EventTypeSignalSend), Pid: 7, MntNs: 3},
		Target: 8,
		Arg:    9,
	}
	data, err := rec.MarshalBinary()
	require.NoError(t, err)

	ev, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventTypeSignalSend, ev.Type)
	assert.Nil(t, ev.Path)
	assert.Equal(t, uint32(8), ev.Target)
	assert.Equal(t, uint32(9), ev.Arg)
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent([]byte{1, 2, 3})
	assert.Error(t, err)

	hdr := &TargetRecord{Header: EventHeader{Type: 99}}
	data, err := hdr.MarshalBinary()
	require.NoError(t, err)
	_, err = DecodeEvent(data)
	assert.ErrorContains(t, err, "unknown event type")

	// path event truncated to its header
	short := &TargetRecord{Header: EventHeader{Type: uint32(EventTypeFileOpen)}}
	data, err = short.MarshalBinary()
	require.NoError(t, err)
	_, err = DecodeEvent(data)
	assert.ErrorContains(t, err, "too small")
}

func TestRawPathTooLong(t *testing.T) {
	long := make([]byte, PathMax+1)
	_, err := NewRawPath(string(long), nil)
	assert.Error(t, err)
}

func TestNewEnrichedEvent(t *testing.T) {
	ev := &FileEvent{
		Type:  EventTypeFileOpen,
		Pid:   1,
		MntNs: 2,
		Path:  &Path{Value: "/tmp/x"},
	}
	out := NewEnrichedEvent(ev)
	assert.Equal(t, "file_open", out.Type)
	assert.Equal(t, "/tmp/x", out.Path)
	assert.Nil(t, out.Hashes)
}
