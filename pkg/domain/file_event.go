package domain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
	"unsafe"
)

// PathMax is the size of the path buffer the eBPF programs fill in
const PathMax = 4096

// EventType identifies which eBPF program produced a record
type EventType uint32

const (
	EventTypeExecve       EventType = 1
	EventTypeSchedule     EventType = 2
	EventTypeFileOpen     EventType = 3
	EventTypeMmapExec     EventType = 4
	EventTypeSignalSend   EventType = 5
	EventTypePtraceAttach EventType = 6
)

// String returns the event type name used in output and metrics
func (t EventType) String() string {
	switch t {
	case EventTypeExecve:
		return "execve"
	case EventTypeSchedule:
		return "schedule"
	case EventTypeFileOpen:
		return "file_open"
	case EventTypeMmapExec:
		return "mmap_exec"
	case EventTypeSignalSend:
		return "signal_send"
	case EventTypePtraceAttach:
		return "ptrace_attach"
	default:
		return fmt.Sprintf("unknown_%d", uint32(t))
	}
}

// HasPath reports whether records of this type carry a file path
func (t EventType) HasPath() bool {
	switch t {
	case EventTypeExecve, EventTypeSchedule, EventTypeFileOpen, EventTypeMmapExec:
		return true
	}
	return false
}

// HasTarget reports whether records of this type carry a target process
func (t EventType) HasTarget() bool {
	return t == EventTypeSignalSend || t == EventTypePtraceAttach
}

// Timespec is a kernel timestamp (seconds + nanoseconds since the Unix epoch)
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Time converts the timestamp to a time.Time
func (ts Timespec) Time() time.Time {
	return time.Unix(ts.Sec, ts.Nsec)
}

// TimespecFromTime converts a time.Time to a Timespec
func TimespecFromTime(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// FileMetadata is the inode snapshot taken by the eBPF program when it saw the file
type FileMetadata struct {
	Ino   uint64
	Size  uint64
	Mtime Timespec
	Atime Timespec
	Ctime Timespec
}

// EventHeader is the common prefix of every kernel record (must match C struct exactly)
type EventHeader struct {
	Type  uint32
	Pid   uint32
	Tgid  uint32
	MntNs uint32
	// Nanoseconds since the Unix epoch
	Timestamp uint64
}

// RawPath is the path record emitted by the eBPF programs (must match C struct exactly)
type RawPath struct {
	Buffer      [PathMax]byte
	Len         uint32
	HasMetadata uint32
	Metadata    FileMetadata
}

// PathRecord is the layout of execve, schedule, file open and mmap exec records
type PathRecord struct {
	Header EventHeader
	Path   RawPath
}

// TargetRecord is the layout of signal and ptrace records
type TargetRecord struct {
	Header EventHeader
	Target uint32
	// Signal number for signal_send, ptrace mode for ptrace_attach
	Arg uint32
}

// Record sizes as laid out by the eBPF programs
var (
	EventHeaderSize  = int(unsafe.Sizeof(EventHeader{}))
	PathRecordSize   = int(unsafe.Sizeof(PathRecord{}))
	TargetRecordSize = int(unsafe.Sizeof(TargetRecord{}))
)

// Path is a decoded kernel path together with the optional inode snapshot
type Path struct {
	Value    string
	Metadata *FileMetadata
}

// NativePath returns the path as seen from inside the originating mount namespace
func (p Path) NativePath() string {
	return p.Value
}

// Decode converts the raw kernel buffer into a Path
func (r *RawPath) Decode() Path {
	n := int(r.Len)
	if n > PathMax {
		n = PathMax
	}
	p := Path{Value: string(bytes.TrimRight(r.Buffer[:n], "\x00"))}
	if r.HasMetadata != 0 {
		meta := r.Metadata
		p.Metadata = &meta
	}
	return p
}

// NewRawPath builds a kernel path record, used for replay and tests
func NewRawPath(value string, meta *FileMetadata) (RawPath, error) {
	var r RawPath
	if len(value) > PathMax {
		return r, fmt.Errorf("path too long: %d bytes (max: %d)", len(value), PathMax)
	}
	copy(r.Buffer[:], value)
	r.Len = uint32(len(value))
	if meta != nil {
		r.HasMetadata = 1
		r.Metadata = *meta
	}
	return r, nil
}

// MarshalBinary encodes the record in kernel layout
func (r *PathRecord) MarshalBinary() ([]byte, error) {
	return encodeRecord(r)
}

// MarshalBinary encodes the record in kernel layout
func (r *TargetRecord) MarshalBinary() ([]byte, error) {
	return encodeRecord(r)
}

func encodeRecord(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

// FileEvent is a decoded kernel record
type FileEvent struct {
	Type      EventType
	Pid       uint32
	Tgid      uint32
	MntNs     uint32
	Timestamp time.Time

	// Set for path-bearing events
	Path *Path

	// Set for signal and ptrace events
	Target uint32
	Arg    uint32
}

// DecodeEvent parses a raw ring buffer sample
func DecodeEvent(data []byte) (*FileEvent, error) {
	if len(data) < EventHeaderSize {
		return nil, fmt.Errorf("event data too small: got %d bytes, need at least %d", len(data), EventHeaderSize)
	}

	var hdr EventHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to parse event header: %w", err)
	}

	event := &FileEvent{
		Type:      EventType(hdr.Type),
		Pid:       hdr.Pid,
		Tgid:      hdr.Tgid,
		MntNs:     hdr.MntNs,
		Timestamp: time.Unix(0, int64(hdr.Timestamp)),
	}

	switch {
	case event.Type.HasPath():
		if len(data) < PathRecordSize {
			return nil, fmt.Errorf("%s record too small: got %d bytes, need %d", event.Type, len(data), PathRecordSize)
		}
		var rec PathRecord
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse %s record: %w", event.Type, err)
		}
		p := rec.Path.Decode()
		event.Path = &p

	case event.Type.HasTarget():
		if len(data) < TargetRecordSize {
			return nil, fmt.Errorf("%s record too small: got %d bytes, need %d", event.Type, len(data), TargetRecordSize)
		}
		var rec TargetRecord
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse %s record: %w", event.Type, err)
		}
		event.Target = rec.Target
		event.Arg = rec.Arg

	default:
		return nil, fmt.Errorf("unknown event type %d", hdr.Type)
	}

	return event, nil
}
