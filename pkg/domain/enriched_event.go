package domain

import "time"

// EnrichedEvent is a kernel event after user-space enrichment
type EnrichedEvent struct {
	Type      string    `json:"type" yaml:"type"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Pid       uint32    `json:"pid" yaml:"pid"`
	Tgid      uint32    `json:"tgid" yaml:"tgid"`
	MntNs     uint32    `json:"mnt_ns" yaml:"mnt_ns"`
	Hostname  string    `json:"hostname,omitempty" yaml:"hostname,omitempty"`

	Path   string  `json:"path,omitempty" yaml:"path,omitempty"`
	Hashes *Hashes `json:"hashes,omitempty" yaml:"hashes,omitempty"`

	Target uint32 `json:"target,omitempty" yaml:"target,omitempty"`
	Arg    uint32 `json:"arg,omitempty" yaml:"arg,omitempty"`

	// Why enrichment could not be completed, if it could not
	EnrichError string `json:"enrich_error,omitempty" yaml:"enrich_error,omitempty"`
}

// NewEnrichedEvent copies the kernel fields of a decoded event
func NewEnrichedEvent(ev *FileEvent) *EnrichedEvent {
	out := &EnrichedEvent{
		Type:      ev.Type.String(),
		Timestamp: ev.Timestamp,
		Pid:       ev.Pid,
		Tgid:      ev.Tgid,
		MntNs:     ev.MntNs,
		Target:    ev.Target,
		Arg:       ev.Arg,
	}
	if ev.Path != nil {
		out.Path = ev.Path.Value
	}
	return out
}
