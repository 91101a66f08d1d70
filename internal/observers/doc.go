// Package observers defines the interface implemented by Tapio observers.
//
// An observer turns raw kernel records into domain events. The file hash observer
// reads records from the pinned eBPF ring buffer and enriches them in user space:
//
//	┌─────────────┐    ┌──────────┐    ┌─────────────────┐
//	│ eBPF progs  │───▶│ ringbuf  │───▶│ reader (decode) │
//	└─────────────┘    └──────────┘    └────────┬────────┘
//	                                            │ mnt_ns % shards
//	                              ┌─────────────┼─────────────┐
//	                              ▼             ▼             ▼
//	                          ┌───────┐     ┌───────┐     ┌───────┐
//	                          │shard 0│     │shard 1│ ... │shard n│
//	                          │ cache │     │ cache │     │ cache │
//	                          └───┬───┘     └───┬───┘     └───┬───┘
//	                              └─────────────┼─────────────┘
//	                                            ▼
//	                                   EnrichedEvent channel
//
// Each shard owns its cache and runs on a dedicated OS thread, because switching
// mount namespace changes the state of the calling thread.
package observers
