package prefixindex

import "sync/atomic"

// Holder publishes the active snapshot of one dataset. Readers take the pointer once
// per request and work against that snapshot until they are done.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// Load returns the active snapshot, or nil when none has been published yet.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap publishes snap and returns the snapshot it replaced.
func (h *Holder) Swap(snap *Snapshot) *Snapshot {
	return h.current.Swap(snap)
}
