package dispatch

import "sync"

// Pending is one outstanding request awaiting a response, keyed by the
// matchtag drawn for it. Streaming requests stay in the table across
// multiple responses until explicitly cancelled, disconnected, or
// terminated.
type Pending struct {
	Matchtag  uint32
	Sender    string
	Streaming bool
	OnReply   func(msg any, terminal bool)
}

// PendingTable correlates responses back to their originating request by
// (matchtag), and supports bulk eviction by sender identity (client
// disconnect) — mirroring the monitor's and the scratchpad's pending
// request lists.
type PendingTable struct {
	mu    sync.Mutex
	byTag map[uint32]*Pending
}

// NewPendingTable creates an empty table.
func NewPendingTable() *PendingTable {
	return &PendingTable{byTag: make(map[uint32]*Pending)}
}

// Add registers p, indexed by p.Matchtag.
func (t *PendingTable) Add(p *Pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byTag[p.Matchtag] = p
}

// Get looks up a pending entry by matchtag without removing it.
func (t *PendingTable) Get(tag uint32) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byTag[tag]
	return p, ok
}

// Remove deletes the pending entry for tag, if any, and returns it.
func (t *PendingTable) Remove(tag uint32) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byTag[tag]
	if ok {
		delete(t.byTag, tag)
	}
	return p, ok
}

// RemoveBySender removes and returns every pending entry belonging to
// sender — used when that sender disconnects.
func (t *PendingTable) RemoveBySender(sender string) []*Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Pending
	for tag, p := range t.byTag {
		if p.Sender == sender {
			out = append(out, p)
			delete(t.byTag, tag)
		}
	}
	return out
}

// Len reports how many requests are currently pending.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byTag)
}

// All returns a snapshot of every pending entry, for shutdown draining.
func (t *PendingTable) All() []*Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Pending, 0, len(t.byTag))
	for _, p := range t.byTag {
		out = append(out, p)
	}
	return out
}
