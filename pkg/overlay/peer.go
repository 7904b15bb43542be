package overlay

import (
	"time"

	"github.com/flux-framework/flux-go/pkg/message"
)

// markConnected transitions a peer from init or disconnected to connected.
// Per the invariant that a peer cannot go disconnected->connected without an
// intervening received message, this is the only path into the connected
// state. Any inbound activity also clears idle/test-pause, per the "marks
// not-idle when activity resumes" rule.
func (o *Overlay) markConnected(rank uint32) {
	o.mu.Lock()
	ps, ok := o.peers[rank]
	if !ok {
		ps = &PeerState{Rank: rank, UUID: message.RouteRank(rank)}
		o.peers[rank] = ps
	}
	wasConnected, wasIdle := ps.Connected, ps.Idle
	ps.Connected = true
	ps.Idle = false
	ps.TestPause = false
	ps.LastSeen = time.Now()
	o.mu.Unlock()
	switch {
	case wasIdle:
		o.monitorNotify(rank, true, false, "no longer idle")
	case !wasConnected:
		o.monitorNotify(rank, true, false, "connected")
	}
}

func (o *Overlay) markDisconnected(rank uint32, reason string) {
	o.mu.Lock()
	ps, ok := o.peers[rank]
	if !ok {
		o.mu.Unlock()
		return
	}
	wasConnected := ps.Connected
	ps.Connected = false
	ps.Idle = false
	o.mu.Unlock()
	if wasConnected {
		o.monitorNotify(rank, false, false, reason)
	}
}

// markIdle transitions a connected, non-idle peer to idle, notifying monitor
// subscribers with reason (expected by callers to read "idle for ...", per
// the overlay.monitor delta contract).
func (o *Overlay) markIdle(rank uint32, reason string) {
	o.mu.Lock()
	ps, ok := o.peers[rank]
	if !ok || !ps.Connected || ps.Idle {
		o.mu.Unlock()
		return
	}
	ps.Idle = true
	o.mu.Unlock()
	o.monitorNotify(rank, true, true, reason)
}

func (o *Overlay) touch(rank uint32) {
	o.mu.Lock()
	if ps, ok := o.peers[rank]; ok {
		ps.LastSeen = time.Now()
	}
	o.mu.Unlock()
}

// Peers returns a snapshot of the direct-child peer table, sorted by rank
// is left to the caller (monitor.go sorts for deterministic output).
func (o *Overlay) Peers() []PeerState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PeerState, 0, len(o.peers))
	for _, ps := range o.peers {
		out = append(out, *ps)
	}
	return out
}
