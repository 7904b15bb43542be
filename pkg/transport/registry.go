package transport

import (
	"sort"
	"sync"
)

// registry keeps at most one canonical session per peer, the way the
// original multi-transport session manager deduplicated concurrent
// links — simplified here to a single transport kind (CURVE-sealed TCP),
// so there is no cross-kind ranking left to do: a reconnect simply
// replaces the prior session for that peer.
type registry struct {
	mu    sync.RWMutex
	peers map[PeerID]*session
}

func newRegistry() *registry { return &registry{peers: make(map[PeerID]*session)} }

// put installs s as the canonical session for peer and returns whatever
// session it replaces (if any); closing the replaced session is left to
// the caller.
func (r *registry) put(peer PeerID, s *session) (replaced *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced = r.peers[peer]
	r.peers[peer] = s
	return replaced
}

func (r *registry) get(peer PeerID) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.peers[peer]
	return s, ok
}

func (r *registry) remove(peer PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peer)
}

func (r *registry) list() []PeerID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerID, 0, len(r.peers))
	for id := range r.peers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.peers {
		_ = s.Close()
	}
	r.peers = make(map[PeerID]*session)
}
