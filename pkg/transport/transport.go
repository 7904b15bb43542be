// Package transport implements the broker's authenticated bidirectional
// channels: a bind socket in the router role (enabled iff the broker has
// children) and, for every non-root rank, a dial socket connected to its
// parent in the dealer role. Every session is CURVE-sealed and gated by a
// shared in-process ZAP-equivalent responder.
package transport

import (
	"net"
	"time"

	"github.com/flux-framework/flux-go/pkg/message"
)

// PeerID is the synthetic rank-derived identifier used both as a route
// stack element and as a transport-level session key ("<rank>").
type PeerID string

// Envelope pairs a decoded message with the peer it arrived from — the
// router-role socket's "routing hop", analogous to a ZeroMQ ROUTER
// socket's prepended identity frame.
type Envelope struct {
	Peer PeerID
	Msg  *message.Message
}

// Quality is a liveness/perf snapshot of one session, kept for parity with
// the overlay's peer table (last-seen tracking).
type Quality struct {
	EstablishedAt time.Time
	LastSeen      time.Time
}

// HostUnreachable constructs the typed error a mandatory-routing send to
// an unknown peer returns.
func HostUnreachable(peer PeerID) error {
	return &message.HostUnreachableError{Identity: string(peer)}
}

func localAddrOf(c net.Conn) net.Addr {
	if c == nil {
		return nil
	}
	return c.LocalAddr()
}

func remoteAddrOf(c net.Conn) net.Addr {
	if c == nil {
		return nil
	}
	return c.RemoteAddr()
}
