package transport

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/reactor"
	"github.com/flux-framework/flux-go/pkg/security"
)

// DialSocket is the dealer-role endpoint: one per non-root rank,
// connected to its parent. A read from a dealer socket does not gain a
// routing hop the way a router socket's read does — there is exactly one
// peer on the other end.
type DialSocket struct {
	log  *zap.Logger
	r    *reactor.Reactor
	cert *security.Certificate

	localRank uint32
	sess      *session

	onRecv  func(*message.Message)
	onError func(err error)
}

// NewDialSocket creates a dealer-role socket identifying itself to its
// parent as localRank.
func NewDialSocket(r *reactor.Reactor, cert *security.Certificate, localRank uint32, log *zap.Logger, onRecv func(*message.Message), onError func(err error)) *DialSocket {
	if log == nil {
		log = zap.NewNop()
	}
	return &DialSocket{log: log, r: r, cert: cert, localRank: localRank, onRecv: onRecv, onError: onError}
}

// Dial connects to the parent at addr, authenticated against parentPub.
func (d *DialSocket) Dial(addr string, parentPub [security.KeySize]byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	shared, err := dialOutbound(conn, d.cert, parentPub)
	if err != nil {
		_ = conn.Close()
		return err
	}
	sess := newSession(PeerID(message.RouteRank(0)), conn, shared)
	if err := sess.send([]byte(fmt.Sprintf("%d", d.localRank))); err != nil {
		_ = conn.Close()
		return err
	}
	d.sess = sess
	go d.readLoop()
	return nil
}

func (d *DialSocket) readLoop() {
	for {
		raw, err := d.sess.recv()
		if err != nil {
			if d.onError != nil {
				d.r.Dispatch(func() { d.onError(err) })
			}
			return
		}
		msg, err := message.Decode(raw)
		if err != nil {
			d.log.Warn("dropping malformed frame from parent", zap.Error(err))
			continue
		}
		d.r.Dispatch(func() {
			if d.onRecv != nil {
				d.onRecv(msg)
			}
		})
	}
}

// Send delivers msg to the parent.
func (d *DialSocket) Send(msg *message.Message) error {
	if d.sess == nil {
		return HostUnreachable(PeerID("parent"))
	}
	encoded, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := d.sess.send(encoded); err != nil {
		return HostUnreachable(PeerID("parent"))
	}
	return nil
}

// Close closes the connection to the parent.
func (d *DialSocket) Close() error {
	if d.sess == nil {
		return nil
	}
	return d.sess.Close()
}
