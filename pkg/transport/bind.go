package transport

import (
	"net"

	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/reactor"
	"github.com/flux-framework/flux-go/pkg/security"
)

// BindSocket is the router-role endpoint: enabled iff the broker has
// children. It accepts CURVE-authenticated connections, learns each
// peer's rank identity on its first frame, and enforces mandatory
// routing — Send to an unrecognized peer fails immediately rather than
// queuing, so the overlay can treat that as a disconnect signal.
type BindSocket struct {
	log  *zap.Logger
	r    *reactor.Reactor
	cert *security.Certificate
	auth *security.Authenticator

	listener net.Listener
	sessions *registry

	onRecv  func(Envelope)
	onError func(peer PeerID, err error)
}

// NewBindSocket creates a router-role socket. onRecv is invoked on the
// reactor goroutine for every decoded inbound message; onError is invoked
// (also on the reactor goroutine) when a session's read loop ends.
func NewBindSocket(r *reactor.Reactor, cert *security.Certificate, auth *security.Authenticator, log *zap.Logger, onRecv func(Envelope), onError func(peer PeerID, err error)) *BindSocket {
	if log == nil {
		log = zap.NewNop()
	}
	return &BindSocket{
		log:      log,
		r:        r,
		cert:     cert,
		auth:     auth,
		sessions: newRegistry(),
		onRecv:   onRecv,
		onError:  onError,
	}
}

// Listen starts accepting connections on addr (a "host:port" TCP address).
func (b *BindSocket) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	b.listener = l
	go b.acceptLoop()
	return nil
}

// Addr returns the bound listen address.
func (b *BindSocket) Addr() net.Addr {
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

func (b *BindSocket) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		go b.handleConn(conn)
	}
}

func (b *BindSocket) handleConn(conn net.Conn) {
	clientPub, shared, err := acceptInbound(conn, b.cert, b.auth)
	if err != nil {
		b.log.Warn("inbound CURVE handshake failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		_ = conn.Close()
		return
	}
	_ = clientPub

	sess := newSession("", conn, shared)
	identFrame, err := sess.recv()
	if err != nil {
		_ = conn.Close()
		return
	}
	peer := PeerID(identFrame)
	sess.peer = peer

	if old := b.sessions.put(peer, sess); old != nil {
		_ = old.Close()
	}
	b.readLoop(peer, sess)
}

func (b *BindSocket) readLoop(peer PeerID, sess *session) {
	for {
		raw, err := sess.recv()
		if err != nil {
			b.sessions.remove(peer)
			if b.onError != nil {
				b.r.Dispatch(func() { b.onError(peer, err) })
			}
			return
		}
		msg, err := message.Decode(raw)
		if err != nil {
			b.log.Warn("dropping malformed inbound frame", zap.String("peer", string(peer)), zap.Error(err))
			continue
		}
		b.r.Dispatch(func() {
			if b.onRecv != nil {
				b.onRecv(Envelope{Peer: peer, Msg: msg})
			}
		})
	}
}

// Send delivers msg to peer. Mandatory routing: if peer has no live
// session, this fails immediately with a host-unreachable error rather
// than queuing, which is how the overlay detects child disconnects.
func (b *BindSocket) Send(peer PeerID, msg *message.Message) error {
	sess, ok := b.sessions.get(peer)
	if !ok {
		return HostUnreachable(peer)
	}
	encoded, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := sess.send(encoded); err != nil {
		b.sessions.remove(peer)
		return HostUnreachable(peer)
	}
	return nil
}

// Peers lists the currently connected peer identities.
func (b *BindSocket) Peers() []PeerID { return b.sessions.list() }

// Close shuts down the listener and every active session.
func (b *BindSocket) Close() error {
	b.sessions.closeAll()
	if b.listener != nil {
		return b.listener.Close()
	}
	return nil
}
