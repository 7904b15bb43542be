package overlay

import (
	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/transport"
)

// transportSender adapts a transport.BindSocket/DialSocket pair to the
// Sender interface. Either socket may be nil (root has no parent, a leaf
// has no children).
type transportSender struct {
	bind *transport.BindSocket
	dial *transport.DialSocket
}

// NewTransportSender builds the Sender implementation used outside of
// tests, wrapping the broker's real bind and dial sockets.
func NewTransportSender(bind *transport.BindSocket, dial *transport.DialSocket) Sender {
	return &transportSender{bind: bind, dial: dial}
}

func (s *transportSender) HasDownstream() bool { return s.bind != nil }
func (s *transportSender) HasUpstream() bool   { return s.dial != nil }

func (s *transportSender) SendDownstream(peerUUID string, msg *message.Message) error {
	if s.bind == nil {
		return transport.HostUnreachable(transport.PeerID(peerUUID))
	}
	return s.bind.Send(transport.PeerID(peerUUID), msg)
}

func (s *transportSender) SendUpstream(msg *message.Message) error {
	if s.dial == nil {
		return transport.HostUnreachable("parent")
	}
	return s.dial.Send(msg)
}
