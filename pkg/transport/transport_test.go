package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/reactor"
	"github.com/flux-framework/flux-go/pkg/security"
)

func TestBindDialRoundTrip(t *testing.T) {
	store := security.NewAuthStore()
	auth, err := security.Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	parentCert, err := security.Generate("parent")
	require.NoError(t, err)
	childCert, err := security.Generate("child")
	require.NoError(t, err)
	store.Authorize("child", childCert.Public)

	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	received := make(chan Envelope, 1)
	bind := NewBindSocket(r, parentCert, auth, nil, func(e Envelope) { received <- e }, nil)
	require.NoError(t, bind.Listen("127.0.0.1:0"))
	defer bind.Close()

	dialRecv := make(chan *message.Message, 1)
	dial := NewDialSocket(r, childCert, 1, nil, func(m *message.Message) { dialRecv <- m }, nil)
	require.NoError(t, dial.Dial(bind.Addr().String(), parentCert.Public))
	defer dial.Close()

	// give the bind side a moment to register the identity frame
	time.Sleep(50 * time.Millisecond)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	require.NoError(t, req.SetNodeid(0))
	require.NoError(t, req.SetMatchtag(1))
	req.SetTopic("overlay.monitor")

	require.NoError(t, dial.Send(req))

	select {
	case env := <-received:
		require.Equal(t, PeerID("1"), env.Peer)
		topic, ok := env.Msg.Topic()
		require.True(t, ok)
		require.Equal(t, "overlay.monitor", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("bind socket never received the message")
	}

	resp, err := message.New(message.TypeResponse)
	require.NoError(t, err)
	require.NoError(t, resp.SetMatchtag(1))
	require.NoError(t, bind.Send(PeerID("1"), resp))

	select {
	case m := <-dialRecv:
		tag, err := m.Matchtag()
		require.NoError(t, err)
		require.Equal(t, uint32(1), tag)
	case <-time.After(2 * time.Second):
		t.Fatal("dial socket never received the response")
	}
}

func TestBindSendToUnknownPeerIsHostUnreachable(t *testing.T) {
	store := security.NewAuthStore()
	auth, err := security.Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	cert, err := security.Generate("parent")
	require.NoError(t, err)

	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	bind := NewBindSocket(r, cert, auth, nil, func(Envelope) {}, nil)
	require.NoError(t, bind.Listen("127.0.0.1:0"))
	defer bind.Close()

	m, err := message.New(message.TypeKeepalive)
	require.NoError(t, err)
	err = bind.Send(PeerID("99"), m)
	require.Error(t, err)
}

func TestDialRejectedByUnauthorizedPeer(t *testing.T) {
	store := security.NewAuthStore()
	auth, err := security.Enable(store)
	require.NoError(t, err)
	defer auth.Disable()

	parentCert, err := security.Generate("parent")
	require.NoError(t, err)
	childCert, err := security.Generate("child")
	require.NoError(t, err)
	// intentionally not authorized

	r := reactor.New(nil)
	go r.Run()
	defer r.Stop()

	bind := NewBindSocket(r, parentCert, auth, nil, func(Envelope) {}, nil)
	require.NoError(t, bind.Listen("127.0.0.1:0"))
	defer bind.Close()

	dial := NewDialSocket(r, childCert, 1, nil, func(*message.Message) {}, nil)
	err = dial.Dial(bind.Addr().String(), parentCert.Public)
	require.Error(t, err)
}
