package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m, err := New(TypeRequest)
	require.NoError(t, err)
	m.SetUserid(42)
	m.SetRolemask(RoleOwner)
	require.NoError(t, m.SetNodeid(7))
	require.NoError(t, m.SetMatchtag(99))
	m.SetTopic("kvs.ll")
	require.NoError(t, m.SetPayloadBytes([]byte(`{"key":"x"}`)))
	m.SetRouteStackEnabled(true)
	require.NoError(t, m.PushRoute(RouteRank(3)))
	require.NoError(t, m.PushRoute(RouteRank(1)))

	encoded, err := m.Encode()
	require.NoError(t, err)

	size, err := m.EncodeSize()
	require.NoError(t, err)
	require.Equal(t, len(encoded), size)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.Equal(t, m.Type(), decoded.Type())
	require.Equal(t, m.Userid(), decoded.Userid())
	require.Equal(t, m.Rolemask(), decoded.Rolemask())

	nodeid, err := decoded.Nodeid()
	require.NoError(t, err)
	require.Equal(t, uint32(7), nodeid)

	tag, err := decoded.Matchtag()
	require.NoError(t, err)
	require.Equal(t, uint32(99), tag)

	topic, ok := decoded.Topic()
	require.True(t, ok)
	require.Equal(t, "kvs.ll", topic)

	payload, ok := decoded.Payload()
	require.True(t, ok)
	require.Equal(t, `{"key":"x"}`, string(payload))

	require.Equal(t, []string{"3", "1"}, decoded.Routes())
}

func TestRouteStackFirstLastOrder(t *testing.T) {
	m, err := New(TypeRequest)
	require.NoError(t, err)
	m.SetRouteStackEnabled(true)
	require.NoError(t, m.PushRoute("5"))
	require.NoError(t, m.PushRoute("2"))
	require.NoError(t, m.PushRoute("0"))

	first, err := m.FirstRoute()
	require.NoError(t, err)
	require.Equal(t, "5", first)

	last, err := m.LastRoute()
	require.NoError(t, err)
	require.Equal(t, "0", last)

	require.Equal(t, 3, m.RouteCount())

	popped, err := m.PopRoute()
	require.NoError(t, err)
	require.Equal(t, "0", popped)
	require.Equal(t, 2, m.RouteCount())
}

func TestRouteStackDisabledByDefault(t *testing.T) {
	m, err := New(TypeEvent)
	require.NoError(t, err)
	require.False(t, m.RouteStackEnabled())

	err = m.PushRoute("1")
	require.ErrorIs(t, err, errRouteStackDisabled)
}

func TestPopEmptyRouteStack(t *testing.T) {
	m, err := New(TypeRequest)
	require.NoError(t, err)
	m.SetRouteStackEnabled(true)

	_, err = m.PopRoute()
	require.ErrorIs(t, err, errEmptyRouteStack)
}

func TestStreamingNoResponseMutuallyExclusive(t *testing.T) {
	m, err := New(TypeRequest)
	require.NoError(t, err)
	require.NoError(t, m.SetFlag(FlagStreaming, true))
	err = m.SetFlag(FlagNoResponse, true)
	require.Error(t, err)
	require.True(t, m.HasFlag(FlagStreaming))
	require.False(t, m.HasFlag(FlagNoResponse))
}

func TestWrongTypeAccessorsReject(t *testing.T) {
	m, err := New(TypeEvent)
	require.NoError(t, err)
	_, err = m.Nodeid()
	require.Error(t, err)
	_, err = m.Matchtag()
	require.Error(t, err)
	_, _, err = m.KeepaliveFields()
	require.Error(t, err)

	require.NoError(t, m.SetSequence(12))
	seq, err := m.Sequence()
	require.NoError(t, err)
	require.Equal(t, uint32(12), seq)
}

func TestEmptyTopicClearsFlag(t *testing.T) {
	m, err := New(TypeEvent)
	require.NoError(t, err)
	m.SetTopic("a.b.c")
	require.True(t, m.HasFlag(FlagTopic))
	m.SetTopic("")
	require.False(t, m.HasFlag(FlagTopic))
	_, ok := m.Topic()
	require.False(t, ok)
}

func TestZeroLengthPayloadClearsFlag(t *testing.T) {
	m, err := New(TypeEvent)
	require.NoError(t, err)
	require.NoError(t, m.SetPayloadBytes([]byte("x")))
	require.True(t, m.HasFlag(FlagPayload))
	require.NoError(t, m.SetPayloadBytes(nil))
	require.False(t, m.HasFlag(FlagPayload))
}

func TestCopyIsIndependent(t *testing.T) {
	m, err := New(TypeRequest)
	require.NoError(t, err)
	m.SetRouteStackEnabled(true)
	require.NoError(t, m.PushRoute("1"))
	require.NoError(t, m.SetPayloadBytes([]byte("orig")))

	cp := m.Copy(true)
	require.NoError(t, cp.PushRoute("2"))
	require.NoError(t, cp.SetPayloadBytes([]byte("changed")))

	require.Equal(t, 1, m.RouteCount())
	pl, _ := m.Payload()
	require.Equal(t, "orig", string(pl))
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	m, err := New(TypeKeepalive)
	require.NoError(t, err)
	encoded, err := m.Encode()
	require.NoError(t, err)
	corrupt := append([]byte(nil), encoded...)
	// proto frame's magic byte is the 2nd byte on the wire: 1 length byte
	// then magic, since the keepalive-with-no-flags message is a single
	// 20-byte frame.
	corrupt[1] ^= 0xff
	_, err = Decode(corrupt)
	require.Error(t, err)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	m, err := New(TypeResponse)
	require.NoError(t, err)
	require.NoError(t, m.SetErrnum(0))
	encoded, err := m.Encode()
	require.NoError(t, err)
	_, err = Decode(encoded[:len(encoded)-3])
	require.Error(t, err)
}
