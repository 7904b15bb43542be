package overlay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-go/pkg/dispatch"
	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/reactor"
	"github.com/flux-framework/flux-go/pkg/topology"
)

// fakeSender records outbound traffic instead of touching a real socket,
// so the routing decision logic can be exercised in isolation.
type fakeSender struct {
	mu         sync.Mutex
	hasUp      bool
	hasDown    bool
	downstream []sentMsg
	upstream   []*message.Message
	failPeers  map[string]bool
}

type sentMsg struct {
	peer string
	msg  *message.Message
}

func newFakeSender(hasUp, hasDown bool) *fakeSender {
	return &fakeSender{hasUp: hasUp, hasDown: hasDown, failPeers: map[string]bool{}}
}

func (f *fakeSender) HasDownstream() bool { return f.hasDown }
func (f *fakeSender) HasUpstream() bool   { return f.hasUp }

func (f *fakeSender) SendDownstream(peer string, msg *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPeers[peer] {
		return &message.HostUnreachableError{Identity: peer}
	}
	f.downstream = append(f.downstream, sentMsg{peer, msg})
	return nil
}

func (f *fakeSender) SendUpstream(msg *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upstream = append(f.upstream, msg)
	return nil
}

func newTestOverlay(t *testing.T, localRank uint32, sender *fakeSender) *Overlay {
	t.Helper()
	tree, err := topology.New(7, 2)
	require.NoError(t, err)
	r := reactor.New(nil)
	disp := dispatch.NewRegistry()
	o, err := New(r, tree, Config{LocalRank: localRank, Size: 7, Arity: 2}, sender, disp, nil)
	require.NoError(t, err)
	return o
}

func TestSendRequestRoutesToCorrectChild(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 0, sender)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	require.NoError(t, req.SetNodeid(6))

	require.NoError(t, o.Send(req, WhereAny))

	require.Len(t, sender.downstream, 1)
	require.Equal(t, "2", sender.downstream[0].peer)
	stack := sender.downstream[0].msg.Routes()
	require.Equal(t, []string{"0"}, stack)
}

func TestSendRequestIntermediateHopAccumulatesRoute(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 2, sender)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	require.NoError(t, req.SetNodeid(5))
	req.SetRouteStackEnabled(true)
	require.NoError(t, req.PushRoute("0"))

	require.NoError(t, o.Send(req, WhereAny))

	require.Len(t, sender.downstream, 1)
	require.Equal(t, "5", sender.downstream[0].peer)
	require.Equal(t, []string{"0", "2"}, sender.downstream[0].msg.Routes())
}

func TestSendRequestWithNoRouteGoesUpstream(t *testing.T) {
	sender := newFakeSender(true, false)
	o := newTestOverlay(t, 5, sender)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	require.NoError(t, req.SetNodeid(3))

	require.NoError(t, o.Send(req, WhereAny))
	require.Len(t, sender.upstream, 1)
}

func TestResponseUnwindsToOrigin(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 2, sender)

	resp, err := message.New(message.TypeResponse)
	require.NoError(t, err)
	resp.SetRouteStackEnabled(true)
	require.NoError(t, resp.PushRoute("0"))
	require.NoError(t, resp.PushRoute("2"))

	o.handleResponse(false, resp)

	require.Len(t, sender.upstream, 1)
	require.Equal(t, []string{"0"}, sender.upstream[0].Routes())
}

func TestResponseArrivingAtOriginIsDeliveredLocally(t *testing.T) {
	sender := newFakeSender(true, false)
	o := newTestOverlay(t, 0, sender)

	tag := o.matchtags.Allocate()
	var got *message.Message
	o.pending.Add(&dispatch.Pending{
		Matchtag: tag,
		OnReply:  func(v any, terminal bool) { got = v.(*message.Message) },
	})

	resp, err := message.New(message.TypeResponse)
	require.NoError(t, err)
	require.NoError(t, resp.SetMatchtag(tag))
	resp.SetRouteStackEnabled(true)
	require.NoError(t, resp.PushRoute("0"))

	o.handleResponse(false, resp)

	require.NotNil(t, got)
	require.Empty(t, sender.upstream)
}

func TestMonitorOnLeafReturnsNoData(t *testing.T) {
	sender := newFakeSender(true, false)
	o := newTestOverlay(t, 5, sender)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	req.SetTopic("overlay.monitor")
	require.NoError(t, req.SetMatchtag(7))
	req.SetRolemask(message.RoleUser)

	var reply *message.Message
	o.localReply = func(sender string, resp *message.Message) error {
		reply = resp
		return nil
	}

	o.handleMonitorRequest("client", req)

	require.NotNil(t, reply)
	errnum, _ := reply.Errnum()
	require.EqualValues(t, message.CodeNoData, errnum)
}

func TestMonitorOnInteriorNodeReturnsChildren(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 0, sender)
	o.markConnected(1)
	o.markConnected(2)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	req.SetTopic("overlay.monitor")
	require.NoError(t, req.SetMatchtag(9))

	var reply *message.Message
	o.localReply = func(sender string, resp *message.Message) error {
		reply = resp
		return nil
	}
	o.handleMonitorRequest("client", req)

	require.NotNil(t, reply)
	errnum, _ := reply.Errnum()
	require.Zero(t, errnum)
	body, ok := reply.Payload()
	require.True(t, ok)
	require.Contains(t, string(body), `"rank":1`)
	require.Contains(t, string(body), `"rank":2`)
}

func TestMonitorStreamingReceivesDeltaOnDisconnect(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 0, sender)
	o.markConnected(1)
	o.markConnected(2)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	req.SetTopic("overlay.monitor")
	require.NoError(t, req.SetFlag(message.FlagStreaming, true))
	require.NoError(t, req.SetMatchtag(11))

	var replies []*message.Message
	o.localReply = func(sender string, resp *message.Message) error {
		replies = append(replies, resp)
		return nil
	}
	o.handleMonitorRequest("client", req)
	require.Len(t, replies, 1)

	o.markDisconnected(1, "test")
	require.Len(t, replies, 2)
	body, ok := replies[1].Payload()
	require.True(t, ok)
	require.Contains(t, string(body), `"rank":1`)
	require.Contains(t, string(body), `"connected":false`)
}

func TestPauseRequestTogglesBacklog(t *testing.T) {
	sender := newFakeSender(true, false)
	o := newTestOverlay(t, 3, sender)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	req.SetTopic("overlay.pause")
	require.NoError(t, req.SetMatchtag(1))
	req.SetRolemask(message.RoleOwner)
	o.localReply = func(sender string, resp *message.Message) error { return nil }

	o.handlePauseRequest("owner", req)
	require.True(t, o.pause.paused)
	require.Len(t, sender.upstream, 1) // test-pause keepalive announce

	ev, err := message.New(message.TypeEvent)
	require.NoError(t, err)
	require.NoError(t, o.Send(ev, WhereUpstream))
	require.Len(t, sender.upstream, 1) // backlogged, not sent yet

	req2, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	req2.SetTopic("overlay.pause")
	require.NoError(t, req2.SetMatchtag(2))
	req2.SetRolemask(message.RoleOwner)
	o.handlePauseRequest("owner", req2)

	require.False(t, o.pause.paused)
	require.Len(t, sender.upstream, 2) // drained backlog entry arrives
}

func TestCancelMonitorRemovesSubscription(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 0, sender)
	o.markConnected(1)

	req, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	req.SetTopic("overlay.monitor")
	require.NoError(t, req.SetFlag(message.FlagStreaming, true))
	require.NoError(t, req.SetMatchtag(21))
	o.localReply = func(sender string, resp *message.Message) error { return nil }
	o.handleMonitorRequest("client", req)
	require.Equal(t, 1, o.monitorSubCount())

	o.CancelMonitor(21)
	require.Equal(t, 0, o.monitorSubCount())
}

func TestIdleSweepMarksStaleChildIdle(t *testing.T) {
	sender := newFakeSender(true, true)
	o := newTestOverlay(t, 0, sender)
	o.cfg.IdleMax = 0.01
	o.markConnected(1)
	o.peers[1].LastSeen = time.Now().Add(-time.Second)

	o.onSyncTick()

	var idle bool
	for _, p := range o.Peers() {
		if p.Rank == 1 {
			idle = p.Idle
		}
	}
	require.True(t, idle)
}
