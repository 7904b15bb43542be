package overlay

import (
	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
)

// HandleInbound processes one message arriving on either socket.
// fromParent is true when msg arrived on the dial (dealer) socket, false
// when it arrived on the bind (router) socket from peerUUID (a direct
// child's synthesized rank identifier).
func (o *Overlay) HandleInbound(fromParent bool, peerUUID string, msg *message.Message) {
	if !fromParent {
		if rank, err := parseRank(peerUUID); err == nil {
			o.markConnected(rank)
		}
	}

	switch msg.Type() {
	case message.TypeKeepalive:
		o.handleKeepalive(fromParent, peerUUID, msg)
	case message.TypeRequest:
		o.handleRequest(fromParent, peerUUID, msg)
	case message.TypeResponse:
		o.handleResponse(fromParent, msg)
	case message.TypeEvent:
		o.handleEvent(fromParent, msg)
	}
}

func (o *Overlay) handleKeepalive(fromParent bool, peerUUID string, msg *message.Message) {
	_, status, err := msg.KeepaliveFields()
	if err != nil {
		return
	}
	if fromParent {
		return
	}
	rank, perr := parseRank(peerUUID)
	if perr != nil {
		return
	}
	switch status {
	case message.KeepaliveDisconnect:
		o.markDisconnected(rank, "peer reported disconnect")
	case message.KeepaliveTestPause:
		o.mu.Lock()
		if ps, ok := o.peers[rank]; ok {
			ps.TestPause = true
		}
		o.mu.Unlock()
		o.markIdle(rank, "idle for test-pause")
	default:
		o.touch(rank)
	}
}

func (o *Overlay) handleRequest(fromParent bool, peerUUID string, msg *message.Message) {
	nodeid, err := msg.Nodeid()
	if err != nil {
		return
	}
	if nodeid == o.cfg.LocalRank {
		o.deliverLocal(peerUUID, msg)
		return
	}
	if err := o.Send(msg, WhereAny); err != nil {
		o.log.Warn("failed to route forwarded request", zap.Error(err))
	}
}

func (o *Overlay) handleResponse(fromParent bool, msg *message.Message) {
	if !fromParent && msg.RouteStackEnabled() {
		if _, err := msg.PopRoute(); err != nil {
			o.log.Warn("response missing expected route frame", zap.Error(err))
			return
		}
	}
	if msg.RouteCount() > 0 {
		if err := o.Send(msg, WhereUpstream); err != nil {
			o.log.Warn("failed to forward response upstream", zap.Error(err))
		}
		return
	}
	o.deliverLocalResponse(msg)
}

func (o *Overlay) handleEvent(fromParent bool, msg *message.Message) {
	if fromParent {
		msg.SetRouteStackEnabled(false)
		o.deliverLocal("", msg)
		if err := o.multicast(msg); err != nil {
			o.log.Warn("failed to re-multicast event", zap.Error(err))
		}
		return
	}
	if err := o.Send(msg, WhereUpstream); err != nil {
		o.log.Warn("failed to forward event upstream", zap.Error(err))
	}
}

// deliverLocal hands msg to the local dispatch registry (requests and
// root-originated events).
func (o *Overlay) deliverLocal(sender string, msg *message.Message) {
	if o.dispatch == nil {
		return
	}
	if err := o.dispatch.Dispatch(sender, msg); err != nil {
		if !msg.HasFlag(message.FlagNoResponse) {
			o.sendErrorResponse(sender, msg, err)
		}
	}
}

// deliverLocalResponse correlates a response that has arrived at its
// final destination against this rank's outstanding request table.
func (o *Overlay) deliverLocalResponse(msg *message.Message) {
	tag, err := msg.Matchtag()
	if err != nil {
		return
	}
	p, ok := o.pending.Get(tag)
	if !ok {
		return
	}
	errnum, _ := msg.Errnum()
	terminal := errnum != 0 || !p.Streaming || !msg.HasFlag(message.FlagStreaming)
	if terminal {
		o.pending.Remove(tag)
		if mtErr := o.matchtags.Free(tag); mtErr != nil {
			o.log.Warn("double free on matchtag", zap.Uint32("tag", tag), zap.Error(mtErr))
		}
	}
	if p.OnReply != nil {
		p.OnReply(msg, terminal)
	}
}
