package overlay

import (
	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
)

// OnChildMessage is the callback a transport.BindSocket should invoke for
// every decoded message from a direct child.
func (o *Overlay) OnChildMessage(peerUUID string, msg *message.Message) {
	o.r.Dispatch(func() { o.HandleInbound(false, peerUUID, msg) })
}

// OnChildError is the callback a transport.BindSocket should invoke when a
// child connection is lost, so pending monitor subscriptions and
// outstanding requests from that peer are cleaned up.
func (o *Overlay) OnChildError(peerUUID string, err error) {
	o.r.Dispatch(func() {
		rank, perr := parseRank(peerUUID)
		if perr == nil {
			o.markDisconnected(rank, "connection closed")
		}
		o.RemoveSubscriptionsFor(peerUUID)
		for _, p := range o.pending.RemoveBySender(peerUUID) {
			if mtErr := o.matchtags.Free(p.Matchtag); mtErr != nil {
				o.log.Warn("double free while evicting disconnected sender", zap.Error(mtErr))
			}
		}
	})
}

// OnParentMessage is the callback a transport.DialSocket should invoke for
// every decoded message from the parent.
func (o *Overlay) OnParentMessage(msg *message.Message) {
	o.r.Dispatch(func() { o.HandleInbound(true, "", msg) })
}
