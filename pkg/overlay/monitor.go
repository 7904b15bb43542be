package overlay

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/dispatch"
	"github.com/flux-framework/flux-go/pkg/message"
)

// childView is one entry in an overlay.monitor payload.
type childView struct {
	Rank      uint32 `json:"rank"`
	Connected bool   `json:"connected"`
	Idle      bool   `json:"idle"`
	Reason    string `json:"reason,omitempty"`
}

type monitorPayload struct {
	Children []childView `json:"children"`
}

type monitorDelta struct {
	childView
}

// monitorSub is one subscriber to the streaming overlay.monitor feed.
// handle is a process-local operational id, logged alongside the
// matchtag so a subscription's lifetime can be traced without exposing
// the wire-level matchtag as a log correlation key.
type monitorSub struct {
	sender   string
	matchtag uint32
	handle   uuid.UUID
}

type monitorState struct {
	mu   sync.Mutex
	subs []*monitorSub
}

func newMonitorState() *monitorState { return &monitorState{} }

func (o *Overlay) registerMonitorHandlers() {
	if o.dispatch == nil {
		return
	}
	o.dispatch.Register(dispatch.MaskFor(message.TypeRequest), "overlay.monitor", message.RoleAll, o.handleMonitorRequest)
	o.dispatch.Register(dispatch.MaskFor(message.TypeRequest), "overlay.pause", message.RoleOwner, o.handlePauseRequest)
	o.dispatch.Register(dispatch.MaskFor(message.TypeRequest), "overlay.monitor-cancel", message.RoleAll, o.handleMonitorCancelRequest)
	o.dispatch.Register(dispatch.MaskFor(message.TypeRequest), "overlay.stats.get", message.RoleAll, o.handleStatsRequest)
}

// statsPayload reports overlay-internal bookkeeping for introspection and
// testing, e.g. confirming monitor subscriptions are cleaned up on disconnect.
type statsPayload struct {
	MonitorSubscriptions int `json:"monitor_subscriptions"`
}

func (o *Overlay) handleStatsRequest(sender string, req *message.Message) {
	body, err := json.Marshal(statsPayload{MonitorSubscriptions: o.monitorSubCount()})
	if err != nil {
		o.sendErrorResponse(sender, req, err)
		return
	}
	o.sendOKResponse(sender, req, body, false)
}

func (o *Overlay) handleMonitorCancelRequest(sender string, req *message.Message) {
	tag, err := req.Matchtag()
	if err == nil {
		o.CancelMonitor(tag)
	}
	o.sendOKResponse(sender, req, nil, false)
}

func (o *Overlay) snapshotChildren() []childView {
	peers := o.Peers()
	sort.Slice(peers, func(i, j int) bool { return peers[i].Rank < peers[j].Rank })
	out := make([]childView, 0, len(peers))
	for _, ps := range peers {
		out = append(out, childView{Rank: ps.Rank, Connected: ps.Connected, Idle: ps.Idle})
	}
	return out
}

func (o *Overlay) handleMonitorRequest(sender string, req *message.Message) {
	if len(o.Peers()) == 0 {
		o.sendErrorResponse(sender, req, &message.NoDataError{Key: "overlay.monitor"})
		return
	}
	payload := monitorPayload{Children: o.snapshotChildren()}
	body, err := json.Marshal(payload)
	if err != nil {
		o.sendErrorResponse(sender, req, err)
		return
	}
	if !req.HasFlag(message.FlagStreaming) {
		o.sendOKResponse(sender, req, body, false)
		return
	}
	tag, _ := req.Matchtag()
	sub := &monitorSub{sender: sender, matchtag: tag, handle: uuid.New()}
	o.monitor.mu.Lock()
	o.monitor.subs = append(o.monitor.subs, sub)
	o.monitor.mu.Unlock()
	o.log.Debug("overlay.monitor subscription opened", zap.String("handle", sub.handle.String()), zap.String("sender", sender))
	o.sendOKResponse(sender, req, body, true)
}

// monitorNotify pushes an incremental update to every streaming overlay.monitor
// subscriber. Called whenever a direct child's connected/idle state
// changes.
func (o *Overlay) monitorNotify(rank uint32, connected, idle bool, reason string) {
	o.monitor.mu.Lock()
	subs := append([]*monitorSub(nil), o.monitor.subs...)
	o.monitor.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	delta := monitorDelta{childView{Rank: rank, Connected: connected, Idle: idle, Reason: reason}}
	body, err := json.Marshal(delta)
	if err != nil {
		return
	}
	for _, s := range subs {
		resp, rerr := message.New(message.TypeResponse)
		if rerr != nil {
			continue
		}
		_ = resp.SetMatchtag(s.matchtag)
		_ = resp.SetErrnum(0)
		if err := resp.SetPayloadBytes(body); err != nil {
			continue
		}
		if err := resp.SetFlag(message.FlagStreaming, true); err != nil {
			continue
		}
		if err := o.deliverResponseTo(s.sender, resp); err != nil {
			o.log.Warn("monitor notify delivery failed", zap.Error(err))
		}
	}
}

// CancelMonitor removes the streaming overlay.monitor subscription with the
// given matchtag, for an explicit overlay.monitor-cancel. Disconnect
// cleanup goes through RemoveSubscriptionsFor instead.
func (o *Overlay) CancelMonitor(matchtag uint32) {
	o.monitor.mu.Lock()
	defer o.monitor.mu.Unlock()
	for i, s := range o.monitor.subs {
		if s.matchtag == matchtag {
			o.monitor.subs = append(o.monitor.subs[:i], o.monitor.subs[i+1:]...)
			return
		}
	}
}

// RemoveSubscriptionsFor drops every monitor subscription owned by sender,
// invoked on that sender's disconnect.
func (o *Overlay) RemoveSubscriptionsFor(sender string) {
	o.monitor.mu.Lock()
	defer o.monitor.mu.Unlock()
	kept := o.monitor.subs[:0]
	for _, s := range o.monitor.subs {
		if s.sender != sender {
			kept = append(kept, s)
		}
	}
	o.monitor.subs = kept
}

func (o *Overlay) monitorSubCount() int {
	o.monitor.mu.Lock()
	defer o.monitor.mu.Unlock()
	return len(o.monitor.subs)
}

// deliverResponseTo sends a response to sender: through localReply when
// that hook is set (tests set it), otherwise through the ordinary overlay
// routing via Send.
func (o *Overlay) deliverResponseTo(sender string, resp *message.Message) error {
	if o.localReply != nil {
		return o.localReply(sender, resp)
	}
	return o.Send(resp, WhereAny)
}
