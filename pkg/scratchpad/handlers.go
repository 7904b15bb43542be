package scratchpad

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/dispatch"
	"github.com/flux-framework/flux-go/pkg/message"
)

const dotKey = "."

// Replier sends a response back to a request's originating sender,
// retracing the request's route. pkg/overlay's Overlay satisfies this.
type Replier interface {
	Reply(sender string, req *message.Message, body []byte, errnum uint32, streaming bool)
}

type llResponse struct {
	Version uint32          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type dotResponse struct {
	Version uint32                     `json:"version"`
	Data    map[string]json.RawMessage `json:"data"`
}

type keyRequest struct {
	Key string `json:"key"`
}

type scRequest struct {
	Key     string          `json:"key"`
	Version uint32          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type scRetryRequest struct {
	Matchtag uint32          `json:"matchtag"`
	Version  uint32          `json:"version"`
	Data     json.RawMessage `json:"data"`
}

// pendingStream is one open sc-stream awaiting either a terminal store or
// a retry, keyed by the original request's matchtag.
type pendingStream struct {
	key    string
	req    *message.Message
	sender string
}

// Scratchpad wires the ll/sc/sc-stream/sc-retry/delete topics onto a
// dispatch.Registry and answers them through a Replier (the broker's own
// overlay, in production).
type Scratchpad struct {
	store *Store
	reply Replier
	log   *zap.Logger

	mu      sync.Mutex
	pending map[uint32]*pendingStream
}

// New creates a Scratchpad bound to store and registers its handlers on
// disp.
func New(disp *dispatch.Registry, store *Store, reply Replier, log *zap.Logger) *Scratchpad {
	if log == nil {
		log = zap.NewNop()
	}
	sp := &Scratchpad{store: store, reply: reply, log: log, pending: make(map[uint32]*pendingStream)}
	disp.Register(dispatch.MaskFor(message.TypeRequest), "scratchpad.ll", message.RoleAll, sp.handleLL)
	disp.Register(dispatch.MaskFor(message.TypeRequest), "scratchpad.sc", message.RoleUser, sp.handleSC)
	disp.Register(dispatch.MaskFor(message.TypeRequest), "scratchpad.sc-stream", message.RoleUser, sp.handleSCStream)
	disp.Register(dispatch.MaskFor(message.TypeRequest), "scratchpad.sc-retry", message.RoleUser, sp.handleSCRetry)
	disp.Register(dispatch.MaskFor(message.TypeRequest), "scratchpad.delete", message.RoleOwner, sp.handleDelete)
	return sp
}

func (sp *Scratchpad) handleLL(sender string, req *message.Message) {
	var in keyRequest
	if !sp.unmarshal(sender, req, &in) {
		return
	}
	if in.Key == dotKey {
		body, err := json.Marshal(dotResponse{Version: sp.store.GlobalVersion(), Data: sp.store.Snapshot()})
		if err != nil {
			sp.reply.Reply(sender, req, nil, uint32(message.CodeProtocol), false)
			return
		}
		sp.reply.Reply(sender, req, body, 0, false)
		return
	}
	ver, data := sp.store.Load(in.Key)
	body, err := json.Marshal(llResponse{Version: ver, Data: data})
	if err != nil {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeProtocol), false)
		return
	}
	sp.reply.Reply(sender, req, body, 0, false)
}

func (sp *Scratchpad) handleSC(sender string, req *message.Message) {
	var in scRequest
	if !sp.unmarshal(sender, req, &in) {
		return
	}
	if in.Key == dotKey {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeReadOnly), false)
		return
	}
	if _, ok := sp.store.CompareAndStore(in.Key, in.Version, in.Data); !ok {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeDeadlock), false)
		return
	}
	sp.reply.Reply(sender, req, nil, 0, false)
}

func (sp *Scratchpad) handleSCStream(sender string, req *message.Message) {
	var in scRequest
	if !sp.unmarshal(sender, req, &in) {
		return
	}
	if in.Key == dotKey {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeReadOnly), false)
		return
	}
	if _, ok := sp.store.CompareAndStore(in.Key, in.Version, in.Data); ok {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeNoData), true)
		return
	}

	tag, err := req.Matchtag()
	if err != nil {
		return
	}
	sp.mu.Lock()
	sp.pending[tag] = &pendingStream{key: in.Key, req: req.Copy(false), sender: sender}
	sp.mu.Unlock()

	ver, data := sp.store.Load(in.Key)
	body, merr := json.Marshal(llResponse{Version: ver, Data: data})
	if merr != nil {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeProtocol), true)
		return
	}
	sp.reply.Reply(sender, req, body, 0, true)
}

func (sp *Scratchpad) handleSCRetry(sender string, req *message.Message) {
	var in scRetryRequest
	if !sp.unmarshal(sender, req, &in) {
		return
	}
	sp.mu.Lock()
	ps, ok := sp.pending[in.Matchtag]
	sp.mu.Unlock()
	if !ok || ps.sender != sender {
		sp.log.Warn("sc-retry for unknown or mismatched pending stream", zap.Uint32("matchtag", in.Matchtag))
		return
	}

	if _, ok := sp.store.CompareAndStore(ps.key, in.Version, in.Data); ok {
		sp.mu.Lock()
		delete(sp.pending, in.Matchtag)
		sp.mu.Unlock()
		sp.reply.Reply(ps.sender, ps.req, nil, uint32(message.CodeNoData), true)
		return
	}

	ver, data := sp.store.Load(ps.key)
	body, err := json.Marshal(llResponse{Version: ver, Data: data})
	if err != nil {
		return
	}
	sp.reply.Reply(ps.sender, ps.req, body, 0, true)
}

func (sp *Scratchpad) handleDelete(sender string, req *message.Message) {
	var in keyRequest
	if !sp.unmarshal(sender, req, &in) {
		return
	}
	if in.Key == dotKey {
		return
	}
	sp.store.Delete(in.Key)
}

func (sp *Scratchpad) unmarshal(sender string, req *message.Message, v any) bool {
	payload, ok := req.Payload()
	if ok {
		if err := json.Unmarshal(payload, v); err == nil {
			return true
		}
	}
	if !req.HasFlag(message.FlagNoResponse) {
		sp.reply.Reply(sender, req, nil, uint32(message.CodeProtocol), false)
	}
	return false
}
