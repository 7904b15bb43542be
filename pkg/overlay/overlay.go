// Package overlay binds the message codec, topology, reactor, and
// transport packages into the routing engine: it decides, per message
// type and flag, whether a message travels upstream, downstream to a
// specific child, or is delivered to a local handler, and it tracks peer
// liveness via a periodic sync tick.
package overlay

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/dispatch"
	"github.com/flux-framework/flux-go/pkg/message"
	"github.com/flux-framework/flux-go/pkg/reactor"
	"github.com/flux-framework/flux-go/pkg/topology"
)

// Where selects the routing intent for Send.
type Where int

const (
	WhereAny Where = iota
	WhereUpstream
	WhereDownstream
)

// Sender abstracts the two transport sockets an overlay drives: a bind
// (router) socket reaching zero or more children, and a dial (dealer)
// socket reaching a single parent. Kept as an interface so the routing
// logic is testable without a real network.
type Sender interface {
	HasDownstream() bool
	HasUpstream() bool
	SendDownstream(peerUUID string, msg *message.Message) error
	SendUpstream(msg *message.Message) error
}

// Config describes one broker's position in the tree and its timing
// parameters.
type Config struct {
	LocalRank uint32
	Size      uint32
	Arity     uint32
	SyncMin   float64
	SyncMax   float64
	IdleMin   float64
	IdleMax   float64
}

// Overlay is the routing engine for one broker process.
type Overlay struct {
	log    *zap.Logger
	r      *reactor.Reactor
	tree   topology.Tree
	cfg    Config
	sender Sender

	dispatch  *dispatch.Registry
	matchtags *dispatch.MatchtagAllocator
	pending   *dispatch.PendingTable

	mu    sync.Mutex
	peers map[uint32]*PeerState

	lastUpstreamSend time.Time
	sync             *reactor.SyncTicker

	monitor *monitorState
	pause   *pauseState

	// localReply, if set, delivers a response to a directly-attached local
	// caller instead of routing it through the tree. Only the package's
	// tests set it.
	localReply func(sender string, resp *message.Message) error
}

// PeerState is one direct child's liveness record.
type PeerState struct {
	Rank      uint32
	UUID      string
	LastSeen  time.Time
	Connected bool
	Idle      bool
	TestPause bool
}

// New creates an Overlay. sender may be backed by real transport.BindSocket/
// DialSocket or a test double.
func New(r *reactor.Reactor, tree topology.Tree, cfg Config, sender Sender, disp *dispatch.Registry, log *zap.Logger) (*Overlay, error) {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Overlay{
		log:       log,
		r:         r,
		tree:      tree,
		cfg:       cfg,
		sender:    sender,
		dispatch:  disp,
		matchtags: dispatch.NewMatchtagAllocator(),
		pending:   dispatch.NewPendingTable(),
		peers:     make(map[uint32]*PeerState),
	}
	children, err := tree.Children(cfg.LocalRank)
	if err != nil {
		return nil, errors.Wrap(err, "enumerate children")
	}
	for _, c := range children {
		o.peers[c] = &PeerState{Rank: c, UUID: message.RouteRank(c)}
	}
	o.monitor = newMonitorState()
	o.pause = newPauseState()
	o.registerMonitorHandlers()
	o.startSyncTick()
	return o, nil
}

func localUUID(cfg Config) string   { return message.RouteRank(cfg.LocalRank) }
func parentUUID(cfg Config, tree topology.Tree) (string, bool) {
	p, ok, _ := tree.Parent(cfg.LocalRank)
	if !ok {
		return "", false
	}
	return message.RouteRank(p), true
}

func parseRank(uuid string) (uint32, error) {
	n, err := strconv.ParseUint(uuid, 10, 32)
	if err != nil {
		return 0, errors.Wrap(err, "parse route identifier")
	}
	return uint32(n), nil
}

// Send routes msg per §4.E. For requests/events that fan out to a copy
// per child, Send mutates and forwards copies, never the caller's value.
func (o *Overlay) Send(msg *message.Message, where Where) error {
	switch msg.Type() {
	case message.TypeRequest:
		return o.sendRequest(msg, where)
	case message.TypeResponse:
		return o.sendResponse(msg, where)
	case message.TypeEvent:
		return o.sendEvent(msg, where)
	case message.TypeKeepalive:
		return o.goUpstream(msg)
	default:
		return errors.New("unsupported message type for send")
	}
}

func (o *Overlay) sendRequest(msg *message.Message, where Where) error {
	nodeid, err := msg.Nodeid()
	if err != nil {
		return err
	}
	if where == WhereUpstream {
		return o.goUpstream(msg)
	}
	if where == WhereAny && msg.HasFlag(message.FlagUpstreamHint) && nodeid == o.cfg.LocalRank {
		return o.goUpstream(msg)
	}
	hop, ok, err := o.tree.ChildRoute(o.cfg.LocalRank, nodeid)
	if err != nil {
		return err
	}
	if !ok {
		if where == WhereDownstream {
			return errors.Errorf("no downstream route to rank %d", nodeid)
		}
		return o.goUpstream(msg)
	}
	cp := msg.Copy(false)
	if !cp.RouteStackEnabled() {
		cp.SetRouteStackEnabled(true)
	}
	if err := cp.PushRoute(localUUID(o.cfg)); err != nil {
		return err
	}
	return o.goDownstream(message.RouteRank(hop), cp)
}

func (o *Overlay) sendResponse(msg *message.Message, where Where) error {
	if where == WhereUpstream {
		return o.goUpstream(msg)
	}
	if where == WhereDownstream {
		childUUID, err := msg.PopRoute()
		if err != nil {
			return err
		}
		return o.goDownstream(childUUID, msg)
	}
	top, err := msg.LastRoute()
	pUUID, hasParent := parentUUID(o.cfg, o.tree)
	if err == nil && hasParent && top == pUUID && o.cfg.LocalRank > 0 {
		return o.goUpstream(msg)
	}
	childUUID, err := msg.PopRoute()
	if err != nil {
		return err
	}
	return o.goDownstream(childUUID, msg)
}

func (o *Overlay) sendEvent(msg *message.Message, where Where) error {
	if where == WhereUpstream {
		if !msg.RouteStackEnabled() {
			msg.SetRouteStackEnabled(true)
		}
		return o.goUpstream(msg)
	}
	return o.multicast(msg)
}

func (o *Overlay) multicast(msg *message.Message) error {
	o.mu.Lock()
	ranks := make([]uint32, 0, len(o.peers))
	for rank, ps := range o.peers {
		if ps.Connected {
			ranks = append(ranks, rank)
		}
	}
	o.mu.Unlock()

	for _, rank := range ranks {
		cp := msg.Copy(false)
		if !cp.RouteStackEnabled() {
			cp.SetRouteStackEnabled(true)
		}
		uuid := message.RouteRank(rank)
		if err := cp.PushRoute(uuid); err != nil {
			o.log.Warn("multicast push failed", zap.Error(err))
			continue
		}
		if err := o.goDownstream(uuid, cp); err != nil {
			o.handleSendFailure(rank, err)
		}
	}
	return nil
}

func (o *Overlay) goUpstream(msg *message.Message) error {
	if !o.sender.HasUpstream() {
		return errors.New("no parent link")
	}
	if err := o.upstreamOrBacklog(msg); err != nil {
		return err
	}
	o.lastUpstreamSend = time.Now()
	return nil
}

func (o *Overlay) goDownstream(childUUID string, msg *message.Message) error {
	if !o.sender.HasDownstream() {
		return errors.New("no bind socket")
	}
	err := o.sender.SendDownstream(childUUID, msg)
	if err != nil {
		if rank, perr := parseRank(childUUID); perr == nil {
			o.handleSendFailure(rank, err)
		}
	}
	return err
}

// handleSendFailure marks a child disconnected on host-unreachable and
// notifies monitor subscribers, per the multicast/unicast failure policy.
func (o *Overlay) handleSendFailure(rank uint32, err error) {
	var hostErr *message.HostUnreachableError
	if !errors.As(err, &hostErr) {
		o.log.Warn("send to child failed", zap.Uint32("rank", rank), zap.Error(err))
		return
	}
	o.markDisconnected(rank, "send failed: host unreachable")
}
