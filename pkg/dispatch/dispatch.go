// Package dispatch implements the topic-based message handler registry,
// the matchtag allocator, and the request/response pending-table used to
// correlate responses (including streaming ones) back to their callers.
package dispatch

import (
	"path/filepath"
	"sync"

	"github.com/flux-framework/flux-go/pkg/message"
)

// TypeMask is a bit set over message.Type selecting which message kinds a
// handler accepts.
type TypeMask uint8

// MaskFor returns the single-bit mask for t.
func MaskFor(t message.Type) TypeMask { return TypeMask(1 << uint(t)) }

// MaskAll matches every message type.
const MaskAll TypeMask = TypeMask(1<<message.TypeRequest) | TypeMask(1<<message.TypeResponse) |
	TypeMask(1<<message.TypeEvent) | TypeMask(1<<message.TypeKeepalive)

func (m TypeMask) accepts(t message.Type) bool { return m&MaskFor(t) != 0 }

// HandlerFunc processes a matched message. The caller (typically the
// overlay) supplies the sender identity separately since it is a
// transport-level concept the message itself does not carry on the wire.
type HandlerFunc func(sender string, msg *message.Message)

// Handler is one registered (type_mask, topic_glob, required_rolemask,
// callback) tuple.
type Handler struct {
	TypeMask TypeMask
	Glob     string
	Role     message.Role
	Callback HandlerFunc
}

func (h *Handler) matchesTopic(topic string) bool {
	if h.Glob == "" || h.Glob == "*" {
		return true
	}
	ok, err := filepath.Match(h.Glob, topic)
	return err == nil && ok
}

// Registry is an insertion-ordered, first-match-wins handler list.
type Registry struct {
	mu       sync.Mutex
	handlers []*Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register appends a new handler and returns it so the caller can
// Unregister it later.
func (r *Registry) Register(mask TypeMask, topicGlob string, role message.Role, cb HandlerFunc) *Handler {
	h := &Handler{TypeMask: mask, Glob: topicGlob, Role: role, Callback: cb}
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
	return h
}

// Unregister removes a previously registered handler.
func (r *Registry) Unregister(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.handlers {
		if cur == h {
			r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
			return
		}
	}
}

// Match finds the first handler whose type mask and topic glob accept msg,
// regardless of rolemask (the caller checks that separately so it can
// produce the correct permission-denied response).
func (r *Registry) Match(msg *message.Message) *Handler {
	topic, _ := msg.Topic()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handlers {
		if h.TypeMask.accepts(msg.Type()) && h.matchesTopic(topic) {
			return h
		}
	}
	return nil
}

// Dispatch finds the matching handler for msg and, if its required
// rolemask intersects the message's rolemask, invokes its callback.
// Returns the error kinds §4.F specifies: NoSuchServiceError if nothing
// matches, PermissionDeniedError if the rolemask check fails. The caller
// decides, per the message's no-response flag, whether to turn those
// errors into a response or simply drop them.
func (r *Registry) Dispatch(sender string, msg *message.Message) error {
	h := r.Match(msg)
	if h == nil {
		topic, _ := msg.Topic()
		return &message.NoSuchServiceError{Topic: topic}
	}
	if !msg.RolemaskIntersects(h.Role) {
		topic, _ := msg.Topic()
		return &message.PermissionDeniedError{Topic: topic}
	}
	h.Callback(sender, msg)
	return nil
}
