// Package message implements the broker wire message: a reference-counted,
// mostly-immutable value carrying routing metadata, an optional topic,
// an optional opaque payload, and an ordered route stack.
package message

import "sync/atomic"

// Type identifies the kind of a Message. Only these four are valid.
type Type uint8

const (
	TypeRequest Type = iota
	TypeResponse
	TypeEvent
	TypeKeepalive
)

func (t Type) valid() bool {
	return t == TypeRequest || t == TypeResponse || t == TypeEvent || t == TypeKeepalive
}

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	case TypeKeepalive:
		return "keepalive"
	default:
		return "unknown"
	}
}

// Flag is a bit in the message flags byte.
type Flag uint8

const (
	FlagTopic Flag = 1 << iota
	FlagPayload
	FlagRouteStack
	FlagUpstreamHint
	FlagPrivate
	FlagStreaming
	FlagNoResponse
)

// Role is a bit in the rolemask word. RoleAll is a distinct bit meaning
// "matches any requester", not the union of Owner|User.
type Role uint32

const (
	RoleNone  Role = 0
	RoleOwner Role = 1 << 0
	RoleUser  Role = 1 << 1
	RoleAll   Role = 1 << 2
)

// KeepaliveStatus is the interpreted status word of a keepalive message.
type KeepaliveStatus uint32

const (
	KeepaliveNormal     KeepaliveStatus = 0
	KeepaliveDisconnect KeepaliveStatus = 1
	KeepaliveTestPause  KeepaliveStatus = 2
)

// Message is the universal wire unit. It is reference-counted and treated
// as immutable after Send except for its annotations (the annot field).
type Message struct {
	typ      Type
	flags    Flag
	userid   uint32
	rolemask Role

	// type-specific aux words.
	// request:   aux1=nodeid,  aux2=matchtag
	// response:  aux1=errnum,  aux2=matchtag
	// event:     aux1=sequence
	// keepalive: aux1=errnum,  aux2=status
	aux1, aux2 uint32

	topic   string
	payload []byte

	// route is the stack, index 0 = bottom (originator, "first"),
	// last index = top (most recently pushed, "last").
	route []string

	refcount int32
	annot    map[string]any
}

// New creates a Message of the given type with no flags set.
func New(t Type) (*Message, error) {
	if !t.valid() {
		return nil, errInvalidType
	}
	m := &Message{typ: t}
	m.refcount = 1
	return m, nil
}

// Type returns the message type.
func (m *Message) Type() Type { return m.typ }

// SetType changes the message type, validating it is one of the four kinds.
func (m *Message) SetType(t Type) error {
	if !t.valid() {
		return errInvalidType
	}
	m.typ = t
	return nil
}

// HasFlag reports whether the given flag bit is set.
func (m *Message) HasFlag(f Flag) bool { return m.flags&f != 0 }

// SetFlag sets or clears a flag bit, enforcing the streaming/no-response
// mutual exclusion invariant.
func (m *Message) SetFlag(f Flag, on bool) error {
	next := m.flags
	if on {
		next |= f
	} else {
		next &^= f
	}
	if next&FlagStreaming != 0 && next&FlagNoResponse != 0 {
		return errStreamingNoResponse
	}
	m.flags = next
	return nil
}

// Flags returns the raw flags byte.
func (m *Message) Flags() Flag { return m.flags }

// Userid / Rolemask accessors.

func (m *Message) Userid() uint32      { return m.userid }
func (m *Message) SetUserid(u uint32)  { m.userid = u }
func (m *Message) Rolemask() Role      { return m.rolemask }
func (m *Message) SetRolemask(r Role)  { m.rolemask = r }

// RolemaskIntersects reports whether m's rolemask shares any bit with
// required, or required asks for RoleAll.
func (m *Message) RolemaskIntersects(required Role) bool {
	if required&RoleAll != 0 {
		return true
	}
	return m.rolemask&required != 0
}

// Nodeid is valid only on request messages.
func (m *Message) Nodeid() (uint32, error) {
	if m.typ != TypeRequest {
		return 0, errWrongType
	}
	return m.aux1, nil
}

// SetNodeid is valid only on request messages.
func (m *Message) SetNodeid(id uint32) error {
	if m.typ != TypeRequest {
		return errWrongType
	}
	m.aux1 = id
	return nil
}

// Matchtag is valid on request and response messages.
func (m *Message) Matchtag() (uint32, error) {
	if m.typ != TypeRequest && m.typ != TypeResponse {
		return 0, errWrongType
	}
	return m.aux2, nil
}

// SetMatchtag is valid on request and response messages.
func (m *Message) SetMatchtag(tag uint32) error {
	if m.typ != TypeRequest && m.typ != TypeResponse {
		return errWrongType
	}
	m.aux2 = tag
	return nil
}

// Errnum is valid on response and keepalive messages.
func (m *Message) Errnum() (uint32, error) {
	if m.typ != TypeResponse && m.typ != TypeKeepalive {
		return 0, errWrongType
	}
	return m.aux1, nil
}

// SetErrnum is valid on response and keepalive messages.
func (m *Message) SetErrnum(errnum uint32) error {
	if m.typ != TypeResponse && m.typ != TypeKeepalive {
		return errWrongType
	}
	m.aux1 = errnum
	return nil
}

// Sequence is valid only on event messages.
func (m *Message) Sequence() (uint32, error) {
	if m.typ != TypeEvent {
		return 0, errWrongType
	}
	return m.aux1, nil
}

// SetSequence is valid only on event messages.
func (m *Message) SetSequence(seq uint32) error {
	if m.typ != TypeEvent {
		return errWrongType
	}
	m.aux1 = seq
	return nil
}

// KeepaliveFields is valid only on keepalive messages.
func (m *Message) KeepaliveFields() (errnum uint32, status KeepaliveStatus, err error) {
	if m.typ != TypeKeepalive {
		return 0, 0, errWrongType
	}
	return m.aux1, KeepaliveStatus(m.aux2), nil
}

// SetKeepaliveFields is valid only on keepalive messages.
func (m *Message) SetKeepaliveFields(errnum uint32, status KeepaliveStatus) error {
	if m.typ != TypeKeepalive {
		return errWrongType
	}
	m.aux1 = errnum
	m.aux2 = uint32(status)
	return nil
}

// Topic returns the topic string and whether it is set.
func (m *Message) Topic() (string, bool) {
	if !m.HasFlag(FlagTopic) {
		return "", false
	}
	return m.topic, true
}

// SetTopic sets the topic string; an empty string clears the topic flag.
func (m *Message) SetTopic(topic string) {
	if topic == "" {
		m.topic = ""
		m.flags &^= FlagTopic
		return
	}
	m.topic = topic
	m.flags |= FlagTopic
}

// Payload returns the raw payload bytes and whether the payload flag is set.
func (m *Message) Payload() ([]byte, bool) {
	if !m.HasFlag(FlagPayload) {
		return nil, false
	}
	return m.payload, true
}

// SetPayloadBytes replaces the payload. Zero-length bytes clears the
// payload flag. The source and destination slices must not overlap.
func (m *Message) SetPayloadBytes(b []byte) error {
	if len(b) == 0 {
		m.payload = nil
		m.flags &^= FlagPayload
		return nil
	}
	if overlaps(m.payload, b) {
		return errOverlappingBuffers
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	m.payload = cp
	m.flags |= FlagPayload
	return nil
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	aStart, aEnd := &a[0], &a[len(a)-1]
	bStart, bEnd := &b[0], &b[len(b)-1]
	return uintptrOf(aStart) <= uintptrOf(bEnd) && uintptrOf(bStart) <= uintptrOf(aEnd)
}

// Ref increments the reference count.
func (m *Message) Ref() { atomic.AddInt32(&m.refcount, 1) }

// Unref decrements the reference count and reports whether it reached zero.
func (m *Message) Unref() bool { return atomic.AddInt32(&m.refcount, -1) == 0 }

// Copy returns a copy of m. When deepPayload is true the payload backing
// array is duplicated; otherwise it is shared (safe because payloads are
// never mutated in place after SetPayloadBytes).
func (m *Message) Copy(deepPayload bool) *Message {
	cp := *m
	cp.refcount = 1
	cp.route = append([]string(nil), m.route...)
	if deepPayload && m.payload != nil {
		cp.payload = append([]byte(nil), m.payload...)
	}
	cp.annot = nil
	return &cp
}
