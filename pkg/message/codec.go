package message

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	magicByte   byte = 0x8e
	wireVersion byte = 1
	protoFrameSize    = 1 + 1 + 1 + 1 + 4 + 4 + 4 + 4 // magic,version,type,flags,userid,rolemask,aux1,aux2
	longLenMarker byte = 0xff
)

// EncodeFrame writes a single length-prefixed frame for b onto w.
func EncodeFrame(w *bytes.Buffer, b []byte) {
	n := len(b)
	if n < int(longLenMarker) {
		w.WriteByte(byte(n))
	} else {
		w.WriteByte(longLenMarker)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(n))
		w.Write(lenBuf[:])
	}
	w.Write(b)
}

// DecodeFrame reads one length-prefixed frame from r.
func DecodeFrame(r *bytes.Reader) ([]byte, error) {
	lenByte, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(errShortFrame, "frame length prefix")
	}
	var n int
	if lenByte == longLenMarker {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, errors.Wrap(errShortFrame, "frame extended length")
		}
		n = int(binary.BigEndian.Uint32(lenBuf[:]))
	} else {
		n = int(lenByte)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(errShortFrame, "frame body")
		}
	}
	return buf, nil
}

// Frames returns the ordered list of raw wire frames this message would
// serialize to: zero or more route frames (bottom to top), a route
// delimiter frame when the route stack is enabled, a topic frame, a
// payload frame, and finally the proto frame — each present only when its
// corresponding flag/condition holds.
func (m *Message) Frames() ([][]byte, error) {
	var frames [][]byte
	if m.RouteStackEnabled() {
		for _, id := range m.route {
			frames = append(frames, []byte(id))
		}
		frames = append(frames, []byte{}) // route delimiter
	}
	if m.HasFlag(FlagTopic) {
		frames = append(frames, []byte(m.topic))
	}
	if m.HasFlag(FlagPayload) {
		frames = append(frames, m.payload)
	}
	proto, err := m.encodeProtoFrame()
	if err != nil {
		return nil, err
	}
	frames = append(frames, proto)
	return frames, nil
}

func (m *Message) encodeProtoFrame() ([]byte, error) {
	if !m.typ.valid() {
		return nil, errInvalidType
	}
	buf := make([]byte, protoFrameSize)
	buf[0] = magicByte
	buf[1] = wireVersion
	buf[2] = byte(m.typ)
	buf[3] = byte(m.flags)
	binary.BigEndian.PutUint32(buf[4:8], m.userid)
	binary.BigEndian.PutUint32(buf[8:12], uint32(m.rolemask))
	binary.BigEndian.PutUint32(buf[12:16], m.aux1)
	binary.BigEndian.PutUint32(buf[16:20], m.aux2)
	return buf, nil
}

// Encode serializes the message to its complete wire form: every frame
// from Frames, each individually length-prefixed, concatenated in order.
func (m *Message) Encode() ([]byte, error) {
	frames, err := m.Frames()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, f := range frames {
		EncodeFrame(&buf, f)
	}
	return buf.Bytes(), nil
}

// EncodeSize returns len(Encode()) without allocating the encoded bytes
// twice; callers that need both should just call Encode and len() on the
// result, but this exists to let tests check the §8 encode_size invariant
// without assuming Encode is side-effect free on repeated calls.
func (m *Message) EncodeSize() (int, error) {
	b, err := m.Encode()
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Decode parses a complete wire-encoded message. The proto frame must be
// last; any frames before it are interpreted as route identifiers (if the
// decoded flags have FlagRouteStack set, the frames up to and including
// the first empty frame are the route stack in bottom-to-top order),
// followed optionally by a topic frame and a payload frame.
func Decode(b []byte) (*Message, error) {
	r := bytes.NewReader(b)
	var rawFrames [][]byte
	for r.Len() > 0 {
		f, err := DecodeFrame(r)
		if err != nil {
			return nil, err
		}
		rawFrames = append(rawFrames, f)
	}
	if len(rawFrames) == 0 {
		return nil, errShortFrame
	}
	protoRaw := rawFrames[len(rawFrames)-1]
	rest := rawFrames[:len(rawFrames)-1]

	m, err := decodeProtoFrame(protoRaw)
	if err != nil {
		return nil, err
	}

	idx := 0
	if m.RouteStackEnabled() {
		delim := -1
		for i, f := range rest {
			if len(f) == 0 {
				delim = i
				break
			}
		}
		if delim < 0 {
			return nil, errors.Wrap(errBadMagic, "route stack enabled but no delimiter frame found")
		}
		for _, f := range rest[:delim] {
			m.route = append(m.route, string(f))
		}
		idx = delim + 1
	}
	if m.HasFlag(FlagTopic) {
		if idx >= len(rest) {
			return nil, errors.Wrap(errShortFrame, "missing topic frame")
		}
		m.topic = string(rest[idx])
		idx++
	}
	if m.HasFlag(FlagPayload) {
		if idx >= len(rest) {
			return nil, errors.Wrap(errShortFrame, "missing payload frame")
		}
		m.payload = rest[idx]
		idx++
	}
	if idx != len(rest) {
		return nil, errTrailingData
	}
	return m, nil
}

func decodeProtoFrame(b []byte) (*Message, error) {
	if len(b) != protoFrameSize {
		return nil, errors.Wrap(errShortFrame, "proto frame size")
	}
	if b[0] != magicByte {
		return nil, errBadMagic
	}
	if b[1] != wireVersion {
		return nil, errBadVersion
	}
	t := Type(b[2])
	if !t.valid() {
		return nil, errInvalidType
	}
	m := &Message{
		typ:      t,
		flags:    Flag(b[3]),
		userid:   binary.BigEndian.Uint32(b[4:8]),
		rolemask: Role(binary.BigEndian.Uint32(b[8:12])),
		aux1:     binary.BigEndian.Uint32(b[12:16]),
		aux2:     binary.BigEndian.Uint32(b[16:20]),
		refcount: 1,
	}
	return m, nil
}
