package transport

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// session is one CURVE-sealed, length-prefixed bidirectional byte stream
// over a net.Conn. It carries one opaque payload per frame — the caller
// (bind/dial socket) is responsible for that payload being a complete
// encoded *message.Message.
type session struct {
	peer   PeerID
	conn   net.Conn
	br     *bufio.Reader
	wmu    sync.Mutex
	shared *[32]byte

	establishedAt time.Time
	lastSeenMu    sync.Mutex
	lastSeen      time.Time
}

func newSession(peer PeerID, conn net.Conn, shared *[32]byte) *session {
	return &session{
		peer:          peer,
		conn:          conn,
		br:            bufio.NewReader(conn),
		shared:        shared,
		establishedAt: time.Now(),
	}
}

func (s *session) Quality() Quality {
	s.lastSeenMu.Lock()
	defer s.lastSeenMu.Unlock()
	return Quality{EstablishedAt: s.establishedAt, LastSeen: s.lastSeen}
}

func (s *session) touch() {
	s.lastSeenMu.Lock()
	s.lastSeen = time.Now()
	s.lastSeenMu.Unlock()
}

func (s *session) Close() error { return s.conn.Close() }

// send seals plaintext and writes it as one length-prefixed wire frame.
func (s *session) send(plaintext []byte) error {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return errors.Wrap(err, "generate nonce")
	}
	sealed := box.SealAfterPrecomputation(nonce[:], plaintext, &nonce, s.shared)

	s.wmu.Lock()
	defer s.wmu.Unlock()

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := s.conn.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "write frame length")
	}
	if _, err := s.conn.Write(sealed); err != nil {
		return errors.Wrap(err, "write frame body")
	}
	s.touch()
	return nil
}

// recv reads one length-prefixed sealed frame and returns its plaintext.
func (s *session) recv() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.br, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return nil, errors.Wrap(err, "read frame body")
	}
	if len(buf) < nonceSize {
		return nil, errors.New("sealed frame shorter than nonce")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], buf[:nonceSize])
	plaintext, ok := box.OpenAfterPrecomputation(nil, buf[nonceSize:], &nonce, s.shared)
	if !ok {
		return nil, errors.New("failed to open sealed frame")
	}
	s.touch()
	return plaintext, nil
}

func writeRaw(conn net.Conn, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(b)
	return err
}

func readRaw(r io.Reader, max int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:]))
	if n < 0 || n > max {
		return nil, errors.New("invalid raw frame size")
	}
	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	return buf, err
}
