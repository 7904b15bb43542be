package transport

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"

	"github.com/flux-framework/flux-go/pkg/security"
)

const maxHelloSize = 64

var (
	acceptByte = []byte{0x01}
	denyByte   = []byte{0x00}
)

// acceptInbound performs the server side of the CURVE handshake on an
// accepted connection: read the client's long-term public key, submit it
// to the shared ZAP-equivalent authenticator, and either deny (closing
// after a single byte) or accept and derive the precomputed shared key.
func acceptInbound(conn net.Conn, cert *security.Certificate, auth *security.Authenticator) (clientPub [security.KeySize]byte, shared *[32]byte, err error) {
	raw, err := readRaw(conn, maxHelloSize)
	if err != nil {
		return clientPub, nil, errors.Wrap(err, "read client hello")
	}
	if len(raw) != security.KeySize {
		return clientPub, nil, errors.New("malformed client hello")
	}
	copy(clientPub[:], raw)

	reply := auth.Authenticate(security.Request{Mechanism: security.MechanismCurve, PublicKey: clientPub})
	if reply.StatusCode != "200" {
		_ = writeRaw(conn, denyByte)
		return clientPub, nil, errors.Errorf("peer not authorized: %s", reply.StatusText)
	}
	if err := writeRaw(conn, acceptByte); err != nil {
		return clientPub, nil, errors.Wrap(err, "write accept")
	}

	var sk [32]byte
	box.Precompute(&sk, &clientPub, &cert.Private)
	return clientPub, &sk, nil
}

// dialOutbound performs the client side of the CURVE handshake: send our
// long-term public key, wait for accept/deny, and derive the precomputed
// shared key against the known parent public key.
func dialOutbound(conn net.Conn, cert *security.Certificate, parentPub [security.KeySize]byte) (*[32]byte, error) {
	if err := writeRaw(conn, cert.Public[:]); err != nil {
		return nil, errors.Wrap(err, "write hello")
	}
	verdict, err := readRaw(conn, 1)
	if err != nil {
		return nil, errors.Wrap(err, "read handshake verdict")
	}
	if len(verdict) != 1 || verdict[0] != acceptByte[0] {
		return nil, errors.New("parent denied CURVE handshake")
	}
	var sk [32]byte
	box.Precompute(&sk, &parentPub, &cert.Private)
	return &sk, nil
}
