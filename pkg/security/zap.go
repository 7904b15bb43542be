package security

import (
	"encoding/base64"
	"sync"

	"github.com/pkg/errors"
)

// Mechanism is the transport security mechanism named in a ZAP-equivalent
// request. Only CURVE is ever accepted.
type Mechanism string

const MechanismCurve Mechanism = "CURVE"

// Request mirrors the fields of a ZeroMQ ZAP request this port actually
// uses: the mechanism and the connecting peer's public key. The other
// fields of the real 7-frame ZAP request (version, sequence, domain,
// address, identity) carry no decision-relevant information here and are
// intentionally omitted.
type Request struct {
	Mechanism Mechanism
	PublicKey [KeySize]byte
}

// Reply is the ZAP-equivalent verdict: "200 OK" with the resolved user id
// (the public key as base64 text) on success, or "400 No access".
type Reply struct {
	StatusCode string
	StatusText string
	UserID     string
}

const (
	statusOK      = "200"
	statusDenied  = "400"
	textOK        = "OK"
	textNoAccess  = "No access"
)

// Authenticator is the single process-wide ZAP-equivalent responder. The
// real transport library permits only one ZAP actor per process; this
// models the same constraint with a package-level guard rather than an
// inproc socket, since no ZeroMQ binding is available — requests are
// delivered over an ordinary Go channel by whichever transport socket is
// accepting a connection.
type Authenticator struct {
	store *AuthStore
	reqCh chan zapCall
	done  chan struct{}
}

type zapCall struct {
	req   Request
	reply chan Reply
}

var (
	globalMu   sync.Mutex
	globalAuth *Authenticator
)

// Enable constructs and starts the process-wide Authenticator backed by
// store. Calling Enable a second time while one is already running is an
// error — mirroring the transport library's single-ZAP-actor constraint.
func Enable(store *AuthStore) (*Authenticator, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalAuth != nil {
		return nil, errors.New("ZAP authenticator already enabled for this process")
	}
	a := &Authenticator{
		store: store,
		reqCh: make(chan zapCall),
		done:  make(chan struct{}),
	}
	globalAuth = a
	go a.loop()
	return a, nil
}

// Disable stops the authenticator and clears the process-wide slot so a
// later Enable can succeed again.
func (a *Authenticator) Disable() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalAuth == a {
		globalAuth = nil
	}
	close(a.done)
}

func (a *Authenticator) loop() {
	for {
		select {
		case <-a.done:
			return
		case call := <-a.reqCh:
			call.reply <- a.evaluate(call.req)
		}
	}
}

func (a *Authenticator) evaluate(req Request) Reply {
	if req.Mechanism != MechanismCurve {
		return Reply{StatusCode: statusDenied, StatusText: textNoAccess}
	}
	userID := base64.StdEncoding.EncodeToString(req.PublicKey[:])
	if _, ok := a.store.Lookup(req.PublicKey); !ok {
		return Reply{StatusCode: statusDenied, StatusText: textNoAccess}
	}
	return Reply{StatusCode: statusOK, StatusText: textOK, UserID: userID}
}

// Authenticate submits req to the responder and blocks for its verdict.
// Safe to call concurrently from multiple accepting sockets.
func (a *Authenticator) Authenticate(req Request) Reply {
	call := zapCall{req: req, reply: make(chan Reply, 1)}
	select {
	case a.reqCh <- call:
		return <-call.reply
	case <-a.done:
		return Reply{StatusCode: statusDenied, StatusText: textNoAccess}
	}
}
