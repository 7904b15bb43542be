package reactor

// FDEvent is a readiness bit, modeled after poll(2)'s POLLIN/POLLOUT/
// POLLERR.
type FDEvent uint8

const (
	FDReadable FDEvent = 1 << iota
	FDWritable
	FDError
)

// FDWatcher watches a readiness channel fed by the socket's own owning
// goroutine (Go sockets are not natively poll()-able from here, so the
// caller — typically the transport layer — runs the blocking read/write
// and posts FDEvent values here instead of the reactor polling an fd
// directly).
type FDWatcher struct {
	base
	r      *Reactor
	ready  <-chan FDEvent
	cb     func(FDEvent)
	stopCh chan struct{}
}

// NewFDWatcher creates a watcher that invokes cb on the reactor goroutine
// each time an event arrives on ready.
func (r *Reactor) NewFDWatcher(ready <-chan FDEvent, cb func(FDEvent)) *FDWatcher {
	w := &FDWatcher{base: newBase(), r: r, ready: ready, cb: cb}
	r.register(w)
	return w
}

// Start begins relaying readiness events.
func (w *FDWatcher) Start() {
	if !w.setActive(true) {
		return
	}
	stop := make(chan struct{})
	w.stopCh = stop
	go w.run(stop)
}

func (w *FDWatcher) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.ready:
			if !ok {
				return
			}
			w.r.post(func() {
				if w.IsActive() {
					w.cb(ev)
				}
			})
		}
	}
}

// Stop halts event relaying.
func (w *FDWatcher) Stop() {
	if !w.setActive(false) {
		return
	}
	if w.stopCh != nil {
		close(w.stopCh)
	}
}
