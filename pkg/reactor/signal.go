package reactor

import (
	"os"
	"os/signal"
)

// SignalWatcher invokes a callback when the process receives one of a set
// of signals, without altering the process-wide signal mask beyond the
// registration os/signal itself performs (the nearest Go equivalent of a
// signalfd-backed watcher).
type SignalWatcher struct {
	base
	r      *Reactor
	sigs   []os.Signal
	cb     func(os.Signal)
	ch     chan os.Signal
	stopCh chan struct{}
}

// NewSignalWatcher creates a watcher for the given signals.
func (r *Reactor) NewSignalWatcher(cb func(os.Signal), sigs ...os.Signal) *SignalWatcher {
	w := &SignalWatcher{base: newBase(), r: r, sigs: sigs, cb: cb}
	r.register(w)
	return w
}

// Start begins listening for signals.
func (w *SignalWatcher) Start() {
	if !w.setActive(true) {
		return
	}
	w.ch = make(chan os.Signal, 1)
	signal.Notify(w.ch, w.sigs...)
	stop := make(chan struct{})
	w.stopCh = stop
	go w.run(stop)
}

func (w *SignalWatcher) run(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case s := <-w.ch:
			w.r.post(func() {
				if w.IsActive() {
					w.cb(s)
				}
			})
		}
	}
}

// Stop halts signal delivery to this watcher.
func (w *SignalWatcher) Stop() {
	if !w.setActive(false) {
		return
	}
	signal.Stop(w.ch)
	if w.stopCh != nil {
		close(w.stopCh)
	}
}
