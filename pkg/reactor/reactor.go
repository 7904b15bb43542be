// Package reactor implements a cooperative, single-threaded event loop in
// the style the broker's overlay is driven by: watchers for file
// descriptors, timers, signals, child processes, and prepare/check/idle
// phases, plus futures for composable asynchronous continuations.
//
// Go has no direct analogue of a single OS thread blocked in poll(2), so
// every watcher kind here is backed by its own goroutine that does the
// actual blocking wait (on a net.Conn, a timer channel, a signal channel,
// or Wait4) and then posts a single event onto the reactor's internal
// queue. All state mutation — watcher bookkeeping, future fulfillment,
// handler invocation — happens exclusively on the goroutine running Run,
// preserving the single-threaded mutation model the rest of this module
// depends on.
package reactor

import (
	"sync"

	"go.uber.org/zap"
)

type event struct {
	run func()
}

// Reactor is a cooperative single-threaded event loop. The zero value is
// not usable; construct with New.
type Reactor struct {
	log *zap.Logger

	mu       sync.Mutex
	watchers map[Watcher]struct{}
	phases   []*PhaseWatcher

	queue   chan event
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a Reactor. log may be nil, in which case a no-op logger is
// used.
func New(log *zap.Logger) *Reactor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reactor{
		log:      log,
		watchers: make(map[Watcher]struct{}),
		queue:    make(chan event, 256),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Dispatch schedules fn to run on the reactor goroutine. Safe to call
// from any goroutine; this is how non-watcher sources (transport sockets,
// external callbacks) feed events into the single-threaded loop.
func (r *Reactor) Dispatch(fn func()) { r.post(fn) }

// post enqueues a function to run on the reactor goroutine. Safe to call
// from any goroutine, including watcher backing goroutines.
func (r *Reactor) post(fn func()) {
	select {
	case r.queue <- event{run: fn}:
	case <-r.stop:
	}
}

// register/unregister track the active+referenced watcher set so Run can
// decide when there is nothing left to wait for.
func (r *Reactor) register(w Watcher) {
	r.mu.Lock()
	r.watchers[w] = struct{}{}
	r.mu.Unlock()
}

func (r *Reactor) unregister(w Watcher) {
	r.mu.Lock()
	delete(r.watchers, w)
	r.mu.Unlock()
}

// activeReferencedCount returns how many registered watchers, of every
// kind (prepare/check/idle watchers included), are both active and
// referenced.
func (r *Reactor) activeReferencedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for w := range r.watchers {
		if w.isAwaited() {
			n++
		}
	}
	return n
}

// Run blocks, dispatching events until Stop is called or, once at least
// one watcher is registered, no active+referenced watcher remains (the
// check is made before blocking as well as after each iteration). A
// reactor with no registered watchers, fed only through Dispatch and
// futures, runs until Stop.
func (r *Reactor) Run() {
	defer close(r.stopped)
	exhausted := func() bool {
		r.mu.Lock()
		registered := len(r.watchers)
		r.mu.Unlock()
		return registered > 0 && r.activeReferencedCount() == 0 && !r.hasIdle()
	}
	for {
		if exhausted() {
			return
		}
		r.runPreparePhase()
		if r.hasIdle() {
			r.runIdlePhase()
			select {
			case ev := <-r.queue:
				ev.run()
			case <-r.stop:
				return
			default:
			}
		} else {
			select {
			case ev := <-r.queue:
				ev.run()
			case <-r.stop:
				return
			}
		}
		r.runCheckPhase()
		r.drainQueue()
		if exhausted() {
			return
		}
	}
}

// drainQueue runs any events already queued without blocking, so a burst
// of readiness notifications is processed within one loop iteration.
func (r *Reactor) drainQueue() {
	for {
		select {
		case ev := <-r.queue:
			ev.run()
		default:
			return
		}
	}
}

// Stop halts the loop after the current iteration and waits for Run to
// return. Safe to call multiple times.
func (r *Reactor) Stop() {
	r.once.Do(func() { close(r.stop) })
	<-r.stopped
}
