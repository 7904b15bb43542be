package reactor

import "os"

// ChildWatcher waits for the exit of a specific child process and reports
// its exit status.
type ChildWatcher struct {
	base
	r      *Reactor
	pid    int
	cb     func(status int, err error)
	stopCh chan struct{}
}

// NewChildWatcher creates a watcher for pid.
func (r *Reactor) NewChildWatcher(pid int, cb func(status int, err error)) *ChildWatcher {
	w := &ChildWatcher{base: newBase(), r: r, pid: pid, cb: cb}
	r.register(w)
	return w
}

// Start begins waiting on the child. Starting twice is a no-op; waiting
// on an already-reaped pid reports the error to cb on the first poll.
func (w *ChildWatcher) Start() {
	if !w.setActive(true) {
		return
	}
	stop := make(chan struct{})
	w.stopCh = stop
	go w.run(stop)
}

func (w *ChildWatcher) run(stop chan struct{}) {
	proc, err := os.FindProcess(w.pid)
	if err != nil {
		w.r.post(func() {
			if w.IsActive() {
				w.cb(-1, err)
			}
		})
		return
	}
	state, err := proc.Wait()
	select {
	case <-stop:
		return
	default:
	}
	status := -1
	if state != nil {
		status = state.ExitCode()
	}
	w.r.post(func() {
		if w.IsActive() {
			w.cb(status, err)
		}
	})
}

// Stop marks the watcher inactive; the underlying Wait call, if already
// blocked, cannot be interrupted and will simply have its result ignored.
func (w *ChildWatcher) Stop() {
	if !w.setActive(false) {
		return
	}
	if w.stopCh != nil {
		close(w.stopCh)
	}
}
