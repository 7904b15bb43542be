package reactor

// PhaseWatcher runs a callback before (prepare) or after (check) each loop
// iteration's blocking wait, or forces the loop to spin without blocking
// (idle).
type PhaseWatcher struct {
	base
	kind phaseKind
	cb   func()
}

type phaseKind int

const (
	phasePrepare phaseKind = iota
	phaseCheck
	phaseIdle
)

// NewPrepareWatcher registers cb to run at the start of every iteration.
func (r *Reactor) NewPrepareWatcher(cb func()) *PhaseWatcher {
	w := &PhaseWatcher{base: newBase(), kind: phasePrepare, cb: cb}
	r.register(w)
	r.addPhase(w)
	return w
}

// NewCheckWatcher registers cb to run at the end of every iteration.
func (r *Reactor) NewCheckWatcher(cb func()) *PhaseWatcher {
	w := &PhaseWatcher{base: newBase(), kind: phaseCheck, cb: cb}
	r.register(w)
	r.addPhase(w)
	return w
}

// NewIdleWatcher, while active+referenced, forces the loop to keep
// spinning without blocking on the event queue.
func (r *Reactor) NewIdleWatcher(cb func()) *PhaseWatcher {
	w := &PhaseWatcher{base: newBase(), kind: phaseIdle, cb: cb}
	r.register(w)
	r.addPhase(w)
	return w
}

// Start activates the phase watcher.
func (w *PhaseWatcher) Start() { w.setActive(true) }

// Stop deactivates the phase watcher.
func (w *PhaseWatcher) Stop() { w.setActive(false) }

func (r *Reactor) addPhase(w *PhaseWatcher) {
	r.mu.Lock()
	r.phases = append(r.phases, w)
	r.mu.Unlock()
}

func (r *Reactor) runPreparePhase() {
	for _, w := range r.snapshotPhases(phasePrepare) {
		w.cb()
	}
}

func (r *Reactor) runCheckPhase() {
	for _, w := range r.snapshotPhases(phaseCheck) {
		w.cb()
	}
}

func (r *Reactor) runIdlePhase() {
	for _, w := range r.snapshotPhases(phaseIdle) {
		w.cb()
	}
}

func (r *Reactor) hasIdle() bool {
	for _, w := range r.snapshotPhases(phaseIdle) {
		if w.isAwaited() {
			return true
		}
	}
	return false
}

func (r *Reactor) snapshotPhases(kind phaseKind) []*PhaseWatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*PhaseWatcher
	for _, w := range r.phases {
		if w.kind == kind && w.isAwaited() {
			out = append(out, w)
		}
	}
	return out
}
