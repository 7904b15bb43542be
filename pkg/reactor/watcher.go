package reactor

import "sync"

// Watcher is the common lifecycle every primitive watcher implements:
// active/referenced bookkeeping plus start/stop.
type Watcher interface {
	Start()
	Stop()
	Ref()
	Unref()
	IsActive() bool
	IsReferenced() bool
	isAwaited() bool
}

// base implements the active+referenced bit bookkeeping shared by every
// watcher kind. Starting an already-active watcher, and Ref/Unref in any
// order while active or inactive, are all idempotent/consistent per the
// lifecycle rules.
type base struct {
	mu         sync.Mutex
	active     bool
	referenced bool
}

func newBase() base { return base{referenced: true} }

func (b *base) IsActive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *base) IsReferenced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.referenced
}

func (b *base) isAwaited() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active && b.referenced
}

func (b *base) Ref() {
	b.mu.Lock()
	b.referenced = true
	b.mu.Unlock()
}

func (b *base) Unref() {
	b.mu.Lock()
	b.referenced = false
	b.mu.Unlock()
}

// setActive returns true if this call transitioned active from false to
// true (the caller should only (re)start its backing goroutine then).
func (b *base) setActive(v bool) (changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed = b.active != v
	b.active = v
	return changed
}
