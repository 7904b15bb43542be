package reactor

import "sync"

// Future is a composable continuation keyed to a reactor. A non-streaming
// future is fulfilled once; a streaming future may be fulfilled
// repeatedly and Reset between fulfillments.
type Future struct {
	r *Reactor

	mu        sync.Mutex
	streaming bool
	fulfilled bool
	value     any
	err       error
	conts     []func(any, error)
}

// NewFuture creates a future bound to r. Streaming futures may be
// fulfilled more than once; call Reset between fulfillments to await the
// next one.
func (r *Reactor) NewFuture(streaming bool) *Future {
	return &Future{r: r, streaming: streaming}
}

// Fulfill resolves the future with a value or an error (mutually
// exclusive; pass a nil error for success). Registered continuations run
// on the next loop iteration, in registration order. Only the first
// fulfillment of a non-streaming future takes effect; later calls are
// no-ops (Reset does not apply to non-streaming futures).
func (f *Future) Fulfill(value any, err error) {
	f.mu.Lock()
	if f.fulfilled && !f.streaming {
		f.mu.Unlock()
		return
	}
	f.fulfilled = true
	f.value, f.err = value, err
	conts := append(([]func(any, error))(nil), f.conts...)
	if !f.streaming {
		f.conts = nil
	}
	f.mu.Unlock()

	for _, c := range conts {
		c := c
		f.r.post(func() { c(value, err) })
	}
}

// Then registers a continuation. If the future is already fulfilled, the
// continuation is scheduled immediately (on the next loop iteration)
// rather than discarded.
func (f *Future) Then(cont func(value any, err error)) {
	f.mu.Lock()
	if f.fulfilled {
		value, err := f.value, f.err
		f.mu.Unlock()
		f.r.post(func() { cont(value, err) })
		return
	}
	f.conts = append(f.conts, cont)
	f.mu.Unlock()
}

// Reset clears the last fulfillment of a streaming future so it can await
// the next one. No-op on a non-streaming future.
func (f *Future) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.streaming {
		return
	}
	f.fulfilled = false
	f.value, f.err = nil, nil
}

// IsFulfilled reports whether the future currently holds an unconsumed
// fulfillment.
func (f *Future) IsFulfilled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fulfilled
}
