package reactor

import "time"

// TimerWatcher fires a callback once or repeatedly after an interval
// expressed as seconds (floating point, matching the fractional-second
// convention of the underlying event library).
type TimerWatcher struct {
	base
	r        *Reactor
	after    time.Duration
	repeat   time.Duration
	cb       func()
	stopCh   chan struct{}
	stopOnce func()
}

// NewTimer creates a watcher that fires cb after afterSeconds, and again
// every repeatSeconds thereafter if repeatSeconds > 0. It is inactive
// until Start is called.
func (r *Reactor) NewTimer(afterSeconds, repeatSeconds float64, cb func()) *TimerWatcher {
	t := &TimerWatcher{
		base:   newBase(),
		r:      r,
		after:  secondsToDuration(afterSeconds),
		repeat: secondsToDuration(repeatSeconds),
		cb:     cb,
	}
	r.register(t)
	return t
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// Start begins (or restarts) the timer. Starting an already-active timer
// is a no-op.
func (t *TimerWatcher) Start() {
	if !t.setActive(true) {
		return
	}
	stop := make(chan struct{})
	t.stopCh = stop
	go t.run(stop)
}

func (t *TimerWatcher) run(stop chan struct{}) {
	timer := time.NewTimer(t.after)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			if !t.IsActive() {
				return
			}
			oneShot := t.repeat <= 0
			t.r.post(func() {
				if !t.IsActive() {
					return
				}
				if oneShot {
					t.setActive(false)
				}
				t.cb()
			})
			if oneShot {
				return
			}
			timer.Reset(t.repeat)
		}
	}
}

// Stop halts the timer; a callback already in flight on the reactor queue
// is skipped when it is dequeued, and no further firings occur.
func (t *TimerWatcher) Stop() {
	if !t.setActive(false) {
		return
	}
	if t.stopCh != nil {
		close(t.stopCh)
	}
}
