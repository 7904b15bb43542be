package reactor

import "time"

// SyncTicker is the periodic-tick future used by the overlay for
// idle/keepalive scheduling: it fulfills every min seconds, and a
// registered continuation is guaranteed to run no later than max seconds
// after the last fulfillment, regardless of min.
type SyncTicker struct {
	r         *Reactor
	min       float64
	future    *Future
	minTimer  *TimerWatcher
	maxTimer  *TimerWatcher
	maxSecond float64
	cb        func()
}

// NewSyncTicker creates a ticker bound to r that fulfills its future every
// minSeconds. The returned future is streaming: each fulfillment is
// immediately reset so the next tick can fulfill it again.
func (r *Reactor) NewSyncTicker(minSeconds float64) *SyncTicker {
	s := &SyncTicker{r: r, min: minSeconds}
	s.future = r.NewFuture(true)
	s.minTimer = r.NewTimer(minSeconds, minSeconds, func() {
		s.future.Fulfill(time.Now(), nil)
		s.future.Reset()
		s.rearmMax()
	})
	return s
}

// Future returns the underlying streaming future, fulfilled once per min
// interval.
func (s *SyncTicker) Future() *Future { return s.future }

// Start begins ticking.
func (s *SyncTicker) Start() { s.minTimer.Start() }

// Stop halts ticking.
func (s *SyncTicker) Stop() {
	s.minTimer.Stop()
	if s.maxTimer != nil {
		s.maxTimer.Stop()
	}
}

// Then registers cb to run on every min-interval tick, and additionally
// guarantees cb runs at least once every maxSeconds even if the min timer
// has not fired (e.g. because the reactor was busy), by arming a
// watchdog timer reset on every tick.
func (s *SyncTicker) Then(cb func(), maxSeconds float64) {
	s.cb = cb
	s.maxSecond = maxSeconds
	s.future.Then(func(any, error) { cb() })
	s.rearmMax()
}

func (s *SyncTicker) rearmMax() {
	if s.cb == nil || s.maxSecond <= 0 {
		return
	}
	if s.maxTimer != nil {
		s.maxTimer.Stop()
	}
	s.maxTimer = s.r.NewTimer(s.maxSecond, 0, func() {
		s.cb()
		s.rearmMax()
	})
	s.maxTimer.Start()
}
