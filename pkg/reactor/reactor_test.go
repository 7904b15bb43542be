package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFiresAndLoopExits(t *testing.T) {
	r := New(nil)
	fired := make(chan struct{}, 1)
	timer := r.NewTimer(0.01, 0, func() { fired <- struct{}{} })
	timer.Start()

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reactor did not exit after last watcher fired")
	}
}

func TestStartingActiveTimerIsNoOp(t *testing.T) {
	r := New(nil)
	timer := r.NewTimer(10, 0, func() {})
	timer.Start()
	require.True(t, timer.IsActive())
	timer.Start()
	require.True(t, timer.IsActive())
	timer.Stop()
	require.False(t, timer.IsActive())
}

func TestUnrefAllowsLoopToExitWithActiveWatcher(t *testing.T) {
	r := New(nil)
	timer := r.NewTimer(1000, 1000, func() {})
	timer.Start()
	timer.Unref()
	require.False(t, timer.isAwaited())

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unreferenced watcher should not keep the loop alive")
	}
}

func TestFutureThenAfterFulfillment(t *testing.T) {
	r := New(nil)
	f := r.NewFuture(false)
	f.Fulfill(42, nil)

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	result := make(chan any, 1)
	f.Then(func(v any, err error) {
		require.NoError(t, err)
		result <- v
	})

	select {
	case v := <-result:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
	r.Stop()
	<-done
}

func TestStreamingFutureResetAllowsRefulfillment(t *testing.T) {
	r := New(nil)
	f := r.NewFuture(true)

	go r.Run()
	defer r.Stop()

	calls := make(chan any, 4)
	f.Then(func(v any, err error) { calls <- v })

	f.Fulfill(1, nil)
	require.Equal(t, 1, <-calls)
	f.Reset()
	f.Fulfill(2, nil)
	require.Equal(t, 2, <-calls)
}

func TestSyncTickerFulfillsPeriodically(t *testing.T) {
	r := New(nil)
	s := r.NewSyncTicker(0.01)
	s.Start()

	go r.Run()
	defer r.Stop()

	ticks := make(chan struct{}, 8)
	s.Then(func() { ticks <- struct{}{} }, 1)

	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(time.Second):
			t.Fatal("sync ticker did not fire repeatedly")
		}
	}
}
