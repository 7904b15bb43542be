package overlay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
)

// pauseState backs the test-only overlay.pause topic: the first call
// diverts every subsequent upstream send into a backlog (and announces
// the pause to the parent via a keepalive), the second call drains the
// backlog in FIFO order and resumes normal sending.
type pauseState struct {
	mu      sync.Mutex
	paused  bool
	backlog []*message.Message
}

func newPauseState() *pauseState { return &pauseState{} }

func (o *Overlay) handlePauseRequest(sender string, req *message.Message) {
	o.pause.mu.Lock()
	wasPaused := o.pause.paused
	o.pause.paused = !wasPaused
	var drain []*message.Message
	if wasPaused {
		drain = o.pause.backlog
		o.pause.backlog = nil
	}
	o.pause.mu.Unlock()

	o.sendOKResponse(sender, req, nil, false)

	if wasPaused {
		for _, m := range drain {
			if err := o.sender.SendUpstream(m); err != nil {
				o.log.Warn("pause drain send failed", zap.Error(err))
			}
		}
		return
	}
	ka, err := message.New(message.TypeKeepalive)
	if err == nil {
		_ = ka.SetKeepaliveFields(0, message.KeepaliveTestPause)
		_ = o.sender.SendUpstream(ka)
	}
}

// upstreamOrBacklog sends msg upstream immediately, unless a test pause is
// active, in which case it queues msg for the eventual drain.
func (o *Overlay) upstreamOrBacklog(msg *message.Message) error {
	o.pause.mu.Lock()
	if o.pause.paused {
		o.pause.backlog = append(o.pause.backlog, msg)
		o.pause.mu.Unlock()
		return nil
	}
	o.pause.mu.Unlock()
	return o.sender.SendUpstream(msg)
}
