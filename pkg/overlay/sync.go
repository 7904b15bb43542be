package overlay

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flux-framework/flux-go/pkg/message"
)

// startSyncTick arms the periodic liveness check: a repeating tick no
// slower than SyncMin drives both the upstream keepalive (sent when this
// rank has gone IdleMin seconds without sending anything upstream) and the
// downstream idle sweep (children marked idle after IdleMax seconds of
// silence), with SyncMax as the watchdog ceiling on both.
func (o *Overlay) startSyncTick() {
	if o.r == nil || o.cfg.SyncMin <= 0 {
		return
	}
	o.sync = o.r.NewSyncTicker(o.cfg.SyncMin)
	o.sync.Then(o.onSyncTick, o.cfg.SyncMax)
	o.sync.Start()
}

// onSyncTick is registered once and re-invoked by the ticker on every
// fulfillment (min-interval tick or watchdog firing); it must not
// re-register itself.
func (o *Overlay) onSyncTick() {
	now := time.Now()
	if o.cfg.IdleMin > 0 && o.sender.HasUpstream() {
		if now.Sub(o.lastUpstreamSend) >= secondsDuration(o.cfg.IdleMin) {
			o.sendKeepaliveUpstream()
		}
	}
	if o.cfg.IdleMax <= 0 {
		return
	}
	threshold := secondsDuration(o.cfg.IdleMax)
	for _, ps := range o.Peers() {
		if !ps.Connected || ps.Idle {
			continue
		}
		if now.Sub(ps.LastSeen) >= threshold {
			o.markIdle(ps.Rank, fmt.Sprintf("idle for %.0fs", o.cfg.IdleMax))
		}
	}
}

func (o *Overlay) sendKeepaliveUpstream() {
	ka, err := message.New(message.TypeKeepalive)
	if err != nil {
		return
	}
	if err := ka.SetKeepaliveFields(0, message.KeepaliveNormal); err != nil {
		return
	}
	if err := o.goUpstream(ka); err != nil {
		o.log.Warn("keepalive send failed", zap.Error(err))
	}
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
