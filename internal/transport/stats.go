// ABOUTME: Rate-limited health reporting for a session's rings and packets
// ABOUTME: Pushes counter deltas to Prometheus and logs a summary when they move
package transport

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/soundwire/netjam/internal/metrics"
)

type counterSnapshot struct {
	rx, tx             uint64
	inUnder, inOver    uint64
	outOver, rxInvalid uint64
}

func (t *Transport) snapshot() counterSnapshot {
	return counterSnapshot{
		rx:        t.rxPackets.Load(),
		tx:        t.txPackets.Load(),
		inUnder:   t.inbound.Underruns(),
		inOver:    t.inbound.Overflows(),
		outOver:   t.outbound.Overflows(),
		rxInvalid: t.rxInvalid.Load(),
	}
}

func (t *Transport) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(t.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.flushStats()
		}
	}
}

// flushStats reports what changed since the previous flush. Called from
// the stats loop and once more after the loops exit.
func (t *Transport) flushStats() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	cur := t.snapshot()
	prev := t.reported
	t.reported = cur

	t.metrics.AddPackets(metrics.DirectionRx, cur.rx-prev.rx)
	t.metrics.AddPackets(metrics.DirectionTx, cur.tx-prev.tx)
	t.metrics.AddUnderruns(metrics.RingInbound, cur.inUnder-prev.inUnder)
	t.metrics.AddOverflows(metrics.RingInbound, cur.inOver-prev.inOver)
	t.metrics.AddOverflows(metrics.RingOutbound, cur.outOver-prev.outOver)

	underruns := cur.inUnder - prev.inUnder
	overflows := (cur.inOver - prev.inOver) + (cur.outOver - prev.outOver)
	invalid := cur.rxInvalid - prev.rxInvalid
	if underruns == 0 && overflows == 0 && invalid == 0 {
		return
	}
	t.log.WithFields(logrus.Fields{
		"underruns": underruns,
		"overflows": overflows,
		"invalid":   invalid,
		"rx":        cur.rx - prev.rx,
		"tx":        cur.tx - prev.tx,
	}).Warn("Audio stream glitches")
}
