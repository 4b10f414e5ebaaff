package ethrpc

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/observability"
)

// HeadTracker exports the chain head height so indexing lag can be read
// against the last processed block.
type HeadTracker struct {
	sub     HeadSubscriber
	metrics *observability.Metrics
	log     zerolog.Logger
	head    atomic.Uint64
}

// NewHeadTracker creates a HeadTracker over sub.
func NewHeadTracker(sub HeadSubscriber, metrics *observability.Metrics, log zerolog.Logger) *HeadTracker {
	return &HeadTracker{sub: sub, metrics: metrics, log: log}
}

// Run follows new heads until ctx is cancelled or the subscription ends.
func (t *HeadTracker) Run(ctx context.Context) error {
	heads, err := t.sub.SubscribeNewHeads(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case h, ok := <-heads:
			if !ok {
				return nil
			}
			// Heads can repeat or step back on reorgs; the gauge follows the node.
			t.head.Store(h.Number)
			if t.metrics != nil {
				t.metrics.RecordChainHead(h.Number)
			}
			t.log.Debug().Uint64("block", h.Number).Str("hash", h.Hash).Msg("new head")
		}
	}
}

// Head returns the last announced block number, or 0 before the first head.
func (t *HeadTracker) Head() uint64 {
	return t.head.Load()
}
