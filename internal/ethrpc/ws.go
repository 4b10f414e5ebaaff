package ethrpc

import "context"

// HeadSubscriber streams new chain heads.
type HeadSubscriber interface {
	// SubscribeNewHeads subscribes to newHeads. The channel is closed on Close.
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)

	// Close closes the WebSocket connection.
	Close() error
}

// Head is a block header notification.
type Head struct {
	Number    uint64
	Hash      string
	Timestamp uint64
}
