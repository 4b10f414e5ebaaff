// Package replay feeds an archive of decoded events through an Engine in
// chain order.
package replay

import (
	"context"

	"moxie-indexer/internal/event"
)

// Engine processes events in deterministic order.
type Engine interface {
	// OnEvent is called for each event in order.
	// Events are guaranteed to be ordered by (block_number, log_index).
	OnEvent(ctx context.Context, ev event.Event) error
}
