package replay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/event"
)

// Runner replays archived events through an Engine.
type Runner struct {
	log zerolog.Logger
}

// NewRunner creates a new replay runner.
func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Run orders events by (block_number, log_index) and replays them through
// engine, stopping at the first error. Two events at the same position make
// the archive invalid. Returns the number of events handed to engine.
func (r *Runner) Run(ctx context.Context, events []event.Event, engine Engine) (int, error) {
	event.Sort(events)
	if err := event.ValidateOrdering(events); err != nil {
		return 0, err
	}

	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := engine.OnEvent(ctx, ev); err != nil {
			return i, fmt.Errorf("replay event %d of %d: %w", i+1, len(events), err)
		}
		if (i+1)%10000 == 0 {
			r.log.Info().Int("replayed", i+1).Int("total", len(events)).Msg("replay progress")
		}
	}

	r.log.Info().Int("replayed", len(events)).Msg("replay complete")
	return len(events), nil
}

// RunFile reads the archive at path and replays it through engine.
func (r *Runner) RunFile(ctx context.Context, path string, engine Engine) (int, error) {
	events, err := ReadArchiveFile(path)
	if err != nil {
		return 0, err
	}
	r.log.Info().Str("archive", path).Int("events", len(events)).Msg("archive loaded")
	return r.Run(ctx, events, engine)
}
