// Package processor applies decoded events to the entity store, one store
// transaction per event.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"moxie-indexer/internal/correlation"
	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/ledger"
	"moxie-indexer/internal/observability"
	"moxie-indexer/internal/protocol"
	"moxie-indexer/internal/snapshot"
	"moxie-indexer/internal/storage"
	"moxie-indexer/internal/vesting"
	"moxie-indexer/internal/watch"
)

// ErrUnhandledEvent is returned for an event type no handler accepts.
var ErrUnhandledEvent = errors.New("unhandled event")

// Options configures a Processor.
type Options struct {
	Metadata entity.MetadataReader
	Registry watch.Registry
	// Sink receives snapshot states after each commit. Optional.
	Sink storage.SnapshotSink
	// Metrics defaults to observability.DefaultMetrics.
	Metrics   *observability.Metrics
	Blacklist *correlation.Blacklist
	KeyFunc   correlation.KeyFunc
	// ProtocolToken is recorded on bonding-curve orders.
	ProtocolToken string
	// StoreName labels database metrics.
	StoreName string
	Logger    zerolog.Logger
}

// Stats counts what a Processor did during its lifetime.
type Stats struct {
	Applied  map[event.Kind]int
	Outcomes map[string]int
	Skipped  int
}

// Processor applies events strictly in order. OnEvent is not safe for
// concurrent use; Stats may be called from any goroutine.
type Processor struct {
	store       storage.Store
	metadata    entity.MetadataReader
	correlation *correlation.Engine
	protocol    *protocol.Handler
	vesting     *vesting.Handler
	snapshots   *snapshot.Aggregator
	sink        storage.SnapshotSink
	metrics     *observability.Metrics
	storeName   string
	runID       string
	log         zerolog.Logger

	resumeLoaded bool
	resume       *event.Position // checkpoint found at startup
	last         *event.Position // last event applied by this run

	mu    sync.Mutex
	stats Stats
}

// New creates a Processor over store.
func New(store storage.Store, opts Options) *Processor {
	log := opts.Logger
	l := ledger.NewUpdater(log.With().Str("component", "ledger").Logger())
	snapshots := snapshot.NewAggregator(log.With().Str("component", "snapshot").Logger())

	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	storeName := opts.StoreName
	if storeName == "" {
		storeName = "store"
	}

	return &Processor{
		store:    store,
		metadata: opts.Metadata,
		correlation: correlation.NewEngine(l, correlation.Options{
			KeyFunc:   opts.KeyFunc,
			Blacklist: opts.Blacklist,
			Logger:    log.With().Str("component", "correlation").Logger(),
		}),
		protocol: protocol.NewHandler(snapshots, l, opts.Registry, protocol.Options{
			ProtocolToken: opts.ProtocolToken,
			Logger:        log.With().Str("component", "protocol").Logger(),
		}),
		vesting:   vesting.NewHandler(opts.Registry, log.With().Str("component", "vesting").Logger()),
		snapshots: snapshots,
		sink:      opts.Sink,
		metrics:   metrics,
		storeName: storeName,
		runID:     uuid.NewString(),
		log:       log,
		stats: Stats{
			Applied:  make(map[event.Kind]int),
			Outcomes: make(map[string]int),
		},
	}
}

// RunID identifies this Processor in the checkpoints it writes.
func (p *Processor) RunID() string {
	return p.runID
}

// Stats returns a copy of the processing counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := Stats{
		Applied:  make(map[event.Kind]int, len(p.stats.Applied)),
		Outcomes: make(map[string]int, len(p.stats.Outcomes)),
		Skipped:  p.stats.Skipped,
	}
	for k, v := range p.stats.Applied {
		out.Applied[k] = v
	}
	for k, v := range p.stats.Outcomes {
		out.Outcomes[k] = v
	}
	return out
}

// OnEvent applies ev atomically together with the checkpoint.
// Events at or below the stored checkpoint are skipped. Once this run has
// applied an event, a repeat of it is skipped and an older one fails with
// event.ErrInvalidOrdering.
func (p *Processor) OnEvent(ctx context.Context, ev event.Event) error {
	h := ev.Header()
	pos := h.Position()
	kind := string(h.Kind)

	skip, err := p.admit(ctx, pos)
	if err != nil {
		p.metrics.RecordEventError(kind, errorType(err))
		return err
	}
	if skip {
		p.mu.Lock()
		p.stats.Skipped++
		p.mu.Unlock()
		p.metrics.RecordEventSkipped()
		p.log.Debug().Str("kind", kind).Str("position", pos.String()).Msg("event skipped")
		return nil
	}

	start := time.Now()
	var outcome string
	err = p.store.InTx(ctx, func(tx storage.EntityStore) error {
		repo := entity.NewRepository(tx, p.metadata)

		var err error
		if outcome, err = p.dispatch(ctx, repo, ev); err != nil {
			return err
		}
		return repo.SaveCheckpoint(ctx, &domain.Checkpoint{
			ID:          domain.CheckpointID,
			BlockNumber: pos.BlockNumber,
			LogIndex:    pos.LogIndex,
			TxHash:      h.TxHash,
			RunID:       p.runID,
		})
	})
	elapsed := time.Since(start).Seconds()
	p.metrics.RecordDBQuery(p.storeName, "apply", elapsed, err)

	if err != nil {
		p.snapshots.Discard()
		p.metrics.RecordEventError(kind, errorType(err))
		p.log.Error().
			Err(err).
			Str("kind", kind).
			Str("position", pos.String()).
			Str("tx_hash", h.TxHash).
			Msg("event failed")
		return fmt.Errorf("apply %s at %s: %w", h.Kind, pos, err)
	}

	p.last = &pos
	p.mu.Lock()
	p.stats.Applied[h.Kind]++
	if outcome != "" {
		p.stats.Outcomes[outcome]++
	}
	p.mu.Unlock()
	p.metrics.RecordEventProcessed(kind, pos.BlockNumber, elapsed)
	p.record(h.Kind, outcome)
	p.flush(ctx)

	p.log.Debug().Str("kind", kind).Str("position", pos.String()).Str("outcome", outcome).Msg("event applied")
	return nil
}

// admit decides whether an event at pos is new, a repeat, or out of order.
func (p *Processor) admit(ctx context.Context, pos event.Position) (bool, error) {
	if p.last != nil {
		switch c := pos.Compare(*p.last); {
		case c > 0:
			return false, nil
		case c == 0:
			return true, nil
		default:
			return false, fmt.Errorf("%w: %s after %s", event.ErrInvalidOrdering, pos, *p.last)
		}
	}

	if !p.resumeLoaded {
		cp, ok, err := entity.NewRepository(p.store, nil).Checkpoint(ctx)
		if err != nil {
			return false, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok {
			p.resume = &event.Position{BlockNumber: cp.BlockNumber, LogIndex: cp.LogIndex}
			p.log.Info().
				Str("position", p.resume.String()).
				Str("previous_run", cp.RunID).
				Msg("resuming from checkpoint")
		}
		p.resumeLoaded = true
	}
	return p.resume != nil && pos.Compare(*p.resume) <= 0, nil
}

func (p *Processor) record(kind event.Kind, outcome string) {
	switch kind {
	case event.KindTransfer:
		p.metrics.RecordCorrelation(outcome)
	case event.KindAuctionNewSellOrder, event.KindAuctionCancellationSellOrder, event.KindAuctionClaimedFromOrder:
		p.metrics.RecordIntent(string(kind), outcome == outcomeStaged)
	}
}

// flush hands committed snapshot states to the sink. Sink failures are
// logged and counted; the store stays the source of truth.
func (p *Processor) flush(ctx context.Context) {
	records := p.snapshots.Drain()
	if len(records) == 0 {
		return
	}
	for _, r := range records {
		p.metrics.RecordSnapshotWrites(string(r.Kind), 1)
	}
	if p.sink == nil {
		return
	}
	if err := p.sink.WriteSnapshots(ctx, records); err != nil {
		p.metrics.RecordSinkError()
		p.log.Warn().Err(err).Int("records", len(records)).Msg("snapshot sink write failed")
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, correlation.ErrMissingCorrelation):
		return "missing_correlation"
	case errors.Is(err, correlation.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, entity.ErrMissingReference):
		return "missing_reference"
	case errors.Is(err, event.ErrInvalidOrdering):
		return "invalid_ordering"
	case errors.Is(err, ErrUnhandledEvent):
		return "unhandled_event"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "store"
	}
}
