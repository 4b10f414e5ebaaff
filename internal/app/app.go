// Package app wires configuration into the stores, readers and processor
// shared by the indexer and replay commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/config"
	"moxie-indexer/internal/correlation"
	"moxie-indexer/internal/ethrpc"
	"moxie-indexer/internal/metadata"
	"moxie-indexer/internal/observability"
	"moxie-indexer/internal/processor"
	"moxie-indexer/internal/storage"
	chstore "moxie-indexer/internal/storage/clickhouse"
	"moxie-indexer/internal/storage/memory"
	pgstore "moxie-indexer/internal/storage/postgres"
	"moxie-indexer/internal/storage/redis"
	"moxie-indexer/internal/watch"
)

// Deps holds the opened backends. Close releases them.
type Deps struct {
	Store     storage.Store
	StoreName string
	Sink      storage.SnapshotSink
	Metadata  metadata.Reader

	closers []func()
}

// Close releases every backend in reverse open order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Open connects the entity store, the optional ClickHouse sink and the
// metadata reader described by cfg. On error everything opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, log zerolog.Logger) (*Deps, error) {
	d := &Deps{}
	if err := d.openStore(ctx, cfg.Store, log); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openSink(ctx, cfg.ClickHouse, log); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.openMetadata(ctx, cfg, metrics, log); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Deps) openStore(ctx context.Context, cfg config.StoreConfig, log zerolog.Logger) error {
	if cfg.Driver == config.DriverMemory {
		d.Store = memory.NewEntityStore()
		d.StoreName = config.DriverMemory
		log.Warn().Msg("using in-memory entity store, state is lost on exit")
		return nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	d.closers = append(d.closers, pool.Close)

	n, err := pgstore.Migrate(ctx, pool, log)
	if err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}
	d.Store = pgstore.NewEntityStore(pool)
	d.StoreName = config.DriverPostgres
	log.Info().Int("migrations_applied", n).Msg("postgres entity store ready")
	return nil
}

func (d *Deps) openSink(ctx context.Context, cfg config.ClickHouseConfig, log zerolog.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	conn, err := chstore.Open(ctx, cfg.DSN, log)
	if err != nil {
		return fmt.Errorf("open clickhouse sink: %w", err)
	}
	d.closers = append(d.closers, func() { conn.Close() })

	d.Sink = chstore.NewSnapshotSink(conn)
	log.Info().Msg("clickhouse snapshot sink ready")
	return nil
}

func (d *Deps) openMetadata(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, log zerolog.Logger) error {
	if cfg.RPC.Endpoint == "" {
		d.Metadata = metadata.Static{}
		log.Warn().Msg("no rpc endpoint, subject metadata is left empty")
		return nil
	}

	var reader metadata.Reader = ethrpc.NewTokenReader(ethrpc.NewHTTPClient(cfg.RPC.Endpoint,
		ethrpc.WithTimeout(cfg.RPC.Timeout),
		ethrpc.WithMaxRetries(cfg.RPC.MaxRetries),
		ethrpc.WithMetrics(metrics),
	))

	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { rdb.Close() })

		reader = metadata.NewCachedReader(rdb, reader, metadata.CacheOptions{
			Prefix:  cfg.Redis.Prefix,
			TTL:     cfg.Redis.TTL,
			Metrics: metrics,
			Logger:  log.With().Str("component", "metadata").Logger(),
		})
	}

	d.Metadata = reader
	return nil
}

// Blacklist builds the intent blacklist from cfg, falling back to the
// built-in entries when none are configured.
func Blacklist(cfg config.BlacklistConfig) *correlation.Blacklist {
	if cfg.Subjects == nil && cfg.Auctions == nil {
		b := correlation.DefaultBlacklist()
		return &b
	}
	b := correlation.NewBlacklist(cfg.Subjects, cfg.Auctions)
	return &b
}

// NewProcessor builds a processor over d.
func NewProcessor(cfg *config.Config, d *Deps, registry watch.Registry, metrics *observability.Metrics, log zerolog.Logger) *processor.Processor {
	return processor.New(d.Store, processor.Options{
		Metadata:      d.Metadata,
		Registry:      registry,
		Sink:          d.Sink,
		Metrics:       metrics,
		Blacklist:     Blacklist(cfg.Blacklist),
		ProtocolToken: cfg.Contracts.ProtocolToken,
		StoreName:     d.StoreName,
		Logger:        log,
	})
}
