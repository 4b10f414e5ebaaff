package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"moxie-indexer/internal/storage/migrations"
)

// migrationLockID serialises concurrent Migrate calls across processes.
const migrationLockID int64 = 0x6d6f786965 // "moxie"

// Migrate applies the embedded entity store migrations that are not yet
// recorded in schema_migrations. All pending versions run in one
// transaction; a failure leaves the schema untouched.
// Returns the number of versions applied.
func Migrate(ctx context.Context, pool *Pool, log zerolog.Logger) (int, error) {
	ms, err := migrations.Postgres()
	if err != nil {
		return 0, err
	}
	return apply(ctx, pool, ms, log)
}

func apply(ctx context.Context, pool *Pool, ms []migrations.Migration, log zerolog.Logger) (int, error) {
	applied := 0
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version    TEXT        PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}

		done, err := appliedVersions(ctx, tx)
		if err != nil {
			return err
		}

		for _, m := range ms {
			if _, ok := done[m.Version]; ok {
				continue
			}
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
				return fmt.Errorf("record migration %s: %w", m.Version, err)
			}
			log.Info().Str("version", m.Version).Msg("postgres migration applied")
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, q querier) (map[string]struct{}, error) {
	rows, err := q.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	out := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		out[v] = struct{}{}
	}
	return out, nil
}
