package clickhouse

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/storage/migrations"
)

// Open creates the DSN's database if needed, connects to it and applies
// pending snapshot sink migrations.
func Open(ctx context.Context, dsn string, log zerolog.Logger) (*Conn, error) {
	opts, err := ParseOptions(dsn)
	if err != nil {
		return nil, err
	}
	database := opts.Auth.Database
	if database == "" {
		return nil, fmt.Errorf("clickhouse dsn has no database")
	}

	admin, err := NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, err
	}
	err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(database))
	admin.Close()
	if err != nil {
		return nil, fmt.Errorf("create database %s: %w", database, err)
	}

	conn, err := NewConnWithDatabase(ctx, dsn, database)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, conn, log); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate applies embedded migrations not yet recorded in schema_migrations.
// ClickHouse has no transactional DDL, so each version is recorded right
// after its statements succeed and migrations must stay idempotent.
// Returns the number of versions applied.
func Migrate(ctx context.Context, conn *Conn, log zerolog.Logger) (int, error) {
	ms, err := migrations.ClickHouse()
	if err != nil {
		return 0, err
	}

	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    String,
			applied_at DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree(applied_at)
		ORDER BY version`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range ms {
		if _, ok := done[m.Version]; ok {
			continue
		}
		for _, stmt := range migrations.SplitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return applied, fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
		if err := conn.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
			return applied, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		log.Info().Str("version", m.Version).Str("database", conn.Database()).Msg("clickhouse migration applied")
		applied++
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, conn *Conn) (map[string]struct{}, error) {
	rows, err := conn.Query(ctx, `SELECT DISTINCT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		out[v] = struct{}{}
	}
	return out, rows.Err()
}

func quoteIdent(name string) string {
	return "`" + name + "`"
}
