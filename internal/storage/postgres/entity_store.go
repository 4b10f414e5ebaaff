package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/storage"
)

// EntityStore is a PostgreSQL implementation of storage.Store.
// All entities live in the entities table as JSONB documents keyed by (kind, id).
type EntityStore struct {
	entities
	pool *Pool
}

// NewEntityStore creates a new PostgreSQL entity store.
func NewEntityStore(pool *Pool) *EntityStore {
	return &EntityStore{
		entities: entities{q: pool},
		pool:     pool,
	}
}

// InTx runs fn inside a database transaction. The transaction commits if fn returns nil.
func (s *EntityStore) InTx(ctx context.Context, fn func(tx storage.EntityStore) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&entities{q: tx})
	})
}

// entities implements storage.EntityStore over a pool or a transaction.
type entities struct {
	q querier
}

// Load decodes the entity stored under (kind, id) into dst. Returns ErrNotFound if not exists.
func (e *entities) Load(ctx context.Context, kind domain.Kind, id string, dst any) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}

	var raw []byte
	err := e.q.QueryRow(ctx, `
		SELECT data
		FROM entities
		WHERE kind = $1 AND id = $2
	`, string(kind), id).Scan(&raw)
	if err != nil {
		if isNotFoundError(err) {
			return storage.NotFound(kind, id)
		}
		return fmt.Errorf("load %s %s: %w", kind, id, err)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

// Save inserts or replaces the entity stored under (kind, id).
func (e *entities) Save(ctx context.Context, kind domain.Kind, id string, v any) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}
	if v == nil {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, id, err)
	}

	_, err = e.q.Exec(ctx, `
		INSERT INTO entities (kind, id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, id) DO UPDATE
		SET data = EXCLUDED.data,
		    updated_at = NOW()
	`, string(kind), id, raw)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", kind, id, err)
	}
	return nil
}

// Delete removes the entity stored under (kind, id).
func (e *entities) Delete(ctx context.Context, kind domain.Kind, id string) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}

	_, err := e.q.Exec(ctx, `
		DELETE FROM entities
		WHERE kind = $1 AND id = $2
	`, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return nil
}

// Count returns the number of entities of kind.
func (e *entities) Count(ctx context.Context, kind domain.Kind) (int, error) {
	var n int
	err := e.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM entities
		WHERE kind = $1
	`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

var _ storage.Store = (*EntityStore)(nil)
