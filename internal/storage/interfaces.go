package storage

import (
	"context"

	"moxie-indexer/internal/domain"
)

// EntityStore provides keyed access to indexer entities.
// Entities are addressed by (kind, id) and stored as JSON documents.
type EntityStore interface {
	// Load decodes the entity stored under (kind, id) into dst. Returns ErrNotFound if not exists.
	Load(ctx context.Context, kind domain.Kind, id string, dst any) error

	// Save inserts or replaces the entity stored under (kind, id).
	Save(ctx context.Context, kind domain.Kind, id string, v any) error

	// Delete removes the entity stored under (kind, id). Deleting a missing entity is a no-op.
	Delete(ctx context.Context, kind domain.Kind, id string) error

	// Count returns the number of entities of kind.
	Count(ctx context.Context, kind domain.Kind) (int, error)
}

// Store is an EntityStore that can apply a group of writes atomically.
type Store interface {
	EntityStore

	// InTx runs fn against a transactional view of the store.
	// Writes made through tx become visible only if fn returns nil.
	InTx(ctx context.Context, fn func(tx EntityStore) error) error
}

// SnapshotRecord is a subject snapshot tagged with its bucket granularity.
type SnapshotRecord struct {
	Kind     domain.Kind // KindSubjectHourlySnapshot or KindSubjectDailySnapshot
	Snapshot *domain.SubjectSnapshot
}

// SnapshotSink receives committed snapshot states for analytics.
type SnapshotSink interface {
	// WriteSnapshots appends snapshot states. Later writes for the same id supersede earlier ones.
	WriteSnapshots(ctx context.Context, records []SnapshotRecord) error
}
