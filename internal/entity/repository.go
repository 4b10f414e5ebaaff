// Package entity loads, creates and saves indexer entities on top of a storage.EntityStore.
//
// A Repository is scoped to one event. Within that scope every load of the
// same (kind, id) returns the same pointer, so handlers that touch the same
// user or portfolio compose without overwriting each other's changes.
package entity

import (
	"context"
	"errors"
	"fmt"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/storage"
)

// MetadataReader reads ERC20 metadata for a subject token.
type MetadataReader interface {
	TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error)
}

type cacheKey struct {
	kind domain.Kind
	id   string
}

// Repository is the entity store adapter used by event handlers.
type Repository struct {
	store    storage.EntityStore
	metadata MetadataReader
	cache    map[cacheKey]any // nil value marks a deleted entity
}

// NewRepository creates a Repository over store.
func NewRepository(store storage.EntityStore, metadata MetadataReader) *Repository {
	return &Repository{
		store:    store,
		metadata: metadata,
		cache:    make(map[cacheKey]any),
	}
}

// get loads (kind, id) through the identity map. Returns storage.ErrNotFound if not exists.
func get[T any](ctx context.Context, r *Repository, kind domain.Kind, id string) (*T, error) {
	k := cacheKey{kind, id}
	if v, ok := r.cache[k]; ok {
		if v == nil {
			return nil, storage.NotFound(kind, id)
		}
		out, ok := v.(*T)
		if !ok {
			return nil, fmt.Errorf("entity %s %q cached as %T", kind, id, v)
		}
		return out, nil
	}

	var out T
	if err := r.store.Load(ctx, kind, id, &out); err != nil {
		return nil, err
	}
	r.cache[k] = &out
	return &out, nil
}

// find is get with a found flag instead of storage.ErrNotFound.
func find[T any](ctx context.Context, r *Repository, kind domain.Kind, id string) (*T, bool, error) {
	v, err := get[T](ctx, r, kind, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// must is get that turns a miss into a MissingReferenceError.
func must[T any](ctx context.Context, r *Repository, kind domain.Kind, id string) (*T, error) {
	v, ok, err := find[T](ctx, r, kind, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &MissingReferenceError{Kind: kind, ID: id}
	}
	return v, nil
}

func (r *Repository) put(ctx context.Context, kind domain.Kind, id string, v any) error {
	if err := r.store.Save(ctx, kind, id, v); err != nil {
		return err
	}
	r.cache[cacheKey{kind, id}] = v
	return nil
}

func (r *Repository) remove(ctx context.Context, kind domain.Kind, id string) error {
	if err := r.store.Delete(ctx, kind, id); err != nil {
		return err
	}
	r.cache[cacheKey{kind, id}] = nil
	return nil
}

// Count returns the number of stored entities of kind.
func (r *Repository) Count(ctx context.Context, kind domain.Kind) (int, error) {
	return r.store.Count(ctx, kind)
}
