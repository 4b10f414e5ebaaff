package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/storage"
)

// EntityStore is an in-memory implementation of storage.Store.
// Entities are kept JSON-encoded so callers never share state with the store.
type EntityStore struct {
	mu   sync.RWMutex
	data map[domain.Kind]map[string][]byte
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	data := make(map[domain.Kind]map[string][]byte, len(domain.Kinds))
	for _, k := range domain.Kinds {
		data[k] = make(map[string][]byte)
	}
	return &EntityStore{data: data}
}

// Load decodes the entity stored under (kind, id) into dst. Returns ErrNotFound if not exists.
func (s *EntityStore) Load(_ context.Context, kind domain.Kind, id string, dst any) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}

	s.mu.RLock()
	raw, ok := s.data[kind][id]
	s.mu.RUnlock()

	if !ok {
		return storage.NotFound(kind, id)
	}
	return decode(kind, id, raw, dst)
}

// Save inserts or replaces the entity stored under (kind, id).
func (s *EntityStore) Save(_ context.Context, kind domain.Kind, id string, v any) error {
	raw, err := encode(kind, id, v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bucket(kind)[id] = raw
	return nil
}

// Delete removes the entity stored under (kind, id).
func (s *EntityStore) Delete(_ context.Context, kind domain.Kind, id string) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[kind], id)
	return nil
}

// Count returns the number of entities of kind.
func (s *EntityStore) Count(_ context.Context, kind domain.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[kind]), nil
}

// InTx runs fn against a staged view. Staged writes are applied only if fn returns nil.
func (s *EntityStore) InTx(ctx context.Context, fn func(tx storage.EntityStore) error) error {
	tx := newTxView(s)
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, raw := range tx.writes {
		s.bucket(k.kind)[k.id] = raw
	}
	for k := range tx.deletes {
		delete(s.data[k.kind], k.id)
	}
	return nil
}

// bucket returns the map for kind, creating it if needed. Caller holds mu.
func (s *EntityStore) bucket(kind domain.Kind) map[string][]byte {
	b, ok := s.data[kind]
	if !ok {
		b = make(map[string][]byte)
		s.data[kind] = b
	}
	return b
}

func (s *EntityStore) ids(kind domain.Kind) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.data[kind]))
	for id := range s.data[kind] {
		out[id] = struct{}{}
	}
	return out
}

type entityKey struct {
	kind domain.Kind
	id   string
}

// txView stages writes over a base store.
type txView struct {
	base    *EntityStore
	writes  map[entityKey][]byte
	deletes map[entityKey]struct{}
}

func newTxView(base *EntityStore) *txView {
	return &txView{
		base:    base,
		writes:  make(map[entityKey][]byte),
		deletes: make(map[entityKey]struct{}),
	}
}

func (t *txView) Load(ctx context.Context, kind domain.Kind, id string, dst any) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}
	k := entityKey{kind, id}
	if _, deleted := t.deletes[k]; deleted {
		return storage.NotFound(kind, id)
	}
	if raw, ok := t.writes[k]; ok {
		return decode(kind, id, raw, dst)
	}
	return t.base.Load(ctx, kind, id, dst)
}

func (t *txView) Save(_ context.Context, kind domain.Kind, id string, v any) error {
	raw, err := encode(kind, id, v)
	if err != nil {
		return err
	}
	k := entityKey{kind, id}
	delete(t.deletes, k)
	t.writes[k] = raw
	return nil
}

func (t *txView) Delete(_ context.Context, kind domain.Kind, id string) error {
	if err := storage.ValidateKey(kind, id); err != nil {
		return err
	}
	k := entityKey{kind, id}
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

func (t *txView) Count(_ context.Context, kind domain.Kind) (int, error) {
	ids := t.base.ids(kind)
	for k := range t.writes {
		if k.kind == kind {
			ids[k.id] = struct{}{}
		}
	}
	for k := range t.deletes {
		if k.kind == kind {
			delete(ids, k.id)
		}
	}
	return len(ids), nil
}

func encode(kind domain.Kind, id string, v any) ([]byte, error) {
	if err := storage.ValidateKey(kind, id); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, storage.ErrInvalidInput
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return raw, nil
}

func decode(kind domain.Kind, id string, raw []byte, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return nil
}

var _ storage.Store = (*EntityStore)(nil)
