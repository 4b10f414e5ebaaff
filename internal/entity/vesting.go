package entity

import (
	"context"
	"fmt"
	"math/big"

	"moxie-indexer/internal/domain"
)

// TokenLockManager returns the manager at addr, if any.
func (r *Repository) TokenLockManager(ctx context.Context, addr string) (*domain.TokenLockManager, bool, error) {
	return find[domain.TokenLockManager](ctx, r, domain.KindTokenLockManager, addr)
}

// MustTokenLockManager returns the manager at addr. Returns MissingReferenceError if absent.
func (r *Repository) MustTokenLockManager(ctx context.Context, addr string) (*domain.TokenLockManager, error) {
	return must[domain.TokenLockManager](ctx, r, domain.KindTokenLockManager, addr)
}

// SaveTokenLockManager persists m.
func (r *Repository) SaveTokenLockManager(ctx context.Context, m *domain.TokenLockManager) error {
	return r.put(ctx, domain.KindTokenLockManager, m.ID, m)
}

// SaveTokenLockWallet persists w.
func (r *Repository) SaveTokenLockWallet(ctx context.Context, w *domain.TokenLockWallet) error {
	return r.put(ctx, domain.KindTokenLockWallet, w.ID, w)
}

// TokenLockWallet returns the wallet at addr, if any.
func (r *Repository) TokenLockWallet(ctx context.Context, addr string) (*domain.TokenLockWallet, bool, error) {
	return find[domain.TokenLockWallet](ctx, r, domain.KindTokenLockWallet, addr)
}

// AuthorizedFunction returns the authorization stored under id, if any.
func (r *Repository) AuthorizedFunction(ctx context.Context, id string) (*domain.AuthorizedFunction, bool, error) {
	return find[domain.AuthorizedFunction](ctx, r, domain.KindAuthorizedFunction, id)
}

// SaveAuthorizedFunction persists f.
func (r *Repository) SaveAuthorizedFunction(ctx context.Context, f *domain.AuthorizedFunction) error {
	return r.put(ctx, domain.KindAuthorizedFunction, f.ID, f)
}

// DeleteAuthorizedFunction removes the authorization stored under id.
func (r *Repository) DeleteAuthorizedFunction(ctx context.Context, id string) error {
	return r.remove(ctx, domain.KindAuthorizedFunction, id)
}

// VestingSummary returns the vesting summary, creating it on first reference.
func (r *Repository) VestingSummary(ctx context.Context) (*domain.VestingSummary, error) {
	s, ok, err := find[domain.VestingSummary](ctx, r, domain.KindVestingSummary, domain.SummaryID)
	if err != nil || ok {
		return s, err
	}

	s = &domain.VestingSummary{ID: domain.SummaryID, TotalLocked: new(big.Int)}
	if err := r.put(ctx, domain.KindVestingSummary, s.ID, s); err != nil {
		return nil, fmt.Errorf("create vesting summary: %w", err)
	}
	return s, nil
}

// SaveVestingSummary persists s.
func (r *Repository) SaveVestingSummary(ctx context.Context, s *domain.VestingSummary) error {
	return r.put(ctx, domain.KindVestingSummary, s.ID, s)
}
