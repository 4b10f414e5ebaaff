package entity

import (
	"context"
	"fmt"
	"math/big"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entityid"
	"moxie-indexer/internal/event"
)

// BlockInfo returns the BlockInfo for b, creating it on first reference.
func (r *Repository) BlockInfo(ctx context.Context, b event.Block) (*domain.BlockInfo, error) {
	id := entityid.BlockInfo(b.Number)
	info, ok, err := find[domain.BlockInfo](ctx, r, domain.KindBlockInfo, id)
	if err != nil || ok {
		return info, err
	}

	info = &domain.BlockInfo{
		ID:          id,
		BlockNumber: b.Number,
		Timestamp:   b.Timestamp,
		Hash:        b.Hash,
	}
	if err := r.put(ctx, domain.KindBlockInfo, id, info); err != nil {
		return nil, fmt.Errorf("create block info %s: %w", id, err)
	}
	return info, nil
}

// User returns the user for addr, creating it on first reference.
func (r *Repository) User(ctx context.Context, addr string) (*domain.User, error) {
	user, ok, err := find[domain.User](ctx, r, domain.KindUser, addr)
	if err != nil || ok {
		return user, err
	}

	user = domain.NewUser(addr)
	if err := r.put(ctx, domain.KindUser, addr, user); err != nil {
		return nil, fmt.Errorf("create user %s: %w", addr, err)
	}
	return user, nil
}

// SaveUser persists u.
func (r *Repository) SaveUser(ctx context.Context, u *domain.User) error {
	return r.put(ctx, domain.KindUser, u.ID, u)
}

// Subject returns the subject for token, creating it on first reference.
// Metadata is read from the token contract once, at creation.
func (r *Repository) Subject(ctx context.Context, token string) (*domain.Subject, error) {
	subject, ok, err := find[domain.Subject](ctx, r, domain.KindSubject, token)
	if err != nil || ok {
		return subject, err
	}

	var meta domain.TokenMetadata
	if r.metadata != nil {
		meta, err = r.metadata.TokenMetadata(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("read metadata for %s: %w", token, err)
		}
	}

	subject = domain.NewSubject(token, meta)
	if err := r.put(ctx, domain.KindSubject, token, subject); err != nil {
		return nil, fmt.Errorf("create subject %s: %w", token, err)
	}
	return subject, nil
}

// LoadSubject returns an existing subject. Returns MissingReferenceError if absent.
func (r *Repository) LoadSubject(ctx context.Context, token string) (*domain.Subject, error) {
	return must[domain.Subject](ctx, r, domain.KindSubject, token)
}

// SaveSubject persists s without touching snapshots.
func (r *Repository) SaveSubject(ctx context.Context, s *domain.Subject) error {
	return r.put(ctx, domain.KindSubject, s.ID, s)
}

// Portfolio returns the (user, subject) portfolio, creating it and its
// user and subject on first reference.
func (r *Repository) Portfolio(ctx context.Context, user, subject string) (*domain.Portfolio, error) {
	id := entityid.Portfolio(user, subject)
	portfolio, ok, err := find[domain.Portfolio](ctx, r, domain.KindPortfolio, id)
	if err != nil || ok {
		return portfolio, err
	}

	if _, err := r.User(ctx, user); err != nil {
		return nil, err
	}
	if _, err := r.Subject(ctx, subject); err != nil {
		return nil, err
	}

	portfolio = &domain.Portfolio{
		ID:                 id,
		User:               user,
		Subject:            subject,
		Balance:            new(big.Int),
		ProtocolTokenSpent: new(big.Int),
	}
	if err := r.put(ctx, domain.KindPortfolio, id, portfolio); err != nil {
		return nil, fmt.Errorf("create portfolio %s: %w", id, err)
	}
	return portfolio, nil
}

// SavePortfolio persists p.
func (r *Repository) SavePortfolio(ctx context.Context, p *domain.Portfolio) error {
	return r.put(ctx, domain.KindPortfolio, p.ID, p)
}

// Order returns an order. Returns MissingReferenceError if absent.
func (r *Repository) Order(ctx context.Context, id string) (*domain.Order, error) {
	return must[domain.Order](ctx, r, domain.KindOrder, id)
}

// SaveOrder persists o.
func (r *Repository) SaveOrder(ctx context.Context, o *domain.Order) error {
	return r.put(ctx, domain.KindOrder, o.ID, o)
}

// DeleteOrder hard-deletes an order.
func (r *Repository) DeleteOrder(ctx context.Context, id string) error {
	return r.remove(ctx, domain.KindOrder, id)
}

// AuctionOrder returns the auction order stored under id, if any.
func (r *Repository) AuctionOrder(ctx context.Context, id string) (*domain.AuctionOrder, bool, error) {
	return find[domain.AuctionOrder](ctx, r, domain.KindAuctionOrder, id)
}

// SaveAuctionOrder persists a.
func (r *Repository) SaveAuctionOrder(ctx context.Context, a *domain.AuctionOrder) error {
	return r.put(ctx, domain.KindAuctionOrder, a.ID, a)
}

// Intent returns the staged auction intent of kind stored at id, if any.
func (r *Repository) Intent(ctx context.Context, kind domain.Kind, id string) (*domain.AuctionIntent, bool, error) {
	return find[domain.AuctionIntent](ctx, r, kind, id)
}

// SaveIntent stages an auction intent under its id.
func (r *Repository) SaveIntent(ctx context.Context, kind domain.Kind, intent *domain.AuctionIntent) error {
	return r.put(ctx, kind, intent.ID, intent)
}

// SaveProtocolTransfer persists a protocol-token transfer record.
func (r *Repository) SaveProtocolTransfer(ctx context.Context, t *domain.ProtocolTransfer) error {
	return r.put(ctx, domain.KindProtocolTransfer, t.ID, t)
}

// AuctionTransfer returns the AuctionTransfer for txHash, creating it on first reference.
func (r *Repository) AuctionTransfer(ctx context.Context, txHash string) (*domain.AuctionTransfer, error) {
	at, ok, err := find[domain.AuctionTransfer](ctx, r, domain.KindAuctionTransfer, txHash)
	if err != nil || ok {
		return at, err
	}

	at = &domain.AuctionTransfer{ID: txHash}
	if err := r.put(ctx, domain.KindAuctionTransfer, txHash, at); err != nil {
		return nil, fmt.Errorf("create auction transfer %s: %w", txHash, err)
	}
	return at, nil
}

// Snapshot returns the snapshot of kind stored under id, if any.
func (r *Repository) Snapshot(ctx context.Context, kind domain.Kind, id string) (*domain.SubjectSnapshot, bool, error) {
	return find[domain.SubjectSnapshot](ctx, r, kind, id)
}

// SaveSnapshot persists a snapshot of kind.
func (r *Repository) SaveSnapshot(ctx context.Context, kind domain.Kind, s *domain.SubjectSnapshot) error {
	return r.put(ctx, kind, s.ID, s)
}

// Summary returns the protocol Summary. Returns MissingReferenceError if absent.
func (r *Repository) Summary(ctx context.Context) (*domain.Summary, error) {
	return must[domain.Summary](ctx, r, domain.KindSummary, domain.SummaryID)
}

// SummaryOrNew returns the protocol Summary, or a zeroed one if none is stored yet.
// The new Summary is not saved.
func (r *Repository) SummaryOrNew(ctx context.Context) (*domain.Summary, error) {
	s, ok, err := find[domain.Summary](ctx, r, domain.KindSummary, domain.SummaryID)
	if err != nil || ok {
		return s, err
	}
	return &domain.Summary{
		ID:                 domain.SummaryID,
		ProtocolBuyFeePct:  new(big.Int),
		ProtocolSellFeePct: new(big.Int),
		SubjectBuyFeePct:   new(big.Int),
		SubjectSellFeePct:  new(big.Int),
	}, nil
}

// SaveSummary persists the protocol Summary.
func (r *Repository) SaveSummary(ctx context.Context, s *domain.Summary) error {
	return r.put(ctx, domain.KindSummary, s.ID, s)
}

// ProtocolFeeBeneficiary returns the beneficiary stored under addr, if any.
func (r *Repository) ProtocolFeeBeneficiary(ctx context.Context, addr string) (*domain.ProtocolFeeBeneficiary, bool, error) {
	return find[domain.ProtocolFeeBeneficiary](ctx, r, domain.KindProtocolFeeBeneficiary, addr)
}

// SaveProtocolFeeBeneficiary persists b.
func (r *Repository) SaveProtocolFeeBeneficiary(ctx context.Context, b *domain.ProtocolFeeBeneficiary) error {
	return r.put(ctx, domain.KindProtocolFeeBeneficiary, b.ID, b)
}

// Checkpoint returns the processor checkpoint, if any.
func (r *Repository) Checkpoint(ctx context.Context) (*domain.Checkpoint, bool, error) {
	return find[domain.Checkpoint](ctx, r, domain.KindCheckpoint, domain.CheckpointID)
}

// SaveCheckpoint persists the processor checkpoint.
func (r *Repository) SaveCheckpoint(ctx context.Context, c *domain.Checkpoint) error {
	return r.put(ctx, domain.KindCheckpoint, domain.CheckpointID, c)
}
