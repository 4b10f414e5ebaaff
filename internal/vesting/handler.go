// Package vesting applies token lock manager events.
// Every manager event resolves the manager by the emitting contract address.
package vesting

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/entityid"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/watch"
)

// Handler applies vesting events.
type Handler struct {
	registry watch.Registry
	log      zerolog.Logger
}

// NewHandler creates a new Handler. A nil registry discards watch requests.
func NewHandler(registry watch.Registry, log zerolog.Logger) *Handler {
	if registry == nil {
		registry = watch.Nop{}
	}
	return &Handler{registry: registry, log: log}
}

// MasterCopyUpdated creates the manager on first sight and sets its master copy.
func (h *Handler) MasterCopyUpdated(ctx context.Context, repo *entity.Repository, ev *event.MasterCopyUpdated) error {
	manager, ok, err := repo.TokenLockManager(ctx, ev.Address)
	if err != nil {
		return err
	}
	if !ok {
		manager = &domain.TokenLockManager{
			ID:                       ev.Address,
			Tokens:                   new(big.Int),
			TokenLockCount:           new(big.Int),
			TokenDestinations:        []string{},
			SubjectTokenDestinations: []string{},
		}
	}
	manager.MasterCopy = ev.MasterCopy
	return repo.SaveTokenLockManager(ctx, manager)
}

// TokenLockCreated creates a wallet, counts it on its manager, adds the
// managed amount to the vesting summary and starts watching the wallet.
func (h *Handler) TokenLockCreated(ctx context.Context, repo *entity.Repository, ev *event.TokenLockCreated) error {
	manager, err := repo.MustTokenLockManager(ctx, ev.Address)
	if err != nil {
		return fmt.Errorf("token lock %s: %w", ev.ContractAddress, err)
	}
	manager.TokenLockCount = new(big.Int).Add(manager.TokenLockCount, big.NewInt(1))
	if err := repo.SaveTokenLockManager(ctx, manager); err != nil {
		return err
	}

	wallet := &domain.TokenLockWallet{
		ID:                 ev.ContractAddress,
		Manager:            manager.ID,
		InitHash:           ev.InitHash,
		Beneficiary:        ev.Beneficiary,
		Token:              ev.Token,
		ManagedAmount:      ev.ManagedAmount,
		Balance:            new(big.Int).Set(ev.ManagedAmount),
		StartTime:          ev.StartTime,
		EndTime:            ev.EndTime,
		Periods:            ev.Periods,
		ReleaseStartTime:   ev.ReleaseStartTime,
		VestingCliffTime:   ev.VestingCliffTime,
		Revocable:          domain.RevocableFromCode(ev.Revocable),
		TokensWithdrawn:    new(big.Int),
		TokensRevoked:      new(big.Int),
		TokensReleased:     new(big.Int),
		BlockNumberCreated: ev.Block.Number,
		TxHash:             ev.TxHash,
	}
	if err := repo.SaveTokenLockWallet(ctx, wallet); err != nil {
		return fmt.Errorf("save token lock wallet: %w", err)
	}

	summary, err := repo.VestingSummary(ctx)
	if err != nil {
		return err
	}
	summary.TotalLocked = new(big.Int).Add(summary.TotalLocked, ev.ManagedAmount)
	if err := repo.SaveVestingSummary(ctx, summary); err != nil {
		return err
	}

	req := watch.Request{Template: watch.TemplateTokenLockWallet, Address: wallet.ID, Block: ev.Block.Number}
	if err := h.registry.Register(ctx, req); err != nil {
		return fmt.Errorf("watch token lock wallet %s: %w", wallet.ID, err)
	}

	h.log.Info().
		Str("wallet", wallet.ID).
		Str("manager", manager.ID).
		Str("managed_amount", ev.ManagedAmount.String()).
		Msg("token lock created")
	return nil
}

// TokensDeposited adds to the manager's token balance.
func (h *Handler) TokensDeposited(ctx context.Context, repo *entity.Repository, ev *event.TokensDeposited) error {
	return h.adjustTokens(ctx, repo, ev.Address, ev.Amount)
}

// TokensWithdrawn subtracts from the manager's token balance.
func (h *Handler) TokensWithdrawn(ctx context.Context, repo *entity.Repository, ev *event.TokensWithdrawn) error {
	return h.adjustTokens(ctx, repo, ev.Address, new(big.Int).Neg(ev.Amount))
}

func (h *Handler) adjustTokens(ctx context.Context, repo *entity.Repository, addr string, delta *big.Int) error {
	manager, err := repo.MustTokenLockManager(ctx, addr)
	if err != nil {
		return err
	}
	manager.Tokens = new(big.Int).Add(manager.Tokens, delta)
	return repo.SaveTokenLockManager(ctx, manager)
}

// FunctionCallAuth stores a function authorization, or deletes it when the
// target is the zero address.
func (h *Handler) FunctionCallAuth(ctx context.Context, repo *entity.Repository, ev *event.FunctionCallAuth) error {
	id := entityid.AuthorizedFunction(ev.Signature, ev.Address)
	if event.IsZeroAddress(ev.Target) {
		return repo.DeleteAuthorizedFunction(ctx, id)
	}
	return repo.SaveAuthorizedFunction(ctx, &domain.AuthorizedFunction{
		ID:      id,
		Sig:     ev.Signature,
		SigHash: ev.SigHash,
		Target:  ev.Target,
		Manager: ev.Address,
	})
}

// DestinationAllowed adds or removes an address from one of the manager's
// allow-lists. The event kind selects the list.
func (h *Handler) DestinationAllowed(ctx context.Context, repo *entity.Repository, ev *event.DestinationAllowed) error {
	manager, err := repo.MustTokenLockManager(ctx, ev.Address)
	if err != nil {
		return err
	}
	switch ev.Kind {
	case event.KindTokenDestinationAllowed:
		manager.TokenDestinations = setMembership(manager.TokenDestinations, ev.Dst, ev.Allowed)
	case event.KindSubjectTokenDestinationAllowed:
		manager.SubjectTokenDestinations = setMembership(manager.SubjectTokenDestinations, ev.Dst, ev.Allowed)
	default:
		return fmt.Errorf("%s is not a destination event", ev.Kind)
	}
	return repo.SaveTokenLockManager(ctx, manager)
}

// MoxiePassTokenUpdated sets the manager's pass token.
func (h *Handler) MoxiePassTokenUpdated(ctx context.Context, repo *entity.Repository, ev *event.MoxiePassTokenUpdated) error {
	manager, err := repo.MustTokenLockManager(ctx, ev.Address)
	if err != nil {
		return err
	}
	manager.MoxiePassToken = ev.MoxiePassToken
	return repo.SaveTokenLockManager(ctx, manager)
}

// TokenManagerUpdated sets the manager's token manager.
func (h *Handler) TokenManagerUpdated(ctx context.Context, repo *entity.Repository, ev *event.TokenManagerUpdated) error {
	manager, err := repo.MustTokenLockManager(ctx, ev.Address)
	if err != nil {
		return err
	}
	manager.TokenManager = ev.TokenManager
	return repo.SaveTokenLockManager(ctx, manager)
}

// setMembership adds or removes addr, keeping list order and no duplicates.
func setMembership(list []string, addr string, allowed bool) []string {
	for i, v := range list {
		if v != addr {
			continue
		}
		if allowed {
			return list
		}
		return append(list[:i], list[i+1:]...)
	}
	if allowed {
		return append(list, addr)
	}
	return list
}
