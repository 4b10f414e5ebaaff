// Package protocol applies token manager, bonding curve and subject token
// events to subjects, portfolios and the protocol Summary.
package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/ledger"
	"moxie-indexer/internal/snapshot"
	"moxie-indexer/internal/watch"
)

// pricePrecision is the number of decimal places kept for prices.
const pricePrecision = 18

// Options configures a Handler.
type Options struct {
	// ProtocolToken is recorded on bonding-curve orders.
	ProtocolToken string
	Logger        zerolog.Logger
}

// Handler applies protocol events.
type Handler struct {
	snapshots     *snapshot.Aggregator
	ledger        *ledger.Updater
	registry      watch.Registry
	protocolToken string
	log           zerolog.Logger
}

// NewHandler creates a new Handler. A nil registry discards watch requests.
func NewHandler(snapshots *snapshot.Aggregator, l *ledger.Updater, registry watch.Registry, opts Options) *Handler {
	if registry == nil {
		registry = watch.Nop{}
	}
	return &Handler{
		snapshots:     snapshots,
		ledger:        l,
		registry:      registry,
		protocolToken: opts.ProtocolToken,
		log:           opts.Logger,
	}
}

// TokenDeployed creates the subject and its beneficiary user and starts
// watching the new token.
func (h *Handler) TokenDeployed(ctx context.Context, repo *entity.Repository, ev *event.TokenDeployed) error {
	block, err := repo.BlockInfo(ctx, ev.Block)
	if err != nil {
		return err
	}
	subject, err := repo.Subject(ctx, ev.Token)
	if err != nil {
		return err
	}
	user, err := repo.User(ctx, ev.Beneficiary)
	if err != nil {
		return err
	}

	subject.Subject = user.ID
	subject.Beneficiary = user.ID
	if err := h.snapshots.SaveSubject(ctx, repo, subject, block.Timestamp); err != nil {
		return err
	}

	req := watch.Request{Template: watch.TemplateSubjectToken, Address: ev.Token, Block: block.BlockNumber}
	if err := h.registry.Register(ctx, req); err != nil {
		return fmt.Errorf("watch subject token %s: %w", ev.Token, err)
	}

	h.log.Info().Str("subject", subject.ID).Str("symbol", subject.Symbol).Str("beneficiary", user.ID).Msg("subject token deployed")
	return nil
}

// UpdateFees creates or updates the Summary fee percentages.
func (h *Handler) UpdateFees(ctx context.Context, repo *entity.Repository, ev *event.UpdateFees) error {
	summary, err := repo.SummaryOrNew(ctx)
	if err != nil {
		return err
	}
	summary.ProtocolBuyFeePct = ev.ProtocolBuyFeePct
	summary.ProtocolSellFeePct = ev.ProtocolSellFeePct
	summary.SubjectBuyFeePct = ev.SubjectBuyFeePct
	summary.SubjectSellFeePct = ev.SubjectSellFeePct
	if err := repo.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}

	h.log.Info().
		Str("protocol_buy", summary.ProtocolBuyFeePct.String()).
		Str("protocol_sell", summary.ProtocolSellFeePct.String()).
		Str("subject_buy", summary.SubjectBuyFeePct.String()).
		Str("subject_sell", summary.SubjectSellFeePct.String()).
		Msg("fees updated")
	return nil
}

// UpdateProtocolFeeBeneficiary registers a fee beneficiary and makes it
// active. The Summary must already exist.
func (h *Handler) UpdateProtocolFeeBeneficiary(ctx context.Context, repo *entity.Repository, ev *event.UpdateProtocolFeeBeneficiary) error {
	beneficiary, ok, err := repo.ProtocolFeeBeneficiary(ctx, ev.Beneficiary)
	if err != nil {
		return err
	}
	if !ok {
		beneficiary = &domain.ProtocolFeeBeneficiary{
			ID:          ev.Beneficiary,
			Beneficiary: ev.Beneficiary,
			TotalFees:   new(big.Int),
		}
		if err := repo.SaveProtocolFeeBeneficiary(ctx, beneficiary); err != nil {
			return fmt.Errorf("save fee beneficiary: %w", err)
		}
	}

	summary, err := repo.Summary(ctx)
	if err != nil {
		return fmt.Errorf("set fee beneficiary %s: %w", ev.Beneficiary, err)
	}
	summary.ActiveProtocolFeeBeneficiary = beneficiary.ID
	if err := repo.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// price returns protocol/subject as a decimal, or zero for an empty trade.
func price(protocolAmount, subjectAmount *big.Int) decimal.Decimal {
	if subjectAmount.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(protocolAmount, 0).
		DivRound(decimal.NewFromBigInt(subjectAmount, 0), pricePrecision)
}

// accrueProtocolFee credits the active fee beneficiary, if one is set.
func accrueProtocolFee(ctx context.Context, repo *entity.Repository, summary *domain.Summary, fee *big.Int) error {
	if summary.ActiveProtocolFeeBeneficiary == "" || fee.Sign() == 0 {
		return nil
	}
	b, ok, err := repo.ProtocolFeeBeneficiary(ctx, summary.ActiveProtocolFeeBeneficiary)
	if err != nil || !ok {
		return err
	}
	b.TotalFees = new(big.Int).Add(b.TotalFees, fee)
	return repo.SaveProtocolFeeBeneficiary(ctx, b)
}

// recordSubjectFee links a trade to the user receiving its subject fee.
func recordSubjectFee(ctx context.Context, repo *entity.Repository, subject *domain.Subject, orderID string, fee *big.Int) error {
	if subject.Beneficiary == "" || fee.Sign() == 0 {
		return nil
	}
	user, err := repo.User(ctx, subject.Beneficiary)
	if err != nil {
		return err
	}
	user.SubjectFeeTransfers = append(user.SubjectFeeTransfers, orderID)
	return repo.SaveUser(ctx, user)
}
