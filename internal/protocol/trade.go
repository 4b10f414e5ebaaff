package protocol

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/entityid"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/fees"
)

// SharePurchased applies a bonding-curve buy: the deposit minus fees goes
// to the reserve and the beneficiary's portfolio receives the shares.
func (h *Handler) SharePurchased(ctx context.Context, repo *entity.Repository, ev *event.SubjectSharePurchased) error {
	block, err := repo.BlockInfo(ctx, ev.Block)
	if err != nil {
		return err
	}
	summary, err := repo.Summary(ctx)
	if err != nil {
		return fmt.Errorf("buy fees: %w", err)
	}
	f := fees.ConfigFromSummary(summary).BuySide(ev.Deposit)

	subject, err := repo.Subject(ctx, ev.SubjectToken)
	if err != nil {
		return err
	}
	p := price(ev.Deposit, ev.Shares)
	subject.Volume = new(big.Int).Add(subject.Volume, ev.Deposit)
	subject.ProtocolFee = new(big.Int).Add(subject.ProtocolFee, f.ProtocolFee)
	subject.BeneficiaryFee = new(big.Int).Add(subject.BeneficiaryFee, f.SubjectFee)
	subject.Reserve = new(big.Int).Add(subject.Reserve, new(big.Int).Sub(ev.Deposit, f.Total()))
	subject.TotalSupply = new(big.Int).Add(subject.TotalSupply, ev.Shares)
	subject.CurrentPrice = p

	portfolio, err := repo.Portfolio(ctx, ev.Beneficiary, subject.ID)
	if err != nil {
		return err
	}
	portfolio.Balance = new(big.Int).Add(portfolio.Balance, ev.Shares)
	subject.SyncHolder(portfolio)
	if err := repo.SavePortfolio(ctx, portfolio); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}

	if err := h.ledger.Apply(ctx, repo, ev.Spender, subject.ID, ev.Deposit); err != nil {
		return fmt.Errorf("buy %s: %w", subject.ID, err)
	}

	order := &domain.Order{
		ID:                      entityid.TxEntity(ev.TxHash, ev.LogIndex),
		ProtocolToken:           h.protocolToken,
		ProtocolTokenAmount:     new(big.Int).Set(ev.Deposit),
		ProtocolTokenInvestment: decimal.NewFromBigInt(ev.Deposit, 0),
		SubjectToken:            subject.ID,
		SubjectAmount:           new(big.Int).Set(ev.Shares),
		SubjectAmountLeft:       new(big.Int).Set(ev.Shares),
		OrderType:               domain.OrderTypeBuy,
		User:                    ev.Beneficiary,
		Portfolio:               portfolio.ID,
		Price:                   p,
		BlockInfo:               block.ID,
	}
	if err := h.saveTradeOrder(ctx, repo, order, summary, subject, f); err != nil {
		return err
	}

	user, err := repo.User(ctx, ev.Beneficiary)
	if err != nil {
		return err
	}
	user.BuyOrders = append(user.BuyOrders, order.ID)
	user.ProtocolOrders = append(user.ProtocolOrders, order.ID)
	if err := repo.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	return h.snapshots.SaveSubject(ctx, repo, subject, block.Timestamp)
}

// ShareSold applies a bonding-curve sell: the gross proceeds leave the
// reserve and the seller's portfolio gives up the shares.
func (h *Handler) ShareSold(ctx context.Context, repo *entity.Repository, ev *event.SubjectShareSold) error {
	block, err := repo.BlockInfo(ctx, ev.Block)
	if err != nil {
		return err
	}
	summary, err := repo.Summary(ctx)
	if err != nil {
		return fmt.Errorf("sell fees: %w", err)
	}
	f := fees.ConfigFromSummary(summary).SellSide(ev.Proceeds)

	subject, err := repo.Subject(ctx, ev.SubjectToken)
	if err != nil {
		return err
	}
	p := price(ev.Proceeds, ev.Shares)
	subject.Volume = new(big.Int).Add(subject.Volume, ev.Proceeds)
	subject.ProtocolFee = new(big.Int).Add(subject.ProtocolFee, f.ProtocolFee)
	subject.BeneficiaryFee = new(big.Int).Add(subject.BeneficiaryFee, f.SubjectFee)
	subject.Reserve = new(big.Int).Sub(subject.Reserve, ev.Proceeds)
	subject.TotalSupply = new(big.Int).Sub(subject.TotalSupply, ev.Shares)
	subject.CurrentPrice = p

	portfolio, err := repo.Portfolio(ctx, ev.Seller, subject.ID)
	if err != nil {
		return err
	}
	portfolio.Balance = new(big.Int).Sub(portfolio.Balance, ev.Shares)
	subject.SyncHolder(portfolio)
	if err := repo.SavePortfolio(ctx, portfolio); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}

	if err := h.ledger.Apply(ctx, repo, ev.Seller, subject.ID, new(big.Int).Neg(ev.Proceeds)); err != nil {
		return fmt.Errorf("sell %s: %w", subject.ID, err)
	}

	order := &domain.Order{
		ID:                      entityid.TxEntity(ev.TxHash, ev.LogIndex),
		ProtocolToken:           h.protocolToken,
		ProtocolTokenAmount:     new(big.Int).Sub(ev.Proceeds, f.Total()),
		ProtocolTokenInvestment: decimal.NewFromBigInt(ev.Proceeds, 0),
		SubjectToken:            subject.ID,
		SubjectAmount:           new(big.Int).Set(ev.Shares),
		SubjectAmountLeft:       new(big.Int),
		OrderType:               domain.OrderTypeSell,
		User:                    ev.Seller,
		Portfolio:               portfolio.ID,
		Price:                   p,
		BlockInfo:               block.ID,
	}
	if err := h.saveTradeOrder(ctx, repo, order, summary, subject, f); err != nil {
		return err
	}

	user, err := repo.User(ctx, ev.Seller)
	if err != nil {
		return err
	}
	user.SellOrders = append(user.SellOrders, order.ID)
	user.ProtocolOrders = append(user.ProtocolOrders, order.ID)
	if err := repo.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	return h.snapshots.SaveSubject(ctx, repo, subject, block.Timestamp)
}

func (h *Handler) saveTradeOrder(ctx context.Context, repo *entity.Repository, order *domain.Order, summary *domain.Summary, subject *domain.Subject, f fees.Fees) error {
	if err := repo.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}
	if err := accrueProtocolFee(ctx, repo, summary, f.ProtocolFee); err != nil {
		return fmt.Errorf("accrue protocol fee: %w", err)
	}
	if err := recordSubjectFee(ctx, repo, subject, order.ID, f.SubjectFee); err != nil {
		return fmt.Errorf("record subject fee: %w", err)
	}

	h.log.Debug().
		Str("order", order.ID).
		Str("type", string(order.OrderType)).
		Str("subject", subject.ID).
		Str("price", order.Price.String()).
		Msg("trade applied")
	return nil
}

// SubjectTokenTransfer moves shares between portfolios. Mint and burn legs
// are skipped: the trade events already account for them.
func (h *Handler) SubjectTokenTransfer(ctx context.Context, repo *entity.Repository, ev *event.SubjectTokenTransfer) error {
	if event.IsZeroAddress(ev.From) || event.IsZeroAddress(ev.To) {
		return nil
	}
	block, err := repo.BlockInfo(ctx, ev.Block)
	if err != nil {
		return err
	}
	subject, err := repo.Subject(ctx, ev.Address)
	if err != nil {
		return err
	}

	from, err := repo.Portfolio(ctx, ev.From, subject.ID)
	if err != nil {
		return err
	}
	to, err := repo.Portfolio(ctx, ev.To, subject.ID)
	if err != nil {
		return err
	}

	from.Balance = new(big.Int).Sub(from.Balance, ev.Value)
	to.Balance = new(big.Int).Add(to.Balance, ev.Value)
	subject.SyncHolder(from)
	subject.SyncHolder(to)

	if err := repo.SavePortfolio(ctx, from); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	if err := repo.SavePortfolio(ctx, to); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	return h.snapshots.SaveSubject(ctx, repo, subject, block.Timestamp)
}
