// Package correlation pairs protocol-token transfers with the auction
// intents staged right before them and drives the auction order lifecycle.
package correlation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/entityid"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/ledger"
)

// Outcome is the result of settling one transfer.
type Outcome int

const (
	// OutcomeUnmatched means no intent was staged at the transfer's position.
	OutcomeUnmatched Outcome = iota
	OutcomePlaced
	OutcomeCancelled
	OutcomeClaimed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlaced:
		return "placed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeClaimed:
		return "claimed"
	default:
		return "unmatched"
	}
}

// Options configures an Engine.
type Options struct {
	// KeyFunc defaults to PreviousLog.
	KeyFunc KeyFunc
	// Blacklist defaults to DefaultBlacklist.
	Blacklist *Blacklist
	Logger    zerolog.Logger
}

// Engine stages auction intents and settles them against transfers.
type Engine struct {
	key       KeyFunc
	blacklist Blacklist
	ledger    *ledger.Updater
	log       zerolog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(l *ledger.Updater, opts Options) *Engine {
	e := &Engine{
		key:       opts.KeyFunc,
		blacklist: DefaultBlacklist(),
		ledger:    l,
		log:       opts.Logger,
	}
	if e.key == nil {
		e.key = PreviousLog
	}
	if opts.Blacklist != nil {
		e.blacklist = *opts.Blacklist
	}
	return e
}

func intentKind(k event.Kind) (domain.Kind, bool) {
	switch k {
	case event.KindAuctionNewSellOrder:
		return domain.KindAuctionNewSellOrder, true
	case event.KindAuctionCancellationSellOrder:
		return domain.KindAuctionCancellationSellOrder, true
	case event.KindAuctionClaimedFromOrder:
		return domain.KindAuctionClaimedFromOrder, true
	}
	return "", false
}

// Stage stores an auction intent at its own position for the transfer that
// follows it. Reports false when the intent is blacklisted.
func (e *Engine) Stage(ctx context.Context, repo *entity.Repository, ev *event.AuctionIntent) (bool, error) {
	kind, ok := intentKind(ev.Kind)
	if !ok {
		return false, fmt.Errorf("%s is not an auction intent", ev.Kind)
	}
	if e.blacklist.Blocks(ev.Subject, ev.AuctionID) {
		e.log.Debug().
			Str("kind", string(ev.Kind)).
			Str("subject", ev.Subject).
			Str("auction_id", ev.AuctionID).
			Msg("blacklisted intent skipped")
		return false, nil
	}

	block, err := repo.BlockInfo(ctx, ev.Block)
	if err != nil {
		return false, err
	}

	intent := &domain.AuctionIntent{
		ID:         entityid.TxEntity(ev.TxHash, ev.LogIndex),
		AuctionID:  ev.AuctionID,
		Subject:    ev.Subject,
		UserID:     ev.UserID,
		BuyAmount:  ev.BuyAmount,
		SellAmount: ev.SellAmount,
		BlockInfo:  block.ID,
		TxHash:     ev.TxHash,
	}
	if err := repo.SaveIntent(ctx, kind, intent); err != nil {
		return false, fmt.Errorf("stage %s %s: %w", kind, intent.ID, err)
	}
	return true, nil
}

// Settle records a protocol-token transfer and applies the lifecycle
// transition of the intent staged at its correlation position, if any.
// Intent kinds are checked in order: new sell order, cancellation, claim.
func (e *Engine) Settle(ctx context.Context, repo *entity.Repository, t *event.Transfer) (Outcome, error) {
	block, err := repo.BlockInfo(ctx, t.Block)
	if err != nil {
		return OutcomeUnmatched, err
	}
	if _, err := repo.AuctionTransfer(ctx, t.TxHash); err != nil {
		return OutcomeUnmatched, err
	}
	transfer := &domain.ProtocolTransfer{
		ID:        entityid.TxEntity(t.TxHash, t.LogIndex),
		From:      t.From,
		To:        t.To,
		Value:     t.Value,
		BlockInfo: block.ID,
		TxHash:    t.TxHash,
	}
	if err := repo.SaveProtocolTransfer(ctx, transfer); err != nil {
		return OutcomeUnmatched, fmt.Errorf("save transfer %s: %w", transfer.ID, err)
	}

	pos, ok := e.key(t)
	if !ok {
		return OutcomeUnmatched, nil
	}

	if intent, ok, err := repo.Intent(ctx, domain.KindAuctionNewSellOrder, pos); err != nil {
		return OutcomeUnmatched, err
	} else if ok {
		return OutcomePlaced, e.place(ctx, repo, t, block, intent)
	}

	if intent, ok, err := repo.Intent(ctx, domain.KindAuctionCancellationSellOrder, pos); err != nil {
		return OutcomeUnmatched, err
	} else if ok {
		return OutcomeCancelled, e.cancel(ctx, repo, t, intent)
	}

	if intent, ok, err := repo.Intent(ctx, domain.KindAuctionClaimedFromOrder, pos); err != nil {
		return OutcomeUnmatched, err
	} else if ok {
		return OutcomeClaimed, e.claim(ctx, repo, t, intent)
	}

	return OutcomeUnmatched, nil
}

func auctionOrderID(intent *domain.AuctionIntent) string {
	return entityid.AuctionOrder(intent.Subject, intent.UserID, intent.BuyAmount, intent.SellAmount)
}

func (e *Engine) place(ctx context.Context, repo *entity.Repository, t *event.Transfer, block *domain.BlockInfo, intent *domain.AuctionIntent) error {
	key := auctionOrderID(intent)
	ao, ok, err := e.auctionOrder(ctx, repo, key)
	if err != nil {
		return err
	}
	if !ok {
		ao = domain.NewAuctionOrder(key)
	}

	if err := e.ledger.Apply(ctx, repo, t.From, intent.Subject, t.Value); err != nil {
		return fmt.Errorf("place %s: %w", intent.ID, err)
	}
	portfolio, err := repo.Portfolio(ctx, t.From, intent.Subject)
	if err != nil {
		return err
	}

	order := &domain.Order{
		ID:                      intent.ID,
		ProtocolToken:           t.Address,
		ProtocolTokenAmount:     new(big.Int).Set(t.Value),
		ProtocolTokenInvestment: decimal.NewFromBigInt(t.Value, 0),
		SubjectToken:            intent.Subject,
		SubjectAmount:           new(big.Int),
		SubjectAmountLeft:       new(big.Int),
		OrderType:               domain.OrderTypeAuction,
		User:                    t.From,
		Portfolio:               portfolio.ID,
		Price:                   decimal.Zero,
		BlockInfo:               block.ID,
	}
	if err := repo.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}

	user, err := repo.User(ctx, t.From)
	if err != nil {
		return err
	}
	user.AuctionOrders = append(user.AuctionOrders, order.ID)
	user.ProtocolOrders = append(user.ProtocolOrders, order.ID)
	if err := repo.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}

	if open := ao.Place(order.ID, intent.ID); open > 0 {
		// Identical tuples share a key; orders settle oldest first.
		e.log.Warn().
			Str("auction_order", key).
			Int("open_orders", open).
			Str("order", order.ID).
			Msg("auction order key reused while open")
	}
	if err := repo.SaveAuctionOrder(ctx, ao); err != nil {
		return fmt.Errorf("save auction order %s: %w", key, err)
	}

	e.log.Debug().Str("order", order.ID).Str("auction_order", key).Str("value", t.Value.String()).Msg("auction order placed")
	return nil
}

// auctionOrder loads the record under key. Records written before open
// orders were queued carry only Order; an uncancelled one is read as
// having that order open.
func (e *Engine) auctionOrder(ctx context.Context, repo *entity.Repository, key string) (*domain.AuctionOrder, bool, error) {
	ao, ok, err := repo.AuctionOrder(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	if ao.Orders == nil {
		ao.Orders = []string{}
		if ao.Order != "" && ao.Status != domain.AuctionOrderCancelled {
			ao.Orders = append(ao.Orders, ao.Order)
		}
	}
	return ao, true, nil
}

// open returns the auction order an intent settles, failing if it is
// absent.
func (e *Engine) open(ctx context.Context, repo *entity.Repository, kind domain.Kind, intent *domain.AuctionIntent) (*domain.AuctionOrder, error) {
	key := auctionOrderID(intent)
	ao, ok, err := e.auctionOrder(ctx, repo, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		err := &MissingCorrelationError{Kind: kind, Key: key, Position: intent.ID}
		e.log.Error().Err(err).Msg("correlation miss")
		return nil, err
	}
	return ao, nil
}

func (e *Engine) cancel(ctx context.Context, repo *entity.Repository, t *event.Transfer, intent *domain.AuctionIntent) error {
	ao, err := e.open(ctx, repo, domain.KindAuctionCancellationSellOrder, intent)
	if err != nil {
		return err
	}
	orderID, ok := ao.Cancel(intent.ID)
	if !ok {
		return fmt.Errorf("%w: %s with no open order under %s", ErrInvalidTransition, domain.KindAuctionCancellationSellOrder, ao.ID)
	}
	if err := repo.SaveAuctionOrder(ctx, ao); err != nil {
		return fmt.Errorf("save auction order %s: %w", ao.ID, err)
	}

	if err := e.ledger.Apply(ctx, repo, t.To, intent.Subject, new(big.Int).Neg(t.Value)); err != nil {
		return fmt.Errorf("cancel %s: %w", orderID, err)
	}

	user, err := repo.User(ctx, t.To)
	if err != nil {
		return err
	}
	user.RemoveAuctionOrder(orderID)
	if err := repo.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user %s: %w", user.ID, err)
	}

	if err := repo.DeleteOrder(ctx, orderID); err != nil {
		return fmt.Errorf("delete order %s: %w", orderID, err)
	}

	e.log.Debug().Str("order", orderID).Str("auction_order", ao.ID).Int("still_open", len(ao.Orders)).Msg("auction order cancelled")
	return nil
}

func (e *Engine) claim(ctx context.Context, repo *entity.Repository, t *event.Transfer, intent *domain.AuctionIntent) error {
	ao, err := e.open(ctx, repo, domain.KindAuctionClaimedFromOrder, intent)
	if err != nil {
		return err
	}
	orderID, ok := ao.Claim(intent.ID)
	if !ok {
		return fmt.Errorf("%w: %s with no open order under %s", ErrInvalidTransition, domain.KindAuctionClaimedFromOrder, ao.ID)
	}
	order, err := repo.Order(ctx, orderID)
	if err != nil {
		return fmt.Errorf("claim on %s: %w", ao.ID, err)
	}

	if err := repo.SaveAuctionOrder(ctx, ao); err != nil {
		return fmt.Errorf("save auction order %s: %w", ao.ID, err)
	}

	order.ProtocolTokenAmount = new(big.Int).Sub(order.ProtocolTokenAmount, t.Value)
	if err := repo.SaveOrder(ctx, order); err != nil {
		return fmt.Errorf("save order %s: %w", order.ID, err)
	}

	if err := e.ledger.Apply(ctx, repo, t.To, intent.Subject, new(big.Int).Neg(t.Value)); err != nil {
		return fmt.Errorf("claim %s: %w", order.ID, err)
	}

	e.log.Debug().
		Str("order", order.ID).
		Str("auction_order", ao.ID).
		Str("remaining", order.ProtocolTokenAmount.String()).
		Msg("auction order claimed")
	return nil
}
