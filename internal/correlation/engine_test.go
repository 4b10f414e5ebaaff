package correlation

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/ledger"
	"moxie-indexer/internal/storage"
	"moxie-indexer/internal/storage/memory"
)

var (
	placeTx  = "0x" + strings.Repeat("1", 64)
	cancelTx = "0x" + strings.Repeat("2", 64)
	claimTx  = "0x" + strings.Repeat("3", 64)

	replaceTx  = "0x" + strings.Repeat("4", 64)
	recancelTx = "0x" + strings.Repeat("5", 64)
)

const (
	testSubject   = "0x00000000000000000000000000000000000000aa"
	alice         = "0x00000000000000000000000000000000000000a1"
	auction       = "0x00000000000000000000000000000000000000c0"
	protocolToken = "0x0000000000000000000000000000000000000070"
)

func testMeta(kind event.Kind, tx string, logIndex uint64, address string) event.Meta {
	return event.Meta{
		Kind:     kind,
		TxHash:   tx,
		LogIndex: logIndex,
		Block:    event.Block{Number: 100, Timestamp: 1700000000, Hash: "0x" + strings.Repeat("b", 64)},
		Address:  address,
	}
}

func testIntent(kind event.Kind, tx string, logIndex uint64) *event.AuctionIntent {
	return &event.AuctionIntent{
		Meta:       testMeta(kind, tx, logIndex, auction),
		AuctionID:  "7",
		Subject:    testSubject,
		UserID:     big.NewInt(42),
		BuyAmount:  big.NewInt(1000),
		SellAmount: big.NewInt(500),
	}
}

func testTransfer(tx string, logIndex uint64, from, to string, value int64) *event.Transfer {
	return &event.Transfer{
		Meta:  testMeta(event.KindTransfer, tx, logIndex, protocolToken),
		From:  from,
		To:    to,
		Value: big.NewInt(value),
	}
}

func newEngine(opts Options) *Engine {
	return NewEngine(ledger.NewUpdater(zerolog.Nop()), opts)
}

// apply runs fn in one store transaction with a fresh repository, the way
// the processor applies a single event.
func apply(t *testing.T, store storage.Store, fn func(repo *entity.Repository) error) error {
	t.Helper()
	return store.InTx(context.Background(), func(tx storage.EntityStore) error {
		return fn(entity.NewRepository(tx, nil))
	})
}

func stageAndSettle(t *testing.T, store storage.Store, e *Engine, in *event.AuctionIntent, tr *event.Transfer) (Outcome, error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, apply(t, store, func(repo *entity.Repository) error {
		_, err := e.Stage(ctx, repo, in)
		return err
	}))
	var outcome Outcome
	err := apply(t, store, func(repo *entity.Repository) error {
		var err error
		outcome, err = e.Settle(ctx, repo, tr)
		return err
	})
	return outcome, err
}

func TestEngine_Place(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	outcome, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)
	assert.Equal(t, OutcomePlaced, outcome)

	repo := entity.NewRepository(store, nil)
	orderID := placeTx + "-4"

	order, err := repo.Order(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderTypeAuction, order.OrderType)
	assert.Equal(t, "1000", order.ProtocolTokenAmount.String())
	assert.Equal(t, "1000", order.ProtocolTokenInvestment.String())
	assert.Equal(t, testSubject, order.SubjectToken)
	assert.Equal(t, alice, order.User)
	assert.Equal(t, alice+"-"+testSubject, order.Portfolio)
	assert.Equal(t, protocolToken, order.ProtocolToken)
	assert.Equal(t, "0", order.SubjectAmount.String())
	assert.True(t, order.Price.IsZero())

	user, err := repo.User(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{orderID}, user.AuctionOrders)
	assert.Equal(t, []string{orderID}, user.ProtocolOrders)
	assert.Equal(t, "1000", user.ProtocolTokenSpent.String())

	portfolio, err := repo.Portfolio(ctx, alice, testSubject)
	require.NoError(t, err)
	assert.Equal(t, "1000", portfolio.ProtocolTokenSpent.String())

	ao, ok, err := repo.AuctionOrder(ctx, testSubject+"-42-1000-500")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orderID, ao.Order)
	assert.Equal(t, orderID, ao.NewSellOrder)
	assert.Equal(t, domain.AuctionOrderPlaced, ao.Status)

	n, err := store.Count(ctx, domain.KindProtocolTransfer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_PlaceThenCancel(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)

	outcome, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, cancelTx, 8),
		testTransfer(cancelTx, 9, auction, alice, 1000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, outcome)

	repo := entity.NewRepository(store, nil)

	_, err = repo.Order(ctx, placeTx+"-4")
	assert.ErrorIs(t, err, entity.ErrMissingReference)

	user, err := repo.User(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, user.AuctionOrders)
	assert.Equal(t, []string{placeTx + "-4"}, user.ProtocolOrders)
	assert.Equal(t, "0", user.ProtocolTokenSpent.String())

	portfolio, err := repo.Portfolio(ctx, alice, testSubject)
	require.NoError(t, err)
	assert.Equal(t, "0", portfolio.ProtocolTokenSpent.String())

	ao, ok, err := repo.AuctionOrder(ctx, testSubject+"-42-1000-500")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.AuctionOrderCancelled, ao.Status)
	assert.Equal(t, placeTx+"-4", ao.NewSellOrder)
	assert.Equal(t, cancelTx+"-8", ao.CancellationSellOrder)
}

func TestEngine_PlaceThenPartialClaim(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)

	outcome, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionClaimedFromOrder, claimTx, 2),
		testTransfer(claimTx, 3, auction, alice, 300))
	require.NoError(t, err)
	assert.Equal(t, OutcomeClaimed, outcome)

	repo := entity.NewRepository(store, nil)
	order, err := repo.Order(ctx, placeTx+"-4")
	require.NoError(t, err)
	assert.Equal(t, "700", order.ProtocolTokenAmount.String())

	user, err := repo.User(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "700", user.ProtocolTokenSpent.String())
	assert.Equal(t, []string{placeTx + "-4"}, user.AuctionOrders)

	ao, _, err := repo.AuctionOrder(ctx, testSubject+"-42-1000-500")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionOrderClaimed, ao.Status)
	assert.Equal(t, claimTx+"-2", ao.ClaimedFromOrder)
}

func TestEngine_ClaimExhaustsWithoutDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)
	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionClaimedFromOrder, claimTx, 2),
		testTransfer(claimTx, 3, auction, alice, 1000))
	require.NoError(t, err)

	order, err := entity.NewRepository(store, nil).Order(ctx, placeTx+"-4")
	require.NoError(t, err)
	assert.Equal(t, "0", order.ProtocolTokenAmount.String())
}

func TestEngine_MissingCorrelationHaltsWithoutLedgerMutation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, cancelTx, 8),
		testTransfer(cancelTx, 9, auction, alice, 1000))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCorrelation))

	var mce *MissingCorrelationError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, domain.KindAuctionCancellationSellOrder, mce.Kind)
	assert.Equal(t, testSubject+"-42-1000-500", mce.Key)
	assert.Equal(t, cancelTx+"-8", mce.Position)

	for _, kind := range []domain.Kind{domain.KindUser, domain.KindPortfolio, domain.KindProtocolTransfer} {
		n, err := store.Count(ctx, kind)
		require.NoError(t, err)
		assert.Zero(t, n, kind.String())
	}
}

func TestEngine_ClaimMissingCorrelation(t *testing.T) {
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionClaimedFromOrder, claimTx, 2),
		testTransfer(claimTx, 3, auction, alice, 10))
	assert.ErrorIs(t, err, ErrMissingCorrelation)
}

func TestEngine_NoTransitionOutOfCancelled(t *testing.T) {
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)
	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, cancelTx, 8),
		testTransfer(cancelTx, 9, auction, alice, 1000))
	require.NoError(t, err)

	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionClaimedFromOrder, claimTx, 2),
		testTransfer(claimTx, 3, auction, alice, 1))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngine_Unmatched(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	var outcome Outcome
	err := apply(t, store, func(repo *entity.Repository) error {
		var err error
		outcome, err = e.Settle(ctx, repo, testTransfer(placeTx, 0, alice, auction, 5))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, outcome)

	err = apply(t, store, func(repo *entity.Repository) error {
		var err error
		outcome, err = e.Settle(ctx, repo, testTransfer(placeTx, 7, alice, auction, 5))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmatched, outcome)

	n, err := store.Count(ctx, domain.KindProtocolTransfer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.Count(ctx, domain.KindAuctionTransfer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.Count(ctx, domain.KindUser)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_OneOrderPerKey(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	first := testIntent(event.KindAuctionNewSellOrder, placeTx, 4)
	_, err := stageAndSettle(t, store, e, first, testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)

	second := testIntent(event.KindAuctionNewSellOrder, placeTx, 10)
	second.SellAmount = big.NewInt(600)
	_, err = stageAndSettle(t, store, e, second, testTransfer(placeTx, 11, alice, auction, 200))
	require.NoError(t, err)

	n, err := store.Count(ctx, domain.KindAuctionOrder)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = store.Count(ctx, domain.KindOrder)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	user, err := entity.NewRepository(store, nil).User(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "1200", user.ProtocolTokenSpent.String())
	assert.Equal(t, []string{placeTx + "-4", placeTx + "-10"}, user.AuctionOrders)
}

func TestEngine_IdenticalOrdersSettleOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})
	key := testSubject + "-42-1000-500"
	first, second := placeTx+"-4", replaceTx+"-4"

	for _, tx := range []string{placeTx, replaceTx} {
		outcome, err := stageAndSettle(t, store, e,
			testIntent(event.KindAuctionNewSellOrder, tx, 4),
			testTransfer(tx, 5, alice, auction, 1000))
		require.NoError(t, err)
		require.Equal(t, OutcomePlaced, outcome)
	}

	repo := entity.NewRepository(store, nil)
	ao, _, err := repo.AuctionOrder(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ao.Orders)
	assert.Equal(t, domain.AuctionOrderPlaced, ao.Status)
	user, err := repo.User(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, user.AuctionOrders)
	assert.Equal(t, "2000", user.ProtocolTokenSpent.String())

	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, cancelTx, 8),
		testTransfer(cancelTx, 9, auction, alice, 1000))
	require.NoError(t, err)

	repo = entity.NewRepository(store, nil)
	ao, _, err = repo.AuctionOrder(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, ao.Orders)
	assert.Equal(t, domain.AuctionOrderPlaced, ao.Status)
	_, err = repo.Order(ctx, first)
	assert.ErrorIs(t, err, entity.ErrMissingReference)
	_, err = repo.Order(ctx, second)
	require.NoError(t, err)
	user, err = repo.User(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, user.AuctionOrders)
	assert.Equal(t, "1000", user.ProtocolTokenSpent.String())

	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, recancelTx, 8),
		testTransfer(recancelTx, 9, auction, alice, 1000))
	require.NoError(t, err)

	repo = entity.NewRepository(store, nil)
	ao, _, err = repo.AuctionOrder(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, ao.Orders)
	assert.Equal(t, domain.AuctionOrderCancelled, ao.Status)
	assert.Len(t, ao.History, 4)
	n, err := store.Count(ctx, domain.KindOrder)
	require.NoError(t, err)
	assert.Zero(t, n)
	user, err = repo.User(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, user.AuctionOrders)
	assert.Equal(t, "0", user.ProtocolTokenSpent.String())
}

func TestEngine_ReplacementKeepsHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)
	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, cancelTx, 8),
		testTransfer(cancelTx, 9, auction, alice, 1000))
	require.NoError(t, err)
	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, replaceTx, 4),
		testTransfer(replaceTx, 5, alice, auction, 1000))
	require.NoError(t, err)

	ao, _, err := entity.NewRepository(store, nil).AuctionOrder(ctx, testSubject+"-42-1000-500")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionOrderPlaced, ao.Status)
	assert.Equal(t, replaceTx+"-4", ao.Order)
	assert.Equal(t, []string{replaceTx + "-4"}, ao.Orders)
	assert.Equal(t, replaceTx+"-4", ao.NewSellOrder)
	assert.Equal(t, cancelTx+"-8", ao.CancellationSellOrder)
	assert.Equal(t, []domain.AuctionOrderEntry{
		{Intent: domain.KindAuctionNewSellOrder, ID: placeTx + "-4", Order: placeTx + "-4"},
		{Intent: domain.KindAuctionCancellationSellOrder, ID: cancelTx + "-8", Order: placeTx + "-4"},
		{Intent: domain.KindAuctionNewSellOrder, ID: replaceTx + "-4", Order: replaceTx + "-4"},
	}, ao.History)
}

func TestEngine_LegacyRecordWithoutQueue(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	_, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(placeTx, 5, alice, auction, 1000))
	require.NoError(t, err)

	key := testSubject + "-42-1000-500"
	legacy := &domain.AuctionOrder{ID: key, Order: placeTx + "-4", Status: domain.AuctionOrderPlaced, NewSellOrder: placeTx + "-4"}
	require.NoError(t, store.Save(ctx, domain.KindAuctionOrder, key, legacy))

	_, err = stageAndSettle(t, store, e,
		testIntent(event.KindAuctionCancellationSellOrder, cancelTx, 8),
		testTransfer(cancelTx, 9, auction, alice, 1000))
	require.NoError(t, err)

	ao, _, err := entity.NewRepository(store, nil).AuctionOrder(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionOrderCancelled, ao.Status)
	assert.Equal(t, placeTx+"-4", ao.Order)
}

func TestEngine_StageBlacklisted(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	e := newEngine(Options{Logger: zerolog.Nop()})

	bySubject := testIntent(event.KindAuctionNewSellOrder, placeTx, 1)
	bySubject.Subject = DefaultBlacklistedSubject
	byAuction := testIntent(event.KindAuctionNewSellOrder, placeTx, 2)
	byAuction.AuctionID = DefaultBlacklistedAuction

	for _, in := range []*event.AuctionIntent{bySubject, byAuction} {
		require.NoError(t, apply(t, store, func(repo *entity.Repository) error {
			staged, err := e.Stage(ctx, repo, in)
			assert.False(t, staged)
			return err
		}))
	}

	n, err := store.Count(ctx, domain.KindAuctionNewSellOrder)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_StageRejectsNonIntent(t *testing.T) {
	repo := entity.NewRepository(memory.NewEntityStore(), nil)
	in := testIntent(event.KindTransfer, placeTx, 1)

	_, err := newEngine(Options{}).Stage(context.Background(), repo, in)
	assert.Error(t, err)
}

func TestEngine_CustomKeyFunc(t *testing.T) {
	store := memory.NewEntityStore()
	explicit := func(tr *event.Transfer) (string, bool) {
		return placeTx + "-4", true
	}
	e := newEngine(Options{KeyFunc: explicit, Logger: zerolog.Nop()})

	outcome, err := stageAndSettle(t, store, e,
		testIntent(event.KindAuctionNewSellOrder, placeTx, 4),
		testTransfer(cancelTx, 30, alice, auction, 1000))
	require.NoError(t, err)
	assert.Equal(t, OutcomePlaced, outcome)
}

func TestPreviousLog(t *testing.T) {
	key, ok := PreviousLog(testTransfer(placeTx, 5, alice, auction, 1))
	assert.True(t, ok)
	assert.Equal(t, placeTx+"-4", key)

	_, ok = PreviousLog(testTransfer(placeTx, 0, alice, auction, 1))
	assert.False(t, ok)
}

func TestBlacklist_Blocks(t *testing.T) {
	b := NewBlacklist([]string{"0x00000000000000000000000000000000000000AA"}, []string{"9"})

	assert.True(t, b.Blocks(testSubject, "1"))
	assert.True(t, b.Blocks(alice, "9"))
	assert.False(t, b.Blocks(alice, "1"))
}
