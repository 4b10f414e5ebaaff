package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/storage"
	"moxie-indexer/internal/storage/memory"
)

type fakeMetadata struct {
	calls int
	err   error
}

func (f *fakeMetadata) TokenMetadata(_ context.Context, token string) (domain.TokenMetadata, error) {
	f.calls++
	if f.err != nil {
		return domain.TokenMetadata{}, f.err
	}
	return domain.TokenMetadata{Name: "Token " + token, Symbol: "TKN", Decimals: 18}, nil
}

func TestRepository_UserCreatedOnce(t *testing.T) {
	store := memory.NewEntityStore()
	repo := NewRepository(store, nil)
	ctx := context.Background()

	u1, err := repo.User(ctx, "0xuser")
	require.NoError(t, err)
	u1.ProtocolTokenSpent.SetInt64(10)

	// Same pointer within the repository scope.
	u2, err := repo.User(ctx, "0xuser")
	require.NoError(t, err)
	assert.Same(t, u1, u2)

	// Creation was persisted with zero counters.
	var stored domain.User
	require.NoError(t, store.Load(ctx, domain.KindUser, "0xuser", &stored))
	assert.Zero(t, stored.ProtocolTokenSpent.Sign())
	assert.NotNil(t, stored.AuctionOrders)
}

func TestRepository_SubjectReadsMetadataOnce(t *testing.T) {
	store := memory.NewEntityStore()
	meta := &fakeMetadata{}
	ctx := context.Background()

	s, err := NewRepository(store, meta).Subject(ctx, "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, "Token 0xtoken", s.Name)
	assert.Equal(t, uint8(18), s.Decimals)
	assert.Zero(t, s.Reserve.Sign())
	assert.True(t, s.CurrentPrice.IsZero())

	// A fresh repository loads it from the store.
	_, err = NewRepository(store, meta).Subject(ctx, "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, 1, meta.calls)
}

func TestRepository_SubjectMetadataError(t *testing.T) {
	boom := errors.New("rpc down")
	repo := NewRepository(memory.NewEntityStore(), &fakeMetadata{err: boom})

	_, err := repo.Subject(context.Background(), "0xtoken")
	assert.ErrorIs(t, err, boom)
}

func TestRepository_PortfolioCreatesReferences(t *testing.T) {
	store := memory.NewEntityStore()
	repo := NewRepository(store, &fakeMetadata{})
	ctx := context.Background()

	p, err := repo.Portfolio(ctx, "0xuser", "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, "0xuser-0xtoken", p.ID)
	assert.Zero(t, p.Balance.Sign())

	var u domain.User
	assert.NoError(t, store.Load(ctx, domain.KindUser, "0xuser", &u))
	var s domain.Subject
	assert.NoError(t, store.Load(ctx, domain.KindSubject, "0xtoken", &s))
}

func TestRepository_BlockInfoImmutable(t *testing.T) {
	repo := NewRepository(memory.NewEntityStore(), nil)
	ctx := context.Background()

	b, err := repo.BlockInfo(ctx, event.Block{Number: 7, Timestamp: 100, Hash: "0xh"})
	require.NoError(t, err)
	assert.Equal(t, "7", b.ID)

	again, err := repo.BlockInfo(ctx, event.Block{Number: 7, Timestamp: 999, Hash: "0xother"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.Timestamp)
}

func TestRepository_MissingReferences(t *testing.T) {
	repo := NewRepository(memory.NewEntityStore(), nil)
	ctx := context.Background()

	_, err := repo.Summary(ctx)
	var mre *MissingReferenceError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, domain.KindSummary, mre.Kind)
	assert.ErrorIs(t, err, ErrMissingReference)

	_, err = repo.Order(ctx, "0xtx-1")
	assert.ErrorIs(t, err, ErrMissingReference)

	_, err = repo.MustTokenLockManager(ctx, "0xmanager")
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestRepository_DeleteOrderHidesCachedEntity(t *testing.T) {
	store := memory.NewEntityStore()
	repo := NewRepository(store, nil)
	ctx := context.Background()

	require.NoError(t, repo.SaveOrder(ctx, &domain.Order{ID: "o1"}))
	_, err := repo.Order(ctx, "o1")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteOrder(ctx, "o1"))

	_, err = repo.Order(ctx, "o1")
	assert.ErrorIs(t, err, ErrMissingReference)

	var o domain.Order
	assert.ErrorIs(t, store.Load(ctx, domain.KindOrder, "o1", &o), storage.ErrNotFound)
}

func TestRepository_SummaryOrNew(t *testing.T) {
	repo := NewRepository(memory.NewEntityStore(), nil)
	ctx := context.Background()

	s, err := repo.SummaryOrNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryID, s.ID)

	// Not saved until asked.
	_, err = repo.Summary(ctx)
	assert.ErrorIs(t, err, ErrMissingReference)

	require.NoError(t, repo.SaveSummary(ctx, s))
	_, err = repo.Summary(ctx)
	assert.NoError(t, err)
}
