package postgres

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/storage"
)

func TestEntityStore_SaveAndLoad(t *testing.T) {
	pool := setupTestDB(t)

	store := NewEntityStore(pool)
	ctx := context.Background()

	supply, ok := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	require.True(t, ok)

	subject := domain.NewSubject("0xsubject", domain.TokenMetadata{Name: "Fan Token", Symbol: "FAN", Decimals: 18})
	subject.TotalSupply = supply
	subject.CurrentPrice = decimal.RequireFromString("0.000123456789")

	require.NoError(t, store.Save(ctx, domain.KindSubject, subject.ID, subject))

	var got domain.Subject
	require.NoError(t, store.Load(ctx, domain.KindSubject, "0xsubject", &got))

	assert.Equal(t, "Fan Token", got.Name)
	assert.Equal(t, uint8(18), got.Decimals)
	assert.Equal(t, 0, supply.Cmp(got.TotalSupply), "uint256 max must survive jsonb")
	assert.True(t, subject.CurrentPrice.Equal(got.CurrentPrice))
}

func TestEntityStore_Upsert(t *testing.T) {
	pool := setupTestDB(t)

	store := NewEntityStore(pool)
	ctx := context.Background()

	user := domain.NewUser("0xuser")
	require.NoError(t, store.Save(ctx, domain.KindUser, user.ID, user))

	user.ProtocolTokenSpent.SetInt64(-42)
	require.NoError(t, store.Save(ctx, domain.KindUser, user.ID, user))

	var got domain.User
	require.NoError(t, store.Load(ctx, domain.KindUser, "0xuser", &got))
	assert.Equal(t, int64(-42), got.ProtocolTokenSpent.Int64())

	n, err := store.Count(ctx, domain.KindUser)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEntityStore_LoadNotFound(t *testing.T) {
	pool := setupTestDB(t)

	store := NewEntityStore(pool)

	var got domain.Order
	err := store.Load(context.Background(), domain.KindOrder, "missing", &got)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityStore_KindsAreSeparate(t *testing.T) {
	pool := setupTestDB(t)

	store := NewEntityStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.KindSummary, domain.SummaryID, &domain.Summary{ID: domain.SummaryID}))

	var vs domain.VestingSummary
	err := store.Load(ctx, domain.KindVestingSummary, domain.SummaryID, &vs)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEntityStore_InTxRollback(t *testing.T) {
	pool := setupTestDB(t)

	store := NewEntityStore(pool)
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, store.Save(ctx, domain.KindOrder, "keep", &domain.Order{ID: "keep"}))

	err := store.InTx(ctx, func(tx storage.EntityStore) error {
		require.NoError(t, tx.Save(ctx, domain.KindOrder, "new", &domain.Order{ID: "new"}))
		require.NoError(t, tx.Delete(ctx, domain.KindOrder, "keep"))

		n, err := tx.Count(ctx, domain.KindOrder)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var o domain.Order
	assert.NoError(t, store.Load(ctx, domain.KindOrder, "keep", &o))
	assert.ErrorIs(t, store.Load(ctx, domain.KindOrder, "new", &o), storage.ErrNotFound)
}

func TestEntityStore_InTxCommit(t *testing.T) {
	pool := setupTestDB(t)

	store := NewEntityStore(pool)
	ctx := context.Background()

	err := store.InTx(ctx, func(tx storage.EntityStore) error {
		return tx.Save(ctx, domain.KindCheckpoint, domain.CheckpointID, &domain.Checkpoint{
			ID:          domain.CheckpointID,
			BlockNumber: 10,
			LogIndex:    3,
		})
	})
	require.NoError(t, err)

	var cp domain.Checkpoint
	require.NoError(t, store.Load(ctx, domain.KindCheckpoint, domain.CheckpointID, &cp))
	assert.Equal(t, uint64(10), cp.BlockNumber)
	assert.Equal(t, uint64(3), cp.LogIndex)
}
