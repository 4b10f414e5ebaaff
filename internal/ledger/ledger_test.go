package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/entity"
	"moxie-indexer/internal/storage/memory"
)

func TestUpdater_ApplyMovesUserAndPortfolioTogether(t *testing.T) {
	store := memory.NewEntityStore()
	repo := entity.NewRepository(store, nil)
	u := NewUpdater(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, u.Apply(ctx, repo, "0xuser", "0xsubject", big.NewInt(1000)))
	require.NoError(t, u.Apply(ctx, repo, "0xuser", "0xsubject", big.NewInt(-400)))

	var user domain.User
	require.NoError(t, store.Load(ctx, domain.KindUser, "0xuser", &user))
	var portfolio domain.Portfolio
	require.NoError(t, store.Load(ctx, domain.KindPortfolio, "0xuser-0xsubject", &portfolio))

	assert.Equal(t, "600", user.ProtocolTokenSpent.String())
	assert.Equal(t, "600", portfolio.ProtocolTokenSpent.String())
}

func TestUpdater_ApplyAllowsNegative(t *testing.T) {
	store := memory.NewEntityStore()
	repo := entity.NewRepository(store, nil)
	u := NewUpdater(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, u.Apply(ctx, repo, "0xuser", "0xsubject", big.NewInt(-5)))

	usr, err := repo.User(ctx, "0xuser")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), usr.ProtocolTokenSpent.Int64())
}

func TestUpdater_ApplyAcrossSubjects(t *testing.T) {
	store := memory.NewEntityStore()
	repo := entity.NewRepository(store, nil)
	u := NewUpdater(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, u.Apply(ctx, repo, "0xuser", "0xa", big.NewInt(10)))
	require.NoError(t, u.Apply(ctx, repo, "0xuser", "0xb", big.NewInt(32)))

	usr, err := repo.User(ctx, "0xuser")
	require.NoError(t, err)
	pa, err := repo.Portfolio(ctx, "0xuser", "0xa")
	require.NoError(t, err)
	pb, err := repo.Portfolio(ctx, "0xuser", "0xb")
	require.NoError(t, err)

	// User spend is the sum of its portfolios.
	assert.Equal(t, int64(42), usr.ProtocolTokenSpent.Int64())
	assert.Equal(t, int64(10), pa.ProtocolTokenSpent.Int64())
	assert.Equal(t, int64(32), pb.ProtocolTokenSpent.Int64())
}

func TestUpdater_ApplyNilDelta(t *testing.T) {
	repo := entity.NewRepository(memory.NewEntityStore(), nil)
	err := NewUpdater(zerolog.Nop()).Apply(context.Background(), repo, "0xuser", "0xsubject", nil)
	assert.Error(t, err)
}
