package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"moxie-indexer/internal/domain"
	"moxie-indexer/internal/storage"
)

func TestEntityStore_SaveAndLoad(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	user := domain.NewUser("0xuser")
	user.ProtocolTokenSpent.SetInt64(500)
	user.AuctionOrders = append(user.AuctionOrders, "0xtx-3")

	if err := store.Save(ctx, domain.KindUser, user.ID, user); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var got domain.User
	if err := store.Load(ctx, domain.KindUser, "0xuser", &got); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got.ProtocolTokenSpent.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("ProtocolTokenSpent mismatch: got %s, want 500", got.ProtocolTokenSpent)
	}
	if len(got.AuctionOrders) != 1 || got.AuctionOrders[0] != "0xtx-3" {
		t.Errorf("AuctionOrders mismatch: got %v", got.AuctionOrders)
	}
}

func TestEntityStore_LoadReturnsCopy(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	user := domain.NewUser("0xuser")
	if err := store.Save(ctx, domain.KindUser, user.ID, user); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Mutating the saved value must not leak into the store.
	user.ProtocolTokenSpent.SetInt64(99)

	var got domain.User
	if err := store.Load(ctx, domain.KindUser, "0xuser", &got); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ProtocolTokenSpent.Sign() != 0 {
		t.Errorf("store shares state with caller: got %s", got.ProtocolTokenSpent)
	}
}

func TestEntityStore_NotFound(t *testing.T) {
	store := NewEntityStore()

	var got domain.User
	err := store.Load(context.Background(), domain.KindUser, "missing", &got)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEntityStore_InvalidKey(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	if err := store.Save(ctx, domain.KindUser, "", domain.NewUser("")); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.Save(ctx, domain.KindUser, "x", nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil value, got %v", err)
	}
}

func TestEntityStore_DeleteAndCount(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, domain.KindOrder, id, &domain.Order{ID: id}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := store.Delete(ctx, domain.KindOrder, "b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, domain.KindOrder, "b"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	n, err := store.Count(ctx, domain.KindOrder)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestEntityStore_InTxCommit(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()

	if err := store.Save(ctx, domain.KindOrder, "old", &domain.Order{ID: "old"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	err := store.InTx(ctx, func(tx storage.EntityStore) error {
		if err := tx.Save(ctx, domain.KindOrder, "new", &domain.Order{ID: "new"}); err != nil {
			return err
		}
		if err := tx.Delete(ctx, domain.KindOrder, "old"); err != nil {
			return err
		}

		// The transaction sees its own writes.
		var o domain.Order
		if err := tx.Load(ctx, domain.KindOrder, "new", &o); err != nil {
			return err
		}
		if err := tx.Load(ctx, domain.KindOrder, "old", &o); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("deleted entity visible inside tx: %v", err)
		}
		n, _ := tx.Count(ctx, domain.KindOrder)
		if n != 1 {
			t.Errorf("tx Count = %d, want 1", n)
		}

		// The base store does not.
		if err := store.Load(ctx, domain.KindOrder, "new", &o); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("staged write visible outside tx: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}

	var o domain.Order
	if err := store.Load(ctx, domain.KindOrder, "new", &o); err != nil {
		t.Errorf("committed write missing: %v", err)
	}
	if err := store.Load(ctx, domain.KindOrder, "old", &o); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("committed delete not applied: %v", err)
	}
}

func TestEntityStore_InTxRollback(t *testing.T) {
	store := NewEntityStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx storage.EntityStore) error {
		if err := tx.Save(ctx, domain.KindOrder, "x", &domain.Order{ID: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	n, _ := store.Count(ctx, domain.KindOrder)
	if n != 0 {
		t.Errorf("rolled back write applied: Count = %d", n)
	}
}
