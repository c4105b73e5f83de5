package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lbp/pool-engine/internal/model"
)

func TestMemoryStore_SaveAndGetPool(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	snap := &model.PoolSnapshot{
		ID:                "pool-1",
		Variant:           model.VariantIntermediate,
		Phase:             model.PhaseDeposit,
		PriceRatioShifted: decimal.NewFromInt(4294967296),
		TotalDeposits:     2,
	}
	if err := s.SavePool(ctx, snap); err != nil {
		t.Fatalf("SavePool: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	snap.TotalDeposits = 99

	got, err := s.GetPool(ctx, "pool-1")
	if err != nil {
		t.Fatalf("GetPool: %v", err)
	}
	if got.TotalDeposits != 2 {
		t.Errorf("TotalDeposits = %d, want 2", got.TotalDeposits)
	}
	if !got.PriceRatioShifted.Equal(decimal.NewFromInt(4294967296)) {
		t.Errorf("PriceRatioShifted = %s", got.PriceRatioShifted)
	}

	// Upsert replaces the previous snapshot.
	if err := s.SavePool(ctx, &model.PoolSnapshot{ID: "pool-1", Phase: model.PhaseCompleted}); err != nil {
		t.Fatalf("SavePool: %v", err)
	}
	got, _ = s.GetPool(ctx, "pool-1")
	if got.Phase != model.PhaseCompleted {
		t.Errorf("Phase = %s, want completed", got.Phase)
	}
}

func TestMemoryStore_GetPoolNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetPool(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SavePoolRequiresID(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SavePool(context.Background(), &model.PoolSnapshot{}); err == nil {
		t.Fatal("expected error for snapshot without id")
	}
}

func TestMemoryStore_ListPoolsSorted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.SavePool(ctx, &model.PoolSnapshot{ID: id}); err != nil {
			t.Fatal(err)
		}
	}

	pools, err := s.ListPools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pools) != 3 {
		t.Fatalf("expected 3 pools, got %d", len(pools))
	}
	for i, want := range []string{"a", "b", "c"} {
		if pools[i].ID != want {
			t.Errorf("pools[%d] = %s, want %s", i, pools[i].ID, want)
		}
	}
}

func TestMemoryStore_Journal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	alice := "0x00000000000000000000000000000000000A11cE"
	events := []model.Event{
		{ID: "1", PoolID: "p1", Kind: model.EventDepositPhase, Timestamp: now},
		{ID: "2", PoolID: "p1", Kind: model.EventDeposit, User: alice, Amount0: decimal.NewFromInt(10), Timestamp: now},
		{ID: "3", PoolID: "p2", Kind: model.EventDeposit, User: alice, Amount1: decimal.NewFromInt(5), Timestamp: now},
		{ID: "4", PoolID: "p1", Kind: model.EventDeposit, User: "0x0000000000000000000000000000000000000b0b", Timestamp: now},
	}
	for i := range events {
		if err := s.AppendEvent(ctx, &events[i]); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	byPool, err := s.EventsByPool(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(byPool) != 3 {
		t.Fatalf("expected 3 events for p1, got %d", len(byPool))
	}
	if byPool[0].ID != "1" || byPool[2].ID != "4" {
		t.Errorf("events out of order: %s .. %s", byPool[0].ID, byPool[2].ID)
	}

	// Lookup by user ignores hex case.
	byUser, err := s.EventsByUser(ctx, "0x00000000000000000000000000000000000a11ce")
	if err != nil {
		t.Fatal(err)
	}
	if len(byUser) != 2 {
		t.Fatalf("expected 2 events for alice, got %d", len(byUser))
	}
	if byUser[0].PoolID != "p1" || byUser[1].PoolID != "p2" {
		t.Errorf("unexpected pools %s, %s", byUser[0].PoolID, byUser[1].PoolID)
	}

	none, _ := s.EventsByUser(ctx, "")
	if len(none) != 0 {
		t.Errorf("empty user matched %d events", len(none))
	}
}
