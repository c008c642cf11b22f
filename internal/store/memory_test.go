package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/commodex/trade-engine/internal/inventory"
	"github.com/commodex/trade-engine/internal/model"
	"github.com/commodex/trade-engine/internal/store"
)

func seedBeans(t *testing.T, ms *store.MemoryStore, quantity int64) *model.Commodity {
	t.Helper()
	c := &model.Commodity{
		ID:                "beans-id",
		Name:              "beans",
		Slug:              "beans",
		Unit:              "kg",
		AvailableQuantity: quantity,
		UserID:            "lister",
		CreatedAt:         time.Now().UTC(),
	}
	if err := ms.CreateCommodity(context.Background(), c); err != nil {
		t.Fatalf("failed to seed commodity: %v", err)
	}
	return c
}

func TestDecrementInventory_Conditional(t *testing.T) {
	ms := store.NewMemoryStore()
	seedBeans(t, ms, 10)
	ctx := context.Background()

	if err := ms.DecrementInventory(ctx, "beans-id", 6); err != nil {
		t.Fatalf("decrement 6 of 10 failed: %v", err)
	}

	// More than remains: refused, nothing changes.
	err := ms.DecrementInventory(ctx, "beans-id", 5)
	if !errors.Is(err, inventory.ErrInsufficient) {
		t.Fatalf("expected ErrInsufficient, got %v", err)
	}
	c, _ := ms.GetCommodityByName(ctx, "beans")
	if c.AvailableQuantity != 4 {
		t.Errorf("failed decrement must not change stock: got %d", c.AvailableQuantity)
	}

	// Exact drain is legal.
	if err := ms.DecrementInventory(ctx, "beans-id", 4); err != nil {
		t.Fatalf("exact drain failed: %v", err)
	}
	c, _ = ms.GetCommodityByName(ctx, "beans")
	if c.AvailableQuantity != 0 {
		t.Errorf("expected 0, got %d", c.AvailableQuantity)
	}

	if err := ms.DecrementInventory(ctx, "beans-id", 1); !errors.Is(err, inventory.ErrInsufficient) {
		t.Errorf("exhausted stock must refuse, got %v", err)
	}
	if err := ms.DecrementInventory(ctx, "missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown commodity, got %v", err)
	}
}

func TestDecrementInventory_ConcurrentNeverOversells(t *testing.T) {
	// 20 goroutines race to take 3 units each from a stock of 30: exactly
	// 10 must win and committed stock must land on 0, never below.
	ms := store.NewMemoryStore()
	seedBeans(t, ms, 30)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ms.DecrementInventory(ctx, "beans-id", 3)
		}()
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, inventory.ErrInsufficient):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 10 || losses != 10 {
		t.Errorf("expected 10 wins / 10 losses, got %d / %d", wins, losses)
	}

	c, _ := ms.GetCommodityByName(ctx, "beans")
	if c.AvailableQuantity != 0 {
		t.Errorf("expected stock 0, got %d", c.AvailableQuantity)
	}
}

func TestUpsertPosition_IncrementOrCreate(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	first, err := ms.UpsertPosition(ctx, "user1", "beans", 5, decimal.NewFromInt(10), "hsl(120, 100%, 50%)")
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if first.TotalQuantity != 5 || !first.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("unexpected fresh position: qty=%d balance=%s", first.TotalQuantity, first.Balance)
	}
	if first.Color != "hsl(120, 100%, 50%)" {
		t.Errorf("fresh position should carry the given color, got %q", first.Color)
	}

	second, err := ms.UpsertPosition(ctx, "user1", "beans", 3, decimal.NewFromInt(15), "ignored")
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert must update the same position, got new ID %s", second.ID)
	}
	if second.TotalQuantity != 8 {
		t.Errorf("expected total 8, got %d", second.TotalQuantity)
	}
	if !second.Balance.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected balance 25, got %s", second.Balance)
	}
	if second.Color != first.Color {
		t.Errorf("color must not change on update, got %q", second.Color)
	}

	positions, _ := ms.ListPositionsByUser(ctx, "user1")
	if len(positions) != 1 {
		t.Errorf("expected one position, got %d", len(positions))
	}
}

func TestUpsertPosition_ConcurrentAccumulates(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ms.UpsertPosition(ctx, "user1", "beans", 1, decimal.NewFromInt(2), ""); err != nil {
				t.Errorf("upsert failed: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := ms.GetPosition(ctx, "user1", "beans")
	if err != nil {
		t.Fatalf("failed to load position: %v", err)
	}
	if p.TotalQuantity != 50 {
		t.Errorf("lost update: expected 50, got %d", p.TotalQuantity)
	}
	if !p.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected balance 100, got %s", p.Balance)
	}
}

func TestSetTransactionStatus_TerminalSticks(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	tx := &model.Transaction{
		ID:            "tx1",
		UserID:        "user1",
		CommodityName: "beans",
		Unit:          "kg",
		Quantity:      2,
		Price:         decimal.NewFromInt(5),
		Type:          model.TxBought,
		Status:        model.StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := ms.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if err := ms.SetTransactionStatus(ctx, "tx1", model.StatusCompleted); err != nil {
		t.Fatalf("PENDING→COMPLETED failed: %v", err)
	}
	// Second transition is a no-op; COMPLETED stays.
	if err := ms.SetTransactionStatus(ctx, "tx1", model.StatusFailed); err != nil {
		t.Fatalf("no-op transition errored: %v", err)
	}

	transactions, _ := ms.ListTransactionsByUser(ctx, "user1")
	if transactions[0].Status != model.StatusCompleted {
		t.Errorf("terminal status must stick, got %s", transactions[0].Status)
	}

	if err := ms.SetTransactionStatus(ctx, "missing", model.StatusFailed); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTransactionByReference(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	tx := &model.Transaction{
		ID:        "tx1",
		UserID:    "user1",
		Reference: "order-7",
		Status:    model.StatusCompleted,
		Price:     decimal.NewFromInt(5),
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.InsertTransaction(ctx, tx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	got, err := ms.GetTransactionByReference(ctx, "user1", "order-7")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got.ID != "tx1" {
		t.Errorf("expected tx1, got %s", got.ID)
	}

	// Same reference, different user: not visible.
	if _, err := ms.GetTransactionByReference(ctx, "user2", "order-7"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
}

func TestCreateCommodity_UniqueNameAndSlug(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedBeans(t, ms, 10)

	dup := &model.Commodity{ID: "other-id", Name: "beans", Slug: "beans-2", Unit: "kg"}
	if err := ms.CreateCommodity(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate name: expected ErrAlreadyExists, got %v", err)
	}

	dup = &model.Commodity{ID: "other-id", Name: "beans 2", Slug: "beans", Unit: "kg"}
	if err := ms.CreateCommodity(ctx, dup); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("duplicate slug: expected ErrAlreadyExists, got %v", err)
	}
}
