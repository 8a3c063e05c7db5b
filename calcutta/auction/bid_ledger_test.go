package auction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/madpools/calcutta/calcutta/database/models"
)

var _ Store = (*memStore)(nil)

func testLedgerConfig() Config {
	return Config{
		ItemDuration:       15 * time.Second,
		ExtensionThreshold: 10 * time.Second,
		MaxItemDuration:    5 * time.Minute,
		MinBidIncrement:    1,
	}
}

func seedActiveItem(store *memStore, budgetCap int64) (*models.Pool, *models.AuctionItem) {
	pool := store.addPool(&models.Pool{
		Name:           "march",
		TournamentID:   "t1",
		CommissionerID: "carol",
		Mode:           models.ModeTraditional,
		BudgetCap:      budgetCap,
	})
	store.addMember(&models.PoolMember{PoolID: pool.ID, UserID: "alice", RemainingBudget: budgetCap})
	store.addMember(&models.PoolMember{PoolID: pool.ID, UserID: "bob", RemainingBudget: budgetCap})

	now := time.Now()
	item := store.addItem(&models.AuctionItem{
		PoolID:        pool.ID,
		TeamID:        "duke",
		TeamName:      "Duke",
		Status:        models.ItemActive,
		QueueOrder:    1,
		StartingBid:   1,
		ActivatedAt:   now,
		TimerDeadline: now.Add(60 * time.Second),
	})
	return pool, item
}

func TestPlaceBidVersionWalk(t *testing.T) {
	store := newMemStore()
	_, item := seedActiveItem(store, 1000)
	ledger := NewBidLedger(store, testLedgerConfig())
	ctx := context.Background()

	res, err := ledger.PlaceBid(ctx, item.ID, "alice", 5, 0)
	if err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if res.Item.Version != 1 || res.Item.CurrentBid != 5 || res.Item.CurrentBidderID != "alice" {
		t.Fatalf("unexpected item state after first bid: %+v", res.Item)
	}

	// Same amount against the current version loses on price.
	_, err = ledger.PlaceBid(ctx, item.ID, "bob", 5, 1)
	ve, ok := AsValidation(err)
	if !ok || ve.Code != ReasonBidTooLow {
		t.Fatalf("expected BID_TOO_LOW, got %v", err)
	}

	res, err = ledger.PlaceBid(ctx, item.ID, "bob", 6, 1)
	if err != nil {
		t.Fatalf("raise: %v", err)
	}
	if res.Item.Version != 2 || res.Item.CurrentBidderID != "bob" {
		t.Fatalf("unexpected item state after raise: %+v", res.Item)
	}

	// Alice never saw bob's bid; her stale version loses before the amount
	// is even judged.
	_, err = ledger.PlaceBid(ctx, item.ID, "alice", 6, 1)
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected stale-version conflict, got %v", err)
	}
	if ce.ActualVersion != 2 || ce.ExpectedVersion != 1 {
		t.Fatalf("unexpected conflict detail: %+v", ce)
	}

	bids, _ := store.BidsForItem(ctx, item.ID)
	if len(bids) != 2 {
		t.Fatalf("expected 2 recorded bids, got %d", len(bids))
	}
	winning := 0
	for _, b := range bids {
		if b.IsWinning {
			winning++
			if b.UserID != "bob" {
				t.Fatalf("winning bid belongs to %s, want bob", b.UserID)
			}
		}
	}
	if winning != 1 {
		t.Fatalf("expected exactly 1 winning bid, got %d", winning)
	}
}

func TestPlaceBidRejections(t *testing.T) {
	store := newMemStore()
	pool, item := seedActiveItem(store, 100)
	ledger := NewBidLedger(store, testLedgerConfig())
	ctx := context.Background()

	t.Run("insufficient budget", func(t *testing.T) {
		_, err := ledger.PlaceBid(ctx, item.ID, "alice", 200, 0)
		ve, ok := AsValidation(err)
		if !ok || ve.Code != ReasonInsufficientBudget {
			t.Fatalf("expected INSUFFICIENT_BUDGET, got %v", err)
		}
	})

	t.Run("below starting bid", func(t *testing.T) {
		_, err := ledger.PlaceBid(ctx, item.ID, "alice", 0, 0)
		ve, ok := AsValidation(err)
		if !ok || ve.Code != ReasonBidTooLow {
			t.Fatalf("expected BID_TOO_LOW, got %v", err)
		}
	})

	t.Run("item not active", func(t *testing.T) {
		closed := store.addItem(&models.AuctionItem{
			PoolID:      pool.ID,
			TeamID:      "unc",
			TeamName:    "UNC",
			Status:      models.ItemPending,
			QueueOrder:  2,
			StartingBid: 1,
		})
		_, err := ledger.PlaceBid(ctx, closed.ID, "alice", 10, 0)
		ve, ok := AsValidation(err)
		if !ok || ve.Code != ReasonItemNotActive {
			t.Fatalf("expected ITEM_NOT_ACTIVE, got %v", err)
		}
	})

	t.Run("unknown bidder", func(t *testing.T) {
		_, err := ledger.PlaceBid(ctx, item.ID, "mallory", 10, 0)
		if err == nil || !models.IsNotFound(err) {
			t.Fatalf("expected not-found for non-member, got %v", err)
		}
	})
}

func TestPlaceBidNoBudgetEnforcement(t *testing.T) {
	store := newMemStore()
	_, item := seedActiveItem(store, 0) // cap 0 disables enforcement
	ledger := NewBidLedger(store, testLedgerConfig())

	res, err := ledger.PlaceBid(context.Background(), item.ID, "alice", 1_000_000, 0)
	if err != nil {
		t.Fatalf("uncapped bid rejected: %v", err)
	}
	if res.Item.CurrentBid != 1_000_000 {
		t.Fatalf("bid not recorded: %+v", res.Item)
	}
}

func TestPlaceBidAntiSnipeExtension(t *testing.T) {
	store := newMemStore()
	_, item := seedActiveItem(store, 0)
	cfg := testLedgerConfig()
	ledger := NewBidLedger(store, cfg)

	base := time.Now()
	ledger.now = func() time.Time { return base }

	// Plenty of time left: no extension.
	store.InTx(context.Background(), func(ctx context.Context, s Store) error {
		it, _ := s.ItemForUpdate(ctx, item.ID)
		it.ActivatedAt = base
		it.TimerDeadline = base.Add(30 * time.Second)
		return s.UpdateItem(ctx, it)
	})
	res, err := ledger.PlaceBid(context.Background(), item.ID, "alice", 5, 0)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if res.Extended {
		t.Fatalf("bid outside the threshold should not extend")
	}

	// Inside the window: deadline pushes out to now + threshold.
	store.InTx(context.Background(), func(ctx context.Context, s Store) error {
		it, _ := s.ItemForUpdate(ctx, item.ID)
		it.TimerDeadline = base.Add(3 * time.Second)
		return s.UpdateItem(ctx, it)
	})
	res, err = ledger.PlaceBid(context.Background(), item.ID, "bob", 10, 1)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if !res.Extended {
		t.Fatalf("bid inside the threshold should extend")
	}
	if want := base.Add(cfg.ExtensionThreshold); !res.Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", res.Deadline, want)
	}
}

func TestPlaceBidConcurrentSameVersion(t *testing.T) {
	store := newMemStore()
	_, item := seedActiveItem(store, 0)
	ledger := NewBidLedger(store, testLedgerConfig())

	const bidders = 8
	var wg sync.WaitGroup
	accepted := make(chan int64, bidders)

	for i := 0; i < bidders; i++ {
		amount := int64(10 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.PlaceBid(context.Background(), item.ID, "alice", amount, 0)
			if err == nil {
				accepted <- res.Item.CurrentBid
			}
		}()
	}
	wg.Wait()
	close(accepted)

	var wins []int64
	for amt := range accepted {
		wins = append(wins, amt)
	}
	if len(wins) != 1 {
		t.Fatalf("expected exactly one accepted bid against version 0, got %d", len(wins))
	}

	final, _ := store.Item(context.Background(), item.ID)
	if final.Version != 1 {
		t.Fatalf("final version = %d, want 1", final.Version)
	}
	if final.CurrentBid != wins[0] {
		t.Fatalf("current bid %d does not match accepted bid %d", final.CurrentBid, wins[0])
	}
}
