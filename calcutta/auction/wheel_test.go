package auction

import (
	"context"
	"testing"

	"github.com/madpools/calcutta/calcutta/database/models"
)

func seedWheelPool(store *memStore, memberCount, itemCount int) *models.Pool {
	pool := store.addPool(&models.Pool{
		Name:           "wheel",
		TournamentID:   "t1",
		CommissionerID: "carol",
		Mode:           models.ModeWheelSpin,
		WheelPrice:     25,
	})
	users := []string{"alice", "bob", "carol", "dave", "erin"}
	for i := 0; i < memberCount; i++ {
		store.addMember(&models.PoolMember{PoolID: pool.ID, UserID: users[i]})
	}
	teams := []string{"duke", "unc", "uconn", "gonzaga", "purdue", "houston"}
	for i := 0; i < itemCount; i++ {
		store.addItem(&models.AuctionItem{
			PoolID: pool.ID, TeamID: teams[i], TeamName: teams[i],
			Status: models.ItemPending, QueueOrder: i + 1, StartingBid: 1,
		})
	}
	return pool
}

func TestWheelRoundRobinFairness(t *testing.T) {
	store := newMemStore()
	pool := seedWheelPool(store, 3, 5)
	wheel := NewWheelAssignmentEngine(store)
	ctx := context.Background()

	if err := wheel.Init(ctx, pool); err != nil {
		t.Fatalf("init: %v", err)
	}

	counts := make(map[string]int)
	assigned := make(map[int64]bool)
	for i := 0; i < 5; i++ {
		spin, err := wheel.Spin(pool.ID)
		if err != nil {
			t.Fatalf("spin %d: %v", i, err)
		}
		if spin.SpinID == "" {
			t.Fatalf("spin %d has no id", i)
		}
		if assigned[spin.ItemID] {
			t.Fatalf("item %d drawn twice", spin.ItemID)
		}
		assigned[spin.ItemID] = true
		counts[spin.UserID]++
		if _, err := wheel.Confirm(pool.ID); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}

	if len(counts) != 3 {
		t.Fatalf("expected all 3 members to draw, got %v", counts)
	}
	for user, n := range counts {
		if n < 1 || n > 2 {
			t.Fatalf("member %s drew %d teams, counts must differ by at most one: %v", user, n, counts)
		}
	}

	if wheel.Remaining(pool.ID) != 0 {
		t.Fatalf("bag not empty after all spins")
	}
	if _, err := wheel.Spin(pool.ID); err == nil {
		t.Fatalf("spin on empty bag must fail")
	}
}

func TestWheelPendingSpinBlocksNext(t *testing.T) {
	store := newMemStore()
	pool := seedWheelPool(store, 2, 3)
	wheel := NewWheelAssignmentEngine(store)
	ctx := context.Background()

	if err := wheel.Init(ctx, pool); err != nil {
		t.Fatalf("init: %v", err)
	}

	first, err := wheel.Spin(pool.ID)
	if err != nil {
		t.Fatalf("spin: %v", err)
	}

	_, err = wheel.Spin(pool.ID)
	ve, ok := AsValidation(err)
	if !ok || ve.Code != ReasonSpinPending {
		t.Fatalf("expected SPIN_PENDING, got %v", err)
	}

	if got := wheel.Pending(pool.ID); got == nil || got.SpinID != first.SpinID {
		t.Fatalf("pending spin lost")
	}
	if _, err := wheel.Confirm(pool.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := wheel.Confirm(pool.ID); err == nil {
		t.Fatalf("double confirm must fail")
	}
	if _, err := wheel.Spin(pool.ID); err != nil {
		t.Fatalf("spin after confirm: %v", err)
	}
}

func TestWheelRequiresMembersAndMode(t *testing.T) {
	store := newMemStore()
	wheel := NewWheelAssignmentEngine(store)
	ctx := context.Background()

	traditional := store.addPool(&models.Pool{
		Name: "trad", TournamentID: "t1", CommissionerID: "carol",
		Mode: models.ModeTraditional,
	})
	if err := wheel.Init(ctx, traditional); err == nil {
		t.Fatalf("init on a traditional pool must fail")
	}

	empty := store.addPool(&models.Pool{
		Name: "empty", TournamentID: "t1", CommissionerID: "carol",
		Mode: models.ModeWheelSpin,
	})
	if err := wheel.Init(ctx, empty); err == nil {
		t.Fatalf("init with no members must fail")
	}
}

func TestWheelInitResumesCycleAfterRestart(t *testing.T) {
	store := newMemStore()
	pool := seedWheelPool(store, 3, 5)
	wheel := NewWheelAssignmentEngine(store)
	settler := NewSettlementProcessor(store)
	ctx := context.Background()

	if err := wheel.Init(ctx, pool); err != nil {
		t.Fatalf("init: %v", err)
	}

	// Two assignments settle, then the process "restarts".
	for i := 0; i < 2; i++ {
		spin, err := wheel.Spin(pool.ID)
		if err != nil {
			t.Fatalf("spin: %v", err)
		}
		if _, err := settler.CloseWheel(ctx, spin.ItemID, spin.UserID); err != nil {
			t.Fatalf("settle: %v", err)
		}
		if _, err := wheel.Confirm(pool.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	rebuilt := NewWheelAssignmentEngine(store)
	if err := rebuilt.Init(ctx, pool); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	if got := rebuilt.Remaining(pool.ID); got != 3 {
		t.Fatalf("remaining after rebuild = %d, want 3", got)
	}

	// Draining the rest still keeps counts within one of each other overall.
	counts := make(map[string]int)
	for i := 0; i < 3; i++ {
		spin, err := rebuilt.Spin(pool.ID)
		if err != nil {
			t.Fatalf("spin: %v", err)
		}
		counts[spin.UserID]++
		if _, err := rebuilt.Confirm(pool.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total != 3 {
		t.Fatalf("expected 3 more assignments, got %d", total)
	}
}
