package auction

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// SpinResult is one wheel outcome awaiting commissioner confirmation.
type SpinResult struct {
	SpinID string
	ItemID int64
	TeamID string
	UserID string
}

type wheelState struct {
	bag     []*models.AuctionItem // unassigned items, shuffled
	cycle   []string              // member order, shuffled once at init
	nextIdx int
	pending *SpinResult
}

// WheelAssignmentEngine implements random team assignment for wheel-spin
// pools. Members receive teams in a shuffled round-robin cycle so assignment
// counts never differ by more than one; which team a member draws is random.
//
// State is in-memory and callers must hold the pool lock. After a restart the
// state is rebuilt from the database on the next init.
type WheelAssignmentEngine struct {
	store  Store
	states map[int64]*wheelState
	rng    *rand.Rand
}

func NewWheelAssignmentEngine(store Store) *WheelAssignmentEngine {
	return &WheelAssignmentEngine{
		store:  store,
		states: make(map[int64]*wheelState),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Init builds (or rebuilds) the wheel state for a pool: the remaining item
// bag and the member cycle. The cycle position is derived from how many items
// have already been assigned, so a rebuild after restart resumes fairly.
func (w *WheelAssignmentEngine) Init(ctx context.Context, pool *models.Pool) error {
	if pool.Mode != models.ModeWheelSpin {
		return NewValidationError(ReasonWrongMode, "pool %d runs a %s auction", pool.ID, pool.Mode)
	}

	members, err := w.store.Members(ctx, pool.ID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return NewValidationError(ReasonInvalidState, "pool %d has no members to assign teams to", pool.ID)
	}

	items, err := w.store.Items(ctx, pool.ID)
	if err != nil {
		return err
	}

	bag := make([]*models.AuctionItem, 0, len(items))
	sold := 0
	for _, item := range items {
		switch item.Status {
		case models.ItemPending:
			bag = append(bag, item)
		case models.ItemSold:
			sold++
		}
	}

	cycle := make([]string, len(members))
	for i, m := range members {
		cycle[i] = m.UserID
	}
	// Sort before shuffling so the cycle is a pure function of the seed, not
	// of query ordering.
	sort.Strings(cycle)
	w.rng.Shuffle(len(cycle), func(i, j int) { cycle[i], cycle[j] = cycle[j], cycle[i] })
	w.rng.Shuffle(len(bag), func(i, j int) { bag[i], bag[j] = bag[j], bag[i] })

	w.states[pool.ID] = &wheelState{
		bag:     bag,
		cycle:   cycle,
		nextIdx: sold % len(cycle),
	}
	return nil
}

// Spin draws a random remaining team for the next member in the cycle. The
// result is provisional until Confirm settles it; a second spin while one is
// pending is rejected.
func (w *WheelAssignmentEngine) Spin(poolID int64) (*SpinResult, error) {
	st, ok := w.states[poolID]
	if !ok {
		return nil, NewValidationError(ReasonInvalidState, "wheel not initialized for pool %d", poolID)
	}
	if st.pending != nil {
		return nil, NewValidationError(ReasonSpinPending, "spin %s is awaiting confirmation", st.pending.SpinID)
	}
	if len(st.bag) == 0 {
		return nil, NewValidationError(ReasonNoItems, "all teams in pool %d are assigned", poolID)
	}

	idx := w.rng.Intn(len(st.bag))
	item := st.bag[idx]
	st.bag[idx] = st.bag[len(st.bag)-1]
	st.bag = st.bag[:len(st.bag)-1]

	userID := st.cycle[st.nextIdx]
	st.nextIdx = (st.nextIdx + 1) % len(st.cycle)

	st.pending = &SpinResult{
		SpinID: uuid.NewString(),
		ItemID: item.ID,
		TeamID: item.TeamID,
		UserID: userID,
	}
	return st.pending, nil
}

// Pending returns the unconfirmed spin for a pool, if any.
func (w *WheelAssignmentEngine) Pending(poolID int64) *SpinResult {
	if st, ok := w.states[poolID]; ok {
		return st.pending
	}
	return nil
}

// Confirm clears the pending spin after it has been settled.
func (w *WheelAssignmentEngine) Confirm(poolID int64) (*SpinResult, error) {
	st, ok := w.states[poolID]
	if !ok || st.pending == nil {
		return nil, NewValidationError(ReasonNoSpinPending, "no spin awaiting confirmation in pool %d", poolID)
	}
	res := st.pending
	st.pending = nil
	return res, nil
}

// Remaining reports how many teams are still in the bag.
func (w *WheelAssignmentEngine) Remaining(poolID int64) int {
	if st, ok := w.states[poolID]; ok {
		return len(st.bag)
	}
	return 0
}
