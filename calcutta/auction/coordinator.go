package auction

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/madpools/calcutta/calcutta/database/models"
	"github.com/madpools/calcutta/calcutta/economy"
)

// Coordinator drives the per-pool auction state machine. Every public method
// acquires the pool's lock before touching state, so commands, bids, and
// timer expiries for one pool are fully serialized while pools stay
// independent.
type Coordinator struct {
	store     Store
	ledger    *BidLedger
	timers    *TimerService
	settler   *SettlementProcessor
	wheel     *WheelAssignmentEngine
	publisher Publisher
	cfg       Config

	locks sync.Map // poolID -> *sync.Mutex
	now   func() time.Time
}

func NewCoordinator(store Store, publisher Publisher, cfg Config) *Coordinator {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	c := &Coordinator{
		store:     store,
		ledger:    NewBidLedger(store, cfg),
		settler:   NewSettlementProcessor(store),
		wheel:     NewWheelAssignmentEngine(store),
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
	c.timers = NewTimerService(c.handleExpiry)
	return c
}

// Timers exposes the timer service for shutdown wiring.
func (c *Coordinator) Timers() *TimerService {
	return c.timers
}

func (c *Coordinator) lockPool(poolID int64) func() {
	v, _ := c.locks.LoadOrStore(poolID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Start opens bidding in a traditional pool: the session moves to
// IN_PROGRESS and the first queued item goes active.
func (c *Coordinator) Start(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	pool, err := c.store.Pool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.Mode != models.ModeTraditional {
		return NewValidationError(ReasonWrongMode, "pool %d runs a %s auction, use wheel commands", poolID, pool.Mode)
	}

	var activated *models.AuctionItem
	err = c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		session, err := c.loadOrCreateSession(ctx, s, poolID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionNotStarted {
			return NewValidationError(ReasonInvalidState, "auction for pool %d already %s", poolID, session.Status)
		}

		item, err := s.NextPendingItem(ctx, poolID)
		if err != nil {
			return err
		}
		if item == nil {
			return NewValidationError(ReasonNoItems, "pool %d has no items queued", poolID)
		}

		session.Status = models.SessionInProgress
		if err := c.activate(ctx, s, session, item); err != nil {
			return err
		}
		activated = item
		return nil
	})
	if err != nil {
		return err
	}

	c.timers.Schedule(poolID, activated.ID, activated.TimerDeadline)
	c.publisher.Publish(ctx, NewEvent(EventAuctionStarted, poolID, nil))
	c.publishItemActive(ctx, activated)
	return nil
}

// Pause freezes the session. The active item's remaining countdown is stored
// so Resume can re-arm it; bids are rejected while paused.
func (c *Coordinator) Pause(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	err := c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		session, err := s.Session(ctx, poolID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionInProgress {
			return NewValidationError(ReasonInvalidState, "cannot pause a session that is %s", session.Status)
		}

		if session.CurrentItemID != 0 {
			item, err := s.Item(ctx, session.CurrentItemID)
			if err != nil {
				return err
			}
			if item.Status == models.ItemActive {
				remaining := item.TimerDeadline.Sub(c.now())
				if remaining < 0 {
					remaining = 0
				}
				session.PausedRemainingMS = remaining.Milliseconds()
				c.timers.Cancel(item.ID)
			}
		}

		session.Status = models.SessionPaused
		return s.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}

	c.publisher.Publish(ctx, NewEvent(EventAuctionPaused, poolID, nil))
	return nil
}

// Resume re-opens a paused session and re-arms the frozen countdown.
func (c *Coordinator) Resume(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	var rearmed *models.AuctionItem
	err := c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		session, err := s.Session(ctx, poolID)
		if err != nil {
			return err
		}
		if session.Status != models.SessionPaused {
			return NewValidationError(ReasonInvalidState, "cannot resume a session that is %s", session.Status)
		}

		if session.CurrentItemID != 0 {
			item, err := s.ItemForUpdate(ctx, session.CurrentItemID)
			if err != nil {
				return err
			}
			if item.Status == models.ItemActive {
				item.TimerDeadline = c.now().Add(time.Duration(session.PausedRemainingMS) * time.Millisecond)
				if err := s.UpdateItem(ctx, item); err != nil {
					return err
				}
				rearmed = item
			}
		}

		session.Status = models.SessionInProgress
		session.PausedRemainingMS = 0
		return s.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}

	if rearmed != nil {
		c.timers.Schedule(poolID, rearmed.ID, rearmed.TimerDeadline)
		c.publishTimer(ctx, rearmed)
	}
	c.publisher.Publish(ctx, NewEvent(EventAuctionResumed, poolID, nil))
	return nil
}

// Next advances the queue: the current item (if still active) is force-closed
// and the next pending item goes up. When the queue is empty the session
// completes.
func (c *Coordinator) Next(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	var (
		settled   *models.AuctionItem
		activated *models.AuctionItem
		completed bool
	)

	session, err := c.store.Session(ctx, poolID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionInProgress {
		return NewValidationError(ReasonInvalidState, "cannot advance a session that is %s", session.Status)
	}

	if session.CurrentItemID != 0 {
		c.timers.Cancel(session.CurrentItemID)
		item, err := c.settler.Close(ctx, session.CurrentItemID, CloseAdvance)
		if err != nil && err != ErrAlreadySettled {
			return err
		}
		settled = item
	}

	err = c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		session, err := s.Session(ctx, poolID)
		if err != nil {
			return err
		}

		item, err := s.NextPendingItem(ctx, poolID)
		if err != nil {
			return err
		}
		if item == nil {
			session.Status = models.SessionCompleted
			session.CurrentItemID = 0
			completed = true
			return s.UpdateSession(ctx, session)
		}
		activated = item
		return c.activate(ctx, s, session, item)
	})
	if err != nil {
		return err
	}

	if settled != nil {
		c.publishSettled(ctx, settled)
	}
	if completed {
		c.publisher.Publish(ctx, NewEvent(EventAuctionCompleted, poolID, nil))
		return nil
	}
	c.timers.Schedule(poolID, activated.ID, activated.TimerDeadline)
	c.publishItemActive(ctx, activated)
	return nil
}

// SellNow force-closes the current item immediately without advancing the
// queue.
func (c *Coordinator) SellNow(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	session, err := c.store.Session(ctx, poolID)
	if err != nil {
		return err
	}
	if session.Status != models.SessionInProgress {
		return NewValidationError(ReasonInvalidState, "cannot sell in a session that is %s", session.Status)
	}
	if session.CurrentItemID == 0 {
		return NewValidationError(ReasonItemNotActive, "pool %d has no item up for sale", poolID)
	}

	c.timers.Cancel(session.CurrentItemID)
	settled, err := c.settler.Close(ctx, session.CurrentItemID, CloseForced)
	if err != nil {
		return err
	}
	c.publishSettled(ctx, settled)
	return nil
}

// PlaceBid arbitrates one bid under the pool lock. On acceptance the new_bid
// event carries the bumped version; when the bid landed inside the anti-snipe
// window a timer_update follows.
func (c *Coordinator) PlaceBid(ctx context.Context, itemID int64, userID string, amount int64, expectedVersion int64) (*BidResult, error) {
	item, err := c.store.Item(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer c.lockPool(item.PoolID)()

	session, err := c.store.Session(ctx, item.PoolID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionInProgress {
		return nil, NewValidationError(ReasonItemNotActive, "auction for pool %d is %s", item.PoolID, session.Status)
	}

	res, err := c.ledger.PlaceBid(ctx, itemID, userID, amount, expectedVersion)
	if err != nil {
		return nil, err
	}

	if res.Extended {
		c.timers.Schedule(res.Item.PoolID, res.Item.ID, res.Deadline)
	}
	c.publisher.Publish(ctx, NewEvent(EventNewBid, res.Item.PoolID, map[string]interface{}{
		"itemId":  res.Item.ID,
		"userId":  userID,
		"amount":  amount,
		"version": res.Item.Version,
	}))
	if res.Extended {
		c.publishTimer(ctx, res.Item)
	}
	return res, nil
}

// Revert undoes the most recent sale and reopens the item with a fresh
// countdown. Bid history is preserved.
func (c *Coordinator) Revert(ctx context.Context, poolID, itemID int64) error {
	defer c.lockPool(poolID)()

	reverted, err := c.settler.Rollback(ctx, itemID, c.now().Add(c.cfg.ItemDuration))
	if err != nil {
		return err
	}

	err = c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		session, err := s.Session(ctx, poolID)
		if err != nil {
			return err
		}
		session.Status = models.SessionInProgress
		session.CurrentItemID = itemID
		return s.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}

	c.timers.Schedule(poolID, reverted.ID, reverted.TimerDeadline)
	c.publisher.Publish(ctx, NewEvent(EventItemReverted, poolID, map[string]interface{}{
		"itemId": reverted.ID,
	}))
	c.publishTimer(ctx, reverted)
	return nil
}

// Requeue puts an unsold item back at the end of the queue.
func (c *Coordinator) Requeue(ctx context.Context, poolID, itemID int64) error {
	defer c.lockPool(poolID)()

	return c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		item, err := s.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Status != models.ItemUnsold {
			return NewValidationError(ReasonInvalidState, "item %d is %s, only unsold items can be requeued", itemID, item.Status)
		}

		maxOrder, err := s.MaxQueueOrder(ctx, poolID)
		if err != nil {
			return err
		}

		item.Status = models.ItemPending
		item.QueueOrder = maxOrder + 1
		item.CurrentBid = 0
		item.CurrentBidderID = ""
		item.Version = 0
		item.TimerDeadline = time.Time{}
		item.ActivatedAt = time.Time{}
		return s.UpdateItem(ctx, item)
	})
}

// WheelInit prepares a wheel-spin pool: shuffles the member cycle and the
// item bag, and marks the session in progress.
func (c *Coordinator) WheelInit(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	pool, err := c.store.Pool(ctx, poolID)
	if err != nil {
		return err
	}

	err = c.store.InTx(ctx, func(ctx context.Context, s Store) error {
		session, err := c.loadOrCreateSession(ctx, s, poolID)
		if err != nil {
			return err
		}
		if session.Status == models.SessionCompleted {
			return NewValidationError(ReasonInvalidState, "auction for pool %d already completed", poolID)
		}
		session.Status = models.SessionInProgress
		return s.UpdateSession(ctx, session)
	})
	if err != nil {
		return err
	}

	if err := c.wheel.Init(ctx, pool); err != nil {
		return err
	}
	c.publisher.Publish(ctx, NewEvent(EventAuctionStarted, poolID, map[string]interface{}{
		"mode": string(models.ModeWheelSpin),
	}))
	return nil
}

// WheelSpin draws the next (member, team) assignment. The result stays
// provisional until WheelConfirm settles it.
func (c *Coordinator) WheelSpin(ctx context.Context, poolID int64) (*SpinResult, error) {
	defer c.lockPool(poolID)()

	session, err := c.store.Session(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionInProgress {
		return nil, NewValidationError(ReasonInvalidState, "auction for pool %d is %s", poolID, session.Status)
	}

	spin, err := c.wheel.Spin(poolID)
	if err != nil {
		return nil, err
	}

	c.publisher.Publish(ctx, NewEvent(EventWheelSpinResult, poolID, map[string]interface{}{
		"spinId": spin.SpinID,
		"itemId": spin.ItemID,
		"teamId": spin.TeamID,
		"userId": spin.UserID,
	}))
	return spin, nil
}

// WheelConfirm settles the pending spin into an ownership record at the
// pool's wheel price. When the bag empties the session completes.
func (c *Coordinator) WheelConfirm(ctx context.Context, poolID int64) error {
	defer c.lockPool(poolID)()

	pending := c.wheel.Pending(poolID)
	if pending == nil {
		return NewValidationError(ReasonNoSpinPending, "no spin awaiting confirmation in pool %d", poolID)
	}

	settled, err := c.settler.CloseWheel(ctx, pending.ItemID, pending.UserID)
	if err != nil && err != ErrAlreadySettled {
		return err
	}
	if _, err := c.wheel.Confirm(poolID); err != nil {
		return err
	}
	if settled != nil {
		c.publishSettled(ctx, settled)
	}

	if c.wheel.Remaining(poolID) == 0 {
		err = c.store.InTx(ctx, func(ctx context.Context, s Store) error {
			session, err := s.Session(ctx, poolID)
			if err != nil {
				return err
			}
			session.Status = models.SessionCompleted
			return s.UpdateSession(ctx, session)
		})
		if err != nil {
			return err
		}
		c.publisher.Publish(ctx, NewEvent(EventAuctionCompleted, poolID, nil))
	}
	return nil
}

// Recover rebuilds in-process timers after a restart. Sessions stay in
// whatever durable state they were in; active items whose deadlines passed
// while the process was down settle immediately.
func (c *Coordinator) Recover(ctx context.Context) error {
	sessions, err := c.store.ActiveSessions(ctx)
	if err != nil {
		return err
	}

	recovered := 0
	for _, session := range sessions {
		if session.CurrentItemID == 0 {
			continue
		}
		item, err := c.store.Item(ctx, session.CurrentItemID)
		if err != nil {
			slog.Error("Failed to recover auction item",
				slog.String("type", "auction"),
				slog.Int64("pool_id", session.PoolID),
				slog.Int64("item_id", session.CurrentItemID),
				slog.Any("error", err),
			)
			continue
		}
		if item.Status != models.ItemActive {
			continue
		}
		c.timers.Schedule(session.PoolID, item.ID, item.TimerDeadline)
		recovered++
	}

	slog.Info("Auction recovery complete",
		slog.String("type", "auction"),
		slog.Int("sessions", len(sessions)),
		slog.Int("timers_rearmed", recovered),
	)
	return nil
}

// handleExpiry is the timer callback. The armed deadline is compared against
// the durable one so an extension that raced the firing is a clean no-op.
func (c *Coordinator) handleExpiry(poolID, itemID int64, deadline time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), economy.DefaultTxTimeout)
	defer cancel()

	defer c.lockPool(poolID)()

	item, err := c.store.Item(ctx, itemID)
	if err != nil {
		slog.Error("Timer expiry lookup failed",
			slog.String("type", "auction"),
			slog.Int64("item_id", itemID),
			slog.Any("error", err),
		)
		return
	}
	if item.Status != models.ItemActive || !item.TimerDeadline.Equal(deadline) {
		return
	}

	settled, err := c.settler.Close(ctx, itemID, CloseExpired)
	if err != nil {
		if err != ErrAlreadySettled {
			slog.Error("Timer expiry settlement failed",
				slog.String("type", "auction"),
				slog.Int64("item_id", itemID),
				slog.Any("error", err),
			)
		}
		return
	}
	c.publishSettled(ctx, settled)
}

func (c *Coordinator) loadOrCreateSession(ctx context.Context, s Store, poolID int64) (*models.AuctionSession, error) {
	session, err := s.Session(ctx, poolID)
	if err == nil {
		return session, nil
	}
	if !models.IsNotFound(err) {
		return nil, err
	}
	session = &models.AuctionSession{
		PoolID: poolID,
		Status: models.SessionNotStarted,
	}
	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *Coordinator) activate(ctx context.Context, s Store, session *models.AuctionSession, item *models.AuctionItem) error {
	now := c.now()
	item.Status = models.ItemActive
	item.CurrentBid = 0
	item.CurrentBidderID = ""
	item.Version = 0
	item.ActivatedAt = now
	item.TimerDeadline = now.Add(c.cfg.ItemDuration)
	if err := s.UpdateItem(ctx, item); err != nil {
		return err
	}

	session.CurrentItemID = item.ID
	return s.UpdateSession(ctx, session)
}

func (c *Coordinator) publishItemActive(ctx context.Context, item *models.AuctionItem) {
	c.publisher.Publish(ctx, NewEvent(EventItemActive, item.PoolID, map[string]interface{}{
		"itemId":      item.ID,
		"teamId":      item.TeamID,
		"teamName":    item.TeamName,
		"startingBid": item.StartingBid,
		"deadline":    item.TimerDeadline,
	}))
	c.publishTimer(ctx, item)
}

func (c *Coordinator) publishTimer(ctx context.Context, item *models.AuctionItem) {
	c.publisher.Publish(ctx, NewEvent(EventTimerUpdate, item.PoolID, map[string]interface{}{
		"itemId":   item.ID,
		"deadline": item.TimerDeadline,
	}))
}

func (c *Coordinator) publishSettled(ctx context.Context, item *models.AuctionItem) {
	typ := EventItemUnsold
	payload := map[string]interface{}{
		"itemId": item.ID,
		"teamId": item.TeamID,
	}
	if item.Status == models.ItemSold {
		typ = EventItemSold
		payload["winnerId"] = item.WinnerID
		payload["winningBid"] = item.WinningBid
	}
	c.publisher.Publish(ctx, NewEvent(typ, item.PoolID, payload))
}
