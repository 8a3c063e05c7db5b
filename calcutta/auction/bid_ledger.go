package auction

import (
	"context"
	"time"

	"github.com/madpools/calcutta/calcutta/database/models"
	"github.com/madpools/calcutta/calcutta/economy"
)

// Config carries the live-auction tuning knobs. Zero fields fall back to the
// engine defaults.
type Config struct {
	ItemDuration       time.Duration
	ExtensionThreshold time.Duration
	MaxItemDuration    time.Duration
	MinBidIncrement    int64
}

func (c Config) withDefaults() Config {
	if c.ItemDuration <= 0 {
		c.ItemDuration = economy.DefaultItemDuration
	}
	if c.ExtensionThreshold <= 0 {
		c.ExtensionThreshold = economy.ExtensionThreshold
	}
	if c.MaxItemDuration <= 0 {
		c.MaxItemDuration = economy.MaxItemDuration
	}
	if c.MinBidIncrement <= 0 {
		c.MinBidIncrement = economy.MinBidIncrement
	}
	return c
}

// BidResult is the accepted-bid outcome returned to the caller and echoed in
// the new_bid event.
type BidResult struct {
	Item     *models.AuctionItem
	Extended bool
	Deadline time.Time
}

// BidLedger validates and records bids. All checks and writes for one bid run
// in a single transaction against a row-locked item, so two bids on the same
// item are strictly ordered no matter how they raced in flight.
type BidLedger struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewBidLedger(store Store, cfg Config) *BidLedger {
	return &BidLedger{store: store, cfg: cfg.withDefaults(), now: time.Now}
}

// PlaceBid arbitrates one bid attempt. Rejections come back as
// *ValidationError or *ConflictError; anything else is a system fault.
//
// Check order matters: a stale version is reported before the amount is
// judged, because the amount comparison is meaningless against state the
// bidder never saw.
func (l *BidLedger) PlaceBid(ctx context.Context, itemID int64, userID string, amount int64, expectedVersion int64) (*BidResult, error) {
	var res *BidResult

	err := l.store.InTx(ctx, func(ctx context.Context, s Store) error {
		item, err := s.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}

		if item.Status != models.ItemActive {
			return NewValidationError(ReasonItemNotActive, "item %d is %s", item.ID, item.Status)
		}
		if item.Version != expectedVersion {
			return &ConflictError{ItemID: item.ID, ExpectedVersion: expectedVersion, ActualVersion: item.Version}
		}

		min := item.StartingBid
		if item.HasBid() {
			min = item.CurrentBid + l.cfg.MinBidIncrement
		}
		if amount < min {
			return NewValidationError(ReasonBidTooLow, "bid of %d is below the minimum of %d", amount, min)
		}

		pool, err := s.Pool(ctx, item.PoolID)
		if err != nil {
			return err
		}
		member, err := s.Member(ctx, item.PoolID, userID)
		if err != nil {
			return err
		}
		if pool.BudgetEnforced() && amount > member.RemainingBudget {
			return NewValidationError(ReasonInsufficientBudget,
				"bid of %d exceeds remaining budget of %d", amount, member.RemainingBudget)
		}

		now := l.now()

		if err := s.ClearWinningBid(ctx, item.ID); err != nil {
			return err
		}
		if err := s.AppendBid(ctx, &models.Bid{
			ItemID:    item.ID,
			PoolID:    item.PoolID,
			UserID:    userID,
			Amount:    amount,
			IsWinning: true,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		item.CurrentBid = amount
		item.CurrentBidderID = userID
		item.Version++

		deadline, extended := ExtendDeadline(now, item.TimerDeadline, item.ActivatedAt, l.cfg.ExtensionThreshold, l.cfg.MaxItemDuration)
		if extended {
			item.TimerDeadline = deadline
		}

		if err := s.UpdateItem(ctx, item); err != nil {
			return err
		}

		res = &BidResult{Item: item, Extended: extended, Deadline: item.TimerDeadline}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
