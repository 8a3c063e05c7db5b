package auction

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// CloseReason records what triggered a settlement, for the audit log and the
// outbound event payload.
type CloseReason string

const (
	CloseExpired CloseReason = "timer_expired"
	CloseForced  CloseReason = "sell_now"
	CloseAdvance CloseReason = "advance"
)

var fullOwnership = decimal.NewFromInt(100)

// SettlementProcessor converts closed auction items into ownership records.
// Every settlement is a single transaction; the status transition away from
// ACTIVE doubles as the exactly-once guard, so a timer expiry racing a manual
// sellNow settles the item once and returns ErrAlreadySettled to the loser.
type SettlementProcessor struct {
	store Store
	now   func() time.Time
}

func NewSettlementProcessor(store Store) *SettlementProcessor {
	return &SettlementProcessor{store: store, now: time.Now}
}

// Close settles an active item as SOLD (if it has a winning bid) or UNSOLD.
// On SOLD it writes a 100% ownership row, debits the winner, and bumps the
// pool pot atomically.
func (sp *SettlementProcessor) Close(ctx context.Context, itemID int64, reason CloseReason) (*models.AuctionItem, error) {
	var settled *models.AuctionItem

	err := sp.store.InTx(ctx, func(ctx context.Context, s Store) error {
		item, err := s.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Status != models.ItemActive {
			return ErrAlreadySettled
		}

		now := sp.now()

		if !item.HasBid() {
			item.Status = models.ItemUnsold
			if err := s.UpdateItem(ctx, item); err != nil {
				return err
			}
			settled = item
			return nil
		}

		item.Status = models.ItemSold
		item.WinnerID = item.CurrentBidderID
		item.WinningBid = item.CurrentBid
		if err := s.UpdateItem(ctx, item); err != nil {
			return err
		}

		if err := sp.recordPurchase(ctx, s, item.PoolID, item.ID, item.WinnerID, item.WinningBid, models.SourceAuction, now); err != nil {
			return err
		}

		settled = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Item settled",
		slog.String("type", "auction"),
		slog.Int64("item_id", settled.ID),
		slog.Int64("pool_id", settled.PoolID),
		slog.String("status", string(settled.Status)),
		slog.String("reason", string(reason)),
		slog.Int64("winning_bid", settled.WinningBid),
	)
	return settled, nil
}

// CloseWheel settles a pending item assigned by a wheel spin. Wheel items
// never pass through ACTIVE; they go straight from PENDING to SOLD at the
// pool's fixed wheel price.
func (sp *SettlementProcessor) CloseWheel(ctx context.Context, itemID int64, userID string) (*models.AuctionItem, error) {
	var settled *models.AuctionItem

	err := sp.store.InTx(ctx, func(ctx context.Context, s Store) error {
		item, err := s.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Status != models.ItemPending {
			return ErrAlreadySettled
		}

		pool, err := s.Pool(ctx, item.PoolID)
		if err != nil {
			return err
		}

		now := sp.now()
		item.Status = models.ItemSold
		item.WinnerID = userID
		item.WinningBid = pool.WheelPrice
		if err := s.UpdateItem(ctx, item); err != nil {
			return err
		}

		if err := sp.recordPurchase(ctx, s, item.PoolID, item.ID, userID, pool.WheelPrice, models.SourceWheelSpin, now); err != nil {
			return err
		}

		settled = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Item wheel-assigned",
		slog.String("type", "auction"),
		slog.Int64("item_id", settled.ID),
		slog.Int64("pool_id", settled.PoolID),
		slog.String("winner_id", settled.WinnerID),
		slog.Int64("price", settled.WinningBid),
	)
	return settled, nil
}

func (sp *SettlementProcessor) recordPurchase(ctx context.Context, s Store, poolID, itemID int64, userID string, price int64, source models.OwnershipSource, now time.Time) error {
	if err := s.InsertOwnership(ctx, &models.Ownership{
		PoolID:        poolID,
		AuctionItemID: itemID,
		UserID:        userID,
		Percentage:    fullOwnership,
		PurchasePrice: price,
		Source:        source,
		AcquiredAt:    now,
	}); err != nil {
		return err
	}

	pool, err := s.Pool(ctx, poolID)
	if err != nil {
		return err
	}
	member, err := s.Member(ctx, poolID, userID)
	if err != nil {
		return err
	}

	member.TotalSpent += price
	if pool.BudgetEnforced() {
		member.RemainingBudget -= price
	}
	if err := s.UpdateMember(ctx, member); err != nil {
		return err
	}

	pool.TotalPot += price
	return s.UpdatePool(ctx, pool)
}

// Rollback undoes the most recent SOLD settlement in a pool and puts the item
// back up for bidding with a fresh deadline. Only the latest sale can be
// reverted; the bid history stays intact.
func (sp *SettlementProcessor) Rollback(ctx context.Context, itemID int64, newDeadline time.Time) (*models.AuctionItem, error) {
	var reverted *models.AuctionItem

	err := sp.store.InTx(ctx, func(ctx context.Context, s Store) error {
		item, err := s.ItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Status != models.ItemSold {
			return NewValidationError(ReasonNotRevertible, "item %d is %s, only sold items can be reverted", item.ID, item.Status)
		}

		last, err := s.LastSoldItem(ctx, item.PoolID)
		if err != nil {
			return err
		}
		if last == nil || last.ID != item.ID {
			return NewValidationError(ReasonNotRevertible, "item %d is not the most recent sale in pool %d", item.ID, item.PoolID)
		}

		pool, err := s.Pool(ctx, item.PoolID)
		if err != nil {
			return err
		}
		member, err := s.Member(ctx, item.PoolID, item.WinnerID)
		if err != nil {
			return err
		}

		member.TotalSpent -= item.WinningBid
		if pool.BudgetEnforced() {
			member.RemainingBudget += item.WinningBid
		}
		if err := s.UpdateMember(ctx, member); err != nil {
			return err
		}

		pool.TotalPot -= item.WinningBid
		if err := s.UpdatePool(ctx, pool); err != nil {
			return err
		}

		if err := s.DeleteOwnerships(ctx, item.ID); err != nil {
			return err
		}

		item.Status = models.ItemActive
		item.WinnerID = ""
		item.WinningBid = 0
		item.TimerDeadline = newDeadline
		item.ActivatedAt = sp.now()
		if err := s.UpdateItem(ctx, item); err != nil {
			return err
		}

		reverted = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Sale reverted",
		slog.String("type", "auction"),
		slog.Int64("item_id", reverted.ID),
		slog.Int64("pool_id", reverted.PoolID),
	)
	return reverted, nil
}
