package models

import (
	"time"

	"github.com/uptrace/bun"
)

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionPaused     SessionStatus = "paused"
	SessionCompleted  SessionStatus = "completed"
)

type ItemStatus string

const (
	ItemPending ItemStatus = "pending"
	ItemActive  ItemStatus = "active"
	ItemSold    ItemStatus = "sold"
	ItemUnsold  ItemStatus = "unsold"
)

// AuctionSession tracks the pool-level auction state machine. One row per
// pool; at most one item is active at a time.
type AuctionSession struct {
	bun.BaseModel `bun:"table:auction_sessions,alias:s"`

	ID            int64         `bun:"id,pk,autoincrement"`
	PoolID        int64         `bun:"pool_id,notnull,unique"`
	Status        SessionStatus `bun:"status,notnull"`
	CurrentItemID int64         `bun:"current_item_id"`

	// PausedRemainingMS freezes the active item's remaining countdown while
	// the session is paused, so Resume can re-arm the deadline.
	PausedRemainingMS int64 `bun:"paused_remaining_ms"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// AuctionItem is one team lot. Version is the optimistic-concurrency token:
// it starts at 0 on activation and bumps on every accepted bid. TimerDeadline
// is absolute so a live auction survives a process restart.
type AuctionItem struct {
	bun.BaseModel `bun:"table:auction_items,alias:ai"`

	ID       int64      `bun:"id,pk,autoincrement"`
	PoolID   int64      `bun:"pool_id,notnull"`
	TeamID   string     `bun:"team_id,notnull"`
	TeamName string     `bun:"team_name,notnull"`
	Status   ItemStatus `bun:"status,notnull"`

	QueueOrder  int   `bun:"queue_order,notnull"`
	StartingBid int64 `bun:"starting_bid,notnull"`

	// CurrentBid is 0 and CurrentBidderID empty until the first accepted bid.
	CurrentBid      int64  `bun:"current_bid,notnull,default:0"`
	CurrentBidderID string `bun:"current_bidder_id"`
	Version         int64  `bun:"version,notnull,default:0"`

	TimerDeadline time.Time `bun:"timer_deadline"`
	ActivatedAt   time.Time `bun:"activated_at"`

	WinnerID   string `bun:"winner_id"`
	WinningBid int64  `bun:"winning_bid,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (i *AuctionItem) HasBid() bool {
	return i.CurrentBidderID != ""
}

// Bid is an append-only audit row. Exactly one bid per item carries
// IsWinning=true at any time; it flips on supersession and is never deleted,
// not even when a sold item is reverted.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ItemID    int64     `bun:"item_id,notnull"`
	PoolID    int64     `bun:"pool_id,notnull"`
	UserID    string    `bun:"user_id,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	IsWinning bool      `bun:"is_winning,notnull,default:false"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}
