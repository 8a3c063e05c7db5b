package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type OwnershipSource string

const (
	SourceAuction         OwnershipSource = "auction"
	SourceWheelSpin       OwnershipSource = "wheel_spin"
	SourceSecondaryMarket OwnershipSource = "secondary_market"
)

// Ownership is a percentage claim on an auction item's future payouts. The
// sum of percentages across all rows for one item never exceeds 100 and
// equals exactly 100 once the item is sold or wheel-assigned.
type Ownership struct {
	bun.BaseModel `bun:"table:ownerships,alias:o"`

	ID            int64           `bun:"id,pk,autoincrement"`
	PoolID        int64           `bun:"pool_id,notnull"`
	AuctionItemID int64           `bun:"auction_item_id,notnull"`
	UserID        string          `bun:"user_id,notnull"`
	Percentage    decimal.Decimal `bun:"percentage,notnull,type:numeric(5,2)"`
	PurchasePrice int64           `bun:"purchase_price,notnull"`
	Source        OwnershipSource `bun:"source,notnull"`
	AcquiredAt    time.Time       `bun:"acquired_at,notnull"`
}
