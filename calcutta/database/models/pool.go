package models

import (
	"time"

	"github.com/uptrace/bun"
)

type AuctionMode string

const (
	ModeTraditional AuctionMode = "traditional"
	ModeWheelSpin   AuctionMode = "wheel_spin"
)

// Pool is the engine's read model of a pool. Pool CRUD and membership
// management live outside the engine; the coordinator only reads this row and
// bumps total_pot at settlement.
type Pool struct {
	bun.BaseModel `bun:"table:pools,alias:p"`

	ID             int64       `bun:"id,pk,autoincrement"`
	Name           string      `bun:"name,notnull"`
	TournamentID   string      `bun:"tournament_id,notnull"`
	CommissionerID string      `bun:"commissioner_id,notnull"`
	Mode           AuctionMode `bun:"mode,notnull"`

	// WheelPrice is the fixed purchase price (in cents) applied to every
	// wheel-spin assignment. May be zero.
	WheelPrice int64 `bun:"wheel_price,notnull,default:0"`

	// BudgetCap enables per-member budget enforcement when > 0.
	BudgetCap int64 `bun:"budget_cap,notnull,default:0"`

	TotalPot int64 `bun:"total_pot,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func (p *Pool) BudgetEnforced() bool {
	return p.BudgetCap > 0
}

type PoolMember struct {
	bun.BaseModel `bun:"table:pool_members,alias:pm"`

	ID     int64  `bun:"id,pk,autoincrement"`
	PoolID int64  `bun:"pool_id,notnull"`
	UserID string `bun:"user_id,notnull"`

	// RemainingBudget is meaningful only when the pool enforces a budget cap.
	RemainingBudget int64 `bun:"remaining_budget,notnull,default:0"`
	TotalSpent      int64 `bun:"total_spent,notnull,default:0"`

	// Balance accumulates processed payouts, in cents.
	Balance int64 `bun:"balance,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
