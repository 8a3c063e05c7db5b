package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PayoutTrigger string

const (
	TriggerChampionshipWin PayoutTrigger = "championship_win"
	TriggerFinalFour       PayoutTrigger = "final_four"
	TriggerEliteEight      PayoutTrigger = "elite_eight"
	TriggerSweetSixteen    PayoutTrigger = "sweet_sixteen"
	TriggerRoundWin        PayoutTrigger = "round_win"
)

// ExpectedFires is how many times a trigger can pay over one tournament.
// Rule percentages are validated so that Σ percentage × fires == 100.
func (t PayoutTrigger) ExpectedFires() int {
	switch t {
	case TriggerFinalFour:
		return 4
	case TriggerEliteEight:
		return 8
	case TriggerSweetSixteen:
		return 16
	default:
		return 1
	}
}

// PayoutRule awards a percentage of the pool's total pot when a tournament
// milestone occurs. TriggerValue disambiguates within a milestone (for the
// championship game, "runner_up" pays the losing team instead of the winner).
type PayoutRule struct {
	bun.BaseModel `bun:"table:payout_rules,alias:pr"`

	ID           int64           `bun:"id,pk,autoincrement"`
	PoolID       int64           `bun:"pool_id,notnull"`
	Trigger      PayoutTrigger   `bun:"trigger,notnull"`
	TriggerValue string          `bun:"trigger_value"`
	Percentage   decimal.Decimal `bun:"percentage,notnull,type:numeric(5,2)"`
	RuleOrder    int             `bun:"rule_order,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutProcessed PayoutStatus = "processed"
	PayoutFailed    PayoutStatus = "failed"
)

// Payout is one credit for one (rule, item, owner) combination. The unique
// index on (pool_id, trigger_id, user_id, item_id) makes duplicates
// structurally impossible.
type Payout struct {
	bun.BaseModel `bun:"table:payouts,alias:po"`

	ID        int64        `bun:"id,pk,autoincrement"`
	PoolID    int64        `bun:"pool_id,notnull"`
	UserID    string       `bun:"user_id,notnull"`
	RuleID    int64        `bun:"rule_id,notnull"`
	ItemID    int64        `bun:"item_id,notnull"`
	Amount    int64        `bun:"amount,notnull"`
	Reason    string       `bun:"reason,notnull"`
	TriggerID string       `bun:"trigger_id,notnull"`
	Status    PayoutStatus `bun:"status,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// PayoutLog marks a game-result event as processed for one pool. It is the
// idempotency guard for redelivered results and is written in the same
// transaction as the payouts it covers.
type PayoutLog struct {
	bun.BaseModel `bun:"table:payout_logs,alias:pl"`

	ID          int64     `bun:"id,pk,autoincrement"`
	PoolID      int64     `bun:"pool_id,notnull"`
	GameID      string    `bun:"game_id,notnull"`
	ProcessedAt time.Time `bun:"processed_at,notnull"`
}

// GameResult is the inbound tournament feed event. Results may arrive out of
// order or more than once. LoserTeamID is populated for championship games so
// runner-up rules can resolve the losing team.
type GameResult struct {
	GameID       string    `json:"gameId"`
	TournamentID string    `json:"tournamentId"`
	WinnerTeamID string    `json:"winnerId"`
	LoserTeamID  string    `json:"loserId,omitempty"`
	Round        string    `json:"round"`
	CompletedAt  time.Time `json:"completedAt"`
}
