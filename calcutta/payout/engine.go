package payout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madpools/calcutta/calcutta/auction"
	"github.com/madpools/calcutta/calcutta/database/models"
)

// Engine turns tournament game results into member payouts. Each (pool, game)
// pair is processed in one transaction guarded by the payout log, so a result
// redelivered by the feed is a clean no-op.
type Engine struct {
	store     Store
	publisher auction.Publisher
	now       func() time.Time
}

func NewEngine(store Store, publisher auction.Publisher) *Engine {
	if publisher == nil {
		publisher = auction.LogPublisher{}
	}
	return &Engine{store: store, publisher: publisher, now: time.Now}
}

// ProcessGameResult evaluates one game result against every pool tracking its
// tournament. Pools are isolated: a failure in one is logged and does not
// block the others.
func (e *Engine) ProcessGameResult(ctx context.Context, result models.GameResult) error {
	pools, err := e.store.PoolsForTournament(ctx, result.TournamentID)
	if err != nil {
		return err
	}

	var failed int
	for _, pool := range pools {
		if err := e.processPool(ctx, pool, result); err != nil {
			failed++
			slog.Error("Payout processing failed for pool",
				slog.String("type", "payout"),
				slog.Int64("pool_id", pool.ID),
				slog.String("game_id", result.GameID),
				slog.Any("error", err),
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("payout processing failed for %d of %d pools", failed, len(pools))
	}
	return nil
}

func (e *Engine) processPool(ctx context.Context, pool *models.Pool, result models.GameResult) error {
	var (
		credited int64
		payouts  int
		byUser   = make(map[string]int64)
	)

	err := e.store.InTx(ctx, func(ctx context.Context, s Store) error {
		done, err := s.GameProcessed(ctx, pool.ID, result.GameID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		rules, err := s.Rules(ctx, pool.ID)
		if err != nil {
			return err
		}

		trigger := triggerForRound(result.Round)
		for _, rule := range rules {
			if rule.Trigger != trigger {
				continue
			}

			teamID := result.WinnerTeamID
			if rule.TriggerValue == TriggerValueRunnerUp {
				if result.LoserTeamID == "" {
					slog.Warn("Runner-up rule skipped, result carries no loser",
						slog.String("type", "payout"),
						slog.Int64("pool_id", pool.ID),
						slog.String("game_id", result.GameID),
					)
					continue
				}
				teamID = result.LoserTeamID
			}

			n, amount, err := e.applyRule(ctx, s, pool, rule, teamID, result.GameID, byUser)
			if err != nil {
				return err
			}
			payouts += n
			credited += amount
		}

		return s.MarkGameProcessed(ctx, &models.PayoutLog{
			PoolID:      pool.ID,
			GameID:      result.GameID,
			ProcessedAt: e.now(),
		})
	})
	if err != nil {
		return err
	}

	if payouts > 0 {
		e.publisher.Publish(ctx, auction.NewEvent(auction.EventPayoutProcessed, pool.ID, map[string]interface{}{
			"gameId":  result.GameID,
			"round":   result.Round,
			"payouts": payouts,
			"amount":  credited,
		}))
		for userID, amount := range byUser {
			e.publisher.Publish(ctx, auction.NewEvent(auction.EventBalanceUpdate, pool.ID, map[string]interface{}{
				"userId":   userID,
				"credited": amount,
			}))
		}
	}
	return nil
}

// applyRule pays one rule for one team event. The rule amount is a fixed
// percentage of the pot, split across the item's owners in proportion to
// their ownership percentages.
func (e *Engine) applyRule(ctx context.Context, s Store, pool *models.Pool, rule *models.PayoutRule, teamID, gameID string, byUser map[string]int64) (int, int64, error) {
	item, err := s.SoldItemByTeam(ctx, pool.ID, teamID)
	if err != nil {
		if models.IsNotFound(err) {
			slog.Info("No sold item for team, rule pays nobody",
				slog.String("type", "payout"),
				slog.Int64("pool_id", pool.ID),
				slog.String("team_id", teamID),
				slog.String("trigger", string(rule.Trigger)),
			)
			return 0, 0, nil
		}
		return 0, 0, err
	}

	ownerships, err := s.OwnershipsForItem(ctx, item.ID)
	if err != nil {
		return 0, 0, err
	}
	if len(ownerships) == 0 {
		return 0, 0, nil
	}

	amount := decimal.NewFromInt(pool.TotalPot).Mul(rule.Percentage).Div(hundred).IntPart()
	shares := splitShares(amount, ownerships)

	reason := fmt.Sprintf("%s: %s (%s%% of pot)", rule.Trigger, item.TeamName, rule.Percentage)

	count := 0
	credited := int64(0)
	for i, own := range ownerships {
		if shares[i] == 0 {
			continue
		}

		payout := &models.Payout{
			PoolID:    pool.ID,
			UserID:    own.UserID,
			RuleID:    rule.ID,
			ItemID:    item.ID,
			Amount:    shares[i],
			Reason:    reason,
			TriggerID: gameID,
			Status:    models.PayoutProcessed,
		}

		member, err := s.Member(ctx, pool.ID, own.UserID)
		if err != nil {
			if !models.IsNotFound(err) {
				return count, credited, err
			}
			// Owner left the pool; keep the payout on the books for the
			// retry scheduler instead of dropping the money.
			payout.Status = models.PayoutFailed
			if err := s.InsertPayout(ctx, payout); err != nil {
				return count, credited, err
			}
			continue
		}

		member.Balance += shares[i]
		if err := s.UpdateMember(ctx, member); err != nil {
			return count, credited, err
		}
		if err := s.InsertPayout(ctx, payout); err != nil {
			return count, credited, err
		}
		count++
		credited += shares[i]
		byUser[own.UserID] += shares[i]
	}
	return count, credited, nil
}
