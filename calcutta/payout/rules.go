package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/madpools/calcutta/calcutta/database/models"
)

// TriggerValueRunnerUp marks a championship rule that pays the losing
// finalist instead of the winner.
const TriggerValueRunnerUp = "runner_up"

var hundred = decimal.NewFromInt(100)

// ValidateRules checks that a pool's rule set pays out exactly the whole pot
// over a full tournament: each rule's percentage weighted by how many times
// its trigger can fire must sum to 100.
func ValidateRules(rules []*models.PayoutRule) error {
	if len(rules) == 0 {
		return fmt.Errorf("at least one payout rule is required")
	}

	total := decimal.Zero
	for _, rule := range rules {
		if !rule.Percentage.IsPositive() {
			return fmt.Errorf("rule %d (%s) has non-positive percentage %s", rule.RuleOrder, rule.Trigger, rule.Percentage)
		}
		fires := decimal.NewFromInt(int64(rule.Trigger.ExpectedFires()))
		total = total.Add(rule.Percentage.Mul(fires))
	}

	if !total.Equal(hundred) {
		return fmt.Errorf("rules pay out %s%% of the pot over a full tournament, expected exactly 100%%", total)
	}
	return nil
}

// triggerForRound maps a game-result round label onto the trigger it fires.
// Unrecognized rounds fall through to the generic round_win trigger.
func triggerForRound(round string) models.PayoutTrigger {
	switch round {
	case "championship", "national_championship":
		return models.TriggerChampionshipWin
	case "final_four":
		return models.TriggerFinalFour
	case "elite_eight":
		return models.TriggerEliteEight
	case "sweet_sixteen":
		return models.TriggerSweetSixteen
	default:
		return models.TriggerRoundWin
	}
}

// splitShares divides an amount across ownership rows in proportion to their
// percentages. Shares are floored to whole cents and the remainder goes to
// the largest owner, so the shares always sum to exactly amount.
func splitShares(amount int64, ownerships []*models.Ownership) []int64 {
	shares := make([]int64, len(ownerships))
	if amount <= 0 || len(ownerships) == 0 {
		return shares
	}

	total := decimal.NewFromInt(amount)
	allocated := int64(0)
	largest := 0
	for i, own := range ownerships {
		shares[i] = total.Mul(own.Percentage).Div(hundred).IntPart()
		allocated += shares[i]
		if own.Percentage.GreaterThan(ownerships[largest].Percentage) {
			largest = i
		}
	}
	shares[largest] += amount - allocated
	return shares
}
