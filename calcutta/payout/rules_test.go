package payout

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/madpools/calcutta/calcutta/database/models"
)

func rule(trigger models.PayoutTrigger, pct string, order int) *models.PayoutRule {
	return &models.PayoutRule{
		Trigger:    trigger,
		Percentage: decimal.RequireFromString(pct),
		RuleOrder:  order,
	}
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []*models.PayoutRule
		wantErr bool
	}{
		{
			name: "champion plus final four covers the pot",
			rules: []*models.PayoutRule{
				rule(models.TriggerChampionshipWin, "50", 1),
				rule(models.TriggerFinalFour, "12.5", 2), // fires 4 times
			},
		},
		{
			name: "winner take all",
			rules: []*models.PayoutRule{
				rule(models.TriggerChampionshipWin, "100", 1),
			},
		},
		{
			name: "sweet sixteen ladder",
			rules: []*models.PayoutRule{
				rule(models.TriggerChampionshipWin, "30", 1),
				rule(models.TriggerFinalFour, "5", 2),     // 20
				rule(models.TriggerSweetSixteen, "2.5", 3), // 40
				rule(models.TriggerEliteEight, "1.25", 4),  // 10
			},
		},
		{
			name: "under-allocated",
			rules: []*models.PayoutRule{
				rule(models.TriggerChampionshipWin, "60", 1),
			},
			wantErr: true,
		},
		{
			name: "over-allocated by trigger fires",
			rules: []*models.PayoutRule{
				rule(models.TriggerChampionshipWin, "50", 1),
				rule(models.TriggerFinalFour, "20", 2), // 80, total 130
			},
			wantErr: true,
		},
		{
			name: "zero percentage",
			rules: []*models.PayoutRule{
				rule(models.TriggerChampionshipWin, "100", 1),
				rule(models.TriggerRoundWin, "0", 2),
			},
			wantErr: true,
		},
		{
			name:    "empty rule set",
			rules:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(tt.rules)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRules() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTriggerForRound(t *testing.T) {
	tests := []struct {
		round string
		want  models.PayoutTrigger
	}{
		{"championship", models.TriggerChampionshipWin},
		{"national_championship", models.TriggerChampionshipWin},
		{"final_four", models.TriggerFinalFour},
		{"elite_eight", models.TriggerEliteEight},
		{"sweet_sixteen", models.TriggerSweetSixteen},
		{"round_of_64", models.TriggerRoundWin},
		{"", models.TriggerRoundWin},
	}
	for _, tt := range tests {
		if got := triggerForRound(tt.round); got != tt.want {
			t.Errorf("triggerForRound(%q) = %s, want %s", tt.round, got, tt.want)
		}
	}
}

func TestSplitShares(t *testing.T) {
	owners := func(pcts ...string) []*models.Ownership {
		out := make([]*models.Ownership, len(pcts))
		for i, p := range pcts {
			out[i] = &models.Ownership{UserID: string(rune('a' + i)), Percentage: decimal.RequireFromString(p)}
		}
		return out
	}

	t.Run("sole owner takes everything", func(t *testing.T) {
		shares := splitShares(12_500, owners("100"))
		if shares[0] != 12_500 {
			t.Fatalf("shares = %v", shares)
		}
	})

	t.Run("remainder lands on the largest owner", func(t *testing.T) {
		shares := splitShares(12_501, owners("60", "40"))
		if shares[0] != 7_501 || shares[1] != 5_000 {
			t.Fatalf("shares = %v, want [7501 5000]", shares)
		}
	})

	t.Run("thirds always sum exactly", func(t *testing.T) {
		shares := splitShares(100, owners("33.34", "33.33", "33.33"))
		total := int64(0)
		for _, s := range shares {
			total += s
		}
		if total != 100 {
			t.Fatalf("shares %v sum to %d, want 100", shares, total)
		}
		if shares[0] < shares[1] {
			t.Fatalf("largest owner did not get the remainder: %v", shares)
		}
	})

	t.Run("zero amount yields zero shares", func(t *testing.T) {
		shares := splitShares(0, owners("60", "40"))
		if shares[0] != 0 || shares[1] != 0 {
			t.Fatalf("shares = %v", shares)
		}
	})
}
