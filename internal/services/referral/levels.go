package referral

import (
	"math/big"

	"veyra/internal/models"
	"veyra/internal/money"
)

// LevelConfig is the payout rate and unlock requirement for one level.
// Rates are basis points of the invested amount; requirements are whole
// USD of lifetime investment.
type LevelConfig struct {
	Bps            int64
	RequirementUSD int64
}

// Levels 1-4 are always active. Levels 5-15 unlock contiguously with
// lifetime investment; a gap stops the scan even if a deeper requirement
// is met.
var levelConfig = [models.MaxReferralLevels]LevelConfig{
	{Bps: 2500, RequirementUSD: 0},
	{Bps: 300, RequirementUSD: 0},
	{Bps: 200, RequirementUSD: 0},
	{Bps: 200, RequirementUSD: 0},
	{Bps: 200, RequirementUSD: 50},
	{Bps: 100, RequirementUSD: 100},
	{Bps: 50, RequirementUSD: 150},
	{Bps: 50, RequirementUSD: 200},
	{Bps: 40, RequirementUSD: 400},
	{Bps: 30, RequirementUSD: 600},
	{Bps: 30, RequirementUSD: 800},
	{Bps: 20, RequirementUSD: 1500},
	{Bps: 20, RequirementUSD: 3000},
	{Bps: 20, RequirementUSD: 5000},
	{Bps: 20, RequirementUSD: 8000},
}

// ConfigFor returns the configuration for a 1-based level.
func ConfigFor(level int) LevelConfig {
	return levelConfig[level-1]
}

// ActiveTillLevel maps lifetime investment (wei USD) to the deepest
// earning level.
func ActiveTillLevel(totalInvestmentWei *big.Int) int {
	active := models.DefaultActiveLevel
	for level := models.DefaultActiveLevel + 1; level <= models.MaxReferralLevels; level++ {
		requirement := money.FromUnits(levelConfig[level-1].RequirementUSD)
		if totalInvestmentWei.Cmp(requirement) < 0 {
			break
		}
		active = level
	}
	return active
}
