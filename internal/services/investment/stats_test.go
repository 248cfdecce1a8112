package investment

import (
	"math/big"
	"testing"
	"time"

	"veyra/internal/models"
	"veyra/internal/money"

	"github.com/stretchr/testify/assert"
)

func priceWei(s string) *big.Int {
	p, err := money.ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

func addEvent(at time.Time, amountUSD, qtyWei, priceUSD string) models.Investment {
	return models.Investment{
		Type:          models.InvestmentAdd,
		AmountWeiUSD:  money.Format(money.MustParse(amountUSD)),
		IndexSymbol:   "BTC",
		IndexQtyWei:   qtyWei,
		IndexPriceWei: money.Format(priceWei(priceUSD)),
		CreatedAt:     at,
	}
}

func removeEvent(at time.Time, amountUSD, qtyWei, priceUSD string) models.Investment {
	inv := addEvent(at, amountUSD, qtyWei, priceUSD)
	inv.Type = models.InvestmentRemove
	return inv
}

func TestComputeStatsFIFO(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	// ADD $100 at $5.50: 55% buys 10 units, cost basis $55.
	// REMOVE 4 units: FIFO sheds 40% of the lot, basis drops to $33.
	history := []models.Investment{
		addEvent(now.AddDate(0, 0, -10), "100000000000000000000", money.Format(money.FromUnits(10)), "5.5"),
		removeEvent(now.AddDate(0, 0, -5), "22000000000000000000", money.Format(money.FromUnits(4)), "5.5"),
	}

	// Current price $10: 6 units are worth $60 against a $33 basis.
	stats := computeStatsAt(history, priceWei("10"), now)

	assert.Equal(t, money.Format(money.FromUnits(6)), stats.HoldingsQtyWei)
	assert.Equal(t, money.Format(money.FromUnits(33)), stats.CostBasisWei)
	assert.Equal(t, money.Format(money.FromUnits(60)), stats.HoldingsValueWei)
	assert.Equal(t, money.Format(money.FromUnits(27)), stats.TotalGrowthWei)
	assert.Equal(t, money.Format(money.FromUnits(100)), stats.TotalInvestedWei)
	assert.Equal(t, money.Format(money.FromUnits(55)), stats.IndexInvestedWei)

	// 27/33 = 81.81%.
	assert.Equal(t, "+81.81%", stats.TotalGrowthPercent.Formatted)
	assert.True(t, stats.TotalGrowthPercent.IsProfit)
}

func TestComputeStatsWindows(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	history := []models.Investment{
		addEvent(now.AddDate(0, 0, -10), "100000000000000000000", money.Format(money.FromUnits(10)), "5.5"),
		removeEvent(now.AddDate(0, 0, -5), "22000000000000000000", money.Format(money.FromUnits(4)), "5.5"),
	}
	stats := computeStatsAt(history, priceWei("10"), now)

	// Seven days ago the portfolio was the untouched first lot: 10 units
	// at the $5.50 strike, worth $55. Growth since: $60 - $55 = $5.
	assert.Equal(t, money.Format(money.FromUnits(5)), stats.SevenDayGrowthWei)

	// Yesterday's snapshot is the post-redemption state worth $33, so
	// today's growth is the full $27.
	assert.Equal(t, money.Format(money.FromUnits(27)), stats.TodayGrowthWei)

	// The 30-day window predates the history and collapses to total.
	assert.Equal(t, stats.TotalGrowthWei, stats.ThirtyDayGrowthWei)
}

func TestComputeStatsFullExit(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	history := []models.Investment{
		addEvent(now.AddDate(0, 0, -3), "100000000000000000000", money.Format(money.FromUnits(10)), "5.5"),
		removeEvent(now.AddDate(0, 0, -1), "55000000000000000000", money.Format(money.FromUnits(10)), "5.5"),
	}
	stats := computeStatsAt(history, priceWei("10"), now)

	assert.Equal(t, "0", stats.HoldingsQtyWei)
	assert.Equal(t, "0", stats.CostBasisWei)
	assert.Equal(t, "0", stats.HoldingsValueWei)
	assert.Equal(t, "+0.00%", stats.TotalGrowthPercent.Formatted)
}

func TestPercentOfZeroBasis(t *testing.T) {
	p := percentOf(money.FromUnits(10), money.FromUnits(0))
	assert.Equal(t, "+0.00%", p.Formatted)
	assert.False(t, p.IsProfit)
}

