package investment

import (
	"fmt"
	"math/big"
	"time"

	"veyra/internal/models"
	"veyra/internal/money"
)

// Percentage is a display-only growth ratio with two decimal places.
type Percentage struct {
	Formatted string `json:"formatted"`
	IsProfit  bool   `json:"isProfit"`
}

// Stats is the portfolio view derived by replaying a user's investment
// history with FIFO lot accounting. All amounts are wei strings.
type Stats struct {
	TodayGrowthWei     string `json:"todayGrowthWei"`
	YesterdayGrowthWei string `json:"yesterdayGrowthWei"`
	SevenDayGrowthWei  string `json:"sevenDayGrowthWei"`
	ThirtyDayGrowthWei string `json:"thirtyDayGrowthWei"`
	TotalGrowthWei     string `json:"totalGrowthWei"`

	TotalInvestedWei string `json:"totalInvestedWei"`
	IndexInvestedWei string `json:"indexInvestedWei"`
	CostBasisWei     string `json:"costBasisWei"`
	HoldingsQtyWei   string `json:"holdingsQtyWei"`
	HoldingsValueWei string `json:"holdingsValueWei"`

	TodayGrowthPercent     Percentage `json:"todayGrowthPercent"`
	SevenDayGrowthPercent  Percentage `json:"sevenDayGrowthPercent"`
	ThirtyDayGrowthPercent Percentage `json:"thirtyDayGrowthPercent"`
	TotalGrowthPercent     Percentage `json:"totalGrowthPercent"`
	OverallROI             Percentage `json:"overallRoi"`
	HoldingsROI            Percentage `json:"holdingsRoi"`

	DailyAverageGrowthWei     string `json:"dailyAverageGrowthWei"`
	EstimatedMonthlyReturnWei string `json:"estimatedMonthlyReturnWei"`
}

// lot is one FIFO purchase: remaining quantity and its remaining cost.
type lot struct {
	qty  *big.Int
	cost *big.Int
}

// snapshot is the portfolio state right after one event, priced at the
// last market price seen by then.
type snapshot struct {
	at    time.Time
	qty   *big.Int
	price *big.Int
}

func computeStats(investments []models.Investment, currentPrice *big.Int) *Stats {
	return computeStatsAt(investments, currentPrice, time.Now())
}

func computeStatsAt(investments []models.Investment, currentPrice *big.Int, now time.Time) *Stats {
	var (
		lots      []*lot
		holdings  = new(big.Int)
		costBasis = new(big.Int)
		invested  = new(big.Int)
		indexCost = new(big.Int)
		lastPrice = new(big.Int).Set(currentPrice)
		snapshots []snapshot
	)

	for i := range investments {
		inv := &investments[i]
		qty := parseOrZero(inv.IndexQtyWei)
		amount := parseOrZero(inv.AmountWeiUSD)

		if inv.Type == models.InvestmentAdd {
			lastPrice = parseOrZero(inv.IndexPriceWei)
			cost := money.ApplyBps(amount, indexAllocationBps)

			lots = append(lots, &lot{qty: new(big.Int).Set(qty), cost: cost})
			holdings.Add(holdings, qty)
			costBasis.Add(costBasis, cost)
			invested.Add(invested, amount)
			indexCost.Add(indexCost, money.ApplyBps(amount, indexAllocationBps))
		} else {
			toRemove := new(big.Int).Set(qty)
			for toRemove.Sign() > 0 && len(lots) > 0 {
				oldest := lots[0]
				if oldest.qty.Cmp(toRemove) >= 0 {
					// Consume part of the oldest lot with proportional cost.
					costOut := new(big.Int).Mul(oldest.cost, toRemove)
					costOut.Quo(costOut, oldest.qty)
					oldest.qty.Sub(oldest.qty, toRemove)
					oldest.cost.Sub(oldest.cost, costOut)
					costBasis.Sub(costBasis, costOut)
					toRemove.SetInt64(0)
					if oldest.qty.Sign() == 0 {
						lots = lots[1:]
					}
				} else {
					toRemove.Sub(toRemove, oldest.qty)
					costBasis.Sub(costBasis, oldest.cost)
					lots = lots[1:]
				}
			}
			holdings.Sub(holdings, qty)
			if holdings.Sign() < 0 {
				holdings.SetInt64(0)
			}
		}

		snapshots = append(snapshots, snapshot{
			at:    inv.CreatedAt,
			qty:   new(big.Int).Set(holdings),
			price: new(big.Int).Set(lastPrice),
		})
	}

	holdingsValue := money.QuoteValue(holdings, currentPrice)
	totalGrowth := new(big.Int).Sub(holdingsValue, costBasis)

	today := truncateDay(now)
	yesterday := today.AddDate(0, 0, -1)
	dayBefore := today.AddDate(0, 0, -2)
	sevenAgo := today.AddDate(0, 0, -7)
	thirtyAgo := today.AddDate(0, 0, -30)

	hasData := func(target time.Time) bool {
		return len(snapshots) > 0 && !truncateDay(snapshots[0].at).After(target)
	}
	valueAt := func(target time.Time) *big.Int {
		value := new(big.Int)
		for _, s := range snapshots {
			if truncateDay(s.at).After(target) {
				break
			}
			value = money.QuoteValue(s.qty, s.price)
		}
		return value
	}

	todayGrowth := new(big.Int)
	if hasData(yesterday) {
		todayGrowth.Sub(holdingsValue, valueAt(yesterday))
	}
	yesterdayGrowth := new(big.Int)
	if hasData(dayBefore) {
		yesterdayGrowth.Sub(valueAt(yesterday), valueAt(dayBefore))
	}

	// Windows that predate the history collapse to total growth.
	sevenDayGrowth := new(big.Int).Set(totalGrowth)
	if hasData(sevenAgo) {
		sevenDayGrowth.Sub(holdingsValue, valueAt(sevenAgo))
	}
	thirtyDayGrowth := new(big.Int).Set(totalGrowth)
	if hasData(thirtyAgo) {
		thirtyDayGrowth.Sub(holdingsValue, valueAt(thirtyAgo))
	}

	daysHeld := int64(1)
	if len(snapshots) > 0 {
		if d := int64(now.Sub(snapshots[0].at).Hours() / 24); d > 1 {
			daysHeld = d
		}
	}
	dailyAverage := new(big.Int).Quo(totalGrowth, big.NewInt(daysHeld))
	monthlyEstimate := new(big.Int).Mul(dailyAverage, big.NewInt(30))

	overallGrowth := new(big.Int).Sub(holdingsValue, invested)

	return &Stats{
		TodayGrowthWei:     money.Format(todayGrowth),
		YesterdayGrowthWei: money.Format(yesterdayGrowth),
		SevenDayGrowthWei:  money.Format(sevenDayGrowth),
		ThirtyDayGrowthWei: money.Format(thirtyDayGrowth),
		TotalGrowthWei:     money.Format(totalGrowth),

		TotalInvestedWei: money.Format(invested),
		IndexInvestedWei: money.Format(indexCost),
		CostBasisWei:     money.Format(costBasis),
		HoldingsQtyWei:   money.Format(holdings),
		HoldingsValueWei: money.Format(holdingsValue),

		TodayGrowthPercent:     percentOf(todayGrowth, costBasis),
		SevenDayGrowthPercent:  percentOf(sevenDayGrowth, costBasis),
		ThirtyDayGrowthPercent: percentOf(thirtyDayGrowth, costBasis),
		TotalGrowthPercent:     percentOf(totalGrowth, costBasis),
		OverallROI:             percentOf(overallGrowth, invested),
		HoldingsROI:            percentOf(totalGrowth, costBasis),

		DailyAverageGrowthWei:     money.Format(dailyAverage),
		EstimatedMonthlyReturnWei: money.Format(monthlyEstimate),
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// percentOf renders growth/basis with two decimals. A non-positive
// basis yields a flat zero rather than a division blow-up.
func percentOf(growth, basis *big.Int) Percentage {
	if basis == nil || basis.Sign() <= 0 {
		return Percentage{Formatted: "+0.00%", IsProfit: false}
	}
	hundredths := new(big.Int).Mul(growth, big.NewInt(10000))
	hundredths.Quo(hundredths, basis)

	sign := "+"
	if hundredths.Sign() < 0 {
		sign = "-"
	}
	abs := new(big.Int).Abs(hundredths)
	whole := new(big.Int).Quo(abs, big.NewInt(100))
	frac := new(big.Int).Rem(abs, big.NewInt(100))

	return Percentage{
		Formatted: fmt.Sprintf("%s%s.%02d%%", sign, whole.String(), frac.Int64()),
		IsProfit:  hundredths.Sign() > 0,
	}
}

func parseOrZero(s string) *big.Int {
	v, err := money.Parse(s)
	if err != nil {
		return new(big.Int)
	}
	return v
}
