package engine

import (
	"math"

	"tradelab/internal/domain"
)

// tradingDaysPerYear annualises daily Sharpe ratios.
const tradingDaysPerYear = 252

// Metrics summarises a finished run.
type Metrics struct {
	TotalReturn  float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalTrades  int
	WinRate      float64
	ProfitFactor float64
}

// Summarize computes run metrics from the starting cash, the final marked
// equity and the journal. Ratios that are undefined (no sells, no losses,
// flat equity) are reported as zero.
func Summarize(startingCash, finalEquity float64, j *Journal) Metrics {
	var m Metrics
	if startingCash > 0 {
		m.TotalReturn = finalEquity/startingCash - 1
	}
	if j == nil {
		return m
	}

	curve := make([]float64, 0, len(j.Equity)+1)
	curve = append(curve, startingCash)
	for _, p := range j.Equity {
		curve = append(curve, p.Equity)
	}
	m.MaxDrawdown = maxDrawdown(curve)
	m.SharpeRatio = sharpe(curve)

	var wins, sells int
	var grossProfit, grossLoss float64
	for _, f := range j.Fills() {
		m.TotalTrades++
		if f.Order.Side != domain.OrderSideSell {
			continue
		}
		sells++
		switch {
		case f.RealizedPnL > 0:
			wins++
			grossProfit += f.RealizedPnL
		case f.RealizedPnL < 0:
			grossLoss -= f.RealizedPnL
		}
	}
	if sells > 0 {
		m.WinRate = float64(wins) / float64(sells)
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	}
	return m
}

// maxDrawdown returns the largest peak-to-trough decline as a fraction of
// the peak.
func maxDrawdown(curve []float64) float64 {
	var peak, worst float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe returns the annualised Sharpe ratio of per-point returns with a
// zero risk-free rate.
func sharpe(curve []float64) float64 {
	var returns []float64
	for i := 1; i < len(curve); i++ {
		if curve[i-1] == 0 {
			continue
		}
		returns = append(returns, curve[i]/curve[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}
