package backtest

import (
	"math"

	"probable-pancake/internal/domain"
)

const (
	statsEps = 1e-9
	// Lossless runs would otherwise divide by zero; the factor is capped so
	// the stats block stays JSON-encodable.
	maxProfitFactor = 1000.0
	annualization   = 252
)

func computeStats(trades []domain.TradeRecord, curve []domain.EquityPoint, initial, final float64) domain.BacktestStats {
	st := domain.BacktestStats{FinalEquity: final}
	st.TotalPnL = final - initial
	if initial > 0 {
		st.TotalReturn = st.TotalPnL / initial
	}

	var grossWin, grossLoss float64
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.Won() {
			st.WinCount++
			grossWin += t.PnL
		} else {
			st.LossCount++
			grossLoss += -t.PnL
		}
		if initial > 0 {
			returns = append(returns, t.PnL/initial)
		}
	}
	st.TradeCount = len(trades)
	if st.TradeCount > 0 {
		st.WinRate = float64(st.WinCount) / float64(st.TradeCount)
	}
	if grossWin > 0 {
		pf := grossWin / math.Max(grossLoss, statsEps)
		if pf > maxProfitFactor {
			pf = maxProfitFactor
		}
		st.ProfitFactor = pf
	}
	st.MaxDrawdown = maxDrawdown(curve)
	st.SharpeRatio = sharpeRatio(returns)
	return st
}

// maxDrawdown is the deepest peak-to-trough fraction on the equity curve.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio annualizes mean over sample standard deviation of per-trade
// returns. Fewer than two trades yield zero.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var mean float64
	for _, x := range returns {
		mean += x
	}
	mean /= float64(len(returns))
	var ss float64
	for _, x := range returns {
		d := x - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(returns)-1))
	return mean / (std + statsEps) * math.Sqrt(annualization)
}
