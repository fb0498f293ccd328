package ta

import "math"

func MeanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	if period <= 1 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func RSISeries(closes []float64, period int) []float64 {
	if len(closes) <= period {
		return nil
	}
	series := make([]float64, len(closes))
	for i := range series {
		series[i] = math.NaN()
	}

	var gainSum float64
	var lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	series[period] = rsiFromAvg(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		series[i] = rsiFromAvg(avgGain, avgLoss)
	}
	return series
}

func rsiFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func MACDSeries(values []float64, fast, slow, signal int) ([]float64, []float64) {
	if len(values) == 0 {
		return nil, nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	macdLine := make([]float64, len(values))
	for i := range values {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine := EMASeries(macdLine, signal)
	return macdLine, signalLine
}

func BollingerSeries(values []float64, period int, stdDevs float64) ([]float64, []float64, []float64) {
	if len(values) == 0 {
		return nil, nil, nil
	}
	middle := make([]float64, len(values))
	upper := make([]float64, len(values))
	lower := make([]float64, len(values))
	for i := range values {
		middle[i] = math.NaN()
		upper[i] = math.NaN()
		lower[i] = math.NaN()
	}
	if period <= 0 {
		return middle, upper, lower
	}
	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean, std := MeanStd(window)
		middle[i] = mean
		upper[i] = mean + stdDevs*std
		lower[i] = mean - stdDevs*std
	}
	return middle, upper, lower
}

const eps = 1e-10

// SMASeries leaves NaN wherever the window still overlaps warmup padding,
// so means of NaN-headed inputs (like ATR) stay honest.
func SMASeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func TrueRangeSeries(highs, lows, closes []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := highs[i] - lows[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATRSeries is the simple rolling mean of true range, not Wilder smoothing.
// Stop and target distances depend on this exact definition.
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	return SMASeries(TrueRangeSeries(highs, lows, closes), period)
}

// RollingRSISeries averages gains and losses with plain rolling means.
// RSISeries keeps Wilder smoothing for feature extraction.
func RollingRSISeries(closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 0 || n <= period {
		return out
	}
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	var gainSum, lossSum float64
	for i := 1; i < n; i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			avgGain := gainSum / float64(period)
			avgLoss := lossSum / float64(period)
			rs := avgGain / (avgLoss + eps)
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

func DirectionalSeries(highs, lows, closes []float64, period int) ([]float64, []float64, []float64) {
	n := len(closes)
	plusDI := nanSlice(n)
	minusDI := nanSlice(n)
	adx := nanSlice(n)
	if period <= 0 || n <= period {
		return plusDI, minusDI, adx
	}

	tr := TrueRangeSeries(highs, lows, closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var trSum, plusSum, minusSum float64
	dx := nanSlice(n)
	for i := 0; i < n; i++ {
		trSum += tr[i]
		plusSum += plusDM[i]
		minusSum += minusDM[i]
		if i >= period {
			trSum -= tr[i-period]
			plusSum -= plusDM[i-period]
			minusSum -= minusDM[i-period]
		}
		if i >= period-1 {
			pdi := 100 * plusSum / (trSum + eps)
			mdi := 100 * minusSum / (trSum + eps)
			plusDI[i] = pdi
			minusDI[i] = mdi
			dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi + eps)
		}
	}

	var dxSum float64
	count := 0
	for i := period - 1; i < n; i++ {
		dxSum += dx[i]
		count++
		if count > period {
			dxSum -= dx[i-period]
			count = period
		}
		if count == period {
			adx[i] = dxSum / float64(period)
		}
	}
	return plusDI, minusDI, adx
}

func ChoppinessSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := nanSlice(n)
	if period <= 1 || n < period {
		return out
	}
	tr := TrueRangeSeries(highs, lows, closes)
	logPeriod := math.Log10(float64(period))
	for i := period - 1; i < n; i++ {
		var trSum float64
		maxHigh := highs[i-period+1]
		minLow := lows[i-period+1]
		for j := i - period + 1; j <= i; j++ {
			trSum += tr[j]
			if highs[j] > maxHigh {
				maxHigh = highs[j]
			}
			if lows[j] < minLow {
				minLow = lows[j]
			}
		}
		out[i] = 100 * math.Log10(trSum/(maxHigh-minLow+eps)) / logPeriod
	}
	return out
}

// LastCrossIndex scans backwards from end over at most lookback bars and
// returns the index of the most recent fast/slow crossover with +1 for a
// cross up, -1 for a cross down, or (-1, 0) when none is inside the window.
func LastCrossIndex(fast, slow []float64, end, lookback int) (int, int) {
	if end >= len(fast) {
		end = len(fast) - 1
	}
	start := end - lookback
	if start < 1 {
		start = 1
	}
	for i := end; i >= start; i-- {
		prevDiff := fast[i-1] - slow[i-1]
		currDiff := fast[i] - slow[i]
		if prevDiff <= 0 && currDiff > 0 {
			return i, 1
		}
		if prevDiff >= 0 && currDiff < 0 {
			return i, -1
		}
	}
	return -1, 0
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
