package ta

import (
	"math"
	"testing"
)

func TestSMASeries(t *testing.T) {
	t.Parallel()
	out := SMASeries([]float64{1, 2, 3, 4, 5}, 3)
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected NaN padding before the first full window, got %v", out[:2])
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if !almostEqual(out[i+2], w) {
			t.Fatalf("sma[%d]: expected %v, got %v", i+2, w, out[i+2])
		}
	}

	padded := SMASeries([]float64{math.NaN(), 1, 2, 3}, 2)
	if !math.IsNaN(padded[1]) {
		t.Fatalf("window overlapping NaN padding should stay NaN, got %v", padded[1])
	}
	if !almostEqual(padded[2], 1.5) || !almostEqual(padded[3], 2.5) {
		t.Fatalf("windows past the padding should resolve, got %v", padded[2:])
	}
}

func TestTrueRangeSeries(t *testing.T) {
	t.Parallel()
	highs := []float64{10, 12, 11}
	lows := []float64{9, 10, 10.5}
	closes := []float64{9.5, 11, 10.8}

	out := TrueRangeSeries(highs, lows, closes)
	if !almostEqual(out[0], 1) {
		t.Fatalf("first bar should use high-low only, got %v", out[0])
	}
	if !almostEqual(out[1], 2.5) {
		t.Fatalf("expected gap to previous close to dominate, got %v", out[1])
	}
	if !almostEqual(out[2], 0.5) {
		t.Fatalf("expected 0.5, got %v", out[2])
	}
}

func TestATRSeriesIsRollingMeanOfTrueRange(t *testing.T) {
	t.Parallel()
	highs := []float64{10, 12, 11}
	lows := []float64{9, 10, 10.5}
	closes := []float64{9.5, 11, 10.8}

	out := ATRSeries(highs, lows, closes, 2)
	if !math.IsNaN(out[0]) {
		t.Fatalf("expected NaN before warmup, got %v", out[0])
	}
	if !almostEqual(out[1], 1.75) || !almostEqual(out[2], 1.5) {
		t.Fatalf("expected [1.75 1.5], got %v", out[1:])
	}
}

func TestRollingRSISeries(t *testing.T) {
	t.Parallel()
	up := RollingRSISeries([]float64{1, 2, 3, 4, 5}, 2)
	if !math.IsNaN(up[0]) || !math.IsNaN(up[1]) {
		t.Fatalf("expected NaN padding through the first period, got %v", up[:2])
	}
	if up[4] < 99.9 {
		t.Fatalf("all-gain series should saturate near 100, got %v", up[4])
	}

	down := RollingRSISeries([]float64{5, 4, 3, 2, 1}, 2)
	if down[4] > 0.1 {
		t.Fatalf("all-loss series should sit near 0, got %v", down[4])
	}

	mixed := RollingRSISeries([]float64{10, 11, 10, 11, 10}, 2)
	if math.Abs(mixed[3]-50) > 1e-6 {
		t.Fatalf("balanced gains and losses should read 50, got %v", mixed[3])
	}
}

func TestDirectionalSeriesTrend(t *testing.T) {
	t.Parallel()
	n := 20
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = float64(i) + 1
		lows[i] = float64(i)
		closes[i] = float64(i) + 0.5
	}

	plusDI, minusDI, adx := DirectionalSeries(highs, lows, closes, 3)
	if !math.IsNaN(adx[1]) {
		t.Fatalf("expected NaN before warmup, got %v", adx[1])
	}
	last := n - 1
	if plusDI[last] <= minusDI[last] {
		t.Fatalf("uptrend should keep +DI above -DI, got +%v -%v", plusDI[last], minusDI[last])
	}
	if adx[last] < 90 {
		t.Fatalf("one-way trend should read near-max ADX, got %v", adx[last])
	}
}

func TestChoppinessSeriesSeparatesTrendFromRange(t *testing.T) {
	t.Parallel()
	n := 20
	tHighs := make([]float64, n)
	tLows := make([]float64, n)
	tCloses := make([]float64, n)
	rHighs := make([]float64, n)
	rLows := make([]float64, n)
	rCloses := make([]float64, n)
	for i := 0; i < n; i++ {
		tHighs[i] = float64(i) + 1
		tLows[i] = float64(i)
		tCloses[i] = float64(i) + 0.5

		c := 10.0
		if i%2 == 1 {
			c = 10.5
		}
		rCloses[i] = c
		rHighs[i] = c + 0.1
		rLows[i] = c - 0.1
	}

	trending := ChoppinessSeries(tHighs, tLows, tCloses, 5)
	ranging := ChoppinessSeries(rHighs, rLows, rCloses, 5)
	last := n - 1
	if trending[last] >= 40 {
		t.Fatalf("trending series should read low choppiness, got %v", trending[last])
	}
	if ranging[last] <= 60 {
		t.Fatalf("oscillating series should read high choppiness, got %v", ranging[last])
	}
}

func TestLastCrossIndex(t *testing.T) {
	t.Parallel()
	fast := []float64{1, 2, 3, 2, 1}
	slow := []float64{2, 2, 2, 2, 2}

	idx, dir := LastCrossIndex(fast, slow, 4, 10)
	if idx != 4 || dir != -1 {
		t.Fatalf("expected cross down at 4, got idx=%d dir=%d", idx, dir)
	}

	idx, dir = LastCrossIndex(fast, slow, 3, 10)
	if idx != 2 || dir != 1 {
		t.Fatalf("expected cross up at 2, got idx=%d dir=%d", idx, dir)
	}

	idx, dir = LastCrossIndex(fast, slow, 2, 1)
	if idx != 2 || dir != 1 {
		t.Fatalf("lookback window should still include the end bar, got idx=%d dir=%d", idx, dir)
	}

	flatFast := []float64{3, 3, 3}
	flatSlow := []float64{1, 1, 1}
	idx, dir = LastCrossIndex(flatFast, flatSlow, 2, 10)
	if idx != -1 || dir != 0 {
		t.Fatalf("expected no cross, got idx=%d dir=%d", idx, dir)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
