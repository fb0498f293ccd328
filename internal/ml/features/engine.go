package features

import (
	"math"
	"sort"
	"time"

	"probable-pancake/internal/domain"
	"probable-pancake/internal/ml/common"
	"probable-pancake/internal/ta"
)

const (
	featureSpecVersion = "v2"
	rsiPeriod          = 14
	macdFast           = 12
	macdSlow           = 26
	macdSignal         = 9
	bbPeriod           = 20
	bbStdDevs          = 2.0
	atrPeriod          = 14
	atrBaseline        = 50
	adxPeriod          = 14

	// warmupBars covers the longest lookback (96-bar return and volume z).
	warmupBars = 96
)

type Engine struct {
	now func() time.Time
}

func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

func FeatureSpecVersion() string {
	return featureSpecVersion
}

// BuildRows turns a bar history into feature rows. The target looks
// targetBars ahead; bars too close to the end stay unlabeled and are
// resolved on a later pass.
func (e *Engine) BuildRows(bars []domain.Bar, targetBars int) []domain.MLFeatureRow {
	sorted := sortBars(bars)
	if len(sorted) == 0 {
		return nil
	}
	if targetBars <= 0 {
		targetBars = common.TargetBars
	}

	closes := make([]float64, len(sorted))
	highs := make([]float64, len(sorted))
	lows := make([]float64, len(sorted))
	volumes := make([]float64, len(sorted))
	for i := range sorted {
		closes[i] = sorted[i].Close
		highs[i] = sorted[i].High
		lows[i] = sorted[i].Low
		volumes[i] = sorted[i].Volume
	}

	rsi := ta.RSISeries(closes, rsiPeriod)
	macdLine, macdSig := ta.MACDSeries(closes, macdFast, macdSlow, macdSignal)
	bbMiddle, bbUpper, bbLower := ta.BollingerSeries(closes, bbPeriod, bbStdDevs)
	atr := ta.ATRSeries(highs, lows, closes, atrPeriod)
	atrAvg := ta.SMASeries(atr, atrBaseline)
	_, _, adx := ta.DirectionalSeries(highs, lows, closes, adxPeriod)

	now := e.now().UTC()
	rows := make([]domain.MLFeatureRow, 0, len(sorted))
	for i := range sorted {
		if i < warmupBars {
			continue
		}

		ret1 := pctReturn(closes, i, 1)
		ret4 := pctReturn(closes, i, 4)
		ret16 := pctReturn(closes, i, 16)
		ret96 := pctReturn(closes, i, 96)
		if anyNaN(ret1, ret4, ret16, ret96) {
			continue
		}

		vol24 := rollingVolatility(closes, i, 24)
		vol96 := rollingVolatility(closes, i, 96)
		if anyNaN(vol24, vol96) {
			continue
		}

		volZ96 := rollingZ(volumes, i, 96)
		if math.IsNaN(volZ96) {
			continue
		}

		if i >= len(rsi) || i >= len(macdLine) || i >= len(macdSig) ||
			i >= len(bbUpper) || i >= len(bbLower) || i >= len(bbMiddle) ||
			i >= len(atr) || i >= len(atrAvg) || i >= len(adx) {
			continue
		}
		rsiVal := rsi[i]
		macdL := macdLine[i]
		macdS := macdSig[i]
		bbU := bbUpper[i]
		bbL := bbLower[i]
		bbM := bbMiddle[i]
		atrVal := atr[i]
		atrBase := atrAvg[i]
		adxVal := adx[i]
		if anyNaN(rsiVal, macdL, macdS, bbU, bbL, bbM, atrVal, atrBase, adxVal) {
			continue
		}

		bbWidth := 0.0
		if bbM != 0 {
			bbWidth = (bbU - bbL) / bbM
		}
		bbPos := 0.5
		if bbU != bbL {
			bbPos = (closes[i] - bbL) / (bbU - bbL)
		}
		atrRatio := 1.0
		if atrBase != 0 {
			atrRatio = atrVal / atrBase
		}

		var target *bool
		if targetIdx := i + targetBars; targetIdx < len(closes) {
			up := closes[targetIdx] > closes[i]
			target = &up
		}

		rows = append(rows, domain.MLFeatureRow{
			Pair:         sorted[i].Pair,
			Granularity:  sorted[i].Granularity,
			OpenTime:     sorted[i].OpenTime.UTC(),
			Ret1:         ret1,
			Ret4:         ret4,
			Ret16:        ret16,
			Ret96:        ret96,
			Volatility24: vol24,
			Volatility96: vol96,
			VolumeZ96:    volZ96,
			RSI14:        rsiVal,
			MACDLine:     macdL,
			MACDSignal:   macdS,
			MACDHist:     macdL - macdS,
			BBPos:        bbPos,
			BBWidth:      bbWidth,
			ATRRatio:     atrRatio,
			ADX14:        adxVal,
			TargetUp:     target,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return rows
}

func sortBars(in []domain.Bar) []domain.Bar {
	out := append([]domain.Bar(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenTime.Before(out[j].OpenTime)
	})
	return out
}

func pctReturn(values []float64, idx int, lag int) float64 {
	if idx-lag < 0 || idx >= len(values) {
		return math.NaN()
	}
	base := values[idx-lag]
	if base == 0 {
		return math.NaN()
	}
	return (values[idx] / base) - 1
}

func rollingVolatility(closes []float64, idx int, window int) float64 {
	if window <= 1 || idx-window+1 <= 0 || idx >= len(closes) {
		return math.NaN()
	}
	rets := make([]float64, 0, window)
	for j := idx - window + 1; j <= idx; j++ {
		if j-1 < 0 || closes[j-1] == 0 {
			return math.NaN()
		}
		rets = append(rets, (closes[j]/closes[j-1])-1)
	}
	_, std := ta.MeanStd(rets)
	return std
}

func rollingZ(values []float64, idx int, window int) float64 {
	if window <= 0 || idx-window < 0 || idx >= len(values) {
		return math.NaN()
	}
	mean, std := ta.MeanStd(values[idx-window : idx])
	if std == 0 {
		return 0
	}
	return (values[idx] - mean) / std
}

func anyNaN(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
