package common

import "probable-pancake/internal/domain"

// Model keys in the registry. The target horizon is 16 bars of M15 data,
// four hours.
const (
	ModelKeyLogReg     = "logreg_up_4h"
	ModelKeyXGBoost    = "xgboost_up_4h"
	ModelKeyEnsembleV1 = "ensemble_up_4h_v1"
	ModelKeyAnomaly    = "iforest_anomaly_v1"
)

// TargetBars is how many bars ahead the binary target looks.
const TargetBars = 16

// FeatureNames fixes the feature vector order. Trainers and predictors must
// agree on it; artifacts embed it for a sanity check on load.
var FeatureNames = []string{
	"ret_1",
	"ret_4",
	"ret_16",
	"ret_96",
	"volatility_24",
	"volatility_96",
	"volume_z_96",
	"rsi_14",
	"macd_line",
	"macd_signal",
	"macd_hist",
	"bb_pos",
	"bb_width",
	"atr_ratio",
	"adx_14",
}

// FeatureVector flattens a row in FeatureNames order.
func FeatureVector(row domain.MLFeatureRow) []float64 {
	return []float64{
		row.Ret1,
		row.Ret4,
		row.Ret16,
		row.Ret96,
		row.Volatility24,
		row.Volatility96,
		row.VolumeZ96,
		row.RSI14,
		row.MACDLine,
		row.MACDSignal,
		row.MACDHist,
		row.BBPos,
		row.BBWidth,
		row.ATRRatio,
		row.ADX14,
	}
}

// TargetLabel returns the binary label, false when the row is unlabeled.
func TargetLabel(row domain.MLFeatureRow) (float64, bool) {
	if row.TargetUp == nil {
		return 0, false
	}
	if *row.TargetUp {
		return 1, true
	}
	return 0, true
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Confidence maps a probability to distance from coin-flip, in [0, 1].
func Confidence(probUp float64) float64 {
	c := 2 * (probUp - 0.5)
	if c < 0 {
		c = -c
	}
	return Clamp01(c)
}

// DirectionFromProb thresholds a probability into a trade direction.
func DirectionFromProb(probUp, longThreshold, shortThreshold float64) domain.Direction {
	if probUp >= longThreshold {
		return domain.DirectionBuy
	}
	if probUp <= shortThreshold {
		return domain.DirectionSell
	}
	return domain.DirectionHold
}
