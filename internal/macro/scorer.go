package macro

import (
	"fmt"
	"time"

	"probable-pancake/internal/domain"
)

// FRED series the bias composite consumes.
const (
	SeriesUS10Y    = "DGS10"
	SeriesVIX      = "VIXCLS"
	SeriesFedFunds = "FEDFUNDS"
	SeriesUSCPI    = "CPIAUCSL"
	SeriesUSUnemp  = "UNRATE"
	SeriesJPCPI    = "JPNCPIALLMINMEI"
)

// AllSeries lists every series the refresh job pulls.
var AllSeries = []string{SeriesUS10Y, SeriesVIX, SeriesFedFunds, SeriesUSCPI, SeriesUSUnemp, SeriesJPCPI}

const (
	yieldHistoryObs   = 20
	yieldDeltaBullish = 0.15
	vixRiskOff        = 25.0
	vixRiskOn         = 15.0
)

// Score condenses the fetched series into a directional bias for USD/JPY.
// Three questions are asked, each answering +1 (bullish USD/JPY), -1
// (bearish) or 0 (no read):
//  1. are US 10y yields moving up or down versus their recent history,
//  2. is the VIX signalling risk-off (yen bid) or risk-on (carry bid),
//  3. is Japanese CPI trending up (BoJ tightening pressure) or down.
func Score(series map[string][]domain.MacroSeriesPoint, now time.Time) domain.MacroSnapshot {
	answers := make(map[string]string, 3)
	inputs := make(map[string]float64, 6)

	votes := 0
	total := 0

	if vote, latest, delta, ok := yieldsVote(series[SeriesUS10Y]); ok {
		inputs["us10y"] = latest
		inputs["us10y_delta"] = delta
		answers["yields"] = voteLabel(vote, fmt.Sprintf("10y %+.2f vs 20-obs mean", delta))
		votes += vote
		total++
	} else {
		answers["yields"] = "no data"
	}

	if vote, latest, ok := vixVote(series[SeriesVIX]); ok {
		inputs["vix"] = latest
		answers["risk_regime"] = voteLabel(vote, fmt.Sprintf("VIX %.1f", latest))
		votes += vote
		total++
	} else {
		answers["risk_regime"] = "no data"
	}

	if vote, latest, delta, ok := jpCPIVote(series[SeriesJPCPI]); ok {
		inputs["jp_cpi"] = latest
		inputs["jp_cpi_delta"] = delta
		answers["boj_pressure"] = voteLabel(vote, fmt.Sprintf("JP CPI %+.2f trend", delta))
		votes += vote
		total++
	} else {
		answers["boj_pressure"] = "no data"
	}

	if points := series[SeriesFedFunds]; len(points) > 0 {
		inputs["fed_funds"] = points[len(points)-1].Value
	}
	if points := series[SeriesUSUnemp]; len(points) > 0 {
		inputs["unemployment"] = points[len(points)-1].Value
	}
	if points := series[SeriesUSCPI]; len(points) > 0 {
		inputs["us_cpi"] = points[len(points)-1].Value
	}

	snapshot := domain.MacroSnapshot{
		Bias:        domain.MacroBiasNeutral,
		Confidence:  domain.MacroConfidenceLow,
		Answers:     answers,
		Inputs:      inputs,
		RefreshedAt: now.UTC(),
	}
	if total == 0 {
		return snapshot
	}

	snapshot.Score = float64(votes) / float64(total)
	switch {
	case votes >= 2:
		snapshot.Bias = domain.MacroBiasBullish
	case votes <= -2:
		snapshot.Bias = domain.MacroBiasBearish
	case votes == 1:
		snapshot.Bias = domain.MacroBiasBullish
	case votes == -1:
		snapshot.Bias = domain.MacroBiasBearish
	}

	agreement := absInt(votes)
	switch {
	case total == 3 && agreement == 3:
		snapshot.Confidence = domain.MacroConfidenceHigh
	case agreement == 2:
		snapshot.Confidence = domain.MacroConfidenceMedium
	default:
		snapshot.Confidence = domain.MacroConfidenceLow
	}
	return snapshot
}

// yieldsVote compares the latest 10y yield against the mean of the prior
// observations. A move above +0.15 is bullish for USD/JPY, below -0.15
// bearish.
func yieldsVote(points []domain.MacroSeriesPoint) (vote int, latest, delta float64, ok bool) {
	if len(points) < 2 {
		return 0, 0, 0, false
	}
	history := points[:len(points)-1]
	if len(history) > yieldHistoryObs {
		history = history[len(history)-yieldHistoryObs:]
	}
	sum := 0.0
	for _, p := range history {
		sum += p.Value
	}
	mean := sum / float64(len(history))
	latest = points[len(points)-1].Value
	delta = latest - mean
	switch {
	case delta > yieldDeltaBullish:
		return 1, latest, delta, true
	case delta < -yieldDeltaBullish:
		return -1, latest, delta, true
	}
	return 0, latest, delta, true
}

// vixVote maps the risk regime onto the yen: risk-off bids the yen
// (bearish USD/JPY), risk-on favours the carry (bullish).
func vixVote(points []domain.MacroSeriesPoint) (vote int, latest float64, ok bool) {
	if len(points) == 0 {
		return 0, 0, false
	}
	latest = points[len(points)-1].Value
	switch {
	case latest > vixRiskOff:
		return -1, latest, true
	case latest < vixRiskOn:
		return 1, latest, true
	}
	return 0, latest, true
}

// jpCPIVote reads rising Japanese CPI as BoJ tightening pressure, which
// strengthens the yen.
func jpCPIVote(points []domain.MacroSeriesPoint) (vote int, latest, delta float64, ok bool) {
	if len(points) < 3 {
		return 0, 0, 0, false
	}
	latest = points[len(points)-1].Value
	sum := 0.0
	history := points[:len(points)-1]
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	for _, p := range history {
		sum += p.Value
	}
	mean := sum / float64(len(history))
	delta = latest - mean
	switch {
	case delta > 0.3:
		return -1, latest, delta, true
	case delta < -0.3:
		return 1, latest, delta, true
	}
	return 0, latest, delta, true
}

func voteLabel(vote int, detail string) string {
	switch {
	case vote > 0:
		return "bullish: " + detail
	case vote < 0:
		return "bearish: " + detail
	}
	return "neutral: " + detail
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
