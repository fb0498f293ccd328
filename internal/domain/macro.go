package domain

import "time"

type MacroBias string

const (
	MacroBiasBullish MacroBias = "bullish"
	MacroBiasBearish MacroBias = "bearish"
	MacroBiasNeutral MacroBias = "neutral"
)

type MacroConfidence string

const (
	MacroConfidenceHigh   MacroConfidence = "high"
	MacroConfidenceMedium MacroConfidence = "medium"
	MacroConfidenceLow    MacroConfidence = "low"
)

// MacroSeriesPoint is one observation of a macro series (yields, VIX, CPI...).
type MacroSeriesPoint struct {
	SeriesID string    `json:"series_id"`
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
}

// MacroSnapshot is the composite macro view the decision loop consumes.
// It is an explicit value with a refresh timestamp, handed in by the caller;
// staleness is judged against the configured TTL, never against a hidden
// global cache.
type MacroSnapshot struct {
	Bias        MacroBias          `json:"bias"`
	Confidence  MacroConfidence    `json:"confidence"`
	Score       float64            `json:"score"`
	Answers     map[string]string  `json:"answers,omitempty"`
	Inputs      map[string]float64 `json:"inputs,omitempty"`
	RefreshedAt time.Time          `json:"refreshed_at"`
}

// Stale reports whether the snapshot is older than ttl at the given time.
func (m *MacroSnapshot) Stale(now time.Time, ttl time.Duration) bool {
	if m == nil || m.RefreshedAt.IsZero() {
		return true
	}
	return now.Sub(m.RefreshedAt) > ttl
}

// Opposes reports whether the bias points against the trade direction.
func (m *MacroSnapshot) Opposes(d Direction) bool {
	if m == nil {
		return false
	}
	switch d {
	case DirectionBuy:
		return m.Bias == MacroBiasBearish
	case DirectionSell:
		return m.Bias == MacroBiasBullish
	}
	return false
}
