package domain

import "time"

// Bar represents a single OHLCV bar for an instrument at a given granularity.
type Bar struct {
	Pair        string    `json:"pair"`
	Granularity string    `json:"granularity"`
	OpenTime    time.Time `json:"open_time"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
}

// DefaultPair is the only instrument the decision engine trades.
const DefaultPair = "USD_JPY"

// DefaultGranularity is the bar cadence every decision is made on.
const DefaultGranularity = "M15"

// GranularityDuration maps supported granularities to their bar duration.
var GranularityDuration = map[string]time.Duration{
	"M1":  time.Minute,
	"M5":  5 * time.Minute,
	"M15": 15 * time.Minute,
	"M30": 30 * time.Minute,
	"H1":  time.Hour,
	"H4":  4 * time.Hour,
}

// SupportedGranularities lists the bar cadences we store.
var SupportedGranularities = []string{"M1", "M5", "M15", "M30", "H1", "H4"}

func ValidGranularity(g string) bool {
	_, ok := GranularityDuration[g]
	return ok
}
