package signal

import (
	"fmt"
	"math"
	"strings"
	"time"

	"probable-pancake/internal/config"
	"probable-pancake/internal/domain"
	"probable-pancake/internal/indicator"
)

// Profile selects between the two published gate tunings. Aggressive widens
// the cross freshness window, loosens pullback/momentum/body thresholds and
// unlocks the turbo entry path.
type Profile string

const (
	Conservative Profile = "conservative"
	Aggressive   Profile = "aggressive"
)

func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Conservative):
		return Conservative, nil
	case string(Aggressive):
		return Aggressive, nil
	}
	return "", fmt.Errorf("unknown profile %q", s)
}

type tuning struct {
	freshMult float64
	bandATR   float64
	momATR    float64
	bodyFrac  float64
}

func (p Profile) tuning() tuning {
	if p == Aggressive {
		return tuning{freshMult: 2.0, bandATR: 0.25, momATR: 0.10, bodyFrac: 0.4}
	}
	return tuning{freshMult: 1.0, bandATR: 0.15, momATR: 0.15, bodyFrac: 0.6}
}

// State is the engine's only memory: the bar index and timestamp of the last
// emitted signal. It is threaded through Evaluate explicitly and updated
// only on emission, never on HOLD.
type State struct {
	LastBar      int
	LastSignalAt time.Time
}

func NewState() State {
	return State{LastBar: -1}
}

type Settings struct {
	Profile             Profile
	ADXMin              float64
	H1RSILong           float64
	H1RSIShort          float64
	ATRMultiplierSL     float64
	RRRatio             float64
	CooldownBars        int
	MinHoursBetween     int
	CrossFreshBars      int
	BOSLookback         int
	ChopCeiling         float64
	ATRExpansionEnabled bool
}

func DefaultSettings() Settings {
	return Settings{
		Profile:             Conservative,
		ADXMin:              22,
		H1RSILong:           55,
		H1RSIShort:          45,
		ATRMultiplierSL:     2.1,
		RRRatio:             3.0,
		CooldownBars:        48,
		MinHoursBetween:     12,
		CrossFreshBars:      24,
		BOSLookback:         10,
		ChopCeiling:         62.0,
		ATRExpansionEnabled: true,
	}
}

// FromConfig maps the validated app config onto engine settings. The profile
// string is trusted because config.Load rejects unknown values.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		Profile:             Profile(cfg.Profile),
		ADXMin:              cfg.ADXMin,
		H1RSILong:           cfg.H1RSILong,
		H1RSIShort:          cfg.H1RSIShort,
		ATRMultiplierSL:     cfg.ATRMultiplierSL,
		RRRatio:             cfg.RRRatio,
		CooldownBars:        cfg.SignalCooldownBars,
		MinHoursBetween:     cfg.MinHoursBetweenTrades,
		CrossFreshBars:      cfg.CrossFreshBars,
		BOSLookback:         cfg.BOSLookback,
		ChopCeiling:         cfg.ChopCeiling,
		ATRExpansionEnabled: cfg.ATRExpansionEnabled,
	}
}

const (
	htfDisplacementMin = 0.001
	adxRelaxLevel      = 25.0
	adxFallTolerance   = 0.5
	volThresholdHigh   = 0.9
	volThresholdBase   = 0.8
	highVolHourStart   = 13
	highVolHourEnd     = 17
	eps                = 1e-10
)

type Engine struct {
	cfg Settings
}

func New(cfg Settings) *Engine {
	def := DefaultSettings()
	if cfg.Profile == "" {
		cfg.Profile = def.Profile
	}
	if cfg.ADXMin <= 0 {
		cfg.ADXMin = def.ADXMin
	}
	if cfg.H1RSILong <= 0 {
		cfg.H1RSILong = def.H1RSILong
	}
	if cfg.H1RSIShort <= 0 {
		cfg.H1RSIShort = def.H1RSIShort
	}
	if cfg.ATRMultiplierSL <= 0 {
		cfg.ATRMultiplierSL = def.ATRMultiplierSL
	}
	if cfg.RRRatio <= 0 {
		cfg.RRRatio = def.RRRatio
	}
	if cfg.CooldownBars <= 0 {
		cfg.CooldownBars = def.CooldownBars
	}
	if cfg.MinHoursBetween <= 0 {
		cfg.MinHoursBetween = def.MinHoursBetween
	}
	if cfg.CrossFreshBars <= 0 {
		cfg.CrossFreshBars = def.CrossFreshBars
	}
	if cfg.BOSLookback <= 0 {
		cfg.BOSLookback = def.BOSLookback
	}
	if cfg.ChopCeiling <= 0 {
		cfg.ChopCeiling = def.ChopCeiling
	}
	return &Engine{cfg: cfg}
}

// SessionOpen reports whether ts falls in a tradable window: London
// 08:00-15:59 UTC or Asian 00:00-05:59 UTC, Monday through Friday. The
// replay loop uses the same predicate as gate 1.
func SessionOpen(ts time.Time) bool {
	ts = ts.UTC()
	if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	h := ts.Hour()
	return (h >= 8 && h < 16) || h < 6
}

// Evaluate runs the gate pipeline on bar t of the precomputed features and
// returns the decision plus the (possibly advanced) cooldown state. BUY is
// checked before SELL so a double-pass input resolves deterministically.
func (e *Engine) Evaluate(f *indicator.Features, t int, state State) (domain.Decision, State) {
	decision := domain.Decision{Action: domain.DirectionHold, Reason: domain.HoldNotReady}
	if f == nil || t < 1 || t >= f.Len() {
		return decision, state
	}
	bar := f.Bars[t]
	decision.Pair = bar.Pair
	decision.Time = bar.OpenTime
	if !f.Ready(t) {
		return decision, state
	}

	if !SessionOpen(bar.OpenTime) {
		decision.Reason = domain.HoldSession
		return decision, state
	}

	atr := f.ATR[t]
	volRatio := atr / (f.ATRMASlow[t] + eps)
	threshold := volThresholdBase
	if h := bar.OpenTime.UTC().Hour(); h >= highVolHourStart && h <= highVolHourEnd {
		threshold = volThresholdHigh
	}
	if volRatio < threshold {
		decision.Reason = domain.HoldLowVolatility
		return decision, state
	}

	damper := 1.0
	if e.cfg.Profile == Aggressive {
		damper = math.Max(0.85, math.Min(1.0, 1.1-volRatio*0.2))
	}

	closePrice := bar.Close
	htfDist := (closePrice - f.HTFEMA[t]) / f.HTFEMA[t]
	htfLong := closePrice > f.HTFEMA[t] &&
		f.HTFRSI[t] >= e.cfg.H1RSILong*damper &&
		htfDist > htfDisplacementMin
	htfShort := closePrice < f.HTFEMA[t] &&
		f.HTFRSI[t] <= e.cfg.H1RSIShort/damper &&
		htfDist < -htfDisplacementMin

	adxStrength := f.ADX[t] >= e.cfg.ADXMin*damper &&
		((f.PlusDI[t] > f.MinusDI[t] && htfLong) || (f.MinusDI[t] > f.PlusDI[t] && htfShort))

	adxRising := false
	switch {
	case f.ADX[t] > adxRelaxLevel:
		adxRising = true
	case t >= 3:
		if e.cfg.Profile == Aggressive {
			adxRising = f.ADX[t] >= f.ADX[t-1]-adxFallTolerance
		} else {
			adxRising = f.ADX[t] > f.ADX[t-3]
		}
	}

	expansion := true
	if e.cfg.ATRExpansionEnabled {
		expansion = atr > f.ATRMAFast[t]*damper
	}

	chopOK := f.Chop[t] < e.cfg.ChopCeiling

	bullIdx, bearIdx := -1, -1
	start := t - e.cfg.CrossFreshBars*2
	if start < 1 {
		start = 1
	}
	for i := start; i <= t; i++ {
		prevDiff := f.EMAFast[i-1] - f.EMASlow[i-1]
		currDiff := f.EMAFast[i] - f.EMASlow[i]
		if prevDiff <= 0 && currDiff > 0 {
			bullIdx = i
		}
		if prevDiff >= 0 && currDiff < 0 {
			bearIdx = i
		}
	}
	tun := e.cfg.Profile.tuning()
	freshWindow := float64(e.cfg.CrossFreshBars) * tun.freshMult
	crossFreshLong := bullIdx != -1 && float64(t-bullIdx) < freshWindow
	crossFreshShort := bearIdx != -1 && float64(t-bearIdx) < freshWindow

	alignLong := f.EMAFast[t] > f.EMASlow[t] && adxStrength && f.ADX[t] > adxRelaxLevel
	alignShort := f.EMAFast[t] < f.EMASlow[t] && adxStrength && f.ADX[t] > adxRelaxLevel
	setupLong := crossFreshLong || alignLong
	setupShort := crossFreshShort || alignShort

	band := tun.bandATR * atr
	pbLong := bar.Low <= f.EMASlow[t]+band && closePrice >= f.EMASlow[t]-band
	pbShort := bar.High >= f.EMASlow[t]-band && closePrice <= f.EMASlow[t]+band

	momThresh := tun.momATR * atr
	momLong := closePrice-f.EMASlow[t] > momThresh
	momShort := f.EMASlow[t]-closePrice > momThresh

	highest := math.Inf(-1)
	lowest := math.Inf(1)
	bosStart := t - e.cfg.BOSLookback
	if bosStart < 0 {
		bosStart = 0
	}
	for i := bosStart; i < t; i++ {
		if f.Bars[i].High > highest {
			highest = f.Bars[i].High
		}
		if f.Bars[i].Low < lowest {
			lowest = f.Bars[i].Low
		}
	}
	bodyStrong := math.Abs(closePrice-bar.Open) >= tun.bodyFrac*(bar.High-bar.Low)
	prevHigh := f.Bars[t-1].High
	prevLow := f.Bars[t-1].Low
	bosLong := closePrice > highest || (closePrice > bar.Open && closePrice > prevHigh && bodyStrong)
	bosShort := closePrice < lowest || (closePrice < bar.Open && closePrice < prevLow && bodyStrong)

	turboLong := e.cfg.Profile == Aggressive && crossFreshLong && momLong && adxStrength && expansion
	turboShort := e.cfg.Profile == Aggressive && crossFreshShort && momShort && adxStrength && expansion

	longFilters := htfLong && adxStrength && adxRising && expansion && chopOK
	shortFilters := htfShort && adxStrength && adxRising && expansion && chopOK

	longConf := countTrue(htfLong, adxStrength && adxRising, chopOK, setupLong, pbLong, momLong, bosLong)
	shortConf := countTrue(htfShort, adxStrength && adxRising, chopOK, setupShort, pbShort, momShort, bosShort)

	barsOK := t-state.LastBar >= e.cfg.CooldownBars
	hoursOK := true
	if !state.LastSignalAt.IsZero() {
		hoursOK = bar.OpenTime.Sub(state.LastSignalAt) >= time.Duration(e.cfg.MinHoursBetween)*time.Hour
	}
	canTrade := barsOK && hoursOK

	if canTrade && longFilters && ((setupLong && pbLong && momLong && bosLong) || turboLong) {
		strict := crossFreshLong && pbLong && momLong && bosLong
		decision = e.entry(bar, domain.DirectionBuy, atr, longConf, strict, crossFreshLong,
			factorList(htfLong, adxStrength, adxRising, expansion, chopOK, crossFreshLong, alignLong, pbLong, momLong, bosLong))
		state.LastBar = t
		state.LastSignalAt = bar.OpenTime
		return decision, state
	}
	if canTrade && shortFilters && ((setupShort && pbShort && momShort && bosShort) || turboShort) {
		strict := crossFreshShort && pbShort && momShort && bosShort
		decision = e.entry(bar, domain.DirectionSell, atr, shortConf, strict, crossFreshShort,
			factorList(htfShort, adxStrength, adxRising, expansion, chopOK, crossFreshShort, alignShort, pbShort, momShort, bosShort))
		state.LastBar = t
		state.LastSignalAt = bar.OpenTime
		return decision, state
	}

	reason := domain.HoldNeutral
	switch {
	case !(htfLong || htfShort):
		reason = domain.HoldHTFFilter
	case !(adxStrength && adxRising):
		reason = domain.HoldADXWait
	case !expansion:
		reason = domain.HoldVolatilityGap
	case !(setupLong || setupShort):
		reason = domain.HoldEMASetup
	case !(pbLong || pbShort):
		reason = domain.HoldNoPullback
	case !(momLong || momShort):
		reason = domain.HoldLowMomentum
	case !(bosLong || bosShort):
		reason = domain.HoldAwaitBreakout
	case !canTrade:
		reason = domain.HoldCooldown
	}

	decision.Reason = reason
	decision.Confluence = longConf
	decision.Factors = factorList(htfLong, adxStrength, adxRising, expansion, chopOK, crossFreshLong, alignLong, pbLong, momLong, bosLong)
	if shortConf > longConf {
		decision.Confluence = shortConf
		decision.Factors = factorList(htfShort, adxStrength, adxRising, expansion, chopOK, crossFreshShort, alignShort, pbShort, momShort, bosShort)
	}
	return decision, state
}

func (e *Engine) entry(bar domain.Bar, dir domain.Direction, atr float64, confluence int, strict, fresh bool, factors []string) domain.Decision {
	slDist := e.cfg.ATRMultiplierSL * atr
	entry := bar.Close
	stop := entry - slDist
	target := entry + e.cfg.RRRatio*slDist
	if dir == domain.DirectionSell {
		stop = entry + slDist
		target = entry - e.cfg.RRRatio*slDist
	}

	grade := domain.GradeA
	reason := "strict_confluence"
	if !strict {
		grade = domain.GradeB
		if fresh {
			reason = "turbo_momentum"
		} else {
			reason = "alignment_continuation"
		}
	}
	return domain.Decision{
		Pair:       bar.Pair,
		Time:       bar.OpenTime,
		Action:     dir,
		Entry:      entry,
		Stop:       stop,
		Target:     target,
		Confluence: confluence,
		Grade:      grade,
		Factors:    factors,
		Reason:     reason,
	}
}

func factorList(htf, adxStrength, adxRising, expansion, chop, fresh, aligned, pullback, momentum, breakout bool) []string {
	factors := make([]string, 0, 8)
	if htf {
		factors = append(factors, "htf_trend")
	}
	if adxStrength {
		factors = append(factors, "adx_strength")
	}
	if adxRising {
		factors = append(factors, "adx_rising")
	}
	if expansion {
		factors = append(factors, "atr_expansion")
	}
	if chop {
		factors = append(factors, "chop_clear")
	}
	if fresh {
		factors = append(factors, "ema_cross")
	} else if aligned {
		factors = append(factors, "ema_alignment")
	}
	if pullback {
		factors = append(factors, "pullback")
	}
	if momentum {
		factors = append(factors, "momentum")
	}
	if breakout {
		factors = append(factors, "breakout")
	}
	return factors
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
