// Package position advances an open position through its per-bar lifecycle:
// time kills, breakeven, trailing tiers, intrabar stop/target resolution and
// staged partial closes. It is pure: callers feed bars and ATR, the manager
// mutates the position and reports at most one event per bar.
package position

import (
	"math"

	"probable-pancake/internal/config"
	"probable-pancake/internal/domain"
)

const (
	breakevenTriggerRR = 1.0
	// Buffer keeps a breakeven exit slightly green after spread.
	breakevenBufferFrac = 0.1

	trailTierTwoRR   = 3.0
	trailTierOneATR  = 2.0
	trailTierTwoATR  = 1.5
	partialOneRR     = 2.0
	partialTwoRR     = 3.0
	partialOneFrac   = 0.25
	partialTwoFrac   = 0.333
	partialTwoRemain = 0.667

	softKillHours  = 4.0
	softKillMaxAbs = 0.2
)

// Settings are the lifecycle knobs. Zero values fall back to defaults in
// NewManager.
type Settings struct {
	TrailingEnabled bool
	TrailingStartRR float64
	TimeStopEnabled bool
	TimeStopHours   int
	TimeStopMinRR   float64
}

func DefaultSettings() Settings {
	return Settings{
		TrailingEnabled: true,
		TrailingStartRR: 2.2,
		TimeStopEnabled: true,
		TimeStopHours:   8,
		TimeStopMinRR:   1.5,
	}
}

func FromConfig(cfg *config.Config) Settings {
	return Settings{
		TrailingEnabled: cfg.TrailingStopEnabled,
		TrailingStartRR: cfg.TrailingStopStartRR,
		TimeStopEnabled: cfg.TimeStopEnabled,
		TimeStopHours:   cfg.TimeStopHours,
		TimeStopMinRR:   cfg.TimeStopMinRR,
	}
}

type Manager struct {
	cfg Settings
}

func NewManager(cfg Settings) *Manager {
	def := DefaultSettings()
	if cfg.TrailingStartRR <= 0 {
		cfg.TrailingStartRR = def.TrailingStartRR
	}
	if cfg.TimeStopHours <= 0 {
		cfg.TimeStopHours = def.TimeStopHours
	}
	if cfg.TimeStopMinRR <= 0 {
		cfg.TimeStopMinRR = def.TimeStopMinRR
	}
	return &Manager{cfg: cfg}
}

// Update runs one lifecycle step against a completed bar. Checks run in a
// fixed order: time kills, stop touch, target touch, breakeven, trailing,
// then partials. Touches are judged against the stop as it stood when the
// bar opened; a stop moved off this bar's close was not live while the bar
// traded. When the bar range covers both stop and target the stop resolves
// first. R multiples are measured at the bar close against the initial stop
// distance, never the trailed stop.
func (m *Manager) Update(pos *domain.Position, bar domain.Bar, atr float64) domain.PositionEvent {
	if pos == nil || pos.Units <= 0 {
		return domain.PositionEvent{Type: domain.PositionEventNone}
	}

	r := pos.RMultiple(bar.Close)

	if m.cfg.TimeStopEnabled {
		age := bar.OpenTime.Sub(pos.EntryTime).Hours()
		hard := float64(m.cfg.TimeStopHours)
		if age >= softKillHours && age < hard && r < breakevenTriggerRR && math.Abs(r) < softKillMaxAbs {
			return closeAll(pos, bar.Close, domain.ExitTimeStopSoft)
		}
		if age >= hard && r < m.cfg.TimeStopMinRR {
			return closeAll(pos, bar.Close, domain.ExitTimeStopHard)
		}
	}

	if stopTouched(pos, bar) {
		return closeAll(pos, pos.Stop, domain.ExitStopLoss)
	}
	if targetTouched(pos, bar) {
		return closeAll(pos, pos.Target, domain.ExitTakeProfit)
	}

	if !pos.BreakevenSet && r >= breakevenTriggerRR {
		buffer := breakevenBufferFrac * pos.InitialRisk()
		candidate := pos.EntryPrice + buffer
		if pos.Direction == domain.DirectionSell {
			candidate = pos.EntryPrice - buffer
		}
		ratchet(pos, candidate)
		pos.BreakevenSet = true
	}

	if m.cfg.TrailingEnabled && r >= m.startRR(pos) && atr > 0 && !math.IsNaN(atr) {
		dist := trailTierOneATR * atr
		if r >= trailTierTwoRR {
			dist = trailTierTwoATR * atr
		}
		candidate := bar.Close - dist
		if pos.Direction == domain.DirectionSell {
			candidate = bar.Close + dist
		}
		ratchet(pos, candidate)
	}

	if !pos.PartialTaken && r >= partialOneRR {
		pos.PartialTaken = true
		return closePart(pos, bar.Close, partialOneFrac, 1-partialOneFrac, domain.PartialAt2R)
	}
	if pos.PartialTaken && !pos.Partial2Taken && r >= partialTwoRR {
		pos.Partial2Taken = true
		return closePart(pos, bar.Close, partialTwoFrac, partialTwoRemain, domain.PartialAt3R)
	}

	return domain.PositionEvent{Type: domain.PositionEventNone}
}

// Flatten closes the full remaining size at the given price, regardless of
// stop, target or age. Used on shutdown and at the end of a replay.
func (m *Manager) Flatten(pos *domain.Position, price float64) domain.PositionEvent {
	if pos == nil || pos.Units <= 0 {
		return domain.PositionEvent{Type: domain.PositionEventNone}
	}
	return closeAll(pos, price, domain.ExitFlattenAll)
}

// startRR prefers the threshold snapshotted on the position at open so a
// config change cannot retroactively tighten live exposure.
func (m *Manager) startRR(pos *domain.Position) float64 {
	if pos.TrailingStartRR > 0 {
		return pos.TrailingStartRR
	}
	return m.cfg.TrailingStartRR
}

// ratchet only ever tightens the stop toward profit.
func ratchet(pos *domain.Position, candidate float64) {
	if pos.Direction == domain.DirectionSell {
		if candidate < pos.Stop {
			pos.Stop = candidate
		}
		return
	}
	if candidate > pos.Stop {
		pos.Stop = candidate
	}
}

func stopTouched(pos *domain.Position, bar domain.Bar) bool {
	if pos.Direction == domain.DirectionSell {
		return bar.High >= pos.Stop
	}
	return bar.Low <= pos.Stop
}

func targetTouched(pos *domain.Position, bar domain.Bar) bool {
	if pos.Direction == domain.DirectionSell {
		return bar.Low <= pos.Target
	}
	return bar.High >= pos.Target
}

func pnlFor(pos *domain.Position, price, units float64) float64 {
	diff := price - pos.EntryPrice
	if pos.Direction == domain.DirectionSell {
		diff = pos.EntryPrice - price
	}
	return diff * units
}

func closeAll(pos *domain.Position, price float64, reason string) domain.PositionEvent {
	return domain.PositionEvent{
		Type:        domain.PositionEventClose,
		Price:       price,
		PnL:         pnlFor(pos, price, pos.Units),
		UnitsClosed: pos.Units,
		Reason:      reason,
	}
}

func closePart(pos *domain.Position, price, frac, remainFrac float64, reason string) domain.PositionEvent {
	closed := pos.Units * frac
	pos.Units *= remainFrac
	return domain.PositionEvent{
		Type:           domain.PositionEventPartial,
		Price:          price,
		PnL:            pnlFor(pos, price, closed),
		UnitsClosed:    closed,
		RemainingUnits: pos.Units,
		Reason:         reason,
	}
}
