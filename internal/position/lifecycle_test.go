package position

import (
	"math"
	"testing"
	"time"

	"probable-pancake/internal/domain"
)

var entryAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// openLong risks 0.63 per unit: stop 2.1 ATR below entry at ATR 0.30,
// target at 3R.
func openLong(units float64) *domain.Position {
	return &domain.Position{
		Pair:        domain.DefaultPair,
		Direction:   domain.DirectionBuy,
		EntryPrice:  150.0,
		EntryTime:   entryAt,
		Stop:        149.37,
		InitialStop: 149.37,
		Target:      151.89,
		Units:       units,
	}
}

func openShort(units float64) *domain.Position {
	return &domain.Position{
		Pair:        domain.DefaultPair,
		Direction:   domain.DirectionSell,
		EntryPrice:  150.0,
		EntryTime:   entryAt,
		Stop:        150.63,
		InitialStop: 150.63,
		Target:      148.11,
		Units:       units,
	}
}

func bar(after time.Duration, o, h, l, c float64) domain.Bar {
	return domain.Bar{
		Pair:        domain.DefaultPair,
		Granularity: domain.DefaultGranularity,
		OpenTime:    entryAt.Add(after),
		Open:        o,
		High:        h,
		Low:         l,
		Close:       c,
	}
}

func TestUpdateStopResolvesBeforeTarget(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())
	pos := openLong(1000)

	ev := mgr.Update(pos, bar(15*time.Minute, 150.0, 152.0, 149.0, 150.5), 0.30)
	if ev.Type != domain.PositionEventClose {
		t.Fatalf("expected close, got %v", ev.Type)
	}
	if ev.Reason != domain.ExitStopLoss {
		t.Fatalf("expected stop to win the tie, got %q", ev.Reason)
	}
	if !closeTo(ev.Price, 149.37) {
		t.Fatalf("expected exit at stop 149.37, got %v", ev.Price)
	}
	if !closeTo(ev.PnL, -630.0) {
		t.Fatalf("expected pnl -630, got %v", ev.PnL)
	}
	if ev.UnitsClosed != 1000 {
		t.Fatalf("expected full close, got %v units", ev.UnitsClosed)
	}
}

func TestUpdateTakeProfit(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())
	pos := openLong(1000)

	ev := mgr.Update(pos, bar(15*time.Minute, 151.0, 152.0, 150.8, 151.9), 0.30)
	if ev.Type != domain.PositionEventClose || ev.Reason != domain.ExitTakeProfit {
		t.Fatalf("expected take profit, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(ev.Price, 151.89) {
		t.Fatalf("expected exit at target, got %v", ev.Price)
	}
	if !closeTo(ev.PnL, 1890.0) {
		t.Fatalf("expected pnl 1890, got %v", ev.PnL)
	}
}

func TestUpdateBreakevenOnce(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())
	pos := openLong(1000)

	ev := mgr.Update(pos, bar(15*time.Minute, 150.3, 150.70, 150.30, 150.64), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("expected no event at 1R, got %v %q", ev.Type, ev.Reason)
	}
	if !pos.BreakevenSet {
		t.Fatal("expected breakeven flag set")
	}
	if !closeTo(pos.Stop, 150.063) {
		t.Fatalf("expected stop at entry plus buffer, got %v", pos.Stop)
	}

	// A weaker bar must not loosen the stop.
	mgr.Update(pos, bar(30*time.Minute, 150.5, 150.55, 150.20, 150.40), 0.30)
	if !closeTo(pos.Stop, 150.063) {
		t.Fatalf("stop loosened to %v", pos.Stop)
	}
}

func TestUpdateBreakevenNeverLoosensTighterStop(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())
	pos := openLong(1000)
	pos.Stop = 150.30

	mgr.Update(pos, bar(15*time.Minute, 150.4, 150.70, 150.35, 150.64), 0.30)
	if !pos.BreakevenSet {
		t.Fatal("expected breakeven flag set")
	}
	if !closeTo(pos.Stop, 150.30) {
		t.Fatalf("breakeven loosened a tighter stop to %v", pos.Stop)
	}
}

func TestUpdateTrailingTiers(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())
	pos := openLong(1000)
	pos.Target = 152.205
	pos.BreakevenSet = true
	pos.PartialTaken = true
	pos.Partial2Taken = true

	// 2.30R trails at 2.0 ATR off the close.
	ev := mgr.Update(pos, bar(15*time.Minute, 151.3, 151.5, 151.2, 151.45), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("expected no event, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(pos.Stop, 150.85) {
		t.Fatalf("expected tier one trail to 150.85, got %v", pos.Stop)
	}

	// Back under the start threshold: stop holds.
	mgr.Update(pos, bar(30*time.Minute, 151.4, 151.45, 151.10, 151.30), 0.30)
	if !closeTo(pos.Stop, 150.85) {
		t.Fatalf("stop moved below start threshold, got %v", pos.Stop)
	}

	// 3.10R tightens to 1.5 ATR.
	mgr.Update(pos, bar(45*time.Minute, 151.7, 152.0, 151.60, 151.95), 0.30)
	if !closeTo(pos.Stop, 151.50) {
		t.Fatalf("expected tier two trail to 151.50, got %v", pos.Stop)
	}

	// A pullback bar must not ratchet backwards.
	mgr.Update(pos, bar(60*time.Minute, 151.9, 151.95, 151.55, 151.60), 0.30)
	if !closeTo(pos.Stop, 151.50) {
		t.Fatalf("trail ratcheted backwards to %v", pos.Stop)
	}
}

func TestUpdateTrailingDisabled(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Settings{
		TrailingEnabled: false,
		TrailingStartRR: 2.2,
		TimeStopEnabled: true,
		TimeStopHours:   8,
		TimeStopMinRR:   1.5,
	})
	pos := openLong(1000)
	pos.Target = 152.205
	pos.BreakevenSet = true
	pos.PartialTaken = true
	pos.Partial2Taken = true

	ev := mgr.Update(pos, bar(15*time.Minute, 151.3, 151.5, 151.2, 151.45), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("expected no event, got %v", ev.Type)
	}
	if !closeTo(pos.Stop, 149.37) {
		t.Fatalf("stop moved with trailing disabled: %v", pos.Stop)
	}
}

func TestUpdatePartialLaddersOnceEach(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Settings{TimeStopEnabled: true, TimeStopHours: 8, TimeStopMinRR: 1.5})
	pos := openLong(1000)
	pos.Target = 152.205

	ev := mgr.Update(pos, bar(15*time.Minute, 151.0, 151.3, 150.9, 151.27), 0.30)
	if ev.Type != domain.PositionEventPartial || ev.Reason != domain.PartialAt2R {
		t.Fatalf("expected first partial, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(ev.UnitsClosed, 250) || !closeTo(ev.RemainingUnits, 750) {
		t.Fatalf("expected 250 closed 750 left, got %v / %v", ev.UnitsClosed, ev.RemainingUnits)
	}
	if !closeTo(ev.PnL, 317.5) {
		t.Fatalf("expected partial pnl 317.5, got %v", ev.PnL)
	}
	if !closeTo(pos.Units, 750) || !pos.PartialTaken {
		t.Fatalf("position not reduced: units %v taken %v", pos.Units, pos.PartialTaken)
	}

	// Same level again: no second fill at 2R.
	ev = mgr.Update(pos, bar(30*time.Minute, 151.2, 151.3, 151.0, 151.27), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("partial repeated: %v %q", ev.Type, ev.Reason)
	}

	ev = mgr.Update(pos, bar(45*time.Minute, 151.8, 151.95, 151.0, 151.90), 0.30)
	if ev.Type != domain.PositionEventPartial || ev.Reason != domain.PartialAt3R {
		t.Fatalf("expected second partial, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(ev.UnitsClosed, 750*0.333) || !closeTo(ev.RemainingUnits, 750*0.667) {
		t.Fatalf("unexpected second partial sizing: %v / %v", ev.UnitsClosed, ev.RemainingUnits)
	}
	if !closeTo(ev.PnL, 1.9*750*0.333) {
		t.Fatalf("unexpected second partial pnl: %v", ev.PnL)
	}

	ev = mgr.Update(pos, bar(60*time.Minute, 151.8, 151.95, 151.0, 151.90), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("second partial repeated: %v %q", ev.Type, ev.Reason)
	}
}

func TestUpdatePartialsFireInOrderEvenAtThreeR(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Settings{TimeStopEnabled: true, TimeStopHours: 8, TimeStopMinRR: 1.5})
	pos := openLong(1000)
	pos.Target = 152.205

	ev := mgr.Update(pos, bar(15*time.Minute, 151.8, 151.95, 151.0, 151.90), 0.30)
	if ev.Reason != domain.PartialAt2R {
		t.Fatalf("expected the 2R tranche first, got %q", ev.Reason)
	}
	ev = mgr.Update(pos, bar(30*time.Minute, 151.8, 151.95, 151.0, 151.90), 0.30)
	if ev.Reason != domain.PartialAt3R {
		t.Fatalf("expected the 3R tranche second, got %q", ev.Reason)
	}
}

func TestUpdateSoftKillFlatTradesOnly(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())

	pos := openLong(1000)
	ev := mgr.Update(pos, bar(5*time.Hour, 150.0, 150.10, 150.0, 150.063), 0.30)
	if ev.Type != domain.PositionEventClose || ev.Reason != domain.ExitTimeStopSoft {
		t.Fatalf("expected soft kill, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(ev.Price, 150.063) || !closeTo(ev.PnL, 63.0) {
		t.Fatalf("unexpected soft kill fill: %v pnl %v", ev.Price, ev.PnL)
	}

	// Slightly red is still flat.
	pos = openLong(1000)
	ev = mgr.Update(pos, bar(5*time.Hour, 150.0, 150.0, 149.8, 149.9), 0.30)
	if ev.Reason != domain.ExitTimeStopSoft {
		t.Fatalf("expected soft kill on small loss, got %q", ev.Reason)
	}

	// Half an R of progress is not flat.
	pos = openLong(1000)
	ev = mgr.Update(pos, bar(5*time.Hour, 150.2, 150.35, 150.1, 150.315), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("soft kill fired on a working trade: %v %q", ev.Type, ev.Reason)
	}

	// Too young.
	pos = openLong(1000)
	ev = mgr.Update(pos, bar(3*time.Hour, 150.0, 150.05, 149.95, 150.0), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("soft kill fired before the window: %v %q", ev.Type, ev.Reason)
	}
}

func TestUpdateHardKillSparesRunners(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())

	pos := openLong(1000)
	ev := mgr.Update(pos, bar(9*time.Hour, 150.2, 150.35, 150.1, 150.315), 0.30)
	if ev.Type != domain.PositionEventClose || ev.Reason != domain.ExitTimeStopHard {
		t.Fatalf("expected hard kill, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(ev.PnL, 315.0) {
		t.Fatalf("expected pnl 315, got %v", ev.PnL)
	}

	// Above the runner threshold the position stays on.
	pos = openLong(1000)
	ev = mgr.Update(pos, bar(9*time.Hour, 150.9, 151.10, 150.70, 151.0), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("hard kill closed a runner: %v %q", ev.Type, ev.Reason)
	}
	if !pos.BreakevenSet {
		t.Fatal("expected runner to still advance breakeven")
	}
}

func TestUpdateTimeStopDisabled(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Settings{TrailingEnabled: true, TrailingStartRR: 2.2, TimeStopEnabled: false})
	pos := openLong(1000)

	ev := mgr.Update(pos, bar(9*time.Hour, 150.0, 150.2, 149.5, 150.0), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("time stop fired while disabled: %v %q", ev.Type, ev.Reason)
	}
}

func TestUpdateShortMirror(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())

	// Stop wins the tie on the short side too.
	pos := openShort(1000)
	ev := mgr.Update(pos, bar(15*time.Minute, 150.0, 151.0, 148.0, 149.5), 0.30)
	if ev.Reason != domain.ExitStopLoss || !closeTo(ev.Price, 150.63) {
		t.Fatalf("expected short stop at 150.63, got %q at %v", ev.Reason, ev.Price)
	}
	if !closeTo(ev.PnL, -630.0) {
		t.Fatalf("expected pnl -630, got %v", ev.PnL)
	}

	pos = openShort(1000)
	ev = mgr.Update(pos, bar(15*time.Minute, 148.5, 150.2, 148.0, 148.3), 0.30)
	if ev.Reason != domain.ExitTakeProfit || !closeTo(ev.Price, 148.11) {
		t.Fatalf("expected short target at 148.11, got %q at %v", ev.Reason, ev.Price)
	}
	if !closeTo(ev.PnL, 1890.0) {
		t.Fatalf("expected pnl 1890, got %v", ev.PnL)
	}

	// Breakeven moves the stop down, not up.
	pos = openShort(1000)
	ev = mgr.Update(pos, bar(15*time.Minute, 149.5, 149.6, 149.3, 149.36), 0.30)
	if ev.Type != domain.PositionEventNone {
		t.Fatalf("expected no event, got %v %q", ev.Type, ev.Reason)
	}
	if !closeTo(pos.Stop, 149.937) {
		t.Fatalf("expected short breakeven at 149.937, got %v", pos.Stop)
	}

	// Trailing tightens downward off the close.
	pos = openShort(1000)
	pos.Target = 147.795
	pos.BreakevenSet = true
	pos.PartialTaken = true
	pos.Partial2Taken = true
	mgr.Update(pos, bar(30*time.Minute, 148.7, 148.8, 148.5, 148.55), 0.30)
	if !closeTo(pos.Stop, 149.15) {
		t.Fatalf("expected short trail to 149.15, got %v", pos.Stop)
	}
}

func TestUpdateIgnoresFlatOrMissingPosition(t *testing.T) {
	t.Parallel()

	mgr := NewManager(DefaultSettings())
	if ev := mgr.Update(nil, bar(15*time.Minute, 150, 150, 150, 150), 0.30); ev.Type != domain.PositionEventNone {
		t.Fatalf("nil position produced %v", ev.Type)
	}
	pos := openLong(0)
	if ev := mgr.Update(pos, bar(15*time.Minute, 150, 150, 150, 150), 0.30); ev.Type != domain.PositionEventNone {
		t.Fatalf("flat position produced %v", ev.Type)
	}
}

func TestNewManagerZeroSettingsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Settings{TrailingEnabled: true, TimeStopEnabled: true})

	// Trail start defaults to 2.2: a 2.30R close must ratchet.
	pos := openLong(1000)
	pos.Target = 152.205
	pos.BreakevenSet = true
	pos.PartialTaken = true
	pos.Partial2Taken = true
	mgr.Update(pos, bar(15*time.Minute, 151.3, 151.5, 151.2, 151.45), 0.30)
	if !closeTo(pos.Stop, 150.85) {
		t.Fatalf("default trail start not applied, stop %v", pos.Stop)
	}

	// Hard kill defaults to 8 hours.
	pos = openLong(1000)
	ev := mgr.Update(pos, bar(9*time.Hour, 150.2, 150.35, 150.1, 150.315), 0.30)
	if ev.Reason != domain.ExitTimeStopHard {
		t.Fatalf("default hard kill not applied, got %q", ev.Reason)
	}
}

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}
