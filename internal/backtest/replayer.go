// Package backtest replays a bar history through the indicator, signal,
// lifecycle and risk components in the same order the live loop runs them.
// A replay is a pure function of (bars, config): identical inputs produce an
// identical trade ledger and equity curve.
package backtest

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"probable-pancake/internal/config"
	"probable-pancake/internal/domain"
	"probable-pancake/internal/indicator"
	"probable-pancake/internal/position"
	"probable-pancake/internal/risk"
	"probable-pancake/internal/signal"
)

// Config carries everything a replay needs. Zero values fall back to
// defaults in New.
type Config struct {
	Pair          string
	Granularity   string
	Profile       string
	WarmupBars    int
	StartAt       time.Time
	InitialEquity float64
	RiskPerTrade  float64
	MaxDailyLoss  float64
	MinUnits      float64
	MaxUnits      float64

	Indicator indicator.Config
	Signal    signal.Settings
	Lifecycle position.Settings
	Governor  risk.Settings
}

func FromConfig(cfg *config.Config) Config {
	return Config{
		Pair:          cfg.Pair,
		Granularity:   cfg.Granularity,
		Profile:       cfg.Profile,
		WarmupBars:    cfg.WarmupBars,
		InitialEquity: cfg.InitialEquity,
		RiskPerTrade:  cfg.RiskPerTrade,
		MaxDailyLoss:  cfg.MaxDailyLoss,
		MinUnits:      float64(cfg.MinUnits),
		MaxUnits:      float64(cfg.MaxUnits),
		Indicator:     indicator.FromConfig(cfg),
		Signal:        signal.FromConfig(cfg),
		Lifecycle:     position.FromConfig(cfg),
		Governor:      risk.FromConfig(cfg),
	}
}

// Result is the raw replay output. The service layer wraps it into a
// persisted domain.BacktestRun.
type Result struct {
	Pair          string
	Granularity   string
	Profile       string
	BarCount      int
	WarmupBars    int
	InitialEquity float64
	Stats         domain.BacktestStats
	Trades        []domain.TradeRecord
	Equity        []domain.EquityPoint
}

// signalSource emits entry decisions for one feature row. Satisfied by
// *signal.Engine.
type signalSource interface {
	Evaluate(f *indicator.Features, t int, state signal.State) (domain.Decision, signal.State)
}

var newSignalSource = func(cfg signal.Settings) signalSource { return signal.New(cfg) }

type Replayer struct {
	cfg Config
}

func New(cfg Config) *Replayer {
	if cfg.Pair == "" {
		cfg.Pair = domain.DefaultPair
	}
	if cfg.Granularity == "" {
		cfg.Granularity = domain.DefaultGranularity
	}
	if cfg.Profile == "" {
		cfg.Profile = string(signal.Conservative)
	}
	if cfg.WarmupBars <= 0 {
		cfg.WarmupBars = 500
	}
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = 1000
	}
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = 0.01
	}
	if cfg.MaxDailyLoss <= 0 {
		cfg.MaxDailyLoss = 300
	}
	if cfg.MinUnits <= 0 {
		cfg.MinUnits = 1
	}
	if cfg.MaxUnits <= 0 {
		cfg.MaxUnits = 1_000_000
	}
	cfg.Governor.InitialEquity = cfg.InitialEquity
	return &Replayer{cfg: cfg}
}

// Run replays the bars. Malformed or out-of-order bars are dropped with a
// warning; the replay aborts only when no usable bars remain after warmup.
func (r *Replayer) Run(bars []domain.Bar) (*Result, error) {
	clean, dropped := cleanBars(bars)
	if dropped > 0 {
		log.Printf("backtest: dropped %d malformed or out-of-order bars", dropped)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("backtest: no usable bars")
	}
	if len(clean) <= r.cfg.WarmupBars {
		return nil, fmt.Errorf("backtest: need more than %d bars, have %d", r.cfg.WarmupBars, len(clean))
	}

	features := indicator.NewEngine(r.cfg.Indicator).Compute(clean)
	engine := newSignalSource(r.cfg.Signal)
	lifecycle := position.NewManager(r.cfg.Lifecycle)
	governor := risk.NewGovernor(r.cfg.Governor)

	state := signal.NewState()
	equity := r.cfg.InitialEquity
	var (
		pos         *domain.Position
		openUnits   float64
		realizedPnL float64
		dailyPnL    float64
		currentDay  time.Time
		trades      []domain.TradeRecord
		curve       = make([]domain.EquityPoint, 0, len(clean)-r.cfg.WarmupBars)
	)

	settle := func(ev domain.PositionEvent, at time.Time) {
		equity += ev.PnL
		dailyPnL += ev.PnL
		switch ev.Type {
		case domain.PositionEventPartial:
			realizedPnL += ev.PnL
		case domain.PositionEventClose:
			trades = append(trades, domain.TradeRecord{
				Pair:       pos.Pair,
				Direction:  pos.Direction,
				EntryTime:  pos.EntryTime,
				ExitTime:   at,
				EntryPrice: pos.EntryPrice,
				ExitPrice:  ev.Price,
				Units:      openUnits,
				PnL:        realizedPnL + ev.PnL,
				ExitReason: ev.Reason,
			})
			governor.Ingest(trades[len(trades)-1])
			pos = nil
			realizedPnL = 0
		}
	}

	last := features.Len() - 1
	for i := r.cfg.WarmupBars; i <= last; i++ {
		bar := features.Bars[i]
		if !r.cfg.StartAt.IsZero() && bar.OpenTime.Before(r.cfg.StartAt) {
			continue
		}

		day := bar.OpenTime.UTC().Truncate(24 * time.Hour)
		if !day.Equal(currentDay) {
			currentDay = day
			dailyPnL = 0
		}

		hadPosition := pos != nil
		if hadPosition {
			if ev := lifecycle.Update(pos, bar, features.ATR[i]); ev.Type != domain.PositionEventNone {
				settle(ev, bar.OpenTime)
			}
			if pos != nil && i == last {
				settle(lifecycle.Flatten(pos, bar.Close), bar.OpenTime)
			}
		}

		breakerTripped := dailyPnL <= -r.cfg.MaxDailyLoss
		if !hadPosition && !breakerTripped && i != last && signal.SessionOpen(bar.OpenTime) {
			var dec domain.Decision
			dec, state = engine.Evaluate(features, i, state)
			if dec.Action.IsEntry() {
				if locked, _ := governor.Locked(dec.Action, bar.OpenTime); !locked {
					if opened := r.open(dec, bar.OpenTime, equity, governor.SizeMultiplier()); opened != nil {
						pos = opened
						openUnits = opened.Units
						governor.RegisterTrade(dec.Action, bar.OpenTime)
					}
				}
			}
		}

		curve = append(curve, domain.EquityPoint{Time: bar.OpenTime, Equity: equity})
	}

	res := &Result{
		Pair:          r.cfg.Pair,
		Granularity:   r.cfg.Granularity,
		Profile:       r.cfg.Profile,
		BarCount:      len(clean),
		WarmupBars:    r.cfg.WarmupBars,
		InitialEquity: r.cfg.InitialEquity,
		Stats:         computeStats(trades, curve, r.cfg.InitialEquity, equity),
		Trades:        trades,
		Equity:        curve,
	}
	return res, nil
}

// open sizes a candidate entry: floor(equity × risk × multiplier / stop
// distance), clamped to the unit bounds. Returns nil when the size does not
// clear the minimum.
func (r *Replayer) open(dec domain.Decision, at time.Time, equity, multiplier float64) *domain.Position {
	slDist := math.Abs(dec.Entry - dec.Stop)
	if slDist <= 0 || math.IsNaN(slDist) {
		return nil
	}
	units := math.Floor(equity * r.cfg.RiskPerTrade * multiplier / slDist)
	if units > r.cfg.MaxUnits {
		units = r.cfg.MaxUnits
	}
	if units < r.cfg.MinUnits {
		return nil
	}
	return &domain.Position{
		Pair:            r.cfg.Pair,
		Direction:       dec.Action,
		EntryPrice:      dec.Entry,
		EntryTime:       at,
		Stop:            dec.Stop,
		Target:          dec.Target,
		InitialStop:     dec.Stop,
		Units:           units,
		TrailingStartRR: r.cfg.Lifecycle.TrailingStartRR,
	}
}

// cleanBars sorts by open time and drops bars with unusable prices or
// non-advancing timestamps.
func cleanBars(bars []domain.Bar) ([]domain.Bar, int) {
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	clean := sorted[:0]
	dropped := 0
	var lastTime time.Time
	for _, b := range sorted {
		if !usableBar(b) || (!lastTime.IsZero() && !b.OpenTime.After(lastTime)) {
			dropped++
			continue
		}
		lastTime = b.OpenTime
		clean = append(clean, b)
	}
	return clean, dropped
}

func usableBar(b domain.Bar) bool {
	for _, v := range [4]float64{b.Open, b.High, b.Low, b.Close} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.High >= b.Low && !b.OpenTime.IsZero()
}
