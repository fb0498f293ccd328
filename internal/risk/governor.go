// Package risk keeps the adaptive trade governor: a rolling window of
// closed trades drives per-direction cooldowns, loss-streak and drawdown
// lockouts, and the position size multiplier. Every judgement takes an
// explicit timestamp so replays stay deterministic.
package risk

import (
	"fmt"
	"sync"
	"time"

	"probable-pancake/internal/config"
	"probable-pancake/internal/domain"
)

const (
	winRateWindow = 10

	// Cooldown stretch factors. The largest applicable one wins.
	factorLossStreak3   = 2.0
	factorLossStreak2   = 1.5
	factorDrawdownHigh  = 1.5
	factorDrawdownSoft  = 1.3
	factorWinRateLow    = 1.4
	factorWinRateSoft   = 1.2
	factorPoorRatio     = 1.3
	factorRecentCluster = 2.0

	// Minimum sample sizes before a statistic may stretch the cooldown.
	winRateMinTrades = 6
	ratioMinTrades   = 4

	easeWinStreak   = 0.7
	easeStrongStats = 0.8

	drawdownHigh = 0.05
	drawdownSoft = 0.03
)

// Settings bound the governor. Zero values fall back to defaults in
// NewGovernor.
type Settings struct {
	BaseCooldown    time.Duration
	MaxCooldown     time.Duration
	DrawdownLockout float64
	LossStreakLimit int
	WindowSize      int
	InitialEquity   float64
}

func DefaultSettings() Settings {
	return Settings{
		BaseCooldown:    5 * time.Minute,
		MaxCooldown:     60 * time.Minute,
		DrawdownLockout: 0.02,
		LossStreakLimit: 3,
		WindowSize:      20,
		InitialEquity:   1000,
	}
}

func FromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	s.InitialEquity = cfg.InitialEquity
	return s
}

// Status is the governor's reportable state, served on the status surfaces.
type Status struct {
	Equity            float64       `json:"equity"`
	Peak              float64       `json:"peak"`
	CurrentDrawdown   float64       `json:"current_drawdown"`
	MaxDrawdown       float64       `json:"max_drawdown"`
	DailyPnL          float64       `json:"daily_pnl"`
	ConsecutiveWins   int           `json:"consecutive_wins"`
	ConsecutiveLosses int           `json:"consecutive_losses"`
	WinRate           float64       `json:"win_rate"`
	WinLossRatio      float64       `json:"win_loss_ratio"`
	RecentTrades      int           `json:"recent_trades"`
	Cooldown          time.Duration `json:"cooldown"`
}

type Governor struct {
	mu sync.Mutex

	cfg Settings

	equity      float64
	peak        float64
	maxDrawdown float64

	dailyPnL  float64
	dailyDate time.Time

	consecutiveWins   int
	consecutiveLosses int

	recent      []domain.TradeRecord
	lastTradeAt map[domain.Direction]time.Time
}

func NewGovernor(cfg Settings) *Governor {
	def := DefaultSettings()
	if cfg.BaseCooldown <= 0 {
		cfg.BaseCooldown = def.BaseCooldown
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = def.MaxCooldown
	}
	if cfg.MaxCooldown < cfg.BaseCooldown {
		cfg.MaxCooldown = cfg.BaseCooldown
	}
	if cfg.DrawdownLockout <= 0 {
		cfg.DrawdownLockout = def.DrawdownLockout
	}
	if cfg.LossStreakLimit <= 0 {
		cfg.LossStreakLimit = def.LossStreakLimit
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.InitialEquity <= 0 {
		cfg.InitialEquity = def.InitialEquity
	}
	return &Governor{
		cfg:         cfg,
		equity:      cfg.InitialEquity,
		peak:        cfg.InitialEquity,
		lastTradeAt: make(map[domain.Direction]time.Time),
	}
}

// Ingest records one closed trade. Callers must forward each close exactly
// once; the governor has no way to deduplicate.
func (g *Governor) Ingest(t domain.TradeRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.equity += t.PnL
	if g.equity > g.peak {
		g.peak = g.equity
	}
	if dd := g.currentDrawdown(); dd > g.maxDrawdown {
		g.maxDrawdown = dd
	}

	if t.Won() {
		g.consecutiveWins++
		g.consecutiveLosses = 0
	} else {
		g.consecutiveLosses++
		g.consecutiveWins = 0
	}

	day := t.ExitTime.UTC().Truncate(24 * time.Hour)
	if !day.Equal(g.dailyDate) {
		g.dailyDate = day
		g.dailyPnL = 0
	}
	g.dailyPnL += t.PnL

	g.recent = append(g.recent, t)
	if len(g.recent) > g.cfg.WindowSize {
		g.recent = g.recent[len(g.recent)-g.cfg.WindowSize:]
	}
}

// RegisterTrade anchors the direction's cooldown clock at entry time.
func (g *Governor) RegisterTrade(direction domain.Direction, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastTradeAt[direction] = at
}

// Locked reports whether a new trade in the given direction is refused at
// the given instant, with the blocking reason. Checks run in precedence
// order: account drawdown, loss streak, then the adaptive cooldown.
func (g *Governor) Locked(direction domain.Direction, at time.Time) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if dd := g.currentDrawdown(); dd > g.cfg.DrawdownLockout {
		return true, fmt.Sprintf("emergency lockout: drawdown %.1f%% exceeds %.1f%% limit",
			dd*100, g.cfg.DrawdownLockout*100)
	}
	if g.consecutiveLosses >= g.cfg.LossStreakLimit {
		return true, fmt.Sprintf("loss streak: %d consecutive losses", g.consecutiveLosses)
	}
	last, ok := g.lastTradeAt[direction]
	if ok {
		cooldown := g.cooldown()
		if since := at.Sub(last); since < cooldown {
			return true, fmt.Sprintf("%s cooldown: %s remaining (win rate %.0f%%)",
				direction, (cooldown - since).Round(time.Second), g.winRate()*100)
		}
	}
	return false, ""
}

// SizeMultiplier scales the per-trade risk fraction by recent performance.
func (g *Governor) SizeMultiplier() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	wr := g.winRate()
	dd := g.currentDrawdown()
	switch {
	case wr >= 0.5 && dd < 0.02:
		return 1.0
	case wr >= 0.4 && dd < 0.035:
		return 0.75
	default:
		return 0.5
	}
}

// Cooldown is the adaptive wait between same-direction entries.
func (g *Governor) Cooldown() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown()
}

func (g *Governor) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		Equity:            g.equity,
		Peak:              g.peak,
		CurrentDrawdown:   g.currentDrawdown(),
		MaxDrawdown:       g.maxDrawdown,
		DailyPnL:          g.dailyPnL,
		ConsecutiveWins:   g.consecutiveWins,
		ConsecutiveLosses: g.consecutiveLosses,
		WinRate:           g.winRate(),
		WinLossRatio:      g.winLossRatio(),
		RecentTrades:      len(g.recent),
		Cooldown:          g.cooldown(),
	}
}

func (g *Governor) Equity() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.equity
}

func (g *Governor) currentDrawdown() float64 {
	if g.peak <= 0 {
		return 0
	}
	return (g.peak - g.equity) / g.peak
}

// winRate defaults to a neutral 0.5 until trades arrive so a cold start is
// neither eased nor throttled.
func (g *Governor) winRate() float64 {
	window := winRateWindow
	if len(g.recent) < window {
		window = len(g.recent)
	}
	if window == 0 {
		return 0.5
	}
	wins := 0
	for _, t := range g.recent[len(g.recent)-window:] {
		if t.Won() {
			wins++
		}
	}
	return float64(wins) / float64(window)
}

func (g *Governor) winLossRatio() float64 {
	var winSum, lossSum float64
	var winN, lossN int
	for _, t := range g.recent {
		if t.Won() {
			winSum += t.PnL
			winN++
		} else {
			lossSum += -t.PnL
			lossN++
		}
	}
	if winN == 0 || lossN == 0 || lossSum <= 0 {
		return 1.0
	}
	return (winSum / float64(winN)) / (lossSum / float64(lossN))
}

// cooldown derives the wait from the base and the worst active stretch
// factor, then eases it for strong runs. The result stays in
// [BaseCooldown, MaxCooldown].
func (g *Governor) cooldown() time.Duration {
	factor := 1.0
	bump := func(f float64) {
		if f > factor {
			factor = f
		}
	}

	if g.consecutiveLosses >= 3 {
		bump(factorLossStreak3)
	} else if g.consecutiveLosses >= 2 {
		bump(factorLossStreak2)
	}

	if g.maxDrawdown > drawdownHigh {
		bump(factorDrawdownHigh)
	} else if g.maxDrawdown > drawdownSoft {
		bump(factorDrawdownSoft)
	}

	wr := g.winRate()
	if len(g.recent) >= winRateMinTrades {
		if wr < 0.3 {
			bump(factorWinRateLow)
		} else if wr < 0.4 {
			bump(factorWinRateSoft)
		}
	}

	ratio := g.winLossRatio()
	if len(g.recent) >= ratioMinTrades && ratio < 1.0 {
		bump(factorPoorRatio)
	}

	if len(g.recent) >= 5 {
		losses := 0
		for _, t := range g.recent[len(g.recent)-5:] {
			if !t.Won() {
				losses++
			}
		}
		if losses >= 4 {
			bump(factorRecentCluster)
		}
	}

	cd := time.Duration(float64(g.cfg.BaseCooldown) * factor)
	if cd > g.cfg.MaxCooldown {
		cd = g.cfg.MaxCooldown
	}

	if g.consecutiveWins >= 3 {
		cd = time.Duration(float64(cd) * easeWinStreak)
	} else if wr > 0.6 && ratio > 1.5 {
		cd = time.Duration(float64(cd) * easeStrongStats)
	}
	if cd < g.cfg.BaseCooldown {
		cd = g.cfg.BaseCooldown
	}
	return cd
}
