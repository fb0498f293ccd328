package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"probable-pancake/internal/config"
	"probable-pancake/internal/domain"
	"probable-pancake/internal/indicator"
	"probable-pancake/internal/macro"
	"probable-pancake/internal/position"
	"probable-pancake/internal/risk"
	"probable-pancake/internal/signal"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const statusCacheTTL = 10 * time.Minute

type DecisionStore interface {
	InsertDecision(ctx context.Context, d domain.Decision) error
	LatestDecision(ctx context.Context, pair string) (*domain.Decision, error)
}

type TradeStore interface {
	InsertTrade(ctx context.Context, t domain.TradeRecord) (int64, error)
}

// MacroReader is the live bias source. Backtests use macro.NoopSource
// instead, so replays never consult it.
type MacroReader interface {
	Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error)
	TTL() time.Duration
}

// Notifier pushes decision and trade alerts. Implementations must not
// block the decision loop.
type Notifier interface {
	NotifyDecision(dec domain.Decision)
	NotifyTrade(t domain.TradeRecord)
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// DecisionService runs the live loop: one pass per completed bar through
// the same indicator, lifecycle, governor and signal components the
// replayer uses, plus the macro gate the replayer deliberately skips.
// Positions are simulated; no broker orders are placed.
type DecisionService struct {
	tracer    trace.Tracer
	market    *MarketDataService
	decisions DecisionStore
	trades    TradeStore
	macro     MacroReader
	notifier  Notifier
	redis     RedisClient

	cfg       decisionConfig
	indicator *indicator.Engine
	engine    *signal.Engine
	lifecycle *position.Manager
	governor  *risk.Governor

	mu          sync.Mutex
	state       signal.State
	pos         *domain.Position
	openUnits   float64
	realizedPnL float64
	dailyPnL    float64
	currentDay  time.Time
	lastBarTime time.Time
	lastClose   float64
	lastDec     *domain.Decision
}

type decisionConfig struct {
	Pair         string
	Granularity  string
	WarmupBars   int
	RiskPerTrade float64
	MaxDailyLoss float64
	MinUnits     float64
	MaxUnits     float64
	TrailingRR   float64
}

func NewDecisionService(
	tracer trace.Tracer,
	market *MarketDataService,
	decisions DecisionStore,
	trades TradeStore,
	macroReader MacroReader,
	notifier Notifier,
	redisClient RedisClient,
	cfg *config.Config,
) *DecisionService {
	lifecycleSettings := position.FromConfig(cfg)
	governor := risk.NewGovernor(risk.FromConfig(cfg))
	return &DecisionService{
		tracer:    tracer,
		market:    market,
		decisions: decisions,
		trades:    trades,
		macro:     macroReader,
		notifier:  notifier,
		redis:     redisClient,
		cfg: decisionConfig{
			Pair:         cfg.Pair,
			Granularity:  cfg.Granularity,
			WarmupBars:   cfg.WarmupBars,
			RiskPerTrade: cfg.RiskPerTrade,
			MaxDailyLoss: cfg.MaxDailyLoss,
			MinUnits:     float64(cfg.MinUnits),
			MaxUnits:     float64(cfg.MaxUnits),
			TrailingRR:   lifecycleSettings.TrailingStartRR,
		},
		indicator: indicator.NewEngine(indicator.FromConfig(cfg)),
		engine:    signal.New(signal.FromConfig(cfg)),
		lifecycle: position.NewManager(lifecycleSettings),
		governor:  governor,
		state:     signal.NewState(),
	}
}

// SetNotifier attaches push alerts. Call before the poller starts.
func (s *DecisionService) SetNotifier(n Notifier) { s.notifier = n }

// Restore reloads governor cooldown anchors from Redis. A missing or
// unreadable snapshot degrades to cold-start cooldowns.
func (s *DecisionService) Restore(ctx context.Context) {
	if s.redis == nil {
		return
	}
	data, err := s.redis.Get(ctx, s.cooldownKey()).Bytes()
	if err == redis.Nil {
		return
	}
	if err != nil {
		log.Printf("decision: cooldown restore: %v", err)
		return
	}
	var anchors map[domain.Direction]time.Time
	if err := json.Unmarshal(data, &anchors); err != nil {
		log.Printf("decision: cooldown restore: %v", err)
		return
	}
	for dir, at := range anchors {
		if dir.IsEntry() && !at.IsZero() {
			s.governor.RegisterTrade(dir, at)
		}
	}
}

// RunCycle performs one live pass. Cheap when no new bar has completed:
// it refreshes the status cache and returns.
func (s *DecisionService) RunCycle(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "decision.run-cycle")
	defer span.End()

	if _, err := s.market.RefreshBars(ctx, 0); err != nil {
		return fmt.Errorf("refresh bars: %w", err)
	}
	history, err := s.market.GetBars(ctx, s.cfg.WarmupBars+64)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) <= s.cfg.WarmupBars {
		log.Printf("decision: warming up, %d/%d bars", len(history), s.cfg.WarmupBars+1)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bar := history[len(history)-1]
	s.lastClose = bar.Close
	if !bar.OpenTime.After(s.lastBarTime) {
		s.cacheStatus(ctx)
		return nil
	}
	s.lastBarTime = bar.OpenTime

	day := bar.OpenTime.UTC().Truncate(24 * time.Hour)
	if !day.Equal(s.currentDay) {
		s.currentDay = day
		s.dailyPnL = 0
	}

	features := s.indicator.Compute(history)
	i := features.Len() - 1

	hadPosition := s.pos != nil
	if hadPosition {
		if ev := s.lifecycle.Update(s.pos, bar, features.ATR[i]); ev.Type != domain.PositionEventNone {
			s.settle(ctx, ev, bar.OpenTime)
		}
	}

	breakerTripped := s.dailyPnL <= -s.cfg.MaxDailyLoss
	if !hadPosition && !breakerTripped && signal.SessionOpen(bar.OpenTime) {
		var dec domain.Decision
		dec, s.state = s.engine.Evaluate(features, i, s.state)
		s.record(ctx, dec)
		if dec.Action.IsEntry() {
			s.tryOpen(ctx, dec, bar.OpenTime)
		}
	}

	s.cacheStatus(ctx)
	return nil
}

// FlattenAll closes any open simulated position at the last seen close.
// Called on shutdown so the ledger never carries a dangling position.
func (s *DecisionService) FlattenAll(ctx context.Context, reason string) {
	ctx, span := s.tracer.Start(ctx, "decision.flatten-all")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos == nil {
		return
	}
	log.Printf("decision: flattening open position (%s)", reason)
	ev := s.lifecycle.Flatten(s.pos, s.lastClose)
	ev.Reason = reason
	s.settle(ctx, ev, time.Now().UTC())
	s.cacheStatus(ctx)
}

// Status reports the current loop state for the API and dashboards.
func (s *DecisionService) Status(ctx context.Context) domain.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildStatus(ctx)
}

func (s *DecisionService) GovernorStatus() risk.Status {
	return s.governor.Status()
}

func (s *DecisionService) tryOpen(ctx context.Context, dec domain.Decision, at time.Time) {
	if locked, reason := s.governor.Locked(dec.Action, at); locked {
		log.Printf("decision: entry blocked by governor: %s", reason)
		return
	}

	multiplier := s.governor.SizeMultiplier()
	if s.macro != nil {
		snapshot, err := s.macro.Snapshot(ctx, at)
		if err != nil {
			log.Printf("decision: macro snapshot: %v", err)
		}
		gate := macro.AllowTrade(snapshot, dec.Action, string(dec.Grade), at, s.macro.TTL())
		if !gate.Allowed {
			log.Printf("decision: entry blocked by macro gate: %s", gate.Reason)
			return
		}
		multiplier *= gate.SizeMultiplier
	}

	pos := s.size(dec, at, s.governor.Equity(), multiplier)
	if pos == nil {
		log.Printf("decision: entry skipped, size below minimum")
		return
	}
	s.pos = pos
	s.openUnits = pos.Units
	s.realizedPnL = 0
	s.governor.RegisterTrade(dec.Action, at)
	s.persistCooldowns(ctx, dec.Action, at)
	if s.notifier != nil {
		s.notifier.NotifyDecision(dec)
	}
	log.Printf("decision: opened %s %s %.0f units @ %.3f (stop %.3f target %.3f)",
		dec.Action, s.cfg.Pair, pos.Units, pos.EntryPrice, pos.Stop, pos.Target)
}

// size mirrors the replay sizing: floor(equity × risk × multiplier / stop
// distance), clamped to the unit bounds.
func (s *DecisionService) size(dec domain.Decision, at time.Time, equity, multiplier float64) *domain.Position {
	slDist := math.Abs(dec.Entry - dec.Stop)
	if slDist <= 0 || math.IsNaN(slDist) {
		return nil
	}
	units := math.Floor(equity * s.cfg.RiskPerTrade * multiplier / slDist)
	if units > s.cfg.MaxUnits {
		units = s.cfg.MaxUnits
	}
	if units < s.cfg.MinUnits {
		return nil
	}
	return &domain.Position{
		Pair:            s.cfg.Pair,
		Direction:       dec.Action,
		EntryPrice:      dec.Entry,
		EntryTime:       at,
		Stop:            dec.Stop,
		Target:          dec.Target,
		InitialStop:     dec.Stop,
		Units:           units,
		TrailingStartRR: s.cfg.TrailingRR,
	}
}

func (s *DecisionService) settle(ctx context.Context, ev domain.PositionEvent, at time.Time) {
	s.dailyPnL += ev.PnL
	switch ev.Type {
	case domain.PositionEventPartial:
		s.realizedPnL += ev.PnL
	case domain.PositionEventClose:
		trade := domain.TradeRecord{
			Pair:       s.pos.Pair,
			Direction:  s.pos.Direction,
			EntryTime:  s.pos.EntryTime,
			ExitTime:   at,
			EntryPrice: s.pos.EntryPrice,
			ExitPrice:  ev.Price,
			Units:      s.openUnits,
			PnL:        s.realizedPnL + ev.PnL,
			ExitReason: ev.Reason,
		}
		s.governor.Ingest(trade)
		s.pos = nil
		s.realizedPnL = 0
		if s.trades != nil {
			if id, err := s.trades.InsertTrade(ctx, trade); err != nil {
				log.Printf("decision: persist trade: %v", err)
			} else {
				trade.ID = id
			}
		}
		if s.notifier != nil {
			s.notifier.NotifyTrade(trade)
		}
		log.Printf("decision: closed %s %s pnl %.2f (%s)",
			trade.Direction, trade.Pair, trade.PnL, trade.ExitReason)
	}
}

func (s *DecisionService) record(ctx context.Context, dec domain.Decision) {
	s.lastDec = &dec
	if s.decisions == nil {
		return
	}
	if err := s.decisions.InsertDecision(ctx, dec); err != nil {
		log.Printf("decision: persist decision: %v", err)
	}
}

func (s *DecisionService) buildStatus(ctx context.Context) domain.StatusSnapshot {
	now := time.Now().UTC()
	snap := domain.StatusSnapshot{
		Pair:           s.cfg.Pair,
		UpdatedAt:      now,
		LastBarTime:    s.lastBarTime,
		LastClose:      s.lastClose,
		Equity:         s.governor.Equity(),
		DailyPnL:       s.dailyPnL,
		BreakerTripped: s.dailyPnL <= -s.cfg.MaxDailyLoss,
		OpenPosition:   s.pos,
		LastDecision:   s.lastDec,
	}
	if locked, reason := s.governor.Locked(domain.DirectionBuy, now); locked {
		snap.Locked = true
		snap.LockReason = reason
	} else if locked, reason := s.governor.Locked(domain.DirectionSell, now); locked {
		snap.Locked = true
		snap.LockReason = reason
	}
	if s.macro != nil {
		if ms, err := s.macro.Snapshot(ctx, now); err == nil && ms != nil {
			snap.MacroBias = string(ms.Bias)
			refreshed := ms.RefreshedAt
			snap.MacroAge = &refreshed
		}
	}
	return snap
}

// CacheStatus refreshes the Redis status snapshot outside a bar cycle.
// The heartbeat job calls this so dashboards stay live between bars.
func (s *DecisionService) CacheStatus(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheStatus(ctx)
}

func (s *DecisionService) cacheStatus(ctx context.Context) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(s.buildStatus(ctx))
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.statusKey(), data, statusCacheTTL).Err(); err != nil {
		log.Printf("decision: status cache write: %v", err)
	}
}

func (s *DecisionService) persistCooldowns(ctx context.Context, dir domain.Direction, at time.Time) {
	if s.redis == nil {
		return
	}
	anchors := map[domain.Direction]time.Time{dir: at}
	if data, err := s.redis.Get(ctx, s.cooldownKey()).Bytes(); err == nil {
		var prev map[domain.Direction]time.Time
		if json.Unmarshal(data, &prev) == nil {
			for d, t := range prev {
				if d != dir {
					anchors[d] = t
				}
			}
		}
	}
	data, err := json.Marshal(anchors)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, s.cooldownKey(), data, 0).Err(); err != nil {
		log.Printf("decision: cooldown cache write: %v", err)
	}
}

func (s *DecisionService) statusKey() string   { return "status:" + s.cfg.Pair }
func (s *DecisionService) cooldownKey() string { return "governor:cooldowns:" + s.cfg.Pair }
