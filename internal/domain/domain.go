package domain

import "time"

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionHold Direction = "hold"
)

func (d Direction) IsEntry() bool {
	return d == DirectionBuy || d == DirectionSell
}

// Grade ranks how strictly a decision satisfied the gate pipeline.
// GradeA means the strict full set passed, GradeB a fallback or turbo path.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
)

// Hold reasons, reported in gate order so the first unmet gate is diagnosable.
const (
	HoldHTFFilter     = "htf_filter"
	HoldADXWait       = "adx_wait"
	HoldVolatilityGap = "volatility_gap"
	HoldEMASetup      = "ema_setup"
	HoldNoPullback    = "no_pullback"
	HoldLowMomentum   = "low_momentum"
	HoldAwaitBreakout = "await_breakout"
	HoldSession       = "session_closed"
	HoldLowVolatility = "low_volatility"
	HoldCooldown      = "cooldown"
	HoldNotReady      = "warmup"
	HoldNeutral       = "neutral"
)

// Decision is the outcome of one signal evaluation. Entry, Stop and Target
// are only meaningful when Action is buy or sell.
type Decision struct {
	Pair       string    `json:"pair"`
	Time       time.Time `json:"time"`
	Action     Direction `json:"action"`
	Entry      float64   `json:"entry,omitempty"`
	Stop       float64   `json:"stop,omitempty"`
	Target     float64   `json:"target,omitempty"`
	Confluence int       `json:"confluence"`
	Grade      Grade     `json:"grade,omitempty"`
	Factors    []string  `json:"factors,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Position is an open directional exposure. Flags guard the once-only
// lifecycle transitions.
type Position struct {
	Pair            string    `json:"pair"`
	Direction       Direction `json:"direction"`
	EntryPrice      float64   `json:"entry_price"`
	EntryTime       time.Time `json:"entry_time"`
	Stop            float64   `json:"stop"`
	Target          float64   `json:"target"`
	InitialStop     float64   `json:"initial_stop"`
	Units           float64   `json:"units"`
	BreakevenSet    bool      `json:"breakeven_set"`
	PartialTaken    bool      `json:"partial_taken"`
	Partial2Taken   bool      `json:"partial2_taken"`
	TrailingStartRR float64   `json:"trailing_start_rr"`
}

// InitialRisk is the stop distance the position was opened with.
func (p *Position) InitialRisk() float64 {
	if p.Direction == DirectionSell {
		return p.InitialStop - p.EntryPrice
	}
	return p.EntryPrice - p.InitialStop
}

// RMultiple expresses the unrealized move at price as a multiple of the
// initial risk.
func (p *Position) RMultiple(price float64) float64 {
	risk := p.InitialRisk()
	if risk <= 0 {
		return 0
	}
	if p.Direction == DirectionSell {
		return (p.EntryPrice - price) / risk
	}
	return (price - p.EntryPrice) / risk
}

type PositionEventType string

const (
	PositionEventNone    PositionEventType = "none"
	PositionEventPartial PositionEventType = "partial_close"
	PositionEventClose   PositionEventType = "close"
)

// Exit and partial reasons recorded on trade rows and events.
const (
	ExitStopLoss     = "stop_loss"
	ExitTakeProfit   = "take_profit"
	ExitTimeStopSoft = "time_stop_flat"
	ExitTimeStopHard = "time_stop"
	ExitFlattenAll   = "flatten_all"
	PartialAt2R      = "partial_2r"
	PartialAt3R      = "partial_3r"
)

// PositionEvent is what one lifecycle step produced for the open position.
type PositionEvent struct {
	Type           PositionEventType `json:"type"`
	Price          float64           `json:"price,omitempty"`
	PnL            float64           `json:"pnl,omitempty"`
	UnitsClosed    float64           `json:"units_closed,omitempty"`
	RemainingUnits float64           `json:"remaining_units,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// TradeRecord is an immutable closed-trade row. It feeds the risk governor
// exactly once.
type TradeRecord struct {
	ID         int64     `json:"id,omitempty"`
	Pair       string    `json:"pair"`
	Direction  Direction `json:"direction"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Units      float64   `json:"units"`
	PnL        float64   `json:"pnl"`
	ExitReason string    `json:"exit_reason"`
}

func (t TradeRecord) Won() bool { return t.PnL > 0 }

// EquityPoint is one sample of the equity curve, appended once per replayed
// bar regardless of trade activity.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

type ConversationMessage struct {
	Role      string
	Content   string
	CreatedAt time.Time
}

// StatusSnapshot is the heartbeat view of the live loop, cached in Redis and
// served over the API, bot, TUI and MCP surfaces.
type StatusSnapshot struct {
	Pair           string     `json:"pair"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastBarTime    time.Time  `json:"last_bar_time"`
	LastClose      float64    `json:"last_close"`
	Equity         float64    `json:"equity"`
	DailyPnL       float64    `json:"daily_pnl"`
	BreakerTripped bool       `json:"breaker_tripped"`
	OpenPosition   *Position  `json:"open_position,omitempty"`
	LastDecision   *Decision  `json:"last_decision,omitempty"`
	Locked         bool       `json:"locked"`
	LockReason     string     `json:"lock_reason,omitempty"`
	MacroBias      string     `json:"macro_bias,omitempty"`
	MacroAge       *time.Time `json:"macro_refreshed_at,omitempty"`
}
