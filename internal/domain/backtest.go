package domain

import "time"

// BacktestStats is the summary block computed from a finished replay.
type BacktestStats struct {
	TotalPnL     float64 `json:"total_pnl"`
	TotalReturn  float64 `json:"total_return"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	TradeCount   int     `json:"trade_count"`
	WinCount     int     `json:"win_count"`
	LossCount    int     `json:"loss_count"`
	FinalEquity  float64 `json:"final_equity"`
}

// BacktestRun is a persisted replay: configuration echo, stats and pointers
// to the trade ledger and equity curve rows.
type BacktestRun struct {
	ID            int64         `json:"id"`
	Pair          string        `json:"pair"`
	Granularity   string        `json:"granularity"`
	Profile       string        `json:"profile"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	BarCount      int           `json:"bar_count"`
	WarmupBars    int           `json:"warmup_bars"`
	InitialEquity float64       `json:"initial_equity"`
	ConfigJSON    string        `json:"config_json,omitempty"`
	Stats         BacktestStats `json:"stats"`
}
