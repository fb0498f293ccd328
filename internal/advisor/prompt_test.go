package advisor

import (
	"strings"
	"testing"
	"time"

	"probable-pancake/internal/domain"
)

func TestBuildSystemPrompt(t *testing.T) {
	prompt := BuildSystemPrompt("USD_JPY", "some market context")

	if !strings.Contains(prompt, "USD_JPY") {
		t.Error("prompt should name the pair")
	}
	if !strings.Contains(prompt, "some market context") {
		t.Error("prompt should embed the market context")
	}
	if !strings.Contains(prompt, "risk governor") {
		t.Error("prompt should describe the engine's risk governor")
	}
	if !strings.Contains(prompt, "Never fabricate data") {
		t.Error("prompt should forbid fabricating data")
	}
}

func TestFormatMarketContextFull(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	status := domain.StatusSnapshot{
		Pair:        "USD_JPY",
		UpdatedAt:   now,
		LastBarTime: now.Add(-15 * time.Minute),
		LastClose:   151.234,
		Equity:      10500.50,
		DailyPnL:    -42.10,
		OpenPosition: &domain.Position{
			Direction:  domain.DirectionBuy,
			Units:      50000,
			EntryPrice: 151.100,
			Stop:       150.900,
			Target:     151.500,
		},
	}
	decisions := []domain.Decision{
		{
			Time: now.Add(-15 * time.Minute), Action: domain.DirectionBuy,
			Grade: domain.GradeA, Confluence: 4,
			Entry: 151.100, Stop: 150.900, Target: 151.500,
		},
		{
			Time: now.Add(-30 * time.Minute), Action: domain.DirectionHold,
			Reason: domain.HoldEMASetup, Confluence: 1,
		},
	}
	trades := []domain.TradeRecord{
		{
			Direction: domain.DirectionSell, Units: 30000, PnL: 85.20,
			ExitTime: now.Add(-2 * time.Hour), ExitReason: domain.ExitTakeProfit,
		},
	}
	macro := &domain.MacroSnapshot{
		Bias:        domain.MacroBiasBullish,
		Confidence:  domain.MacroConfidenceHigh,
		Score:       2.5,
		RefreshedAt: now.Add(-time.Hour),
		Answers:     map[string]string{"us10y_trend": "rising"},
	}

	out := FormatMarketContext(status, decisions, trades, macro)

	for _, want := range []string{
		"equity: 10500.50",
		"daily PnL: -42.10",
		"last close: 151.234",
		"open position: buy 50000 units @ 151.100",
		"BUY grade=A confluence=4",
		"HOLD (" + domain.HoldEMASetup + ")",
		"SELL 30000 units pnl=+85.20",
		"Macro Bias: bullish (confidence high, score +2.5",
		"us10y_trend: rising",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("context missing %q\n%s", want, out)
		}
	}
}

func TestFormatMarketContextLocksLead(t *testing.T) {
	status := domain.StatusSnapshot{
		UpdatedAt:      time.Now(),
		Equity:         1000,
		BreakerTripped: true,
		Locked:         true,
		LockReason:     "loss streak",
	}

	out := FormatMarketContext(status, nil, nil, nil)

	if !strings.Contains(out, "DAILY CIRCUIT BREAKER TRIPPED") {
		t.Error("context should surface the tripped breaker")
	}
	if !strings.Contains(out, "GOVERNOR LOCKED: loss streak") {
		t.Error("context should surface the governor lock reason")
	}
	if !strings.Contains(out, "no open position") {
		t.Error("context should state there is no open position")
	}
}

func TestFormatMarketContextEmpty(t *testing.T) {
	out := FormatMarketContext(domain.StatusSnapshot{}, nil, nil, nil)
	if out != "No market data currently available." {
		t.Errorf("unexpected empty-context output %q", out)
	}
}
