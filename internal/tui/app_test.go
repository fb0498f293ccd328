package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"probable-pancake/internal/domain"

	tea "github.com/charmbracelet/bubbletea"
)

type stubStatus struct{ snap domain.StatusSnapshot }

func (s *stubStatus) Status(ctx context.Context) domain.StatusSnapshot { return s.snap }

type stubTrades struct {
	trades []domain.TradeRecord
	err    error
}

func (s *stubTrades) RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error) {
	return s.trades, s.err
}

type stubBacktests struct {
	runs []domain.BacktestRun
	err  error
}

func (s *stubBacktests) ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error) {
	return s.runs, s.err
}

type stubAdvisor struct {
	reply      string
	err        error
	lastChatID int64
}

func (s *stubAdvisor) Ask(ctx context.Context, chatID int64, question string) (string, error) {
	s.lastChatID = chatID
	return s.reply, s.err
}

func newTestModel() *AppModel {
	return NewAppModel(Services{
		Status: &stubStatus{snap: domain.StatusSnapshot{
			Pair:      "USD_JPY",
			Equity:    10000,
			UpdatedAt: time.Now(),
		}},
		Trades:    &stubTrades{},
		Backtests: &stubBacktests{},
		Username:  "alice",
		UserID:    7,
	})
}

func TestStatusViewRendersSnapshot(t *testing.T) {
	m := newTestModel()
	snap := domain.StatusSnapshot{
		Pair:       "USD_JPY",
		Equity:     10250.75,
		DailyPnL:   12.5,
		LastClose:  151.234,
		UpdatedAt:  time.Now(),
		Locked:     true,
		LockReason: "loss streak",
	}

	model, _ := m.Update(statusMsg{snap: snap})
	view := model.(*AppModel).View()

	for _, want := range []string{"10250.75", "151.234", "GOVERNOR LOCKED: loss streak", "No open position"} {
		if !strings.Contains(view, want) {
			t.Errorf("status view missing %q", want)
		}
	}
}

func TestStatusViewLoadingBeforeFirstSnapshot(t *testing.T) {
	m := newTestModel()
	if !strings.Contains(m.View(), "loading status") {
		t.Error("expected loading indicator before the first snapshot")
	}
}

func TestTradesTabShowsLedger(t *testing.T) {
	m := newTestModel()
	m.active = tabTrades

	trades := []domain.TradeRecord{
		{
			Direction: domain.DirectionBuy, Units: 50000,
			EntryPrice: 151.1, ExitPrice: 151.5, PnL: 132.45,
			ExitTime:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
			ExitReason: domain.ExitTakeProfit,
		},
	}
	model, _ := m.Update(tradesMsg{trades: trades})
	view := model.(*AppModel).View()

	for _, want := range []string{"BUY", "+132.45", "take_profit"} {
		if !strings.Contains(view, want) {
			t.Errorf("trades view missing %q", want)
		}
	}
}

func TestTradesTabShowsError(t *testing.T) {
	m := newTestModel()
	m.active = tabTrades

	model, _ := m.Update(tradesMsg{err: errors.New("db down")})
	if !strings.Contains(model.(*AppModel).View(), "db down") {
		t.Error("trades view should surface the load error")
	}
}

func TestBacktestsTabShowsRuns(t *testing.T) {
	m := newTestModel()
	m.active = tabBacktests

	runs := []domain.BacktestRun{
		{
			ID: 42, Profile: "conservative", BarCount: 5000,
			Stats: domain.BacktestStats{
				TradeCount: 31, WinRate: 0.58, ProfitFactor: 1.62,
				MaxDrawdown: 0.041, FinalEquity: 11234.56,
			},
		},
	}
	model, _ := m.Update(backtestsMsg{runs: runs})
	view := model.(*AppModel).View()

	for _, want := range []string{"42", "conservative", "58.0", "1.62", "11234.56"} {
		if !strings.Contains(view, want) {
			t.Errorf("backtests view missing %q", want)
		}
	}
}

func TestTabNavigation(t *testing.T) {
	m := newTestModel()

	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if model.(*AppModel).active != tabTrades {
		t.Fatalf("expected trades tab after one tab press, got %d", model.(*AppModel).active)
	}

	model, _ = model.(*AppModel).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'4'}})
	if model.(*AppModel).active != tabAdvisor {
		t.Fatalf("expected advisor tab after pressing 4, got %d", model.(*AppModel).active)
	}

	model, _ = model.(*AppModel).Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if model.(*AppModel).active != tabBacktests {
		t.Fatalf("expected backtests tab after shift+tab, got %d", model.(*AppModel).active)
	}
}

func TestQuitKeys(t *testing.T) {
	m := newTestModel()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command from q")
	}
	if msg := cmd(); msg == nil {
		t.Fatal("expected quit message")
	}
}

func TestAdvisorTabDisabledWithoutService(t *testing.T) {
	m := newTestModel()
	m.active = tabAdvisor
	if !strings.Contains(m.View(), "Advisor is not configured") {
		t.Error("advisor tab should say it is not configured")
	}
}

func TestAdvisorAskFlow(t *testing.T) {
	advisor := &stubAdvisor{reply: "the engine is flat"}
	m := NewAppModel(Services{Advisor: advisor, Username: "alice", UserID: 7})
	m.active = tabAdvisor

	// Focus the input, type a question, submit.
	model, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'i'}})
	m = model.(*AppModel)
	m.advisorInput.SetValue("how are we doing?")
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = model.(*AppModel)

	if !m.advisorWaiting {
		t.Fatal("expected waiting state after submitting a question")
	}
	if cmd == nil {
		t.Fatal("expected an advisor command")
	}

	msg := cmd()
	reply, ok := msg.(advisorReplyMsg)
	if !ok {
		t.Fatalf("expected advisorReplyMsg, got %T", msg)
	}
	if reply.reply != "the engine is flat" {
		t.Fatalf("unexpected reply %q", reply.reply)
	}
	if advisor.lastChatID != -7 {
		t.Fatalf("expected negated user ID as chat key, got %d", advisor.lastChatID)
	}

	model, _ = m.Update(reply)
	m = model.(*AppModel)
	if m.advisorWaiting {
		t.Error("waiting state should clear after the reply")
	}
	if !strings.Contains(m.View(), "the engine is flat") {
		t.Error("advisor view should show the reply")
	}
}
