// Package tui renders the SSH dashboard: live status, the trade ledger,
// persisted backtest runs and an advisor chat, one tab each.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"probable-pancake/internal/domain"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// StatusQuerier exposes the live loop snapshot.
type StatusQuerier interface {
	Status(ctx context.Context) domain.StatusSnapshot
}

// TradeQuerier exposes the closed-trade ledger.
type TradeQuerier interface {
	RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error)
}

// BacktestQuerier exposes persisted backtest runs.
type BacktestQuerier interface {
	ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error)
}

// AdvisorQuerier answers free-form questions. SSH users are keyed by their
// negated user ID so chat history never collides with Telegram chat IDs.
type AdvisorQuerier interface {
	Ask(ctx context.Context, chatID int64, question string) (string, error)
}

// Services bundles everything the dashboard reads. Nil fields disable the
// corresponding tab's data instead of crashing it.
type Services struct {
	Status    StatusQuerier
	Trades    TradeQuerier
	Backtests BacktestQuerier
	Advisor   AdvisorQuerier
	UserID    int64
	Username  string
}

type tab int

const (
	tabStatus tab = iota
	tabTrades
	tabBacktests
	tabAdvisor
	tabCount
)

var tabNames = [tabCount]string{"Status", "Trades", "Backtests", "Advisor"}

const dashboardPair = domain.DefaultPair

type statusMsg struct{ snap domain.StatusSnapshot }

type tradesMsg struct {
	trades []domain.TradeRecord
	err    error
}

type backtestsMsg struct {
	runs []domain.BacktestRun
	err  error
}

type advisorReplyMsg struct {
	reply string
	err   error
}

type tickMsg time.Time

// AppModel is the root bubbletea model for the SSH dashboard.
type AppModel struct {
	svc    Services
	active tab
	width  int
	height int

	status      domain.StatusSnapshot
	statusReady bool

	tradesTable   table.Model
	tradesErr     error
	backtestTable table.Model
	backtestErr   error

	advisorInput   textinput.Model
	advisorView    viewport.Model
	advisorLog     []string
	advisorWaiting bool
	spin           spinner.Model
}

func NewAppModel(svc Services) *AppModel {
	input := textinput.New()
	input.Placeholder = "ask about the engine's decisions and trades"
	input.CharLimit = 500

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := &AppModel{
		svc:           svc,
		tradesTable:   newTradesTable(),
		backtestTable: newBacktestTable(),
		advisorInput:  input,
		advisorView:   viewport.New(80, 20),
		spin:          sp,
	}
	m.SetSize(80, 24)
	return m
}

// SetSize resizes the dashboard; the wish middleware calls it with the PTY
// window before the program starts.
func (m *AppModel) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	m.width = width
	m.height = height

	body := height - 6
	if body < 4 {
		body = 4
	}
	m.tradesTable.SetWidth(width - 4)
	m.tradesTable.SetHeight(body)
	m.backtestTable.SetWidth(width - 4)
	m.backtestTable.SetHeight(body)
	m.advisorView.Width = width - 4
	m.advisorView.Height = body - 3
	m.advisorInput.Width = width - 10
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), m.fetchTrades(), m.fetchBacktests(), m.spin.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *AppModel) fetchStatus() tea.Cmd {
	if m.svc.Status == nil {
		return nil
	}
	status := m.svc.Status
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return statusMsg{snap: status.Status(ctx)}
	}
}

func (m *AppModel) fetchTrades() tea.Cmd {
	if m.svc.Trades == nil {
		return nil
	}
	trades := m.svc.Trades
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rows, err := trades.RecentTrades(ctx, dashboardPair, 50)
		return tradesMsg{trades: rows, err: err}
	}
}

func (m *AppModel) fetchBacktests() tea.Cmd {
	if m.svc.Backtests == nil {
		return nil
	}
	backtests := m.svc.Backtests
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		runs, err := backtests.ListRuns(ctx, dashboardPair, 20)
		return backtestsMsg{runs: runs, err: err}
	}
}

func (m *AppModel) askAdvisor(question string) tea.Cmd {
	advisor := m.svc.Advisor
	chatID := -m.svc.UserID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		reply, err := advisor.Ask(ctx, chatID, question)
		return advisorReplyMsg{reply: reply, err: err}
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		m.status = msg.snap
		m.statusReady = true
		return m, nil

	case tradesMsg:
		m.tradesErr = msg.err
		if msg.err == nil {
			m.tradesTable.SetRows(tradeRows(msg.trades))
		}
		return m, nil

	case backtestsMsg:
		m.backtestErr = msg.err
		if msg.err == nil {
			m.backtestTable.SetRows(backtestRows(msg.runs))
		}
		return m, nil

	case advisorReplyMsg:
		m.advisorWaiting = false
		if msg.err != nil {
			m.advisorLog = append(m.advisorLog, errorStyle.Render("advisor: "+msg.err.Error()))
		} else {
			m.advisorLog = append(m.advisorLog, replyStyle.Render(msg.reply))
		}
		m.refreshAdvisorView()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetchStatus(), m.fetchTrades(), tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m.updateActive(msg)
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The advisor input captures most keys while focused.
	if m.active == tabAdvisor && m.advisorInput.Focused() {
		switch msg.String() {
		case "esc":
			m.advisorInput.Blur()
			return m, nil
		case "enter":
			question := strings.TrimSpace(m.advisorInput.Value())
			if question == "" || m.advisorWaiting || m.svc.Advisor == nil {
				return m, nil
			}
			m.advisorInput.SetValue("")
			m.advisorWaiting = true
			m.advisorLog = append(m.advisorLog, questionStyle.Render(m.svc.Username+"> "+question))
			m.refreshAdvisorView()
			return m, m.askAdvisor(question)
		case "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.advisorInput, cmd = m.advisorInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "right", "l":
		m.active = (m.active + 1) % tabCount
	case "shift+tab", "left", "h":
		m.active = (m.active + tabCount - 1) % tabCount
	case "1":
		m.active = tabStatus
	case "2":
		m.active = tabTrades
	case "3":
		m.active = tabBacktests
	case "4":
		m.active = tabAdvisor
	case "r":
		return m, tea.Batch(m.fetchStatus(), m.fetchTrades(), m.fetchBacktests())
	case "i", "enter":
		if m.active == tabAdvisor {
			m.advisorInput.Focus()
			return m, textinput.Blink
		}
	}

	return m.updateActive(msg)
}

func (m *AppModel) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.active {
	case tabTrades:
		m.tradesTable, cmd = m.tradesTable.Update(msg)
	case tabBacktests:
		m.backtestTable, cmd = m.backtestTable.Update(msg)
	case tabAdvisor:
		m.advisorView, cmd = m.advisorView.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) refreshAdvisorView() {
	m.advisorView.SetContent(strings.Join(m.advisorLog, "\n\n"))
	m.advisorView.GotoBottom()
}

func (m *AppModel) View() string {
	var body string
	switch m.active {
	case tabStatus:
		body = m.statusView()
	case tabTrades:
		body = m.tradesView()
	case tabBacktests:
		body = m.backtestsView()
	case tabAdvisor:
		body = m.advisorTabView()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.tabBar(),
		bodyStyle.Width(m.width-2).Render(body),
		helpStyle.Render("tab/1-4 switch · r refresh · q quit"),
	)
}

func (m *AppModel) tabBar() string {
	parts := make([]string, 0, tabCount)
	for i, name := range tabNames {
		if tab(i) == m.active {
			parts = append(parts, activeTabStyle.Render(name))
		} else {
			parts = append(parts, inactiveTabStyle.Render(name))
		}
	}
	bar := lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	title := titleStyle.Render(dashboardPair + " decision engine")
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", bar)
}

func (m *AppModel) statusView() string {
	if !m.statusReady {
		return m.spin.View() + " loading status..."
	}
	snap := m.status

	var sb strings.Builder
	sb.WriteString(labelStyle.Render("Equity") + fmt.Sprintf("  %.2f", snap.Equity))
	sb.WriteString(labelStyle.Render("   Daily PnL") + pnlText(snap.DailyPnL))
	sb.WriteString("\n")
	if snap.LastClose > 0 {
		sb.WriteString(labelStyle.Render("Last bar") +
			fmt.Sprintf("  %.3f at %s\n", snap.LastClose, snap.LastBarTime.Format("2006-01-02 15:04")))
	}
	if snap.BreakerTripped {
		sb.WriteString(errorStyle.Render("CIRCUIT BREAKER TRIPPED, no entries today") + "\n")
	}
	if snap.Locked {
		sb.WriteString(errorStyle.Render("GOVERNOR LOCKED: "+snap.LockReason) + "\n")
	}
	if snap.MacroBias != "" {
		sb.WriteString(labelStyle.Render("Macro bias") + "  " + snap.MacroBias + "\n")
	}

	sb.WriteString("\n")
	if pos := snap.OpenPosition; pos != nil {
		sb.WriteString(labelStyle.Render("Open position") + "\n")
		sb.WriteString(fmt.Sprintf("  %s %.0f units @ %.3f\n",
			strings.ToUpper(string(pos.Direction)), pos.Units, pos.EntryPrice))
		sb.WriteString(fmt.Sprintf("  stop %.3f  target %.3f  opened %s\n",
			pos.Stop, pos.Target, pos.EntryTime.Format("01-02 15:04")))
	} else {
		sb.WriteString(dimStyle.Render("No open position") + "\n")
	}

	if dec := snap.LastDecision; dec != nil {
		sb.WriteString("\n" + labelStyle.Render("Last decision") + "\n")
		if dec.Action.IsEntry() {
			sb.WriteString(fmt.Sprintf("  %s grade=%s confluence=%d\n",
				strings.ToUpper(string(dec.Action)), dec.Grade, dec.Confluence))
		} else {
			sb.WriteString(fmt.Sprintf("  HOLD (%s)\n", dec.Reason))
		}
	}

	sb.WriteString("\n" + dimStyle.Render("updated "+snap.UpdatedAt.Format("15:04:05")))
	return sb.String()
}

func (m *AppModel) tradesView() string {
	if m.tradesErr != nil {
		return errorStyle.Render("failed to load trades: " + m.tradesErr.Error())
	}
	if len(m.tradesTable.Rows()) == 0 {
		return dimStyle.Render("No closed trades yet.")
	}
	return m.tradesTable.View()
}

func (m *AppModel) backtestsView() string {
	if m.backtestErr != nil {
		return errorStyle.Render("failed to load backtests: " + m.backtestErr.Error())
	}
	if len(m.backtestTable.Rows()) == 0 {
		return dimStyle.Render("No backtest runs persisted yet.")
	}
	return m.backtestTable.View()
}

func (m *AppModel) advisorTabView() string {
	if m.svc.Advisor == nil {
		return dimStyle.Render("Advisor is not configured. Set OPENAI_API_KEY to enable it.")
	}
	status := "press i or enter to type"
	if m.advisorInput.Focused() {
		status = "enter to send, esc to stop typing"
	}
	if m.advisorWaiting {
		status = m.spin.View() + " thinking..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.advisorView.View(),
		m.advisorInput.View(),
		dimStyle.Render(status),
	)
}

func newTradesTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Closed", Width: 12},
			{Title: "Dir", Width: 5},
			{Title: "Units", Width: 8},
			{Title: "Entry", Width: 9},
			{Title: "Exit", Width: 9},
			{Title: "PnL", Width: 10},
			{Title: "Reason", Width: 16},
		}),
		table.WithFocused(true),
	)
	t.SetStyles(tableStyles())
	return t
}

func newBacktestTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 5},
			{Title: "Profile", Width: 12},
			{Title: "Bars", Width: 7},
			{Title: "Trades", Width: 7},
			{Title: "Win%", Width: 6},
			{Title: "PF", Width: 6},
			{Title: "MaxDD", Width: 7},
			{Title: "Final", Width: 10},
		}),
		table.WithFocused(true),
	)
	t.SetStyles(tableStyles())
	return t
}

func tradeRows(trades []domain.TradeRecord) []table.Row {
	rows := make([]table.Row, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, table.Row{
			t.ExitTime.Format("01-02 15:04"),
			strings.ToUpper(string(t.Direction)),
			fmt.Sprintf("%.0f", t.Units),
			fmt.Sprintf("%.3f", t.EntryPrice),
			fmt.Sprintf("%.3f", t.ExitPrice),
			fmt.Sprintf("%+.2f", t.PnL),
			t.ExitReason,
		})
	}
	return rows
}

func backtestRows(runs []domain.BacktestRun) []table.Row {
	rows := make([]table.Row, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.ID),
			r.Profile,
			fmt.Sprintf("%d", r.BarCount),
			fmt.Sprintf("%d", r.Stats.TradeCount),
			fmt.Sprintf("%.1f", r.Stats.WinRate*100),
			fmt.Sprintf("%.2f", r.Stats.ProfitFactor),
			fmt.Sprintf("%.1f%%", r.Stats.MaxDrawdown*100),
			fmt.Sprintf("%.2f", r.Stats.FinalEquity),
		})
	}
	return rows
}

func pnlText(v float64) string {
	s := fmt.Sprintf("  %+.2f", v)
	if v < 0 {
		return errorStyle.Render(s)
	}
	return gainStyle.Render(s)
}
