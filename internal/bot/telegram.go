package bot

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"probable-pancake/internal/domain"

	tele "gopkg.in/telebot.v3"
)

// StatusProvider exposes the live loop snapshot.
type StatusProvider interface {
	Status(ctx context.Context) domain.StatusSnapshot
}

// TradeProvider exposes the closed-trade ledger.
type TradeProvider interface {
	RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error)
}

// DecisionProvider exposes recent signal evaluations.
type DecisionProvider interface {
	RecentDecisions(ctx context.Context, pair string, limit int) ([]domain.Decision, error)
}

// Advisor answers free-form questions about the engine's state.
type Advisor interface {
	Ask(ctx context.Context, chatID int64, question string) (string, error)
}

// Notifier pushes decision and trade alerts to the configured chat. A nil
// Notifier (no token or no chat ID) drops all alerts.
type Notifier struct {
	bot    *tele.Bot
	chatID int64
}

func (n *Notifier) NotifyDecision(dec domain.Decision) {
	if n == nil || n.bot == nil || !dec.Action.IsEntry() {
		return
	}
	msg := fmt.Sprintf(
		"ENTRY %s %s\nGrade %s, confluence %d\nEntry %.3f | Stop %.3f | Target %.3f",
		strings.ToUpper(string(dec.Action)), dec.Pair,
		dec.Grade, dec.Confluence, dec.Entry, dec.Stop, dec.Target,
	)
	go n.send(msg)
}

func (n *Notifier) NotifyTrade(t domain.TradeRecord) {
	if n == nil || n.bot == nil {
		return
	}
	msg := fmt.Sprintf(
		"CLOSED %s %s %.0f units\nPnL %+.2f (%s)\n%.3f -> %.3f",
		strings.ToUpper(string(t.Direction)), t.Pair, t.Units,
		t.PnL, t.ExitReason, t.EntryPrice, t.ExitPrice,
	)
	go n.send(msg)
}

func (n *Notifier) send(msg string) {
	if _, err := n.bot.Send(&tele.Chat{ID: n.chatID}, msg); err != nil {
		log.Printf("telegram notify failed: %v", err)
	}
}

// StartTelegramBot wires the command handlers and starts long polling. It
// returns a Notifier for push alerts, or nil when TELEGRAM_BOT_TOKEN is
// unset.
func StartTelegramBot(status StatusProvider, trades TradeProvider, decisions DecisionProvider, advisor Advisor) *Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Println("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil
	}
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("failed to create Telegram bot: %v", err)
	}

	b.Handle("/ping", func(c tele.Context) error {
		return c.Send("pong")
	})

	b.Handle("/status", func(c tele.Context) error {
		if status == nil {
			return c.Send("Status is not available yet.")
		}
		return c.Send(formatStatus(status.Status(context.Background())))
	})

	b.Handle("/trades", func(c tele.Context) error {
		if trades == nil {
			return c.Send("Trade history is not available yet.")
		}
		recent, err := trades.RecentTrades(context.Background(), domain.DefaultPair, 10)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching trades: %v", err))
		}
		return c.Send(formatTrades(recent))
	})

	b.Handle("/decisions", func(c tele.Context) error {
		if decisions == nil {
			return c.Send("Decision history is not available yet.")
		}
		recent, err := decisions.RecentDecisions(context.Background(), domain.DefaultPair, 10)
		if err != nil {
			return c.Send(fmt.Sprintf("Error fetching decisions: %v", err))
		}
		return c.Send(formatDecisions(recent))
	})

	b.Handle("/ask", func(c tele.Context) error {
		if advisor == nil {
			return c.Send("The advisor is not configured. Set OPENAI_API_KEY to enable it.")
		}
		question := strings.TrimSpace(strings.Join(c.Args(), " "))
		if question == "" {
			return c.Send("Usage: /ask <question about the engine's decisions or trades>")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		reply, err := advisor.Ask(ctx, c.Chat().ID, question)
		if err != nil {
			return c.Send(fmt.Sprintf("Advisor error: %v", err))
		}
		return c.Send(reply)
	})

	log.Println("Telegram bot started")
	go b.Start()

	var chatID int64
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("invalid TELEGRAM_CHAT_ID %q, alerts disabled: %v", raw, err)
			return nil
		}
	}
	if chatID == 0 {
		log.Println("TELEGRAM_CHAT_ID not set, push alerts disabled")
		return nil
	}
	return &Notifier{bot: b, chatID: chatID}
}

func formatStatus(snap domain.StatusSnapshot) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s status\n", snap.Pair))
	sb.WriteString(fmt.Sprintf("Equity: %.2f (daily %+.2f)\n", snap.Equity, snap.DailyPnL))
	if snap.LastClose > 0 {
		sb.WriteString(fmt.Sprintf("Last close: %.3f at %s\n",
			snap.LastClose, snap.LastBarTime.Format("2006-01-02 15:04")))
	}
	if snap.BreakerTripped {
		sb.WriteString("Circuit breaker TRIPPED, no entries today\n")
	}
	if snap.Locked {
		sb.WriteString("Governor LOCKED: " + snap.LockReason + "\n")
	}
	if pos := snap.OpenPosition; pos != nil {
		sb.WriteString(fmt.Sprintf("Open: %s %.0f units @ %.3f (stop %.3f, target %.3f)",
			strings.ToUpper(string(pos.Direction)), pos.Units, pos.EntryPrice, pos.Stop, pos.Target))
	} else {
		sb.WriteString("No open position")
	}
	return sb.String()
}

func formatTrades(trades []domain.TradeRecord) string {
	if len(trades) == 0 {
		return "No closed trades yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent trades:\n")
	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s %s %.0f units %+.2f (%s)\n",
			t.ExitTime.Format("01-02 15:04"), strings.ToUpper(string(t.Direction)),
			t.Units, t.PnL, t.ExitReason))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDecisions(decisions []domain.Decision) string {
	if len(decisions) == 0 {
		return "No decisions recorded yet."
	}
	var sb strings.Builder
	sb.WriteString("Recent decisions:\n")
	for _, d := range decisions {
		if d.Action.IsEntry() {
			sb.WriteString(fmt.Sprintf("%s %s grade=%s conf=%d entry=%.3f\n",
				d.Time.Format("01-02 15:04"), strings.ToUpper(string(d.Action)),
				d.Grade, d.Confluence, d.Entry))
		} else {
			sb.WriteString(fmt.Sprintf("%s HOLD (%s)\n",
				d.Time.Format("01-02 15:04"), d.Reason))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
