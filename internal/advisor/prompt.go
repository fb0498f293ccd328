package advisor

import (
	"fmt"
	"strings"
	"time"

	"probable-pancake/internal/domain"
)

const tradingPhilosophy = `You are the advisor bot for a single-pair FX decision engine. Your role is to interpret the engine's decisions, trades and risk state, NOT to generate signals yourself.

The engine:
- Trades one pair on M15 bars with an EMA/RSI/ATR confluence pipeline (7 gates, grade A when all pass, grade B on the fallback or turbo path).
- Manages positions with breakeven, trailing stops, partials at 2R and 3R, and time stops.
- A risk governor enforces cooldowns, loss-streak locks and drawdown lockouts; a daily circuit breaker halts entries after the daily loss limit.
- A macro bias (US yields, VIX regime, JP CPI trend) can block or shrink entries that fight it.

Rules:
- Always reference the specific decisions, trades and status values you were given.
- Never fabricate data. If data is unavailable, say so.
- Express uncertainty when the gates disagree or confluence is low.
- When discussing a decision, mention its grade, confluence count and the hold reason if it held.
- Keep responses concise and actionable. You are talking via Telegram.
- Do not provide financial advice disclaimers on every message. The user understands this is informational.
- If the governor is locked or the breaker is tripped, lead with that.`

func BuildSystemPrompt(pair, marketContext string) string {
	var sb strings.Builder
	sb.WriteString(tradingPhilosophy)
	sb.WriteString("\n\n--- LIVE ")
	sb.WriteString(pair)
	sb.WriteString(" DATA (as of ")
	sb.WriteString(time.Now().UTC().Format(time.RFC822))
	sb.WriteString(") ---\n")
	sb.WriteString(marketContext)
	return sb.String()
}

func FormatMarketContext(
	status domain.StatusSnapshot,
	decisions []domain.Decision,
	trades []domain.TradeRecord,
	macro *domain.MacroSnapshot,
) string {
	var sb strings.Builder

	if !status.UpdatedAt.IsZero() || status.Equity > 0 {
		sb.WriteString("\nStatus:\n")
		sb.WriteString(fmt.Sprintf("  equity: %.2f, daily PnL: %+.2f\n", status.Equity, status.DailyPnL))
		if status.LastClose > 0 {
			sb.WriteString(fmt.Sprintf("  last close: %.3f at %s\n",
				status.LastClose, status.LastBarTime.Format("2006-01-02 15:04")))
		}
		if status.BreakerTripped {
			sb.WriteString("  DAILY CIRCUIT BREAKER TRIPPED: no new entries today\n")
		}
		if status.Locked {
			sb.WriteString("  GOVERNOR LOCKED: " + status.LockReason + "\n")
		}
		if pos := status.OpenPosition; pos != nil {
			sb.WriteString(fmt.Sprintf("  open position: %s %.0f units @ %.3f (stop %.3f, target %.3f)\n",
				pos.Direction, pos.Units, pos.EntryPrice, pos.Stop, pos.Target))
		} else {
			sb.WriteString("  no open position\n")
		}
	}

	if len(decisions) > 0 {
		sb.WriteString("\nRecent Decisions:\n")
		for _, d := range decisions {
			if d.Action.IsEntry() {
				sb.WriteString(fmt.Sprintf("  %s %s grade=%s confluence=%d entry=%.3f stop=%.3f target=%.3f\n",
					d.Time.Format("01-02 15:04"), strings.ToUpper(string(d.Action)),
					d.Grade, d.Confluence, d.Entry, d.Stop, d.Target))
			} else {
				sb.WriteString(fmt.Sprintf("  %s HOLD (%s) confluence=%d\n",
					d.Time.Format("01-02 15:04"), d.Reason, d.Confluence))
			}
		}
	}

	if len(trades) > 0 {
		sb.WriteString("\nRecent Trades:\n")
		for _, t := range trades {
			sb.WriteString(fmt.Sprintf("  %s %s %.0f units pnl=%+.2f (%s)\n",
				t.ExitTime.Format("01-02 15:04"), strings.ToUpper(string(t.Direction)),
				t.Units, t.PnL, t.ExitReason))
		}
	}

	if macro != nil {
		sb.WriteString(fmt.Sprintf("\nMacro Bias: %s (confidence %s, score %+.1f, refreshed %s)\n",
			macro.Bias, macro.Confidence, macro.Score, macro.RefreshedAt.Format("01-02 15:04")))
		for q, a := range macro.Answers {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", q, a))
		}
	}

	if sb.Len() == 0 {
		return "No market data currently available."
	}
	return sb.String()
}
