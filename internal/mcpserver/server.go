// Package mcpserver exposes the decision engine over the Model Context
// Protocol so LLM clients can inspect it. Every tool is read-only.
package mcpserver

import (
	"context"
	"fmt"
	"time"

	"probable-pancake/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StatusReader exposes the live loop snapshot.
type StatusReader interface {
	Status(ctx context.Context) domain.StatusSnapshot
}

// DecisionReader exposes recent signal evaluations.
type DecisionReader interface {
	RecentDecisions(ctx context.Context, pair string, limit int) ([]domain.Decision, error)
}

// TradeReader exposes the closed-trade ledger.
type TradeReader interface {
	RecentTrades(ctx context.Context, pair string, limit int) ([]domain.TradeRecord, error)
}

// BacktestReader exposes persisted backtest runs.
type BacktestReader interface {
	ListRuns(ctx context.Context, pair string, limit int) ([]domain.BacktestRun, error)
	GetRun(ctx context.Context, id int64) (*domain.BacktestRun, error)
	EquityCurve(ctx context.Context, runID int64) ([]domain.EquityPoint, error)
}

// MacroReader exposes the composite macro bias.
type MacroReader interface {
	Snapshot(ctx context.Context, now time.Time) (*domain.MacroSnapshot, error)
}

// Deps bundles the read models the tools query. Nil fields disable the
// corresponding tools.
type Deps struct {
	Pair      string
	Status    StatusReader
	Decisions DecisionReader
	Trades    TradeReader
	Backtests BacktestReader
	Macro     MacroReader
}

type limitInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of rows to return"`
}

type runInput struct {
	ID int64 `json:"id" jsonschema:"backtest run ID"`
}

type decisionsOutput struct {
	Pair      string            `json:"pair"`
	Decisions []domain.Decision `json:"decisions"`
}

type tradesOutput struct {
	Pair   string               `json:"pair"`
	Trades []domain.TradeRecord `json:"trades"`
}

type runsOutput struct {
	Pair string               `json:"pair"`
	Runs []domain.BacktestRun `json:"runs"`
}

type runOutput struct {
	Run    domain.BacktestRun   `json:"run"`
	Equity []domain.EquityPoint `json:"equity"`
}

// NewServer registers one tool per read model and returns the MCP server.
// The caller picks the transport (stdio or streamable HTTP).
func NewServer(tracer trace.Tracer, deps Deps) *mcp.Server {
	if deps.Pair == "" {
		deps.Pair = domain.DefaultPair
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "probable-pancake",
		Version: "1.0.0",
	}, nil)

	if deps.Status != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_status",
			Description: "Current engine status: equity, daily PnL, open position, governor locks and circuit breaker state.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in struct{}) (*mcp.CallToolResult, domain.StatusSnapshot, error) {
			ctx, span := tracer.Start(ctx, "mcp.get-status")
			defer span.End()
			return nil, deps.Status.Status(ctx), nil
		})
	}

	if deps.Decisions != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_recent_decisions",
			Description: "Recent signal evaluations with grade, confluence and hold reasons, newest first.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in limitInput) (*mcp.CallToolResult, decisionsOutput, error) {
			ctx, span := tracer.Start(ctx, "mcp.get-recent-decisions")
			defer span.End()
			limit := clampLimit(in.Limit, 20, 200)
			span.SetAttributes(attribute.Int("limit", limit))
			decisions, err := deps.Decisions.RecentDecisions(ctx, deps.Pair, limit)
			if err != nil {
				span.RecordError(err)
				return nil, decisionsOutput{}, fmt.Errorf("load decisions: %w", err)
			}
			return nil, decisionsOutput{Pair: deps.Pair, Decisions: decisions}, nil
		})
	}

	if deps.Trades != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_recent_trades",
			Description: "Recently closed trades with realized PnL and exit reasons, newest first.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in limitInput) (*mcp.CallToolResult, tradesOutput, error) {
			ctx, span := tracer.Start(ctx, "mcp.get-recent-trades")
			defer span.End()
			limit := clampLimit(in.Limit, 20, 200)
			trades, err := deps.Trades.RecentTrades(ctx, deps.Pair, limit)
			if err != nil {
				span.RecordError(err)
				return nil, tradesOutput{}, fmt.Errorf("load trades: %w", err)
			}
			return nil, tradesOutput{Pair: deps.Pair, Trades: trades}, nil
		})
	}

	if deps.Backtests != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "list_backtests",
			Description: "Persisted backtest runs with their aggregate statistics, newest first.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in limitInput) (*mcp.CallToolResult, runsOutput, error) {
			ctx, span := tracer.Start(ctx, "mcp.list-backtests")
			defer span.End()
			limit := clampLimit(in.Limit, 10, 100)
			runs, err := deps.Backtests.ListRuns(ctx, deps.Pair, limit)
			if err != nil {
				span.RecordError(err)
				return nil, runsOutput{}, fmt.Errorf("list backtests: %w", err)
			}
			return nil, runsOutput{Pair: deps.Pair, Runs: runs}, nil
		})

		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_backtest",
			Description: "One backtest run by ID, including its full equity curve.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in runInput) (*mcp.CallToolResult, runOutput, error) {
			ctx, span := tracer.Start(ctx, "mcp.get-backtest")
			defer span.End()
			span.SetAttributes(attribute.Int64("run_id", in.ID))
			run, err := deps.Backtests.GetRun(ctx, in.ID)
			if err != nil {
				span.RecordError(err)
				return nil, runOutput{}, fmt.Errorf("load backtest %d: %w", in.ID, err)
			}
			if run == nil {
				return nil, runOutput{}, fmt.Errorf("backtest run %d not found", in.ID)
			}
			equity, err := deps.Backtests.EquityCurve(ctx, in.ID)
			if err != nil {
				span.RecordError(err)
				return nil, runOutput{}, fmt.Errorf("load equity curve %d: %w", in.ID, err)
			}
			return nil, runOutput{Run: *run, Equity: equity}, nil
		})
	}

	if deps.Macro != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "get_macro_snapshot",
			Description: "Composite macro bias (US yields, VIX regime, JP CPI trend) with confidence and per-question answers.",
		}, func(ctx context.Context, req *mcp.CallToolRequest, in struct{}) (*mcp.CallToolResult, domain.MacroSnapshot, error) {
			ctx, span := tracer.Start(ctx, "mcp.get-macro-snapshot")
			defer span.End()
			snap, err := deps.Macro.Snapshot(ctx, time.Now().UTC())
			if err != nil {
				span.RecordError(err)
				return nil, domain.MacroSnapshot{}, fmt.Errorf("load macro snapshot: %w", err)
			}
			if snap == nil {
				return nil, domain.MacroSnapshot{}, fmt.Errorf("no macro snapshot available yet")
			}
			return nil, *snap, nil
		})
	}

	return server
}

func clampLimit(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
