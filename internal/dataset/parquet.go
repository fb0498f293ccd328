package dataset

import (
	"fmt"
	"path/filepath"

	"probable-pancake/internal/domain"

	"github.com/parquet-go/parquet-go"
)

type tradeRow struct {
	Pair       string  `parquet:"pair"`
	Direction  string  `parquet:"direction"`
	EntryTime  int64   `parquet:"entry_time,timestamp(millisecond)"`
	ExitTime   int64   `parquet:"exit_time,timestamp(millisecond)"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitPrice  float64 `parquet:"exit_price"`
	Units      float64 `parquet:"units"`
	PnL        float64 `parquet:"pnl"`
	ExitReason string  `parquet:"exit_reason"`
}

type equityRow struct {
	Time   int64   `parquet:"time,timestamp(millisecond)"`
	Equity float64 `parquet:"equity"`
}

// ExportParquet writes the trade ledger and equity curve of a completed
// replay as two parquet files under dir, named by the run. Returns the
// written paths.
func ExportParquet(dir string, run domain.BacktestRun, trades []domain.TradeRecord, equity []domain.EquityPoint) (tradesPath, equityPath string, err error) {
	base := fmt.Sprintf("backtest_%s_%s_%s", run.Pair, run.Granularity, run.StartedAt.UTC().Format("20060102T150405"))
	tradesPath = filepath.Join(dir, base+"_trades.parquet")
	equityPath = filepath.Join(dir, base+"_equity.parquet")

	tradeRows := make([]tradeRow, 0, len(trades))
	for _, t := range trades {
		tradeRows = append(tradeRows, tradeRow{
			Pair:       t.Pair,
			Direction:  string(t.Direction),
			EntryTime:  t.EntryTime.UTC().UnixMilli(),
			ExitTime:   t.ExitTime.UTC().UnixMilli(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Units:      t.Units,
			PnL:        t.PnL,
			ExitReason: t.ExitReason,
		})
	}
	if err = parquet.WriteFile(tradesPath, tradeRows); err != nil {
		return "", "", fmt.Errorf("write trades parquet: %w", err)
	}

	equityRows := make([]equityRow, 0, len(equity))
	for _, p := range equity {
		equityRows = append(equityRows, equityRow{Time: p.Time.UTC().UnixMilli(), Equity: p.Equity})
	}
	if err = parquet.WriteFile(equityPath, equityRows); err != nil {
		return "", "", fmt.Errorf("write equity parquet: %w", err)
	}
	return tradesPath, equityPath, nil
}
